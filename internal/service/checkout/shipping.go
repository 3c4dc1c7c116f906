package checkout

import (
	"regexp"
	"strings"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const (
	// DefaultShippingCostMinor: фиксированная стоимость доставки, 10.00.
	DefaultShippingCostMinor int64 = 1000
	// DefaultShippingDays: фиксированный срок доставки.
	DefaultShippingDays int32 = 3
)

var zipcodePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 -]{2,8}[A-Za-z0-9]$`)

// ShippingQuote: оценка доставки для индекса.
type ShippingQuote struct {
	Zipcode   string
	CostMinor int64
	Days      int32
}

// FlatRate считает доставку по фиксированному тарифу независимо от адреса.
type FlatRate struct {
	CostMinor int64
	Days      int32
}

// DefaultFlatRate возвращает тариф 10.00 / 3 дня.
func DefaultFlatRate() FlatRate {
	return FlatRate{CostMinor: DefaultShippingCostMinor, Days: DefaultShippingDays}
}

// ValidZipcode проверяет формат почтового индекса: 4–10 символов,
// буквы, цифры, пробел и дефис, без разделителей по краям.
func ValidZipcode(zipcode string) bool {
	return zipcodePattern.MatchString(zipcode)
}

// Quote возвращает оценку доставки. Некорректный индекс → domain.ErrInvalidZipcode.
func (r FlatRate) Quote(zipcode string) (ShippingQuote, error) {
	zipcode = strings.TrimSpace(zipcode)
	if !ValidZipcode(zipcode) {
		return ShippingQuote{}, domain.ErrInvalidZipcode
	}
	return ShippingQuote{Zipcode: zipcode, CostMinor: r.CostMinor, Days: r.Days}, nil
}
