package domain

import "math"

// CartItem — позиция корзины, присланная клиентом. Не сохраняется как есть.
type CartItem struct {
	ProductID int64
	Quantity  int32
}

// PricedItem — позиция корзины с разрешённым товаром и ценой на момент оформления.
type PricedItem struct {
	ProductID  int64
	Label      string
	PriceMinor int64
	Quantity   int32
}

// LineTotalMinor возвращает стоимость позиции в центах.
func (p PricedItem) LineTotalMinor() int64 {
	return p.PriceMinor * int64(p.Quantity)
}

// MinorFromDecimal переводит сумму в основных единицах в центы: round(x*100).
func MinorFromDecimal(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// DecimalFromMinor переводит центы в основные единицы для JSON-ответов.
func DecimalFromMinor(amount int64) float64 {
	return float64(amount) / 100
}
