package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, оплата ещё не подтверждена.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid — провайдер подтвердил оплату.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusCancelled — оплата не состоялась или сессия истекла.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal сообщает, что из статуса нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCancelled
}

// CanTransition разрешает только pending → paid и pending → cancelled.
func CanTransition(from, to OrderStatus) bool {
	return from == OrderStatusPending && (to == OrderStatusPaid || to == OrderStatusCancelled)
}

// ShippingAddress — снимок адреса доставки на момент оформления.
// Последующие правки адреса пользователя заказ не затрагивают.
type ShippingAddress struct {
	Zipcode    string
	Street     string
	Number     string
	City       string
	State      string
	Country    string
	Complement string
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	ID        string
	OrderID   string
	ProductID int64
	Quantity  int32
	// PriceMinor — цена за единицу в центах, скопированная из товара при оформлении.
	PriceMinor int64
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID                string
	UserID            int64
	Status            OrderStatus
	TotalMinor        int64
	ShippingCostMinor int64
	ShippingDays      int32
	Shipping          ShippingAddress
	Items             []OrderItem
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SubtotalMinor возвращает сумму позиций без доставки.
func (o *Order) SubtotalMinor() int64 {
	var sum int64
	for _, item := range o.Items {
		sum += int64(item.Quantity) * item.PriceMinor
	}
	return sum
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID <= 0 {
		errs = append(errs, ErrUserRequired)
	}
	if o.ShippingCostMinor < 0 {
		errs = append(errs, ErrShippingNegative)
	}
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}
	// total == Σ price×qty + shipping, считается один раз при создании.
	if o.SubtotalMinor()+o.ShippingCostMinor != o.TotalMinor {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}
