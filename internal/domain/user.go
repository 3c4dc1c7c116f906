package domain

// User — зарегистрированный покупатель.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Token        string
}

// Address — адрес доставки, принадлежащий пользователю.
type Address struct {
	ID         int64
	UserID     int64
	Zipcode    string
	Street     string
	Number     string
	City       string
	State      string
	Country    string
	Complement string
}

// Snapshot копирует поля адреса в заказ.
func (a Address) Snapshot() ShippingAddress {
	return ShippingAddress{
		Zipcode:    a.Zipcode,
		Street:     a.Street,
		Number:     a.Number,
		City:       a.City,
		State:      a.State,
		Country:    a.Country,
		Complement: a.Complement,
	}
}
