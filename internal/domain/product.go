package domain

// Product — товар на складе.
//
// Инварианты (Quantity >= 0, Price > 0) проверяются только в NewProduct.
// Последующие изменения полей (списание и возврат остатка) повторно не валидируются.
type Product struct {
	ID       int64
	Name     string
	Quantity int
	Price    float64
}

// NewProduct создаёт товар, проверяя остаток и цену.
func NewProduct(name string, quantity int, price float64) (*Product, error) {
	if quantity < 0 {
		return nil, ErrQuantityNegative
	}
	if price <= 0 {
		return nil, ErrPriceNotPositive
	}
	return &Product{Name: name, Quantity: quantity, Price: price}, nil
}

// Available сообщает, есть ли товар в наличии.
func (p *Product) Available() bool {
	return p.Quantity > 0
}
