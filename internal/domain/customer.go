package domain

// Customer — клиент склада. Идентификатор назначает хранилище при добавлении.
type Customer struct {
	ID    int64
	Name  string
	Email string
}

// NewCustomer создаёт клиента без идентификатора.
func NewCustomer(name, email string) *Customer {
	return &Customer{Name: name, Email: email}
}
