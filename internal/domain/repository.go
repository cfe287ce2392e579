package domain

import "context"

// CustomerRepository описывает требования к хранилищу клиентов.
type CustomerRepository interface {
	// Add сохраняет клиента и проставляет ему идентификатор.
	Add(ctx context.Context, customer *Customer) (*Customer, error)
	// Get возвращает клиента или ErrCustomerNotFound.
	Get(ctx context.Context, id int64) (*Customer, error)
	// List возвращает всех клиентов в порядке добавления.
	List(ctx context.Context) ([]*Customer, error)
	// Update перезаписывает имя и email клиента.
	Update(ctx context.Context, customer *Customer) error
}

// ProductRepository описывает требования к хранилищу товаров.
type ProductRepository interface {
	// Add сохраняет товар и проставляет ему идентификатор.
	Add(ctx context.Context, product *Product) (*Product, error)
	// Get возвращает товар или ErrProductNotFound.
	Get(ctx context.Context, id int64) (*Product, error)
	// List возвращает все товары в порядке добавления.
	List(ctx context.Context) ([]*Product, error)
	// Update перезаписывает название, остаток и цену товара.
	Update(ctx context.Context, product *Product) error
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Add сохраняет заказ, его позиции и текущие остатки товаров из позиций.
	Add(ctx context.Context, order *Order) (*Order, error)
	// Get возвращает заказ вместе с товарами или ErrOrderNotFound.
	// Позиции с одинаковым товаром ссылаются на один *Product.
	Get(ctx context.Context, id int64) (*Order, error)
	// List возвращает все заказы в порядке добавления.
	List(ctx context.Context) ([]*Order, error)
	// Update сохраняет статус и сумму заказа.
	Update(ctx context.Context, order *Order) error
}
