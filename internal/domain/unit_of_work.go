package domain

import "context"

// UnitOfWork — транзакционная граница вокруг последовательности операций с репозиториями.
//
// Репозитории, полученные из UnitOfWork, работают внутри одной транзакции.
// Rollback после Commit ничего не делает и возвращает nil, поэтому
// `defer uow.Rollback()` гарантирует откат, если Commit так и не был вызван.
type UnitOfWork interface {
	Customers() CustomerRepository
	Products() ProductRepository
	Orders() OrderRepository
	Outbox() OutboxRepository
	Timeline() TimelineRepository

	Commit() error
	Rollback() error
}

// UnitOfWorkFactory открывает новые единицы работы над хранилищем.
type UnitOfWorkFactory interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}
