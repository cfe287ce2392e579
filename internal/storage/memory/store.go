package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
)

// ErrUnitOfWorkFinished возвращается при повторном Commit.
var ErrUnitOfWorkFinished = errors.New("unit of work already finished")

// Store — in-memory хранилище склада для локальной разработки и тестов.
// Единицы работы выполняются по одной: Begin ждёт завершения предыдущей.
type Store struct {
	writer chan struct{}

	customers *customerRepository
	products  *productRepository
	orders    *orderRepository
	outbox    *outboxRepository
	timeline  *timelineRepository
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	products := newProductRepository()
	return &Store{
		writer:    make(chan struct{}, 1),
		customers: newCustomerRepository(),
		products:  products,
		orders:    newOrderRepository(products),
		outbox:    newOutboxRepository(),
		timeline:  newTimelineRepository(),
	}
}

// Begin открывает единицу работы, захватывая хранилище на запись.
func (s *Store) Begin(ctx context.Context) (domain.UnitOfWork, error) {
	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return &unitOfWork{
		store:  s,
		snap:   s.snapshot(),
		outbox: &txOutbox{outboxRepository: s.outbox},
	}, nil
}

// Customers возвращает репозиторий клиентов вне единицы работы (только для чтения).
func (s *Store) Customers() domain.CustomerRepository { return s.customers }

// Products возвращает репозиторий товаров вне единицы работы (только для чтения).
func (s *Store) Products() domain.ProductRepository { return s.products }

// Orders возвращает репозиторий заказов вне единицы работы (только для чтения).
func (s *Store) Orders() domain.OrderRepository { return s.orders }

// Outbox возвращает outbox для воркера публикации.
func (s *Store) Outbox() domain.OutboxRepository { return s.outbox }

// Timeline возвращает историю заказов вне единицы работы.
func (s *Store) Timeline() domain.TimelineRepository { return s.timeline }

// Ping всегда успешен: хранилище находится в памяти процесса.
func (s *Store) Ping(context.Context) error { return nil }

// Close ничего не освобождает; метод нужен для единообразия с postgres.Store.
func (s *Store) Close() error { return nil }

type snapshot struct {
	customers table[domain.Customer]
	products  table[domain.Product]
	orders    table[orderRecord]
	timeline  map[int64][]domain.TimelineEvent
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		customers: s.customers.snapshot(),
		products:  s.products.snapshot(),
		orders:    s.orders.snapshot(),
		timeline:  s.timeline.snapshot(),
	}
}

func (s *Store) restore(snap snapshot) {
	s.customers.restore(snap.customers)
	s.products.restore(snap.products)
	s.orders.restore(snap.orders)
	s.timeline.restore(snap.timeline)
}

// unitOfWork — единица работы над Store: откат восстанавливает снимок, сделанный в Begin.
type unitOfWork struct {
	mu     sync.Mutex
	store  *Store
	snap   snapshot
	outbox *txOutbox
	done   bool
}

func (u *unitOfWork) Customers() domain.CustomerRepository { return u.store.customers }
func (u *unitOfWork) Products() domain.ProductRepository   { return u.store.products }
func (u *unitOfWork) Orders() domain.OrderRepository       { return u.store.orders }
func (u *unitOfWork) Outbox() domain.OutboxRepository      { return u.outbox }
func (u *unitOfWork) Timeline() domain.TimelineRepository  { return u.store.timeline }

func (u *unitOfWork) Commit() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.done {
		return ErrUnitOfWorkFinished
	}
	u.outbox.flush(context.Background())
	u.finish()
	return nil
}

func (u *unitOfWork) Rollback() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.done {
		return nil
	}
	u.store.restore(u.snap)
	u.outbox.discard()
	u.finish()
	return nil
}

func (u *unitOfWork) finish() {
	u.done = true
	u.snap = snapshot{}
	<-u.store.writer
}

var (
	_ domain.UnitOfWorkFactory = (*Store)(nil)
	_ domain.UnitOfWork        = (*unitOfWork)(nil)
)
