package warehouse

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
)

// Operations — публичные операции склада. Реализуется Service и декораторами над ним.
type Operations interface {
	CreateCustomer(ctx context.Context, name, email string) (*domain.Customer, error)
	CreateProduct(ctx context.Context, name string, quantity int, price float64) (*domain.Product, error)
	CreateOrder(ctx context.Context, customerID int64, productIDs []int64) (*domain.Order, error)
	ConfirmOrder(ctx context.Context, orderID int64) (*domain.Order, error)
	ShipOrder(ctx context.Context, orderID int64) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderID int64) (*domain.Order, error)
	AvailableProducts(ctx context.Context) ([]*domain.Product, error)
	Customers(ctx context.Context) ([]*domain.Customer, error)
	Orders(ctx context.Context) ([]*domain.Order, error)
	OrderTimeline(ctx context.Context, orderID int64) ([]domain.TimelineEvent, error)
}

// Service оркестрирует создание сущностей и жизненный цикл заказа поверх репозиториев.
// Ошибки не перехватываются и не повторяются: атомарность обеспечивает единица работы вокруг вызова.
type Service struct {
	products  domain.ProductRepository
	orders    domain.OrderRepository
	customers domain.CustomerRepository
	outbox    domain.OutboxRepository
	timeline  domain.TimelineRepository
	logger    *log.Entry
	now       func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithOutbox включает запись событий заказа в transactional outbox.
func WithOutbox(repo domain.OutboxRepository) Option {
	return func(s *Service) {
		s.outbox = repo
	}
}

// WithTimeline включает запись истории статусов заказа.
func WithTimeline(repo domain.TimelineRepository) Option {
	return func(s *Service) {
		s.timeline = repo
	}
}

// WithClock подменяет источник времени для событий.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService создаёт сервис склада над репозиториями.
func NewService(
	products domain.ProductRepository,
	orders domain.OrderRepository,
	customers domain.CustomerRepository,
	opts ...Option,
) *Service {
	s := &Service{
		products:  products,
		orders:    orders,
		customers: customers,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "warehouse")
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// FromUnitOfWork создаёт сервис, все репозитории которого работают внутри uow.
// Outbox и timeline подключаются автоматически; opts применяются после них.
func FromUnitOfWork(uow domain.UnitOfWork, opts ...Option) *Service {
	base := []Option{WithOutbox(uow.Outbox()), WithTimeline(uow.Timeline())}
	return NewService(uow.Products(), uow.Orders(), uow.Customers(), append(base, opts...)...)
}

// CreateCustomer создаёт и сохраняет клиента.
func (s *Service) CreateCustomer(ctx context.Context, name, email string) (*domain.Customer, error) {
	customer, err := s.customers.Add(ctx, domain.NewCustomer(name, email))
	if err != nil {
		return nil, fmt.Errorf("add customer: %w", err)
	}
	s.logger.WithField("customer_id", customer.ID).Info("customer created")
	return customer, nil
}

// CreateProduct создаёт товар (с проверкой инвариантов) и сохраняет его.
func (s *Service) CreateProduct(ctx context.Context, name string, quantity int, price float64) (*domain.Product, error) {
	product, err := domain.NewProduct(name, quantity, price)
	if err != nil {
		return nil, err
	}
	product, err = s.products.Add(ctx, product)
	if err != nil {
		return nil, fmt.Errorf("add product: %w", err)
	}
	s.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"quantity":   product.Quantity,
	}).Info("product created")
	return product, nil
}

// CreateOrder оформляет заказ клиента на перечисленные товары, по одной единице на идентификатор.
//
// Все товары проверяются до каких-либо изменений: отсутствующий или закончившийся товар
// прерывает оформление ошибкой "product <id> unavailable". Повторяющиеся идентификаторы
// разрешаются в один и тот же *Product, поэтому списание по ним суммируется.
func (s *Service) CreateOrder(ctx context.Context, customerID int64, productIDs []int64) (*domain.Order, error) {
	if _, err := s.customers.Get(ctx, customerID); err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer %d: %w", customerID, err)
	}

	resolved := make(map[int64]*domain.Product, len(productIDs))
	products := make([]*domain.Product, 0, len(productIDs))
	for _, id := range productIDs {
		product, ok := resolved[id]
		if !ok {
			var err error
			product, err = s.products.Get(ctx, id)
			if err != nil && !domain.IsNotFound(err) {
				return nil, fmt.Errorf("get product %d: %w", id, err)
			}
			if product == nil || !product.Available() {
				return nil, domain.ProductUnavailableError(id)
			}
			resolved[id] = product
		}
		products = append(products, product)
	}

	order := domain.NewOrder(customerID)
	for _, product := range products {
		if err := order.AddProduct(product, 1); err != nil {
			return nil, err
		}
	}

	order, err := s.orders.Add(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("add order: %w", err)
	}
	if err := s.recordEvent(ctx, order, domain.TimelineOrderCreated); err != nil {
		return nil, err
	}

	s.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"customer_id": order.CustomerID,
		"lines":       len(order.Products),
		"total_price": order.TotalPrice,
	}).Info("order created")
	return order, nil
}

// ConfirmOrder подтверждает заказ и сохраняет его товары и сам заказ.
func (s *Service) ConfirmOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := order.Confirm(); err != nil {
		return nil, err
	}
	// Confirm не меняет остатки, но товары заказа сохраняются так же, как при отмене.
	if err := s.saveProducts(ctx, order); err != nil {
		return nil, err
	}
	if err := s.saveOrder(ctx, order, domain.TimelineOrderConfirmed); err != nil {
		return nil, err
	}
	s.logger.WithField("order_id", order.ID).Info("order confirmed")
	return order, nil
}

// ShipOrder отгружает подтверждённый заказ.
func (s *Service) ShipOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := order.Ship(); err != nil {
		return nil, err
	}
	if err := s.saveOrder(ctx, order, domain.TimelineOrderShipped); err != nil {
		return nil, err
	}
	s.logger.WithField("order_id", order.ID).Info("order shipped")
	return order, nil
}

// CancelOrder отменяет заказ, возвращает товары на склад и сохраняет изменения.
func (s *Service) CancelOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := order.Cancel(); err != nil {
		return nil, err
	}
	if err := s.saveProducts(ctx, order); err != nil {
		return nil, err
	}
	if err := s.saveOrder(ctx, order, domain.TimelineOrderCancelled); err != nil {
		return nil, err
	}
	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"restored": len(order.Products),
	}).Info("order cancelled")
	return order, nil
}

// AvailableProducts возвращает товары с положительным остатком в порядке репозитория.
func (s *Service) AvailableProducts(ctx context.Context) ([]*domain.Product, error) {
	all, err := s.products.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	available := make([]*domain.Product, 0, len(all))
	for _, p := range all {
		if p.Available() {
			available = append(available, p)
		}
	}
	return available, nil
}

// Customers возвращает всех клиентов.
func (s *Service) Customers(ctx context.Context) ([]*domain.Customer, error) {
	customers, err := s.customers.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return customers, nil
}

// Orders возвращает все заказы.
func (s *Service) Orders(ctx context.Context) ([]*domain.Order, error) {
	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// OrderTimeline возвращает историю заказа. Без подключённого timeline история пуста.
func (s *Service) OrderTimeline(ctx context.Context, orderID int64) ([]domain.TimelineEvent, error) {
	if _, err := s.loadOrder(ctx, orderID); err != nil {
		return nil, err
	}
	if s.timeline == nil {
		return []domain.TimelineEvent{}, nil
	}
	events, err := s.timeline.List(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	return events, nil
}

func (s *Service) loadOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order %d: %w", orderID, err)
	}
	return order, nil
}

func (s *Service) saveProducts(ctx context.Context, order *domain.Order) error {
	for _, product := range order.Products {
		if err := s.products.Update(ctx, product); err != nil {
			return fmt.Errorf("update product %d: %w", product.ID, err)
		}
	}
	return nil
}

func (s *Service) saveOrder(ctx context.Context, order *domain.Order, eventType string) error {
	if err := s.orders.Update(ctx, order); err != nil {
		return fmt.Errorf("update order %d: %w", order.ID, err)
	}
	return s.recordEvent(ctx, order, eventType)
}

var _ Operations = (*Service)(nil)
