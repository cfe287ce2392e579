package observability

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
	"github.com/vladislavdragonenkov/warehouse/internal/metrics"
	"github.com/vladislavdragonenkov/warehouse/internal/warehouse"
)

const tracerName = "github.com/vladislavdragonenkov/warehouse/internal/warehouse"

// Имена операций для span и метки operation.
const (
	OpCreateCustomer    = "create_customer"
	OpCreateProduct     = "create_product"
	OpCreateOrder       = "create_order"
	OpConfirmOrder      = "confirm_order"
	OpShipOrder         = "ship_order"
	OpCancelOrder       = "cancel_order"
	OpAvailableProducts = "available_products"
	OpCustomers         = "customers"
	OpOrders            = "orders"
	OpOrderTimeline     = "order_timeline"
)

// Service оборачивает операции склада трейсингом, метриками и логированием ошибок.
// Статусы заказов попадают в метрики только после фиксации единицы работы.
type Service struct {
	inner   warehouse.Operations
	tracer  trace.Tracer
	metrics *metrics.WarehouseMetrics
	logger  *log.Entry

	mu       sync.Mutex
	statuses []string
}

// Option настраивает декоратор.
type Option func(*Service)

// WithTracer задаёт tracer; по умолчанию используется noop.
func WithTracer(tr trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tr
	}
}

// WithMetrics задаёт метрики операций.
func WithMetrics(m *metrics.WarehouseMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger задаёт logger для ошибок операций.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New оборачивает inner.
func New(inner warehouse.Operations, opts ...Option) *Service {
	s := &Service{inner: inner}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.tracer == nil {
		s.tracer = nooptrace.NewTracerProvider().Tracer(tracerName)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "warehouse-observability")
	}
	return s
}

// Decorator возвращает функцию для warehouse.WithDecorator.
func Decorator(opts ...Option) func(warehouse.Operations) warehouse.Operations {
	return func(inner warehouse.Operations) warehouse.Operations {
		return New(inner, opts...)
	}
}

func (s *Service) CreateCustomer(ctx context.Context, name, email string) (*domain.Customer, error) {
	ctx, finish := s.start(ctx, OpCreateCustomer)
	customer, err := s.inner.CreateCustomer(ctx, name, email)
	if err == nil {
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int64("customer.id", customer.ID))
	}
	return customer, finish(err)
}

func (s *Service) CreateProduct(ctx context.Context, name string, quantity int, price float64) (*domain.Product, error) {
	ctx, finish := s.start(ctx, OpCreateProduct,
		attribute.String("product.name", name),
		attribute.Int("product.quantity", quantity),
	)
	product, err := s.inner.CreateProduct(ctx, name, quantity, price)
	if err == nil {
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int64("product.id", product.ID))
	}
	return product, finish(err)
}

func (s *Service) CreateOrder(ctx context.Context, customerID int64, productIDs []int64) (*domain.Order, error) {
	ctx, finish := s.start(ctx, OpCreateOrder,
		attribute.Int64("customer.id", customerID),
		attribute.Int64Slice("product.ids", productIDs),
	)
	order, err := s.inner.CreateOrder(ctx, customerID, productIDs)
	if err == nil {
		s.recordOrder(ctx, order)
	}
	return order, finish(err)
}

func (s *Service) ConfirmOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	return s.transition(ctx, OpConfirmOrder, orderID, s.inner.ConfirmOrder)
}

func (s *Service) ShipOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	return s.transition(ctx, OpShipOrder, orderID, s.inner.ShipOrder)
}

func (s *Service) CancelOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	return s.transition(ctx, OpCancelOrder, orderID, s.inner.CancelOrder)
}

func (s *Service) AvailableProducts(ctx context.Context) ([]*domain.Product, error) {
	ctx, finish := s.start(ctx, OpAvailableProducts)
	products, err := s.inner.AvailableProducts(ctx)
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("products.count", len(products)))
	return products, finish(err)
}

func (s *Service) Customers(ctx context.Context) ([]*domain.Customer, error) {
	ctx, finish := s.start(ctx, OpCustomers)
	customers, err := s.inner.Customers(ctx)
	return customers, finish(err)
}

func (s *Service) Orders(ctx context.Context) ([]*domain.Order, error) {
	ctx, finish := s.start(ctx, OpOrders)
	orders, err := s.inner.Orders(ctx)
	return orders, finish(err)
}

func (s *Service) OrderTimeline(ctx context.Context, orderID int64) ([]domain.TimelineEvent, error) {
	ctx, finish := s.start(ctx, OpOrderTimeline, attribute.Int64("order.id", orderID))
	events, err := s.inner.OrderTimeline(ctx, orderID)
	return events, finish(err)
}

func (s *Service) transition(
	ctx context.Context,
	op string,
	orderID int64,
	call func(context.Context, int64) (*domain.Order, error),
) (*domain.Order, error) {
	ctx, finish := s.start(ctx, op, attribute.Int64("order.id", orderID))
	order, err := call(ctx, orderID)
	if err == nil {
		s.recordOrder(ctx, order)
	}
	return order, finish(err)
}

func (s *Service) recordOrder(ctx context.Context, order *domain.Order) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int64("order.id", order.ID),
		attribute.String("order.status", string(order.Status)),
		attribute.Float64("order.total_price", order.TotalPrice),
	)
	s.mu.Lock()
	s.statuses = append(s.statuses, string(order.Status))
	s.mu.Unlock()
}

// Committed учитывает статусы заказов, достигнутые в зафиксированной единице работы.
func (s *Service) Committed() {
	s.mu.Lock()
	statuses := s.statuses
	s.statuses = nil
	s.mu.Unlock()

	for _, status := range statuses {
		s.metrics.RecordOrderStatus(status)
	}
}

// start открывает span операции и возвращает функцию, завершающую его с результатом err.
func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error) error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "Warehouse."+op, trace.WithAttributes(attrs...))

	return ctx, func(err error) error {
		defer span.End()
		s.metrics.RecordOperation(op, err, time.Since(started))
		if err == nil {
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.WithFields(log.Fields{
			"operation": op,
			"kind":      errorKind(err),
		}).WithError(err).Warn("warehouse operation failed")
		return err
	}
}

func errorKind(err error) string {
	switch {
	case domain.IsValidation(err):
		return "validation"
	case domain.IsNotFound(err):
		return "not_found"
	case domain.IsInsufficientStock(err):
		return "insufficient_stock"
	case domain.IsInvalidStateTransition(err):
		return "invalid_transition"
	default:
		return "internal"
	}
}

var (
	_ warehouse.Operations     = (*Service)(nil)
	_ warehouse.CommitObserver = (*Service)(nil)
)
