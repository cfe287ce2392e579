package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
)

// orderRecord — сохранённый заказ: позиции хранятся как идентификаторы товаров.
type orderRecord struct {
	id         int64
	customerID int64
	status     domain.OrderStatus
	totalPrice float64
	productIDs []int64
}

// orderRepository — in-memory реализация OrderRepository.
// Товары заказа читаются и записываются через репозиторий товаров.
type orderRepository struct {
	mu       sync.RWMutex
	items    table[orderRecord]
	products *productRepository
}

func newOrderRepository(products *productRepository) *orderRepository {
	return &orderRepository{
		items:    newTable[orderRecord](),
		products: products,
	}
}

// Add сохраняет заказ и остатки его товаров.
func (r *orderRepository) Add(_ context.Context, order *domain.Order) (*domain.Order, error) {
	if err := r.products.saveQuantities(order.Products); err != nil {
		return nil, fmt.Errorf("save order products: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record := orderRecord{
		customerID: order.CustomerID,
		status:     order.Status,
		totalPrice: order.TotalPrice,
		productIDs: order.ProductIDs(),
	}
	id := r.items.insert(record)
	record.id = id
	r.items.rows[id] = record

	order.ID = id
	return order, nil
}

func (r *orderRepository) Get(_ context.Context, id int64) (*domain.Order, error) {
	r.mu.RLock()
	record, ok := r.items.get(id)
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return r.hydrate(record)
}

func (r *orderRepository) List(_ context.Context) ([]*domain.Order, error) {
	r.mu.RLock()
	records := r.items.all()
	r.mu.RUnlock()

	result := make([]*domain.Order, 0, len(records))
	for _, record := range records {
		order, err := r.hydrate(record)
		if err != nil {
			return nil, err
		}
		result = append(result, order)
	}
	return result, nil
}

// Update сохраняет статус и сумму заказа; позиции заказа неизменны.
func (r *orderRepository) Update(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.items.get(order.ID)
	if !ok {
		return domain.ErrOrderNotFound
	}
	record.status = order.Status
	record.totalPrice = order.TotalPrice
	r.items.rows[order.ID] = record
	return nil
}

func (r *orderRepository) hydrate(record orderRecord) (*domain.Order, error) {
	products, err := r.products.resolve(record.productIDs)
	if err != nil {
		return nil, fmt.Errorf("load products of order %d: %w", record.id, err)
	}
	return &domain.Order{
		ID:         record.id,
		CustomerID: record.customerID,
		Products:   products,
		Status:     record.status,
		TotalPrice: record.totalPrice,
	}, nil
}

func (r *orderRepository) snapshot() table[orderRecord] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items.clone()
}

func (r *orderRepository) restore(items table[orderRecord]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = items
}

var _ domain.OrderRepository = (*orderRepository)(nil)
