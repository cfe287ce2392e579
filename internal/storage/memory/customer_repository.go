package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
)

// customerRepository — in-memory реализация CustomerRepository.
type customerRepository struct {
	mu    sync.RWMutex
	items table[domain.Customer]
}

func newCustomerRepository() *customerRepository {
	return &customerRepository{items: newTable[domain.Customer]()}
}

// Add сохраняет копию клиента и проставляет идентификатор в переданный объект.
func (r *customerRepository) Add(_ context.Context, customer *domain.Customer) (*domain.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *customer
	id := r.items.insert(stored)
	stored.ID = id
	r.items.rows[id] = stored

	customer.ID = id
	return customer, nil
}

func (r *customerRepository) Get(_ context.Context, id int64) (*domain.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	customer, ok := r.items.get(id)
	if !ok {
		return nil, domain.ErrCustomerNotFound
	}
	return &customer, nil
}

func (r *customerRepository) List(_ context.Context) ([]*domain.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows := r.items.all()
	result := make([]*domain.Customer, 0, len(rows))
	for i := range rows {
		result = append(result, &rows[i])
	}
	return result, nil
}

func (r *customerRepository) Update(_ context.Context, customer *domain.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.items.replace(customer.ID, *customer) {
		return domain.ErrCustomerNotFound
	}
	return nil
}

func (r *customerRepository) snapshot() table[domain.Customer] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items.clone()
}

func (r *customerRepository) restore(items table[domain.Customer]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = items
}

var _ domain.CustomerRepository = (*customerRepository)(nil)
