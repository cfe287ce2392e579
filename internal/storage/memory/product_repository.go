package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
)

// productRepository — in-memory реализация ProductRepository.
// Каждый Get возвращает новую копию: изменения остатка видны хранилищу только после Update
// или сохранения заказа.
type productRepository struct {
	mu    sync.RWMutex
	items table[domain.Product]
}

func newProductRepository() *productRepository {
	return &productRepository{items: newTable[domain.Product]()}
}

func (r *productRepository) Add(_ context.Context, product *domain.Product) (*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *product
	id := r.items.insert(stored)
	stored.ID = id
	r.items.rows[id] = stored

	product.ID = id
	return product, nil
}

func (r *productRepository) Get(_ context.Context, id int64) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items.get(id)
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &product, nil
}

func (r *productRepository) List(_ context.Context) ([]*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows := r.items.all()
	result := make([]*domain.Product, 0, len(rows))
	for i := range rows {
		result = append(result, &rows[i])
	}
	return result, nil
}

func (r *productRepository) Update(_ context.Context, product *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.items.replace(product.ID, *product) {
		return domain.ErrProductNotFound
	}
	return nil
}

// saveQuantities записывает остатки переданных товаров. Все товары должны существовать.
func (r *productRepository) saveQuantities(products []*domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range products {
		if _, ok := r.items.get(p.ID); !ok {
			return domain.ErrProductNotFound
		}
	}
	for _, p := range products {
		stored := r.items.rows[p.ID]
		stored.Quantity = p.Quantity
		r.items.rows[p.ID] = stored
	}
	return nil
}

// resolve возвращает товары по идентификаторам; одинаковые идентификаторы дают один указатель.
func (r *productRepository) resolve(ids []int64) ([]*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cache := make(map[int64]*domain.Product, len(ids))
	result := make([]*domain.Product, 0, len(ids))
	for _, id := range ids {
		p, ok := cache[id]
		if !ok {
			row, found := r.items.get(id)
			if !found {
				return nil, domain.ErrProductNotFound
			}
			p = &row
			cache[id] = p
		}
		result = append(result, p)
	}
	return result, nil
}

func (r *productRepository) snapshot() table[domain.Product] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items.clone()
}

func (r *productRepository) restore(items table[domain.Product]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = items
}

var _ domain.ProductRepository = (*productRepository)(nil)
