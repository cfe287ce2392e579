package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
)

// productRepository внутри транзакции читает товары с FOR UPDATE,
// чтобы параллельные заказы не списывали один и тот же остаток.
type productRepository struct {
	q         querier
	forUpdate bool
}

func (r *productRepository) Add(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := r.q.QueryRowContext(ctx, `
		INSERT INTO products (name, quantity, price)
		VALUES ($1, $2, $3)
		RETURNING id
	`, product.Name, product.Quantity, product.Price).Scan(&product.ID); err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	return product, nil
}

func (r *productRepository) Get(ctx context.Context, id int64) (*domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT id, name, quantity, price FROM products WHERE id = $1`
	if r.forUpdate {
		query += ` FOR UPDATE`
	}

	var product domain.Product
	err := r.q.QueryRowContext(ctx, query, id).Scan(&product.ID, &product.Name, &product.Quantity, &product.Price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, fmt.Errorf("select product: %w", err)
	}
	return &product, nil
}

func (r *productRepository) List(ctx context.Context) ([]*domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `SELECT id, name, quantity, price FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]*domain.Product, 0)
	for rows.Next() {
		var product domain.Product
		if err := rows.Scan(&product.ID, &product.Name, &product.Quantity, &product.Price); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, &product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return products, nil
}

func (r *productRepository) Update(ctx context.Context, product *domain.Product) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE products
		SET name = $2,
		    quantity = $3,
		    price = $4
		WHERE id = $1
	`, product.ID, product.Name, product.Quantity, product.Price)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return expectAffected(res, domain.ErrProductNotFound)
}

var _ domain.ProductRepository = (*productRepository)(nil)
