package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
)

type orderRepository struct {
	q         querier
	forUpdate bool
}

// Add сохраняет заказ, его позиции и остатки товаров из позиций.
func (r *orderRepository) Add(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.q.QueryRowContext(ctx, `
		INSERT INTO orders (customer_id, status, total_price)
		VALUES ($1, $2, $3)
		RETURNING id
	`, order.CustomerID, string(order.Status), order.TotalPrice).Scan(&order.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, domain.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}

	saved := make(map[int64]struct{}, len(order.Products))
	for position, product := range order.Products {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO order_products (order_id, position, product_id)
			VALUES ($1, $2, $3)
		`, order.ID, position, product.ID); err != nil {
			if isForeignKeyViolation(err) {
				return nil, domain.ErrProductNotFound
			}
			return nil, fmt.Errorf("insert order product: %w", err)
		}

		if _, ok := saved[product.ID]; ok {
			continue
		}
		saved[product.ID] = struct{}{}
		res, err := r.q.ExecContext(ctx, `UPDATE products SET quantity = $2 WHERE id = $1`, product.ID, product.Quantity)
		if err != nil {
			return nil, fmt.Errorf("update product stock: %w", err)
		}
		if err := expectAffected(res, domain.ErrProductNotFound); err != nil {
			return nil, err
		}
	}

	return order, nil
}

// Get возвращает заказ с товарами; внутри транзакции строка заказа блокируется.
func (r *orderRepository) Get(ctx context.Context, id int64) (*domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT id, customer_id, status, total_price FROM orders WHERE id = $1`
	if r.forUpdate {
		query += ` FOR UPDATE`
	}

	order, err := scanOrder(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	if order.Products, err = r.loadProducts(ctx, order.ID); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) List(ctx context.Context) ([]*domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `SELECT id, customer_id, status, total_price FROM orders ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	// В транзакции соединение одно: товары читаются после закрытия курсора заказов.
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close order rows: %w", err)
	}

	for _, order := range orders {
		if order.Products, err = r.loadProducts(ctx, order.ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// Update сохраняет статус и сумму заказа.
func (r *orderRepository) Update(ctx context.Context, order *domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET status = $2,
		    total_price = $3
		WHERE id = $1
	`, order.ID, string(order.Status), order.TotalPrice)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return expectAffected(res, domain.ErrOrderNotFound)
}

// loadProducts читает позиции заказа по порядку; одинаковые товары разделяют один *Product.
func (r *orderRepository) loadProducts(ctx context.Context, orderID int64) ([]*domain.Product, error) {
	query := `
		SELECT p.id, p.name, p.quantity, p.price
		FROM order_products op
		JOIN products p ON p.id = op.product_id
		WHERE op.order_id = $1
		ORDER BY op.position`
	if r.forUpdate {
		query += ` FOR UPDATE OF p`
	}

	rows, err := r.q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order products: %w", err)
	}
	defer rows.Close()

	shared := make(map[int64]*domain.Product)
	products := make([]*domain.Product, 0)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Quantity, &p.Price); err != nil {
			return nil, fmt.Errorf("scan order product: %w", err)
		}
		product, ok := shared[p.ID]
		if !ok {
			product = &p
			shared[p.ID] = product
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order products: %w", err)
	}
	return products, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	if err := row.Scan(&order.ID, &order.CustomerID, &status, &order.TotalPrice); err != nil {
		return nil, err
	}
	order.Status = domain.OrderStatus(status)
	return &order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
