package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
)

const (
	defaultConnTimeout     = 5 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute

	opTimeout = 5 * time.Second
)

// querier — общее подмножество *sql.DB и *sql.Tx, на котором работают репозитории.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store оборачивает SQL-подключение к PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open открывает подключение к PostgreSQL и проверяет доступность базы.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db}, nil
}

// DB возвращает raw SQL DB, когда нужен низкоуровневый доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema применяет все up-миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Begin открывает транзакцию; репозитории единицы работы выполняются внутри неё
// и блокируют прочитанные строки до Commit или Rollback.
func (s *Store) Begin(ctx context.Context) (domain.UnitOfWork, error) {
	if s == nil || s.db == nil {
		return nil, errStoreNotInitialized
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return newUnitOfWork(tx), nil
}

// Customers возвращает репозиторий клиентов вне транзакции.
func (s *Store) Customers() domain.CustomerRepository { return &customerRepository{q: s.db} }

// Products возвращает репозиторий товаров вне транзакции.
func (s *Store) Products() domain.ProductRepository { return &productRepository{q: s.db} }

// Orders возвращает репозиторий заказов вне транзакции.
func (s *Store) Orders() domain.OrderRepository { return &orderRepository{q: s.db} }

// Outbox возвращает outbox для воркера публикации.
func (s *Store) Outbox() domain.OutboxRepository { return &outboxRepository{q: s.db} }

// Timeline возвращает историю заказов вне транзакции.
func (s *Store) Timeline() domain.TimelineRepository { return &timelineRepository{q: s.db} }

type unitOfWork struct {
	tx        *sql.Tx
	customers *customerRepository
	products  *productRepository
	orders    *orderRepository
	outbox    *outboxRepository
	timeline  *timelineRepository
}

func newUnitOfWork(tx *sql.Tx) *unitOfWork {
	return &unitOfWork{
		tx:        tx,
		customers: &customerRepository{q: tx},
		products:  &productRepository{q: tx, forUpdate: true},
		orders:    &orderRepository{q: tx, forUpdate: true},
		outbox:    &outboxRepository{q: tx},
		timeline:  &timelineRepository{q: tx},
	}
}

func (u *unitOfWork) Customers() domain.CustomerRepository { return u.customers }
func (u *unitOfWork) Products() domain.ProductRepository   { return u.products }
func (u *unitOfWork) Orders() domain.OrderRepository       { return u.orders }
func (u *unitOfWork) Outbox() domain.OutboxRepository      { return u.outbox }
func (u *unitOfWork) Timeline() domain.TimelineRepository  { return u.timeline }

func (u *unitOfWork) Commit() error {
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (u *unitOfWork) Rollback() error {
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

var (
	_ domain.UnitOfWorkFactory = (*Store)(nil)
	_ domain.UnitOfWork        = (*unitOfWork)(nil)
)
