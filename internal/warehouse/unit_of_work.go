package warehouse

import (
	"context"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
)

// Runner выполняет функции над Operations внутри отдельной единицы работы.
type Runner struct {
	factory  domain.UnitOfWorkFactory
	options  []Option
	decorate func(Operations) Operations
}

// CommitObserver реализуют декораторы, которым нужен результат единицы работы.
// Committed вызывается только после успешного Commit.
type CommitObserver interface {
	Committed()
}

// RunnerOption настраивает Runner.
type RunnerOption func(*Runner)

// WithServiceOptions задаёт опции сервиса, создаваемого на каждую единицу работы.
func WithServiceOptions(opts ...Option) RunnerOption {
	return func(r *Runner) {
		r.options = append(r.options, opts...)
	}
}

// WithDecorator оборачивает сервис перед передачей в функцию (трейсинг, метрики).
func WithDecorator(decorate func(Operations) Operations) RunnerOption {
	return func(r *Runner) {
		r.decorate = decorate
	}
}

// NewRunner создаёт Runner над фабрикой единиц работы.
func NewRunner(factory domain.UnitOfWorkFactory, opts ...RunnerOption) *Runner {
	r := &Runner{factory: factory}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Do открывает единицу работы, выполняет fn и фиксирует изменения, если fn вернула nil.
// При ошибке или панике в fn изменения откатываются; паника пробрасывается дальше.
func (r *Runner) Do(ctx context.Context, fn func(ops Operations) error) (err error) {
	uow, err := r.factory.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = uow.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := uow.Rollback(); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback unit of work: %w", rbErr))
			}
		}
	}()

	var ops Operations = FromUnitOfWork(uow, r.options...)
	if r.decorate != nil {
		ops = r.decorate(ops)
	}

	if err = fn(ops); err != nil {
		return err
	}
	if err = uow.Commit(); err != nil {
		return fmt.Errorf("commit unit of work: %w", err)
	}
	if observer, ok := ops.(CommitObserver); ok {
		observer.Committed()
	}
	return nil
}

// Within выполняет fn в новой единице работы без декораторов.
func Within(ctx context.Context, factory domain.UnitOfWorkFactory, fn func(ops Operations) error, opts ...Option) error {
	return NewRunner(factory, WithServiceOptions(opts...)).Do(ctx, fn)
}
