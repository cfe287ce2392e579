package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/warehouse/internal/domain"
	"github.com/vladislavdragonenkov/warehouse/internal/storage/memory"
)

func seedProduct(t *testing.T, store *memory.Store, name string, quantity int, price float64) *domain.Product {
	t.Helper()
	ctx := context.Background()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = uow.Rollback() }()

	product, err := domain.NewProduct(name, quantity, price)
	require.NoError(t, err)
	product, err = uow.Products().Add(ctx, product)
	require.NoError(t, err)
	require.NoError(t, uow.Commit())
	return product
}

func TestRepositories_AssignSequentialIDs(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	table := seedProduct(t, store, "Table", 10, 1000.0)
	chair := seedProduct(t, store, "Chair", 50, 20.0)
	assert.Equal(t, int64(1), table.ID)
	assert.Equal(t, int64(2), chair.ID)

	products, err := store.Products().List(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Table", products[0].Name)
	assert.Equal(t, "Chair", products[1].Name)
}

func TestCustomerRepository(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = uow.Rollback() }()

	customer, err := uow.Customers().Add(ctx, domain.NewCustomer("Bradley Pitt", "bradley@gmail.com"))
	require.NoError(t, err)
	require.Equal(t, int64(1), customer.ID)

	customer.Email = "pitt@gmail.com"
	require.NoError(t, uow.Customers().Update(ctx, customer))

	stored, err := uow.Customers().Get(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, "pitt@gmail.com", stored.Email)

	_, err = uow.Customers().Get(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrCustomerNotFound)
	assert.ErrorIs(t, uow.Customers().Update(ctx, &domain.Customer{ID: 42}), domain.ErrCustomerNotFound)

	require.NoError(t, uow.Commit())
}

func TestProductRepository_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	chair := seedProduct(t, store, "Chair", 5, 20.0)

	first, err := store.Products().Get(ctx, chair.ID)
	require.NoError(t, err)
	first.Quantity = 0

	second, err := store.Products().Get(ctx, chair.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, second.Quantity)

	_, err = store.Products().Get(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestOrderRepository_AddPersistsStockAndSharesProducts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	table := seedProduct(t, store, "Table", 10, 1000.0)
	chair := seedProduct(t, store, "Chair", 50, 20.0)

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = uow.Rollback() }()

	loadedTable, err := uow.Products().Get(ctx, table.ID)
	require.NoError(t, err)
	loadedChair, err := uow.Products().Get(ctx, chair.ID)
	require.NoError(t, err)

	order := domain.NewOrder(1)
	require.NoError(t, order.AddProduct(loadedTable, 1))
	require.NoError(t, order.AddProduct(loadedChair, 1))
	require.NoError(t, order.AddProduct(loadedChair, 1))

	// До сохранения заказа остаток в хранилище не меняется.
	stored, err := uow.Products().Get(ctx, chair.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, stored.Quantity)

	order, err = uow.Orders().Add(ctx, order)
	require.NoError(t, err)
	require.Equal(t, int64(1), order.ID)
	require.NoError(t, uow.Commit())

	stored, err = store.Products().Get(ctx, chair.ID)
	require.NoError(t, err)
	assert.Equal(t, 48, stored.Quantity)

	loaded, err := store.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, loaded.Status)
	assert.InDelta(t, 1040.0, loaded.TotalPrice, 1e-9)
	assert.Equal(t, []int64{table.ID, chair.ID, chair.ID}, loaded.ProductIDs())
	assert.Same(t, loaded.Products[1], loaded.Products[2])
}

func TestOrderRepository_UpdateAndMissing(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	chair := seedProduct(t, store, "Chair", 5, 20.0)

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = uow.Rollback() }()

	product, err := uow.Products().Get(ctx, chair.ID)
	require.NoError(t, err)
	order := domain.NewOrder(1)
	require.NoError(t, order.AddProduct(product, 1))
	order, err = uow.Orders().Add(ctx, order)
	require.NoError(t, err)

	require.NoError(t, order.Confirm())
	require.NoError(t, uow.Orders().Update(ctx, order))

	loaded, err := uow.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, loaded.Status)

	_, err = uow.Orders().Get(ctx, 7)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	assert.ErrorIs(t, uow.Orders().Update(ctx, &domain.Order{ID: 7}), domain.ErrOrderNotFound)

	_, err = uow.Orders().Add(ctx, &domain.Order{Products: []*domain.Product{{ID: 99}}})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	orders, err := uow.Orders().List(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestUnitOfWork_RollbackRestoresState(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	chair := seedProduct(t, store, "Chair", 5, 20.0)

	uow, err := store.Begin(ctx)
	require.NoError(t, err)

	product, err := uow.Products().Get(ctx, chair.ID)
	require.NoError(t, err)
	order := domain.NewOrder(1)
	require.NoError(t, order.AddProduct(product, 2))
	_, err = uow.Orders().Add(ctx, order)
	require.NoError(t, err)
	_, err = uow.Customers().Add(ctx, domain.NewCustomer("Ghost", "ghost@example.com"))
	require.NoError(t, err)
	require.NoError(t, uow.Timeline().Append(ctx, domain.TimelineEvent{OrderID: order.ID, Type: domain.TimelineOrderCreated}))
	_, err = uow.Outbox().Enqueue(ctx, domain.OutboxMessage{AggregateType: "order", AggregateID: "1"})
	require.NoError(t, err)

	require.NoError(t, uow.Rollback())

	stored, err := store.Products().Get(ctx, chair.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Quantity)

	orders, err := store.Orders().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)

	customers, err := store.Customers().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, customers)

	events, err := store.Timeline().List(ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, events)

	pending, err := store.Outbox().PullPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Идентификаторы после отката выдаются заново.
	next := seedProduct(t, store, "Lamp", 1, 5.0)
	assert.Equal(t, int64(2), next.ID)
}

func TestUnitOfWork_OutboxVisibleOnlyAfterCommit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	saved, err := uow.Outbox().Enqueue(ctx, domain.OutboxMessage{AggregateType: "order", AggregateID: "1", EventType: domain.TimelineOrderCreated})
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	pending, err := store.Outbox().PullPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.ErrorIs(t, store.Outbox().MarkSent(ctx, saved.ID), domain.ErrOutboxPublish)

	stats, err := store.Outbox().Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.PendingCount)

	require.NoError(t, uow.Commit())

	pending, err = store.Outbox().PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, saved.ID, pending[0].ID)
	assert.Equal(t, domain.TimelineOrderCreated, pending[0].EventType)
}

func TestUnitOfWork_CommitThenRollbackIsNoop(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = uow.Customers().Add(ctx, domain.NewCustomer("Bradley Pitt", "bradley@gmail.com"))
	require.NoError(t, err)

	require.NoError(t, uow.Commit())
	require.NoError(t, uow.Rollback())
	assert.ErrorIs(t, uow.Commit(), memory.ErrUnitOfWorkFinished)

	customers, err := store.Customers().List(ctx)
	require.NoError(t, err)
	assert.Len(t, customers, 1)
}

func TestUnitOfWork_SingleWriter(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	first, err := store.Begin(ctx)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = store.Begin(waitCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, first.Commit())

	second, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, second.Rollback())
}

func TestOutboxRepository(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	outbox := store.Outbox()

	stats, err := outbox.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.PendingCount)
	assert.True(t, stats.OldestPendingAt.IsZero())

	first, err := outbox.Enqueue(ctx, domain.OutboxMessage{AggregateType: "order", AggregateID: "1", EventType: domain.TimelineOrderCreated})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	second, err := outbox.Enqueue(ctx, domain.OutboxMessage{AggregateType: "order", AggregateID: "1", EventType: domain.TimelineOrderConfirmed})
	require.NoError(t, err)

	pending, err := outbox.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)

	stats, err = outbox.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.PendingCount)
	assert.False(t, stats.OldestPendingAt.IsZero())

	require.NoError(t, outbox.MarkSent(ctx, first.ID))
	require.NoError(t, outbox.MarkFailed(ctx, second.ID))
	assert.ErrorIs(t, outbox.MarkFailed(ctx, "missing"), domain.ErrOutboxPublish)

	pending, err = outbox.PullPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTimelineRepository_Chronological(t *testing.T) {
	ctx := context.Background()
	timeline := memory.NewStore().Timeline()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, timeline.Append(ctx, domain.TimelineEvent{OrderID: 1, Type: domain.TimelineOrderConfirmed, Occurred: base.Add(time.Minute)}))
	require.NoError(t, timeline.Append(ctx, domain.TimelineEvent{OrderID: 1, Type: domain.TimelineOrderCreated, Occurred: base}))
	require.NoError(t, timeline.Append(ctx, domain.TimelineEvent{OrderID: 2, Type: domain.TimelineOrderCreated, Occurred: base}))

	events, err := timeline.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.TimelineOrderCreated, events[0].Type)
	assert.Equal(t, domain.TimelineOrderConfirmed, events[1].Type)
}
