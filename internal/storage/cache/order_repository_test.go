package cache_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
	"github.com/vladislavdragonenkov/ordercore/internal/storage/cache"
	"github.com/vladislavdragonenkov/ordercore/internal/storage/memory"
)

// countingRepository считает обращения к нижележащему хранилищу.
type countingRepository struct {
	domain.OrderRepository
	finds   int
	saveErr error
}

func (r *countingRepository) FindByID(ctx context.Context, id domain.OrderID) (*domain.Order, bool, error) {
	r.finds++
	return r.OrderRepository.FindByID(ctx, id)
}

func (r *countingRepository) Save(ctx context.Context, order *domain.Order) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	return r.OrderRepository.Save(ctx, order)
}

// pausingRepository останавливает первый FindByID после чтения из хранилища,
// пока тест не отпустит release.
type pausingRepository struct {
	domain.OrderRepository
	once    sync.Once
	loaded  chan struct{}
	release chan struct{}
}

func (r *pausingRepository) FindByID(ctx context.Context, id domain.OrderID) (*domain.Order, bool, error) {
	order, found, err := r.OrderRepository.FindByID(ctx, id)
	r.once.Do(func() {
		close(r.loaded)
		<-r.release
	})
	return order, found, err
}

func newSavedOrder(t *testing.T, repo domain.OrderRepository) *domain.Order {
	t.Helper()
	order, err := domain.NewOrder("customer-1")
	require.NoError(t, err)
	require.NoError(t, order.AddLineItem("SKU1", 2, decimal.RequireFromString("10.00")))
	require.NoError(t, repo.Save(context.Background(), order))
	return order
}

func TestCachedOrderRepository_HitReturnsFreshCopy(t *testing.T) {
	backend := &countingRepository{OrderRepository: memory.NewOrderRepository()}
	repo, err := cache.NewCachedOrderRepository(backend, 8, nil)
	require.NoError(t, err)

	order := newSavedOrder(t, repo)

	first, found, err := repo.FindByID(context.Background(), order.ID())
	require.NoError(t, err)
	require.True(t, found)

	// Изменение полученной копии не должно попадать в кэш.
	require.NoError(t, first.AddLineItem("SKU2", 1, decimal.RequireFromString("5.00")))

	second, found, err := repo.FindByID(context.Background(), order.ID())
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 1, second.ItemCount())
	require.True(t, second.TotalAmount().Equal(decimal.RequireFromString("20.00")))
	require.Equal(t, 1, backend.finds, "second lookup must be served from cache")
}

func TestCachedOrderRepository_SaveInvalidates(t *testing.T) {
	backend := &countingRepository{OrderRepository: memory.NewOrderRepository()}
	repo, err := cache.NewCachedOrderRepository(backend, 8, nil)
	require.NoError(t, err)

	order := newSavedOrder(t, repo)
	loaded, _, err := repo.FindByID(context.Background(), order.ID())
	require.NoError(t, err)

	require.NoError(t, loaded.Confirm())
	require.NoError(t, repo.Save(context.Background(), loaded))

	got, found, err := repo.FindByID(context.Background(), order.ID())
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, domain.OrderStatusConfirmed, got.Status())
	require.Equal(t, 2, backend.finds)
}

func TestCachedOrderRepository_FailedSaveStillInvalidates(t *testing.T) {
	backend := &countingRepository{OrderRepository: memory.NewOrderRepository()}
	repo, err := cache.NewCachedOrderRepository(backend, 8, nil)
	require.NoError(t, err)

	order := newSavedOrder(t, repo)
	_, _, err = repo.FindByID(context.Background(), order.ID())
	require.NoError(t, err)

	backend.saveErr = domain.NewPersistenceError("save order")
	err = repo.Save(context.Background(), order)
	require.True(t, errors.Is(err, domain.ErrPersistence))

	_, _, err = repo.FindByID(context.Background(), order.ID())
	require.NoError(t, err)
	require.Equal(t, 2, backend.finds)
}

func TestCachedOrderRepository_RemoveInvalidates(t *testing.T) {
	backend := &countingRepository{OrderRepository: memory.NewOrderRepository()}
	repo, err := cache.NewCachedOrderRepository(backend, 8, nil)
	require.NoError(t, err)

	order := newSavedOrder(t, repo)
	_, _, err = repo.FindByID(context.Background(), order.ID())
	require.NoError(t, err)

	require.NoError(t, repo.Remove(context.Background(), order))

	_, found, err := repo.FindByID(context.Background(), order.ID())
	require.NoError(t, err)
	require.False(t, found)
}

func TestCachedOrderRepository_MissIsNotCached(t *testing.T) {
	backend := &countingRepository{OrderRepository: memory.NewOrderRepository()}
	repo, err := cache.NewCachedOrderRepository(backend, 0, nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, found, err := repo.FindByID(context.Background(), 99)
		require.NoError(t, err)
		require.False(t, found)
	}
	require.Equal(t, 2, backend.finds)

	orders, err := repo.FindByCustomer(context.Background(), "customer-1")
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestCachedOrderRepository_ReadDuringSaveDoesNotCacheOldVersion(t *testing.T) {
	ctx := context.Background()
	store := memory.NewOrderRepository()
	backend := &pausingRepository{
		OrderRepository: store,
		loaded:          make(chan struct{}),
		release:         make(chan struct{}),
	}
	repo, err := cache.NewCachedOrderRepository(backend, 8, nil)
	require.NoError(t, err)

	order := newSavedOrder(t, repo)

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_, _, _ = repo.FindByID(ctx, order.ID())
	}()
	<-backend.loaded

	// Пока чтение держит старую версию, в заказ добавляется позиция.
	current, found, err := store.FindByID(ctx, order.ID())
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, current.AddLineItem("SKU2", 1, decimal.RequireFromString("5.00")))
	require.NoError(t, repo.Save(ctx, current))

	close(backend.release)
	<-readDone

	got, found, err := repo.FindByID(ctx, order.ID())
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 2, got.ItemCount())
	require.True(t, got.TotalAmount().Equal(decimal.RequireFromString("25.00")))

	// Повторное чтение отдаёт ту же актуальную версию.
	again, _, err := repo.FindByID(ctx, order.ID())
	require.NoError(t, err)
	require.Equal(t, 2, again.ItemCount())
}
