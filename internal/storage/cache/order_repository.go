package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
)

const defaultSize = 1024

// entry хранит снимок заказа в кэше. Наружу всегда отдаётся новая копия агрегата.
type entry struct {
	id          domain.OrderID
	customerID  string
	status      domain.OrderStatus
	totalAmount decimal.Decimal
	createdAt   time.Time
	items       []domain.LineItem
}

// cachedOrderRepository кэширует FindByID поверх любого OrderRepository.
// writes растёт на каждой записи: промах кладёт результат в кэш, только если
// за время чтения из next не было ни одного Save или Remove.
type cachedOrderRepository struct {
	next   domain.OrderRepository
	orders *lru.Cache[domain.OrderID, entry]
	logger *log.Entry

	mu     sync.Mutex
	writes uint64
}

// NewCachedOrderRepository оборачивает репозиторий LRU-кэшем заданного размера.
// Save и Remove инвалидируют запись независимо от результата.
func NewCachedOrderRepository(next domain.OrderRepository, size int, logger *log.Entry) (domain.OrderRepository, error) {
	if size <= 0 {
		size = defaultSize
	}
	if logger == nil {
		logger = log.WithField("component", "order-cache")
	}

	orders, err := lru.New[domain.OrderID, entry](size)
	if err != nil {
		return nil, err
	}

	return &cachedOrderRepository{next: next, orders: orders, logger: logger}, nil
}

func (r *cachedOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	r.invalidate(order)
	err := r.next.Save(ctx, order)
	// Повторно: чтение, начатое до коммита, могло успеть вернуть старую версию в кэш.
	r.invalidate(order)
	return err
}

func (r *cachedOrderRepository) FindByID(ctx context.Context, id domain.OrderID) (*domain.Order, bool, error) {
	if cached, ok := r.orders.Get(id); ok {
		r.logger.WithField("order_id", int64(id)).Debug("order cache hit")
		return cached.restore(), true, nil
	}

	r.mu.Lock()
	startedAt := r.writes
	r.mu.Unlock()

	order, found, err := r.next.FindByID(ctx, id)
	if err != nil || !found {
		return order, found, err
	}

	r.mu.Lock()
	if r.writes == startedAt {
		r.orders.Add(id, entryOf(order))
	}
	r.mu.Unlock()
	return order, true, nil
}

func (r *cachedOrderRepository) FindByCustomer(ctx context.Context, customerID string) ([]*domain.Order, error) {
	return r.next.FindByCustomer(ctx, customerID)
}

func (r *cachedOrderRepository) Remove(ctx context.Context, order *domain.Order) error {
	r.invalidate(order)
	err := r.next.Remove(ctx, order)
	r.invalidate(order)
	return err
}

func (r *cachedOrderRepository) invalidate(order *domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	if order.IsPersisted() {
		r.orders.Remove(order.ID())
	}
}

func entryOf(order *domain.Order) entry {
	return entry{
		id:          order.ID(),
		customerID:  order.CustomerID(),
		status:      order.Status(),
		totalAmount: order.TotalAmount(),
		createdAt:   order.CreatedAt(),
		items:       order.Items(),
	}
}

func (e entry) restore() *domain.Order {
	return domain.RestoreOrderWithItems(e.id, e.customerID, e.status, e.totalAmount, e.createdAt, e.items)
}

var _ domain.OrderRepository = (*cachedOrderRepository)(nil)
