package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
)

// orderSnapshot хранит сохранённое состояние агрегата; позиции копируются при записи и чтении.
type orderSnapshot struct {
	id          domain.OrderID
	customerID  string
	status      domain.OrderStatus
	totalAmount decimal.Decimal
	createdAt   time.Time
	items       []domain.LineItem
}

// orderRepositoryInMemory реализует OrderRepository в памяти.
type orderRepositoryInMemory struct {
	mu       sync.RWMutex
	nextID   domain.OrderID
	orders   map[domain.OrderID]orderSnapshot
	assigner domain.IdentityAssigner
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		orders:   make(map[domain.OrderID]orderSnapshot),
		assigner: domain.NewIdentityAssigner(),
	}
}

// Save сохраняет агрегат целиком. Новый заказ получает следующий идентификатор.
func (r *orderRepositoryInMemory) Save(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := order.ID()
	if id.IsZero() {
		id = r.nextID + 1
		if err := r.assigner.Assign(order, id); err != nil {
			return err
		}
		r.nextID = id
	} else if _, ok := r.orders[id]; !ok {
		return domain.ErrOrderNotFound
	}

	r.orders[id] = snapshotOf(order)
	return nil
}

// FindByID возвращает восстановленную копию заказа.
func (r *orderRepositoryInMemory) FindByID(_ context.Context, id domain.OrderID) (*domain.Order, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap, ok := r.orders[id]
	if !ok {
		return nil, false, nil
	}
	return snap.restore(), true, nil
}

// FindByCustomer возвращает заказы клиента по возрастанию времени создания.
func (r *orderRepositoryInMemory) FindByCustomer(_ context.Context, customerID string) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snaps := make([]orderSnapshot, 0)
	for _, snap := range r.orders {
		if snap.customerID == customerID {
			snaps = append(snaps, snap)
		}
	}

	sort.Slice(snaps, func(i, j int) bool {
		if !snaps[i].createdAt.Equal(snaps[j].createdAt) {
			return snaps[i].createdAt.Before(snaps[j].createdAt)
		}
		return snaps[i].id < snaps[j].id
	})

	result := make([]*domain.Order, 0, len(snaps))
	for _, snap := range snaps {
		result = append(result, snap.restore())
	}
	return result, nil
}

// Remove удаляет заказ вместе с позициями. Отсутствующий заказ не считается ошибкой.
func (r *orderRepositoryInMemory) Remove(_ context.Context, order *domain.Order) error {
	if !order.IsPersisted() {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.orders, order.ID())
	return nil
}

func snapshotOf(order *domain.Order) orderSnapshot {
	return orderSnapshot{
		id:          order.ID(),
		customerID:  order.CustomerID(),
		status:      order.Status(),
		totalAmount: order.TotalAmount(),
		createdAt:   order.CreatedAt(),
		items:       order.Items(),
	}
}

func (s orderSnapshot) restore() *domain.Order {
	return domain.RestoreOrderWithItems(s.id, s.customerID, s.status, s.totalAmount, s.createdAt, s.items)
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
