package relational

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
	"github.com/vladislavdragonenkov/ordercore/internal/metrics"
)

const (
	defaultOpTimeout = 5 * time.Second
	// itemsPerInsert ограничивает число строк в одном multi-row INSERT.
	itemsPerInsert = 200

	opSave           = "save"
	opFindByID       = "find_by_id"
	opFindByCustomer = "find_by_customer"
	opRemove         = "remove"
)

// queryer покрывает общее для *sql.DB и *sql.Tx подмножество чтения.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Option настраивает репозиторий.
type Option func(*orderRepository)

// WithLogger задаёт логгер репозитория.
func WithLogger(logger *log.Entry) Option {
	return func(r *orderRepository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics включает метрики операций.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(r *orderRepository) {
		r.metrics = m
	}
}

// WithOpTimeout задаёт таймаут одной операции репозитория.
func WithOpTimeout(timeout time.Duration) Option {
	return func(r *orderRepository) {
		if timeout > 0 {
			r.opTimeout = timeout
		}
	}
}

type orderRepository struct {
	store     *Store
	driver    Driver
	assigner  domain.IdentityAssigner
	logger    *log.Entry
	metrics   *metrics.OrderMetrics
	opTimeout time.Duration
}

// NewOrderRepository создаёт SQL-реализацию OrderRepository поверх Store.
func NewOrderRepository(store *Store, opts ...Option) domain.OrderRepository {
	r := &orderRepository{
		store:     store,
		driver:    store.Driver(),
		assigner:  domain.NewIdentityAssigner(),
		logger:    log.WithFields(log.Fields{"component": "order-repository", "driver": string(store.Driver())}),
		opTimeout: defaultOpTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type headerRow struct {
	id          domain.OrderID
	customerID  string
	status      string
	totalAmount decimal.Decimal
	createdAt   time.Time
}

// Save записывает заголовок и позиции одной транзакцией.
// Идентификатор новому заказу присваивается только после успешного commit.
func (r *orderRepository) Save(ctx context.Context, order *domain.Order) (err error) {
	start := time.Now()
	defer func() { r.metrics.ObserveRepositoryOperation(opSave, time.Since(start), err) }()

	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	var insertedID domain.OrderID
	txErr := r.store.withTx(ctx, func(tx *sql.Tx) error {
		id := order.ID()
		if id.IsZero() {
			newID, err := r.insertHeader(ctx, tx, order)
			if err != nil {
				return err
			}
			id, insertedID = newID, newID
		} else if err := r.updateHeader(ctx, tx, order); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, r.driver.rebind(`DELETE FROM order_items WHERE order_id = ?`), int64(id)); err != nil {
			return fmt.Errorf("delete order items: %w", err)
		}
		return r.insertItems(ctx, tx, id, order.Items())
	})
	if txErr != nil {
		if errors.Is(txErr, domain.ErrOrderNotFound) {
			return domain.ErrOrderNotFound
		}
		return r.persistenceFailure("save order", order.ID(), txErr)
	}

	if !insertedID.IsZero() {
		if err := r.assigner.Assign(order, insertedID); err != nil {
			return err
		}
	}
	return nil
}

func (r *orderRepository) insertHeader(ctx context.Context, tx *sql.Tx, order *domain.Order) (domain.OrderID, error) {
	var id int64
	err := tx.QueryRowContext(ctx, r.driver.rebind(`
		INSERT INTO orders (customer_id, status, total_amount, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`),
		order.CustomerID(), string(order.Status()), order.TotalAmount(), order.CreatedAt().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}
	return domain.OrderID(id), nil
}

func (r *orderRepository) updateHeader(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	res, err := tx.ExecContext(ctx, r.driver.rebind(`
		UPDATE orders
		SET customer_id = ?, status = ?, total_amount = ?, created_at = ?
		WHERE id = ?
	`),
		order.CustomerID(), string(order.Status()), order.TotalAmount(), order.CreatedAt().UTC(), int64(order.ID()),
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) insertItems(ctx context.Context, tx *sql.Tx, orderID domain.OrderID, items []domain.LineItem) error {
	for offset := 0; offset < len(items); offset += itemsPerInsert {
		end := offset + itemsPerInsert
		if end > len(items) {
			end = len(items)
		}

		var query strings.Builder
		query.WriteString(`INSERT INTO order_items (order_id, position, product_id, quantity, unit_price, subtotal) VALUES `)
		args := make([]any, 0, (end-offset)*6)
		for pos := offset; pos < end; pos++ {
			if pos > offset {
				query.WriteString(", ")
			}
			query.WriteString("(?, ?, ?, ?, ?, ?)")
			item := items[pos]
			args = append(args, int64(orderID), pos, item.ProductID(), item.Quantity(), item.UnitPrice(), item.Subtotal())
		}

		if _, err := tx.ExecContext(ctx, r.driver.rebind(query.String()), args...); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
	}
	return nil
}

// FindByID загружает заголовок, затем позиции в исходном порядке.
// Оба чтения идут в одной транзакции: Save между ними не даёт смешанного снимка.
func (r *orderRepository) FindByID(ctx context.Context, id domain.OrderID) (order *domain.Order, found bool, err error) {
	start := time.Now()
	defer func() { r.metrics.ObserveRepositoryOperation(opFindByID, time.Since(start), err) }()

	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	txErr := r.store.withReadTx(ctx, func(tx *sql.Tx) error {
		var h headerRow
		scanErr := tx.QueryRowContext(ctx, r.driver.rebind(`
			SELECT id, customer_id, status, total_amount, created_at
			FROM orders
			WHERE id = ?
		`), int64(id)).Scan(&h.id, &h.customerID, &h.status, &h.totalAmount, &h.createdAt)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return nil
		}
		if scanErr != nil {
			return fmt.Errorf("select order: %w", scanErr)
		}

		loaded, restoreErr := r.restore(ctx, tx, h)
		if restoreErr != nil {
			return restoreErr
		}
		order, found = loaded, true
		return nil
	})
	if txErr != nil {
		return nil, false, r.persistenceFailure("load order", id, txErr)
	}
	return order, found, nil
}

// FindByCustomer возвращает заказы клиента по возрастанию created_at, затем id.
func (r *orderRepository) FindByCustomer(ctx context.Context, customerID string) (orders []*domain.Order, err error) {
	start := time.Now()
	defer func() { r.metrics.ObserveRepositoryOperation(opFindByCustomer, time.Since(start), err) }()

	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	var failedID domain.OrderID
	txErr := r.store.withReadTx(ctx, func(tx *sql.Tx) error {
		headers, selectErr := r.selectHeadersByCustomer(ctx, tx, customerID)
		if selectErr != nil {
			return selectErr
		}

		// Позиции читаются после закрытия курсора заголовков: в SQLite соединение в пуле одно.
		orders = make([]*domain.Order, 0, len(headers))
		for _, h := range headers {
			order, restoreErr := r.restore(ctx, tx, h)
			if restoreErr != nil {
				failedID = h.id
				return restoreErr
			}
			orders = append(orders, order)
		}
		return nil
	})
	if txErr != nil {
		return nil, r.persistenceFailure("load customer orders", failedID, txErr)
	}
	return orders, nil
}

func (r *orderRepository) selectHeadersByCustomer(ctx context.Context, q queryer, customerID string) ([]headerRow, error) {
	rows, err := q.QueryContext(ctx, r.driver.rebind(`
		SELECT id, customer_id, status, total_amount, created_at
		FROM orders
		WHERE customer_id = ?
		ORDER BY created_at ASC, id ASC
	`), customerID)
	if err != nil {
		return nil, fmt.Errorf("select customer orders: %w", err)
	}
	defer rows.Close()

	headers := make([]headerRow, 0)
	for rows.Next() {
		var h headerRow
		if err := rows.Scan(&h.id, &h.customerID, &h.status, &h.totalAmount, &h.createdAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		headers = append(headers, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customer orders: %w", err)
	}
	return headers, nil
}

func (r *orderRepository) restore(ctx context.Context, q queryer, h headerRow) (*domain.Order, error) {
	status, err := domain.ParseOrderStatus(h.status)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", h.id, err)
	}

	items, err := r.loadItems(ctx, q, h.id)
	if err != nil {
		return nil, err
	}

	return domain.RestoreOrderWithItems(h.id, h.customerID, status, h.totalAmount, h.createdAt.UTC(), items), nil
}

func (r *orderRepository) loadItems(ctx context.Context, q queryer, orderID domain.OrderID) ([]domain.LineItem, error) {
	rows, err := q.QueryContext(ctx, r.driver.rebind(`
		SELECT product_id, quantity, unit_price, subtotal
		FROM order_items
		WHERE order_id = ?
		ORDER BY position ASC
	`), int64(orderID))
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.LineItem, 0)
	for rows.Next() {
		var (
			productID string
			quantity  int
			unitPrice decimal.Decimal
			subtotal  decimal.Decimal
		)
		if err := rows.Scan(&productID, &quantity, &unitPrice, &subtotal); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, domain.RestoreLineItem(productID, quantity, unitPrice, subtotal))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

// Remove удаляет позиции, затем заголовок одной транзакцией.
// Заказ без идентификатора и уже удалённый заказ не считаются ошибкой.
func (r *orderRepository) Remove(ctx context.Context, order *domain.Order) (err error) {
	if !order.IsPersisted() {
		return nil
	}

	start := time.Now()
	defer func() { r.metrics.ObserveRepositoryOperation(opRemove, time.Since(start), err) }()

	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	id := int64(order.ID())
	txErr := r.store.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.driver.rebind(`DELETE FROM order_items WHERE order_id = ?`), id); err != nil {
			return fmt.Errorf("delete order items: %w", err)
		}
		if _, err := tx.ExecContext(ctx, r.driver.rebind(`DELETE FROM orders WHERE id = ?`), id); err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		return nil
	})
	if txErr != nil {
		return r.persistenceFailure("remove order", order.ID(), txErr)
	}
	return nil
}

// persistenceFailure логирует причину и возвращает единообразную ошибку без деталей движка.
func (r *orderRepository) persistenceFailure(op string, id domain.OrderID, cause error) error {
	fields := log.Fields{"op": op}
	if !id.IsZero() {
		fields["order_id"] = int64(id)
	}
	if code := sqlState(cause); code != "" {
		fields["sqlstate"] = code
	}
	r.logger.WithFields(fields).WithError(cause).Error("order persistence failed")
	return domain.NewPersistenceError(op)
}

var _ domain.OrderRepository = (*orderRepository)(nil)
