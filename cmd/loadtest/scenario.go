package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	grpcsvc "github.com/vladislavdragonenkov/ordercore/internal/service/grpc"
)

const (
	scenarioCreate       = "create"
	scenarioCreateGet    = "create-get"
	scenarioDraftConfirm = "draft-confirm"
)

// orderAPI описывает подмножество grpcsvc.Client, которым пользуется нагрузка.
type orderAPI interface {
	CreateOrder(ctx context.Context, customerID string, items []grpcsvc.ItemInput) (grpcsvc.OrderView, error)
	CreateDraft(ctx context.Context, customerID string) (grpcsvc.OrderView, error)
	AddItem(ctx context.Context, orderID int64, item grpcsvc.ItemInput) (grpcsvc.OrderView, error)
	ConfirmOrder(ctx context.Context, orderID int64) (grpcsvc.OrderView, error)
	GetOrder(ctx context.Context, orderID int64) (grpcsvc.OrderView, error)
}

// errTotalMismatch означает, что сервис посчитал сумму заказа не так, как клиент.
var errTotalMismatch = status.Error(codes.DataLoss, "order total does not match line items")

// session выполняет один сценарий и замеряет каждый вызов.
type session struct {
	api     orderAPI
	rec     *recorder
	timeout time.Duration
}

func (s session) call(method string, fn func(ctx context.Context) (grpcsvc.OrderView, error)) (grpcsvc.OrderView, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	started := time.Now()
	view, err := fn(ctx)
	s.rec.observe(method, time.Since(started), err)
	return view, err
}

type scenario func(s session, customerID string, items []grpcsvc.ItemInput) error

var scenarios = map[string]scenario{
	scenarioCreate:       createOrder,
	scenarioCreateGet:    createThenGet,
	scenarioDraftConfirm: draftThenConfirm,
}

func scenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func createOrder(s session, customerID string, items []grpcsvc.ItemInput) error {
	view, err := s.call("CreateOrder", func(ctx context.Context) (grpcsvc.OrderView, error) {
		return s.api.CreateOrder(ctx, customerID, items)
	})
	if err != nil {
		return err
	}
	return checkOrder(view, items)
}

func createThenGet(s session, customerID string, items []grpcsvc.ItemInput) error {
	created, err := s.call("CreateOrder", func(ctx context.Context) (grpcsvc.OrderView, error) {
		return s.api.CreateOrder(ctx, customerID, items)
	})
	if err != nil {
		return err
	}
	if err := checkOrder(created, items); err != nil {
		return err
	}

	loaded, err := s.call("GetOrder", func(ctx context.Context) (grpcsvc.OrderView, error) {
		return s.api.GetOrder(ctx, created.ID)
	})
	if err != nil {
		return err
	}
	return checkOrder(loaded, items)
}

func draftThenConfirm(s session, customerID string, items []grpcsvc.ItemInput) error {
	draft, err := s.call("CreateDraft", func(ctx context.Context) (grpcsvc.OrderView, error) {
		return s.api.CreateDraft(ctx, customerID)
	})
	if err != nil {
		return err
	}
	if draft.ID <= 0 {
		return status.Error(codes.Internal, "draft without id")
	}

	for _, item := range items {
		if _, err := s.call("AddItem", func(ctx context.Context) (grpcsvc.OrderView, error) {
			return s.api.AddItem(ctx, draft.ID, item)
		}); err != nil {
			return err
		}
	}

	confirmed, err := s.call("ConfirmOrder", func(ctx context.Context) (grpcsvc.OrderView, error) {
		return s.api.ConfirmOrder(ctx, draft.ID)
	})
	if err != nil {
		return err
	}
	return checkOrder(confirmed, items)
}

// checkOrder сверяет сумму заказа с суммой quantity*price по позициям.
func checkOrder(view grpcsvc.OrderView, items []grpcsvc.ItemInput) error {
	if view.ID <= 0 {
		return status.Error(codes.Internal, "order without id")
	}
	got, err := decimal.NewFromString(view.TotalAmount)
	if err != nil {
		return status.Errorf(codes.DataLoss, "order %d total %q: %v", view.ID, view.TotalAmount, err)
	}
	if !got.Equal(expectedTotal(items)) {
		return errTotalMismatch
	}
	return nil
}

func expectedTotal(items []grpcsvc.ItemInput) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(decimal.RequireFromString(item.UnitPrice).Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// orderItems строит позиции сценария seq; товары циклически перебирают сотню SKU.
func orderItems(cfg config, seq int) []grpcsvc.ItemInput {
	items := make([]grpcsvc.ItemInput, cfg.items)
	for i := range items {
		items[i] = grpcsvc.ItemInput{
			ProductID: fmt.Sprintf("%s-%02d", cfg.product, (seq+i)%100),
			Quantity:  i + 1,
			UnitPrice: cfg.price.StringFixed(2),
		}
	}
	return items
}

// run запускает сценарии, пока не исчерпан -requests или не истёк -duration.
// Начатые сценарии доигрываются до конца.
func run(ctx context.Context, cfg config, clients []orderAPI) report {
	if cfg.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.duration)
		defer cancel()
	}

	limit := rate.Inf
	if cfg.rate > 0 {
		limit = rate.Limit(cfg.rate)
	}
	limiter := rate.NewLimiter(limit, 1)

	play := scenarios[cfg.scenario]
	runID := fmt.Sprintf("%d-%d", time.Now().Unix(), os.Getpid())
	rec := newRecorder()

	var g errgroup.Group
	g.SetLimit(cfg.workers)

	started := time.Now()
	for seq := 0; cfg.requests == 0 || seq < cfg.requests; seq++ {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		s := session{api: clients[seq%len(clients)], rec: rec, timeout: cfg.timeout}
		customerID := fmt.Sprintf("%s-%s-%d", cfg.customerPrefix, runID, seq)
		items := orderItems(cfg, seq)
		g.Go(func() error {
			begin := time.Now()
			err := play(s, customerID, items)
			rec.observe(scenarioMetric, time.Since(begin), err)
			return nil
		})
	}
	_ = g.Wait()

	return rec.report(started, time.Since(started))
}
