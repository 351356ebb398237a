package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
	"github.com/vladislavdragonenkov/ordercore/internal/storage/memory"
)

func newConfirmedOrder(t *testing.T, customerID string) *domain.Order {
	t.Helper()
	order, err := domain.NewOrder(customerID)
	if err != nil {
		t.Fatalf("new order: %v", err)
	}
	if err := order.AddLineItem("SKU1", 2, decimal.RequireFromString("10.00")); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if err := order.AddLineItem("SKU2", 1, decimal.RequireFromString("5.00")); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if err := order.Confirm(); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	return order
}

func TestOrderRepository_SaveAssignsIdentity(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()

	first := newConfirmedOrder(t, "customer-1")
	second := newConfirmedOrder(t, "customer-1")
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := repo.Save(ctx, second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	if first.ID() != 1 || second.ID() != 2 {
		t.Fatalf("unexpected ids: %d, %d", first.ID(), second.ID())
	}
}

func TestOrderRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	order := newConfirmedOrder(t, "customer-1")

	if err := repo.Save(ctx, order); err != nil {
		t.Fatalf("save: %v", err)
	}

	stored, found, err := repo.FindByID(ctx, order.ID())
	if err != nil || !found {
		t.Fatalf("find: found=%v err=%v", found, err)
	}
	if stored == order {
		t.Fatal("repository must return a copy, not the saved pointer")
	}
	if stored.CustomerID() != order.CustomerID() || stored.Status() != order.Status() {
		t.Fatalf("unexpected header: %s %s", stored.CustomerID(), stored.Status())
	}
	if !stored.TotalAmount().Equal(decimal.RequireFromString("25.00")) {
		t.Fatalf("expected total 25.00, got %s", stored.TotalAmount())
	}
	if !stored.CreatedAt().Equal(order.CreatedAt()) {
		t.Fatalf("created_at mismatch: %s vs %s", stored.CreatedAt(), order.CreatedAt())
	}
	want := order.Items()
	got := stored.Items()
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(got))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("item %d mismatch: %+v vs %+v", i, got[i], want[i])
		}
	}
}

func TestOrderRepository_FindMissing(t *testing.T) {
	repo := memory.NewOrderRepository()

	order, found, err := repo.FindByID(context.Background(), 404)
	if err != nil {
		t.Fatalf("missing order must not be an error: %v", err)
	}
	if found || order != nil {
		t.Fatalf("expected absence, got %+v", order)
	}
}

func TestOrderRepository_SaveTwiceKeepsItems(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	order := newConfirmedOrder(t, "customer-1")

	if err := repo.Save(ctx, order); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := repo.Save(ctx, order); err != nil {
		t.Fatalf("second save: %v", err)
	}

	stored, _, _ := repo.FindByID(ctx, order.ID())
	if stored.ItemCount() != 2 {
		t.Fatalf("expected 2 items after double save, got %d", stored.ItemCount())
	}
}

func TestOrderRepository_SaveUnknownID(t *testing.T) {
	repo := memory.NewOrderRepository()
	ghost := domain.RestoreOrder(77, "customer-1", domain.OrderStatusDraft, decimal.Zero, newConfirmedOrder(t, "x").CreatedAt())

	if err := repo.Save(context.Background(), ghost); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOrderRepository_FindByCustomerAndRemove(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()

	a := newConfirmedOrder(t, "customer-1")
	b := newConfirmedOrder(t, "customer-1")
	c := newConfirmedOrder(t, "customer-2")
	for _, o := range []*domain.Order{a, b, c} {
		if err := repo.Save(ctx, o); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	orders, err := repo.FindByCustomer(ctx, "customer-1")
	if err != nil {
		t.Fatalf("find by customer: %v", err)
	}
	if len(orders) != 2 || orders[0].ID() != a.ID() || orders[1].ID() != b.ID() {
		t.Fatalf("unexpected orders: %d", len(orders))
	}

	if err := repo.Remove(ctx, a); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, found, _ := repo.FindByID(ctx, a.ID()); found {
		t.Fatal("removed order must be absent")
	}
	if err := repo.Remove(ctx, a); err != nil {
		t.Fatalf("second remove must be a no-op: %v", err)
	}
}
