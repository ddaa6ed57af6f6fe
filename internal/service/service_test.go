package service

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/dutchiono/restaurant-pos-system/internal/domain"
	"github.com/dutchiono/restaurant-pos-system/internal/logger"
	"github.com/dutchiono/restaurant-pos-system/internal/storage"
)

const testTaxRate = 0.0825

// eventSink records published events for assertions.
type eventSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *eventSink) Publish(ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *eventSink) kinds() []domain.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventKind, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Kind()
	}
	return out
}

func (s *eventSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// newTestService wires the managers against a seeded in-memory store: one
// floor plan and a small menu, including an 86'd item.
func newTestService(t *testing.T) (*Service, *eventSink, storage.Store) {
	t.Helper()
	store := storage.NewMemory()
	ctx := context.Background()
	err := store.Atomically(ctx, func(tx storage.Tx) error {
		if err := tx.PutFloorPlan(ctx, domain.FloorPlan{ID: "main", Name: "Main Dining", Width: 1000, Height: 800}); err != nil {
			return err
		}
		menu := []domain.MenuItem{
			{ID: "burger", Name: "Burger", Price: 12.00, IsAvailable: true},
			{ID: "salad", Name: "House Salad", Price: 8.50, IsAvailable: true},
			{ID: "pasta", Name: "Pasta", Price: 14.00, IsAvailable: true},
			{ID: "oysters", Name: "Oysters", Price: 18.00, IsAvailable: true, Is86d: true},
			{ID: "special", Name: "Special", Price: 20.00, IsAvailable: false},
		}
		for _, m := range menu {
			if err := tx.PutMenuItem(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}

	sink := &eventSink{}
	svc := New(store, sink, logger.NewWriter("test", io.Discard), testTaxRate)
	return svc, sink, store
}

// mkTable creates an AVAILABLE table on the main floor plan.
func mkTable(t *testing.T, svc *Service, number, capacity int) domain.Table {
	t.Helper()
	tbl, err := svc.Tables.CreateTable(context.Background(), CreateTableInput{
		FloorPlanID: "main",
		Number:      number,
		Capacity:    capacity,
		MinCapacity: 1,
		X:           float64(number) * 90,
		Y:           50,
	})
	if err != nil {
		t.Fatalf("create table %d: %v", number, err)
	}
	return tbl
}

// mkSeatedOrder creates a table plus an order seated at it.
func mkSeatedOrder(t *testing.T, svc *Service, number int, items ...NewItem) (domain.Table, domain.Order) {
	t.Helper()
	tbl := mkTable(t, svc, number, 4)
	if len(items) == 0 {
		items = []NewItem{{MenuItemID: "burger", Quantity: 1, Course: domain.CourseEntree}}
	}
	o, err := svc.Orders.CreateOrder(context.Background(), CreateOrderInput{
		TableID: &tbl.ID,
		Type:    domain.TypeDineIn,
		Items:   items,
	})
	if err != nil {
		t.Fatalf("create order for table %d: %v", number, err)
	}
	return tbl, o
}
