package service

import (
	"context"
	"testing"

	"github.com/dutchiono/restaurant-pos-system/internal/domain"
)

func TestUpdateTablePositionsBatch(t *testing.T) {
	svc, sink, _ := newTestService(t)
	ctx := context.Background()

	t1 := mkTable(t, svc, 1, 4)
	t2 := mkTable(t, svc, 2, 4)
	sink.reset()

	moved, err := svc.Layout.UpdateTablePositions(ctx, []PositionUpdate{
		{ID: t1.ID, X: 100, Y: 100},
		{ID: t2.ID, X: 300, Y: 100},
	})
	if err != nil {
		t.Fatalf("batch move: %v", err)
	}
	if len(moved) != 2 {
		t.Fatalf("moved %d tables, want 2", len(moved))
	}
	if moved[0].X != 100 || moved[1].X != 300 {
		t.Fatalf("positions = %v, %v", moved[0].X, moved[1].X)
	}
	for _, k := range sink.kinds() {
		if k != domain.EventTablePosition {
			t.Fatalf("unexpected event %s", k)
		}
	}
}

func TestUpdateTablePositionsRejectsWholeBatch(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()

	t1 := mkTable(t, svc, 1, 4)
	t2 := mkTable(t, svc, 2, 4)
	t3 := mkTable(t, svc, 3, 4)

	// The middle update is out of bounds; none of the three may land.
	_, err := svc.Layout.UpdateTablePositions(ctx, []PositionUpdate{
		{ID: t1.ID, X: 10, Y: 10},
		{ID: t2.ID, X: 5000, Y: 10},
		{ID: t3.ID, X: 200, Y: 10},
	})
	if !domain.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	for _, tbl := range []domain.Table{t1, t2, t3} {
		got, gerr := store.GetTable(ctx, tbl.ID)
		if gerr != nil {
			t.Fatalf("get: %v", gerr)
		}
		if got.X != tbl.X || got.Y != tbl.Y {
			t.Fatalf("table %d moved to (%v, %v) despite rejected batch", got.Number, got.X, got.Y)
		}
	}
}

func TestUpdateTablePositionsLastWriteWins(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	tbl := mkTable(t, svc, 1, 4)

	// Successive drags apply regardless of intervening writes.
	for _, x := range []float64{100, 200, 300} {
		if _, err := svc.Layout.UpdateTablePositions(ctx, []PositionUpdate{{ID: tbl.ID, X: x, Y: 50}}); err != nil {
			t.Fatalf("move to %v: %v", x, err)
		}
	}
	got, _ := store.GetTable(ctx, tbl.ID)
	if got.X != 300 {
		t.Fatalf("x = %v, want 300", got.X)
	}
}

func TestUpdateTablePositionsEmptyBatch(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Layout.UpdateTablePositions(context.Background(), nil); !domain.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
