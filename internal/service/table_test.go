package service

import (
	"context"
	"sync"
	"testing"

	"github.com/dutchiono/restaurant-pos-system/internal/domain"
)

func TestCreateTableDefaultsAndEvent(t *testing.T) {
	svc, sink, _ := newTestService(t)

	tbl, err := svc.Tables.CreateTable(context.Background(), CreateTableInput{
		FloorPlanID: "main", Number: 12, Capacity: 6, MinCapacity: 2,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tbl.Status != domain.TableAvailable {
		t.Fatalf("status = %s, want AVAILABLE", tbl.Status)
	}
	if tbl.Shape != domain.ShapeSquare || tbl.Width != 80 || tbl.Height != 80 {
		t.Fatalf("defaults not applied: shape=%s w=%v h=%v", tbl.Shape, tbl.Width, tbl.Height)
	}
	if tbl.Version != 1 {
		t.Fatalf("version = %d, want 1", tbl.Version)
	}
	kinds := sink.kinds()
	if len(kinds) != 1 || kinds[0] != domain.EventTableStatus {
		t.Fatalf("events = %v, want one table:status-changed", kinds)
	}
}

func TestCreateTableValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateTableInput
	}{
		{"zero number", CreateTableInput{FloorPlanID: "main", Number: 0, Capacity: 4}},
		{"zero capacity", CreateTableInput{FloorPlanID: "main", Number: 1, Capacity: 0}},
		{"min above capacity", CreateTableInput{FloorPlanID: "main", Number: 1, Capacity: 2, MinCapacity: 6}},
		{"outside bounds", CreateTableInput{FloorPlanID: "main", Number: 1, Capacity: 4, X: 990, Y: 790}},
	}
	for _, c := range cases {
		if _, err := svc.Tables.CreateTable(ctx, c.in); !domain.IsValidation(err) {
			t.Errorf("%s: expected ValidationError, got %v", c.name, err)
		}
	}
}

func TestCreateTableDuplicateNumberConflicts(t *testing.T) {
	svc, _, _ := newTestService(t)
	mkTable(t, svc, 3, 4)

	_, err := svc.Tables.CreateTable(context.Background(), CreateTableInput{
		FloorPlanID: "main", Number: 3, Capacity: 2,
	})
	if !domain.IsConflict(err) {
		t.Fatalf("expected ConflictError for duplicate number, got %v", err)
	}
}

func TestSetTableStatusOccupiedRequiresOrder(t *testing.T) {
	svc, _, _ := newTestService(t)
	tbl := mkTable(t, svc, 1, 4)

	_, err := svc.Tables.SetTableStatus(context.Background(), tbl.ID, domain.TableOccupied, nil, 0)
	if !domain.IsValidation(err) {
		t.Fatalf("expected ValidationError without order, got %v", err)
	}
}

func TestSetTableStatusRejectsInvalidTransition(t *testing.T) {
	svc, _, _ := newTestService(t)
	tbl := mkTable(t, svc, 1, 4)

	// AVAILABLE -> DIRTY is not an edge.
	_, err := svc.Tables.SetTableStatus(context.Background(), tbl.ID, domain.TableDirty, nil, 0)
	if !domain.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestSetTableStatusReservedRoundTrip(t *testing.T) {
	svc, _, _ := newTestService(t)
	tbl := mkTable(t, svc, 1, 4)
	ctx := context.Background()

	got, err := svc.Tables.SetTableStatus(ctx, tbl.ID, domain.TableReserved, nil, 0)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if got.Status != domain.TableReserved {
		t.Fatalf("status = %s, want RESERVED", got.Status)
	}
	got, err = svc.Tables.SetTableStatus(ctx, got.ID, domain.TableAvailable, nil, 0)
	if err != nil {
		t.Fatalf("release reservation: %v", err)
	}
	if got.Status != domain.TableAvailable {
		t.Fatalf("status = %s, want AVAILABLE", got.Status)
	}
}

func TestConcurrentStatusChangeOneWins(t *testing.T) {
	svc, _, _ := newTestService(t)
	tbl := mkTable(t, svc, 1, 4)
	ctx := context.Background()

	// Two writers read the same version; exactly one write may land.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	targets := []domain.TableStatus{domain.TableReserved, domain.TableReserved}
	for i := range targets {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = svc.Tables.SetTableStatus(ctx, tbl.ID, targets[n], nil, tbl.Version)
		}(i)
	}
	wg.Wait()

	var ok, conflict int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case domain.IsConflict(err):
			conflict++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflict != 1 {
		t.Fatalf("want exactly one winner and one conflict, got ok=%d conflict=%d", ok, conflict)
	}
}

func TestDeleteTableGuards(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tbl, _ := mkSeatedOrder(t, svc, 1)
	if err := svc.Tables.DeleteTable(ctx, tbl.ID); !domain.IsConflict(err) {
		t.Fatalf("expected ConflictError deleting table with open order, got %v", err)
	}

	free := mkTable(t, svc, 2, 4)
	if err := svc.Tables.DeleteTable(ctx, free.ID); err != nil {
		t.Fatalf("delete free table: %v", err)
	}
	if _, err := svc.Tables.ListTables(ctx, "main"); err != nil {
		t.Fatalf("list: %v", err)
	}
	if err := svc.Tables.DeleteTable(ctx, free.ID); !domain.IsNotFound(err) {
		t.Fatalf("expected NotFoundError on second delete, got %v", err)
	}
}

func TestFindTablesForPartySmallestFirst(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	mkTable(t, svc, 1, 8)
	mkTable(t, svc, 2, 4)
	mkTable(t, svc, 3, 4)
	two := mkTable(t, svc, 4, 2)

	got, err := svc.Tables.FindTablesForParty(ctx, "main", 3)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	if got[0].Number != 2 || got[1].Number != 3 || got[2].Number != 1 {
		t.Fatalf("wrong ordering: %d %d %d", got[0].Number, got[1].Number, got[2].Number)
	}
	for _, tbl := range got {
		if tbl.ID == two.ID {
			t.Fatal("two-top should not seat a party of 3")
		}
	}

	if _, err := svc.Tables.FindTablesForParty(ctx, "main", 0); !domain.IsValidation(err) {
		t.Fatalf("expected ValidationError for party size 0, got %v", err)
	}
}

func TestOccupancyStats(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	mkSeatedOrder(t, svc, 1)
	mkSeatedOrder(t, svc, 2)
	mkTable(t, svc, 3, 4)
	r := mkTable(t, svc, 4, 4)
	if _, err := svc.Tables.SetTableStatus(ctx, r.ID, domain.TableReserved, nil, 0); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	stats, err := svc.Tables.OccupancyStats(ctx, "main")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 4 || stats.Occupied != 2 || stats.Available != 1 || stats.Reserved != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.OccupancyRate != 50 {
		t.Fatalf("occupancy rate = %v, want 50", stats.OccupancyRate)
	}
}

func TestUpdateTableMoveValidatesBounds(t *testing.T) {
	svc, sink, _ := newTestService(t)
	tbl := mkTable(t, svc, 1, 4)
	ctx := context.Background()
	sink.reset()

	x := 2000.0
	if _, err := svc.Tables.UpdateTable(ctx, tbl.ID, UpdateTableInput{X: &x}); !domain.IsValidation(err) {
		t.Fatalf("expected ValidationError for out-of-bounds move, got %v", err)
	}

	x = 500
	moved, err := svc.Tables.UpdateTable(ctx, tbl.ID, UpdateTableInput{X: &x})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.X != 500 {
		t.Fatalf("x = %v, want 500", moved.X)
	}
	kinds := sink.kinds()
	if len(kinds) != 1 || kinds[0] != domain.EventTablePosition {
		t.Fatalf("events = %v, want one table:position-changed", kinds)
	}
}

func TestAssignSection(t *testing.T) {
	svc, _, _ := newTestService(t)
	tbl := mkTable(t, svc, 1, 4)

	got, err := svc.Tables.AssignSection(context.Background(), tbl.ID, "patio")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if got.Section != "patio" {
		t.Fatalf("section = %q, want patio", got.Section)
	}
}
