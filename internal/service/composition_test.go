package service

import (
	"context"
	"testing"

	"github.com/dutchiono/restaurant-pos-system/internal/domain"
)

func TestCombineTablesMergesOrders(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()

	t1, o1 := mkSeatedOrder(t, svc, 1, NewItem{MenuItemID: "burger", Quantity: 1})
	t2, o2 := mkSeatedOrder(t, svc, 2, NewItem{MenuItemID: "salad", Quantity: 2})

	res, err := svc.Composition.CombineTables(ctx, []string{t1.ID, t2.ID})
	if err != nil {
		t.Fatalf("combine: %v", err)
	}

	// The earlier order survives, the later one is voided.
	if res.Order.ID != o1.ID {
		t.Fatalf("survivor = %s, want %s", res.Order.ID, o1.ID)
	}
	if len(res.Voided) != 1 || res.Voided[0].ID != o2.ID {
		t.Fatalf("voided = %+v, want just %s", res.Voided, o2.ID)
	}
	if res.Voided[0].Status != domain.OrderVoid {
		t.Fatalf("donor status = %s, want VOID", res.Voided[0].Status)
	}
	if len(res.Voided[0].Items) != 0 {
		t.Fatal("donor should be emptied")
	}

	// All items live on the survivor, origin tags intact.
	if len(res.Order.Items) != 2 {
		t.Fatalf("survivor item count = %d, want 2", len(res.Order.Items))
	}
	origins := map[string]int{}
	for _, it := range res.Order.Items {
		origins[it.OriginTableID]++
	}
	if origins[t1.ID] != 1 || origins[t2.ID] != 1 {
		t.Fatalf("origin tags = %v", origins)
	}
	// burger 12.00 + 2x salad 8.50 = 29.00
	if !almostEqual(res.Order.Subtotal, 29.00) {
		t.Fatalf("merged subtotal = %v, want 29.00", res.Order.Subtotal)
	}

	// Every member is OCCUPIED by the survivor.
	for _, id := range []string{t1.ID, t2.ID} {
		tbl, err := store.GetTable(ctx, id)
		if err != nil {
			t.Fatalf("get table: %v", err)
		}
		if tbl.Status != domain.TableOccupied {
			t.Fatalf("table status = %s, want OCCUPIED", tbl.Status)
		}
		if tbl.CurrentOrder == nil || *tbl.CurrentOrder != o1.ID {
			t.Fatal("member does not reference the shared order")
		}
	}

	if _, found, err := store.GetGroupByTable(ctx, t2.ID); err != nil || !found {
		t.Fatalf("group not recorded: found=%v err=%v", found, err)
	}
}

func TestCombineAvailableTablesOpensSharedOrder(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()

	t1 := mkTable(t, svc, 1, 4)
	t2 := mkTable(t, svc, 2, 4)

	res, err := svc.Composition.CombineTables(ctx, []string{t1.ID, t2.ID})
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	if res.Order.Status != domain.OrderOpen || res.Order.Type != domain.TypeDineIn {
		t.Fatalf("shared order = %s/%s, want OPEN dine-in", res.Order.Status, res.Order.Type)
	}
	if len(res.Order.Items) != 0 {
		t.Fatal("fresh shared order should have no items")
	}

	tbl, _ := store.GetTable(ctx, t1.ID)
	if tbl.Status != domain.TableOccupied {
		t.Fatalf("table status = %s, want OCCUPIED", tbl.Status)
	}
}

func TestCombineRejections(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	t1 := mkTable(t, svc, 1, 4)
	patio, err := svc.Tables.CreateTable(ctx, CreateTableInput{
		FloorPlanID: "main", Number: 2, Capacity: 4, Section: "patio", X: 200,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	dirty, dirtyOrder := mkSeatedOrder(t, svc, 3)
	if _, err := svc.Orders.CancelOrder(ctx, dirtyOrder.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if _, err := svc.Composition.CombineTables(ctx, []string{t1.ID}); !domain.IsValidation(err) {
		t.Fatalf("single table: %v", err)
	}
	if _, err := svc.Composition.CombineTables(ctx, []string{t1.ID, t1.ID}); !domain.IsValidation(err) {
		t.Fatalf("duplicate id: %v", err)
	}
	if _, err := svc.Composition.CombineTables(ctx, []string{t1.ID, patio.ID}); !domain.IsValidation(err) {
		t.Fatalf("section mismatch: %v", err)
	}
	if _, err := svc.Composition.CombineTables(ctx, []string{t1.ID, dirty.ID}); !domain.IsConflict(err) {
		t.Fatalf("dirty member: %v", err)
	}
}

func TestCombineAlreadyGroupedConflicts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	t1 := mkTable(t, svc, 1, 4)
	t2 := mkTable(t, svc, 2, 4)
	t3 := mkTable(t, svc, 3, 4)
	if _, err := svc.Composition.CombineTables(ctx, []string{t1.ID, t2.ID}); err != nil {
		t.Fatalf("combine: %v", err)
	}

	if _, err := svc.Composition.CombineTables(ctx, []string{t2.ID, t3.ID}); !domain.IsConflict(err) {
		t.Fatalf("expected ConflictError for regrouping, got %v", err)
	}
}

func TestSplitRestoresPerTableOrders(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()

	t1, o1 := mkSeatedOrder(t, svc, 1, NewItem{MenuItemID: "burger", Quantity: 1})
	t2, _ := mkSeatedOrder(t, svc, 2, NewItem{MenuItemID: "salad", Quantity: 2})

	combined, err := svc.Composition.CombineTables(ctx, []string{t1.ID, t2.ID})
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	sharedTotal := combined.Order.Subtotal

	res, err := svc.Composition.SplitTable(ctx, t2.ID)
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	if len(res.Orders) != 2 {
		t.Fatalf("order count after split = %d, want 2", len(res.Orders))
	}
	// The anchor keeps the shared order with its own items only.
	var anchorOrder, newOrder domain.Order
	for _, o := range res.Orders {
		if o.ID == o1.ID {
			anchorOrder = o
		} else {
			newOrder = o
		}
	}
	if len(anchorOrder.Items) != 1 || anchorOrder.Items[0].OriginTableID != t1.ID {
		t.Fatalf("anchor order items = %+v", anchorOrder.Items)
	}
	if len(newOrder.Items) != 1 || newOrder.Items[0].OriginTableID != t2.ID {
		t.Fatalf("new order items = %+v", newOrder.Items)
	}
	if newOrder.OrderNumber == anchorOrder.OrderNumber {
		t.Fatal("split order must get its own number")
	}

	// No money appears or disappears in the round trip.
	if !almostEqual(anchorOrder.Subtotal+newOrder.Subtotal, sharedTotal) {
		t.Fatalf("subtotals %v + %v != shared %v", anchorOrder.Subtotal, newOrder.Subtotal, sharedTotal)
	}

	// Each table is OCCUPIED by its own order again; the group is gone.
	for id, want := range map[string]string{t1.ID: anchorOrder.ID, t2.ID: newOrder.ID} {
		tbl, _ := store.GetTable(ctx, id)
		if tbl.Status != domain.TableOccupied {
			t.Fatalf("table status = %s, want OCCUPIED", tbl.Status)
		}
		if tbl.CurrentOrder == nil || *tbl.CurrentOrder != want {
			t.Fatalf("table %s references %v, want %s", id, tbl.CurrentOrder, want)
		}
	}
	if _, found, _ := store.GetGroupByTable(ctx, t1.ID); found {
		t.Fatal("group should be dissolved")
	}
}

func TestSplitEmptyMembersBecomeAvailable(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()

	t1, _ := mkSeatedOrder(t, svc, 1, NewItem{MenuItemID: "burger", Quantity: 1})
	t2 := mkTable(t, svc, 2, 4)

	if _, err := svc.Composition.CombineTables(ctx, []string{t1.ID, t2.ID}); err != nil {
		t.Fatalf("combine: %v", err)
	}
	if _, err := svc.Composition.SplitTable(ctx, t1.ID); err != nil {
		t.Fatalf("split: %v", err)
	}

	tbl, _ := store.GetTable(ctx, t2.ID)
	if tbl.Status != domain.TableAvailable {
		t.Fatalf("empty member status = %s, want AVAILABLE", tbl.Status)
	}
	if tbl.CurrentOrder != nil {
		t.Fatal("empty member should not reference an order")
	}
}

func TestSplitUncombinedTableConflicts(t *testing.T) {
	svc, _, _ := newTestService(t)
	tbl := mkTable(t, svc, 1, 4)

	if _, err := svc.Composition.SplitTable(context.Background(), tbl.ID); !domain.IsConflict(err) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestCancellingSharedOrderDissolvesGroup(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()

	t1, _ := mkSeatedOrder(t, svc, 1, NewItem{MenuItemID: "burger", Quantity: 1})
	t2, _ := mkSeatedOrder(t, svc, 2, NewItem{MenuItemID: "salad", Quantity: 1})

	res, err := svc.Composition.CombineTables(ctx, []string{t1.ID, t2.ID})
	if err != nil {
		t.Fatalf("combine: %v", err)
	}

	if _, err := svc.Orders.CancelOrder(ctx, res.Order.ID, "party left"); err != nil {
		t.Fatalf("cancel shared order: %v", err)
	}

	for _, id := range []string{t1.ID, t2.ID} {
		tbl, _ := store.GetTable(ctx, id)
		if tbl.Status != domain.TableDirty {
			t.Fatalf("member status = %s, want DIRTY", tbl.Status)
		}
	}
	if _, found, _ := store.GetGroupByTable(ctx, t1.ID); found {
		t.Fatal("group should be deleted with the shared order")
	}
}

func TestCombineDerivesSurvivorStatus(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	t1, o1 := mkSeatedOrder(t, svc, 1, NewItem{MenuItemID: "burger", Quantity: 1})
	t2, o2 := mkSeatedOrder(t, svc, 2, NewItem{MenuItemID: "salad", Quantity: 1})

	// The donor's dish is already on the line when the tables are pushed
	// together.
	if _, err := svc.Orders.UpdateItemStatus(ctx, o2.Items[0].ID, domain.ItemPreparing); err != nil {
		t.Fatalf("prep donor item: %v", err)
	}

	res, err := svc.Composition.CombineTables(ctx, []string{t1.ID, t2.ID})
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	if res.Order.ID != o1.ID {
		t.Fatalf("survivor = %s, want %s", res.Order.ID, o1.ID)
	}
	if res.Order.Status != domain.OrderInProgress {
		t.Fatalf("merged order status = %s, want IN_PROGRESS", res.Order.Status)
	}
}

func TestSplitDerivesRestoredOrderStatuses(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()

	t1, o1 := mkSeatedOrder(t, svc, 1, NewItem{MenuItemID: "burger", Quantity: 1})
	t2, _ := mkSeatedOrder(t, svc, 2, NewItem{MenuItemID: "salad", Quantity: 1})

	if _, err := svc.Composition.CombineTables(ctx, []string{t1.ID, t2.ID}); err != nil {
		t.Fatalf("combine: %v", err)
	}

	// Both dishes go on the line; only the anchor's comes up.
	shared, err := store.GetOrder(ctx, o1.ID)
	if err != nil {
		t.Fatalf("get shared order: %v", err)
	}
	for _, it := range shared.Items {
		if _, err := svc.Orders.UpdateItemStatus(ctx, it.ID, domain.ItemPreparing); err != nil {
			t.Fatalf("prep item: %v", err)
		}
		if it.OriginTableID == t1.ID {
			if _, err := svc.Orders.UpdateItemStatus(ctx, it.ID, domain.ItemReady); err != nil {
				t.Fatalf("ready item: %v", err)
			}
		}
	}

	res, err := svc.Composition.SplitTable(ctx, t1.ID)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(res.Orders) != 2 {
		t.Fatalf("restored orders = %d, want 2", len(res.Orders))
	}
	for _, o := range res.Orders {
		if o.ID == o1.ID {
			if o.Status != domain.OrderReady {
				t.Errorf("anchor order status = %s, want READY", o.Status)
			}
		} else if o.Status != domain.OrderInProgress {
			t.Errorf("restored order status = %s, want IN_PROGRESS", o.Status)
		}
	}
}

func TestCompositionAnnouncesCreatedOrders(t *testing.T) {
	svc, sink, _ := newTestService(t)
	ctx := context.Background()

	t1 := mkTable(t, svc, 1, 4)
	t2 := mkTable(t, svc, 2, 4)
	sink.reset()

	// Combining two empty tables opens a fresh shared order.
	if _, err := svc.Composition.CombineTables(ctx, []string{t1.ID, t2.ID}); err != nil {
		t.Fatalf("combine: %v", err)
	}
	if news, updates := countOrderKinds(sink.kinds()); news != 1 || updates != 0 {
		t.Fatalf("combine published %d order:new / %d order:updated, want 1/0", news, updates)
	}
}

func TestSplitAnnouncesFreshOrders(t *testing.T) {
	svc, sink, _ := newTestService(t)
	ctx := context.Background()

	t1, o1 := mkSeatedOrder(t, svc, 1, NewItem{MenuItemID: "burger", Quantity: 1})
	t2, _ := mkSeatedOrder(t, svc, 2, NewItem{MenuItemID: "salad", Quantity: 1})
	if _, err := svc.Composition.CombineTables(ctx, []string{t1.ID, t2.ID}); err != nil {
		t.Fatalf("combine: %v", err)
	}
	sink.reset()

	res, err := svc.Composition.SplitTable(ctx, t1.ID)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	// The anchor keeps the shared order, the other member gets a new one.
	if news, updates := countOrderKinds(sink.kinds()); news != 1 || updates != 1 {
		t.Fatalf("split published %d order:new / %d order:updated, want 1/1", news, updates)
	}
	for _, o := range res.Orders {
		if o.ID != o1.ID && o.OrderNumber == o1.OrderNumber {
			t.Fatal("fresh order reuses the shared order's number")
		}
	}
}

func countOrderKinds(kinds []domain.EventKind) (news, updates int) {
	for _, k := range kinds {
		switch k {
		case domain.EventOrderNew:
			news++
		case domain.EventOrderUpdated:
			updates++
		}
	}
	return news, updates
}
