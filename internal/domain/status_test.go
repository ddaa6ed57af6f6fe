package domain

import "testing"

func TestCanTableTransition(t *testing.T) {
	cases := []struct {
		from, to TableStatus
		want     bool
	}{
		{TableAvailable, TableOccupied, true},
		{TableAvailable, TableReserved, true},
		{TableAvailable, TableDirty, false},
		{TableReserved, TableOccupied, true},
		{TableReserved, TableAvailable, true},
		{TableOccupied, TableDirty, true},
		{TableOccupied, TableAvailable, false},
		{TableOccupied, TableReserved, false},
		{TableDirty, TableCleaning, true},
		{TableDirty, TableAvailable, true},
		{TableCleaning, TableAvailable, true},
		{TableCleaning, TableOccupied, false},
		// same-state writes are idempotent
		{TableOccupied, TableOccupied, true},
		{TableDirty, TableDirty, true},
	}
	for _, c := range cases {
		if got := CanTableTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTableTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestCanOrderTransition(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderOpen, OrderInProgress, true},
		{OrderOpen, OrderCancelled, true},
		{OrderOpen, OrderCompleted, false},
		{OrderInProgress, OrderReady, true},
		{OrderInProgress, OrderOpen, false},
		{OrderReady, OrderCompleted, true},
		{OrderReady, OrderInProgress, false},
		{OrderCompleted, OrderOpen, false},
		{OrderCancelled, OrderOpen, false},
		{OrderVoid, OrderOpen, false},
	}
	for _, c := range cases {
		if got := CanOrderTransition(c.from, c.to); got != c.want {
			t.Errorf("CanOrderTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestCanItemTransition(t *testing.T) {
	cases := []struct {
		from, to ItemStatus
		want     bool
	}{
		{ItemPending, ItemSentToKitchen, true},
		{ItemPending, ItemPreparing, true}, // kitchen may start without an explicit send
		{ItemPending, ItemReady, false},
		{ItemSentToKitchen, ItemPreparing, true},
		{ItemSentToKitchen, ItemPending, false},
		{ItemPreparing, ItemReady, true},
		{ItemPreparing, ItemServed, false},
		{ItemReady, ItemServed, true},
		{ItemReady, ItemPreparing, false},
		{ItemServed, ItemCancelled, false},
		{ItemCancelled, ItemPending, false},
		{ItemPreparing, ItemCancelled, true},
	}
	for _, c := range cases {
		if got := CanItemTransition(c.from, c.to); got != c.want {
			t.Errorf("CanItemTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestDeriveOrderStatus(t *testing.T) {
	mk := func(statuses ...ItemStatus) []OrderItem {
		items := make([]OrderItem, len(statuses))
		for i, s := range statuses {
			items[i].Status = s
		}
		return items
	}
	cases := []struct {
		name  string
		items []OrderItem
		want  OrderStatus
	}{
		{"no items", nil, OrderOpen},
		{"all pending", mk(ItemPending, ItemPending), OrderOpen},
		{"one preparing", mk(ItemPending, ItemPreparing), OrderInProgress},
		{"one sent", mk(ItemSentToKitchen, ItemPending), OrderInProgress},
		{"all ready", mk(ItemReady, ItemReady), OrderReady},
		{"ready and served", mk(ItemReady, ItemServed), OrderReady},
		{"ready plus pending", mk(ItemReady, ItemPending), OrderInProgress},
		{"cancelled ignored", mk(ItemReady, ItemCancelled), OrderReady},
		{"all cancelled", mk(ItemCancelled, ItemCancelled), OrderOpen},
	}
	for _, c := range cases {
		if got := DeriveOrderStatus(c.items); got != c.want {
			t.Errorf("%s: DeriveOrderStatus = %s, want %s", c.name, got, c.want)
		}
	}
}

func TestRecalculateSkipsCancelledItems(t *testing.T) {
	o := Order{Items: []OrderItem{
		{Total: 10, Status: ItemReady},
		{Total: 5, Status: ItemCancelled},
		{Total: 2.5, Status: ItemPending},
	}}
	o.Recalculate(0.10)
	if o.Subtotal != 12.5 {
		t.Fatalf("subtotal = %v, want 12.5", o.Subtotal)
	}
	if o.Tax != 1.25 {
		t.Fatalf("tax = %v, want 1.25", o.Tax)
	}
	if o.Total != 13.75 {
		t.Fatalf("total = %v, want 13.75", o.Total)
	}
}

func TestComputeTotalIncludesModifiers(t *testing.T) {
	it := OrderItem{Quantity: 2, UnitPrice: 9.99, Modifiers: []Modifier{{Price: 1.5}, {Price: 0.75}}}
	it.ComputeTotal()
	if it.Total != 22.23 {
		t.Fatalf("total = %v, want 22.23", it.Total)
	}
}
