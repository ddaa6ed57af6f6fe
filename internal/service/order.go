package service

import (
	"context"
	"math"
	"time"

	"github.com/dutchiono/restaurant-pos-system/internal/domain"
	"github.com/dutchiono/restaurant-pos-system/internal/logger"
	"github.com/dutchiono/restaurant-pos-system/internal/storage"
)

// OrderServiceInterface is the order lifecycle surface consumed by the
// boundary layer.
type OrderServiceInterface interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (domain.Order, error)
	AddItemsToOrder(ctx context.Context, orderID string, items []NewItem) (domain.Order, error)
	UpdateItemStatus(ctx context.Context, itemID string, to domain.ItemStatus) (domain.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, to domain.OrderStatus) (domain.Order, error)
	CompleteOrder(ctx context.Context, orderID string) (domain.Order, error)
	CancelOrder(ctx context.Context, orderID, reason string) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	GetOrderTotal(ctx context.Context, orderID string) (domain.Totals, error)
}

// OrderService owns order and order-item status transitions and totals.
type OrderService struct {
	store   storage.Store
	pub     Publisher
	lg      *logger.Logger
	taxRate float64
}

func NewOrderService(store storage.Store, pub Publisher, lg *logger.Logger, taxRate float64) *OrderService {
	return &OrderService{store: store, pub: pub, lg: lg, taxRate: taxRate}
}

// NewItem is one requested order line. Unit price and name come from the
// menu record at order time.
type NewItem struct {
	MenuItemID          string
	Quantity            int
	Course              domain.Course
	SeatNumber          int
	SpecialInstructions string
	Modifiers           []domain.Modifier
}

type CreateOrderInput struct {
	TableID *string
	Type    domain.OrderType
	Items   []NewItem
}

// CreateOrder validates the items against the menu, computes totals, and —
// when a table is given — seats the order by flipping the table to OCCUPIED
// in the same transaction. If the table transition fails, no order is
// created.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (domain.Order, error) {
	if !domain.ValidOrderType(in.Type) {
		return domain.Order{}, domain.Validationf("invalid order type %q", in.Type)
	}
	if len(in.Items) == 0 {
		return domain.Order{}, domain.Validationf("at least one item is required")
	}

	var (
		out    domain.Order
		seated *domain.Table
		planID string
	)
	err := s.store.Atomically(ctx, func(tx storage.Tx) error {
		seated = nil
		o := domain.Order{
			ID:        newID(),
			Type:      in.Type,
			Status:    domain.OrderOpen,
			CreatedAt: time.Now().UTC(),
		}
		num, err := tx.NextOrderNumber(ctx)
		if err != nil {
			return err
		}
		o.OrderNumber = num

		origin := ""
		if in.TableID != nil {
			tid := *in.TableID
			o.TableID = &tid
			origin = tid
		}
		items, err := buildItems(ctx, tx, o.ID, origin, in.Items)
		if err != nil {
			return err
		}
		o.Items = items
		o.Recalculate(s.taxRate)

		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		if in.TableID != nil {
			t, err := setTableStatusTx(ctx, tx, *in.TableID, domain.TableOccupied, &o.ID, 0)
			if err != nil {
				return err
			}
			seated = &t
			planID = t.FloorPlanID
		}
		out, err = tx.GetOrder(ctx, o.ID)
		return err
	})
	if err != nil {
		s.lg.Error("order_create_rejected", err, nil)
		return domain.Order{}, err
	}
	s.lg.Debug("order_created", map[string]any{"order_id": out.ID, "order_number": out.OrderNumber, "total": out.Total})
	publish(s.pub, domain.OrderNew{Order: out, FloorPlanID: planID})
	if seated != nil {
		publish(s.pub, domain.TableStatusChanged{Table: *seated})
	}
	return out, nil
}

// AddItemsToOrder appends items to a non-terminal order and recomputes
// totals. If new pending items arrive while the order is READY it drops back
// to IN_PROGRESS, since the kitchen has work again.
func (s *OrderService) AddItemsToOrder(ctx context.Context, orderID string, items []NewItem) (domain.Order, error) {
	if len(items) == 0 {
		return domain.Order{}, domain.Validationf("at least one item is required")
	}
	var out domain.Order
	var planID string
	err := s.store.Atomically(ctx, func(tx storage.Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status.IsTerminal() {
			return domain.Validationf("order %s is closed", orderID)
		}
		origin := ""
		if o.TableID != nil {
			origin = *o.TableID
		}
		// Items added while the order belongs to a combined group are
		// attributed to the group's anchor table.
		if g, found, err := tx.GetGroupByOrder(ctx, orderID); err != nil {
			return err
		} else if found {
			origin = g.AnchorID
		}
		added, err := buildItems(ctx, tx, o.ID, origin, items)
		if err != nil {
			return err
		}
		o.Items = append(o.Items, added...)
		o.Recalculate(s.taxRate)
		if o.Status == domain.OrderReady {
			o.Status = domain.OrderInProgress
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		planID = planIDForOrder(ctx, tx, o)
		out, err = tx.GetOrder(ctx, orderID)
		return err
	})
	if err != nil {
		s.lg.Error("order_add_items_rejected", err, map[string]any{"order_id": orderID})
		return domain.Order{}, err
	}
	s.lg.Debug("order_items_added", map[string]any{"order_id": orderID, "count": len(items), "total": out.Total})
	publish(s.pub, domain.OrderUpdated{Order: out, FloorPlanID: planID})
	return out, nil
}

// UpdateItemStatus moves one item through the kitchen pipeline. Movement is
// forward-only; CANCELLED is reachable from any non-terminal stage. The
// owning order auto-advances OPEN to IN_PROGRESS with the first started item
// and IN_PROGRESS to READY when every item is ready, served or cancelled.
func (s *OrderService) UpdateItemStatus(ctx context.Context, itemID string, to domain.ItemStatus) (domain.Order, error) {
	var out domain.Order
	var changed domain.OrderItem
	var planID string
	statusMoved := false
	err := s.store.Atomically(ctx, func(tx storage.Tx) error {
		o, err := tx.GetOrderByItem(ctx, itemID)
		if err != nil {
			return err
		}
		if o.Status.IsTerminal() {
			return domain.Validationf("order %s is closed", o.ID)
		}
		it := o.Item(itemID)
		if !domain.CanItemTransition(it.Status, to) {
			return domain.Validationf("item %s cannot go from %s to %s", itemID, it.Status, to)
		}
		now := time.Now().UTC()
		switch to {
		case domain.ItemSentToKitchen:
			it.SentToKitchenAt = &now
		case domain.ItemPreparing:
			if it.SentToKitchenAt == nil {
				it.SentToKitchenAt = &now
			}
		case domain.ItemReady:
			it.CompletedAt = &now
		}
		it.Status = to
		o.Recalculate(s.taxRate)

		if next := domain.DeriveOrderStatus(o.Items); next != o.Status && domain.CanOrderTransition(o.Status, next) {
			o.Status = next
			statusMoved = true
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		planID = planIDForOrder(ctx, tx, o)
		out, err = tx.GetOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		changed = *out.Item(itemID)
		return nil
	})
	if err != nil {
		s.lg.Error("item_status_rejected", err, map[string]any{"item_id": itemID, "target": string(to)})
		return domain.Order{}, err
	}
	s.lg.Debug("item_status_changed", map[string]any{"item_id": itemID, "status": string(to), "order_status": string(out.Status)})
	publish(s.pub, domain.ItemStatusChanged{OrderID: out.ID, Item: changed, FloorPlanID: planID})
	if statusMoved {
		publish(s.pub, domain.OrderUpdated{Order: out, FloorPlanID: planID})
	}
	return out, nil
}

// UpdateOrderStatus applies an explicitly requested order transition.
// IN_PROGRESS to READY requires every item ready, served or cancelled;
// READY to COMPLETED requires every item served or cancelled and releases the
// table(s) to DIRTY in the same transaction. VOID is not a staff action: an
// order only becomes VOID when a combine or split empties it, so direct
// requests are rejected.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID string, to domain.OrderStatus) (domain.Order, error) {
	if to == domain.OrderCancelled {
		return s.CancelOrder(ctx, orderID, "")
	}
	var out domain.Order
	var released []domain.Table
	var planID string
	err := s.store.Atomically(ctx, func(tx storage.Tx) error {
		released = released[:0]
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if to == domain.OrderVoid {
			return domain.Validationf("order %s cannot be voided directly", orderID)
		}
		if !domain.CanOrderTransition(o.Status, to) {
			return domain.Validationf("order %s cannot go from %s to %s", orderID, o.Status, to)
		}
		switch to {
		case domain.OrderReady:
			if !allItemsAtLeast(o.Items, domain.ItemReady) {
				return domain.Validationf("order %s has items not yet ready", orderID)
			}
		case domain.OrderCompleted:
			if !allItemsAtLeast(o.Items, domain.ItemServed) {
				return domain.Validationf("order %s has unserved items", orderID)
			}
			now := time.Now().UTC()
			o.CompletedAt = &now
		}
		o.Status = to
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		planID = planIDForOrder(ctx, tx, o)
		if to == domain.OrderCompleted {
			released, err = releaseTablesTx(ctx, tx, o)
			if err != nil {
				return err
			}
		}
		out, err = tx.GetOrder(ctx, orderID)
		return err
	})
	if err != nil {
		s.lg.Error("order_status_rejected", err, map[string]any{"order_id": orderID, "target": string(to)})
		return domain.Order{}, err
	}
	s.lg.Debug("order_status_changed", map[string]any{"order_id": orderID, "status": string(to)})
	publish(s.pub, domain.OrderUpdated{Order: out, FloorPlanID: planID})
	for _, t := range released {
		publish(s.pub, domain.TableStatusChanged{Table: t})
	}
	return out, nil
}

// CompleteOrder closes out a READY order.
func (s *OrderService) CompleteOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return s.UpdateOrderStatus(ctx, orderID, domain.OrderCompleted)
}

// CancelOrder cancels a non-terminal order: every non-terminal item is
// cancelled, totals recomputed, and the table released to DIRTY (it still
// needs bussing).
func (s *OrderService) CancelOrder(ctx context.Context, orderID, reason string) (domain.Order, error) {
	var out domain.Order
	var released []domain.Table
	var planID string
	err := s.store.Atomically(ctx, func(tx storage.Tx) error {
		released = released[:0]
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !domain.CanOrderTransition(o.Status, domain.OrderCancelled) {
			return domain.Validationf("order %s is already closed", orderID)
		}
		for i := range o.Items {
			if !o.Items[i].Status.IsTerminal() {
				o.Items[i].Status = domain.ItemCancelled
			}
		}
		o.Recalculate(s.taxRate)
		o.Status = domain.OrderCancelled
		o.CancelReason = reason
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		planID = planIDForOrder(ctx, tx, o)
		released, err = releaseTablesTx(ctx, tx, o)
		if err != nil {
			return err
		}
		out, err = tx.GetOrder(ctx, orderID)
		return err
	})
	if err != nil {
		s.lg.Error("order_cancel_rejected", err, map[string]any{"order_id": orderID})
		return domain.Order{}, err
	}
	s.lg.Debug("order_cancelled", map[string]any{"order_id": orderID, "reason": reason})
	publish(s.pub, domain.OrderUpdated{Order: out, FloorPlanID: planID})
	for _, t := range released {
		publish(s.pub, domain.TableStatusChanged{Table: t})
	}
	return out, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

// GetOrderTotal recomputes the order's totals from its items and returns the
// derived values. A mismatch against the stored fields indicates drift and is
// logged; the stored record is left untouched.
func (s *OrderService) GetOrderTotal(ctx context.Context, orderID string) (domain.Totals, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Totals{}, err
	}
	derived := o
	derived.Recalculate(s.taxRate)
	if !moneyEqual(derived.Subtotal, o.Subtotal) || !moneyEqual(derived.Total, o.Total) {
		s.lg.Error("order_total_drift", domain.Conflictf("stored %v/%v derived %v/%v", o.Subtotal, o.Total, derived.Subtotal, derived.Total), map[string]any{"order_id": orderID})
	}
	return domain.Totals{Subtotal: derived.Subtotal, Tax: derived.Tax, Total: derived.Total}, nil
}

// buildItems resolves requested lines against the menu and prices them.
func buildItems(ctx context.Context, tx storage.Tx, orderID, originTableID string, reqs []NewItem) ([]domain.OrderItem, error) {
	items := make([]domain.OrderItem, 0, len(reqs))
	for _, r := range reqs {
		if r.Quantity <= 0 {
			return nil, domain.Validationf("invalid quantity for menu item %s", r.MenuItemID)
		}
		mi, err := tx.GetMenuItem(ctx, r.MenuItemID)
		if err != nil {
			return nil, err
		}
		if !mi.IsAvailable || mi.Is86d {
			return nil, domain.Validationf("menu item %s is not available", mi.Name)
		}
		it := domain.OrderItem{
			ID:                  newID(),
			OrderID:             orderID,
			MenuItemID:          mi.ID,
			Name:                mi.Name,
			Quantity:            r.Quantity,
			UnitPrice:           mi.Price,
			SeatNumber:          r.SeatNumber,
			Status:              domain.ItemPending,
			Course:              r.Course,
			SpecialInstructions: r.SpecialInstructions,
			Modifiers:           append([]domain.Modifier(nil), r.Modifiers...),
			OriginTableID:       originTableID,
		}
		it.ComputeTotal()
		items = append(items, it)
	}
	return items, nil
}

// releaseTablesTx vacates every table tied to a closed order: all members of
// its combination group, or just its own table. The group record is removed
// with the order that held it together.
func releaseTablesTx(ctx context.Context, tx storage.Tx, o domain.Order) ([]domain.Table, error) {
	var tableIDs []string
	if g, found, err := tx.GetGroupByOrder(ctx, o.ID); err != nil {
		return nil, err
	} else if found {
		tableIDs = g.MemberIDs
		if err := tx.DeleteGroup(ctx, g.ID); err != nil {
			return nil, err
		}
	} else if o.TableID != nil {
		tableIDs = []string{*o.TableID}
	}

	var out []domain.Table
	for _, id := range tableIDs {
		t, err := setTableStatusTx(ctx, tx, id, domain.TableDirty, nil, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

var itemRank = map[domain.ItemStatus]int{
	domain.ItemPending:       0,
	domain.ItemSentToKitchen: 1,
	domain.ItemPreparing:     2,
	domain.ItemReady:         3,
	domain.ItemServed:        4,
}

// allItemsAtLeast reports whether every non-cancelled item has reached the
// given stage.
func allItemsAtLeast(items []domain.OrderItem, stage domain.ItemStatus) bool {
	for _, it := range items {
		if it.Status == domain.ItemCancelled {
			continue
		}
		if itemRank[it.Status] < itemRank[stage] {
			return false
		}
	}
	return true
}

func planIDForOrder(ctx context.Context, tx storage.Tx, o domain.Order) string {
	if o.TableID == nil {
		return ""
	}
	t, err := tx.GetTable(ctx, *o.TableID)
	if err != nil {
		return ""
	}
	return t.FloorPlanID
}

func moneyEqual(a, b float64) bool {
	return math.Abs(a-b) < 0.005
}
