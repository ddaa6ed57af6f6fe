package service

import (
	"context"
	"time"

	"github.com/dutchiono/restaurant-pos-system/internal/domain"
	"github.com/dutchiono/restaurant-pos-system/internal/logger"
	"github.com/dutchiono/restaurant-pos-system/internal/storage"
)

// CompositionServiceInterface is the combine/split surface consumed by the
// boundary layer.
type CompositionServiceInterface interface {
	CombineTables(ctx context.Context, tableIDs []string) (CombineResult, error)
	SplitTable(ctx context.Context, tableID string) (SplitResult, error)
}

// CompositionService orchestrates combining tables into one group sharing a
// single order, and splitting the group back apart. Both operations are one
// atomic unit: every table and order involved is updated, or none are.
type CompositionService struct {
	store   storage.Store
	pub     Publisher
	lg      *logger.Logger
	taxRate float64
}

func NewCompositionService(store storage.Store, pub Publisher, lg *logger.Logger, taxRate float64) *CompositionService {
	return &CompositionService{store: store, pub: pub, lg: lg, taxRate: taxRate}
}

// CombineResult reports the group, its shared order, and the retagged tables.
type CombineResult struct {
	Group  domain.TableGroup
	Order  domain.Order
	Tables []domain.Table
	// Voided lists the orders merged away, already in VOID state.
	Voided []domain.Order
}

// CombineTables merges the given tables into one group served by a single
// order. Tables must share a floor plan and section, must be AVAILABLE or
// OCCUPIED, and must not already be in a group. When several tables carry
// active orders, the one with the lowest order number survives; the others'
// items move to it exactly once (keeping their origin-table tags) and the
// emptied orders are voided. The group's anchor is the surviving order's
// table.
func (s *CompositionService) CombineTables(ctx context.Context, tableIDs []string) (CombineResult, error) {
	if len(tableIDs) < 2 {
		return CombineResult{}, domain.Validationf("combining requires at least two tables")
	}
	seen := make(map[string]bool, len(tableIDs))
	for _, id := range tableIDs {
		if seen[id] {
			return CombineResult{}, domain.Validationf("table %s listed twice", id)
		}
		seen[id] = true
	}

	var res CombineResult
	var opened bool
	err := s.store.Atomically(ctx, func(tx storage.Tx) error {
		res = CombineResult{}
		opened = false
		tables := make([]domain.Table, 0, len(tableIDs))
		for _, id := range tableIDs {
			t, err := tx.GetTable(ctx, id)
			if err != nil {
				return err
			}
			tables = append(tables, t)
		}
		first := tables[0]
		for _, t := range tables[1:] {
			if t.FloorPlanID != first.FloorPlanID || t.Section != first.Section {
				return domain.Validationf("tables %d and %d are not in the same section", first.Number, t.Number)
			}
		}
		var orders []domain.Order
		for _, t := range tables {
			if t.Status != domain.TableAvailable && t.Status != domain.TableOccupied {
				return domain.Conflictf("table %d is %s and cannot be combined", t.Number, t.Status)
			}
			if _, found, err := tx.GetGroupByTable(ctx, t.ID); err != nil {
				return err
			} else if found {
				return domain.Conflictf("table %d is already part of a combined group", t.Number)
			}
			if o, found, err := tx.GetActiveOrderByTable(ctx, t.ID); err != nil {
				return err
			} else if found {
				orders = append(orders, o)
			}
		}

		opened = len(orders) == 0
		survivor, voided, err := s.mergeOrders(ctx, tx, tables[0], orders)
		if err != nil {
			return err
		}

		anchor := tables[0].ID
		if survivor.TableID != nil {
			anchor = *survivor.TableID
		}
		group := domain.TableGroup{
			ID:          newID(),
			FloorPlanID: first.FloorPlanID,
			OrderID:     survivor.ID,
			AnchorID:    anchor,
			MemberIDs:   append([]string(nil), tableIDs...),
			CreatedAt:   time.Now().UTC(),
		}
		if err := tx.InsertGroup(ctx, group); err != nil {
			return err
		}

		res.Tables = res.Tables[:0]
		for _, t := range tables {
			updated, err := setTableStatusTx(ctx, tx, t.ID, domain.TableOccupied, &survivor.ID, 0)
			if err != nil {
				return err
			}
			res.Tables = append(res.Tables, updated)
		}

		res.Group = group
		res.Voided = voided
		res.Order, err = tx.GetOrder(ctx, survivor.ID)
		return err
	})
	if err != nil {
		s.lg.Error("combine_rejected", err, map[string]any{"tables": tableIDs})
		return CombineResult{}, err
	}
	s.lg.Debug("tables_combined", map[string]any{"group_id": res.Group.ID, "order_id": res.Order.ID, "members": len(res.Tables)})

	planID := res.Group.FloorPlanID
	if opened {
		publish(s.pub, domain.OrderNew{Order: res.Order, FloorPlanID: planID})
	} else {
		publish(s.pub, domain.OrderUpdated{Order: res.Order, FloorPlanID: planID})
	}
	for _, v := range res.Voided {
		publish(s.pub, domain.OrderUpdated{Order: v, FloorPlanID: planID})
	}
	for _, t := range res.Tables {
		publish(s.pub, domain.TableStatusChanged{Table: t})
	}
	return res, nil
}

// mergeOrders picks the surviving order (lowest order number), moves every
// other active order's items onto it, and voids the donors. With no active
// orders an empty dine-in order is opened so the group has something to be
// occupied by.
func (s *CompositionService) mergeOrders(ctx context.Context, tx storage.Tx, firstTable domain.Table, orders []domain.Order) (domain.Order, []domain.Order, error) {
	if len(orders) == 0 {
		num, err := tx.NextOrderNumber(ctx)
		if err != nil {
			return domain.Order{}, nil, err
		}
		tid := firstTable.ID
		o := domain.Order{
			ID:          newID(),
			OrderNumber: num,
			TableID:     &tid,
			Type:        domain.TypeDineIn,
			Status:      domain.OrderOpen,
			CreatedAt:   time.Now().UTC(),
		}
		o.Recalculate(s.taxRate)
		if err := tx.InsertOrder(ctx, o); err != nil {
			return domain.Order{}, nil, err
		}
		return o, nil, nil
	}

	survivor := orders[0]
	for _, o := range orders[1:] {
		if o.OrderNumber < survivor.OrderNumber {
			survivor = o
		}
	}
	var voided []domain.Order
	for _, o := range orders {
		if o.ID == survivor.ID {
			continue
		}
		for _, it := range o.Items {
			it.OrderID = survivor.ID
			survivor.Items = append(survivor.Items, it)
		}
		o.Items = nil
		o.Recalculate(s.taxRate)
		o.Status = domain.OrderVoid
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return domain.Order{}, nil, err
		}
		v, err := tx.GetOrder(ctx, o.ID)
		if err != nil {
			return domain.Order{}, nil, err
		}
		voided = append(voided, v)
	}
	survivor.Recalculate(s.taxRate)
	if next := domain.DeriveOrderStatus(survivor.Items); next != survivor.Status && domain.CanOrderTransition(survivor.Status, next) {
		survivor.Status = next
	}
	if err := tx.UpdateOrder(ctx, survivor); err != nil {
		return domain.Order{}, nil, err
	}
	merged, err := tx.GetOrder(ctx, survivor.ID)
	if err != nil {
		return domain.Order{}, nil, err
	}
	return merged, voided, nil
}

// SplitResult reports the restored per-table state after a split.
type SplitResult struct {
	Tables []domain.Table
	Orders []domain.Order
}

// SplitTable dissolves the combination group the given table belongs to.
// Items return to the table they were ordered for via their origin tags: the
// anchor keeps the shared order with its own items, every other member with
// items gets a fresh order, and members without items become AVAILABLE.
// An item whose origin is not a group member makes attribution impossible and
// fails the whole split with ConflictError.
func (s *CompositionService) SplitTable(ctx context.Context, tableID string) (SplitResult, error) {
	var res SplitResult
	var created map[string]bool
	err := s.store.Atomically(ctx, func(tx storage.Tx) error {
		res = SplitResult{}
		created = make(map[string]bool)
		g, found, err := tx.GetGroupByTable(ctx, tableID)
		if err != nil {
			return err
		}
		if !found {
			return domain.Conflictf("table %s is not part of a combined group", tableID)
		}
		shared, err := tx.GetOrder(ctx, g.OrderID)
		if err != nil {
			return err
		}
		if shared.Status.IsTerminal() {
			return domain.Conflictf("group order %s is already closed", shared.ID)
		}

		members := make(map[string]bool, len(g.MemberIDs))
		for _, id := range g.MemberIDs {
			members[id] = true
		}
		byTable := make(map[string][]domain.OrderItem)
		for _, it := range shared.Items {
			if it.OriginTableID == "" || !members[it.OriginTableID] {
				return domain.Conflictf("item %s cannot be attributed to a member table", it.ID)
			}
			byTable[it.OriginTableID] = append(byTable[it.OriginTableID], it)
		}

		if err := tx.DeleteGroup(ctx, g.ID); err != nil {
			return err
		}

		for _, memberID := range g.MemberIDs {
			items := byTable[memberID]
			switch {
			case memberID == g.AnchorID && len(items) > 0:
				shared.Items = items
				shared.Recalculate(s.taxRate)
				if next := domain.DeriveOrderStatus(shared.Items); next != shared.Status && domain.CanOrderTransition(shared.Status, next) {
					shared.Status = next
				}
				aid := g.AnchorID
				shared.TableID = &aid
				if err := tx.UpdateOrder(ctx, shared); err != nil {
					return err
				}
				kept, err := tx.GetOrder(ctx, shared.ID)
				if err != nil {
					return err
				}
				shared = kept
				res.Orders = append(res.Orders, kept)
				t, err := restoreTableTx(ctx, tx, memberID, domain.TableOccupied, &kept.ID)
				if err != nil {
					return err
				}
				res.Tables = append(res.Tables, t)

			case memberID == g.AnchorID:
				// Nothing was ordered for the anchor: the shared order is
				// emptied by the split and voided.
				shared.Items = nil
				shared.Recalculate(s.taxRate)
				shared.Status = domain.OrderVoid
				if err := tx.UpdateOrder(ctx, shared); err != nil {
					return err
				}
				voided, err := tx.GetOrder(ctx, shared.ID)
				if err != nil {
					return err
				}
				shared = voided
				res.Orders = append(res.Orders, voided)
				t, err := restoreTableTx(ctx, tx, memberID, domain.TableAvailable, nil)
				if err != nil {
					return err
				}
				res.Tables = append(res.Tables, t)

			case len(items) > 0:
				num, err := tx.NextOrderNumber(ctx)
				if err != nil {
					return err
				}
				mid := memberID
				o := domain.Order{
					ID:          newID(),
					OrderNumber: num,
					TableID:     &mid,
					Type:        shared.Type,
					Status:      domain.OrderOpen,
					CreatedAt:   time.Now().UTC(),
				}
				for i := range items {
					items[i].OrderID = o.ID
				}
				o.Items = items
				o.Recalculate(s.taxRate)
				if next := domain.DeriveOrderStatus(o.Items); next != o.Status {
					o.Status = next
				}
				if err := tx.InsertOrder(ctx, o); err != nil {
					return err
				}
				created[o.ID] = true
				fresh, err := tx.GetOrder(ctx, o.ID)
				if err != nil {
					return err
				}
				res.Orders = append(res.Orders, fresh)
				t, err := restoreTableTx(ctx, tx, memberID, domain.TableOccupied, &fresh.ID)
				if err != nil {
					return err
				}
				res.Tables = append(res.Tables, t)

			default:
				t, err := restoreTableTx(ctx, tx, memberID, domain.TableAvailable, nil)
				if err != nil {
					return err
				}
				res.Tables = append(res.Tables, t)
			}
		}
		return nil
	})
	if err != nil {
		s.lg.Error("split_rejected", err, map[string]any{"table_id": tableID})
		return SplitResult{}, err
	}
	s.lg.Debug("table_split", map[string]any{"table_id": tableID, "tables": len(res.Tables), "orders": len(res.Orders)})

	for _, o := range res.Orders {
		planID := ""
		for _, t := range res.Tables {
			if o.TableID != nil && t.ID == *o.TableID {
				planID = t.FloorPlanID
			}
		}
		if created[o.ID] {
			publish(s.pub, domain.OrderNew{Order: o, FloorPlanID: planID})
		} else {
			publish(s.pub, domain.OrderUpdated{Order: o, FloorPlanID: planID})
		}
	}
	for _, t := range res.Tables {
		publish(s.pub, domain.TableStatusChanged{Table: t})
	}
	return res, nil
}

// restoreTableTx writes a table's status and order reference directly. A
// split reconstructs pre-combine state, which is not a staff action, so the
// table transition rules do not apply here.
func restoreTableTx(ctx context.Context, tx storage.Tx, id string, status domain.TableStatus, orderID *string) (domain.Table, error) {
	t, err := tx.GetTable(ctx, id)
	if err != nil {
		return domain.Table{}, err
	}
	t.Status = status
	t.CurrentOrder = nil
	if orderID != nil {
		oid := *orderID
		t.CurrentOrder = &oid
	}
	if err := tx.UpdateTable(ctx, t); err != nil {
		return domain.Table{}, err
	}
	return tx.GetTable(ctx, id)
}
