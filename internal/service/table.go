package service

import (
	"context"
	"time"

	"github.com/dutchiono/restaurant-pos-system/internal/domain"
	"github.com/dutchiono/restaurant-pos-system/internal/logger"
	"github.com/dutchiono/restaurant-pos-system/internal/storage"
)

// TableServiceInterface is the table lifecycle surface consumed by the
// boundary layer.
type TableServiceInterface interface {
	CreateTable(ctx context.Context, in CreateTableInput) (domain.Table, error)
	UpdateTable(ctx context.Context, id string, patch UpdateTableInput) (domain.Table, error)
	SetTableStatus(ctx context.Context, id string, to domain.TableStatus, orderID *string, version int64) (domain.Table, error)
	DeleteTable(ctx context.Context, id string) error
	AssignSection(ctx context.Context, id, section string) (domain.Table, error)
	ListTables(ctx context.Context, floorPlanID string) ([]domain.Table, error)
	ListTablesByStatus(ctx context.Context, floorPlanID string, status domain.TableStatus) ([]domain.Table, error)
	FindTablesForParty(ctx context.Context, floorPlanID string, partySize int) ([]domain.Table, error)
	OccupancyStats(ctx context.Context, floorPlanID string) (OccupancyStats, error)
	AverageTurnTime(ctx context.Context, floorPlanID string, window time.Duration) (time.Duration, bool, error)
}

// TableService owns table status transitions and table CRUD invariants.
type TableService struct {
	store storage.Store
	pub   Publisher
	lg    *logger.Logger
}

func NewTableService(store storage.Store, pub Publisher, lg *logger.Logger) *TableService {
	return &TableService{store: store, pub: pub, lg: lg}
}

type CreateTableInput struct {
	FloorPlanID string
	Number      int
	Capacity    int
	MinCapacity int
	X, Y        float64
	Width       float64
	Height      float64
	Shape       domain.TableShape
	Section     string
}

// CreateTable adds a table in AVAILABLE state. The number must be unique
// within the floor plan and the geometry must fit its bounds.
func (s *TableService) CreateTable(ctx context.Context, in CreateTableInput) (domain.Table, error) {
	if in.Number <= 0 {
		return domain.Table{}, domain.Validationf("table number must be positive")
	}
	if in.Capacity <= 0 {
		return domain.Table{}, domain.Validationf("capacity must be positive")
	}
	if in.MinCapacity < 0 || in.MinCapacity > in.Capacity {
		return domain.Table{}, domain.Validationf("min capacity must be between 0 and capacity")
	}
	if in.Width <= 0 {
		in.Width = 80
	}
	if in.Height <= 0 {
		in.Height = 80
	}
	if in.Shape == "" {
		in.Shape = domain.ShapeSquare
	}

	t := domain.Table{
		ID:          newID(),
		FloorPlanID: in.FloorPlanID,
		Number:      in.Number,
		Capacity:    in.Capacity,
		MinCapacity: in.MinCapacity,
		X:           in.X,
		Y:           in.Y,
		Width:       in.Width,
		Height:      in.Height,
		Shape:       in.Shape,
		Section:     in.Section,
		Status:      domain.TableAvailable,
	}

	err := s.store.Atomically(ctx, func(tx storage.Tx) error {
		plan, err := tx.GetFloorPlan(ctx, in.FloorPlanID)
		if err != nil {
			return err
		}
		if !fitsFloorPlan(plan, t.X, t.Y, t.Width, t.Height) {
			return domain.Validationf("table %d does not fit floor plan %s bounds", t.Number, plan.ID)
		}
		if err := tx.InsertTable(ctx, t); err != nil {
			return err
		}
		t, err = tx.GetTable(ctx, t.ID)
		return err
	})
	if err != nil {
		s.lg.Error("table_create_rejected", err, map[string]any{"number": in.Number})
		return domain.Table{}, err
	}
	s.lg.Debug("table_created", map[string]any{"table_id": t.ID, "number": t.Number})
	publish(s.pub, domain.TableStatusChanged{Table: t})
	return t, nil
}

type UpdateTableInput struct {
	Number      *int
	Capacity    *int
	MinCapacity *int
	X, Y        *float64
	Width       *float64
	Height      *float64
	Shape       *domain.TableShape
	Section     *string
}

// UpdateTable patches geometry, capacity and section. Status and the current
// order are never touched here. Position changes are last-write-wins: the
// patch applies over whatever is stored at commit time.
func (s *TableService) UpdateTable(ctx context.Context, id string, patch UpdateTableInput) (domain.Table, error) {
	var out domain.Table
	moved := false
	err := s.store.Atomically(ctx, func(tx storage.Tx) error {
		t, err := tx.GetTable(ctx, id)
		if err != nil {
			return err
		}
		if patch.Number != nil {
			if *patch.Number <= 0 {
				return domain.Validationf("table number must be positive")
			}
			t.Number = *patch.Number
		}
		if patch.Capacity != nil {
			if *patch.Capacity <= 0 {
				return domain.Validationf("capacity must be positive")
			}
			t.Capacity = *patch.Capacity
		}
		if patch.MinCapacity != nil {
			t.MinCapacity = *patch.MinCapacity
		}
		if t.MinCapacity < 0 || t.MinCapacity > t.Capacity {
			return domain.Validationf("min capacity must be between 0 and capacity")
		}
		if patch.X != nil {
			t.X = *patch.X
			moved = true
		}
		if patch.Y != nil {
			t.Y = *patch.Y
			moved = true
		}
		if patch.Width != nil {
			t.Width = *patch.Width
			moved = true
		}
		if patch.Height != nil {
			t.Height = *patch.Height
			moved = true
		}
		if patch.Shape != nil {
			t.Shape = *patch.Shape
		}
		if patch.Section != nil {
			t.Section = *patch.Section
		}
		if moved {
			plan, err := tx.GetFloorPlan(ctx, t.FloorPlanID)
			if err != nil {
				return err
			}
			if !fitsFloorPlan(plan, t.X, t.Y, t.Width, t.Height) {
				return domain.Validationf("table %d does not fit floor plan %s bounds", t.Number, plan.ID)
			}
		}
		if err := tx.UpdateTable(ctx, t); err != nil {
			return err
		}
		out, err = tx.GetTable(ctx, id)
		return err
	})
	if err != nil {
		s.lg.Error("table_update_rejected", err, map[string]any{"table_id": id})
		return domain.Table{}, err
	}
	s.lg.Debug("table_updated", map[string]any{"table_id": id})
	if moved {
		publish(s.pub, domain.TablePositionChanged{Table: out})
	} else {
		publish(s.pub, domain.TableStatusChanged{Table: out})
	}
	return out, nil
}

// SetTableStatus applies a validated status transition. A target of OCCUPIED
// requires orderID; a target of AVAILABLE requires no active order. version
// is the table version the caller last read: a stale version fails with
// ConflictError instead of overwriting a concurrent change. Passing 0 skips
// that check and trusts the in-transaction re-read.
func (s *TableService) SetTableStatus(ctx context.Context, id string, to domain.TableStatus, orderID *string, version int64) (domain.Table, error) {
	var out domain.Table
	err := s.store.Atomically(ctx, func(tx storage.Tx) error {
		var err error
		out, err = setTableStatusTx(ctx, tx, id, to, orderID, version)
		return err
	})
	if err != nil {
		s.lg.Error("table_status_rejected", err, map[string]any{"table_id": id, "target": string(to)})
		return domain.Table{}, err
	}
	s.lg.Debug("table_status_changed", map[string]any{"table_id": id, "status": string(to)})
	publish(s.pub, domain.TableStatusChanged{Table: out})
	return out, nil
}

// DeleteTable removes a table that has no active order and is not part of a
// combination group.
func (s *TableService) DeleteTable(ctx context.Context, id string) error {
	err := s.store.Atomically(ctx, func(tx storage.Tx) error {
		t, err := tx.GetTable(ctx, id)
		if err != nil {
			return err
		}
		if _, found, err := tx.GetActiveOrderByTable(ctx, id); err != nil {
			return err
		} else if found {
			return domain.Conflictf("table %d has an active order", t.Number)
		}
		if _, found, err := tx.GetGroupByTable(ctx, id); err != nil {
			return err
		} else if found {
			return domain.Conflictf("table %d is part of a combined group", t.Number)
		}
		return tx.DeleteTable(ctx, id)
	})
	if err != nil {
		s.lg.Error("table_delete_rejected", err, map[string]any{"table_id": id})
		return err
	}
	s.lg.Debug("table_deleted", map[string]any{"table_id": id})
	return nil
}

// AssignSection moves the table to a server section.
func (s *TableService) AssignSection(ctx context.Context, id, section string) (domain.Table, error) {
	return s.UpdateTable(ctx, id, UpdateTableInput{Section: &section})
}

func (s *TableService) ListTables(ctx context.Context, floorPlanID string) ([]domain.Table, error) {
	return s.store.ListTables(ctx, floorPlanID)
}

func (s *TableService) ListTablesByStatus(ctx context.Context, floorPlanID string, status domain.TableStatus) ([]domain.Table, error) {
	return s.store.ListTablesByStatus(ctx, floorPlanID, status)
}

// FindTablesForParty returns available tables that seat the party, smallest
// fitting table first to minimize wasted seating.
func (s *TableService) FindTablesForParty(ctx context.Context, floorPlanID string, partySize int) ([]domain.Table, error) {
	if partySize <= 0 {
		return nil, domain.Validationf("party size must be positive")
	}
	return s.store.FindTablesForParty(ctx, floorPlanID, partySize)
}

// OccupancyStats summarizes a floor plan's table states.
type OccupancyStats struct {
	Total         int     `json:"total"`
	Available     int     `json:"available"`
	Occupied      int     `json:"occupied"`
	Reserved      int     `json:"reserved"`
	Dirty         int     `json:"dirty"`
	Cleaning      int     `json:"cleaning"`
	OccupancyRate float64 `json:"occupancy_rate"`
}

func (s *TableService) OccupancyStats(ctx context.Context, floorPlanID string) (OccupancyStats, error) {
	tables, err := s.store.ListTables(ctx, floorPlanID)
	if err != nil {
		return OccupancyStats{}, err
	}
	var stats OccupancyStats
	stats.Total = len(tables)
	for _, t := range tables {
		switch t.Status {
		case domain.TableAvailable:
			stats.Available++
		case domain.TableOccupied:
			stats.Occupied++
		case domain.TableReserved:
			stats.Reserved++
		case domain.TableDirty:
			stats.Dirty++
		case domain.TableCleaning:
			stats.Cleaning++
		}
	}
	if stats.Total > 0 {
		stats.OccupancyRate = float64(stats.Occupied) / float64(stats.Total) * 100
	}
	return stats, nil
}

// AverageTurnTime reports the mean create-to-complete duration of orders
// completed within the window. ok is false when nothing completed.
func (s *TableService) AverageTurnTime(ctx context.Context, floorPlanID string, window time.Duration) (time.Duration, bool, error) {
	since := time.Now().UTC().Add(-window)
	orders, err := s.store.ListCompletedOrders(ctx, floorPlanID, since)
	if err != nil {
		return 0, false, err
	}
	if len(orders) == 0 {
		return 0, false, nil
	}
	var total time.Duration
	for _, o := range orders {
		total += o.CompletedAt.Sub(o.CreatedAt)
	}
	return total / time.Duration(len(orders)), true, nil
}

// setTableStatusTx is the single place table transitions are validated and
// applied. The order and composition managers call it inside their own
// transactions so composite operations stay atomic.
func setTableStatusTx(ctx context.Context, tx storage.Tx, id string, to domain.TableStatus, orderID *string, version int64) (domain.Table, error) {
	t, err := tx.GetTable(ctx, id)
	if err != nil {
		return domain.Table{}, err
	}
	if version > 0 && t.Version != version {
		return domain.Table{}, domain.Conflictf("table %d was modified concurrently", t.Number)
	}
	if !domain.CanTableTransition(t.Status, to) {
		return domain.Table{}, domain.Validationf("table %d cannot go from %s to %s", t.Number, t.Status, to)
	}

	switch to {
	case domain.TableOccupied:
		if orderID == nil {
			return domain.Table{}, domain.Validationf("cannot set table %d to OCCUPIED without an order", t.Number)
		}
		o, err := tx.GetOrder(ctx, *orderID)
		if err != nil {
			return domain.Table{}, err
		}
		if o.Status.IsTerminal() {
			return domain.Table{}, domain.Validationf("order %s is closed", o.ID)
		}
		if t.Status == domain.TableOccupied && t.CurrentOrder != nil && *t.CurrentOrder != *orderID {
			if active, err := activeCurrentOrder(ctx, tx, t); err != nil {
				return domain.Table{}, err
			} else if active {
				return domain.Table{}, domain.Conflictf("table %d is already occupied by another order", t.Number)
			}
		}
		oid := *orderID
		t.CurrentOrder = &oid
	case domain.TableAvailable:
		if active, err := activeCurrentOrder(ctx, tx, t); err != nil {
			return domain.Table{}, err
		} else if active {
			return domain.Table{}, domain.Validationf("cannot set table %d to AVAILABLE while it has an active order", t.Number)
		}
		t.CurrentOrder = nil
	default:
		// Leaving OCCUPIED vacates the table; the order reference is only
		// meaningful while seated.
		if t.Status == domain.TableOccupied {
			if active, err := activeCurrentOrder(ctx, tx, t); err != nil {
				return domain.Table{}, err
			} else if active {
				return domain.Table{}, domain.Validationf("table %d still has an active order", t.Number)
			}
			t.CurrentOrder = nil
		}
	}

	t.Status = to
	if err := tx.UpdateTable(ctx, t); err != nil {
		return domain.Table{}, err
	}
	return tx.GetTable(ctx, id)
}

func activeCurrentOrder(ctx context.Context, tx storage.Tx, t domain.Table) (bool, error) {
	if t.CurrentOrder == nil {
		return false, nil
	}
	o, err := tx.GetOrder(ctx, *t.CurrentOrder)
	if err != nil {
		if domain.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return !o.Status.IsTerminal(), nil
}

func fitsFloorPlan(plan domain.FloorPlan, x, y, w, h float64) bool {
	return x >= 0 && y >= 0 && x+w <= plan.Width && y+h <= plan.Height
}
