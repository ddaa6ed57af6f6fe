package service

import (
	"context"

	"github.com/dutchiono/restaurant-pos-system/internal/domain"
	"github.com/dutchiono/restaurant-pos-system/internal/logger"
	"github.com/dutchiono/restaurant-pos-system/internal/storage"
)

// LayoutServiceInterface is the floor-geometry surface consumed by the
// boundary layer.
type LayoutServiceInterface interface {
	UpdateTablePositions(ctx context.Context, updates []PositionUpdate) ([]domain.Table, error)
}

// LayoutService applies floor-plan geometry changes. Position writes are
// last-write-wins: visual placement has no business-logic consequence, so
// convergence on the final drag matters, not serializability.
type LayoutService struct {
	store storage.Store
	pub   Publisher
	lg    *logger.Logger
}

func NewLayoutService(store storage.Store, pub Publisher, lg *logger.Logger) *LayoutService {
	return &LayoutService{store: store, pub: pub, lg: lg}
}

// PositionUpdate moves one table's top-left corner.
type PositionUpdate struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// UpdateTablePositions applies a bulk drag as one atomic batch. Every target
// is validated against its floor plan's bounds before anything commits; one
// bad update rejects the whole batch so the floor plan never ends up
// half-moved.
func (s *LayoutService) UpdateTablePositions(ctx context.Context, updates []PositionUpdate) ([]domain.Table, error) {
	if len(updates) == 0 {
		return nil, domain.Validationf("no position updates given")
	}
	var out []domain.Table
	err := s.store.Atomically(ctx, func(tx storage.Tx) error {
		out = out[:0]
		for _, u := range updates {
			t, err := tx.GetTable(ctx, u.ID)
			if err != nil {
				return err
			}
			plan, err := tx.GetFloorPlan(ctx, t.FloorPlanID)
			if err != nil {
				return err
			}
			if !fitsFloorPlan(plan, u.X, u.Y, t.Width, t.Height) {
				return domain.Validationf("table %d position (%.0f, %.0f) is outside floor plan %s", t.Number, u.X, u.Y, plan.ID)
			}
			if err := tx.SetTablePosition(ctx, u.ID, u.X, u.Y); err != nil {
				return err
			}
			moved, err := tx.GetTable(ctx, u.ID)
			if err != nil {
				return err
			}
			out = append(out, moved)
		}
		return nil
	})
	if err != nil {
		s.lg.Error("position_update_rejected", err, map[string]any{"count": len(updates)})
		return nil, err
	}
	s.lg.Debug("positions_updated", map[string]any{"count": len(out)})
	for _, t := range out {
		publish(s.pub, domain.TablePositionChanged{Table: t})
	}
	return out, nil
}
