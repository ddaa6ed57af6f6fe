// Package service hosts the four lifecycle managers: tables, orders, table
// composition, and floor layout. Managers are constructed once per process
// with their dependencies injected and share one persistence port; every
// accepted mutation is handed to the publisher after its transaction commits.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/dutchiono/restaurant-pos-system/internal/domain"
	"github.com/dutchiono/restaurant-pos-system/internal/logger"
	"github.com/dutchiono/restaurant-pos-system/internal/storage"
)

// Publisher receives one event per accepted mutation. Delivery is
// fire-and-forget relative to the mutation's commit.
type Publisher interface {
	Publish(ev domain.Event)
}

// Service bundles the managers wired against one store and one publisher.
type Service struct {
	Tables      *TableService
	Orders      *OrderService
	Composition *CompositionService
	Layout      *LayoutService

	store storage.Store
}

// New wires the managers. taxRate is the flat sales tax applied when order
// totals are recomputed.
func New(store storage.Store, pub Publisher, lg *logger.Logger, taxRate float64) *Service {
	return &Service{
		Tables:      NewTableService(store, pub, lg),
		Orders:      NewOrderService(store, pub, lg, taxRate),
		Composition: NewCompositionService(store, pub, lg, taxRate),
		Layout:      NewLayoutService(store, pub, lg),
		store:       store,
	}
}

// Snapshot returns the full current state of a channel for a subscriber
// joining or reconnecting: active orders for the kitchen channel, tables plus
// their active orders for a floor-plan channel.
func (s *Service) Snapshot(ctx context.Context, channel string) (domain.ChannelSnapshot, error) {
	snap := domain.ChannelSnapshot{Channel: channel, TakenAt: time.Now().UTC()}
	if channel == domain.ChannelKitchen {
		orders, err := s.store.ListActiveOrders(ctx, "")
		if err != nil {
			return domain.ChannelSnapshot{}, err
		}
		snap.Orders = orders
		return snap, nil
	}
	tables, err := s.store.ListTables(ctx, channel)
	if err != nil {
		return domain.ChannelSnapshot{}, err
	}
	orders, err := s.store.ListActiveOrders(ctx, channel)
	if err != nil {
		return domain.ChannelSnapshot{}, err
	}
	snap.Tables = tables
	snap.Orders = orders
	return snap, nil
}

func publish(p Publisher, evs ...domain.Event) {
	if p == nil {
		return
	}
	for _, ev := range evs {
		p.Publish(ev)
	}
}

func newID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
