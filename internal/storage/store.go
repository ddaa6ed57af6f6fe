// Package storage defines the persistence port the lifecycle managers run
// against, with an in-memory implementation for tests and single-process use
// and a Postgres implementation for production.
package storage

import (
	"context"
	"time"

	"github.com/dutchiono/restaurant-pos-system/internal/domain"
)

// Reader is the query surface, usable outside a transaction.
type Reader interface {
	GetTable(ctx context.Context, id string) (domain.Table, error)
	// ListTables returns the floor plan's tables ordered by table number.
	ListTables(ctx context.Context, floorPlanID string) ([]domain.Table, error)
	ListTablesByStatus(ctx context.Context, floorPlanID string, status domain.TableStatus) ([]domain.Table, error)
	// FindTablesForParty returns available tables seating the party
	// (minCapacity <= partySize <= capacity), smallest fitting table first,
	// then by ascending table number.
	FindTablesForParty(ctx context.Context, floorPlanID string, partySize int) ([]domain.Table, error)

	GetOrder(ctx context.Context, id string) (domain.Order, error)
	// GetOrderByItem resolves the order owning the given item.
	GetOrderByItem(ctx context.Context, itemID string) (domain.Order, error)
	// GetActiveOrderByTable returns the non-terminal order attached to the
	// table, if any.
	GetActiveOrderByTable(ctx context.Context, tableID string) (domain.Order, bool, error)
	// ListActiveOrders returns all non-terminal orders; floorPlanID narrows
	// to orders attached to that plan's tables when non-empty.
	ListActiveOrders(ctx context.Context, floorPlanID string) ([]domain.Order, error)
	ListCompletedOrders(ctx context.Context, floorPlanID string, since time.Time) ([]domain.Order, error)

	GetGroupByTable(ctx context.Context, tableID string) (domain.TableGroup, bool, error)
	GetGroupByOrder(ctx context.Context, orderID string) (domain.TableGroup, bool, error)

	GetMenuItem(ctx context.Context, id string) (domain.MenuItem, error)
	GetFloorPlan(ctx context.Context, id string) (domain.FloorPlan, error)
}

// Tx adds the write surface. All writes between entry to Atomically and its
// nil return commit as one unit; any error rolls every one of them back.
//
// UpdateTable and UpdateOrder are compare-and-swap: the entity's Version must
// equal the stored version or the write fails with ConflictError. The stored
// version is bumped on success. SetTablePosition deliberately skips the
// version check: floor geometry is last-write-wins.
type Tx interface {
	Reader

	InsertTable(ctx context.Context, t domain.Table) error
	UpdateTable(ctx context.Context, t domain.Table) error
	SetTablePosition(ctx context.Context, id string, x, y float64) error
	DeleteTable(ctx context.Context, id string) error

	NextOrderNumber(ctx context.Context) (int64, error)
	InsertOrder(ctx context.Context, o domain.Order) error
	UpdateOrder(ctx context.Context, o domain.Order) error

	InsertGroup(ctx context.Context, g domain.TableGroup) error
	DeleteGroup(ctx context.Context, id string) error

	PutMenuItem(ctx context.Context, m domain.MenuItem) error
	PutFloorPlan(ctx context.Context, p domain.FloorPlan) error
}

// Store is the persistence port.
type Store interface {
	Reader
	// Atomically runs fn inside one transaction. fn's error aborts and is
	// returned unchanged; commit failures surface as PersistenceError.
	Atomically(ctx context.Context, fn func(tx Tx) error) error
	Close()
}
