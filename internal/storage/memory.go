package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dutchiono/restaurant-pos-system/internal/domain"
)

// Memory is the in-memory Store. Transactions are serialized under one lock
// and staged against a deep copy, so a failed transaction leaves no trace and
// version checks behave exactly as the Postgres implementation's.
type Memory struct {
	mu   sync.RWMutex
	data *memData
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: newMemData()}
}

func (m *Memory) Atomically(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return domain.Persistence("begin", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	staged := m.data.clone()
	if err := fn(&memTx{data: staged}); err != nil {
		return err
	}
	m.data = staged
	return nil
}

func (m *Memory) Close() {}

// Read methods take the read lock and delegate to the committed snapshot.

func (m *Memory) GetTable(ctx context.Context, id string) (domain.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getTable(id)
}

func (m *Memory) ListTables(ctx context.Context, floorPlanID string) ([]domain.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listTables(floorPlanID), nil
}

func (m *Memory) ListTablesByStatus(ctx context.Context, floorPlanID string, status domain.TableStatus) ([]domain.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listTablesByStatus(floorPlanID, status), nil
}

func (m *Memory) FindTablesForParty(ctx context.Context, floorPlanID string, partySize int) ([]domain.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.findTablesForParty(floorPlanID, partySize), nil
}

func (m *Memory) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getOrder(id)
}

func (m *Memory) GetOrderByItem(ctx context.Context, itemID string) (domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getOrderByItem(itemID)
}

func (m *Memory) GetActiveOrderByTable(ctx context.Context, tableID string) (domain.Order, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getActiveOrderByTable(tableID)
}

func (m *Memory) ListActiveOrders(ctx context.Context, floorPlanID string) ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listActiveOrders(floorPlanID), nil
}

func (m *Memory) ListCompletedOrders(ctx context.Context, floorPlanID string, since time.Time) ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listCompletedOrders(floorPlanID, since), nil
}

func (m *Memory) GetGroupByTable(ctx context.Context, tableID string) (domain.TableGroup, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getGroupByTable(tableID)
}

func (m *Memory) GetGroupByOrder(ctx context.Context, orderID string) (domain.TableGroup, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getGroupByOrder(orderID)
}

func (m *Memory) GetMenuItem(ctx context.Context, id string) (domain.MenuItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getMenuItem(id)
}

func (m *Memory) GetFloorPlan(ctx context.Context, id string) (domain.FloorPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getFloorPlan(id)
}

// memData is one consistent snapshot of the store.
type memData struct {
	tables   map[string]domain.Table
	orders   map[string]domain.Order
	groups   map[string]domain.TableGroup
	menu     map[string]domain.MenuItem
	plans    map[string]domain.FloorPlan
	orderSeq int64
}

func newMemData() *memData {
	return &memData{
		tables: make(map[string]domain.Table),
		orders: make(map[string]domain.Order),
		groups: make(map[string]domain.TableGroup),
		menu:   make(map[string]domain.MenuItem),
		plans:  make(map[string]domain.FloorPlan),
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	c.orderSeq = d.orderSeq
	for k, v := range d.tables {
		c.tables[k] = v.Clone()
	}
	for k, v := range d.orders {
		c.orders[k] = v.Clone()
	}
	for k, v := range d.groups {
		c.groups[k] = v.Clone()
	}
	for k, v := range d.menu {
		c.menu[k] = v
	}
	for k, v := range d.plans {
		c.plans[k] = v
	}
	return c
}

func (d *memData) getTable(id string) (domain.Table, error) {
	t, ok := d.tables[id]
	if !ok {
		return domain.Table{}, domain.NotFound("table", id)
	}
	return t.Clone(), nil
}

func (d *memData) listTables(floorPlanID string) []domain.Table {
	var out []domain.Table
	for _, t := range d.tables {
		if t.FloorPlanID == floorPlanID {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func (d *memData) listTablesByStatus(floorPlanID string, status domain.TableStatus) []domain.Table {
	var out []domain.Table
	for _, t := range d.listTables(floorPlanID) {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

func (d *memData) findTablesForParty(floorPlanID string, partySize int) []domain.Table {
	var out []domain.Table
	for _, t := range d.tables {
		if t.FloorPlanID != floorPlanID || t.Status != domain.TableAvailable {
			continue
		}
		if t.Capacity >= partySize && t.MinCapacity <= partySize {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Capacity != out[j].Capacity {
			return out[i].Capacity < out[j].Capacity
		}
		return out[i].Number < out[j].Number
	})
	return out
}

func (d *memData) getOrder(id string) (domain.Order, error) {
	o, ok := d.orders[id]
	if !ok {
		return domain.Order{}, domain.NotFound("order", id)
	}
	return o.Clone(), nil
}

func (d *memData) getOrderByItem(itemID string) (domain.Order, error) {
	for _, o := range d.orders {
		for _, it := range o.Items {
			if it.ID == itemID {
				return o.Clone(), nil
			}
		}
	}
	return domain.Order{}, domain.NotFound("order item", itemID)
}

func (d *memData) getActiveOrderByTable(tableID string) (domain.Order, bool, error) {
	for _, o := range d.orders {
		if o.TableID != nil && *o.TableID == tableID && !o.Status.IsTerminal() {
			return o.Clone(), true, nil
		}
	}
	return domain.Order{}, false, nil
}

func (d *memData) listActiveOrders(floorPlanID string) []domain.Order {
	var out []domain.Order
	for _, o := range d.orders {
		if o.Status.IsTerminal() {
			continue
		}
		if floorPlanID != "" {
			if o.TableID == nil {
				continue
			}
			t, ok := d.tables[*o.TableID]
			if !ok || t.FloorPlanID != floorPlanID {
				continue
			}
		}
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNumber < out[j].OrderNumber })
	return out
}

func (d *memData) listCompletedOrders(floorPlanID string, since time.Time) []domain.Order {
	var out []domain.Order
	for _, o := range d.orders {
		if o.Status != domain.OrderCompleted || o.CompletedAt == nil || o.CompletedAt.Before(since) {
			continue
		}
		if floorPlanID != "" {
			if o.TableID == nil {
				continue
			}
			t, ok := d.tables[*o.TableID]
			if !ok || t.FloorPlanID != floorPlanID {
				continue
			}
		}
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNumber < out[j].OrderNumber })
	return out
}

func (d *memData) getGroupByTable(tableID string) (domain.TableGroup, bool, error) {
	for _, g := range d.groups {
		if g.HasMember(tableID) {
			return g.Clone(), true, nil
		}
	}
	return domain.TableGroup{}, false, nil
}

func (d *memData) getGroupByOrder(orderID string) (domain.TableGroup, bool, error) {
	for _, g := range d.groups {
		if g.OrderID == orderID {
			return g.Clone(), true, nil
		}
	}
	return domain.TableGroup{}, false, nil
}

func (d *memData) getMenuItem(id string) (domain.MenuItem, error) {
	mi, ok := d.menu[id]
	if !ok {
		return domain.MenuItem{}, domain.NotFound("menu item", id)
	}
	return mi, nil
}

func (d *memData) getFloorPlan(id string) (domain.FloorPlan, error) {
	p, ok := d.plans[id]
	if !ok {
		return domain.FloorPlan{}, domain.NotFound("floor plan", id)
	}
	return p, nil
}

// memTx mutates the staged snapshot; the lock is held by Atomically for the
// whole transaction.
type memTx struct {
	data *memData
}

func (tx *memTx) GetTable(ctx context.Context, id string) (domain.Table, error) {
	return tx.data.getTable(id)
}

func (tx *memTx) ListTables(ctx context.Context, floorPlanID string) ([]domain.Table, error) {
	return tx.data.listTables(floorPlanID), nil
}

func (tx *memTx) ListTablesByStatus(ctx context.Context, floorPlanID string, status domain.TableStatus) ([]domain.Table, error) {
	return tx.data.listTablesByStatus(floorPlanID, status), nil
}

func (tx *memTx) FindTablesForParty(ctx context.Context, floorPlanID string, partySize int) ([]domain.Table, error) {
	return tx.data.findTablesForParty(floorPlanID, partySize), nil
}

func (tx *memTx) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return tx.data.getOrder(id)
}

func (tx *memTx) GetOrderByItem(ctx context.Context, itemID string) (domain.Order, error) {
	return tx.data.getOrderByItem(itemID)
}

func (tx *memTx) GetActiveOrderByTable(ctx context.Context, tableID string) (domain.Order, bool, error) {
	return tx.data.getActiveOrderByTable(tableID)
}

func (tx *memTx) ListActiveOrders(ctx context.Context, floorPlanID string) ([]domain.Order, error) {
	return tx.data.listActiveOrders(floorPlanID), nil
}

func (tx *memTx) ListCompletedOrders(ctx context.Context, floorPlanID string, since time.Time) ([]domain.Order, error) {
	return tx.data.listCompletedOrders(floorPlanID, since), nil
}

func (tx *memTx) GetGroupByTable(ctx context.Context, tableID string) (domain.TableGroup, bool, error) {
	return tx.data.getGroupByTable(tableID)
}

func (tx *memTx) GetGroupByOrder(ctx context.Context, orderID string) (domain.TableGroup, bool, error) {
	return tx.data.getGroupByOrder(orderID)
}

func (tx *memTx) GetMenuItem(ctx context.Context, id string) (domain.MenuItem, error) {
	return tx.data.getMenuItem(id)
}

func (tx *memTx) GetFloorPlan(ctx context.Context, id string) (domain.FloorPlan, error) {
	return tx.data.getFloorPlan(id)
}

func (tx *memTx) InsertTable(ctx context.Context, t domain.Table) error {
	if _, ok := tx.data.tables[t.ID]; ok {
		return domain.Conflictf("table %s already exists", t.ID)
	}
	for _, other := range tx.data.tables {
		if other.FloorPlanID == t.FloorPlanID && other.Number == t.Number {
			return domain.Conflictf("table number %d already exists in floor plan %s", t.Number, t.FloorPlanID)
		}
	}
	t.Version = 1
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	tx.data.tables[t.ID] = t.Clone()
	return nil
}

func (tx *memTx) UpdateTable(ctx context.Context, t domain.Table) error {
	cur, ok := tx.data.tables[t.ID]
	if !ok {
		return domain.NotFound("table", t.ID)
	}
	if cur.Version != t.Version {
		return domain.Conflictf("table %s was modified concurrently", t.ID)
	}
	for _, other := range tx.data.tables {
		if other.ID != t.ID && other.FloorPlanID == t.FloorPlanID && other.Number == t.Number {
			return domain.Conflictf("table number %d already exists in floor plan %s", t.Number, t.FloorPlanID)
		}
	}
	t.Version = cur.Version + 1
	t.CreatedAt = cur.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	tx.data.tables[t.ID] = t.Clone()
	return nil
}

func (tx *memTx) SetTablePosition(ctx context.Context, id string, x, y float64) error {
	cur, ok := tx.data.tables[id]
	if !ok {
		return domain.NotFound("table", id)
	}
	cur.X = x
	cur.Y = y
	cur.Version++
	cur.UpdatedAt = time.Now().UTC()
	tx.data.tables[id] = cur
	return nil
}

func (tx *memTx) DeleteTable(ctx context.Context, id string) error {
	if _, ok := tx.data.tables[id]; !ok {
		return domain.NotFound("table", id)
	}
	delete(tx.data.tables, id)
	return nil
}

func (tx *memTx) NextOrderNumber(ctx context.Context) (int64, error) {
	tx.data.orderSeq++
	return tx.data.orderSeq, nil
}

func (tx *memTx) InsertOrder(ctx context.Context, o domain.Order) error {
	if _, ok := tx.data.orders[o.ID]; ok {
		return domain.Conflictf("order %s already exists", o.ID)
	}
	o.Version = 1
	tx.data.orders[o.ID] = o.Clone()
	return nil
}

func (tx *memTx) UpdateOrder(ctx context.Context, o domain.Order) error {
	cur, ok := tx.data.orders[o.ID]
	if !ok {
		return domain.NotFound("order", o.ID)
	}
	if cur.Version != o.Version {
		return domain.Conflictf("order %s was modified concurrently", o.ID)
	}
	o.Version = cur.Version + 1
	tx.data.orders[o.ID] = o.Clone()
	return nil
}

func (tx *memTx) InsertGroup(ctx context.Context, g domain.TableGroup) error {
	if _, ok := tx.data.groups[g.ID]; ok {
		return domain.Conflictf("table group %s already exists", g.ID)
	}
	tx.data.groups[g.ID] = g.Clone()
	return nil
}

func (tx *memTx) DeleteGroup(ctx context.Context, id string) error {
	if _, ok := tx.data.groups[id]; !ok {
		return domain.NotFound("table group", id)
	}
	delete(tx.data.groups, id)
	return nil
}

func (tx *memTx) PutMenuItem(ctx context.Context, m domain.MenuItem) error {
	tx.data.menu[m.ID] = m
	return nil
}

func (tx *memTx) PutFloorPlan(ctx context.Context, p domain.FloorPlan) error {
	tx.data.plans[p.ID] = p
	return nil
}
