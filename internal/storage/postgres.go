package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dutchiono/restaurant-pos-system/internal/domain"
)

// Postgres implements Store over database/sql. Version-guarded updates
// inside Atomically bump the version column and report zero affected rows on
// a stale version, so the CAS semantics match the in-memory store exactly.
type Postgres struct {
	pgReader
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{pgReader: pgReader{q: db}, db: db}
}

func (p *Postgres) Atomically(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Persistence("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&pgTx{pgReader: pgReader{q: tx}, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return domain.Persistence("commit", err)
	}
	return nil
}

func (p *Postgres) Close() {
	_ = p.db.Close()
}

// querier is satisfied by both *sql.DB and *sql.Tx, so the read queries run
// identically inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type pgReader struct {
	q querier
}

type pgTx struct {
	pgReader
	tx *sql.Tx
}

const activeOrderFilter = `status NOT IN ('COMPLETED','CANCELLED','VOID')`

const tableCols = `id, floor_plan_id, number, capacity, min_capacity,
	x, y, width, height, shape, section, status, current_order,
	version, created_at, updated_at`

const orderCols = `id, order_number, table_id, type, status,
	subtotal, tax, total, cancel_reason, version, created_at, completed_at`

const itemCols = `id, order_id, menu_item_id, name, quantity, unit_price,
	total, seat_number, status, course, special_instructions, modifiers,
	origin_table_id, sent_to_kitchen_at, completed_at`

func scanTable(row interface{ Scan(...any) error }) (domain.Table, error) {
	var t domain.Table
	var current sql.NullString
	err := row.Scan(&t.ID, &t.FloorPlanID, &t.Number, &t.Capacity, &t.MinCapacity,
		&t.X, &t.Y, &t.Width, &t.Height, &t.Shape, &t.Section, &t.Status, &current,
		&t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return domain.Table{}, err
	}
	if current.Valid {
		t.CurrentOrder = &current.String
	}
	return t, nil
}

func (r pgReader) GetTable(ctx context.Context, id string) (domain.Table, error) {
	t, err := scanTable(r.q.QueryRowContext(ctx,
		`SELECT `+tableCols+` FROM tables WHERE id=$1`, id))
	if err == sql.ErrNoRows {
		return domain.Table{}, domain.NotFound("table", id)
	}
	if err != nil {
		return domain.Table{}, domain.Persistence("get table", err)
	}
	return t, nil
}

func (r pgReader) listTables(ctx context.Context, query string, args ...any) ([]domain.Table, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.Persistence("list tables", err)
	}
	defer rows.Close()

	var out []domain.Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, domain.Persistence("scan table", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persistence("list tables", err)
	}
	return out, nil
}

func (r pgReader) ListTables(ctx context.Context, floorPlanID string) ([]domain.Table, error) {
	return r.listTables(ctx,
		`SELECT `+tableCols+` FROM tables WHERE floor_plan_id=$1 ORDER BY number`,
		floorPlanID)
}

func (r pgReader) ListTablesByStatus(ctx context.Context, floorPlanID string, status domain.TableStatus) ([]domain.Table, error) {
	return r.listTables(ctx,
		`SELECT `+tableCols+` FROM tables WHERE floor_plan_id=$1 AND status=$2 ORDER BY number`,
		floorPlanID, string(status))
}

func (r pgReader) FindTablesForParty(ctx context.Context, floorPlanID string, partySize int) ([]domain.Table, error) {
	return r.listTables(ctx,
		`SELECT `+tableCols+` FROM tables
		 WHERE floor_plan_id=$1 AND status='AVAILABLE'
		   AND min_capacity<=$2 AND capacity>=$2
		 ORDER BY capacity, number`,
		floorPlanID, partySize)
}

func (r pgReader) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+itemCols+` FROM order_items WHERE order_id=$1 ORDER BY position`,
		orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		var mods []byte
		var seat sql.NullInt64
		var sent, done sql.NullTime
		err := rows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.Quantity,
			&it.UnitPrice, &it.Total, &seat, &it.Status, &it.Course,
			&it.SpecialInstructions, &mods, &it.OriginTableID, &sent, &done)
		if err != nil {
			return nil, err
		}
		if seat.Valid {
			it.SeatNumber = int(seat.Int64)
		}
		if sent.Valid {
			v := sent.Time
			it.SentToKitchenAt = &v
		}
		if done.Valid {
			v := done.Time
			it.CompletedAt = &v
		}
		if len(mods) > 0 {
			if err := json.Unmarshal(mods, &it.Modifiers); err != nil {
				return nil, fmt.Errorf("decode modifiers for item %s: %w", it.ID, err)
			}
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r pgReader) scanOrder(ctx context.Context, row interface{ Scan(...any) error }) (domain.Order, error) {
	var o domain.Order
	var tableID sql.NullString
	var done sql.NullTime
	err := row.Scan(&o.ID, &o.OrderNumber, &tableID, &o.Type, &o.Status,
		&o.Subtotal, &o.Tax, &o.Total, &o.CancelReason, &o.Version, &o.CreatedAt, &done)
	if err != nil {
		return domain.Order{}, err
	}
	if tableID.Valid {
		o.TableID = &tableID.String
	}
	if done.Valid {
		v := done.Time
		o.CompletedAt = &v
	}
	o.Items, err = r.loadItems(ctx, o.ID)
	if err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (r pgReader) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	o, err := r.scanOrder(ctx, r.q.QueryRowContext(ctx,
		`SELECT `+orderCols+` FROM orders WHERE id=$1`, id))
	if err == sql.ErrNoRows {
		return domain.Order{}, domain.NotFound("order", id)
	}
	if err != nil {
		return domain.Order{}, domain.Persistence("get order", err)
	}
	return o, nil
}

func (r pgReader) GetOrderByItem(ctx context.Context, itemID string) (domain.Order, error) {
	var orderID string
	err := r.q.QueryRowContext(ctx,
		`SELECT order_id FROM order_items WHERE id=$1`, itemID).Scan(&orderID)
	if err == sql.ErrNoRows {
		return domain.Order{}, domain.NotFound("order item", itemID)
	}
	if err != nil {
		return domain.Order{}, domain.Persistence("resolve item", err)
	}
	return r.GetOrder(ctx, orderID)
}

func (r pgReader) GetActiveOrderByTable(ctx context.Context, tableID string) (domain.Order, bool, error) {
	o, err := r.scanOrder(ctx, r.q.QueryRowContext(ctx,
		`SELECT `+orderCols+` FROM orders
		 WHERE table_id=$1 AND `+activeOrderFilter+`
		 ORDER BY created_at DESC LIMIT 1`, tableID))
	if err == sql.ErrNoRows {
		return domain.Order{}, false, nil
	}
	if err != nil {
		return domain.Order{}, false, domain.Persistence("active order by table", err)
	}
	return o, true, nil
}

func (r pgReader) listOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.Persistence("list orders", err)
	}
	// Collect the bare rows first; loadItems reuses the same connection and
	// cannot run while rows is open.
	type bare struct {
		o       domain.Order
		tableID sql.NullString
		done    sql.NullTime
	}
	var bares []bare
	for rows.Next() {
		var b bare
		err := rows.Scan(&b.o.ID, &b.o.OrderNumber, &b.tableID, &b.o.Type, &b.o.Status,
			&b.o.Subtotal, &b.o.Tax, &b.o.Total, &b.o.CancelReason, &b.o.Version,
			&b.o.CreatedAt, &b.done)
		if err != nil {
			rows.Close()
			return nil, domain.Persistence("scan order", err)
		}
		bares = append(bares, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, domain.Persistence("list orders", err)
	}
	rows.Close()

	var out []domain.Order
	for _, b := range bares {
		o := b.o
		if b.tableID.Valid {
			o.TableID = &b.tableID.String
		}
		if b.done.Valid {
			v := b.done.Time
			o.CompletedAt = &v
		}
		o.Items, err = r.loadItems(ctx, o.ID)
		if err != nil {
			return nil, domain.Persistence("load items", err)
		}
		out = append(out, o)
	}
	return out, nil
}

func (r pgReader) ListActiveOrders(ctx context.Context, floorPlanID string) ([]domain.Order, error) {
	if floorPlanID == "" {
		return r.listOrders(ctx,
			`SELECT `+orderCols+` FROM orders WHERE `+activeOrderFilter+` ORDER BY order_number`)
	}
	return r.listOrders(ctx,
		`SELECT `+orderCols+` FROM orders
		 WHERE `+activeOrderFilter+`
		   AND table_id IN (SELECT id FROM tables WHERE floor_plan_id=$1)
		 ORDER BY order_number`, floorPlanID)
}

func (r pgReader) ListCompletedOrders(ctx context.Context, floorPlanID string, since time.Time) ([]domain.Order, error) {
	if floorPlanID == "" {
		return r.listOrders(ctx,
			`SELECT `+orderCols+` FROM orders
			 WHERE status='COMPLETED' AND completed_at>=$1 ORDER BY completed_at`, since)
	}
	return r.listOrders(ctx,
		`SELECT `+orderCols+` FROM orders
		 WHERE status='COMPLETED' AND completed_at>=$2
		   AND table_id IN (SELECT id FROM tables WHERE floor_plan_id=$1)
		 ORDER BY completed_at`, floorPlanID, since)
}

func (r pgReader) scanGroup(row interface{ Scan(...any) error }) (domain.TableGroup, bool, error) {
	var g domain.TableGroup
	var members []byte
	err := row.Scan(&g.ID, &g.FloorPlanID, &g.OrderID, &g.AnchorID, &members, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.TableGroup{}, false, nil
	}
	if err != nil {
		return domain.TableGroup{}, false, domain.Persistence("get group", err)
	}
	if err := json.Unmarshal(members, &g.MemberIDs); err != nil {
		return domain.TableGroup{}, false, domain.Persistence("decode group members", err)
	}
	return g, true, nil
}

func (r pgReader) GetGroupByTable(ctx context.Context, tableID string) (domain.TableGroup, bool, error) {
	return r.scanGroup(r.q.QueryRowContext(ctx,
		`SELECT id, floor_plan_id, order_id, anchor_id, member_ids, created_at
		 FROM table_groups WHERE member_ids @> to_jsonb($1::text)`, tableID))
}

func (r pgReader) GetGroupByOrder(ctx context.Context, orderID string) (domain.TableGroup, bool, error) {
	return r.scanGroup(r.q.QueryRowContext(ctx,
		`SELECT id, floor_plan_id, order_id, anchor_id, member_ids, created_at
		 FROM table_groups WHERE order_id=$1`, orderID))
}

func (r pgReader) GetMenuItem(ctx context.Context, id string) (domain.MenuItem, error) {
	var m domain.MenuItem
	err := r.q.QueryRowContext(ctx,
		`SELECT id, name, price, is_available, is_86d FROM menu_items WHERE id=$1`, id).
		Scan(&m.ID, &m.Name, &m.Price, &m.IsAvailable, &m.Is86d)
	if err == sql.ErrNoRows {
		return domain.MenuItem{}, domain.NotFound("menu item", id)
	}
	if err != nil {
		return domain.MenuItem{}, domain.Persistence("get menu item", err)
	}
	return m, nil
}

func (r pgReader) GetFloorPlan(ctx context.Context, id string) (domain.FloorPlan, error) {
	var p domain.FloorPlan
	err := r.q.QueryRowContext(ctx,
		`SELECT id, name, width, height FROM floor_plans WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.Width, &p.Height)
	if err == sql.ErrNoRows {
		return domain.FloorPlan{}, domain.NotFound("floor plan", id)
	}
	if err != nil {
		return domain.FloorPlan{}, domain.Persistence("get floor plan", err)
	}
	return p, nil
}

func (t *pgTx) InsertTable(ctx context.Context, tbl domain.Table) error {
	var taken bool
	err := t.tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM tables WHERE floor_plan_id=$1 AND number=$2)`,
		tbl.FloorPlanID, tbl.Number).Scan(&taken)
	if err != nil {
		return domain.Persistence("insert table", err)
	}
	if taken {
		return domain.Conflictf("table number %d already exists on floor plan %s", tbl.Number, tbl.FloorPlanID)
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO tables (`+tableCols+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,1,now(),now())`,
		tbl.ID, tbl.FloorPlanID, tbl.Number, tbl.Capacity, tbl.MinCapacity,
		tbl.X, tbl.Y, tbl.Width, tbl.Height, string(tbl.Shape), tbl.Section,
		string(tbl.Status), nullStr(tbl.CurrentOrder))
	if err != nil {
		return domain.Persistence("insert table", err)
	}
	return nil
}

func (t *pgTx) UpdateTable(ctx context.Context, tbl domain.Table) error {
	var dup bool
	err := t.tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM tables WHERE floor_plan_id=$1 AND number=$2 AND id<>$3)`,
		tbl.FloorPlanID, tbl.Number, tbl.ID).Scan(&dup)
	if err != nil {
		return domain.Persistence("update table", err)
	}
	if dup {
		return domain.Conflictf("table number %d already exists on floor plan %s", tbl.Number, tbl.FloorPlanID)
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE tables SET number=$3, capacity=$4, min_capacity=$5,
		   x=$6, y=$7, width=$8, height=$9, shape=$10, section=$11,
		   status=$12, current_order=$13, version=version+1, updated_at=now()
		 WHERE id=$1 AND version=$2`,
		tbl.ID, tbl.Version, tbl.Number, tbl.Capacity, tbl.MinCapacity,
		tbl.X, tbl.Y, tbl.Width, tbl.Height, string(tbl.Shape), tbl.Section,
		string(tbl.Status), nullStr(tbl.CurrentOrder))
	if err != nil {
		return domain.Persistence("update table", err)
	}
	return t.casOutcome(ctx, res, "tables", "table", tbl.ID)
}

func (t *pgTx) SetTablePosition(ctx context.Context, id string, x, y float64) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE tables SET x=$2, y=$3, version=version+1, updated_at=now() WHERE id=$1`,
		id, x, y)
	if err != nil {
		return domain.Persistence("set table position", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("table", id)
	}
	return nil
}

func (t *pgTx) DeleteTable(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM tables WHERE id=$1`, id)
	if err != nil {
		return domain.Persistence("delete table", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("table", id)
	}
	return nil
}

func (t *pgTx) NextOrderNumber(ctx context.Context) (int64, error) {
	var n int64
	if err := t.tx.QueryRowContext(ctx, `SELECT nextval('order_number_seq')`).Scan(&n); err != nil {
		return 0, domain.Persistence("next order number", err)
	}
	return n, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o domain.Order) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO orders (`+orderCols+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,1,now(),$10)`,
		o.ID, o.OrderNumber, nullStr(o.TableID), string(o.Type), string(o.Status),
		o.Subtotal, o.Tax, o.Total, o.CancelReason, nullTime(o.CompletedAt))
	if err != nil {
		return domain.Persistence("insert order", err)
	}
	return t.insertItems(ctx, o.ID, o.Items)
}

func (t *pgTx) UpdateOrder(ctx context.Context, o domain.Order) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE orders SET table_id=$3, type=$4, status=$5,
		   subtotal=$6, tax=$7, total=$8, cancel_reason=$9, completed_at=$10,
		   version=version+1
		 WHERE id=$1 AND version=$2`,
		o.ID, o.Version, nullStr(o.TableID), string(o.Type), string(o.Status),
		o.Subtotal, o.Tax, o.Total, o.CancelReason, nullTime(o.CompletedAt))
	if err != nil {
		return domain.Persistence("update order", err)
	}
	if err := t.casOutcome(ctx, res, "orders", "order", o.ID); err != nil {
		return err
	}
	// Items are rewritten wholesale; the order owns them and the lists stay
	// small enough that diffing is not worth the code.
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id=$1`, o.ID); err != nil {
		return domain.Persistence("update order items", err)
	}
	return t.insertItems(ctx, o.ID, o.Items)
}

func (t *pgTx) insertItems(ctx context.Context, orderID string, items []domain.OrderItem) error {
	for i, it := range items {
		mods, err := json.Marshal(it.Modifiers)
		if err != nil {
			return domain.Persistence("encode modifiers", err)
		}
		_, err = t.tx.ExecContext(ctx,
			`INSERT INTO order_items (`+itemCols+`, position)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
			it.ID, orderID, it.MenuItemID, it.Name, it.Quantity, it.UnitPrice,
			it.Total, it.SeatNumber, string(it.Status), string(it.Course),
			it.SpecialInstructions, mods, it.OriginTableID,
			nullTime(it.SentToKitchenAt), nullTime(it.CompletedAt), i)
		if err != nil {
			return domain.Persistence("insert order item", err)
		}
	}
	return nil
}

func (t *pgTx) InsertGroup(ctx context.Context, g domain.TableGroup) error {
	members, err := json.Marshal(g.MemberIDs)
	if err != nil {
		return domain.Persistence("encode group members", err)
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO table_groups (id, floor_plan_id, order_id, anchor_id, member_ids, created_at)
		 VALUES ($1,$2,$3,$4,$5,now())`,
		g.ID, g.FloorPlanID, g.OrderID, g.AnchorID, members)
	if err != nil {
		return domain.Persistence("insert group", err)
	}
	return nil
}

func (t *pgTx) DeleteGroup(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM table_groups WHERE id=$1`, id)
	if err != nil {
		return domain.Persistence("delete group", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("table group", id)
	}
	return nil
}

func (t *pgTx) PutMenuItem(ctx context.Context, m domain.MenuItem) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO menu_items (id, name, price, is_available, is_86d)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (id) DO UPDATE SET
		   name=EXCLUDED.name, price=EXCLUDED.price,
		   is_available=EXCLUDED.is_available, is_86d=EXCLUDED.is_86d`,
		m.ID, m.Name, m.Price, m.IsAvailable, m.Is86d)
	if err != nil {
		return domain.Persistence("put menu item", err)
	}
	return nil
}

func (t *pgTx) PutFloorPlan(ctx context.Context, p domain.FloorPlan) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO floor_plans (id, name, width, height)
		 VALUES ($1,$2,$3,$4)
		 ON CONFLICT (id) DO UPDATE SET
		   name=EXCLUDED.name, width=EXCLUDED.width, height=EXCLUDED.height`,
		p.ID, p.Name, p.Width, p.Height)
	if err != nil {
		return domain.Persistence("put floor plan", err)
	}
	return nil
}

// casOutcome tells a stale version apart from a missing row after a guarded
// UPDATE touched nothing.
func (t *pgTx) casOutcome(ctx context.Context, res sql.Result, table, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Persistence("update "+entity, err)
	}
	if n > 0 {
		return nil
	}
	var exists bool
	err = t.tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id=$1)`, id).Scan(&exists)
	if err != nil {
		return domain.Persistence("update "+entity, err)
	}
	if !exists {
		return domain.NotFound(entity, id)
	}
	return domain.Conflictf("%s %s was modified concurrently", entity, id)
}

func nullStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
