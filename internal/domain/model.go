package domain

import (
	"math"
	"time"
)

// Table is one physical table on a floor plan. CurrentOrder is a weak
// reference: the order's lifecycle is owned by the order manager, the table
// only points at it while occupied.
type Table struct {
	ID           string      `json:"id"`
	FloorPlanID  string      `json:"floor_plan_id"`
	Number       int         `json:"number"`
	Capacity     int         `json:"capacity"`
	MinCapacity  int         `json:"min_capacity"`
	X            float64     `json:"x"`
	Y            float64     `json:"y"`
	Width        float64     `json:"width"`
	Height       float64     `json:"height"`
	Shape        TableShape  `json:"shape"`
	Section      string      `json:"section"`
	Status       TableStatus `json:"status"`
	CurrentOrder *string     `json:"current_order,omitempty"`
	Version      int64       `json:"version"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Clone returns a deep copy safe to hand across goroutines.
func (t Table) Clone() Table {
	c := t
	if t.CurrentOrder != nil {
		v := *t.CurrentOrder
		c.CurrentOrder = &v
	}
	return c
}

// Order owns its items; they are created and deleted with it. Subtotal, Tax
// and Total are derived and recomputed with every item mutation, never
// assigned directly.
type Order struct {
	ID           string      `json:"id"`
	OrderNumber  int64       `json:"order_number"`
	TableID      *string     `json:"table_id,omitempty"`
	Type         OrderType   `json:"type"`
	Status       OrderStatus `json:"status"`
	Items        []OrderItem `json:"items"`
	Subtotal     float64     `json:"subtotal"`
	Tax          float64     `json:"tax"`
	Total        float64     `json:"total"`
	CancelReason string      `json:"cancel_reason,omitempty"`
	Version      int64       `json:"version"`
	CreatedAt    time.Time   `json:"created_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
}

func (o Order) Clone() Order {
	c := o
	if o.TableID != nil {
		v := *o.TableID
		c.TableID = &v
	}
	if o.CompletedAt != nil {
		v := *o.CompletedAt
		c.CompletedAt = &v
	}
	c.Items = make([]OrderItem, len(o.Items))
	for i, it := range o.Items {
		c.Items[i] = it.Clone()
	}
	return c
}

// Recalculate rebuilds the derived money fields from the current item list.
// Cancelled items do not count toward the subtotal.
func (o *Order) Recalculate(taxRate float64) {
	sub := 0.0
	for _, it := range o.Items {
		if it.Status == ItemCancelled {
			continue
		}
		sub += it.Total
	}
	o.Subtotal = roundCents(sub)
	o.Tax = roundCents(o.Subtotal * taxRate)
	o.Total = roundCents(o.Subtotal + o.Tax)
}

// Item returns a pointer to the item with the given id, or nil.
func (o *Order) Item(itemID string) *OrderItem {
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			return &o.Items[i]
		}
	}
	return nil
}

// OrderItem is one line on an order ticket. OriginTableID records which table
// the item was ordered for; it is what makes a later table split lossless.
type OrderItem struct {
	ID                  string     `json:"id"`
	OrderID             string     `json:"order_id"`
	MenuItemID          string     `json:"menu_item_id"`
	Name                string     `json:"name"`
	Quantity            int        `json:"quantity"`
	UnitPrice           float64    `json:"unit_price"`
	Total               float64    `json:"total"`
	SeatNumber          int        `json:"seat_number,omitempty"`
	Status              ItemStatus `json:"status"`
	Course              Course     `json:"course"`
	SpecialInstructions string     `json:"special_instructions,omitempty"`
	Modifiers           []Modifier `json:"modifiers,omitempty"`
	OriginTableID       string     `json:"origin_table_id,omitempty"`
	SentToKitchenAt     *time.Time `json:"sent_to_kitchen_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}

func (it OrderItem) Clone() OrderItem {
	c := it
	if it.SentToKitchenAt != nil {
		v := *it.SentToKitchenAt
		c.SentToKitchenAt = &v
	}
	if it.CompletedAt != nil {
		v := *it.CompletedAt
		c.CompletedAt = &v
	}
	c.Modifiers = append([]Modifier(nil), it.Modifiers...)
	return c
}

// ComputeTotal derives the line total from price, quantity and modifiers.
func (it *OrderItem) ComputeTotal() {
	t := it.UnitPrice * float64(it.Quantity)
	for _, m := range it.Modifiers {
		t += m.Price
	}
	it.Total = roundCents(t)
}

// Modifier is a priced addition to an item (extra cheese, side swap).
type Modifier struct {
	ModifierID string  `json:"modifier_id"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
}

// MenuItem is the subset of the menu record the coordinator consults when
// items are added to an order.
type MenuItem struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	IsAvailable bool    `json:"is_available"`
	Is86d       bool    `json:"is_86d"`
}

// FloorPlan carries the geometry bounds position updates are validated
// against.
type FloorPlan struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// TableGroup records a set of combined tables sharing one order, so a later
// split can reconstruct membership. AnchorID is the table the surviving order
// is attached to.
type TableGroup struct {
	ID          string    `json:"id"`
	FloorPlanID string    `json:"floor_plan_id"`
	OrderID     string    `json:"order_id"`
	AnchorID    string    `json:"anchor_id"`
	MemberIDs   []string  `json:"member_ids"`
	CreatedAt   time.Time `json:"created_at"`
}

func (g TableGroup) Clone() TableGroup {
	c := g
	c.MemberIDs = append([]string(nil), g.MemberIDs...)
	return c
}

// HasMember reports whether the table belongs to the group.
func (g TableGroup) HasMember(tableID string) bool {
	for _, id := range g.MemberIDs {
		if id == tableID {
			return true
		}
	}
	return false
}

// Totals is the derived money triple returned by recomputation checks.
type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

// ChannelSnapshot is the full current state handed to a subscriber joining or
// reconnecting to a channel, instead of replaying event history.
type ChannelSnapshot struct {
	Channel string    `json:"channel"`
	Tables  []Table   `json:"tables,omitempty"`
	Orders  []Order   `json:"orders"`
	TakenAt time.Time `json:"taken_at"`
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
