package domain

// EventKind names one of the real-time events emitted to display clients.
type EventKind string

const (
	EventOrderNew      EventKind = "order:new"
	EventOrderUpdated  EventKind = "order:updated"
	EventItemStatus    EventKind = "item:status-changed"
	EventTableStatus   EventKind = "table:status-changed"
	EventTablePosition EventKind = "table:position-changed"
)

// ChannelKitchen is the logical channel kitchen displays subscribe to.
// Floor displays subscribe to their floor plan id instead.
const ChannelKitchen = "kitchen"

// Event is the closed set of broadcast payloads, one variant per event kind.
// Each carries the full current state of the affected entity. Sequence
// numbers are monotonic per EntityKey; subscribers deduplicate on
// (EntityKey, Sequence).
type Event interface {
	Kind() EventKind
	EntityKey() string
	Channels() []string
	Sequence() uint64
	// WithSequence returns a copy of the event stamped with seq. Only the
	// broadcaster assigns sequence numbers.
	WithSequence(seq uint64) Event
}

// OrderNew announces a newly created order.
type OrderNew struct {
	Seq         uint64 `json:"seq"`
	FloorPlanID string `json:"floor_plan_id,omitempty"`
	Order       Order  `json:"order"`
}

func (e OrderNew) Kind() EventKind { return EventOrderNew }
func (e OrderNew) EntityKey() string { return "order:" + e.Order.ID }
func (e OrderNew) Channels() []string { return orderChannels(e.FloorPlanID) }
func (e OrderNew) Sequence() uint64 { return e.Seq }
func (e OrderNew) WithSequence(seq uint64) Event { e.Seq = seq; return e }

// OrderUpdated announces any accepted change to an existing order: items
// added, status advanced, totals recomputed, completion, cancellation.
type OrderUpdated struct {
	Seq         uint64 `json:"seq"`
	FloorPlanID string `json:"floor_plan_id,omitempty"`
	Order       Order  `json:"order"`
}

func (e OrderUpdated) Kind() EventKind { return EventOrderUpdated }
func (e OrderUpdated) EntityKey() string { return "order:" + e.Order.ID }
func (e OrderUpdated) Channels() []string { return orderChannels(e.FloorPlanID) }
func (e OrderUpdated) Sequence() uint64 { return e.Seq }
func (e OrderUpdated) WithSequence(seq uint64) Event { e.Seq = seq; return e }

// ItemStatusChanged announces one item moving through the kitchen pipeline.
type ItemStatusChanged struct {
	Seq         uint64    `json:"seq"`
	FloorPlanID string    `json:"floor_plan_id,omitempty"`
	OrderID     string    `json:"order_id"`
	Item        OrderItem `json:"item"`
}

func (e ItemStatusChanged) Kind() EventKind { return EventItemStatus }
func (e ItemStatusChanged) EntityKey() string { return "item:" + e.Item.ID }
func (e ItemStatusChanged) Channels() []string { return orderChannels(e.FloorPlanID) }
func (e ItemStatusChanged) Sequence() uint64 { return e.Seq }
func (e ItemStatusChanged) WithSequence(seq uint64) Event { e.Seq = seq; return e }

// TableStatusChanged announces a table lifecycle change, including creation.
type TableStatusChanged struct {
	Seq   uint64 `json:"seq"`
	Table Table  `json:"table"`
}

func (e TableStatusChanged) Kind() EventKind { return EventTableStatus }
func (e TableStatusChanged) EntityKey() string { return "table:" + e.Table.ID }
func (e TableStatusChanged) Channels() []string { return []string{e.Table.FloorPlanID} }
func (e TableStatusChanged) Sequence() uint64 { return e.Seq }
func (e TableStatusChanged) WithSequence(seq uint64) Event { e.Seq = seq; return e }

// TablePositionChanged announces a geometry change from a drag or bulk
// layout edit.
type TablePositionChanged struct {
	Seq   uint64 `json:"seq"`
	Table Table  `json:"table"`
}

func (e TablePositionChanged) Kind() EventKind { return EventTablePosition }
func (e TablePositionChanged) EntityKey() string { return "table:" + e.Table.ID }
func (e TablePositionChanged) Channels() []string { return []string{e.Table.FloorPlanID} }
func (e TablePositionChanged) Sequence() uint64 { return e.Seq }
func (e TablePositionChanged) WithSequence(seq uint64) Event { e.Seq = seq; return e }

func orderChannels(floorPlanID string) []string {
	if floorPlanID == "" {
		return []string{ChannelKitchen}
	}
	return []string{ChannelKitchen, floorPlanID}
}
