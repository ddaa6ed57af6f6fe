package domain

// TableStatus is the lifecycle state of a table on the floor.
type TableStatus string

const (
	TableAvailable TableStatus = "AVAILABLE"
	TableOccupied  TableStatus = "OCCUPIED"
	TableReserved  TableStatus = "RESERVED"
	TableDirty     TableStatus = "DIRTY"
	TableCleaning  TableStatus = "CLEANING"
)

// TableShape is the rendered outline of a table on the floor plan.
type TableShape string

const (
	ShapeSquare    TableShape = "SQUARE"
	ShapeRectangle TableShape = "RECTANGLE"
	ShapeCircle    TableShape = "CIRCLE"
	ShapeBooth     TableShape = "BOOTH"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderOpen       OrderStatus = "OPEN"
	OrderInProgress OrderStatus = "IN_PROGRESS"
	OrderReady      OrderStatus = "READY"
	OrderCompleted  OrderStatus = "COMPLETED"
	OrderCancelled  OrderStatus = "CANCELLED"
	OrderVoid       OrderStatus = "VOID"
)

// IsTerminal reports whether the order can no longer be mutated.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted || s == OrderCancelled || s == OrderVoid
}

// OrderType distinguishes where an order is consumed.
type OrderType string

const (
	TypeDineIn   OrderType = "DINE_IN"
	TypeTakeout  OrderType = "TAKEOUT"
	TypeDelivery OrderType = "DELIVERY"
	TypeCatering OrderType = "CATERING"
)

// ValidOrderType reports whether t is one of the known order types.
func ValidOrderType(t OrderType) bool {
	switch t {
	case TypeDineIn, TypeTakeout, TypeDelivery, TypeCatering:
		return true
	}
	return false
}

// ItemStatus is the kitchen stage of a single order item.
type ItemStatus string

const (
	ItemPending       ItemStatus = "PENDING"
	ItemSentToKitchen ItemStatus = "SENT_TO_KITCHEN"
	ItemPreparing     ItemStatus = "PREPARING"
	ItemReady         ItemStatus = "READY"
	ItemServed        ItemStatus = "SERVED"
	ItemCancelled     ItemStatus = "CANCELLED"
)

// IsTerminal reports whether the item can no longer change stage.
func (s ItemStatus) IsTerminal() bool {
	return s == ItemServed || s == ItemCancelled
}

// Course sequences kitchen preparation.
type Course string

const (
	CourseAppetizer Course = "APPETIZER"
	CourseSalad     Course = "SALAD"
	CourseSoup      Course = "SOUP"
	CourseEntree    Course = "ENTREE"
	CourseSide      Course = "SIDE"
	CourseDessert   Course = "DESSERT"
	CourseBeverage  Course = "BEVERAGE"
)

// Each state machine below is an explicit transition table consulted in one
// place by the owning manager. Guards that depend on entity data (an occupied
// table needs an order, completion needs served items) live with the manager;
// the tables only answer whether the edge exists.

var tableTransitions = map[TableStatus]map[TableStatus]bool{
	TableAvailable: {TableReserved: true, TableOccupied: true},
	TableReserved:  {TableAvailable: true, TableOccupied: true},
	TableOccupied:  {TableDirty: true},
	TableDirty:     {TableCleaning: true, TableAvailable: true},
	TableCleaning:  {TableAvailable: true},
}

// CanTableTransition reports whether the table status edge exists. A
// same-state write is always permitted (idempotent set).
func CanTableTransition(from, to TableStatus) bool {
	if from == to {
		return true
	}
	return tableTransitions[from][to]
}

var orderTransitions = map[OrderStatus]map[OrderStatus]bool{
	OrderOpen:       {OrderInProgress: true, OrderReady: true, OrderCancelled: true, OrderVoid: true},
	OrderInProgress: {OrderReady: true, OrderCancelled: true, OrderVoid: true},
	OrderReady:      {OrderCompleted: true, OrderCancelled: true, OrderVoid: true},
}

// CanOrderTransition reports whether the order status edge exists. Terminal
// states have no outgoing edges.
func CanOrderTransition(from, to OrderStatus) bool {
	return orderTransitions[from][to]
}

var itemTransitions = map[ItemStatus]map[ItemStatus]bool{
	// SENT_TO_KITCHEN is optional: the kitchen may start on a pending item.
	ItemPending:       {ItemSentToKitchen: true, ItemPreparing: true, ItemCancelled: true},
	ItemSentToKitchen: {ItemPreparing: true, ItemCancelled: true},
	ItemPreparing:     {ItemReady: true, ItemCancelled: true},
	ItemReady:         {ItemServed: true, ItemCancelled: true},
}

// CanItemTransition reports whether the item status edge exists. Movement is
// forward-only; CANCELLED is reachable from every non-terminal state.
func CanItemTransition(from, to ItemStatus) bool {
	return itemTransitions[from][to]
}

// DeriveOrderStatus computes the automatic order status from its items:
// OPEN until any item leaves PENDING, READY once every item is at least
// READY (or cancelled), IN_PROGRESS in between. Completion stays an explicit
// action. Orders with no countable progress stay OPEN.
func DeriveOrderStatus(items []OrderItem) OrderStatus {
	anyStarted := false
	allReady := len(items) > 0
	for _, it := range items {
		switch it.Status {
		case ItemCancelled:
			continue
		case ItemPending:
			allReady = false
		case ItemReady, ItemServed:
			anyStarted = true
		default:
			anyStarted = true
			allReady = false
		}
	}
	switch {
	case anyStarted && allReady:
		return OrderReady
	case anyStarted:
		return OrderInProgress
	default:
		return OrderOpen
	}
}
