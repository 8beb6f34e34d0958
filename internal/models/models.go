package models

import "time"

// Product represents a product in the catalog. Price and Stock are the
// authoritative values; client-echoed prices are never trusted.
type Product struct {
	ID        int64     `db:"id" json:"id"`
	SKU       string    `db:"sku" json:"sku"`
	Name      string    `db:"name" json:"name"`
	Price     int64     `db:"price" json:"price"`
	Stock     int       `db:"stock" json:"stock"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Variant is a purchasable sub-configuration of a product with its own
// price and stock.
type Variant struct {
	ID        int64  `db:"id" json:"id"`
	ProductID int64  `db:"product_id" json:"product_id"`
	Name      string `db:"name" json:"name"`
	Price     int64  `db:"price" json:"price"`
	Stock     int    `db:"stock" json:"stock"`
}

// Division, District and Upazila are read-only geography reference rows.
type Division struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

type District struct {
	ID         int64  `db:"id" json:"id"`
	DivisionID int64  `db:"division_id" json:"division_id"`
	Name       string `db:"name" json:"name"`
}

type Upazila struct {
	ID         int64  `db:"id" json:"id"`
	DistrictID int64  `db:"district_id" json:"district_id"`
	Name       string `db:"name" json:"name"`
	ZoneID     *int64 `db:"zone_id" json:"zone_id,omitempty"`
}

// DeliveryZone is a geographic shipping tier. Fast marks the city-core
// zone eligible for free delivery above the configured threshold.
type DeliveryZone struct {
	ID         int64  `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	BaseCharge int64  `db:"base_charge" json:"base_charge"`
	PerKg      int64  `db:"per_kg" json:"per_kg"`
	EstDays    int    `db:"est_days" json:"est_days"`
	Fast       bool   `db:"fast" json:"fast"`
}

// CartLine is a client-held (product, optional variant, quantity) tuple.
type CartLine struct {
	ProductID int64  `json:"product_id" binding:"required"`
	VariantID *int64 `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// CartItem is a server-side cart row for an authenticated user.
type CartItem struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	VariantID *int64    `db:"variant_id" json:"variant_id,omitempty"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Order is the durable record created once per successful submission.
// Shipping fields are snapshots: later profile or geography edits never
// alter a placed order.
type Order struct {
	ID             int64     `db:"id" json:"id"`
	OrderNumber    string    `db:"order_number" json:"order_number"`
	UserID         *int64    `db:"user_id" json:"user_id,omitempty"`
	GuestEmail     string    `db:"guest_email" json:"guest_email,omitempty"`
	GuestPhone     string    `db:"guest_phone" json:"guest_phone,omitempty"`
	ShipName       string    `db:"ship_name" json:"ship_name"`
	ShipPhone      string    `db:"ship_phone" json:"ship_phone"`
	ShipDivision   string    `db:"ship_division" json:"ship_division"`
	ShipDistrict   string    `db:"ship_district" json:"ship_district"`
	ShipUpazila    string    `db:"ship_upazila" json:"ship_upazila"`
	ShipStreet     string    `db:"ship_street" json:"ship_street"`
	ShipPostalCode string    `db:"ship_postal_code" json:"ship_postal_code,omitempty"`
	DeliveryZoneID *int64    `db:"delivery_zone_id" json:"delivery_zone_id,omitempty"`
	Subtotal       int64     `db:"subtotal" json:"subtotal"`
	DeliveryCharge int64     `db:"delivery_charge" json:"delivery_charge"`
	Discount       int64     `db:"discount" json:"discount"`
	Total          int64     `db:"total" json:"total"`
	PaymentMethod  string    `db:"payment_method" json:"payment_method"`
	PaymentStatus  string    `db:"payment_status" json:"payment_status"`
	Status         string    `db:"status" json:"status"`
	Notes          string    `db:"notes" json:"notes,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// OrderItem is the frozen snapshot of a purchased line. Name and UnitPrice
// are resolved server-side at order time and never change afterwards.
type OrderItem struct {
	ID        int64  `db:"id" json:"id"`
	OrderID   int64  `db:"order_id" json:"order_id"`
	ProductID int64  `db:"product_id" json:"product_id"`
	VariantID *int64 `db:"variant_id" json:"variant_id,omitempty"`
	Name      string `db:"name" json:"name"`
	UnitPrice int64  `db:"unit_price" json:"unit_price"`
	Quantity  int    `db:"quantity" json:"quantity"`
}

// Order statuses
const (
	OrderStatusPending        = "pending"
	OrderStatusConfirmed      = "confirmed"
	OrderStatusProcessing     = "processing"
	OrderStatusShipped        = "shipped"
	OrderStatusOutForDelivery = "out_for_delivery"
	OrderStatusDelivered      = "delivered"
	OrderStatusCancelled      = "cancelled"
	OrderStatusReturned       = "returned"
)

// Payment statuses
const (
	PaymentStatusPending  = "pending"
	PaymentStatusUnpaid   = "unpaid"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// Payment methods
const (
	PaymentMethodCOD   = "cod"
	PaymentMethodBkash = "bkash"
	PaymentMethodNagad = "nagad"
	PaymentMethodCard  = "card"
)

var orderStatusNext = map[string]string{
	OrderStatusPending:        OrderStatusConfirmed,
	OrderStatusConfirmed:      OrderStatusProcessing,
	OrderStatusProcessing:     OrderStatusShipped,
	OrderStatusShipped:        OrderStatusOutForDelivery,
	OrderStatusOutForDelivery: OrderStatusDelivered,
}

// IsTerminalOrderStatus reports whether no further transition is allowed.
func IsTerminalOrderStatus(status string) bool {
	switch status {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturned:
		return true
	}
	return false
}

// CanTransitionOrderStatus encodes the order lifecycle: one linear forward
// chain, with cancelled/returned reachable from any pre-delivery state.
func CanTransitionOrderStatus(from, to string) bool {
	if IsTerminalOrderStatus(from) {
		return false
	}
	if to == OrderStatusCancelled || to == OrderStatusReturned {
		return true
	}
	return orderStatusNext[from] == to
}

// IsValidPaymentMethod reports whether a submission names a known method.
func IsValidPaymentMethod(method string) bool {
	switch method {
	case PaymentMethodCOD, PaymentMethodBkash, PaymentMethodNagad, PaymentMethodCard:
		return true
	}
	return false
}

// InitialPaymentStatus seeds the settlement lifecycle: COD starts pending
// (collected on delivery), everything else starts unpaid until an external
// processor captures it.
func InitialPaymentStatus(method string) string {
	if method == PaymentMethodCOD {
		return PaymentStatusPending
	}
	return PaymentStatusUnpaid
}

// ProcessedEvent for consumer-side event dedup
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
