package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderStore is the persistence surface the pipeline writes through.
type OrderStore interface {
	InsertOrder(ctx context.Context, order *models.Order) error
	InsertOrderItem(ctx context.Context, item *models.OrderItem) error
	DecrementProductStock(ctx context.Context, productID int64, quantity int) error
	DecrementVariantStock(ctx context.Context, variantID int64, quantity int) error
	RestoreProductStock(ctx context.Context, productID int64, quantity int) error
	RestoreVariantStock(ctx context.Context, variantID int64, quantity int) error
	DeleteCartItems(ctx context.Context, userID int64) error
	OrderByID(ctx context.Context, id int64) (*models.Order, error)
	OrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	OrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
}

// Geography resolves shipping snapshot names and delivery zones.
type Geography interface {
	ShippingNames(ctx context.Context, divisionID, districtID, upazilaID int64) ShippingNames
	ZoneByUpazila(ctx context.Context, upazilaID int64) (*models.DeliveryZone, error)
}

// StockMirror keeps cached stock counters in step with the store. Mirror
// failures are logged, never surfaced.
type StockMirror interface {
	DecrementProductStock(ctx context.Context, productID int64, quantity int) (int, error)
	DecrementVariantStock(ctx context.Context, variantID int64, quantity int) (int, error)
}

// EventPublisher emits order lifecycle events.
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
}

// AddressInput is the shipping address collected by the checkout wizard.
// A zero id means unset.
type AddressInput struct {
	FullName      string `json:"full_name"`
	Phone         string `json:"phone"`
	DivisionID    int64  `json:"division_id,omitempty"`
	DistrictID    int64  `json:"district_id,omitempty"`
	UpazilaID     int64  `json:"upazila_id,omitempty"`
	StreetAddress string `json:"street_address"`
	PostalCode    string `json:"postal_code,omitempty"`
}

// MissingFields lists the required address fields that are still unset.
func (a AddressInput) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(a.FullName) == "" {
		missing = append(missing, "full_name")
	}
	if strings.TrimSpace(a.Phone) == "" {
		missing = append(missing, "phone")
	}
	if a.DivisionID == 0 {
		missing = append(missing, "division_id")
	}
	if a.DistrictID == 0 {
		missing = append(missing, "district_id")
	}
	if strings.TrimSpace(a.StreetAddress) == "" {
		missing = append(missing, "street_address")
	}
	return missing
}

// PlaceOrderRequest is the single submission issued from the review step.
// DeliveryCharge is the client's advisory number; the server recomputes it
// from zone and subtotal and only logs disagreement.
type PlaceOrderRequest struct {
	Items          []models.CartLine `json:"items"`
	Address        AddressInput      `json:"address"`
	PaymentMethod  string            `json:"payment_method"`
	DeliveryCharge int64             `json:"delivery_charge,omitempty"`
	DeliveryZoneID *int64            `json:"delivery_zone_id,omitempty"`
	Notes          string            `json:"notes,omitempty"`
	GuestEmail     string            `json:"guest_email,omitempty"`
	GuestPhone     string            `json:"guest_phone,omitempty"`
	UserID         *int64            `json:"-"`
}

// PlaceOrderResponse identifies the durable order record.
type PlaceOrderResponse struct {
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
}

// OrderService runs the order persistence pipeline.
type OrderService struct {
	store     OrderStore
	geo       Geography
	pricing   *PricingValidator
	fees      FeeCalculator
	mirror    StockMirror
	publisher EventPublisher
	logger    *zap.Logger
}

// NewOrderService creates the order pipeline. mirror and publisher may be nil.
func NewOrderService(
	orderStore OrderStore,
	geo Geography,
	pricing *PricingValidator,
	fees FeeCalculator,
	mirror StockMirror,
	publisher EventPublisher,
) *OrderService {
	return &OrderService{
		store:     orderStore,
		geo:       geo,
		pricing:   pricing,
		fees:      fees,
		mirror:    mirror,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// PlaceOrder turns a client-supplied cart into a durable, correctly priced,
// stock-safe order record.
//
// Failure policy is deliberately asymmetric: everything up to and including
// the order insert is fatal and leaves nothing behind; once the order row
// exists, item inserts, stock decrements and cart teardown are logged but
// never fail the request. A customer should not lose a placed order because
// of an items-table failure.
func (s *OrderService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.OrderPlacementLatency.Observe(time.Since(start).Seconds())
	}()

	// Step 1: structural validation.
	if err := s.validateStructure(req); err != nil {
		util.OrdersRejectedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	// Step 2: re-price and stock-check every line against the catalog.
	priced, subtotal, err := s.pricing.Validate(ctx, req.Items)
	if err != nil {
		util.OrdersRejectedTotal.WithLabelValues("catalog").Inc()
		return nil, err
	}

	// Step 3: fee computation. The delivery charge is recomputed here from
	// the resolved zone rather than taken from the request.
	zone := s.resolveZone(ctx, req.Address.UpazilaID)
	deliveryCharge := s.fees.DeliveryCharge(zone, subtotal)
	if req.DeliveryCharge != deliveryCharge {
		s.logger.Warn("Client delivery charge disagrees with server",
			zap.Int64("client", req.DeliveryCharge),
			zap.Int64("server", deliveryCharge))
	}
	surcharge := s.fees.PaymentSurcharge(req.PaymentMethod)
	total := s.fees.Total(subtotal, deliveryCharge, surcharge, 0)

	// Step 4: geography names for the immutable shipping snapshot.
	names := s.geo.ShippingNames(ctx, req.Address.DivisionID, req.Address.DistrictID, req.Address.UpazilaID)

	// Step 5: order insert. Fatal on failure.
	order := &models.Order{
		OrderNumber:    NewOrderNumber(time.Now()),
		UserID:         req.UserID,
		GuestEmail:     req.GuestEmail,
		GuestPhone:     req.GuestPhone,
		ShipName:       req.Address.FullName,
		ShipPhone:      req.Address.Phone,
		ShipDivision:   names.Division,
		ShipDistrict:   names.District,
		ShipUpazila:    names.Upazila,
		ShipStreet:     req.Address.StreetAddress,
		ShipPostalCode: req.Address.PostalCode,
		Subtotal:       subtotal,
		DeliveryCharge: deliveryCharge,
		Discount:       0,
		Total:          total,
		PaymentMethod:  req.PaymentMethod,
		PaymentStatus:  models.InitialPaymentStatus(req.PaymentMethod),
		Status:         models.OrderStatusPending,
		Notes:          req.Notes,
	}
	if zone != nil {
		zoneID := zone.ID
		order.DeliveryZoneID = &zoneID
	}

	if err := s.insertOrder(ctx, order); err != nil {
		util.OrdersRejectedTotal.WithLabelValues("persistence").Inc()
		s.logger.Error("Order insert failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrOrderPersist, err)
	}

	util.OrdersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("total", order.Total))

	// Step 6: item inserts. Non-fatal: the order exists, keep it.
	eventItems := make([]models.OrderLineData, 0, len(priced))
	for _, line := range priced {
		item := &models.OrderItem{
			OrderID:   order.ID,
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		}
		if err := s.store.InsertOrderItem(ctx, item); err != nil {
			util.OrderItemPersistFailures.Inc()
			s.logger.Error("Order item insert failed, order kept",
				zap.Int64("order_id", order.ID),
				zap.Int64("product_id", line.ProductID),
				zap.Error(err))
			continue
		}
		eventItems = append(eventItems, models.OrderLineData{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}

	// Step 7: stock decrement, fire and forget relative to the response.
	s.decrementStock(ctx, order.ID, priced)

	// Step 8: cart teardown for authenticated identities.
	if req.UserID != nil {
		if err := s.store.DeleteCartItems(ctx, *req.UserID); err != nil {
			util.CartTeardownFailures.Inc()
			s.logger.Error("Cart teardown failed",
				zap.Int64("order_id", order.ID),
				zap.Int64("user_id", *req.UserID),
				zap.Error(err))
		}
	}

	if s.publisher != nil {
		event := &models.OrderPlacedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderPlaced,
				Timestamp: time.Now(),
			},
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			UserID:      order.UserID,
			Total:       order.Total,
			Items:       eventItems,
		}
		if err := s.publisher.PublishOrderPlaced(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
		}
	}

	return &PlaceOrderResponse{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
	}, nil
}

func (s *OrderService) validateStructure(req *PlaceOrderRequest) error {
	if len(req.Items) == 0 {
		return newValidationError("cart is empty")
	}
	for _, line := range req.Items {
		if line.Quantity < 1 {
			return newValidationError("quantity for product %d must be at least 1", line.ProductID)
		}
	}
	if missing := req.Address.MissingFields(); len(missing) > 0 {
		return newValidationError("incomplete address: %s", strings.Join(missing, ", "))
	}
	if req.PaymentMethod == "" {
		return newValidationError("payment method is required")
	}
	if !models.IsValidPaymentMethod(req.PaymentMethod) {
		return newValidationError("unknown payment method %q", req.PaymentMethod)
	}
	return nil
}

// resolveZone returns nil when the upazila is unset or the lookup fails;
// a missing zone only means delivery charge falls back to zero.
func (s *OrderService) resolveZone(ctx context.Context, upazilaID int64) *models.DeliveryZone {
	if upazilaID == 0 {
		return nil
	}
	zone, err := s.geo.ZoneByUpazila(ctx, upazilaID)
	if err != nil {
		util.ZoneLookupFailures.Inc()
		s.logger.Warn("Delivery zone lookup failed",
			zap.Int64("upazila_id", upazilaID), zap.Error(err))
		return nil
	}
	return zone
}

// insertOrder retries once with a fresh order number on a unique collision.
func (s *OrderService) insertOrder(ctx context.Context, order *models.Order) error {
	err := s.store.InsertOrder(ctx, order)
	if err == nil || !store.IsUniqueViolation(err) {
		return err
	}
	order.OrderNumber = NewOrderNumber(time.Now())
	return s.store.InsertOrder(ctx, order)
}

// decrementStock decrements variant stock where applicable and always the
// parent product, clamped at zero by the store. Failures are logged only.
func (s *OrderService) decrementStock(ctx context.Context, orderID int64, priced []PricedLine) {
	for _, line := range priced {
		if line.VariantID != nil {
			if err := s.store.DecrementVariantStock(ctx, *line.VariantID, line.Quantity); err != nil {
				util.StockDecrementFailures.Inc()
				s.logger.Error("Variant stock decrement failed",
					zap.Int64("order_id", orderID),
					zap.Int64("variant_id", *line.VariantID),
					zap.Error(err))
			}
			if s.mirror != nil {
				if _, err := s.mirror.DecrementVariantStock(ctx, *line.VariantID, line.Quantity); err != nil {
					s.logger.Warn("Variant stock mirror decrement failed",
						zap.Int64("variant_id", *line.VariantID), zap.Error(err))
				}
			}
		}
		if err := s.store.DecrementProductStock(ctx, line.ProductID, line.Quantity); err != nil {
			util.StockDecrementFailures.Inc()
			s.logger.Error("Product stock decrement failed",
				zap.Int64("order_id", orderID),
				zap.Int64("product_id", line.ProductID),
				zap.Error(err))
		}
		if s.mirror != nil {
			if _, err := s.mirror.DecrementProductStock(ctx, line.ProductID, line.Quantity); err != nil {
				s.logger.Warn("Product stock mirror decrement failed",
					zap.Int64("product_id", line.ProductID), zap.Error(err))
			}
		}
	}
}

// CancelOrder applies an administrative cancellation. Stock held by the
// order is returned; like the decrement on placement, restore failures are
// logged, never surfaced, and the cancellation itself stands.
func (s *OrderService) CancelOrder(ctx context.Context, orderID int64, reason string) (*models.Order, error) {
	order, err := s.store.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransitionOrderStatus(order.Status, models.OrderStatusCancelled) {
		return nil, newGuardError("order %s cannot be cancelled from status %s",
			order.OrderNumber, order.Status)
	}

	if err := s.store.UpdateOrderStatus(ctx, orderID, models.OrderStatusCancelled); err != nil {
		return nil, fmt.Errorf("cancel order %d: %w", orderID, err)
	}
	order.Status = models.OrderStatusCancelled

	items, err := s.store.OrderItemsByOrderID(ctx, orderID)
	if err != nil {
		s.logger.Error("Failed to load items for stock restore",
			zap.Int64("order_id", orderID), zap.Error(err))
		items = nil
	}

	eventItems := make([]models.OrderLineData, 0, len(items))
	for _, item := range items {
		if item.VariantID != nil {
			if err := s.store.RestoreVariantStock(ctx, *item.VariantID, item.Quantity); err != nil {
				s.logger.Error("Variant stock restore failed",
					zap.Int64("order_id", orderID),
					zap.Int64("variant_id", *item.VariantID),
					zap.Error(err))
			}
		}
		if err := s.store.RestoreProductStock(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("Product stock restore failed",
				zap.Int64("order_id", orderID),
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
		}
		eventItems = append(eventItems, models.OrderLineData{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled",
		zap.Int64("order_id", orderID),
		zap.String("order_number", order.OrderNumber),
		zap.String("reason", reason))

	if s.publisher != nil {
		event := &models.OrderCancelledEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderCancelled,
				Timestamp: time.Now(),
			},
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Reason:      reason,
			Items:       eventItems,
		}
		if err := s.publisher.PublishOrderCancelled(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
		}
	}

	return order, nil
}

// OrdersForUser lists an authenticated user's order history, newest first.
func (s *OrderService) OrdersForUser(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.store.OrdersByUserID(ctx, userID)
}

// GetOrder retrieves an order with its items.
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error) {
	order, err := s.store.OrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.store.OrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, items, nil
}

// NewOrderNumber builds a human-readable unique order number,
// ORD-YYYYMMDD- plus six hex characters.
func NewOrderNumber(now time.Time) string {
	id := uuid.New()
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"),
		strings.ToUpper(hex.EncodeToString(id[:3])))
}
