package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Step is a checkout wizard step. The flow is strictly linear:
// address, then payment, then review.
type Step string

const (
	StepAddress Step = "address"
	StepPayment Step = "payment"
	StepReview  Step = "review"
)

var stepIndex = map[Step]int{
	StepAddress: 0,
	StepPayment: 1,
	StepReview:  2,
}

// GuardError rejects a step transition whose guard is not satisfied.
type GuardError struct {
	Msg string
}

func (e *GuardError) Error() string {
	return e.Msg
}

func newGuardError(format string, args ...interface{}) *GuardError {
	return &GuardError{Msg: fmt.Sprintf(format, args...)}
}

// CheckoutSession holds the wizard state between requests. It lives in
// redis under a TTL and is discarded on submit.
type CheckoutSession struct {
	ID             string               `json:"id"`
	UserID         *int64               `json:"user_id,omitempty"`
	Step           Step                 `json:"step"`
	Items          []models.CartLine    `json:"items"`
	Address        AddressInput         `json:"address"`
	PaymentMethod  string               `json:"payment_method,omitempty"`
	Zone           *models.DeliveryZone `json:"zone,omitempty"`
	DeliveryCharge int64                `json:"delivery_charge"`
	Notes          string               `json:"notes,omitempty"`
	GuestEmail     string               `json:"guest_email,omitempty"`
	GuestPhone     string               `json:"guest_phone,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// Quote is the advisory on-screen total. The authoritative total is always
// recomputed server-side on submit.
type Quote struct {
	Subtotal       int64          `json:"subtotal"`
	DeliveryCharge int64          `json:"delivery_charge"`
	Surcharge      int64          `json:"surcharge"`
	Total          int64          `json:"total"`
	ZoneName       string         `json:"zone_name,omitempty"`
	EstDays        int            `json:"est_days,omitempty"`
	ZoneResolved   bool           `json:"zone_resolved"`
	LowStock       []LowStockHint `json:"low_stock,omitempty"`
}

// LowStockHint flags a quoted line whose cached stock counter no longer
// covers the requested quantity. Advisory only: submit re-validates against
// the authoritative store.
type LowStockHint struct {
	ProductID int64  `json:"product_id"`
	VariantID *int64 `json:"variant_id,omitempty"`
	Available int    `json:"available"`
}

type sessionStore interface {
	SaveSession(ctx context.Context, id string, payload []byte, ttl time.Duration) error
	LoadSession(ctx context.Context, id string) ([]byte, error)
	DeleteSession(ctx context.Context, id string) error
}

// stockReader serves cached stock counters for quote hints. Misses and
// read failures simply suppress the hint.
type stockReader interface {
	GetProductStock(ctx context.Context, productID int64) (stock int, found bool, err error)
	GetVariantStock(ctx context.Context, variantID int64) (stock int, found bool, err error)
}

// CheckoutService drives the three-step checkout wizard and hands the final
// submission to the order pipeline.
type CheckoutService struct {
	sessions sessionStore
	geo      Geography
	pricing  *PricingValidator
	fees     FeeCalculator
	orders   *OrderService
	stock    stockReader
	ttl      time.Duration
	logger   *zap.Logger
}

// NewCheckoutService creates the checkout wizard service. stock may be nil,
// which disables the low-stock quote hints.
func NewCheckoutService(
	sessions sessionStore,
	geo Geography,
	pricing *PricingValidator,
	fees FeeCalculator,
	orders *OrderService,
	stock stockReader,
	ttl time.Duration,
) *CheckoutService {
	return &CheckoutService{
		sessions: sessions,
		geo:      geo,
		pricing:  pricing,
		fees:     fees,
		orders:   orders,
		stock:    stock,
		ttl:      ttl,
		logger:   util.GetLogger(),
	}
}

// StartInput seeds a new checkout session.
type StartInput struct {
	Items      []models.CartLine `json:"items"`
	Notes      string            `json:"notes,omitempty"`
	GuestEmail string            `json:"guest_email,omitempty"`
	GuestPhone string            `json:"guest_phone,omitempty"`
}

// Start opens a new checkout session on the address step.
func (c *CheckoutService) Start(ctx context.Context, userID *int64, in StartInput) (*CheckoutSession, error) {
	sess := &CheckoutSession{
		ID:         uuid.New().String(),
		UserID:     userID,
		Step:       StepAddress,
		Items:      in.Items,
		Notes:      in.Notes,
		GuestEmail: in.GuestEmail,
		GuestPhone: in.GuestPhone,
		CreatedAt:  time.Now(),
	}
	if err := c.save(ctx, sess); err != nil {
		return nil, err
	}
	util.CheckoutSessionsStarted.Inc()
	return sess, nil
}

// Get loads a session by id.
func (c *CheckoutService) Get(ctx context.Context, id string) (*CheckoutSession, error) {
	payload, err := c.sessions.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	var sess CheckoutSession
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, fmt.Errorf("corrupt checkout session %s: %w", id, err)
	}
	return &sess, nil
}

// SetItems replaces the session's cart lines. The stored delivery charge
// depends on the subtotal, so it is recomputed whenever a zone is resolved:
// a cart edit can cross the free-delivery threshold in either direction.
func (c *CheckoutService) SetItems(ctx context.Context, id string, items []models.CartLine) (*CheckoutSession, error) {
	sess, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Items = items
	if sess.Zone != nil {
		sess.DeliveryCharge = c.fees.DeliveryCharge(sess.Zone, c.subtotal(ctx, sess))
	}
	return sess, c.save(ctx, sess)
}

// SetAddress applies the address. Downstream identifiers are invalidated
// whenever an upstream one changes: a new division clears district and
// upazila, a new district clears upazila; both clear the resolved zone and
// charge, since the old children are no longer guaranteed valid.
func (c *CheckoutService) SetAddress(ctx context.Context, id string, in AddressInput) (*CheckoutSession, error) {
	sess, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	old := sess.Address
	if in.DivisionID != old.DivisionID {
		in.DistrictID = 0
		in.UpazilaID = 0
	} else if in.DistrictID != old.DistrictID {
		in.UpazilaID = 0
	}
	if in.UpazilaID != old.UpazilaID {
		sess.Zone = nil
		sess.DeliveryCharge = 0
	}
	sess.Address = in

	if in.UpazilaID != 0 && sess.Zone == nil {
		zone, err := c.geo.ZoneByUpazila(ctx, in.UpazilaID)
		if err != nil {
			c.logger.Warn("Checkout zone resolution failed",
				zap.String("session_id", id),
				zap.Int64("upazila_id", in.UpazilaID),
				zap.Error(err))
		} else {
			sess.Zone = zone
			sess.DeliveryCharge = c.fees.DeliveryCharge(zone, c.subtotal(ctx, sess))
		}
	}

	return sess, c.save(ctx, sess)
}

// SetPayment records the chosen method and returns the refreshed advisory
// quote for display.
func (c *CheckoutService) SetPayment(ctx context.Context, id, method string) (*CheckoutSession, *Quote, error) {
	if !models.IsValidPaymentMethod(method) {
		return nil, nil, newValidationError("unknown payment method %q", method)
	}
	sess, err := c.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	sess.PaymentMethod = method
	if err := c.save(ctx, sess); err != nil {
		return nil, nil, err
	}
	quote := c.QuoteFor(ctx, sess)
	return sess, &quote, nil
}

// Advance moves one step forward. The address step gates on input
// completeness; payment to review is unconditional.
func (c *CheckoutService) Advance(ctx context.Context, id string) (*CheckoutSession, error) {
	sess, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch sess.Step {
	case StepAddress:
		if missing := sess.Address.MissingFields(); len(missing) > 0 {
			return nil, newGuardError("address incomplete: missing %v", missing)
		}
		sess.Step = StepPayment
	case StepPayment:
		sess.Step = StepReview
	default:
		return nil, newGuardError("cannot advance past %s", sess.Step)
	}

	return sess, c.save(ctx, sess)
}

// Back navigates to an earlier, already-completed step.
func (c *CheckoutService) Back(ctx context.Context, id string, to Step) (*CheckoutSession, error) {
	if _, ok := stepIndex[to]; !ok {
		return nil, newGuardError("unknown step %q", to)
	}
	sess, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if stepIndex[to] >= stepIndex[sess.Step] {
		return nil, newGuardError("cannot go back from %s to %s", sess.Step, to)
	}
	sess.Step = to
	return sess, c.save(ctx, sess)
}

// Submit issues the single order-submission request. Allowed only from the
// review step; on success the session is discarded and the caller
// transitions to the confirmation view keyed by the returned order id.
func (c *CheckoutService) Submit(ctx context.Context, id string) (*PlaceOrderResponse, error) {
	sess, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Step != StepReview {
		return nil, newGuardError("submit is only available from review, current step is %s", sess.Step)
	}

	req := &PlaceOrderRequest{
		Items:          sess.Items,
		Address:        sess.Address,
		PaymentMethod:  sess.PaymentMethod,
		DeliveryCharge: sess.DeliveryCharge,
		Notes:          sess.Notes,
		GuestEmail:     sess.GuestEmail,
		GuestPhone:     sess.GuestPhone,
		UserID:         sess.UserID,
	}
	if sess.Zone != nil {
		zoneID := sess.Zone.ID
		req.DeliveryZoneID = &zoneID
	}

	resp, err := c.orders.PlaceOrder(ctx, req)
	if err != nil {
		util.CheckoutSubmissionsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	util.CheckoutSubmissionsTotal.WithLabelValues("placed").Inc()
	if err := c.sessions.DeleteSession(ctx, id); err != nil {
		c.logger.Warn("Failed to discard checkout session",
			zap.String("session_id", id), zap.Error(err))
	}

	return resp, nil
}

// QuoteFor computes the advisory on-screen totals for a session. Review
// should surface an unresolved zone: delivery stays zero until an upazila
// with a mapped zone is selected.
func (c *CheckoutService) QuoteFor(ctx context.Context, sess *CheckoutSession) Quote {
	subtotal := c.subtotal(ctx, sess)
	delivery := c.fees.DeliveryCharge(sess.Zone, subtotal)
	surcharge := c.fees.PaymentSurcharge(sess.PaymentMethod)

	quote := Quote{
		Subtotal:       subtotal,
		DeliveryCharge: delivery,
		Surcharge:      surcharge,
		Total:          c.fees.Total(subtotal, delivery, surcharge, 0),
		ZoneResolved:   sess.Zone != nil,
	}
	if sess.Zone != nil {
		quote.ZoneName = sess.Zone.Name
		quote.EstDays = sess.Zone.EstDays
	}
	quote.LowStock = c.lowStockHints(ctx, sess.Items)
	return quote
}

// lowStockHints checks the cached counters for lines the shopper may no
// longer be able to buy. Cache misses stay silent rather than guessing.
func (c *CheckoutService) lowStockHints(ctx context.Context, items []models.CartLine) []LowStockHint {
	if c.stock == nil {
		return nil
	}
	var hints []LowStockHint
	for _, line := range items {
		var (
			available int
			found     bool
			err       error
		)
		if line.VariantID != nil {
			available, found, err = c.stock.GetVariantStock(ctx, *line.VariantID)
		} else {
			available, found, err = c.stock.GetProductStock(ctx, line.ProductID)
		}
		if err != nil {
			c.logger.Debug("Stock hint read failed",
				zap.Int64("product_id", line.ProductID), zap.Error(err))
			continue
		}
		if found && available < line.Quantity {
			hints = append(hints, LowStockHint{
				ProductID: line.ProductID,
				VariantID: line.VariantID,
				Available: available,
			})
		}
	}
	return hints
}

// subtotal prices the session's lines for display. A validation failure
// here only blanks the advisory number; submit re-validates for real.
func (c *CheckoutService) subtotal(ctx context.Context, sess *CheckoutSession) int64 {
	if len(sess.Items) == 0 {
		return 0
	}
	_, subtotal, err := c.pricing.Validate(ctx, sess.Items)
	if err != nil {
		c.logger.Debug("Advisory pricing failed",
			zap.String("session_id", sess.ID), zap.Error(err))
		return 0
	}
	return subtotal
}

func (c *CheckoutService) save(ctx context.Context, sess *CheckoutSession) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal checkout session: %w", err)
	}
	return c.sessions.SaveSession(ctx, sess.ID, payload, c.ttl)
}
