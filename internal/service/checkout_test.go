package service

import (
	"context"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/redisclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	m       map[string][]byte
	deleted []string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{m: make(map[string][]byte)}
}

func (f *fakeSessions) SaveSession(ctx context.Context, id string, payload []byte, ttl time.Duration) error {
	f.m[id] = append([]byte(nil), payload...)
	return nil
}

func (f *fakeSessions) LoadSession(ctx context.Context, id string) ([]byte, error) {
	payload, ok := f.m[id]
	if !ok {
		return nil, redisclient.ErrSessionNotFound
	}
	return payload, nil
}

func (f *fakeSessions) DeleteSession(ctx context.Context, id string) error {
	delete(f.m, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func newTestCheckout(t *testing.T, geo *fakeGeo) (*CheckoutService, *fakeOrderStore, *fakeSessions) {
	t.Helper()
	st := newFakeOrderStore()
	sessions := newFakeSessions()
	pricing := NewPricingValidator(testCatalog())
	fees := testFees()
	orders := NewOrderService(st, geo, pricing, fees, nil, nil)
	checkout := NewCheckoutService(sessions, geo, pricing, fees, orders, nil, time.Hour)
	return checkout, st, sessions
}

type fakeStockReader struct {
	products map[int64]int
	variants map[int64]int
}

func (f *fakeStockReader) GetProductStock(ctx context.Context, productID int64) (int, bool, error) {
	stock, ok := f.products[productID]
	return stock, ok, nil
}

func (f *fakeStockReader) GetVariantStock(ctx context.Context, variantID int64) (int, bool, error) {
	stock, ok := f.variants[variantID]
	return stock, ok, nil
}

func startSession(t *testing.T, c *CheckoutService) *CheckoutSession {
	t.Helper()
	sess, err := c.Start(context.Background(), nil, StartInput{Items: []models.CartLine{{ProductID: 2, Quantity: 2}}})
	require.NoError(t, err)
	return sess
}

func TestCheckoutStartsOnAddressStep(t *testing.T) {
	checkout, _, _ := newTestCheckout(t, &fakeGeo{zone: cityCore()})
	sess := startSession(t, checkout)

	assert.Equal(t, StepAddress, sess.Step)
	assert.NotEmpty(t, sess.ID)
}

func TestAdvanceBlockedOnIncompleteAddress(t *testing.T) {
	checkout, _, _ := newTestCheckout(t, &fakeGeo{zone: cityCore()})
	sess := startSession(t, checkout)
	ctx := context.Background()

	_, err := checkout.Advance(ctx, sess.ID)
	var guardErr *GuardError
	require.ErrorAs(t, err, &guardErr)

	// postal code and upazila are optional for the transition itself
	addr := validAddress()
	addr.PostalCode = ""
	addr.UpazilaID = 0
	_, err = checkout.SetAddress(ctx, sess.ID, addr)
	require.NoError(t, err)

	advanced, err := checkout.Advance(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StepPayment, advanced.Step)
}

func TestAdvanceThroughAllSteps(t *testing.T) {
	checkout, _, _ := newTestCheckout(t, &fakeGeo{zone: cityCore()})
	sess := startSession(t, checkout)
	ctx := context.Background()

	_, err := checkout.SetAddress(ctx, sess.ID, validAddress())
	require.NoError(t, err)

	s, err := checkout.Advance(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StepPayment, s.Step)

	s, err = checkout.Advance(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StepReview, s.Step)

	_, err = checkout.Advance(ctx, sess.ID)
	var guardErr *GuardError
	require.ErrorAs(t, err, &guardErr)
}

func TestBackOnlyToCompletedSteps(t *testing.T) {
	checkout, _, _ := newTestCheckout(t, &fakeGeo{zone: cityCore()})
	sess := startSession(t, checkout)
	ctx := context.Background()

	_, err := checkout.Back(ctx, sess.ID, StepPayment)
	var guardErr *GuardError
	require.ErrorAs(t, err, &guardErr)

	_, err = checkout.SetAddress(ctx, sess.ID, validAddress())
	require.NoError(t, err)
	_, err = checkout.Advance(ctx, sess.ID)
	require.NoError(t, err)
	_, err = checkout.Advance(ctx, sess.ID)
	require.NoError(t, err)

	s, err := checkout.Back(ctx, sess.ID, StepAddress)
	require.NoError(t, err)
	assert.Equal(t, StepAddress, s.Step)
}

func TestDivisionChangeResetsDownstream(t *testing.T) {
	checkout, _, _ := newTestCheckout(t, &fakeGeo{zone: cityCore()})
	sess := startSession(t, checkout)
	ctx := context.Background()

	s, err := checkout.SetAddress(ctx, sess.ID, validAddress())
	require.NoError(t, err)
	require.NotNil(t, s.Zone)
	require.NotZero(t, s.DeliveryCharge)

	changed := s.Address
	changed.DivisionID = 7

	s, err = checkout.SetAddress(ctx, sess.ID, changed)
	require.NoError(t, err)
	assert.Zero(t, s.Address.DistrictID)
	assert.Zero(t, s.Address.UpazilaID)
	assert.Nil(t, s.Zone)
	assert.Zero(t, s.DeliveryCharge)
}

func TestDistrictChangeResetsUpazila(t *testing.T) {
	checkout, _, _ := newTestCheckout(t, &fakeGeo{zone: cityCore()})
	sess := startSession(t, checkout)
	ctx := context.Background()

	s, err := checkout.SetAddress(ctx, sess.ID, validAddress())
	require.NoError(t, err)

	changed := s.Address
	changed.DistrictID = 19

	s, err = checkout.SetAddress(ctx, sess.ID, changed)
	require.NoError(t, err)
	assert.Equal(t, int64(19), s.Address.DistrictID)
	assert.Zero(t, s.Address.UpazilaID)
	assert.Nil(t, s.Zone)
}

func TestUpazilaSelectionResolvesZone(t *testing.T) {
	checkout, _, _ := newTestCheckout(t, &fakeGeo{zone: cityCore()})
	sess := startSession(t, checkout)
	ctx := context.Background()

	s, err := checkout.SetAddress(ctx, sess.ID, validAddress())
	require.NoError(t, err)
	require.NotNil(t, s.Zone)
	assert.Equal(t, "CityCore", s.Zone.Name)
	// 2 x 500 is below the threshold, base charge applies
	assert.Equal(t, int64(60), s.DeliveryCharge)
}

func TestSetItemsRecomputesDeliveryCharge(t *testing.T) {
	checkout, _, _ := newTestCheckout(t, &fakeGeo{zone: cityCore()})
	sess := startSession(t, checkout)
	ctx := context.Background()

	s, err := checkout.SetAddress(ctx, sess.ID, validAddress())
	require.NoError(t, err)
	require.Equal(t, int64(60), s.DeliveryCharge)

	// the new cart crosses the free-delivery threshold
	s, err = checkout.SetItems(ctx, sess.ID, []models.CartLine{{ProductID: 1, Quantity: 1}}) // 10000
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.DeliveryCharge)

	// and back below it
	s, err = checkout.SetItems(ctx, sess.ID, []models.CartLine{{ProductID: 2, Quantity: 1}}) // 500
	require.NoError(t, err)
	assert.Equal(t, int64(60), s.DeliveryCharge)
}

func TestQuoteFlagsLowCachedStock(t *testing.T) {
	st := newFakeOrderStore()
	sessions := newFakeSessions()
	geo := &fakeGeo{zone: cityCore()}
	pricing := NewPricingValidator(testCatalog())
	fees := testFees()
	orders := NewOrderService(st, geo, pricing, fees, nil, nil)
	stock := &fakeStockReader{products: map[int64]int{2: 1}, variants: map[int64]int{10: 0}}
	checkout := NewCheckoutService(sessions, geo, pricing, fees, orders, stock, time.Hour)
	ctx := context.Background()

	sess, err := checkout.Start(ctx, nil, StartInput{Items: []models.CartLine{
		{ProductID: 2, Quantity: 2},                        // cached 1 < 2
		{ProductID: 1, VariantID: int64ptr(10), Quantity: 1}, // cached 0 < 1
	}})
	require.NoError(t, err)

	quote := checkout.QuoteFor(ctx, sess)
	require.Len(t, quote.LowStock, 2)
	assert.Equal(t, int64(2), quote.LowStock[0].ProductID)
	assert.Equal(t, 1, quote.LowStock[0].Available)
	require.NotNil(t, quote.LowStock[1].VariantID)
	assert.Equal(t, int64(10), *quote.LowStock[1].VariantID)

	// a cache miss never produces a hint
	sess, err = checkout.Start(ctx, nil, StartInput{Items: []models.CartLine{{ProductID: 1, Quantity: 99}}})
	require.NoError(t, err)
	assert.Empty(t, checkout.QuoteFor(ctx, sess).LowStock)
}

func TestSetPaymentQuote(t *testing.T) {
	checkout, _, _ := newTestCheckout(t, &fakeGeo{zone: cityCore()})
	sess := startSession(t, checkout)
	ctx := context.Background()

	_, err := checkout.SetAddress(ctx, sess.ID, validAddress())
	require.NoError(t, err)

	_, quote, err := checkout.SetPayment(ctx, sess.ID, models.PaymentMethodCOD)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), quote.Subtotal)
	assert.Equal(t, int64(60), quote.DeliveryCharge)
	assert.Equal(t, int64(20), quote.Surcharge)
	assert.Equal(t, int64(1080), quote.Total)
	assert.True(t, quote.ZoneResolved)

	_, quote, err = checkout.SetPayment(ctx, sess.ID, models.PaymentMethodBkash)
	require.NoError(t, err)
	assert.Equal(t, int64(0), quote.Surcharge)
	assert.Equal(t, int64(1060), quote.Total)
}

func TestSetPaymentUnknownMethod(t *testing.T) {
	checkout, _, _ := newTestCheckout(t, &fakeGeo{zone: cityCore()})
	sess := startSession(t, checkout)

	_, _, err := checkout.SetPayment(context.Background(), sess.ID, "cheque")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestQuoteWithoutZone(t *testing.T) {
	checkout, _, _ := newTestCheckout(t, &fakeGeo{})
	sess := startSession(t, checkout)
	ctx := context.Background()

	s, err := checkout.SetAddress(ctx, sess.ID, validAddress())
	require.NoError(t, err)

	quote := checkout.QuoteFor(ctx, s)
	assert.False(t, quote.ZoneResolved)
	assert.Zero(t, quote.DeliveryCharge)
}

func TestSubmitOnlyFromReview(t *testing.T) {
	checkout, st, _ := newTestCheckout(t, &fakeGeo{zone: cityCore()})
	sess := startSession(t, checkout)
	ctx := context.Background()

	_, err := checkout.Submit(ctx, sess.ID)
	var guardErr *GuardError
	require.ErrorAs(t, err, &guardErr)
	assert.Empty(t, st.orders)
}

func TestSubmitPlacesOrderAndDiscardsSession(t *testing.T) {
	checkout, st, sessions := newTestCheckout(t, &fakeGeo{zone: cityCore()})
	sess := startSession(t, checkout)
	ctx := context.Background()

	_, err := checkout.SetAddress(ctx, sess.ID, validAddress())
	require.NoError(t, err)
	_, _, err = checkout.SetPayment(ctx, sess.ID, models.PaymentMethodCOD)
	require.NoError(t, err)
	_, err = checkout.Advance(ctx, sess.ID)
	require.NoError(t, err)
	_, err = checkout.Advance(ctx, sess.ID)
	require.NoError(t, err)

	resp, err := checkout.Submit(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.NotZero(t, resp.OrderID)
	require.Len(t, st.orders, 1)
	assert.Equal(t, models.PaymentMethodCOD, st.orders[0].PaymentMethod)

	assert.Contains(t, sessions.deleted, sess.ID)
	_, err = checkout.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, redisclient.ErrSessionNotFound)
}

func TestSubmitRejectionKeepsSession(t *testing.T) {
	checkout, st, sessions := newTestCheckout(t, &fakeGeo{zone: cityCore()})
	ctx := context.Background()

	sess, err := checkout.Start(ctx, nil, StartInput{Items: []models.CartLine{{ProductID: 1, Quantity: 5}}}) // stock is 3
	require.NoError(t, err)

	_, err = checkout.SetAddress(ctx, sess.ID, validAddress())
	require.NoError(t, err)
	_, _, err = checkout.SetPayment(ctx, sess.ID, models.PaymentMethodCOD)
	require.NoError(t, err)
	_, err = checkout.Advance(ctx, sess.ID)
	require.NoError(t, err)
	_, err = checkout.Advance(ctx, sess.ID)
	require.NoError(t, err)

	_, err = checkout.Submit(ctx, sess.ID)
	var cerr *CatalogError
	require.ErrorAs(t, err, &cerr)
	assert.Empty(t, st.orders)

	// the session survives so the user can fix the cart and resubmit
	assert.Empty(t, sessions.deleted)
	_, err = checkout.Get(ctx, sess.ID)
	assert.NoError(t, err)
}
