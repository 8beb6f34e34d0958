package service

import (
	"testing"

	"storefront/config"
	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
)

func testFees() FeeCalculator {
	return NewFeeCalculator(config.BusinessConfig{
		FreeDeliveryThreshold: 5000,
		CODSurcharge:          20,
	})
}

func TestDeliveryChargeFastZoneAboveThreshold(t *testing.T) {
	fees := testFees()
	zone := &models.DeliveryZone{ID: 1, Name: "CityCore", BaseCharge: 60, Fast: true}

	// subtotal at or above the threshold waives the charge in the fast zone
	assert.Equal(t, int64(0), fees.DeliveryCharge(zone, 10000))
	assert.Equal(t, int64(0), fees.DeliveryCharge(zone, 5000))

	// below threshold the base charge applies
	assert.Equal(t, int64(60), fees.DeliveryCharge(zone, 4999))
}

func TestDeliveryChargeRegularZoneNeverFree(t *testing.T) {
	fees := testFees()
	zone := &models.DeliveryZone{ID: 2, Name: "Regional", BaseCharge: 120, Fast: false}

	assert.Equal(t, int64(120), fees.DeliveryCharge(zone, 10000))
	assert.Equal(t, int64(120), fees.DeliveryCharge(zone, 100))
}

func TestDeliveryChargeNoZone(t *testing.T) {
	fees := testFees()
	assert.Equal(t, int64(0), fees.DeliveryCharge(nil, 10000))
}

func TestPaymentSurcharge(t *testing.T) {
	fees := testFees()

	assert.Equal(t, int64(20), fees.PaymentSurcharge(models.PaymentMethodCOD))
	assert.Equal(t, int64(0), fees.PaymentSurcharge(models.PaymentMethodBkash))
	assert.Equal(t, int64(0), fees.PaymentSurcharge(models.PaymentMethodNagad))
	assert.Equal(t, int64(0), fees.PaymentSurcharge(models.PaymentMethodCard))
}

func TestTotalCODBelowThreshold(t *testing.T) {
	fees := testFees()
	zone := &models.DeliveryZone{ID: 1, Name: "CityCore", BaseCharge: 60, Fast: true}

	subtotal := int64(4000)
	delivery := fees.DeliveryCharge(zone, subtotal)
	surcharge := fees.PaymentSurcharge(models.PaymentMethodCOD)

	assert.Equal(t, int64(4000+60+20), fees.Total(subtotal, delivery, surcharge, 0))
}

func TestTotalCODAboveThreshold(t *testing.T) {
	fees := testFees()
	zone := &models.DeliveryZone{ID: 1, Name: "CityCore", BaseCharge: 60, Fast: true}

	subtotal := int64(10000)
	delivery := fees.DeliveryCharge(zone, subtotal)
	surcharge := fees.PaymentSurcharge(models.PaymentMethodCOD)

	assert.Equal(t, int64(10020), fees.Total(subtotal, delivery, surcharge, 0))
}
