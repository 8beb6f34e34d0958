package service

import (
	"storefront/config"
	"storefront/internal/models"
)

// FeeCalculator resolves delivery charge and payment surcharge. All amounts
// are in the smallest currency unit.
type FeeCalculator struct {
	freeDeliveryThreshold int64
	codSurcharge          int64
}

// NewFeeCalculator creates a fee calculator from business config
func NewFeeCalculator(cfg config.BusinessConfig) FeeCalculator {
	return FeeCalculator{
		freeDeliveryThreshold: cfg.FreeDeliveryThreshold,
		codSurcharge:          cfg.CODSurcharge,
	}
}

// DeliveryCharge returns the zone's base charge, waived for fast (city-core)
// zones once the subtotal reaches the free-delivery threshold. With no
// resolved zone the charge is zero; callers gate submission on a usable
// address, not this calculator.
func (f FeeCalculator) DeliveryCharge(zone *models.DeliveryZone, subtotal int64) int64 {
	if zone == nil {
		return 0
	}
	if zone.Fast && subtotal >= f.freeDeliveryThreshold {
		return 0
	}
	return zone.BaseCharge
}

// PaymentSurcharge is a flat fee for cash on delivery; every other method
// settles externally with no surcharge.
func (f FeeCalculator) PaymentSurcharge(method string) int64 {
	if method == models.PaymentMethodCOD {
		return f.codSurcharge
	}
	return 0
}

// Total combines the parts. Discount is zero in the current scope; coupon
// application is an external collaborator.
func (f FeeCalculator) Total(subtotal, deliveryCharge, surcharge, discount int64) int64 {
	return subtotal + deliveryCharge + surcharge - discount
}
