package service

import (
	"context"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// CatalogReader is the catalog read API the validator re-fetches prices
// and stock from.
type CatalogReader interface {
	ProductByID(ctx context.Context, id int64) (*models.Product, error)
	VariantByID(ctx context.Context, productID, variantID int64) (*models.Variant, error)
}

// PricedLine is a server-priced snapshot of one cart line.
type PricedLine struct {
	ProductID int64
	VariantID *int64
	Name      string
	UnitPrice int64
	Quantity  int
}

// PricingValidator re-validates every cart line against the catalog on each
// submission. Client-echoed prices are never trusted.
type PricingValidator struct {
	catalog CatalogReader
	logger  *zap.Logger
}

// NewPricingValidator creates a pricing validator
func NewPricingValidator(catalog CatalogReader) *PricingValidator {
	return &PricingValidator{
		catalog: catalog,
		logger:  util.GetLogger(),
	}
}

// Validate resolves authoritative price and stock for each line. Any
// mismatch rejects the whole request. On success it returns the priced
// snapshots and their subtotal.
func (v *PricingValidator) Validate(ctx context.Context, lines []models.CartLine) ([]PricedLine, int64, error) {
	priced := make([]PricedLine, 0, len(lines))
	var subtotal int64

	for _, line := range lines {
		product, err := v.catalog.ProductByID(ctx, line.ProductID)
		if err != nil {
			return nil, 0, newCatalogError(ProductNotFound, line.ProductID,
				"product %d not found", line.ProductID)
		}
		if !product.Active {
			return nil, 0, newCatalogError(ProductInactive, product.ID,
				"product %q is no longer available", product.Name)
		}

		name := product.Name
		unitPrice := product.Price
		available := product.Stock

		if line.VariantID != nil {
			variant, err := v.catalog.VariantByID(ctx, line.ProductID, *line.VariantID)
			if err != nil {
				return nil, 0, newCatalogError(VariantNotFound, product.ID,
					"variant %d of product %q not found", *line.VariantID, product.Name)
			}
			name = fmt.Sprintf("%s — %s", product.Name, variant.Name)
			unitPrice = variant.Price
			available = variant.Stock
		}

		if line.Quantity > available {
			return nil, 0, newCatalogError(InsufficientStock, product.ID,
				"insufficient stock for %q. Available: %d", name, available)
		}

		priced = append(priced, PricedLine{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Name:      name,
			UnitPrice: unitPrice,
			Quantity:  line.Quantity,
		})
		subtotal += unitPrice * int64(line.Quantity)
	}

	return priced, subtotal, nil
}
