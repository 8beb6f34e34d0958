package service

import (
	"errors"
	"fmt"
)

// ErrOrderPersist is the generic fatal failure for the order insert step.
// Nothing was persisted, so the client may safely retry.
var ErrOrderPersist = errors.New("could not create order")

// ValidationError rejects a submission before any persistence: empty cart,
// incomplete address, missing or unknown payment method.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func newValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// CatalogErrorKind classifies mismatches between a cart and the catalog.
type CatalogErrorKind int

const (
	ProductNotFound CatalogErrorKind = iota
	ProductInactive
	VariantNotFound
	InsufficientStock
)

// CatalogError names the offending product so the user can adjust the cart.
type CatalogError struct {
	Kind      CatalogErrorKind
	ProductID int64
	Msg       string
}

func (e *CatalogError) Error() string {
	return e.Msg
}

func newCatalogError(kind CatalogErrorKind, productID int64, format string, args ...interface{}) *CatalogError {
	return &CatalogError{
		Kind:      kind,
		ProductID: productID,
		Msg:       fmt.Sprintf(format, args...),
	}
}
