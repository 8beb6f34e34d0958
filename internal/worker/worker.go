package worker

import (
	"context"
	"fmt"
	"log"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// stockSource is the authoritative read side the worker refreshes from,
// plus the processed-event dedup table.
type stockSource interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
	ProductByID(ctx context.Context, id int64) (*models.Product, error)
	VariantByID(ctx context.Context, productID, variantID int64) (*models.Variant, error)
}

// stockCache holds the cached counters the request path consults.
type stockCache interface {
	SetProductStock(ctx context.Context, productID int64, stock int) error
	SetVariantStock(ctx context.Context, variantID int64, stock int) error
}

// StockCacheWorker consumes order lifecycle events and refreshes the cached
// stock counters from the authoritative store: placement drains them,
// cancellation returns them. It also raises a warning when a placed order
// has drained a product: the validate-then-decrement gap in the request
// path permits overselling under contention, and this is the watch on it.
type StockCacheWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        stockSource
	cache        stockCache
	logger       *zap.Logger
}

// NewStockCacheWorker creates a new stock cache worker
func NewStockCacheWorker(
	consumer *broker.Consumer,
	st stockSource,
	cache stockCache,
) *StockCacheWorker {
	w := &StockCacheWorker{
		consumer: consumer,
		store:    st,
		cache:    cache,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderPlaced(w.handleOrderPlaced)
	eventHandler.OnOrderCancelled(w.handleOrderCancelled)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *StockCacheWorker) Start(ctx context.Context) error {
	log.Println("Starting stock cache worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockCacheWorker) Stop() error {
	log.Println("Stopping stock cache worker...")
	return w.consumer.Close()
}

func (w *StockCacheWorker) handleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if processed {
		return nil
	}

	if err := w.refreshLines(ctx, event.OrderID, event.Items, true); err != nil {
		// leave the event unmarked so redelivery retries the failed lines
		return err
	}

	return w.store.MarkEventProcessed(ctx, event.EventID, event.EventType)
}

func (w *StockCacheWorker) handleOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if processed {
		return nil
	}

	if err := w.refreshLines(ctx, event.OrderID, event.Items, false); err != nil {
		return err
	}

	return w.store.MarkEventProcessed(ctx, event.EventID, event.EventType)
}

// refreshLines re-reads authoritative stock for every line and rewrites the
// cached counters. It keeps going past a failed line and returns the first
// error so the caller can hold back the processed mark.
func (w *StockCacheWorker) refreshLines(ctx context.Context, orderID int64, items []models.OrderLineData, warnDrained bool) error {
	var firstErr error
	for _, item := range items {
		product, err := w.store.ProductByID(ctx, item.ProductID)
		if err != nil {
			w.logger.Error("Failed to re-read product stock",
				zap.Int64("product_id", item.ProductID), zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("re-read product %d: %w", item.ProductID, err)
			}
			continue
		}

		if err := w.cache.SetProductStock(ctx, product.ID, product.Stock); err != nil {
			w.logger.Warn("Failed to refresh cached product stock",
				zap.Int64("product_id", product.ID), zap.Error(err))
		}
		if warnDrained && product.Stock == 0 {
			w.logger.Warn("Product drained to zero stock",
				zap.Int64("product_id", product.ID),
				zap.Int64("order_id", orderID))
		}

		if item.VariantID != nil {
			variant, err := w.store.VariantByID(ctx, item.ProductID, *item.VariantID)
			if err != nil {
				w.logger.Error("Failed to re-read variant stock",
					zap.Int64("variant_id", *item.VariantID), zap.Error(err))
				if firstErr == nil {
					firstErr = fmt.Errorf("re-read variant %d: %w", *item.VariantID, err)
				}
				continue
			}
			if err := w.cache.SetVariantStock(ctx, variant.ID, variant.Stock); err != nil {
				w.logger.Warn("Failed to refresh cached variant stock",
					zap.Int64("variant_id", variant.ID), zap.Error(err))
			}
		}
	}
	return firstErr
}
