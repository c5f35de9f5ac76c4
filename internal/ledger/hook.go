package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/matuskudlac/mediguide-inventory/internal/catalog"
	kafkax "github.com/matuskudlac/mediguide-inventory/internal/kafka"
	"github.com/matuskudlac/mediguide-inventory/internal/redisx"
)

// Hook reacts to order lifecycle events and drives the Stock Ledger. It is
// invoked synchronously by the HTTP surface and asynchronously by the Kafka
// consumer; both paths end in the same Store calls.
type Hook struct {
	Store       Store
	Redis       *redis.Client
	Adjusted    *kafkax.Producer // publish inventory.stock.adjusted
	Rejected    *kafkax.Producer // publish inventory.stock.rejected
	ServiceName string
	Log         *zap.SugaredLogger
}

// OnItemAdded decrements stock for a freshly created order item. On
// insufficient stock the whole item creation must be rejected by the caller;
// nothing is persisted here either.
func (h *Hook) OnItemAdded(ctx context.Context, orderID, productID int64, quantity int) (int, error) {
	if quantity < 1 {
		return 0, fmt.Errorf("quantity %d: %w", quantity, catalog.ErrInvalidArgument)
	}

	newStock, err := h.Store.ApplyDelta(ctx, productID, -quantity, catalog.ReasonOrderPlaced, &orderID)
	var ise *InsufficientStockError
	if errors.As(err, &ise) {
		h.publishRejected(orderID, ise)
		return 0, err
	}
	if err != nil {
		return 0, err
	}

	h.publishAdjusted(orderID, catalog.StockAdjustedPayload{
		ProductID: productID,
		Delta:     -quantity,
		NewStock:  newStock,
		Reason:    catalog.ReasonOrderPlaced,
		OrderID:   &orderID,
	})
	return newStock, nil
}

// ManualAdjust applies an operator-initiated stock correction. No causing
// order; the ledger event carries a nil order reference.
func (h *Hook) ManualAdjust(ctx context.Context, productID int64, delta int) (int, error) {
	if delta == 0 {
		return 0, fmt.Errorf("delta 0: %w", catalog.ErrInvalidArgument)
	}
	newStock, err := h.Store.ApplyDelta(ctx, productID, delta, catalog.ReasonManualAdjust, nil)
	if err != nil {
		return 0, err
	}
	if h.Adjusted != nil {
		p := catalog.StockAdjustedPayload{
			ProductID: productID,
			Delta:     delta,
			NewStock:  newStock,
			Reason:    catalog.ReasonManualAdjust,
		}
		h.Adjusted.Publish([]byte(fmt.Sprintf("p:%d", productID)), h.envelope(catalog.EventStockAdjusted, 0, p),
			kafkago.Header{Key: "x-event-type", Value: []byte(catalog.EventStockAdjusted)},
			kafkago.Header{Key: "x-event-version", Value: []byte("1")},
		)
	}
	return newStock, nil
}

// OnOrderCancelled restores the quantities of all of the order's items.
// Safe to retry: a second invocation finds the restore events and skips.
func (h *Hook) OnOrderCancelled(ctx context.Context, orderID int64) (bool, error) {
	// Fast-path marker for replays; the ledger event table stays authoritative.
	doneKey := fmt.Sprintf(redisx.KeyCancelDone, orderID)
	if ok, _ := redisx.Exists(ctx, h.Redis, doneKey); ok {
		return false, nil
	}

	items, restored, err := h.Store.RestoreOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	_ = h.Redis.Set(ctx, doneKey, "1", redisx.TTLCancelDone).Err()

	if !restored {
		return false, nil
	}
	for _, it := range items {
		h.publishAdjusted(orderID, catalog.StockAdjustedPayload{
			ProductID: it.ProductID,
			Delta:     it.Quantity,
			Reason:    catalog.ReasonOrderCancelled,
			OrderID:   &orderID,
		})
	}
	if h.Log != nil {
		h.Log.Infow("order restored", "order_id", orderID, "items", len(items))
	}
	return true, nil
}

// HandleOrderEvent is the Kafka consumer handler for the storefront's order
// topics. Returning nil commits the offset.
func (h *Hook) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env catalog.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	// dedup via Redis (by event_id)
	dkey := fmt.Sprintf(redisx.KeyDedup, "ledger", env.EventID)
	if exists, _ := redisx.Exists(ctx, h.Redis, dkey); exists {
		return nil
	}

	if err := h.dispatch(ctx, env); err != nil {
		return err
	}
	// Marked only after the store accepted the event. A marker written before
	// a failed ApplyDelta would swallow the redelivery and lose the decrement.
	_ = h.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	return nil
}

func (h *Hook) dispatch(ctx context.Context, env catalog.Envelope) error {
	switch env.EventType {
	case catalog.EventOrderItemAdded:
		p, err := kafkax.UnwrapPayload[catalog.OrderItemAddedPayload](env.Payload)
		if err != nil {
			return err
		}
		_, err = h.OnItemAdded(ctx, p.OrderID, p.ProductID, p.Quantity)
		if errors.Is(err, catalog.ErrInsufficientStock) {
			// rejection already published; nothing to retry
			return nil
		}
		return err
	case catalog.EventOrderCancelled:
		p, err := kafkax.UnwrapPayload[catalog.OrderCancelledPayload](env.Payload)
		if err != nil {
			return err
		}
		_, err = h.OnOrderCancelled(ctx, p.OrderID)
		if errors.Is(err, catalog.ErrNotFound) {
			// unknown order on a replayed topic; drop it
			return nil
		}
		return err
	default:
		return nil // ignore
	}
}

func (h *Hook) publishAdjusted(orderID int64, p catalog.StockAdjustedPayload) {
	if h.Adjusted == nil {
		return
	}
	h.Adjusted.Publish(catalog.PartitionKey(orderID), h.envelope(catalog.EventStockAdjusted, orderID, p),
		kafkago.Header{Key: "x-event-type", Value: []byte(catalog.EventStockAdjusted)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (h *Hook) publishRejected(orderID int64, ise *InsufficientStockError) {
	if h.Rejected == nil {
		return
	}
	p := catalog.StockRejectedPayload{
		OrderID:   orderID,
		ProductID: ise.ProductID,
		Requested: ise.Requested,
		Available: ise.Available,
		Reason:    "INSUFFICIENT_STOCK",
	}
	h.Rejected.Publish(catalog.PartitionKey(orderID), h.envelope(catalog.EventStockRejected, orderID, p),
		kafkago.Header{Key: "x-event-type", Value: []byte(catalog.EventStockRejected)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (h *Hook) envelope(eventType string, orderID int64, payload any) []byte {
	ev := catalog.Envelope{
		EventID:      uuid.NewString(),
		EventType:    eventType,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     h.ServiceName,
		Payload:      kafkax.MustMarshal(payload),
	}
	if orderID != 0 {
		ev.CorrelationID = fmt.Sprintf("%d", orderID)
	}
	return kafkax.MustMarshal(ev)
}
