package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/matuskudlac/mediguide-inventory/internal/catalog"
	kafkax "github.com/matuskudlac/mediguide-inventory/internal/kafka"
)

// Lifecycle is the order lifecycle hook surface.
type Lifecycle interface {
	OnItemAdded(ctx context.Context, orderID, productID int64, quantity int) (int, error)
	OnOrderCancelled(ctx context.Context, orderID int64) (bool, error)
	ManualAdjust(ctx context.Context, productID int64, delta int) (int, error)
}

// StockReader covers the read-only ledger calls the handlers need.
type StockReader interface {
	CheckAvailability(ctx context.Context, productID int64, quantity int) (bool, error)
	StockEvents(ctx context.Context, productID int64, limit int) ([]catalog.StockEvent, error)
}

// PriceAudit covers the audit log surface.
type PriceAudit interface {
	Record(ctx context.Context, productID int64, oldPrice, newPrice decimal.Decimal) error
	History(ctx context.Context, productID int64) ([]catalog.PriceAuditRecord, error)
	UpdateProductPrice(ctx context.Context, productID int64, newPrice decimal.Decimal) (decimal.Decimal, error)
}

type EngineHandler struct {
	Hook     Lifecycle
	Stock    StockReader
	Audit    PriceAudit
	Producer *kafkax.Producer // publish catalog.price.changed
	Service  string
}

func (h *EngineHandler) Register(r *chi.Mux) {
	r.Post("/engine/item-added", h.itemAdded)
	r.Post("/engine/order-cancelled", h.orderCancelled)
	r.Post("/engine/stock-adjustment", h.stockAdjustment)
	r.Post("/engine/price-changed", h.priceChanged)
	r.Get("/engine/availability", h.availability)
	r.Put("/products/{id}/price", h.updatePrice)
	r.Get("/products/{id}/price-audit", h.priceAudit)
	r.Get("/products/{id}/stock-events", h.stockEvents)
}

type itemAddedReq struct {
	OrderID   int64 `json:"order_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func (h *EngineHandler) itemAdded(w http.ResponseWriter, r *http.Request) {
	var req itemAddedReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.OrderID == 0 || req.ProductID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	newStock, err := h.Hook.OnItemAdded(ctx, req.OrderID, req.ProductID, req.Quantity)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock": newStock})
}

type orderCancelledReq struct {
	OrderID int64 `json:"order_id"`
}

func (h *EngineHandler) orderCancelled(w http.ResponseWriter, r *http.Request) {
	var req orderCancelledReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.OrderID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing order_id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	restored, err := h.Hook.OnOrderCancelled(ctx, req.OrderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"restored": restored})
}

type stockAdjustmentReq struct {
	ProductID int64 `json:"product_id"`
	Delta     int   `json:"delta"`
}

func (h *EngineHandler) stockAdjustment(w http.ResponseWriter, r *http.Request) {
	var req stockAdjustmentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ProductID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing product_id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	newStock, err := h.Hook.ManualAdjust(ctx, req.ProductID, req.Delta)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock": newStock})
}

type priceChangedReq struct {
	ProductID int64           `json:"product_id"`
	OldPrice  decimal.Decimal `json:"old_price"`
	NewPrice  decimal.Decimal `json:"new_price"`
}

// priceChanged is invoked by the catalog on every price write it performs
// itself; the engine only appends the audit record and fans the change out.
func (h *EngineHandler) priceChanged(w http.ResponseWriter, r *http.Request) {
	var req priceChangedReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ProductID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing product_id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Audit.Record(ctx, req.ProductID, req.OldPrice, req.NewPrice); err != nil {
		writeErr(w, err)
		return
	}
	h.publishPriceChanged(req.ProductID, req.OldPrice, req.NewPrice)
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (h *EngineHandler) availability(w http.ResponseWriter, r *http.Request) {
	productID, err1 := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	quantity, err2 := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err1 != nil || err2 != nil || quantity < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product_id or quantity"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ok, err := h.Stock.CheckAvailability(ctx, productID, quantity)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": ok})
}

type updatePriceReq struct {
	Price decimal.Decimal `json:"price"`
}

func (h *EngineHandler) updatePrice(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	var req updatePriceReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	oldPrice, err := h.Audit.UpdateProductPrice(ctx, productID, req.Price)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !oldPrice.Equal(req.Price) {
		h.publishPriceChanged(productID, oldPrice, req.Price)
	}
	writeJSON(w, http.StatusOK, map[string]any{"old_price": oldPrice, "new_price": req.Price})
}

func (h *EngineHandler) priceAudit(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	recs, err := h.Audit.History(ctx, productID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": recs, "count": len(recs)})
}

func (h *EngineHandler) stockEvents(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	evs, err := h.Stock.StockEvents(ctx, productID, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": evs, "count": len(evs)})
}

func (h *EngineHandler) publishPriceChanged(productID int64, oldPrice, newPrice decimal.Decimal) {
	if h.Producer == nil {
		return
	}
	ev := catalog.Envelope{
		EventID:      uuid.NewString(),
		EventType:    catalog.EventPriceChanged,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     h.Service,
		Payload: kafkax.MustMarshal(catalog.PriceChangedPayload{
			ProductID: productID,
			OldPrice:  oldPrice,
			NewPrice:  newPrice,
		}),
	}
	h.Producer.Publish([]byte(strconv.FormatInt(productID, 10)), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(catalog.EventPriceChanged)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
