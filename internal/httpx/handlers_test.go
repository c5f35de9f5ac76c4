package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matuskudlac/mediguide-inventory/internal/catalog"
	"github.com/matuskudlac/mediguide-inventory/internal/ledger"
	"github.com/matuskudlac/mediguide-inventory/internal/reports"
)

type fakeLifecycle struct {
	stock      int
	itemErr    error
	restored   bool
	cancelErr  error
	cancelCall int
}

func (f *fakeLifecycle) OnItemAdded(_ context.Context, orderID, productID int64, quantity int) (int, error) {
	return f.stock, f.itemErr
}

func (f *fakeLifecycle) OnOrderCancelled(_ context.Context, orderID int64) (bool, error) {
	f.cancelCall++
	return f.restored, f.cancelErr
}

func (f *fakeLifecycle) ManualAdjust(_ context.Context, productID int64, delta int) (int, error) {
	return f.stock, f.itemErr
}

type fakeStock struct {
	available bool
	err       error
	events    []catalog.StockEvent
}

func (f *fakeStock) CheckAvailability(_ context.Context, productID int64, quantity int) (bool, error) {
	return f.available, f.err
}

func (f *fakeStock) StockEvents(_ context.Context, productID int64, limit int) ([]catalog.StockEvent, error) {
	return f.events, f.err
}

type fakeAudit struct {
	recorded int
	err      error
	history  []catalog.PriceAuditRecord
	oldPrice decimal.Decimal
}

func (f *fakeAudit) Record(_ context.Context, productID int64, oldPrice, newPrice decimal.Decimal) error {
	if f.err == nil && !oldPrice.Equal(newPrice) {
		f.recorded++
	}
	return f.err
}

func (f *fakeAudit) History(_ context.Context, productID int64) ([]catalog.PriceAuditRecord, error) {
	return f.history, f.err
}

func (f *fakeAudit) UpdateProductPrice(_ context.Context, productID int64, newPrice decimal.Decimal) (decimal.Decimal, error) {
	return f.oldPrice, f.err
}

type fakeReporter struct {
	low        []reports.LowStockRow
	monthly    []reports.MonthlySalesRow
	history    []reports.OrderHistoryRow
	batchCount int
	err        error
}

func (f *fakeReporter) LowStock(_ context.Context) ([]reports.LowStockRow, error) {
	return f.low, f.err
}

func (f *fakeReporter) MonthlySales(_ context.Context, month, year int) ([]reports.MonthlySalesRow, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("month %d: %w", month, catalog.ErrInvalidArgument)
	}
	return f.monthly, f.err
}

func (f *fakeReporter) BatchUpdatePricesByCategory(_ context.Context, categoryID int64, pct float64) (int, error) {
	return f.batchCount, f.err
}

func (f *fakeReporter) CustomerOrderHistory(_ context.Context, userID int64) ([]reports.OrderHistoryRow, error) {
	return f.history, f.err
}

func newTestServer(eh *EngineHandler, rh *ReportsHandler) *httptest.Server {
	r := NewRouter()
	if eh != nil {
		eh.Register(r)
	}
	if rh != nil {
		rh.Register(r)
	}
	return httptest.NewServer(r)
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var m map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	return m
}

func TestItemAddedOK(t *testing.T) {
	srv := newTestServer(&EngineHandler{Hook: &fakeLifecycle{stock: 7}, Stock: &fakeStock{}, Audit: &fakeAudit{}}, nil)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/engine/item-added",
		map[string]any{"order_id": 100, "product_id": 1, "quantity": 3})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, float64(7), body["stock"])
}

func TestItemAddedInsufficientStockIs409(t *testing.T) {
	hook := &fakeLifecycle{itemErr: &ledger.InsufficientStockError{ProductID: 1, Requested: 5, Available: 2}}
	srv := newTestServer(&EngineHandler{Hook: hook, Stock: &fakeStock{}, Audit: &fakeAudit{}}, nil)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/engine/item-added",
		map[string]any{"order_id": 100, "product_id": 1, "quantity": 5})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestItemAddedRejectsBadBody(t *testing.T) {
	srv := newTestServer(&EngineHandler{Hook: &fakeLifecycle{}, Stock: &fakeStock{}, Audit: &fakeAudit{}}, nil)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/engine/item-added", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/engine/item-added", map[string]any{"quantity": 3})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestOrderCancelled(t *testing.T) {
	hook := &fakeLifecycle{restored: true}
	srv := newTestServer(&EngineHandler{Hook: hook, Stock: &fakeStock{}, Audit: &fakeAudit{}}, nil)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/engine/order-cancelled", map[string]any{"order_id": 100})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decode(t, resp)["restored"])
	assert.Equal(t, 1, hook.cancelCall)
}

func TestOrderCancelledUnknownOrderIs404(t *testing.T) {
	hook := &fakeLifecycle{cancelErr: fmt.Errorf("order 404: %w", catalog.ErrNotFound)}
	srv := newTestServer(&EngineHandler{Hook: hook, Stock: &fakeStock{}, Audit: &fakeAudit{}}, nil)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/engine/order-cancelled", map[string]any{"order_id": 404})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestPriceChangedRecordsAudit(t *testing.T) {
	aud := &fakeAudit{}
	srv := newTestServer(&EngineHandler{Hook: &fakeLifecycle{}, Stock: &fakeStock{}, Audit: aud}, nil)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/engine/price-changed",
		map[string]any{"product_id": 1, "old_price": "9.99", "new_price": "10.99"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, 1, aud.recorded)
}

func TestAvailability(t *testing.T) {
	srv := newTestServer(&EngineHandler{Hook: &fakeLifecycle{}, Stock: &fakeStock{available: true}, Audit: &fakeAudit{}}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/engine/availability?product_id=1&quantity=3")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decode(t, resp)["available"])

	resp, err = http.Get(srv.URL + "/engine/availability?product_id=1&quantity=0")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestStoreUnavailableIs503(t *testing.T) {
	stock := &fakeStock{err: fmt.Errorf("%w: connection refused", catalog.ErrStoreUnavailable)}
	srv := newTestServer(&EngineHandler{Hook: &fakeLifecycle{}, Stock: stock, Audit: &fakeAudit{}}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/engine/availability?product_id=1&quantity=3")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
}

func TestLowStockJSON(t *testing.T) {
	rep := &fakeReporter{low: []reports.LowStockRow{
		{ProductID: 2, Name: "Aspirin 500mg", Stock: 1, Threshold: 10},
		{ProductID: 1, Name: "Ibuprofen 200mg", Stock: 4, Threshold: 5},
	}}
	srv := newTestServer(nil, &ReportsHandler{Reports: rep})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/reports/low-stock")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, float64(2), body["count"])
}

func TestLowStockCSV(t *testing.T) {
	rep := &fakeReporter{low: []reports.LowStockRow{
		{ProductID: 2, Name: "Aspirin 500mg", Stock: 1, Threshold: 10},
	}}
	srv := newTestServer(nil, &ReportsHandler{Reports: rep})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/reports/low-stock?format=csv")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "product_id,name,stock,threshold", lines[0])
	assert.Equal(t, "2,Aspirin 500mg,1,10", lines[1])
}

func TestMonthlySalesValidation(t *testing.T) {
	srv := newTestServer(nil, &ReportsHandler{Reports: &fakeReporter{}})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/reports/monthly-sales?month=13&year=2024")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/reports/monthly-sales?year=2024")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestMonthlySalesJSON(t *testing.T) {
	rep := &fakeReporter{monthly: []reports.MonthlySalesRow{
		{ProductID: 1, Name: "Ibuprofen 200mg", UnitsSold: 12, Revenue: decimal.RequireFromString("131.88")},
	}}
	srv := newTestServer(nil, &ReportsHandler{Reports: rep})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/reports/monthly-sales?month=12&year=2024")
	require.NoError(t, err)
	body := decode(t, resp)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, float64(12), body["month"])
}

func TestBatchPriceUpdate(t *testing.T) {
	srv := newTestServer(nil, &ReportsHandler{Reports: &fakeReporter{batchCount: 2}})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/reports/batch-price-update",
		map[string]any{"category_id": 3, "percentage": 10})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), decode(t, resp)["updated_count"])
}

func TestBatchPriceUpdateUnknownCategoryIs404(t *testing.T) {
	rep := &fakeReporter{err: fmt.Errorf("category 9: %w", catalog.ErrNotFound)}
	srv := newTestServer(nil, &ReportsHandler{Reports: rep})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/reports/batch-price-update",
		map[string]any{"category_id": 9, "percentage": 10})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestUpdatePrice(t *testing.T) {
	aud := &fakeAudit{oldPrice: decimal.RequireFromString("9.99")}
	srv := newTestServer(&EngineHandler{Hook: &fakeLifecycle{}, Stock: &fakeStock{}, Audit: aud}, nil)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/products/1/price",
		strings.NewReader(`{"price":"10.99"}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "9.99", body["old_price"])
	assert.Equal(t, "10.99", body["new_price"])
}

func TestPriceAuditHistory(t *testing.T) {
	aud := &fakeAudit{history: []catalog.PriceAuditRecord{
		{ID: 1, ProductID: 1, OldPrice: decimal.RequireFromString("9.99"), NewPrice: decimal.RequireFromString("10.99")},
	}}
	srv := newTestServer(&EngineHandler{Hook: &fakeLifecycle{}, Stock: &fakeStock{}, Audit: aud}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/products/1/price-audit")
	require.NoError(t, err)
	assert.Equal(t, float64(1), decode(t, resp)["count"])
}

func TestCustomerOrders(t *testing.T) {
	rep := &fakeReporter{history: []reports.OrderHistoryRow{
		{OrderID: 1, Status: catalog.StatusDelivered, Total: decimal.RequireFromString("42.50"), ItemCount: 3},
	}}
	srv := newTestServer(nil, &ReportsHandler{Reports: rep})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/reports/customer-orders?user_id=7")
	require.NoError(t, err)
	assert.Equal(t, float64(1), decode(t, resp)["count"])

	resp, err = http.Get(srv.URL + "/reports/customer-orders")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}
