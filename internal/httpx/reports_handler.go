package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matuskudlac/mediguide-inventory/internal/reports"
)

// Reporter is the reporting engine surface.
type Reporter interface {
	LowStock(ctx context.Context) ([]reports.LowStockRow, error)
	MonthlySales(ctx context.Context, month, year int) ([]reports.MonthlySalesRow, error)
	BatchUpdatePricesByCategory(ctx context.Context, categoryID int64, pct float64) (int, error)
	CustomerOrderHistory(ctx context.Context, userID int64) ([]reports.OrderHistoryRow, error)
}

type ReportsHandler struct {
	Reports Reporter
}

func (h *ReportsHandler) Register(r *chi.Mux) {
	r.Get("/reports/low-stock", h.lowStock)
	r.Get("/reports/monthly-sales", h.monthlySales)
	r.Post("/reports/batch-price-update", h.batchPriceUpdate)
	r.Get("/reports/customer-orders", h.customerOrders)
}

func (h *ReportsHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	rows, err := h.Reports.LowStock(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		recs := make([][]string, 0, len(rows))
		for _, row := range rows {
			recs = append(recs, []string{
				strconv.FormatInt(row.ProductID, 10), row.Name,
				strconv.Itoa(row.Stock), strconv.Itoa(row.Threshold),
			})
		}
		writeCSV(w, "low_stock_report.csv",
			[]string{"product_id", "name", "stock", "threshold"}, recs)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": rows, "count": len(rows)})
}

func (h *ReportsHandler) monthlySales(w http.ResponseWriter, r *http.Request) {
	month, err1 := strconv.Atoi(r.URL.Query().Get("month"))
	year, err2 := strconv.Atoi(r.URL.Query().Get("year"))
	if err1 != nil || err2 != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "month and year are required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	rows, err := h.Reports.MonthlySales(ctx, month, year)
	if err != nil {
		writeErr(w, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		recs := make([][]string, 0, len(rows))
		for _, row := range rows {
			recs = append(recs, []string{
				strconv.FormatInt(row.ProductID, 10), row.Name,
				strconv.FormatInt(row.UnitsSold, 10), row.Revenue.StringFixed(2),
			})
		}
		writeCSV(w, fmt.Sprintf("monthly_sales_%d_%d.csv", month, year),
			[]string{"product_id", "name", "units_sold", "revenue"}, recs)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": rows, "count": len(rows), "month": month, "year": year,
	})
}

type batchPriceUpdateReq struct {
	CategoryID int64   `json:"category_id"`
	Percentage float64 `json:"percentage"`
}

func (h *ReportsHandler) batchPriceUpdate(w http.ResponseWriter, r *http.Request) {
	var req batchPriceUpdateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.CategoryID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing category_id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	count, err := h.Reports.BatchUpdatePricesByCategory(ctx, req.CategoryID, req.Percentage)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"updated_count": count,
		"category_id":   req.CategoryID,
		"percentage":    req.Percentage,
	})
}

func (h *ReportsHandler) customerOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user_id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	rows, err := h.Reports.CustomerOrderHistory(ctx, userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": rows, "count": len(rows)})
}
