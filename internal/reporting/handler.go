package reporting

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/po-master/po-master/internal/platform/httpx"
	"github.com/po-master/po-master/internal/reports"
	"github.com/po-master/po-master/internal/shared"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler exposes report views as JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/dashboard", h.dashboard)
	r.Get("/reports/summary", h.summary)
	r.Get("/reports/export.xlsx", h.export)
	r.Get("/projects/overview", h.projects)
	r.Get("/purchase-orders/overview", h.purchaseOrders)
	r.Get("/purchase-orders/{id}/detail", h.purchaseOrderDetail)
	r.Get("/payments/overview", h.payments)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	vm, err := h.service.Dashboard(r.Context(), asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vm)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	vm, err := h.service.Summary(r.Context(), asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vm)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	raw, err := h.service.ExportXLSX(r.Context(), asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="po-report-`+FormatDate(asOf)+`.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (h *Handler) projects(w http.ResponseWriter, r *http.Request) {
	vm, err := h.service.Projects(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vm)
}

func (h *Handler) purchaseOrders(w http.ResponseWriter, r *http.Request) {
	vm, err := h.service.PurchaseOrders(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vm)
}

func (h *Handler) purchaseOrderDetail(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "id must be a UUID")
		return
	}
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	vm, err := h.service.PurchaseOrderDetail(r.Context(), id, asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vm)
}

func (h *Handler) payments(w http.ResponseWriter, r *http.Request) {
	vm, err := h.service.Payments(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vm)
}

// asOf reads the as_of query parameter, defaulting to today in the report time zone.
func (h *Handler) asOf(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("as_of"))
	if raw == "" {
		return h.service.Today(), true
	}
	t, err := time.ParseInLocation(dateLayout, raw, h.service.loc)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "as_of must be formatted YYYY-MM-DD")
		return time.Time{}, false
	}
	return reports.DateOnly(t), true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Error("report request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err)
}
