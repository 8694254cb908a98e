package procurement

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/po-master/po-master/internal/platform/httpx"
	"github.com/po-master/po-master/internal/shared"
)

const maxInvoiceBytes = 10 << 20

// Handler exposes procurement writes and lists as JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/projects", h.listProjects)
	r.Post("/projects", h.createProject)
	r.Get("/projects/{id}", h.getProject)
	r.Put("/projects/{id}", h.updateProject)

	r.Get("/suppliers", h.listSuppliers)
	r.Post("/suppliers", h.createSupplier)

	r.Get("/currencies", h.listCurrencies)
	r.Post("/currencies", h.createCurrency)

	r.Get("/purchase-orders", h.listPurchaseOrders)
	r.Post("/purchase-orders", h.createPurchaseOrder)
	r.Get("/purchase-orders/{id}", h.getPurchaseOrder)
	r.Put("/purchase-orders/{id}", h.updatePurchaseOrder)
	r.Delete("/purchase-orders/{id}", h.deletePurchaseOrder)
	r.Get("/purchase-orders/{id}/schedules", h.listSchedules)
	r.Post("/purchase-orders/{id}/schedules", h.addSchedule)

	r.Get("/payments", h.listPayments)
	r.Post("/payments", h.recordPayment)
	r.Post("/payments/{id}/invoice", h.attachInvoice)
}

func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.service.ListProjects(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"projects": emptyIfNil(projects)})
}

func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	var input ProjectInput
	if !h.decode(w, r, &input) {
		return
	}
	project, err := h.service.CreateProject(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, project)
}

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	project, err := h.service.GetProject(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, project)
}

func (h *Handler) updateProject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var input ProjectInput
	if !h.decode(w, r, &input) {
		return
	}
	project, err := h.service.UpdateProject(r.Context(), id, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, project)
}

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.service.ListSuppliers(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"suppliers": emptyIfNil(suppliers)})
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	var input SupplierInput
	if !h.decode(w, r, &input) {
		return
	}
	supplier, err := h.service.CreateSupplier(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, supplier)
}

func (h *Handler) listCurrencies(w http.ResponseWriter, r *http.Request) {
	currencies, err := h.service.ListCurrencies(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"currencies": emptyIfNil(currencies)})
}

func (h *Handler) createCurrency(w http.ResponseWriter, r *http.Request) {
	var input CurrencyInput
	if !h.decode(w, r, &input) {
		return
	}
	currency, err := h.service.CreateCurrency(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, currency)
}

func (h *Handler) listPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.queryID(w, r, "project_id")
	if !ok {
		return
	}
	pos, err := h.service.ListPurchaseOrders(r.Context(), projectID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purchase_orders": emptyIfNil(pos)})
}

func (h *Handler) createPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var input CreatePOInput
	if !h.decode(w, r, &input) {
		return
	}
	record, err := h.service.CreatePurchaseOrder(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, record)
}

func (h *Handler) getPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	record, err := h.service.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, record)
}

func (h *Handler) updatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var input POHeaderInput
	if !h.decode(w, r, &input) {
		return
	}
	po, err := h.service.UpdatePurchaseOrder(r.Context(), id, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) deletePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeletePurchaseOrder(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listSchedules(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	schedules, err := h.service.ListSchedules(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"schedules": emptyIfNil(schedules)})
}

func (h *Handler) addSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var input TrancheInput
	if !h.decode(w, r, &input) {
		return
	}
	schedule, err := h.service.AddSchedule(r.Context(), id, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, schedule)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	poID, ok := h.queryID(w, r, "po_id")
	if !ok {
		return
	}
	payments, err := h.service.ListPayments(r.Context(), poID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": emptyIfNil(payments)})
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var input PaymentInput
	if !h.decode(w, r, &input) {
		return
	}
	input.IdempotencyKey = r.Header.Get("Idempotency-Key")
	result, err := h.service.RecordPayment(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) attachInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxInvoiceBytes)
	if err := r.ParseMultipartForm(maxInvoiceBytes); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "expected multipart form with a file field")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "file field is required")
		return
	}
	defer file.Close()
	payment, err := h.service.AttachInvoice(r.Context(), id, InvoiceFile{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) queryID(w http.ResponseWriter, r *http.Request, name string) (*uuid.UUID, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", name+" must be a UUID")
		return nil, false
	}
	return &id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrStorageDisabled):
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", err.Error())
		return
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrConflict):
		h.logger.Info("procurement request rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
	default:
		h.logger.Error("procurement request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func emptyIfNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
