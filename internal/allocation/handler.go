package allocation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/parkwind-erp/parkwind-erp/internal/membership"
	"github.com/parkwind-erp/parkwind-erp/internal/observability"
	"github.com/parkwind-erp/parkwind-erp/internal/platform/httpx"
	"github.com/parkwind-erp/parkwind-erp/internal/settlement"
	"github.com/parkwind-erp/parkwind-erp/internal/shared"
	"github.com/parkwind-erp/parkwind-erp/internal/taxrate"
)

// TaskEnqueuer schedules background work after an allocation run. Enqueue
// failures are logged, never surfaced; the allocation itself already
// committed.
type TaskEnqueuer interface {
	EnqueueAllocationWarm(ctx context.Context, tenantID, allocationID int64) error
}

// Handler manages allocation endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	cache     *Cache
	tasks     TaskEnqueuer
	metrics   *observability.Metrics
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, cache *Cache, tasks TaskEnqueuer, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		cache:     cache,
		tasks:     tasks,
		metrics:   metrics,
		validator: validator.New(),
	}
}

// detailGroup dedupes concurrent cache rebuilds of the same allocation.
var detailGroup singleflight.Group

// MountRoutes registers allocation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/settlements/{settlementID}/allocation", func(r chi.Router) {
		r.Post("/", h.createAllocation)
		r.Get("/", h.getBySettlement)
	})
	r.Route("/allocations/{allocationID}", func(r chi.Router) {
		r.Get("/", h.getAllocation)
		r.Post("/void", h.voidAllocation)
	})
	r.Get("/parks/{parkID}/shares", h.previewShares)
}

func (h *Handler) createAllocation(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	settlementID, ok := pathID(w, r, "settlementID")
	if !ok {
		return
	}

	var req CreateAllocationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	start := time.Now()
	alloc, err := h.service.Execute(r.Context(), tenantID, settlementID, req.PeriodLabel, req.Notes)
	h.metrics.ObserveAllocationRun(runOutcome(err), time.Since(start))
	if err != nil {
		h.respondRunError(w, err)
		return
	}

	if h.tasks != nil {
		if err := h.tasks.EnqueueAllocationWarm(r.Context(), tenantID, alloc.ID); err != nil {
			h.logger.Warn("enqueue allocation warm",
				slog.Int64("allocation", alloc.ID), slog.Any("error", err))
		}
	}

	httpx.JSON(w, http.StatusCreated, NewAllocationResponse(alloc))
}

func (h *Handler) getBySettlement(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	settlementID, ok := pathID(w, r, "settlementID")
	if !ok {
		return
	}

	alloc, err := h.service.GetBySettlement(r.Context(), tenantID, settlementID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "no allocation exists for this settlement")
			return
		}
		h.logger.Error("get allocation by settlement", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewAllocationResponse(alloc))
}

func (h *Handler) getAllocation(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	allocationID, ok := pathID(w, r, "allocationID")
	if !ok {
		return
	}

	if payload, hit := h.cache.GetDetail(r.Context(), tenantID, allocationID); hit {
		writeJSONBytes(w, http.StatusOK, payload)
		return
	}

	key := detailKey(tenantID, allocationID)
	result, err, _ := detailGroup.Do(key, func() (interface{}, error) {
		alloc, err := h.service.Get(r.Context(), tenantID, allocationID)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(NewAllocationResponse(alloc))
		if err != nil {
			return nil, err
		}
		h.cache.SetDetail(r.Context(), tenantID, allocationID, payload)
		return payload, nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "allocation not found")
			return
		}
		h.logger.Error("get allocation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	writeJSONBytes(w, http.StatusOK, result.([]byte))
}

func (h *Handler) voidAllocation(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	allocationID, ok := pathID(w, r, "allocationID")
	if !ok {
		return
	}

	if err := h.service.Void(r.Context(), tenantID, allocationID); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			httpx.Problem(w, http.StatusNotFound, "Not Found", "allocation not found")
		case errors.Is(err, ErrNotVoidable):
			httpx.Problem(w, http.StatusConflict, "Not Voidable", err.Error())
		default:
			h.logger.Error("void allocation", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}

	h.cache.Invalidate(r.Context(), tenantID, allocationID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) previewShares(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	parkID, ok := pathID(w, r, "parkID")
	if !ok {
		return
	}

	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "year query parameter required")
		return
	}
	mode := ModeProportional
	if raw := r.URL.Query().Get("mode"); raw != "" {
		mode, err = ParseMode(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
	}

	shares, err := h.service.PreviewShares(r.Context(), tenantID, parkID, year, mode)
	if err != nil {
		h.respondRunError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewShareResponses(shares))
}

// respondRunError translates allocation-run failures into problem responses.
// The conflict case is surfaced distinctly so a UI can offer "view existing
// allocation" instead of a blind retry.
func (h *Handler) respondRunError(w http.ResponseWriter, err error) {
	var stateErr *InvalidStateError
	switch {
	case errors.Is(err, settlement.ErrNotFound), errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "settlement not found")
	case errors.Is(err, ErrAllocationExists):
		httpx.Problem(w, http.StatusConflict, "Allocation Exists",
			"an allocation already exists for this settlement; void it before recomputing")
	case errors.As(err, &stateErr):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Settlement State", stateErr.Error())
	case errors.Is(err, ErrNoBeneficiaries), errors.Is(err, membership.ErrNoMembers):
		httpx.Problem(w, http.StatusUnprocessableEntity, "No Beneficiaries", err.Error())
	case errors.Is(err, ErrUnknownMode), errors.Is(err, membership.ErrInvalidYear),
		errors.Is(err, taxrate.ErrNoRateForDate):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Not Computable", err.Error())
	default:
		h.logger.Error("allocation run", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func runOutcome(err error) string {
	var stateErr *InvalidStateError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrAllocationExists):
		return "conflict"
	case errors.Is(err, settlement.ErrNotFound), errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.As(err, &stateErr):
		return "invalid_state"
	case errors.Is(err, ErrNoBeneficiaries), errors.Is(err, membership.ErrNoMembers):
		return "no_beneficiaries"
	default:
		return "error"
	}
}

func (h *Handler) tenant(w http.ResponseWriter, r *http.Request) (int64, bool) {
	tenantID := shared.TenantFromContext(r.Context())
	if tenantID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", "X-Tenant-ID header missing or invalid")
		return 0, false
	}
	return tenantID, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+name)
		return 0, false
	}
	return id, true
}

func writeJSONBytes(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
