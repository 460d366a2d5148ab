package budget

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/civicledger/civicledger/internal/platform/httpx"
)

// Handler exposes budget allocations over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds the allocation handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers allocation endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/allocations", h.List)
	r.Put("/allocations", h.Seed)
	r.Get("/allocations/{accountID}", h.Get)
}

type seedRequest struct {
	OrgID              int64  `json:"org_id" validate:"required"`
	FiscalYearID       int64  `json:"fiscal_year_id" validate:"required"`
	AccountID          int64  `json:"account_id" validate:"required"`
	OriginalAllocation string `json:"original_allocation" validate:"required"`
	RevisedAllocation  string `json:"revised_allocation"`
	ReleasedAmount     string `json:"released_amount"`
	PreviousYearActual string `json:"previous_year_actual"`
	CurrentYearBudget  string `json:"current_year_budget"`
	Remarks            string `json:"remarks"`
}

type allocationResponse struct {
	ID                 int64  `json:"id"`
	OrgID              int64  `json:"org_id"`
	FiscalYearID       int64  `json:"fiscal_year_id"`
	AccountID          int64  `json:"account_id"`
	OriginalAllocation string `json:"original_allocation"`
	RevisedAllocation  string `json:"revised_allocation"`
	ReleasedAmount     string `json:"released_amount"`
	SpentAmount        string `json:"spent_amount"`
	Available          string `json:"available"`
	Utilization        string `json:"utilization_pct"`
	Remarks            string `json:"remarks,omitempty"`
}

func toAllocationResponse(a Allocation) allocationResponse {
	return allocationResponse{
		ID:                 a.ID,
		OrgID:              a.OrgID,
		FiscalYearID:       a.FiscalYearID,
		AccountID:          a.AccountID,
		OriginalAllocation: a.OriginalAllocation.StringFixed(2),
		RevisedAllocation:  a.RevisedAllocation.StringFixed(2),
		ReleasedAmount:     a.ReleasedAmount.StringFixed(2),
		SpentAmount:        a.SpentAmount.StringFixed(2),
		Available:          a.Available().StringFixed(2),
		Utilization:        a.Utilization().StringFixed(2),
		Remarks:            a.Remarks,
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, fyID, ok := scopeParams(w, r)
	if !ok {
		return
	}
	allocations, err := h.service.List(r.Context(), orgID, fyID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	out := make([]allocationResponse, 0, len(allocations))
	for _, a := range allocations {
		out = append(out, toAllocationResponse(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, fyID, ok := scopeParams(w, r)
	if !ok {
		return
	}
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	allocation, err := h.service.Get(r.Context(), orgID, fyID, accountID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAllocationResponse(allocation))
}

func (h *Handler) Seed(w http.ResponseWriter, r *http.Request) {
	var req seedRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	allocation := Allocation{
		OrgID:        req.OrgID,
		FiscalYearID: req.FiscalYearID,
		AccountID:    req.AccountID,
		Remarks:      req.Remarks,
	}
	var err error
	fields := []struct {
		src string
		dst *decimal.Decimal
	}{
		{req.OriginalAllocation, &allocation.OriginalAllocation},
		{req.RevisedAllocation, &allocation.RevisedAllocation},
		{req.ReleasedAmount, &allocation.ReleasedAmount},
		{req.PreviousYearActual, &allocation.PreviousYearActual},
		{req.CurrentYearBudget, &allocation.CurrentYearBudget},
	}
	for _, f := range fields {
		if f.src == "" {
			continue
		}
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amounts must be decimal strings")
			return
		}
	}
	seeded, err := h.service.Seed(r.Context(), allocation)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAllocationResponse(seeded))
}

func scopeParams(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	orgID, _ := strconv.ParseInt(r.URL.Query().Get("org_id"), 10, 64)
	fyID, _ := strconv.ParseInt(r.URL.Query().Get("fiscal_year_id"), 10, 64)
	if orgID == 0 || fyID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "org_id and fiscal_year_id are required")
		return 0, 0, false
	}
	return orgID, fyID, true
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrAllocationNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	h.logger.Error("allocation request failed", "error", err)
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
