package salary

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

// Handler exposes salary distribution and the bill workflow over HTTP.
type Handler struct {
	logger      *slog.Logger
	distributor *Distributor
	tracker     *Tracker
	repo        Repository
	validate    *validator.Validate
}

// NewHandler builds the salary handler.
func NewHandler(logger *slog.Logger, distributor *Distributor, tracker *Tracker, repo Repository) *Handler {
	return &Handler{
		logger:      logger,
		distributor: distributor,
		tracker:     tracker,
		repo:        repo,
		validate:    validator.New(),
	}
}

// MountRoutes registers salary endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/distributions", h.Distribute)
	r.Get("/budgets", h.ListBudgets)
	r.Get("/budgets/alerts", h.Alerts)
	r.Get("/bills/{id}/validate", h.Validate)
	r.Post("/bills/{id}/submit", h.Submit)
	r.Post("/bills/{id}/approve", h.Approve)
	r.Post("/bills/{id}/cancel", h.Cancel)
}

type distributeRequest struct {
	FiscalYearID int64  `json:"fiscal_year_id"`
	FundID       int64  `json:"fund_id"`
	AccountID    int64  `json:"account_id"`
	TotalAmount  string `json:"total_amount" validate:"required"`
	DryRun       bool   `json:"dry_run"`
}

type shareResponse struct {
	DepartmentID int64  `json:"department_id"`
	Department   string `json:"department"`
	Headcount    int    `json:"headcount"`
	Amount       string `json:"amount"`
}

type budgetResponse struct {
	ID             int64  `json:"id"`
	DepartmentID   int64  `json:"department_id"`
	DepartmentName string `json:"department_name,omitempty"`
	FiscalYearID   int64  `json:"fiscal_year_id"`
	FundID         int64  `json:"fund_id"`
	AccountID      int64  `json:"account_id"`
	AccountCode    string `json:"account_code,omitempty"`
	Allocated      string `json:"allocated_amount"`
	Consumed       string `json:"consumed_amount"`
	Available      string `json:"available"`
	Utilization    string `json:"utilization_pct"`
}

func toBudgetResponse(b DepartmentBudget) budgetResponse {
	return budgetResponse{
		ID:             b.ID,
		DepartmentID:   b.DepartmentID,
		DepartmentName: b.DepartmentName,
		FiscalYearID:   b.FiscalYearID,
		FundID:         b.FundID,
		AccountID:      b.AccountID,
		AccountCode:    b.AccountCode,
		Allocated:      b.AllocatedAmount.StringFixed(2),
		Consumed:       b.ConsumedAmount.StringFixed(2),
		Available:      b.Available().StringFixed(2),
		Utilization:    b.Utilization().StringFixed(2),
	}
}

type billResponse struct {
	ID                 int64  `json:"id"`
	Number             string `json:"number"`
	Status             string `json:"status"`
	GrossAmount        string `json:"gross_amount"`
	CancellationReason string `json:"cancellation_reason,omitempty"`
}

func toBillResponse(b Bill) billResponse {
	return billResponse{
		ID:                 b.ID,
		Number:             b.Number,
		Status:             string(b.Status),
		GrossAmount:        b.GrossAmount.StringFixed(2),
		CancellationReason: b.CancellationReason,
	}
}

func (h *Handler) Distribute(w http.ResponseWriter, r *http.Request) {
	var req distributeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	total, err := decimal.NewFromString(req.TotalAmount)
	if err != nil || !total.IsPositive() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "total_amount must be a positive decimal")
		return
	}
	if req.DryRun {
		shares, err := h.distributor.Plan(r.Context(), total)
		if err != nil {
			h.respondErr(w, err)
			return
		}
		out := make([]shareResponse, 0, len(shares))
		for _, s := range shares {
			out = append(out, shareResponse{
				DepartmentID: s.DepartmentID,
				Department:   s.Name,
				Headcount:    s.Headcount,
				Amount:       s.Amount.StringFixed(2),
			})
		}
		httpx.JSON(w, http.StatusOK, out)
		return
	}
	if req.FiscalYearID == 0 || req.FundID == 0 || req.AccountID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "fiscal_year_id, fund_id and account_id are required")
		return
	}
	budgets, err := h.distributor.Distribute(r.Context(), req.FiscalYearID, req.FundID, req.AccountID, total)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	out := make([]budgetResponse, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, toBudgetResponse(b))
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	fyID, _ := strconv.ParseInt(r.URL.Query().Get("fiscal_year_id"), 10, 64)
	if fyID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "fiscal_year_id is required")
		return
	}
	budgets, err := h.repo.ListDepartmentBudgets(r.Context(), fyID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	out := make([]budgetResponse, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, toBudgetResponse(b))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) Alerts(w http.ResponseWriter, r *http.Request) {
	fyID, _ := strconv.ParseInt(r.URL.Query().Get("fiscal_year_id"), 10, 64)
	if fyID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "fiscal_year_id is required")
		return
	}
	threshold := decimal.NewFromInt(90)
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "threshold must be a decimal percentage")
			return
		}
		threshold = parsed
	}
	budgets, err := h.tracker.HighUtilization(r.Context(), fyID, threshold)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	out := make([]budgetResponse, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, toBudgetResponse(b))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	problems, err := h.tracker.Validate(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"valid":    len(problems) == 0,
		"problems": problems,
	})
}

type billActionRequest struct {
	ActorID int64  `json:"actor_id" validate:"required"`
	Reason  string `json:"reason"`
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	h.billAction(w, r, func(billID, actorID int64, _ string) (Bill, error) {
		return h.tracker.Submit(r.Context(), billID, actorID)
	})
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.billAction(w, r, func(billID, actorID int64, _ string) (Bill, error) {
		return h.tracker.Approve(r.Context(), billID, actorID)
	})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.billAction(w, r, func(billID, actorID int64, reason string) (Bill, error) {
		return h.tracker.Cancel(r.Context(), billID, actorID, reason)
	})
}

func (h *Handler) billAction(w http.ResponseWriter, r *http.Request, fn func(billID, actorID int64, reason string) (Bill, error)) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req billActionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	bill, err := fn(id, req.ActorID, req.Reason)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBillResponse(bill))
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bill id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.ProblemWithErrors(w, http.StatusUnprocessableEntity, "Budget Validation Failed", verr.Messages)
	case errors.Is(err, ErrBillNotFound), errors.Is(err, ErrBudgetNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, ErrInsufficientBudget):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Budget", err.Error())
	case errors.Is(err, ErrNoEligibleEmployees):
		httpx.Problem(w, http.StatusPreconditionFailed, "No Eligible Employees", err.Error())
	default:
		h.logger.Error("salary request failed", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
