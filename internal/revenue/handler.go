package revenue

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/civicledger/civicledger/internal/ledger"
	"github.com/civicledger/civicledger/internal/platform/httpx"
)

// Handler exposes the demand and collection workflows over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds the revenue handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers revenue endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/demands", h.ListDemands)
	r.Post("/demands", h.CreateDemand)
	r.Get("/demands/{id}", h.GetDemand)
	r.Post("/demands/{id}/post", h.PostDemand)
	r.Post("/demands/{id}/cancel", h.CancelDemand)
	r.Get("/demands/{id}/collections", h.ListCollections)
	r.Post("/collections", h.CreateCollection)
	r.Post("/collections/{id}/post", h.PostCollection)
	r.Post("/collections/{id}/cancel", h.CancelCollection)
}

type createDemandRequest struct {
	OrgID            int64  `json:"org_id" validate:"required"`
	FiscalYearID     int64  `json:"fiscal_year_id" validate:"required"`
	PayerID          int64  `json:"payer_id" validate:"required"`
	RevenueAccountID int64  `json:"revenue_account_id" validate:"required"`
	Description      string `json:"description"`
	Amount           string `json:"amount" validate:"required"`
	DemandDate       string `json:"demand_date" validate:"required"`
	DueDate          string `json:"due_date"`
}

type createCollectionRequest struct {
	DemandID      int64  `json:"demand_id" validate:"required"`
	BankAccountID int64  `json:"bank_account_id" validate:"required"`
	Amount        string `json:"amount" validate:"required"`
	ReceiptNo     string `json:"receipt_no"`
	Date          string `json:"date" validate:"required"`
}

type actionRequest struct {
	ActorID int64  `json:"actor_id" validate:"required"`
	Reason  string `json:"reason"`
}

type demandResponse struct {
	ID           int64  `json:"id"`
	Ref          string `json:"ref"`
	PayerID      int64  `json:"payer_id"`
	PayerName    string `json:"payer_name,omitempty"`
	Description  string `json:"description,omitempty"`
	Amount       string `json:"amount"`
	Collected    string `json:"collected_amount"`
	Outstanding  string `json:"outstanding"`
	Status       string `json:"status"`
	DemandDate   string `json:"demand_date"`
	DueDate      string `json:"due_date,omitempty"`
	VoucherID    *int64 `json:"voucher_id,omitempty"`
	CancelReason string `json:"cancel_reason,omitempty"`
}

func toDemandResponse(d Demand) demandResponse {
	out := demandResponse{
		ID:           d.ID,
		Ref:          d.Ref.String(),
		PayerID:      d.PayerID,
		PayerName:    d.PayerName,
		Description:  d.Description,
		Amount:       d.Amount.StringFixed(2),
		Collected:    d.CollectedAmount.StringFixed(2),
		Outstanding:  d.Outstanding().StringFixed(2),
		Status:       string(d.Status),
		DemandDate:   d.DemandDate.Format("2006-01-02"),
		VoucherID:    d.VoucherID,
		CancelReason: d.CancelReason,
	}
	if d.DueDate != nil {
		out.DueDate = d.DueDate.Format("2006-01-02")
	}
	return out
}

type collectionResponse struct {
	ID           int64  `json:"id"`
	Ref          string `json:"ref"`
	DemandID     int64  `json:"demand_id"`
	Amount       string `json:"amount"`
	ReceiptNo    string `json:"receipt_no,omitempty"`
	Date         string `json:"date"`
	Status       string `json:"status"`
	VoucherID    *int64 `json:"voucher_id,omitempty"`
	CancelReason string `json:"cancel_reason,omitempty"`
}

func toCollectionResponse(c Collection) collectionResponse {
	return collectionResponse{
		ID:           c.ID,
		Ref:          c.Ref.String(),
		DemandID:     c.DemandID,
		Amount:       c.Amount.StringFixed(2),
		ReceiptNo:    c.ReceiptNo,
		Date:         c.Date.Format("2006-01-02"),
		Status:       string(c.Status),
		VoucherID:    c.VoucherID,
		CancelReason: c.CancelReason,
	}
}

func (h *Handler) ListDemands(w http.ResponseWriter, r *http.Request) {
	orgID, _ := strconv.ParseInt(r.URL.Query().Get("org_id"), 10, 64)
	fyID, _ := strconv.ParseInt(r.URL.Query().Get("fiscal_year_id"), 10, 64)
	if orgID == 0 || fyID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "org_id and fiscal_year_id are required")
		return
	}
	demands, err := h.service.ListDemands(r.Context(), orgID, fyID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	out := make([]demandResponse, 0, len(demands))
	for _, d := range demands {
		out = append(out, toDemandResponse(d))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) CreateDemand(w http.ResponseWriter, r *http.Request) {
	var req createDemandRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal string")
		return
	}
	demandDate, err := time.Parse("2006-01-02", req.DemandDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "demand_date must be YYYY-MM-DD")
		return
	}
	var dueDate *time.Time
	if req.DueDate != "" {
		parsed, err := time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "due_date must be YYYY-MM-DD")
			return
		}
		dueDate = &parsed
	}
	demand, err := h.service.CreateDemand(r.Context(), CreateDemandInput{
		OrgID:            req.OrgID,
		FiscalYearID:     req.FiscalYearID,
		PayerID:          req.PayerID,
		RevenueAccountID: req.RevenueAccountID,
		Description:      req.Description,
		Amount:           amount,
		DemandDate:       demandDate,
		DueDate:          dueDate,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDemandResponse(demand))
}

func (h *Handler) GetDemand(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	demand, err := h.service.GetDemand(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDemandResponse(demand))
}

func (h *Handler) PostDemand(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	req, ok := h.action(w, r)
	if !ok {
		return
	}
	demand, err := h.service.PostDemand(r.Context(), id, req.ActorID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDemandResponse(demand))
}

func (h *Handler) CancelDemand(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	req, ok := h.action(w, r)
	if !ok {
		return
	}
	demand, err := h.service.CancelDemand(r.Context(), id, req.ActorID, req.Reason)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDemandResponse(demand))
}

func (h *Handler) ListCollections(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	collections, err := h.service.ListCollections(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	out := make([]collectionResponse, 0, len(collections))
	for _, c := range collections {
		out = append(out, toCollectionResponse(c))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal string")
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}
	collection, err := h.service.CreateCollection(r.Context(), CreateCollectionInput{
		DemandID:      req.DemandID,
		BankAccountID: req.BankAccountID,
		Amount:        amount,
		ReceiptNo:     req.ReceiptNo,
		Date:          date,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toCollectionResponse(collection))
}

func (h *Handler) PostCollection(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	req, ok := h.action(w, r)
	if !ok {
		return
	}
	collection, err := h.service.PostCollection(r.Context(), id, req.ActorID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCollectionResponse(collection))
}

func (h *Handler) CancelCollection(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	req, ok := h.action(w, r)
	if !ok {
		return
	}
	collection, err := h.service.CancelCollection(r.Context(), id, req.ActorID, req.Reason)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCollectionResponse(collection))
}

func (h *Handler) action(w http.ResponseWriter, r *http.Request) (actionRequest, bool) {
	var req actionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return req, false
	}
	return req, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDemandNotFound), errors.Is(err, ErrCollectionNotFound),
		errors.Is(err, ErrPayerNotFound), errors.Is(err, ErrBankAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrHasPostedCollections):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, ErrExceedsOutstanding):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Exceeds Outstanding", err.Error())
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrNotRevenueAccount):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrBankAccountNoGL), errors.Is(err, ErrNoActiveFund),
		errors.Is(err, ErrMissingSystemAccount):
		httpx.Problem(w, http.StatusPreconditionFailed, "Configuration Incomplete", err.Error())
	case ledger.IsTransitionErr(err), errors.Is(err, ledger.ErrFiscalYearLocked):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	default:
		h.logger.Error("revenue request failed", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
