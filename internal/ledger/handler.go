package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/civicledger/civicledger/internal/platform/httpx"
)

// Handler exposes the voucher engine over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds the voucher handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

type entryRequest struct {
	AccountID   int64  `json:"account_id" validate:"required"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
	Description string `json:"description"`
}

type createVoucherRequest struct {
	OrgID        int64          `json:"org_id" validate:"required"`
	FiscalYearID int64          `json:"fiscal_year_id" validate:"required"`
	Date         string         `json:"date" validate:"required"`
	Type         string         `json:"type" validate:"required"`
	FundID       int64          `json:"fund_id" validate:"required"`
	Payee        string         `json:"payee"`
	ReferenceNo  string         `json:"reference_no"`
	Description  string         `json:"description"`
	Entries      []entryRequest `json:"entries" validate:"dive"`
}

type actorRequest struct {
	ActorID int64 `json:"actor_id" validate:"required"`
}

type unpostRequest struct {
	ActorID int64  `json:"actor_id" validate:"required"`
	Reason  string `json:"reason" validate:"required"`
}

type entryResponse struct {
	ID          int64  `json:"id"`
	AccountID   int64  `json:"account_id"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
	Description string `json:"description,omitempty"`
}

type voucherResponse struct {
	ID             int64           `json:"id"`
	Number         string          `json:"number"`
	OrgID          int64           `json:"org_id"`
	FiscalYearID   int64           `json:"fiscal_year_id"`
	Date           string          `json:"date"`
	Type           VoucherType     `json:"type"`
	FundID         int64           `json:"fund_id"`
	Payee          string          `json:"payee,omitempty"`
	ReferenceNo    string          `json:"reference_no,omitempty"`
	Description    string          `json:"description,omitempty"`
	Posted         bool            `json:"posted"`
	PostedAt       *time.Time      `json:"posted_at,omitempty"`
	Reversed       bool            `json:"reversed"`
	ReversedAt     *time.Time      `json:"reversed_at,omitempty"`
	ReversalReason string          `json:"reversal_reason,omitempty"`
	TotalDebit     string          `json:"total_debit"`
	TotalCredit    string          `json:"total_credit"`
	Entries        []entryResponse `json:"entries,omitempty"`
}

func toVoucherResponse(v Voucher) voucherResponse {
	out := voucherResponse{
		ID:             v.ID,
		Number:         v.Number,
		OrgID:          v.OrgID,
		FiscalYearID:   v.FiscalYearID,
		Date:           v.Date.Format("2006-01-02"),
		Type:           v.Type,
		FundID:         v.FundID,
		Payee:          v.Payee,
		ReferenceNo:    v.ReferenceNo,
		Description:    v.Description,
		Posted:         v.Posted,
		PostedAt:       v.PostedAt,
		Reversed:       v.Reversed,
		ReversedAt:     v.ReversedAt,
		ReversalReason: v.ReversalReason,
		TotalDebit:     v.TotalDebit().StringFixed(2),
		TotalCredit:    v.TotalCredit().StringFixed(2),
	}
	for _, e := range v.Entries {
		out.Entries = append(out.Entries, entryResponse{
			ID:          e.ID,
			AccountID:   e.AccountID,
			Debit:       e.Debit.StringFixed(2),
			Credit:      e.Credit.StringFixed(2),
			Description: e.Description,
		})
	}
	return out
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createVoucherRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := h.toInput(req)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := input.Validate(); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	voucher, err := h.service.CreateVoucher(r.Context(), input)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toVoucherResponse(voucher))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	voucher, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toVoucherResponse(voucher))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID, _ := strconv.ParseInt(r.URL.Query().Get("org_id"), 10, 64)
	fyID, _ := strconv.ParseInt(r.URL.Query().Get("fiscal_year_id"), 10, 64)
	if orgID == 0 || fyID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "org_id and fiscal_year_id are required")
		return
	}
	vouchers, err := h.service.List(r.Context(), orgID, fyID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	out := make([]voucherResponse, 0, len(vouchers))
	for _, v := range vouchers {
		out = append(out, toVoucherResponse(v))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) AddEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req entryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	input, err := toEntryInput(req)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.AddEntry(r.Context(), id, input)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entryResponse{
		ID:          entry.ID,
		AccountID:   entry.AccountID,
		Debit:       entry.Debit.StringFixed(2),
		Credit:      entry.Credit.StringFixed(2),
		Description: entry.Description,
	})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteVoucher(r.Context(), id); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req actorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.ActorID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "actor_id is required")
		return
	}
	voucher, err := h.service.Post(r.Context(), id, req.ActorID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toVoucherResponse(voucher))
}

func (h *Handler) Unpost(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req unpostRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	voucher, err := h.service.Unpost(r.Context(), UnpostInput{VoucherID: id, ActorID: req.ActorID, Reason: req.Reason})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toVoucherResponse(voucher))
}

func (h *Handler) toInput(req createVoucherRequest) (CreateVoucherInput, error) {
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return CreateVoucherInput{}, errors.New("date must be YYYY-MM-DD")
	}
	input := CreateVoucherInput{
		OrgID:        req.OrgID,
		FiscalYearID: req.FiscalYearID,
		Date:         date,
		Type:         VoucherType(req.Type),
		FundID:       req.FundID,
		Payee:        req.Payee,
		ReferenceNo:  req.ReferenceNo,
		Description:  req.Description,
	}
	for _, e := range req.Entries {
		entry, err := toEntryInput(e)
		if err != nil {
			return CreateVoucherInput{}, err
		}
		input.Entries = append(input.Entries, entry)
	}
	return input, nil
}

func toEntryInput(req entryRequest) (EntryInput, error) {
	input := EntryInput{AccountID: req.AccountID, Description: req.Description}
	var err error
	if req.Debit != "" {
		if input.Debit, err = decimal.NewFromString(req.Debit); err != nil {
			return EntryInput{}, errors.New("debit must be a decimal amount")
		}
	}
	if req.Credit != "" {
		if input.Credit, err = decimal.NewFromString(req.Credit); err != nil {
			return EntryInput{}, errors.New("credit must be a decimal amount")
		}
	}
	return input, nil
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid voucher id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrVoucherNotFound), errors.Is(err, ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case IsTransitionErr(err), errors.Is(err, ErrFiscalYearLocked), errors.Is(err, ErrSourceAlreadyLinked):
		httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
	case errors.Is(err, ErrBudgetExceeded):
		httpx.Problem(w, http.StatusConflict, "Budget Exceeded", err.Error())
	case errors.Is(err, ErrUnbalanced), errors.Is(err, ErrNoEntries), errors.Is(err, ErrPostingNotAllowed):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Cannot Post", err.Error())
	case errors.Is(err, ErrInvalidEntry):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("voucher request failed", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
