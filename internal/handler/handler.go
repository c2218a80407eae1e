// Package handler contains the HTTP handlers of the frontbill API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/eric2umeh/frontbill/internal/middleware"
	"github.com/eric2umeh/frontbill/internal/model"
	"github.com/eric2umeh/frontbill/internal/repository"
	"github.com/eric2umeh/frontbill/internal/service"
	"github.com/eric2umeh/frontbill/internal/validation"
)

// Service defines the business logic contract used by the HTTP handlers.
type Service interface {
	RegisterStaff(ctx context.Context, login, password string, role model.StaffRole) (int64, error)
	AuthenticateStaff(ctx context.Context, login, password string) (*model.Staff, error)
	AppendEntry(ctx context.Context, e *model.LedgerEntry) (*model.LedgerEntry, error)
	BalanceAsOf(ctx context.Context, ref model.AccountRef, at time.Time) (int64, error)
	AccountSummary(ctx context.Context, ref model.AccountRef) (*model.AccountSummary, error)
	Statement(ctx context.Context, ref model.AccountRef, from, to time.Time) ([]model.LedgerEntry, error)
	OutstandingAccounts(ctx context.Context) ([]model.AccountBalance, error)
	CreateOrganization(ctx context.Context, name string, creditLimit int64) (int64, error)
	GetOrganization(ctx context.Context, id int64) (*model.Organization, error)
	ComputeExpected(ctx context.Context, w model.ShiftWindow) (map[model.PaymentMethod]int64, error)
	Reconcile(ctx context.Context, w model.ShiftWindow, actual map[model.PaymentMethod]int64, submittedBy int64) (*model.Reconciliation, error)
	Approve(ctx context.Context, recordID string, approverID int64) (*model.Reconciliation, error)
	GetReconciliation(ctx context.Context, id string) (*model.Reconciliation, error)
	ListReconciliations(ctx context.Context, limit int) ([]model.Reconciliation, error)
	NightAudit(ctx context.Context, date time.Time) (*service.NightAuditReport, error)
}

// Handler implements the HTTP handlers of the frontbill API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler instance.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type credentialsRequest struct {
	Login    string          `json:"login"`
	Password string          `json:"password"`
	Role     model.StaffRole `json:"role,omitempty"`
}

// Register handles registration of a new staff member.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	staffID, err := h.service.RegisterStaff(r.Context(), req.Login, req.Password, req.Role)
	if err != nil {
		if errors.Is(err, repository.ErrStaffExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register staff error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	role := req.Role
	if role == "" {
		role = model.RoleFrontDesk
	}
	h.authMiddleware.SetAuthCookie(w, staffID, role)
	w.WriteHeader(http.StatusCreated)
}

// Login authenticates a staff member and sets the auth cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	st, err := h.service.AuthenticateStaff(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrStaffNotFound) || errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login staff error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, st.ID, st.Role)
	w.WriteHeader(http.StatusOK)
}

type appendEntryRequest struct {
	BookingID       int64               `json:"booking_id,omitempty"`
	OrganizationID  int64               `json:"organization_id,omitempty"`
	Kind            model.EntryKind     `json:"kind"`
	SubCategory     string              `json:"sub_category,omitempty"`
	Amount          int64               `json:"amount"`
	Method          model.PaymentMethod `json:"method,omitempty"`
	PayerOrgID      int64               `json:"payer_org_id,omitempty"`
	RefersTo        *int64              `json:"refers_to,omitempty"`
	ManagerApproved bool                `json:"manager_approved,omitempty"`
	Description     string              `json:"description,omitempty"`
	OccurredAt      *time.Time          `json:"occurred_at,omitempty"`
}

// AppendEntry records one charge, payment, adjustment, refund or deposit.
func (h *Handler) AppendEntry(w http.ResponseWriter, r *http.Request) {
	staffID, ok := middleware.GetStaffIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req appendEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	occurredAt := time.Now()
	if req.OccurredAt != nil {
		occurredAt = *req.OccurredAt
	}

	entry := model.LedgerEntry{
		Account:         model.AccountRef{BookingID: req.BookingID, OrganizationID: req.OrganizationID},
		Kind:            req.Kind,
		SubCategory:     req.SubCategory,
		Amount:          req.Amount,
		Method:          req.Method,
		PayerOrgID:      req.PayerOrgID,
		RefersTo:        req.RefersTo,
		ManagerApproved: req.ManagerApproved,
		Description:     req.Description,
		OccurredAt:      occurredAt,
		RecordedBy:      staffID,
	}

	stored, err := h.service.AppendEntry(r.Context(), &entry)
	if err != nil {
		switch {
		case errors.Is(err, validation.ErrInvalidEntry):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrCreditLimitExceeded):
			http.Error(w, err.Error(), http.StatusPaymentRequired)
		case errors.Is(err, repository.ErrOrganizationNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, repository.ErrShiftClosed):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("append entry error", zap.Error(err), zap.Int64("staffID", staffID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, stored)
}

func accountRefFromRequest(r *http.Request) (model.AccountRef, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return model.AccountRef{}, false
	}

	switch chi.URLParam(r, "type") {
	case "booking":
		return model.AccountRef{BookingID: id}, true
	case "organization":
		return model.AccountRef{OrganizationID: id}, true
	default:
		return model.AccountRef{}, false
	}
}

type balanceResponse struct {
	Account model.AccountRef `json:"account"`
	AsOf    string           `json:"as_of"`
	Balance int64            `json:"balance"`
}

// GetBalance returns the account balance at an optional instant.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ref, ok := accountRefFromRequest(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	at := time.Now()
	if v := r.URL.Query().Get("at"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		at = parsed
	}

	balance, err := h.service.BalanceAsOf(r.Context(), ref, at)
	if err != nil {
		h.logger.Error("get balance error", zap.Error(err), zap.String("account", ref.String()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Account: ref,
		AsOf:    at.Format(time.RFC3339),
		Balance: balance,
	})
}

// GetSummary returns the derived totals of an account.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	ref, ok := accountRefFromRequest(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	summary, err := h.service.AccountSummary(r.Context(), ref)
	if err != nil {
		h.logger.Error("get summary error", zap.Error(err), zap.String("account", ref.String()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// GetStatement returns the account entries within an interval in stable order.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	ref, ok := accountRefFromRequest(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var from, to time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		to = parsed
	}

	entries, err := h.service.Statement(r.Context(), ref, from, to)
	if err != nil {
		h.logger.Error("get statement error", zap.Error(err), zap.String("account", ref.String()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(entries) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// GetOutstanding returns every account owing the house.
func (h *Handler) GetOutstanding(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.OutstandingAccounts(r.Context())
	if err != nil {
		h.logger.Error("get outstanding error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(accounts) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, accounts)
}

type createOrganizationRequest struct {
	Name        string `json:"name"`
	CreditLimit int64  `json:"credit_limit"`
}

// CreateOrganization registers a city-ledger counterparty.
func (h *Handler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req createOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Name == "" || req.CreditLimit < 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.CreateOrganization(r.Context(), req.Name, req.CreditLimit)
	if err != nil {
		h.logger.Error("create organization error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// GetOrganization returns an organization with its credit standing.
func (h *Handler) GetOrganization(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	org, err := h.service.GetOrganization(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrOrganizationNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get organization error", zap.Error(err), zap.Int64("id", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, org)
}

type reconcileRequest struct {
	ShiftType   model.ShiftType               `json:"shift_type"`
	WindowStart time.Time                     `json:"window_start"`
	WindowEnd   time.Time                     `json:"window_end"`
	Actual      map[model.PaymentMethod]int64 `json:"actual_by_method"`
}

type expectedResponse struct {
	Window   model.ShiftWindow             `json:"window"`
	Expected map[model.PaymentMethod]int64 `json:"expected_by_method"`
}

// ExpectedTotals returns what the ledger says each payment channel should
// hold for a shift window, for counting the drawer before closing out.
func (h *Handler) ExpectedTotals(w http.ResponseWriter, r *http.Request) {
	window := model.ShiftWindow{Type: model.ShiftType(r.URL.Query().Get("shift_type"))}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{
		{"start", &window.Start},
		{"end", &window.End},
	} {
		parsed, err := time.Parse(time.RFC3339, r.URL.Query().Get(p.name))
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		*p.dst = parsed
	}

	expected, err := h.service.ComputeExpected(r.Context(), window)
	if err != nil {
		if errors.Is(err, service.ErrInvalidWindow) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("expected totals error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, expectedResponse{Window: window, Expected: expected})
}

// Reconcile closes out a shift window against the operator's counted totals.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	staffID, ok := middleware.GetStaffIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	window := model.ShiftWindow{
		Start: req.WindowStart,
		End:   req.WindowEnd,
		Type:  req.ShiftType,
	}
	if !window.Valid() {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	rec, err := h.service.Reconcile(r.Context(), window, req.Actual, staffID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownMethod), errors.Is(err, service.ErrInvalidWindow):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrShiftClosed):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("reconcile error", zap.Error(err), zap.Int64("staffID", staffID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// Approve applies the approval transition to a reconciliation record.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	staffID, ok := middleware.GetStaffIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	recordID := chi.URLParam(r, "id")
	if recordID == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	rec, err := h.service.Approve(r.Context(), recordID, staffID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnauthorized):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, model.ErrInvalidTransition):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, repository.ErrReconciliationNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("approve error", zap.Error(err), zap.String("record", recordID), zap.Int64("staffID", staffID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// GetReconciliation returns one reconciliation record.
func (h *Handler) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "id")

	rec, err := h.service.GetReconciliation(r.Context(), recordID)
	if err != nil {
		if errors.Is(err, repository.ErrReconciliationNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get reconciliation error", zap.Error(err), zap.String("record", recordID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// ListReconciliations returns the most recent reconciliation records.
func (h *Handler) ListReconciliations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	recs, err := h.service.ListReconciliations(r.Context(), limit)
	if err != nil {
		h.logger.Error("list reconciliations error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(recs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, recs)
}

// NightAudit returns the end-of-day report for a business date.
func (h *Handler) NightAudit(w http.ResponseWriter, r *http.Request) {
	date := time.Now()
	if v := r.URL.Query().Get("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		date = parsed
	}

	report, err := h.service.NightAudit(r.Context(), date)
	if err != nil {
		h.logger.Error("night audit error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, report)
}
