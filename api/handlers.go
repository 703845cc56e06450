/*
handlers.go - HTTP API handlers for the circulation engine

PURPOSE:
  Exposes the circulation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Catalog:
    GET    /api/entries                 List catalog entries
    POST   /api/entries                 Add an entry
    GET    /api/entries/{id}            Get entry details
    DELETE /api/entries/{id}            Remove an entry
    POST   /api/entries/{id}/restrict   Restrict an entry
    POST   /api/entries/{id}/unrestrict Lift a restriction
    POST   /api/entries/{id}/condition  Override physical condition

  Accounts:
    GET    /api/accounts                List accounts
    POST   /api/accounts                Register a member
    GET    /api/accounts/{id}           Get account details
    DELETE /api/accounts/{id}           Remove an account
    GET    /api/accounts/{id}/loans     Open loans for an account
    GET    /api/accounts/{id}/inbox     In-app notices
    POST   /api/accounts/{id}/suspend   Suspend borrowing
    POST   /api/accounts/{id}/unsuspend Lift a suspension
    POST   /api/accounts/{id}/loan-cap  Override loan cap

  Loans:
    POST   /api/loans/borrow            Borrow an entry
    POST   /api/loans/return            Return an entry
    POST   /api/loans/reserve           Place a hold
    GET    /api/loans/{id}              Get loan details
    POST   /api/loans/{id}/extend       Request an extension
    POST   /api/loans/{id}/cancel       Cancel a reservation
    POST   /api/loans/{id}/force-return Staff desk return (damage grading)
    POST   /api/loans/{id}/waive-fees   Waive fees
    GET    /api/loans/overdue           List overdue loans

  Admin:
    POST   /api/admin/sweep             Run the overdue sweep now
    POST   /api/admin/reminders         Run due-soon reminders now
    GET    /api/admin/policy            Current policy table

ERROR HANDLING:
  Domain errors map to HTTP status by kind:
  - 400: invalid argument, malformed body, failed validation
  - 403: unauthorized account
  - 404: entry/account/loan not found
  - 409: conflict, duplicate, limit exceeded, illegal transition
  - 500: everything else

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridian/circulation-engine/circulation"
	"github.com/meridian/circulation-engine/factory"
	"github.com/meridian/circulation-engine/notify"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine   *circulation.Engine
	Inbox    *notify.Inbox // nil when no in-app inbox is wired
	Logger   *zap.Logger
	validate *validator.Validate
}

// NewHandler creates a new handler around the engine.
func NewHandler(engine *circulation.Engine, inbox *notify.Inbox, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Engine:   engine,
		Inbox:    inbox,
		Logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// ListEntries returns all catalog entries.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Engine.ListEntries(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list entries", err)
		return
	}

	dtos := make([]EntryDTO, len(entries))
	for i := range entries {
		dtos[i] = toEntryDTO(&entries[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AddEntry adds a catalog entry.
func (h *Handler) AddEntry(w http.ResponseWriter, r *http.Request) {
	var req AddEntryRequest
	if !h.decode(w, r, &req) {
		return
	}

	price := decimal.Zero
	if req.Price != "" {
		var err error
		price, err = decimal.NewFromString(req.Price)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid price (use a decimal string)", err)
			return
		}
	}

	entry, err := h.Engine.AddEntry(r.Context(), circulation.CatalogEntry{
		ID:       circulation.EntryID(req.ID),
		Code:     req.Code,
		Title:    req.Title,
		Author:   req.Author,
		Category: circulation.Category(req.Category),
		Price:    price,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to add entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(entry))
}

// GetEntry returns a single catalog entry.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.Engine.Entry(r.Context(), circulation.EntryID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to get entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(entry))
}

// RemoveEntry deletes an entry that has no open loans.
func (h *Handler) RemoveEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.RemoveEntry(r.Context(), circulation.EntryID(chi.URLParam(r, "id"))); err != nil {
		h.writeDomainError(w, "Failed to remove entry", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RestrictEntry blocks new loans on an entry.
func (h *Handler) RestrictEntry(w http.ResponseWriter, r *http.Request) {
	var req RestrictRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := circulation.EntryID(chi.URLParam(r, "id"))
	if err := h.Engine.Restrict(r.Context(), id, req.Reason); err != nil {
		h.writeDomainError(w, "Failed to restrict entry", err)
		return
	}
	h.respondWithEntry(w, r, id)
}

// UnrestrictEntry lifts a restriction.
func (h *Handler) UnrestrictEntry(w http.ResponseWriter, r *http.Request) {
	id := circulation.EntryID(chi.URLParam(r, "id"))
	if err := h.Engine.Unrestrict(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to unrestrict entry", err)
		return
	}
	h.respondWithEntry(w, r, id)
}

// SetCondition overrides an entry's physical condition.
func (h *Handler) SetCondition(w http.ResponseWriter, r *http.Request) {
	var req SetConditionRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := circulation.EntryID(chi.URLParam(r, "id"))
	if err := h.Engine.SetCondition(r.Context(), id, circulation.Condition(req.Condition)); err != nil {
		h.writeDomainError(w, "Failed to set condition", err)
		return
	}
	h.respondWithEntry(w, r, id)
}

func (h *Handler) respondWithEntry(w http.ResponseWriter, r *http.Request, id circulation.EntryID) {
	entry, err := h.Engine.Entry(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(entry))
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns all membership accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Engine.ListAccounts(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, len(accounts))
	for i := range accounts {
		dtos[i] = toAccountDTO(&accounts[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RegisterAccount registers a new member.
func (h *Handler) RegisterAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	account, err := h.Engine.RegisterAccount(r.Context(), req.Name, req.Email, req.Phone)
	if err != nil {
		h.writeDomainError(w, "Failed to register account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(account))
}

// GetAccount returns a single account.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.Engine.Account(r.Context(), circulation.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to get account", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(account))
}

// RemoveAccount deletes an account that holds no open loans.
func (h *Handler) RemoveAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.RemoveAccount(r.Context(), circulation.AccountID(chi.URLParam(r, "id"))); err != nil {
		h.writeDomainError(w, "Failed to remove account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AccountLoans returns the open loans for an account, due date ascending.
func (h *Handler) AccountLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.Engine.AccountLoans(r.Context(), circulation.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to list loans", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTOs(loans))
}

// AccountInbox returns the in-app notices for an account.
func (h *Handler) AccountInbox(w http.ResponseWriter, r *http.Request) {
	if h.Inbox == nil {
		writeJSON(w, http.StatusOK, []MessageDTO{})
		return
	}
	msgs := h.Inbox.History(circulation.AccountID(chi.URLParam(r, "id")))
	writeJSON(w, http.StatusOK, toMessageDTOs(msgs))
}

// SuspendAccount suspends borrowing for a number of days.
func (h *Handler) SuspendAccount(w http.ResponseWriter, r *http.Request) {
	var req SuspendRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := circulation.AccountID(chi.URLParam(r, "id"))
	if err := h.Engine.Suspend(r.Context(), id, req.Days, req.Reason); err != nil {
		h.writeDomainError(w, "Failed to suspend account", err)
		return
	}
	h.respondWithAccount(w, r, id)
}

// UnsuspendAccount lifts a suspension early.
func (h *Handler) UnsuspendAccount(w http.ResponseWriter, r *http.Request) {
	id := circulation.AccountID(chi.URLParam(r, "id"))
	if err := h.Engine.Unsuspend(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to unsuspend account", err)
		return
	}
	h.respondWithAccount(w, r, id)
}

// SetLoanCap overrides the per-account loan cap.
func (h *Handler) SetLoanCap(w http.ResponseWriter, r *http.Request) {
	var req SetLoanCapRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := circulation.AccountID(chi.URLParam(r, "id"))
	if err := h.Engine.SetLoanCap(r.Context(), id, req.MaxLoans); err != nil {
		h.writeDomainError(w, "Failed to set loan cap", err)
		return
	}
	h.respondWithAccount(w, r, id)
}

func (h *Handler) respondWithAccount(w http.ResponseWriter, r *http.Request, id circulation.AccountID) {
	account, err := h.Engine.Account(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get account", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(account))
}

// =============================================================================
// LOAN HANDLERS
// =============================================================================

// Borrow lends an entry to an account.
func (h *Handler) Borrow(w http.ResponseWriter, r *http.Request) {
	var req BorrowRequest
	if !h.decode(w, r, &req) {
		return
	}
	loan, err := h.Engine.Borrow(r.Context(),
		circulation.EntryID(req.EntryID), circulation.AccountID(req.AccountID))
	if err != nil {
		h.writeDomainError(w, "Failed to borrow", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanDTO(loan))
}

// Return closes the open loan for an (entry, account) pair.
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	var req ReturnRequest
	if !h.decode(w, r, &req) {
		return
	}
	loan, err := h.Engine.Return(r.Context(),
		circulation.EntryID(req.EntryID), circulation.AccountID(req.AccountID))
	if err != nil {
		h.writeDomainError(w, "Failed to return", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(loan))
}

// Reserve places a hold on an available entry.
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	var req BorrowRequest
	if !h.decode(w, r, &req) {
		return
	}
	loan, err := h.Engine.Reserve(r.Context(),
		circulation.EntryID(req.EntryID), circulation.AccountID(req.AccountID))
	if err != nil {
		h.writeDomainError(w, "Failed to reserve", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanDTO(loan))
}

// GetLoan returns a single loan record.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := h.Engine.Loan(r.Context(), circulation.LoanID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to get loan", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(loan))
}

// ExtendLoan requests more days on an open loan. A refusal is a 200 with
// granted=false, not an error.
func (h *Handler) ExtendLoan(w http.ResponseWriter, r *http.Request) {
	var req ExtendRequest
	if r.ContentLength > 0 && !h.decode(w, r, &req) {
		return
	}
	id := circulation.LoanID(chi.URLParam(r, "id"))
	granted, err := h.Engine.Extend(r.Context(), id, req.Days)
	if err != nil {
		h.writeDomainError(w, "Failed to extend loan", err)
		return
	}

	resp := ExtendResponse{Granted: granted}
	if loan, err := h.Engine.Loan(r.Context(), id); err == nil {
		dto := toLoanDTO(loan)
		resp.Loan = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelReservation drops a hold before pickup.
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	id := circulation.LoanID(chi.URLParam(r, "id"))
	if err := h.Engine.CancelReservation(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to cancel reservation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ForceReturn is the staff desk return with optional damage grading.
func (h *Handler) ForceReturn(w http.ResponseWriter, r *http.Request) {
	var req ForceReturnRequest
	if r.ContentLength > 0 && !h.decode(w, r, &req) {
		return
	}

	var damage *circulation.DamageLevel
	if req.Damage != "" {
		d := circulation.DamageLevel(req.Damage)
		damage = &d
	}

	loan, err := h.Engine.ForceReturn(r.Context(), circulation.LoanID(chi.URLParam(r, "id")), damage)
	if err != nil {
		h.writeDomainError(w, "Failed to force return", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(loan))
}

// WaiveFees clears the fees on a loan for a recognized reason.
func (h *Handler) WaiveFees(w http.ResponseWriter, r *http.Request) {
	var req WaiveFeesRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := circulation.LoanID(chi.URLParam(r, "id"))
	if err := h.Engine.WaiveFees(r.Context(), id, req.Reason); err != nil {
		h.writeDomainError(w, "Failed to waive fees", err)
		return
	}
	loan, err := h.Engine.Loan(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get loan", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(loan))
}

// ListOverdue returns every loan past its due date.
func (h *Handler) ListOverdue(w http.ResponseWriter, r *http.Request) {
	loans, err := h.Engine.ListOverdue(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list overdue loans", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTOs(loans))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RunSweep flips past-due loans to overdue immediately.
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	flipped, err := h.Engine.MarkOverdue(r.Context())
	if err != nil {
		h.writeDomainError(w, "Overdue sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{Flipped: flipped})
}

// RunReminders fires due-soon reminders immediately.
func (h *Handler) RunReminders(w http.ResponseWriter, r *http.Request) {
	fired, err := h.Engine.RunDueSoonReminders(r.Context())
	if err != nil {
		h.writeDomainError(w, "Reminder run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{Flipped: fired})
}

// GetPolicy returns the active policy table.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, factory.ToJSON(h.Engine.Policy()))
}

// =============================================================================
// ERROR MAPPING AND JSON HELPERS
// =============================================================================

func httpStatus(err error) int {
	switch {
	case circulation.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, circulation.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, circulation.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, circulation.ErrDuplicateKey),
		errors.Is(err, circulation.ErrConflict),
		errors.Is(err, circulation.ErrLimitExceeded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error(message, zap.Error(err))
	}
	writeError(w, status, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
