/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator struct tags; handlers run
  them through the shared validator before touching the engine. Money
  values cross the wire as decimal strings, never floats.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go: PolicyJSON type
*/
package api

import (
	"time"

	"github.com/meridian/circulation-engine/circulation"
	"github.com/meridian/circulation-engine/notify"
)

// =============================================================================
// CATALOG TYPES
// =============================================================================

// EntryDTO represents a catalog entry in API responses.
type EntryDTO struct {
	ID               string `json:"id"`
	Code             string `json:"code"`
	Title            string `json:"title"`
	Author           string `json:"author,omitempty"`
	Category         string `json:"category"`
	AvailableForLoan bool   `json:"available_for_loan"`
	Restricted       bool   `json:"restricted"`
	Condition        string `json:"condition"`
	Price            string `json:"price"`
	TotalLoans       int    `json:"total_loans"`
	AddedAt          string `json:"added_at,omitempty"`
	LastModified     string `json:"last_modified,omitempty"`
}

// AddEntryRequest is the request to add a catalog entry.
type AddEntryRequest struct {
	ID       string `json:"id,omitempty"`
	Code     string `json:"code" validate:"required"`
	Title    string `json:"title" validate:"required"`
	Author   string `json:"author,omitempty"`
	Category string `json:"category,omitempty" validate:"omitempty,oneof=general reference children academic"`
	Price    string `json:"price,omitempty"`
}

// RestrictRequest carries the reason for restricting an entry.
type RestrictRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// SetConditionRequest is the staff condition override.
type SetConditionRequest struct {
	Condition string `json:"condition" validate:"required,oneof=excellent good fair poor damaged lost in_repair"`
}

// =============================================================================
// ACCOUNT TYPES
// =============================================================================

// AccountDTO represents a membership account in API responses.
type AccountDTO struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Email            string   `json:"email,omitempty"`
	Phone            string   `json:"phone,omitempty"`
	Authorized       bool     `json:"authorized"`
	SuspendedUntil   *string  `json:"suspended_until,omitempty"`
	SuspensionReason string   `json:"suspension_reason,omitempty"`
	OpenLoanIDs      []string `json:"open_loan_ids"`
	MaxLoansAllowed  int      `json:"max_loans_allowed"`
	TotalLoans       int      `json:"total_loans"`
	OverdueCount     int      `json:"overdue_count"`
	FeesOwed         string   `json:"fees_owed"`
	CreatedAt        string   `json:"created_at,omitempty"`
}

// RegisterAccountRequest is the request to register a member.
type RegisterAccountRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone,omitempty"`
}

// SuspendRequest is the staff request to suspend an account. Omitted or
// zero days take the policy default window.
type SuspendRequest struct {
	Days   int    `json:"days,omitempty" validate:"omitempty,gt=0"`
	Reason string `json:"reason" validate:"required"`
}

// SetLoanCapRequest overrides the per-account loan cap.
type SetLoanCapRequest struct {
	MaxLoans int `json:"max_loans" validate:"required,gt=0"`
}

// =============================================================================
// LOAN TYPES
// =============================================================================

// LoanDTO represents a loan record in API responses.
type LoanDTO struct {
	ID             string  `json:"id"`
	EntryID        string  `json:"entry_id"`
	AccountID      string  `json:"account_id"`
	Status         string  `json:"status"`
	BorrowedAt     string  `json:"borrowed_at"`
	DueAt          string  `json:"due_at"`
	ReturnedAt     *string `json:"returned_at,omitempty"`
	ExtensionCount int     `json:"extension_count"`
	LateFee        string  `json:"late_fee"`
	DamageFee      string  `json:"damage_fee"`
	TotalFee       string  `json:"total_fee"`
}

// BorrowRequest pairs an entry with an account.
type BorrowRequest struct {
	EntryID   string `json:"entry_id" validate:"required"`
	AccountID string `json:"account_id" validate:"required"`
}

// ReturnRequest closes an open loan. Damage grading goes through the
// staff force-return endpoint.
type ReturnRequest struct {
	EntryID   string `json:"entry_id" validate:"required"`
	AccountID string `json:"account_id" validate:"required"`
}

// ExtendRequest asks for more days on a loan. Zero days means the policy
// default.
type ExtendRequest struct {
	Days int `json:"days,omitempty" validate:"omitempty,gt=0"`
}

// ExtendResponse reports whether the extension was granted.
type ExtendResponse struct {
	Granted bool     `json:"granted"`
	Loan    *LoanDTO `json:"loan,omitempty"`
}

// ForceReturnRequest is the staff desk return, optionally graded.
type ForceReturnRequest struct {
	Damage string `json:"damage,omitempty" validate:"omitempty,oneof=minor moderate severe"`
}

// WaiveFeesRequest clears fees on a loan for a recognized reason.
type WaiveFeesRequest struct {
	Reason string `json:"reason" validate:"required,min=10"`
}

// SweepResponse reports how many loans an overdue sweep flipped.
type SweepResponse struct {
	Flipped int `json:"flipped"`
}

// =============================================================================
// NOTIFICATION TYPES
// =============================================================================

// MessageDTO is an in-app inbox notice.
type MessageDTO struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Body     string `json:"body"`
	Read     bool   `json:"read"`
	SentAt   string `json:"sent_at"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toEntryDTO(e *circulation.CatalogEntry) EntryDTO {
	return EntryDTO{
		ID:               string(e.ID),
		Code:             e.Code,
		Title:            e.Title,
		Author:           e.Author,
		Category:         string(e.Category),
		AvailableForLoan: e.AvailableForLoan,
		Restricted:       e.Restricted,
		Condition:        string(e.Condition),
		Price:            e.Price.StringFixed(2),
		TotalLoans:       e.TotalLoans,
		AddedAt:          e.AddedAt.Format(time.RFC3339),
		LastModified:     e.LastModified.Format(time.RFC3339),
	}
}

func toAccountDTO(a *circulation.MemberAccount) AccountDTO {
	dto := AccountDTO{
		ID:               string(a.ID),
		Name:             a.Name,
		Email:            a.Email,
		Phone:            a.Phone,
		Authorized:       a.Authorized,
		SuspensionReason: a.SuspensionReason,
		OpenLoanIDs:      make([]string, len(a.OpenLoanIDs)),
		MaxLoansAllowed:  a.MaxLoansAllowed,
		TotalLoans:       a.TotalLoans,
		OverdueCount:     a.OverdueCount,
		FeesOwed:         a.FeesOwed.StringFixed(2),
		CreatedAt:        a.CreatedAt.Format(time.RFC3339),
	}
	for i, id := range a.OpenLoanIDs {
		dto.OpenLoanIDs[i] = string(id)
	}
	if a.SuspendedUntil != nil {
		s := a.SuspendedUntil.Format(time.RFC3339)
		dto.SuspendedUntil = &s
	}
	return dto
}

func toLoanDTO(l *circulation.LoanRecord) LoanDTO {
	dto := LoanDTO{
		ID:             string(l.ID),
		EntryID:        string(l.EntryID),
		AccountID:      string(l.AccountID),
		Status:         string(l.Status),
		BorrowedAt:     l.BorrowedAt.Format(time.RFC3339),
		DueAt:          l.DueAt.Format(time.RFC3339),
		ExtensionCount: l.ExtensionCount,
		LateFee:        l.LateFee.StringFixed(2),
		DamageFee:      l.DamageFee.StringFixed(2),
		TotalFee:       l.TotalFee.StringFixed(2),
	}
	if l.ReturnedAt != nil {
		s := l.ReturnedAt.Format(time.RFC3339)
		dto.ReturnedAt = &s
	}
	return dto
}

func toLoanDTOs(loans []circulation.LoanRecord) []LoanDTO {
	dtos := make([]LoanDTO, len(loans))
	for i := range loans {
		dtos[i] = toLoanDTO(&loans[i])
	}
	return dtos
}

func toMessageDTOs(msgs []notify.Message) []MessageDTO {
	dtos := make([]MessageDTO, len(msgs))
	for i, m := range msgs {
		dtos[i] = MessageDTO{
			ID:       m.ID,
			Category: string(m.Category),
			Body:     m.Body,
			Read:     m.Read,
			SentAt:   m.SentAt.Format(time.RFC3339),
		}
	}
	return dtos
}
