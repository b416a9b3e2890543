package model

import (
	"time"

	"github.com/pedronora/internum-api/internal/errs"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleCoord Role = "coord"
	RoleUser  Role = "user"
)

// Actor is the already-authenticated caller identity, resolved by the
// gateway. Core logic depends only on id and role.
type Actor struct {
	ID   int
	Role Role
}

func (a Actor) CanModerate() bool {
	return a.Role == RoleAdmin || a.Role == RoleCoord
}

type User struct {
	ID       int    `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Username string `json:"username" db:"username"`
	Email    string `json:"email" db:"email"`
	Role     Role   `json:"role" db:"role"`
	Active   bool   `json:"active" db:"active"`
}

type Book struct {
	ID                int    `json:"id" db:"id"`
	ISBN              string `json:"isbn" db:"isbn"`
	Title             string `json:"title" db:"title"`
	Author            string `json:"author" db:"author"`
	Publisher         string `json:"publisher" db:"publisher"`
	Edition           int    `json:"edition" db:"edition"`
	Year              int    `json:"year" db:"year"`
	Quantity          int    `json:"quantity" db:"quantity"`
	AvailableQuantity int    `json:"availableQuantity" db:"available_quantity"`
	AuditFields
}

// Reserve takes a copy off the shelf for a pending or active loan.
// The hold is placed at request time, not at approval, so two concurrent
// requesters cannot over-book the last copy.
func (b *Book) Reserve() error {
	if b.AvailableQuantity <= 0 {
		return errs.ErrOutOfStock
	}
	b.AvailableQuantity--
	return nil
}

// Release returns a reserved copy. Unreachable under paired reserve/release.
func (b *Book) Release() error {
	if b.AvailableQuantity >= b.Quantity {
		return errs.ErrInvariant
	}
	b.AvailableQuantity++
	return nil
}

// AdjustQuantity recomputes availability after an administrative change of
// the total stock. Reports whether availability had to be clamped to keep
// 0 <= available <= quantity.
func (b *Book) AdjustQuantity(newQuantity int) (clamped bool) {
	b.AvailableQuantity += newQuantity - b.Quantity
	b.Quantity = newQuantity
	if b.AvailableQuantity < 0 {
		b.AvailableQuantity = 0
		clamped = true
	}
	if b.AvailableQuantity > b.Quantity {
		b.AvailableQuantity = b.Quantity
		clamped = true
	}
	return clamped
}

type LoanStatus string

const (
	StatusRequested LoanStatus = "REQUESTED"
	StatusBorrowed  LoanStatus = "BORROWED"
	StatusReturned  LoanStatus = "RETURNED"
	StatusLate      LoanStatus = "LATE"
	StatusRejected  LoanStatus = "REJECTED"
	StatusCanceled  LoanStatus = "CANCELED"
)

func ParseLoanStatus(s string) (LoanStatus, bool) {
	switch st := LoanStatus(s); st {
	case StatusRequested, StatusBorrowed, StatusReturned, StatusLate, StatusRejected, StatusCanceled:
		return st, true
	}
	return "", false
}

const DefaultLoanPeriodDays = 14

type Loan struct {
	ID             int        `json:"id" db:"id"`
	BookID         int        `json:"bookId" db:"book_id"`
	UserID         int        `json:"userId" db:"user_id"`
	ApprovedByID   *int       `json:"approvedById,omitempty" db:"approved_by_id"`
	LoanPeriodDays int        `json:"loanPeriodDays" db:"loan_period_days"`
	BorrowedAt     *time.Time `json:"borrowedAt,omitempty" db:"borrowed_at"`
	DueDate        *time.Time `json:"dueDate,omitempty" db:"due_date"`
	ReturnedAt     *time.Time `json:"returnedAt,omitempty" db:"returned_at"`
	Status         LoanStatus `json:"status" db:"status"`
	AuditFields

	// Joined read-only columns, filled by listing and detail queries.
	BookTitle  string `json:"bookTitle,omitempty" db:"book_title"`
	BookAuthor string `json:"bookAuthor,omitempty" db:"book_author"`
	BookISBN   string `json:"bookIsbn,omitempty" db:"book_isbn"`
	UserName   string `json:"userName,omitempty" db:"user_name"`
	UserEmail  string `json:"-" db:"user_email"`
}

func NewLoan(bookID, requesterID int, now time.Time) Loan {
	l := Loan{
		BookID:         bookID,
		UserID:         requesterID,
		LoanPeriodDays: DefaultLoanPeriodDays,
		Status:         StatusRequested,
	}
	l.StampCreated(requesterID, now)
	return l
}

// Active reports whether the loan still holds a reserved copy.
func (l *Loan) Active() bool {
	switch l.Status {
	case StatusRequested, StatusBorrowed, StatusLate:
		return true
	}
	return false
}

// Approve moves REQUESTED -> BORROWED. borrowed_at and due_date are set
// exactly once, here.
func (l *Loan) Approve(approverID int, now time.Time) error {
	if l.Status != StatusRequested {
		return errs.NewInvalidTransition("approve", string(l.Status))
	}
	due := now.AddDate(0, 0, l.LoanPeriodDays)
	l.Status = StatusBorrowed
	l.ApprovedByID = &approverID
	l.BorrowedAt = &now
	l.DueDate = &due
	return nil
}

// Reject moves REQUESTED -> REJECTED. The caller must release the hold.
func (l *Loan) Reject(approverID int) error {
	if l.Status != StatusRequested {
		return errs.NewInvalidTransition("reject", string(l.Status))
	}
	l.Status = StatusRejected
	l.ApprovedByID = &approverID
	return nil
}

// Cancel moves REQUESTED -> CANCELED. The caller must release the hold.
func (l *Loan) Cancel() error {
	if l.Status != StatusRequested {
		return errs.NewInvalidTransition("cancel", string(l.Status))
	}
	l.Status = StatusCanceled
	return nil
}

// Return moves BORROWED or LATE -> RETURNED and sets returned_at exactly
// once. The caller must release the hold.
func (l *Loan) Return(now time.Time) error {
	if l.Status != StatusBorrowed && l.Status != StatusLate {
		return errs.NewInvalidTransition("return", string(l.Status))
	}
	l.Status = StatusReturned
	l.ReturnedAt = &now
	return nil
}

// CheckOverdue moves BORROWED -> LATE once the due date has passed.
// Reports whether a transition happened, which keeps the reconciliation
// sweep idempotent.
func (l *Loan) CheckOverdue(now time.Time) bool {
	if l.Status != StatusBorrowed || l.DueDate == nil || !l.DueDate.Before(now) {
		return false
	}
	l.Status = StatusLate
	return true
}
