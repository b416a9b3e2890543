package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pedronora/internum-api/internal/errs"
	"github.com/pedronora/internum-api/internal/model"
)

func TestBook_ReserveRelease(t *testing.T) {
	t.Parallel()

	book := model.Book{Quantity: 2, AvailableQuantity: 2}

	require.NoError(t, book.Reserve())
	require.NoError(t, book.Reserve())
	require.Equal(t, 0, book.AvailableQuantity)

	require.ErrorIs(t, book.Reserve(), errs.ErrOutOfStock)
	require.Equal(t, 0, book.AvailableQuantity)

	require.NoError(t, book.Release())
	require.NoError(t, book.Release())
	require.Equal(t, 2, book.AvailableQuantity)

	require.ErrorIs(t, book.Release(), errs.ErrInvariant)
	require.Equal(t, 2, book.AvailableQuantity)
}

func TestBook_AdjustQuantity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		quantity      int
		available     int
		newQuantity   int
		wantAvailable int
		wantClamped   bool
	}{
		{"grow stock", 2, 1, 5, 4, false},
		{"shrink stock", 5, 4, 2, 1, false},
		{"shrink below active loans", 3, 1, 1, 0, true},
		{"shrink to zero", 2, 2, 0, 0, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			book := model.Book{Quantity: tt.quantity, AvailableQuantity: tt.available}
			clamped := book.AdjustQuantity(tt.newQuantity)
			require.Equal(t, tt.wantClamped, clamped)
			require.Equal(t, tt.newQuantity, book.Quantity)
			require.Equal(t, tt.wantAvailable, book.AvailableQuantity)
			require.GreaterOrEqual(t, book.AvailableQuantity, 0)
			require.LessOrEqual(t, book.AvailableQuantity, book.Quantity)
		})
	}
}

func TestLoan_ApproveSetsDates(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	loan := model.NewLoan(1, 7, now)
	require.Equal(t, model.StatusRequested, loan.Status)
	require.Equal(t, model.DefaultLoanPeriodDays, loan.LoanPeriodDays)
	require.Nil(t, loan.BorrowedAt)
	require.Nil(t, loan.DueDate)

	require.NoError(t, loan.Approve(2, now))
	require.Equal(t, model.StatusBorrowed, loan.Status)
	require.NotNil(t, loan.ApprovedByID)
	require.Equal(t, 2, *loan.ApprovedByID)
	require.Equal(t, now, *loan.BorrowedAt)
	require.Equal(t, now.AddDate(0, 0, loan.LoanPeriodDays), *loan.DueDate)
}

func TestLoan_TransitionTable(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	approve := func(l *model.Loan) error { return l.Approve(1, now) }
	reject := func(l *model.Loan) error { return l.Reject(1) }
	cancel := func(l *model.Loan) error { return l.Cancel() }
	ret := func(l *model.Loan) error { return l.Return(now) }

	tests := []struct {
		name    string
		from    model.LoanStatus
		op      func(*model.Loan) error
		want    model.LoanStatus
		wantErr bool
	}{
		{"approve requested", model.StatusRequested, approve, model.StatusBorrowed, false},
		{"reject requested", model.StatusRequested, reject, model.StatusRejected, false},
		{"cancel requested", model.StatusRequested, cancel, model.StatusCanceled, false},
		{"return borrowed", model.StatusBorrowed, ret, model.StatusReturned, false},
		{"return late", model.StatusLate, ret, model.StatusReturned, false},
		{"approve borrowed", model.StatusBorrowed, approve, model.StatusBorrowed, true},
		{"approve returned", model.StatusReturned, approve, model.StatusReturned, true},
		{"reject canceled", model.StatusCanceled, reject, model.StatusCanceled, true},
		{"cancel borrowed", model.StatusBorrowed, cancel, model.StatusBorrowed, true},
		{"return requested", model.StatusRequested, ret, model.StatusRequested, true},
		{"return canceled", model.StatusCanceled, ret, model.StatusCanceled, true},
		{"return rejected", model.StatusRejected, ret, model.StatusRejected, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			loan := model.Loan{Status: tt.from}
			err := tt.op(&loan)
			if tt.wantErr {
				require.Error(t, err)
				require.True(t, errs.IsInvalidTransition(err))
				var ite *errs.InvalidTransitionError
				require.ErrorAs(t, err, &ite)
				require.Equal(t, string(tt.from), ite.Status)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.want, loan.Status)
		})
	}
}

func TestLoan_ReturnSetsReturnedAtOnce(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	loan := model.Loan{Status: model.StatusBorrowed}
	require.NoError(t, loan.Return(now))
	require.NotNil(t, loan.ReturnedAt)
	first := *loan.ReturnedAt

	require.Error(t, loan.Return(now.Add(time.Hour)))
	require.Equal(t, first, *loan.ReturnedAt)
}

func TestLoan_CheckOverdue(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	past := now.Add(-72 * time.Hour)
	future := now.Add(120 * time.Hour)

	tests := []struct {
		name   string
		status model.LoanStatus
		due    *time.Time
		want   bool
	}{
		{"borrowed past due", model.StatusBorrowed, &past, true},
		{"borrowed not yet due", model.StatusBorrowed, &future, false},
		{"already late", model.StatusLate, &past, false},
		{"returned", model.StatusReturned, &past, false},
		{"no due date", model.StatusBorrowed, nil, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			loan := model.Loan{Status: tt.status, DueDate: tt.due}
			require.Equal(t, tt.want, loan.CheckOverdue(now))
			if tt.want {
				require.Equal(t, model.StatusLate, loan.Status)
				// second pass finds nothing to do
				require.False(t, loan.CheckOverdue(now))
			}
		})
	}
}

func TestAuditFields_SoftDelete(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	var a model.AuditFields
	require.False(t, a.Deleted())

	require.NoError(t, a.SoftDelete(3, now))
	require.True(t, a.Deleted())
	require.Equal(t, 3, *a.DeletedBy)

	require.ErrorIs(t, a.SoftDelete(4, now), errs.ErrAlreadyDeleted)
	require.Equal(t, 3, *a.DeletedBy)
}

func TestAuditFields_Stamps(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	var a model.AuditFields
	a.StampCreated(1, now)
	require.Equal(t, now, a.CreatedAt)
	require.Equal(t, 1, *a.CreatedBy)

	a.StampUpdated(2, now.Add(time.Minute))
	a.StampUpdated(5, now.Add(2*time.Minute))
	require.Equal(t, 5, *a.UpdatedBy)
	require.Equal(t, now.Add(2*time.Minute), *a.UpdatedAt)
	// creation provenance is immutable
	require.Equal(t, 1, *a.CreatedBy)
}

func TestNewPageMeta(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		total, limit  int
		offset        int
		wantPage      int
		wantPages     int
		wantNext      bool
		wantPrev      bool
	}{
		{"first page", 25, 10, 0, 1, 3, true, false},
		{"middle page", 25, 10, 10, 2, 3, true, true},
		{"last page", 25, 10, 20, 3, 3, false, true},
		{"exact fit", 20, 10, 10, 2, 2, false, true},
		{"empty", 0, 10, 0, 1, 0, false, false},
		{"single", 1, 10, 0, 1, 1, false, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			meta := model.NewPageMeta(tt.total, tt.limit, tt.offset)
			require.Equal(t, tt.total, meta.Total)
			require.Equal(t, tt.wantPage, meta.Page)
			require.Equal(t, tt.wantPages, meta.TotalPages)
			require.Equal(t, tt.wantNext, meta.HasNext)
			require.Equal(t, tt.wantPrev, meta.HasPrev)
		})
	}
}
