package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pedronora/internum-api/internal/errs"
	"github.com/pedronora/internum-api/internal/model"
	"github.com/pedronora/internum-api/internal/notify"
	"github.com/pedronora/internum-api/internal/repository"
)

type Service struct {
	log        *zap.Logger
	repo       repository.Repository
	dispatcher notify.Dispatcher
}

func NewService(repo repository.Repository, dispatcher notify.Dispatcher, log *zap.Logger) *Service {
	return &Service{
		log:        log,
		repo:       repo,
		dispatcher: dispatcher,
	}
}

// RequestLoan reserves a copy and opens a REQUESTED loan in one transaction.
// The hold is placed now, not at approval, so a concurrent request for the
// last copy observes available_quantity == 0 and fails with ErrOutOfStock.
func (s *Service) RequestLoan(ctx context.Context, actor model.Actor, bookID int) (model.Loan, error) {
	now := time.Now().UTC()
	var (
		loan model.Loan
		book model.Book
	)
	err := s.repo.WithinTx(ctx, func(tx repository.Repository) error {
		var err error
		book, err = tx.GetBookForUpdate(ctx, bookID)
		if err != nil {
			return err
		}
		if book.Deleted() {
			return errs.ErrNotFound
		}
		if err = book.Reserve(); err != nil {
			return err
		}
		if err = tx.UpdateBook(ctx, book); err != nil {
			return err
		}
		loan, err = tx.CreateLoan(ctx, model.NewLoan(bookID, actor.ID, now))
		return err
	})
	if err != nil {
		return model.Loan{}, err
	}

	loan.BookTitle = book.Title
	loan.BookAuthor = book.Author
	loan.BookISBN = book.ISBN
	s.notifyLoan(notify.KindLoanRequested, loan)
	return loan, nil
}

// ApproveLoan moves REQUESTED -> BORROWED and starts the lending period.
func (s *Service) ApproveLoan(ctx context.Context, actor model.Actor, loanID int) (model.Loan, error) {
	if !actor.CanModerate() {
		return model.Loan{}, errs.ErrForbidden
	}

	now := time.Now().UTC()
	var loan model.Loan
	err := s.repo.WithinTx(ctx, func(tx repository.Repository) error {
		var err error
		loan, err = tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if err = loan.Approve(actor.ID, now); err != nil {
			return err
		}
		loan.StampUpdated(actor.ID, now)
		return tx.UpdateLoan(ctx, loan)
	})
	if err != nil {
		return model.Loan{}, err
	}

	s.notifyLoan(notify.KindLoanApproved, loan)
	return loan, nil
}

// RejectLoan moves REQUESTED -> REJECTED and releases the hold placed at
// request time.
func (s *Service) RejectLoan(ctx context.Context, actor model.Actor, loanID int) (model.Loan, error) {
	if !actor.CanModerate() {
		return model.Loan{}, errs.ErrForbidden
	}

	var loan model.Loan
	err := s.repo.WithinTx(ctx, func(tx repository.Repository) error {
		var err error
		loan, err = tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if err = loan.Reject(actor.ID); err != nil {
			return err
		}
		loan.StampUpdated(actor.ID, time.Now().UTC())
		if err = tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		return s.releaseCopy(ctx, tx, loan.BookID)
	})
	if err != nil {
		return model.Loan{}, err
	}

	s.notifyLoan(notify.KindLoanRejected, loan)
	return loan, nil
}

// CancelLoan lets the requester withdraw a pending request, releasing the
// hold.
func (s *Service) CancelLoan(ctx context.Context, actor model.Actor, loanID int) (model.Loan, error) {
	var loan model.Loan
	err := s.repo.WithinTx(ctx, func(tx repository.Repository) error {
		var err error
		loan, err = tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.UserID != actor.ID {
			return errs.ErrForbidden
		}
		if err = loan.Cancel(); err != nil {
			return err
		}
		loan.StampUpdated(actor.ID, time.Now().UTC())
		if err = tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		return s.releaseCopy(ctx, tx, loan.BookID)
	})
	if err != nil {
		return model.Loan{}, err
	}

	s.notifyLoan(notify.KindLoanCanceled, loan)
	return loan, nil
}

// ReturnLoan moves BORROWED or LATE -> RETURNED and releases the copy.
func (s *Service) ReturnLoan(ctx context.Context, actor model.Actor, loanID int) (model.Loan, error) {
	now := time.Now().UTC()
	var loan model.Loan
	err := s.repo.WithinTx(ctx, func(tx repository.Repository) error {
		var err error
		loan, err = tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.UserID != actor.ID && !actor.CanModerate() {
			return errs.ErrForbidden
		}
		if err = loan.Return(now); err != nil {
			return err
		}
		loan.StampUpdated(actor.ID, now)
		if err = tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		return s.releaseCopy(ctx, tx, loan.BookID)
	})
	if err != nil {
		return model.Loan{}, err
	}

	s.notifyLoan(notify.KindLoanReturned, loan)
	return loan, nil
}

func (s *Service) releaseCopy(ctx context.Context, tx repository.Repository, bookID int) error {
	book, err := tx.GetBookForUpdate(ctx, bookID)
	if err != nil {
		return err
	}
	if err := book.Release(); err != nil {
		return err
	}
	return tx.UpdateBook(ctx, book)
}

// GetLoan returns one loan. Regular users only see their own.
func (s *Service) GetLoan(ctx context.Context, actor model.Actor, id int) (model.Loan, error) {
	loan, err := s.repo.GetLoan(ctx, id)
	if err != nil {
		return model.Loan{}, err
	}
	if loan.UserID != actor.ID && !actor.CanModerate() {
		return model.Loan{}, errs.ErrForbidden
	}
	return loan, nil
}

// ListLoans is restricted to moderators; regular users list their own loans
// through ListMyLoans.
func (s *Service) ListLoans(ctx context.Context, actor model.Actor, params model.LoanQueryParams) (model.LoanPage, error) {
	if !actor.CanModerate() {
		return model.LoanPage{}, errs.ErrForbidden
	}
	params.Normalize()
	return s.repo.ListLoans(ctx, params)
}

func (s *Service) ListMyLoans(ctx context.Context, actor model.Actor, params model.LoanQueryParams) (model.LoanPage, error) {
	params.Normalize()
	return s.repo.ListUserLoans(ctx, actor.ID, params)
}

// notifyLoan requests a notification after the transaction has committed.
// Best effort: failures are logged and never reach the caller.
func (s *Service) notifyLoan(kind notify.Kind, loan model.Loan) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		name, email := loan.UserName, loan.UserEmail
		if email == "" {
			user, err := s.repo.GetUser(ctx, loan.UserID)
			if err != nil {
				s.log.Warn("notify: resolve recipient",
					zap.Int("loan_id", loan.ID), zap.Error(err))
				return
			}
			name, email = user.Name, user.Email
		}

		msg := notify.Message{
			ID:             uuid.NewString(),
			Kind:           kind,
			RecipientName:  name,
			RecipientEmail: email,
			BookTitle:      loan.BookTitle,
			BookAuthor:     loan.BookAuthor,
			DueDate:        loan.DueDate,
			OccurredAt:     time.Now().UTC(),
		}
		if err := s.dispatcher.Dispatch(ctx, msg); err != nil {
			s.log.Warn("notify: dispatch",
				zap.Int("loan_id", loan.ID),
				zap.String("kind", string(kind)),
				zap.Error(err))
		}
	}()
}
