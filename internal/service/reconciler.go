package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pedronora/internum-api/internal/model"
	"github.com/pedronora/internum-api/internal/notify"
	"github.com/pedronora/internum-api/internal/repository"
)

// SweepOverdue moves BORROWED loans past their due date into LATE and
// requests a late notice for each. Status changes are persisted in one
// transaction; an error on one loan is logged and does not block the rest.
// Running the sweep twice back to back transitions nothing the second time,
// since LATE loans no longer match the BORROWED filter.
func (s *Service) SweepOverdue(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	var transitioned []model.Loan
	err := s.repo.WithinTx(ctx, func(tx repository.Repository) error {
		loans, err := tx.ListOverdueLoans(ctx, now)
		if err != nil {
			return err
		}
		for _, loan := range loans {
			loan := loan
			if !loan.CheckOverdue(now) {
				continue
			}
			if err := tx.UpdateLoan(ctx, loan); err != nil {
				s.log.Error("sweep: persist late status",
					zap.Int("loan_id", loan.ID), zap.Error(err))
				continue
			}
			transitioned = append(transitioned, loan)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, loan := range transitioned {
		msg := notify.Message{
			ID:             uuid.NewString(),
			Kind:           notify.KindLoanLate,
			RecipientName:  loan.UserName,
			RecipientEmail: loan.UserEmail,
			BookTitle:      loan.BookTitle,
			BookAuthor:     loan.BookAuthor,
			DueDate:        loan.DueDate,
			OccurredAt:     now,
		}
		if err := s.dispatcher.Dispatch(ctx, msg); err != nil {
			s.log.Warn("sweep: dispatch late notice",
				zap.Int("loan_id", loan.ID), zap.Error(err))
		}
	}

	s.log.Info("overdue sweep finished", zap.Int("transitioned", len(transitioned)))
	return len(transitioned), nil
}
