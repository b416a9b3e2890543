package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pedronora/internum-api/internal/errs"
	"github.com/pedronora/internum-api/internal/model"
	"github.com/pedronora/internum-api/internal/repository"
)

func (s *Service) CreateBook(ctx context.Context, actor model.Actor, req model.BookCreateRequest) (model.Book, error) {
	if !actor.CanModerate() {
		return model.Book{}, errs.ErrForbidden
	}

	quantity := req.Quantity
	if quantity < 1 {
		quantity = 1
	}
	book := model.Book{
		ISBN:              req.ISBN,
		Title:             req.Title,
		Author:            req.Author,
		Publisher:         req.Publisher,
		Edition:           req.Edition,
		Year:              req.Year,
		Quantity:          quantity,
		AvailableQuantity: quantity,
	}
	book.StampCreated(actor.ID, time.Now().UTC())

	return s.repo.CreateBook(ctx, book)
}

func (s *Service) GetBook(ctx context.Context, id int) (model.Book, error) {
	return s.repo.GetBook(ctx, id)
}

func (s *Service) ListBooks(ctx context.Context, params model.PageParams) (model.BookPage, error) {
	params.Normalize()
	return s.repo.ListBooks(ctx, params)
}

// UpdateBook applies field edits; a quantity change recomputes availability,
// clamped to 0 <= available <= quantity when active loans exceed the new
// stock.
func (s *Service) UpdateBook(ctx context.Context, actor model.Actor, id int, req model.BookUpdateRequest) (model.Book, error) {
	if !actor.CanModerate() {
		return model.Book{}, errs.ErrForbidden
	}

	var book model.Book
	err := s.repo.WithinTx(ctx, func(tx repository.Repository) error {
		var err error
		book, err = tx.GetBookForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if book.Deleted() {
			return errs.ErrNotFound
		}

		if req.Title != nil {
			book.Title = *req.Title
		}
		if req.Author != nil {
			book.Author = *req.Author
		}
		if req.Publisher != nil {
			book.Publisher = *req.Publisher
		}
		if req.Edition != nil {
			book.Edition = *req.Edition
		}
		if req.Year != nil {
			book.Year = *req.Year
		}
		if req.Quantity != nil {
			if clamped := book.AdjustQuantity(*req.Quantity); clamped {
				s.log.Warn("inventory inconsistency: availability clamped on quantity change",
					zap.Int("book_id", book.ID),
					zap.Int("quantity", book.Quantity),
					zap.Int("available", book.AvailableQuantity))
			}
		}
		book.StampUpdated(actor.ID, time.Now().UTC())
		return tx.UpdateBook(ctx, book)
	})
	if err != nil {
		return model.Book{}, err
	}
	return book, nil
}

// DeleteBook soft-deletes; the row and its loan history stay in place.
func (s *Service) DeleteBook(ctx context.Context, actor model.Actor, id int) error {
	if !actor.CanModerate() {
		return errs.ErrForbidden
	}

	return s.repo.WithinTx(ctx, func(tx repository.Repository) error {
		book, err := tx.GetBookForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := book.SoftDelete(actor.ID, time.Now().UTC()); err != nil {
			return err
		}
		return tx.UpdateBook(ctx, book)
	})
}
