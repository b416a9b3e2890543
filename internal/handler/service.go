package handler

import (
	"context"

	"github.com/pedronora/internum-api/internal/model"
	"github.com/pedronora/internum-api/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type LibraryService interface {
	RequestLoan(ctx context.Context, actor model.Actor, bookID int) (model.Loan, error)
	ApproveLoan(ctx context.Context, actor model.Actor, loanID int) (model.Loan, error)
	RejectLoan(ctx context.Context, actor model.Actor, loanID int) (model.Loan, error)
	CancelLoan(ctx context.Context, actor model.Actor, loanID int) (model.Loan, error)
	ReturnLoan(ctx context.Context, actor model.Actor, loanID int) (model.Loan, error)
	GetLoan(ctx context.Context, actor model.Actor, loanID int) (model.Loan, error)
	ListLoans(ctx context.Context, actor model.Actor, params model.LoanQueryParams) (model.LoanPage, error)
	ListMyLoans(ctx context.Context, actor model.Actor, params model.LoanQueryParams) (model.LoanPage, error)

	CreateBook(ctx context.Context, actor model.Actor, req model.BookCreateRequest) (model.Book, error)
	GetBook(ctx context.Context, id int) (model.Book, error)
	ListBooks(ctx context.Context, params model.PageParams) (model.BookPage, error)
	UpdateBook(ctx context.Context, actor model.Actor, id int, req model.BookUpdateRequest) (model.Book, error)
	DeleteBook(ctx context.Context, actor model.Actor, id int) error
}

var _ LibraryService = (*service.Service)(nil)
