package repository

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/pedronora/internum-api/internal/errs"
	"github.com/pedronora/internum-api/internal/model"
)

type Repository interface {
	// WithinTx runs fn against a Repository bound to one transaction.
	// A serialization or deadlock failure is retried exactly once.
	WithinTx(ctx context.Context, fn func(tx Repository) error) error

	GetBook(ctx context.Context, id int) (model.Book, error)
	GetBookForUpdate(ctx context.Context, id int) (model.Book, error)
	CreateBook(ctx context.Context, book model.Book) (model.Book, error)
	UpdateBook(ctx context.Context, book model.Book) error
	ListBooks(ctx context.Context, params model.PageParams) (model.BookPage, error)

	GetLoan(ctx context.Context, id int) (model.Loan, error)
	GetLoanForUpdate(ctx context.Context, id int) (model.Loan, error)
	CreateLoan(ctx context.Context, loan model.Loan) (model.Loan, error)
	UpdateLoan(ctx context.Context, loan model.Loan) error
	ListLoans(ctx context.Context, params model.LoanQueryParams) (model.LoanPage, error)
	ListUserLoans(ctx context.Context, userID int, params model.LoanQueryParams) (model.LoanPage, error)
	ListOverdueLoans(ctx context.Context, now time.Time) ([]model.Loan, error)

	GetUser(ctx context.Context, id int) (model.User, error)
}

type repository struct {
	db  *sqlx.DB
	ext sqlx.ExtContext
	log *zap.Logger
}

func NewRepository(db *sqlx.DB, log *zap.Logger) (*repository, error) {
	return &repository{
		db:  db,
		ext: db,
		log: log.Named("repo"),
	}, nil
}

const (
	usersTableName = `users`
	booksTableName = `books`
	loansTableName = `loans`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var bookColumns = []string{
	"id", "isbn", "title", "author", "publisher", "edition", "year",
	"quantity", "available_quantity",
	"created_at", "created_by", "updated_at", "updated_by", "deleted_at", "deleted_by",
}

var loanColumns = []string{
	"l.id", "l.book_id", "l.user_id", "l.approved_by_id", "l.loan_period_days",
	"l.borrowed_at", "l.due_date", "l.returned_at", "l.status",
	"l.created_at", "l.created_by", "l.updated_at", "l.updated_by", "l.deleted_at", "l.deleted_by",
	"b.title as book_title", "b.author as book_author", "b.isbn as book_isbn",
	"u.name as user_name", "u.email as user_email",
}

// Sort allow-lists. Anything outside these maps is rejected at the handler
// before it reaches the data layer.
var (
	BookSortFields = map[string]string{
		"title":      "title",
		"author":     "author",
		"year":       "year",
		"created_at": "created_at",
	}
	LoanSortFields = map[string]string{
		"id":         "l.id",
		"status":     "l.status",
		"created_at": "l.created_at",
		"updated_at": "l.updated_at",
		"due_date":   "l.due_date",
	}
)

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
}

func (r *repository) WithinTx(ctx context.Context, fn func(tx Repository) error) error {
	if r.db == nil {
		// already inside a transaction, reuse it
		return fn(r)
	}

	run := func() error {
		tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
		if err != nil {
			return errors.Wrap(err, "begin tx")
		}
		if err := fn(&repository{ext: tx, log: r.log}); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	}

	err := run()
	if err != nil && retryable(err) {
		r.log.Warn("tx conflict, retrying once", zap.Error(err))
		err = run()
	}
	return err
}

func (r *repository) GetBook(ctx context.Context, id int) (model.Book, error) {
	return r.getBook(ctx, id, false)
}

func (r *repository) GetBookForUpdate(ctx context.Context, id int) (model.Book, error) {
	return r.getBook(ctx, id, true)
}

func (r *repository) getBook(ctx context.Context, id int, forUpdate bool) (model.Book, error) {
	q := qb.Select(bookColumns...).
		From(booksTableName).
		Where(sq.Eq{"id": id})
	if forUpdate {
		// soft-deleted rows stay visible under lock so the service can tell
		// "already deleted" apart from "never existed"
		q = q.Suffix("for update")
	} else {
		q = q.Where("deleted_at is null")
	}
	query, args, err := q.ToSql()
	if err != nil {
		return model.Book{}, err
	}

	var book model.Book
	if err := sqlx.GetContext(ctx, r.ext, &book, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		return model.Book{}, err
	}
	return book, nil
}

func (r *repository) CreateBook(ctx context.Context, book model.Book) (model.Book, error) {
	query, args, err := qb.Insert(booksTableName).
		Columns("isbn", "title", "author", "publisher", "edition", "year",
			"quantity", "available_quantity", "created_at", "created_by").
		Values(book.ISBN, book.Title, book.Author, book.Publisher, book.Edition, book.Year,
			book.Quantity, book.AvailableQuantity, book.CreatedAt, book.CreatedBy).
		Suffix("returning id").
		ToSql()
	if err != nil {
		return model.Book{}, err
	}

	if err := sqlx.GetContext(ctx, r.ext, &book.ID, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return model.Book{}, errs.ErrISBNConflict
		}
		r.log.Error("CreateBook", zap.String("q", query), zap.Error(err))
		return model.Book{}, err
	}
	return book, nil
}

func (r *repository) UpdateBook(ctx context.Context, book model.Book) error {
	query, args, err := qb.Update(booksTableName).
		Set("title", book.Title).
		Set("author", book.Author).
		Set("publisher", book.Publisher).
		Set("edition", book.Edition).
		Set("year", book.Year).
		Set("quantity", book.Quantity).
		Set("available_quantity", book.AvailableQuantity).
		Set("updated_at", book.UpdatedAt).
		Set("updated_by", book.UpdatedBy).
		Set("deleted_at", book.DeletedAt).
		Set("deleted_by", book.DeletedBy).
		Where(sq.Eq{"id": book.ID}).
		ToSql()
	if err != nil {
		return err
	}

	res, err := r.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func bookSearchFilter(search string) sq.Sqlizer {
	pattern := "%" + search + "%"
	return sq.Or{
		sq.ILike{"title": pattern},
		sq.ILike{"author": pattern},
		sq.ILike{"isbn": pattern},
	}
}

func (r *repository) ListBooks(ctx context.Context, params model.PageParams) (model.BookPage, error) {
	filtered := func(q sq.SelectBuilder) sq.SelectBuilder {
		q = q.Where("deleted_at is null")
		if params.Search != "" {
			q = q.Where(bookSearchFilter(params.Search))
		}
		return q
	}

	countQuery, countArgs, err := filtered(qb.Select("count(*)").From(booksTableName)).ToSql()
	if err != nil {
		return model.BookPage{}, err
	}
	var total int
	if err := sqlx.GetContext(ctx, r.ext, &total, countQuery, countArgs...); err != nil {
		return model.BookPage{}, err
	}

	sortColumn, ok := BookSortFields[params.SortBy]
	if !ok {
		sortColumn = "title"
	}

	query, args, err := filtered(qb.Select(bookColumns...).From(booksTableName)).
		OrderBy(sortColumn + " " + params.SortOrder).
		Offset(uint64(params.Offset)).
		Limit(uint64(params.Limit)).
		ToSql()
	if err != nil {
		return model.BookPage{}, err
	}

	books := make([]model.Book, 0)
	if err := sqlx.SelectContext(ctx, r.ext, &books, query, args...); err != nil {
		return model.BookPage{}, err
	}

	return model.BookPage{
		Meta:  model.NewPageMeta(total, params.Limit, params.Offset),
		Books: books,
	}, nil
}

func loanBase() sq.SelectBuilder {
	return qb.Select(loanColumns...).
		From(loansTableName + " l").
		Join(booksTableName + " b on b.id = l.book_id").
		Join(usersTableName + " u on u.id = l.user_id")
}

func (r *repository) GetLoan(ctx context.Context, id int) (model.Loan, error) {
	return r.getLoan(ctx, id, false)
}

func (r *repository) GetLoanForUpdate(ctx context.Context, id int) (model.Loan, error) {
	return r.getLoan(ctx, id, true)
}

func (r *repository) getLoan(ctx context.Context, id int, forUpdate bool) (model.Loan, error) {
	q := loanBase().
		Where(sq.Eq{"l.id": id}).
		Where("l.deleted_at is null")
	if forUpdate {
		q = q.Suffix("for update of l")
	}
	query, args, err := q.ToSql()
	if err != nil {
		return model.Loan{}, err
	}

	var loan model.Loan
	if err := sqlx.GetContext(ctx, r.ext, &loan, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Loan{}, errs.ErrNotFound
		}
		return model.Loan{}, err
	}
	return loan, nil
}

func (r *repository) CreateLoan(ctx context.Context, loan model.Loan) (model.Loan, error) {
	query, args, err := qb.Insert(loansTableName).
		Columns("book_id", "user_id", "loan_period_days", "status", "created_at", "created_by").
		Values(loan.BookID, loan.UserID, loan.LoanPeriodDays, loan.Status, loan.CreatedAt, loan.CreatedBy).
		Suffix("returning id").
		ToSql()
	if err != nil {
		return model.Loan{}, err
	}

	if err := sqlx.GetContext(ctx, r.ext, &loan.ID, query, args...); err != nil {
		r.log.Error("CreateLoan", zap.String("q", query), zap.Error(err))
		return model.Loan{}, err
	}
	return loan, nil
}

func (r *repository) UpdateLoan(ctx context.Context, loan model.Loan) error {
	query, args, err := qb.Update(loansTableName).
		Set("status", loan.Status).
		Set("approved_by_id", loan.ApprovedByID).
		Set("borrowed_at", loan.BorrowedAt).
		Set("due_date", loan.DueDate).
		Set("returned_at", loan.ReturnedAt).
		Set("updated_at", loan.UpdatedAt).
		Set("updated_by", loan.UpdatedBy).
		Where(sq.Eq{"id": loan.ID}).
		ToSql()
	if err != nil {
		return err
	}

	res, err := r.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func loanSearchFilter(search string) sq.Sqlizer {
	pattern := "%" + search + "%"
	return sq.Or{
		sq.ILike{"b.title": pattern},
		sq.ILike{"b.author": pattern},
		sq.ILike{"b.isbn": pattern},
		sq.ILike{"u.name": pattern},
	}
}

func (r *repository) ListLoans(ctx context.Context, params model.LoanQueryParams) (model.LoanPage, error) {
	return r.listLoans(ctx, 0, params)
}

func (r *repository) ListUserLoans(ctx context.Context, userID int, params model.LoanQueryParams) (model.LoanPage, error) {
	return r.listLoans(ctx, userID, params)
}

func (r *repository) listLoans(ctx context.Context, userID int, params model.LoanQueryParams) (model.LoanPage, error) {
	filtered := func(q sq.SelectBuilder) sq.SelectBuilder {
		q = q.Where("l.deleted_at is null")
		if userID != 0 {
			q = q.Where(sq.Eq{"l.user_id": userID})
		}
		if params.Status != "" {
			q = q.Where(sq.Eq{"l.status": params.Status})
		}
		if params.Search != "" {
			q = q.Where(loanSearchFilter(params.Search))
		}
		return q
	}

	countQuery, countArgs, err := filtered(qb.Select("count(*)").
		From(loansTableName + " l").
		Join(booksTableName + " b on b.id = l.book_id").
		Join(usersTableName + " u on u.id = l.user_id")).
		ToSql()
	if err != nil {
		return model.LoanPage{}, err
	}
	var total int
	if err := sqlx.GetContext(ctx, r.ext, &total, countQuery, countArgs...); err != nil {
		return model.LoanPage{}, err
	}

	sortColumn, ok := LoanSortFields[params.SortBy]
	if !ok {
		sortColumn = "l.id"
	}

	query, args, err := filtered(loanBase()).
		OrderBy(sortColumn + " " + params.SortOrder).
		Offset(uint64(params.Offset)).
		Limit(uint64(params.Limit)).
		ToSql()
	if err != nil {
		return model.LoanPage{}, err
	}
	r.log.Debug("listLoans", zap.String("query", query), zap.Any("args", args))

	loans := make([]model.Loan, 0)
	if err := sqlx.SelectContext(ctx, r.ext, &loans, query, args...); err != nil {
		return model.LoanPage{}, err
	}

	return model.LoanPage{
		Meta:  model.NewPageMeta(total, params.Limit, params.Offset),
		Loans: loans,
	}, nil
}

func (r *repository) ListOverdueLoans(ctx context.Context, now time.Time) ([]model.Loan, error) {
	query, args, err := loanBase().
		Where(sq.Eq{"l.status": model.StatusBorrowed}).
		Where(sq.Lt{"l.due_date": now}).
		Where("l.deleted_at is null").
		OrderBy("l.due_date asc").
		ToSql()
	if err != nil {
		return nil, err
	}

	var loans []model.Loan
	if err := sqlx.SelectContext(ctx, r.ext, &loans, query, args...); err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *repository) GetUser(ctx context.Context, id int) (model.User, error) {
	query, args, err := qb.Select("id", "name", "username", "email", "role", "active").
		From(usersTableName).
		Where(sq.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.User{}, err
	}

	var user model.User
	if err := sqlx.GetContext(ctx, r.ext, &user, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, errs.ErrNotFound
		}
		return model.User{}, err
	}
	return user, nil
}
