package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/pedronora/internum-api/internal/errs"
	"github.com/pedronora/internum-api/internal/model"
	"github.com/pedronora/internum-api/internal/repository"
	"github.com/pedronora/internum-api/pkg/auth"
	md "github.com/pedronora/internum-api/pkg/middleware"
	"github.com/pedronora/internum-api/pkg/validate"
)

type Handler struct {
	librarySvc LibraryService
	log        *zap.Logger
}

func New(librarySvc LibraryService, log *zap.Logger) *Handler {
	return &Handler{
		librarySvc: librarySvc,
		log:        log,
	}
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))

	base := e.Group("", md.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig()),
		middleware.RequestID(),
		md.NewRateLimiter(apiRPS),
		md.AuthContext,
	)

	api.POST("/library/books", h.CreateBook)
	api.GET("/library/books", h.ListBooks)
	api.GET("/library/books/:bookId", h.GetBook)
	api.PUT("/library/books/:bookId", h.UpdateBook)
	api.DELETE("/library/books/:bookId", h.DeleteBook)

	api.POST("/library/loans/:bookId/request", h.RequestLoan)
	api.PATCH("/library/loans/:loanId/approve", h.ApproveLoan)
	api.PATCH("/library/loans/:loanId/reject", h.RejectLoan)
	api.PATCH("/library/loans/:loanId/cancel", h.CancelLoan)
	api.PATCH("/library/loans/:loanId/return", h.ReturnLoan)
	api.GET("/library/loans", h.ListLoans)
	api.GET("/library/loans/my", h.ListMyLoans)
	api.GET("/library/loans/:loanId", h.GetLoan)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// httpError is the single place core errors become transport responses.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errs.IsInvalidTransition(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrOutOfStock),
		errors.Is(err, errs.ErrISBNConflict),
		errors.Is(err, errs.ErrAlreadyDeleted),
		errors.Is(err, errs.ErrInvariant):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func actorFrom(c echo.Context) (model.Actor, error) {
	a, ok := auth.FromContext(c.Request().Context())
	if !ok {
		return model.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "no actor in context")
	}
	return model.Actor{ID: a.ID, Role: model.Role(a.Role)}, nil
}

func pathID(c echo.Context, name string) (int, error) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id < 1 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" is invalid")
	}
	return id, nil
}

func pageParams(c echo.Context, sortFields map[string]string) (model.PageParams, error) {
	var (
		params model.PageParams
		err    error
	)
	if limitParam := c.QueryParam("limit"); limitParam != "" {
		if params.Limit, err = strconv.Atoi(limitParam); err != nil || params.Limit < 1 {
			return params, echo.NewHTTPError(http.StatusBadRequest, "limit is invalid")
		}
	}
	if offsetParam := c.QueryParam("offset"); offsetParam != "" {
		if params.Offset, err = strconv.Atoi(offsetParam); err != nil || params.Offset < 0 {
			return params, echo.NewHTTPError(http.StatusBadRequest, "offset is invalid")
		}
	}
	params.Search = c.QueryParam("search")

	if sortBy := c.QueryParam("sort_by"); sortBy != "" {
		if _, ok := sortFields[sortBy]; !ok {
			return params, echo.NewHTTPError(http.StatusBadRequest, "sort_by is not allowed: "+sortBy)
		}
		params.SortBy = sortBy
	}
	switch sortOrder := c.QueryParam("sort_order"); sortOrder {
	case "", "asc", "desc":
		params.SortOrder = sortOrder
	default:
		return params, echo.NewHTTPError(http.StatusBadRequest, "sort_order must be asc or desc")
	}
	return params, nil
}

func loanQueryParams(c echo.Context) (model.LoanQueryParams, error) {
	page, err := pageParams(c, repository.LoanSortFields)
	if err != nil {
		return model.LoanQueryParams{}, err
	}
	params := model.LoanQueryParams{PageParams: page}
	if status := c.QueryParam("status"); status != "" {
		st, ok := model.ParseLoanStatus(status)
		if !ok {
			return model.LoanQueryParams{}, echo.NewHTTPError(http.StatusBadRequest, "status is invalid: "+status)
		}
		params.Status = string(st)
	}
	return params, nil
}

func (h *Handler) RequestLoan(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	bookID, err := pathID(c, "bookId")
	if err != nil {
		return err
	}
	loan, err := h.librarySvc.RequestLoan(c.Request().Context(), actor, bookID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, loan)
}

func (h *Handler) transition(c echo.Context,
	op func(actor model.Actor, loanID int) (model.Loan, error),
) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	loanID, err := pathID(c, "loanId")
	if err != nil {
		return err
	}
	loan, err := op(actor, loanID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, loan)
}

func (h *Handler) ApproveLoan(c echo.Context) error {
	return h.transition(c, func(actor model.Actor, loanID int) (model.Loan, error) {
		return h.librarySvc.ApproveLoan(c.Request().Context(), actor, loanID)
	})
}

func (h *Handler) RejectLoan(c echo.Context) error {
	return h.transition(c, func(actor model.Actor, loanID int) (model.Loan, error) {
		return h.librarySvc.RejectLoan(c.Request().Context(), actor, loanID)
	})
}

func (h *Handler) CancelLoan(c echo.Context) error {
	return h.transition(c, func(actor model.Actor, loanID int) (model.Loan, error) {
		return h.librarySvc.CancelLoan(c.Request().Context(), actor, loanID)
	})
}

func (h *Handler) ReturnLoan(c echo.Context) error {
	return h.transition(c, func(actor model.Actor, loanID int) (model.Loan, error) {
		return h.librarySvc.ReturnLoan(c.Request().Context(), actor, loanID)
	})
}

func (h *Handler) GetLoan(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	loanID, err := pathID(c, "loanId")
	if err != nil {
		return err
	}
	loan, err := h.librarySvc.GetLoan(c.Request().Context(), actor, loanID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, loan)
}

func (h *Handler) ListLoans(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	params, err := loanQueryParams(c)
	if err != nil {
		return err
	}
	page, err := h.librarySvc.ListLoans(c.Request().Context(), actor, params)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) ListMyLoans(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	params, err := loanQueryParams(c)
	if err != nil {
		return err
	}
	page, err := h.librarySvc.ListMyLoans(c.Request().Context(), actor, params)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) CreateBook(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req model.BookCreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	book, err := h.librarySvc.CreateBook(c.Request().Context(), actor, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, book)
}

func (h *Handler) ListBooks(c echo.Context) error {
	params, err := pageParams(c, repository.BookSortFields)
	if err != nil {
		return err
	}
	page, err := h.librarySvc.ListBooks(c.Request().Context(), params)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) GetBook(c echo.Context) error {
	bookID, err := pathID(c, "bookId")
	if err != nil {
		return err
	}
	book, err := h.librarySvc.GetBook(c.Request().Context(), bookID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, book)
}

func (h *Handler) UpdateBook(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	bookID, err := pathID(c, "bookId")
	if err != nil {
		return err
	}
	var req model.BookUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	book, err := h.librarySvc.UpdateBook(c.Request().Context(), actor, bookID, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, book)
}

func (h *Handler) DeleteBook(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	bookID, err := pathID(c, "bookId")
	if err != nil {
		return err
	}
	if err := h.librarySvc.DeleteBook(c.Request().Context(), actor, bookID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
