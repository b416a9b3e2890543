package handler_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pedronora/internum-api/internal/errs"
	"github.com/pedronora/internum-api/internal/handler"
	service_mocks "github.com/pedronora/internum-api/internal/handler/mocks"
	"github.com/pedronora/internum-api/internal/model"
	"github.com/pedronora/internum-api/pkg/auth"
	md "github.com/pedronora/internum-api/pkg/middleware"
	"github.com/pedronora/internum-api/pkg/validate"
)

var (
	userActor  = model.Actor{ID: 7, Role: model.RoleUser}
	adminActor = model.Actor{ID: 9, Role: model.RoleAdmin}
)

func newTestRouter(svc *service_mocks.MockLibraryService) *echo.Echo {
	h := handler.New(svc, zap.NewExample().Named("test"))

	e := echo.New()
	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1", md.AuthContext)

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

func asActor(r *http.Request, actor model.Actor) {
	r.Header.Set(auth.XUserIDHeader, "7")
	if actor == adminActor {
		r.Header.Set(auth.XUserIDHeader, "9")
	}
	r.Header.Set(auth.XUserRoleHeader, string(actor.Role))
}

func TestHandler_RequestLoan(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockLibraryService)

	tests := []struct {
		name         string
		target       string
		noAuth       bool
		mockBehavior mockBehavior
		response     response
	}{
		{
			name:   "created",
			target: "/api/v1/library/loans/42/request",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					RequestLoan(gomock.Any(), userActor, 42).
					Return(model.Loan{
						ID:             10,
						BookID:         42,
						UserID:         7,
						LoanPeriodDays: 14,
						Status:         model.StatusRequested,
						BookTitle:      "Dom Casmurro",
					}, nil)
			},
			response: response{
				expectedCode: http.StatusCreated,
				expectedBody: `{"id":10,"bookId":42,"userId":7,"loanPeriodDays":14,"status":"REQUESTED","createdAt":"0001-01-01T00:00:00Z","bookTitle":"Dom Casmurro"}`,
			},
		},
		{
			name:   "book not found",
			target: "/api/v1/library/loans/42/request",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					RequestLoan(gomock.Any(), userActor, 42).
					Return(model.Loan{}, errs.ErrNotFound)
			},
			response: response{
				expectedCode: http.StatusNotFound,
				expectedBody: `{"message":"not found"}`,
			},
		},
		{
			name:   "no copies",
			target: "/api/v1/library/loans/42/request",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					RequestLoan(gomock.Any(), userActor, 42).
					Return(model.Loan{}, errs.ErrOutOfStock)
			},
			response: response{
				expectedCode: http.StatusConflict,
				expectedBody: `{"message":"no copies available"}`,
			},
		},
		{
			name:         "bad book id",
			target:       "/api/v1/library/loans/abc/request",
			mockBehavior: func(r *service_mocks.MockLibraryService) {},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"bookId is invalid"}`,
			},
		},
		{
			name:         "no identity headers",
			target:       "/api/v1/library/loans/42/request",
			noAuth:       true,
			mockBehavior: func(r *service_mocks.MockLibraryService) {},
			response: response{
				expectedCode: http.StatusUnauthorized,
				expectedBody: `{"message":"user-id is empty"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockLibraryService(c)
			e := newTestRouter(svc)

			r := httptest.NewRequest(http.MethodPost, tt.target, http.NoBody)
			if !tt.noAuth {
				asActor(r, userActor)
			}
			w := httptest.NewRecorder()

			tt.mockBehavior(svc)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
		})
	}
}

func TestHandler_ApproveLoan(t *testing.T) {
	t.Parallel()
	borrowed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	due := borrowed.AddDate(0, 0, 14)
	approverID := 9

	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockLibraryService)

	tests := []struct {
		name         string
		actor        model.Actor
		mockBehavior mockBehavior
		response     response
	}{
		{
			name:  "ok",
			actor: adminActor,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					ApproveLoan(gomock.Any(), adminActor, 10).
					Return(model.Loan{
						ID:             10,
						BookID:         42,
						UserID:         7,
						ApprovedByID:   &approverID,
						LoanPeriodDays: 14,
						BorrowedAt:     &borrowed,
						DueDate:        &due,
						Status:         model.StatusBorrowed,
					}, nil)
			},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `{"id":10,"bookId":42,"userId":7,"approvedById":9,"loanPeriodDays":14,"borrowedAt":"2024-03-01T12:00:00Z","dueDate":"2024-03-15T12:00:00Z","status":"BORROWED","createdAt":"0001-01-01T00:00:00Z"}`,
			},
		},
		{
			name:  "forbidden for regular user",
			actor: userActor,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					ApproveLoan(gomock.Any(), userActor, 10).
					Return(model.Loan{}, errs.ErrForbidden)
			},
			response: response{
				expectedCode: http.StatusForbidden,
				expectedBody: `{"message":"forbidden"}`,
			},
		},
		{
			name:  "already returned",
			actor: adminActor,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					ApproveLoan(gomock.Any(), adminActor, 10).
					Return(model.Loan{}, errs.NewInvalidTransition("approve", "RETURNED"))
			},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"operation \"approve\" is not allowed for loan status \"RETURNED\""}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockLibraryService(c)
			e := newTestRouter(svc)

			r := httptest.NewRequest(http.MethodPatch, "/api/v1/library/loans/10/approve", http.NoBody)
			asActor(r, tt.actor)
			w := httptest.NewRecorder()

			tt.mockBehavior(svc)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
		})
	}
}

func TestHandler_CreateBook(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockLibraryService)

	tests := []struct {
		name         string
		body         string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "created",
			body: `{"isbn":"9788535902778","title":"Grande Sertão: Veredas","author":"João Guimarães Rosa","publisher":"Nova Fronteira","edition":2,"year":1956,"quantity":3}`,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					CreateBook(gomock.Any(), adminActor, model.BookCreateRequest{
						ISBN:      "9788535902778",
						Title:     "Grande Sertão: Veredas",
						Author:    "João Guimarães Rosa",
						Publisher: "Nova Fronteira",
						Edition:   2,
						Year:      1956,
						Quantity:  3,
					}).
					Return(model.Book{
						ID:                3,
						ISBN:              "9788535902778",
						Title:             "Grande Sertão: Veredas",
						Author:            "João Guimarães Rosa",
						Publisher:         "Nova Fronteira",
						Edition:           2,
						Year:              1956,
						Quantity:          3,
						AvailableQuantity: 3,
					}, nil)
			},
			response: response{
				expectedCode: http.StatusCreated,
				expectedBody: `{"id":3,"isbn":"9788535902778","title":"Grande Sertão: Veredas","author":"João Guimarães Rosa","publisher":"Nova Fronteira","edition":2,"year":1956,"quantity":3,"availableQuantity":3,"createdAt":"0001-01-01T00:00:00Z"}`,
			},
		},
		{
			name:         "missing title",
			body:         `{"isbn":"9788535902778","author":"João Guimarães Rosa","publisher":"Nova Fronteira","edition":2,"year":1956}`,
			mockBehavior: func(r *service_mocks.MockLibraryService) {},
			response: response{
				expectedCode: http.StatusBadRequest,
			},
		},
		{
			name: "duplicate isbn",
			body: `{"isbn":"9788535902778","title":"Grande Sertão: Veredas","author":"João Guimarães Rosa","publisher":"Nova Fronteira","edition":2,"year":1956}`,
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					CreateBook(gomock.Any(), adminActor, gomock.Any()).
					Return(model.Book{}, errs.ErrISBNConflict)
			},
			response: response{
				expectedCode: http.StatusConflict,
				expectedBody: `{"message":"book with this isbn already exists"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockLibraryService(c)
			e := newTestRouter(svc)

			r := httptest.NewRequest(http.MethodPost, "/api/v1/library/books", strings.NewReader(tt.body))
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			asActor(r, adminActor)
			w := httptest.NewRecorder()

			tt.mockBehavior(svc)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			if tt.response.expectedBody != "" {
				require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
			}
		})
	}
}

func TestHandler_DeleteBook(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockLibraryService)

	tests := []struct {
		name         string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name: "deleted",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					DeleteBook(gomock.Any(), adminActor, 3).
					Return(nil)
			},
			response: response{
				expectedCode: http.StatusNoContent,
				expectedBody: "",
			},
		},
		{
			name: "already deleted",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					DeleteBook(gomock.Any(), adminActor, 3).
					Return(errs.ErrAlreadyDeleted)
			},
			response: response{
				expectedCode: http.StatusConflict,
				expectedBody: `{"message":"already deleted"}`,
			},
		},
		{
			name: "internal",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					DeleteBook(gomock.Any(), adminActor, 3).
					Return(errors.New("db internal"))
			},
			response: response{
				expectedCode: http.StatusInternalServerError,
				expectedBody: `{"message":"db internal"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockLibraryService(c)
			e := newTestRouter(svc)

			r := httptest.NewRequest(http.MethodDelete, "/api/v1/library/books/3", http.NoBody)
			asActor(r, adminActor)
			w := httptest.NewRecorder()

			tt.mockBehavior(svc)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
		})
	}
}

func TestHandler_ListBooks(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockLibraryService)

	tests := []struct {
		name         string
		target       string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name:   "ok",
			target: "/api/v1/library/books?limit=10&sort_by=title",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					ListBooks(gomock.Any(), model.PageParams{Limit: 10, SortBy: "title"}).
					Return(model.BookPage{
						Meta: model.NewPageMeta(1, 10, 0),
						Books: []model.Book{{
							ID:                3,
							ISBN:              "9788535902778",
							Title:             "Grande Sertão: Veredas",
							Author:            "João Guimarães Rosa",
							Publisher:         "Nova Fronteira",
							Edition:           2,
							Year:              1956,
							Quantity:          3,
							AvailableQuantity: 2,
						}},
					}, nil)
			},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `{"meta":{"total":1,"page":1,"size":10,"totalPages":1,"hasNext":false,"hasPrev":false,"offset":0},"books":[{"id":3,"isbn":"9788535902778","title":"Grande Sertão: Veredas","author":"João Guimarães Rosa","publisher":"Nova Fronteira","edition":2,"year":1956,"quantity":3,"availableQuantity":2,"createdAt":"0001-01-01T00:00:00Z"}]}`,
			},
		},
		{
			name:         "sort field not allowed",
			target:       "/api/v1/library/books?sort_by=price",
			mockBehavior: func(r *service_mocks.MockLibraryService) {},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"sort_by is not allowed: price"}`,
			},
		},
		{
			name:         "bad limit",
			target:       "/api/v1/library/books?limit=0",
			mockBehavior: func(r *service_mocks.MockLibraryService) {},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"limit is invalid"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockLibraryService(c)
			e := newTestRouter(svc)

			r := httptest.NewRequest(http.MethodGet, tt.target, http.NoBody)
			asActor(r, userActor)
			w := httptest.NewRecorder()

			tt.mockBehavior(svc)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
		})
	}
}

func TestHandler_ListLoans(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(r *service_mocks.MockLibraryService)

	tests := []struct {
		name         string
		target       string
		mockBehavior mockBehavior
		response     response
	}{
		{
			name:   "filter by status",
			target: "/api/v1/library/loans?status=LATE&limit=5",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					ListLoans(gomock.Any(), adminActor, model.LoanQueryParams{
						PageParams: model.PageParams{Limit: 5},
						Status:     "LATE",
					}).
					Return(model.LoanPage{
						Meta:  model.NewPageMeta(0, 5, 0),
						Loans: []model.Loan{},
					}, nil)
			},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `{"meta":{"total":0,"page":1,"size":5,"totalPages":0,"hasNext":false,"hasPrev":false,"offset":0},"loans":[]}`,
			},
		},
		{
			name:         "unknown status",
			target:       "/api/v1/library/loans?status=bogus",
			mockBehavior: func(r *service_mocks.MockLibraryService) {},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"status is invalid: bogus"}`,
			},
		},
		{
			name:   "forbidden for regular user listing",
			target: "/api/v1/library/loans",
			mockBehavior: func(r *service_mocks.MockLibraryService) {
				r.EXPECT().
					ListLoans(gomock.Any(), adminActor, model.LoanQueryParams{}).
					Return(model.LoanPage{}, errs.ErrForbidden)
			},
			response: response{
				expectedCode: http.StatusForbidden,
				expectedBody: `{"message":"forbidden"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			svc := service_mocks.NewMockLibraryService(c)
			e := newTestRouter(svc)

			r := httptest.NewRequest(http.MethodGet, tt.target, http.NoBody)
			asActor(r, adminActor)
			w := httptest.NewRecorder()

			tt.mockBehavior(svc)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
		})
	}
}
