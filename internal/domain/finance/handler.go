package finance

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/donka/ward/internal/domain"
	"github.com/donka/ward/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/transactions", h.ListTransactions)
	api.POST("/transactions", h.RecordTransaction)
	api.GET("/transactions/totals", h.GetTotals)
	api.GET("/transactions/categories", h.ListCategories)
}

type recordRequest struct {
	Date        string  `json:"date"`
	Type        TxType  `json:"type"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

func (h *Handler) RecordTransaction(c echo.Context) error {
	var req recordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	tx := Transaction{Type: req.Type, Category: req.Category, Description: req.Description, Amount: req.Amount}
	if req.Date != "" {
		d, err := ParseDate(req.Date)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		tx.Date = d
	}
	if err := h.svc.Record(c.Request().Context(), &tx); err != nil {
		return echo.NewHTTPError(domain.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, tx)
}

func (h *Handler) ListTransactions(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithNext(c.Request().URL.Path, c.QueryParams())
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetTotals(c echo.Context) error {
	totals, err := h.svc.Totals(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, totals)
}

func (h *Handler) ListCategories(c echo.Context) error {
	return c.JSON(http.StatusOK, map[TxType][]string{
		TxIncome:  IncomeCategories,
		TxExpense: ExpenseCategories,
	})
}
