package stock

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/donka/ward/internal/domain"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/stock", h.ListItems)
	api.POST("/stock", h.CreateItem)
	api.GET("/stock/alerts", h.ListAlerts)
	api.GET("/stock/:name", h.GetItem)
	api.POST("/stock/:name/adjust", h.AdjustItem)
	api.GET("/stock/:name/movements", h.ListMovements)
}

func httpError(err error) error {
	return echo.NewHTTPError(domain.HTTPStatus(err), err.Error())
}

type createRequest struct {
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	AlertThreshold int    `json:"alert_threshold"`
}

func (h *Handler) CreateItem(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	item, err := h.svc.CreateItem(c.Request().Context(), req.Name, req.Quantity, req.AlertThreshold)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *Handler) GetItem(c echo.Context) error {
	item, err := h.svc.Get(c.Request().Context(), c.Param("name"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) ListItems(c echo.Context) error {
	items, err := h.svc.List(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListAlerts(c echo.Context) error {
	items, err := h.svc.AlertItems(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

type adjustRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

func (h *Handler) AdjustItem(c echo.Context) error {
	var req adjustRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	item, err := h.svc.Adjust(c.Request().Context(), c.Param("name"), req.Delta, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) ListMovements(c echo.Context) error {
	items, err := h.svc.Movements(c.Request().Context(), c.Param("name"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}
