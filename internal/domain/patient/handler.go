package patient

import (
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
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
	api.GET("/patients", h.ListPatients)
	api.POST("/patients", h.AdmitPatient)
	api.GET("/patients/active", h.ListActive)
	api.GET("/patients/complications", h.ListWithComplications)
	api.GET("/patients/ipp/:ipp", h.GetPatientByIPP)
	api.GET("/patients/:id", h.GetPatient)

	// Follow-up
	api.POST("/patients/:id/notes", h.AppendNote)
	api.PUT("/patients/:id/status", h.SetStatus)
	api.POST("/patients/:id/complication", h.DeclareComplication)
	api.POST("/patients/:id/complication/resolve", h.ResolveComplication)
	api.PUT("/patients/:id/image", h.AttachImage)
	api.GET("/patients/:id/image", h.GetImage)
	api.GET("/patients/:id/report", h.GetReport)
	api.PUT("/patients/:id/report", h.SetReport)
	api.POST("/patients/:id/report", h.GenerateReport)
}

func httpError(err error) error {
	return echo.NewHTTPError(domain.HTTPStatus(err), err.Error())
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) AdmitPatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Admit(c.Request().Context(), &p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetPatientByIPP(c echo.Context) error {
	p, err := h.svc.GetByIPP(c.Request().Context(), c.Param("ipp"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	resp := pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithNext(c.Request().URL.Path, c.QueryParams())
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListActive(c echo.Context) error {
	items, err := h.svc.ActivePatients(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListWithComplications(c echo.Context) error {
	items, err := h.svc.PatientsWithComplications(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

type noteRequest struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

func (h *Handler) AppendNote(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req noteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.AppendNote(c.Request().Context(), id, req.Text, req.At)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) SetStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req struct {
		Status Status `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.SetStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeclareComplication(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req struct {
		Complication Complication `json:"complication"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.DeclareComplication(c.Request().Context(), id, req.Complication)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ResolveComplication(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req struct {
		Note string `json:"note"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.ResolveComplication(c.Request().Context(), id, req.Note)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// AttachImage accepts a multipart upload in the "image" field.
func (h *Handler) AttachImage(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("image")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "image file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, MaxImageSize+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if err := h.svc.AttachImage(c.Request().Context(), id, data, contentType); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetImage(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if p.Image == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no image attached")
	}
	return c.Blob(http.StatusOK, p.Image.ContentType, p.Image.Data)
}

func (h *Handler) GetReport(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if p.Report == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no report for this patient")
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="report-`+p.IPP+`.txt"`)
	return c.String(http.StatusOK, *p.Report)
}

func (h *Handler) SetReport(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.SetReport(c.Request().Context(), id, req.Text)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GenerateReport(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GenerateReport(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}
