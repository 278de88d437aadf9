package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/donka/ward/internal/domain"
)

const (
	mimeCSV  = "text/csv; charset=utf-8"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	maxImportSize = 32 << 20
)

type Handler struct {
	ward *Ward
	now  func() time.Time
}

func NewHandler(ward *Ward) *Handler {
	return &Handler{ward: ward, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/export/patients.csv", h.ExportPatients)
	api.GET("/export/transactions.csv", h.ExportTransactions)
	api.GET("/export/stock.csv", h.ExportStock)
	api.GET("/export/ward.xlsx", h.ExportWorkbook)

	api.POST("/import/patients", h.ImportPatients)
	api.POST("/import/transactions", h.ImportTransactions)
	api.POST("/import/stock", h.ImportStock)
}

func (h *Handler) attachment(c echo.Context, base, ext, contentType string, write func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	name := fmt.Sprintf("%s_%s.%s", base, h.now().Format("20060102"), ext)
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return c.Blob(http.StatusOK, contentType, buf.Bytes())
}

func (h *Handler) ExportPatients(c echo.Context) error {
	snap, err := h.ward.Snapshot(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return h.attachment(c, "patients", "csv", mimeCSV, func(w io.Writer) error {
		return WritePatients(w, snap.Patients)
	})
}

func (h *Handler) ExportTransactions(c echo.Context) error {
	snap, err := h.ward.Snapshot(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return h.attachment(c, "transactions", "csv", mimeCSV, func(w io.Writer) error {
		return WriteTransactions(w, snap.Transactions)
	})
}

func (h *Handler) ExportStock(c echo.Context) error {
	snap, err := h.ward.Snapshot(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return h.attachment(c, "stock", "csv", mimeCSV, func(w io.Writer) error {
		return WriteStock(w, snap.Stock)
	})
}

func (h *Handler) ExportWorkbook(c echo.Context) error {
	snap, err := h.ward.Snapshot(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return h.attachment(c, "ward", "xlsx", mimeXLSX, func(w io.Writer) error {
		return WriteWorkbook(w, snap)
	})
}

// importBody reads the CSV from a multipart "file" field, or from the raw
// request body when the request is not multipart.
func importBody(c echo.Context) (io.ReadCloser, error) {
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, errors.New("file field is required")
		}
		return fh.Open()
	}
	return io.NopCloser(io.LimitReader(c.Request().Body, maxImportSize)), nil
}

func (h *Handler) runImport(c echo.Context, load func(echo.Context, io.Reader) (int, error)) error {
	body, err := importBody(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer body.Close()
	n, err := load(c, body)
	if err != nil {
		return echo.NewHTTPError(domain.HTTPStatus(err), map[string]interface{}{"imported": n, "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]int{"imported": n})
}

func (h *Handler) ImportPatients(c echo.Context) error {
	return h.runImport(c, func(c echo.Context, r io.Reader) (int, error) {
		return h.ward.ImportPatients(c.Request().Context(), r)
	})
}

func (h *Handler) ImportTransactions(c echo.Context) error {
	return h.runImport(c, func(c echo.Context, r io.Reader) (int, error) {
		return h.ward.ImportTransactions(c.Request().Context(), r)
	})
}

func (h *Handler) ImportStock(c echo.Context) error {
	return h.runImport(c, func(c echo.Context, r io.Reader) (int, error) {
		return h.ward.ImportStock(c.Request().Context(), r)
	})
}
