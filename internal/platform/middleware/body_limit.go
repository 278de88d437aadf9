package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// BodyLimit caps request bodies. uploadLimit applies to radiograph uploads
// and CSV imports, defaultLimit to everything else. Limits use K, M or G
// suffixes ("1M", "12M"); a bare number is bytes.
func BodyLimit(defaultLimit, uploadLimit string) echo.MiddlewareFunc {
	defaultBytes := parseLimit(defaultLimit)
	uploadBytes := parseLimit(uploadLimit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			limit := defaultBytes
			if isUploadPath(req.Method, req.URL.Path) {
				limit = uploadBytes
			}

			if req.ContentLength > limit {
				return tooLarge(limit)
			}
			req.Body = &limitedReadCloser{ReadCloser: req.Body, remaining: limit, limit: limit}
			return next(c)
		}
	}
}

func isUploadPath(method, path string) bool {
	switch {
	case method == http.MethodPut && strings.HasPrefix(path, "/api/v1/patients/") && strings.HasSuffix(path, "/image"):
		return true
	case method == http.MethodPost && strings.HasPrefix(path, "/api/v1/import/"):
		return true
	}
	return false
}

// limitedReadCloser fails reads once more than limit bytes have been read,
// covering bodies with a missing or wrong Content-Length.
type limitedReadCloser struct {
	io.ReadCloser
	remaining int64
	limit     int64
	exceeded  bool
}

func (r *limitedReadCloser) Read(p []byte) (int, error) {
	if r.exceeded {
		return 0, tooLarge(r.limit)
	}
	if int64(len(p)) > r.remaining+1 {
		p = p[:r.remaining+1]
	}
	n, err := r.ReadCloser.Read(p)
	r.remaining -= int64(n)
	if r.remaining < 0 {
		r.exceeded = true
		return 0, tooLarge(r.limit)
	}
	return n, err
}

func tooLarge(limit int64) error {
	return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
		fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", limit))
}

// parseLimit parses "512K", "1M", "2G" (optionally with a B suffix) into
// bytes. Unparseable values fall back to 1 MB.
func parseLimit(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 1 << 20
	}
	s = strings.TrimSuffix(s, "B")

	var multiplier int64 = 1
	switch {
	case strings.HasSuffix(s, "G"):
		multiplier = 1 << 30
	case strings.HasSuffix(s, "M"):
		multiplier = 1 << 20
	case strings.HasSuffix(s, "K"):
		multiplier = 1 << 10
	}
	if multiplier > 1 {
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 1 << 20
	}
	return n * multiplier
}
