package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/donka/ward/internal/platform/auth"
)

const apiPrefix = "/api/v1/"

// AuditEntry records who touched which ward table, when and from where.
// Request bodies are never captured.
type AuditEntry struct {
	UserID     string
	SessionID  string
	Resource   string // patients, transactions, stock, dashboard, export, import, login
	RecordKey  string // patient id or IPP, stock item name
	Action     string // read, create, update, export, import
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries in addition to the log line.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every /api/v1 request after it completes, attributed to the
// session user. Register it after the session middleware.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !strings.HasPrefix(path, apiPrefix) {
				return next(c)
			}

			err := next(c)

			ctx := c.Request().Context()
			entry := AuditEntry{
				UserID:     auth.UserIDFromContext(ctx),
				SessionID:  auth.SessionIDFromContext(ctx),
				Resource:   resourceFromPath(path),
				RecordKey:  recordKey(c),
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				Path:       path,
				Method:     req.Method,
				Timestamp:  time.Now().UTC(),
				StatusCode: responseStatus(c, err),
			}
			entry.Action = auditAction(req.Method, entry.Resource)
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", entry.RequestID).Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user", entry.UserID).
				Str("session_id", entry.SessionID).
				Str("resource", entry.Resource).
				Str("record", entry.RecordKey).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("ward_access")

			return err
		}
	}
}

// resourceFromPath returns the first segment after /api/v1/.
func resourceFromPath(path string) string {
	rest := strings.TrimPrefix(path, apiPrefix)
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "unknown"
	}
	return rest
}

func recordKey(c echo.Context) string {
	for _, name := range []string{"id", "ipp", "name"} {
		if v := c.Param(name); v != "" {
			return v
		}
	}
	return ""
}

func auditAction(method, resource string) string {
	switch resource {
	case "export":
		return "export"
	case "import":
		return "import"
	}
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	default:
		return "read"
	}
}
