package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type Handler struct {
	gate     *Gate
	sessions *Manager
	logger   zerolog.Logger
}

func NewHandler(gate *Gate, sessions *Manager, logger zerolog.Logger) *Handler {
	return &Handler{gate: gate, sessions: sessions, logger: logger}
}

// RegisterRoutes mounts login and logout. Extra middleware, typically a
// stricter rate limiter, applies to login only.
func (h *Handler) RegisterRoutes(api *echo.Group, loginMiddleware ...echo.MiddlewareFunc) {
	api.POST("/login", h.Login, loginMiddleware...)
	api.POST("/logout", h.Logout)
}

type loginRequest struct {
	Passphrase string `json:"passphrase"`
	User       string `json:"user"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.gate.Check(req.Passphrase); err != nil {
		h.logger.Warn().Str("remote_ip", c.RealIP()).Msg("login rejected")
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	token, claims, err := h.sessions.Issue(strings.TrimSpace(req.User))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.logger.Info().Str("user", claims.Subject).Str("session_id", claims.ID).Msg("session opened")
	return c.JSON(http.StatusOK, loginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: claims.ExpiresAt.Time,
	})
}

func (h *Handler) Logout(c echo.Context) error {
	claims, ok := ClaimsFromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no active session")
	}
	h.sessions.Revoke(claims)
	h.logger.Info().Str("user", claims.Subject).Str("session_id", claims.ID).Msg("session closed")
	return c.NoContent(http.StatusNoContent)
}
