package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	SessionIDKey contextKey = "session_id"
)

const (
	claimsKey     = "session_claims"
	sessionIssuer = "ward"

	// DefaultUser names sessions opened without a display name.
	DefaultUser = "ward"
)

var ErrInvalidSession = errors.New("invalid session token")

type Claims struct {
	jwt.RegisteredClaims
}

type SessionConfig struct {
	Secret []byte
	TTL    time.Duration
}

// Manager issues and validates HS256 session tokens.
type Manager struct {
	secret  []byte
	ttl     time.Duration
	revoked *RevocationList
	now     func() time.Time
}

func NewManager(cfg SessionConfig, revoked *RevocationList) (*Manager, error) {
	if len(cfg.Secret) < 16 {
		return nil, fmt.Errorf("session secret must be at least 16 bytes")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	if revoked == nil {
		revoked = NewRevocationList()
	}
	return &Manager{secret: cfg.Secret, ttl: cfg.TTL, revoked: revoked, now: time.Now}, nil
}

// Issue signs a new session token for user.
func (m *Manager) Issue(user string) (string, *Claims, error) {
	if user == "" {
		user = DefaultUser
	}
	now := m.now()
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    sessionIssuer,
		Subject:   user,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign session: %w", err)
	}
	return token, claims, nil
}

// Parse validates signature, expiry, issuer and revocation.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidSession
	}
	if m.revoked.IsRevoked(claims.ID) {
		return nil, ErrInvalidSession
	}
	return claims, nil
}

// Revoke ends the session identified by claims.
func (m *Manager) Revoke(claims *Claims) {
	exp := m.now().Add(m.ttl)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	m.revoked.Revoke(claims.ID, exp)
}

// Middleware requires a valid bearer session on every request the skipper
// does not exempt.
func (m *Manager) Middleware(skipper func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}
			claims, err := m.Parse(strings.TrimSpace(parts[1]))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}
			setSession(c, claims)
			return next(c)
		}
	}
}

// DevAuthMiddleware opens an anonymous development session when no
// passphrase is configured.
func DevAuthMiddleware(skipper ...func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(skipper) > 0 && skipper[0] != nil && skipper[0](c) {
				return next(c)
			}
			setSession(c, &Claims{RegisteredClaims: jwt.RegisteredClaims{ID: "dev", Subject: "dev-user"}})
			return next(c)
		}
	}
}

func setSession(c echo.Context, claims *Claims) {
	c.Set(claimsKey, claims)
	ctx := c.Request().Context()
	ctx = context.WithValue(ctx, UserIDKey, claims.Subject)
	ctx = context.WithValue(ctx, SessionIDKey, claims.ID)
	c.SetRequest(c.Request().WithContext(ctx))
}

// ClaimsFromContext returns the session attached by Middleware, if any.
func ClaimsFromContext(c echo.Context) (*Claims, bool) {
	claims, ok := c.Get(claimsKey).(*Claims)
	return claims, ok
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func SessionIDFromContext(ctx context.Context) string {
	sid, _ := ctx.Value(SessionIDKey).(string)
	return sid
}
