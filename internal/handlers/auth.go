package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/consoleguard/internal/auth"
	"github.com/BradenHooton/consoleguard/internal/models"
	"github.com/BradenHooton/consoleguard/internal/services"
	"github.com/BradenHooton/consoleguard/pkg/clock"
	pkghttp "github.com/BradenHooton/consoleguard/pkg/http"
)

const maxLoginBodyBytes = 4 << 10

// LoginServiceInterface defines the login flow the handlers drive
type LoginServiceInterface interface {
	Login(ctx context.Context, username, password, sourceIP string) (*models.Session, error)
	Logout(ctx context.Context, token string)
	SecurityStatus() models.SecurityStatus
}

// AuthHandler handles console login, logout and session inspection
type AuthHandler struct {
	service  LoginServiceInterface
	codec    *auth.TokenCodec
	cookies  auth.CookieConfig
	ipConfig *pkghttp.IPConfig
	delay    *auth.FailureDelay
	clock    clock.Clock
	logger   *slog.Logger
}

// AuthHandlerConfig wires an AuthHandler. Delay may be nil to disable failure padding.
type AuthHandlerConfig struct {
	Service  LoginServiceInterface
	Codec    *auth.TokenCodec
	Cookies  auth.CookieConfig
	IPConfig *pkghttp.IPConfig
	Delay    *auth.FailureDelay
	Clock    clock.Clock
	Logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(cfg AuthHandlerConfig) *AuthHandler {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	return &AuthHandler{
		service:  cfg.Service,
		codec:    cfg.Codec,
		cookies:  cfg.Cookies,
		ipConfig: cfg.IPConfig,
		delay:    cfg.Delay,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=256"`
	Password string `json:"password" validate:"required,max=1024"`
}

// SessionResponse describes the caller's session. The token itself only travels in the cookie.
type SessionResponse struct {
	Username       string    `json:"username"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	BoundIP        string    `json:"bound_ip"`
}

func newSessionResponse(s *models.Session) SessionResponse {
	return SessionResponse{
		Username:       s.AccountIdentity,
		IssuedAt:       s.IssuedAt,
		ExpiresAt:      s.ExpiresAt,
		LastActivityAt: s.LastActivityAt,
		BoundIP:        s.BoundIP,
	}
}

// Login handles console sign-in
// @Summary Console login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} SessionResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req LoginRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxLoginBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	clientIP := pkghttp.ExtractClientIP(r, h.ipConfig)

	session, err := h.service.Login(r.Context(), req.Username, req.Password, clientIP)
	if err != nil {
		if locked, ok := services.IsLockedOut(err); ok {
			pkghttp.WriteLockedOut(w, locked.RetryAfter, lockoutMessage(locked))
			return
		}
		if errors.Is(err, models.ErrInvalidCredentials) {
			h.delay.PadFrom(r.Context(), start)
			pkghttp.WriteInvalidCredentials(w, models.ErrInvalidCredentials.Error())
			return
		}
		pkghttp.WriteInternalError(w, "internal server error")
		return
	}

	value, err := h.codec.Encode(session)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to sign session cookie", slog.Any("error", err))
		h.service.Logout(r.Context(), session.Token)
		pkghttp.WriteInternalError(w, "internal server error")
		return
	}

	auth.SetSessionCookie(w, value, session.ExpiresAt, h.clock.Now(), h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, newSessionResponse(session))
}

// Logout revokes the presented session and clears the cookie. It succeeds
// whether or not a valid session was presented.
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if value, err := auth.GetSessionCookie(r); err == nil {
		if token, err := h.codec.Decode(value); err == nil {
			h.service.Logout(r.Context(), token)
		}
	}

	auth.ClearSessionCookie(w, h.cookies)
	w.WriteHeader(http.StatusNoContent)
}

// Session returns the session validated by auth.RequireSession
// @Router /auth/session [get]
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSessionFromContext(r)
	if session == nil {
		pkghttp.WriteUnauthorized(w, "authentication required")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, newSessionResponse(session))
}

func lockoutMessage(locked *models.LockedOutError) string {
	minutes := locked.RetryAfterMinutes()
	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}
	return fmt.Sprintf("account temporarily locked due to too many failed login attempts, try again in %d %s", minutes, unit)
}
