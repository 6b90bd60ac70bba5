package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/consoleguard/internal/models"
	pkghttp "github.com/BradenHooton/consoleguard/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// SessionContextKey is the key for storing the validated session in context
	SessionContextKey contextKey = "session"
)

// SessionValidator is the subset of SessionManager the middleware needs
type SessionValidator interface {
	Validate(ctx context.Context, token, sourceIP string) (*models.Session, models.ValidationResult)
}

// GuardConfig wires RequireSession to its collaborators
type GuardConfig struct {
	Sessions SessionValidator
	Codec    *TokenCodec
	IPConfig *pkghttp.IPConfig
	Cookies  CookieConfig
	Logger   *slog.Logger
}

// RequireSession validates the session cookie and injects the session into context.
// Unknown and expired sessions also clear the cookie; an address mismatch
// leaves it alone since the session still belongs to someone else's address.
func RequireSession(cfg GuardConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			value, err := GetSessionCookie(r)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "authentication required")
				return
			}

			token, err := cfg.Codec.Decode(value)
			if err != nil {
				if cfg.Logger != nil {
					cfg.Logger.Debug("rejected undecodable session cookie", slog.Any("error", err))
				}
				ClearSessionCookie(w, cfg.Cookies)
				pkghttp.WriteUnauthorized(w, "session not found")
				return
			}

			clientIP := pkghttp.ExtractClientIP(r, cfg.IPConfig)
			session, result := cfg.Sessions.Validate(r.Context(), token, clientIP)
			if !result.Valid {
				if result.Reason != models.ReasonIPMismatch {
					ClearSessionCookie(w, cfg.Cookies)
				}
				pkghttp.WriteError(w, http.StatusUnauthorized, "session_"+string(result.Reason), result.Err().Error())
				return
			}

			ctx := context.WithValue(r.Context(), SessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSessionFromContext extracts the validated session from request context
func GetSessionFromContext(r *http.Request) *models.Session {
	session, ok := r.Context().Value(SessionContextKey).(*models.Session)
	if !ok {
		return nil
	}
	return session
}
