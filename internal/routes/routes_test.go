package routes_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/consoleguard/internal/auth"
	"github.com/BradenHooton/consoleguard/internal/handlers"
	"github.com/BradenHooton/consoleguard/internal/middleware"
	"github.com/BradenHooton/consoleguard/internal/models"
	"github.com/BradenHooton/consoleguard/internal/repositories"
	"github.com/BradenHooton/consoleguard/internal/routes"
	"github.com/BradenHooton/consoleguard/internal/services"
	"github.com/BradenHooton/consoleguard/pkg/clock"
	pkgauth "github.com/BradenHooton/consoleguard/pkg/auth"
	pkghttp "github.com/BradenHooton/consoleguard/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var consoleEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type console struct {
	router   http.Handler
	clock    *clock.Fake
	sink     *services.RecordingSink
	sessions *auth.SessionManager
}

func newConsole(t *testing.T) *console {
	t.Helper()
	return newConsoleBehind(t, nil)
}

// newConsoleBehind builds the console as seen through proxies in ipConfig
func newConsoleBehind(t *testing.T, ipConfig *pkghttp.IPConfig) *console {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.NewFake(consoleEpoch)
	sink := &services.RecordingSink{}

	hasher := pkgauth.NewHasher(bcrypt.MinCost)
	users := repositories.NewStaticUserStore()
	for name, password := range map[string]string{"alice": "Alice-Pass-1!", "bob": "Bob-Pass-1!"} {
		hash, err := hasher.Hash(password)
		require.NoError(t, err)
		users.Put(name, hash, consoleEpoch)
	}

	creds, err := services.NewPasswordCredentialStore(users, hasher, clk, logger)
	require.NoError(t, err)

	tracker := services.NewAttemptTracker(services.DefaultAttemptConfig(), clk, sink, logger)
	sessions := auth.NewSessionManager(auth.DefaultSessionTimeout, clk, sink, logger)
	login := services.NewLoginService(tracker, sessions, creds, sink, clk, logger)

	codec := auth.NewTokenCodec("routes-test-secret-0123456789abcdef", "consoleguard")
	cookies := auth.DefaultCookieConfig()

	router := routes.NewRouter(routes.RouterOptions{Env: "test", IPConfig: ipConfig, Logger: logger}, routes.Dependencies{
		Auth: handlers.NewAuthHandler(handlers.AuthHandlerConfig{
			Service:  login,
			Codec:    codec,
			Cookies:  cookies,
			IPConfig: ipConfig,
			Clock:    clk,
			Logger:   logger,
		}),
		Security: handlers.NewSecurityHandler(login, &handlers.MockEventLister{}, logger),
		Health:   handlers.NewHealthHandler(nil, logger),
		Guard: auth.GuardConfig{
			Sessions: sessions,
			Codec:    codec,
			IPConfig: ipConfig,
			Cookies:  cookies,
			Logger:   logger,
		},
		LoginRate: middleware.RateLimitConfig{RequestsPerMinute: 1000, IPConfig: ipConfig},
	})

	return &console{router: router, clock: clk, sink: sink, sessions: sessions}
}

func (c *console) login(t *testing.T, username, password, ip string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(handlers.LoginRequest{Username: username, Password: password})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.RemoteAddr = ip + ":40000"
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	return w
}

func (c *console) get(path, ip string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = ip + ":40001"
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	return w
}

func (c *console) logout(ip string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.RemoteAddr = ip + ":40002"
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) pkghttp.ErrorResponse {
	t.Helper()
	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestConsole_AliceLockout(t *testing.T) {
	c := newConsole(t)

	for i := 0; i < 5; i++ {
		w := c.login(t, "alice", "wrong", "10.0.0.1")
		require.Equal(t, http.StatusUnauthorized, w.Code, "attempt %d", i+1)
		resp := errorCode(t, w)
		assert.Equal(t, "invalid_credentials", resp.Error)
		assert.Equal(t, "invalid username or password", resp.Message)
	}

	// correct password is refused while locked
	w := c.login(t, "alice", "Alice-Pass-1!", "10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1800", w.Header().Get("Retry-After"))
	assert.Contains(t, errorCode(t, w).Message, "30 minutes")

	c.clock.Advance(6 * time.Minute)
	w = c.login(t, "alice", "Alice-Pass-1!", "10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, errorCode(t, w).Message, "24 minutes")

	c.clock.Advance(24 * time.Minute)
	w = c.login(t, "alice", "Alice-Pass-1!", "10.0.0.1")
	require.Equal(t, http.StatusOK, w.Code)

	kinds := c.sink.Kinds()
	assert.Contains(t, kinds, models.EventLockoutTriggered)
	assert.Contains(t, kinds, models.EventLockoutCleared)
	assert.Equal(t, models.EventLoginSuccess, c.sink.Last().Kind)
}

func TestConsole_BobIPMismatch(t *testing.T) {
	c := newConsole(t)

	w := c.login(t, "bob", "Bob-Pass-1!", "10.0.0.1")
	require.Equal(t, http.StatusOK, w.Code)
	cookie := handlers.FindCookie(w, auth.SessionCookieName)
	require.NotNil(t, cookie)

	w = c.get("/auth/session", "10.0.0.2", cookie)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "session_ip_mismatch", errorCode(t, w).Error)
	assert.Nil(t, handlers.FindCookie(w, auth.SessionCookieName), "mismatch leaves the cookie alone")
	assert.Equal(t, models.EventIPMismatch, c.sink.Last().Kind)

	// the session survives for its own address
	w = c.get("/auth/session", "10.0.0.1", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	var resp handlers.SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "bob", resp.Username)
}

func TestConsole_ForwardedForCannotImpersonateBoundAddress(t *testing.T) {
	ipConfig, _ := pkghttp.NewIPConfig([]string{"10.0.0.0/8"})
	c := newConsoleBehind(t, ipConfig)

	send := func(method, path, forwarded string, body []byte, cookie *http.Cookie) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewReader(body))
		req.RemoteAddr = "10.0.0.2:40000"
		req.Header.Set("X-Forwarded-For", forwarded)
		if cookie != nil {
			req.AddCookie(cookie)
		}
		w := httptest.NewRecorder()
		c.router.ServeHTTP(w, req)
		return w
	}

	body, err := json.Marshal(handlers.LoginRequest{Username: "bob", Password: "Bob-Pass-1!"})
	require.NoError(t, err)
	w := send(http.MethodPost, "/auth/login", "192.0.2.50", body, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cookie := handlers.FindCookie(w, auth.SessionCookieName)
	require.NotNil(t, cookie)

	// the thief prepends the victim's address; the proxy appends the real peer
	w = send(http.MethodGet, "/auth/session", "192.0.2.50, 198.51.100.9", nil, cookie)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "session_ip_mismatch", errorCode(t, w).Error)
	assert.Equal(t, "198.51.100.9", c.sink.Last().SourceIP)

	w = send(http.MethodGet, "/auth/session", "192.0.2.50", nil, cookie)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestConsole_LogoutRevokes(t *testing.T) {
	c := newConsole(t)

	w := c.login(t, "alice", "Alice-Pass-1!", "10.0.0.1")
	require.Equal(t, http.StatusOK, w.Code)
	cookie := handlers.FindCookie(w, auth.SessionCookieName)
	require.NotNil(t, cookie)

	w = c.logout("10.0.0.1", cookie)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, models.EventLogout, c.sink.Last().Kind)

	w = c.get("/auth/session", "10.0.0.1", cookie)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "session_not_found", errorCode(t, w).Error)

	events := len(c.sink.Events())
	w = c.logout("10.0.0.1", cookie)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Len(t, c.sink.Events(), events, "second logout emits nothing")
}

func TestConsole_SessionExpiry(t *testing.T) {
	c := newConsole(t)

	w := c.login(t, "alice", "Alice-Pass-1!", "10.0.0.1")
	require.Equal(t, http.StatusOK, w.Code)
	cookie := handlers.FindCookie(w, auth.SessionCookieName)
	require.NotNil(t, cookie)

	c.clock.Advance(auth.DefaultSessionTimeout)
	w = c.get("/security/status", "10.0.0.1", cookie)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "session_expired", errorCode(t, w).Error)

	cleared := handlers.FindCookie(w, auth.SessionCookieName)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)
	assert.Zero(t, c.sessions.TotalCount())
}

func TestConsole_SecurityStatusRequiresSession(t *testing.T) {
	c := newConsole(t)

	w := c.get("/security/status", "10.0.0.1", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c.login(t, "bob", "nope", "10.0.0.9")
	w = c.login(t, "alice", "Alice-Pass-1!", "10.0.0.1")
	cookie := handlers.FindCookie(w, auth.SessionCookieName)
	require.NotNil(t, cookie)

	w = c.get("/security/status", "10.0.0.1", cookie)
	require.Equal(t, http.StatusOK, w.Code)

	var status models.SecurityStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, 1, status.ActiveSessions)
	assert.Equal(t, 1, status.FailedLoginAttempts)
	assert.Equal(t, 5, status.MaxLoginAttempts)
	assert.Equal(t, 30, status.LockoutDurationMinutes)
	assert.Equal(t, 480, status.SessionTimeoutMinutes)
}

func TestConsole_HealthAndHeaders(t *testing.T) {
	c := newConsole(t)

	w := c.get("/health", "10.0.0.1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))

	w = c.get("/metrics", "10.0.0.1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "metrics not mounted without a handler")
}
