package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/consoleguard/internal/auth"
	"github.com/BradenHooton/consoleguard/internal/models"
	pkghttp "github.com/BradenHooton/consoleguard/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithSessionContext places a validated session on the request as RequireSession would
func WithSessionContext(req *http.Request, session *models.Session) *http.Request {
	ctx := context.WithValue(req.Context(), auth.SessionContextKey, session)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// FindCookie returns the named cookie set on the response, or nil
func FindCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// MockLoginService implements LoginServiceInterface for testing
type MockLoginService struct {
	LoginFunc          func(ctx context.Context, username, password, sourceIP string) (*models.Session, error)
	LogoutFunc         func(ctx context.Context, token string)
	SecurityStatusFunc func() models.SecurityStatus
}

func (m *MockLoginService) Login(ctx context.Context, username, password, sourceIP string) (*models.Session, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, username, password, sourceIP)
}

func (m *MockLoginService) Logout(ctx context.Context, token string) {
	if m.LogoutFunc != nil {
		m.LogoutFunc(ctx, token)
	}
}

func (m *MockLoginService) SecurityStatus() models.SecurityStatus {
	if m.SecurityStatusFunc == nil {
		return models.SecurityStatus{}
	}
	return m.SecurityStatusFunc()
}

// MockEventLister implements EventLister for testing
type MockEventLister struct {
	ListEventsFunc func(ctx context.Context, filter models.EventFilter) ([]*models.SecurityEvent, error)
}

func (m *MockEventLister) ListEvents(ctx context.Context, filter models.EventFilter) ([]*models.SecurityEvent, error) {
	if m.ListEventsFunc == nil {
		return nil, models.ErrAuditStoreDisabled
	}
	return m.ListEventsFunc(ctx, filter)
}

// MockHealthChecker implements HealthChecker for testing
type MockHealthChecker struct {
	HealthCheckFunc func(ctx context.Context) error
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	if m.HealthCheckFunc == nil {
		return nil
	}
	return m.HealthCheckFunc(ctx)
}
