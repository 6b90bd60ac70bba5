package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BradenHooton/consoleguard/internal/models"
	pkghttp "github.com/BradenHooton/consoleguard/pkg/http"
)

// EventLister reads persisted security events
type EventLister interface {
	ListEvents(ctx context.Context, filter models.EventFilter) ([]*models.SecurityEvent, error)
}

// SecurityHandler serves the console security page
type SecurityHandler struct {
	status LoginServiceInterface
	events EventLister
	logger *slog.Logger
}

func NewSecurityHandler(status LoginServiceInterface, events EventLister, logger *slog.Logger) *SecurityHandler {
	return &SecurityHandler{status: status, events: events, logger: logger}
}

// EventsResponse wraps a page of security events
type EventsResponse struct {
	Events []*models.SecurityEvent `json:"events"`
	Count  int                     `json:"count"`
}

// Status reports sessions, failures and lockouts
// @Router /security/status [get]
func (h *SecurityHandler) Status(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, h.status.SecurityStatus())
}

// Events lists recent persisted events.
// Query: kind, identity, since (RFC 3339), limit.
// @Router /security/events [get]
func (h *SecurityHandler) Events(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := models.EventFilter{
		Kind:            models.EventKind(q.Get("kind")),
		AccountIdentity: q.Get("identity"),
	}

	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			pkghttp.WriteBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = &since
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			pkghttp.WriteBadRequest(w, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	events, err := h.events.ListEvents(r.Context(), filter)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrAuditStoreDisabled):
			pkghttp.WriteServiceUnavailable(w, "security event history is not configured")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "failed to list security events", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, EventsResponse{Events: events, Count: len(events)})
}
