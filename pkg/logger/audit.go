package logger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/consoleguard/internal/models"
)

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
	env    string
}

// NewAuditLogger creates a new audit logger. In production, identities are masked.
func NewAuditLogger(logger *slog.Logger, env string) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		env:    env,
	}
}

// LogSecurityEvent writes one structured audit record for event.
// Benign outcomes log at info, everything else at warn.
func (al *AuditLogger) LogSecurityEvent(ctx context.Context, event models.SecurityEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "security"),
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.Kind)),
		slog.String("timestamp", event.Timestamp.UTC().Format(time.RFC3339)),
	}

	if event.AccountIdentity != "" {
		attrs = append(attrs, slog.String("identity", al.identity(event.AccountIdentity)))
	}
	if event.SourceIP != "" {
		attrs = append(attrs, slog.String("ip_address", event.SourceIP))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, fmt.Sprint(val)))
	}

	level := slog.LevelWarn
	if event.Kind.Benign() {
		level = slog.LevelInfo
	}
	if event.Kind == models.EventCredentialStoreError {
		level = slog.LevelError
	}

	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

func (al *AuditLogger) identity(identity string) string {
	if al.env == "production" {
		return MaskIdentity(identity)
	}
	return identity
}
