package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/BradenHooton/consoleguard/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSES struct {
	input *ses.SendEmailInput
	err   error
}

func (m *mockSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.input = params
	if m.err != nil {
		return nil, m.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func lockoutEvent() models.SecurityEvent {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return models.NewSecurityEvent(models.EventLockoutTriggered, "alice", "10.0.0.1", at).
		WithMetadata("failure_count", 5).
		WithMetadata("locked_until", at.Add(30*time.Minute).Format(time.RFC3339))
}

func TestSESAlertNotifier_SendsLockoutMail(t *testing.T) {
	client := &mockSES{}
	n := newSESAlertNotifier(client, "guard@example.com", []string{"ops@example.com"}, "ingest console", slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, n.NotifyLockout(context.Background(), lockoutEvent()))

	require.NotNil(t, client.input)
	assert.Equal(t, "guard@example.com", aws.ToString(client.input.Source))
	assert.Equal(t, []string{"ops@example.com"}, client.input.Destination.ToAddresses)
	assert.Equal(t, "[ingest console] account locked: alice", aws.ToString(client.input.Message.Subject.Data))

	body := aws.ToString(client.input.Message.Body.Text.Data)
	assert.Contains(t, body, "10.0.0.1")
	assert.Contains(t, body, "2026-03-01T09:30:00Z")
	assert.Contains(t, body, "Failures:  5")
}

func TestSESAlertNotifier_NoRecipientsIsNoop(t *testing.T) {
	client := &mockSES{}
	n := newSESAlertNotifier(client, "guard@example.com", nil, "", nil)

	require.NoError(t, n.NotifyLockout(context.Background(), lockoutEvent()))
	assert.Nil(t, client.input)
}

func TestSESAlertNotifier_WrapsSendError(t *testing.T) {
	client := &mockSES{err: errors.New("throttled")}
	n := newSESAlertNotifier(client, "guard@example.com", []string{"ops@example.com"}, "", nil)

	err := n.NotifyLockout(context.Background(), lockoutEvent())

	assert.ErrorContains(t, err, "throttled")
}
