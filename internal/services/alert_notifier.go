package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/consoleguard/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// AlertNotifier tells operators about lockouts
type AlertNotifier interface {
	NotifyLockout(ctx context.Context, event models.SecurityEvent) error
}

// sesAPI is the subset of the SES client used here
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESAlertNotifier e-mails lockout alerts through AWS SES
type SESAlertNotifier struct {
	client      sesAPI
	fromAddress string
	recipients  []string
	consoleName string
	logger      *slog.Logger
}

// NewSESAlertNotifier loads the default AWS config for region and builds an SES client
func NewSESAlertNotifier(ctx context.Context, region, fromAddress string, recipients []string, consoleName string, logger *slog.Logger) (*SESAlertNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newSESAlertNotifier(ses.NewFromConfig(cfg), fromAddress, recipients, consoleName, logger), nil
}

func newSESAlertNotifier(client sesAPI, fromAddress string, recipients []string, consoleName string, logger *slog.Logger) *SESAlertNotifier {
	if consoleName == "" {
		consoleName = "pipeline console"
	}
	return &SESAlertNotifier{
		client:      client,
		fromAddress: fromAddress,
		recipients:  recipients,
		consoleName: consoleName,
		logger:      logger,
	}
}

// NotifyLockout sends one alert per lockout_triggered event
func (s *SESAlertNotifier) NotifyLockout(ctx context.Context, event models.SecurityEvent) error {
	if len(s.recipients) == 0 {
		return nil
	}

	subject := fmt.Sprintf("[%s] account locked: %s", s.consoleName, event.AccountIdentity)

	var body strings.Builder
	fmt.Fprintf(&body, "Repeated failed logins locked an account on the %s.\n\n", s.consoleName)
	fmt.Fprintf(&body, "Account:   %s\n", event.AccountIdentity)
	fmt.Fprintf(&body, "Source IP: %s\n", event.SourceIP)
	fmt.Fprintf(&body, "Time:      %s\n", event.Timestamp.UTC().Format(time.RFC1123))
	if until, ok := event.Metadata["locked_until"]; ok {
		fmt.Fprintf(&body, "Locked to: %v\n", until)
	}
	if count, ok := event.Metadata["failure_count"]; ok {
		fmt.Fprintf(&body, "Failures:  %v\n", count)
	}
	body.WriteString("\nNo action is needed if this was expected. The lock lifts on its own.\n")

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: s.recipients,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(body.String()),
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send lockout alert: %w", err)
	}

	if s.logger != nil && result != nil && result.MessageId != nil {
		s.logger.Info("lockout alert sent",
			slog.String("event_id", event.ID.String()),
			slog.String("message_id", *result.MessageId))
	}

	return nil
}
