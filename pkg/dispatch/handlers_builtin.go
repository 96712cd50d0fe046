package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/flapjack-io/flapjack/pkg/log"
	"github.com/flapjack-io/flapjack/pkg/types"
	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

// WebhookHandler POSTs a JSON payload to the alert's address. 2xx is
// Ok; 5xx and timeouts are Transient; any other 4xx is Permanent.
type WebhookHandler struct {
	client *http.Client
}

func NewWebhookHandler(timeout time.Duration) *WebhookHandler {
	return &WebhookHandler{client: &http.Client{Timeout: timeout}}
}

type webhookPayload struct {
	CheckID          string `json:"check_id"`
	ContactID        string `json:"contact_id"`
	NotificationType string `json:"notification_type"`
	Condition        string `json:"condition"`
	Summary          string `json:"summary"`
	Details          string `json:"details"`
}

func (h *WebhookHandler) Deliver(ctx context.Context, alert *types.Alert) (Disposition, error) {
	body, err := json.Marshal(webhookPayload{
		CheckID:          alert.CheckID,
		ContactID:        alert.ContactID,
		NotificationType: string(alert.NotificationType),
		Condition:        string(alert.Condition),
		Summary:          alert.Summary,
		Details:          alert.Details,
	})
	if err != nil {
		return Permanent, fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, alert.Address, bytes.NewReader(body))
	if err != nil {
		return Permanent, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return Transient, fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Ok, nil
	case resp.StatusCode >= 500:
		return Transient, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	default:
		return Permanent, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
}

// SlackHandler posts a formatted attachment to a Slack incoming
// webhook, using the address as the webhook URL.
type SlackHandler struct{}

func NewSlackHandler() *SlackHandler {
	return &SlackHandler{}
}

func (h *SlackHandler) Deliver(ctx context.Context, alert *types.Alert) (Disposition, error) {
	msg := &slack.WebhookMessage{
		Attachments: []slack.Attachment{
			{
				Color: colorForCondition(alert.Condition),
				Title: fmt.Sprintf("%s: %s", alert.NotificationType, alert.Summary),
				Text:  alert.Details,
			},
		},
	}

	if err := slack.PostWebhookContext(ctx, alert.Address, msg); err != nil {
		return Transient, fmt.Errorf("slack webhook: %w", err)
	}
	return Ok, nil
}

func colorForCondition(c types.Condition) string {
	switch c {
	case types.ConditionCritical:
		return "danger"
	case types.ConditionWarning:
		return "warning"
	case types.ConditionOK:
		return "good"
	default:
		return "#808080"
	}
}

// EmailHandler is a stand-in for an SMTP sender: it logs what would be
// sent and always reports success. A real deployment swaps this for a
// handler wrapping net/smtp or a provider SDK; the Registry makes that
// swap a one-line Register call, not a dispatcher change.
type EmailHandler struct {
	logger zerolog.Logger
}

func NewEmailHandler() *EmailHandler {
	return &EmailHandler{logger: log.WithMedium("email")}
}

func (h *EmailHandler) Deliver(ctx context.Context, alert *types.Alert) (Disposition, error) {
	h.logger.Info().Str("to", alert.Address).Str("summary", alert.Summary).Msg("email delivery stub")
	return Ok, nil
}

// SMSHandler is a stand-in for an SMS gateway (e.g. Nexmo/Twilio): it
// logs what would be sent and always reports success.
type SMSHandler struct {
	logger zerolog.Logger
}

func NewSMSHandler() *SMSHandler {
	return &SMSHandler{logger: log.WithMedium("sms")}
}

func (h *SMSHandler) Deliver(ctx context.Context, alert *types.Alert) (Disposition, error) {
	h.logger.Info().Str("to", alert.Address).Str("summary", alert.Summary).Msg("sms delivery stub")
	return Ok, nil
}

// TestHandler always succeeds without side effects; it backs the
// administrative TestNotification operation so operators can verify
// routing without touching a real medium.
type TestHandler struct {
	Sent []*types.Alert
}

func NewTestHandler() *TestHandler {
	return &TestHandler{}
}

func (h *TestHandler) Deliver(ctx context.Context, alert *types.Alert) (Disposition, error) {
	h.Sent = append(h.Sent, alert)
	return Ok, nil
}
