package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/slack-go/slack"

	"github.com/homelabcmd/homelabcmd/pkg/unit/alerting"
)

// SlackSink posts notifications to a Slack incoming webhook.
type SlackSink struct {
	webhookURL string
}

func NewSlackSink(webhookURL string) *SlackSink {
	return &SlackSink{webhookURL: webhookURL}
}

func (s *SlackSink) Name() string { return "slack" }

func (s *SlackSink) Send(ctx context.Context, n Notification) error {
	attachment := slack.Attachment{
		Color: severityColor(n.Severity),
		Title: fmt.Sprintf("[%s] %s", n.Severity, n.Title),
		Text:  n.Message,
		Fields: []slack.AttachmentField{
			{Title: "Server", Value: n.ServerName, Short: true},
			{Title: "Type", Value: string(n.AlertType), Short: true},
			{Title: "Event", Value: string(n.Event), Short: true},
		},
		Ts: json.Number(strconv.FormatInt(n.Timestamp.Unix(), 10)),
	}

	msg := &slack.WebhookMessage{Attachments: []slack.Attachment{attachment}}
	if err := slack.PostWebhookContext(ctx, s.webhookURL, msg); err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	return nil
}

func severityColor(severity alerting.Severity) string {
	switch severity {
	case alerting.SeverityCritical:
		return "danger"
	case alerting.SeverityHigh:
		return "warning"
	default:
		return "#439FE0"
	}
}
