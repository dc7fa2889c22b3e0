package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/slack-go/slack"
)

// Slack message bodies above this size get truncated
const maxSlackMessageLength = 3800

// SlackConfig configures the Slack channel
type SlackConfig struct {
	Token   string `json:"token"`
	Channel string `json:"channel"`
}

// SlackNotifier posts reports to a Slack channel
type SlackNotifier struct {
	config SlackConfig
	client *slack.Client
}

// NewSlackNotifier creates a Slack notifier
func NewSlackNotifier(config SlackConfig) *SlackNotifier {
	notifier := &SlackNotifier{config: config}
	if config.Token != "" {
		notifier.client = slack.New(config.Token)
	}
	return notifier
}

// Send posts the report body to the configured channel. An unconfigured
// notifier skips with a log line instead of failing.
func (n *SlackNotifier) Send(ctx context.Context, subject, body string) error {
	if n.client == nil || n.config.Channel == "" {
		log.Printf("[NOTIFY_SLACK] Slack not configured, skipping")
		return nil
	}

	text := body
	if len(text) > maxSlackMessageLength {
		text = text[:maxSlackMessageLength] + "\n... (truncated)"
	}

	_, _, err := n.client.PostMessageContext(ctx, n.config.Channel,
		slack.MsgOptionText(fmt.Sprintf("*%s*\n%s", subject, text), false),
	)
	if err != nil {
		return fmt.Errorf("failed to post slack message: %w", err)
	}
	log.Printf("[NOTIFY_SLACK] Posted report to %s", n.config.Channel)
	return nil
}
