package external

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cliaimonitor/agentctl/internal/events"
)

// SlackConfig holds configuration for Slack notifications.
type SlackConfig struct {
	WebhookURL string        `json:"webhook_url"`
	Channel    string        `json:"channel,omitempty"`
	Username   string        `json:"username,omitempty"`
	IconEmoji  string        `json:"icon_emoji,omitempty"`
	Kinds      []events.Kind `json:"kinds,omitempty"`
}

// SlackNotifier sends notifications to Slack via webhooks.
type SlackNotifier struct {
	config SlackConfig
	client *http.Client
}

// NewSlackNotifier creates a new Slack notifier.
func NewSlackNotifier(config SlackConfig) *SlackNotifier {
	return &SlackNotifier{
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SlackNotifier) Name() string { return "slack" }

// ShouldNotify checks if the event should trigger a notification.
func (s *SlackNotifier) ShouldNotify(event events.Event) bool {
	if len(s.config.Kinds) > 0 {
		found := false
		for _, k := range s.config.Kinds {
			if event.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
		return true
	}
	return events.CriticalEventFilter(event)
}

// Send sends a notification to Slack.
func (s *SlackNotifier) Send(event events.Event) error {
	if s.config.WebhookURL == "" {
		return fmt.Errorf("slack webhook URL not configured")
	}

	color := "warning"
	if event.Kind == events.KindAgentRestartExhausted {
		color = "danger"
	}

	fields := []map[string]interface{}{
		{"title": "Kind", "value": string(event.Kind), "short": true},
		{"title": "Agent", "value": event.AgentID, "short": true},
	}

	payloadJSON, _ := json.Marshal(event.Payload)
	fields = append(fields, map[string]interface{}{
		"title": "Payload",
		"value": string(payloadJSON),
		"short": false,
	})

	payload := map[string]interface{}{
		"text": fmt.Sprintf("Event: %s", event.ID),
		"attachments": []map[string]interface{}{
			{
				"color":  color,
				"title":  fmt.Sprintf("%s Event", event.Kind),
				"fields": fields,
				"ts":     event.CreatedAt.Unix(),
			},
		},
	}
	if s.config.Channel != "" {
		payload["channel"] = s.config.Channel
	}
	if s.config.Username != "" {
		payload["username"] = s.config.Username
	}
	if s.config.IconEmoji != "" {
		payload["icon_emoji"] = s.config.IconEmoji
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	resp, err := s.client.Post(s.config.WebhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send slack notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack API returned status %d", resp.StatusCode)
	}
	return nil
}
