package external

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cliaimonitor/agentctl/internal/events"
)

// DiscordConfig holds configuration for Discord notifications.
type DiscordConfig struct {
	WebhookURL string        `json:"webhook_url"`
	Username   string        `json:"username,omitempty"`
	AvatarURL  string        `json:"avatar_url,omitempty"`
	Kinds      []events.Kind `json:"kinds,omitempty"`
}

// DiscordNotifier sends notifications to Discord via webhooks.
type DiscordNotifier struct {
	config DiscordConfig
	client *http.Client
}

// NewDiscordNotifier creates a new Discord notifier.
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Name() string { return "discord" }

func (d *DiscordNotifier) ShouldNotify(event events.Event) bool {
	if len(d.config.Kinds) > 0 {
		for _, k := range d.config.Kinds {
			if event.Kind == k {
				return true
			}
		}
		return false
	}
	return events.CriticalEventFilter(event)
}

// Send sends a notification to Discord using an embed, following the
// color-by-severity convention shared with the Slack notifier.
func (d *DiscordNotifier) Send(event events.Event) error {
	if d.config.WebhookURL == "" {
		return fmt.Errorf("discord webhook URL not configured")
	}

	color := 0xf1c40f // yellow
	if event.Kind == events.KindAgentRestartExhausted {
		color = 0xe74c3c // red
	}

	payloadJSON, _ := json.Marshal(event.Payload)
	embed := map[string]interface{}{
		"title":       fmt.Sprintf("%s Event", event.Kind),
		"description": fmt.Sprintf("agent %s: %s", event.AgentID, string(payloadJSON)),
		"color":       color,
		"timestamp":   event.CreatedAt.Format(time.RFC3339),
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{embed},
	}
	if d.config.Username != "" {
		payload["username"] = d.config.Username
	}
	if d.config.AvatarURL != "" {
		payload["avatar_url"] = d.config.AvatarURL
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	resp, err := d.client.Post(d.config.WebhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send discord notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord API returned status %d", resp.StatusCode)
	}
	return nil
}
