package external

import (
	"encoding/json"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/cliaimonitor/agentctl/internal/events"
)

// EmailConfig holds configuration for email notifications.
type EmailConfig struct {
	SMTPHost string        `json:"smtp_host"`
	SMTPPort int           `json:"smtp_port"`
	Username string        `json:"username"`
	Password string        `json:"password"`
	From     string        `json:"from"`
	To       []string      `json:"to"`
	Kinds    []events.Kind `json:"kinds,omitempty"`
}

// EmailNotifier sends notifications via email.
type EmailNotifier struct {
	config EmailConfig
}

// NewEmailNotifier creates a new email notifier.
func NewEmailNotifier(config EmailConfig) *EmailNotifier {
	return &EmailNotifier{config: config}
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) ShouldNotify(event events.Event) bool {
	if len(e.config.Kinds) > 0 {
		for _, k := range e.config.Kinds {
			if event.Kind == k {
				return true
			}
		}
		return false
	}
	return events.CriticalEventFilter(event)
}

// Send sends a notification via email.
func (e *EmailNotifier) Send(event events.Event) error {
	if e.config.SMTPHost == "" {
		return fmt.Errorf("SMTP host not configured")
	}
	if e.config.From == "" {
		return fmt.Errorf("from address not configured")
	}
	if len(e.config.To) == 0 {
		return fmt.Errorf("no recipient addresses configured")
	}

	subject := e.buildSubject(event)
	body := e.buildBody(event)
	message := e.buildMessage(subject, body)

	addr := fmt.Sprintf("%s:%d", e.config.SMTPHost, e.config.SMTPPort)
	var auth smtp.Auth
	if e.config.Username != "" && e.config.Password != "" {
		auth = smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.SMTPHost)
	}

	if err := smtp.SendMail(addr, auth, e.config.From, e.config.To, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (e *EmailNotifier) buildSubject(event events.Event) string {
	prefix := ""
	if event.Kind == events.KindAgentRestartExhausted {
		prefix = "[CRITICAL] "
	}
	return fmt.Sprintf("%sagentctl %s Event - %s", prefix, event.Kind, event.ID)
}

func (e *EmailNotifier) buildBody(event events.Event) string {
	var body strings.Builder

	body.WriteString("agentctl Event Notification\n")
	body.WriteString("===========================\n\n")
	body.WriteString(fmt.Sprintf("Event ID: %s\n", event.ID))
	body.WriteString(fmt.Sprintf("Kind: %s\n", event.Kind))
	body.WriteString(fmt.Sprintf("Agent: %s\n", event.AgentID))
	body.WriteString(fmt.Sprintf("Timestamp: %s\n", event.CreatedAt.Format(time.RFC3339)))

	if event.Payload != nil {
		payloadJSON, _ := json.MarshalIndent(event.Payload, "", "  ")
		body.WriteString("\nPayload:\n--------\n")
		body.Write(payloadJSON)
		body.WriteString("\n")
	}

	body.WriteString("\n--\n")
	body.WriteString("This is an automated notification from agentctl\n")
	return body.String()
}

func (e *EmailNotifier) buildMessage(subject, body string) string {
	var message strings.Builder
	message.WriteString(fmt.Sprintf("From: %s\r\n", e.config.From))
	message.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(e.config.To, ", ")))
	message.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	message.WriteString("MIME-Version: 1.0\r\n")
	message.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	message.WriteString("\r\n")
	message.WriteString(body)
	return message.String()
}
