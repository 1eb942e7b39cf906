package events

import (
	"fmt"
	"log"
)

// natsPublisher is the subset of internal/nats.Client the mirror needs,
// kept narrow so events does not import internal/nats directly and
// acquire a hard dependency on an embedded NATS server.
type natsPublisher interface {
	PublishJSON(subject string, v interface{}) error
}

// NATSMirror republishes every bus event onto a NATS subject, following
// internal/nats.Client.PublishJSON, so out-of-process observers (a
// dashboard, a CLI) can watch the runtime without the bus depending on
// them. Construction without a NATS connection is simply not done; the
// bus works fully in-process when no Mirror is installed.
type NATSMirror struct {
	client natsPublisher
	prefix string
}

// NewNATSMirror wraps client. prefix defaults to "agentctl.events".
func NewNATSMirror(client natsPublisher, prefix string) *NATSMirror {
	if prefix == "" {
		prefix = "agentctl.events"
	}
	return &NATSMirror{client: client, prefix: prefix}
}

// Mirror implements Mirror.
func (m *NATSMirror) Mirror(event Event) {
	subject := fmt.Sprintf("%s.%s", m.prefix, event.Kind)
	if err := m.client.PublishJSON(subject, event); err != nil {
		log.Printf("[EVENTS] nats mirror publish failed for %s: %v", event.ID, err)
	}
}
