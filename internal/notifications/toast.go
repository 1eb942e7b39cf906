package notifications

import (
	"fmt"

	"github.com/cliaimonitor/agentctl/internal/events"
	toastlib "github.com/go-toast/toast"
)

// ToastChannel shows a desktop toast notification for critical events,
// following the teacher's internal/notifications/toast.go use of
// go-toast/toast, retargeted at the typed event bus via
// CriticalEventChannelFilter.
type ToastChannel struct {
	AppID string
}

// NewToastChannel creates a ToastChannel. appID defaults to "agentctl".
func NewToastChannel(appID string) *ToastChannel {
	if appID == "" {
		appID = "agentctl"
	}
	return &ToastChannel{AppID: appID}
}

func (t *ToastChannel) Name() string { return "toast" }

func (t *ToastChannel) ShouldNotify(event events.Event) bool {
	return CriticalEventChannelFilter(event)
}

func (t *ToastChannel) Send(event events.Event) error {
	notification := toastlib.Notification{
		AppID:   t.AppID,
		Title:   fmt.Sprintf("agentctl: %s", event.Kind),
		Message: fmt.Sprintf("agent %s: %v", event.AgentID, event.Payload),
	}
	return notification.Push()
}
