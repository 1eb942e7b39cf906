// Package notifications routes critical runtime events to optional
// alert sinks (toast, Slack, Discord, email), adapted near-verbatim from
// the teacher's internal/notifications/router.go fire-and-forget
// dispatch, now triggered off the typed events.Event instead of the
// teacher's untyped payload.
package notifications

import (
	"log"
	"sync"

	"github.com/cliaimonitor/agentctl/internal/events"
)

// Channel is a sink that can choose to notify on an event and send it.
type Channel interface {
	Name() string
	ShouldNotify(event events.Event) bool
	Send(event events.Event) error
}

// Router dispatches events to every registered channel.
type Router struct {
	mu       sync.RWMutex
	channels []Channel
}

// NewRouter creates a Router with the given initial channels.
func NewRouter(channels []Channel) *Router {
	if channels == nil {
		channels = []Channel{}
	}
	return &Router{channels: channels}
}

// AddChannel registers a channel.
func (r *Router) AddChannel(ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = append(r.channels, ch)
}

// RemoveChannel unregisters a channel by name.
func (r *Router) RemoveChannel(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	filtered := make([]Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		if ch.Name() != name {
			filtered = append(filtered, ch)
		}
	}
	r.channels = filtered
}

// Route sends event to every matching channel asynchronously,
// fire-and-forget, logging failures rather than returning them.
func (r *Router) Route(event events.Event) {
	r.mu.RLock()
	channels := make([]Channel, len(r.channels))
	copy(channels, r.channels)
	r.mu.RUnlock()

	for _, ch := range channels {
		go func(channel Channel) {
			if !channel.ShouldNotify(event) {
				return
			}
			if err := channel.Send(event); err != nil {
				log.Printf("[NOTIFY-ROUTER] failed to send event %s to channel %s: %v", event.ID, channel.Name(), err)
			}
		}(ch)
	}
}

// RouteWithWait routes event and blocks until every channel finishes.
func (r *Router) RouteWithWait(event events.Event) {
	r.mu.RLock()
	channels := make([]Channel, len(r.channels))
	copy(channels, r.channels)
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(channel Channel) {
			defer wg.Done()
			if !channel.ShouldNotify(event) {
				return
			}
			if err := channel.Send(event); err != nil {
				log.Printf("[NOTIFY-ROUTER] failed to send event %s to channel %s: %v", event.ID, channel.Name(), err)
			}
		}(ch)
	}
	wg.Wait()
}

// GetChannels returns every registered channel's name.
func (r *Router) GetChannels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.channels))
	for i, ch := range r.channels {
		names[i] = ch.Name()
	}
	return names
}

// CriticalEventChannelFilter is the default ShouldNotify predicate for
// channels that only care about events severe enough to page an
// operator.
var CriticalEventChannelFilter = events.CriticalEventFilter
