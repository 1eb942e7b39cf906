package nats

import "time"

// ClientInfo represents a connected NATS client.
type ClientInfo struct {
	ClientID    string    `json:"client_id"`
	ConnectedAt time.Time `json:"connected_at"`
}
