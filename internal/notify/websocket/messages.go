package websocket

import (
	"encoding/json"
	"time"

	"github.com/stravx/conquest/internal/territory"
)

// Message types understood by the realtime gateway.
const (
	TypeHello   = "hello"
	TypeGoodbye = "goodbye"
	TypeAck     = "ack"
)

// Envelope wraps every message sent over the wire.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"`
	For  string `json:"for"`
}

// HelloPayload identifies the publishing service. It is replayed after every
// reconnect.
type HelloPayload struct {
	Service string `json:"service"`
	Channel string `json:"channel,omitempty"`
}

// EventPayload is the wire form of a territory event. The envelope type
// carries the event kind.
type EventPayload struct {
	TileID    string    `json:"tileId"`
	OwnerID   string    `json:"ownerId,omitempty"`
	Strength  int       `json:"strength"`
	ActorName string    `json:"actorName,omitempty"`
	At        time.Time `json:"at"`
}

func eventPayload(e territory.Event) EventPayload {
	return EventPayload{
		TileID:    e.TileID,
		OwnerID:   e.OwnerID,
		Strength:  e.Strength,
		ActorName: e.ActorName,
		At:        e.At.UTC(),
	}
}
