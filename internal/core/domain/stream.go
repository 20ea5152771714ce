package domain

import (
	"time"
)

type StreamID string
type ViewerID string
type BroadcasterID string
type SessionID string

// Stream is one broadcast identified by an opaque id. It is created when a
// broadcaster requests a stream id and ends when the broadcaster stops streaming.
type Stream struct {
	ID          StreamID      `json:"id"`
	Name        string        `json:"name"`
	Broadcaster BroadcasterID `json:"broadcaster"`
	Active      bool          `json:"active"`
	CreatedAt   time.Time     `json:"created_at"`
	EndedAt     time.Time     `json:"ended_at,omitempty"`
	MaxViewers  int           `json:"max_viewers"`
}

// Viewer is the registry entry for one connected viewer of a stream.
type Viewer struct {
	ID       ViewerID  `json:"id"`
	StreamID StreamID  `json:"stream_id"`
	JoinedAt time.Time `json:"joined_at"`
	LastSeen time.Time `json:"last_seen"`
}
