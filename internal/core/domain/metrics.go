package domain

import "time"

// StreamMetrics is a point-in-time snapshot of one stream's bookkeeping.
// ViewerCount reflects join notifications, not confirmed media flow: it is
// incremented when the broadcaster learns of a join and decremented on leave,
// floored at zero.
type StreamMetrics struct {
	StreamID        StreamID      `json:"stream_id"`
	ViewerCount     int           `json:"viewer_count"`
	TotalJoins      int           `json:"total_joins"`
	TotalLeaves     int           `json:"total_leaves"`
	BroadcasterLive bool          `json:"broadcaster_live"`
	Uptime          time.Duration `json:"uptime"`
}
