package domain

// ViewerState is the lifecycle of the viewer-side connection manager.
//
// Connecting -> AwaitingBroadcaster -> Negotiating -> Connected -> {Disconnected | Ended}
//
// Disconnected and Ended are both terminal; only an explicit reconnect, which
// tears down the signaling channel and peer connection and starts over from
// Connecting, leaves them.
type ViewerState string

const (
	StateConnecting          ViewerState = "connecting"
	StateAwaitingBroadcaster ViewerState = "awaiting_broadcaster"
	StateNegotiating         ViewerState = "negotiating"
	StateConnected           ViewerState = "connected"
	StateDisconnected        ViewerState = "disconnected"
	StateEnded               ViewerState = "ended"
)

// Terminal reports whether the state can only be left by an explicit reconnect.
func (s ViewerState) Terminal() bool {
	return s == StateDisconnected || s == StateEnded
}
