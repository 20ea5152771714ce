package webrtc

import (
	"sync"

	"livecast/internal/core/domain"
	"livecast/internal/infrastructure/signal"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// TrackSink receives remote media. Attach is called once per inbound track;
// Clear is called when the connection tears down so nothing stale keeps
// rendering.
type TrackSink interface {
	Attach(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	Clear()
}

// Viewer negotiates exactly one inbound peer connection.
//
// Lifecycle: Connecting -> AwaitingBroadcaster -> Negotiating -> Connected ->
// {Disconnected | Ended}. There is no automatic retry out of a terminal
// state; Reset tears everything down and starts over from Connecting against
// a freshly dialed signaling channel.
type Viewer struct {
	id       domain.ViewerID
	streamID domain.StreamID
	api      *webrtc.API
	rtcCfg   webrtc.Configuration
	sink     TrackSink
	onState  func(domain.ViewerState)

	mu            sync.Mutex
	signaler      Signaler
	pc            *webrtc.PeerConnection
	state         domain.ViewerState
	broadcasterID domain.BroadcasterID

	logger *zap.SugaredLogger
}

// NewViewer builds the viewer-side manager. onState may be nil.
func NewViewer(
	id domain.ViewerID,
	streamID domain.StreamID,
	cfg Config,
	signaler Signaler,
	sink TrackSink,
	onState func(domain.ViewerState),
	logger *zap.Logger,
) *Viewer {
	settingEngine := webrtc.SettingEngine{}
	if cfg.PortRange.Min > 0 && cfg.PortRange.Max > 0 {
		settingEngine.SetEphemeralUDPPortRange(cfg.PortRange.Min, cfg.PortRange.Max)
	}

	return &Viewer{
		id:       id,
		streamID: streamID,
		api:      webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine)),
		rtcCfg: webrtc.Configuration{
			ICEServers:   cfg.ICEServers,
			SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
		},
		signaler: signaler,
		sink:     sink,
		onState:  onState,
		state:    domain.StateConnecting,
		logger:   logger.Sugar(),
	}
}

// Announce sends the viewer's presence on a freshly opened channel.
func (v *Viewer) Announce() error {
	if err := v.signaler.Send(signal.Envelope{
		Type:     signal.TypeViewerJoined,
		StreamID: v.streamID,
		ViewerID: v.id,
	}); err != nil {
		return err
	}
	v.setState(domain.StateAwaitingBroadcaster)
	return nil
}

// HandleEnvelope dispatches one inbound envelope. Envelopes addressed to a
// different viewer id are ignored.
func (v *Viewer) HandleEnvelope(env signal.Envelope) {
	switch env.Type {
	case signal.TypeBroadcasterReady:
		// Status only; the broadcaster will not offer until it sees the join.
		v.mu.Lock()
		v.broadcasterID = env.BroadcasterID
		v.mu.Unlock()
	case signal.TypeOffer:
		if env.ViewerID != v.id {
			return
		}
		v.handleOffer(env)
	case signal.TypeICECandidate:
		if env.ViewerID != v.id {
			return
		}
		v.handleCandidate(env)
	default:
		v.logger.Debugw("ignoring envelope", "type", env.Type)
	}
}

// handleOffer applies the remote description, generates the answer and sends
// it back tagged with the broadcaster id echoed from the offer envelope. Any
// existing connection is superseded first.
func (v *Viewer) handleOffer(env signal.Envelope) {
	if env.Offer == nil {
		return
	}

	v.mu.Lock()
	old := v.pc
	v.pc = nil
	if env.BroadcasterID != "" {
		v.broadcasterID = env.BroadcasterID
	}
	broadcasterID := v.broadcasterID
	sig := v.signaler
	v.mu.Unlock()

	if old != nil {
		old.Close()
	}

	pc, err := v.api.NewPeerConnection(v.rtcCfg)
	if err != nil {
		v.logger.Errorw("failed to create peer connection", "error", err)
		v.setState(domain.StateDisconnected)
		return
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		v.logger.Infow("remote track received",
			"track_id", track.ID(), "codec", track.Codec().MimeType)
		v.sink.Attach(track, receiver)
		v.setState(domain.StateConnected)
	})
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || !sig.Open() {
			return
		}
		init := c.ToJSON()
		if err := sig.Send(signal.Envelope{
			Type:          signal.TypeICECandidate,
			StreamID:      v.streamID,
			ViewerID:      v.id,
			BroadcasterID: broadcasterID,
			Candidate:     &init,
		}); err != nil {
			v.logger.Debugw("dropping local candidate", "error", err)
		}
	})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		v.logger.Infow("ICE state changed", "ice_state", state)
		if state == webrtc.ICEConnectionStateFailed || state == webrtc.ICEConnectionStateDisconnected || state == webrtc.ICEConnectionStateClosed {
			v.handleTerminal(pc)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		v.logger.Infow("connection state changed", "connection_state", state)
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateDisconnected || state == webrtc.PeerConnectionStateClosed {
			v.handleTerminal(pc)
		}
	})

	v.mu.Lock()
	v.pc = pc
	v.mu.Unlock()
	v.setState(domain.StateNegotiating)

	if err := pc.SetRemoteDescription(*env.Offer); err != nil {
		v.logger.Errorw("failed to apply offer", "error", err)
		v.handleTerminal(pc)
		return
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		v.logger.Errorw("failed to create answer", "error", err)
		v.handleTerminal(pc)
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		v.logger.Errorw("failed to set local description", "error", err)
		v.handleTerminal(pc)
		return
	}

	if err := sig.Send(signal.Envelope{
		Type:          signal.TypeAnswer,
		StreamID:      v.streamID,
		ViewerID:      v.id,
		BroadcasterID: broadcasterID,
		Answer:        &answer,
	}); err != nil {
		v.logger.Warnw("failed to send answer", "error", err)
	}
}

// handleCandidate adds the candidate if a connection exists. Failure is
// logged and non-fatal.
func (v *Viewer) handleCandidate(env signal.Envelope) {
	if env.Candidate == nil {
		return
	}

	v.mu.Lock()
	pc := v.pc
	v.mu.Unlock()

	if pc == nil {
		return
	}
	if err := pc.AddICECandidate(*env.Candidate); err != nil {
		v.logger.Warnw("failed to add candidate", "error", err)
	}
}

// handleTerminal tears down the connection on a terminal ICE/connection
// state. Stale callbacks from a superseded connection are no-ops.
func (v *Viewer) handleTerminal(pc *webrtc.PeerConnection) {
	v.mu.Lock()
	if v.pc != pc {
		v.mu.Unlock()
		return
	}
	v.pc = nil
	v.mu.Unlock()

	pc.Close()
	v.sink.Clear()
	v.setState(domain.StateDisconnected)
}

// Disconnect explicitly ends the session: the peer connection is closed
// synchronously, rendered media is cleared and the state becomes Ended.
func (v *Viewer) Disconnect() {
	v.mu.Lock()
	pc := v.pc
	v.pc = nil
	v.mu.Unlock()

	if pc != nil {
		pc.Close()
	}
	v.sink.Clear()
	v.setState(domain.StateEnded)
}

// Reset is the explicit reconnect path: it tears down the old peer connection
// and adopts a freshly dialed signaling channel, returning the machine to
// Connecting. The caller follows up with Announce.
func (v *Viewer) Reset(signaler Signaler) {
	v.mu.Lock()
	pc := v.pc
	v.pc = nil
	v.signaler = signaler
	v.broadcasterID = ""
	v.mu.Unlock()

	if pc != nil {
		pc.Close()
	}
	v.sink.Clear()
	v.setState(domain.StateConnecting)
}

// State returns the current lifecycle state.
func (v *Viewer) State() domain.ViewerState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// ID returns the locally generated viewer id.
func (v *Viewer) ID() domain.ViewerID {
	return v.id
}

func (v *Viewer) setState(state domain.ViewerState) {
	v.mu.Lock()
	if v.state == state {
		v.mu.Unlock()
		return
	}
	v.state = state
	v.mu.Unlock()

	v.logger.Infow("viewer state changed", "stream_id", v.streamID, "state", state)
	if v.onState != nil {
		v.onState(state)
	}
}
