package webrtc

import (
	"sync"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/infrastructure/signal"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Signaler is the broadcaster/viewer-side view of the signaling channel.
// Implementations report Open()=false once the channel is gone; envelopes
// produced after that are dropped, never queued.
type Signaler interface {
	Send(env signal.Envelope) error
	Open() bool
}

// Config carries the ICE configuration for peer connections.
type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
}

// Broadcaster owns the mapping from viewer id to peer connection and drives
// the offer/answer/ICE exchange for each joined viewer.
//
// The viewer count reflects join notifications, not confirmed media flow: it
// is incremented the moment a viewer_joined envelope arrives and decremented
// on leave or terminal connection state, floored at zero.
type Broadcaster struct {
	id       domain.BroadcasterID
	streamID domain.StreamID
	signaler Signaler
	api      *webrtc.API
	rtcCfg   webrtc.Configuration

	mu          sync.Mutex
	tracks      []webrtc.TrackLocal
	conns       map[domain.ViewerID]*viewerLink
	viewerCount int
	stopped     bool

	logger *zap.SugaredLogger
}

type viewerLink struct {
	pc       *webrtc.PeerConnection
	joinedAt time.Time
}

// NewBroadcaster builds the connection manager. Local tracks must be added
// before viewers join.
func NewBroadcaster(
	id domain.BroadcasterID,
	streamID domain.StreamID,
	cfg Config,
	signaler Signaler,
	logger *zap.Logger,
) *Broadcaster {
	settingEngine := webrtc.SettingEngine{}
	if cfg.PortRange.Min > 0 && cfg.PortRange.Max > 0 {
		settingEngine.SetEphemeralUDPPortRange(cfg.PortRange.Min, cfg.PortRange.Max)
	}

	return &Broadcaster{
		id:       id,
		streamID: streamID,
		signaler: signaler,
		api:      webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine)),
		rtcCfg: webrtc.Configuration{
			ICEServers:   cfg.ICEServers,
			SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
		},
		conns:  make(map[domain.ViewerID]*viewerLink),
		logger: logger.Sugar(),
	}
}

// AddTrack registers a local media track that every future viewer connection
// will carry.
func (b *Broadcaster) AddTrack(track webrtc.TrackLocal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tracks = append(b.tracks, track)
}

// Start announces the broadcaster on the signaling channel. Local media must
// already be captured.
func (b *Broadcaster) Start() error {
	b.mu.Lock()
	hasMedia := len(b.tracks) > 0
	b.mu.Unlock()

	if !hasMedia {
		return domain.ErrNoLocalMedia
	}
	return b.signaler.Send(signal.Envelope{
		Type:          signal.TypeBroadcasterReady,
		StreamID:      b.streamID,
		BroadcasterID: b.id,
	})
}

// HandleEnvelope dispatches one inbound signaling envelope. Unknown envelope
// types and envelopes for unknown viewers are ignored without error.
func (b *Broadcaster) HandleEnvelope(env signal.Envelope) {
	switch env.Type {
	case signal.TypeViewerJoined:
		b.handleViewerJoined(env.ViewerID)
	case signal.TypeViewerLeft:
		b.handleViewerLeft(env.ViewerID)
	case signal.TypeAnswer:
		b.handleAnswer(env)
	case signal.TypeICECandidate:
		b.handleCandidate(env)
	default:
		b.logger.Debugw("ignoring envelope", "type", env.Type)
	}
}

// handleViewerJoined creates a fresh peer connection for the viewer, attaches
// every local track, and sends the offer. The viewer count goes up before any
// negotiation happens. Failures are logged and the join is abandoned; the
// session continues for other viewers.
func (b *Broadcaster) handleViewerJoined(viewerID domain.ViewerID) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	stale := b.conns[viewerID]
	if stale != nil {
		// Supersede counts as a leave followed by a fresh join, so an
		// abandoned re-join rolls back to exactly zero for this viewer.
		delete(b.conns, viewerID)
		if b.viewerCount > 0 {
			b.viewerCount--
		}
	}
	b.viewerCount++
	tracks := b.tracks
	b.mu.Unlock()

	// A re-join for a known id supersedes the old connection.
	if stale != nil {
		stale.pc.Close()
	}

	if len(tracks) == 0 {
		b.logger.Errorw("viewer joined before local media was captured",
			"stream_id", b.streamID, "viewer_id", viewerID)
		b.abandonJoin()
		return
	}

	pc, err := b.api.NewPeerConnection(b.rtcCfg)
	if err != nil {
		b.logger.Errorw("failed to create peer connection",
			"viewer_id", viewerID, "error", err)
		b.abandonJoin()
		return
	}

	for _, track := range tracks {
		sender, err := pc.AddTrack(track)
		if err != nil {
			b.logger.Errorw("failed to add track",
				"viewer_id", viewerID, "track_id", track.ID(), "error", err)
			pc.Close()
			b.abandonJoin()
			return
		}
		go b.readRTCP(viewerID, sender)
	}

	pc.OnICECandidate(b.handleLocalCandidate(viewerID))
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		b.logger.Infow("viewer ICE state changed",
			"viewer_id", viewerID, "ice_state", state)
		if state == webrtc.ICEConnectionStateFailed || state == webrtc.ICEConnectionStateDisconnected || state == webrtc.ICEConnectionStateClosed {
			b.dropViewer(viewerID, pc)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		b.logger.Infow("viewer connection state changed",
			"viewer_id", viewerID, "connection_state", state)
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateDisconnected || state == webrtc.PeerConnectionStateClosed {
			b.dropViewer(viewerID, pc)
		}
	})

	// Register before the async offer work so a fast answer finds the entry.
	b.mu.Lock()
	b.conns[viewerID] = &viewerLink{pc: pc, joinedAt: time.Now()}
	b.mu.Unlock()

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		b.logger.Errorw("failed to create offer", "viewer_id", viewerID, "error", err)
		b.dropViewer(viewerID, pc)
		return
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		b.logger.Errorw("failed to set local description", "viewer_id", viewerID, "error", err)
		b.dropViewer(viewerID, pc)
		return
	}

	if err := b.signaler.Send(signal.Envelope{
		Type:          signal.TypeOffer,
		StreamID:      b.streamID,
		ViewerID:      viewerID,
		BroadcasterID: b.id,
		Offer:         &offer,
	}); err != nil {
		b.logger.Warnw("failed to send offer", "viewer_id", viewerID, "error", err)
	}
}

// handleLocalCandidate forwards ICE candidates to the signaling channel while
// it is open. Candidates generated after channel closure are dropped.
func (b *Broadcaster) handleLocalCandidate(viewerID domain.ViewerID) func(*webrtc.ICECandidate) {
	return func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if !b.signaler.Open() {
			return
		}
		init := c.ToJSON()
		if err := b.signaler.Send(signal.Envelope{
			Type:          signal.TypeICECandidate,
			StreamID:      b.streamID,
			ViewerID:      viewerID,
			BroadcasterID: b.id,
			Candidate:     &init,
		}); err != nil {
			b.logger.Debugw("dropping local candidate", "viewer_id", viewerID, "error", err)
		}
	}
}

// handleAnswer applies the remote description if the viewer's connection
// still exists and is not closed. Unknown or closed targets are silently
// ignored.
func (b *Broadcaster) handleAnswer(env signal.Envelope) {
	if env.BroadcasterID != "" && env.BroadcasterID != b.id {
		return
	}

	b.mu.Lock()
	link, ok := b.conns[env.ViewerID]
	b.mu.Unlock()

	if !ok || env.Answer == nil {
		return
	}
	if link.pc.ConnectionState() == webrtc.PeerConnectionStateClosed {
		return
	}
	if err := link.pc.SetRemoteDescription(*env.Answer); err != nil {
		b.logger.Warnw("failed to apply answer", "viewer_id", env.ViewerID, "error", err)
	}
}

// handleCandidate adds a remote candidate. Malformed or late candidates are
// swallowed without retry.
func (b *Broadcaster) handleCandidate(env signal.Envelope) {
	if env.BroadcasterID != "" && env.BroadcasterID != b.id {
		return
	}

	b.mu.Lock()
	link, ok := b.conns[env.ViewerID]
	b.mu.Unlock()

	if !ok || env.Candidate == nil {
		return
	}
	if link.pc.ConnectionState() == webrtc.PeerConnectionStateClosed {
		return
	}
	if err := link.pc.AddICECandidate(*env.Candidate); err != nil {
		b.logger.Debugw("failed to add candidate", "viewer_id", env.ViewerID, "error", err)
	}
}

func (b *Broadcaster) handleViewerLeft(viewerID domain.ViewerID) {
	b.dropViewer(viewerID, nil)
}

// abandonJoin rolls back the optimistic increment when a join fails before a
// connection entry exists. A later viewer_left for that id finds no entry and
// must not decrement, so the rollback happens here.
func (b *Broadcaster) abandonJoin() {
	b.mu.Lock()
	if b.viewerCount > 0 {
		b.viewerCount--
	}
	b.mu.Unlock()
}

// dropViewer closes and removes the viewer's connection and decrements the
// count, floored at zero. Removing an absent id is a no-op, as is a state
// callback from a superseded connection.
func (b *Broadcaster) dropViewer(viewerID domain.ViewerID, pc *webrtc.PeerConnection) {
	b.mu.Lock()
	link, ok := b.conns[viewerID]
	if !ok || (pc != nil && link.pc != pc) {
		b.mu.Unlock()
		return
	}
	delete(b.conns, viewerID)
	if b.viewerCount > 0 {
		b.viewerCount--
	}
	b.mu.Unlock()

	link.pc.Close()
	b.logger.Infow("viewer dropped",
		"stream_id", b.streamID, "viewer_id", viewerID,
		"connected_for", time.Since(link.joinedAt))
}

// Stop synchronously closes every owned peer connection and clears the map,
// so no dangling callback can fire against a superseded session.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	b.stopped = true
	links := make([]*viewerLink, 0, len(b.conns))
	for _, link := range b.conns {
		links = append(links, link)
	}
	b.conns = make(map[domain.ViewerID]*viewerLink)
	b.viewerCount = 0
	b.mu.Unlock()

	for _, link := range links {
		link.pc.Close()
	}
	b.logger.Infow("broadcaster stopped", "stream_id", b.streamID)
}

// ViewerCount returns the optimistic viewer count.
func (b *Broadcaster) ViewerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.viewerCount
}

// ConnectedViewers returns the ids with a live peer connection entry.
func (b *Broadcaster) ConnectedViewers() []domain.ViewerID {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]domain.ViewerID, 0, len(b.conns))
	for id := range b.conns {
		ids = append(ids, id)
	}
	return ids
}

// readRTCP drains sender reports from one viewer's RTP sender. PLI and
// receiver reports are observed for logging only; no retransmission logic
// lives here.
func (b *Broadcaster) readRTCP(viewerID domain.ViewerID, sender *webrtc.RTPSender) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, packet := range packets {
			switch p := packet.(type) {
			case *rtcp.PictureLossIndication:
				b.logger.Debugw("viewer requested keyframe", "viewer_id", viewerID)
			case *rtcp.ReceiverReport:
				for _, report := range p.Reports {
					if report.FractionLost > 0 {
						b.logger.Debugw("viewer reported loss",
							"viewer_id", viewerID, "fraction_lost", report.FractionLost)
					}
				}
			}
		}
	}
}
