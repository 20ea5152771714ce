package webrtc

import (
	"sync"
	"testing"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/infrastructure/signal"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSignaler records sent envelopes. Open is togglable to simulate a dead
// signaling channel.
type fakeSignaler struct {
	mu     sync.Mutex
	sent   []signal.Envelope
	closed bool
}

func (f *fakeSignaler) Send(env signal.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return domain.ErrChannelClosed
	}
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeSignaler) Open() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeSignaler) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSignaler) byType(t signal.EnvelopeType) []signal.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []signal.Envelope
	for _, env := range f.sent {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

func newTestTrack(t *testing.T) *webrtc.TrackLocalStaticRTP {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "test")
	require.NoError(t, err)
	return track
}

func newTestBroadcaster(t *testing.T, sig Signaler) *Broadcaster {
	t.Helper()
	b := NewBroadcaster("b1", "s1", Config{}, sig, zap.NewNop())
	t.Cleanup(b.Stop)
	return b
}

func TestBroadcasterStartRequiresMedia(t *testing.T) {
	sig := &fakeSignaler{}
	b := newTestBroadcaster(t, sig)

	err := b.Start()
	assert.ErrorIs(t, err, domain.ErrNoLocalMedia)
	assert.Empty(t, sig.byType(signal.TypeBroadcasterReady))
}

func TestBroadcasterStartAnnouncesReady(t *testing.T) {
	sig := &fakeSignaler{}
	b := newTestBroadcaster(t, sig)
	b.AddTrack(newTestTrack(t))

	require.NoError(t, b.Start())

	ready := sig.byType(signal.TypeBroadcasterReady)
	require.Len(t, ready, 1)
	assert.Equal(t, domain.BroadcasterID("b1"), ready[0].BroadcasterID)
	assert.Equal(t, domain.StreamID("s1"), ready[0].StreamID)
}

func TestBroadcasterOffersOnViewerJoin(t *testing.T) {
	sig := &fakeSignaler{}
	b := newTestBroadcaster(t, sig)
	b.AddTrack(newTestTrack(t))

	b.HandleEnvelope(signal.Envelope{Type: signal.TypeViewerJoined, ViewerID: "v1"})

	offers := sig.byType(signal.TypeOffer)
	require.Len(t, offers, 1)
	assert.Equal(t, domain.ViewerID("v1"), offers[0].ViewerID)
	assert.Equal(t, domain.BroadcasterID("b1"), offers[0].BroadcasterID)
	require.NotNil(t, offers[0].Offer)
	assert.NotEmpty(t, offers[0].Offer.SDP)

	assert.Equal(t, 1, b.ViewerCount())
	assert.Equal(t, []domain.ViewerID{"v1"}, b.ConnectedViewers())
}

func TestBroadcasterCountIncrementsOnJoinNotOnConnect(t *testing.T) {
	sig := &fakeSignaler{}
	b := newTestBroadcaster(t, sig)
	b.AddTrack(newTestTrack(t))

	// Count moves on the join notification; no answer ever arrives here.
	b.HandleEnvelope(signal.Envelope{Type: signal.TypeViewerJoined, ViewerID: "v1"})
	b.HandleEnvelope(signal.Envelope{Type: signal.TypeViewerJoined, ViewerID: "v2"})
	assert.Equal(t, 2, b.ViewerCount())
}

func TestBroadcasterViewerCountFloorsAtZero(t *testing.T) {
	sig := &fakeSignaler{}
	b := newTestBroadcaster(t, sig)
	b.AddTrack(newTestTrack(t))

	b.HandleEnvelope(signal.Envelope{Type: signal.TypeViewerJoined, ViewerID: "v1"})
	b.HandleEnvelope(signal.Envelope{Type: signal.TypeViewerLeft, ViewerID: "v1"})
	assert.Equal(t, 0, b.ViewerCount())

	// Duplicate and unknown leaves are no-ops.
	b.HandleEnvelope(signal.Envelope{Type: signal.TypeViewerLeft, ViewerID: "v1"})
	b.HandleEnvelope(signal.Envelope{Type: signal.TypeViewerLeft, ViewerID: "ghost"})
	assert.Equal(t, 0, b.ViewerCount())
}

func TestBroadcasterAbandonedJoinRollsBackCount(t *testing.T) {
	sig := &fakeSignaler{}
	b := newTestBroadcaster(t, sig)

	// No local media captured: the join is abandoned before a connection
	// entry exists, so the optimistic increment must be rolled back.
	b.HandleEnvelope(signal.Envelope{Type: signal.TypeViewerJoined, ViewerID: "v1"})
	assert.Equal(t, 0, b.ViewerCount())
	assert.Empty(t, b.ConnectedViewers())

	// The viewer's eventual leave finds no entry and must not decrement again.
	b.HandleEnvelope(signal.Envelope{Type: signal.TypeViewerLeft, ViewerID: "v1"})
	assert.Equal(t, 0, b.ViewerCount())

	// A later successful join counts normally.
	b.AddTrack(newTestTrack(t))
	b.HandleEnvelope(signal.Envelope{Type: signal.TypeViewerJoined, ViewerID: "v2"})
	assert.Equal(t, 1, b.ViewerCount())
}

func TestBroadcasterTerminalStateDropsViewer(t *testing.T) {
	sig := &fakeSignaler{}
	b := newTestBroadcaster(t, sig)
	b.AddTrack(newTestTrack(t))

	b.HandleEnvelope(signal.Envelope{Type: signal.TypeViewerJoined, ViewerID: "v1"})
	b.HandleEnvelope(signal.Envelope{Type: signal.TypeViewerJoined, ViewerID: "v2"})
	require.Equal(t, 2, b.ViewerCount())

	b.mu.Lock()
	link := b.conns["v1"]
	b.mu.Unlock()
	require.NotNil(t, link)

	// Closing the connection fires the terminal state callbacks, which must
	// behave exactly like a leave for that viewer only.
	require.NoError(t, link.pc.Close())
	require.Eventually(t, func() bool {
		return b.ViewerCount() == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []domain.ViewerID{"v2"}, b.ConnectedViewers())

	// A late viewer_left for the dropped id is a no-op.
	b.HandleEnvelope(signal.Envelope{Type: signal.TypeViewerLeft, ViewerID: "v1"})
	assert.Equal(t, 1, b.ViewerCount())
}

func TestBroadcasterLeaveIsolatedPerViewer(t *testing.T) {
	sig := &fakeSignaler{}
	b := newTestBroadcaster(t, sig)
	b.AddTrack(newTestTrack(t))

	b.HandleEnvelope(signal.Envelope{Type: signal.TypeViewerJoined, ViewerID: "v1"})
	b.HandleEnvelope(signal.Envelope{Type: signal.TypeViewerJoined, ViewerID: "v2"})
	b.HandleEnvelope(signal.Envelope{Type: signal.TypeViewerLeft, ViewerID: "v1"})

	assert.Equal(t, 1, b.ViewerCount())
	assert.Equal(t, []domain.ViewerID{"v2"}, b.ConnectedViewers())
}

func TestBroadcasterRejoinSupersedesConnection(t *testing.T) {
	sig := &fakeSignaler{}
	b := newTestBroadcaster(t, sig)
	b.AddTrack(newTestTrack(t))

	b.HandleEnvelope(signal.Envelope{Type: signal.TypeViewerJoined, ViewerID: "v1"})
	b.HandleEnvelope(signal.Envelope{Type: signal.TypeViewerJoined, ViewerID: "v1"})

	assert.Len(t, sig.byType(signal.TypeOffer), 2)
	assert.Equal(t, []domain.ViewerID{"v1"}, b.ConnectedViewers())
	assert.Equal(t, 1, b.ViewerCount())
}

func TestBroadcasterAppliesAnswerRoundTrip(t *testing.T) {
	sig := &fakeSignaler{}
	b := newTestBroadcaster(t, sig)
	b.AddTrack(newTestTrack(t))

	b.HandleEnvelope(signal.Envelope{Type: signal.TypeViewerJoined, ViewerID: "v1"})
	offers := sig.byType(signal.TypeOffer)
	require.Len(t, offers, 1)

	// Answer the offer with a real remote peer connection.
	remote, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer remote.Close()
	require.NoError(t, remote.SetRemoteDescription(*offers[0].Offer))
	answer, err := remote.CreateAnswer(nil)
	require.NoError(t, err)
	require.NoError(t, remote.SetLocalDescription(answer))

	b.HandleEnvelope(signal.Envelope{
		Type: signal.TypeAnswer, ViewerID: "v1", BroadcasterID: "b1", Answer: &answer,
	})

	b.mu.Lock()
	link := b.conns["v1"]
	b.mu.Unlock()
	require.NotNil(t, link)
	assert.NotNil(t, link.pc.RemoteDescription())
}

func TestBroadcasterIgnoresAnswerForUnknownViewer(t *testing.T) {
	sig := &fakeSignaler{}
	b := newTestBroadcaster(t, sig)
	b.AddTrack(newTestTrack(t))

	answer := &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\n"}
	assert.NotPanics(t, func() {
		b.HandleEnvelope(signal.Envelope{Type: signal.TypeAnswer, ViewerID: "ghost", Answer: answer})
		b.HandleEnvelope(signal.Envelope{Type: signal.TypeICECandidate, ViewerID: "ghost",
			Candidate: &webrtc.ICECandidateInit{Candidate: "candidate:1"}})
	})
	assert.Equal(t, 0, b.ViewerCount())
}

func TestBroadcasterIgnoresAnswerForOtherBroadcaster(t *testing.T) {
	sig := &fakeSignaler{}
	b := newTestBroadcaster(t, sig)
	b.AddTrack(newTestTrack(t))

	b.HandleEnvelope(signal.Envelope{Type: signal.TypeViewerJoined, ViewerID: "v1"})

	answer := &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\n"}
	b.HandleEnvelope(signal.Envelope{
		Type: signal.TypeAnswer, ViewerID: "v1", BroadcasterID: "someone-else", Answer: answer,
	})

	b.mu.Lock()
	link := b.conns["v1"]
	b.mu.Unlock()
	require.NotNil(t, link)
	assert.Nil(t, link.pc.RemoteDescription())
}

func TestBroadcasterDropsLocalCandidatesAfterChannelClose(t *testing.T) {
	sig := &fakeSignaler{}
	b := newTestBroadcaster(t, sig)
	b.AddTrack(newTestTrack(t))

	b.HandleEnvelope(signal.Envelope{Type: signal.TypeViewerJoined, ViewerID: "v1"})
	sig.close()

	before := len(sig.byType(signal.TypeICECandidate))
	b.handleLocalCandidate("v1")(&webrtc.ICECandidate{})
	assert.Len(t, sig.byType(signal.TypeICECandidate), before)
}

func TestBroadcasterStopIsSynchronous(t *testing.T) {
	sig := &fakeSignaler{}
	b := NewBroadcaster("b1", "s1", Config{}, sig, zap.NewNop())
	b.AddTrack(newTestTrack(t))

	b.HandleEnvelope(signal.Envelope{Type: signal.TypeViewerJoined, ViewerID: "v1"})
	b.HandleEnvelope(signal.Envelope{Type: signal.TypeViewerJoined, ViewerID: "v2"})

	b.Stop()
	assert.Equal(t, 0, b.ViewerCount())
	assert.Empty(t, b.ConnectedViewers())

	// Joins after Stop are ignored.
	b.HandleEnvelope(signal.Envelope{Type: signal.TypeViewerJoined, ViewerID: "v3"})
	assert.Equal(t, 0, b.ViewerCount())
	assert.Len(t, sig.byType(signal.TypeOffer), 2)
}
