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

type fakeSink struct {
	mu       sync.Mutex
	attached int
	cleared  int
}

func (f *fakeSink) Attach(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached++
}

func (f *fakeSink) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
}

func (f *fakeSink) clearCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleared
}

// stateRecorder collects the state transitions the viewer reports.
type stateRecorder struct {
	mu     sync.Mutex
	states []domain.ViewerState
}

func (r *stateRecorder) record(state domain.ViewerState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *stateRecorder) all() []domain.ViewerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ViewerState(nil), r.states...)
}

func newTestViewer(t *testing.T, sig Signaler, sink TrackSink, rec *stateRecorder) *Viewer {
	t.Helper()
	var onState func(domain.ViewerState)
	if rec != nil {
		onState = rec.record
	}
	v := NewViewer("v1", "s1", Config{}, sig, sink, onState, zap.NewNop())
	t.Cleanup(v.Disconnect)
	return v
}

// realOffer produces a genuine SDP offer carrying one video track, the way the
// broadcaster side would.
func realOffer(t *testing.T) (*webrtc.PeerConnection, webrtc.SessionDescription) {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	_, err = pc.AddTrack(newTestTrack(t))
	require.NoError(t, err)

	offer, err := pc.CreateOffer(nil)
	require.NoError(t, err)
	require.NoError(t, pc.SetLocalDescription(offer))
	return pc, offer
}

func TestViewerAnnounce(t *testing.T) {
	sig := &fakeSignaler{}
	rec := &stateRecorder{}
	v := newTestViewer(t, sig, &fakeSink{}, rec)

	assert.Equal(t, domain.StateConnecting, v.State())
	require.NoError(t, v.Announce())
	assert.Equal(t, domain.StateAwaitingBroadcaster, v.State())

	joins := sig.byType(signal.TypeViewerJoined)
	require.Len(t, joins, 1)
	assert.Equal(t, domain.ViewerID("v1"), joins[0].ViewerID)
	assert.Equal(t, domain.StreamID("s1"), joins[0].StreamID)
	assert.Equal(t, []domain.ViewerState{domain.StateAwaitingBroadcaster}, rec.all())
}

func TestViewerAnnounceFailsOnClosedChannel(t *testing.T) {
	sig := &fakeSignaler{}
	sig.close()
	v := newTestViewer(t, sig, &fakeSink{}, nil)

	assert.ErrorIs(t, v.Announce(), domain.ErrChannelClosed)
	assert.Equal(t, domain.StateConnecting, v.State())
}

func TestViewerBroadcasterReadyIsStatusOnly(t *testing.T) {
	sig := &fakeSignaler{}
	v := newTestViewer(t, sig, &fakeSink{}, nil)
	require.NoError(t, v.Announce())

	v.HandleEnvelope(signal.Envelope{Type: signal.TypeBroadcasterReady, BroadcasterID: "b1"})
	assert.Equal(t, domain.StateAwaitingBroadcaster, v.State())
	assert.Empty(t, sig.byType(signal.TypeAnswer))
}

func TestViewerAnswersOffer(t *testing.T) {
	sig := &fakeSignaler{}
	rec := &stateRecorder{}
	v := newTestViewer(t, sig, &fakeSink{}, rec)
	require.NoError(t, v.Announce())

	_, offer := realOffer(t)
	v.HandleEnvelope(signal.Envelope{
		Type: signal.TypeOffer, ViewerID: "v1", BroadcasterID: "b1", Offer: &offer,
	})

	answers := sig.byType(signal.TypeAnswer)
	require.Len(t, answers, 1)
	assert.Equal(t, domain.ViewerID("v1"), answers[0].ViewerID)
	assert.Equal(t, domain.BroadcasterID("b1"), answers[0].BroadcasterID)
	require.NotNil(t, answers[0].Answer)
	assert.NotEmpty(t, answers[0].Answer.SDP)

	assert.Equal(t, domain.StateNegotiating, v.State())
	assert.Contains(t, rec.all(), domain.StateNegotiating)
}

func TestViewerIgnoresOfferForOtherViewer(t *testing.T) {
	sig := &fakeSignaler{}
	v := newTestViewer(t, sig, &fakeSink{}, nil)
	require.NoError(t, v.Announce())

	_, offer := realOffer(t)
	v.HandleEnvelope(signal.Envelope{
		Type: signal.TypeOffer, ViewerID: "someone-else", BroadcasterID: "b1", Offer: &offer,
	})

	assert.Empty(t, sig.byType(signal.TypeAnswer))
	assert.Equal(t, domain.StateAwaitingBroadcaster, v.State())
}

func TestViewerSecondOfferSupersedes(t *testing.T) {
	sig := &fakeSignaler{}
	v := newTestViewer(t, sig, &fakeSink{}, nil)
	require.NoError(t, v.Announce())

	_, offer1 := realOffer(t)
	v.HandleEnvelope(signal.Envelope{
		Type: signal.TypeOffer, ViewerID: "v1", BroadcasterID: "b1", Offer: &offer1,
	})
	_, offer2 := realOffer(t)
	v.HandleEnvelope(signal.Envelope{
		Type: signal.TypeOffer, ViewerID: "v1", BroadcasterID: "b1", Offer: &offer2,
	})

	assert.Len(t, sig.byType(signal.TypeAnswer), 2)
	assert.Equal(t, domain.StateNegotiating, v.State())
}

func TestViewerCandidateBeforeOfferIgnored(t *testing.T) {
	sig := &fakeSignaler{}
	v := newTestViewer(t, sig, &fakeSink{}, nil)
	require.NoError(t, v.Announce())

	assert.NotPanics(t, func() {
		v.HandleEnvelope(signal.Envelope{
			Type:      signal.TypeICECandidate,
			ViewerID:  "v1",
			Candidate: &webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 127.0.0.1 5000 typ host"},
		})
	})
	assert.Equal(t, domain.StateAwaitingBroadcaster, v.State())
}

func TestViewerTerminalStateDisconnects(t *testing.T) {
	sig := &fakeSignaler{}
	sink := &fakeSink{}
	rec := &stateRecorder{}
	v := newTestViewer(t, sig, sink, rec)
	require.NoError(t, v.Announce())

	_, offer := realOffer(t)
	v.HandleEnvelope(signal.Envelope{
		Type: signal.TypeOffer, ViewerID: "v1", BroadcasterID: "b1", Offer: &offer,
	})
	require.Equal(t, domain.StateNegotiating, v.State())

	v.mu.Lock()
	pc := v.pc
	v.mu.Unlock()
	require.NotNil(t, pc)

	// Closing the connection fires the terminal state callbacks: the viewer
	// lands in Disconnected with rendered media cleared, and stays there.
	require.NoError(t, pc.Close())
	require.Eventually(t, func() bool {
		return v.State() == domain.StateDisconnected
	}, time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, sink.clearCount(), 1)
	assert.Contains(t, rec.all(), domain.StateDisconnected)

	// A stale callback from the torn-down connection is a no-op.
	v.handleTerminal(pc)
	assert.Equal(t, domain.StateDisconnected, v.State())
}

func TestViewerDisconnectEndsSession(t *testing.T) {
	sig := &fakeSignaler{}
	sink := &fakeSink{}
	v := newTestViewer(t, sig, sink, nil)
	require.NoError(t, v.Announce())

	_, offer := realOffer(t)
	v.HandleEnvelope(signal.Envelope{
		Type: signal.TypeOffer, ViewerID: "v1", BroadcasterID: "b1", Offer: &offer,
	})

	v.Disconnect()
	assert.Equal(t, domain.StateEnded, v.State())
	assert.GreaterOrEqual(t, sink.clearCount(), 1)
}

func TestViewerResetStartsOver(t *testing.T) {
	sig := &fakeSignaler{}
	v := newTestViewer(t, sig, &fakeSink{}, nil)
	require.NoError(t, v.Announce())
	v.Disconnect()
	require.Equal(t, domain.StateEnded, v.State())

	fresh := &fakeSignaler{}
	v.Reset(fresh)
	assert.Equal(t, domain.StateConnecting, v.State())

	// Announce goes out on the fresh channel, not the old one.
	require.NoError(t, v.Announce())
	assert.Len(t, fresh.byType(signal.TypeViewerJoined), 1)
	assert.Len(t, sig.byType(signal.TypeViewerJoined), 1)
}
