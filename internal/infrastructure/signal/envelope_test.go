package signal

import (
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
)

const testSDP = "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"

func TestEnvelopeValidate(t *testing.T) {
	offer := &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: testSDP}
	answer := &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: testSDP}

	tests := []struct {
		name    string
		env     Envelope
		wantErr bool
	}{
		{"viewer_joined", Envelope{Type: TypeViewerJoined, ViewerID: "v1"}, false},
		{"viewer_joined without id", Envelope{Type: TypeViewerJoined}, true},
		{"viewer_left", Envelope{Type: TypeViewerLeft, ViewerID: "v1"}, false},
		{"broadcaster_ready", Envelope{Type: TypeBroadcasterReady, BroadcasterID: "b1"}, false},
		{"broadcaster_ready without id", Envelope{Type: TypeBroadcasterReady}, true},
		{"offer", Envelope{Type: TypeOffer, ViewerID: "v1", Offer: offer}, false},
		{"offer without viewer id", Envelope{Type: TypeOffer, Offer: offer}, true},
		{"offer without sdp", Envelope{Type: TypeOffer, ViewerID: "v1"}, true},
		{"offer with garbage sdp", Envelope{Type: TypeOffer, ViewerID: "v1",
			Offer: &webrtc.SessionDescription{SDP: "not an sdp"}}, true},
		{"answer", Envelope{Type: TypeAnswer, ViewerID: "v1", Answer: answer}, false},
		{"answer without sdp", Envelope{Type: TypeAnswer, ViewerID: "v1"}, true},
		{"ice_candidate", Envelope{Type: TypeICECandidate,
			Candidate: &webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 127.0.0.1 5000 typ host"}}, false},
		{"ice_candidate empty", Envelope{Type: TypeICECandidate}, true},
		{"error envelope", NewErrorEnvelope("boom"), false},
		{"missing type", Envelope{}, true},
		{"unknown type", Envelope{Type: "snapshot"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
