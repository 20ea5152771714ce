package signal

import (
	"fmt"

	"livecast/internal/core/domain"
	"livecast/pkg/validation"

	"github.com/pion/webrtc/v3"
)

// EnvelopeType discriminates signaling envelopes.
type EnvelopeType string

const (
	TypeViewerJoined     EnvelopeType = "viewer_joined"
	TypeViewerLeft       EnvelopeType = "viewer_left"
	TypeBroadcasterReady EnvelopeType = "broadcaster_ready"
	TypeOffer            EnvelopeType = "offer"
	TypeAnswer           EnvelopeType = "answer"
	TypeICECandidate     EnvelopeType = "ice_candidate"
	TypeError            EnvelopeType = "error"
)

// Envelope is one message exchanged over the signaling channel. Envelopes are
// ephemeral; the relay forwards them verbatim and never persists them.
type Envelope struct {
	Type          EnvelopeType               `json:"type"`
	StreamID      domain.StreamID            `json:"streamId,omitempty"`
	ViewerID      domain.ViewerID            `json:"viewerId,omitempty"`
	BroadcasterID domain.BroadcasterID       `json:"broadcasterId,omitempty"`
	Offer         *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer        *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate     *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Message       string                     `json:"message,omitempty"`
}

// Validate checks that the envelope carries the fields its type requires.
func (e *Envelope) Validate() error {
	switch e.Type {
	case TypeViewerJoined, TypeViewerLeft:
		if err := validation.ValidateViewerID(string(e.ViewerID)); err != nil {
			return fmt.Errorf("%s: %w", e.Type, err)
		}
	case TypeBroadcasterReady:
		if e.BroadcasterID == "" {
			return fmt.Errorf("broadcaster_ready: broadcasterId is required")
		}
	case TypeOffer:
		if e.ViewerID == "" {
			return fmt.Errorf("offer: viewerId is required")
		}
		if e.Offer == nil {
			return fmt.Errorf("offer: session description is required")
		}
		if err := validation.ValidateSDP(e.Offer.SDP); err != nil {
			return fmt.Errorf("offer: %w", err)
		}
	case TypeAnswer:
		if e.ViewerID == "" {
			return fmt.Errorf("answer: viewerId is required")
		}
		if e.Answer == nil {
			return fmt.Errorf("answer: session description is required")
		}
		if err := validation.ValidateSDP(e.Answer.SDP); err != nil {
			return fmt.Errorf("answer: %w", err)
		}
	case TypeICECandidate:
		if e.Candidate == nil || e.Candidate.Candidate == "" {
			return fmt.Errorf("ice_candidate: candidate is required")
		}
	case TypeError:
		// Relay-emitted only; nothing to check.
	case "":
		return fmt.Errorf("envelope type is required")
	default:
		return fmt.Errorf("unknown envelope type: %s", e.Type)
	}
	return nil
}

// NewErrorEnvelope builds a relay error notification.
func NewErrorEnvelope(message string) Envelope {
	return Envelope{Type: TypeError, Message: message}
}
