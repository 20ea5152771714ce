package webrtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// RTPSource feeds a local track from RTP packets arriving on a UDP socket.
// This is the capture side of the broadcaster: an external encoder (ffmpeg,
// gstreamer) points its RTP output at the source address.
type RTPSource struct {
	addr   string
	track  *webrtc.TrackLocalStaticRTP
	logger *zap.SugaredLogger
}

func NewRTPSource(addr string, track *webrtc.TrackLocalStaticRTP, logger *zap.Logger) *RTPSource {
	return &RTPSource{
		addr:   addr,
		track:  track,
		logger: logger.Sugar(),
	}
}

// Run reads packets until the context is cancelled or the socket fails.
func (s *RTPSource) Run(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen for RTP on %s: %w", s.addr, err)
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	s.logger.Infow("RTP source listening", "addr", s.addr, "track_id", s.track.ID())

	buf := make([]byte, 1500) // MTU size
	packet := &rtp.Packet{}

	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("RTP read failed: %w", err)
		}

		if err := packet.Unmarshal(buf[:n]); err != nil {
			s.logger.Debugw("dropping malformed RTP packet", "error", err)
			continue
		}

		// ErrClosedPipe just means nobody is watching yet.
		if err := s.track.WriteRTP(packet); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			s.logger.Debugw("failed to write RTP packet", "error", err)
		}
	}
}
