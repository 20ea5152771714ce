package webrtc

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// UDPSink renders remote tracks by forwarding their RTP packets to a local
// UDP address, where a player (ffplay, gst-launch) picks them up. Clear stops
// the drain goroutines and drops the socket.
type UDPSink struct {
	addr   string
	logger *zap.SugaredLogger

	mu      sync.Mutex
	conn    net.Conn
	cleared atomic.Bool

	bytesReceived atomic.Int64
}

func NewUDPSink(addr string, logger *zap.Logger) *UDPSink {
	return &UDPSink{
		addr:   addr,
		logger: logger.Sugar(),
	}
}

// Attach starts draining the track into the UDP socket.
func (s *UDPSink) Attach(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	s.cleared.Store(false)

	s.mu.Lock()
	if s.conn == nil {
		conn, err := net.Dial("udp", s.addr)
		if err != nil {
			s.mu.Unlock()
			s.logger.Errorw("failed to dial render address", "addr", s.addr, "error", err)
			return
		}
		s.conn = conn
	}
	conn := s.conn
	s.mu.Unlock()

	go s.drain(track, conn)
}

func (s *UDPSink) drain(track *webrtc.TrackRemote, conn net.Conn) {
	buf := make([]byte, 1500)
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			return
		}
		if s.cleared.Load() {
			return
		}
		s.bytesReceived.Add(int64(n))
		if _, err := conn.Write(buf[:n]); err != nil {
			s.logger.Debugw("render write failed", "error", err)
			return
		}
	}
}

// Clear detaches all tracks and closes the render socket.
func (s *UDPSink) Clear() {
	s.cleared.Store(true)

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// BytesReceived reports how much media has been drained so far.
func (s *UDPSink) BytesReceived() int64 {
	return s.bytesReceived.Load()
}
