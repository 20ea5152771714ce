package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"
	"livecast/pkg/tracing"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const tracerName = "livecast/signal"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// RelayMetrics receives relay-side counters. Implemented by the Prometheus
// collector; nil disables recording.
type RelayMetrics interface {
	RecordEnvelope(envelopeType string)
	RecordViewerConnected(streamID domain.StreamID)
	RecordViewerDisconnected(streamID domain.StreamID)
	RecordBroadcasterConnected(streamID domain.StreamID)
	RecordBroadcasterDisconnected(streamID domain.StreamID)
}

// RelayServerOption mutates relay server defaults.
type RelayServerOption func(*RelayServer)

func WithKeepalive(pingInterval, pongTimeout, writeTimeout time.Duration) RelayServerOption {
	return func(s *RelayServer) {
		s.pingInterval = pingInterval
		s.pongTimeout = pongTimeout
		s.writeTimeout = writeTimeout
	}
}

func WithMaxMessageBytes(n int64) RelayServerOption {
	return func(s *RelayServer) { s.maxMessageBytes = n }
}

func WithEnvelopeRateLimit(perSecond float64, burst int) RelayServerOption {
	return func(s *RelayServer) {
		s.envelopeRate = rate.Limit(perSecond)
		s.envelopeBurst = burst
	}
}

func WithMetrics(m RelayMetrics) RelayServerOption {
	return func(s *RelayServer) { s.metrics = m }
}

// RelayServer relays opaque JSON envelopes between exactly one broadcaster and
// N viewers per stream id. It owns no negotiation state: offers, answers and
// candidates pass through verbatim, routed by viewer id.
type RelayServer struct {
	streamService ports.StreamService
	metrics       RelayMetrics

	rooms map[domain.StreamID]*room
	mu    sync.RWMutex

	pingInterval    time.Duration
	pongTimeout     time.Duration
	writeTimeout    time.Duration
	maxMessageBytes int64
	envelopeRate    rate.Limit
	envelopeBurst   int

	logger *zap.SugaredLogger
}

type connRole string

const (
	roleBroadcaster connRole = "broadcaster"
	roleViewer      connRole = "viewer"
)

// room holds the sockets of one stream: the broadcaster slot plus the viewers
// keyed by the id they announced in their viewer_joined envelope.
type room struct {
	broadcaster *relayConn
	viewers     map[domain.ViewerID]*relayConn
}

type relayConn struct {
	ws       *websocket.Conn
	role     connRole
	streamID domain.StreamID
	viewerID domain.ViewerID // set once the viewer announces itself

	send   chan Envelope
	sendMu sync.Mutex
	closed bool
}

// close is idempotent; the guard in enqueue keeps late senders off the
// closed channel.
func (c *relayConn) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// enqueue hands an envelope to the write pump. Envelopes for a closed or
// backed-up connection are dropped.
func (c *relayConn) enqueue(env Envelope) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

func NewRelayServer(streamService ports.StreamService, logger *zap.Logger, opts ...RelayServerOption) *RelayServer {
	s := &RelayServer{
		streamService:   streamService,
		rooms:           make(map[domain.StreamID]*room),
		pingInterval:    30 * time.Second,
		pongTimeout:     60 * time.Second,
		writeTimeout:    10 * time.Second,
		maxMessageBytes: 64 * 1024,
		envelopeRate:    rate.Inf,
		envelopeBurst:   0,
		logger:          logger.Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleWebSocket upgrades the request and serves the socket until it closes.
// The stream id and role come from query parameters; viewer identity comes
// from the viewer's own viewer_joined announcement.
func (s *RelayServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	streamID := domain.StreamID(r.URL.Query().Get("stream_id"))
	role := connRole(r.URL.Query().Get("role"))
	if streamID == "" || (role != roleBroadcaster && role != roleViewer) {
		http.Error(w, "stream_id and role=broadcaster|viewer are required", http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	conn := &relayConn{
		ws:       ws,
		role:     role,
		streamID: streamID,
		send:     make(chan Envelope, 16),
	}

	if role == roleBroadcaster {
		if !s.registerBroadcaster(streamID, conn) {
			s.logger.Warnw("rejecting second broadcaster", "stream_id", streamID)
			s.writeDirect(ws, NewErrorEnvelope(domain.ErrBroadcasterTaken.Error()))
			ws.Close()
			return
		}
		if s.metrics != nil {
			s.metrics.RecordBroadcasterConnected(streamID)
		}
	}

	s.logger.Infow("signaling socket open", "stream_id", streamID, "role", role)

	go s.writePump(conn)
	s.readLoop(r.Context(), conn)
	s.cleanup(conn)
}

func (s *RelayServer) readLoop(ctx context.Context, conn *relayConn) {
	ws := conn.ws
	ws.SetReadLimit(s.maxMessageBytes)
	ws.SetReadDeadline(time.Now().Add(s.pongTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(s.pongTimeout))
		return nil
	})

	limiter := rate.NewLimiter(s.envelopeRate, s.envelopeBurst)
	if s.envelopeRate == rate.Inf {
		limiter = nil
	}

	for {
		var env Envelope
		if err := ws.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Infow("signaling socket read failed",
					"stream_id", conn.streamID, "role", conn.role, "error", err)
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(s.pongTimeout))

		if limiter != nil && !limiter.Allow() {
			conn.enqueue(NewErrorEnvelope("envelope rate limit exceeded"))
			continue
		}

		if err := s.handleEnvelope(ctx, conn, env); err != nil {
			s.logger.Infow("dropping envelope",
				"stream_id", conn.streamID, "role", conn.role, "type", env.Type, "error", err)
			conn.enqueue(NewErrorEnvelope(err.Error()))
		}
	}
}

func (s *RelayServer) writePump(conn *relayConn) {
	ticker := time.NewTicker(s.pingInterval)
	defer func() {
		ticker.Stop()
		conn.ws.Close()
	}()

	for {
		select {
		case env, ok := <-conn.send:
			if !ok {
				conn.ws.SetWriteDeadline(time.Now().Add(s.writeTimeout))
				conn.ws.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			conn.ws.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.ws.WriteJSON(env); err != nil {
				s.logger.Infow("signaling socket write failed",
					"stream_id", conn.streamID, "role", conn.role, "error", err)
				return
			}
		case <-ticker.C:
			conn.ws.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *RelayServer) handleEnvelope(ctx context.Context, conn *relayConn, env Envelope) error {
	ctx, span := tracing.StartSpan(ctx, tracerName, "relay."+string(env.Type),
		attribute.String("stream_id", string(conn.streamID)),
		attribute.String("role", string(conn.role)),
	)
	defer span.End()

	if err := env.Validate(); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	env.StreamID = conn.streamID

	if s.metrics != nil {
		s.metrics.RecordEnvelope(string(env.Type))
	}

	var err error
	switch conn.role {
	case roleViewer:
		err = s.routeFromViewer(ctx, conn, env)
	case roleBroadcaster:
		err = s.routeFromBroadcaster(conn, env)
	}
	tracing.RecordError(span, err)
	return err
}

// routeFromViewer forwards viewer envelopes to the stream's broadcaster.
// A missing broadcaster is not an error for join/leave: the notification is
// simply lost, and the broadcaster learns of live viewers when it connects.
func (s *RelayServer) routeFromViewer(ctx context.Context, conn *relayConn, env Envelope) error {
	switch env.Type {
	case TypeViewerJoined:
		s.registerViewer(conn, env.ViewerID)
		if s.streamService != nil {
			if err := s.streamService.RegisterViewerJoin(ctx, conn.streamID, env.ViewerID); err != nil {
				s.logger.Warnw("viewer join bookkeeping failed",
					"stream_id", conn.streamID, "viewer_id", env.ViewerID, "error", err)
			}
		}
		if s.metrics != nil {
			s.metrics.RecordViewerConnected(conn.streamID)
		}
	case TypeViewerLeft:
		s.unregisterViewer(ctx, conn)
	}

	s.mu.RLock()
	rm := s.rooms[conn.streamID]
	var target *relayConn
	if rm != nil {
		target = rm.broadcaster
	}
	s.mu.RUnlock()

	if target == nil {
		s.logger.Debugw("no broadcaster connected, dropping envelope",
			"stream_id", conn.streamID, "type", env.Type)
		return nil
	}
	target.enqueue(env)
	return nil
}

// routeFromBroadcaster forwards broadcaster envelopes to one viewer (offer,
// ice_candidate) or to every viewer (broadcaster_ready). Envelopes addressed
// to a viewer that is no longer connected are dropped without error.
func (s *RelayServer) routeFromBroadcaster(conn *relayConn, env Envelope) error {
	s.mu.RLock()
	rm := s.rooms[conn.streamID]
	var targets []*relayConn
	if rm != nil {
		if env.Type == TypeBroadcasterReady {
			for _, v := range rm.viewers {
				targets = append(targets, v)
			}
		} else if v, ok := rm.viewers[env.ViewerID]; ok {
			targets = append(targets, v)
		}
	}
	s.mu.RUnlock()

	if len(targets) == 0 && env.Type != TypeBroadcasterReady {
		s.logger.Debugw("target viewer not connected, dropping envelope",
			"stream_id", conn.streamID, "viewer_id", env.ViewerID, "type", env.Type)
		return nil
	}
	for _, t := range targets {
		t.enqueue(env)
	}
	return nil
}

func (s *RelayServer) registerBroadcaster(streamID domain.StreamID, conn *relayConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rm := s.rooms[streamID]
	if rm == nil {
		rm = &room{viewers: make(map[domain.ViewerID]*relayConn)}
		s.rooms[streamID] = rm
	}
	if rm.broadcaster != nil {
		return false
	}
	rm.broadcaster = conn
	return true
}

func (s *RelayServer) registerViewer(conn *relayConn, viewerID domain.ViewerID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rm := s.rooms[conn.streamID]
	if rm == nil {
		rm = &room{viewers: make(map[domain.ViewerID]*relayConn)}
		s.rooms[conn.streamID] = rm
	}
	conn.viewerID = viewerID
	rm.viewers[viewerID] = conn
}

// unregisterViewer removes the viewer's registration and performs the leave
// bookkeeping. Idempotent: a viewer that never announced, or already left, is
// a no-op.
func (s *RelayServer) unregisterViewer(ctx context.Context, conn *relayConn) bool {
	if conn.viewerID == "" {
		return false
	}

	s.mu.Lock()
	rm := s.rooms[conn.streamID]
	removed := false
	if rm != nil {
		if _, ok := rm.viewers[conn.viewerID]; ok {
			delete(rm.viewers, conn.viewerID)
			removed = true
		}
	}
	s.mu.Unlock()

	if !removed {
		return false
	}
	if s.streamService != nil {
		if err := s.streamService.RegisterViewerLeave(ctx, conn.streamID, conn.viewerID); err != nil {
			s.logger.Warnw("viewer leave bookkeeping failed",
				"stream_id", conn.streamID, "viewer_id", conn.viewerID, "error", err)
		}
	}
	if s.metrics != nil {
		s.metrics.RecordViewerDisconnected(conn.streamID)
	}
	return true
}

// cleanup runs when a socket's read loop exits. A vanished viewer is turned
// into a synthetic viewer_left so the broadcaster can release its peer
// connection; a vanished broadcaster frees the slot for a reconnect.
func (s *RelayServer) cleanup(conn *relayConn) {
	switch conn.role {
	case roleViewer:
		viewerID := conn.viewerID
		if s.unregisterViewer(context.Background(), conn) {
			s.mu.RLock()
			rm := s.rooms[conn.streamID]
			var target *relayConn
			if rm != nil {
				target = rm.broadcaster
			}
			s.mu.RUnlock()
			if target != nil {
				target.enqueue(Envelope{
					Type:     TypeViewerLeft,
					StreamID: conn.streamID,
					ViewerID: viewerID,
				})
			}
		}
	case roleBroadcaster:
		s.mu.Lock()
		if rm := s.rooms[conn.streamID]; rm != nil && rm.broadcaster == conn {
			rm.broadcaster = nil
			if len(rm.viewers) == 0 {
				delete(s.rooms, conn.streamID)
			}
		}
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.RecordBroadcasterDisconnected(conn.streamID)
		}
	}

	conn.close()
	s.logger.Infow("signaling socket closed",
		"stream_id", conn.streamID, "role", conn.role, "viewer_id", conn.viewerID)
}

// writeDirect writes one envelope before the write pump exists.
func (s *RelayServer) writeDirect(ws *websocket.Conn, env Envelope) {
	ws.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	ws.WriteJSON(env)
}

// ConnectionCounts returns the number of live sockets per role.
func (s *RelayServer) ConnectionCounts() (broadcasters, viewers int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rm := range s.rooms {
		if rm.broadcaster != nil {
			broadcasters++
		}
		viewers += len(rm.viewers)
	}
	return broadcasters, viewers
}
