package signal

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"livecast/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client is the dialing side of the signaling channel, shared by the
// broadcaster and viewer connection managers. Writes are serialized; reads
// happen on the caller's ReadLoop goroutine. Once the channel closes the
// client stays closed: reconnecting means dialing a fresh client.
type Client struct {
	ws           *websocket.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration
	closed       atomic.Bool
	logger       *zap.SugaredLogger
}

// Dial connects to the relay for the given stream id and role.
func Dial(ctx context.Context, baseURL string, streamID domain.StreamID, role string, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid signal URL: %w", err)
	}
	q := u.Query()
	q.Set("stream_id", string(streamID))
	q.Set("role", role)
	u.RawQuery = q.Encode()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial signaling relay: %w", err)
	}

	return &Client{
		ws:           ws,
		writeTimeout: 10 * time.Second,
		logger:       logger.Sugar(),
	}, nil
}

// Send writes one envelope. Returns domain.ErrChannelClosed after the channel
// has closed; callers in the negotiation path drop on that, they never queue.
func (c *Client) Send(env Envelope) error {
	if c.closed.Load() {
		return domain.ErrChannelClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.ws.WriteJSON(env); err != nil {
		c.closed.Store(true)
		return fmt.Errorf("signaling write failed: %w", err)
	}
	return nil
}

// Open reports whether the channel is still usable.
func (c *Client) Open() bool {
	return !c.closed.Load()
}

// ReadLoop delivers inbound envelopes to handler until the channel closes.
func (c *Client) ReadLoop(handler func(Envelope)) error {
	defer c.closed.Store(true)

	c.ws.SetPingHandler(func(appData string) error {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		return c.ws.WriteMessage(websocket.PongMessage, []byte(appData))
	})

	for {
		var env Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Infow("signaling channel closed", "error", err)
				return err
			}
			return nil
		}
		handler(env)
	}
}

// Close tears the channel down. Safe to call more than once.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.ws.Close()
}
