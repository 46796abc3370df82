// Package client implements the session controller for one participant:
// connecting and joining a room, heartbeat liveness, reconnection with
// exponential backoff, and a typed ordered event stream for the game
// layer.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hxu-games/gomoku-relay/internal/engine"
	"github.com/hxu-games/gomoku-relay/pkg/protocol"
)

var ErrClosed = errors.New("client closed")
var ErrAlreadyConnected = errors.New("already connected")
var ErrNotConnected = errors.New("not connected")
var ErrConnectFailed = errors.New("connect failed")
var ErrConnectTimeout = errors.New("connect timed out")
var ErrJoinRejected = errors.New("join rejected")

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusWaiting      Status = "waiting"
	StatusActive       Status = "active"
)

type Options struct {
	URL           string
	Room          string
	Name          string
	AutoReconnect bool

	ConnectTimeout    time.Duration // default 5s
	HeartbeatInterval time.Duration // default 10s
	BackoffBase       time.Duration // default 1s
	BackoffMax        time.Duration // default 10s

	Logger *zap.Logger
}

func (o *Options) fillDefaults() {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 10 * time.Second
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

type Client struct {
	opts   Options
	log    *zap.Logger
	events chan Event

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	ws             *websocket.Conn
	status         Status
	role           engine.Role
	connID         string
	closed         bool
	backoff        time.Duration
	reconnectTimer *time.Timer
	awaitWelcome   chan protocol.Message
	welcomed       bool

	latencyNanos atomic.Int64
}

func New(opts Options) *Client {
	opts.fillDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		opts:    opts,
		log:     opts.Logger,
		events:  make(chan Event, 64),
		ctx:     ctx,
		cancel:  cancel,
		status:  StatusDisconnected,
		backoff: opts.BackoffBase,
	}
}

// Events returns the ordered event stream. The caller must keep reading
// it for the life of the client.
func (c *Client) Events() <-chan Event { return c.events }

func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Role returns the role assigned by the most recent welcome.
func (c *Client) Role() engine.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// Latency returns the round-trip time measured by the last heartbeat.
func (c *Client) Latency() time.Duration {
	return time.Duration(c.latencyNanos.Load())
}

// Connect dials the relay, joins the configured room and suspends until
// a role is assigned or the attempt times out. A failed attempt leaves
// the controller usable for another call.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.status != StatusDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.status = StatusConnecting
	c.mu.Unlock()

	err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		if c.status == StatusConnecting {
			c.status = StatusDisconnected
		}
		c.mu.Unlock()
	}
	return err
}

func (c *Client) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()
	ws, _, err := websocket.Dial(dialCtx, c.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	welcome := make(chan protocol.Message, 1)
	c.mu.Lock()
	c.ws = ws
	c.awaitWelcome = welcome
	c.welcomed = false
	c.status = StatusConnected
	c.mu.Unlock()

	join := protocol.Message{Type: protocol.KindJoin, Room: c.opts.Room, Name: c.opts.Name}
	if err := c.write(ctx, ws, join); err != nil {
		c.teardown(ws)
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	go c.run(ws)

	select {
	case m := <-welcome:
		if m.Type == protocol.KindError {
			c.teardown(ws)
			return fmt.Errorf("%w: %s", ErrJoinRejected, m.Message)
		}
		// the read loop already recorded the welcome and emitted
		// Opened/RoleAssigned before signalling here, so a ready frame
		// right behind the welcome can never outrun the transition
		return nil

	case <-time.After(c.opts.ConnectTimeout):
		c.teardown(ws)
		return ErrConnectTimeout

	case <-ctx.Done():
		c.teardown(ws)
		return ctx.Err()
	}
}

// teardown closes a connection that never completed its handshake.
func (c *Client) teardown(ws *websocket.Conn) {
	c.mu.Lock()
	if c.ws == ws {
		c.ws = nil
		c.awaitWelcome = nil
		c.status = StatusDisconnected
	}
	c.mu.Unlock()
	ws.Close(websocket.StatusNormalClosure, "handshake abandoned")
}

// Send transmits one frame on the current connection.
func (c *Client) Send(m protocol.Message) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}
	return c.write(c.ctx, ws, m)
}

func (c *Client) write(ctx context.Context, ws *websocket.Conn, m protocol.Message) error {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, protocol.Encode(m))
}

// Close disconnects and cancels any pending reconnect. Outstanding
// negotiations become moot; the session layer treats the Closed event as
// an implicit rejection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	ws := c.ws
	c.mu.Unlock()

	c.cancel()
	if ws != nil {
		ws.Close(websocket.StatusNormalClosure, "bye")
	}
	return nil
}

// run owns one connection instance: the read loop and the heartbeat.
func (c *Client) run(ws *websocket.Conn) {
	g, ctx := errgroup.WithContext(c.ctx)
	g.Go(func() error { return c.readLoop(ctx, ws) })
	g.Go(func() error { return c.heartbeat(ctx, ws) })
	err := g.Wait()

	c.mu.Lock()
	if c.ws == ws {
		c.ws = nil
		c.status = StatusDisconnected
	}
	closed := c.closed
	welcomed := c.welcomed
	c.welcomed = false
	c.mu.Unlock()

	// connections that never completed the handshake report through
	// Connect's error return instead
	if closed || !welcomed {
		return
	}
	c.emit(Closed{Err: err})

	// Normal closure is a deliberate goodbye; anything else on an
	// established session triggers backoff reconnection.
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return
	}
	if c.opts.AutoReconnect {
		c.scheduleReconnect()
	}
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.closed || c.reconnectTimer != nil {
		c.mu.Unlock()
		return
	}
	delay := c.backoff
	if delay > c.opts.BackoffMax {
		delay = c.opts.BackoffMax
	}
	c.backoff = min(c.backoff*2, c.opts.BackoffMax)
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		c.mu.Unlock()
		if err := c.Connect(c.ctx); err != nil {
			c.log.Warn("reconnect attempt failed", zap.Error(err))
			c.scheduleReconnect()
		}
	})
	c.mu.Unlock()
	c.log.Info("reconnecting", zap.Duration("delay", delay))
	c.emit(Reconnecting{Delay: delay})
}

func (c *Client) readLoop(ctx context.Context, ws *websocket.Conn) error {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return err
		}
		m, err := protocol.Decode(data)
		if err != nil || m.Type == "" {
			c.log.Debug("malformed frame dropped")
			continue
		}
		c.handle(m)
	}
}

func (c *Client) heartbeat(ctx context.Context, ws *websocket.Conn) error {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			ping := protocol.Message{Type: protocol.KindPing, Time: time.Now().UnixMilli()}
			if err := c.write(ctx, ws, ping); err != nil {
				return err
			}
		}
	}
}

func (c *Client) handle(m protocol.Message) {
	// welcome and error frames belong to the handshake while one is
	// pending. The session state is recorded here, on the read loop,
	// before Connect is signalled: frames that follow the welcome then
	// observe a fully established session.
	c.mu.Lock()
	if ch := c.awaitWelcome; ch != nil &&
		(m.Type == protocol.KindWelcome || m.Type == protocol.KindError) {
		c.awaitWelcome = nil
		if m.Type == protocol.KindWelcome {
			c.status = StatusWaiting
			c.role = m.Role
			c.connID = m.ID
			c.welcomed = true
			c.backoff = c.opts.BackoffBase
			c.mu.Unlock()
			c.log.Info("joined room",
				zap.String("room", c.opts.Room),
				zap.String("role", string(m.Role)),
				zap.String("conn", m.ID))
			c.emit(Opened{})
			c.emit(RoleAssigned{Role: m.Role, ConnID: m.ID})
			ch <- m
			return
		}
		c.mu.Unlock()
		ch <- m
		return
	}
	c.mu.Unlock()

	switch m.Type {
	case protocol.KindReady:
		c.setStatus(StatusActive)
		c.emit(Ready{})
	case protocol.KindPeerJoin:
		c.emit(PeerJoined{ID: m.ID, Role: m.Role, Name: m.Name})
	case protocol.KindPeerLeave:
		c.setStatus(StatusWaiting)
		c.emit(PeerLeft{ID: m.ID})
	case protocol.KindMove:
		if mv, ok := m.Move(); ok {
			c.emit(MoveReceived{Move: mv})
		}
	case protocol.KindState:
		if m.Snapshot != nil {
			c.emit(SnapshotReceived{Snapshot: m.Snapshot})
		}
	case protocol.KindRequestState:
		c.emit(StateRequested{})
	case protocol.KindUndoRequest, protocol.KindRedoRequest:
		c.emit(NegotiationRequested{Kind: m.Type})
	case protocol.KindUndoReply, protocol.KindRedoReply:
		accepted := m.Accepted != nil && *m.Accepted
		c.emit(NegotiationReplied{Kind: m.Type, Accepted: accepted})
	case protocol.KindReset:
		c.emit(ResetReceived{})
	case protocol.KindPong:
		if m.Time > 0 {
			c.latencyNanos.Store(int64(time.Duration(time.Now().UnixMilli()-m.Time) * time.Millisecond))
		}
	case protocol.KindError:
		c.emit(ErrorReceived{Message: m.Message})
	}
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}
