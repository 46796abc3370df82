package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hxu-games/gomoku-relay/internal/engine"
	"github.com/hxu-games/gomoku-relay/internal/httpapi"
	"github.com/hxu-games/gomoku-relay/internal/registry"
	"github.com/hxu-games/gomoku-relay/pkg/protocol"
)

func newRelay(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	reg := registry.New(ctx, zap.NewNop())
	ts := httptest.NewServer(httpapi.SetupRoutes(reg, zap.NewNop()))
	t.Cleanup(ts.Close)
	return ts, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func newClient(t *testing.T, url, room, name string, tweak func(*Options)) *Client {
	t.Helper()
	o := Options{URL: url, Room: room, Name: name}
	if tweak != nil {
		tweak(&o)
	}
	c := New(o)
	t.Cleanup(func() { c.Close() })
	return c
}

func connect(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
}

func recvEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// waitEvent discards events until one of the wanted type arrives.
func waitEvent[T Event](t *testing.T, c *Client) T {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if typed, ok := ev.(T); ok {
				return typed
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func TestConnectAssignsFirstRole(t *testing.T) {
	_, url := newRelay(t)
	c := newClient(t, url, "SOLO01", "alice", nil)
	connect(t, c)

	require.IsType(t, Opened{}, recvEvent(t, c))
	ra, ok := recvEvent(t, c).(RoleAssigned)
	require.True(t, ok)
	require.Equal(t, engine.RoleFirst, ra.Role)
	require.NotEmpty(t, ra.ConnID)
	require.Equal(t, StatusWaiting, c.Status())
	require.Equal(t, engine.RoleFirst, c.Role())
}

func TestSecondJoinActivatesBothSides(t *testing.T) {
	_, url := newRelay(t)
	a := newClient(t, url, "PAIR01", "alice", nil)
	connect(t, a)
	b := newClient(t, url, "PAIR01", "bob", nil)
	connect(t, b)

	pj := waitEvent[PeerJoined](t, a)
	require.Equal(t, "bob", pj.Name)
	require.Equal(t, engine.RoleSecond, pj.Role)
	waitEvent[Ready](t, a)
	waitEvent[Ready](t, b)

	require.Equal(t, engine.RoleSecond, b.Role())
	require.Equal(t, StatusActive, a.Status())
	require.Equal(t, StatusActive, b.Status())
}

func TestThirdJoinRejected(t *testing.T) {
	_, url := newRelay(t)
	a := newClient(t, url, "FULL01", "alice", nil)
	connect(t, a)
	b := newClient(t, url, "FULL01", "bob", nil)
	connect(t, b)

	c := newClient(t, url, "FULL01", "carol", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.Connect(ctx)
	require.ErrorIs(t, err, ErrJoinRejected)
	require.Equal(t, StatusDisconnected, c.Status())
}

func TestMoveRelayedToPeer(t *testing.T) {
	_, url := newRelay(t)
	a := newClient(t, url, "MOVE01", "alice", nil)
	connect(t, a)
	b := newClient(t, url, "MOVE01", "bob", nil)
	connect(t, b)
	waitEvent[Ready](t, a)
	waitEvent[Ready](t, b)

	mv := engine.Move{Row: 7, Col: 7, Role: engine.RoleFirst}
	require.NoError(t, a.Send(protocol.MoveMessage(mv)))

	got := waitEvent[MoveReceived](t, b)
	require.Equal(t, mv, got.Move)
}

func TestSendBeforeConnect(t *testing.T) {
	c := New(Options{URL: "ws://127.0.0.1:1/ws", Room: "X"})
	defer c.Close()
	err := c.Send(protocol.Message{Type: protocol.KindReset})
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestConnectFailedWhenUnreachable(t *testing.T) {
	c := newClient(t, "ws://127.0.0.1:1/ws", "DOWN01", "alice", func(o *Options) {
		o.ConnectTimeout = time.Second
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.Connect(ctx)
	require.ErrorIs(t, err, ErrConnectFailed)
	require.Equal(t, StatusDisconnected, c.Status())
}

func TestConnectTimeoutOnSilentServer(t *testing.T) {
	// a server that upgrades but never answers the join
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)

	c := newClient(t, "ws"+strings.TrimPrefix(ts.URL, "http"), "SLOW01", "alice", func(o *Options) {
		o.ConnectTimeout = 200 * time.Millisecond
	})
	err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrConnectTimeout)
	require.Equal(t, StatusDisconnected, c.Status())
}

func TestStatusActiveAfterImmediateReady(t *testing.T) {
	// a relay that fills the room instantly: welcome and ready land in
	// the same read window
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		if _, _, err := conn.Read(ctx); err != nil { // join
			return
		}
		welcome := protocol.Encode(protocol.Message{Type: protocol.KindWelcome, Role: engine.RoleSecond, ID: "c1"})
		ready := protocol.Encode(protocol.Message{Type: protocol.KindReady})
		if err := conn.Write(ctx, websocket.MessageText, welcome); err != nil {
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, ready); err != nil {
			return
		}
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)

	c := newClient(t, "ws"+strings.TrimPrefix(ts.URL, "http"), "FAST01", "bob", nil)
	connect(t, c)
	waitEvent[Ready](t, c)
	// ready is processed after the welcome on the same goroutine, so by
	// the time the event is out the status must have settled
	require.Equal(t, StatusActive, c.Status())
	require.Equal(t, engine.RoleSecond, c.Role())
}

func TestHeartbeatKeepsSessionQuiet(t *testing.T) {
	_, url := newRelay(t)
	c := newClient(t, url, "BEAT01", "alice", func(o *Options) {
		o.HeartbeatInterval = 20 * time.Millisecond
	})
	connect(t, c)
	waitEvent[RoleAssigned](t, c)

	// several heartbeat rounds must pass without the connection dropping
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, StatusWaiting, c.Status())
	select {
	case ev := <-c.Events():
		t.Fatalf("unexpected event %T", ev)
	default:
	}
}

func TestAutoReconnectAfterDroppedConnection(t *testing.T) {
	ts, url := newRelay(t)
	c := newClient(t, url, "RETRY1", "alice", func(o *Options) {
		o.AutoReconnect = true
		o.BackoffBase = 200 * time.Millisecond
	})
	connect(t, c)
	waitEvent[RoleAssigned](t, c)

	ts.CloseClientConnections()

	waitEvent[Closed](t, c)
	rc := waitEvent[Reconnecting](t, c)
	require.Equal(t, 200*time.Millisecond, rc.Delay)
	waitEvent[Opened](t, c)
	ra := waitEvent[RoleAssigned](t, c)
	require.Equal(t, engine.RoleFirst, ra.Role)
	require.Equal(t, StatusWaiting, c.Status())
}
