// Package registry owns the room→slot map. A single goroutine processes
// all mutations through a message inbox, so no lock is ever held and no
// critical section touches the network: sends to peers go through
// buffered outbox channels owned by the gateway's writer goroutines.
package registry

import (
	"context"

	"go.uber.org/zap"

	"github.com/hxu-games/gomoku-relay/internal/engine"
	"github.com/hxu-games/gomoku-relay/pkg/protocol"
)

type Msg interface{ isRegistryMsg() }

// Join places a connection into a room, creating the room if needed.
// The outcome is delivered on the connection's outbox as a welcome or
// error frame. Out stays owned by the caller; the registry never closes
// it. Drop, when set, is invoked to tear the connection down when its
// outbox stops draining or the registry shuts down, and must be safe to
// call more than once.
type Join struct {
	Room string
	ID   string
	Name string
	Out  chan []byte
	Drop func()
}

type Leave struct{ ID string }

// Relay forwards a from-tagged frame to the sender's room peer. Kind is
// the already-decoded frame type, used only for the negotiation guard.
type Relay struct {
	ID    string
	Kind  string
	Frame []byte
}

// Lookup reports room existence and occupancy; used by the HTTP API for
// code-collision retries and room status checks.
type Lookup struct {
	Code  string
	Reply chan RoomInfo
}

type Shutdown struct{}

func (Join) isRegistryMsg()     {}
func (Leave) isRegistryMsg()    {}
func (Relay) isRegistryMsg()    {}
func (Lookup) isRegistryMsg()   {}
func (Shutdown) isRegistryMsg() {}

type RoomInfo struct {
	Exists    bool
	Occupancy int
}

type conn struct {
	id   string
	name string
	out  chan []byte
	drop func()
	room *room
	role engine.Role
}

// negotiation tracks the single outstanding undo/redo request allowed
// per room. Guarding this server-side keeps two racing initiators from
// interleaving history rewrites.
type negotiation struct {
	kind      string
	initiator string
}

type room struct {
	code    string
	first   *conn
	second  *conn
	pending *negotiation
}

func (r *room) peerOf(c *conn) *conn {
	if r.first == c {
		return r.second
	}
	return r.first
}

func (r *room) occupancy() int {
	n := 0
	if r.first != nil {
		n++
	}
	if r.second != nil {
		n++
	}
	return n
}

type Registry struct {
	inbox  chan Msg
	rooms  map[string]*room
	conns  map[string]*conn
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New(parent context.Context, log *zap.Logger) *Registry {
	ctx, cancel := context.WithCancel(parent)
	reg := &Registry{
		inbox:  make(chan Msg, 64),
		rooms:  make(map[string]*room),
		conns:  make(map[string]*conn),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	go reg.loop()
	return reg
}

func (reg *Registry) Inbox() chan<- Msg { return reg.inbox }

func (reg *Registry) loop() {
	for {
		select {
		case <-reg.ctx.Done():
			reg.shutdown()
			return

		case m := <-reg.inbox:
			switch msg := m.(type) {
			case Join:
				reg.join(msg)
			case Leave:
				reg.leave(msg.ID)
			case Relay:
				reg.relay(msg)
			case Lookup:
				r := reg.rooms[msg.Code]
				if r == nil {
					msg.Reply <- RoomInfo{}
				} else {
					msg.Reply <- RoomInfo{Exists: true, Occupancy: r.occupancy()}
				}
			case Shutdown:
				reg.shutdown()
				return
			}
		}
	}
}

func (reg *Registry) join(msg Join) {
	if msg.Room == "" {
		reg.sendTo(msg.Out, protocol.Message{Type: protocol.KindError, Message: protocol.ErrRoomRequired})
		return
	}

	// a rejoin from a connection that is already seated moves it
	if existing := reg.conns[msg.ID]; existing != nil {
		reg.leave(msg.ID)
	}

	r := reg.rooms[msg.Room]
	if r == nil {
		r = &room{code: msg.Room}
		reg.rooms[msg.Room] = r
	}

	var role engine.Role
	switch {
	case r.first == nil:
		role = engine.RoleFirst
	case r.second == nil:
		role = engine.RoleSecond
	default:
		reg.sendTo(msg.Out, protocol.Message{Type: protocol.KindError, Message: protocol.ErrRoomFull})
		return
	}

	c := &conn{id: msg.ID, name: msg.Name, out: msg.Out, drop: msg.Drop, room: r, role: role}
	if role == engine.RoleFirst {
		r.first = c
	} else {
		r.second = c
	}
	reg.conns[c.id] = c

	reg.log.Info("joined room",
		zap.String("room", r.code),
		zap.String("conn", c.id),
		zap.String("role", string(role)))

	reg.send(c, protocol.Message{Type: protocol.KindWelcome, Role: role, ID: c.id})
	if peer := r.peerOf(c); peer != nil {
		reg.send(peer, protocol.Message{Type: protocol.KindPeerJoin, ID: c.id, Role: role, Name: c.name})
	}
	if r.occupancy() == 2 {
		ready := protocol.Encode(protocol.Message{Type: protocol.KindReady})
		reg.sendRaw(r.first, ready)
		reg.sendRaw(r.second, ready)
	}
}

// leave vacates the departing connection's slot. When the first (host)
// departs the whole room goes with it and the remaining peer is unseated;
// when the second departs the room reverts to waiting so a replacement
// can join. The asymmetry is host-owns-room semantics.
func (reg *Registry) leave(id string) {
	c := reg.conns[id]
	if c == nil {
		return
	}
	r := c.room
	delete(reg.conns, id)
	r.pending = nil

	peer := r.peerOf(c)
	if peer != nil {
		reg.send(peer, protocol.Message{Type: protocol.KindPeerLeave, ID: c.id})
	}

	if c.role == engine.RoleFirst {
		r.first = nil
		if peer != nil {
			peer.room = nil
			delete(reg.conns, peer.id)
			r.second = nil
		}
		delete(reg.rooms, r.code)
		reg.log.Info("room closed", zap.String("room", r.code))
		return
	}

	r.second = nil
	if r.occupancy() == 0 {
		delete(reg.rooms, r.code)
	}
}

func (reg *Registry) relay(msg Relay) {
	c := reg.conns[msg.ID]
	if c == nil || c.room == nil {
		return
	}
	r := c.room
	peer := r.peerOf(c)

	if protocol.IsNegotiationRequest(msg.Kind) {
		if r.pending != nil {
			reg.send(c, protocol.Message{Type: protocol.KindError, Message: protocol.ErrNegotiationPending})
			return
		}
		// only an actually relayed request is recorded: a request into
		// an empty slot has no responder and must not wedge the room
		if peer == nil {
			return
		}
		r.pending = &negotiation{kind: msg.Kind, initiator: c.id}
	}
	if protocol.IsNegotiationReply(msg.Kind) && r.pending != nil && r.pending.initiator != c.id {
		r.pending = nil
	}

	if peer == nil {
		return
	}
	reg.sendRaw(peer, msg.Frame)
}

func (reg *Registry) send(c *conn, m protocol.Message) {
	reg.sendRaw(c, protocol.Encode(m))
}

// sendRaw never blocks: a peer whose outbox is full is dropped so the
// other slot keeps receiving. A nil conn means the slot was vacated
// earlier in the same dispatch. The outbox itself is never closed here;
// the gateway may still be forwarding frames for this connection, so
// the drop callback does the teardown on the owning side.
func (reg *Registry) sendRaw(c *conn, frame []byte) {
	if c == nil {
		return
	}
	select {
	case c.out <- frame:
	default:
		reg.log.Warn("dropping slow connection", zap.String("conn", c.id))
		if c.drop != nil {
			c.drop()
		}
		reg.leave(c.id)
	}
}

func (reg *Registry) sendTo(out chan []byte, m protocol.Message) {
	select {
	case out <- protocol.Encode(m):
	default:
	}
}

func (reg *Registry) shutdown() {
	for id, c := range reg.conns {
		if c.drop != nil {
			c.drop()
		}
		delete(reg.conns, id)
	}
	clear(reg.rooms)
	reg.cancel()
}
