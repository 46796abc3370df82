// Package game drives one participant's view of a networked match: it
// consumes the session controller's event stream, keeps the local rule
// engine in sync with the peer, reconciles state on room completion or
// reconnection, and runs the two-phase undo/redo negotiation.
package game

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hxu-games/gomoku-relay/internal/client"
	"github.com/hxu-games/gomoku-relay/internal/engine"
	"github.com/hxu-games/gomoku-relay/pkg/protocol"
)

var ErrNegotiationPending = errors.New("negotiation already outstanding")
var ErrNoPeer = errors.New("no peer present")
var ErrNotYourTurn = errors.New("not your turn")
var ErrNothingToUndo = errors.New("nothing to undo")
var ErrNothingToRedo = errors.New("nothing to redo")

// Transport is the slice of the session controller the game layer needs.
type Transport interface {
	Send(protocol.Message) error
	Events() <-chan client.Event
}

// DecideFunc answers an inbound undo/redo request. It runs on the
// session loop, which is what guarantees no move frame is processed
// between the decision, the local mutation, and the reply. A nil
// DecideFunc rejects every request, so the peer always gets an answer.
type DecideFunc func(kind string) bool

type Options struct {
	Size         int           // board size, default 15
	SnapshotWait time.Duration // bounded wait before second requests state, default 2s
	Decide       DecideFunc
	Logger       *zap.Logger
}

// pending is the at-most-one outstanding negotiation. initiated marks
// whether we sent the request or received it.
type pending struct {
	kind      string
	initiated bool
}

type Session struct {
	tr      Transport
	log     *zap.Logger
	decide  DecideFunc
	size    int
	wait    time.Duration
	inbox   chan command
	notices chan Notice

	ctx    context.Context
	cancel context.CancelFunc

	// loop-owned state
	state            *engine.State
	role             engine.Role
	paired           bool
	pend             *pending
	awaitingSnapshot bool
	snapshotGen      int
}

func New(tr Transport, opts Options) *Session {
	if opts.Size <= 0 {
		opts.Size = engine.DefaultSize
	}
	if opts.SnapshotWait <= 0 {
		opts.SnapshotWait = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		tr:      tr,
		log:     opts.Logger,
		decide:  opts.Decide,
		size:    opts.Size,
		wait:    opts.SnapshotWait,
		inbox:   make(chan command, 16),
		notices: make(chan Notice, 64),
		ctx:     ctx,
		cancel:  cancel,
		state:   engine.NewState(opts.Size),
	}
	go s.loop()
	return s
}

// Notices returns the stream of user-facing session updates.
func (s *Session) Notices() <-chan Notice { return s.notices }

func (s *Session) Stop() { s.cancel() }

// Place applies our move locally (optimistic: authoritative until told
// otherwise) and relays it to the peer.
func (s *Session) Place(row, col int) error {
	return s.ask(cmdPlace{row: row, col: col})
}

// RequestUndo opens an undo negotiation. History is not touched until
// the peer accepts.
func (s *Session) RequestUndo() error {
	return s.ask(cmdNegotiate{kind: protocol.KindUndoRequest})
}

// RequestRedo opens a redo negotiation.
func (s *Session) RequestRedo() error {
	return s.ask(cmdNegotiate{kind: protocol.KindRedoRequest})
}

// Reset starts a fresh game on both sides.
func (s *Session) Reset() error {
	return s.ask(cmdReset{})
}

// View returns a copy of the current game state.
func (s *Session) View() *engine.State {
	reply := make(chan *engine.State, 1)
	select {
	case s.inbox <- cmdView{reply: reply}:
		return <-reply
	case <-s.ctx.Done():
		return engine.NewState(s.size)
	}
}

type command interface{ isCommand() }

type cmdPlace struct {
	row, col int
	reply    chan error
}
type cmdNegotiate struct {
	kind  string
	reply chan error
}
type cmdReset struct{ reply chan error }
type cmdView struct{ reply chan *engine.State }
type cmdSnapshotTimeout struct{ gen int }

func (cmdPlace) isCommand()           {}
func (cmdNegotiate) isCommand()       {}
func (cmdReset) isCommand()           {}
func (cmdView) isCommand()            {}
func (cmdSnapshotTimeout) isCommand() {}

func (s *Session) ask(cmd command) error {
	reply := make(chan error, 1)
	switch c := cmd.(type) {
	case cmdPlace:
		c.reply = reply
		cmd = c
	case cmdNegotiate:
		c.reply = reply
		cmd = c
	case cmdReset:
		c.reply = reply
		cmd = c
	}
	select {
	case s.inbox <- cmd:
	case <-s.ctx.Done():
		return context.Canceled
	}
	select {
	case err := <-reply:
		return err
	case <-s.ctx.Done():
		return context.Canceled
	}
}

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-s.tr.Events():
			if !ok {
				return
			}
			s.handleEvent(ev)
		case cmd := <-s.inbox:
			s.handleCommand(cmd)
		}
	}
}

func (s *Session) handleCommand(cmd command) {
	switch c := cmd.(type) {
	case cmdPlace:
		c.reply <- s.place(c.row, c.col)
	case cmdNegotiate:
		c.reply <- s.negotiate(c.kind)
	case cmdReset:
		s.state = engine.NewState(s.size)
		s.pend = nil
		err := s.tr.Send(protocol.Message{Type: protocol.KindReset})
		s.notify(StateChanged{})
		c.reply <- err
	case cmdView:
		c.reply <- s.state.Clone()
	case cmdSnapshotTimeout:
		// second's bounded wait for the authoritative snapshot
		if c.gen == s.snapshotGen && s.awaitingSnapshot {
			s.awaitingSnapshot = false
			if err := s.tr.Send(protocol.Message{Type: protocol.KindRequestState}); err != nil {
				s.log.Warn("request_state send failed", zap.Error(err))
			}
		}
	}
}

func (s *Session) place(row, col int) error {
	if s.pend != nil && s.pend.initiated {
		return ErrNegotiationPending
	}
	if s.state.Winner == "" && s.state.Turn != s.role {
		return ErrNotYourTurn
	}
	m, err := s.state.Place(row, col)
	if err != nil {
		return err
	}
	s.notify(StateChanged{})
	if err := s.tr.Send(protocol.MoveMessage(m)); err != nil {
		// local state stays applied; reconciliation corrects divergence
		// after the reconnect this failure leads to
		return err
	}
	return nil
}

func (s *Session) negotiate(kind string) error {
	if s.pend != nil {
		return ErrNegotiationPending
	}
	if kind == protocol.KindUndoRequest && len(s.state.History) == 0 {
		return ErrNothingToUndo
	}
	if kind == protocol.KindRedoRequest && len(s.state.Redone) == 0 {
		return ErrNothingToRedo
	}
	// a request sent into an empty room would never be answered and the
	// pending mark would wedge the session
	if !s.paired {
		return ErrNoPeer
	}
	if err := s.tr.Send(protocol.Message{Type: kind}); err != nil {
		return err
	}
	s.pend = &pending{kind: kind, initiated: true}
	return nil
}

func (s *Session) handleEvent(ev client.Event) {
	switch e := ev.(type) {
	case client.RoleAssigned:
		s.role = e.Role
		s.notify(Joined{Role: e.Role})

	case client.Ready:
		s.paired = true
		s.notify(MatchReady{})
		if s.role == engine.RoleFirst {
			s.sendSnapshot()
			return
		}
		s.awaitingSnapshot = true
		s.snapshotGen++
		gen := s.snapshotGen
		time.AfterFunc(s.wait, func() {
			select {
			case s.inbox <- cmdSnapshotTimeout{gen: gen}:
			case <-s.ctx.Done():
			}
		})

	case client.StateRequested:
		if s.role == engine.RoleFirst {
			s.sendSnapshot()
		}

	case client.SnapshotReceived:
		if e.Snapshot.Size <= 0 || len(e.Snapshot.Board) != e.Snapshot.Size {
			s.log.Warn("malformed snapshot dropped")
			return
		}
		// full overwrite, never a merge
		s.state = e.Snapshot
		s.awaitingSnapshot = false
		s.notify(StateChanged{})

	case client.MoveReceived:
		if err := s.state.Apply(e.Move); err != nil {
			s.log.Warn("inbound move dropped",
				zap.Int("row", e.Move.Row),
				zap.Int("col", e.Move.Col),
				zap.Error(err))
			return
		}
		s.notify(StateChanged{})

	case client.NegotiationRequested:
		s.onNegotiationRequest(e.Kind)

	case client.NegotiationReplied:
		s.onNegotiationReply(e.Kind, e.Accepted)

	case client.ResetReceived:
		s.state = engine.NewState(s.size)
		s.pend = nil
		s.notify(StateChanged{})

	case client.PeerJoined:
		s.notify(PeerPresent{Name: e.Name})

	case client.PeerLeft:
		s.paired = false
		s.resolvePendingAsRejected()
		s.notify(PeerGone{})

	case client.Closed:
		s.paired = false
		s.resolvePendingAsRejected()
		s.notify(Disconnected{})

	case client.Reconnecting:
		s.notify(ReconnectScheduled{Delay: e.Delay})

	case client.ErrorReceived:
		if e.Message == protocol.ErrNegotiationPending && s.pend != nil && s.pend.initiated {
			// the relay bounced our request: the peer won a race we
			// could not see
			kind := s.pend.kind
			s.pend = nil
			s.notify(NegotiationResolved{Kind: kind, Accepted: false})
			return
		}
		s.notify(ProtocolError{Message: e.Message})
	}
}

func (s *Session) onNegotiationRequest(kind string) {
	if s.pend != nil {
		// busy with another negotiation: answer no without asking
		if err := s.tr.Send(protocol.ReplyMessage(kind, false)); err != nil {
			s.log.Warn("negotiation reply send failed", zap.Error(err))
		}
		return
	}
	accepted := s.decide != nil && s.decide(kind)
	if accepted {
		// apply before replying so no move frame can slip between the
		// reply and its effect
		if !s.applyMutation(kind) {
			accepted = false
		}
	}
	if err := s.tr.Send(protocol.ReplyMessage(kind, accepted)); err != nil {
		s.log.Warn("negotiation reply send failed", zap.Error(err))
	}
	s.notify(NegotiationResolved{Kind: kind, Accepted: accepted})
}

func (s *Session) onNegotiationReply(replyKind string, accepted bool) {
	if s.pend == nil || !s.pend.initiated {
		return
	}
	kind := s.pend.kind
	if protocol.ReplyMessage(kind, accepted).Type != replyKind {
		s.log.Warn("reply kind does not match outstanding request",
			zap.String("request", kind), zap.String("reply", replyKind))
		return
	}
	s.pend = nil
	if accepted {
		s.applyMutation(kind)
	}
	s.notify(NegotiationResolved{Kind: kind, Accepted: accepted})
}

func (s *Session) applyMutation(kind string) bool {
	var ok bool
	switch kind {
	case protocol.KindUndoRequest:
		ok = s.state.Undo()
	case protocol.KindRedoRequest:
		ok = s.state.Redo()
	}
	if ok {
		s.notify(StateChanged{})
	}
	return ok
}

func (s *Session) resolvePendingAsRejected() {
	if s.pend == nil {
		return
	}
	kind := s.pend.kind
	initiated := s.pend.initiated
	s.pend = nil
	if initiated {
		s.notify(NegotiationResolved{Kind: kind, Accepted: false})
	}
}

func (s *Session) sendSnapshot() {
	m := protocol.Message{Type: protocol.KindState, Snapshot: s.state}
	if err := s.tr.Send(m); err != nil {
		s.log.Warn("snapshot send failed", zap.Error(err))
	}
}

func (s *Session) notify(n Notice) {
	select {
	case s.notices <- n:
	default:
		// a stalled consumer must not stall the protocol
		s.log.Debug("notice dropped")
	}
}
