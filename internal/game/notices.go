package game

import (
	"time"

	"github.com/hxu-games/gomoku-relay/internal/engine"
)

// Notice is a user-facing session update. The stream is advisory: the
// consumer renders from View, and a dropped notice only delays a redraw.
type Notice interface{ isNotice() }

// Joined reports the role assigned for this connection.
type Joined struct{ Role engine.Role }

// MatchReady fires when both slots are occupied and reconciliation has
// begun.
type MatchReady struct{}

// StateChanged fires after any board or history mutation.
type StateChanged struct{}

type PeerPresent struct{ Name string }

type PeerGone struct{}

// NegotiationResolved reports the outcome of an undo/redo negotiation,
// whether we initiated it or answered it.
type NegotiationResolved struct {
	Kind     string
	Accepted bool
}

type ReconnectScheduled struct{ Delay time.Duration }

type Disconnected struct{}

type ProtocolError struct{ Message string }

func (Joined) isNotice()              {}
func (MatchReady) isNotice()          {}
func (StateChanged) isNotice()        {}
func (PeerPresent) isNotice()         {}
func (PeerGone) isNotice()            {}
func (NegotiationResolved) isNotice() {}
func (ReconnectScheduled) isNotice()  {}
func (Disconnected) isNotice()        {}
func (ProtocolError) isNotice()       {}
