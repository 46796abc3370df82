package client

import (
	"time"

	"github.com/hxu-games/gomoku-relay/internal/engine"
)

// Event is a protocol occurrence delivered to the session layer. Events
// are produced by a single goroutine and read from a single channel, so
// delivery order matches wire order for the life of a connection.
type Event interface{ isClientEvent() }

// Opened fires once the transport is up and a join has been sent.
type Opened struct{}

// RoleAssigned carries the welcome response. The role is renegotiated on
// every (re)connect and must not be assumed stable across connections.
type RoleAssigned struct {
	Role   engine.Role
	ConnID string
}

// Ready fires when the room has both slots occupied.
type Ready struct{}

type PeerJoined struct {
	ID   string
	Role engine.Role
	Name string
}

type PeerLeft struct{ ID string }

type MoveReceived struct{ Move engine.Move }

type SnapshotReceived struct{ Snapshot *engine.State }

// StateRequested fires when the peer asks for a full snapshot.
type StateRequested struct{}

// NegotiationRequested carries an inbound undo_request or redo_request.
type NegotiationRequested struct{ Kind string }

// NegotiationReplied carries an inbound undo_reply or redo_reply.
type NegotiationReplied struct {
	Kind     string
	Accepted bool
}

type ResetReceived struct{}

// ErrorReceived surfaces an error frame from the relay.
type ErrorReceived struct{ Message string }

// Reconnecting fires when an abnormal close schedules a retry.
type Reconnecting struct{ Delay time.Duration }

// Closed fires when a connection instance ends.
type Closed struct{ Err error }

func (Opened) isClientEvent()               {}
func (RoleAssigned) isClientEvent()         {}
func (Ready) isClientEvent()                {}
func (PeerJoined) isClientEvent()           {}
func (PeerLeft) isClientEvent()             {}
func (MoveReceived) isClientEvent()         {}
func (SnapshotReceived) isClientEvent()     {}
func (StateRequested) isClientEvent()       {}
func (NegotiationRequested) isClientEvent() {}
func (NegotiationReplied) isClientEvent()   {}
func (ResetReceived) isClientEvent()        {}
func (ErrorReceived) isClientEvent()        {}
func (Reconnecting) isClientEvent()         {}
func (Closed) isClientEvent()               {}
