// Package protocol defines the JSON wire messages exchanged between the
// relay server and game clients. Every frame is a tagged Message; the
// relay interprets only the tag and routing fields and forwards the rest
// untouched.
package protocol

import (
	"encoding/json"

	"github.com/hxu-games/gomoku-relay/internal/engine"
)

// Frame kinds.
const (
	KindJoin         = "join"
	KindWelcome      = "welcome"
	KindReady        = "ready"
	KindPeerJoin     = "peer_join"
	KindPeerLeave    = "peer_leave"
	KindMove         = "move"
	KindState        = "state"
	KindRequestState = "request_state"
	KindUndoRequest  = "undo_request"
	KindRedoRequest  = "redo_request"
	KindUndoReply    = "undo_reply"
	KindRedoReply    = "redo_reply"
	KindReset        = "reset"
	KindError        = "error"
	KindPing         = "ping"
	KindPong         = "pong"
)

// Error messages carried by error frames.
const (
	ErrRoomRequired       = "room_required"
	ErrRoomFull           = "room_full"
	ErrRoomNotFound       = "room_not_found"
	ErrNegotiationPending = "negotiation_pending"
)

// Message is the wire envelope. Fields are populated per kind; Row, Col
// and Accepted are pointers so that zero values survive omitempty.
type Message struct {
	Type string `json:"type"`

	// join / welcome / peer_join / peer_leave
	Room string      `json:"room,omitempty"`
	Name string      `json:"name,omitempty"`
	Role engine.Role `json:"role,omitempty"`
	ID   string      `json:"id,omitempty"`

	// relay sender tag, added by the server
	From string `json:"from,omitempty"`

	// move
	Row *int `json:"row,omitempty"`
	Col *int `json:"col,omitempty"`

	// state
	Snapshot *engine.State `json:"snapshot,omitempty"`

	// undo_reply / redo_reply
	Accepted *bool `json:"accepted,omitempty"`

	// error
	Message string `json:"message,omitempty"`

	// ping / pong, unix milliseconds
	Time int64 `json:"time,omitempty"`
}

func Encode(m Message) []byte {
	data, _ := json.Marshal(m)
	return data
}

func Decode(data []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(data, &m)
	return m, err
}

// MoveMessage builds a move frame.
func MoveMessage(m engine.Move) Message {
	row, col := m.Row, m.Col
	return Message{Type: KindMove, Row: &row, Col: &col, Role: m.Role}
}

// Move extracts the move carried by a move frame; ok is false when the
// frame is missing coordinates.
func (m Message) Move() (engine.Move, bool) {
	if m.Row == nil || m.Col == nil || m.Role == "" {
		return engine.Move{}, false
	}
	return engine.Move{Row: *m.Row, Col: *m.Col, Role: m.Role}, true
}

// ReplyMessage builds an undo_reply or redo_reply frame for the given
// request kind.
func ReplyMessage(requestKind string, accepted bool) Message {
	kind := KindUndoReply
	if requestKind == KindRedoRequest {
		kind = KindRedoReply
	}
	return Message{Type: kind, Accepted: &accepted}
}

// IsNegotiationRequest reports whether the kind opens an undo/redo
// negotiation.
func IsNegotiationRequest(kind string) bool {
	return kind == KindUndoRequest || kind == KindRedoRequest
}

// IsNegotiationReply reports whether the kind resolves an undo/redo
// negotiation.
func IsNegotiationReply(kind string) bool {
	return kind == KindUndoReply || kind == KindRedoReply
}
