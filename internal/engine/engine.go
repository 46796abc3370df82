package engine

import "errors"

var ErrGameOver = errors.New("game already over")
var ErrOutOfBounds = errors.New("position out of bounds")
var ErrOccupied = errors.New("position occupied")
var ErrTurnMismatch = errors.New("move role does not match current turn")

// Role identifies a participant within a room. The first occupant always
// plays first and is the authoritative side during state reconciliation.
type Role string

const (
	RoleEmpty  Role = ""
	RoleFirst  Role = "first"
	RoleSecond Role = "second"
)

const DefaultSize = 15

// Other returns the opposing role.
func (r Role) Other() Role {
	if r == RoleFirst {
		return RoleSecond
	}
	return RoleFirst
}

type Move struct {
	Row  int  `json:"row"`
	Col  int  `json:"col"`
	Role Role `json:"role"`
}

type Point struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Line marks the endpoints of a winning five-in-a-row run.
type Line struct {
	Start Point `json:"start"`
	End   Point `json:"end"`
}

// State is a complete, self-sufficient game state. History is the
// authoritative append-only move log; Board is a projection of it kept
// alongside so a snapshot is directly renderable. Redone holds moves
// taken back by undo, available to redo until the next fresh move.
type State struct {
	Size    int      `json:"size"`
	Board   [][]Role `json:"board"`
	Turn    Role     `json:"turn"`
	History []Move   `json:"history"`
	Redone  []Move   `json:"redo"`
	Winner  Role     `json:"winner,omitempty"`
	WinLine *Line    `json:"winLine,omitempty"`
}

func NewState(size int) *State {
	if size <= 0 {
		size = DefaultSize
	}
	board := make([][]Role, size)
	for i := range board {
		board[i] = make([]Role, size)
	}
	return &State{
		Size:    size,
		Board:   board,
		Turn:    RoleFirst,
		History: []Move{},
		Redone:  []Move{},
	}
}

func (s *State) inBounds(row, col int) bool {
	return row >= 0 && row < s.Size && col >= 0 && col < s.Size
}

// Place puts the current player's stone at (row, col). A fresh move
// invalidates the redo stack. The turn only advances when the move does
// not end the game.
func (s *State) Place(row, col int) (Move, error) {
	if s.Winner != RoleEmpty {
		return Move{}, ErrGameOver
	}
	if !s.inBounds(row, col) {
		return Move{}, ErrOutOfBounds
	}
	if s.Board[row][col] != RoleEmpty {
		return Move{}, ErrOccupied
	}

	m := Move{Row: row, Col: col, Role: s.Turn}
	s.Board[row][col] = m.Role
	s.History = append(s.History, m)
	s.Redone = s.Redone[:0]

	if line := winLine(s.Board, row, col, m.Role); line != nil {
		s.Winner = m.Role
		s.WinLine = line
	} else {
		s.Turn = m.Role.Other()
	}
	return m, nil
}

// Apply replays a move received from the peer. The turn check is a
// defensive consistency guard: a mismatch means the two sides have
// diverged and the move must be dropped, never reordered.
func (s *State) Apply(m Move) error {
	if s.Turn != m.Role {
		return ErrTurnMismatch
	}
	_, err := s.Place(m.Row, m.Col)
	return err
}

// Undo takes back the most recent move. The turn returns to the player
// whose move was removed. Reports false when there is nothing to undo.
func (s *State) Undo() bool {
	if len(s.History) == 0 {
		return false
	}
	m := s.History[len(s.History)-1]
	s.History = s.History[:len(s.History)-1]
	s.Board[m.Row][m.Col] = RoleEmpty
	s.Redone = append(s.Redone, m)
	s.Winner = RoleEmpty
	s.WinLine = nil
	s.Turn = m.Role
	return true
}

// Redo replays the most recently undone move.
func (s *State) Redo() bool {
	if len(s.Redone) == 0 {
		return false
	}
	m := s.Redone[len(s.Redone)-1]
	if s.Board[m.Row][m.Col] != RoleEmpty {
		return false
	}
	s.Redone = s.Redone[:len(s.Redone)-1]
	s.Board[m.Row][m.Col] = m.Role
	s.History = append(s.History, m)
	if line := winLine(s.Board, m.Row, m.Col, m.Role); line != nil {
		s.Winner = m.Role
		s.WinLine = line
	} else {
		s.Turn = m.Role.Other()
	}
	return true
}

// Clone returns an independent deep copy of the state.
func (s *State) Clone() *State {
	c := &State{
		Size:    s.Size,
		Board:   make([][]Role, len(s.Board)),
		Turn:    s.Turn,
		History: append([]Move{}, s.History...),
		Redone:  append([]Move{}, s.Redone...),
		Winner:  s.Winner,
	}
	for i, row := range s.Board {
		c.Board[i] = append([]Role{}, row...)
	}
	if s.WinLine != nil {
		line := *s.WinLine
		c.WinLine = &line
	}
	return c
}

var directions = [4][2]int{{1, 0}, {0, 1}, {1, 1}, {1, -1}}

func winLine(board [][]Role, row, col int, role Role) *Line {
	n := len(board)
	for _, d := range directions {
		count := 1
		minR, minC, maxR, maxC := row, col, row, col

		r, c := row+d[0], col+d[1]
		for r >= 0 && r < n && c >= 0 && c < n && board[r][c] == role {
			count++
			maxR, maxC = r, c
			r += d[0]
			c += d[1]
		}
		r, c = row-d[0], col-d[1]
		for r >= 0 && r < n && c >= 0 && c < n && board[r][c] == role {
			count++
			minR, minC = r, c
			r -= d[0]
			c -= d[1]
		}
		if count >= 5 {
			return &Line{Start: Point{minR, minC}, End: Point{maxR, maxC}}
		}
	}
	return nil
}

// CheckWin reports whether the stone at (row, col) completes five in a row.
func CheckWin(board [][]Role, row, col int, role Role) bool {
	return winLine(board, row, col, role) != nil
}
