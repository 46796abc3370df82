package engine

import (
	"errors"
	"testing"
)

func TestPlaceRejectsIllegalPositions(t *testing.T) {
	cases := []struct {
		name    string
		setup   func(s *State)
		row     int
		col     int
		wantErr error
	}{
		{
			name:    "out of bounds negative",
			row:     -1,
			col:     3,
			wantErr: ErrOutOfBounds,
		},
		{
			name:    "out of bounds past edge",
			row:     15,
			col:     0,
			wantErr: ErrOutOfBounds,
		},
		{
			name: "occupied",
			setup: func(s *State) {
				if _, err := s.Place(7, 7); err != nil {
					t.Fatalf("setup place: %v", err)
				}
			},
			row:     7,
			col:     7,
			wantErr: ErrOccupied,
		},
		{
			name: "game over",
			setup: func(s *State) {
				// first wins on column 0 while second scatters on row 14
				for i := 0; i < 5; i++ {
					if _, err := s.Place(i, 0); err != nil {
						t.Fatalf("setup place: %v", err)
					}
					if s.Winner != "" {
						return
					}
					if _, err := s.Place(14, i); err != nil {
						t.Fatalf("setup place: %v", err)
					}
				}
			},
			row:     10,
			col:     10,
			wantErr: ErrGameOver,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewState(15)
			if tc.setup != nil {
				tc.setup(s)
			}
			if _, err := s.Place(tc.row, tc.col); !errors.Is(err, tc.wantErr) {
				t.Fatalf("Place(%d,%d): want %v, got %v", tc.row, tc.col, tc.wantErr, err)
			}
		})
	}
}

func TestPlaceAlternatesTurns(t *testing.T) {
	s := NewState(15)
	m1, err := s.Place(7, 7)
	if err != nil {
		t.Fatalf("first place: %v", err)
	}
	if m1.Role != RoleFirst {
		t.Fatalf("first move role: want %q, got %q", RoleFirst, m1.Role)
	}
	m2, err := s.Place(7, 8)
	if err != nil {
		t.Fatalf("second place: %v", err)
	}
	if m2.Role != RoleSecond {
		t.Fatalf("second move role: want %q, got %q", RoleSecond, m2.Role)
	}
	if s.Turn != RoleFirst {
		t.Fatalf("turn after two moves: want %q, got %q", RoleFirst, s.Turn)
	}
	if len(s.History) != 2 {
		t.Fatalf("history length: want 2, got %d", len(s.History))
	}
}

func TestWinDetection(t *testing.T) {
	cases := []struct {
		name  string
		moves [][2]int // alternating first/second
	}{
		{
			name:  "horizontal",
			moves: [][2]int{{7, 3}, {0, 0}, {7, 4}, {0, 1}, {7, 5}, {0, 2}, {7, 6}, {0, 3}, {7, 7}},
		},
		{
			name:  "vertical",
			moves: [][2]int{{3, 7}, {0, 0}, {4, 7}, {0, 1}, {5, 7}, {0, 2}, {6, 7}, {0, 3}, {7, 7}},
		},
		{
			name:  "diagonal",
			moves: [][2]int{{3, 3}, {0, 0}, {4, 4}, {0, 1}, {5, 5}, {0, 2}, {6, 6}, {0, 3}, {7, 7}},
		},
		{
			name:  "anti-diagonal",
			moves: [][2]int{{3, 11}, {0, 0}, {4, 10}, {0, 1}, {5, 9}, {0, 2}, {6, 8}, {0, 3}, {7, 7}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewState(15)
			for _, mv := range tc.moves {
				if _, err := s.Place(mv[0], mv[1]); err != nil {
					t.Fatalf("place (%d,%d): %v", mv[0], mv[1], err)
				}
			}
			if s.Winner != RoleFirst {
				t.Fatalf("winner: want %q, got %q", RoleFirst, s.Winner)
			}
			if s.WinLine == nil {
				t.Fatalf("expected win line endpoints")
			}
		})
	}
}

func TestWinInMiddleOfRun(t *testing.T) {
	// first fills (7,3),(7,4),(7,6),(7,7) then closes the gap at (7,5)
	s := NewState(15)
	seq := [][2]int{{7, 3}, {0, 0}, {7, 4}, {0, 1}, {7, 6}, {0, 2}, {7, 7}, {0, 3}, {7, 5}}
	for _, mv := range seq {
		if _, err := s.Place(mv[0], mv[1]); err != nil {
			t.Fatalf("place (%d,%d): %v", mv[0], mv[1], err)
		}
	}
	if s.Winner != RoleFirst {
		t.Fatalf("winner: want %q, got %q", RoleFirst, s.Winner)
	}
	if s.WinLine.Start != (Point{7, 3}) || s.WinLine.End != (Point{7, 7}) {
		t.Fatalf("win line: got %+v", s.WinLine)
	}
}

func TestUndoRedo(t *testing.T) {
	s := NewState(15)
	if s.Undo() {
		t.Fatalf("undo on empty history should report false")
	}

	if _, err := s.Place(7, 7); err != nil {
		t.Fatalf("place: %v", err)
	}
	if !s.Undo() {
		t.Fatalf("undo should succeed")
	}
	if s.Board[7][7] != "" {
		t.Fatalf("board[7][7] after undo: want empty, got %q", s.Board[7][7])
	}
	if s.Turn != RoleFirst {
		t.Fatalf("turn after undo: want %q, got %q", RoleFirst, s.Turn)
	}
	if len(s.History) != 0 || len(s.Redone) != 1 {
		t.Fatalf("stacks after undo: history=%d redo=%d", len(s.History), len(s.Redone))
	}

	if !s.Redo() {
		t.Fatalf("redo should succeed")
	}
	if s.Board[7][7] != RoleFirst {
		t.Fatalf("board[7][7] after redo: want %q, got %q", RoleFirst, s.Board[7][7])
	}
	if s.Turn != RoleSecond {
		t.Fatalf("turn after redo: want %q, got %q", RoleSecond, s.Turn)
	}
	if s.Redo() {
		t.Fatalf("redo with empty stack should report false")
	}
}

func TestUndoClearsWinner(t *testing.T) {
	s := NewState(15)
	seq := [][2]int{{0, 0}, {14, 0}, {0, 1}, {14, 1}, {0, 2}, {14, 2}, {0, 3}, {14, 3}, {0, 4}}
	for _, mv := range seq {
		if _, err := s.Place(mv[0], mv[1]); err != nil {
			t.Fatalf("place (%d,%d): %v", mv[0], mv[1], err)
		}
	}
	if s.Winner != RoleFirst {
		t.Fatalf("setup: expected first to win")
	}
	if !s.Undo() {
		t.Fatalf("undo should succeed")
	}
	if s.Winner != "" || s.WinLine != nil {
		t.Fatalf("undo should clear winner, got %q", s.Winner)
	}
	if s.Turn != RoleFirst {
		t.Fatalf("turn after undoing winning move: want %q, got %q", RoleFirst, s.Turn)
	}
}

func TestFreshMoveClearsRedoStack(t *testing.T) {
	s := NewState(15)
	if _, err := s.Place(7, 7); err != nil {
		t.Fatalf("place: %v", err)
	}
	if !s.Undo() {
		t.Fatalf("undo should succeed")
	}
	if _, err := s.Place(8, 8); err != nil {
		t.Fatalf("place after undo: %v", err)
	}
	if len(s.Redone) != 0 {
		t.Fatalf("redo stack after fresh move: want empty, got %d", len(s.Redone))
	}
	if s.Redo() {
		t.Fatalf("redo after fresh move should report false")
	}
}

func TestApplyEnforcesTurn(t *testing.T) {
	s := NewState(15)
	err := s.Apply(Move{Row: 7, Col: 7, Role: RoleSecond})
	if !errors.Is(err, ErrTurnMismatch) {
		t.Fatalf("apply out-of-turn: want ErrTurnMismatch, got %v", err)
	}
	if err := s.Apply(Move{Row: 7, Col: 7, Role: RoleFirst}); err != nil {
		t.Fatalf("apply in-turn: %v", err)
	}
	if s.Board[7][7] != RoleFirst {
		t.Fatalf("board[7][7]: want %q, got %q", RoleFirst, s.Board[7][7])
	}
}
