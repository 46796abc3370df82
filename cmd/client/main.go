// Terminal client for the relay: joins a room, prints the board, and
// reads commands from stdin. Stands in for a real UI.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/hxu-games/gomoku-relay/internal/client"
	"github.com/hxu-games/gomoku-relay/internal/engine"
	"github.com/hxu-games/gomoku-relay/internal/game"
)

func main() {
	url := flag.String("url", "ws://localhost:8787/ws", "relay websocket URL")
	room := flag.String("room", "", "room code (required)")
	name := flag.String("name", "", "display name")
	accept := flag.Bool("accept", true, "accept peer undo/redo requests")
	flag.Parse()

	if *room == "" {
		fmt.Fprintln(os.Stderr, "usage: client -room CODE [-url ws://host/ws] [-name NAME]")
		os.Exit(2)
	}

	log, _ := zap.NewDevelopment()
	defer log.Sync()

	c := client.New(client.Options{
		URL:           *url,
		Room:          *room,
		Name:          *name,
		AutoReconnect: true,
		Logger:        log,
	})
	if err := c.Connect(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		os.Exit(1)
	}
	defer c.Close()

	s := game.New(c, game.Options{
		Decide: func(kind string) bool { return *accept },
		Logger: log,
	})
	defer s.Stop()

	go func() {
		for n := range s.Notices() {
			switch notice := n.(type) {
			case game.Joined:
				fmt.Printf("joined as %s\n", notice.Role)
			case game.MatchReady:
				fmt.Println("both players present, game on")
			case game.StateChanged:
				printBoard(s.View())
			case game.PeerPresent:
				fmt.Printf("peer joined: %s\n", notice.Name)
			case game.PeerGone:
				fmt.Println("peer left the room")
			case game.NegotiationResolved:
				fmt.Printf("negotiation %s: accepted=%v\n", notice.Kind, notice.Accepted)
			case game.ReconnectScheduled:
				fmt.Printf("reconnecting in %s\n", notice.Delay)
			case game.Disconnected:
				fmt.Println("disconnected")
			case game.ProtocolError:
				fmt.Println("error:", notice.Message)
			}
		}
	}()

	fmt.Println("commands: ROW COL | undo | redo | reset | quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		var err error
		switch {
		case line == "":
			continue
		case line == "quit":
			return
		case line == "undo":
			err = s.RequestUndo()
		case line == "redo":
			err = s.RequestRedo()
		case line == "reset":
			err = s.Reset()
		default:
			var row, col int
			if _, scanErr := fmt.Sscanf(line, "%d %d", &row, &col); scanErr != nil {
				fmt.Println("unrecognized command")
				continue
			}
			err = s.Place(row, col)
		}
		if err != nil {
			fmt.Println("error:", err)
		}
	}
}

func printBoard(s *engine.State) {
	fmt.Print("   ")
	for c := 0; c < s.Size; c++ {
		fmt.Printf("%2d", c%10)
	}
	fmt.Println()
	for r := 0; r < s.Size; r++ {
		fmt.Printf("%2d ", r)
		for c := 0; c < s.Size; c++ {
			switch s.Board[r][c] {
			case engine.RoleFirst:
				fmt.Print(" x")
			case engine.RoleSecond:
				fmt.Print(" o")
			default:
				fmt.Print(" .")
			}
		}
		fmt.Println()
	}
	if s.Winner != "" {
		fmt.Printf("winner: %s\n", s.Winner)
	} else {
		fmt.Printf("turn: %s\n", s.Turn)
	}
}
