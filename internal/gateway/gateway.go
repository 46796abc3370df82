// Package gateway accepts websocket upgrades and bridges each connection
// to the room registry. Frames are decoded just enough to route them:
// join and ping are handled here, everything else is tagged with the
// sender's connection id and relayed without interpretation.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hxu-games/gomoku-relay/internal/registry"
	"github.com/hxu-games/gomoku-relay/pkg/protocol"
)

const (
	writeTimeout = 5 * time.Second
	readTimeout  = 90 * time.Second
	outboxSize   = 32
)

func Handler(reg *registry.Registry, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			log.Warn("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		id := uuid.NewString()
		out := make(chan []byte, outboxSize)
		log.Info("connection opened", zap.String("conn", id))

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go writer(writeCtx, conn, out)

		defer func() {
			reg.Inbox() <- registry.Leave{ID: id}
			log.Info("connection closed", zap.String("conn", id))
		}()

		for {
			ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				return
			}

			// Lenient parsing: a corrupt frame must not terminate the
			// session, so anything undecodable or untyped is dropped.
			var frame map[string]any
			if err := json.Unmarshal(data, &frame); err != nil {
				log.Debug("malformed frame dropped", zap.String("conn", id))
				continue
			}
			kind, _ := frame["type"].(string)
			if kind == "" {
				log.Debug("untyped frame dropped", zap.String("conn", id))
				continue
			}

			switch kind {
			case protocol.KindJoin:
				room, _ := frame["room"].(string)
				name, _ := frame["name"].(string)
				reg.Inbox() <- registry.Join{Room: room, ID: id, Name: name, Out: out, Drop: writeCancel}

			case protocol.KindPing:
				t, _ := frame["time"].(float64)
				pong := protocol.Encode(protocol.Message{Type: protocol.KindPong, Time: int64(t)})
				select {
				case out <- pong:
				default:
				}

			default:
				frame["from"] = id
				tagged, err := json.Marshal(frame)
				if err != nil {
					continue
				}
				reg.Inbox() <- registry.Relay{ID: id, Kind: kind, Frame: tagged}
			}
		}
	}
}

// writer drains the outbox onto the socket. The registry cancels the
// writer context when it drops a slow connection; closing the socket
// here makes the read loop observe it and run the leave path. The
// outbox channel itself is owned here and never closed, so the read
// loop can keep forwarding frames for a dropped connection until it
// notices the closed socket.
func writer(ctx context.Context, conn *websocket.Conn, out <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusPolicyViolation, "connection dropped")
			return
		case frame := <-out:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
