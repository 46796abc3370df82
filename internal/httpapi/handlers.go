package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hxu-games/gomoku-relay/internal/registry"
	"github.com/hxu-games/gomoku-relay/pkg/protocol"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const codeLength = 6

// newRoomCode draws a short shareable room code. rand.Int keeps the
// draw uniform over the alphabet.
func newRoomCode() (string, error) {
	span := big.NewInt(int64(len(codeAlphabet)))
	code := make([]byte, codeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, span)
		if err != nil {
			return "", err
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// CreateRoom hands out an unused room code. The room itself is created
// lazily by the first join; the registry lookup only guards against
// handing the same code to two callers.
func CreateRoom(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var code string
		for {
			c, err := newRoomCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			reply := make(chan registry.RoomInfo, 1)
			reg.Inbox() <- registry.Lookup{Code: c, Reply: reply}
			if info := <-reply; !info.Exists {
				code = c
				break
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(struct {
			Code string `json:"code"`
		}{Code: code})
	}
}

// RoomStatus reports occupancy for a known room code and 404s unknown
// codes, so clients can surface room_not_found before dialing.
func RoomStatus(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		reply := make(chan registry.RoomInfo, 1)
		reg.Inbox() <- registry.Lookup{Code: code, Reply: reply}
		info := <-reply

		w.Header().Set("Content-Type", "application/json")
		if !info.Exists {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(struct {
				Error string `json:"error"`
			}{Error: protocol.ErrRoomNotFound})
			return
		}
		_ = json.NewEncoder(w).Encode(struct {
			Code      string `json:"code"`
			Occupancy int    `json:"occupancy"`
		}{Code: code, Occupancy: info.Occupancy})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
