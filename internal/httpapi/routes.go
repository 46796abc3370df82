package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hxu-games/gomoku-relay/internal/gateway"
	"github.com/hxu-games/gomoku-relay/internal/registry"
)

func SetupRoutes(reg *registry.Registry, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Post("/rooms", CreateRoom(reg))
	r.Get("/rooms/{code}", RoomStatus(reg))
	r.Get("/healthz", Healthz)
	r.Get("/ws", gateway.Handler(reg, log))
	return r
}
