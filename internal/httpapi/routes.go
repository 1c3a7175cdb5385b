package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/eduparty/game-backend/internal/hub"
	"github.com/eduparty/game-backend/internal/persist"
	"github.com/eduparty/game-backend/internal/ws"
)

func SetupRoutes(h *hub.Hub, resolver persist.Resolver, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Post("/lobbies", CreateLobby(h))
	r.Get("/lobbies", ListLobbies(h))
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, resolver, log.Named("ws")))
	return r
}
