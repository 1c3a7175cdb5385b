package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/eduparty/game-backend/internal/hub"
)

type createLobbyRequest struct {
	Capacity int `json:"capacity"`
}

// CreateLobby mints a room over REST; the creator still joins it over
// the websocket like everyone else.
func CreateLobby(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createLobbyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}

		var res hub.CreateReply
		for i := 0; i < 3; i++ {
			reply := make(chan hub.CreateReply, 1)
			h.Inbox() <- hub.CreateLobby{Code: hub.GenerateCode(), Capacity: req.Capacity, Reply: reply}
			res = <-reply
			if !errors.Is(res.Err, hub.ErrCodeTaken) {
				break
			}
		}
		if errors.Is(res.Err, hub.ErrCapacityInvalid) {
			http.Error(w, res.Err.Error(), http.StatusBadRequest)
			return
		}
		if res.Err != nil {
			http.Error(w, "failed to create lobby", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(struct {
			Code string `json:"code"`
		}{Code: res.Lobby.ID()})
	}
}

// ListLobbies serves the lobby browser; read-only, eventually
// consistent with in-flight joins.
func ListLobbies(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan []hub.Summary, 1)
		h.Inbox() <- hub.ListLobbies{Reply: reply}
		summaries := <-reply

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Lobbies []hub.Summary `json:"lobbies"`
		}{Lobbies: summaries})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
