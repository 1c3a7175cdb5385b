package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/eduparty/game-backend/internal/hub"
	"github.com/eduparty/game-backend/internal/lobby"
	"github.com/eduparty/game-backend/internal/persist"
	"github.com/eduparty/game-backend/internal/types"
)

const (
	writeTimeout = 3 * time.Second
	outboxSize   = 16
)

// Handler is the connection channel: it resolves the caller's
// identity, binds the socket to a room via the first frame, then pumps
// frames in and out. No game logic runs here; everything is forwarded
// to the room actor.
func Handler(h *hub.Hub, resolver persist.Resolver, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		identity, err := resolver.Resolve(r.Context(), token)
		if err != nil {
			if errors.Is(err, persist.ErrAuth) {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			http.Error(w, "auth unavailable", http.StatusInternalServerError)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clog := log.With(zap.String("player", identity.Username))

		lb := bind(r.Context(), conn, h, clog)
		if lb == nil {
			return
		}

		outbox := make(chan types.ServerMessage, outboxSize)
		reply := make(chan error, 1)
		lb.Post(lobby.Join{Identity: identity, Outbox: outbox, Reply: reply})
		// The room may tear down between lookup and join; a dead actor
		// never answers, so wait on its Done as well.
		select {
		case err := <-reply:
			if err != nil {
				writeFrame(r.Context(), conn, types.Err(err.Error()))
				return
			}
		case <-lb.Done():
			writeFrame(r.Context(), conn, types.Err("lobby closed"))
			return
		}
		defer lb.Post(lobby.Disconnected{Username: identity.Username})

		// Writer: drains the outbox the room actor fills. The room
		// closes the outbox when it drops or tears down the session.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for msg := range outbox {
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				err := writeFrame(ctx, conn, msg)
				cancel()
				if err != nil {
					return
				}
			}
			conn.Close(websocket.StatusNormalClosure, "lobby closed")
		}()

		// Reader: the only thing this goroutine does from here on.
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					clog.Debug("read loop ended", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeFrame(r.Context(), conn, types.Err("bad json"))
				continue
			}
			switch cm.Type {
			case types.MsgCreateLobby, types.MsgJoinLobby:
				writeFrame(r.Context(), conn, types.Err("already in a lobby"))
				continue
			}
			lb.Post(lobby.FromClient{Username: identity.Username, Frame: cm})
		}
	}
}

// bind waits for the opening CREATE_LOBBY or JOIN_LOBBY frame and
// returns the room the connection belongs to, or nil after writing an
// error to the client.
func bind(ctx context.Context, conn *websocket.Conn, h *hub.Hub, log *zap.Logger) *lobby.Lobby {
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	_, data, err := conn.Read(readCtx)
	cancel()
	if err != nil {
		return nil
	}

	var cm types.ClientMessage
	if err := json.Unmarshal(data, &cm); err != nil {
		writeFrame(ctx, conn, types.Err("bad json"))
		return nil
	}

	switch cm.Type {
	case types.MsgCreateLobby:
		var res hub.CreateReply
		for i := 0; i < 3; i++ { // regenerate on the off chance of a code collision
			reply := make(chan hub.CreateReply, 1)
			h.Inbox() <- hub.CreateLobby{Code: hub.GenerateCode(), Capacity: cm.Capacity, Reply: reply}
			res = <-reply
			if !errors.Is(res.Err, hub.ErrCodeTaken) {
				break
			}
		}
		if res.Err != nil {
			writeFrame(ctx, conn, types.Err(res.Err.Error()))
			return nil
		}
		return res.Lobby

	case types.MsgJoinLobby:
		reply := make(chan *lobby.Lobby, 1)
		h.Inbox() <- hub.GetLobby{Code: strings.ToUpper(cm.LobbyID), Reply: reply}
		lb := <-reply
		if lb == nil {
			writeFrame(ctx, conn, types.Err("lobby not found"))
			return nil
		}
		return lb

	default:
		writeFrame(ctx, conn, types.Err("expected CREATE_LOBBY or JOIN_LOBBY"))
		return nil
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, payload)
}
