package hub

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/eduparty/game-backend/internal/lobby"
)

// Capacity bounds for a room.
const (
	MinCapacity = 2
	MaxCapacity = 50
)

var ErrCapacityInvalid = errors.New("capacity out of range")
var ErrNotFound = errors.New("lobby not found")
var ErrCodeTaken = errors.New("lobby code already in use")

type HubMsg interface{ isHubMsg() }

type CreateLobby struct {
	Code     string
	Capacity int
	Reply    chan CreateReply
}

type CreateReply struct {
	Lobby *lobby.Lobby
	Err   error
}

type GetLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

// ListLobbies returns lightweight summaries for the lobby browser.
type ListLobbies struct {
	Reply chan []Summary
}

type Summary struct {
	ID          string `json:"id"`
	HostName    string `json:"host_name"`
	PlayerCount int    `json:"player_count"`
	MaxPlayers  int    `json:"max_players"`
	Phase       string `json:"phase"`
}

// RemoveLobby is idempotent; lobbies post it when they self-terminate.
type RemoveLobby struct{ Code string }

type ShutdownHub struct{}

func (CreateLobby) isHubMsg() {}
func (GetLobby) isHubMsg()    {}
func (ListLobbies) isHubMsg() {}
func (RemoveLobby) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

// Deps is the collaborator set handed down to every lobby the hub
// creates.
type Deps struct {
	Logger  *zap.Logger
	Sink    lobby.ResultSink
	Timings *lobby.Timings
}

// Hub is the process-wide lobby registry. Like each room it is a
// single actor: the map of code -> lobby is only ever touched on the
// hub goroutine.
type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	deps    Deps
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, deps Deps) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		deps:    deps,
		log:     deps.Logger.Named("hub"),
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateLobby:
				msg.Reply <- h.create(msg.Code, msg.Capacity)

			case GetLobby:
				msg.Reply <- h.lobbies[msg.Code] // may be nil

			case ListLobbies:
				msg.Reply <- h.list()

			case RemoveLobby:
				if _, ok := h.lobbies[msg.Code]; ok {
					delete(h.lobbies, msg.Code)
					h.log.Info("lobby removed", zap.String("lobby", msg.Code))
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) create(code string, capacity int) CreateReply {
	if capacity < MinCapacity || capacity > MaxCapacity {
		return CreateReply{Err: ErrCapacityInvalid}
	}
	if _, ok := h.lobbies[code]; ok {
		return CreateReply{Err: ErrCodeTaken}
	}
	lb := lobby.NewLobby(h.ctx, code, capacity, lobby.Deps{
		Logger:   h.deps.Logger,
		Sink:     h.deps.Sink,
		Timings:  h.deps.Timings,
		OnRemove: func(id string) { h.enqueue(RemoveLobby{Code: id}) },
	})
	h.lobbies[code] = lb
	h.log.Info("lobby created", zap.String("lobby", code), zap.Int("capacity", capacity))
	return CreateReply{Lobby: lb}
}

// list snapshots each room with a short per-room deadline so one
// unresponsive lobby cannot stall the browser. The result may lag
// in-flight joins by a message or two.
func (h *Hub) list() []Summary {
	summaries := make([]Summary, 0, len(h.lobbies))
	for code, lb := range h.lobbies {
		reply := make(chan lobby.View, 1)
		select {
		case lb.Inbox() <- lobby.GetState{Reply: reply}:
		case <-time.After(100 * time.Millisecond):
			continue
		}
		select {
		case v := <-reply:
			summaries = append(summaries, Summary{
				ID:          code,
				HostName:    v.HostName,
				PlayerCount: v.Connected,
				MaxPlayers:  v.Capacity,
				Phase:       string(v.Phase),
			})
		case <-time.After(100 * time.Millisecond):
		}
	}
	return summaries
}

func (h *Hub) shutdown() {
	for _, lb := range h.lobbies {
		lb.Post(lobby.Shutdown{})
	}
	clear(h.lobbies)
	h.cancel()
}

func (h *Hub) enqueue(m HubMsg) {
	select {
	case h.inbox <- m:
	case <-h.ctx.Done():
	}
}
