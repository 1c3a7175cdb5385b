package lobby

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/eduparty/game-backend/internal/game"
	"github.com/eduparty/game-backend/internal/types"
)

var ErrLobbyFull = errors.New("lobby is full")
var ErrAlreadyJoined = errors.New("identity already joined")
var ErrTournamentRunning = errors.New("tournament already in progress")

// Outcome is what gets handed to the external persistence sink once a
// tournament finishes.
type Outcome struct {
	LobbyID string
	Winner  string
	Scores  map[string]int
}

// ResultSink is the narrow interface to the external profile store.
// Failures are logged and never affect in-room behavior.
type ResultSink interface {
	PersistResult(ctx context.Context, o Outcome) error
}

// Deps carries the lobby's collaborators. Everything but Logger is
// optional; zero values get sensible defaults.
type Deps struct {
	Logger *zap.Logger
	Sink   ResultSink
	// OnRemove is called once when the lobby self-terminates, so the
	// registry can drop its entry.
	OnRemove func(id string)
	Rand     *rand.Rand
	Timings  *Timings
	// NewGame builds the controller for a round; tests swap in stubs.
	NewGame func(kind game.Kind, rng *rand.Rand) game.Controller
}

// Lobby is one room: a single goroutine drains the inbox, so every
// mutation of roster and phase state is serialized. Two lobbies share
// nothing and run fully in parallel.
type Lobby struct {
	id       string
	capacity int

	inbox   chan Msg
	roster  map[string]*playerSession
	joinSeq int

	phase       Phase
	roundIndex  int
	current     game.Controller
	countdown   int
	winner      string
	timerGen    uint64
	teardownGen uint64

	rng     *rand.Rand
	timings Timings
	newGame func(kind game.Kind, rng *rand.Rand) game.Controller

	log      *zap.Logger
	sink     ResultSink
	onRemove func(id string)

	ctx    context.Context
	cancel context.CancelFunc
}

func NewLobby(parent context.Context, id string, capacity int, deps Deps) *Lobby {
	ctx, cancel := context.WithCancel(parent)

	l := &Lobby{
		id:       id,
		capacity: capacity,
		inbox:    make(chan Msg, 64),
		roster:   make(map[string]*playerSession),
		phase:    PhaseWaiting,
		rng:      deps.Rand,
		timings:  DefaultTimings(),
		newGame:  deps.NewGame,
		log:      deps.Logger,
		sink:     deps.Sink,
		onRemove: deps.OnRemove,
		ctx:      ctx,
		cancel:   cancel,
	}
	if l.rng == nil {
		l.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if deps.Timings != nil {
		l.timings = *deps.Timings
	}
	if l.newGame == nil {
		l.newGame = defaultNewGame
	}
	if l.log == nil {
		l.log = zap.NewNop()
	}
	l.log = l.log.With(zap.String("lobby", id))

	go l.loop()
	return l
}

func (l *Lobby) ID() string { return l.id }

func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Post enqueues a message, giving up silently once the lobby has been
// torn down. Connection goroutines use this so a late disconnect
// report cannot block forever on a dead room.
func (l *Lobby) Post(m Msg) { l.enqueue(m) }

// Done is closed once the room actor has stopped. A Post after that is
// dropped, so callers waiting on a reply must also select on Done.
func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }

func defaultNewGame(kind game.Kind, rng *rand.Rand) game.Controller {
	switch kind {
	case game.KindTypingRace:
		return game.NewTypingRace(rng)
	case game.KindTechSprint:
		return game.NewTechSprint(rng)
	default:
		return game.NewMathQuiz(rng)
	}
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.terminate(false)
			return
		case m := <-l.inbox:
			if _, ok := m.(Shutdown); ok {
				l.terminate(false)
				return
			}
			l.handle(m)
		}
	}
}

// handle isolates one event; a panic in a single room must never take
// down the process or other rooms.
func (l *Lobby) handle(m Msg) {
	defer func() {
		if v := recover(); v != nil {
			l.log.Error("recovered panic in room actor", zap.Any("panic", v))
		}
	}()

	switch msg := m.(type) {
	case Join:
		msg.Reply <- l.handleJoin(msg.Identity, msg.Outbox)
	case Leave:
		l.handleLeave(msg.Username)
	case Disconnected:
		l.handleDisconnect(msg.Username)
	case FromClient:
		l.handleFrame(msg.Username, msg.Frame)
	case timerFired:
		l.onTimer(msg.gen)
	case teardownFired:
		l.onTeardown(msg.gen)
	case GetState:
		msg.Reply <- l.view()
	}
}

func (l *Lobby) handleJoin(id Identity, outbox chan types.ServerMessage) error {
	if p, ok := l.roster[id.Username]; ok {
		if p.connected {
			return ErrAlreadyJoined
		}
		// Reconnect: rebind the connection, keep score and position.
		p.outbox = outbox
		p.connected = true
		p.identity.Color = id.Color
		p.identity.Shape = id.Shape
		l.cancelTeardown()
		l.reassignHost()
		l.log.Info("player reconnected", zap.String("player", id.Username))
		l.sendTo(p, types.ServerMessage{Type: types.MsgLobbyJoined,
			Payload: types.LobbyJoinedPayload{ID: l.id, HostName: l.hostName()}})
		l.broadcastRoster()
		return nil
	}

	// Fresh identities are admitted in the lobby stage only; once the
	// tournament runs, the door is open to reconnects alone.
	if l.phase != PhaseWaiting {
		return ErrTournamentRunning
	}
	if len(l.roster) >= l.capacity {
		return ErrLobbyFull
	}

	p := &playerSession{
		identity:  id,
		outbox:    outbox,
		joinSeq:   l.joinSeq,
		connected: true,
	}
	l.joinSeq++
	l.roster[id.Username] = p
	l.cancelTeardown()
	l.reassignHost()
	l.log.Info("player joined", zap.String("player", id.Username))
	l.sendTo(p, types.ServerMessage{Type: types.MsgLobbyJoined,
		Payload: types.LobbyJoinedPayload{ID: l.id, HostName: l.hostName()}})
	l.broadcastRoster()
	return nil
}

// handleLeave hard-deletes the seat outside a running tournament.
// Mid-tournament the seat is only marked disconnected so scores stay
// intact for elimination and a possible reconnect.
func (l *Lobby) handleLeave(username string) {
	p, ok := l.roster[username]
	if !ok {
		return
	}
	l.sendTo(p, types.ServerMessage{Type: types.MsgLobbyLeft})
	if p.connected {
		p.connected = false
		close(p.outbox)
		p.outbox = nil
	}
	if l.phase == PhaseWaiting || l.phase == PhaseFinished {
		delete(l.roster, username)
	}
	l.log.Info("player left", zap.String("player", username))
	l.afterSeatChange()
}

func (l *Lobby) handleDisconnect(username string) {
	p, ok := l.roster[username]
	if !ok {
		return
	}
	if p.connected {
		p.connected = false
		close(p.outbox)
		p.outbox = nil
		l.log.Info("player disconnected", zap.String("player", username))
	}
	l.afterSeatChange()
}

func (l *Lobby) afterSeatChange() {
	l.reassignHost()
	l.broadcastRoster()
	if l.connectedCount() == 0 {
		l.scheduleTeardown()
	}
}

// reassignHost keeps exactly one host flag on the earliest-joined
// connected member while any member is connected.
func (l *Lobby) reassignHost() {
	var host *playerSession
	for _, p := range l.roster {
		if !p.connected {
			continue
		}
		if host == nil || p.joinSeq < host.joinSeq {
			host = p
		}
	}
	for _, p := range l.roster {
		p.isHost = p == host
	}
}

func (l *Lobby) hostName() string {
	for _, p := range l.roster {
		if p.isHost {
			return p.identity.Username
		}
	}
	return ""
}

func (l *Lobby) connectedCount() int {
	n := 0
	for _, p := range l.roster {
		if p.connected {
			n++
		}
	}
	return n
}

// activePlayers are the seats still competing this round, in join
// order so every per-round iteration is deterministic.
func (l *Lobby) activePlayers() []*playerSession {
	var active []*playerSession
	for _, p := range l.roster {
		if p.connected && !p.eliminated {
			active = append(active, p)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].joinSeq < active[j].joinSeq })
	return active
}

// sendTo enqueues a unicast frame. A full outbox means the connection
// is wedged; it gets the same treatment as a dead socket.
func (l *Lobby) sendTo(p *playerSession, msg types.ServerMessage) {
	if !p.connected {
		return
	}
	select {
	case p.outbox <- msg:
	default:
		l.log.Warn("outbox full, dropping connection", zap.String("player", p.identity.Username))
		p.connected = false
		close(p.outbox)
		p.outbox = nil
		l.handleDisconnect(p.identity.Username)
	}
}

// broadcast fans a frame out to every connected seat. A failed
// delivery drops only that connection; siblings still get the frame.
func (l *Lobby) broadcast(msg types.ServerMessage) {
	var dropped []string
	for _, p := range l.roster {
		if !p.connected {
			continue
		}
		select {
		case p.outbox <- msg:
		default:
			l.log.Warn("outbox full, dropping connection", zap.String("player", p.identity.Username))
			p.connected = false
			close(p.outbox)
			p.outbox = nil
			dropped = append(dropped, p.identity.Username)
		}
	}
	for _, name := range dropped {
		l.handleDisconnect(name)
	}
}

func (l *Lobby) broadcastRoster() {
	entries := make([]types.RosterEntry, 0, len(l.roster))
	for _, p := range l.rosterByJoin() {
		entries = append(entries, p.rosterEntry())
	}
	l.broadcast(types.ServerMessage{Type: types.MsgRosterUpdate,
		Payload: types.RosterUpdatePayload{Players: entries}})
}

func (l *Lobby) rosterByJoin() []*playerSession {
	all := make([]*playerSession, 0, len(l.roster))
	for _, p := range l.roster {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].joinSeq < all[j].joinSeq })
	return all
}

func (l *Lobby) deliver(outs []game.Outbound) {
	for _, o := range outs {
		if o.To == "" {
			l.broadcast(o.Msg)
			continue
		}
		if p, ok := l.roster[o.To]; ok {
			l.sendTo(p, o.Msg)
		}
	}
}

func (l *Lobby) sendError(username, msg string) {
	if p, ok := l.roster[username]; ok {
		l.sendTo(p, types.Err(msg))
	}
}

func (l *Lobby) view() View {
	v := View{
		ID:         l.id,
		Capacity:   l.capacity,
		Phase:      l.phase,
		RoundIndex: l.roundIndex,
		HostName:   l.hostName(),
		Connected:  l.connectedCount(),
	}
	for _, p := range l.rosterByJoin() {
		v.Players = append(v.Players, PlayerView{
			Username:   p.identity.Username,
			Color:      p.identity.Color,
			Shape:      p.identity.Shape,
			Ready:      p.isReady,
			Host:       p.isHost,
			Score:      p.score,
			Eliminated: p.eliminated,
			Connected:  p.connected,
		})
	}
	return v
}

// terminate closes every outbox and stops the actor. remove controls
// whether the registry callback fires (self-termination) or not
// (registry-driven shutdown).
func (l *Lobby) terminate(remove bool) {
	for _, p := range l.roster {
		if p.connected {
			p.connected = false
			close(p.outbox)
			p.outbox = nil
		}
	}
	if remove && l.onRemove != nil {
		l.onRemove(l.id)
	}
	l.cancel()
}

// enqueue posts a message from a timer goroutine back into the actor,
// giving up once the lobby is gone.
func (l *Lobby) enqueue(m Msg) {
	select {
	case l.inbox <- m:
	case <-l.ctx.Done():
	}
}
