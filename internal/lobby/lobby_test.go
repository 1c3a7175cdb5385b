package lobby

import (
	"context"
	"math/rand"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eduparty/game-backend/internal/game"
	"github.com/eduparty/game-backend/internal/types"
)

func fastTimings() *Timings {
	return &Timings{
		Preview:       5 * time.Millisecond,
		Tutorial:      5 * time.Millisecond,
		CountdownTick: 2 * time.Millisecond,
		Intermission:  5 * time.Millisecond,
		Grace:         40 * time.Millisecond,
		RoundSecond:   2 * time.Millisecond,
	}
}

// stubGame satisfies game.Controller with scripted scores so lobby
// tests exercise the room machinery, not the minigames.
type stubGame struct {
	kind   game.Kind
	dur    int
	scores map[string]int
	winOn  string // player whose first action wins the round outright

	players []string
	winner  string
	over    bool
}

func (s *stubGame) Kind() game.Kind                        { return s.kind }
func (s *stubGame) Info() string                           { return "stub" }
func (s *stubGame) DurationSeconds() int                   { return s.dur }
func (s *stubGame) Begin(players []string) []game.Outbound { s.players = players; return nil }

func (s *stubGame) HandleAction(id string, _ game.Action, _ time.Time) ([]game.Outbound, error) {
	if s.over {
		return nil, game.ErrRoundOver
	}
	if !slices.Contains(s.players, id) {
		return nil, game.ErrNotInRound
	}
	if id == s.winOn {
		s.winner = id
		s.over = true
	}
	return nil, nil
}

func (s *stubGame) ForceEnd(time.Time) { s.over = true }
func (s *stubGame) Complete() bool     { return s.over }

func (s *stubGame) FinalScores() map[string]int {
	if s.scores == nil {
		return map[string]int{}
	}
	return s.scores
}

func (s *stubGame) Winner() (string, bool) { return s.winner, s.winner != "" }

type lobbyOpt func(*Deps)

func withGames(stubs map[game.Kind]*stubGame) lobbyOpt {
	return func(d *Deps) {
		d.NewGame = func(kind game.Kind, _ *rand.Rand) game.Controller {
			if s, ok := stubs[kind]; ok {
				return s
			}
			return &stubGame{kind: kind}
		}
	}
}

func withSink(sink ResultSink) lobbyOpt {
	return func(d *Deps) { d.Sink = sink }
}

func withRemove(fn func(string)) lobbyOpt {
	return func(d *Deps) { d.OnRemove = fn }
}

func newTestLobby(t *testing.T, capacity int, opts ...lobbyOpt) *Lobby {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	deps := Deps{
		Rand:    rand.New(rand.NewSource(7)),
		Timings: fastTimings(),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	return NewLobby(ctx, "ROOM01", capacity, deps)
}

func join(t *testing.T, l *Lobby, name string) chan types.ServerMessage {
	t.Helper()
	out := make(chan types.ServerMessage, 64)
	reply := make(chan error, 1)
	l.Inbox() <- Join{Identity: Identity{Username: name, Color: "#4a148c", Shape: "circle"}, Outbox: out, Reply: reply}
	require.NoError(t, <-reply)
	return out
}

func joinErr(t *testing.T, l *Lobby, name string) error {
	t.Helper()
	out := make(chan types.ServerMessage, 64)
	reply := make(chan error, 1)
	l.Inbox() <- Join{Identity: Identity{Username: name}, Outbox: out, Reply: reply}
	select {
	case err := <-reply:
		return err
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for join reply")
		return nil
	}
}

// waitFor drains frames off a client outbox until one of the wanted
// type shows up.
func waitFor(t *testing.T, ch <-chan types.ServerMessage, msgType string) types.ServerMessage {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				t.Fatalf("outbox closed while waiting for %s", msgType)
			}
			if msg.Type == msgType {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", msgType)
		}
	}
}

func getView(t *testing.T, l *Lobby) View {
	t.Helper()
	reply := make(chan View, 1)
	l.Inbox() <- GetState{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for view")
		return View{}
	}
}

func player(v View, name string) PlayerView {
	for _, p := range v.Players {
		if p.Username == name {
			return p
		}
	}
	return PlayerView{}
}

func send(l *Lobby, name string, f types.ClientMessage) {
	l.Inbox() <- FromClient{Username: name, Frame: f}
}

func TestJoin_RespectsCapacity(t *testing.T) {
	l := newTestLobby(t, 2)
	join(t, l, "alice")
	join(t, l, "bob")

	require.ErrorIs(t, joinErr(t, l, "carol"), ErrLobbyFull)

	v := getView(t, l)
	require.LessOrEqual(t, len(v.Players), v.Capacity)
}

func TestJoin_RejectsDuplicateIdentity(t *testing.T) {
	l := newTestLobby(t, 4)
	join(t, l, "alice")

	require.ErrorIs(t, joinErr(t, l, "alice"), ErrAlreadyJoined)
}

func TestJoin_FreshIdentityRejectedMidTournament(t *testing.T) {
	stubs := map[game.Kind]*stubGame{
		game.KindMathQuiz: {kind: game.KindMathQuiz, dur: 100000},
	}
	l := newTestLobby(t, 4, withGames(stubs))
	a := join(t, l, "alice")
	send(l, "alice", types.ClientMessage{Type: types.MsgStartGame, TestMode: true})
	waitFor(t, a, types.GameStart(1))

	require.ErrorIs(t, joinErr(t, l, "bob"), ErrTournamentRunning)
}

func TestJoin_DeadRoomNeverAnswersButDoneFires(t *testing.T) {
	l := newTestLobby(t, 4)
	l.Inbox() <- Shutdown{}
	<-l.Done()

	// A join posted after teardown is dropped; callers must be able to
	// bail out via Done instead of waiting on the reply forever.
	reply := make(chan error, 1)
	l.Post(Join{Identity: Identity{Username: "alice"}, Outbox: make(chan types.ServerMessage, 1), Reply: reply})

	select {
	case err := <-reply:
		t.Fatalf("dead room answered a join: %v", err)
	case <-l.Done():
	}
}

func TestHost_ExactlyOneAndSuccession(t *testing.T) {
	l := newTestLobby(t, 4)
	join(t, l, "alice")
	join(t, l, "bob")
	join(t, l, "carol")

	v := getView(t, l)
	require.True(t, player(v, "alice").Host, "first joiner hosts")

	// Host leaves; the earliest-joined remaining connected member
	// inherits.
	send(l, "alice", types.ClientMessage{Type: types.MsgLeaveLobby})

	v = getView(t, l)
	hosts := 0
	for _, p := range v.Players {
		if p.Host {
			hosts++
		}
	}
	require.Equal(t, 1, hosts)
	require.True(t, player(v, "bob").Host)
}

func TestToggleReady_IsItsOwnInverse(t *testing.T) {
	l := newTestLobby(t, 4)
	join(t, l, "alice")

	send(l, "alice", types.ClientMessage{Type: types.MsgToggleReady})
	require.True(t, player(getView(t, l), "alice").Ready)

	send(l, "alice", types.ClientMessage{Type: types.MsgToggleReady})
	require.False(t, player(getView(t, l), "alice").Ready)
}

func TestStart_RejectedWhenNotAllReady(t *testing.T) {
	l := newTestLobby(t, 4)
	a := join(t, l, "alice")
	join(t, l, "bob")

	send(l, "alice", types.ClientMessage{Type: types.MsgToggleReady})
	// bob never readies up
	send(l, "alice", types.ClientMessage{Type: types.MsgStartGame})

	msg := waitFor(t, a, types.MsgError)
	require.Contains(t, msg.Payload.(types.ErrorPayload).Msg, "ready")
	require.Equal(t, PhaseWaiting, getView(t, l).Phase)
}

func TestStart_RejectedFromNonHost(t *testing.T) {
	l := newTestLobby(t, 4)
	join(t, l, "alice")
	b := join(t, l, "bob")

	send(l, "bob", types.ClientMessage{Type: types.MsgStartGame, TestMode: true})

	waitFor(t, b, types.MsgError)
	require.Equal(t, PhaseWaiting, getView(t, l).Phase)
}

func TestStart_TestModeSkipsReadyCheck(t *testing.T) {
	l := newTestLobby(t, 4)
	a := join(t, l, "alice")

	send(l, "alice", types.ClientMessage{Type: types.MsgStartGame, TestMode: true})

	waitFor(t, a, types.MsgGamePreview)
	v := getView(t, l)
	require.NotEqual(t, PhaseWaiting, v.Phase)
}

func TestUpdateProfile_AcksAndRebroadcasts(t *testing.T) {
	l := newTestLobby(t, 4)
	a := join(t, l, "alice")

	send(l, "alice", types.ClientMessage{Type: types.MsgUpdateProfile, Color: "#ff0000", Shape: "star"})

	ack := waitFor(t, a, types.MsgProfileAck).Payload.(types.ProfileAckPayload)
	require.Equal(t, "#ff0000", ack.Color)
	require.Equal(t, "star", ack.Shape)

	p := player(getView(t, l), "alice")
	require.Equal(t, "star", p.Shape)
}

func TestUpdateProfile_RejectsUnknownShape(t *testing.T) {
	l := newTestLobby(t, 4)
	a := join(t, l, "alice")

	send(l, "alice", types.ClientMessage{Type: types.MsgUpdateProfile, Shape: "dodecahedron"})

	waitFor(t, a, types.MsgError)
	require.Equal(t, "circle", player(getView(t, l), "alice").Shape)
}

// startTournament drives a lobby of the named players through ready-up
// and start, waiting until round 1 is active.
func startTournament(t *testing.T, l *Lobby, outs map[string]chan types.ServerMessage) {
	t.Helper()
	for name := range outs {
		send(l, name, types.ClientMessage{Type: types.MsgToggleReady})
	}
	var host string
	for _, p := range getView(t, l).Players {
		if p.Host {
			host = p.Username
		}
	}
	send(l, host, types.ClientMessage{Type: types.MsgStartGame})
	waitFor(t, outs[host], types.GameStart(1))
}

func TestTournament_FullRunWithEliminationAndWinner(t *testing.T) {
	stubs := map[game.Kind]*stubGame{
		game.KindMathQuiz:   {kind: game.KindMathQuiz, dur: 0, scores: map[string]int{"alice": 30, "bob": 20, "carol": 10, "dave": 0}},
		game.KindTypingRace: {kind: game.KindTypingRace, dur: 0, scores: map[string]int{"alice": 10, "bob": 20}},
		game.KindTechSprint: {kind: game.KindTechSprint, dur: 0, scores: map[string]int{"bob": 50}},
	}
	stubs[game.KindTechSprint].winner = "bob" // scripted race result

	sink := &captureSink{}
	l := newTestLobby(t, 6, withGames(stubs), withSink(sink))
	outs := map[string]chan types.ServerMessage{
		"alice": join(t, l, "alice"),
		"bob":   join(t, l, "bob"),
		"carol": join(t, l, "carol"),
		"dave":  join(t, l, "dave"),
	}
	startTournament(t, l, outs)

	// Round 1: four players, top half advances.
	end := waitFor(t, outs["alice"], types.MsgRoundEnd).Payload.(types.RoundEndPayload)
	require.ElementsMatch(t, []string{"alice", "bob"}, end.Advancing)
	require.ElementsMatch(t, []string{"carol", "dave"}, end.Eliminated)
	require.Equal(t, string(game.KindTypingRace), end.NextGame)

	// Round 2: two players, one survives.
	end = waitFor(t, outs["alice"], types.MsgRoundEnd).Payload.(types.RoundEndPayload)
	require.Equal(t, []string{"bob"}, end.Advancing)
	require.Equal(t, []string{"alice"}, end.Eliminated)

	// Round 3: winner announced, and eliminated players still hear it.
	win := waitFor(t, outs["carol"], types.MsgTournamentWinner).Payload.(types.TournamentWinnerPayload)
	require.Equal(t, "bob", win.Winner)

	require.Eventually(t, func() bool {
		return getView(t, l).Phase == PhaseFinished
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool { return len(sink.outcomes()) == 1 }, 2*time.Second, 5*time.Millisecond)
	o := sink.outcomes()[0]
	require.Equal(t, "bob", o.Winner)
	require.Len(t, o.Scores, 4)
}

func TestElimination_SizeInvariantAndTieBreak(t *testing.T) {
	// Three players, all scoring zero: keep = ceil(3/2) = 2, and the
	// tie at the cutoff resolves by join order.
	stubs := map[game.Kind]*stubGame{
		game.KindMathQuiz: {kind: game.KindMathQuiz, dur: 0, scores: map[string]int{}},
	}
	l := newTestLobby(t, 6, withGames(stubs))
	outs := map[string]chan types.ServerMessage{
		"alice": join(t, l, "alice"),
		"bob":   join(t, l, "bob"),
		"carol": join(t, l, "carol"),
	}
	startTournament(t, l, outs)

	end := waitFor(t, outs["alice"], types.MsgRoundEnd).Payload.(types.RoundEndPayload)
	require.Len(t, end.Advancing, 2)
	require.Len(t, end.Eliminated, 1)
	require.ElementsMatch(t, []string{"alice", "bob", "carol"},
		append(append([]string{}, end.Advancing...), end.Eliminated...))
	require.Equal(t, []string{"alice", "bob"}, end.Advancing, "join order breaks the tie")
}

func TestElimination_SoloPlayerAlwaysAdvances(t *testing.T) {
	stubs := map[game.Kind]*stubGame{
		game.KindMathQuiz: {kind: game.KindMathQuiz, dur: 0, scores: map[string]int{}},
	}
	l := newTestLobby(t, 4, withGames(stubs))
	a := join(t, l, "alice")

	send(l, "alice", types.ClientMessage{Type: types.MsgStartGame, TestMode: true})
	waitFor(t, a, types.GameStart(1))

	end := waitFor(t, a, types.MsgRoundEnd).Payload.(types.RoundEndPayload)
	require.Equal(t, []string{"alice"}, end.Advancing)
	require.Empty(t, end.Eliminated)
}

func TestReconnect_KeepsScoreAndEliminationState(t *testing.T) {
	// Round 2 never ends on its own so the lobby sits in ACTIVE.
	stubs := map[game.Kind]*stubGame{
		game.KindMathQuiz:   {kind: game.KindMathQuiz, dur: 0, scores: map[string]int{"alice": 20, "bob": 10}},
		game.KindTypingRace: {kind: game.KindTypingRace, dur: 100000},
	}
	l := newTestLobby(t, 4, withGames(stubs))
	outs := map[string]chan types.ServerMessage{
		"alice": join(t, l, "alice"),
		"bob":   join(t, l, "bob"),
	}
	startTournament(t, l, outs)

	waitFor(t, outs["alice"], types.GameStart(2))
	before := player(getView(t, l), "bob")
	require.True(t, before.Eliminated)
	require.Equal(t, 10, before.Score, "eliminated players keep their round score")

	l.Inbox() <- Disconnected{Username: "bob"}
	require.Eventually(t, func() bool {
		return !player(getView(t, l), "bob").Connected
	}, time.Second, time.Millisecond)

	join(t, l, "bob")
	after := player(getView(t, l), "bob")
	require.True(t, after.Connected)
	require.Equal(t, before.Score, after.Score)
	require.Equal(t, before.Eliminated, after.Eliminated)
}

func TestActions_OutsideActiveRoundAreErrors(t *testing.T) {
	l := newTestLobby(t, 4)
	a := join(t, l, "alice")

	send(l, "alice", types.ClientMessage{Type: types.MsgSubmitAnswer, Answer: "4"})
	msg := waitFor(t, a, types.MsgError)
	require.Contains(t, msg.Payload.(types.ErrorPayload).Msg, "no round")
}

func TestActions_WrongGameKindIsError(t *testing.T) {
	stubs := map[game.Kind]*stubGame{
		game.KindMathQuiz: {kind: game.KindMathQuiz, dur: 100000},
	}
	l := newTestLobby(t, 4, withGames(stubs))
	a := join(t, l, "alice")
	send(l, "alice", types.ClientMessage{Type: types.MsgStartGame, TestMode: true})
	waitFor(t, a, types.GameStart(1))

	send(l, "alice", types.ClientMessage{Type: types.MsgSubmitWord, TypedWord: "cat"})
	waitFor(t, a, types.MsgError)
}

func TestEarlyWin_InvalidatesPendingRoundTimer(t *testing.T) {
	// The sprint would run 100000 ticks; bob's scripted win ends it
	// immediately, and the stale round timer must not end anything
	// twice.
	stubs := map[game.Kind]*stubGame{
		game.KindMathQuiz:   {kind: game.KindMathQuiz, dur: 0, scores: map[string]int{"alice": 10, "bob": 20}},
		game.KindTypingRace: {kind: game.KindTypingRace, dur: 0, scores: map[string]int{"bob": 10}},
		game.KindTechSprint: {kind: game.KindTechSprint, dur: 100000, winOn: "bob"},
	}
	l := newTestLobby(t, 4, withGames(stubs))
	outs := map[string]chan types.ServerMessage{
		"alice": join(t, l, "alice"),
		"bob":   join(t, l, "bob"),
	}
	startTournament(t, l, outs)

	waitFor(t, outs["bob"], types.GameStart(3))
	send(l, "bob", types.ClientMessage{Type: types.MsgSubmitRaceAnswer})

	win := waitFor(t, outs["bob"], types.MsgTournamentWinner).Payload.(types.TournamentWinnerPayload)
	require.Equal(t, "bob", win.Winner)

	require.Eventually(t, func() bool {
		return getView(t, l).Phase == PhaseFinished
	}, 2*time.Second, 5*time.Millisecond)
}

func TestBroadcast_SlowClientIsDroppedOthersUnaffected(t *testing.T) {
	l := newTestLobby(t, 4)
	a := join(t, l, "alice")

	// bob's outbox holds a single frame and nobody drains it.
	bobOut := make(chan types.ServerMessage, 1)
	reply := make(chan error, 1)
	l.Inbox() <- Join{Identity: Identity{Username: "bob"}, Outbox: bobOut, Reply: reply}
	require.NoError(t, <-reply)

	// Enough roster churn to overflow bob.
	send(l, "alice", types.ClientMessage{Type: types.MsgToggleReady})
	send(l, "alice", types.ClientMessage{Type: types.MsgToggleReady})
	send(l, "alice", types.ClientMessage{Type: types.MsgToggleReady})

	require.Eventually(t, func() bool {
		return !player(getView(t, l), "bob").Connected
	}, time.Second, time.Millisecond)

	// alice still gets broadcasts.
	send(l, "alice", types.ClientMessage{Type: types.MsgToggleReady})
	waitFor(t, a, types.MsgRosterUpdate)
}

func TestUnicastDrop_RunsFullDisconnectHandling(t *testing.T) {
	removed := make(chan string, 1)
	l := newTestLobby(t, 4, withRemove(func(id string) { removed <- id }))

	// Room for the two join frames only; the profile ack overflows it,
	// and the drop must schedule teardown like any other disconnect.
	out := make(chan types.ServerMessage, 2)
	reply := make(chan error, 1)
	l.Inbox() <- Join{Identity: Identity{Username: "alice", Shape: "circle"}, Outbox: out, Reply: reply}
	require.NoError(t, <-reply)

	send(l, "alice", types.ClientMessage{Type: types.MsgUpdateProfile, Shape: "star"})

	select {
	case id := <-removed:
		require.Equal(t, "ROOM01", id)
	case <-time.After(2 * time.Second):
		t.Fatalf("empty room never tore down after a unicast drop")
	}
}

func TestTeardown_EmptyLobbyRemovesItselfAfterGrace(t *testing.T) {
	removed := make(chan string, 1)
	l := newTestLobby(t, 4, withRemove(func(id string) { removed <- id }))
	join(t, l, "alice")

	l.Inbox() <- Disconnected{Username: "alice"}

	select {
	case id := <-removed:
		require.Equal(t, "ROOM01", id)
	case <-time.After(2 * time.Second):
		t.Fatalf("lobby never tore itself down")
	}
}

func TestTeardown_ReconnectDuringGraceCancelsIt(t *testing.T) {
	removed := make(chan string, 1)
	l := newTestLobby(t, 4, withRemove(func(id string) { removed <- id }))
	join(t, l, "alice")

	l.Inbox() <- Disconnected{Username: "alice"}
	join(t, l, "alice")

	select {
	case <-removed:
		t.Fatalf("teardown fired despite reconnect")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLobbies_RunIndependently(t *testing.T) {
	stubs := map[game.Kind]*stubGame{
		game.KindMathQuiz: {kind: game.KindMathQuiz, dur: 100000},
	}
	ctx := context.Background()
	la := NewLobby(ctx, "ROOMA", 4, Deps{Timings: fastTimings(), NewGame: func(k game.Kind, _ *rand.Rand) game.Controller {
		if s, ok := stubs[k]; ok {
			return s
		}
		return &stubGame{kind: k}
	}})
	lb := NewLobby(ctx, "ROOMB", 4, Deps{Timings: fastTimings()})
	defer func() { la.Inbox() <- Shutdown{}; lb.Inbox() <- Shutdown{} }()

	a := make(chan types.ServerMessage, 64)
	reply := make(chan error, 1)
	la.Inbox() <- Join{Identity: Identity{Username: "alice"}, Outbox: a, Reply: reply}
	require.NoError(t, <-reply)
	la.Inbox() <- FromClient{Username: "alice", Frame: types.ClientMessage{Type: types.MsgStartGame, TestMode: true}}

	// Flood lobby A with actions while B handles a join.
	for i := 0; i < 50; i++ {
		la.Inbox() <- FromClient{Username: "alice", Frame: types.ClientMessage{Type: types.MsgSubmitAnswer, Answer: "1"}}
	}

	b := make(chan types.ServerMessage, 64)
	reply = make(chan error, 1)
	lb.Inbox() <- Join{Identity: Identity{Username: "bob"}, Outbox: b, Reply: reply}
	select {
	case err := <-reply:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("lobby B blocked by lobby A's traffic")
	}
}

type captureSink struct {
	mu   sync.Mutex
	outs []Outcome
}

func (c *captureSink) PersistResult(_ context.Context, o Outcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outs = append(c.outs, o)
	return nil
}

func (c *captureSink) outcomes() []Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Outcome, len(c.outs))
	copy(out, c.outs)
	return out
}
