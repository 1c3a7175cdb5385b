package lobby

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/eduparty/game-backend/internal/game"
	"github.com/eduparty/game-backend/internal/types"
)

// Phase is the top-level lobby state.
type Phase string

const (
	PhaseWaiting      Phase = "WAITING"
	PhasePreview      Phase = "PREVIEW"
	PhaseTutorial     Phase = "TUTORIAL"
	PhaseCountdown    Phase = "COUNTDOWN"
	PhaseActive       Phase = "ACTIVE"
	PhaseScoring      Phase = "SCORING"
	PhaseIntermission Phase = "INTERMISSION"
	PhaseFinished     Phase = "FINISHED"
)

// roundOrder is the fixed tournament shape.
var roundOrder = []game.Kind{game.KindMathQuiz, game.KindTypingRace, game.KindTechSprint}

const countdownTicks = 3

// Timings parameterizes every server-owned timer. RoundSecond is the
// wall length of one in-round second, so tests can shrink whole rounds
// without touching the controllers.
type Timings struct {
	Preview       time.Duration
	Tutorial      time.Duration
	CountdownTick time.Duration
	Intermission  time.Duration
	Grace         time.Duration
	RoundSecond   time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		Preview:       3 * time.Second,
		Tutorial:      5 * time.Second,
		CountdownTick: time.Second,
		Intermission:  5 * time.Second,
		Grace:         60 * time.Second,
		RoundSecond:   time.Second,
	}
}

// frameKinds maps in-round client frames to the game kind they belong to.
var frameKinds = map[string]game.Kind{
	types.MsgSubmitAnswer:     game.KindMathQuiz,
	types.MsgSubmitWord:       game.KindTypingRace,
	types.MsgSubmitRaceAnswer: game.KindTechSprint,
}

func (l *Lobby) handleFrame(username string, f types.ClientMessage) {
	p, ok := l.roster[username]
	if !ok {
		return
	}

	switch f.Type {
	case types.MsgToggleReady:
		if l.phase != PhaseWaiting {
			l.sendError(username, "cannot change ready state after the game has started")
			return
		}
		p.isReady = !p.isReady
		l.broadcastRoster()

	case types.MsgStartGame:
		l.handleStart(p, f.TestMode)

	case types.MsgUpdateProfile:
		l.handleUpdateProfile(p, f.Color, f.Shape)

	case types.MsgLeaveLobby:
		l.handleLeave(username)

	case types.MsgSubmitAnswer, types.MsgSubmitWord, types.MsgSubmitRaceAnswer:
		l.handleGameAction(p, f)

	default:
		l.sendError(username, "unknown message type")
	}
}

func (l *Lobby) handleStart(p *playerSession, testMode bool) {
	if l.phase != PhaseWaiting {
		l.sendError(p.identity.Username, "game already started")
		return
	}
	if !p.isHost {
		l.sendError(p.identity.Username, "only the host can start the game")
		return
	}
	if !testMode {
		connected := 0
		ready := 0
		for _, m := range l.roster {
			if m.connected {
				connected++
				if m.isReady {
					ready++
				}
			}
		}
		if connected < 2 || ready < connected {
			l.sendError(p.identity.Username, "all players must be ready to start")
			return
		}
	}
	l.log.Info("tournament starting", zap.Bool("test_mode", testMode))
	l.roundIndex = 0
	l.enterPreview()
}

func (l *Lobby) handleUpdateProfile(p *playerSession, color, shape string) {
	if shape != "" && !validShapes[shape] {
		l.sendError(p.identity.Username, "invalid shape")
		return
	}
	if color != "" {
		p.identity.Color = color
	}
	if shape != "" {
		p.identity.Shape = shape
	}
	l.sendTo(p, types.ServerMessage{Type: types.MsgProfileAck, Payload: types.ProfileAckPayload{
		Username: p.identity.Username,
		Color:    p.identity.Color,
		Shape:    p.identity.Shape,
	}})
	l.broadcastRoster()
}

func (l *Lobby) handleGameAction(p *playerSession, f types.ClientMessage) {
	if l.phase != PhaseActive || l.current == nil {
		l.sendError(p.identity.Username, "no round in progress")
		return
	}
	if frameKinds[f.Type] != l.current.Kind() {
		l.sendError(p.identity.Username, "action does not match the current game")
		return
	}

	act := game.Action{Answer: f.Answer, TypedWord: f.TypedWord}
	if f.AnswerIndex != nil {
		act.OptionIndex = *f.AnswerIndex
		act.HasOption = true
	}

	outs, err := l.current.HandleAction(p.identity.Username, act, time.Now())
	switch err {
	case nil:
	case game.ErrNotInRound:
		// Spectators and eliminated players are ignored silently.
		return
	case game.ErrRoundOver:
		l.sendError(p.identity.Username, "round is over")
		return
	default:
		l.sendError(p.identity.Username, err.Error())
		return
	}
	l.deliver(outs)

	if l.current.Complete() {
		// Won before the clock ran out; the pending round timer is
		// stale from here on.
		l.timerGen++
		l.endRound()
	}
}

// schedulePhase arms the single phase timer. Bumping the generation
// first invalidates whatever was pending.
func (l *Lobby) schedulePhase(d time.Duration) {
	l.timerGen++
	gen := l.timerGen
	time.AfterFunc(d, func() { l.enqueue(timerFired{gen: gen}) })
}

func (l *Lobby) onTimer(gen uint64) {
	if gen != l.timerGen {
		l.log.Debug("ignoring stale timer fire", zap.Uint64("gen", gen))
		return
	}
	switch l.phase {
	case PhasePreview:
		l.enterTutorial()
	case PhaseTutorial:
		l.enterCountdown()
	case PhaseCountdown:
		l.countdownTick()
	case PhaseActive:
		if l.current != nil {
			l.current.ForceEnd(time.Now())
		}
		l.endRound()
	case PhaseIntermission:
		if l.roundIndex+1 < len(roundOrder) {
			l.roundIndex++
			l.enterPreview()
		} else {
			l.enterFinished()
		}
	}
}

func (l *Lobby) enterPreview() {
	l.phase = PhasePreview
	kind := roundOrder[l.roundIndex]
	c := l.newGame(kind, l.rng)
	l.broadcast(types.ServerMessage{Type: types.MsgGamePreview, Payload: types.GamePreviewPayload{
		GameInfo:    c.Info(),
		RoundNumber: l.roundIndex + 1,
	}})
	l.schedulePhase(l.timings.Preview)
}

func (l *Lobby) enterTutorial() {
	l.phase = PhaseTutorial
	l.broadcast(types.ServerMessage{Type: types.MsgGameTutorial, Payload: types.GamePreviewPayload{
		GameInfo:    l.newGame(roundOrder[l.roundIndex], l.rng).Info(),
		RoundNumber: l.roundIndex + 1,
	}})
	l.schedulePhase(l.timings.Tutorial)
}

func (l *Lobby) enterCountdown() {
	l.phase = PhaseCountdown
	l.countdown = countdownTicks
	l.broadcast(types.ServerMessage{Type: types.MsgCountdown,
		Payload: types.CountdownPayload{SecondsLeft: l.countdown}})
	l.schedulePhase(l.timings.CountdownTick)
}

func (l *Lobby) countdownTick() {
	l.countdown--
	if l.countdown > 0 {
		l.broadcast(types.ServerMessage{Type: types.MsgCountdown,
			Payload: types.CountdownPayload{SecondsLeft: l.countdown}})
		l.schedulePhase(l.timings.CountdownTick)
		return
	}
	l.enterActive()
}

func (l *Lobby) enterActive() {
	l.phase = PhaseActive
	kind := roundOrder[l.roundIndex]
	l.current = l.newGame(kind, l.rng)

	start := types.GameStartPayload{Duration: l.current.DurationSeconds()}
	if kind == game.KindTechSprint {
		start.TotalSteps = 10
	}
	l.broadcast(types.ServerMessage{Type: types.GameStart(l.roundIndex + 1), Payload: start})

	players := make([]string, 0)
	for _, p := range l.activePlayers() {
		players = append(players, p.identity.Username)
	}
	l.deliver(l.current.Begin(players))
	l.log.Info("round active", zap.Int("round", l.roundIndex+1), zap.String("game", string(kind)))

	l.schedulePhase(time.Duration(l.current.DurationSeconds()) * l.timings.RoundSecond)
}

// endRound runs SCORING and immediately moves to INTERMISSION; the
// SCORING phase has no duration of its own.
func (l *Lobby) endRound() {
	l.phase = PhaseScoring
	scores := l.current.FinalScores()
	for name, s := range scores {
		if p, ok := l.roster[name]; ok {
			p.score += s
		}
	}
	l.broadcastScores()

	if l.roundIndex+1 < len(roundOrder) {
		advancing, eliminated := l.applyElimination()
		l.broadcast(types.ServerMessage{Type: types.MsgRoundEnd, Payload: types.RoundEndPayload{
			Advancing:  advancing,
			Eliminated: eliminated,
			NextGame:   string(roundOrder[l.roundIndex+1]),
		}})
	} else {
		l.winner = l.decideWinner()
		l.broadcast(types.ServerMessage{Type: types.MsgTournamentWinner,
			Payload: types.TournamentWinnerPayload{Winner: l.winner}})
	}

	l.current = nil
	l.phase = PhaseIntermission
	l.schedulePhase(l.timings.Intermission)
}

// applyElimination keeps the top half (at least one) of the round's
// connected players. Equal scores at the cutoff favor the earlier
// joiner. Advancing players start the next round from zero.
func (l *Lobby) applyElimination() (advancing, eliminated []string) {
	active := l.activePlayers()
	if len(active) == 0 {
		return nil, nil
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].score != active[j].score {
			return active[i].score > active[j].score
		}
		return active[i].joinSeq < active[j].joinSeq
	})

	keep := (len(active) + 1) / 2
	if keep < 1 {
		keep = 1
	}
	for i, p := range active {
		if i < keep {
			p.score = 0
			advancing = append(advancing, p.identity.Username)
		} else {
			p.eliminated = true
			eliminated = append(eliminated, p.identity.Username)
		}
	}
	l.log.Info("elimination applied",
		zap.Strings("advancing", advancing), zap.Strings("eliminated", eliminated))
	return advancing, eliminated
}

// decideWinner prefers the race's own verdict, falling back to best
// score in join order if the final round somehow produced none.
func (l *Lobby) decideWinner() string {
	if w, ok := l.current.Winner(); ok {
		return w
	}
	var best *playerSession
	for _, p := range l.activePlayers() {
		if best == nil || p.score > best.score {
			best = p
		}
	}
	if best == nil {
		return ""
	}
	return best.identity.Username
}

func (l *Lobby) broadcastScores() {
	entries := make([]types.ScoreEntry, 0, len(l.roster))
	for _, p := range l.rosterByJoin() {
		entries = append(entries, types.ScoreEntry{Username: p.identity.Username, Score: p.score})
	}
	l.broadcast(types.ServerMessage{Type: types.MsgScoreUpdate,
		Payload: types.ScoreUpdatePayload{Scores: entries}})
}

func (l *Lobby) enterFinished() {
	l.phase = PhaseFinished
	l.log.Info("tournament finished", zap.String("winner", l.winner))
	l.persistOutcome()
	l.scheduleTeardown()
}

// persistOutcome hands the result to the external sink without letting
// its latency or failure touch the room.
func (l *Lobby) persistOutcome() {
	if l.sink == nil {
		return
	}
	outcome := Outcome{
		LobbyID: l.id,
		Winner:  l.winner,
		Scores:  make(map[string]int, len(l.roster)),
	}
	for name, p := range l.roster {
		outcome.Scores[name] = p.score
	}
	log := l.log
	sink := l.sink
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sink.PersistResult(ctx, outcome); err != nil {
			log.Error("failed to persist tournament outcome", zap.Error(err))
		}
	}()
}

func (l *Lobby) scheduleTeardown() {
	l.teardownGen++
	gen := l.teardownGen
	time.AfterFunc(l.timings.Grace, func() { l.enqueue(teardownFired{gen: gen}) })
}

func (l *Lobby) cancelTeardown() { l.teardownGen++ }

func (l *Lobby) onTeardown(gen uint64) {
	if gen != l.teardownGen {
		return
	}
	if l.phase != PhaseFinished && l.connectedCount() > 0 {
		return
	}
	l.log.Info("tearing down lobby")
	l.terminate(true)
}
