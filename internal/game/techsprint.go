package game

import (
	"math/rand"
	"time"

	"github.com/eduparty/game-backend/internal/types"
)

const (
	techSprintCeiling = 90
	techSprintSteps   = 10
)

type raceQuestion struct {
	text    string
	answer  int
	options []string
}

var techQuestions = []raceQuestion{
	{"Which isn't a programming language?", 2, []string{"Java", "Python", "HTML", "C++"}},
	{"What does CPU stand for?", 0, []string{"Central Processing Unit", "Central Process Unit", "Computer Personal Unit", "Central Processor Unit"}},
	{"Which language is used for styling?", 1, []string{"HTML", "CSS", "Python", "Java"}},
	{"Who created Python?", 3, []string{"Elon Musk", "Bill Gates", "Mark Zuckerberg", "Guido van Rossum"}},
	{"What is 101 in binary?", 0, []string{"5", "3", "2", "6"}},
	{"RAM stands for?", 1, []string{"Read Access Memory", "Random Access Memory", "Run Access Memory", "Real Access Memory"}},
	{"Which keyword defines a function in Python?", 2, []string{"func", "function", "def", "define"}},
	{"Smallest unit of data?", 0, []string{"Bit", "Byte", "Kilobyte", "Megabyte"}},
	{"Language for Android apps?", 2, []string{"Swift", "Ruby", "Kotlin", "PHP"}},
	{"Which is a database?", 3, []string{"React", "Express", "Node", "PostgreSQL"}},
}

type sprinter struct {
	position  int
	question  int       // index into the shuffled question order
	reachedAt time.Time // when the current position was reached, for tie-breaks
}

// TechSprint is the final race: a correct answer moves a player one
// step forward, a wrong one a step back, and the first player to reach
// the last step wins the tournament on the spot. Correctness is
// recomputed server-side against the question this controller issued;
// the client's own verdict is never trusted.
type TechSprint struct {
	order    []int // shuffled indexes into techQuestions
	steps    int
	players  map[string]*sprinter
	joined   []string // join order, for deterministic scoring output
	bonuses  map[string]int
	finished []string
	winner   string
	over     bool
}

func NewTechSprint(rng *rand.Rand) *TechSprint {
	order := rng.Perm(len(techQuestions))
	return &TechSprint{
		order:   order,
		steps:   techSprintSteps,
		players: make(map[string]*sprinter),
		bonuses: make(map[string]int),
	}
}

func (t *TechSprint) Kind() Kind           { return KindTechSprint }
func (t *TechSprint) Info() string         { return "Tech Sprint: answer to race to the finish line" }
func (t *TechSprint) DurationSeconds() int { return techSprintCeiling }

func (t *TechSprint) Begin(players []string) []Outbound {
	out := make([]Outbound, 0, len(players))
	for _, id := range players {
		t.players[id] = &sprinter{}
		t.joined = append(t.joined, id)
		out = append(out, unicast(id, t.questionFrame(0)))
	}
	return out
}

func (t *TechSprint) HandleAction(playerID string, act Action, now time.Time) ([]Outbound, error) {
	if t.over {
		return nil, ErrRoundOver
	}
	s, ok := t.players[playerID]
	if !ok {
		return nil, ErrNotInRound
	}

	q := techQuestions[t.order[s.question%len(t.order)]]
	correct := act.HasOption && act.OptionIndex == q.answer

	prev := s.position
	if correct {
		s.position++
	} else {
		s.position--
	}
	if s.position < 0 {
		s.position = 0
	}
	if s.position > t.steps {
		s.position = t.steps
	}
	if s.position != prev {
		s.reachedAt = now
	}
	s.question++

	pos := s.position
	out := []Outbound{unicast(playerID, types.ServerMessage{
		Type:    types.MsgAnswerResult,
		Payload: types.AnswerResultPayload{Correct: correct, NewPos: &pos},
	})}
	if s.position != prev {
		out = append(out, broadcast(types.ServerMessage{
			Type:    types.MsgPlayerMoved,
			Payload: types.PlayerMovedPayload{PlayerID: playerID, NewPos: s.position},
		}))
	}

	if s.position >= t.steps {
		// First to the line wins; the round is over for everyone.
		t.finished = append(t.finished, playerID)
		bonus := finishBonus(len(t.finished))
		t.bonuses[playerID] = bonus
		t.winner = playerID
		t.over = true
		out = append(out, unicast(playerID, types.ServerMessage{
			Type:    types.MsgPlayerFinished,
			Payload: types.PlayerFinishedPayload{Rank: len(t.finished), Bonus: bonus},
		}))
		return out, nil
	}

	out = append(out, unicast(playerID, t.questionFrame(s.question)))
	return out, nil
}

// ForceEnd fires when the safety ceiling elapses without a finisher:
// the highest position wins, exact ties going to whoever reached that
// position first.
func (t *TechSprint) ForceEnd(now time.Time) {
	if t.over {
		return
	}
	t.over = true
	var best string
	for _, id := range t.joined {
		s := t.players[id]
		if best == "" {
			best = id
			continue
		}
		b := t.players[best]
		if s.position > b.position ||
			(s.position == b.position && s.reachedAt.Before(b.reachedAt)) {
			best = id
		}
	}
	if best != "" {
		t.winner = best
		t.bonuses[best] = finishBonus(1)
	}
}

func (t *TechSprint) Complete() bool { return t.over }

func (t *TechSprint) FinalScores() map[string]int {
	scores := make(map[string]int, len(t.players))
	for _, id := range t.joined {
		scores[id] = t.bonuses[id]
	}
	return scores
}

func (t *TechSprint) Winner() (string, bool) { return t.winner, t.winner != "" }

// Position reports a player's current track position.
func (t *TechSprint) Position(playerID string) int {
	if s, ok := t.players[playerID]; ok {
		return s.position
	}
	return 0
}

func (t *TechSprint) questionFrame(n int) types.ServerMessage {
	q := techQuestions[t.order[n%len(t.order)]]
	return types.ServerMessage{
		Type:    types.MsgRaceQuestion,
		Payload: types.RaceQuestionPayload{Text: q.text, Options: q.options},
	}
}

func finishBonus(rank int) int {
	switch rank {
	case 1:
		return 50
	case 2:
		return 30
	case 3:
		return 15
	default:
		return 5
	}
}
