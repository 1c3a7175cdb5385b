package game

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/eduparty/game-backend/internal/types"
)

const (
	mathQuizDuration = 20
	mathQuizPoints   = 10
)

type problem struct {
	text   string
	answer int
}

// MathQuiz gives every player an independent stream of small arithmetic
// problems. A correct answer scores and advances the stream; a wrong
// answer reissues the same problem.
type MathQuiz struct {
	rng     *rand.Rand
	current map[string]problem
	scores  map[string]int
	over    bool
}

func NewMathQuiz(rng *rand.Rand) *MathQuiz {
	return &MathQuiz{
		rng:     rng,
		current: make(map[string]problem),
		scores:  make(map[string]int),
	}
}

func (m *MathQuiz) Kind() Kind           { return KindMathQuiz }
func (m *MathQuiz) Info() string         { return "Math Dash: solve as many problems as you can" }
func (m *MathQuiz) DurationSeconds() int { return mathQuizDuration }

func (m *MathQuiz) Begin(players []string) []Outbound {
	out := make([]Outbound, 0, len(players))
	for _, id := range players {
		p := m.nextProblem(problem{})
		m.current[id] = p
		m.scores[id] = 0
		out = append(out, unicast(id, types.ServerMessage{
			Type:    types.MsgNewQuestion,
			Payload: types.NewQuestionPayload{Text: p.text},
		}))
	}
	return out
}

func (m *MathQuiz) HandleAction(playerID string, act Action, now time.Time) ([]Outbound, error) {
	if m.over {
		return nil, ErrRoundOver
	}
	p, ok := m.current[playerID]
	if !ok {
		return nil, ErrNotInRound
	}

	val, err := strconv.Atoi(strings.TrimSpace(act.Answer))
	correct := err == nil && val == p.answer
	out := []Outbound{unicast(playerID, types.ServerMessage{
		Type:    types.MsgAnswerResult,
		Payload: types.AnswerResultPayload{Correct: correct},
	})}

	next := p
	if correct {
		m.scores[playerID] += mathQuizPoints
		next = m.nextProblem(p)
		m.current[playerID] = next
	}
	// On a wrong answer the same problem goes out again.
	out = append(out, unicast(playerID, types.ServerMessage{
		Type:    types.MsgNewQuestion,
		Payload: types.NewQuestionPayload{Text: next.text},
	}))
	return out, nil
}

func (m *MathQuiz) ForceEnd(time.Time) { m.over = true }
func (m *MathQuiz) Complete() bool     { return m.over }

func (m *MathQuiz) FinalScores() map[string]int {
	scores := make(map[string]int, len(m.scores))
	for id, s := range m.scores {
		scores[id] = s
	}
	return scores
}

func (m *MathQuiz) Winner() (string, bool) { return "", false }

// nextProblem generates a problem distinct from prev so a correct
// answer is always followed by something new.
func (m *MathQuiz) nextProblem(prev problem) problem {
	for {
		p := m.generate()
		if p.text != prev.text {
			return p
		}
	}
}

func (m *MathQuiz) generate() problem {
	switch m.rng.Intn(3) {
	case 0:
		a, b := m.rng.Intn(20)+1, m.rng.Intn(20)+1
		return problem{text: fmt.Sprintf("%d + %d", a, b), answer: a + b}
	case 1:
		a, b := m.rng.Intn(20)+1, m.rng.Intn(20)+1
		if a < b {
			a, b = b, a
		}
		return problem{text: fmt.Sprintf("%d - %d", a, b), answer: a - b}
	default:
		a, b := m.rng.Intn(10)+1, m.rng.Intn(10)+1
		return problem{text: fmt.Sprintf("%d x %d", a, b), answer: a * b}
	}
}
