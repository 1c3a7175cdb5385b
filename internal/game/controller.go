package game

import (
	"errors"
	"time"

	"github.com/eduparty/game-backend/internal/types"
)

var ErrRoundOver = errors.New("round already over")
var ErrNotInRound = errors.New("player not in round")

// Kind identifies one of the three tournament minigames.
type Kind string

const (
	KindMathQuiz   Kind = "MATH_QUIZ"
	KindTypingRace Kind = "TYPING_RACE"
	KindTechSprint Kind = "TECH_SPRINT"
)

// Action is a player's in-round input, already decoded from the wire.
type Action struct {
	Answer      string // MathQuiz
	TypedWord   string // TypingRace
	OptionIndex int    // TechSprint
	HasOption   bool
}

// Outbound is a frame the round wants delivered. An empty To means
// broadcast to the whole room.
type Outbound struct {
	To  string
	Msg types.ServerMessage
}

func unicast(to string, msg types.ServerMessage) Outbound { return Outbound{To: to, Msg: msg} }
func broadcast(msg types.ServerMessage) Outbound          { return Outbound{Msg: msg} }

// Controller is the lifecycle contract every minigame implements. The
// room actor drives it; controllers hold no goroutines and no clocks of
// their own, so they stay trivially testable.
type Controller interface {
	Kind() Kind

	// Info is the one-line description shown during GAME_PREVIEW.
	Info() string

	// DurationSeconds is the round length the room timer enforces. For
	// TechSprint it is a safety ceiling rather than the expected end.
	DurationSeconds() int

	// Begin seeds per-player state and returns the opening frames.
	Begin(players []string) []Outbound

	// HandleAction applies one player input. ErrNotInRound means the
	// caller should drop the action silently; ErrRoundOver means it
	// should ack an ERROR frame.
	HandleAction(playerID string, act Action, now time.Time) ([]Outbound, error)

	// ForceEnd marks the round over because its duration elapsed.
	ForceEnd(now time.Time)

	// Complete reports whether the round has ended, either by ForceEnd
	// or by a game-specific win condition.
	Complete() bool

	// FinalScores returns the per-player score earned in this round.
	FinalScores() map[string]int

	// Winner reports the round's outright winner, if the game kind has
	// one (TechSprint). Other kinds return false.
	Winner() (string, bool)
}
