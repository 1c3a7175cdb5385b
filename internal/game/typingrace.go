package game

import (
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/eduparty/game-backend/internal/types"
)

const (
	typingRaceDuration = 20
	typingRaceWords    = 50
	typingRacePoints   = 10
)

var wordPool = []string{
	"apple", "banana", "cherry", "date", "elderberry", "fig", "grape",
	"house", "island", "jungle", "kite", "lemon", "mango", "nest",
	"ocean", "piano", "queen", "river", "sun", "tiger", "umbrella",
	"violet", "water", "xylophone", "yellow", "zebra", "cloud",
	"dream", "energy", "flower", "garden", "happy", "image", "juice",
	"king", "lion", "mouse", "night", "orange", "pencil", "quiet",
	"radio", "snake", "tree", "unicorn", "vision", "whale", "xray",
}

// TypingRace issues one shared word list; every player races their own
// cursor through it. Only an exact case-insensitive match of the word
// at the cursor scores.
type TypingRace struct {
	words   []string
	cursors map[string]int
	scores  map[string]int
	over    bool
}

func NewTypingRace(rng *rand.Rand) *TypingRace {
	words := make([]string, typingRaceWords)
	for i := range words {
		words[i] = wordPool[rng.Intn(len(wordPool))]
	}
	return &TypingRace{
		words:   words,
		cursors: make(map[string]int),
		scores:  make(map[string]int),
	}
}

func (t *TypingRace) Kind() Kind           { return KindTypingRace }
func (t *TypingRace) Info() string         { return "Speed Typing: type the words in order" }
func (t *TypingRace) DurationSeconds() int { return typingRaceDuration }

func (t *TypingRace) Begin(players []string) []Outbound {
	for _, id := range players {
		t.cursors[id] = 0
		t.scores[id] = 0
	}
	return []Outbound{broadcast(types.ServerMessage{
		Type:    types.MsgNewWords,
		Payload: types.NewWordsPayload{Words: t.words},
	})}
}

func (t *TypingRace) HandleAction(playerID string, act Action, now time.Time) ([]Outbound, error) {
	if t.over {
		return nil, ErrRoundOver
	}
	cursor, ok := t.cursors[playerID]
	if !ok {
		return nil, ErrNotInRound
	}

	// Past the end of the list the player idles until round end.
	correct := cursor < len(t.words) &&
		strings.EqualFold(strings.TrimSpace(act.TypedWord), t.words[cursor])

	out := []Outbound{unicast(playerID, types.ServerMessage{
		Type:    types.MsgWordResult,
		Payload: types.WordResultPayload{Correct: correct},
	})}
	if correct {
		t.cursors[playerID] = cursor + 1
		t.scores[playerID] += typingRacePoints
		out = append(out, broadcast(types.ServerMessage{
			Type:    types.MsgScoreUpdate,
			Payload: types.ScoreUpdatePayload{Scores: t.leaderboard()},
		}))
	}
	return out, nil
}

func (t *TypingRace) ForceEnd(time.Time) { t.over = true }
func (t *TypingRace) Complete() bool     { return t.over }

func (t *TypingRace) FinalScores() map[string]int {
	scores := make(map[string]int, len(t.scores))
	for id, s := range t.scores {
		scores[id] = s
	}
	return scores
}

func (t *TypingRace) Winner() (string, bool) { return "", false }

func (t *TypingRace) leaderboard() []types.ScoreEntry {
	entries := make([]types.ScoreEntry, 0, len(t.scores))
	for id, s := range t.scores {
		entries = append(entries, types.ScoreEntry{Username: id, Score: s})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Username < entries[j].Username
	})
	return entries
}
