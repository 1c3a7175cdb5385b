package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eduparty/game-backend/internal/types"
)

func newTwoWordRace(players ...string) *TypingRace {
	tr := NewTypingRace(newTestRand())
	tr.words = []string{"cat", "dog"}
	tr.Begin(players)
	return tr
}

func TestTypingRace_SequentialMatchesScoreAndAdvance(t *testing.T) {
	tr := newTwoWordRace("alice")

	for _, word := range []string{"cat", "dog"} {
		out, err := tr.HandleAction("alice", Action{TypedWord: word}, time.Now())
		require.NoError(t, err)
		res := out[0].Msg.Payload.(types.WordResultPayload)
		require.True(t, res.Correct, "word %q", word)
	}

	require.Equal(t, 2, tr.cursors["alice"], "cursor ends past list end")
	require.Equal(t, 2*typingRacePoints, tr.FinalScores()["alice"])
}

func TestTypingRace_MatchIsCaseInsensitive(t *testing.T) {
	tr := newTwoWordRace("alice")

	out, err := tr.HandleAction("alice", Action{TypedWord: "  CaT "}, time.Now())
	require.NoError(t, err)
	require.True(t, out[0].Msg.Payload.(types.WordResultPayload).Correct)
}

func TestTypingRace_WrongWordDoesNotAdvance(t *testing.T) {
	tr := newTwoWordRace("alice")

	// "dog" is the second word; the cursor is still on "cat".
	out, err := tr.HandleAction("alice", Action{TypedWord: "dog"}, time.Now())
	require.NoError(t, err)
	require.False(t, out[0].Msg.Payload.(types.WordResultPayload).Correct)
	require.Equal(t, 0, tr.cursors["alice"])
	require.Equal(t, 0, tr.FinalScores()["alice"])
}

func TestTypingRace_ExhaustedListLeavesPlayerIdle(t *testing.T) {
	tr := newTwoWordRace("alice")
	tr.cursors["alice"] = 2

	out, err := tr.HandleAction("alice", Action{TypedWord: "cat"}, time.Now())
	require.NoError(t, err)
	require.False(t, out[0].Msg.Payload.(types.WordResultPayload).Correct)
	require.Equal(t, 0, tr.FinalScores()["alice"])
}

func TestTypingRace_PlayersShareListWithIndependentCursors(t *testing.T) {
	tr := newTwoWordRace("alice", "bob")

	_, err := tr.HandleAction("alice", Action{TypedWord: "cat"}, time.Now())
	require.NoError(t, err)

	require.Equal(t, 1, tr.cursors["alice"])
	require.Equal(t, 0, tr.cursors["bob"])
}

func TestTypingRace_CorrectWordBroadcastsLeaderboard(t *testing.T) {
	tr := newTwoWordRace("alice", "bob")

	out, err := tr.HandleAction("alice", Action{TypedWord: "cat"}, time.Now())
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Empty(t, out[1].To, "leaderboard goes to the whole room")

	scores := out[1].Msg.Payload.(types.ScoreUpdatePayload).Scores
	require.Equal(t, "alice", scores[0].Username)
	require.Equal(t, typingRacePoints, scores[0].Score)
}

func TestTypingRace_ActionAfterEndIsRejected(t *testing.T) {
	tr := newTwoWordRace("alice")
	tr.ForceEnd(time.Now())

	_, err := tr.HandleAction("alice", Action{TypedWord: "cat"}, time.Now())
	require.ErrorIs(t, err, ErrRoundOver)
}
