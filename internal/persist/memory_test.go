package persist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eduparty/game-backend/internal/lobby"
)

func TestMemory_ResolveKnownToken(t *testing.T) {
	m := NewMemory(false)
	m.AddToken("tok-1", lobby.Identity{Username: "alice", Color: "#ff0000", Shape: "star"})

	id, err := m.Resolve(context.Background(), "tok-1")
	require.NoError(t, err)
	require.Equal(t, "alice", id.Username)
	require.Equal(t, "star", id.Shape)
}

func TestMemory_UnknownTokenRejectedWithoutGuests(t *testing.T) {
	m := NewMemory(false)

	_, err := m.Resolve(context.Background(), "nope")
	require.ErrorIs(t, err, ErrAuth)
}

func TestMemory_GuestModeMintsIdentityFromCredential(t *testing.T) {
	m := NewMemory(true)

	id, err := m.Resolve(context.Background(), "dana")
	require.NoError(t, err)
	require.Equal(t, "dana", id.Username)

	_, err = m.Resolve(context.Background(), "")
	require.ErrorIs(t, err, ErrAuth, "empty credential never resolves")
}

func TestMemory_RecordsOutcomes(t *testing.T) {
	m := NewMemory(true)

	o := lobby.Outcome{LobbyID: "ROOM01", Winner: "alice", Scores: map[string]int{"alice": 50, "bob": 10}}
	require.NoError(t, m.PersistResult(context.Background(), o))

	got := m.Outcomes()
	require.Len(t, got, 1)
	require.Equal(t, "alice", got[0].Winner)
}
