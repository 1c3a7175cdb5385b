package persist

import (
	"context"
	"sync"

	"github.com/eduparty/game-backend/internal/lobby"
)

// Memory is the in-process Resolver and ResultSink used by tests and
// by servers running without a DATABASE_URL. With AllowGuests set, an
// unknown credential resolves to a guest identity named after it.
type Memory struct {
	AllowGuests bool

	mu       sync.Mutex
	tokens   map[string]lobby.Identity
	outcomes []lobby.Outcome
}

func NewMemory(allowGuests bool) *Memory {
	return &Memory{
		AllowGuests: allowGuests,
		tokens:      make(map[string]lobby.Identity),
	}
}

func (m *Memory) AddToken(token string, id lobby.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = id
}

func (m *Memory) Resolve(_ context.Context, credential string) (lobby.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.tokens[credential]; ok {
		return id, nil
	}
	if m.AllowGuests && credential != "" {
		return lobby.Identity{Username: credential, Color: "#4a148c", Shape: "circle"}, nil
	}
	return lobby.Identity{}, ErrAuth
}

func (m *Memory) PersistResult(_ context.Context, o lobby.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, o)
	return nil
}

// Outcomes returns everything persisted so far; test helper.
func (m *Memory) Outcomes() []lobby.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]lobby.Outcome, len(m.outcomes))
	copy(out, m.outcomes)
	return out
}
