// Package persist holds the two external collaborators the session
// core talks to: resolving a credential to an Identity at connection
// time, and sinking tournament outcomes into player profiles. Both
// have a postgres implementation and an in-memory one for tests and
// database-less development.
package persist

import (
	"context"
	"errors"

	"github.com/eduparty/game-backend/internal/lobby"
)

var ErrAuth = errors.New("invalid credential")

// Resolver turns an opaque credential into a player Identity.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (lobby.Identity, error)
}
