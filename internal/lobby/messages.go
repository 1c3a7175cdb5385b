package lobby

import "github.com/eduparty/game-backend/internal/types"

// Msg is the room actor's inbox vocabulary. Everything that mutates a
// lobby arrives as one of these, so all mutation is serialized on the
// room goroutine.
type Msg interface{ isLobbyMsg() }

// Join binds a connection to the roster. Reply carries nil on success
// or ErrLobbyFull / ErrAlreadyJoined.
type Join struct {
	Identity Identity
	Outbox   chan types.ServerMessage
	Reply    chan error
}

// Leave is the explicit LEAVE_LOBBY request.
type Leave struct{ Username string }

// Disconnected is reported by the connection's read loop when it dies.
// The seat is kept so the player can reconnect with score intact.
type Disconnected struct{ Username string }

// FromClient carries one decoded frame from a joined connection.
type FromClient struct {
	Username string
	Frame    types.ClientMessage
}

// GetState reflects internal state without data races; used by tests
// and the hub's lobby listing.
type GetState struct{ Reply chan View }

type Shutdown struct{}

// timerFired is posted back into the inbox by the room's own
// time.AfterFunc callbacks. A fire whose gen no longer matches the
// lobby's current timer generation is stale and dropped.
type timerFired struct{ gen uint64 }

// teardownFired checks the empty-room grace period.
type teardownFired struct{ gen uint64 }

func (Join) isLobbyMsg()          {}
func (Leave) isLobbyMsg()         {}
func (Disconnected) isLobbyMsg()  {}
func (FromClient) isLobbyMsg()    {}
func (GetState) isLobbyMsg()      {}
func (Shutdown) isLobbyMsg()      {}
func (timerFired) isLobbyMsg()    {}
func (teardownFired) isLobbyMsg() {}
