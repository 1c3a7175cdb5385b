package lobby

import "github.com/eduparty/game-backend/internal/types"

var validShapes = map[string]bool{
	"square": true, "circle": true, "triangle": true, "star": true, "hexagon": true,
}

// Identity is the externally resolved player key plus display attrs.
// Username is immutable for the session; color and shape may change.
type Identity struct {
	Username string
	Color    string
	Shape    string
}

// playerSession is one seat in the roster. Owned exclusively by the
// room actor; disconnects null the outbox but keep the seat so a
// reconnect resumes with the same score and position.
type playerSession struct {
	identity   Identity
	outbox     chan types.ServerMessage
	joinSeq    int
	isReady    bool
	isHost     bool
	score      int // current-round score, reset at elimination boundaries
	eliminated bool
	connected  bool
}

func (p *playerSession) rosterEntry() types.RosterEntry {
	return types.RosterEntry{
		Username:  p.identity.Username,
		Color:     p.identity.Color,
		Shape:     p.identity.Shape,
		IsReady:   p.isReady,
		IsHost:    p.isHost,
		Connected: p.connected,
	}
}

// PlayerView is the test/listing projection of a seat.
type PlayerView struct {
	Username   string
	Color      string
	Shape      string
	Ready      bool
	Host       bool
	Score      int
	Eliminated bool
	Connected  bool
}

// View is a race-free snapshot of the room, served via GetState.
type View struct {
	ID         string
	Capacity   int
	Phase      Phase
	RoundIndex int
	HostName   string
	Players    []PlayerView
	Connected  int
}
