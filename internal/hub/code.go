package hub

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateCode mints a short join code: the first six characters of a
// v4 uuid, upper-cased so it is easy to read out loud. The hub rejects
// collisions with ErrCodeTaken, so callers retry.
func GenerateCode() string {
	return strings.ToUpper(uuid.NewString()[:6])
}
