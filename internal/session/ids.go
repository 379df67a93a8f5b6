package session

import "github.com/google/uuid"

// UUIDSource generates call, segment and stub identifiers as UUIDv7
// strings. Time-ordered identifiers keep trace rows naturally sorted.
type UUIDSource struct{}

// NewID returns a fresh UUIDv7 string.
func (UUIDSource) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
