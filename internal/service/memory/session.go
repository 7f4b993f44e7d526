package memory

import (
	"strings"

	"github.com/google/uuid"
)

const (
	// KeyPrefix is shared by every session key so sessions can be enumerated.
	KeyPrefix = "chat-memory:"
	// EphemeralPrefix marks sessions that are never compacted by the sweep.
	EphemeralPrefix = "temp-"
)

// Key maps a session id to its storage key. Already prefixed ids are kept as is.
func Key(sessionID string) string {
	if strings.HasPrefix(sessionID, KeyPrefix) {
		return sessionID
	}
	return KeyPrefix + sessionID
}

// SessionID is the inverse of Key.
func SessionID(key string) string {
	return strings.TrimPrefix(key, KeyPrefix)
}

func IsEphemeral(sessionID string) bool {
	return strings.HasPrefix(SessionID(sessionID), EphemeralPrefix)
}

func NewEphemeralSessionID() string {
	return EphemeralPrefix + uuid.NewString()
}
