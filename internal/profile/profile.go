// Package profile manages persistent participant records: nickname, role,
// ban flag, and accumulated XP. Records are created on first contact and
// never deleted.
package profile

import (
	"context"
	"strings"
)

// Role of a participant. Admins are excluded from broadcasts.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// TierSize is the XP band width: tier index = floor(xp / TierSize),
// clamped to the highest defined tier name.
const TierSize = 100

// tierNames are the rank labels, lowest first.
var tierNames = []string{"Newcomer", "Regular", "Chatterbox", "Veteran", "Legend"}

// Participant is a stored participant record. The identity is an opaque
// external string (e.g. a messaging JID); no verification is performed.
type Participant struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Role     Role   `json:"role"`
	Banned   bool   `json:"banned"`
	XP       int    `json:"xp"`
}

// Tier returns the rank derived from the participant's XP.
func (p *Participant) Tier() string {
	return TierFor(p.XP)
}

// TierFor maps an XP total onto a tier name. Negative XP never occurs
// (awards are positive) but is clamped to the lowest tier anyway.
func TierFor(xp int) string {
	if xp < 0 {
		xp = 0
	}
	idx := xp / TierSize
	if idx >= len(tierNames) {
		idx = len(tierNames) - 1
	}
	return tierNames[idx]
}

// DefaultNickname derives the initial nickname from an identity string:
// everything before the first '@', or the whole id if there is none.
func DefaultNickname(id string) string {
	if i := strings.IndexByte(id, '@'); i > 0 {
		return id[:i]
	}
	return id
}

// Store is the narrow profile contract used by the orchestrator.
// Reads and writes are whole-record; implementations must tolerate the
// backing medium being reloaded between calls.
type Store interface {
	// GetOrCreate returns the record for id, creating a default one
	// (user role, not banned, zero XP) if it does not exist.
	GetOrCreate(ctx context.Context, id string) (*Participant, error)

	// Save persists the full record, overwriting any stored version.
	Save(ctx context.Context, p *Participant) error

	// ListAll returns every stored participant.
	ListAll(ctx context.Context) ([]*Participant, error)
}
