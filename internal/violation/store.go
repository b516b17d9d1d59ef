// Package violation provides append-only storage for moderation violations:
// blocked profane messages and user reports with their conversation snapshot.
// Records are immutable; nothing in the orchestrator mutates or deletes them.
package violation

import (
	"context"
	"fmt"
	"time"

	"github.com/anonychat/orchestrator/internal/transcript"
)

// Violation kinds.
const (
	KindProfaneMessage = "profane_message"
	KindUserReport     = "user_report"
)

// validKinds mirrors the CHECK constraint on the violations table.
var validKinds = map[string]bool{
	KindProfaneMessage: true,
	KindUserReport:     true,
}

// Violation is a single immutable moderation record. For profane messages,
// Message holds the blocked text. For user reports, Transcript holds the
// last few entries of the room transcript for moderator review.
type Violation struct {
	Ts            time.Time          `json:"ts"`
	Kind          string             `json:"kind"`
	ParticipantID string             `json:"participant_id"`
	Nickname      string             `json:"nickname"`
	RoomID        string             `json:"room_id"`
	Message       string             `json:"message,omitempty"`
	Transcript    []transcript.Entry `json:"transcript,omitempty"`
}

// Store is the append-only violation log contract.
type Store interface {
	Append(ctx context.Context, v Violation) error
	ListAll(ctx context.Context) ([]Violation, error)
}

func validate(v Violation) error {
	if !validKinds[v.Kind] {
		return fmt.Errorf("violation: invalid kind %q", v.Kind)
	}
	return nil
}
