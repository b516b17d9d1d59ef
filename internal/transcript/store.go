// Package transcript provides per-room transcript storage. Each room owns
// one append-only sequence of entries; sequences are abandoned when a room
// ends, never deleted by the orchestrator.
package transcript

import (
	"context"
	"time"
)

// Entry is one line of a room transcript. Media messages are recorded as a
// marker string (e.g. "[media: image]") rather than the payload itself.
type Entry struct {
	Ts       time.Time `json:"ts"`
	Nickname string    `json:"nickname"`
	Content  string    `json:"content"`
}

// MediaMarker builds the transcript marker for a non-text message.
func MediaMarker(kind string) string {
	return "[media: " + kind + "]"
}

// Store is the transcript contract: one append-only sequence per room id.
type Store interface {
	Append(ctx context.Context, roomID string, e Entry) error
	Read(ctx context.Context, roomID string) ([]Entry, error)
}

// Tail returns the last n entries of a transcript, or all of them if there
// are fewer than n.
func Tail(entries []Entry, n int) []Entry {
	if len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}
