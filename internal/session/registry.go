// Package session holds the per-participant session state machine. The
// registry is the single source of truth for each participant's current
// mode; exactly one state exists per participant at any instant.
//
// Every transition bumps a per-participant generation token. Timers capture
// the token when armed and compare it before acting, so a timer whose state
// has moved on fires as a silent no-op.
package session

import (
	"log"
	"sync"
	"time"
)

// Mode is the discriminator of the session state union.
type Mode int

const (
	ModeIdle Mode = iota
	ModeWaiting
	ModePaired
	ModeChoosingGame
	ModePlaying
	ModeAIFallback
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeWaiting:
		return "waiting"
	case ModePaired:
		return "paired"
	case ModeChoosingGame:
		return "choosing_game"
	case ModePlaying:
		return "playing"
	case ModeAIFallback:
		return "ai_fallback"
	default:
		return "unknown"
	}
}

// State is the tagged session state. Only the fields belonging to the
// active Mode are meaningful; the rest are zero.
type State struct {
	Mode Mode

	// Waiting
	EnqueuedAt time.Time

	// Paired
	PartnerID string
	RoomID    string

	// Playing
	Game     string
	Answer   string
	Deadline time.Time
}

// Idle is the default state for any participant the registry has not seen.
var Idle = State{Mode: ModeIdle}

// Registry owns all session states behind one mutex. It holds no business
// rules beyond single-state exclusivity; transitions are decided by the
// orchestrator and its components.
type Registry struct {
	mu     sync.Mutex
	states map[string]State
	tokens map[string]uint64 // monotonically increasing, never deleted
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		states: make(map[string]State),
		tokens: make(map[string]uint64),
	}
}

// Get returns the participant's current state, defaulting to Idle.
func (r *Registry) Get(id string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.states[id]; ok {
		return st
	}
	return Idle
}

// Set replaces the participant's state and returns the new generation
// token. Replacing the single map entry is what enforces exclusivity: a
// participant can never be in two modes at once.
func (r *Registry) Set(id string, st State) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setLocked(id, st)
}

// Clear resets the participant to Idle and returns the new token.
func (r *Registry) Clear(id string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.states[id]
	if ok {
		delete(r.states, id)
	}
	r.tokens[id]++
	if ok && old.Mode != ModeIdle {
		log.Printf("[session] %s: %s -> idle", id, old.Mode)
	}
	return r.tokens[id]
}

// GetWithToken returns the current state together with the generation
// token observed at the same instant, for callers that will later use
// CompareAndSet to act only if nothing changed in between.
func (r *Registry) GetWithToken(id string) (State, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[id]
	if !ok {
		st = Idle
	}
	return st, r.tokens[id]
}

// Token returns the participant's current generation token.
func (r *Registry) Token(id string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokens[id]
}

// CompareAndSet atomically replaces the state only if the participant's
// token still equals the captured one. It returns the new token and whether
// the swap happened. Timer callbacks use this to guarantee they still own
// the state they are about to mutate.
func (r *Registry) CompareAndSet(id string, token uint64, st State) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tokens[id] != token {
		return r.tokens[id], false
	}
	return r.setLocked(id, st), true
}

// CompareAndClear atomically resets to Idle only if the token still
// matches. Stale calls are silent no-ops.
func (r *Registry) CompareAndClear(id string, token uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tokens[id] != token {
		return false
	}
	old, ok := r.states[id]
	if ok {
		delete(r.states, id)
	}
	r.tokens[id]++
	if ok && old.Mode != ModeIdle {
		log.Printf("[session] %s: %s -> idle", id, old.Mode)
	}
	return true
}

// Snapshot returns a copy of all non-idle states, keyed by participant id.
func (r *Registry) Snapshot() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]State, len(r.states))
	for id, st := range r.states {
		out[id] = st
	}
	return out
}

func (r *Registry) setLocked(id string, st State) uint64 {
	old := r.states[id]
	r.states[id] = st
	r.tokens[id]++
	if old.Mode != st.Mode {
		log.Printf("[session] %s: %s -> %s", id, old.Mode, st.Mode)
	}
	return r.tokens[id]
}
