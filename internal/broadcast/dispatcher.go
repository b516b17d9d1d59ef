// Package broadcast sends an admin-authored announcement to every
// eligible participant, one at a time with a randomized delay between
// sends. At most one broadcast runs at a time.
package broadcast

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/anonychat/orchestrator/internal/metrics"
	"github.com/anonychat/orchestrator/internal/profile"
)

// Jitter bounds between consecutive sends. The spread keeps the outbound
// rate irregular enough not to trip transport-side flood detection.
const (
	DefaultJitterMin = 3 * time.Second
	DefaultJitterMax = 11 * time.Second
)

var (
	// ErrBusy is returned when a broadcast is already in flight.
	ErrBusy = errors.New("broadcast: already running")

	// ErrEmptyMessage is returned for a blank broadcast body.
	ErrEmptyMessage = errors.New("broadcast: empty message")
)

// Sender delivers one broadcast message to one recipient.
type Sender interface {
	SendText(ctx context.Context, id string, text string) error
}

// Status is a point-in-time snapshot of the current (or last) run.
type Status struct {
	Running          bool   `json:"running"`
	Total            int    `json:"total"`
	Sent             int    `json:"sent"`
	Failed           int    `json:"failed"`
	CurrentRecipient string `json:"current_recipient,omitempty"`
}

// Dispatcher owns the single-flight broadcast loop.
type Dispatcher struct {
	profiles  profile.Store
	sender    Sender
	jitterMin time.Duration
	jitterMax time.Duration

	mu      sync.Mutex
	running bool
	status  Status
	rng     *rand.Rand
}

// New creates a dispatcher. Non-positive jitter bounds fall back to the
// defaults; tests pass tiny equal bounds to run without waiting.
func New(profiles profile.Store, sender Sender, jitterMin, jitterMax time.Duration) *Dispatcher {
	if jitterMin <= 0 && jitterMax <= 0 {
		jitterMin, jitterMax = DefaultJitterMin, DefaultJitterMax
	}
	if jitterMax < jitterMin {
		jitterMax = jitterMin
	}
	return &Dispatcher{
		profiles:  profiles,
		sender:    sender,
		jitterMin: jitterMin,
		jitterMax: jitterMax,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start validates the message, snapshots the recipient list and launches
// the send loop in the background. It returns the number of recipients the
// run will attempt. Eligibility is computed once at launch: participants
// who are banned, and admins, are excluded; a ban applied mid-run does not
// remove an already-listed recipient.
func (d *Dispatcher) Start(ctx context.Context, message string) (int, error) {
	if strings.TrimSpace(message) == "" {
		return 0, ErrEmptyMessage
	}

	all, err := d.profiles.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	recipients := make([]string, 0, len(all))
	for _, p := range all {
		if p.Banned || p.Role == profile.RoleAdmin {
			continue
		}
		recipients = append(recipients, p.ID)
	}

	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return 0, ErrBusy
	}
	d.running = true
	d.status = Status{Running: true, Total: len(recipients)}
	d.mu.Unlock()

	metrics.BroadcastsTotal.Inc()
	log.Printf("[broadcast] starting run to %d recipients", len(recipients))
	go d.run(recipients, message)
	return len(recipients), nil
}

// Status returns a copy of the current run state. After completion the
// final counts remain readable with Running false.
func (d *Dispatcher) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// run delivers to each recipient in turn. A failed send is logged and
// skipped; it never aborts the run.
func (d *Dispatcher) run(recipients []string, message string) {
	ctx := context.Background()
	for i, id := range recipients {
		if i > 0 {
			time.Sleep(d.jitter())
		}

		d.mu.Lock()
		d.status.CurrentRecipient = id
		d.mu.Unlock()

		err := d.sender.SendText(ctx, id, message)

		d.mu.Lock()
		if err != nil {
			d.status.Failed++
		} else {
			d.status.Sent++
		}
		d.mu.Unlock()
		if err != nil {
			log.Printf("[broadcast] send to %s: %v", id, err)
		}
	}

	d.mu.Lock()
	d.running = false
	d.status.Running = false
	d.status.CurrentRecipient = ""
	sent, failed := d.status.Sent, d.status.Failed
	d.mu.Unlock()
	log.Printf("[broadcast] run finished: %d sent, %d failed", sent, failed)
}

func (d *Dispatcher) jitter() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.jitterMax <= d.jitterMin {
		return d.jitterMin
	}
	return d.jitterMin + time.Duration(d.rng.Int63n(int64(d.jitterMax-d.jitterMin)))
}
