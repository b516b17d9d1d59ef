// Package relay binds two participants into a room and relays text and
// media between them. Every relayed message is appended to the room
// transcript; profane text is blocked, recorded as a violation and never
// reaches the partner. Delivery is paced by a small fixed delay without
// reordering messages from the same sender.
package relay

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anonychat/orchestrator/internal/metrics"
	"github.com/anonychat/orchestrator/internal/moderation"
	"github.com/anonychat/orchestrator/internal/profile"
	"github.com/anonychat/orchestrator/internal/protocol"
	"github.com/anonychat/orchestrator/internal/reply"
	"github.com/anonychat/orchestrator/internal/session"
	"github.com/anonychat/orchestrator/internal/transcript"
	"github.com/anonychat/orchestrator/internal/violation"
)

// DefaultPacing is the fixed delivery delay that smooths perceived pacing.
const DefaultPacing = 1500 * time.Millisecond

// ReportSnapshotSize is how many trailing transcript entries are captured
// into a user report.
const ReportSnapshotSize = 10

// deliveryBuffer bounds the per-room send backlog.
const deliveryBuffer = 64

// Sender delivers outbound messages through the messaging transport.
type Sender interface {
	SendText(ctx context.Context, id string, text string) error
	SendMedia(ctx context.Context, id string, media []byte, opts protocol.MediaOptions) error
}

// Pair is one active room as seen by the admin surface.
type Pair struct {
	RoomID string `json:"room_id"`
	UserA  string `json:"user_a"`
	UserB  string `json:"user_b"`
}

type delivery struct {
	to      string
	text    string
	media   []byte
	isMedia bool
	opts    protocol.MediaOptions
}

// room owns the paced delivery worker for one pairing. Closing done stops
// the worker; queued deliveries for a torn-down room are dropped.
type room struct {
	id         string
	userA      string
	userB      string
	deliveries chan delivery
	done       chan struct{}
	closeOnce  sync.Once
}

func (rm *room) close() {
	rm.closeOnce.Do(func() { close(rm.done) })
}

// Relay coordinates rooms, the moderation gate and the transcript log.
type Relay struct {
	registry    *session.Registry
	transcripts transcript.Store
	violations  violation.Store
	profiles    profile.Store
	filter      *moderation.Filter
	sender      Sender
	pacing      time.Duration

	mu    sync.Mutex
	rooms map[string]*room
}

// New creates a relay. A non-positive pacing falls back to DefaultPacing;
// tests pass a small value to keep delivery observable without waiting.
func New(registry *session.Registry, transcripts transcript.Store, violations violation.Store,
	profiles profile.Store, filter *moderation.Filter, sender Sender, pacing time.Duration) *Relay {
	if pacing < 0 {
		pacing = DefaultPacing
	}
	return &Relay{
		registry:    registry,
		transcripts: transcripts,
		violations:  violations,
		profiles:    profiles,
		filter:      filter,
		sender:      sender,
		pacing:      pacing,
		rooms:       make(map[string]*room),
	}
}

// Pairing creates a new room for a and b, transitions both into Paired
// symmetrically, notifies both sides and starts the delivery worker. The
// transcript starts empty: it exists only once the first entry is appended.
func (r *Relay) Pairing(ctx context.Context, a, b string) string {
	roomID := uuid.New().String()

	r.registry.Set(a, session.State{Mode: session.ModePaired, PartnerID: b, RoomID: roomID})
	r.registry.Set(b, session.State{Mode: session.ModePaired, PartnerID: a, RoomID: roomID})

	rm := &room{
		id:         roomID,
		userA:      a,
		userB:      b,
		deliveries: make(chan delivery, deliveryBuffer),
		done:       make(chan struct{}),
	}
	r.mu.Lock()
	r.rooms[roomID] = rm
	r.mu.Unlock()
	go r.deliverLoop(rm)
	metrics.ActiveRooms.Inc()

	log.Printf("[relay] room %s created: %s <-> %s", roomID, a, b)

	r.notify(ctx, a, reply.Paired())
	r.notify(ctx, b, reply.Paired())
	return roomID
}

// HandleMessage processes one in-room message from a paired participant.
// p is the sender's profile record (already loaded by the dispatcher).
func (r *Relay) HandleMessage(ctx context.Context, p *profile.Participant, msg protocol.InboundMessage) {
	st := r.registry.Get(p.ID)
	if st.Mode != session.ModePaired {
		return
	}
	partnerID, roomID := st.PartnerID, st.RoomID
	lower := strings.ToLower(strings.TrimSpace(msg.Text))

	switch lower {
	case "!stop", "!skip":
		r.teardown(roomID)
		r.notify(ctx, p.ID, reply.SessionEnded())
		r.notify(ctx, partnerID, reply.PartnerLeft())
		return
	case "!report":
		r.report(ctx, p, partnerID, roomID)
		return
	}

	// Media passes through without profanity inspection but still leaves
	// a marker in the transcript.
	if msg.HasMedia && (msg.MediaKind == protocol.MediaImage || msg.MediaKind == protocol.MediaSticker) {
		r.notify(ctx, p.ID, reply.MediaForwarding())
		r.appendTranscript(ctx, roomID, p.Nickname, transcript.MediaMarker(msg.MediaKind))

		opts := protocol.MediaOptions{}
		if msg.MediaKind == protocol.MediaImage {
			opts.Caption = msg.Text
		}
		r.enqueue(roomID, delivery{to: partnerID, media: msg.Media, isMedia: true, opts: opts})
		metrics.MessagesTotal.WithLabelValues("media").Inc()
		return
	}

	// Moderation gate: blocked text is recorded, never relayed, never
	// appended to the transcript. Persistence failure must not break the
	// relay path, so the warning goes out regardless.
	if result := r.filter.Check(msg.Text); result.Blocked {
		v := violation.Violation{
			Ts:            time.Now(),
			Kind:          violation.KindProfaneMessage,
			ParticipantID: p.ID,
			Nickname:      p.Nickname,
			RoomID:        roomID,
			Message:       msg.Text,
		}
		if err := r.violations.Append(ctx, v); err != nil {
			log.Printf("[relay] record violation room=%s: %v", roomID, err)
		}
		metrics.ViolationsTotal.WithLabelValues(violation.KindProfaneMessage).Inc()
		metrics.MessagesTotal.WithLabelValues("blocked").Inc()
		r.notify(ctx, p.ID, reply.ProfanityWarning())
		return
	}

	r.appendTranscript(ctx, roomID, p.Nickname, msg.Text)
	r.enqueue(roomID, delivery{to: partnerID, text: msg.Text})
	metrics.MessagesTotal.WithLabelValues("relayed").Inc()
}

// report captures the last transcript entries into a user-report violation
// and closes the room. The report is filed independently of any moderation
// outcome; a read or persistence failure is logged and the session still
// ends.
func (r *Relay) report(ctx context.Context, reporter *profile.Participant, partnerID, roomID string) {
	reportedNick := profile.DefaultNickname(partnerID)
	if partner, err := r.profiles.GetOrCreate(ctx, partnerID); err == nil {
		reportedNick = partner.Nickname
	}

	history, err := r.transcripts.Read(ctx, roomID)
	if err != nil {
		log.Printf("[relay] read transcript for report room=%s: %v", roomID, err)
	}

	v := violation.Violation{
		Ts:            time.Now(),
		Kind:          violation.KindUserReport,
		ParticipantID: partnerID,
		Nickname:      reportedNick,
		RoomID:        roomID,
		Transcript:    transcript.Tail(history, ReportSnapshotSize),
	}
	if err := r.violations.Append(ctx, v); err != nil {
		log.Printf("[relay] record report room=%s: %v", roomID, err)
	}
	metrics.ViolationsTotal.WithLabelValues(violation.KindUserReport).Inc()

	r.teardown(roomID)
	r.notify(ctx, reporter.ID, reply.ReportAccepted())
	r.notify(ctx, partnerID, reply.ReportedSessionEnded())
}

// teardown resets both participants to Idle and stops the delivery worker.
// The transcript is retained.
func (r *Relay) teardown(roomID string) {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if ok {
		delete(r.rooms, roomID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	rm.close()
	r.registry.Clear(rm.userA)
	r.registry.Clear(rm.userB)
	metrics.ActiveRooms.Dec()
	log.Printf("[relay] room %s closed", roomID)
}

// ActivePairs returns a snapshot of the open rooms for the admin surface.
func (r *Relay) ActivePairs() []Pair {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Pair, 0, len(r.rooms))
	for _, rm := range r.rooms {
		out = append(out, Pair{RoomID: rm.id, UserA: rm.userA, UserB: rm.userB})
	}
	return out
}

func (r *Relay) appendTranscript(ctx context.Context, roomID, nickname, content string) {
	e := transcript.Entry{Ts: time.Now(), Nickname: nickname, Content: content}
	if err := r.transcripts.Append(ctx, roomID, e); err != nil {
		log.Printf("[relay] append transcript room=%s: %v", roomID, err)
	}
}

func (r *Relay) enqueue(roomID string, d delivery) {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	r.mu.Unlock()
	if !ok {
		return
	}

	select {
	case rm.deliveries <- d:
	default:
		log.Printf("[relay] room %s delivery backlog full, dropping message", roomID)
	}
}

// deliverLoop drains the room's FIFO delivery channel, sleeping the pacing
// delay before each send. One worker per room preserves single-sender
// ordering; interleaving across the two senders follows arrival order.
func (r *Relay) deliverLoop(rm *room) {
	for {
		select {
		case <-rm.done:
			return
		case d := <-rm.deliveries:
			if r.pacing > 0 {
				select {
				case <-rm.done:
					return
				case <-time.After(r.pacing):
				}
			}
			ctx := context.Background()
			var err error
			if d.isMedia {
				err = r.sender.SendMedia(ctx, d.to, d.media, d.opts)
			} else {
				err = r.sender.SendText(ctx, d.to, d.text)
			}
			if err != nil {
				log.Printf("[relay] deliver to %s room=%s: %v", d.to, rm.id, err)
			}
		}
	}
}

func (r *Relay) notify(ctx context.Context, id, text string) {
	if err := r.sender.SendText(ctx, id, text); err != nil {
		log.Printf("[relay] notify %s: %v", id, err)
	}
}
