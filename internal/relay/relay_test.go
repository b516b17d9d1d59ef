package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anonychat/orchestrator/internal/moderation"
	"github.com/anonychat/orchestrator/internal/profile"
	"github.com/anonychat/orchestrator/internal/protocol"
	"github.com/anonychat/orchestrator/internal/session"
	"github.com/anonychat/orchestrator/internal/transcript"
	"github.com/anonychat/orchestrator/internal/violation"
)

type sentText struct {
	To   string
	Text string
}

type sentMedia struct {
	To   string
	Opts protocol.MediaOptions
}

// fakeSender records outbound sends for assertions.
type fakeSender struct {
	mu    sync.Mutex
	texts []sentText
	media []sentMedia
}

func (f *fakeSender) SendText(_ context.Context, id, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, sentText{To: id, Text: text})
	return nil
}

func (f *fakeSender) SendMedia(_ context.Context, id string, _ []byte, opts protocol.MediaOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media = append(f.media, sentMedia{To: id, Opts: opts})
	return nil
}

func (f *fakeSender) textsTo(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.texts {
		if s.To == id {
			out = append(out, s.Text)
		}
	}
	return out
}

func (f *fakeSender) mediaTo(id string) []sentMedia {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMedia
	for _, s := range f.media {
		if s.To == id {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeSender) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = nil
	f.media = nil
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

type fixture struct {
	registry    *session.Registry
	transcripts *transcript.Memory
	violations  *violation.Memory
	profiles    *profile.Memory
	sender      *fakeSender
	relay       *Relay
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		registry:    session.NewRegistry(),
		transcripts: transcript.NewMemory(),
		violations:  violation.NewMemory(),
		profiles:    profile.NewMemory(),
		sender:      &fakeSender{},
	}
	filter := moderation.NewFilterWithWords([]string{"contoh"})
	f.relay = New(f.registry, f.transcripts, f.violations, f.profiles, filter, f.sender, 0)
	return f
}

func (f *fixture) participant(t *testing.T, id string) *profile.Participant {
	t.Helper()
	p, err := f.profiles.GetOrCreate(context.Background(), id)
	if err != nil {
		t.Fatalf("GetOrCreate(%s): %v", id, err)
	}
	return p
}

func TestPairing_SymmetricStatesAndEmptyTranscript(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	roomID := f.relay.Pairing(ctx, "a", "b")

	stA, stB := f.registry.Get("a"), f.registry.Get("b")
	if stA.Mode != session.ModePaired || stB.Mode != session.ModePaired {
		t.Fatalf("modes = %v/%v, want paired/paired", stA.Mode, stB.Mode)
	}
	if stA.PartnerID != "b" || stB.PartnerID != "a" {
		t.Errorf("partners = %q/%q, want b/a", stA.PartnerID, stB.PartnerID)
	}
	if stA.RoomID != roomID || stB.RoomID != roomID {
		t.Errorf("room ids differ: %q vs %q (room %q)", stA.RoomID, stB.RoomID, roomID)
	}

	entries, _ := f.transcripts.Read(ctx, roomID)
	if len(entries) != 0 {
		t.Errorf("new room transcript has %d entries, want 0", len(entries))
	}

	if got := f.sender.textsTo("a"); len(got) != 1 {
		t.Errorf("a received %d pairing notifications, want 1", len(got))
	}
	if got := f.sender.textsTo("b"); len(got) != 1 {
		t.Errorf("b received %d pairing notifications, want 1", len(got))
	}
}

func TestHandleMessage_RelaysTextAndLogsTranscript(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	roomID := f.relay.Pairing(ctx, "a", "b")
	f.sender.reset()

	p := f.participant(t, "a")
	f.relay.HandleMessage(ctx, p, protocol.InboundMessage{SenderID: "a", Text: "hello there"})

	waitFor(t, func() bool { return len(f.sender.textsTo("b")) == 1 })
	if got := f.sender.textsTo("b")[0]; got != "hello there" {
		t.Errorf("partner received %q, want %q", got, "hello there")
	}

	entries, _ := f.transcripts.Read(ctx, roomID)
	if len(entries) != 1 {
		t.Fatalf("transcript has %d entries, want 1", len(entries))
	}
	if entries[0].Nickname != p.Nickname || entries[0].Content != "hello there" {
		t.Errorf("transcript entry = %+v", entries[0])
	}
}

func TestHandleMessage_SingleSenderOrderPreserved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.relay.Pairing(ctx, "a", "b")
	f.sender.reset()

	p := f.participant(t, "a")
	for i := 0; i < 5; i++ {
		f.relay.HandleMessage(ctx, p, protocol.InboundMessage{SenderID: "a", Text: fmt.Sprintf("msg-%d", i)})
	}

	waitFor(t, func() bool { return len(f.sender.textsTo("b")) == 5 })
	for i, got := range f.sender.textsTo("b") {
		if want := fmt.Sprintf("msg-%d", i); got != want {
			t.Errorf("delivery %d = %q, want %q", i, got, want)
		}
	}
}

func TestHandleMessage_ProfanityBlocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	roomID := f.relay.Pairing(ctx, "a", "b")
	f.sender.reset()

	p := f.participant(t, "a")
	f.relay.HandleMessage(ctx, p, protocol.InboundMessage{SenderID: "a", Text: "dengar contoh ini"})

	// Sender gets the warning; partner receives nothing.
	waitFor(t, func() bool { return len(f.sender.textsTo("a")) == 1 })
	if got := f.sender.textsTo("b"); len(got) != 0 {
		t.Errorf("partner received %v, want nothing", got)
	}

	entries, _ := f.transcripts.Read(ctx, roomID)
	if len(entries) != 0 {
		t.Errorf("blocked message reached the transcript: %v", entries)
	}

	vs, _ := f.violations.ListAll(ctx)
	if len(vs) != 1 {
		t.Fatalf("violation log has %d records, want 1", len(vs))
	}
	if vs[0].Kind != violation.KindProfaneMessage || vs[0].Message != "dengar contoh ini" {
		t.Errorf("violation = %+v", vs[0])
	}

	// A superstring of the banned token is relayed normally.
	f.relay.HandleMessage(ctx, p, protocol.InboundMessage{SenderID: "a", Text: "contohnya bagus"})
	waitFor(t, func() bool { return len(f.sender.textsTo("b")) == 1 })
	vs, _ = f.violations.ListAll(ctx)
	if len(vs) != 1 {
		t.Errorf("clean superstring recorded as violation")
	}
}

func TestHandleMessage_MediaPassthrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	roomID := f.relay.Pairing(ctx, "a", "b")
	f.sender.reset()

	p := f.participant(t, "a")
	// Media captions are not profanity-inspected.
	f.relay.HandleMessage(ctx, p, protocol.InboundMessage{
		SenderID:  "a",
		Text:      "contoh caption",
		HasMedia:  true,
		MediaKind: protocol.MediaImage,
		Media:     []byte{0x1},
	})

	waitFor(t, func() bool { return len(f.sender.mediaTo("b")) == 1 })
	if got := f.sender.mediaTo("b")[0].Opts.Caption; got != "contoh caption" {
		t.Errorf("caption = %q, want original text", got)
	}

	entries, _ := f.transcripts.Read(ctx, roomID)
	if len(entries) != 1 || !strings.Contains(entries[0].Content, "image") {
		t.Errorf("transcript = %v, want one media marker", entries)
	}

	vs, _ := f.violations.ListAll(ctx)
	if len(vs) != 0 {
		t.Errorf("media caption recorded as violation: %v", vs)
	}
}

func TestHandleMessage_StopTearsDownRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	roomID := f.relay.Pairing(ctx, "a", "b")

	// Seed the transcript so retention is observable.
	p := f.participant(t, "a")
	f.relay.HandleMessage(ctx, p, protocol.InboundMessage{SenderID: "a", Text: "hi"})
	waitFor(t, func() bool {
		entries, _ := f.transcripts.Read(ctx, roomID)
		return len(entries) == 1
	})
	f.sender.reset()

	f.relay.HandleMessage(ctx, p, protocol.InboundMessage{SenderID: "a", Text: "!stop"})

	if f.registry.Get("a").Mode != session.ModeIdle || f.registry.Get("b").Mode != session.ModeIdle {
		t.Error("both participants should be idle after !stop")
	}
	if len(f.relay.ActivePairs()) != 0 {
		t.Error("room should be closed")
	}
	if got := f.sender.textsTo("b"); len(got) != 1 {
		t.Errorf("partner notifications = %v, want exactly one", got)
	}

	// Transcript is retained, not deleted.
	entries, _ := f.transcripts.Read(ctx, roomID)
	if len(entries) != 1 {
		t.Errorf("transcript lost on teardown: %d entries", len(entries))
	}
}

func TestHandleMessage_ReportCapturesSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	roomID := f.relay.Pairing(ctx, "a", "b")
	pa := f.participant(t, "a")
	pb := f.participant(t, "b")

	// 12 entries so the snapshot must be the trailing 10.
	for i := 0; i < 12; i++ {
		f.relay.HandleMessage(ctx, pb, protocol.InboundMessage{SenderID: "b", Text: fmt.Sprintf("line-%d", i)})
	}
	waitFor(t, func() bool {
		entries, _ := f.transcripts.Read(ctx, roomID)
		return len(entries) == 12
	})
	f.sender.reset()

	f.relay.HandleMessage(ctx, pa, protocol.InboundMessage{SenderID: "a", Text: "!report"})

	vs, _ := f.violations.ListAll(ctx)
	if len(vs) != 1 {
		t.Fatalf("violation log has %d records, want 1", len(vs))
	}
	v := vs[0]
	if v.Kind != violation.KindUserReport {
		t.Errorf("kind = %q, want %q", v.Kind, violation.KindUserReport)
	}
	if v.ParticipantID != "b" {
		t.Errorf("reported participant = %q, want b", v.ParticipantID)
	}
	if len(v.Transcript) != 10 {
		t.Fatalf("snapshot has %d entries, want 10", len(v.Transcript))
	}
	if v.Transcript[0].Content != "line-2" || v.Transcript[9].Content != "line-11" {
		t.Errorf("snapshot window = %q..%q, want line-2..line-11",
			v.Transcript[0].Content, v.Transcript[9].Content)
	}

	if f.registry.Get("a").Mode != session.ModeIdle || f.registry.Get("b").Mode != session.ModeIdle {
		t.Error("both participants should be idle after report")
	}
	if len(f.sender.textsTo("a")) != 1 || len(f.sender.textsTo("b")) != 1 {
		t.Error("both participants should be notified once")
	}
}

// failingViolations simulates a persistence outage.
type failingViolations struct{}

func (failingViolations) Append(context.Context, violation.Violation) error {
	return errors.New("disk full")
}

func (failingViolations) ListAll(context.Context) ([]violation.Violation, error) {
	return nil, nil
}

func TestHandleMessage_ViolationPersistFailureDoesNotBlockWarning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	filter := moderation.NewFilterWithWords([]string{"contoh"})
	f.relay = New(f.registry, f.transcripts, failingViolations{}, f.profiles, filter, f.sender, 0)

	f.relay.Pairing(ctx, "a", "b")
	f.sender.reset()

	p := f.participant(t, "a")
	f.relay.HandleMessage(ctx, p, protocol.InboundMessage{SenderID: "a", Text: "contoh"})

	waitFor(t, func() bool { return len(f.sender.textsTo("a")) == 1 })
	if got := f.sender.textsTo("b"); len(got) != 0 {
		t.Errorf("partner received %v despite block", got)
	}
}

func TestViolationLog_AppendOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.relay.Pairing(ctx, "a", "b")
	p := f.participant(t, "a")

	prev := 0
	for i := 0; i < 4; i++ {
		f.relay.HandleMessage(ctx, p, protocol.InboundMessage{SenderID: "a", Text: "contoh"})
		vs, _ := f.violations.ListAll(ctx)
		if len(vs) < prev {
			t.Fatalf("violation log shrank: %d -> %d", prev, len(vs))
		}
		prev = len(vs)
	}
	if prev != 4 {
		t.Errorf("violation log has %d records, want 4", prev)
	}
}
