package game

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anonychat/orchestrator/internal/profile"
	"github.com/anonychat/orchestrator/internal/session"
)

// scriptedGenerator returns canned responses in order, then errors.
type scriptedGenerator struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (g *scriptedGenerator) Generate(_ context.Context, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if len(g.responses) == 0 {
		return "", errors.New("generator exhausted")
	}
	resp := g.responses[0]
	g.responses = g.responses[1:]
	return resp, nil
}

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type recordingSender struct {
	mu    sync.Mutex
	texts []string
}

func (s *recordingSender) SendText(_ context.Context, _ string, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return nil
}

func (s *recordingSender) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.texts))
	copy(out, s.texts)
	return out
}

func (s *recordingSender) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.texts) == 0 {
		return ""
	}
	return s.texts[len(s.texts)-1]
}

const capitalQuestion = `{"question":"What is the capital of France?","answer":"Paris"}`

func newEngine(gen *scriptedGenerator, sender *recordingSender, deadline time.Duration) (*Engine, *session.Registry, *profile.Memory) {
	registry := session.NewRegistry()
	profiles := profile.NewMemory()
	return New(registry, profiles, gen, sender, deadline), registry, profiles
}

func player(t *testing.T, profiles *profile.Memory, id string) *profile.Participant {
	t.Helper()
	p, err := profiles.GetOrCreate(context.Background(), id)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	return p
}

func TestStartSelection(t *testing.T) {
	sender := &recordingSender{}
	e, registry, _ := newEngine(&scriptedGenerator{}, sender, time.Hour)

	e.StartSelection(context.Background(), "a")

	if registry.Get("a").Mode != session.ModeChoosingGame {
		t.Error("participant should be in choosing_game")
	}
	if len(sender.all()) != 1 {
		t.Errorf("sent %d messages, want the game menu", len(sender.all()))
	}
}

func TestHandleSelection(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantMode session.Mode
		wantGame string
	}{
		{"numeric trivia", "1", session.ModePlaying, TypeTrivia},
		{"keyword trivia", "trivia", session.ModePlaying, TypeTrivia},
		{"numeric riddle", "2", session.ModePlaying, TypeRiddle},
		{"keyword riddle", "RIDDLE", session.ModePlaying, TypeRiddle},
		{"stop exits", "!stop", session.ModeIdle, ""},
		{"garbage resets", "chess", session.ModeIdle, ""},
		{"empty resets", "", session.ModeIdle, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedGenerator{responses: []string{capitalQuestion}}
			sender := &recordingSender{}
			e, registry, _ := newEngine(gen, sender, time.Hour)

			e.StartSelection(context.Background(), "a")
			e.HandleSelection(context.Background(), "a", tt.input)

			st := registry.Get("a")
			if st.Mode != tt.wantMode {
				t.Fatalf("mode = %v, want %v", st.Mode, tt.wantMode)
			}
			if st.Game != tt.wantGame {
				t.Errorf("game = %q, want %q", st.Game, tt.wantGame)
			}
		})
	}
}

func TestHandleAnswer_CorrectAwardsXPAndContinues(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{capitalQuestion, capitalQuestion}}
	sender := &recordingSender{}
	e, registry, profiles := newEngine(gen, sender, time.Hour)
	ctx := context.Background()

	e.HandleSelection(ctx, "a", "1")
	p := player(t, profiles, "a")

	e.HandleAnswer(ctx, p, "i think it is pArIs!")

	saved := player(t, profiles, "a")
	if saved.XP < XPMin || saved.XP > XPMax {
		t.Errorf("awarded xp = %d, want within [%d, %d]", saved.XP, XPMin, XPMax)
	}
	if saved.Tier() != profile.TierFor(saved.XP) {
		t.Errorf("tier not recomputed: %q", saved.Tier())
	}

	// Continuous play: a second question was generated and we're still playing.
	if gen.callCount() != 2 {
		t.Errorf("generator called %d times, want 2", gen.callCount())
	}
	st := registry.Get("a")
	if st.Mode != session.ModePlaying || st.Answer != "Paris" {
		t.Errorf("state after answer = %+v, want playing with fresh question", st)
	}

	found := false
	for _, msg := range sender.all() {
		if strings.Contains(msg, "Correct") {
			found = true
		}
	}
	if !found {
		t.Error("no correct-answer confirmation sent")
	}
}

func TestHandleAnswer_WrongRevealsAndContinues(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{capitalQuestion, capitalQuestion}}
	sender := &recordingSender{}
	e, registry, profiles := newEngine(gen, sender, time.Hour)
	ctx := context.Background()

	e.HandleSelection(ctx, "a", "1")
	p := player(t, profiles, "a")

	e.HandleAnswer(ctx, p, "london")

	if saved := player(t, profiles, "a"); saved.XP != 0 {
		t.Errorf("wrong answer awarded %d xp", saved.XP)
	}

	revealed := false
	for _, msg := range sender.all() {
		if strings.Contains(msg, "Paris") && strings.Contains(msg, "Not quite") {
			revealed = true
		}
	}
	if !revealed {
		t.Error("correct answer was not revealed")
	}
	if registry.Get("a").Mode != session.ModePlaying {
		t.Error("play should continue after a miss")
	}
}

func TestHandleAnswer_StopExits(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{capitalQuestion}}
	sender := &recordingSender{}
	e, registry, profiles := newEngine(gen, sender, time.Hour)
	ctx := context.Background()

	e.HandleSelection(ctx, "a", "1")
	p := player(t, profiles, "a")

	e.HandleAnswer(ctx, p, "!stop")

	if registry.Get("a").Mode != session.ModeIdle {
		t.Error("!stop should reset to idle")
	}
	if gen.callCount() != 1 {
		t.Errorf("generator called %d times after stop, want 1", gen.callCount())
	}
}

func TestNextQuestion_GenerationFailureResetsOnce(t *testing.T) {
	gen := &scriptedGenerator{} // errors immediately
	sender := &recordingSender{}
	e, registry, _ := newEngine(gen, sender, time.Hour)

	e.HandleSelection(context.Background(), "a", "1")

	if registry.Get("a").Mode != session.ModeIdle {
		t.Error("generation failure should reset to idle")
	}
	if gen.callCount() != 1 {
		t.Errorf("generator called %d times, want 1 (no silent retry)", gen.callCount())
	}
	if !strings.Contains(sender.last(), "Sorry") {
		t.Errorf("last message = %q, want an apology", sender.last())
	}
}

func TestNextQuestion_MalformedResponseResets(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "here is your question!"},
		{"missing answer", `{"question":"what?"}`},
		{"missing question", `{"answer":"x"}`},
		{"empty fields", `{"question":"","answer":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedGenerator{responses: []string{tt.raw}}
			sender := &recordingSender{}
			e, registry, _ := newEngine(gen, sender, time.Hour)

			e.HandleSelection(context.Background(), "a", "1")

			if registry.Get("a").Mode != session.ModeIdle {
				t.Error("malformed response should reset to idle")
			}
		})
	}
}

func TestParseQuestion_CodeFences(t *testing.T) {
	raw := "```json\n" + capitalQuestion + "\n```"
	q, err := parseQuestion(raw)
	if err != nil {
		t.Fatalf("parseQuestion: %v", err)
	}
	if q.Question == "" || q.Answer != "Paris" {
		t.Errorf("parsed = %+v", q)
	}
}

func TestOnDeadline_TimeoutRevealsAndContinues(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{capitalQuestion, capitalQuestion}}
	sender := &recordingSender{}
	e, registry, _ := newEngine(gen, sender, time.Hour)
	ctx := context.Background()

	e.HandleSelection(ctx, "a", "1")
	_, token := registry.GetWithToken("a")

	e.onDeadline("a", TypeTrivia, "Paris", token)

	revealed := false
	for _, msg := range sender.all() {
		if strings.Contains(msg, "Time's up") && strings.Contains(msg, "Paris") {
			revealed = true
		}
	}
	if !revealed {
		t.Error("timeout did not reveal the answer")
	}
	if gen.callCount() != 2 {
		t.Errorf("generator called %d times, want 2 (next question)", gen.callCount())
	}
	if registry.Get("a").Mode != session.ModePlaying {
		t.Error("play should continue after timeout")
	}
}

func TestOnDeadline_DoubleFireIsIdempotent(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{capitalQuestion, capitalQuestion}}
	sender := &recordingSender{}
	e, registry, _ := newEngine(gen, sender, time.Hour)
	ctx := context.Background()

	e.HandleSelection(ctx, "a", "1")
	_, token := registry.GetWithToken("a")

	e.onDeadline("a", TypeTrivia, "Paris", token)
	before := len(sender.all())
	callsBefore := gen.callCount()

	// Simulated double fire with the same captured token.
	e.onDeadline("a", TypeTrivia, "Paris", token)

	if len(sender.all()) != before {
		t.Errorf("double fire sent %d extra messages", len(sender.all())-before)
	}
	if gen.callCount() != callsBefore {
		t.Error("double fire generated another question")
	}
}

func TestOnDeadline_StaleAfterAnswerIsNoOp(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{capitalQuestion, capitalQuestion}}
	sender := &recordingSender{}
	e, registry, profiles := newEngine(gen, sender, time.Hour)
	ctx := context.Background()

	e.HandleSelection(ctx, "a", "1")
	_, token := registry.GetWithToken("a")
	p := player(t, profiles, "a")

	// The answer lands first; the timer then fires with a stale token.
	e.HandleAnswer(ctx, p, "paris")
	before := len(sender.all())

	e.onDeadline("a", TypeTrivia, "Paris", token)

	if len(sender.all()) != before {
		t.Error("stale deadline fire produced output")
	}
}

func TestAnswerMatches(t *testing.T) {
	tests := []struct {
		text   string
		answer string
		want   bool
	}{
		{"paris", "Paris", true},
		{"I think PARIS is right", "Paris", true},
		{"par is", "Paris", false},
		{"london", "Paris", false},
		{"anything", "", false},
	}
	for _, tt := range tests {
		if got := answerMatches(tt.text, tt.answer); got != tt.want {
			t.Errorf("answerMatches(%q, %q) = %v, want %v", tt.text, tt.answer, got, tt.want)
		}
	}
}
