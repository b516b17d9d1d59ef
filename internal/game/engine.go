// Package game implements the trivia/quiz fallback mode. Questions come
// from the external text-generation service; answers are scored with a
// case-insensitive substring match and award XP. Play is continuous: every
// outcome (correct, wrong, timeout) immediately starts the next question.
package game

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/anonychat/orchestrator/internal/metrics"
	"github.com/anonychat/orchestrator/internal/profile"
	"github.com/anonychat/orchestrator/internal/reply"
	"github.com/anonychat/orchestrator/internal/session"
)

// Game types a participant can choose.
const (
	TypeTrivia = "trivia"
	TypeRiddle = "riddle"
)

// DefaultDeadline is how long a participant has to answer a question.
const DefaultDeadline = 30 * time.Second

// XP award bounds per correct answer, inclusive.
const (
	XPMin = 10
	XPMax = 25
)

// Generator produces text from a prompt (the external generation service).
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Sender delivers outbound text through the messaging transport.
type Sender interface {
	SendText(ctx context.Context, id string, text string) error
}

// question is the structured response expected from the generator.
type question struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Engine drives the per-participant quiz state machine.
type Engine struct {
	registry  *session.Registry
	profiles  profile.Store
	generator Generator
	sender    Sender
	deadline  time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates an engine. A non-positive deadline falls back to
// DefaultDeadline.
func New(registry *session.Registry, profiles profile.Store, generator Generator, sender Sender, deadline time.Duration) *Engine {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return &Engine{
		registry:  registry,
		profiles:  profiles,
		generator: generator,
		sender:    sender,
		deadline:  deadline,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// StartSelection puts the participant into game selection and sends the
// game menu.
func (e *Engine) StartSelection(ctx context.Context, id string) {
	e.registry.Set(id, session.State{Mode: session.ModeChoosingGame})
	e.send(ctx, id, reply.GameMenu())
}

// HandleSelection interprets the next inbound message as a game choice:
// a number or a keyword. Invalid input resets to Idle with an error reply.
func (e *Engine) HandleSelection(ctx context.Context, id string, text string) {
	choice := strings.ToLower(strings.TrimSpace(text))

	switch choice {
	case "!stop":
		e.registry.Clear(id)
		e.send(ctx, id, reply.GameStopped())
		return
	case "1", TypeTrivia:
		e.nextQuestion(ctx, id, TypeTrivia)
	case "2", TypeRiddle:
		e.nextQuestion(ctx, id, TypeRiddle)
	default:
		e.registry.Clear(id)
		e.send(ctx, id, reply.GameInvalidChoice())
	}
}

// HandleAnswer processes an inbound message while Playing. A literal stop
// command ends the session; anything else is checked against the expected
// answer. The pending deadline timer is invalidated by claiming the state
// under the current token, so an answer and a timeout can never both act
// on the same question.
func (e *Engine) HandleAnswer(ctx context.Context, p *profile.Participant, text string) {
	st, token := e.registry.GetWithToken(p.ID)
	if st.Mode != session.ModePlaying {
		return
	}

	if strings.ToLower(strings.TrimSpace(text)) == "!stop" {
		e.registry.Clear(p.ID)
		e.send(ctx, p.ID, reply.GameStopped())
		return
	}

	// Claim the question. Losing the race means the deadline fired first
	// and is already revealing the answer.
	if _, ok := e.registry.CompareAndSet(p.ID, token, session.State{Mode: session.ModePlaying, Game: st.Game}); !ok {
		return
	}

	if answerMatches(text, st.Answer) {
		xp := e.awardXP()
		p.XP += xp
		if err := e.profiles.Save(ctx, p); err != nil {
			log.Printf("[game] save profile %s: %v", p.ID, err)
		}
		metrics.QuizAnswersTotal.WithLabelValues("correct").Inc()
		e.send(ctx, p.ID, reply.GameCorrect(xp, p.XP, p.Tier()))
	} else {
		metrics.QuizAnswersTotal.WithLabelValues("wrong").Inc()
		e.send(ctx, p.ID, reply.GameWrong(st.Answer))
	}

	e.nextQuestion(ctx, p.ID, st.Game)
}

// nextQuestion asks the generator for a fresh question, arms the deadline
// and sends the prompt. Generation failure surfaces once: the participant
// is reset to Idle with an apology, never retried silently.
func (e *Engine) nextQuestion(ctx context.Context, id string, game string) {
	raw, err := e.generator.Generate(ctx, questionPrompt(game))
	if err != nil {
		log.Printf("[game] generate %s question for %s: %v", game, id, err)
		e.registry.Clear(id)
		e.send(ctx, id, reply.GameApology())
		return
	}

	q, err := parseQuestion(raw)
	if err != nil {
		log.Printf("[game] parse %s question for %s: %v", game, id, err)
		e.registry.Clear(id)
		e.send(ctx, id, reply.GameApology())
		return
	}

	deadline := time.Now().Add(e.deadline)
	token := e.registry.Set(id, session.State{
		Mode:     session.ModePlaying,
		Game:     game,
		Answer:   q.Answer,
		Deadline: deadline,
	})
	time.AfterFunc(e.deadline, func() {
		e.onDeadline(id, game, q.Answer, token)
	})

	e.send(ctx, id, reply.GameQuestion(q.Question))
}

// onDeadline runs on the timer goroutine when a question's deadline
// elapses. It acts only if it still owns the state it was armed for: a
// stale or double fire is a silent no-op. A genuine timeout behaves like
// a wrong answer the participant never sent.
func (e *Engine) onDeadline(id string, game string, answer string, token uint64) {
	if _, ok := e.registry.CompareAndSet(id, token, session.State{Mode: session.ModePlaying, Game: game}); !ok {
		return
	}

	ctx := context.Background()
	metrics.QuizAnswersTotal.WithLabelValues("timeout").Inc()
	e.send(ctx, id, reply.GameTimeout(answer))
	e.nextQuestion(ctx, id, game)
}

func (e *Engine) awardXP() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return XPMin + e.rng.Intn(XPMax-XPMin+1)
}

// answerMatches does a case-insensitive substring check of the expected
// answer within the participant's message.
func answerMatches(text, answer string) bool {
	if answer == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(answer))
}

func questionPrompt(game string) string {
	switch game {
	case TypeRiddle:
		return `Write one short lateral-thinking riddle. Respond with only a JSON object: {"question": "<the riddle>", "answer": "<one or two word answer>"}`
	default:
		return `Write one general-knowledge trivia question. Respond with only a JSON object: {"question": "<the question>", "answer": "<one or two word answer>"}`
	}
}

// parseQuestion defensively decodes the generator output. Models often
// wrap JSON in markdown code fences; those are stripped before decoding.
// Anything that does not yield a non-empty question and answer is an error.
func parseQuestion(raw string) (question, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var q question
	if err := json.Unmarshal([]byte(text), &q); err != nil {
		return question{}, fmt.Errorf("game: decode question: %w", err)
	}
	if q.Question == "" || q.Answer == "" {
		return question{}, fmt.Errorf("game: incomplete question payload")
	}
	return q, nil
}

func (e *Engine) send(ctx context.Context, id, text string) {
	if err := e.sender.SendText(ctx, id, text); err != nil {
		log.Printf("[game] send to %s: %v", id, err)
	}
}
