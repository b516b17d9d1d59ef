// Package bot is the inbound dispatcher: it routes each participant
// message to the component owning the participant's current session mode
// and handles the idle command surface (menu, matchmaking, games,
// stickers). It also owns the waiting queue, wiring queue expiry into the
// AI-fallback handover.
package bot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/anonychat/orchestrator/internal/game"
	"github.com/anonychat/orchestrator/internal/matching"
	"github.com/anonychat/orchestrator/internal/metrics"
	"github.com/anonychat/orchestrator/internal/profile"
	"github.com/anonychat/orchestrator/internal/protocol"
	"github.com/anonychat/orchestrator/internal/relay"
	"github.com/anonychat/orchestrator/internal/reply"
	"github.com/anonychat/orchestrator/internal/session"
)

// stickerAuthor labels outbound stickers in the transport metadata.
const stickerAuthor = "AnonyChat"

// Generator produces AI-fallback conversation replies.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Bot routes inbound messages. All per-participant state lives in the
// session registry; the bot itself is stateless apart from the queue it
// owns.
type Bot struct {
	registry  *session.Registry
	queue     *matching.Queue
	relay     *relay.Relay
	engine    *game.Engine
	profiles  profile.Store
	generator Generator
	sender    relay.Sender
}

// New wires the dispatcher. The waiting queue is created here so its
// expiry callback can hand participants to the AI fallback.
func New(registry *session.Registry, rel *relay.Relay, engine *game.Engine,
	profiles profile.Store, generator Generator, sender relay.Sender, queueExpiry time.Duration) *Bot {
	b := &Bot{
		registry:  registry,
		relay:     rel,
		engine:    engine,
		profiles:  profiles,
		generator: generator,
		sender:    sender,
	}
	b.queue = matching.NewQueue(queueExpiry, b.onQueueExpire)
	return b
}

// Queue exposes the waiting queue for the admin surface.
func (b *Bot) Queue() *matching.Queue { return b.queue }

// HandleInbound processes one inbound message end to end. Banned
// participants are dropped silently; everyone else is routed by their
// current session mode.
func (b *Bot) HandleInbound(ctx context.Context, msg protocol.InboundMessage) {
	p, err := b.profiles.GetOrCreate(ctx, msg.SenderID)
	if err != nil {
		log.Printf("[bot] load profile %s: %v", msg.SenderID, err)
		return
	}
	if p.Banned {
		return
	}

	st := b.registry.Get(p.ID)
	switch st.Mode {
	case session.ModePaired:
		b.relay.HandleMessage(ctx, p, msg)
	case session.ModeWaiting:
		b.handleWaiting(ctx, p, msg)
	case session.ModeChoosingGame:
		b.engine.HandleSelection(ctx, p.ID, msg.Text)
	case session.ModePlaying:
		b.engine.HandleAnswer(ctx, p, msg.Text)
	case session.ModeAIFallback:
		b.handleAIFallback(ctx, p, msg)
	default:
		b.handleIdle(ctx, p, msg)
	}
}

// handleWaiting covers a participant already in the queue. Only commands
// are meaningful; chatter while waiting is dropped.
func (b *Bot) handleWaiting(ctx context.Context, p *profile.Participant, msg protocol.InboundMessage) {
	switch command(msg.Text) {
	case "!chat":
		b.send(ctx, p.ID, reply.AlreadyQueued())
	case "!stop", "!skip":
		b.queue.Cancel(p.ID)
		b.registry.Clear(p.ID)
		metrics.QueueSize.Set(float64(b.queue.Len()))
		b.send(ctx, p.ID, reply.SearchCancelled())
	}
}

// handleAIFallback relays the conversation to the generation service. A
// failed or unusable generation ends the fallback session with a single
// notice instead of retrying.
func (b *Bot) handleAIFallback(ctx context.Context, p *profile.Participant, msg protocol.InboundMessage) {
	if c := command(msg.Text); c == "!stop" || c == "!skip" {
		b.registry.Clear(p.ID)
		b.send(ctx, p.ID, reply.AIFallbackExit())
		return
	}
	if strings.TrimSpace(msg.Text) == "" {
		return
	}

	answer, err := b.generator.Generate(ctx, companionPrompt(p.Nickname, msg.Text))
	if err != nil {
		log.Printf("[bot] ai fallback for %s: %v", p.ID, err)
		b.registry.Clear(p.ID)
		b.send(ctx, p.ID, reply.AIUnavailable())
		return
	}
	b.send(ctx, p.ID, answer)
}

// handleIdle is the command surface for a participant with no active
// session. Unknown input gets the menu.
func (b *Bot) handleIdle(ctx context.Context, p *profile.Participant, msg protocol.InboundMessage) {
	if msg.HasMedia {
		if command(msg.Text) == "!sticker" && msg.MediaKind == protocol.MediaImage {
			b.makeSticker(ctx, p, msg)
			return
		}
		b.send(ctx, p.ID, reply.StickerInstruction())
		return
	}

	switch command(msg.Text) {
	case "!chat":
		b.startSearch(ctx, p.ID)
	case "!stop", "!skip", "!report":
		b.send(ctx, p.ID, reply.NotInSession())
	case "!game":
		b.engine.StartSelection(ctx, p.ID)
	case "!sticker":
		b.send(ctx, p.ID, reply.StickerInstruction())
	default:
		b.send(ctx, p.ID, reply.Menu(p.Nickname))
	}
}

// startSearch runs one matchmaking attempt for id. The Waiting transition
// must land before the entry becomes visible to matching: the instant
// TryMatch inserts it, a concurrent searcher may pop it and write Paired,
// and that write has to be the later one.
func (b *Bot) startSearch(ctx context.Context, id string) {
	if b.queue.Contains(id) {
		b.send(ctx, id, reply.AlreadyQueued())
		return
	}

	b.registry.Set(id, session.State{Mode: session.ModeWaiting, EnqueuedAt: time.Now()})

	partner, outcome := b.queue.TryMatch(id)
	switch outcome {
	case matching.OutcomeMatched:
		if st := b.registry.Get(partner); st.Mode == session.ModeWaiting && !st.EnqueuedAt.IsZero() {
			metrics.MatchWait.Observe(time.Since(st.EnqueuedAt).Seconds())
		}
		metrics.QueueSize.Set(float64(b.queue.Len()))
		b.relay.Pairing(ctx, id, partner)
	case matching.OutcomeEnqueued:
		metrics.QueueSize.Set(float64(b.queue.Len()))
		b.send(ctx, id, reply.Searching())
	case matching.OutcomeStillSearching:
		b.send(ctx, id, reply.StillSearching())
	}
}

// onQueueExpire runs on the queue's timer goroutine when nobody showed up
// in time: the participant is handed to the AI companion. The queue has
// already removed the entry, but a cancel or a pairing may have re-owned
// the registry state in the window before this callback runs, so the
// handover only happens if the state is still Waiting under an unchanged
// token.
func (b *Bot) onQueueExpire(id string) {
	st, token := b.registry.GetWithToken(id)
	if st.Mode != session.ModeWaiting {
		return
	}
	if _, ok := b.registry.CompareAndSet(id, token, session.State{Mode: session.ModeAIFallback}); !ok {
		return
	}
	metrics.QueueSize.Set(float64(b.queue.Len()))
	b.send(context.Background(), id, reply.QueueExpired())
}

// makeSticker asks the transport to re-deliver the image as a sticker.
func (b *Bot) makeSticker(ctx context.Context, p *profile.Participant, msg protocol.InboundMessage) {
	b.send(ctx, p.ID, reply.StickerWorking())
	opts := protocol.MediaOptions{
		AsSticker:     true,
		StickerAuthor: stickerAuthor,
		StickerName:   p.Nickname,
	}
	if err := b.sender.SendMedia(ctx, p.ID, msg.Media, opts); err != nil {
		log.Printf("[bot] sticker for %s: %v", p.ID, err)
		b.send(ctx, p.ID, reply.StickerFailed())
	}
}

func (b *Bot) send(ctx context.Context, id, text string) {
	if err := b.sender.SendText(ctx, id, text); err != nil {
		log.Printf("[bot] send to %s: %v", id, err)
	}
}

// companionPrompt frames the AI-fallback persona around the participant's
// message.
func companionPrompt(nickname, text string) string {
	return fmt.Sprintf("You are a warm, casual chat companion talking to %s. "+
		"Reply briefly and conversationally, in the language of the message. "+
		"Message: %s", nickname, text)
}

// command normalizes text for command matching.
func command(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
