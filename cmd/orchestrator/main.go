package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anonychat/orchestrator/internal/admin"
	"github.com/anonychat/orchestrator/internal/bot"
	"github.com/anonychat/orchestrator/internal/broadcast"
	"github.com/anonychat/orchestrator/internal/config"
	"github.com/anonychat/orchestrator/internal/db"
	"github.com/anonychat/orchestrator/internal/game"
	"github.com/anonychat/orchestrator/internal/genai"
	"github.com/anonychat/orchestrator/internal/messaging"
	"github.com/anonychat/orchestrator/internal/moderation"
	"github.com/anonychat/orchestrator/internal/profile"
	"github.com/anonychat/orchestrator/internal/protocol"
	"github.com/anonychat/orchestrator/internal/relay"
	"github.com/anonychat/orchestrator/internal/session"
	"github.com/anonychat/orchestrator/internal/transcript"
	"github.com/anonychat/orchestrator/internal/violation"
)

func main() {
	log.Println("Starting AnonyChat orchestrator...")

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// PostgreSQL holds the durable records; it being unreachable at
	// startup is fatal.
	pg, err := db.Open(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	defer pg.Close()
	if err := db.Migrate(pg); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	// Redis holds transcripts. A miss at startup is logged but not fatal:
	// the client reconnects and transcript writes fail soft in the relay.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Printf("warning: Redis unreachable, continuing: %v", err)
	}
	cancel()

	// NATS is the messaging transport bridge.
	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}
	defer natsClient.Close()

	profiles := profile.NewPostgres(pg)
	violations := violation.NewPostgres(pg)
	transcripts := transcript.NewRedis(rdb)

	generator := genai.NewClient(genai.Config{
		BaseURL: cfg.GenAI.URL,
		APIKey:  cfg.GenAI.APIKey,
		Timeout: time.Duration(cfg.GenAI.TimeoutSeconds) * time.Second,
	})

	registry := session.NewRegistry()
	rel := relay.New(registry, transcripts, violations, profiles,
		moderation.NewFilter(), natsClient, cfg.Timings.RelayPacing())
	engine := game.New(registry, profiles, generator, natsClient, cfg.Timings.QuizDeadline())
	dispatcher := bot.New(registry, rel, engine, profiles, generator,
		natsClient, cfg.Timings.QueueExpiry())
	broadcaster := broadcast.New(profiles, natsClient,
		cfg.Timings.BroadcastJitterMin(), cfg.Timings.BroadcastJitterMax())

	err = natsClient.SubscribeInbound(func(msg protocol.InboundMessage) {
		go dispatcher.HandleInbound(context.Background(), msg)
	})
	if err != nil {
		log.Fatalf("failed to subscribe to inbound events: %v", err)
	}

	adminSrv := admin.New(registry, dispatcher.Queue(), rel, broadcaster,
		profiles, violations, transcripts)
	httpSrv := &http.Server{
		Addr:         cfg.AdminAddr,
		Handler:      adminSrv.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("admin server: %v", err)
		}
	}()

	log.Printf("AnonyChat orchestrator running")
	log.Printf("  admin_addr:   %s", cfg.AdminAddr)
	log.Printf("  nats_url:     %s", cfg.NATSURL)
	log.Printf("  redis_addr:   %s", cfg.RedisAddr)
	log.Printf("  queue_expiry: %s", cfg.Timings.QueueExpiry())

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("admin server shutdown: %v", err)
	}
}
