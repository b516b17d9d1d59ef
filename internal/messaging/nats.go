// Package messaging provides the NATS bridge between the orchestrator and
// the messaging transport gateway. Inbound participant events arrive on a
// single subject; outbound sends are published for the gateway to deliver.
// It handles connection lifecycle, reconnects, and payload encoding.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/anonychat/orchestrator/internal/protocol"
)

// NATS subjects shared with the transport gateway.
const (
	SubjectInbound       = "anonychat.inbound"
	SubjectOutboundText  = "anonychat.outbound.text"
	SubjectOutboundMedia = "anonychat.outbound.media"
)

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "anonychat-orchestrator",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NATSClient wraps the NATS connection. It implements the Sender contract
// used by the relay, the quiz engine and the broadcast dispatcher.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NewNATSClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// SubscribeInbound registers the handler for inbound participant events.
// Events that fail validation are logged and dropped; they carry no state.
func (c *NATSClient) SubscribeInbound(handler func(msg protocol.InboundMessage)) error {
	sub, err := c.conn.Subscribe(SubjectInbound, func(m *nats.Msg) {
		msg, err := protocol.ParseInbound(m.Data)
		if err != nil {
			log.Printf("[nats] drop inbound event: %v", err)
			return
		}
		handler(msg)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", SubjectInbound, err)
	}

	c.mu.Lock()
	c.subs[SubjectInbound] = sub
	c.mu.Unlock()
	return nil
}

// SendText publishes a text send for the gateway to deliver.
func (c *NATSClient) SendText(_ context.Context, id string, text string) error {
	data, err := json.Marshal(protocol.OutboundText{RecipientID: id, Text: text})
	if err != nil {
		return fmt.Errorf("nats: marshal outbound text: %w", err)
	}
	return c.conn.Publish(SubjectOutboundText, data)
}

// SendMedia publishes a media send for the gateway to deliver.
func (c *NATSClient) SendMedia(_ context.Context, id string, media []byte, opts protocol.MediaOptions) error {
	data, err := json.Marshal(protocol.OutboundMedia{RecipientID: id, Media: media, Options: opts})
	if err != nil {
		return fmt.Errorf("nats: marshal outbound media: %w", err)
	}
	return c.conn.Publish(SubjectOutboundMedia, data)
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}
