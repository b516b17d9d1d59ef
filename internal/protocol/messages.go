// Package protocol defines the message shapes exchanged with the messaging
// transport. The orchestrator is agnostic to transport framing: inbound
// events and outbound sends are JSON with these structures regardless of
// what carries them.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Media kinds the relay forwards without inspection.
const (
	MediaImage   = "image"
	MediaSticker = "sticker"
)

// InboundMessage is a single message event from a participant.
type InboundMessage struct {
	SenderID  string `json:"sender_id"`
	Text      string `json:"text"`
	HasMedia  bool   `json:"has_media,omitempty"`
	MediaKind string `json:"media_kind,omitempty"`
	Media     []byte `json:"media,omitempty"`
}

// ParseInbound decodes and validates an inbound event. A missing sender id
// or a media flag without a kind is a validation error; the event carries
// no state and is simply rejected.
func ParseInbound(data []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return InboundMessage{}, fmt.Errorf("protocol: decode inbound: %w", err)
	}
	if msg.SenderID == "" {
		return InboundMessage{}, fmt.Errorf("protocol: inbound message missing sender_id")
	}
	if msg.HasMedia && msg.MediaKind == "" {
		return InboundMessage{}, fmt.Errorf("protocol: inbound media message missing media_kind")
	}
	return msg, nil
}

// MediaOptions control how outbound media is delivered by the transport.
type MediaOptions struct {
	Caption       string `json:"caption,omitempty"`
	AsSticker     bool   `json:"as_sticker,omitempty"`
	StickerAuthor string `json:"sticker_author,omitempty"`
	StickerName   string `json:"sticker_name,omitempty"`
}

// OutboundText is a text send to one participant.
type OutboundText struct {
	RecipientID string `json:"recipient_id"`
	Text        string `json:"text"`
}

// OutboundMedia is a media send to one participant.
type OutboundMedia struct {
	RecipientID string       `json:"recipient_id"`
	Media       []byte       `json:"media"`
	Options     MediaOptions `json:"options"`
}
