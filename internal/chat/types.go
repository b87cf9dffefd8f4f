package chat

import (
	"strconv"
	"strings"
	"time"
)

type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeVideo    MessageType = "video"
	TypeAudio    MessageType = "audio"
	TypeTemplate MessageType = "template"
)

type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
	StatusFailed    DeliveryStatus = "failed"
)

// Message is one entry in a conversation. ID starts as a locally
// generated placeholder for outgoing messages and is swapped for the
// provider's identifier once the send is confirmed.
type Message struct {
	ID           string         `json:"id"`
	Text         string         `json:"text,omitempty"`
	MediaURL     string         `json:"media_url,omitempty"`
	MediaID      string         `json:"media_id,omitempty"`
	Timestamp    int64          `json:"timestamp"` // epoch milliseconds
	Direction    string         `json:"direction"` // incoming | outgoing
	Status       DeliveryStatus `json:"status"`
	Type         MessageType    `json:"type"`
	TemplateName string         `json:"template_name,omitempty"`
}

// Contact is one conversation. LastMessage, LastMessageTime and
// UnreadCount are denormalized from Messages on every mutation.
type Contact struct {
	ID              string    `json:"id"` // provider conversation key, typically a phone number
	Name            string    `json:"name"`
	Avatar          string    `json:"avatar,omitempty"`
	LastMessage     string    `json:"last_message"`
	LastMessageTime int64     `json:"last_message_time,omitempty"`
	UnreadCount     int       `json:"unread_count"`
	Messages        []Message `json:"messages"`
}

// InboundMessage is the normalized inbound-message event delivered by
// the live feed or the webhook.
type InboundMessage struct {
	ID        string        `json:"id"`
	From      string        `json:"from"`
	Timestamp string        `json:"timestamp"` // unix seconds, as the provider sends it
	Text      string        `json:"text,omitempty"`
	Media     *InboundMedia `json:"media,omitempty"`
}

type InboundMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
	Link     string `json:"link,omitempty"`
}

// StatusUpdate is a delivery-status event for a previously sent message.
type StatusUpdate struct {
	ID          string `json:"id"`
	RecipientID string `json:"recipient_id"`
	Status      string `json:"status"` // sent | delivered | read | failed
}

// KindFromFileMime classifies a locally chosen file by MIME prefix.
// Anything unrecognized is treated as an image.
func KindFromFileMime(mime string) MessageType {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return TypeImage
	case strings.HasPrefix(mime, "video/"):
		return TypeVideo
	case strings.HasPrefix(mime, "audio/"):
		return TypeAudio
	}
	return TypeImage
}

// kindFromInboundMime classifies remote media. Events whose MIME prefix
// is unrecognized stay text.
func kindFromInboundMime(mime string) MessageType {
	switch {
	case strings.HasPrefix(mime, "image"):
		return TypeImage
	case strings.HasPrefix(mime, "video"):
		return TypeVideo
	case strings.HasPrefix(mime, "audio"):
		return TypeAudio
	}
	return TypeText
}

// parseEventTimestamp converts the provider's unix-seconds string to
// epoch milliseconds, falling back to the current time.
func parseEventTimestamp(raw string) int64 {
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs > 0 {
		return secs * 1000
	}
	return time.Now().UnixMilli()
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
