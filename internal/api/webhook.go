package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"nebula-chat/internal/chat"
)

// WebhookHandler accepts Meta webhook deliveries directly, so the
// service can act as its own event feed when no upstream relay is
// configured. Payloads are normalized into the same events the live
// listener produces.
type WebhookHandler struct {
	VerifyToken string
	Store       *chat.Store
}

func NewWebhookHandler(verifyToken string, store *chat.Store) *WebhookHandler {
	return &WebhookHandler{VerifyToken: verifyToken, Store: store}
}

// webhookPayload is the Graph API change-notification envelope, trimmed
// to the message and status fields this client consumes.
type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Value struct {
				MessagingProduct string `json:"messaging_product"`
				Messages         []struct {
					From      string `json:"from"`
					ID        string `json:"id"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      *struct {
						Body string `json:"body"`
					} `json:"text,omitempty"`
					Image    *webhookMedia `json:"image,omitempty"`
					Video    *webhookMedia `json:"video,omitempty"`
					Audio    *webhookMedia `json:"audio,omitempty"`
					Document *webhookMedia `json:"document,omitempty"`
				} `json:"messages,omitempty"`
				Statuses []struct {
					ID          string `json:"id"`
					Status      string `json:"status"`
					Timestamp   string `json:"timestamp"`
					RecipientID string `json:"recipient_id"`
				} `json:"statuses,omitempty"`
			} `json:"value"`
			Field string `json:"field"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Verify answers Meta's subscription challenge.
func (h *WebhookHandler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "" || token == "" {
		c.Status(http.StatusBadRequest)
		return
	}
	if mode == "subscribe" && token == h.VerifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	c.Status(http.StatusForbidden)
}

// Receive normalizes a webhook delivery and dispatches it into the
// reconciler. Malformed payloads are acknowledged and dropped; a bad
// delivery must never make Meta retry forever.
func (h *WebhookHandler) Receive(c *gin.Context) {
	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		log.Printf("webhook: dropping malformed payload: %v", err)
		c.Status(http.StatusOK)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				ev := chat.InboundMessage{
					ID:        m.ID,
					From:      m.From,
					Timestamp: m.Timestamp,
				}
				if m.Text != nil {
					ev.Text = m.Text.Body
				}
				if media := firstMedia(m.Image, m.Video, m.Audio, m.Document); media != nil {
					ev.Media = &chat.InboundMedia{
						ID:       media.ID,
						MimeType: media.MimeType,
						Caption:  media.Caption,
					}
				}
				h.Store.ApplyInbound(ev)
			}
			for _, st := range change.Value.Statuses {
				h.Store.ApplyStatus(chat.StatusUpdate{
					ID:          st.ID,
					RecipientID: st.RecipientID,
					Status:      st.Status,
				})
			}
		}
	}

	c.Status(http.StatusOK)
}

func firstMedia(candidates ...*webhookMedia) *webhookMedia {
	for _, m := range candidates {
		if m != nil {
			return m
		}
	}
	return nil
}
