package chat

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"nebula-chat/internal/meta"
)

// ErrNoCredentials is returned by send operations before any network
// call when no provider credentials are configured.
var ErrNoCredentials = errors.New("messaging credentials are not configured")

// ErrUnknownContact is returned when a send names a conversation that
// does not exist.
var ErrUnknownContact = errors.New("unknown contact")

// Provider is the slice of the Cloud API client the reconciler needs.
type Provider interface {
	SendText(creds meta.Credentials, to, body string) (*meta.SendResponse, error)
	SendTemplate(creds meta.Credentials, to, name, lang string, vars []string) (*meta.SendResponse, error)
	SendMedia(creds meta.Credentials, to string, kind meta.MediaKind, mediaID, caption, filename string) (*meta.SendResponse, error)
	UploadMedia(creds meta.Credentials, data []byte, mimeType, filename string) (string, error)
	MediaURL(creds meta.Credentials, mediaID string) (string, error)
}

// MessageEvent is broadcast to UI clients when a message is appended or
// reconciled.
type MessageEvent struct {
	ContactID string  `json:"contact_id"`
	Message   Message `json:"message"`
}

// StatusEvent is broadcast when a message's delivery status changes.
type StatusEvent struct {
	ContactID string `json:"contact_id"`
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// pendingOp tracks one in-flight send so its continuation can locate
// the optimistic message regardless of completion order.
type pendingOp struct {
	ContactID string
	StartedAt time.Time
}

// StoreConfig wires the reconciler to its collaborators. Notify and the
// persistence hooks may be nil.
type StoreConfig struct {
	Provider           Provider
	Notify             func(event string, data interface{})
	PersistContacts    func([]Contact)
	PersistCredentials func(*meta.Credentials)
}

// Store is the single authoritative owner of the contact/message
// collection. Every mutation passes through it under one mutex; the
// collaborating goroutines (HTTP handlers, the event listener, the
// media resolver) never touch the collection directly.
type Store struct {
	mu       sync.Mutex
	contacts []*Contact
	activeID string
	creds    meta.Credentials
	hasCreds bool

	provider Provider
	pending  map[string]pendingOp

	notify             func(event string, data interface{})
	persistContacts    func([]Contact)
	persistCredentials func(*meta.Credentials)

	resolveKick chan struct{}
	done        chan struct{}
	closeOnce   sync.Once
}

func NewStore(cfg StoreConfig) *Store {
	return &Store{
		provider:           cfg.Provider,
		pending:            make(map[string]pendingOp),
		notify:             cfg.Notify,
		persistContacts:    cfg.PersistContacts,
		persistCredentials: cfg.PersistCredentials,
		resolveKick:        make(chan struct{}, 1),
		done:               make(chan struct{}),
	}
}

// Seed loads previously persisted state. Call before Start.
func (s *Store) Seed(contacts []Contact, creds *meta.Credentials) {
	s.mu.Lock()
	s.contacts = s.contacts[:0]
	for i := range contacts {
		c := contacts[i]
		s.contacts = append(s.contacts, &c)
	}
	if creds != nil {
		s.creds = *creds
		s.hasCreds = true
	}
	s.mu.Unlock()
	s.scheduleResolve()
}

// Start launches the background media resolution sweep.
func (s *Store) Start() {
	go s.resolveLoop()
}

// Close stops background work. Safe to call more than once.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Store) emit(event string, data interface{}) {
	if s.notify != nil {
		s.notify(event, data)
	}
}

func (s *Store) snapshotLocked() []Contact {
	out := make([]Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		cc := *c
		cc.Messages = make([]Message, len(c.Messages))
		copy(cc.Messages, c.Messages)
		out = append(out, cc)
	}
	return out
}

func (s *Store) persist() {
	if s.persistContacts == nil {
		return
	}
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.persistContacts(snapshot)
}

func (s *Store) findLocked(contactID string) *Contact {
	for _, c := range s.contacts {
		if c.ID == contactID {
			return c
		}
	}
	return nil
}

// Contacts returns a deep copy of the collection in display order.
func (s *Store) Contacts() []Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Contact returns a deep copy of one conversation.
func (s *Store) Contact(contactID string) (Contact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.findLocked(contactID)
	if c == nil {
		return Contact{}, false
	}
	cc := *c
	cc.Messages = make([]Message, len(c.Messages))
	copy(cc.Messages, c.Messages)
	return cc, true
}

// NewContact creates an empty conversation (the explicit new-chat
// action) or returns the existing one.
func (s *Store) NewContact(contactID, name string) Contact {
	s.mu.Lock()
	if c := s.findLocked(contactID); c != nil {
		cc := *c
		s.mu.Unlock()
		return cc
	}
	if name == "" {
		name = "+" + contactID
	}
	c := &Contact{ID: contactID, Name: name, Messages: []Message{}}
	s.contacts = append([]*Contact{c}, s.contacts...)
	cc := *c
	s.mu.Unlock()

	s.emit("contact", cc)
	s.persist()
	return cc
}

// SetActive marks a conversation as focused and resets its unread
// counter to zero.
func (s *Store) SetActive(contactID string) {
	s.mu.Lock()
	s.activeID = contactID
	changed := false
	if c := s.findLocked(contactID); c != nil && c.UnreadCount != 0 {
		c.UnreadCount = 0
		changed = true
	}
	s.mu.Unlock()

	if changed {
		s.persist()
	}
}

// Credentials returns the configured provider credentials, if any.
func (s *Store) Credentials() (meta.Credentials, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds, s.hasCreds
}

func (s *Store) SetCredentials(creds meta.Credentials) {
	s.mu.Lock()
	s.creds = creds
	s.hasCreds = true
	s.mu.Unlock()

	if s.persistCredentials != nil {
		s.persistCredentials(&creds)
	}
	s.scheduleResolve()
}

// ClearCredentials drops the stored credentials (logout).
func (s *Store) ClearCredentials() {
	s.mu.Lock()
	s.creds = meta.Credentials{}
	s.hasCreds = false
	s.mu.Unlock()

	if s.persistCredentials != nil {
		s.persistCredentials(nil)
	}
}

func (s *Store) credentialsForSend() (meta.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasCreds || !s.creds.Valid() {
		return meta.Credentials{}, ErrNoCredentials
	}
	return s.creds, nil
}

func tempID() string {
	return "temp_" + uuid.NewString()
}

// appendOutgoing applies the optimistic insert: the message is visible
// and the pending op recorded before any network round trip starts.
func (s *Store) appendOutgoing(contactID string, msg Message) error {
	s.mu.Lock()
	c := s.findLocked(contactID)
	if c == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownContact, contactID)
	}
	c.Messages = append(c.Messages, msg)
	c.LastMessage = preview(msg)
	c.LastMessageTime = msg.Timestamp
	c.UnreadCount = 0
	s.pending[msg.ID] = pendingOp{ContactID: contactID, StartedAt: time.Now()}
	s.mu.Unlock()

	s.emit("message", MessageEvent{ContactID: contactID, Message: msg})
	s.persist()
	return nil
}

// confirmSend swaps the placeholder identifier for the provider's and,
// for media sends, records the uploaded media id. A temp id with no
// pending entry is a no-op.
func (s *Store) confirmSend(placeholderID, confirmedID, mediaID string) {
	s.mu.Lock()
	op, ok := s.pending[placeholderID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.pending, placeholderID)

	var updated *Message
	if c := s.findLocked(op.ContactID); c != nil {
		for i := range c.Messages {
			if c.Messages[i].ID == placeholderID {
				if confirmedID != "" {
					c.Messages[i].ID = confirmedID
				}
				if mediaID != "" {
					c.Messages[i].MediaID = mediaID
				}
				updated = &c.Messages[i]
				break
			}
		}
	}
	var evt MessageEvent
	if updated != nil {
		evt = MessageEvent{ContactID: op.ContactID, Message: *updated}
	}
	s.mu.Unlock()

	if updated != nil {
		s.emit("message", evt)
		s.persist()
	}
}

// abandonSend drops the pending op after a failed send. The optimistic
// message keeps status "sent"; see the known-gap note in DESIGN.md.
func (s *Store) abandonSend(placeholderID string) {
	s.mu.Lock()
	delete(s.pending, placeholderID)
	s.mu.Unlock()
}

// SendText appends an optimistic text message, then performs the
// provider call and reconciles the identifier.
func (s *Store) SendText(contactID, text string) (Message, error) {
	creds, err := s.credentialsForSend()
	if err != nil {
		return Message{}, err
	}

	msg := Message{
		ID:        tempID(),
		Text:      text,
		Timestamp: nowMillis(),
		Direction: "outgoing",
		Status:    StatusSent,
		Type:      TypeText,
	}
	if err := s.appendOutgoing(contactID, msg); err != nil {
		return Message{}, err
	}

	resp, err := s.provider.SendText(creds, contactID, text)
	if err != nil {
		s.abandonSend(msg.ID)
		return msg, err
	}
	s.confirmSend(msg.ID, resp.MessageID(), "")
	return msg, nil
}

// SendTemplate sends a named template with positional body variables.
func (s *Store) SendTemplate(contactID, name, lang string, vars []string) (Message, error) {
	creds, err := s.credentialsForSend()
	if err != nil {
		return Message{}, err
	}

	display := "Template: " + name
	if len(vars) > 0 {
		display += "\nParams: [" + strings.Join(vars, ", ") + "]"
	}
	msg := Message{
		ID:           tempID(),
		Text:         display,
		TemplateName: name,
		Timestamp:    nowMillis(),
		Direction:    "outgoing",
		Status:       StatusSent,
		Type:         TypeTemplate,
	}
	if err := s.appendOutgoing(contactID, msg); err != nil {
		return Message{}, err
	}

	resp, err := s.provider.SendTemplate(creds, contactID, name, lang, vars)
	if err != nil {
		s.abandonSend(msg.ID)
		return msg, err
	}
	s.confirmSend(msg.ID, resp.MessageID(), "")
	return msg, nil
}

// SendMedia uploads a file, sends it as a media message and reconciles
// the identifiers. The optimistic message shows the filename until the
// media resolver attaches a fetchable reference.
func (s *Store) SendMedia(contactID string, data []byte, mimeType, filename string) (Message, error) {
	creds, err := s.credentialsForSend()
	if err != nil {
		return Message{}, err
	}

	kind := KindFromFileMime(mimeType)
	msg := Message{
		ID:        tempID(),
		Text:      filename,
		Timestamp: nowMillis(),
		Direction: "outgoing",
		Status:    StatusSent,
		Type:      kind,
	}
	if err := s.appendOutgoing(contactID, msg); err != nil {
		return Message{}, err
	}

	mediaID, err := s.provider.UploadMedia(creds, data, mimeType, filename)
	if err != nil {
		s.abandonSend(msg.ID)
		return msg, err
	}

	resp, err := s.provider.SendMedia(creds, contactID, meta.MediaKind(kind), mediaID, filename, filename)
	if err != nil {
		s.abandonSend(msg.ID)
		return msg, err
	}
	s.confirmSend(msg.ID, resp.MessageID(), mediaID)
	return msg, nil
}

// ApplyInbound merges an inbound-message event into the collection.
// Duplicate identifiers within the same conversation are dropped.
func (s *Store) ApplyInbound(ev InboundMessage) {
	if ev.ID == "" || ev.From == "" {
		log.Printf("chat: dropping inbound event with missing id or sender")
		return
	}

	msg := Message{
		ID:        ev.ID,
		Text:      ev.Text,
		Timestamp: parseEventTimestamp(ev.Timestamp),
		Direction: "incoming",
		Status:    StatusRead, // no separate mark-as-read round trip
		Type:      TypeText,
	}
	if ev.Media != nil {
		msg.Type = kindFromInboundMime(ev.Media.MimeType)
		msg.MediaID = ev.Media.ID
		msg.MediaURL = ev.Media.Link
		if ev.Media.Caption != "" {
			msg.Text = ev.Media.Caption
		}
	}

	s.mu.Lock()
	c := s.findLocked(ev.From)
	if c != nil {
		for i := range c.Messages {
			if c.Messages[i].ID == msg.ID {
				s.mu.Unlock()
				return
			}
		}
		c.Messages = append(c.Messages, msg)
		c.LastMessage = preview(msg)
		c.LastMessageTime = msg.Timestamp
		if c.ID != s.activeID {
			c.UnreadCount++
		} else {
			c.UnreadCount = 0
		}
	} else {
		c = &Contact{
			ID:              ev.From,
			Name:            "+" + ev.From,
			UnreadCount:     1,
			Messages:        []Message{msg},
			LastMessage:     preview(msg),
			LastMessageTime: msg.Timestamp,
		}
		s.contacts = append([]*Contact{c}, s.contacts...)
	}
	s.mu.Unlock()

	s.emit("message", MessageEvent{ContactID: ev.From, Message: msg})
	s.persist()
	if msg.MediaID != "" && msg.MediaURL == "" {
		s.scheduleResolve()
	}
}

// ApplyStatus overwrites a message's delivery status. Unknown message
// identifiers, including placeholders not yet reconciled, are ignored.
func (s *Store) ApplyStatus(ev StatusUpdate) {
	s.mu.Lock()
	changed := false
	if c := s.findLocked(ev.RecipientID); c != nil {
		for i := range c.Messages {
			if c.Messages[i].ID == ev.ID {
				c.Messages[i].Status = DeliveryStatus(ev.Status)
				changed = true
				break
			}
		}
	}
	s.mu.Unlock()

	if changed {
		s.emit("status", StatusEvent{ContactID: ev.RecipientID, MessageID: ev.ID, Status: ev.Status})
		s.persist()
	}
}

// preview is the denormalized sidebar line for a message.
func preview(msg Message) string {
	if msg.Type == TypeText {
		return msg.Text
	}
	return "Sent " + string(msg.Type)
}
