package chat

import (
	"log"
	"time"
)

// resolveDebounce spaces media resolution behind bursts of contact
// updates so the provider is not flooded on initial load.
const resolveDebounce = time.Second

// scheduleResolve requests a media resolution sweep. Repeated calls
// within the debounce window collapse into one sweep.
func (s *Store) scheduleResolve() {
	select {
	case s.resolveKick <- struct{}{}:
	default:
	}
}

func (s *Store) resolveLoop() {
	timer := time.NewTimer(resolveDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		select {
		case <-s.resolveKick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(resolveDebounce)
		case <-timer.C:
			s.resolvePendingMedia()
		case <-s.done:
			timer.Stop()
			return
		}
	}
}

type pendingMedia struct {
	contactID string
	messageID string
	mediaID   string
}

// resolvePendingMedia attaches a fetchable reference to incoming media
// messages that still hold only a provider media identifier. The
// short-lived locator is resolved to verify the media exists, then the
// message points at the local proxy path so the bearer token never
// reaches the browser. Failures are left for the next sweep.
func (s *Store) resolvePendingMedia() {
	creds, err := s.credentialsForSend()
	if err != nil {
		return
	}

	s.mu.Lock()
	var work []pendingMedia
	for _, c := range s.contacts {
		for i := range c.Messages {
			m := &c.Messages[i]
			if m.Direction == "incoming" && m.MediaID != "" && m.MediaURL == "" {
				work = append(work, pendingMedia{contactID: c.ID, messageID: m.ID, mediaID: m.MediaID})
			}
		}
	}
	s.mu.Unlock()

	for _, w := range work {
		if _, err := s.provider.MediaURL(creds, w.mediaID); err != nil {
			log.Printf("chat: resolving media %s failed: %v", w.mediaID, err)
			continue
		}
		s.attachMediaURL(w.contactID, w.messageID, "/api/media/"+w.mediaID+"/proxy")
	}
}

func (s *Store) attachMediaURL(contactID, messageID, url string) {
	s.mu.Lock()
	var evt *MessageEvent
	if c := s.findLocked(contactID); c != nil {
		for i := range c.Messages {
			if c.Messages[i].ID == messageID {
				c.Messages[i].MediaURL = url
				evt = &MessageEvent{ContactID: contactID, Message: c.Messages[i]}
				break
			}
		}
	}
	s.mu.Unlock()

	if evt != nil {
		s.emit("message", *evt)
		s.persist()
	}
}
