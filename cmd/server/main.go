package main

import (
	"log"

	"nebula-chat/internal/api"
	"nebula-chat/internal/chat"
	"nebula-chat/internal/config"
	"nebula-chat/internal/events"
	"nebula-chat/internal/meta"
	"nebula-chat/internal/store"
	"nebula-chat/internal/template"
	"nebula-chat/internal/ws"
)

func main() {
	cfg := config.LoadConfig()

	db, err := store.Open(cfg.DBPath, cfg.DBDSN)
	if err != nil {
		log.Fatalf("Failed to open state store: %v", err)
	}

	hub := ws.NewHub()
	go hub.Run()

	client := meta.NewClient()

	chatStore := chat.NewStore(chat.StoreConfig{
		Provider: client,
		Notify:   hub.Broadcast,
		PersistContacts: func(contacts []chat.Contact) {
			if err := db.Put(store.RecordContacts, contacts); err != nil {
				log.Printf("Failed to persist contacts: %v", err)
			}
		},
		PersistCredentials: func(creds *meta.Credentials) {
			if creds == nil {
				if err := db.Delete(store.RecordCredentials); err != nil {
					log.Printf("Failed to clear credentials: %v", err)
				}
				return
			}
			if err := db.Put(store.RecordCredentials, creds); err != nil {
				log.Printf("Failed to persist credentials: %v", err)
			}
		},
	})

	// Restore persisted snapshots; corrupt records fall back to empty.
	var contacts []chat.Contact
	db.Get(store.RecordContacts, &contacts)
	var creds *meta.Credentials
	var loaded meta.Credentials
	if db.Get(store.RecordCredentials, &loaded) {
		creds = &loaded
	} else if cfg.WhatsAppToken != "" && cfg.PhoneNumberID != "" {
		creds = &meta.Credentials{
			AccessToken:   cfg.WhatsAppToken,
			PhoneNumberID: cfg.PhoneNumberID,
			WABAID:        cfg.WhatsAppBusinessAccountID,
			BusinessName:  cfg.BusinessName,
		}
	}
	chatStore.Seed(contacts, creds)
	chatStore.Start()
	defer chatStore.Close()

	var cachedTemplates []template.Template
	db.Get(store.RecordTemplates, &cachedTemplates)
	templateCache := template.NewCache(cachedTemplates, func(ts []template.Template) {
		if err := db.Put(store.RecordTemplates, ts); err != nil {
			log.Printf("Failed to persist templates: %v", err)
		}
	})

	connectivity := func() bool { return false }
	if cfg.EventFeedURL != "" {
		listener := events.NewListener(cfg.EventFeedURL, chatStore)
		listener.Start()
		defer listener.Close()
		connectivity = listener.Connected
	} else {
		log.Println("EVENT_FEED_URL not set; relying on direct webhook deliveries")
	}

	r := api.SetupRouter(api.RouterConfig{
		Auth:         api.NewAuthHandler(cfg.JWTSecret),
		Chat:         api.NewChatHandler(chatStore, client),
		Templates:    api.NewTemplateHandler(chatStore, client, templateCache),
		Webhook:      api.NewWebhookHandler(cfg.VerifyToken, chatStore),
		Hub:          hub,
		Connectivity: connectivity,
	})

	log.Printf("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
