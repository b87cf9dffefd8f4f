package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nebula-chat/internal/ws"
)

// RouterConfig collects everything the HTTP surface needs.
type RouterConfig struct {
	Auth      *AuthHandler
	Chat      *ChatHandler
	Templates *TemplateHandler
	Webhook   *WebhookHandler
	Hub       *ws.Hub
	// Connectivity reports the live feed state; display only.
	Connectivity func() bool
}

func SetupRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()

	// CORS Middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Webhook Routes (provider-facing, no session auth)
	r.GET("/webhook", cfg.Webhook.Verify)
	r.POST("/webhook", cfg.Webhook.Receive)

	r.POST("/api/login", cfg.Auth.Login)

	apiGroup := r.Group("/api")
	apiGroup.Use(cfg.Auth.Middleware())
	{
		apiGroup.GET("/status", func(c *gin.Context) {
			connected := false
			if cfg.Connectivity != nil {
				connected = cfg.Connectivity()
			}
			c.JSON(http.StatusOK, gin.H{"connected": connected})
		})

		apiGroup.GET("/contacts", cfg.Chat.GetContacts)
		apiGroup.POST("/contacts", cfg.Chat.CreateContact)
		apiGroup.GET("/contacts/:id", cfg.Chat.GetContact)
		apiGroup.POST("/contacts/:id/focus", cfg.Chat.FocusContact)
		apiGroup.POST("/contacts/:id/send", cfg.Chat.SendText)
		apiGroup.POST("/contacts/:id/template", cfg.Chat.SendTemplate)
		apiGroup.POST("/contacts/:id/media", cfg.Chat.SendMedia)

		apiGroup.GET("/media/:id/proxy", cfg.Chat.ProxyMedia)

		apiGroup.GET("/credentials", cfg.Chat.GetCredentials)
		apiGroup.PUT("/credentials", cfg.Chat.SetCredentials)
		apiGroup.DELETE("/credentials", cfg.Chat.ClearCredentials)

		apiGroup.GET("/templates", cfg.Templates.GetTemplates)
		apiGroup.POST("/templates", cfg.Templates.CreateTemplate)
		apiGroup.POST("/templates/sync", cfg.Templates.SyncTemplates)

		apiGroup.GET("/ws", func(c *gin.Context) {
			cfg.Hub.ServeWs(c.Writer, c.Request)
		})
	}

	return r
}
