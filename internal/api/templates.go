package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nebula-chat/internal/chat"
	"nebula-chat/internal/meta"
	"nebula-chat/internal/template"
)

// TemplateHandler serves the template dashboard: the local cache, the
// provider listing and the builder.
type TemplateHandler struct {
	Store  *chat.Store
	Client *meta.Client
	Cache  *template.Cache
}

func NewTemplateHandler(store *chat.Store, client *meta.Client, cache *template.Cache) *TemplateHandler {
	return &TemplateHandler{Store: store, Client: client, Cache: cache}
}

// GetTemplates returns the local cache.
func (h *TemplateHandler) GetTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, h.Cache.All())
}

// SyncTemplates fetches the provider's template list and replaces the
// local cache with it.
func (h *TemplateHandler) SyncTemplates(c *gin.Context) {
	creds, ok := h.Store.Credentials()
	if !ok {
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": "Credentials not configured", "kind": "configuration"})
		return
	}

	templates, err := h.Client.ListTemplates(creds)
	if err != nil {
		respondSendError(c, err)
		return
	}
	h.Cache.Replace(templates)
	c.JSON(http.StatusOK, gin.H{"status": "Templates synced", "count": len(templates)})
}

type createTemplateRequest struct {
	template.Form
	// Drafts are cached locally without being submitted for review.
	DraftOnly bool `json:"draft_only"`
}

// CreateTemplate builds a template from the flat authoring form. Unless
// the request is a local draft, the definition is submitted to the
// provider for asynchronous approval and cached with PENDING status.
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var req createTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := req.Form.Build()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.DraftOnly {
		t.Status = template.StatusApproved // local drafts are usable immediately
		h.Cache.Add(t)
		c.JSON(http.StatusCreated, t)
		return
	}

	creds, ok := h.Store.Credentials()
	if !ok {
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": "Credentials not configured", "kind": "configuration"})
		return
	}
	if err := h.Client.CreateTemplate(creds, t); err != nil {
		respondSendError(c, err)
		return
	}

	h.Cache.Add(t)
	c.JSON(http.StatusCreated, t)
}
