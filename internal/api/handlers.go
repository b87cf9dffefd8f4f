package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"nebula-chat/internal/chat"
	"nebula-chat/internal/meta"
)

// ChatHandler exposes the conversation state and send operations to the
// browser UI.
type ChatHandler struct {
	Store  *chat.Store
	Client *meta.Client
}

func NewChatHandler(store *chat.Store, client *meta.Client) *ChatHandler {
	return &ChatHandler{Store: store, Client: client}
}

// respondSendError maps the error taxonomy onto responses the UI can
// distinguish: configuration-required, provider-rejected, offline.
func respondSendError(c *gin.Context, err error) {
	var apiErr *meta.APIError
	switch {
	case errors.Is(err, chat.ErrNoCredentials):
		c.JSON(http.StatusPreconditionFailed, gin.H{
			"error": "Please configure your Meta API credentials first.",
			"kind":  "configuration",
		})
	case errors.Is(err, chat.ErrUnknownContact):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case meta.IsTransport(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "kind": "offline"})
	case errors.As(err, &apiErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": apiErr.Message, "kind": "rejected"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *ChatHandler) GetContacts(c *gin.Context) {
	c.JSON(http.StatusOK, h.Store.Contacts())
}

type createContactRequest struct {
	ID   string `json:"id" binding:"required"`
	Name string `json:"name"`
}

func (h *ChatHandler) CreateContact(c *gin.Context) {
	var req createContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	contact := h.Store.NewContact(req.ID, req.Name)
	c.JSON(http.StatusCreated, contact)
}

func (h *ChatHandler) GetContact(c *gin.Context) {
	contact, ok := h.Store.Contact(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Contact not found"})
		return
	}
	c.JSON(http.StatusOK, contact)
}

// FocusContact marks a conversation as the active one, clearing its
// unread counter.
func (h *ChatHandler) FocusContact(c *gin.Context) {
	h.Store.SetActive(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": "Contact focused"})
}

type sendTextRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *ChatHandler) SendText(c *gin.Context) {
	var req sendTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.Store.SendText(c.Param("id"), req.Text)
	if err != nil {
		respondSendError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

type sendTemplateRequest struct {
	Name      string   `json:"name" binding:"required"`
	Language  string   `json:"language"`
	Variables []string `json:"variables"`
}

func (h *ChatHandler) SendTemplate(c *gin.Context) {
	var req sendTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.Store.SendTemplate(c.Param("id"), req.Name, req.Language, req.Variables)
	if err != nil {
		respondSendError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *ChatHandler) SendMedia(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File is required"})
		return
	}
	defer file.Close()

	fileBytes, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
		return
	}

	msg, err := h.Store.SendMedia(c.Param("id"), fileBytes, header.Header.Get("Content-Type"), header.Filename)
	if err != nil {
		respondSendError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// ProxyMedia streams provider media through the server so the bearer
// token stays out of the browser.
func (h *ChatHandler) ProxyMedia(c *gin.Context) {
	creds, ok := h.Store.Credentials()
	if !ok {
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": "Credentials not configured", "kind": "configuration"})
		return
	}

	mediaURL, err := h.Client.MediaURL(creds, c.Param("id"))
	if err != nil {
		respondSendError(c, err)
		return
	}

	data, contentType, err := h.Client.DownloadMedia(creds, mediaURL)
	if err != nil {
		respondSendError(c, err)
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, data)
}

// --- Credentials ---

func (h *ChatHandler) GetCredentials(c *gin.Context) {
	creds, ok := h.Store.Credentials()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"configured": false})
		return
	}
	// The token itself is never echoed back.
	c.JSON(http.StatusOK, gin.H{
		"configured":      true,
		"phone_number_id": creds.PhoneNumberID,
		"waba_id":         creds.WABAID,
		"business_name":   creds.BusinessName,
	})
}

func (h *ChatHandler) SetCredentials(c *gin.Context) {
	var creds meta.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !creds.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Token and Phone Number ID are required"})
		return
	}
	h.Store.SetCredentials(creds)
	c.JSON(http.StatusOK, gin.H{"status": "Credentials saved"})
}

// ClearCredentials backs the logout action.
func (h *ChatHandler) ClearCredentials(c *gin.Context) {
	h.Store.ClearCredentials()
	c.JSON(http.StatusOK, gin.H{"status": "Credentials cleared"})
}
