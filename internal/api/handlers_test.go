package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nebula-chat/internal/chat"
	"nebula-chat/internal/meta"
	"nebula-chat/internal/template"
	"nebula-chat/internal/ws"
)

// testEnv is a full HTTP surface wired to a stub Graph backend.
type testEnv struct {
	router *gin.Engine
	store  *chat.Store
	cache  *template.Cache
	token  string
	graph  *httptest.Server
}

// newTestEnv builds the router against the given Graph stub. A nil
// handler yields a backend where every request succeeds with a canned
// send acknowledgement.
func newTestEnv(t *testing.T, graphHandler http.HandlerFunc) *testEnv {
	t.Helper()

	if graphHandler == nil {
		graphHandler = func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"messages":[{"id":"wamid.CONFIRMED"}],"id":"media-1"}`))
		}
	}
	graph := httptest.NewServer(graphHandler)
	t.Cleanup(graph.Close)

	client := &meta.Client{BaseURL: graph.URL, HTTP: graph.Client()}
	store := chat.NewStore(chat.StoreConfig{Provider: client})
	t.Cleanup(store.Close)

	hub := ws.NewHub()
	go hub.Run()

	cache := template.NewCache(nil, nil)
	auth := NewAuthHandler("test-secret")
	router := SetupRouter(RouterConfig{
		Auth:         auth,
		Chat:         NewChatHandler(store, client),
		Templates:    NewTemplateHandler(store, client, cache),
		Webhook:      NewWebhookHandler("verify-me", store),
		Hub:          hub,
		Connectivity: func() bool { return true },
	})

	token, err := auth.issueToken("agent@nebula")
	require.NoError(t, err)

	return &testEnv{router: router, store: store, cache: cache, token: token, graph: graph}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestSendText_WithoutCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.NewContact("555000", "")

	w := env.do("POST", "/api/contacts/555000/send", `{"text":"hello"}`)

	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.Contains(t, w.Body.String(), "Please configure your Meta API credentials first.")
	assert.Contains(t, w.Body.String(), `"kind":"configuration"`)
}

func TestSendText_ProviderRejection(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Recipient not on WhatsApp","code":131026}}`))
	})
	env.store.SetCredentials(meta.Credentials{AccessToken: "tok", PhoneNumberID: "1"})
	env.store.NewContact("555000", "")

	w := env.do("POST", "/api/contacts/555000/send", `{"text":"hello"}`)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "Recipient not on WhatsApp")
	assert.Contains(t, w.Body.String(), `"kind":"rejected"`)
}

func TestSendText_Offline(t *testing.T) {
	env := newTestEnv(t, nil)
	env.graph.Close() // backend unreachable
	env.store.SetCredentials(meta.Credentials{AccessToken: "tok", PhoneNumberID: "1"})
	env.store.NewContact("555000", "")

	w := env.do("POST", "/api/contacts/555000/send", `{"text":"hello"}`)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":"offline"`)
}

func TestSendText_UnknownContact(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.SetCredentials(meta.Credentials{AccessToken: "tok", PhoneNumberID: "1"})

	w := env.do("POST", "/api/contacts/nobody/send", `{"text":"hello"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSendText_Success(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.SetCredentials(meta.Credentials{AccessToken: "tok", PhoneNumberID: "1"})
	env.store.NewContact("555000", "")

	w := env.do("POST", "/api/contacts/555000/send", `{"text":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code)

	contact, _ := env.store.Contact("555000")
	require.Len(t, contact.Messages, 1)
	assert.Equal(t, "wamid.CONFIRMED", contact.Messages[0].ID)
}

func TestContactsLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do("POST", "/api/contacts", `{"id":"555000","name":"Ana"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do("GET", "/api/contacts", "")
	require.Equal(t, http.StatusOK, w.Code)
	var contacts []chat.Contact
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &contacts))
	require.Len(t, contacts, 1)
	assert.Equal(t, "Ana", contacts[0].Name)

	w = env.do("GET", "/api/contacts/555000", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do("GET", "/api/contacts/other", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFocusContact_ClearsUnread(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.ApplyInbound(chat.InboundMessage{ID: "m1", From: "555000", Text: "hi"})

	w := env.do("POST", "/api/contacts/555000/focus", "")
	require.Equal(t, http.StatusOK, w.Code)

	contact, _ := env.store.Contact("555000")
	assert.Zero(t, contact.UnreadCount)
}

func TestSendMedia_MultipartUpload(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.SetCredentials(meta.Credentials{AccessToken: "tok", PhoneNumberID: "1"})
	env.store.NewContact("555000", "")

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "pic.png")
	require.NoError(t, err)
	part.Write([]byte("png bytes"))
	writer.Close()

	req := httptest.NewRequest("POST", "/api/contacts/555000/media", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	contact, _ := env.store.Contact("555000")
	require.Len(t, contact.Messages, 1)
	assert.Equal(t, chat.TypeImage, contact.Messages[0].Type)
}

func TestSendMedia_MissingFile(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do("POST", "/api/contacts/555000/media", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCredentials_NeverEchoToken(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do("GET", "/api/credentials", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"configured":false`)

	w = env.do("PUT", "/api/credentials", `{"access_token":"super-secret","phone_number_id":"1","business_name":"Nebula"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do("GET", "/api/credentials", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"configured":true`)
	assert.Contains(t, w.Body.String(), "Nebula")
	assert.NotContains(t, w.Body.String(), "super-secret")

	w = env.do("DELETE", "/api/credentials", "")
	require.Equal(t, http.StatusOK, w.Code)
	_, ok := env.store.Credentials()
	assert.False(t, ok)
}

func TestSetCredentials_Validation(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do("PUT", "/api/credentials", `{"access_token":"","phone_number_id":"1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do("GET", "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"connected":true`)
}

func TestAPIRequiresAuth(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest("GET", "/api/contacts", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateTemplate_DraftOnly(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do("POST", "/api/templates", `{"name":"Welcome Offer","body_text":"Hi {{1}}","draft_only":true}`)
	require.Equal(t, http.StatusCreated, w.Code)

	tmpl, ok := env.cache.Get("welcome_offer")
	require.True(t, ok)
	assert.Equal(t, template.StatusApproved, tmpl.Status)
	assert.Equal(t, 1, tmpl.VariableCount)
}

func TestCreateTemplate_SubmitsToProvider(t *testing.T) {
	var gotPath string
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"id":"tpl-1"}`))
	})
	env.store.SetCredentials(meta.Credentials{AccessToken: "tok", PhoneNumberID: "1", WABAID: "9"})

	w := env.do("POST", "/api/templates", `{"name":"promo","body_text":"Hi {{1}}"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/9/message_templates", gotPath)

	tmpl, ok := env.cache.Get("promo")
	require.True(t, ok)
	assert.Equal(t, template.StatusPending, tmpl.Status)
}

func TestSyncTemplates_ReplacesCache(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"name":"remote","category":"UTILITY","status":"APPROVED","language":"en_US","components":[{"type":"BODY","text":"Hello {{1}}"}]}]}`))
	})
	env.store.SetCredentials(meta.Credentials{AccessToken: "tok", PhoneNumberID: "1", WABAID: "9"})
	env.cache.Add(template.Template{Name: "stale"})

	w := env.do("POST", "/api/templates/sync", "")
	require.Equal(t, http.StatusOK, w.Code)

	_, ok := env.cache.Get("stale")
	assert.False(t, ok)
	tmpl, ok := env.cache.Get("remote")
	require.True(t, ok)
	assert.Equal(t, 1, tmpl.VariableCount)
}

func TestSyncTemplates_RequiresCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do("POST", "/api/templates/sync", "")
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
}
