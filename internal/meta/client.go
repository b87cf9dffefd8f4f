package meta

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"nebula-chat/internal/template"
)

const defaultBaseURL = "https://graph.facebook.com/v20.0"

// Client talks to the WhatsApp Cloud API. It is stateless: credentials
// are supplied per call and nothing is retried or cached.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient() *Client {
	return &Client{
		BaseURL: defaultBaseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) sendRequest(creds Credentials, method, url string, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	if resp.StatusCode >= 400 {
		return nil, parseAPIError(resp.StatusCode, respBody)
	}

	return respBody, nil
}

func (c *Client) sendMessage(creds Credentials, msg messageEnvelope) (*SendResponse, error) {
	url := fmt.Sprintf("%s/%s/messages", c.BaseURL, creds.PhoneNumberID)
	respBody, err := c.sendRequest(creds, "POST", url, msg)
	if err != nil {
		return nil, err
	}

	var sendResp SendResponse
	if err := json.Unmarshal(respBody, &sendResp); err != nil {
		return nil, err
	}
	return &sendResp, nil
}

// SendText sends a plain text message.
func (c *Client) SendText(creds Credentials, to, body string) (*SendResponse, error) {
	return c.sendMessage(creds, messageEnvelope{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &TextObj{Body: body},
	})
}

// SendTemplate sends an approved template, substituting vars into the
// body component in order.
func (c *Client) SendTemplate(creds Credentials, to, name, languageCode string, vars []string) (*SendResponse, error) {
	if languageCode == "" {
		languageCode = "en_US"
	}
	tmpl := &TemplateObj{
		Name:     name,
		Language: LanguageObj{Code: languageCode},
	}
	if len(vars) > 0 {
		params := make([]ParameterObj, len(vars))
		for i, v := range vars {
			params[i] = ParameterObj{Type: "text", Text: v}
		}
		tmpl.Components = []ComponentObj{{Type: "body", Parameters: params}}
	}

	return c.sendMessage(creds, messageEnvelope{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template:         tmpl,
	})
}

// SendMedia sends a previously uploaded media object. Captions are not
// supported on audio and are dropped there.
func (c *Client) SendMedia(creds Credentials, to string, kind MediaKind, mediaID, caption, filename string) (*SendResponse, error) {
	media := &MediaObj{ID: mediaID}
	if caption != "" && kind != MediaAudio {
		media.Caption = caption
	}

	msg := messageEnvelope{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             string(kind),
	}
	switch kind {
	case MediaImage:
		msg.Image = media
	case MediaVideo:
		msg.Video = media
	case MediaAudio:
		msg.Audio = media
	case MediaDocument:
		media.Filename = filename
		msg.Document = media
	default:
		return nil, fmt.Errorf("unsupported media kind %q", kind)
	}

	return c.sendMessage(creds, msg)
}

// UploadMedia pushes binary content to the provider and returns the
// assigned media identifier.
func (c *Client) UploadMedia(creds Credentials, fileData []byte, mimeType, filename string) (string, error) {
	url := fmt.Sprintf("%s/%s/media", c.BaseURL, creds.PhoneNumberID)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", err
	}
	part.Write(fileData)

	writer.WriteField("messaging_product", "whatsapp")
	writer.Close()

	req, err := http.NewRequest("POST", url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	if resp.StatusCode >= 400 {
		return "", parseAPIError(resp.StatusCode, respBody)
	}

	var uploadResp uploadResponse
	if err := json.Unmarshal(respBody, &uploadResp); err != nil {
		return "", err
	}
	return uploadResp.ID, nil
}

// MediaURL resolves a media identifier to its short-lived download URL.
// The URL itself still requires the bearer token; use DownloadMedia to
// fetch the bytes server-side instead of handing the token to a browser.
func (c *Client) MediaURL(creds Credentials, mediaID string) (string, error) {
	url := fmt.Sprintf("%s/%s", c.BaseURL, mediaID)
	respBody, err := c.sendRequest(creds, "GET", url, nil)
	if err != nil {
		return "", err
	}

	var obj mediaURLResponse
	if err := json.Unmarshal(respBody, &obj); err != nil {
		return "", err
	}
	return obj.URL, nil
}

// DownloadMedia fetches the binary behind a resolved media URL. Returns
// the bytes and the content type reported by the CDN.
func (c *Client) DownloadMedia(creds Credentials, mediaURL string) ([]byte, string, error) {
	req, err := http.NewRequest("GET", mediaURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &TransportError{Err: err}
	}
	if resp.StatusCode >= 400 {
		return nil, "", parseAPIError(resp.StatusCode, data)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

type templateListResponse struct {
	Data   []template.Template `json:"data"`
	Paging struct {
		Cursors struct {
			Before string `json:"before"`
			After  string `json:"after"`
		} `json:"cursors"`
	} `json:"paging"`
}

// ListTemplates fetches the business account's templates (first page,
// fixed size 100) with display fields derived.
func (c *Client) ListTemplates(creds Credentials) ([]template.Template, error) {
	if creds.WABAID == "" {
		return nil, &APIError{Message: "WABA ID is required to fetch templates"}
	}

	url := fmt.Sprintf("%s/%s/message_templates?limit=100", c.BaseURL, creds.WABAID)
	respBody, err := c.sendRequest(creds, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	var list templateListResponse
	if err := json.Unmarshal(respBody, &list); err != nil {
		return nil, err
	}
	for i := range list.Data {
		list.Data[i].Derive()
	}
	return list.Data, nil
}

// CreateTemplate submits a template definition for provider-side review.
func (c *Client) CreateTemplate(creds Credentials, t template.Template) error {
	if creds.WABAID == "" {
		return &APIError{Message: "WABA ID is required to create templates"}
	}

	url := fmt.Sprintf("%s/%s/message_templates", c.BaseURL, creds.WABAID)
	_, err := c.sendRequest(creds, "POST", url, t.CreatePayload())
	return err
}
