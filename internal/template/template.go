package template

import (
	"fmt"
	"regexp"
	"strings"
)

type Category string

const (
	CategoryMarketing      Category = "MARKETING"
	CategoryUtility        Category = "UTILITY"
	CategoryAuthentication Category = "AUTHENTICATION"
)

type Status string

const (
	StatusApproved Status = "APPROVED"
	StatusPending  Status = "PENDING"
	StatusRejected Status = "REJECTED"
	StatusPaused   Status = "PAUSED"
	StatusDisabled Status = "DISABLED"
)

// Button is a template call-to-action. Type is one of QUICK_REPLY,
// PHONE_NUMBER or URL.
type Button struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	PhoneNumber string `json:"phone_number,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Example carries the sample values Meta requires for templates with
// variables or media headers.
type Example struct {
	HeaderHandle []string   `json:"header_handle,omitempty"`
	BodyText     [][]string `json:"body_text,omitempty"`
}

// Component is one structural block of a template: HEADER, BODY, FOOTER
// or BUTTONS.
type Component struct {
	Type    string   `json:"type"`
	Format  string   `json:"format,omitempty"` // header only: TEXT, IMAGE, VIDEO, DOCUMENT
	Text    string   `json:"text,omitempty"`
	Buttons []Button `json:"buttons,omitempty"`
	Example *Example `json:"example,omitempty"`
}

// Template mirrors a Meta message template plus two derived display
// fields (Body, VariableCount) computed from the BODY component.
type Template struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Language      string      `json:"language"`
	Status        Status      `json:"status"`
	Category      Category    `json:"category"`
	Components    []Component `json:"components"`
	Body          string      `json:"body,omitempty"`
	VariableCount int         `json:"variable_count,omitempty"`
}

var placeholderRe = regexp.MustCompile(`{{(\d+)}}`)

// CountVariables returns the number of distinct {{n}} placeholders in body.
// Repeats of the same number count once.
func CountVariables(body string) int {
	seen := map[string]bool{}
	for _, m := range placeholderRe.FindAllString(body, -1) {
		seen[m] = true
	}
	return len(seen)
}

// Slugify normalizes a display name into a provider-safe template name.
func Slugify(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(name))), "_")
}

// Derive fills Body and VariableCount from the BODY component.
func (t *Template) Derive() {
	t.Body = ""
	t.VariableCount = 0
	for _, c := range t.Components {
		if c.Type == "BODY" {
			t.Body = c.Text
			t.VariableCount = CountVariables(c.Text)
			return
		}
	}
}

// CreatePayload renders the template as the body of a POST to the
// message_templates endpoint, stripped of local helper fields.
func (t Template) CreatePayload() map[string]interface{} {
	lang := t.Language
	if lang == "" {
		lang = "en_US"
	}
	return map[string]interface{}{
		"name":                  t.Name,
		"category":              t.Category,
		"allow_category_change": true,
		"language":              lang,
		"components":            t.Components,
	}
}

// Form is the flat authoring shape the builder UI submits.
type Form struct {
	Name       string   `json:"name"`
	Category   Category `json:"category"`
	Language   string   `json:"language"`
	HeaderType string   `json:"header_type"` // NONE, TEXT, IMAGE, VIDEO
	HeaderText string   `json:"header_text"`
	BodyText   string   `json:"body_text"`
	FooterText string   `json:"footer_text"`
	Buttons    []Button `json:"buttons"`
}

// Build converts the flat form into a structured template. Optional
// components that are empty produce no block at all.
func (f Form) Build() (Template, error) {
	if strings.TrimSpace(f.Name) == "" || strings.TrimSpace(f.BodyText) == "" {
		return Template{}, fmt.Errorf("template name and body text are required")
	}
	if len(f.Buttons) > 3 {
		return Template{}, fmt.Errorf("a template supports at most 3 buttons")
	}

	var components []Component

	if f.HeaderType != "" && f.HeaderType != "NONE" {
		header := Component{Type: "HEADER", Format: f.HeaderType}
		if f.HeaderType == "TEXT" {
			header.Text = f.HeaderText
		}
		components = append(components, header)
	}

	components = append(components, Component{Type: "BODY", Text: f.BodyText})

	if f.FooterText != "" {
		components = append(components, Component{Type: "FOOTER", Text: f.FooterText})
	}
	if len(f.Buttons) > 0 {
		components = append(components, Component{Type: "BUTTONS", Buttons: f.Buttons})
	}

	category := f.Category
	if category == "" {
		category = CategoryMarketing
	}
	language := f.Language
	if language == "" {
		language = "en_US"
	}

	t := Template{
		Name:       Slugify(f.Name),
		Language:   language,
		Status:     StatusPending,
		Category:   category,
		Components: components,
	}
	t.Derive()
	return t, nil
}
