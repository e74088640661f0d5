// Package cards holds the adaptive card templates, their rendering, and the
// task module fetch templates and deep links built from them.
package cards

import (
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
)

// AdaptiveCardContentType is the attachment content type of adaptive cards.
const AdaptiveCardContentType = "application/vnd.microsoft.card.adaptive"

//go:embed templates/*.json
var templateFS embed.FS

// Built-in templates.
var (
	TaskModuleCard       = mustLoad("taskmodule.json")
	AdaptiveCardInputs   = mustLoad("adaptivecard_inputs.json")
	ActionSubmitResponse = mustLoad("action_submit_response.json")
)

// Attachment is a rendered card ready to send.
type Attachment struct {
	ContentType string `json:"contentType"`
	Content     any    `json:"content"`
}

// Template is an adaptive card with {{key}} placeholders in its strings.
type Template struct {
	name string
	raw  []byte
}

// ParseTemplate checks that raw is a JSON object and wraps it as a template.
func ParseTemplate(name string, raw []byte) (Template, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Template{}, fmt.Errorf("cards: parse %s: %w", name, err)
	}
	return Template{name: name, raw: append([]byte(nil), raw...)}, nil
}

func mustLoad(file string) Template {
	raw, err := templateFS.ReadFile("templates/" + file)
	if err != nil {
		panic(err)
	}
	t, err := ParseTemplate(file, raw)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the template's name.
func (t Template) Name() string { return t.name }

var placeholder = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Render substitutes data into a fresh copy of t. Placeholders without a
// value are left as they are.
func Render(t Template, data map[string]string) (Attachment, error) {
	var content any
	if err := json.Unmarshal(t.raw, &content); err != nil {
		return Attachment{}, fmt.Errorf("cards: decode %s: %w", t.name, err)
	}
	return Attachment{
		ContentType: AdaptiveCardContentType,
		Content:     substitute(content, data),
	}, nil
}

// RenderJSON renders t and returns the card content as JSON.
func RenderJSON(t Template, data map[string]string) (string, error) {
	a, err := Render(t, data)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(a.Content)
	if err != nil {
		return "", fmt.Errorf("cards: encode %s: %w", t.name, err)
	}
	return string(b), nil
}

func substitute(v any, data map[string]string) any {
	switch x := v.(type) {
	case string:
		return placeholder.ReplaceAllStringFunc(x, func(m string) string {
			if val, ok := data[m[2:len(m)-2]]; ok {
				return val
			}
			return m
		})
	case map[string]any:
		for k, item := range x {
			x[k] = substitute(item, data)
		}
		return x
	case []any:
		for i, item := range x {
			x[i] = substitute(item, data)
		}
		return x
	default:
		return v
	}
}
