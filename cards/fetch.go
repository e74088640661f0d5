package cards

import (
	"encoding/json"
	"fmt"
	"strings"

	"taskmodule/relay"
)

// TaskInfo is the value of a "continue" task response.
type TaskInfo struct {
	Title       string          `json:"title,omitempty"`
	Height      relay.Dimension `json:"height,omitempty"`
	Width       relay.Dimension `json:"width,omitempty"`
	URL         string          `json:"url,omitempty"`
	FallbackURL string          `json:"fallbackUrl,omitempty"`
	Card        *Attachment     `json:"card,omitempty"`
}

// Task is the body of a task/fetch or task/submit response.
type Task struct {
	Type  string `json:"type"`
	Value any    `json:"value,omitempty"`
}

// TaskResponse is returned to the host for task/fetch and task/submit.
type TaskResponse struct {
	Task Task `json:"task"`
}

// ContinueResponse opens a task module described by info.
func ContinueResponse(info TaskInfo) TaskResponse {
	return TaskResponse{Task: Task{Type: "continue", Value: info}}
}

// MessageResponse closes the task module and shows text to the user.
func MessageResponse(text string) TaskResponse {
	return TaskResponse{Task: Task{Type: "message", Value: text}}
}

// FetchTemplates returns the task/fetch responses keyed by task module id.
func FetchTemplates(appRoot string) (map[string]TaskResponse, error) {
	appRoot = strings.TrimSuffix(appRoot, "/")
	out := make(map[string]TaskResponse, 5)
	for _, id := range []string{YouTube, PowerApp, CustomForm} {
		page := appRoot + "/" + Paths[id]
		out[id] = ContinueResponse(TaskInfo{
			Title:       titles[id],
			Height:      Sizes[id].Height,
			Width:       Sizes[id].Width,
			URL:         page,
			FallbackURL: page,
		})
	}

	card, err := Render(AdaptiveCardInputs, map[string]string{"source": "task/fetch"})
	if err != nil {
		return nil, err
	}
	for _, id := range []string{AdaptiveCard1, AdaptiveCard2} {
		c := card
		out[id] = ContinueResponse(TaskInfo{
			Title:  AdaptiveCardTitle,
			Height: Sizes[AdaptiveCard].Height,
			Width:  Sizes[AdaptiveCard].Width,
			Card:   &c,
		})
	}
	return out, nil
}

// FetchTemplate looks a task module up by id, ignoring case.
func FetchTemplate(appRoot, id string) (TaskResponse, bool, error) {
	all, err := FetchTemplates(appRoot)
	if err != nil {
		return TaskResponse{}, false, err
	}
	resp, ok := all[strings.ToLower(id)]
	return resp, ok, nil
}

var titles = map[string]string{
	YouTube:    YouTubeTitle,
	PowerApp:   PowerAppTitle,
	CustomForm: CustomFormTitle,
}

// TaskModuleCardData fills the TaskModuleCard placeholders for a bot with
// appID served from appRoot.
func TaskModuleCardData(appID, appRoot string) (map[string]string, error) {
	appRoot = strings.TrimSuffix(appRoot, "/")
	fetch, err := FetchTemplates(appRoot)
	if err != nil {
		return nil, err
	}

	url1 := TaskDeepLink(appID, appRoot, Paths[YouTube], "large", "large", YouTubeTitle)
	url2 := TaskDeepLink(appID, appRoot, Paths[PowerApp], "large", "large", PowerAppTitle)
	url3 := TaskDeepLink(appID, appRoot, Paths[CustomForm], "medium", "medium", CustomFormTitle)

	var summary []string
	for _, e := range []struct{ name, id string }{
		{YouTubeName, YouTube},
		{PowerAppName, PowerApp},
		{CustomFormName, CustomForm},
	} {
		b, err := json.Marshal(fetch[e.id])
		if err != nil {
			return nil, fmt.Errorf("cards: encode fetch template %s: %w", e.id, err)
		}
		summary = append(summary, fmt.Sprintf("**%s:** %s", e.name, b))
	}

	return map[string]string{
		"title":             "Task Module",
		"subTitle":          "Task Module Test Card",
		"instructions":      "Click on the buttons below below to open task modules in various ways.",
		"linkbutton1":       YouTubeName,
		"url1":              url1,
		"markdown1":         markdownLink(YouTubeName, url1),
		"linkbutton2":       PowerAppName,
		"url2":              url2,
		"markdown2":         markdownLink(PowerAppName, url2),
		"linkbutton3":       CustomFormName,
		"url3":              url3,
		"markdown3":         markdownLink(CustomFormName, url3),
		"fetchButtonId1":    YouTube,
		"fetchButtonTitle1": YouTubeName,
		"fetchButtonId2":    PowerApp,
		"fetchButtonTitle2": PowerAppName,
		"fetchButtonId3":    CustomForm,
		"fetchButtonTitle3": CustomFormName,
		"taskFetchJSON":     strings.Join(summary, "\r"),
	}, nil
}

func markdownLink(text, url string) string {
	return "[" + text + "](" + url + ")"
}
