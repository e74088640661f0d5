package relay

import (
	"encoding/json"
	"strconv"
)

// Dimension is a task module size: "small", "medium", "large" or a pixel
// count such as "600".
type Dimension string

// MarshalJSON writes pixel counts as numbers and named sizes as strings.
func (d Dimension) MarshalJSON() ([]byte, error) {
	if n, err := strconv.Atoi(string(d)); err == nil {
		return json.Marshal(n)
	}
	return json.Marshal(string(d))
}

// TaskInfo describes a task module to open.
type TaskInfo struct {
	Title           string    `json:"title,omitempty"`
	Height          Dimension `json:"height,omitempty"`
	Width           Dimension `json:"width,omitempty"`
	URL             string    `json:"url,omitempty"`
	Card            string    `json:"card,omitempty"`
	FallbackURL     string    `json:"fallbackUrl,omitempty"`
	CompletionBotID string    `json:"completionBotId,omitempty"`
	AppID           string    `json:"appId,omitempty"`
}

// Tasks groups the task module APIs.
type Tasks struct {
	r *Relay
}

// Tasks returns the task module namespace.
func (r *Relay) Tasks() *Tasks { return &Tasks{r: r} }

// Start opens a task module. done receives the error text (empty on
// success) and the result submitted by the task module.
func (t *Tasks) Start(info TaskInfo, done func(err string, result any)) (*Call, error) {
	r := t.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureInitializedLocked(FrameContent); err != nil {
		return nil, err
	}
	return r.callLocked(Parent, FuncTaskStart, []any{info}, "", func(args []any) {
		if done != nil {
			done(argText(args, 0), argAt(args, 1))
		}
	}), nil
}

// Complete closes the task module with result. The optional app id lets the
// host check the caller is the app that opened it.
func (t *Tasks) Complete(result any, appIDs ...string) error {
	var appID any
	if len(appIDs) > 0 {
		appID = appIDs[0]
	}
	return t.r.notifyParent(FuncTaskComplete, []any{result, appID}, FrameContent)
}
