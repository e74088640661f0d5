package relay

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestTaskStartAndResult(t *testing.T) {
	r, h, parent := initialized(t, Config{}, FrameContent, HostWeb)

	info := TaskInfo{Title: "YouTube", Height: "large", Width: "600", URL: "https://tab.example.com/youtube"}
	var (
		gotErr    string
		gotResult any
		calls     int
	)
	if _, err := r.Tasks().Start(info, func(err string, result any) {
		calls++
		gotErr, gotResult = err, result
	}); err != nil {
		t.Fatalf("start: %v", err)
	}

	req := parent.last(t).env
	if req.Func != FuncTaskStart || len(req.Args) != 1 {
		t.Fatalf("request = %+v", req)
	}
	b, err := json.Marshal(req.Args[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"title":"YouTube","height":"large","width":600,"url":"https://tab.example.com/youtube"}`
	if string(b) != want {
		t.Fatalf("task info = %s, want %s", b, want)
	}

	h.deliver(t, parent, teamsOrigin, response(*req.ID, nil, map[string]any{"name": "ada"}))
	if calls != 1 || gotErr != "" {
		t.Fatalf("calls = %d, err = %q", calls, gotErr)
	}
	if m, _ := gotResult.(map[string]any); m["name"] != "ada" {
		t.Fatalf("result = %v", gotResult)
	}
}

func TestTaskComplete(t *testing.T) {
	r, _, parent := initialized(t, Config{}, FrameContent, HostWeb)

	if err := r.Tasks().Complete(map[string]any{"ok": true}, "app-id"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	req := parent.last(t).env
	if req.Func != FuncTaskComplete || len(req.Args) != 2 || req.Args[1] != "app-id" {
		t.Fatalf("request = %+v", req)
	}

	if err := r.Tasks().Complete("done"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	req = parent.last(t).env
	if req.Args[0] != "done" || req.Args[1] != nil {
		t.Fatalf("request = %+v", req)
	}
}

func TestTaskStartRequiresContentContext(t *testing.T) {
	r, _, _ := initialized(t, Config{}, FrameSettings, HostWeb)
	var ce *ContextError
	if _, err := r.Tasks().Start(TaskInfo{}, nil); !errors.As(err, &ce) {
		t.Fatalf("expected ContextError, got %v", err)
	}
}
