package relay

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSaveWithoutHandlerSucceeds(t *testing.T) {
	_, h, parent := initialized(t, Config{}, FrameSettings, HostWeb)

	h.deliver(t, parent, teamsOrigin, notification(FuncSettingsSave, map[string]any{}))
	if got := parent.last(t).env.Func; got != FuncSettingsSaveSuccess {
		t.Fatalf("sent %q, want %q", got, FuncSettingsSaveSuccess)
	}
}

func TestSaveEventNotifiesOnce(t *testing.T) {
	r, h, parent := initialized(t, Config{}, FrameSettings, HostWeb)

	var evt *SaveEvent
	if err := r.Settings().RegisterOnSaveHandler(func(e *SaveEvent) { evt = e }); err != nil {
		t.Fatalf("register: %v", err)
	}
	h.deliver(t, parent, teamsOrigin, notification(FuncSettingsSave, map[string]any{"webhookUrl": "https://hook"}))
	if evt == nil {
		t.Fatalf("save handler not called")
	}
	if evt.Result["webhookUrl"] != "https://hook" {
		t.Fatalf("result = %v", evt.Result)
	}

	if err := evt.NotifyFailure("nope"); err != nil {
		t.Fatalf("notifyFailure: %v", err)
	}
	if err := evt.NotifySuccess(); !errors.Is(err, ErrAlreadyNotified) {
		t.Fatalf("expected ErrAlreadyNotified, got %v", err)
	}
	sent := parent.last(t).env
	if sent.Func != FuncSettingsSaveFailure || sent.Args[0] != "nope" {
		t.Fatalf("sent %+v", sent)
	}
}

func TestRemoveWithoutHandlerSucceeds(t *testing.T) {
	_, h, parent := initialized(t, Config{}, FrameRemove, HostWeb)

	h.deliver(t, parent, teamsOrigin, notification(FuncSettingsRemove))
	if got := parent.last(t).env.Func; got != FuncSettingsRemoveSuccess {
		t.Fatalf("sent %q, want %q", got, FuncSettingsRemoveSuccess)
	}
}

func TestRemoveHandlerRequiresRemoveContext(t *testing.T) {
	r, _, _ := initialized(t, Config{}, FrameSettings, HostWeb)
	var ce *ContextError
	if err := r.Settings().RegisterOnRemoveHandler(func(*RemoveEvent) {}); !errors.As(err, &ce) {
		t.Fatalf("expected ContextError, got %v", err)
	}
}

func TestGetAndSetSettings(t *testing.T) {
	r, h, parent := initialized(t, Config{}, FrameSettings, HostWeb)

	want := InstanceSettings{
		SuggestedDisplayName: "Task Module",
		ContentURL:           "https://tab.example.com/taskmodule",
		EntityID:             "taskmodule",
	}
	if err := r.Settings().SetSettings(want); err != nil {
		t.Fatalf("setSettings: %v", err)
	}
	req := parent.last(t).env
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var wire struct {
		Func string             `json:"func"`
		Args []InstanceSettings `json:"args"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if wire.Func != string(FuncSettingsSetSettings) || wire.Args[0] != want {
		t.Fatalf("wire = %+v", wire)
	}

	var got InstanceSettings
	if _, err := r.Settings().GetSettings(func(s InstanceSettings) { got = s }); err != nil {
		t.Fatalf("getSettings: %v", err)
	}
	req = parent.last(t).env
	h.deliver(t, parent, teamsOrigin, response(*req.ID, map[string]any{
		"suggestedDisplayName": "Task Module",
		"contentUrl":           "https://tab.example.com/taskmodule",
		"entityId":             "taskmodule",
	}))
	if got != want {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}
}
