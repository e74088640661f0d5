package frame

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"taskmodule/relay"
)

const (
	teamsURL = "https://teams.microsoft.com/_#/tab"
	tabURL   = "https://tab.example.com/tab"
)

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type inbox struct {
	mu     sync.Mutex
	events []relay.MessageEvent
}

func (i *inbox) add(evt relay.MessageEvent) {
	i.mu.Lock()
	i.events = append(i.events, evt)
	i.mu.Unlock()
}

func (i *inbox) all() []relay.MessageEvent {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]relay.MessageEvent(nil), i.events...)
}

func TestOriginOf(t *testing.T) {
	cases := map[string]string{
		"https://teams.microsoft.com/_#/tab": "https://teams.microsoft.com",
		"http://localhost:3333/tab?x=1":      "http://localhost:3333",
		"about:blank":                        "null",
		"":                                   "null",
	}
	for in, want := range cases {
		if got := originOf(in); got != want {
			t.Fatalf("originOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPostMessageBetweenFrames(t *testing.T) {
	b := NewBrowser(Options{})
	defer b.Close()
	host := b.OpenWindow(teamsURL)
	tab := b.OpenFrame(host, tabURL)

	var got inbox
	tab.AddMessageListener(got.add)

	msg := map[string]any{"func": "themeChange", "args": []any{"dark"}}
	b.ref(host, tab).PostMessage(msg, "https://tab.example.com")
	msg["func"] = "mutated"

	eventually(t, "delivery", func() bool { return len(got.all()) == 1 })
	evt := got.all()[0]
	if evt.Origin != "https://teams.microsoft.com" {
		t.Fatalf("origin = %q", evt.Origin)
	}
	if evt.Source != tab.Parent() {
		t.Fatalf("source is not the frame's parent handle")
	}
	data, _ := evt.Data.(map[string]any)
	if data["func"] != "themeChange" {
		t.Fatalf("payload was not cloned: %v", evt.Data)
	}
}

func TestPostMessageTargetOriginMismatch(t *testing.T) {
	b := NewBrowser(Options{})
	defer b.Close()
	host := b.OpenWindow(teamsURL)
	tab := b.OpenFrame(host, tabURL)

	var got inbox
	tab.AddMessageListener(got.add)

	toTab := b.ref(host, tab)
	toTab.PostMessage(map[string]any{"n": 1}, "https://other.example")
	toTab.PostMessage(map[string]any{"n": 2}, "*")

	eventually(t, "wildcard delivery", func() bool { return len(got.all()) == 1 })
	time.Sleep(20 * time.Millisecond)
	events := got.all()
	if len(events) != 1 {
		t.Fatalf("delivered %d events", len(events))
	}
	if data, _ := events[0].Data.(map[string]any); data["n"] != float64(2) {
		t.Fatalf("wrong event delivered: %v", events[0].Data)
	}
}

func TestTimers(t *testing.T) {
	b := NewBrowser(Options{})
	defer b.Close()
	w := b.OpenWindow(tabURL)

	var fired, cancelled, ticks atomic.Int32
	w.SetTimeout(5*time.Millisecond, func() { fired.Add(1) })
	stop := w.SetTimeout(5*time.Millisecond, func() { cancelled.Add(1) })
	stop()
	stopTicks := w.SetInterval(2*time.Millisecond, func() { ticks.Add(1) })

	eventually(t, "timeout", func() bool { return fired.Load() == 1 })
	eventually(t, "interval ticks", func() bool { return ticks.Load() >= 3 })
	stopTicks()
	w.Do(func() {})
	after := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	if ticks.Load() != after {
		t.Fatalf("interval kept ticking after cancel")
	}
	if cancelled.Load() != 0 {
		t.Fatalf("cancelled timeout fired")
	}
}

func TestPopups(t *testing.T) {
	opened := make(chan *Window, 1)
	b := NewBrowser(Options{OnOpen: func(w *Window) { opened <- w }})
	defer b.Close()
	tab := b.OpenWindow(tabURL)

	ref := tab.Open("https://login.example.com/authorize", "_blank", "width=600")
	if ref == nil {
		t.Fatalf("pop-up not opened")
	}
	var popup *Window
	select {
	case popup = <-opened:
	case <-time.After(time.Second):
		t.Fatalf("OnOpen not called")
	}
	if popup.Origin() != "https://login.example.com" {
		t.Fatalf("popup origin = %q", popup.Origin())
	}
	if popup.Opener() != tab.browser.ref(popup, tab) || popup.Parent() != nil {
		t.Fatalf("popup relationships wrong")
	}

	ref.Close()
	if !popup.Closed() || !ref.Closed() {
		t.Fatalf("popup not closed")
	}

	b.SetBlockPopups(true)
	if tab.Open("https://login.example.com", "_blank", "") != nil {
		t.Fatalf("blocked pop-up opened")
	}
}

// TestRelayHandshake runs a relay inside a frame against a scripted host.
func TestRelayHandshake(t *testing.T) {
	b := NewBrowser(Options{})
	defer b.Close()
	host := b.OpenWindow(teamsURL)
	tab := b.OpenFrame(host, tabURL)

	host.AddMessageListener(func(evt relay.MessageEvent) {
		m, _ := evt.Data.(map[string]any)
		switch m["func"] {
		case "initialize":
			evt.Source.PostMessage(map[string]any{"id": m["id"], "args": []any{"content", "web"}}, evt.Origin)
		case "getContext":
			evt.Source.PostMessage(map[string]any{"id": m["id"], "args": []any{map[string]any{"theme": "dark"}}}, evt.Origin)
		}
	})

	r := relay.New(tab, relay.Config{})
	tab.Do(r.Initialize)
	eventually(t, "handshake", func() bool { return r.FrameContext() == relay.FrameContent })

	themes := make(chan string, 1)
	tab.Do(func() {
		if _, err := r.GetContext(func(c relay.Context) { themes <- c.Theme }); err != nil {
			t.Errorf("getContext: %v", err)
		}
	})
	select {
	case theme := <-themes:
		if theme != "dark" {
			t.Fatalf("theme = %q", theme)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("getContext never answered")
	}
}
