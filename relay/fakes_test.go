package relay

import (
	"sync"
	"testing"
	"time"
)

const (
	teamsOrigin = "https://teams.microsoft.com"
	tabOrigin   = "https://tab.example.com"
	evilOrigin  = "https://evil.example"
)

type posted struct {
	env    Envelope
	origin string
}

type fakeWindow struct {
	name string

	mu         sync.Mutex
	posts      []posted
	closed     bool
	closeCalls int
}

func newFakeWindow(name string) *fakeWindow { return &fakeWindow{name: name} }

func (w *fakeWindow) PostMessage(message any, targetOrigin string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.posts = append(w.posts, posted{env: message.(Envelope), origin: targetOrigin})
}

func (w *fakeWindow) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *fakeWindow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.closeCalls++
}

func (w *fakeWindow) setClosed(v bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = v
}

func (w *fakeWindow) sent() []posted {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]posted(nil), w.posts...)
}

func (w *fakeWindow) last(t *testing.T) posted {
	t.Helper()
	s := w.sent()
	if len(s) == 0 {
		t.Fatalf("%s: no messages posted", w.name)
	}
	return s[len(s)-1]
}

type fakeTimer struct {
	d        time.Duration
	fn       func()
	interval bool

	mu        sync.Mutex
	cancelled bool
}

func (t *fakeTimer) cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
}

func (t *fakeTimer) isCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// fire runs the timer callback unless it was cancelled.
func (t *fakeTimer) fire() bool {
	if t.isCancelled() {
		return false
	}
	t.fn()
	return true
}

type openCall struct {
	url, name, features string
}

type fakeHost struct {
	self     *fakeWindow
	origin   string
	location string
	parent   Window
	opener   Window
	geometry Geometry

	mu              sync.Mutex
	listener        func(MessageEvent)
	listenerRemoved bool
	popup           *fakeWindow
	opens           []openCall
	navigated       []string
	timers          []*fakeTimer
}

// newFramedHost returns a host embedded in a Teams parent frame.
func newFramedHost() (*fakeHost, *fakeWindow) {
	parent := newFakeWindow("parent")
	h := &fakeHost{
		self:     newFakeWindow("self"),
		origin:   tabOrigin,
		location: tabOrigin + "/tab",
		parent:   parent,
		geometry: Geometry{OuterWidth: 1400, OuterHeight: 900},
	}
	return h, parent
}

func (h *fakeHost) Self() Window       { return h.self }
func (h *fakeHost) Origin() string     { return h.origin }
func (h *fakeHost) Location() string   { return h.location }
func (h *fakeHost) Parent() Window     { return h.parent }
func (h *fakeHost) Opener() Window     { return h.opener }
func (h *fakeHost) Geometry() Geometry { return h.geometry }

func (h *fakeHost) Open(url, name, features string) Window {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opens = append(h.opens, openCall{url: url, name: name, features: features})
	if h.popup == nil {
		return nil
	}
	return h.popup
}

func (h *fakeHost) Navigate(url string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.navigated = append(h.navigated, url)
}

func (h *fakeHost) AddMessageListener(fn func(MessageEvent)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listener = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.listener = nil
		h.listenerRemoved = true
	}
}

func (h *fakeHost) SetInterval(d time.Duration, fn func()) func() {
	return h.addTimer(d, fn, true)
}

func (h *fakeHost) SetTimeout(d time.Duration, fn func()) func() {
	return h.addTimer(d, fn, false)
}

func (h *fakeHost) addTimer(d time.Duration, fn func(), interval bool) func() {
	t := &fakeTimer{d: d, fn: fn, interval: interval}
	h.mu.Lock()
	h.timers = append(h.timers, t)
	h.mu.Unlock()
	return t.cancel
}

// deliver hands an event to the registered listener, as the browser would.
func (h *fakeHost) deliver(t *testing.T, source Window, origin string, data any) {
	t.Helper()
	h.mu.Lock()
	fn := h.listener
	h.mu.Unlock()
	if fn == nil {
		t.Fatalf("no message listener registered")
	}
	fn(MessageEvent{Data: data, Origin: origin, Source: source})
}

func (h *fakeHost) activeTimers(interval bool, d time.Duration) []*fakeTimer {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*fakeTimer
	for _, t := range h.timers {
		if t.interval == interval && t.d == d && !t.isCancelled() {
			out = append(out, t)
		}
	}
	return out
}

func (h *fakeHost) onlyTimer(t *testing.T, interval bool, d time.Duration) *fakeTimer {
	t.Helper()
	timers := h.activeTimers(interval, d)
	if len(timers) != 1 {
		t.Fatalf("expected exactly one active timer (interval=%v, %v), got %d", interval, d, len(timers))
	}
	return timers[0]
}

// request and response build JSON-shaped messages as they arrive from a real
// transport.
func request(id int, fn Func, args ...any) map[string]any {
	if args == nil {
		args = []any{}
	}
	return map[string]any{"id": float64(id), "func": string(fn), "args": args}
}

func notification(fn Func, args ...any) map[string]any {
	if args == nil {
		args = []any{}
	}
	return map[string]any{"func": string(fn), "args": args}
}

func response(id int, args ...any) map[string]any {
	if args == nil {
		args = []any{}
	}
	return map[string]any{"id": float64(id), "args": args}
}

// initialized returns a relay whose handshake with the parent completed with
// the given frame context.
func initialized(t *testing.T, cfg Config, frame FrameContext, client HostClientType) (*Relay, *fakeHost, *fakeWindow) {
	t.Helper()
	h, parent := newFramedHost()
	r := New(h, cfg)
	r.Initialize()

	first := parent.last(t)
	if first.env.Func != FuncInitialize {
		t.Fatalf("expected initialize request, got %q", first.env.Func)
	}
	h.deliver(t, parent, teamsOrigin, response(*first.env.ID, string(frame), string(client)))
	if got := r.FrameContext(); got != frame {
		t.Fatalf("frame context = %q, want %q", got, frame)
	}
	return r, h, parent
}

// adoptChild makes child the tracked child window by letting it send a
// harmless message.
func adoptChild(t *testing.T, r *Relay, h *fakeHost, child *fakeWindow) {
	t.Helper()
	h.deliver(t, child, tabOrigin, response(9999))
	if w, origin := r.Tracked(Child); w != Window(child) || origin != tabOrigin {
		t.Fatalf("child not tracked: %v %q", w, origin)
	}
}
