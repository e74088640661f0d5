package frame

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"taskmodule/relay"
)

// Window is a browsing context. It implements relay.Host.
type Window struct {
	id      int
	browser *Browser
	origin  string
	parent  *Window
	opener  *Window
	loop    *loop

	mu         sync.Mutex
	location   string
	closed     bool
	nextListen int
	listeners  map[int]func(relay.MessageEvent)
}

var _ relay.Host = (*Window)(nil)

// Self returns the window's handle on itself.
func (w *Window) Self() relay.Window { return w.browser.ref(w, w) }

// Origin returns scheme://host of the document the window was opened with.
func (w *Window) Origin() string { return w.origin }

// Location returns the current URL.
func (w *Window) Location() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.location
}

// Parent returns the embedding window, or nil for a top-level window.
func (w *Window) Parent() relay.Window {
	if w.parent == nil {
		return nil
	}
	return w.browser.ref(w, w.parent)
}

// Opener returns the window that opened this pop-up, or nil.
func (w *Window) Opener() relay.Window {
	if w.opener == nil {
		return nil
	}
	return w.browser.ref(w, w.opener)
}

// Geometry returns the browser's outer window geometry.
func (w *Window) Geometry() relay.Geometry { return w.browser.geometry }

// Open opens a pop-up. It returns nil when pop-ups are blocked.
func (w *Window) Open(url, name, features string) relay.Window {
	blocked, onOpen := w.browser.popupsBlocked()
	if blocked || w.Closed() {
		w.browser.logger.Debug("frame.popup_blocked", "url", url)
		return nil
	}
	popup := w.browser.newWindow(url, nil, w)
	w.browser.logger.Debug("frame.popup_opened", "url", url, "name", name, "features", features)
	if onOpen != nil {
		popup.loop.post(func() { onOpen(popup) })
	}
	return w.browser.ref(w, popup)
}

// Navigate records a top-level navigation.
func (w *Window) Navigate(url string) {
	w.mu.Lock()
	w.location = url
	w.mu.Unlock()
}

// AddMessageListener registers fn for message events.
func (w *Window) AddMessageListener(fn func(relay.MessageEvent)) func() {
	w.mu.Lock()
	if w.listeners == nil {
		w.listeners = make(map[int]func(relay.MessageEvent))
	}
	id := w.nextListen
	w.nextListen++
	w.listeners[id] = fn
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.listeners, id)
		w.mu.Unlock()
	}
}

// SetTimeout runs fn on the window's loop after d.
func (w *Window) SetTimeout(d time.Duration, fn func()) func() {
	var cancelled atomic.Bool
	t := time.AfterFunc(d, func() {
		w.loop.post(func() {
			if !cancelled.Load() {
				fn()
			}
		})
	})
	return func() {
		cancelled.Store(true)
		t.Stop()
	}
}

// SetInterval runs fn on the window's loop every d until cancelled.
func (w *Window) SetInterval(d time.Duration, fn func()) func() {
	var (
		cancelled atomic.Bool
		once      sync.Once
	)
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.loop.post(func() {
					if !cancelled.Load() {
						fn()
					}
				})
			case <-stop:
				return
			case <-w.loop.done:
				return
			}
		}
	}()
	return func() {
		once.Do(func() {
			cancelled.Store(true)
			close(stop)
		})
	}
}

// Do runs fn on the window's loop and waits for it. It must not be called
// from that loop.
func (w *Window) Do(fn func()) bool {
	done := make(chan struct{})
	if !w.loop.post(func() {
		defer close(done)
		fn()
	}) {
		return false
	}
	select {
	case <-done:
		return true
	case <-w.loop.done:
		return false
	}
}

// Post runs fn on the window's loop without waiting.
func (w *Window) Post(fn func()) bool { return w.loop.post(fn) }

// Closed reports whether the window was closed.
func (w *Window) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Close closes the window and stops its loop.
func (w *Window) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.listeners = nil
	w.mu.Unlock()
	w.loop.stop()
	w.browser.logger.Debug("frame.window_closed", "id", w.id)
}

// deliver queues a message from sender. The payload is cloned through JSON,
// and dropped unless targetOrigin is "*" or the window's origin.
func (w *Window) deliver(sender *Window, message any, targetOrigin string) {
	if w.Closed() {
		return
	}
	if targetOrigin != "*" && targetOrigin != w.origin {
		w.browser.logger.Debug("frame.origin_mismatch", "target_origin", targetOrigin, "origin", w.origin)
		return
	}
	data, err := clone(message)
	if err != nil {
		w.browser.logger.Debug("frame.clone_failed", "error", err)
		return
	}
	evt := relay.MessageEvent{
		Data:   data,
		Origin: sender.origin,
		Source: w.browser.ref(w, sender),
	}
	w.loop.post(func() {
		w.mu.Lock()
		listeners := make([]func(relay.MessageEvent), 0, len(w.listeners))
		for _, fn := range w.listeners {
			listeners = append(listeners, fn)
		}
		w.mu.Unlock()
		for _, fn := range listeners {
			fn(evt)
		}
	})
}

func clone(message any) (any, error) {
	b, err := json.Marshal(message)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ref is one window's handle on another. It implements relay.Window.
type Ref struct {
	owner, target *Window
}

var _ relay.Window = (*Ref)(nil)

// PostMessage sends message to the target window.
func (r *Ref) PostMessage(message any, targetOrigin string) {
	r.target.deliver(r.owner, message, targetOrigin)
}

// Closed reports whether the target window was closed.
func (r *Ref) Closed() bool { return r.target.Closed() }

// Close closes the target window.
func (r *Ref) Close() { r.target.Close() }

// Window returns the target window.
func (r *Ref) Window() *Window { return r.target }
