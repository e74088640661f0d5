// Package frame is an in-process browser: windows with origins, nested
// frames, pop-ups, postMessage delivery and timers, each window running its
// events on its own loop. Windows implement relay.Host.
package frame

import (
	"io"
	"log/slog"
	"net/url"
	"sync"

	"taskmodule/relay"
)

// DefaultGeometry is the outer size reported for windows when none is set.
var DefaultGeometry = relay.Geometry{OuterWidth: 1280, OuterHeight: 800}

// Options configure a Browser.
type Options struct {
	Logger   *slog.Logger
	Geometry relay.Geometry
	// BlockPopups makes Window.Open fail, as a pop-up blocker would.
	BlockPopups bool
	// OnOpen is called on the new window's loop after a pop-up opens.
	OnOpen func(w *Window)
}

// Browser owns a set of windows.
type Browser struct {
	logger   *slog.Logger
	geometry relay.Geometry

	mu          sync.Mutex
	blockPopups bool
	onOpen      func(w *Window)
	nextID      int
	windows     []*Window
	refs        map[refKey]*Ref
}

type refKey struct {
	owner, target *Window
}

// NewBrowser creates an empty browser.
func NewBrowser(opts Options) *Browser {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	geometry := opts.Geometry
	if geometry == (relay.Geometry{}) {
		geometry = DefaultGeometry
	}
	return &Browser{
		logger:      logger,
		geometry:    geometry,
		blockPopups: opts.BlockPopups,
		onOpen:      opts.OnOpen,
		refs:        make(map[refKey]*Ref),
	}
}

// SetBlockPopups toggles the pop-up blocker.
func (b *Browser) SetBlockPopups(block bool) {
	b.mu.Lock()
	b.blockPopups = block
	b.mu.Unlock()
}

// SetOnOpen replaces the pop-up hook.
func (b *Browser) SetOnOpen(fn func(w *Window)) {
	b.mu.Lock()
	b.onOpen = fn
	b.mu.Unlock()
}

// OpenWindow creates a top-level window showing location.
func (b *Browser) OpenWindow(location string) *Window {
	return b.newWindow(location, nil, nil)
}

// OpenFrame nests a frame showing location inside parent.
func (b *Browser) OpenFrame(parent *Window, location string) *Window {
	return b.newWindow(location, parent, nil)
}

// Close closes every window.
func (b *Browser) Close() {
	b.mu.Lock()
	windows := append([]*Window(nil), b.windows...)
	b.mu.Unlock()
	for _, w := range windows {
		w.Close()
	}
}

func (b *Browser) newWindow(location string, parent, opener *Window) *Window {
	b.mu.Lock()
	b.nextID++
	w := &Window{
		id:       b.nextID,
		browser:  b,
		origin:   originOf(location),
		location: location,
		parent:   parent,
		opener:   opener,
		loop:     newLoop(),
	}
	b.windows = append(b.windows, w)
	b.mu.Unlock()
	b.logger.Debug("frame.window_opened", "id", w.id, "origin", w.origin)
	return w
}

// ref returns owner's handle on target. Handles are cached so the same pair
// always yields the same value.
func (b *Browser) ref(owner, target *Window) *Ref {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := refKey{owner: owner, target: target}
	r, ok := b.refs[k]
	if !ok {
		r = &Ref{owner: owner, target: target}
		b.refs[k] = r
	}
	return r
}

func (b *Browser) popupsBlocked() (bool, func(*Window)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blockPopups, b.onOpen
}

// originOf returns scheme://host of a URL, or "null" for opaque locations.
func originOf(location string) string {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "null"
	}
	return u.Scheme + "://" + u.Host
}
