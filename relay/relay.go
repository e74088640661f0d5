// Package relay implements the cross-window messaging protocol between a tab
// page, its host frame and an optional authentication pop-up.
//
// A Relay tracks at most one parent and one child window, queues outbound
// requests until the peer's origin is known, correlates responses by id and
// routes inbound function calls to a handler table. Requests from the child
// that have no local handler are proxied to the parent.
package relay

import (
	"log/slog"
	"slices"
	"sync"
)

// Handler serves an inbound request. A non-nil result answers a request from
// the child; a result that is not a []any is wrapped in one.
type Handler func(args []any) any

// Relay is the per-window messaging state. Create it with New and start it
// with Initialize.
type Relay struct {
	host    Host
	cfg     Config
	logger  *slog.Logger
	origins OriginValidator

	mu             sync.Mutex
	initialized    bool
	removeListener func()
	peers          [2]peerSlot
	nextID         int
	pending        map[int]*Call
	handlers       map[Func]Handler
	frameContext   FrameContext
	hostClientType HostClientType

	themeHandler      func(theme string)
	fullScreenHandler func(isFullScreen bool)
	backButtonHandler func() bool
	saveHandler       func(*SaveEvent)
	removeHandler     func(*RemoveEvent)

	auth authFlow
}

// New prepares a relay for the window described by host.
func New(host Host, cfg Config) *Relay {
	cfg = cfg.withDefaults()
	r := &Relay{
		host:    host,
		cfg:     cfg,
		logger:  cfg.Logger,
		origins: NewOriginValidator(host.Origin(), cfg.AllowedOrigins),
		pending: make(map[int]*Call),
	}
	r.handlers = r.builtinHandlers()
	return r
}

func (r *Relay) builtinHandlers() map[Func]Handler {
	return map[Func]Handler{
		FuncThemeChange:         r.handleThemeChange,
		FuncFullScreenChange:    r.handleFullScreenChange,
		FuncBackButtonPress:     r.handleBackButtonPress,
		FuncSettingsSave:        r.handleSave,
		FuncSettingsRemove:      r.handleRemove,
		FuncAuthenticateSuccess: r.handleAuthSuccess,
		FuncAuthenticateFailure: r.handleAuthFailure,
	}
}

// Initialize starts listening and announces this window to its parent. The
// parent is the embedding frame, or the opener for a top-level window.
// Calling it again is a no-op.
func (r *Relay) Initialize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return
	}
	r.initialized = true
	r.removeListener = r.host.AddMessageListener(r.HandleMessage)

	self := r.host.Self()
	parent := r.host.Parent()
	if parent == nil || parent == self {
		parent = r.host.Opener()
	}
	r.peers[Parent].window = parent

	// The parent's origin is unknown at this point and the handshake carries
	// nothing sensitive.
	r.callLocked(Parent, FuncInitialize, []any{Version}, "*", func(args []any) {
		r.mu.Lock()
		r.frameContext = FrameContext(argString(args, 0))
		r.hostClientType = HostClientType(argString(args, 1))
		r.mu.Unlock()
		r.logger.Debug("relay.initialized", "frame_context", argString(args, 0), "host_client_type", argString(args, 1))
	})
}

// Uninitialize tears the relay down. Pending calls resolve with
// ErrUninitialized and the relay may be initialized again.
func (r *Relay) Uninitialize() {
	r.mu.Lock()
	if !r.initialized {
		r.mu.Unlock()
		return
	}
	if r.removeListener != nil {
		r.removeListener()
		r.removeListener = nil
	}
	r.stopMonitorLocked()
	pending := make([]*Call, 0, len(r.pending))
	for _, c := range r.pending {
		pending = append(pending, c)
	}

	r.initialized = false
	r.peers = [2]peerSlot{}
	r.nextID = 0
	r.pending = make(map[int]*Call)
	r.handlers = r.builtinHandlers()
	r.frameContext = ""
	r.hostClientType = ""
	r.themeHandler = nil
	r.fullScreenHandler = nil
	r.backButtonHandler = nil
	r.saveHandler = nil
	r.removeHandler = nil
	r.auth = authFlow{}
	r.mu.Unlock()

	for _, c := range pending {
		c.settle(nil, ErrUninitialized)
	}
}

// EnsureInitialized returns ErrNotInitialized before Initialize, and a
// *ContextError when the frame context is known and not among expected.
func (r *Relay) EnsureInitialized(expected ...FrameContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureInitializedLocked(expected...)
}

func (r *Relay) ensureInitializedLocked(expected ...FrameContext) error {
	if !r.initialized {
		return ErrNotInitialized
	}
	if r.frameContext != "" && len(expected) > 0 && !slices.Contains(expected, r.frameContext) {
		return &ContextError{Context: r.frameContext}
	}
	return nil
}

// Handle registers h for inbound requests named name, replacing any earlier
// handler. A nil h removes it.
func (r *Relay) Handle(name Func, h Handler) error {
	if !name.Known() {
		return &unknownFuncError{name: name}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if h == nil {
		delete(r.handlers, name)
		return nil
	}
	r.handlers[name] = h
	return nil
}

type unknownFuncError struct{ name Func }

func (e *unknownFuncError) Error() string { return ErrUnknownFunc.Error() + ": " + string(e.name) }
func (e *unknownFuncError) Unwrap() error { return ErrUnknownFunc }

// HandleMessage is the message listener. Untrusted or malformed messages are
// dropped without any side effect.
func (r *Relay) HandleMessage(evt MessageEvent) {
	env, ok := decodeEnvelope(evt.Data)
	if !ok {
		return
	}

	r.mu.Lock()
	if !r.initialized || evt.Source == nil || evt.Source == r.host.Self() || !r.origins.Acceptable(evt.Origin) {
		r.mu.Unlock()
		r.logger.Debug("relay.message_dropped", "origin", evt.Origin)
		return
	}

	r.updateRelationshipsLocked(evt.Source, evt.Origin)

	var next func()
	switch evt.Source {
	case r.peers[Parent].window:
		next = r.dispatchParentLocked(env)
	case r.peers[Child].window:
		next = r.dispatchChildLocked(env)
	default:
		r.logger.Debug("relay.third_window_ignored", "origin", evt.Origin)
	}
	r.mu.Unlock()

	if next != nil {
		next()
	}
}

// dispatchParentLocked resolves responses and runs requests as
// notifications. A request keeps its handler's result to itself even when the
// parent gave it an id.
func (r *Relay) dispatchParentLocked(env Envelope) func() {
	if env.IsResponse() {
		c, ok := r.takePendingLocked(*env.ID, Parent)
		if !ok {
			return nil
		}
		return func() { c.resolve(env.Args) }
	}
	h := r.handlers[env.Func]
	if h == nil {
		return nil
	}
	return func() { h(env.Args) }
}

func (r *Relay) dispatchChildLocked(env Envelope) func() {
	if env.ID == nil {
		return nil
	}
	id := *env.ID
	if env.IsResponse() {
		c, ok := r.takePendingLocked(id, Child)
		if !ok {
			return nil
		}
		return func() { c.resolve(env.Args) }
	}

	if h := r.handlers[env.Func]; h != nil {
		return func() {
			args := responseArgs(h(env.Args))
			if len(args) == 0 {
				return
			}
			r.mu.Lock()
			r.sendResponseLocked(Child, id, args)
			r.mu.Unlock()
		}
	}

	r.logger.Debug("relay.proxy", "func", string(env.Func), "child_id", id)
	r.callLocked(Parent, env.Func, env.Args, "", func(args []any) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.peers[Child].window != nil {
			r.sendResponseLocked(Child, id, args)
		}
	})
	return nil
}

// FrameContext returns the context assigned by the host, if known yet.
func (r *Relay) FrameContext() FrameContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frameContext
}

// HostClientType returns the host client type, if known yet.
func (r *Relay) HostClientType() HostClientType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hostClientType
}

// PendingCalls returns the number of requests awaiting a response.
func (r *Relay) PendingCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// QueueLen returns the number of envelopes waiting for peer's origin.
func (r *Relay) QueueLen(peer Peer) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers[peer].queue)
}

// Tracked reports whether peer currently has a window and known origin.
func (r *Relay) Tracked(peer Peer) (Window, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peers[peer].window, r.peers[peer].origin
}
