package relay

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// Failure reasons reported by the pop-up flow.
const (
	ReasonCancelledByUser    = "CancelledByUser"
	ReasonFailedToOpenWindow = "FailedToOpenWindow"
)

const (
	defaultAuthWidth  = 600
	defaultAuthHeight = 400
)

// AuthState is the state of the authentication pop-up flow.
type AuthState int

const (
	AuthIdle AuthState = iota
	AuthWindowOpening
	AuthMonitoring
	AuthSucceeded
	AuthFailed
	AuthCancelled
)

func (s AuthState) String() string {
	switch s {
	case AuthIdle:
		return "idle"
	case AuthWindowOpening:
		return "window_opening"
	case AuthMonitoring:
		return "monitoring"
	case AuthSucceeded:
		return "succeeded"
	case AuthFailed:
		return "failed"
	case AuthCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// AuthenticateParameters configure an authentication flow.
type AuthenticateParameters struct {
	URL             string
	Width           int
	Height          int
	SuccessCallback func(result string)
	FailureCallback func(reason string)
}

// AuthTokenRequest asks the host for a token for resources.
type AuthTokenRequest struct {
	Resources       []string
	SuccessCallback func(token string)
	FailureCallback func(reason string)
}

// UserRequest asks the host for the signed-in user.
type UserRequest struct {
	SuccessCallback func(user map[string]any)
	FailureCallback func(reason string)
}

type authFlow struct {
	state       AuthState
	params      *AuthenticateParameters
	defaults    *AuthenticateParameters
	stopMonitor func()
}

// Authentication groups the authentication APIs.
type Authentication struct {
	r *Relay
}

// Authentication returns the authentication namespace.
func (r *Relay) Authentication() *Authentication { return &Authentication{r: r} }

// RegisterAuthenticationHandlers stores the parameters used when
// Authenticate is called with nil.
func (a *Authentication) RegisterAuthenticationHandlers(params *AuthenticateParameters) {
	a.r.mu.Lock()
	a.r.auth.defaults = params
	a.r.mu.Unlock()
}

// State returns the current state of the pop-up flow.
func (a *Authentication) State() AuthState {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	return a.r.auth.state
}

// Authenticate starts an authentication flow. Desktop clients open the
// window themselves; elsewhere the relay opens and monitors a pop-up.
func (a *Authentication) Authenticate(params *AuthenticateParameters) error {
	r := a.r
	r.mu.Lock()
	p := params
	if p == nil {
		p = r.auth.defaults
	}
	if err := r.ensureInitializedLocked(FrameContent, FrameSettings, FrameRemove); err != nil {
		r.mu.Unlock()
		return err
	}
	if p == nil {
		r.mu.Unlock()
		return ErrNoAuthParameters
	}
	target := r.absoluteURLLocked(p.URL)

	if r.hostClientType == HostDesktop {
		r.callLocked(Parent, FuncAuthenticate, []any{target, p.Width, p.Height}, "", func(args []any) {
			if argBool(args, 0) {
				if p.SuccessCallback != nil {
					p.SuccessCallback(argText(args, 1))
				}
				return
			}
			if p.FailureCallback != nil {
				p.FailureCallback(argText(args, 1))
			}
		})
		r.mu.Unlock()
		return nil
	}

	next := r.openAuthWindowLocked(p, target)
	r.mu.Unlock()
	if next != nil {
		next()
	}
	return nil
}

// GetAuthToken asks the host for a token for the requested resources.
func (a *Authentication) GetAuthToken(req AuthTokenRequest) (*Call, error) {
	r := a.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureInitializedLocked(); err != nil {
		return nil, err
	}
	return r.callLocked(Parent, FuncGetAuthToken, []any{req.Resources}, "", func(args []any) {
		if argBool(args, 0) {
			if req.SuccessCallback != nil {
				req.SuccessCallback(argText(args, 1))
			}
			return
		}
		if req.FailureCallback != nil {
			req.FailureCallback(argText(args, 1))
		}
	}), nil
}

// GetUser asks the host for the signed-in user.
func (a *Authentication) GetUser(req UserRequest) (*Call, error) {
	r := a.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureInitializedLocked(); err != nil {
		return nil, err
	}
	return r.callLocked(Parent, FuncGetUser, nil, "", func(args []any) {
		if argBool(args, 0) {
			if req.SuccessCallback != nil {
				user, _ := argAt(args, 1).(map[string]any)
				req.SuccessCallback(user)
			}
			return
		}
		if req.FailureCallback != nil {
			req.FailureCallback(argText(args, 1))
		}
	}), nil
}

// NotifySuccess is called from the authentication window once sign-in
// completed. The window closes itself after the message has been sent.
func (a *Authentication) NotifySuccess(result, callbackURL string) error {
	return a.r.notifyAuthOutcome(FuncAuthenticateSuccess, "result", result, callbackURL)
}

// NotifyFailure is called from the authentication window when sign-in failed.
func (a *Authentication) NotifyFailure(reason, callbackURL string) error {
	return a.r.notifyAuthOutcome(FuncAuthenticateFailure, "reason", reason, callbackURL)
}

func (r *Relay) notifyAuthOutcome(fn Func, key, value, callbackURL string) error {
	r.redirectIfWin32Outlook(callbackURL, key, value)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureInitializedLocked(FrameAuthentication); err != nil {
		return err
	}
	r.sendRequestLocked(Parent, fn, []any{value}, "")
	r.waitForQueueLocked(Parent, func() {
		r.host.SetTimeout(r.cfg.CloseGrace, func() {
			r.host.Self().Close()
		})
	})
	return nil
}

// waitForQueueLocked polls until the peer's queue has drained, then calls fn
// once.
func (r *Relay) waitForQueueLocked(peer Peer, fn func()) {
	var (
		mu    sync.Mutex
		stop  func()
		fired bool
	)
	tick := func() {
		r.mu.Lock()
		empty := len(r.peers[peer].queue) == 0
		r.mu.Unlock()
		if !empty {
			return
		}
		mu.Lock()
		if fired {
			mu.Unlock()
			return
		}
		fired = true
		s := stop
		mu.Unlock()
		if s != nil {
			s()
		}
		fn()
	}

	cancel := r.host.SetInterval(r.cfg.QueueDrainInterval, tick)
	mu.Lock()
	stop = cancel
	done := fired
	mu.Unlock()
	if done {
		cancel()
	}
}

func (r *Relay) openAuthWindowLocked(p *AuthenticateParameters, target string) func() {
	r.auth.params = p
	r.closeAuthWindowLocked()
	r.auth.state = AuthWindowOpening

	width, height := p.Width, p.Height
	if width == 0 {
		width = defaultAuthWidth
	}
	if height == 0 {
		height = defaultAuthHeight
	}
	g := r.host.Geometry()
	width = min(width, g.OuterWidth-400)
	height = min(height, g.OuterHeight-200)
	left := g.ScreenX + g.OuterWidth/2 - width/2
	top := g.ScreenY + g.OuterHeight/2 - height/2

	features := fmt.Sprintf("toolbar=no, location=yes, status=no, menubar=no, scrollbars=yes, top=%d, left=%d, width=%d, height=%d",
		top, left, width, height)
	w := r.host.Open(target, "_blank", features)
	if w == nil {
		r.logger.Debug("relay.auth_window_blocked", "url", target)
		return r.finishAuthLocked(AuthFailed, ReasonFailedToOpenWindow)
	}

	r.peers[Child].window = w
	r.peers[Child].origin = ""
	r.startMonitorLocked()
	return nil
}

func (r *Relay) startMonitorLocked() {
	r.stopMonitorLocked()
	r.auth.state = AuthMonitoring
	r.auth.stopMonitor = r.host.SetInterval(r.cfg.AuthMonitorInterval, r.authMonitorTick)

	r.handlers[FuncInitialize] = func([]any) any {
		r.mu.Lock()
		defer r.mu.Unlock()
		return []any{string(FrameAuthentication), string(r.hostClientType)}
	}
	// Cross-domain navigation inside the authentication window is refused.
	r.handlers[FuncNavigateCrossDomain] = func([]any) any {
		return []any{false}
	}
}

func (r *Relay) stopMonitorLocked() {
	if r.auth.stopMonitor != nil {
		r.auth.stopMonitor()
		r.auth.stopMonitor = nil
	}
	delete(r.handlers, FuncInitialize)
	delete(r.handlers, FuncNavigateCrossDomain)
}

func (r *Relay) authMonitorTick() {
	r.mu.Lock()
	if r.auth.state != AuthMonitoring {
		r.mu.Unlock()
		return
	}
	child := r.peers[Child].window
	if child == nil || child.Closed() {
		next := r.finishAuthLocked(AuthCancelled, ReasonCancelledByUser)
		r.mu.Unlock()
		next()
		return
	}
	// Keep pinging so pages along the sign-in flow can bind to us.
	r.sendRequestLocked(Child, FuncPing, nil, "*")
	r.mu.Unlock()
}

func (r *Relay) closeAuthWindowLocked() {
	r.stopMonitorLocked()
	if child := r.peers[Child].window; child != nil {
		child.Close()
	}
	r.peers[Child].clear()
}

// finishAuthLocked ends the flow and returns the callback invocation, which
// must run after the lock is released.
func (r *Relay) finishAuthLocked(state AuthState, value string) func() {
	p := r.auth.params
	r.auth.params = nil
	r.auth.state = state
	r.closeAuthWindowLocked()
	r.logger.Debug("relay.auth_finished", "state", state.String())

	return func() {
		if p == nil {
			return
		}
		if state == AuthSucceeded {
			if p.SuccessCallback != nil {
				p.SuccessCallback(value)
			}
			return
		}
		if p.FailureCallback != nil {
			p.FailureCallback(value)
		}
	}
}

func (r *Relay) handleAuthSuccess(args []any) any {
	r.mu.Lock()
	next := r.finishAuthLocked(AuthSucceeded, argText(args, 0))
	r.mu.Unlock()
	next()
	return nil
}

func (r *Relay) handleAuthFailure(args []any) any {
	r.mu.Lock()
	next := r.finishAuthLocked(AuthFailed, argText(args, 0))
	r.mu.Unlock()
	next()
	return nil
}

func (r *Relay) absoluteURLLocked(raw string) string {
	base, err := url.Parse(r.host.Location())
	if err != nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return base.ResolveReference(ref).String()
}

// redirectIfWin32Outlook sends the Outlook desktop client back to its
// callback URL with the outcome in the fragment.
func (r *Relay) redirectIfWin32Outlook(callbackURL, key, value string) {
	if callbackURL == "" {
		return
	}
	decoded, err := url.PathUnescape(callbackURL)
	if err != nil {
		return
	}
	link, err := url.Parse(decoded)
	if err != nil || link.Host == "" {
		return
	}
	if self, err := url.Parse(r.host.Location()); err == nil && self.Host == link.Host {
		return
	}
	if link.Host != "outlook.office.com" || !strings.Contains(link.RawQuery, "client_type=Win32_Outlook") {
		return
	}

	href := link.String()
	switch key {
	case "result":
		if value != "" {
			href = updateURLParameter(href, "result", value)
		}
		r.host.Navigate(updateURLParameter(href, "authSuccess", ""))
	case "reason":
		if value != "" {
			href = updateURLParameter(href, "reason", value)
		}
		r.host.Navigate(updateURLParameter(href, "authFailure", ""))
	}
}

// updateURLParameter appends key (and value) to the fragment of uri.
func updateURLParameter(uri, key, value string) string {
	hash := "#"
	if i := strings.Index(uri, "#"); i != -1 {
		hash = uri[i:]
		uri = uri[:i]
	}
	hash += "&" + key
	if value != "" {
		hash += "=" + value
	}
	return uri + hash
}
