package relay

import (
	"errors"
	"strings"
	"testing"
)

type authOutcome struct {
	successes []string
	failures  []string
}

func (o *authOutcome) params(url string, width, height int) *AuthenticateParameters {
	return &AuthenticateParameters{
		URL:             url,
		Width:           width,
		Height:          height,
		SuccessCallback: func(s string) { o.successes = append(o.successes, s) },
		FailureCallback: func(s string) { o.failures = append(o.failures, s) },
	}
}

func TestAuthenticateCancelledWhenPopupCloses(t *testing.T) {
	r, h, _ := initialized(t, Config{}, FrameContent, HostWeb)
	popup := newFakeWindow("popup")
	h.popup = popup

	var out authOutcome
	if err := r.Authentication().Authenticate(out.params("/auth/start", 0, 0)); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if r.Authentication().State() != AuthMonitoring {
		t.Fatalf("state = %v", r.Authentication().State())
	}
	monitor := h.onlyTimer(t, true, DefaultAuthMonitorInterval)

	monitor.fire()
	ping := popup.last(t)
	if ping.env.Func != FuncPing || ping.origin != "*" {
		t.Fatalf("monitor sent %+v to %q", ping.env, ping.origin)
	}

	popup.setClosed(true)
	monitor.fire()
	monitor.fn()

	if len(out.failures) != 1 || out.failures[0] != ReasonCancelledByUser {
		t.Fatalf("failures = %v", out.failures)
	}
	if len(out.successes) != 0 {
		t.Fatalf("unexpected success")
	}
	if !monitor.isCancelled() {
		t.Fatalf("monitor still scheduled")
	}
	if r.Authentication().State() != AuthCancelled {
		t.Fatalf("state = %v", r.Authentication().State())
	}
	if w, _ := r.Tracked(Child); w != nil {
		t.Fatalf("popup still tracked")
	}
}

func TestAuthenticateWindowBlocked(t *testing.T) {
	r, h, _ := initialized(t, Config{}, FrameContent, HostWeb)

	var out authOutcome
	if err := r.Authentication().Authenticate(out.params("/auth/start", 0, 0)); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if len(out.failures) != 1 || out.failures[0] != ReasonFailedToOpenWindow {
		t.Fatalf("failures = %v", out.failures)
	}
	if len(h.activeTimers(true, DefaultAuthMonitorInterval)) != 0 {
		t.Fatalf("monitor started for a blocked window")
	}
	if r.Authentication().State() != AuthFailed {
		t.Fatalf("state = %v", r.Authentication().State())
	}
}

func TestAuthenticateWindowGeometry(t *testing.T) {
	r, h, _ := initialized(t, Config{}, FrameContent, HostWeb)
	h.geometry = Geometry{OuterWidth: 1000, OuterHeight: 700, ScreenX: 50, ScreenY: 20}
	h.popup = newFakeWindow("popup")

	var out authOutcome
	if err := r.Authentication().Authenticate(out.params("/auth/start?x=1", 800, 600)); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if len(h.opens) != 1 {
		t.Fatalf("open calls = %d", len(h.opens))
	}
	open := h.opens[0]
	if open.url != tabOrigin+"/auth/start?x=1" {
		t.Fatalf("url = %q", open.url)
	}
	if open.name != "_blank" {
		t.Fatalf("name = %q", open.name)
	}
	if !strings.HasPrefix(open.features, "toolbar=no, location=yes, status=no, menubar=no, scrollbars=yes, ") {
		t.Fatalf("features = %q", open.features)
	}
	if !strings.HasSuffix(open.features, "top=120, left=250, width=600, height=500") {
		t.Fatalf("features = %q", open.features)
	}
}

func TestAuthenticateRequiresParameters(t *testing.T) {
	r, _, _ := initialized(t, Config{}, FrameContent, HostWeb)
	if err := r.Authentication().Authenticate(nil); !errors.Is(err, ErrNoAuthParameters) {
		t.Fatalf("expected ErrNoAuthParameters, got %v", err)
	}
}

func TestAuthenticationWindowSucceeds(t *testing.T) {
	r, h, _ := initialized(t, Config{}, FrameContent, HostWeb)
	popup := newFakeWindow("popup")
	h.popup = popup

	var out authOutcome
	r.Authentication().RegisterAuthenticationHandlers(out.params("/auth/start", 0, 0))
	if err := r.Authentication().Authenticate(nil); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	h.deliver(t, popup, tabOrigin, request(0, FuncInitialize, Version))
	reply := popup.last(t).env
	if !reply.IsResponse() || *reply.ID != 0 {
		t.Fatalf("initialize reply = %+v", reply)
	}
	if reply.Args[0] != string(FrameAuthentication) || reply.Args[1] != string(HostWeb) {
		t.Fatalf("initialize args = %v", reply.Args)
	}

	h.deliver(t, popup, tabOrigin, request(1, FuncNavigateCrossDomain, "https://elsewhere.example"))
	reply = popup.last(t).env
	if *reply.ID != 1 || reply.Args[0] != false {
		t.Fatalf("navigateCrossDomain reply = %+v", reply)
	}

	h.deliver(t, popup, tabOrigin, request(2, FuncAuthenticateSuccess, "token"))
	if len(out.successes) != 1 || out.successes[0] != "token" {
		t.Fatalf("successes = %v", out.successes)
	}
	if popup.closeCalls != 1 {
		t.Fatalf("popup closed %d times", popup.closeCalls)
	}
	if r.Authentication().State() != AuthSucceeded {
		t.Fatalf("state = %v", r.Authentication().State())
	}
	if len(h.activeTimers(true, DefaultAuthMonitorInterval)) != 0 {
		t.Fatalf("monitor still running")
	}
}

func TestDesktopAuthenticateDelegatesToParent(t *testing.T) {
	r, h, parent := initialized(t, Config{}, FrameContent, HostDesktop)

	var out authOutcome
	if err := r.Authentication().Authenticate(out.params("/auth/start", 500, 400)); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if len(h.opens) != 0 {
		t.Fatalf("desktop clients must not open a window")
	}
	req := parent.last(t).env
	if req.Func != FuncAuthenticate || req.Args[0] != tabOrigin+"/auth/start" || req.Args[1] != 500 || req.Args[2] != 400 {
		t.Fatalf("request = %+v", req)
	}

	h.deliver(t, parent, teamsOrigin, response(*req.ID, true, "token"))
	if len(out.successes) != 1 || out.successes[0] != "token" {
		t.Fatalf("successes = %v", out.successes)
	}
}

func TestGetAuthTokenFailure(t *testing.T) {
	r, h, parent := initialized(t, Config{}, FrameContent, HostWeb)

	var reason string
	_, err := r.Authentication().GetAuthToken(AuthTokenRequest{
		Resources:       []string{"https://graph.microsoft.com"},
		FailureCallback: func(s string) { reason = s },
	})
	if err != nil {
		t.Fatalf("getAuthToken: %v", err)
	}
	req := parent.last(t).env
	if req.Func != FuncGetAuthToken {
		t.Fatalf("request = %+v", req)
	}
	h.deliver(t, parent, teamsOrigin, response(*req.ID, false, "consent_required"))
	if reason != "consent_required" {
		t.Fatalf("reason = %q", reason)
	}
}

// authWindow returns a relay running inside an authentication pop-up whose
// opener is the tab.
func authWindow(t *testing.T) (*Relay, *fakeHost, *fakeWindow) {
	t.Helper()
	opener := newFakeWindow("opener")
	h := &fakeHost{
		self:     newFakeWindow("popup"),
		origin:   tabOrigin,
		location: tabOrigin + "/auth/end",
		opener:   opener,
	}
	r := New(h, Config{})
	r.Initialize()
	first := opener.last(t)
	if first.env.Func != FuncInitialize || first.origin != "*" {
		t.Fatalf("initialize = %+v to %q", first.env, first.origin)
	}
	h.deliver(t, opener, tabOrigin, response(*first.env.ID, string(FrameAuthentication), string(HostWeb)))
	return r, h, opener
}

func TestNotifySuccessClosesWindowAfterDrain(t *testing.T) {
	r, h, opener := authWindow(t)

	if err := r.Authentication().NotifySuccess("token", ""); err != nil {
		t.Fatalf("notifySuccess: %v", err)
	}
	sent := opener.last(t)
	if sent.env.Func != FuncAuthenticateSuccess || sent.env.Args[0] != "token" || sent.origin != tabOrigin {
		t.Fatalf("sent %+v to %q", sent.env, sent.origin)
	}

	drain := h.onlyTimer(t, true, DefaultQueueDrainInterval)
	drain.fire()
	if !drain.isCancelled() {
		t.Fatalf("drain poll not stopped")
	}
	if h.self.Closed() {
		t.Fatalf("window closed before the grace period")
	}
	h.onlyTimer(t, false, DefaultCloseGrace).fire()
	if !h.self.Closed() {
		t.Fatalf("window not closed")
	}
}

func TestNotifyRequiresAuthenticationContext(t *testing.T) {
	r, _, _ := initialized(t, Config{}, FrameContent, HostWeb)
	var ce *ContextError
	if err := r.Authentication().NotifyFailure("x", ""); !errors.As(err, &ce) {
		t.Fatalf("expected ContextError, got %v", err)
	}
}

func TestNotifyFailureRedirectsWin32Outlook(t *testing.T) {
	r, h, _ := authWindow(t)

	callback := "https%3A%2F%2Foutlook.office.com%2Fowa%3Fclient_type%3DWin32_Outlook"
	if err := r.Authentication().NotifyFailure("denied", callback); err != nil {
		t.Fatalf("notifyFailure: %v", err)
	}
	want := "https://outlook.office.com/owa?client_type=Win32_Outlook#&reason=denied&authFailure"
	if len(h.navigated) != 1 || h.navigated[0] != want {
		t.Fatalf("navigated = %v, want %q", h.navigated, want)
	}
}

func TestNotifySuccessIgnoresOtherCallbacks(t *testing.T) {
	r, h, _ := authWindow(t)
	for _, cb := range []string{
		"https%3A%2F%2Fexample.com%2Fdone%3Fclient_type%3DWin32_Outlook",
		"https%3A%2F%2Foutlook.office.com%2Fowa",
		"not a url",
	} {
		if err := r.Authentication().NotifySuccess("token", cb); err != nil {
			t.Fatalf("notifySuccess: %v", err)
		}
	}
	if len(h.navigated) != 0 {
		t.Fatalf("navigated = %v", h.navigated)
	}
}

func TestUpdateURLParameter(t *testing.T) {
	cases := []struct {
		uri, key, value, want string
	}{
		{"https://a/b", "result", "tok", "https://a/b#&result=tok"},
		{"https://a/b#x=1", "authSuccess", "", "https://a/b#x=1&authSuccess"},
		{"https://a/b?q=1#", "reason", "no", "https://a/b?q=1#&reason=no"},
	}
	for _, tc := range cases {
		if got := updateURLParameter(tc.uri, tc.key, tc.value); got != tc.want {
			t.Fatalf("updateURLParameter(%q, %q, %q) = %q, want %q", tc.uri, tc.key, tc.value, got, tc.want)
		}
	}
}
