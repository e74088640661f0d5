package relay

import "time"

// Window is a handle to a cooperating window. Implementations must be
// comparable (pointer types) and PostMessage must never deliver
// synchronously into the caller's relay.
type Window interface {
	PostMessage(message any, targetOrigin string)
	Closed() bool
	Close()
}

// MessageEvent is an inbound cross-window message.
type MessageEvent struct {
	Data   any
	Origin string
	Source Window
}

// Geometry describes the outer bounds of the host window on screen.
type Geometry struct {
	OuterWidth  int
	OuterHeight int
	ScreenX     int
	ScreenY     int
}

// Host is the environment a relay runs in: its own window plus the browser
// facilities the relay needs. Parent and Opener return nil when absent.
type Host interface {
	Self() Window
	Origin() string
	Location() string
	Parent() Window
	Opener() Window
	Geometry() Geometry
	Open(url, name, features string) Window
	Navigate(url string)
	AddMessageListener(fn func(MessageEvent)) (remove func())
	SetInterval(d time.Duration, fn func()) (cancel func())
	SetTimeout(d time.Duration, fn func()) (cancel func())
}
