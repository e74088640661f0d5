package relay

import (
	"context"
	"sync"
)

// Call is an outstanding request awaiting its response. It resolves exactly
// once: by a response, by Cancel, by expiry or by Uninitialize.
type Call struct {
	ID   int
	Func Func
	Peer Peer

	r         *Relay
	done      chan struct{}
	once      sync.Once
	args      []any
	err       error
	callback  func(args []any)
	stopTimer func()
}

func newCall(r *Relay, id int, fn Func, peer Peer, cb func([]any)) *Call {
	return &Call{ID: id, Func: fn, Peer: peer, r: r, done: make(chan struct{}), callback: cb}
}

// Done is closed when the call resolves.
func (c *Call) Done() <-chan struct{} { return c.done }

// Args returns the response args once Done is closed.
func (c *Call) Args() []any {
	select {
	case <-c.done:
		return c.args
	default:
		return nil
	}
}

// Err reports why the call resolved without a response.
func (c *Call) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait blocks until the call resolves or ctx is done.
func (c *Call) Wait(ctx context.Context) ([]any, error) {
	select {
	case <-c.done:
		return c.args, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel drops the pending entry; a late response is then ignored.
func (c *Call) Cancel() {
	c.r.dropCall(c, ErrCanceled)
}

// settle records the outcome and reports whether this was the first one.
func (c *Call) settle(args []any, err error) bool {
	won := false
	c.once.Do(func() {
		won = true
		c.args = args
		c.err = err
		if c.stopTimer != nil {
			c.stopTimer()
		}
		close(c.done)
	})
	return won
}

// resolve delivers a response; the callback runs at most once.
func (c *Call) resolve(args []any) {
	if c.settle(args, nil) && c.callback != nil {
		c.callback(args)
	}
}

// takePendingLocked removes and returns the call answered by a response
// from peer. Responses from the other peer leave the entry in place.
func (r *Relay) takePendingLocked(id int, from Peer) (*Call, bool) {
	c, ok := r.pending[id]
	if !ok || c.Peer != from {
		return nil, false
	}
	delete(r.pending, id)
	return c, true
}

func (r *Relay) dropCall(c *Call, reason error) {
	r.mu.Lock()
	if cur, ok := r.pending[c.ID]; ok && cur == c {
		delete(r.pending, c.ID)
	}
	r.mu.Unlock()
	c.settle(nil, reason)
}

// callLocked sends a request and tracks its response. origin overrides the
// peer's known origin when non-empty.
func (r *Relay) callLocked(peer Peer, fn Func, args []any, origin string, cb func([]any)) *Call {
	id := r.sendRequestLocked(peer, fn, args, origin)
	c := newCall(r, id, fn, peer, cb)
	r.pending[id] = c
	if r.cfg.RequestTimeout > 0 {
		c.stopTimer = r.host.SetTimeout(r.cfg.RequestTimeout, func() {
			r.logger.Debug("relay.request_expired", "id", c.ID, "func", string(c.Func))
			r.dropCall(c, ErrRequestTimeout)
		})
	}
	return c
}
