package relay

// Peer selects one of the two tracked windows.
type Peer int

const (
	Parent Peer = iota
	Child
)

func (p Peer) String() string {
	switch p {
	case Parent:
		return "parent"
	case Child:
		return "child"
	default:
		return "unknown"
	}
}

type peerSlot struct {
	window Window
	origin string
	queue  []Envelope
}

func (s *peerSlot) clear() {
	s.window = nil
	s.origin = ""
}

// updateRelationshipsLocked adopts the sender into a free or matching slot,
// forgets closed windows and flushes whatever became sendable.
func (r *Relay) updateRelationshipsLocked(source Window, origin string) {
	parent, child := &r.peers[Parent], &r.peers[Child]
	switch {
	case parent.window == nil || parent.window == source:
		parent.window, parent.origin = source, origin
	case child.window == nil || child.window == source:
		child.window, child.origin = source, origin
	}

	if parent.window != nil && parent.window.Closed() {
		parent.clear()
	}
	if child.window != nil && child.window.Closed() {
		child.clear()
	}

	r.flushLocked(Parent)
	r.flushLocked(Child)
}

func (r *Relay) flushLocked(peer Peer) {
	slot := &r.peers[peer]
	for slot.window != nil && slot.origin != "" && len(slot.queue) > 0 {
		env := slot.queue[0]
		slot.queue = slot.queue[1:]
		slot.window.PostMessage(env, slot.origin)
	}
}

// sendRequestLocked allocates the next id and transmits or queues the
// request. origin overrides the peer's known origin when non-empty.
func (r *Relay) sendRequestLocked(peer Peer, fn Func, args []any, origin string) int {
	id := r.nextID
	r.nextID++
	env := newRequest(id, fn, args)

	slot := &r.peers[peer]
	if origin == "" {
		origin = slot.origin
	}
	if slot.window != nil && origin != "" {
		slot.window.PostMessage(env, origin)
	} else {
		slot.queue = append(slot.queue, env)
	}
	return id
}

// sendResponseLocked replies only to a peer whose origin is known.
func (r *Relay) sendResponseLocked(peer Peer, id int, args []any) {
	slot := &r.peers[peer]
	if slot.window == nil || slot.origin == "" {
		r.logger.Debug("relay.response_dropped", "peer", peer.String(), "id", id)
		return
	}
	slot.window.PostMessage(newResponse(id, args), slot.origin)
}
