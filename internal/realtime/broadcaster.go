package realtime

import (
	"sync/atomic"

	"je-portal/backend/internal/metrics"
)

// Broadcaster pushes an event to every live connection of one user.
type Broadcaster interface {
	EmitToUser(userID, event string, payload any)
}

type installed struct {
	b Broadcaster
}

// Handle is the process-wide slot for the running Broadcaster. It is created
// once in main and passed to whatever needs to emit; until Install is called
// every emit is a silent no-op.
type Handle struct {
	current atomic.Pointer[installed]
}

func NewHandle() *Handle {
	return &Handle{}
}

func (h *Handle) Install(b Broadcaster) {
	if b == nil {
		return
	}
	h.current.Store(&installed{b: b})
}

func (h *Handle) Get() (Broadcaster, bool) {
	if h == nil {
		return nil, false
	}
	slot := h.current.Load()
	if slot == nil {
		return nil, false
	}
	return slot.b, true
}

func (h *Handle) EmitToUser(userID, event string, payload any) {
	b, ok := h.Get()
	if !ok {
		metrics.EventsDropped.WithLabelValues(metrics.DropNoHandle).Inc()
		return
	}
	b.EmitToUser(userID, event, payload)
}
