package hiwin_arm

import (
	"sort"
	"sync"
)

// The vendor event callback carries no session context and must stay valid for as
// long as any session is open, so every gateway is handed the same process-wide
// routeEvent and the router fans each event out to the handlers bound to live
// session handles.
var sessionEvents = newEventRouter()

// routeEvent is the single EventFunc passed to Gateway.Open.
func routeEvent(command, result uint16, message []uint16) {
	sessionEvents.dispatch(command, result, message)
}

type eventRouter struct {
	// openMu serializes opens so the pending handler belongs to exactly one open.
	openMu sync.Mutex

	mu       sync.RWMutex
	pending  EventFunc
	handlers map[int]EventFunc
}

func newEventRouter() *eventRouter {
	return &eventRouter{handlers: make(map[int]EventFunc)}
}

// bind makes fn reachable while an open is in flight. The returned func must be
// called with the open's result; a valid handle keeps fn bound until release.
func (r *eventRouter) bind(fn EventFunc) func(handle int) {
	r.openMu.Lock()

	r.mu.Lock()
	r.pending = fn
	r.mu.Unlock()

	return func(handle int) {
		r.mu.Lock()
		r.pending = nil
		if validHandle(handle) {
			r.handlers[handle] = fn
		}
		r.mu.Unlock()
		r.openMu.Unlock()
	}
}

func (r *eventRouter) release(handle int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, handle)
}

func (r *eventRouter) dispatch(command, result uint16, message []uint16) {
	r.mu.RLock()
	targets := make([]EventFunc, 0, len(r.handlers)+1)
	if r.pending != nil {
		targets = append(targets, r.pending)
	}
	for _, fn := range r.handlers {
		targets = append(targets, fn)
	}
	r.mu.RUnlock()

	for _, fn := range targets {
		fn(command, result, message)
	}
}

// boundHandles returns the session handles currently receiving events.
func (r *eventRouter) boundHandles() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int, 0, len(r.handlers))
	for h := range r.handlers {
		out = append(out, h)
	}
	sort.Ints(out)
	return out
}

func validHandle(handle int) bool {
	return handle >= 0 && handle <= 65535
}
