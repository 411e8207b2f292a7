package hiwin_arm

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

// sessions is the process-wide registry used by the Viam resources, so an arm,
// its status sensor and a teleop bridge naming the same controller share one session.
var sessions = NewSessionRegistry(NewGateway)

type sessionEntry struct {
	controller *Controller
	config     *Config
	refCount   int64
	// owned is set once a resource carrying motion settings holds the session.
	// Until then the session runs on a follower's defaults.
	owned bool
}

// SessionRegistry hands out one connected Controller per controller address and
// disconnects it when the last user releases it.
type SessionRegistry struct {
	mu         sync.Mutex
	entries    map[string]*sessionEntry // address -> entry
	newGateway func(*Config) (Gateway, error)
}

func NewSessionRegistry(newGateway func(*Config) (Gateway, error)) *SessionRegistry {
	return &SessionRegistry{
		entries:    make(map[string]*sessionEntry),
		newGateway: newGateway,
	}
}

// sameSettings compares everything that changes how a session connects or moves.
func sameSettings(a, b *Config) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Address() == b.Address() &&
		a.Simulate == b.Simulate &&
		a.Speed == b.Speed &&
		a.Acceleration == b.Acceleration &&
		a.settleDelay() == b.settleDelay() &&
		a.waitOptions() == b.waitOptions() &&
		a.relativePolicy() == b.relativePolicy() &&
		a.smoothing() == b.smoothing() &&
		a.SimMotionMs == b.SimMotionMs
}

// Acquire returns the session for cfg's address, connecting it on first use.
// cfg's motion settings govern the session: a session opened by Join takes them
// over, and a session already owned with different settings is a conflict.
// A session left Faulted by an uncleared alarm is still handed out.
func (r *SessionRegistry) Acquire(ctx context.Context, cfg *Config, logger logging.Logger) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	address := cfg.Address()
	if entry, ok := r.entries[address]; ok {
		switch {
		case !entry.owned:
			if err := entry.controller.Reconfigure(ctx, cfg); err != nil {
				return nil, errors.Wrapf(err, "applying settings to session %s", address)
			}
			entry.config = cfg
			entry.owned = true
			logger.Debugf("session for %s now uses this resource's settings", address)
		case !sameSettings(entry.config, cfg):
			return nil, fmt.Errorf("conflict: session for %s already open with a different configuration (refCount: %d)", address, entry.refCount)
		}
		entry.refCount++
		logger.Debugf("sharing session for %s (refCount: %d)", address, entry.refCount)
		return entry.controller, nil
	}

	entry, err := r.open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	entry.owned = true
	return entry.controller, nil
}

// Join attaches to the session for cfg's address whatever its settings. Only the
// address fields of cfg are used. If no session exists one is opened with cfg
// and handed over to the first Acquire.
func (r *SessionRegistry) Join(ctx context.Context, cfg *Config, logger logging.Logger) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[cfg.Address()]; ok {
		entry.refCount++
		logger.Debugf("joined session for %s (refCount: %d)", cfg.Address(), entry.refCount)
		return entry.controller, nil
	}
	entry, err := r.open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return entry.controller, nil
}

// open connects a new session and registers it with one reference. r.mu must be held.
func (r *SessionRegistry) open(ctx context.Context, cfg *Config, logger logging.Logger) (*sessionEntry, error) {
	address := cfg.Address()
	gw, err := r.newGateway(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating controller gateway")
	}
	ctrl, err := NewController(gw, cfg, nil, logger)
	if err != nil {
		return nil, err
	}
	if err := ctrl.Connect(ctx); err != nil {
		if ctrl.State() != Faulted {
			ctrl.Disconnect(ctx)
			return nil, err
		}
		logger.Warnf("session for %s opened with an alarm: %v", address, err)
	}

	entry := &sessionEntry{controller: ctrl, config: cfg, refCount: 1}
	r.entries[address] = entry
	return entry, nil
}

// Release drops one reference and disconnects when none remain.
func (r *SessionRegistry) Release(ctx context.Context, address string) {
	r.mu.Lock()
	entry, ok := r.entries[address]
	if !ok {
		r.mu.Unlock()
		return
	}
	entry.refCount--
	if entry.refCount > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.entries, address)
	r.mu.Unlock()

	entry.controller.Disconnect(ctx)
}

// ForceClose disconnects a session regardless of its users.
func (r *SessionRegistry) ForceClose(ctx context.Context, address string) {
	r.mu.Lock()
	entry, ok := r.entries[address]
	delete(r.entries, address)
	r.mu.Unlock()

	if ok {
		entry.controller.Disconnect(ctx)
	}
}

// Status returns the reference count, whether a session exists and a short summary.
func (r *SessionRegistry) Status(address string) (int64, bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[address]
	if !ok {
		return 0, false, ""
	}
	return entry.refCount, true, fmt.Sprintf("%s id %d (%s)", address, entry.controller.Handle(), entry.controller.State())
}
