package server

import (
	"context"
	"errors"
	"regexp"
	"sync"

	"github.com/playperu/fieldquest/internal/session"
)

var ErrInvalidDevice = errors.New("invalid device id")

var deviceRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ControllerFactory builds the controller of one device, restoring its
// saved game.
type ControllerFactory func(ctx context.Context, device string) *session.Controller

// Registry holds one live controller per device.
type Registry struct {
	factory     ControllerFactory
	mu          sync.RWMutex
	controllers map[string]*session.Controller
}

func NewRegistry(factory ControllerFactory) *Registry {
	return &Registry{
		factory:     factory,
		controllers: make(map[string]*session.Controller),
	}
}

func (r *Registry) Get(ctx context.Context, device string) (*session.Controller, error) {
	if !deviceRe.MatchString(device) {
		return nil, ErrInvalidDevice
	}

	r.mu.RLock()
	c, ok := r.controllers[device]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock.
	if c, ok := r.controllers[device]; ok {
		return c, nil
	}

	// The restore must not be cut short by the request that triggered it,
	// or an empty controller would be cached.
	c = r.factory(context.WithoutCancel(ctx), device)
	r.controllers[device] = c
	return c, nil
}

// Len is the number of live controllers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.controllers)
}
