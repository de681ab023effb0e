package broker

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"papertrader/internal/errors"
)

// Type names a broker backend.
type Type string

const (
	TypeMock   Type = "mock"
	TypePaper  Type = "paper"
	TypeAlpaca Type = "alpaca"
	TypeIBKR   Type = "ibkr"
)

// Factory builds a broker from cfg.
type Factory func(cfg Config) (Broker, error)

// Registry maps broker types to factories. The zero value is empty; use
// NewRegistry for one with the built-in types.
type Registry struct {
	mu        sync.RWMutex
	factories map[Type]Factory
}

// NewRegistry returns a registry with mock and paper (the simulator) plus
// placeholders for alpaca and ibkr that report not-implemented.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[Type]Factory)}
	paper := func(cfg Config) (Broker, error) { return NewPaperBroker(cfg), nil }
	r.factories[TypeMock] = paper
	r.factories[TypePaper] = paper
	r.factories[TypeAlpaca] = notImplemented(TypeAlpaca)
	r.factories[TypeIBKR] = notImplemented(TypeIBKR)
	return r
}

func notImplemented(t Type) Factory {
	return func(Config) (Broker, error) {
		return nil, errors.NewBrokerError(string(t),
			"not yet implemented, use broker type mock for paper trading", errors.ErrBrokerNotImplemented)
	}
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name Type, f Factory) error {
	name = Type(strings.ToLower(strings.TrimSpace(string(name))))
	if name == "" {
		return fmt.Errorf("broker type name is empty")
	}
	if f == nil {
		return fmt.Errorf("nil factory for broker type %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.factories == nil {
		r.factories = make(map[Type]Factory)
	}
	r.factories[name] = f
	return nil
}

// Create builds a broker of type name.
func (r *Registry) Create(name Type, cfg Config) (Broker, error) {
	name = Type(strings.ToLower(strings.TrimSpace(string(name))))
	if name == "" {
		name = TypeMock
	}

	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s (supported: %s)", errors.ErrUnknownBroker, name, strings.Join(r.names(), ", "))
	}
	return f(cfg)
}

// Types lists registered broker types in name order.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]Type, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func (r *Registry) names() []string {
	types := r.Types()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return names
}
