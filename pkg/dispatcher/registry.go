package dispatcher

import (
	"fmt"
	"sort"
	"sync"

	"github.com/newtron-network/ctrlcfg/pkg/transport"
	"github.com/newtron-network/ctrlcfg/pkg/util"
)

// Network driver names
const (
	DriverAPIC      = "cisco_apic"
	DriverVManage   = "cisco_vmanage"
	DriverMeraki    = "cisco_meraki"
	DriverNetScaler = "citrix_netscaler"
	DriverWTI       = "wti"
	DriverREST      = "rest"
)

// Factory builds a driver using the given transport settings.
type Factory func(cfg transport.Config) Driver

// Registry maps network driver names to driver factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry holding every built-in driver.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(DriverAPIC, func(cfg transport.Config) Driver { return NewAPIC(cfg) })
	r.Register(DriverVManage, func(cfg transport.Config) Driver { return NewVManage(cfg) })
	r.Register(DriverMeraki, func(cfg transport.Config) Driver { return NewMeraki(cfg) })
	r.Register(DriverNetScaler, func(cfg transport.Config) Driver { return NewNetScaler(cfg) })
	r.Register(DriverWTI, func(cfg transport.Config) Driver { return NewWTI(cfg) })
	r.Register(DriverREST, func(cfg transport.Config) Driver { return NewREST(cfg) })
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// New builds the driver registered under name.
func (r *Registry) New(name string, cfg transport.Config) (Driver, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("network driver %q: %w", name, util.ErrUnsupported)
	}
	return f(cfg), nil
}

// Supports reports whether name is registered.
func (r *Registry) Supports(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns the registered driver names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
