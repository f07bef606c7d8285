package engine

import (
	"sort"

	"github.com/pseudomuto/dbchores/pkg/connection"
)

// Registry maps engine names to drivers.
type Registry struct {
	drivers map[string]Driver
}

// NewRegistry creates a registry holding drivers.
//
// Example:
//
//	reg := engine.NewRegistry(map[string]engine.Driver{
//		"postgres": postgres.New(),
//		"sqlite":   sqlite.New(),
//	})
func NewRegistry(drivers map[string]Driver) *Registry {
	r := &Registry{drivers: make(map[string]Driver, len(drivers))}
	for name, d := range drivers {
		r.Register(name, d)
	}

	return r
}

// Register adds (or replaces) the driver for name.
func (r *Registry) Register(name string, d Driver) {
	r.drivers[name] = d
}

// Driver returns the driver registered for name.
func (r *Registry) Driver(name string) (Driver, bool) {
	d, ok := r.drivers[name]
	return d, ok
}

// Names returns the registered engine names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// Defaults returns each driver's built-in settings keyed by engine name, in
// the form expected by connection.Resolver.Engines.
func (r *Registry) Defaults() map[string]connection.EngineDefaults {
	defaults := make(map[string]connection.EngineDefaults, len(r.drivers))
	for name, d := range r.drivers {
		defaults[name] = d.Defaults()
	}

	return defaults
}
