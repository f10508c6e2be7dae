package archivers

import (
	"fmt"
	"strings"
	"sync"
)

// Builder creates a Service from a config entry.
type Builder func(cfg ServiceConfig) (Service, error)

// Registry maps archive service types to builders.
type Registry interface {
	Register(typ string, builder Builder)
	ServiceFor(cfg ServiceConfig) (Service, error)
}

type registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewRegistry returns a registry with optional pre-registered builders.
func NewRegistry(builders map[string]Builder) Registry {
	r := &registry{
		builders: make(map[string]Builder),
	}
	for typ, b := range builders {
		r.Register(typ, b)
	}
	return r
}

// Register associates a builder with a service type.
func (r *registry) Register(typ string, builder Builder) {
	if typ = strings.TrimSpace(strings.ToLower(typ)); typ == "" || builder == nil {
		return
	}

	r.mu.Lock()
	r.builders[typ] = builder
	r.mu.Unlock()
}

// ServiceFor returns the service built for the provided config.
func (r *registry) ServiceFor(cfg ServiceConfig) (Service, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("archiver %q has no type configured", cfg.ID)
	}

	r.mu.RLock()
	builder := r.builders[strings.ToLower(cfg.Type)]
	r.mu.RUnlock()

	if builder == nil {
		return nil, fmt.Errorf("no archiver registered for type %q", cfg.Type)
	}
	return builder(cfg)
}

// DefaultRegistry wires up known archive services.
func DefaultRegistry() Registry {
	return NewRegistry(map[string]Builder{
		TypePrefix:       newPrefixService,
		TypeWayback:      newPrefixService,
		TypeArchiveToday: newPrefixService,
	})
}

// BuildAll instantiates services for configs using the registry, keeping order.
func BuildAll(reg Registry, cfgs []ServiceConfig) ([]Service, error) {
	if reg == nil || len(cfgs) == 0 {
		return nil, nil
	}

	services := make([]Service, 0, len(cfgs))
	for _, cfg := range cfgs {
		svc, err := reg.ServiceFor(cfg)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, nil
}
