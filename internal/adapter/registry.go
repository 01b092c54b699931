package adapter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mattjoyce/uploader/internal/fault"
	"github.com/mattjoyce/uploader/internal/protocol"
)

// Registry maps target identifiers to adapters. It is filled during
// startup and only read afterwards, so lookups take no lock.
type Registry struct {
	adapters map[string]Adapter
	generic  Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds a under its own name and any aliases.
func (r *Registry) Register(a Adapter, aliases ...string) error {
	names := append([]string{a.Name()}, aliases...)
	for _, name := range names {
		key := normalize(name)
		if key == "" {
			return fmt.Errorf("adapter %q: empty name", a.Name())
		}
		if existing, ok := r.adapters[key]; ok {
			return fmt.Errorf("adapter %q: name %q already registered by %q", a.Name(), key, existing.Name())
		}
	}
	for _, name := range names {
		r.adapters[normalize(name)] = a
	}
	return nil
}

// SetGeneric installs the adapter used for http_upload jobs.
func (r *Registry) SetGeneric(a Adapter) {
	r.generic = a
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[normalize(name)]
	return a, ok
}

// Resolve picks the adapter for a job: the generic runner for http_upload,
// otherwise the adapter registered for the job's service.
func (r *Registry) Resolve(job *protocol.Job) (Adapter, error) {
	if job.NormalizedAction() == protocol.ActionHTTPUpload {
		if r.generic == nil {
			return nil, fault.Wrap(fault.ErrUnsupportedTarget, "no generic http runner registered", nil)
		}
		return r.generic, nil
	}
	a, ok := r.Get(job.Service)
	if !ok {
		return nil, fault.Wrap(fault.ErrUnsupportedTarget, fmt.Sprintf("service %q", job.Service), nil)
	}
	return a, nil
}

// Names lists registered identifiers, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
