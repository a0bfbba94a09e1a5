package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	// ErrWorkerNotFound is returned when a worker name is not registered
	ErrWorkerNotFound = errors.New("worker not found")

	// ErrDuplicateWorker is returned when two contributions register the same name
	ErrDuplicateWorker = errors.New("duplicate worker")

	// ErrInvalidName is returned for names that cannot be used as a routing key
	ErrInvalidName = errors.New("invalid worker name")
)

var namePattern = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_]+)*$`)

// Name is a validated logical worker name, e.g. "task.db.insert_test_data"
type Name string

// ParseName validates s as a worker name
func ParseName(s string) (Name, error) {
	if !namePattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, s)
	}
	return Name(s), nil
}

// EntryPoint performs the domain work of a job. args excludes the record id.
// The returned value must be JSON-serializable.
type EntryPoint func(ctx context.Context, recordID string, args []json.RawMessage) (any, error)

// PostProcessor transforms the terminal payload of a job before it is persisted
type PostProcessor func(ctx context.Context, result json.RawMessage) (any, error)

// Descriptor describes one worker
type Descriptor struct {
	Name          Name
	Entry         EntryPoint
	PostProcessor PostProcessor
}

// Contribution is the set of workers a feature module brings to the registry
type Contribution struct {
	Module  string
	Workers []Descriptor
}

type entry struct {
	desc   Descriptor
	module string
}

// Registry maps worker names to descriptors. It is immutable once built.
type Registry struct {
	workers map[Name]entry
}

// Build merges contributions into a registry. A name registered by two
// contributions is a configuration error.
func Build(contributions ...Contribution) (*Registry, error) {
	r := &Registry{workers: make(map[Name]entry)}

	for _, c := range contributions {
		for _, d := range c.Workers {
			if _, err := ParseName(string(d.Name)); err != nil {
				return nil, fmt.Errorf("module %s: %w", c.Module, err)
			}
			if d.Entry == nil {
				return nil, fmt.Errorf("module %s: worker %s has no entry point", c.Module, d.Name)
			}
			if prev, ok := r.workers[d.Name]; ok {
				return nil, fmt.Errorf("%w: %s registered by both %s and %s", ErrDuplicateWorker, d.Name, prev.module, c.Module)
			}
			r.workers[d.Name] = entry{desc: d, module: c.Module}
		}
	}

	return r, nil
}

// Lookup returns the descriptor registered under name
func (r *Registry) Lookup(name string) (Descriptor, error) {
	e, ok := r.workers[Name(name)]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrWorkerNotFound, name)
	}
	return e.desc, nil
}

// Has reports whether name is registered
func (r *Registry) Has(name string) bool {
	_, ok := r.workers[Name(name)]
	return ok
}

// PostProcessor returns the post-processor registered for name, if any
func (r *Registry) PostProcessor(name string) (PostProcessor, bool) {
	e, ok := r.workers[Name(name)]
	if !ok || e.desc.PostProcessor == nil {
		return nil, false
	}
	return e.desc.PostProcessor, true
}

// Module returns the module that contributed name
func (r *Registry) Module(name string) string {
	return r.workers[Name(name)].module
}

// Names returns all registered worker names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.workers))
	for n := range r.workers {
		names = append(names, string(n))
	}
	sort.Strings(names)
	return names
}

// Descriptors returns all descriptors ordered by name
func (r *Registry) Descriptors() []Descriptor {
	names := r.Names()
	out := make([]Descriptor, len(names))
	for i, n := range names {
		out[i] = r.workers[Name(n)].desc
	}
	return out
}

// Len returns the number of registered workers
func (r *Registry) Len() int {
	return len(r.workers)
}

// String lists the registry as "name (module)" lines
func (r *Registry) String() string {
	var b strings.Builder
	for _, n := range r.Names() {
		fmt.Fprintf(&b, "%s (%s)\n", n, r.workers[Name(n)].module)
	}
	return b.String()
}
