// Package transform implements the pluggable transformer hook (C10): a
// named registry of pure string->string rewrites applied to raw HL7 text
// before parsing (inbound) or after generation (outbound), per spec.md
// §4.10/§9.
package transform

import (
	"fmt"
)

// Func is a site-specific text rewrite. It must be pure: same input,
// same output, no side effects.
type Func func(raw string) (string, error)

const noopName = "noop"

func noop(raw string) (string, error) { return raw, nil }

// Registry maps transformer names to Func. The zero value is usable and
// always carries the "noop" entry.
type Registry struct {
	funcs map[string]Func
}

func NewRegistry() *Registry {
	r := &Registry{funcs: map[string]Func{noopName: noop}}
	return r
}

// Register adds or replaces a named transform.
func (r *Registry) Register(name string, f Func) {
	if r.funcs == nil {
		r.funcs = map[string]Func{noopName: noop}
	}
	r.funcs[name] = f
}

// ErrUnknownTransform is returned by Apply for a name not in the registry.
type ErrUnknownTransform struct{ Name string }

func (e ErrUnknownTransform) Error() string {
	return fmt.Sprintf("transform: unknown transformer %q", e.Name)
}

// Apply runs the named transform against raw. An empty name selects the
// no-op transform.
func (r *Registry) Apply(name, raw string) (string, error) {
	if name == "" {
		name = noopName
	}
	f, ok := r.funcs[name]
	if !ok && name == noopName {
		f, ok = noop, true
	}
	if !ok {
		return "", ErrUnknownTransform{Name: name}
	}
	return f(raw)
}
