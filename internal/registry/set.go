package registry

import (
	"fmt"

	"usbverifier/pkg/verification"
)

// Status is the enable state of a descriptor in the verifier.
type Status string

const (
	StatusEnable   Status = "ENABLE"
	StatusReadOnly Status = "READ-ONLY"
	StatusDisable  Status = "DISABLE"
)

// DescriptorStatus reports the state of one descriptor.
type DescriptorStatus struct {
	Descriptor Descriptor
	Status     Status
}

// Snapshot is the content of every registry keyed by descriptor type then field.
type Snapshot map[string]map[string][]verification.Value

// Set is the full collection of descriptor registries, in walk order.
type Set struct {
	registries []*Registry
}

// NewSet creates empty registries for every descriptor of the catalog.
func NewSet() *Set {
	return NewSetFrom(Catalog())
}

// NewSetFrom creates empty registries for descs, keeping their order.
func NewSetFrom(descs []Descriptor) *Set {
	s := &Set{registries: make([]*Registry, 0, len(descs))}
	for _, d := range descs {
		s.registries = append(s.registries, New(d))
	}
	return s
}

// Registries returns the registries in walk order.
func (s *Set) Registries() []*Registry { return s.registries }

// Lookup resolves a descriptor by type, display name or alias.
func (s *Set) Lookup(name string) (*Registry, error) {
	for _, r := range s.registries {
		if r.desc.matches(name) {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDescriptor, name)
}

// OperatorInUse reports whether any registry holds a value for op.
func (s *Set) OperatorInUse(op verification.Operator) bool {
	for _, r := range s.registries {
		if r.OperatorInUse(op) {
			return true
		}
	}
	return false
}

// InUse reports whether any registry holds a value.
func (s *Set) InUse() bool {
	for _, r := range s.registries {
		if r.InUse() {
			return true
		}
	}
	return false
}

// LargestVerificationNumber returns the largest same-operator, same-part row
// count over every field, at least 1.
func (s *Set) LargestVerificationNumber() int {
	largest := 1
	for _, r := range s.registries {
		largest = r.LargestVerificationNumber(largest)
	}
	return largest
}

// Len returns the number of values across all registries.
func (s *Set) Len() int {
	n := 0
	for _, r := range s.registries {
		n += len(r.Entries())
	}
	return n
}

// Status computes the enable state of every descriptor. A descriptor with
// values is enabled; a descriptor required by an enabled one is read-only.
func (s *Set) Status() []DescriptorStatus {
	state := make(map[string]Status, len(s.registries))
	for _, r := range s.registries {
		state[r.desc.Type] = StatusDisable
	}
	for _, r := range s.registries {
		if !r.InUse() {
			continue
		}
		state[r.desc.Type] = StatusEnable
		for _, dep := range r.desc.Requires {
			if state[dep] == StatusDisable {
				state[dep] = StatusReadOnly
			}
		}
	}
	// a dependency visited before its dependent may have been marked
	// read-only although it carries values
	for _, r := range s.registries {
		if r.InUse() {
			state[r.desc.Type] = StatusEnable
		}
	}
	out := make([]DescriptorStatus, 0, len(s.registries))
	for _, r := range s.registries {
		out = append(out, DescriptorStatus{Descriptor: r.desc, Status: state[r.desc.Type]})
	}
	return out
}

// Snapshot captures every registry.
func (s *Set) Snapshot() Snapshot {
	out := make(Snapshot, len(s.registries))
	for _, r := range s.registries {
		if snap := r.Snapshot(); len(snap) > 0 {
			out[r.desc.Type] = snap
		}
	}
	return out
}

// Restore replaces the content of every registry with snap. Registries are
// left unchanged if any value fails validation.
func (s *Set) Restore(snap Snapshot) error {
	staged := NewSetFrom(s.descriptors())
	for name, fields := range snap {
		r, err := staged.Lookup(name)
		if err != nil {
			return err
		}
		if err := r.Restore(fields); err != nil {
			return err
		}
	}
	for i, r := range staged.registries {
		s.registries[i].swap(r)
	}
	return nil
}

func (s *Set) descriptors() []Descriptor {
	out := make([]Descriptor, len(s.registries))
	for i, r := range s.registries {
		out[i] = r.desc
	}
	return out
}

func (r *Registry) swap(from *Registry) {
	from.mu.RLock()
	values := from.values
	from.mu.RUnlock()
	r.mu.Lock()
	r.values = values
	r.mu.Unlock()
}
