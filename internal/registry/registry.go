// Package registry holds the verification values declared for each USB
// descriptor field.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"

	"usbverifier/pkg/verification"
)

var (
	ErrUnknownDescriptor = errors.New("unknown descriptor")
	ErrUnknownField      = errors.New("unknown descriptor field")
)

// fieldValues keeps the two priority tiers of one field in insertion order.
type fieldValues struct {
	mandatory []verification.Value
	optional  []verification.Value
}

func (fv *fieldValues) all() []verification.Value {
	return slices.Concat(fv.mandatory, fv.optional)
}

func (fv *fieldValues) add(v verification.Value) {
	if v.Level == verification.Mandatory {
		fv.mandatory = append(fv.mandatory, v)
		return
	}
	fv.optional = append(fv.optional, v)
}

// Registry owns the verification values of one descriptor.
type Registry struct {
	desc Descriptor

	mu     sync.RWMutex
	values map[string]*fieldValues
}

// Entry pairs a value with the field it is declared on.
type Entry struct {
	Field string
	Value verification.Value
}

// FieldCount is the number of rows a field contributes to one operator memory.
type FieldCount struct {
	Field Field
	Count int
}

// New creates an empty registry for desc.
func New(desc Descriptor) *Registry {
	r := &Registry{desc: desc, values: make(map[string]*fieldValues, len(desc.Fields))}
	for _, f := range desc.Fields {
		r.values[f.Name] = &fieldValues{}
	}
	return r
}

// Descriptor returns the static definition backing the registry.
func (r *Registry) Descriptor() Descriptor { return r.desc }

// Field resolves a field name (case-insensitive).
func (r *Registry) Field(name string) (Field, error) {
	for _, f := range r.desc.Fields {
		if strings.EqualFold(f.Name, strings.TrimSpace(name)) {
			return f, nil
		}
	}
	return Field{}, fmt.Errorf("%w: %s has no field %q", ErrUnknownField, r.desc.Name, name)
}

// Add validates raw against the field constraints and appends it to the
// field's tier. The registry is unchanged on error.
func (r *Registry) Add(field, raw string, op verification.Operator, level verification.Level) (verification.Value, error) {
	f, err := r.Field(field)
	if err != nil {
		return verification.Value{}, err
	}
	v, err := verification.New(raw, f.Format, f.Limit, op, level)
	if err != nil {
		return verification.Value{}, fmt.Errorf("%s %s: %w", r.desc.Type, f.Name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[f.Name].add(v)
	return v, nil
}

// Remove deletes every value of field equal to raw. When ops is non-empty only
// values with one of those operators are removed. It returns the number of
// values removed.
func (r *Registry) Remove(field, raw string, ops ...verification.Operator) (int, error) {
	f, err := r.Field(field)
	if err != nil {
		return 0, err
	}
	match := func(v verification.Value) bool {
		return v.Matches(raw) && (len(ops) == 0 || slices.Contains(ops, v.Operator))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fv := r.values[f.Name]
	before := len(fv.mandatory) + len(fv.optional)
	fv.mandatory = lo.Reject(fv.mandatory, func(v verification.Value, _ int) bool { return match(v) })
	fv.optional = lo.Reject(fv.optional, func(v verification.Value, _ int) bool { return match(v) })
	return before - len(fv.mandatory) - len(fv.optional), nil
}

// Clear removes every value.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, fv := range r.values {
		fv.mandatory, fv.optional = nil, nil
	}
}

// Values returns the values of field, mandatory first.
func (r *Registry) Values(field string) ([]verification.Value, error) {
	f, err := r.Field(field)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.values[f.Name].all(), nil
}

// Entries lists every value in field order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry
	for _, f := range r.desc.Fields {
		for _, v := range r.values[f.Name].all() {
			out = append(out, Entry{Field: f.Name, Value: v})
		}
	}
	return out
}

func (r *Registry) matching(field string, op verification.Operator) []verification.Value {
	return lo.Filter(r.values[field].all(), func(v verification.Value, _ int) bool {
		return v.Operator == op
	})
}

// CountRows returns the number of memory rows field contributes to the op memory.
func (r *Registry) CountRows(field string, op verification.Operator) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.values[field]; !ok {
		return 0
	}
	return lo.SumBy(r.matching(field, op), func(v verification.Value) int { return v.MemoryUsage() })
}

// CountPerOperator returns the row count of every field for op, in field order.
func (r *Registry) CountPerOperator(op verification.Operator) []FieldCount {
	out := make([]FieldCount, 0, len(r.desc.Fields))
	for _, f := range r.desc.Fields {
		out = append(out, FieldCount{Field: f, Count: r.CountRows(f.Name, op)})
	}
	return out
}

// MaxRowCount returns the largest row count of a single field for op.
func (r *Registry) MaxRowCount(op verification.Operator) int {
	return lo.Max(lo.Map(r.CountPerOperator(op), func(fc FieldCount, _ int) int { return fc.Count }))
}

// OperatorInUse reports whether any value uses op.
func (r *Registry) OperatorInUse(op verification.Operator) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, fv := range r.values {
		if lo.SomeBy(fv.all(), func(v verification.Value) bool { return v.Operator == op }) {
			return true
		}
	}
	return false
}

// InUse reports whether the registry holds at least one value.
func (r *Registry) InUse() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, fv := range r.values {
		if len(fv.mandatory)+len(fv.optional) > 0 {
			return true
		}
	}
	return false
}

// LargestVerificationNumber returns the highest number of rows any single
// field holds for the same operator and part number, or current if larger.
func (r *Registry) LargestVerificationNumber(current int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	largest := current
	for _, f := range r.desc.Fields {
		type key struct {
			op   verification.Operator
			part int
		}
		var keys []key
		for _, v := range r.values[f.Name].all() {
			for _, row := range v.Encode() {
				keys = append(keys, key{v.Operator, row.Part})
			}
		}
		for _, n := range lo.CountValues(keys) {
			largest = max(largest, n)
		}
	}
	return largest
}

// Rows returns the ordered bit strings field contributes to the op memory.
func (r *Registry) Rows(field string, op verification.Operator) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.values[field]; !ok {
		return nil
	}
	var rows []verification.MemoryRow
	for _, v := range r.matching(field, op) {
		rows = append(rows, v.Encode()...)
	}
	return verification.GenerateRows(rows)
}

// MemoryRows returns every row of the registry for op, in field order.
func (r *Registry) MemoryRows(op verification.Operator) []string {
	var out []string
	for _, f := range r.desc.Fields {
		out = append(out, r.Rows(f.Name, op)...)
	}
	return out
}

// Snapshot returns the values of every non-empty field, mandatory first.
func (r *Registry) Snapshot() map[string][]verification.Value {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]verification.Value)
	for name, fv := range r.values {
		if all := fv.all(); len(all) > 0 {
			out[name] = all
		}
	}
	return out
}

// Restore replaces the registry content with snap. Every value is validated
// again; on error the registry is left unchanged.
func (r *Registry) Restore(snap map[string][]verification.Value) error {
	next := make(map[string]*fieldValues, len(r.desc.Fields))
	for _, f := range r.desc.Fields {
		next[f.Name] = &fieldValues{}
	}
	for name, values := range snap {
		f, err := r.Field(name)
		if err != nil {
			return err
		}
		for _, v := range values {
			checked, err := verification.New(v.Raw, f.Format, f.Limit, v.Operator, v.Level)
			if err != nil {
				return fmt.Errorf("%s %s: %w", r.desc.Type, f.Name, err)
			}
			next[f.Name].add(checked)
		}
	}
	r.mu.Lock()
	r.values = next
	r.mu.Unlock()
	return nil
}
