// Package allocator numbers the rows of every descriptor field inside the
// per-operator comparator memories.
package allocator

import (
	"math/bits"

	"usbverifier/internal/registry"
	"usbverifier/pkg/verification"
)

// DisabledIndex is written to the wrapper for fields without rows.
const DisabledIndex = 0

// Slot is the address range of one field inside an operator memory.
type Slot struct {
	Descriptor registry.Descriptor
	Field      registry.Field
	Enabled    bool
	// Index is the first row of the field, DisabledIndex when not enabled.
	Index int
	Count int
}

// Key returns the wrapper constant stem of the slot, e.g. DEVICE_BLENGTH.
func (s Slot) Key() string {
	return s.Descriptor.Prefix + "_" + s.Field.Key()
}

// Config is the address layout of one operator memory.
type Config struct {
	Operator verification.Operator
	Slots    []Slot
	// AddressWidth is the number of address bits needed to reach LastIndex.
	AddressWidth int
	// LastIndex is the last row used by an enabled field.
	LastIndex int
	// MaxIndex is the first row of the last enabled field.
	MaxIndex int
	// MaxCount is the largest row count of a single field.
	MaxCount int
	// Total is the number of rows in the memory.
	Total int
}

// Enabled reports whether the memory holds at least one row.
func (c Config) Enabled() bool { return c.Total > 0 }

// Allocate walks every field of every registry in set order and assigns the
// fields holding op rows consecutive index ranges.
func Allocate(op verification.Operator, set *registry.Set) Config {
	cfg := Config{Operator: op}
	index := 0
	for _, r := range set.Registries() {
		desc := r.Descriptor()
		for _, fc := range r.CountPerOperator(op) {
			slot := Slot{Descriptor: desc, Field: fc.Field, Count: fc.Count, Index: DisabledIndex}
			if fc.Count > 0 {
				slot.Enabled = true
				slot.Index = index
				cfg.LastIndex = index + fc.Count - 1
				cfg.MaxIndex = index
				cfg.MaxCount = max(cfg.MaxCount, fc.Count)
			}
			index += fc.Count
			cfg.Slots = append(cfg.Slots, slot)
		}
	}
	cfg.Total = index
	cfg.AddressWidth = AddressWidth(cfg.LastIndex)
	return cfg
}

// AllocateAll returns the layout of every operator, in operator order.
func AllocateAll(set *registry.Set) []Config {
	ops := verification.Operators()
	out := make([]Config, len(ops))
	for i, op := range ops {
		out[i] = Allocate(op, set)
	}
	return out
}

// AddressWidth returns the number of address bits needed to reach lastIndex:
// 1 when lastIndex <= 1, otherwise ceil(log2(lastIndex+1)).
func AddressWidth(lastIndex int) int {
	if lastIndex <= 1 {
		return 1
	}
	return bits.Len(uint(lastIndex))
}

// MemoryRows returns the ordered rows of the op memory, in the same field
// order as Allocate. No padding is applied.
func MemoryRows(op verification.Operator, set *registry.Set) []string {
	var rows []string
	for _, r := range set.Registries() {
		rows = append(rows, r.MemoryRows(op)...)
	}
	return rows
}
