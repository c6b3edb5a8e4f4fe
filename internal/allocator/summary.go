package allocator

import (
	"usbverifier/internal/registry"
	"usbverifier/pkg/verification"
)

// OperatorState is the enable flag of one operator comparator.
type OperatorState struct {
	Operator verification.Operator
	Enabled  bool
}

// Summary describes the comparators the verifier instantiates.
type Summary struct {
	Operators []OperatorState
	// LargestVerificationNumber is the largest same-operator, same-part row
	// count of any single field.
	LargestVerificationNumber int
	// WatchdogLimit bounds one verification pass, in clock cycles.
	WatchdogLimit int
}

// InUse returns the number of enabled operators.
func (s Summary) InUse() int {
	n := 0
	for _, st := range s.Operators {
		if st.Enabled {
			n++
		}
	}
	return n
}

// Enabled reports the enable flag of op.
func (s Summary) Enabled(op verification.Operator) bool {
	for _, st := range s.Operators {
		if st.Operator == op {
			return st.Enabled
		}
	}
	return false
}

// Summarize computes operator enables and the watchdog limit for set.
func Summarize(set *registry.Set) Summary {
	var s Summary
	for _, op := range verification.Operators() {
		s.Operators = append(s.Operators, OperatorState{Operator: op, Enabled: set.OperatorInUse(op)})
	}
	s.LargestVerificationNumber = set.LargestVerificationNumber()
	s.WatchdogLimit = s.LargestVerificationNumber * verification.WatchdogCyclesPerVerification
	return s
}
