// Package verification encodes USB descriptor verification rules into the
// 39-bit rows loaded into the comparator lookup memories.
package verification

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidValue    = errors.New("invalid verification value")
	ErrUnknownFormat   = errors.New("unknown value format")
	ErrUnknownOperator = errors.New("unknown verification operator")
	ErrUnknownLevel    = errors.New("unknown verification level")
)

const (
	// WatchdogCyclesPerVerification is the comparator cost of one row, in clock cycles.
	WatchdogCyclesPerVerification = 18
	// MaxHexDigits is the number of nibbles the data field can hold.
	MaxHexDigits = DataBits / 4
	// MaxNumber is the largest value the data field can hold.
	MaxNumber = 1<<DataBits - 1
	// ChunkSize is the number of characters packed into one STRING row.
	ChunkSize = 3
)

// Value is one verification rule attached to a descriptor field.
type Value struct {
	Raw      string   `json:"value" yaml:"value"`
	Format   Format   `json:"format" yaml:"format"`
	Operator Operator `json:"operator" yaml:"operator"`
	Level    Level    `json:"level" yaml:"level"`
}

// New validates raw against format and limit and returns the rule.
// limit is the numeric ceiling for NUMBER, the digit count for HEX and the
// character count for STRING.
func New(raw string, format Format, limit int, op Operator, level Level) (Value, error) {
	if err := Validate(raw, format, limit); err != nil {
		return Value{}, err
	}
	if !op.valid() {
		return Value{}, fmt.Errorf("%w: %d", ErrUnknownOperator, int(op))
	}
	if level != Mandatory && level != Optional {
		return Value{}, fmt.Errorf("%w: %d", ErrUnknownLevel, int(level))
	}
	return Value{Raw: raw, Format: format, Operator: op, Level: level}, nil
}

// Validate checks raw against the format rules and the field limit.
func Validate(raw string, format Format, limit int) error {
	if raw == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidValue)
	}
	switch format {
	case FormatNumber:
		if !allOf(raw, isDigit) {
			return fmt.Errorf("%w: %q is not a decimal number", ErrInvalidValue, raw)
		}
		ceiling := min(limit, MaxNumber)
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || n > uint64(ceiling) {
			return fmt.Errorf("%w: wrong value %s: must be from 0 to %d", ErrInvalidValue, raw, ceiling)
		}
	case FormatHex:
		if !allOf(raw, isHexDigit) {
			return fmt.Errorf("%w: %q is not a hexadecimal value", ErrInvalidValue, raw)
		}
		ceiling := min(limit, MaxHexDigits)
		if len(raw) > ceiling {
			return fmt.Errorf("%w: wrong value %s: must be %d hex digits at most", ErrInvalidValue, raw, ceiling)
		}
	case FormatString:
		if len(raw) > limit {
			return fmt.Errorf("%w: wrong value %q: must be %d characters at most", ErrInvalidValue, raw, limit)
		}
		for i := 0; i < len(raw); i++ {
			if raw[i] > 0x7f {
				return fmt.Errorf("%w: %q contains non-ASCII characters", ErrInvalidValue, raw)
			}
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownFormat, int(format))
	}
	return nil
}

// MemoryUsage returns the number of rows Encode produces for v.
func (v Value) MemoryUsage() int {
	if v.Format == FormatString {
		return (len(v.Raw) + ChunkSize - 1) / ChunkSize
	}
	return 1
}

// Matches reports whether raw designates the same value as v.
func (v Value) Matches(raw string) bool {
	if v.Format == FormatHex {
		return strings.EqualFold(v.Raw, raw)
	}
	return v.Raw == raw
}

func (v Value) String() string {
	return fmt.Sprintf("%s %s (%s)", v.Operator.DisplayName(), v.Raw, v.Level)
}

func allOf(s string, pred func(byte) bool) bool {
	for i := 0; i < len(s); i++ {
		if !pred(s[i]) {
			return false
		}
	}
	return true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
