package verification

import (
	"fmt"
	"strings"
)

// Format identifies how a raw value is validated and packed into memory rows.
type Format int

const (
	FormatNumber Format = iota
	FormatHex
	FormatString
)

var formatNames = [...]string{"NUMBER", "HEX", "STRING"}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return fmt.Sprintf("Format(%d)", int(f))
	}
	return formatNames[f]
}

// ParseFormat resolves a format name (case-insensitive).
func ParseFormat(s string) (Format, error) {
	for i, name := range formatNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return Format(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// MarshalText implements encoding.TextMarshaler.
func (f Format) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Format) UnmarshalText(b []byte) error {
	v, err := ParseFormat(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Operator is the comparison the hardware comparator applies to a value.
// Declaration order is the order operators are allocated and exported in.
type Operator int

const (
	Equals Operator = iota
	NotEquals
	Greater
	GreaterEquals
	Less
	LessEquals
	StartsWith
	EndsWith
	Contains
	NotContains
)

type operatorInfo struct {
	name     string
	readable string
	hdl      string
	aliases  []string
}

var operatorTable = [...]operatorInfo{
	Equals:        {"EQUALS", "Equals", "EQUALS", []string{"eq", "==", "="}},
	NotEquals:     {"NOT_EQUALS", "NotEquals", "NOT_EQUALS", []string{"neq", "!="}},
	Greater:       {"GREATER", "Greater", "GREATER", []string{"gt", ">"}},
	GreaterEquals: {"GREATER_EQUALS", "GreaterEquals", "GREATER_EQUALS", []string{"greater equals", "get", "≥", ">="}},
	Less:          {"LESS", "Less", "LESS", []string{"lt", "<"}},
	LessEquals:    {"LESS_EQUALS", "LessEquals", "LESS_EQUALS", []string{"less equals", "let", "≤", "<="}},
	StartsWith:    {"STARTSWITH", "StartsWith", "STARTS_WITH", []string{"sw"}},
	EndsWith:      {"ENDSWITH", "EndsWith", "ENDS_WITH", []string{"ew"}},
	Contains:      {"CONTAINS", "Contains", "CONTAINS", []string{"c"}},
	NotContains:   {"NOT_CONTAINS", "NotContains", "NOT_CONTAINS", []string{"not contains", "nc"}},
}

// Operators returns every operator in allocation order.
func Operators() []Operator {
	ops := make([]Operator, len(operatorTable))
	for i := range operatorTable {
		ops[i] = Operator(i)
	}
	return ops
}

func (o Operator) valid() bool { return o >= 0 && int(o) < len(operatorTable) }

// String returns the enumeration name, e.g. NOT_EQUALS.
func (o Operator) String() string {
	if !o.valid() {
		return fmt.Sprintf("Operator(%d)", int(o))
	}
	return operatorTable[o].name
}

// ReadableName returns the camel-case name used in file names, e.g. NotEquals.
func (o Operator) ReadableName() string {
	if !o.valid() {
		return o.String()
	}
	return operatorTable[o].readable
}

// HDLName returns the spelling used by the wrapper enable constants, e.g. STARTS_WITH.
func (o Operator) HDLName() string {
	if !o.valid() {
		return o.String()
	}
	return operatorTable[o].hdl
}

// DisplayName returns the capitalised enumeration name, e.g. Not_equals.
func (o Operator) DisplayName() string {
	name := strings.ToLower(o.String())
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// Aliases returns every accepted spelling, readable name first.
func (o Operator) Aliases() []string {
	if !o.valid() {
		return nil
	}
	info := operatorTable[o]
	return append([]string{info.readable}, info.aliases...)
}

// ParseOperator resolves any operator spelling (case-insensitive).
func ParseOperator(s string) (Operator, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for i, info := range operatorTable {
		if want == strings.ToLower(info.name) || want == strings.ToLower(info.readable) {
			return Operator(i), nil
		}
		for _, alias := range info.aliases {
			if want == alias {
				return Operator(i), nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOperator, s)
}

// MarshalText implements encoding.TextMarshaler.
func (o Operator) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Operator) UnmarshalText(b []byte) error {
	v, err := ParseOperator(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// Level is the verification priority of a value.
type Level int

const (
	Mandatory Level = iota
	Optional
)

var levelAliases = [...][]string{
	Mandatory: {"1", "mandatory", "mand", "and"},
	Optional:  {"0", "optional", "op", "or"},
}

func (l Level) String() string {
	switch l {
	case Mandatory:
		return "MANDATORY"
	case Optional:
		return "OPTIONAL"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// Bit returns the memory row flag: 1 for mandatory, 0 for optional.
func (l Level) Bit() byte {
	if l == Mandatory {
		return '1'
	}
	return '0'
}

// ParseLevel resolves a level keyword (case-insensitive).
func ParseLevel(s string) (Level, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for i, aliases := range levelAliases {
		for _, alias := range aliases {
			if want == alias {
				return Level(i), nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
}

// IsLevel reports whether s is a level keyword.
func IsLevel(s string) bool {
	_, err := ParseLevel(s)
	return err == nil
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(b []byte) error {
	v, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}
