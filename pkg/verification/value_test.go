package verification

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		format Format
		limit  int
		ok     bool
	}{
		{"number in range", "255", FormatNumber, 255, true},
		{"number zero", "0", FormatNumber, 255, true},
		{"number too large", "256", FormatNumber, 255, false},
		{"number sign", "-1", FormatNumber, 255, false},
		{"number hex digits", "1f", FormatNumber, 255, false},
		{"number overflows data field", "16777216", FormatNumber, 1 << 30, false},
		{"hex mixed case", "aB", FormatHex, 2, true},
		{"hex too long", "123", FormatHex, 2, false},
		{"hex bad digit", "0g", FormatHex, 4, false},
		{"hex beyond data field", "1234567", FormatHex, 8, false},
		{"string at limit", "abc", FormatString, 3, true},
		{"string too long", "abcd", FormatString, 3, false},
		{"string non ascii", "é", FormatString, 10, false},
		{"empty", "", FormatString, 10, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.raw, tc.format, tc.limit)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatalf("expected validation error for %q", tc.raw)
				}
				if !errors.Is(err, ErrInvalidValue) {
					t.Fatalf("expected ErrInvalidValue, got %v", err)
				}
			}
		})
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New("1", Format(9), 10, Equals, Mandatory)
	if !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestMemoryUsageMatchesEncode(t *testing.T) {
	values := []Value{
		{Raw: "5", Format: FormatNumber, Operator: Equals},
		{Raw: "ff", Format: FormatHex, Operator: EndsWith},
		{Raw: "a", Format: FormatString, Operator: Contains},
		{Raw: "abc", Format: FormatString, Operator: Contains},
		{Raw: "abcd", Format: FormatString, Operator: EndsWith},
		{Raw: "abcdefghij", Format: FormatString, Operator: StartsWith},
	}
	for _, v := range values {
		if got, want := len(v.Encode()), v.MemoryUsage(); got != want {
			t.Errorf("%s: encode produced %d rows, memory usage %d", v.Raw, got, want)
		}
	}
}

func TestMatches(t *testing.T) {
	hex := Value{Raw: "aB", Format: FormatHex}
	if !hex.Matches("AB") {
		t.Fatalf("hex match should ignore case")
	}
	str := Value{Raw: "aB", Format: FormatString}
	if str.Matches("AB") {
		t.Fatalf("string match must be exact")
	}
}

func TestParseOperatorAliases(t *testing.T) {
	for _, op := range Operators() {
		for _, alias := range op.Aliases() {
			got, err := ParseOperator(alias)
			if err != nil {
				t.Fatalf("parse %q: %v", alias, err)
			}
			if got != op {
				t.Fatalf("parse %q: got %v want %v", alias, got, op)
			}
		}
	}
	if op, err := ParseOperator("NOT_CONTAINS"); err != nil || op != NotContains {
		t.Fatalf("enum name should parse, got %v %v", op, err)
	}
	if _, err := ParseOperator("between"); !errors.Is(err, ErrUnknownOperator) {
		t.Fatalf("expected ErrUnknownOperator, got %v", err)
	}
}

func TestOperatorNames(t *testing.T) {
	if got := NotEquals.DisplayName(); got != "Not_equals" {
		t.Fatalf("display name: %q", got)
	}
	if got := StartsWith.HDLName(); got != "STARTS_WITH" {
		t.Fatalf("hdl name: %q", got)
	}
	if got := GreaterEquals.ReadableName(); got != "GreaterEquals" {
		t.Fatalf("readable name: %q", got)
	}
	if len(Operators()) != 10 {
		t.Fatalf("expected 10 operators")
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"1", "Mandatory", "MAND", "and"} {
		if l, err := ParseLevel(s); err != nil || l != Mandatory {
			t.Fatalf("%q: got %v %v", s, l, err)
		}
	}
	for _, s := range []string{"0", "optional", "op", "OR"} {
		if l, err := ParseLevel(s); err != nil || l != Optional {
			t.Fatalf("%q: got %v %v", s, l, err)
		}
	}
	if IsLevel("maybe") {
		t.Fatalf("maybe is not a level")
	}
}
