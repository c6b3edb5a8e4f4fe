package registry

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"usbverifier/pkg/verification"
)

func mustLookup(t *testing.T, s *Set, name string) *Registry {
	t.Helper()
	r, err := s.Lookup(name)
	if err != nil {
		t.Fatalf("lookup %s: %v", name, err)
	}
	return r
}

func mustAdd(t *testing.T, r *Registry, field, raw string, op verification.Operator, level verification.Level) {
	t.Helper()
	if _, err := r.Add(field, raw, op, level); err != nil {
		t.Fatalf("add %s=%s: %v", field, raw, err)
	}
}

func raws(values []verification.Value) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.Raw
	}
	return out
}

func TestValuesMandatoryFirst(t *testing.T) {
	dev := mustLookup(t, NewSet(), "device")
	mustAdd(t, dev, "bLength", "1", verification.Equals, verification.Optional)
	mustAdd(t, dev, "bLength", "2", verification.Equals, verification.Mandatory)
	mustAdd(t, dev, "bLength", "3", verification.Greater, verification.Optional)
	mustAdd(t, dev, "blength", "4", verification.Less, verification.Mandatory)

	values, err := dev.Values("bLength")
	if err != nil {
		t.Fatalf("values: %v", err)
	}
	if diff := cmp.Diff([]string{"2", "4", "1", "3"}, raws(values)); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestAddValidation(t *testing.T) {
	dev := mustLookup(t, NewSet(), "Device")
	if _, err := dev.Add("bLength", "256", verification.Equals, verification.Mandatory); !errors.Is(err, verification.ErrInvalidValue) {
		t.Fatalf("expected invalid value, got %v", err)
	}
	if _, err := dev.Add("idVendor", "12345", verification.Equals, verification.Mandatory); !errors.Is(err, verification.ErrInvalidValue) {
		t.Fatalf("expected invalid hex length, got %v", err)
	}
	if _, err := dev.Add("bFoo", "1", verification.Equals, verification.Mandatory); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected unknown field, got %v", err)
	}
	if dev.InUse() {
		t.Fatalf("failed adds must not mutate the registry")
	}
}

func TestRemove(t *testing.T) {
	dev := mustLookup(t, NewSet(), "device")
	mustAdd(t, dev, "idVendor", "04b4", verification.Equals, verification.Mandatory)
	mustAdd(t, dev, "idVendor", "04B4", verification.NotEquals, verification.Optional)
	mustAdd(t, dev, "idVendor", "1234", verification.Equals, verification.Mandatory)

	n, err := dev.Remove("idVendor", "04b4", verification.NotEquals)
	if err != nil || n != 1 {
		t.Fatalf("remove with operator: n=%d err=%v", n, err)
	}
	n, err = dev.Remove("idVendor", "04B4")
	if err != nil || n != 1 {
		t.Fatalf("remove any operator: n=%d err=%v", n, err)
	}
	values, _ := dev.Values("idVendor")
	if diff := cmp.Diff([]string{"1234"}, raws(values)); diff != "" {
		t.Fatalf("remaining mismatch (-want +got):\n%s", diff)
	}
	if n, _ := dev.Remove("idVendor", "ffff"); n != 0 {
		t.Fatalf("removing a missing value should report 0, got %d", n)
	}
}

func TestCountRowsAndUsage(t *testing.T) {
	dev := mustLookup(t, NewSet(), "device")
	mustAdd(t, dev, "iProduct", "ABCDE", verification.StartsWith, verification.Mandatory)
	mustAdd(t, dev, "iProduct", "XY", verification.StartsWith, verification.Optional)
	mustAdd(t, dev, "iProduct", "Z", verification.Contains, verification.Optional)
	mustAdd(t, dev, "bLength", "18", verification.Equals, verification.Mandatory)

	if got := dev.CountRows("iProduct", verification.StartsWith); got != 3 {
		t.Fatalf("startswith rows: %d", got)
	}
	if got := dev.CountRows("iProduct", verification.Equals); got != 0 {
		t.Fatalf("equals rows: %d", got)
	}
	if got := dev.MaxRowCount(verification.StartsWith); got != 3 {
		t.Fatalf("max row count: %d", got)
	}
	if !dev.OperatorInUse(verification.Contains) || dev.OperatorInUse(verification.Less) {
		t.Fatalf("operator in use mismatch")
	}
	rows := dev.Rows("iProduct", verification.StartsWith)
	if len(rows) != 3 {
		t.Fatalf("rows: %v", rows)
	}
	// part 0 mandatory, part 0 optional, then part 1
	if rows[0][38] != '1' || rows[1][38] != '0' || rows[2][:8] != "00000001" {
		t.Fatalf("row order mismatch: %v", rows)
	}
}

func TestLargestVerificationNumber(t *testing.T) {
	s := NewSet()
	if got := s.LargestVerificationNumber(); got != 1 {
		t.Fatalf("empty set: %d", got)
	}
	dev := mustLookup(t, s, "device")
	mustAdd(t, dev, "bLength", "1", verification.Equals, verification.Mandatory)
	mustAdd(t, dev, "bLength", "2", verification.Equals, verification.Optional)
	mustAdd(t, dev, "bLength", "3", verification.Greater, verification.Optional)
	str := mustLookup(t, s, "string")
	mustAdd(t, str, "iProduct", "abcdef", verification.Contains, verification.Mandatory)
	mustAdd(t, str, "iProduct", "abc", verification.Contains, verification.Mandatory)
	mustAdd(t, str, "iProduct", "xyz", verification.Contains, verification.Optional)

	// iProduct holds three CONTAINS rows at part 0
	if got := s.LargestVerificationNumber(); got != 3 {
		t.Fatalf("largest verification number: %d", got)
	}
}

func TestStatus(t *testing.T) {
	s := NewSet()
	mustAdd(t, mustLookup(t, s, "endpoint"), "bInterval", "1", verification.Equals, verification.Mandatory)
	mustAdd(t, mustLookup(t, s, "device"), "bLength", "18", verification.Equals, verification.Mandatory)

	got := map[string]Status{}
	for _, st := range s.Status() {
		got[st.Descriptor.Type] = st.Status
	}
	want := map[string]Status{
		TypeDevice:          StatusEnable,
		TypeConfiguration:   StatusReadOnly,
		TypeInterface:       StatusReadOnly,
		TypeHID:             StatusDisable,
		TypeEndpoint:        StatusEnable,
		TypeDeviceQualifier: StatusDisable,
		TypeOtherSpeed:      StatusDisable,
		TypeString:          StatusDisable,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshotRestore(t *testing.T) {
	s := NewSet()
	mustAdd(t, mustLookup(t, s, "hid"), "bcdHID", "0111", verification.Equals, verification.Mandatory)
	mustAdd(t, mustLookup(t, s, "hid"), "bcdHID", "0110", verification.Equals, verification.Optional)
	mustAdd(t, mustLookup(t, s, "config"), "iConfiguration", "Default", verification.StartsWith, verification.Mandatory)

	snap := s.Snapshot()
	other := NewSet()
	if err := other.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if diff := cmp.Diff(snap, other.Snapshot()); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	bad := Snapshot{TypeHID: {"bcdHID": {{Raw: "zz", Format: verification.FormatHex}}}}
	if err := other.Restore(bad); !errors.Is(err, verification.ErrInvalidValue) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if other.Len() != 3 {
		t.Fatalf("failed restore must leave the set unchanged, have %d values", other.Len())
	}
}

func TestLookupAliases(t *testing.T) {
	s := NewSet()
	for name, want := range map[string]string{
		"Device":                      TypeDevice,
		"config":                      TypeConfiguration,
		"Interface Descriptor":        TypeInterface,
		"device_qualifier":            TypeDeviceQualifier,
		"OTHERSPEED":                  TypeOtherSpeed,
		"Device Qualifier Descriptor": TypeDeviceQualifier,
	} {
		if got := mustLookup(t, s, name).Descriptor().Type; got != want {
			t.Errorf("%s: got %s want %s", name, got, want)
		}
	}
	if _, err := s.Lookup("bos"); !errors.Is(err, ErrUnknownDescriptor) {
		t.Fatalf("expected unknown descriptor, got %v", err)
	}
}

func TestFieldKey(t *testing.T) {
	cases := map[string]string{
		"bLength":              "BLENGTH",
		"iManufacturerbLength": "IMANUFACTURER_BLENGTH",
		"iInterfacebLength":    "IINTERFACE_BLENGTH",
		"bMaxPacketSize0":      "BMAXPACKETSIZE0",
	}
	for name, want := range cases {
		if got := (Field{Name: name}).Key(); got != want {
			t.Errorf("%s: got %s want %s", name, got, want)
		}
	}
}

func TestCatalogWalkOrder(t *testing.T) {
	var got []string
	for _, d := range Catalog() {
		got = append(got, d.Type)
	}
	want := []string{TypeDevice, TypeConfiguration, TypeInterface, TypeHID, TypeEndpoint, TypeDeviceQualifier, TypeOtherSpeed, TypeString}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("walk order (-want +got):\n%s", diff)
	}
}
