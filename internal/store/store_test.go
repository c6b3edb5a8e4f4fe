package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"usbverifier/internal/config"
	"usbverifier/internal/registry"
	"usbverifier/pkg/verification"
)

func TestHydratePersistRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.StoreConfig{Driver: config.StoreSQLite, Path: filepath.Join(t.TempDir(), "rules.db")}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	set := registry.NewSet()
	dev, err := set.Lookup("device")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if _, err := dev.Add("idVendor", "1d6b", verification.Equals, verification.Mandatory); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := Persist(ctx, s, set); err != nil {
		t.Fatalf("persist: %v", err)
	}

	fresh := registry.NewSet()
	if err := Hydrate(ctx, s, fresh); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	got, _ := fresh.Lookup("Device")
	values, err := got.Values("idVendor")
	if err != nil || len(values) != 1 || values[0].Raw != "1d6b" || !fresh.OperatorInUse(verification.Equals) {
		t.Fatalf("hydrated set differs: %+v %v", values, err)
	}
}

func TestHydrateRejectsInvalidSnapshot(t *testing.T) {
	ctx := context.Background()
	s, _ := Open(ctx, config.StoreConfig{Driver: config.StoreMemory}, nil)
	bad := registry.Snapshot{"Device": {"idVendor": {{Raw: "XYZ", Format: verification.FormatHex}}}}
	if err := s.Save(ctx, bad); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := Hydrate(ctx, s, registry.NewSet()); err == nil {
		t.Fatalf("expected restore error")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), config.StoreConfig{Driver: "bolt"}, nil); !errors.Is(err, ErrUnsupportedDriver) {
		t.Fatalf("expected error")
	}
}
