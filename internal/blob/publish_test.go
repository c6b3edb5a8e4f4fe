package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"usbverifier/internal/config"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestPublishUploadsTree(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, config.BlobConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	dir := writeTree(t, map[string]string{
		"OperatorsSummary.csv":               "Operators,Status\n",
		"MemoryExport/EqualsMemoryFile.coe":  "memory_initialization_radix=2;",
		"HDL_Sources/EqualsDualPortROM.vhd":  "entity rom",
		"HDL_Sources/USBVerifierWrapper.vhd": "entity wrapper",
	})

	pub := NewPublisher(store, "/exports/", nil)
	infos, err := pub.Publish(ctx, "run-7", dir)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	var keys []string
	types := map[string]string{}
	for _, info := range infos {
		keys = append(keys, info.Key)
		types[info.Key] = info.ContentType
	}
	want := []string{
		"exports/run-7/HDL_Sources/EqualsDualPortROM.vhd",
		"exports/run-7/HDL_Sources/USBVerifierWrapper.vhd",
		"exports/run-7/MemoryExport/EqualsMemoryFile.coe",
		"exports/run-7/OperatorsSummary.csv",
	}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
	if types["exports/run-7/OperatorsSummary.csv"] != "text/csv" || types["exports/run-7/HDL_Sources/EqualsDualPortROM.vhd"] != "text/x-vhdl" {
		t.Fatalf("content types %v", types)
	}

	info, rc, err := store.Get(ctx, "exports/run-7/MemoryExport/EqualsMemoryFile.coe")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "memory_initialization_radix=2;" || info.Metadata["run-id"] != "run-7" || info.Metadata["path"] != "MemoryExport/EqualsMemoryFile.coe" {
		t.Fatalf("unexpected object %q %+v", b, info)
	}

	// republishing the same run replaces objects
	if _, err := pub.Publish(ctx, "run-7", dir); err != nil {
		t.Fatalf("republish: %v", err)
	}
}

func TestPublishErrors(t *testing.T) {
	ctx := context.Background()
	store, _ := Open(ctx, config.BlobConfig{Driver: "memory"})
	pub := NewPublisher(store, "", nil)
	if _, err := pub.Publish(ctx, "", t.TempDir()); err == nil {
		t.Fatalf("expected empty run id error")
	}
	if _, err := pub.Publish(ctx, "r", filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatalf("expected missing dir error")
	}
	if got := pub.Key("r", "a/b.csv"); got != "r/a/b.csv" {
		t.Fatalf("key %q", got)
	}
}

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()
	fsStore, err := Open(ctx, config.BlobConfig{Driver: "fs", FSRoot: t.TempDir()})
	if err != nil || fsStore.Driver() != DriverFilesystem {
		t.Fatalf("fs open: %v", err)
	}
	if _, err := Open(ctx, config.BlobConfig{Driver: "s3"}); err == nil {
		t.Fatalf("s3 without bucket must fail")
	}
	if _, err := Open(ctx, config.BlobConfig{Driver: "gcs"}); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestContentType(t *testing.T) {
	for name, want := range map[string]string{
		"a.CSV": "text/csv",
		"b.coe": "text/plain",
		"c.vhd": "text/x-vhdl",
		"d.bin": "application/octet-stream",
		"rules": "application/octet-stream",
	} {
		if got := ContentType(name); got != want {
			t.Errorf("%s: got %q want %q", name, got, want)
		}
	}
}
