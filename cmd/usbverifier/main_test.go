package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"usbverifier/internal/config"
	"usbverifier/testutil"
)

type env struct {
	dir    string
	config string
	export string
}

// newEnv writes a configuration using a sqlite store under a temp dir.
func newEnv(t *testing.T, mutate func(*config.Config)) env {
	t.Helper()
	dir := t.TempDir()
	e := env{dir: dir, config: filepath.Join(dir, "usbverifier.yaml"), export: filepath.Join(dir, "Export")}
	cfg := config.DefaultConfig()
	cfg.Export.Dir = e.export
	cfg.Store.Driver = config.StoreSQLite
	cfg.Store.Path = filepath.Join(dir, "rules.db")
	cfg.Logging.Level = "error"
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Save(e.config))
	return e
}

func (e env) run(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := cli(context.Background(), append([]string{"--config", e.config}, args...), strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestAddPersistsBetweenRuns(t *testing.T) {
	e := newEnv(t, nil)

	code, out, stderr := e.run(t, "", "add", "device", "idVendor", "eq", "046D", "or", "eq", "1D6B")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, out, "Added 2 value(s)")

	code, out, _ = e.run(t, "", "summary", "dev", "idvendor")
	require.Equal(t, 0, code)
	require.Contains(t, out, "046D")
	require.Contains(t, out, "1D6B")
	require.Contains(t, out, "OPTIONAL")

	code, out, _ = e.run(t, "", "remove", "device", "idVendor", "1d6b")
	require.Equal(t, 0, code)
	require.Contains(t, out, "Removed 1 value(s)")

	code, out, _ = e.run(t, "", "summary")
	require.Equal(t, 0, code)
	require.NotContains(t, out, "1D6B")
}

func TestInvalidCommandsFail(t *testing.T) {
	e := newEnv(t, nil)
	cases := [][]string{
		{"add", "device", "bLength", "is", "18"},
		{"add", "device", "bLength", "eq", "300"},
		{"add", "keyboard", "bLength", "eq", "1"},
		{"summary", "device", "bogus"},
		{"import", filepath.Join(e.dir, "missing.txt")},
	}
	for _, args := range cases {
		code, _, stderr := e.run(t, "", args...)
		require.Equal(t, 1, code, "args %v", args)
		require.Contains(t, stderr, "Error:", "args %v", args)
	}
	code, out, _ := e.run(t, "", "summary")
	require.Equal(t, 0, code)
	require.Contains(t, out, "Values")
	require.NotContains(t, out, "300")
}

func TestImportAndStatus(t *testing.T) {
	e := newEnv(t, nil)
	rules := filepath.Join(e.dir, "rules.txt")
	require.NoError(t, os.WriteFile(rules, []byte("# endpoint only\nadd endpoint bInterval let 10\n"), 0o644))

	code, out, stderr := e.run(t, "", "import", rules)
	require.Equal(t, 0, code, stderr)
	require.Contains(t, out, "1 command(s), 1 added")

	code, out, _ = e.run(t, "", "status")
	require.Equal(t, 0, code)
	for _, want := range []string{"Endpoint Descriptor", "ENABLE", "Device Descriptor", "READ-ONLY", "HID Descriptor", "DISABLE"} {
		require.Contains(t, out, want)
	}
}

func TestExportWritesArtifacts(t *testing.T) {
	hdl := testutil.WriteHDLTree(t)
	artifacts := filepath.Join(t.TempDir(), "artifacts")
	metricsFile := filepath.Join(t.TempDir(), "usbverifier.prom")
	e := newEnv(t, func(cfg *config.Config) {
		cfg.Sources.HDLDir = hdl
		cfg.Export.Publish = true
		cfg.Blob = config.BlobConfig{Driver: config.BlobFilesystem, FSRoot: artifacts, Prefix: "exports"}
		cfg.Metrics.Textfile = metricsFile
	})

	code, _, stderr := e.run(t, "", "add", "device", "bLength", "eq", "18")
	require.Equal(t, 0, code, stderr)

	rulesYAML := filepath.Join(e.dir, "rules.yaml")
	code, out, stderr := e.run(t, "", "export", "--rules-yaml", rulesYAML)
	require.Equal(t, 0, code, stderr)
	require.Contains(t, out, "Exported to "+e.export)
	require.Contains(t, out, "watchdog limit: 18 cycles")
	require.Contains(t, out, "Published")

	require.FileExists(t, filepath.Join(e.export, "OperatorsSummary.csv"))
	require.FileExists(t, filepath.Join(e.export, "MemoryExport", "EqualsMemoryFile.coe"))
	require.FileExists(t, filepath.Join(e.export, "HDL_Sources", "EqualsDualPortROM.vhd"))
	require.FileExists(t, rulesYAML)

	metrics, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	require.Contains(t, string(metrics), "usbverifier_watchdog_limit_cycles 18")

	published, err := filepath.Glob(filepath.Join(artifacts, "exports", "*", "OperatorsSummary.csv"))
	require.NoError(t, err)
	require.Len(t, published, 1)

	// the YAML document restores the same rules into a fresh store
	other := newEnv(t, nil)
	code, _, stderr = other.run(t, "", "import", rulesYAML)
	require.Equal(t, 0, code, stderr)
	code, out, _ = other.run(t, "", "summary", "device", "bLength")
	require.Equal(t, 0, code)
	require.Contains(t, out, "18")
}

func TestShellSession(t *testing.T) {
	e := newEnv(t, nil)
	target := filepath.Join(e.dir, "ShellExport")
	input := strings.Join([]string{
		"a device bLength eq 18",
		"bogus",
		"s device",
		"ops",
		"q",
		"y",
		target,
	}, "\n") + "\n"

	code, out, stderr := e.run(t, input, "shell")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, out, "Added 1 value(s)")
	require.Contains(t, out, `unknown command "bogus"`)
	require.Contains(t, out, "EQUALS")
	require.Contains(t, out, "Export them now?")
	require.Contains(t, out, "Exported to "+target)
	require.DirExists(t, filepath.Join(target, "MemoryExport"))
}

func TestShellQuitWithoutChanges(t *testing.T) {
	e := newEnv(t, nil)
	code, out, _ := e.run(t, "status\nquit\n", "shell")
	require.Equal(t, 0, code)
	require.NotContains(t, out, "Export them now?")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchReexportsOnChange(t *testing.T) {
	e := newEnv(t, nil)
	rules := filepath.Join(e.dir, "watched.txt")
	require.NoError(t, os.WriteFile(rules, []byte("add device bLength eq 18\n"), 0o644))
	target := filepath.Join(e.dir, "Watched")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var out syncBuffer
	done := make(chan int, 1)
	go func() {
		done <- cli(ctx, []string{"--config", e.config, "watch", "--debounce", "20ms", rules, target}, strings.NewReader(""), &out, &out)
	}()

	require.Eventually(t, func() bool {
		return strings.Count(out.String(), "Exported to") == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(rules, []byte("add device bLength eq 18\nadd device bNumConfigurations eq 1\n"), 0o644))
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Previous export moved to")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case code := <-done:
		require.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}

	// watching never writes the store
	code, summary, _ := e.run(t, "", "summary")
	require.Equal(t, 0, code)
	require.NotContains(t, summary, "bNumConfigurations")
}
