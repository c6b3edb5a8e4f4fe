package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := DefaultConfig()
	if cfg.Export.Dir != def.Export.Dir || cfg.Store.Driver != def.Store.Driver {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if cfg.Sources.Markers.Start != "-- Start ROM Values" {
		t.Fatalf("default start marker %q", cfg.Sources.Markers.Start)
	}
}

func TestLoadFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usbverifier.yaml")
	content := `sources:
  hdl_dir: ../USB-Verifier/Sources
export:
  dir: out
  publish: true
store:
  driver: memory
blob:
  driver: s3
  s3:
    bucket: exports
    use_path_style: true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Sources.HDLDir != "../USB-Verifier/Sources" || cfg.Export.Dir != "out" || !cfg.Export.Publish {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Sources.Wrapper != "USBVerifierWrapper.vhd" {
		t.Fatalf("unset keys must keep defaults, wrapper=%q", cfg.Sources.Wrapper)
	}
	if cfg.Blob.S3.Bucket != "exports" || !cfg.Blob.S3.UsePathStyle {
		t.Fatalf("s3 config: %+v", cfg.Blob.S3)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("USBVERIFIER_EXPORT_DIR", "/tmp/env-export")
	t.Setenv("USBVERIFIER_STORE_DRIVER", "memory")
	t.Setenv("USBVERIFIER_EXPORT_PUBLISH", "true")
	t.Setenv("USBVERIFIER_BLOB_S3_PATH_STYLE", "not-a-bool")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Export.Dir != "/tmp/env-export" || cfg.Store.Driver != "memory" || !cfg.Export.Publish {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.Blob.S3.UsePathStyle {
		t.Fatalf("invalid bool must be ignored")
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"store driver": func(c *Config) { c.Store.Driver = "bolt" },
		"postgres dsn": func(c *Config) { c.Store.Driver = StorePostgres },
		"blob driver":  func(c *Config) { c.Blob.Driver = "gcs" },
		"empty marker": func(c *Config) { c.Sources.Markers.End = "" },
		"empty export": func(c *Config) { c.Export.Dir = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	cfg := DefaultConfig()
	cfg.Sources.HDLDir = "hdl"
	cfg.Metrics.Textfile = "metrics.prom"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Sources.HDLDir != "hdl" || loaded.Metrics.Textfile != "metrics.prom" {
		t.Fatalf("round trip lost values: %+v", loaded)
	}
}
