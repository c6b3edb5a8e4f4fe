// Package export writes one complete verifier configuration: the CSV
// reports, the per-operator memory initialization files and the patched HDL
// sources. Output is staged next to the target directory and moved into
// place only once every file was written.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"usbverifier/internal/allocator"
	"usbverifier/internal/blob"
	"usbverifier/internal/config"
	"usbverifier/internal/metrics"
	"usbverifier/internal/registry"
	"usbverifier/pkg/verification"
)

// File and directory names inside an export.
const (
	ValuesFile       = "USBVerificationValues.csv"
	MemoryConfigFile = "OperatorMemoryConfigurations.csv"
	SummaryFile      = "OperatorsSummary.csv"
	StatusFile       = "DescriptorStatus.csv"
	MemoryDir        = "MemoryExport"
	HDLDir           = "HDL_Sources"

	memoryFileSuffix = "MemoryFile.coe"
)

// DefaultBackupLayout formats the modification time appended to a replaced
// export directory.
const DefaultBackupLayout = "2006-01-02-15:04:05"

// ErrEmptyTarget is returned when no export directory is given.
var ErrEmptyTarget = errors.New("export directory not set")

// Options selects where an export goes and which HDL sources it patches.
type Options struct {
	Dir          string
	BackupLayout string
	Sources      config.SourcesConfig
	// RunID identifies the export; a random UUID is used when empty.
	RunID string
}

// Result describes a finished export.
type Result struct {
	RunID string
	Dir   string
	// BackupDir is where the previous export was moved, if there was one.
	BackupDir string
	Configs   []allocator.Config
	Summary   allocator.Summary
	Status    []registry.DescriptorStatus
	// Unmatched lists wrapper constants the HDL template does not define.
	Unmatched []string
	Published []blob.Info
}

// Exporter renders registry sets to disk.
type Exporter struct {
	logger    *zap.Logger
	metrics   *metrics.Recorder
	publisher *blob.Publisher
}

// Option customizes an Exporter.
type Option func(*Exporter)

// WithMetrics records layout and timing of every export on rec.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(e *Exporter) { e.metrics = rec }
}

// WithPublisher uploads every finished export through p.
func WithPublisher(p *blob.Publisher) Option {
	return func(e *Exporter) { e.publisher = p }
}

// New returns an exporter. A nil logger discards output.
func New(logger *zap.Logger, opts ...Option) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Exporter{logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export writes set to opts.Dir. When publishing fails the local export is
// kept and the returned Result is still complete apart from Published.
func (e *Exporter) Export(ctx context.Context, set *registry.Set, opts Options) (res Result, err error) {
	start := time.Now()
	defer func() { e.metrics.Observe(ctx, "export", err == nil, time.Since(start)) }()

	if strings.TrimSpace(opts.Dir) == "" {
		return Result{}, ErrEmptyTarget
	}
	if opts.BackupLayout == "" {
		opts.BackupLayout = DefaultBackupLayout
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	target := filepath.Clean(opts.Dir)
	log := e.logger.With(zap.String("run_id", opts.RunID), zap.String("dir", target))

	res = Result{
		RunID:   opts.RunID,
		Dir:     target,
		Configs: allocator.AllocateAll(set),
		Summary: allocator.Summarize(set),
		Status:  set.Status(),
	}

	staging, err := e.stage(ctx, set, opts, &res, log)
	if err != nil {
		return Result{}, err
	}
	if res.BackupDir, err = commit(staging, target, opts.BackupLayout); err != nil {
		return Result{}, multierr.Append(err, os.RemoveAll(staging))
	}
	e.metrics.RecordLayout(res.Configs, res.Summary)
	log.Info("export written",
		zap.Int("operators_in_use", res.Summary.InUse()),
		zap.Int("watchdog_limit", res.Summary.WatchdogLimit),
		zap.String("backup", res.BackupDir))

	if e.publisher != nil {
		infos, err := e.publisher.Publish(ctx, res.RunID, target)
		if err != nil {
			return res, fmt.Errorf("publish export: %w", err)
		}
		res.Published = infos
	}
	return res, nil
}

// stage writes the whole export into a fresh sibling of the target and
// returns its path. The staging directory is removed on failure.
func (e *Exporter) stage(ctx context.Context, set *registry.Set, opts Options, res *Result, log *zap.Logger) (dir string, err error) {
	parent := filepath.Dir(res.Dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", fmt.Errorf("create export parent: %w", err)
	}
	dir, err = os.MkdirTemp(parent, "."+filepath.Base(res.Dir)+".staging-*")
	if err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, os.RemoveAll(dir))
		}
	}()

	reports := []struct {
		name    string
		records [][]string
	}{
		{ValuesFile, valuesRecords(set)},
		{MemoryConfigFile, memoryConfigRecords(res.Configs)},
		{SummaryFile, summaryRecords(res.Summary)},
		{StatusFile, statusRecords(res.Status)},
	}
	for _, r := range reports {
		if err := writeCSV(filepath.Join(dir, r.name), r.records); err != nil {
			return dir, err
		}
	}

	rows := make([][]string, len(res.Configs))
	for i, cfg := range res.Configs {
		rows[i] = allocator.MemoryRows(cfg.Operator, set)
	}
	if err := writeMemoryFiles(ctx, filepath.Join(dir, MemoryDir), res.Configs, rows); err != nil {
		return dir, err
	}

	if opts.Sources.HDLDir == "" {
		log.Warn("no HDL source directory configured, skipping HDL sources")
		return dir, nil
	}
	unmatched, err := e.stageHDL(ctx, filepath.Join(dir, HDLDir), opts.Sources, res, rows, log)
	if err != nil {
		return dir, err
	}
	res.Unmatched = unmatched
	return dir, nil
}

func writeCSV(path string, records [][]string) error {
	var buf bytes.Buffer
	if err := writeRecords(&buf, records); err != nil {
		return fmt.Errorf("render %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// MemoryFileName returns the .coe file name of op.
func MemoryFileName(op verification.Operator) string {
	return op.ReadableName() + memoryFileSuffix
}

// writeMemoryFiles renders one initialization file per operator in parallel.
func writeMemoryFiles(ctx context.Context, dir string, configs []allocator.Config, rows [][]string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", MemoryDir, err)
	}
	g, ctx := errgroup.WithContext(ctx)
	for i, cfg := range configs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := verification.WriteMemoryFile(&buf, cfg.Operator, rows[i]); err != nil {
				return fmt.Errorf("render %s memory: %w", cfg.Operator.ReadableName(), err)
			}
			path := filepath.Join(dir, MemoryFileName(cfg.Operator))
			if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", filepath.Base(path), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// commit moves staging to target. An existing target is first renamed to
// target_<modtime>; the returned path is that backup, or "".
func commit(staging, target, layout string) (string, error) {
	var backup string
	info, err := os.Stat(target)
	switch {
	case err == nil:
		backup = target + "_" + info.ModTime().Format(layout)
		if _, err := os.Stat(backup); err == nil {
			return "", fmt.Errorf("backup %s already exists", backup)
		}
		if err := os.Rename(target, backup); err != nil {
			return "", fmt.Errorf("move previous export aside: %w", err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("stat export dir: %w", err)
	}
	if err := os.Rename(staging, target); err != nil {
		if backup != "" {
			err = multierr.Append(err, os.Rename(backup, target))
		}
		return "", fmt.Errorf("move export into place: %w", err)
	}
	return backup, nil
}
