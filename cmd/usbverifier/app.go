package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"usbverifier/internal/blob"
	"usbverifier/internal/config"
	"usbverifier/internal/export"
	"usbverifier/internal/logging"
	"usbverifier/internal/metrics"
	"usbverifier/internal/registry"
	"usbverifier/internal/store"
)

// app carries the state shared by every command of one invocation.
type app struct {
	configPath string
	verbose    bool
	storeFlag  string

	cfg    *config.Config
	logger *zap.Logger
	store  store.Store
	set    *registry.Set
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "usbverifier",
		Short: "Configure the USB descriptor verifier",
		Long: `usbverifier keeps the verification rules of the USB descriptor verifier
and exports the comparator memory images, the CSV reports and the patched HDL
sources of the FPGA design.

Rules are persisted in the configured store between runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "usbverifier.yaml", "configuration file")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&a.storeFlag, "store", "", "override the rule store driver (memory, sqlite, postgres)")

	root.AddCommand(
		newAddCmd(a),
		newRemoveCmd(a),
		newImportCmd(a),
		newExportCmd(a),
		newSummaryCmd(a),
		newStatusCmd(a),
		newShellCmd(a),
		newWatchCmd(a),
	)
	return root
}

// open loads the configuration, builds the logger and hydrates the rule set
// from the store.
func (a *app) open(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.storeFlag != "" {
		cfg.Store.Driver = a.storeFlag
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.Logging, a.verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger

	s, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	a.store = s
	a.set = registry.NewSet()
	if err := store.Hydrate(ctx, s, a.set); err != nil {
		return err
	}
	logger.Debug("rules loaded", zap.String("store", cfg.Store.Driver), zap.Int("values", a.set.Len()))
	return nil
}

func (a *app) close() error {
	var err error
	if a.store != nil {
		err = multierr.Append(err, a.store.Close())
		a.store = nil
	}
	if a.logger != nil {
		// stderr does not support fsync on every platform
		_ = a.logger.Sync()
	}
	return err
}

// persist saves the rule set after a mutating command.
func (a *app) persist(ctx context.Context) error {
	if err := store.Persist(ctx, a.store, a.set); err != nil {
		return err
	}
	a.logger.Debug("rules saved", zap.Int("values", a.set.Len()))
	return nil
}

// exporter builds an exporter wired to the configured metrics and blob store.
// The returned recorder is nil when no metrics textfile is configured.
func (a *app) exporter(ctx context.Context) (*export.Exporter, *metrics.Recorder, error) {
	var opts []export.Option
	var rec *metrics.Recorder
	if a.cfg.Metrics.Textfile != "" {
		rec = metrics.NewRecorder()
		opts = append(opts, export.WithMetrics(rec))
	}
	if a.cfg.Export.Publish {
		bs, err := blob.Open(ctx, a.cfg.Blob)
		if err != nil {
			return nil, nil, fmt.Errorf("open artifact store: %w", err)
		}
		opts = append(opts, export.WithPublisher(blob.NewPublisher(bs, a.cfg.Blob.Prefix, a.logger)))
	}
	return export.New(a.logger, opts...), rec, nil
}

// runExport writes the current rule set to dir, or the configured export
// directory when dir is empty.
func (a *app) runExport(ctx context.Context, dir string) (export.Result, error) {
	if dir == "" {
		dir = a.cfg.Export.Dir
	}
	exp, rec, err := a.exporter(ctx)
	if err != nil {
		return export.Result{}, err
	}
	res, err := exp.Export(ctx, a.set, export.Options{
		Dir:          dir,
		BackupLayout: a.cfg.Export.BackupLayout,
		Sources:      a.cfg.Sources,
	})
	if werr := rec.WriteTextfile(a.cfg.Metrics.Textfile); werr != nil {
		a.logger.Warn("metrics not written", zap.Error(werr))
	}
	return res, err
}
