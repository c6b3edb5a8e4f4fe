package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"usbverifier/internal/registry"
	"usbverifier/internal/ruleset"
)

const defaultDebounce = 300 * time.Millisecond

func newWatchCmd(a *app) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch <rules-file> [directory]",
		Short: "Re-import a rule file and export whenever it changes",
		Long: `Imports the rule file on top of the stored rules and exports the result,
then repeats every time the file is written, until interrupted.

The stored rules are not modified.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dir string
			if len(args) == 2 {
				dir = args[1]
			}
			return a.watch(cmd.Context(), cmd.OutOrStdout(), args[0], dir, debounce)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", defaultDebounce, "quiet period before a change is processed")
	return cmd
}

// watch exports once, then again after every debounced change of path.
// The parent directory is watched so editors replacing the file are seen.
func (a *app) watch(ctx context.Context, out io.Writer, path, dir string, debounce time.Duration) error {
	path = filepath.Clean(path)
	base := a.set.Snapshot()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	a.rebuild(ctx, out, base, path, dir)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			a.logger.Debug("rule file changed", zap.String("file", path), zap.Stringer("op", ev.Op))
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("watch error", zap.Error(err))
		case <-timer.C:
			a.rebuild(ctx, out, base, path, dir)
		}
	}
}

// rebuild resets the set to base, imports path and exports. Failures are
// reported and the watch goes on.
func (a *app) rebuild(ctx context.Context, out io.Writer, base registry.Snapshot, path, dir string) {
	if err := a.set.Restore(base); err != nil {
		a.logger.Error("restore stored rules", zap.Error(err))
		return
	}
	if _, err := ruleset.ImportFile(a.set, path); err != nil {
		a.logger.Error("import failed", zap.Error(err))
		fmt.Fprintf(out, "import failed: %v\n", err)
		return
	}
	if err := a.export(ctx, out, dir, ""); err != nil {
		a.logger.Error("export failed", zap.Error(err))
		fmt.Fprintf(out, "export failed: %v\n", err)
	}
}
