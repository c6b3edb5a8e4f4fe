package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"usbverifier/internal/config"
	"usbverifier/internal/patcher"
	"usbverifier/pkg/verification"
)

// ROMFileName returns the name of the ROM clone for op, e.g.
// EqualsDualPortROM.vhd for the template DualPortROM.vhd.
func ROMFileName(op verification.Operator, template string) string {
	return op.ReadableName() + filepath.Base(template)
}

// stageHDL copies the HDL tree into dst, clones the ROM template once per
// operator with its memory rows, then patches the wrapper constants.
func (e *Exporter) stageHDL(ctx context.Context, dst string, src config.SourcesConfig, res *Result, rows [][]string, log *zap.Logger) ([]string, error) {
	if err := copyTree(src.HDLDir, dst); err != nil {
		return nil, fmt.Errorf("copy HDL sources: %w", err)
	}
	template := filepath.Join(dst, src.ROMTemplate)
	if _, err := os.Stat(template); err != nil {
		return nil, fmt.Errorf("ROM template: %w", err)
	}

	var mu sync.Mutex
	var missing []string
	g, gctx := errgroup.WithContext(ctx)
	for i, cfg := range res.Configs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			clone := filepath.Join(dst, ROMFileName(cfg.Operator, src.ROMTemplate))
			if err := copyFile(template, clone); err != nil {
				return fmt.Errorf("clone ROM for %s: %w", cfg.Operator.ReadableName(), err)
			}
			err := patcher.PatchMemory(clone, rows[i], src.Markers)
			if errors.Is(err, patcher.ErrMarkerNotFound) {
				mu.Lock()
				missing = append(missing, filepath.Base(clone))
				mu.Unlock()
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, name := range missing {
		log.Warn("ROM markers not found, memory left unpatched", zap.String("file", name))
	}
	if err := os.Remove(template); err != nil {
		return nil, fmt.Errorf("remove ROM template: %w", err)
	}

	subs := patcher.BuildSubstitutions(res.Configs, res.Summary)
	report, err := patcher.PatchWrapper(filepath.Join(dst, src.Wrapper), subs, log)
	if err != nil {
		return nil, fmt.Errorf("patch wrapper: %w", err)
	}
	e.metrics.RecordUnmatched(len(report.Unmatched))
	return report.Unmatched, nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case d.Type().IsRegular():
			return copyFile(path, target)
		default:
			return nil
		}
	})
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	_, err = io.Copy(out, in)
	return err
}
