package blob

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const publishConcurrency = 4

var contentTypes = map[string]string{
	".csv":  "text/csv",
	".coe":  "text/plain",
	".vhd":  "text/x-vhdl",
	".vhdl": "text/x-vhdl",
	".txt":  "text/plain",
	".yaml": "application/yaml",
}

// ContentType maps an artifact file name to the MIME type it is stored with.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Publisher uploads a finished export directory under <prefix>/<run-id>/.
type Publisher struct {
	store  Store
	prefix string
	logger *zap.Logger
}

// NewPublisher wraps store. A nil logger discards output.
func NewPublisher(store Store, prefix string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{store: store, prefix: strings.Trim(prefix, "/"), logger: logger}
}

// Key returns the object key of rel within run.
func (p *Publisher) Key(runID, rel string) string {
	return path.Join(p.prefix, runID, filepath.ToSlash(rel))
}

// Publish uploads every regular file below dir and returns the stored
// objects sorted by key. Objects of the same run are overwritten.
func (p *Publisher) Publish(ctx context.Context, runID, dir string) ([]Info, error) {
	if runID == "" {
		return nil, fmt.Errorf("publish %s: empty run id", dir)
	}
	var files []string
	err := filepath.WalkDir(dir, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan export %s: %w", dir, err)
	}

	var (
		mu    sync.Mutex
		infos = make([]Info, 0, len(files))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(publishConcurrency)
	for _, file := range files {
		g.Go(func() error {
			rel, err := filepath.Rel(dir, file)
			if err != nil {
				return err
			}
			info, err := p.upload(gctx, runID, rel, file)
			if err != nil {
				return err
			}
			mu.Lock()
			infos = append(infos, info)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slices.SortFunc(infos, func(a, b Info) int { return strings.Compare(a.Key, b.Key) })
	p.logger.Info("export published",
		zap.String("driver", string(p.store.Driver())),
		zap.String("run_id", runID),
		zap.Int("objects", len(infos)))
	return infos, nil
}

func (p *Publisher) upload(ctx context.Context, runID, rel, file string) (Info, error) {
	f, err := os.Open(file)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()
	key := p.Key(runID, rel)
	info, err := p.store.Put(ctx, key, f, PutOptions{
		ContentType: ContentType(rel),
		Metadata:    map[string]string{"run-id": runID, "path": filepath.ToSlash(rel)},
		Overwrite:   true,
	})
	if err != nil {
		return Info{}, fmt.Errorf("publish %s: %w", key, err)
	}
	p.logger.Debug("artifact stored", zap.String("key", key), zap.Int64("size", info.Size))
	return info, nil
}
