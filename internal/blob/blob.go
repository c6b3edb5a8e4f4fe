// Package blob is the single entry point to the artifact store backends.
// Callers depend on Store and never import internal/infra/blob directly.
package blob

import (
	"context"
	"fmt"

	"usbverifier/internal/blob/core"
	"usbverifier/internal/config"
	fsstore "usbverifier/internal/infra/blob/fs"
	memstore "usbverifier/internal/infra/blob/memory"
	s3store "usbverifier/internal/infra/blob/s3"
)

type (
	Store      = core.Store
	Info       = core.Info
	PutOptions = core.PutOptions
	Driver     = core.Driver
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrExists     = core.ErrExists
	ErrNotFound   = core.ErrNotFound
	ErrInvalidKey = core.ErrInvalidKey
)

// Open constructs the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch Driver(cfg.Driver) {
	case DriverFilesystem, "":
		return fsstore.New(cfg.FSRoot)
	case DriverMemory:
		return memstore.New(), nil
	case DriverS3:
		return s3store.New(ctx, s3store.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			UsePathStyle:    cfg.S3.UsePathStyle,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unsupported blob driver %q", cfg.Driver)
	}
}
