package storage

import (
	"context"
	"fmt"

	appcfg "github.com/jask/despacho/internal/config"
)

// FromConfig builds the storage selected by exports.driver.
func FromConfig(ctx context.Context, cfg appcfg.ExportsConfig) (Storage, error) {
	switch cfg.Driver {
	case "", "local":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("exports.dir is required for local storage")
		}
		return NewLocal(cfg.Dir), nil

	case "s3":
		if cfg.S3.Region == "" || cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("S3 config missing: exports.s3.region and exports.s3.bucket required")
		}
		s, err := NewS3(ctx, S3Config{
			Region:        cfg.S3.Region,
			Bucket:        cfg.S3.Bucket,
			Prefix:        cfg.S3.Prefix,
			PublicBaseURL: cfg.S3.PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown exports.driver: %s", cfg.Driver)
	}
}
