package app

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"reportanalyzer/internal/archive"
	"reportanalyzer/internal/config"
	"reportanalyzer/internal/store"
)

// OpenStore opens the store selected by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (store.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, eris.New("app: DATABASE_URL is required for the postgres store")
		}
		st, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "open postgres store")
		}
		log.Info("app: store ready", zap.String("driver", "postgres"))
		return st, nil
	case "sqlite":
		st, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, eris.Wrapf(err, "open sqlite store %s", cfg.SQLitePath)
		}
		log.Info("app: store ready", zap.String("driver", "sqlite"), zap.String("path", cfg.SQLitePath))
		return st, nil
	case "memory", "":
		log.Warn("app: using in-memory store, data is lost on restart")
		return store.NewMemory(), nil
	default:
		return nil, eris.Errorf("app: unknown store driver %q", cfg.Driver)
	}
}

// OpenArchive returns the S3 archive when configured, nil otherwise.
func OpenArchive(cfg config.ArchiveConfig, log *zap.Logger) (*archive.Archive, error) {
	if !cfg.CanUseS3() {
		if cfg.Enabled {
			log.Warn("app: archive endpoint set but credentials or bucket missing, archive disabled")
		}
		return nil, nil
	}
	s3, err := archive.NewS3Store(archive.S3Config{
		Endpoint:  cfg.Endpoint,
		Region:    cfg.Region,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Bucket:    cfg.Bucket,
		UseSSL:    cfg.UseSSL,
	})
	if err != nil {
		return nil, eris.Wrap(err, "init report archive")
	}
	log.Info("app: report archive ready", zap.String("bucket", cfg.Bucket), zap.String("endpoint", cfg.Endpoint))
	return archive.New(s3), nil
}
