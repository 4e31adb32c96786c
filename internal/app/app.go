// Package app wires configuration into the repositories and the key
// service shared by the daemon and the dk CLI.
package app

import (
	"database/sql"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/atinyakov/oroio/internal/config"
	"github.com/atinyakov/oroio/internal/db"
	"github.com/atinyakov/oroio/internal/envelope"
	"github.com/atinyakov/oroio/internal/repository"
	"github.com/atinyakov/oroio/internal/service"
	"github.com/atinyakov/oroio/internal/usage"
)

// App holds the wired components.
type App struct {
	Options *config.Options
	Keys    *service.KeyService
	Store   *repository.FileKeyRepository
	Current *repository.FileCurrentRepository
	Cache   *repository.FileUsageCache
	// DB is nil unless a DSN is configured.
	DB *sql.DB
}

// New builds the application from opts. The data directory is created if
// missing; a DSN enables usage history.
func New(opts *config.Options, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(opts.DataDir, repository.DirPermissions); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	codec, err := envelope.NewCodec(opts.Codec, envelope.DefaultParams(), opts.OpenSSL)
	if err != nil {
		return nil, err
	}

	a := &App{
		Options: opts,
		Store:   repository.NewFileKeyRepository(opts.DataDir, codec),
		Current: repository.NewFileCurrentRepository(opts.DataDir),
		Cache:   repository.NewFileUsageCache(opts.DataDir),
	}

	fetcher := usage.NewFetcher(
		usage.WithURL(opts.UsageURL),
		usage.WithTimeout(opts.FetchTimeout),
		usage.WithWorkers(opts.FetchWorkers),
		usage.WithLogger(log),
	)

	var svcOpts []service.Option
	if opts.DatabaseDSN != "" {
		a.DB, err = db.InitPostgres(opts.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		svcOpts = append(svcOpts, service.WithHistory(repository.NewPostgresHistoryRepository(a.DB)))
	}

	a.Keys = service.NewKeyService(a.Store, a.Current, a.Cache, fetcher, log, svcOpts...)
	return a, nil
}

// Close releases the database connection, if any.
func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
