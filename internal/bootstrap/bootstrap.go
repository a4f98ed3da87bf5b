// Package bootstrap wires the migration runtime: source reader, target
// store, transform registry, checkpoint store and metrics.
package bootstrap

import (
	"context"
	"log/slog"

	"github.com/ugdata/mysql2mongo/internal/checkpoint"
	"github.com/ugdata/mysql2mongo/internal/conf"
	"github.com/ugdata/mysql2mongo/internal/errors"
	"github.com/ugdata/mysql2mongo/internal/logging"
	"github.com/ugdata/mysql2mongo/internal/mapping"
	"github.com/ugdata/mysql2mongo/internal/observability"
	"github.com/ugdata/mysql2mongo/internal/source"
	"github.com/ugdata/mysql2mongo/internal/target"
	"github.com/ugdata/mysql2mongo/internal/transform"
)

// Session holds the connected stores and shared components for one
// command invocation. Close releases both connections.
type Session struct {
	Settings    *conf.Settings
	Source      source.Reader
	Target      target.Store
	Registry    *transform.Registry
	Checkpoints *checkpoint.Store
	Mappings    mapping.Mappings
	Metrics     *observability.Metrics

	stopMetrics func(context.Context) error
	log         *slog.Logger
}

// Connect opens the source and target stores and assembles the shared
// components. On any failure the already opened connections are closed
// before the error is returned.
func Connect(ctx context.Context, settings *conf.Settings) (*Session, error) {
	log := logging.ForService("bootstrap")

	src := source.New(settings)
	if err := src.Open(); err != nil {
		return nil, errors.New(err).
			Component("bootstrap").
			Category(errors.CategoryConnection).
			Context("store", "source").
			Build()
	}

	tgt := target.New(settings)
	if err := tgt.Connect(ctx); err != nil {
		if closeErr := src.Close(); closeErr != nil {
			log.Error("failed to close source store", "error", closeErr)
		}
		return nil, errors.New(err).
			Component("bootstrap").
			Category(errors.CategoryConnection).
			Context("store", "target").
			Build()
	}

	checkpoints, err := checkpoint.NewStore(settings.Migration.CheckpointPath)
	if err != nil {
		closeStores(ctx, src, tgt, log)
		return nil, err
	}

	mappings, err := mapping.Load(settings.Verify.MappingPath)
	if err != nil {
		closeStores(ctx, src, tgt, log)
		return nil, errors.New(err).
			Component("bootstrap").
			Category(errors.CategoryConfiguration).
			Build()
	}

	session := &Session{
		Settings:    settings,
		Source:      src,
		Target:      tgt,
		Registry:    transform.NewRegistry(),
		Checkpoints: checkpoints,
		Mappings:    mappings,
		log:         log,
	}

	if settings.Metrics.Enabled {
		session.Metrics = observability.NewMetrics()
		session.stopMetrics = observability.StartEndpoint(session.Metrics, settings.Metrics.Listen, log)
	}

	return session, nil
}

// Close releases the session's connections. Errors are logged, not
// returned; teardown always runs to completion.
func (s *Session) Close(ctx context.Context) {
	if s.stopMetrics != nil {
		if err := s.stopMetrics(ctx); err != nil {
			s.log.Error("failed to stop metrics endpoint", "error", err)
		}
	}
	closeStores(ctx, s.Source, s.Target, s.log)
}

func closeStores(ctx context.Context, src source.Reader, tgt target.Store, log *slog.Logger) {
	if err := tgt.Close(ctx); err != nil {
		log.Error("failed to close target store", "error", err)
	}
	if err := src.Close(); err != nil {
		log.Error("failed to close source store", "error", err)
	}
}
