package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/boreal-data/neige-cli/internal/fetcher"
	"github.com/boreal-data/neige-cli/internal/geobase"
	"github.com/boreal-data/neige-cli/internal/observability"
	"github.com/boreal-data/neige-cli/internal/resolver"
	"github.com/boreal-data/neige-cli/internal/store"
	"github.com/boreal-data/neige-cli/pkg/planif"
)

// appEnv holds the initialized store, geobase, resolver, and feed client
// shared by the commands.
type appEnv struct {
	Store    store.Store
	Geobase  *geobase.Store
	Resolver *resolver.Resolver
	Planif   planif.Client
	Metrics  *observability.Metrics
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv sets up the store, the geobase cache, the resolver, and the
// Planif-Neige client. Callers should defer env.Close(). withMetrics is
// set only by long-running commands so one-shot invocations do not
// register collectors.
func initEnv(ctx context.Context, withMetrics bool) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var metrics *observability.Metrics
	if withMetrics {
		metrics = observability.NewMetrics()
	}

	httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    cfg.Planif.UserAgent,
		Timeout:      cfg.Geobase.Timeout(),
		MaxRetries:   3,
		RateLimiters: fetcher.DefaultRateLimiters(),
	})

	gb := geobase.New(geobase.Options{
		Fetcher: httpFetcher,
		Persist: st,
		URL:     cfg.Geobase.URL,
		TTL:     cfg.Geobase.TTL(),
		City:    cfg.Geobase.City,
		Metrics: metrics,
	})

	pc := planif.NewClient(
		planif.WithDataURL(cfg.Planif.DataURL),
		planif.WithMetadataURL(cfg.Planif.MetadataURL),
		planif.WithUserAgent(cfg.Planif.UserAgent),
	)

	return &appEnv{
		Store:    st,
		Geobase:  gb,
		Resolver: resolver.New(gb),
		Planif:   pc,
		Metrics:  metrics,
	}, nil
}

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "open postgres store")
		}
		zap.L().Debug("using postgres store")
		return st, nil
	case "sqlite", "":
		st, err := store.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "open sqlite store")
		}
		zap.L().Debug("using sqlite store", zap.String("path", cfg.Store.DatabaseURL))
		return st, nil
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
