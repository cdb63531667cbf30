package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/glyphworks/kbforge/config"
	"github.com/glyphworks/kbforge/llm"
	"github.com/glyphworks/kbforge/metrics"
	"github.com/glyphworks/kbforge/pipeline"
	"github.com/glyphworks/kbforge/store/memstore"
	"github.com/glyphworks/kbforge/store/natsstore"
)

// app bundles the wired collaborators for one command invocation.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	runner *pipeline.Runner
	meter  *metrics.Set

	nc         *nats.Conn
	metricsSrv *http.Server
}

// newApp loads configuration and wires the pipeline runner, stores and
// metrics endpoint. dryRun forces memory-only mode regardless of the
// configured store.
func newApp(ctx context.Context, flags *rootFlags, dryRun bool) (*app, error) {
	logger := setupLogger(flags.logLevel)

	cfg, err := config.NewLoader(logger).Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, meter: metrics.New()}

	client := llm.NewClient(cfg.BuildRegistry(),
		llm.WithLogger(logger),
		llm.WithRetryConfig(cfg.RetryPolicy()),
		llm.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout()}),
	)

	stores, err := a.buildStores(ctx, dryRun)
	if err != nil {
		return nil, err
	}

	a.runner = pipeline.New(client,
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(a.meter),
		pipeline.WithStores(stores),
	)

	a.startMetricsServer()
	return a, nil
}

// buildStores selects the persistence backend: none for dry runs, NATS
// JetStream when configured, the in-memory store otherwise.
func (a *app) buildStores(ctx context.Context, dryRun bool) (pipeline.Stores, error) {
	if dryRun || a.cfg.Pipeline.DryRun {
		a.logger.Info("dry run, results stay in memory")
		return pipeline.Stores{}, nil
	}

	if url := a.cfg.Store.NATSURL; url != "" {
		st, err := a.connectNATS(ctx, url)
		if err != nil {
			return pipeline.Stores{}, err
		}
		return pipeline.Stores{
			Articles: st,
			Reports:  st,
			Versions: st,
			Assets:   st,
			Reviews:  st,
		}, nil
	}

	mem := memstore.New()
	a.logger.Debug("using in-memory store")
	return pipeline.Stores{
		Articles: mem,
		Reports:  mem,
		Versions: mem,
		Assets:   mem,
		Reviews:  mem,
	}, nil
}

func (a *app) connectNATS(ctx context.Context, url string) (*natsstore.Store, error) {
	a.logger.Info("connecting to NATS", "url", url)

	nc, err := nats.Connect(url,
		nats.Name(appName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, wrapNATSError(err, url)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	st, err := natsstore.New(ctx, js, natsstore.WithReviewSubject(a.cfg.Store.ReviewSubject))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("initialize NATS store: %w", err)
	}

	a.nc = nc
	a.logger.Info("connected to NATS", "url", url)
	return st, nil
}

// wrapNATSError provides guidance when the NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

To start NATS:
  docker compose up -d nats

Or leave store.nats_url empty to run with the in-memory store.`, err, url)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}

// startMetricsServer exposes /metrics when an address is configured.
func (a *app) startMetricsServer() {
	addr := a.cfg.Metrics.Addr
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.meter.Handler())
	a.metricsSrv = &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	a.logger.Info("metrics listening", "addr", addr)
}

// close releases the app's connections.
func (a *app) close() {
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.metricsSrv.Shutdown(ctx)
	}
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			a.logger.Warn("NATS drain failed", "error", err)
		}
	}
}
