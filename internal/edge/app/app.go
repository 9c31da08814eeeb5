// Package app wires an edge node together: clipboard directory, engine,
// relay connection or shared store, and debug API.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/clipsync/internal/auth"
	"github.com/dmitrijs2005/clipsync/internal/cryptox"
	"github.com/dmitrijs2005/clipsync/internal/debugapi"
	"github.com/dmitrijs2005/clipsync/internal/edge/config"
	"github.com/dmitrijs2005/clipsync/internal/edge/engine"
	"github.com/dmitrijs2005/clipsync/internal/edge/filesource"
	"github.com/dmitrijs2005/clipsync/internal/logging"
	"github.com/dmitrijs2005/clipsync/internal/metrics"
	"github.com/dmitrijs2005/clipsync/internal/relay/pgstore"
	"github.com/dmitrijs2005/clipsync/internal/relay/s3store"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	eg "github.com/dmitrijs2005/clipsync/internal/edge/grpc"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	engine  *engine.Engine
	client  *eg.GRPCClient
	debug   *debugapi.Service
	closers []io.Closer
}

// NewApp connects to the configured backend. ctx bounds the setup only.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel).With("node", c.NodeID)

	cipher, err := cryptox.NewMessageCipher(c.Transfer.SharedSecret)
	if err != nil {
		return nil, err
	}

	src, err := filesource.New(c.DataDir)
	if err != nil {
		return nil, fmt.Errorf("clipboard directory: %w", err)
	}

	app := &App{config: c, logger: logger}
	deps := engine.Deps{Source: src, Presence: src, Logger: logger}

	switch c.Mode {
	case config.ModeRelay:
		token := c.NodeToken
		if token == "" && c.SecretKey != "" {
			token, err = auth.GenerateToken(c.NodeID, []byte(c.SecretKey), 0)
			if err != nil {
				return nil, fmt.Errorf("node token: %w", err)
			}
		}
		app.client = eg.NewGRPCClient(c.RelayAddr, c.NodeID, token, logger)
		deps.Transport = app.client

	case config.ModeS3:
		st, err := s3store.New(ctx, c.S3, cipher, logger)
		if err != nil {
			return nil, fmt.Errorf("s3 init error: %w", err)
		}
		if err := st.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("s3 bucket: %w", err)
		}
		deps.Store = st

	case config.ModePostgres:
		st, err := pgstore.Open(ctx, c.DatabaseDSN, cipher, logger)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		app.closers = append(app.closers, st)
		deps.Store = st

	default:
		return nil, fmt.Errorf("unknown mode %q", c.Mode)
	}

	app.engine, err = engine.New(c.Transfer, cipher, deps)
	if err != nil {
		return nil, multierror.Append(err, app.Close()).ErrorOrNil()
	}

	if c.DebugAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics.MustRegister(reg, app.engine)
		app.debug = debugapi.New(c.DebugAddr, app.engine, app.engine, reg, logger)
	}

	return app, nil
}

// Run joins the configured owners and syncs until ctx is done or a
// termination signal arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting edge node...", "mode", app.config.Mode, "owners", app.config.Owners)

	for _, owner := range app.config.Owners {
		// in relay mode the stream is not up yet; Connected announces the owner
		if err := app.engine.Join(ctx, owner); err != nil {
			app.logger.Debug(ctx, "owner join deferred", "owner", owner, "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.engine.Run(gctx) })
	if app.client != nil {
		g.Go(func() error { return app.client.Run(gctx, app.engine) })
	}
	if app.debug != nil {
		g.Go(func() error { return app.debug.Run(gctx) })
	}

	var result *multierror.Error
	if err := g.Wait(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := app.Close(); err != nil {
		result = multierror.Append(result, err)
	}

	app.logger.Info(context.WithoutCancel(ctx), "Edge node stopped")
	return result.ErrorOrNil()
}

// Close releases backend connections.
func (app *App) Close() error {
	var result *multierror.Error
	for _, c := range app.closers {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	app.closers = nil
	return result.ErrorOrNil()
}
