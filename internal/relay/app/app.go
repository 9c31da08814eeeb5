// Package app wires the relay together: gRPC endpoint, hub and debug API.
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/clipsync/internal/cryptox"
	"github.com/dmitrijs2005/clipsync/internal/debugapi"
	"github.com/dmitrijs2005/clipsync/internal/logging"
	"github.com/dmitrijs2005/clipsync/internal/metrics"
	"github.com/dmitrijs2005/clipsync/internal/relay/config"
	"github.com/dmitrijs2005/clipsync/internal/relay/hub"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/clipsync/internal/relay/grpc"
)

type App struct {
	config *config.Config
	logger logging.Logger
	server *gs.GRPCServer
	hub    *hub.Hub
	debug  *debugapi.Service
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	cipher, err := cryptox.NewMessageCipher(c.Transfer.SharedSecret)
	if err != nil {
		return nil, err
	}

	server := gs.NewGRPCServer(c.EndpointAddrGRPC, logger, c.SecretKey)
	h := hub.New(c.Transfer, cipher, server, logger)
	server.SetHandler(h)

	app := &App{config: c, logger: logger, server: server, hub: h}

	if c.DebugAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics.MustRegister(reg, h)
		app.debug = debugapi.New(c.DebugAddr, h, nil, reg, logger,
			debugapi.WithBlobs(h, c.Transfer.MaxBlobSize))
	}

	return app, nil
}

// Run serves until ctx is done or a termination signal arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting relay...")
	if app.config.SecretKey == "" {
		app.logger.Warn(ctx, "node authentication disabled, nodes name themselves")
	}
	if app.config.Transfer.SharedSecret == "" {
		app.logger.Warn(ctx, "message encryption disabled")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.server.Run(ctx) })
	g.Go(func() error { return app.hub.Run(ctx) })
	if app.debug != nil {
		g.Go(func() error { return app.debug.Run(ctx) })
	}

	err := g.Wait()
	app.logger.Info(context.WithoutCancel(ctx), "Relay stopped")
	return err
}
