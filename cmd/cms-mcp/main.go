// Command cms-mcp serves the content operations over MCP (stdio) or the HTTP
// gateway, depending on MCP_TRANSPORT.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/do/v2"

	"github.com/ggoodman/cms-mcp-server/backend"
	"github.com/ggoodman/cms-mcp-server/backend/httpapi"
	"github.com/ggoodman/cms-mcp-server/gateway"
	"github.com/ggoodman/cms-mcp-server/handler"
	"github.com/ggoodman/cms-mcp-server/internal/config"
	"github.com/ggoodman/cms-mcp-server/internal/logctx"
	"github.com/ggoodman/cms-mcp-server/internal/telemetry"
	"github.com/ggoodman/cms-mcp-server/mcp"
	"github.com/ggoodman/cms-mcp-server/mcpservice"
	"github.com/ggoodman/cms-mcp-server/registry"
	"github.com/ggoodman/cms-mcp-server/router"
	"github.com/ggoodman/cms-mcp-server/session"
	"github.com/ggoodman/cms-mcp-server/stdio"
	"github.com/ggoodman/cms-mcp-server/tools"
)

const (
	serverShutdownTimeout = 15 * time.Second
	otelShutdownTimeout   = 5 * time.Second

	instructions = "Each tool manages one area of the content backend. Pick an action, " +
		"pass its arguments under args, and always include apiToken. " +
		"Call describe_action to see the argument schema of an action."
)

// version is set at build time.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Stdout belongs to the MCP transport.
	logger := logctx.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otel, err := telemetry.Init(ctx, cfg.Telemetry, os.Stderr)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
		defer cancel()
		if err := otel.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", slog.Any("error", err))
		}
	}()

	injector := do.New()
	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, logger)
	do.ProvideValue(injector, otel)
	registerDependencies(injector)

	switch cfg.Transport {
	case config.TransportHTTP:
		return serveHTTP(ctx, injector, cfg, logger)
	default:
		return serveStdio(ctx, injector, logger)
	}
}

func registerDependencies(injector *do.RootScope) {
	do.Provide(injector, func(i do.Injector) (*httpapi.Transport, error) {
		cfg := do.MustInvoke[config.Config](i)
		logger := do.MustInvoke[*slog.Logger](i)
		return httpapi.NewTransport(cfg.HTTPAPI(), httpapi.WithLogger(logger))
	})

	do.Provide(injector, func(i do.Injector) (*session.Manager, error) {
		transport := do.MustInvoke[*httpapi.Transport](i)
		logger := do.MustInvoke[*slog.Logger](i)
		return session.NewManager(func(token, environment string) (backend.Client, error) {
			return transport.Session(token, environment), nil
		}, session.WithLogger(logger)), nil
	})

	do.Provide(injector, func(_ do.Injector) (*registry.Registry, error) {
		return registry.New(), nil
	})

	do.Provide(injector, func(i do.Injector) (*router.Router, error) {
		cfg := do.MustInvoke[config.Config](i)
		logger := do.MustInvoke[*slog.Logger](i)
		otel := do.MustInvoke[*telemetry.Providers](i)
		reg := do.MustInvoke[*registry.Registry](i)
		sessions := do.MustInvoke[*session.Manager](i)

		r := router.New(reg,
			router.WithLogger(logger),
			router.WithTracerProvider(otel.Tracer),
			router.WithMeterProvider(otel.Meter),
		)
		deps := handler.Deps{Registry: reg, Sessions: sessions, Timeout: cfg.CMS.OperationTimeout}
		if err := tools.Register(r, deps); err != nil {
			return nil, fmt.Errorf("registering tools: %w", err)
		}
		return r, nil
	})

	do.Provide(injector, func(i do.Injector) (*mcpservice.ToolsContainer, error) {
		r := do.MustInvoke[*router.Router](i)
		logger := do.MustInvoke[*slog.Logger](i)
		return mcpservice.NewToolsContainer(r,
			mcpservice.WithDescriptions(tools.Descriptions),
			mcpservice.WithToolsLogger(logger),
		), nil
	})

	do.Provide(injector, func(i do.Injector) (*mcpservice.Server, error) {
		tc := do.MustInvoke[*mcpservice.ToolsContainer](i)
		return mcpservice.NewServer(tc,
			mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "cms-mcp-server", Version: version}),
			mcpservice.WithInstructions(instructions),
		), nil
	})

	do.Provide(injector, func(i do.Injector) (*gateway.Handler, error) {
		r := do.MustInvoke[*router.Router](i)
		transport := do.MustInvoke[*httpapi.Transport](i)
		logger := do.MustInvoke[*slog.Logger](i)
		return gateway.New(r, gateway.WithLogger(logger), gateway.WithHealthCheck(transport)), nil
	})
}

func serveStdio(ctx context.Context, injector *do.RootScope, logger *slog.Logger) error {
	srv, err := do.Invoke[*mcpservice.Server](injector)
	if err != nil {
		return fmt.Errorf("resolving MCP server: %w", err)
	}
	defer do.MustInvoke[*mcpservice.ToolsContainer](injector).Close()

	logger.Info("serving MCP over stdio", slog.String("version", version))
	h := stdio.NewHandler(srv, stdio.WithLogger(logger))
	if err := h.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func serveHTTP(ctx context.Context, injector *do.RootScope, cfg config.Config, logger *slog.Logger) error {
	h, err := do.Invoke[*gateway.Handler](injector)
	if err != nil {
		return fmt.Errorf("resolving gateway: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP gateway", slog.String("addr", srv.Addr), slog.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}
	<-serverErr

	logger.Info("shutdown complete")
	return nil
}
