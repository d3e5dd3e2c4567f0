// Command vizhost serves the dataset catalog and pushes chart updates to
// subscribed frames.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sourcegraph/conc"

	"github.com/embedviz/vizframe/config"
	"github.com/embedviz/vizframe/internal/host"
	"github.com/embedviz/vizframe/internal/jsmodule"
	"github.com/embedviz/vizframe/internal/observability"
	"github.com/embedviz/vizframe/internal/store"
	storememory "github.com/embedviz/vizframe/internal/store/memory"
	storepostgres "github.com/embedviz/vizframe/internal/store/postgres"
	"github.com/embedviz/vizframe/lib/telemetry"
)

const (
	defaultConfigPath        = "config/vizhost.yaml"
	hostLoggerPrefix         = "vizhost "
	readHeaderTimeout        = 5 * time.Second
	shutdownTimeout          = 30 * time.Second
	serverShutdownTimeout    = 5 * time.Second
	lifecycleShutdownTimeout = 10 * time.Second
	storeShutdownTimeout     = 5 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
)

func main() {
	cfgPath, addrFlag := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	logger := newHostLogger()

	cfg, loadedFromFile, err := config.LoadOrDefault(ctx, cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if !loadedFromFile {
		logger.Printf("configuration file not found, using defaults")
	}
	if addrFlag != "" {
		cfg = config.Apply(cfg, config.WithHostAddr(addrFlag))
	}
	logger.Printf("configuration initialised: env=%s, store=%s",
		cfg.Environment, cfg.Host.Store.Driver)

	observability.SetLogger(observability.NewStdLogger(logger, cfg.Environment == config.EnvDev))

	_, telemetryShutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatalf("initialize telemetry: %v", err)
	}
	if cfg.Telemetry.EnableMetrics && cfg.Telemetry.OTLPEndpoint != "" {
		logger.Printf("telemetry initialized: endpoint=%s, service=%s",
			cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
	} else {
		logger.Print("telemetry disabled")
	}

	catalog, pool, err := buildCatalog(ctx, cfg.Host.Store, logger)
	if err != nil {
		logger.Fatalf("initialise store: %v", err)
	}

	transforms, err := buildTransforms(ctx, cfg.Host.Modules, logger)
	if err != nil {
		logger.Fatalf("initialise transforms: %v", err)
	}

	svc := host.NewService(cfg.Host, catalog, transforms, host.WithLogger(observability.Log()))

	server := buildServer(cfg.Host.Addr, host.NewHandler(svc))

	var lifecycle conc.WaitGroup
	startServer(&lifecycle, logger, server)
	logger.Printf("host API listening on %s", cfg.Host.Addr)
	logger.Printf("advertised origin: %s", svc.Publisher().Origin())

	logger.Print("host started; awaiting shutdown signal")
	<-ctx.Done()
	logger.Print("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	shutdownStart := time.Now()
	performGracefulShutdown(shutdownCtx, logger, gracefulShutdownConfig{
		server:     server,
		mainCancel: cancel,
		lifecycle:  &lifecycle,
		service:    svc,
		pool:       pool,
		telemetry:  telemetryShutdown,
	})

	logger.Printf("shutdown completed in %v", time.Since(shutdownStart))
}

func parseFlags() (string, string) {
	cfgPath := flag.String("config", "", fmt.Sprintf("Path to configuration file (default: %s)", defaultConfigPath))
	addr := flag.String("addr", "", "Listen address override")
	flag.Parse()
	if *cfgPath == "" {
		return filepath.Clean(defaultConfigPath), *addr
	}
	return *cfgPath, *addr
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newHostLogger() *log.Logger {
	return log.New(os.Stdout, hostLoggerPrefix, log.LstdFlags|log.Lmicroseconds)
}

// buildCatalog selects the dataset store. The postgres driver applies
// pending migrations before the pool opens.
func buildCatalog(ctx context.Context, cfg config.StoreSettings, logger *log.Logger) (store.Catalog, *pgxpool.Pool, error) {
	switch cfg.Driver {
	case config.StorePostgres:
		if err := storepostgres.Migrate(ctx, cfg.DSN, logger); err != nil {
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("create pgx pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		logger.Print("postgres catalog ready")
		return storepostgres.New(pool), pool, nil
	default:
		logger.Print("using in-memory catalog")
		return storememory.New(), nil, nil
	}
}

func buildTransforms(ctx context.Context, cfg config.ModuleSettings, logger *log.Logger) (*host.Registry, error) {
	if cfg.Directory == "" {
		logger.Print("no module directory configured; built-in transforms only")
		return host.NewRegistry(nil), nil
	}
	loader, err := jsmodule.NewLoader(cfg.Directory)
	if err != nil {
		return nil, err
	}
	registry := host.NewRegistry(loader)
	if err := registry.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("load transform modules: %w", err)
	}
	logger.Printf("transform modules loaded: %d", len(registry.Modules()))
	return registry, nil
}

func buildServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:                         addr,
		Handler:                      handler,
		DisableGeneralOptionsHandler: false,
		TLSConfig:                    nil,
		ReadTimeout:                  0,
		WriteTimeout:                 0,
		IdleTimeout:                  0,
		MaxHeaderBytes:               0,
		TLSNextProto:                 nil,
		ConnState:                    nil,
		ErrorLog:                     nil,
		BaseContext:                  nil,
		ConnContext:                  nil,
		HTTP2:                        nil,
		Protocols:                    nil,
		ReadHeaderTimeout:            readHeaderTimeout,
	}
}

func startServer(lifecycle *conc.WaitGroup, logger *log.Logger, server *http.Server) {
	lifecycle.Go(func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("host server: %v", err)
		}
	})
}

type gracefulShutdownConfig struct {
	server     *http.Server
	mainCancel context.CancelFunc
	lifecycle  *conc.WaitGroup
	service    *host.Service
	pool       *pgxpool.Pool
	telemetry  func(context.Context) error
}

func performGracefulShutdown(ctx context.Context, logger *log.Logger, cfg gracefulShutdownConfig) {
	shutdownStep := func(name string, timeout time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		logger.Printf("shutdown: %s...", name)
		if err := fn(stepCtx); err != nil {
			logger.Printf("shutdown: %s failed: %v", name, err)
		} else {
			logger.Printf("shutdown: %s completed", name)
		}
	}

	if cfg.server != nil {
		shutdownStep("stopping host server", serverShutdownTimeout, func(stepCtx context.Context) error {
			return cfg.server.Shutdown(stepCtx)
		})
	}

	logger.Print("shutdown: cancelling main context")
	if cfg.mainCancel != nil {
		cfg.mainCancel()
	}

	if cfg.service != nil {
		shutdownStep("closing frame subscriptions", lifecycleShutdownTimeout, func(context.Context) error {
			cfg.service.Close()
			return nil
		})
	}

	if cfg.lifecycle != nil {
		shutdownStep("waiting for lifecycle goroutines", lifecycleShutdownTimeout, func(stepCtx context.Context) error {
			done := make(chan struct{})
			go func() {
				cfg.lifecycle.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-stepCtx.Done():
				return fmt.Errorf("timeout waiting for goroutines: %w", stepCtx.Err())
			}
		})
	}

	if cfg.pool != nil {
		shutdownStep("closing postgres pool", storeShutdownTimeout, func(stepCtx context.Context) error {
			done := make(chan struct{})
			go func() {
				cfg.pool.Close()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-stepCtx.Done():
				return stepCtx.Err()
			}
		})
	}

	if cfg.telemetry != nil {
		shutdownStep("shutting down telemetry", telemetryShutdownTimeout, func(stepCtx context.Context) error {
			return cfg.telemetry(stepCtx)
		})
	}
}
