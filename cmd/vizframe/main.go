// Command vizframe runs the embeddable visualization frame in a terminal
// panel: it fetches the configured chart document, renders it, and keeps the
// chart synchronized with host pushes for as long as it is open.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/embedviz/vizframe/config"
	"github.com/embedviz/vizframe/internal/observability"
	"github.com/embedviz/vizframe/internal/session"
	"github.com/embedviz/vizframe/internal/surface/term"
	"github.com/embedviz/vizframe/lib/telemetry"
)

const (
	defaultConfigPath        = "config/vizframe.yaml"
	frameLoggerPrefix        = "vizframe "
	telemetryShutdownTimeout = 5 * time.Second
)

type frameFlags struct {
	configPath string
	dataURL    string
	origin     string
	logPath    string
}

func main() {
	flags := parseFlags()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(os.Stderr, frameLoggerPrefix, log.LstdFlags)

	cfg, loadedFromFile, err := config.LoadOrDefault(ctx, flags.configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if !loadedFromFile {
		logger.Printf("configuration file not found, using defaults")
	}
	cfg = applyFlagOverrides(cfg, flags)

	if flags.logPath != "" {
		file, err := os.OpenFile(filepath.Clean(flags.logPath), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			logger.Fatalf("open log file: %v", err)
		}
		defer func() { _ = file.Close() }()
		observability.SetLogger(observability.NewStdLogger(
			log.New(file, frameLoggerPrefix, log.LstdFlags|log.Lmicroseconds),
			cfg.Environment == config.EnvDev))
	}

	_, telemetryShutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatalf("initialize telemetry: %v", err)
	}

	var program *tea.Program
	engine := term.NewEngine(func(panel string) {
		program.Send(panelMsg{content: panel})
	})
	sess := session.New(cfg.Frame, engine, session.WithLogger(observability.Log()))

	program = tea.NewProgram(newModel(ctx, sess), tea.WithAltScreen())
	finalModel, runErr := program.Run()

	sess.Close()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	if err := telemetryShutdown(shutdownCtx); err != nil {
		logger.Printf("telemetry shutdown: %v", err)
	}
	shutdownCancel()

	if runErr != nil {
		logger.Fatalf("terminal program: %v", runErr)
	}
	if m, ok := finalModel.(*model); ok && m.startErr != nil {
		logger.Fatalf("start frame: %v", m.startErr)
	}
}

func parseFlags() frameFlags {
	var flags frameFlags
	flag.StringVar(&flags.configPath, "config", "", fmt.Sprintf("Path to configuration file (default: %s)", defaultConfigPath))
	flag.StringVar(&flags.dataURL, "data-url", "", "Chart document URL to load at startup")
	flag.StringVar(&flags.origin, "origin", "", "Host origin for the subscription bridge")
	flag.StringVar(&flags.logPath, "log", "", "Append frame diagnostics to this file")
	flag.Parse()
	if flags.configPath == "" {
		flags.configPath = filepath.Clean(defaultConfigPath)
	}
	return flags
}

func applyFlagOverrides(cfg config.Settings, flags frameFlags) config.Settings {
	opts := make([]config.Option, 0, 2)
	if flags.dataURL != "" {
		opts = append(opts, config.WithDataURL(flags.dataURL))
	}
	if flags.origin != "" {
		opts = append(opts, config.WithOrigin(flags.origin))
	}
	if len(opts) == 0 {
		return cfg
	}
	return config.Apply(cfg, opts...)
}
