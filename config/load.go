package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/embedviz/vizframe/errs"
)

// Load reads the YAML configuration at path, layering it over environment
// defaults, then normalises and validates the result.
func Load(ctx context.Context, path string) (Settings, error) {
	if err := ctx.Err(); err != nil {
		return Settings{}, err
	}
	data, err := openConfigFile(path)
	if err != nil {
		return Settings{}, err
	}
	cfg := FromEnv()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Settings{}, errs.New("config", errs.CodeDecode,
			errs.WithMessage(fmt.Sprintf("parse %s", filepath.Base(path))),
			errs.WithCause(err))
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to environment defaults when
// path is empty or the file does not exist. The second return reports whether
// a file contributed to the result.
func LoadOrDefault(ctx context.Context, path string) (Settings, bool, error) {
	if strings.TrimSpace(path) == "" {
		cfg := FromEnv()
		cfg.normalise()
		if err := cfg.Validate(); err != nil {
			return Settings{}, false, err
		}
		return cfg, false, nil
	}
	cfg, err := Load(ctx, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fallback := FromEnv()
			fallback.normalise()
			if vErr := fallback.Validate(); vErr != nil {
				return Settings{}, false, vErr
			}
			return fallback, false, nil
		}
		return Settings{}, false, err
	}
	return cfg, true, nil
}

func openConfigFile(path string) ([]byte, error) {
	clean := filepath.Clean(path)
	f, err := os.Open(clean) // #nosec G304 -- path supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return data, nil
}

func (s *Settings) normalise() {
	s.Environment = Environment(strings.ToLower(strings.TrimSpace(string(s.Environment))))
	s.Frame.DataURL = strings.TrimSpace(s.Frame.DataURL)
	s.Frame.Origin = strings.TrimSpace(s.Frame.Origin)
	s.Host.Addr = strings.TrimSpace(s.Host.Addr)
	s.Host.AdvertisedOrigin = strings.TrimSpace(s.Host.AdvertisedOrigin)
	s.Host.Store.Driver = StoreDriver(strings.ToLower(strings.TrimSpace(string(s.Host.Store.Driver))))
	s.Host.Store.DSN = strings.TrimSpace(s.Host.Store.DSN)
	s.Host.Modules.Directory = strings.TrimSpace(s.Host.Modules.Directory)
	s.Telemetry.OTLPEndpoint = strings.TrimSpace(s.Telemetry.OTLPEndpoint)
	s.Telemetry.ServiceName = strings.TrimSpace(s.Telemetry.ServiceName)
	if s.Host.Push.FanoutWorkers <= 0 {
		s.Host.Push.FanoutWorkers = Default().Host.Push.FanoutWorkers
	}
	if s.Frame.Padding.Top < 0 {
		s.Frame.Padding.Top = 0
	}
	if s.Frame.Padding.Right < 0 {
		s.Frame.Padding.Right = 0
	}
	if s.Frame.Padding.Bottom < 0 {
		s.Frame.Padding.Bottom = 0
	}
	if s.Frame.Padding.Left < 0 {
		s.Frame.Padding.Left = 0
	}
}

// Validate checks the configuration tree for unusable values.
func (s Settings) Validate() error {
	switch s.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return errs.New("config", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("unknown environment %q", s.Environment)),
			errs.WithRemediation("use one of dev, staging, prod"))
	}
	if s.Frame.FetchTimeout <= 0 {
		return errs.New("config", errs.CodeInvalid,
			errs.WithMessage("frame.fetchTimeout must be positive"))
	}
	if s.Frame.HandshakeTimeout <= 0 {
		return errs.New("config", errs.CodeInvalid,
			errs.WithMessage("frame.handshakeTimeout must be positive"))
	}
	if s.Host.Addr == "" {
		return errs.New("config", errs.CodeInvalid,
			errs.WithMessage("host.addr must not be empty"))
	}
	if s.Host.AdvertisedOrigin == "" {
		return errs.New("config", errs.CodeInvalid,
			errs.WithMessage("host.advertisedOrigin must not be empty"))
	}
	if s.Host.Push.Rate <= 0 {
		return errs.New("config", errs.CodeInvalid,
			errs.WithMessage("host.push.rate must be positive"))
	}
	if s.Host.Push.Burst <= 0 {
		return errs.New("config", errs.CodeInvalid,
			errs.WithMessage("host.push.burst must be positive"))
	}
	switch s.Host.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if s.Host.Store.DSN == "" {
			return errs.New("config", errs.CodeInvalid,
				errs.WithMessage("host.store.dsn required for postgres driver"),
				errs.WithRemediation("set host.store.dsn or VIZHOST_STORE_DSN"))
		}
	default:
		return errs.New("config", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("unknown store driver %q", s.Host.Store.Driver)),
			errs.WithRemediation("use memory or postgres"))
	}
	if s.Telemetry.ServiceName == "" {
		return errs.New("config", errs.CodeInvalid,
			errs.WithMessage("telemetry.serviceName must not be empty"))
	}
	return nil
}
