// Package config centralises runtime configuration helpers for vizframe services.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment identifies the runtime environment where vizframe operates.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

// StoreDriver selects the catalog persistence backend.
type StoreDriver string

const (
	// StoreMemory keeps the dataset catalog in process memory.
	StoreMemory StoreDriver = "memory"
	// StorePostgres persists the dataset catalog in PostgreSQL.
	StorePostgres StoreDriver = "postgres"
)

// Padding reserves cells around the drawing area on each side.
type Padding struct {
	Top    int `yaml:"top"`
	Right  int `yaml:"right"`
	Bottom int `yaml:"bottom"`
	Left   int `yaml:"left"`
}

// Horizontal returns the total horizontal padding.
func (p Padding) Horizontal() int { return p.Left + p.Right }

// Vertical returns the total vertical padding.
func (p Padding) Vertical() int { return p.Top + p.Bottom }

// FrameSettings configures a single embedded frame instance.
type FrameSettings struct {
	DataURL          string        `yaml:"dataUrl"`
	Origin           string        `yaml:"origin"`
	FetchTimeout     time.Duration `yaml:"fetchTimeout"`
	HandshakeTimeout time.Duration `yaml:"handshakeTimeout"`
	Padding          Padding       `yaml:"padding"`
}

// PushSettings bounds host-to-frame notification delivery.
type PushSettings struct {
	Rate          float64 `yaml:"rate"`
	Burst         int     `yaml:"burst"`
	FanoutWorkers int     `yaml:"fanoutWorkers"`
}

// StoreSettings selects and configures the catalog backend.
type StoreSettings struct {
	Driver StoreDriver `yaml:"driver"`
	DSN    string      `yaml:"dsn"`
}

// ModuleSettings locates JavaScript transform modules loaded at startup.
type ModuleSettings struct {
	Directory string `yaml:"directory"`
}

// HostSettings configures the parent context service.
type HostSettings struct {
	Addr             string         `yaml:"addr"`
	AdvertisedOrigin string         `yaml:"advertisedOrigin"`
	Store            StoreSettings  `yaml:"store"`
	Push             PushSettings   `yaml:"push"`
	Modules          ModuleSettings `yaml:"modules"`
}

// TelemetrySettings configures OTLP metric export.
type TelemetrySettings struct {
	OTLPEndpoint  string `yaml:"otlpEndpoint"`
	ServiceName   string `yaml:"serviceName"`
	OTLPInsecure  bool   `yaml:"otlpInsecure"`
	EnableMetrics bool   `yaml:"enableMetrics"`
}

// Settings contains the vizframe configuration tree loaded from defaults and overrides.
type Settings struct {
	Environment Environment       `yaml:"environment"`
	Frame       FrameSettings     `yaml:"frame"`
	Host        HostSettings      `yaml:"host"`
	Telemetry   TelemetrySettings `yaml:"telemetry"`
}

// Default returns the default vizframe configuration.
func Default() Settings {
	return Settings{
		Environment: EnvProd,
		Frame: FrameSettings{
			DataURL:          "",
			Origin:           "",
			FetchTimeout:     10 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			Padding:          Padding{Top: 1, Right: 2, Bottom: 1, Left: 2},
		},
		Host: HostSettings{
			Addr:             ":8780",
			AdvertisedOrigin: "http://localhost:8780",
			Store: StoreSettings{
				Driver: StoreMemory,
				DSN:    "",
			},
			Push: PushSettings{
				Rate:          10,
				Burst:         5,
				FanoutWorkers: 8,
			},
			Modules: ModuleSettings{Directory: ""},
		},
		Telemetry: TelemetrySettings{
			OTLPEndpoint:  "",
			ServiceName:   "vizframe",
			OTLPInsecure:  true,
			EnableMetrics: false,
		},
	}
}

// FromEnv loads configuration values from environment variables, overriding defaults.
func FromEnv() Settings {
	cfg := Default()
	if env := strings.TrimSpace(os.Getenv("VIZFRAME_ENV")); env != "" {
		cfg.Environment = Environment(strings.ToLower(env))
	}

	if v := strings.TrimSpace(os.Getenv("VIZFRAME_DATA_URL")); v != "" {
		cfg.Frame.DataURL = v
	}
	if v := strings.TrimSpace(os.Getenv("VIZFRAME_ORIGIN")); v != "" {
		cfg.Frame.Origin = v
	}
	if v := strings.TrimSpace(os.Getenv("VIZFRAME_FETCH_TIMEOUT")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			cfg.Frame.FetchTimeout = dur
		}
	}
	if v := strings.TrimSpace(os.Getenv("VIZFRAME_HANDSHAKE_TIMEOUT")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			cfg.Frame.HandshakeTimeout = dur
		}
	}

	if v := strings.TrimSpace(os.Getenv("VIZHOST_ADDR")); v != "" {
		cfg.Host.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("VIZHOST_ADVERTISED_ORIGIN")); v != "" {
		cfg.Host.AdvertisedOrigin = v
	}
	if v := strings.TrimSpace(os.Getenv("VIZHOST_STORE_DRIVER")); v != "" {
		cfg.Host.Store.Driver = StoreDriver(strings.ToLower(v))
	}
	if v := strings.TrimSpace(os.Getenv("VIZHOST_STORE_DSN")); v != "" {
		cfg.Host.Store.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("VIZHOST_PUSH_RATE")); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil && rate > 0 {
			cfg.Host.Push.Rate = rate
		}
	}
	if v := strings.TrimSpace(os.Getenv("VIZHOST_PUSH_BURST")); v != "" {
		if burst, err := strconv.Atoi(v); err == nil && burst > 0 {
			cfg.Host.Push.Burst = burst
		}
	}
	if v := strings.TrimSpace(os.Getenv("VIZHOST_MODULE_DIR")); v != "" {
		cfg.Host.Modules.Directory = v
	}

	if v := strings.TrimSpace(os.Getenv("VIZ_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
		cfg.Telemetry.EnableMetrics = true
	}
	if v := strings.TrimSpace(os.Getenv("VIZ_SERVICE_NAME")); v != "" {
		cfg.Telemetry.ServiceName = v
	}

	return cfg
}

// Option mutates Settings when applied via Apply.
type Option func(*Settings)

// Apply applies the provided Option set to a copy of the base Settings.
func Apply(base Settings, opts ...Option) Settings {
	cfg := base.clone()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithEnvironment configures the top-level environment.
func WithEnvironment(env Environment) Option {
	return func(s *Settings) {
		if env != "" {
			s.Environment = env
		}
	}
}

// WithDataURL sets the frame's initial data source locator.
func WithDataURL(url string) Option {
	url = strings.TrimSpace(url)
	return func(s *Settings) {
		if url != "" {
			s.Frame.DataURL = url
		}
	}
}

// WithOrigin sets the parent origin enabling the subscription bridge.
func WithOrigin(origin string) Option {
	origin = strings.TrimSpace(origin)
	return func(s *Settings) {
		s.Frame.Origin = origin
	}
}

// WithFetchTimeout overrides the frame fetch timeout.
func WithFetchTimeout(timeout time.Duration) Option {
	return func(s *Settings) {
		if timeout > 0 {
			s.Frame.FetchTimeout = timeout
		}
	}
}

// WithFramePadding overrides the drawing-area padding.
func WithFramePadding(p Padding) Option {
	return func(s *Settings) {
		if p.Top >= 0 && p.Right >= 0 && p.Bottom >= 0 && p.Left >= 0 {
			s.Frame.Padding = p
		}
	}
}

// WithHostAddr overrides the host listen address.
func WithHostAddr(addr string) Option {
	addr = strings.TrimSpace(addr)
	return func(s *Settings) {
		if addr != "" {
			s.Host.Addr = addr
		}
	}
}

// WithAdvertisedOrigin overrides the origin the host stamps on pushed messages.
func WithAdvertisedOrigin(origin string) Option {
	origin = strings.TrimSpace(origin)
	return func(s *Settings) {
		if origin != "" {
			s.Host.AdvertisedOrigin = origin
		}
	}
}

// WithStore selects the catalog backend.
func WithStore(driver StoreDriver, dsn string) Option {
	dsn = strings.TrimSpace(dsn)
	return func(s *Settings) {
		if driver != "" {
			s.Host.Store.Driver = driver
		}
		if dsn != "" {
			s.Host.Store.DSN = dsn
		}
	}
}

// WithPushLimits overrides per-frame push rate limiting.
func WithPushLimits(rate float64, burst int) Option {
	return func(s *Settings) {
		if rate > 0 {
			s.Host.Push.Rate = rate
		}
		if burst > 0 {
			s.Host.Push.Burst = burst
		}
	}
}

// WithModuleDirectory points the host at a JavaScript transform module directory.
func WithModuleDirectory(dir string) Option {
	dir = strings.TrimSpace(dir)
	return func(s *Settings) {
		s.Host.Modules.Directory = dir
	}
}

// WithTelemetryEndpoint configures OTLP metric export.
func WithTelemetryEndpoint(endpoint, serviceName string) Option {
	endpoint = strings.TrimSpace(endpoint)
	serviceName = strings.TrimSpace(serviceName)
	return func(s *Settings) {
		if endpoint != "" {
			s.Telemetry.OTLPEndpoint = endpoint
			s.Telemetry.EnableMetrics = true
		}
		if serviceName != "" {
			s.Telemetry.ServiceName = serviceName
		}
	}
}

func (s Settings) clone() Settings {
	return s
}
