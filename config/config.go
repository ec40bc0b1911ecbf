package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"kalelend/crypto"
	"kalelend/gateway/middleware"
	"kalelend/native/kalelend"
	"kalelend/observability/logging"
	kaleotel "kalelend/observability/otel"
	"kalelend/oracle"
)

// Config is the daemon configuration. Files may be TOML or YAML; the format
// is chosen by extension.
type Config struct {
	ListenAddress   string        `toml:"ListenAddress" yaml:"listen"`
	DataDir         string        `toml:"DataDir" yaml:"dataDir"`
	StorageEngine   string        `toml:"StorageEngine" yaml:"storageEngine"`
	Environment     string        `toml:"Environment" yaml:"environment"`
	AllowMigrate    bool          `toml:"AllowMigrate" yaml:"allowMigrate"`
	Paused          bool          `toml:"Paused" yaml:"paused"`
	ReadTimeout     time.Duration `toml:"ReadTimeout" yaml:"readTimeout"`
	WriteTimeout    time.Duration `toml:"WriteTimeout" yaml:"writeTimeout"`
	IdleTimeout     time.Duration `toml:"IdleTimeout" yaml:"idleTimeout"`
	RequestTimeout  time.Duration `toml:"RequestTimeout" yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `toml:"ShutdownTimeout" yaml:"shutdownTimeout"`

	Log       LogConfig       `toml:"log" yaml:"log"`
	Platform  PlatformConfig  `toml:"platform" yaml:"platform"`
	Oracle    OracleConfig    `toml:"oracle" yaml:"oracle"`
	Auth      AuthConfig      `toml:"auth" yaml:"auth"`
	RateLimit RateLimitConfig `toml:"ratelimit" yaml:"rateLimit"`
	CORS      CORSConfig      `toml:"cors" yaml:"cors"`
	Telemetry TelemetryConfig `toml:"telemetry" yaml:"telemetry"`
}

type LogConfig struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"maxSizeMB"`
	MaxBackups int    `toml:"MaxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"maxAgeDays"`
	Compress   bool   `toml:"Compress" yaml:"compress"`
}

// PlatformConfig seeds Initialize when the store is empty and Bootstrap is set.
type PlatformConfig struct {
	Bootstrap            bool   `toml:"Bootstrap" yaml:"bootstrap"`
	Admin                string `toml:"Admin" yaml:"admin"`
	KaleToken            string `toml:"KaleToken" yaml:"kaleToken"`
	XLMToken             string `toml:"XLMToken" yaml:"xlmToken"`
	Oracle               string `toml:"Oracle" yaml:"oracle"`
	StakingAPY           uint64 `toml:"StakingAPY" yaml:"stakingAPY"`
	BorrowingAPY         uint64 `toml:"BorrowingAPY" yaml:"borrowingAPY"`
	PlatformFeeRate      uint64 `toml:"PlatformFeeRate" yaml:"platformFeeRate"`
	LiquidationThreshold uint64 `toml:"LiquidationThreshold" yaml:"liquidationThreshold"`
	KaleAsset            string `toml:"KaleAsset" yaml:"kaleAsset"`
	XLMAsset             string `toml:"XLMAsset" yaml:"xlmAsset"`
}

type OracleConfig struct {
	Type     string            `toml:"Type" yaml:"type"`
	Endpoint string            `toml:"Endpoint" yaml:"endpoint"`
	APIKey   string            `toml:"APIKey" yaml:"apiKey"`
	Symbols  map[string]string `toml:"Symbols" yaml:"symbols"`
	Timeout  time.Duration     `toml:"Timeout" yaml:"timeout"`
	Driver   string            `toml:"Driver" yaml:"driver"`
	DSN      string            `toml:"DSN" yaml:"dsn"`
	Prices   map[string]string `toml:"Prices" yaml:"prices"`
	MaxAge   time.Duration     `toml:"MaxAge" yaml:"maxAge"`
}

type AuthConfig struct {
	Enabled        bool          `toml:"Enabled" yaml:"enabled"`
	HMACSecret     string        `toml:"HMACSecret" yaml:"hmacSecret"`
	Issuer         string        `toml:"Issuer" yaml:"issuer"`
	Audience       string        `toml:"Audience" yaml:"audience"`
	ScopeClaim     string        `toml:"ScopeClaim" yaml:"scopeClaim"`
	OptionalPaths  []string      `toml:"OptionalPaths" yaml:"optionalPaths"`
	AllowAnonymous bool          `toml:"AllowAnonymous" yaml:"allowAnonymous"`
	ClockSkew      time.Duration `toml:"ClockSkew" yaml:"clockSkew"`
}

type RateLimit struct {
	RatePerSecond float64        `toml:"RatePerSecond" yaml:"ratePerSecond"`
	Burst         int            `toml:"Burst" yaml:"burst"`
	Tokens        map[string]int `toml:"Tokens" yaml:"tokens"`
}

type RateLimitConfig struct {
	Enabled bool      `toml:"Enabled" yaml:"enabled"`
	Reads   RateLimit `toml:"reads" yaml:"reads"`
	Writes  RateLimit `toml:"writes" yaml:"writes"`
}

type CORSConfig struct {
	AllowedOrigins   []string `toml:"AllowedOrigins" yaml:"allowedOrigins"`
	AllowCredentials bool     `toml:"AllowCredentials" yaml:"allowCredentials"`
}

type TelemetryConfig struct {
	ServiceName string  `toml:"ServiceName" yaml:"serviceName"`
	Endpoint    string  `toml:"Endpoint" yaml:"endpoint"`
	Insecure    bool    `toml:"Insecure" yaml:"insecure"`
	Headers     string  `toml:"Headers" yaml:"headers"`
	Metrics     bool    `toml:"Metrics" yaml:"metrics"`
	Traces      bool    `toml:"Traces" yaml:"traces"`
	SampleRatio float64 `toml:"SampleRatio" yaml:"sampleRatio"`
	LogRequests bool    `toml:"LogRequests" yaml:"logRequests"`

	ExportInterval time.Duration `toml:"ExportInterval" yaml:"exportInterval"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		ListenAddress:   ":8080",
		StorageEngine:   "leveldb",
		Environment:     "dev",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     120 * time.Second,
		RequestTimeout:  10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		Log:             LogConfig{Level: "info", MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28},
		Platform: PlatformConfig{
			StakingAPY:           500,
			BorrowingAPY:         800,
			PlatformFeeRate:      100,
			LiquidationThreshold: 15_000,
			KaleAsset:            kalelend.AssetKALE,
			XLMAsset:             kalelend.AssetXLM,
		},
		Oracle: OracleConfig{Type: "static", Timeout: 5 * time.Second, Driver: "sqlite"},
		Auth: AuthConfig{
			ScopeClaim: "scope",
			ClockSkew:  2 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Reads:  RateLimit{RatePerSecond: 20, Burst: 40},
			Writes: RateLimit{RatePerSecond: 5, Burst: 10},
		},
		Telemetry: TelemetryConfig{ServiceName: "kalelendd", SampleRatio: 1, LogRequests: true},
	}
}

// Load reads path, applies environment overrides and validates the result.
// An empty path yields the defaults.
func Load(path string) (Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv(getenv)
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, key := range undecoded {
				keys = append(keys, key.String())
			}
			return fmt.Errorf("decode config: unknown keys %s", strings.Join(keys, ", "))
		}
		return nil
	case ".yaml", ".yml":
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode config: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("config: unsupported file extension %q", ext)
	}
}

func (cfg *Config) applyEnv(getenv func(string) string) {
	if getenv == nil {
		return
	}
	if v := strings.TrimSpace(getenv("KALELEND_ENV")); v != "" {
		cfg.Environment = v
	}
	if v := strings.TrimSpace(getenv("KALELEND_LISTEN")); v != "" {
		cfg.ListenAddress = v
	}
	if v := strings.TrimSpace(getenv("KALELEND_DATA_DIR")); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(getenv("KALELEND_AUTH_SECRET")); v != "" {
		cfg.Auth.HMACSecret = v
	}
	if v := strings.TrimSpace(getenv("OTEL_SERVICE_NAME")); v != "" {
		cfg.Telemetry.ServiceName = v
	}
	if v := strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.Endpoint = v
	}
	if v := strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_HEADERS")); v != "" {
		cfg.Telemetry.Headers = v
	}
	if v := strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_INSECURE")); v != "" {
		if insecure, err := strconv.ParseBool(v); err == nil {
			cfg.Telemetry.Insecure = insecure
		}
	}
}

func (cfg *Config) normalize() {
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	cfg.StorageEngine = strings.ToLower(strings.TrimSpace(cfg.StorageEngine))
	if cfg.StorageEngine == "" {
		cfg.StorageEngine = "leveldb"
	}
	cfg.Oracle.Type = strings.ToLower(strings.TrimSpace(cfg.Oracle.Type))
	cfg.Oracle.Driver = strings.ToLower(strings.TrimSpace(cfg.Oracle.Driver))
	if cfg.Oracle.Type == "" {
		cfg.Oracle.Type = "static"
	}
	if cfg.Auth.ScopeClaim == "" {
		cfg.Auth.ScopeClaim = "scope"
	}
	if cfg.Auth.ClockSkew <= 0 {
		cfg.Auth.ClockSkew = 2 * time.Minute
	}
	for i, path := range cfg.Auth.OptionalPaths {
		cfg.Auth.OptionalPaths[i] = strings.TrimSpace(path)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if strings.TrimSpace(cfg.Platform.KaleAsset) == "" {
		cfg.Platform.KaleAsset = kalelend.AssetKALE
	}
	if strings.TrimSpace(cfg.Platform.XLMAsset) == "" {
		cfg.Platform.XLMAsset = kalelend.AssetXLM
	}
}

// IsProduction reports whether the environment requires hardened settings.
func (cfg Config) IsProduction() bool {
	switch cfg.Environment {
	case "prod", "production", "mainnet":
		return true
	default:
		return false
	}
}

// InitParams converts the platform section into engine parameters.
func (p PlatformConfig) InitParams() (kalelend.InitParams, error) {
	params := kalelend.InitParams{
		StakingAPY:           p.StakingAPY,
		BorrowingAPY:         p.BorrowingAPY,
		PlatformFeeRate:      p.PlatformFeeRate,
		LiquidationThreshold: p.LiquidationThreshold,
	}
	fields := []struct {
		name string
		raw  string
		dst  *crypto.Address
	}{
		{"platform.admin", p.Admin, &params.Admin},
		{"platform.kaleToken", p.KaleToken, &params.KaleToken},
		{"platform.xlmToken", p.XLMToken, &params.XLMToken},
		{"platform.oracle", p.Oracle, &params.Oracle},
	}
	for _, field := range fields {
		if strings.TrimSpace(field.raw) == "" {
			continue
		}
		addr, err := crypto.DecodeAddress(field.raw)
		if err != nil {
			return kalelend.InitParams{}, fmt.Errorf("%s: %w", field.name, err)
		}
		*field.dst = addr
	}
	return params, nil
}

// Source converts the oracle section into a price source configuration.
func (o OracleConfig) Source() oracle.Config {
	return oracle.Config{
		Type:     o.Type,
		Endpoint: o.Endpoint,
		APIKey:   o.APIKey,
		Symbols:  o.Symbols,
		Timeout:  o.Timeout,
		Driver:   o.Driver,
		DSN:      o.DSN,
		Prices:   o.Prices,
		MaxAge:   o.MaxAge,
	}
}

func (a AuthConfig) Middleware() middleware.AuthConfig {
	return middleware.AuthConfig{
		Enabled:        a.Enabled,
		HMACSecret:     a.HMACSecret,
		Issuer:         a.Issuer,
		Audience:       a.Audience,
		ScopeClaim:     a.ScopeClaim,
		OptionalPaths:  append([]string(nil), a.OptionalPaths...),
		AllowAnonymous: a.AllowAnonymous,
		ClockSkew:      a.ClockSkew,
	}
}

// Limits returns the rate limiter table keyed by route group, or nil when
// limiting is disabled.
func (r RateLimitConfig) Limits(readKey, writeKey string) map[string]middleware.RateLimit {
	if !r.Enabled {
		return nil
	}
	return map[string]middleware.RateLimit{
		readKey:  {RatePerSecond: r.Reads.RatePerSecond, Burst: r.Reads.Burst, Tokens: r.Reads.Tokens},
		writeKey: {RatePerSecond: r.Writes.RatePerSecond, Burst: r.Writes.Burst, Tokens: r.Writes.Tokens},
	}
}

func (c CORSConfig) Middleware() middleware.CORSConfig {
	return middleware.CORSConfig{
		AllowedOrigins:   append([]string(nil), c.AllowedOrigins...),
		AllowCredentials: c.AllowCredentials,
	}
}

func (t TelemetryConfig) OTel(env string) kaleotel.Config {
	return kaleotel.Config{
		ServiceName: t.ServiceName,
		Environment: env,
		Endpoint:    t.Endpoint,
		Insecure:    t.Insecure,
		Headers:     kaleotel.ParseHeaders(t.Headers),
		Metrics:     t.Metrics,
		Traces:      t.Traces,
		SampleRatio: t.SampleRatio,

		ExportInterval: t.ExportInterval,
	}
}

func (l LogConfig) Options() logging.Options {
	return logging.Options{
		Level:      l.Level,
		File:       l.File,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
		Compress:   l.Compress,
	}
}

func (t TelemetryConfig) Observability() middleware.ObservabilityConfig {
	return middleware.ObservabilityConfig{
		ServiceName:   t.ServiceName,
		MetricsPrefix: "kalelend_http",
		LogRequests:   t.LogRequests,
		Enabled:       true,
	}
}
