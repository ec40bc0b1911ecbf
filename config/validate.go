package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"kalelend/native/kalelend"
)

var (
	// ErrAuthSecretRequired is returned when authentication is enabled without
	// a signing secret.
	ErrAuthSecretRequired = errors.New("auth.hmacSecret is required when auth is enabled")
	// ErrAuthEnabledNotConfigured is returned when a production environment
	// would serve mutations without authentication.
	ErrAuthEnabledNotConfigured = errors.New("auth must be enabled outside development environments")
)

const minSecretLength = 16

// Validate checks the configuration for values the daemon cannot run with.
func (cfg Config) Validate() error {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	switch cfg.StorageEngine {
	case "leveldb", "memory":
	case "bolt":
		if strings.TrimSpace(cfg.DataDir) == "" {
			return fmt.Errorf("the bolt storage engine requires a data directory")
		}
	default:
		return fmt.Errorf("unsupported storage engine %q", cfg.StorageEngine)
	}
	if cfg.RequestTimeout < 0 || cfg.ReadTimeout < 0 || cfg.WriteTimeout < 0 || cfg.IdleTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}
	if err := cfg.Platform.validate(); err != nil {
		return err
	}
	if err := cfg.Oracle.validate(); err != nil {
		return err
	}
	if err := cfg.Auth.validate(); err != nil {
		return err
	}
	if cfg.IsProduction() && !cfg.Auth.Enabled {
		return ErrAuthEnabledNotConfigured
	}
	if err := cfg.RateLimit.validate(); err != nil {
		return err
	}
	if ratio := cfg.Telemetry.SampleRatio; ratio < 0 || ratio > 1 {
		return fmt.Errorf("telemetry.sampleRatio must be within [0,1], got %v", ratio)
	}
	return nil
}

func (p PlatformConfig) validate() error {
	if p.PlatformFeeRate > kalelend.MaxBasisPoints {
		return fmt.Errorf("platform.platformFeeRate must not exceed %d", kalelend.MaxBasisPoints)
	}
	params, err := p.InitParams()
	if err != nil {
		return err
	}
	if p.Bootstrap && params.Admin.IsZero() {
		return fmt.Errorf("platform.admin is required when bootstrap is enabled")
	}
	return nil
}

func (o OracleConfig) validate() error {
	switch o.Type {
	case "static":
	case "http":
		if strings.TrimSpace(o.Endpoint) == "" {
			return fmt.Errorf("oracle.endpoint is required for the http oracle")
		}
		if _, err := url.ParseRequestURI(o.Endpoint); err != nil {
			return fmt.Errorf("oracle.endpoint: %w", err)
		}
	case "pricebook":
		switch o.Driver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("oracle.driver must be sqlite or postgres, got %q", o.Driver)
		}
		if strings.TrimSpace(o.DSN) == "" {
			return fmt.Errorf("oracle.dsn is required for the pricebook oracle")
		}
	default:
		return fmt.Errorf("unsupported oracle type %q", o.Type)
	}
	if o.Timeout < 0 || o.MaxAge < 0 {
		return fmt.Errorf("oracle durations must not be negative")
	}
	return nil
}

func (a AuthConfig) validate() error {
	for _, path := range a.OptionalPaths {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("auth.optionalPaths entry %q must start with '/'", path)
		}
	}
	if !a.Enabled {
		return nil
	}
	secret := strings.TrimSpace(a.HMACSecret)
	if secret == "" {
		return ErrAuthSecretRequired
	}
	if len(secret) < minSecretLength {
		return fmt.Errorf("auth.hmacSecret must be at least %d characters", minSecretLength)
	}
	return nil
}

func (r RateLimitConfig) validate() error {
	if !r.Enabled {
		return nil
	}
	for name, limit := range map[string]RateLimit{"reads": r.Reads, "writes": r.Writes} {
		if limit.RatePerSecond <= 0 || limit.Burst <= 0 {
			return fmt.Errorf("ratelimit.%s requires a positive rate and burst", name)
		}
		for route, cost := range limit.Tokens {
			if cost <= 0 {
				return fmt.Errorf("ratelimit.%s token cost for %q must be positive", name, route)
			}
		}
	}
	return nil
}
