package config

import (
	"errors"
	"fmt"
	"net"

	"github.com/haskel/bore/internal/space"
)

func (c *Config) Validate() error {
	var errs []error

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}

	if err := c.Auth.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("auth: %w", err))
	}

	if err := c.validateDebugSecurity(); err != nil {
		errs = append(errs, fmt.Errorf("debug: %w", err))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if len(c.Space) > 0 {
		if _, err := space.New(c.Space); err != nil {
			errs = append(errs, fmt.Errorf("space: %w", err))
		}
	}

	if err := c.Generator.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("generator: %w", err))
	}

	if err := c.Hyperband.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("hyperband: %w", err))
	}

	// The generator options cover the classifier training, transform and
	// acquisition settings.
	if c.Hyperband.Eta > 1 {
		if err := c.GeneratorOptions().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("generator options: %w", err))
		}
	}

	if err := c.ClassifierOptions(1).Validate(); err != nil {
		errs = append(errs, fmt.Errorf("classifier: %w", err))
	}

	if err := c.Objective.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("objective: %w", err))
	}

	if err := c.Persistence.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("persistence: %w", err))
	}

	return errors.Join(errs...)
}

// validateDebugSecurity refuses to expose debug endpoints without either a
// debug token or main authentication.
func (c *Config) validateDebugSecurity() error {
	if !c.Debug.Enabled {
		return nil
	}
	if c.Debug.Auth.Token == "" && !c.Auth.Enabled {
		return fmt.Errorf("debug endpoints require auth.enabled or debug.auth.token")
	}
	return nil
}

func (s *ServerConfig) Validate() error {
	var errs []error

	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", s.Port))
	}
	if s.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("max_body_bytes must be non-negative, got %d", s.MaxBodyBytes))
	}
	if s.RateLimit.Enabled {
		if s.RateLimit.RequestsPerSecond <= 0 {
			errs = append(errs, fmt.Errorf("rate_limit.requests_per_second must be positive"))
		}
		if s.RateLimit.Burst < 1 {
			errs = append(errs, fmt.Errorf("rate_limit.burst must be at least 1"))
		}
	}

	return errors.Join(errs...)
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", l.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validFormats[l.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", l.Format)
	}

	return nil
}

func (a *AuthConfig) Validate() error {
	if a.Enabled {
		if a.User == "" {
			return fmt.Errorf("user cannot be empty when auth is enabled")
		}
		if a.Password == "" {
			return fmt.Errorf("password cannot be empty when auth is enabled")
		}
	}
	return nil
}

func (g *GeneratorConfig) Validate() error {
	var errs []error

	switch g.Kind {
	case GeneratorRatio, GeneratorSequence:
	default:
		errs = append(errs, fmt.Errorf("invalid kind: %s (valid: ratio, sequence)", g.Kind))
	}
	if g.Gamma < 0 || g.Gamma >= 1 {
		errs = append(errs, fmt.Errorf("gamma must be in (0, 1), or 0 for 1/eta, got %v", g.Gamma))
	}

	return errors.Join(errs...)
}

func (h *HyperbandConfig) Validate() error {
	var errs []error

	if !(h.Eta > 1) {
		errs = append(errs, fmt.Errorf("eta must be greater than 1, got %v", h.Eta))
	}
	if !(h.MinBudget > 0) {
		errs = append(errs, fmt.Errorf("min_budget must be positive, got %v", h.MinBudget))
	}
	if h.MaxBudget < h.MinBudget {
		errs = append(errs, fmt.Errorf("max_budget (%v) must be at least min_budget (%v)", h.MaxBudget, h.MinBudget))
	}
	if h.Iterations < 1 {
		errs = append(errs, fmt.Errorf("iterations must be at least 1, got %d", h.Iterations))
	}

	return errors.Join(errs...)
}

func (o *ObjectiveConfig) Validate() error {
	var errs []error

	switch o.Kind {
	case ObjectiveCommand:
		if o.Command == "" {
			errs = append(errs, fmt.Errorf("command cannot be empty for the command objective"))
		}
		if o.LossPath == "" {
			errs = append(errs, fmt.Errorf("loss_path cannot be empty for the command objective"))
		}
	case ObjectiveBranin, ObjectiveForrester:
	default:
		errs = append(errs, fmt.Errorf("invalid kind: %s (valid: command, branin, forrester)", o.Kind))
	}
	if o.TimeoutSec < 0 {
		errs = append(errs, fmt.Errorf("timeout_sec must be non-negative, got %d", o.TimeoutSec))
	}

	return errors.Join(errs...)
}

func (p *PersistenceConfig) Validate() error {
	switch p.Backend {
	case BackendNone, "":
		return nil
	case BackendFile:
		if p.DataDir == "" {
			return fmt.Errorf("data_dir cannot be empty")
		}
		if p.FlushIntervalSec < 1 {
			return fmt.Errorf("flush_interval_sec must be at least 1")
		}
	case BackendRedis:
		if p.Redis.Addr == "" {
			return fmt.Errorf("redis.addr cannot be empty")
		}
		if _, _, err := net.SplitHostPort(p.Redis.Addr); err != nil {
			return fmt.Errorf("redis.addr must be host:port: %w", err)
		}
		if p.Redis.DB < 0 {
			return fmt.Errorf("redis.db must be >= 0")
		}
	default:
		return fmt.Errorf("invalid backend: %s (valid: none, file, redis)", p.Backend)
	}
	if p.SaveClassifier && p.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty when save_classifier is set")
	}
	return nil
}
