package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/OOJ984/Fidget-Street-sub003/internal/auth"
)

// EnvPrefix marks the environment variables that override file settings.
// A double underscore descends into a nested section:
// FIDGET_DETECTORS__BRUTE_FORCE__THRESHOLD -> detectors.brute_force.threshold.
const EnvPrefix = "FIDGET_"

// Config is the runtime configuration of the API server.
type Config struct {
	HTTPAddr       string        `yaml:"http_addr" koanf:"http_addr"`
	DatabaseDSN    string        `yaml:"database_dsn" koanf:"database_dsn"`
	AuthSecret     string        `yaml:"auth_secret" koanf:"auth_secret"`
	TokenIssuer    string        `yaml:"token_issuer" koanf:"token_issuer"`
	TokenTTL       time.Duration `yaml:"token_ttl" koanf:"token_ttl"`
	AllowedOrigins []string      `yaml:"allowed_origins" koanf:"allowed_origins"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes" koanf:"max_body_bytes"`
	RequestTimeout time.Duration `yaml:"request_timeout" koanf:"request_timeout"`
	MFA            MFA           `yaml:"mfa" koanf:"mfa"`
	Detectors      Detectors     `yaml:"detectors" koanf:"detectors"`
	LoginThrottle  Throttle      `yaml:"login_throttle" koanf:"login_throttle"`
	Bootstrap      Bootstrap     `yaml:"bootstrap_admin" koanf:"bootstrap_admin"`
}

// Bootstrap seeds one website_admin when the server runs without a database.
type Bootstrap struct {
	Email    string `yaml:"email" koanf:"email"`
	Password string `yaml:"password" koanf:"password"`
}

// MFA configures the second-factor engine.
type MFA struct {
	Issuer          string `yaml:"issuer" koanf:"issuer"`
	BackupCodeCount int    `yaml:"backup_code_count" koanf:"backup_code_count"`
}

// Rule holds the threshold and look-back window of one anomaly rule.
type Rule struct {
	Threshold int           `yaml:"threshold" koanf:"threshold"`
	Window    time.Duration `yaml:"window" koanf:"window"`
}

// Detectors configures the anomaly rules.
type Detectors struct {
	BruteForce    Rule `yaml:"brute_force" koanf:"brute_force"`
	GiftCard      Rule `yaml:"gift_card" koanf:"gift_card"`
	PriceMismatch Rule `yaml:"price_mismatch" koanf:"price_mismatch"`
}

// Throttle configures the optional per-IP limiter on login and MFA routes.
// Burst 0 disables it.
type Throttle struct {
	Burst     int     `yaml:"burst" koanf:"burst"`
	PerSecond float64 `yaml:"per_second" koanf:"per_second"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		HTTPAddr:       ":8080",
		TokenIssuer:    auth.DefaultIssuer,
		TokenTTL:       auth.DefaultTokenTTL,
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		MaxBodyBytes:   1 << 20,
		RequestTimeout: 30 * time.Second,
		MFA: MFA{
			Issuer:          "Fidget Street Admin",
			BackupCodeCount: 10,
		},
		Detectors: Detectors{
			BruteForce:    Rule{Threshold: 5, Window: time.Hour},
			GiftCard:      Rule{Threshold: 10, Window: time.Hour},
			PriceMismatch: Rule{Threshold: 3, Window: 24 * time.Hour},
		},
	}
}

// Load reads the optional YAML file at path, then overlays FIDGET_* environment
// variables. A missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}
	// Comma separated list in the environment.
	if raw, ok := k.Get("allowed_origins").(string); ok {
		var origins []string
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if err := k.Set("allowed_origins", origins); err != nil {
			return nil, fmt.Errorf("parsing allowed_origins: %w", err)
		}
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate rejects values the server cannot run with. A missing auth secret is
// accepted here: admin requests answer with a configuration error instead.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("http_addr is required")
	}
	if c.TokenTTL <= 0 || c.TokenTTL > auth.MaxTokenTTL {
		return fmt.Errorf("token_ttl must be within (0, %s]", auth.MaxTokenTTL)
	}
	if strings.TrimSpace(c.TokenIssuer) == "" {
		return fmt.Errorf("token_issuer is required")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative")
	}
	if c.MFA.BackupCodeCount < 1 || c.MFA.BackupCodeCount > 50 {
		return fmt.Errorf("mfa.backup_code_count must be between 1 and 50")
	}
	for name, r := range map[string]Rule{
		"brute_force":    c.Detectors.BruteForce,
		"gift_card":      c.Detectors.GiftCard,
		"price_mismatch": c.Detectors.PriceMismatch,
	} {
		if r.Threshold < 1 {
			return fmt.Errorf("detectors.%s.threshold must be at least 1", name)
		}
		if r.Window <= 0 {
			return fmt.Errorf("detectors.%s.window must be positive", name)
		}
	}
	if c.LoginThrottle.Burst < 0 || c.LoginThrottle.PerSecond < 0 {
		return fmt.Errorf("login_throttle values must be non-negative")
	}
	if c.LoginThrottle.Burst > 0 && c.LoginThrottle.PerSecond == 0 {
		return fmt.Errorf("login_throttle.per_second is required when burst is set")
	}
	return nil
}
