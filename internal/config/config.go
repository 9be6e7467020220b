package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AppEnv      string `yaml:"app_env"`
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`

	JWTSecret string `yaml:"jwt_secret"`

	SMTP          SMTPConfig    `yaml:"smtp"`
	NotifyTimeout time.Duration `yaml:"notify_timeout"`

	RedisAddr string        `yaml:"redis_addr"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Admin     AdminConfig     `yaml:"admin"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
	// TrustedProxies lists the addresses or CIDRs whose X-Forwarded-For is believed.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// Proxies parses TrustedProxies. A bare address is taken as a single host.
func (r RateLimitConfig) Proxies() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(r.TrustedProxies))
	for _, raw := range r.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
			}
			out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

type MetricsConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// AdminConfig seeds a verified administrator at start when Username is set.
type AdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Email    string `yaml:"email"`
}

var ErrMissingSecret = errors.New("JWT_SECRET environment variable is not set")

func defaults() Config {
	return Config{
		AppEnv:        "production",
		Port:          "3333",
		NotifyTimeout: 10 * time.Second,
		CacheTTL:      30 * time.Second,
		SMTP:          SMTPConfig{Port: "587"},
		RateLimit:     RateLimitConfig{RPS: 5, Burst: 30},
	}
}

// Load reads .env (if present), then the YAML file named by CONFIG_FILE (if
// set), then environment variables. Later sources win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("APP_ENV", &cfg.AppEnv)
	str("PORT", &cfg.Port)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("JWT_SECRET", &cfg.JWTSecret)
	str("SMTP_HOST", &cfg.SMTP.Host)
	str("SMTP_PORT", &cfg.SMTP.Port)
	str("SMTP_USER", &cfg.SMTP.User)
	str("SMTP_PASS", &cfg.SMTP.Password)
	str("SMTP_FROM", &cfg.SMTP.From)
	str("REDIS_ADDR", &cfg.RedisAddr)
	str("METRICS_USER", &cfg.Metrics.User)
	str("METRICS_PASS", &cfg.Metrics.Password)
	str("ADMIN_USERNAME", &cfg.Admin.Username)
	str("ADMIN_PASSWORD", &cfg.Admin.Password)
	str("ADMIN_EMAIL", &cfg.Admin.Email)

	for key, dst := range map[string]*time.Duration{
		"NOTIFY_TIMEOUT": &cfg.NotifyTimeout,
		"CACHE_TTL":      &cfg.CacheTTL,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}

	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimit.RPS = rps
	}
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		cfg.RateLimit.TrustedProxies = strings.Split(v, ",")
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
		}
		cfg.RateLimit.Burst = burst
	}
	return nil
}

// Validate rejects settings the server cannot start with. A missing secret is
// tolerated in development, where main generates a throwaway one.
func (c *Config) Validate() error {
	if c.JWTSecret == "" && !c.IsDevelopment() {
		return ErrMissingSecret
	}
	if c.NotifyTimeout <= 0 {
		return fmt.Errorf("notify timeout must be positive, got %s", c.NotifyTimeout)
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate limit must be positive, got %v/%d", c.RateLimit.RPS, c.RateLimit.Burst)
	}
	if _, err := c.RateLimit.Proxies(); err != nil {
		return err
	}
	if c.Admin.Username != "" && (c.Admin.Password == "" || c.Admin.Email == "") {
		return errors.New("ADMIN_USERNAME requires ADMIN_PASSWORD and ADMIN_EMAIL")
	}
	return nil
}

func (c *Config) IsDevelopment() bool { return c.AppEnv == "development" }

func (c *Config) SMTPConfigured() bool {
	return c.SMTP.Host != "" && (c.SMTP.From != "" || c.SMTP.User != "")
}
