// Package config reads the gateway configuration from the environment and,
// optionally, a YAML file describing the backend services.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"api-gateway/internal/route"

	"gopkg.in/yaml.v2"
)

const (
	StoreMemory      = "memory"
	StoreRedis       = "redis"
	StoreTokenBucket = "token-bucket"
)

type Config struct {
	Port     int
	Services []Service

	RateLimit   RateLimit
	RateStats   RateStats
	Concurrency Concurrency

	HealthTimeout   time.Duration
	ProxyTimeout    time.Duration
	ShutdownTimeout time.Duration

	LogLevel  string
	LogFormat string
}

// Service is one backend behind the gateway.
type Service struct {
	Name         string   `yaml:"name"`
	Prefix       string   `yaml:"prefix"`
	URL          string   `yaml:"url"`
	ChangeOrigin bool     `yaml:"change_origin"`
	Rewrite      *Rewrite `yaml:"rewrite"`
}

// Rewrite is a regexp path rewrite; when absent the prefix is stripped.
type Rewrite struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

type RateLimit struct {
	Enabled    bool
	Window     time.Duration
	Max        int
	Store      string
	KeyHeader  string
	TrustXFF   bool
	AddHeaders bool
	Redis      Redis
}

type RateStats struct {
	Enabled   bool
	Redis     Redis
	Prefix    string
	TTL       time.Duration
	Bucket    string
	TrackKeys bool
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type Concurrency struct {
	Max     int
	Timeout time.Duration
}

type servicesFile struct {
	Services []Service `yaml:"services"`
}

// ListenAddr is the address the gateway binds to.
func (c Config) ListenAddr() string { return ":" + strconv.Itoa(c.Port) }

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	cfg := Config{}
	cfg.Port = getenvIntDefault("PORT", 8080)
	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getenvDefault("LOG_FORMAT", "json")

	cfg.RateLimit.Enabled = getenvBoolDefault("RATE_LIMIT_ENABLED", true)
	cfg.RateLimit.Window = time.Duration(getenvIntDefault("RATE_LIMIT_WINDOW_MS", 900000)) * time.Millisecond
	cfg.RateLimit.Max = getenvIntDefault("RATE_LIMIT_MAX", 100)
	cfg.RateLimit.Store = strings.ToLower(getenvDefault("RATE_LIMIT_STORE", StoreMemory))
	cfg.RateLimit.KeyHeader = os.Getenv("RATE_KEY_HEADER")
	cfg.RateLimit.TrustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.RateLimit.AddHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", true)
	cfg.RateLimit.Redis = Redis{
		Addr:     os.Getenv("RATE_LIMIT_REDIS_ADDR"),
		Password: os.Getenv("RATE_LIMIT_REDIS_PASSWORD"),
		DB:       getenvIntDefault("RATE_LIMIT_REDIS_DB", 0),
	}

	cfg.RateStats.Enabled = getenvBoolDefault("RATE_STATS_ENABLED", false)
	cfg.RateStats.Redis = Redis{
		Addr:     getenvDefault("RATE_STATS_REDIS_ADDR", cfg.RateLimit.Redis.Addr),
		Password: getenvDefault("RATE_STATS_REDIS_PASSWORD", cfg.RateLimit.Redis.Password),
		DB:       getenvIntDefault("RATE_STATS_REDIS_DB", cfg.RateLimit.Redis.DB),
	}
	cfg.RateStats.Prefix = getenvDefault("RATE_STATS_PREFIX", "ratelimit:stats")
	cfg.RateStats.TTL = getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour)
	cfg.RateStats.Bucket = getenvDefault("RATE_STATS_BUCKET", "minute")
	cfg.RateStats.TrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", false)

	cfg.Concurrency.Max = getenvIntDefault("CONCURRENCY_MAX", 0)
	cfg.Concurrency.Timeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.HealthTimeout = getenvDurationDefault("HEALTH_TIMEOUT", 5*time.Second)
	cfg.ProxyTimeout = getenvDurationDefault("PROXY_TIMEOUT", 30*time.Second)
	cfg.ShutdownTimeout = getenvDurationDefault("SHUTDOWN_TIMEOUT", 10*time.Second)

	if path := os.Getenv("ROUTES_FILE"); path != "" {
		services, err := LoadServices(path)
		if err != nil {
			return Config{}, err
		}
		cfg.Services = services
	} else {
		cfg.Services = defaultServices()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaultServices() []Service {
	return []Service{
		{Name: "product-service", Prefix: "/api/products", URL: getenvDefault("PRODUCT_SERVICE_URL", "http://product-service:8081"), ChangeOrigin: true},
		{Name: "order-service", Prefix: "/api/orders", URL: getenvDefault("ORDER_SERVICE_URL", "http://order-service:8082"), ChangeOrigin: true},
		{Name: "user-service", Prefix: "/api/users", URL: getenvDefault("USER_SERVICE_URL", "http://user-service:8083"), ChangeOrigin: true},
	}
}

// LoadServices parses a YAML file with a top-level `services` list.
func LoadServices(path string) ([]Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file: %w", err)
	}

	var f servicesFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse routes file: %w", err)
	}
	if len(f.Services) == 0 {
		return nil, fmt.Errorf("routes file %s: no services defined", path)
	}
	return f.Services, nil
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.New("PORT must be between 1 and 65535")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("RATE_LIMIT_WINDOW_MS must be > 0")
	}
	if c.RateLimit.Max <= 0 {
		return errors.New("RATE_LIMIT_MAX must be > 0")
	}
	switch c.RateLimit.Store {
	case StoreMemory, StoreTokenBucket:
	case StoreRedis:
		if strings.TrimSpace(c.RateLimit.Redis.Addr) == "" {
			return errors.New("RATE_LIMIT_REDIS_ADDR is required when RATE_LIMIT_STORE=redis")
		}
	default:
		return fmt.Errorf("RATE_LIMIT_STORE must be one of %s, %s, %s", StoreMemory, StoreRedis, StoreTokenBucket)
	}
	if c.RateStats.Enabled && strings.TrimSpace(c.RateStats.Redis.Addr) == "" {
		return errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true")
	}
	if c.Concurrency.Max < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if c.HealthTimeout <= 0 {
		return errors.New("HEALTH_TIMEOUT must be > 0")
	}
	if len(c.Services) == 0 {
		return errors.New("at least one backend service is required")
	}
	_, err := c.RouteTable()
	return err
}

// Routes converts the configured services into route definitions.
func (c Config) Routes() ([]route.Route, error) {
	routes := make([]route.Route, 0, len(c.Services))
	for _, s := range c.Services {
		target, err := url.Parse(strings.TrimSpace(s.URL))
		if err != nil {
			return nil, fmt.Errorf("service %s: invalid url: %w", s.Name, err)
		}

		r := route.Route{
			Name:         s.Name,
			Prefix:       s.Prefix,
			Target:       target,
			ChangeOrigin: s.ChangeOrigin,
		}
		if s.Rewrite != nil {
			rw, err := route.RegexpRewrite(s.Rewrite.Pattern, s.Rewrite.Replacement)
			if err != nil {
				return nil, fmt.Errorf("service %s: %w", s.Name, err)
			}
			r.Rewrite = rw
		}
		routes = append(routes, r)
	}
	return routes, nil
}

// RouteTable builds the validated route table.
func (c Config) RouteTable() (*route.Table, error) {
	routes, err := c.Routes()
	if err != nil {
		return nil, err
	}
	table, err := route.NewTable(routes)
	if err != nil {
		return nil, fmt.Errorf("invalid routes: %w", err)
	}
	return table, nil
}
