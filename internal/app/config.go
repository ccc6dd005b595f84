package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (COUPON_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (COUPON_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing; empty disables API key checks" flag:"api-key-pepper"`
	Redis        RedisConfig
	Cache        CacheConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// RedisConfig locates the coupon cache. An empty Addr disables caching.
// Addr is either host:port or a redis:// (rediss://, unix://) URL.
type RedisConfig struct {
	Addr     string `default:"" usage:"Redis host:port or URL (COUPON_REDIS_ADDR or REDIS_URL)" flag:"redis-addr"`
	Password string `default:"" usage:"Redis password" flag:"redis-password"`
	DB       int    `default:"0" usage:"Redis database number" flag:"redis-db"`
}

// Options converts c to client options. Password and DB set explicitly
// override the ones carried by a URL.
func (c RedisConfig) Options() (*redis.Options, error) {
	if !strings.Contains(c.Addr, "://") {
		return &redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB}, nil
	}
	opts, err := redis.ParseURL(c.Addr)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	if c.Password != "" {
		opts.Password = c.Password
	}
	if c.DB != 0 {
		opts.DB = c.DB
	}
	return opts, nil
}

// CacheConfig controls cached coupon snapshots.
type CacheConfig struct {
	TTL time.Duration `default:"1h" usage:"Lifetime of cached coupons" flag:"cache-ttl"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max        int           `default:"100" usage:"Max requests per window"`
	Window     time.Duration `default:"1m"  usage:"Rate limit window duration"`
	TrustProxy bool          `default:"false" usage:"Key clients by X-Forwarded-For/X-Real-IP" flag:"rate-limit-trust-proxy"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files and flags, then applies platform defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "COUPON",
		Files:     []string{"config.yaml", "/etc/coupon/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set COUPON_DATABASE_URL or DATABASE_URL")
	}
	if cfg.Redis.Addr != "" {
		if _, err := cfg.Redis.Options(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// applyPlatformDefaults maps the unprefixed variables hosting platforms set
// (DATABASE_URL, REDIS_URL, PORT) onto the configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
