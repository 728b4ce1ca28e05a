package cfg

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cipherpaste/pkg/domain"
	"cipherpaste/svc/util"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	DefaultHost = "https://cipher.ix.tc/"

	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

type Secret struct {
	value []byte
}

func NewSecret(s string) Secret {
	return Secret{value: []byte(s)}
}
func (s Secret) Value() string {
	return string(s.value)
}
func (s Secret) Wipe() {
	util.Wipe(s.value)
}
func (s Secret) String() string {
	return "***REDACTED***"
}

type Cfg struct {
	Port             string
	Environment      string
	LogLevel         string
	Host             string
	DefaultExpiresAt string
	DefaultSyntax    string
	KeySchedule      string
	StoreBackend     string
	StoreTimeout     time.Duration
	RedisURL         string
	RedisTLS         bool
	RedisUsername    string
	RedisPassword    Secret
	RedisTimeout     time.Duration
	DatabasePath     string
	DBMaxOpenConns   int
	DBMaxIdleConns   int
	DBQueryTimeout   time.Duration
	CleanupInterval  time.Duration
	LRUCacheSize     int
	MaxPasteSize     int64
	RateLimit        RateLimitCfg
	TrustedProxies   []string
	ContextTimeout   time.Duration
	MetricsUser      string
	MetricsPass      Secret
}

type RateLimitCfg struct {
	RPM   int
	Burst int
}

// LoadEnvFile reads ENV_FILE, or ./.env when present. Variables already in
// the environment win.
func LoadEnvFile() error {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrapf(err, "load env file %s", path)
	}
	return nil
}

func Load() (*Cfg, error) {
	if err := LoadEnvFile(); err != nil {
		return nil, err
	}
	c := &Cfg{}
	c.Port = getEnv("PORT", "8080")
	c.Environment = getEnv("ENVIRONMENT", "development")
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.Host = getEnv("PASTE_HOST", DefaultHost)
	c.DefaultExpiresAt = getEnv("DEFAULT_EXPIRES_AT", "9999-12-31T23:59:59Z")
	c.DefaultSyntax = getEnv("DEFAULT_SYNTAX", "plaintext")
	c.KeySchedule = getEnv("KEY_SCHEDULE", "legacy")
	c.StoreBackend = getEnv("STORE_BACKEND", BackendSQLite)
	c.RedisURL = getEnv("REDIS_URL", "")
	c.RedisTLS = getEnv("REDIS_TLS", "false") == "true"
	c.RedisUsername = getEnv("REDIS_USERNAME", "")
	c.RedisPassword = NewSecret(getEnv("REDIS_PASSWORD", ""))
	c.DatabasePath = getEnv("DATABASE_PATH", "cipherpaste.db")
	c.MetricsUser = getEnv("METRICS_USER", "")
	c.MetricsPass = NewSecret(getEnv("METRICS_PASS", ""))
	c.TrustedProxies = splitList(getEnv("TRUSTED_PROXIES", ""))
	var err error
	if c.StoreTimeout, err = getDuration("STORE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if c.RedisTimeout, err = getDuration("REDIS_TIMEOUT", 3*time.Second); err != nil {
		return nil, err
	}
	if c.DBMaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", 25); err != nil {
		return nil, err
	}
	if c.DBMaxIdleConns, err = getInt("DB_MAX_IDLE_CONNS", 5); err != nil {
		return nil, err
	}
	if c.DBQueryTimeout, err = getDuration("DB_QUERY_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if c.CleanupInterval, err = getDuration("CLEANUP_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	if c.LRUCacheSize, err = getInt("LRU_CACHE_SIZE", 1000); err != nil {
		return nil, err
	}
	if c.MaxPasteSize, err = getInt64("MAX_PASTE_SIZE", 512*1024); err != nil {
		return nil, err
	}
	if c.RateLimit.RPM, err = getInt("RATE_LIMIT_RPM", 60); err != nil {
		return nil, err
	}
	if c.RateLimit.Burst, err = getInt("RATE_LIMIT_BURST", 10); err != nil {
		return nil, err
	}
	if c.ContextTimeout, err = getDuration("CONTEXT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	return c, nil
}

func Validate(c *Cfg) error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.New("PORT must be a number")
	}
	if c.Host == "" {
		return errors.New("PASTE_HOST is required")
	}
	if !strings.HasSuffix(c.Host, "/") {
		return errors.New("PASTE_HOST must end with /")
	}
	if _, err := domain.ParseExpiry(c.DefaultExpiresAt); err != nil {
		return fmt.Errorf("DEFAULT_EXPIRES_AT must be an ISO-8601 timestamp: %w", err)
	}
	switch c.KeySchedule {
	case "legacy", "hkdf":
	default:
		return fmt.Errorf("KEY_SCHEDULE must be legacy or hkdf, got %q", c.KeySchedule)
	}
	switch c.StoreBackend {
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when STORE_BACKEND=redis")
		}
		if !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
			return errors.New("REDIS_URL must start with redis:// or rediss://")
		}
		if strings.HasPrefix(c.RedisURL, "rediss://") && !c.RedisTLS {
			return errors.New("REDIS_URL uses rediss:// but REDIS_TLS=false")
		}
	case BackendSQLite:
		if c.DatabasePath == "" {
			return errors.New("DATABASE_PATH is required when STORE_BACKEND=sqlite")
		}
		if c.DatabasePath != ":memory:" {
			if _, err := filepath.Abs(c.DatabasePath); err != nil {
				return fmt.Errorf("invalid DATABASE_PATH: %w", err)
			}
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %s or %s, got %q", BackendRedis, BackendSQLite, c.StoreBackend)
	}
	if c.StoreTimeout <= 0 {
		return errors.New("STORE_TIMEOUT must be positive")
	}
	if c.LRUCacheSize <= 0 {
		return errors.New("LRU_CACHE_SIZE must be positive")
	}
	if c.MaxPasteSize <= 0 {
		return errors.New("MAX_PASTE_SIZE must be positive")
	}
	if c.MaxPasteSize > 10*1024*1024 {
		return errors.New("MAX_PASTE_SIZE cannot exceed 10MB")
	}
	if c.RateLimit.RPM <= 0 {
		return errors.New("RATE_LIMIT_RPM must be positive")
	}
	if c.RateLimit.Burst <= 0 {
		return errors.New("RATE_LIMIT_BURST must be positive")
	}
	if c.CleanupInterval < time.Minute {
		return errors.New("CLEANUP_INTERVAL must be at least 1 minute")
	}
	if c.Environment == "production" && c.KeySchedule == "hkdf" {
		// hkdf pastes cannot be opened by existing JavaScript clients.
		return errors.New("KEY_SCHEDULE=hkdf is not interoperable; refusing in production")
	}
	return nil
}
func (c *Cfg) Wipe() {
	c.RedisPassword.Wipe()
	c.MetricsPass.Wipe()
}
func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
func getInt(key string, fallback int) (int, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getInt64(key string, fallback int64) (int64, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return v, nil
}
