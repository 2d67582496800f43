package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/tollgate/internal/models"
	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Lockout   LockoutConfig
	Gate      GateConfig
	Audit     AuditConfig
	Stats     StatsConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	MigrateOnStart    bool
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TrustedProxies []string
}

type AuthConfig struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	APIKeyFailureDelay time.Duration
}

type RateLimitConfig struct {
	Policies               map[models.EndpointClass]models.RatePolicy
	Routes                 map[string]models.EndpointClass
	PathBucketCapacity     int
	PathBucketRefillPerSec float64
	Shards                 int
	IdleRetention          time.Duration
	CleanupInterval        time.Duration
}

type LockoutConfig struct {
	Policy           models.LockoutPolicy
	FailOpen         bool
	AttemptRetention time.Duration
}

type GateConfig struct {
	APIKeyProtectedPrefixes  []string
	KillSwitchExemptPrefixes []string
	KillSwitchFlagKey        string
	KillSwitchFlagTTL        time.Duration
}

type AuditConfig struct {
	BufferSize int
}

type StatsConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
}

// Enabled reports whether gate decisions should be mirrored to Redis
func (s StatsConfig) Enabled() bool {
	return s.RedisAddr != ""
}

const (
	defaultRatePolicies = "auth=5/15m,password_reset=3/15m,upload=20/1m,admin=30/1m,general=100/1m"
	defaultRateRoutes   = "/auth=auth,/password-reset=password_reset,/uploads=upload,/admin=admin"
)

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	policies, err := parsePolicies(getEnv("RATE_LIMIT_POLICIES", defaultRatePolicies))
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_POLICIES: %w", err)
	}

	routes, err := parseRoutes(getEnv("RATE_LIMIT_ROUTES", defaultRateRoutes))
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_ROUTES: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "tollgate"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			MigrateOnStart:    getEnvAsBool("DB_MIGRATE_ON_START", true),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES", nil),
		},
		Auth: AuthConfig{
			JWTSecret:          jwtSecret,
			AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			APIKeyFailureDelay: time.Duration(getEnvAsInt("API_KEY_FAILURE_DELAY_MS", 100)) * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			Policies:               policies,
			Routes:                 routes,
			PathBucketCapacity:     getEnvAsInt("PATH_BUCKET_CAPACITY", 60),
			PathBucketRefillPerSec: getEnvAsFloat("PATH_BUCKET_REFILL_PER_SEC", 1),
			Shards:                 getEnvAsInt("RATE_LIMIT_SHARDS", 64),
			IdleRetention:          getEnvAsDuration("RATE_LIMIT_IDLE_RETENTION", 30*time.Minute),
			CleanupInterval:        getEnvAsDuration("CLEANUP_INTERVAL", 5*time.Minute),
		},
		Lockout: LockoutConfig{
			Policy: models.LockoutPolicy{
				MaxFailures:  getEnvAsInt("LOCKOUT_MAX_FAILURES", 5),
				Window:       getEnvAsDuration("LOCKOUT_WINDOW", 10*time.Minute),
				LockDuration: getEnvAsDuration("LOCKOUT_DURATION", 10*time.Minute),
			},
			FailOpen:         getEnvAsBool("LOCKOUT_FAIL_OPEN", false),
			AttemptRetention: getEnvAsDuration("LOGIN_ATTEMPT_RETENTION", 0),
		},
		Gate: GateConfig{
			APIKeyProtectedPrefixes:  getEnvAsList("API_KEY_PROTECTED_PREFIXES", []string{"/internal"}),
			KillSwitchExemptPrefixes: getEnvAsList("KILL_SWITCH_EXEMPT_PREFIXES", []string{"/privacy", "/dsar", "/health", "/admin/kill-switch"}),
			KillSwitchFlagKey:        getEnv("KILL_SWITCH_FLAG_KEY", "privacy_kill_switch"),
			KillSwitchFlagTTL:        getEnvAsDuration("KILL_SWITCH_FLAG_TTL", 5*time.Second),
		},
		Audit: AuditConfig{
			BufferSize: getEnvAsInt("AUDIT_BUFFER_SIZE", 0),
		},
		Stats: StatsConfig{
			RedisAddr:     getEnv("STATS_REDIS_ADDR", ""),
			RedisPassword: getEnv("STATS_REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("STATS_REDIS_DB", 0),
			Prefix:        getEnv("STATS_REDIS_PREFIX", "tollgate:stats"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if cfg.RateLimit.PathBucketCapacity <= 0 || cfg.RateLimit.PathBucketRefillPerSec <= 0 {
		return nil, fmt.Errorf("PATH_BUCKET_CAPACITY and PATH_BUCKET_REFILL_PER_SEC must be positive")
	}

	if cfg.Lockout.Policy.MaxFailures <= 0 {
		return nil, fmt.Errorf("LOCKOUT_MAX_FAILURES must be positive")
	}

	if cfg.Lockout.Policy.Window <= 0 || cfg.Lockout.Policy.LockDuration <= 0 {
		return nil, fmt.Errorf("LOCKOUT_WINDOW and LOCKOUT_DURATION must be positive")
	}

	// Attempts are kept forever unless pruning is opted into. Pruning inside
	// the lockout horizon would unlock identifiers early.
	if r := cfg.Lockout.AttemptRetention; r < 0 {
		return nil, fmt.Errorf("LOGIN_ATTEMPT_RETENTION must not be negative")
	} else if r > 0 && (r < cfg.Lockout.Policy.Window || r < cfg.Lockout.Policy.LockDuration) {
		return nil, fmt.Errorf("LOGIN_ATTEMPT_RETENTION must cover LOCKOUT_WINDOW and LOCKOUT_DURATION")
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

// parsePolicies reads "class=capacity/window" pairs. Every known class must be present.
func parsePolicies(raw string) (map[models.EndpointClass]models.RatePolicy, error) {
	policies := make(map[models.EndpointClass]models.RatePolicy)

	for _, entry := range splitList(raw) {
		name, spec, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("malformed entry %q", entry)
		}

		class, err := models.ParseEndpointClass(name)
		if err != nil {
			return nil, err
		}

		capStr, windowStr, ok := strings.Cut(spec, "/")
		if !ok {
			return nil, fmt.Errorf("entry %q must be capacity/window", entry)
		}

		capacity, err := strconv.Atoi(strings.TrimSpace(capStr))
		if err != nil {
			return nil, fmt.Errorf("entry %q: invalid capacity: %w", entry, err)
		}

		window, err := time.ParseDuration(strings.TrimSpace(windowStr))
		if err != nil {
			return nil, fmt.Errorf("entry %q: invalid window: %w", entry, err)
		}

		policy := models.RatePolicy{Capacity: capacity, Window: window}
		if err := policy.Validate(); err != nil {
			return nil, fmt.Errorf("class %s: %w", class, err)
		}
		policies[class] = policy
	}

	for _, class := range models.AllEndpointClasses() {
		if _, ok := policies[class]; !ok {
			return nil, fmt.Errorf("missing policy for class %s", class)
		}
	}

	return policies, nil
}

// parseRoutes reads "prefix=class" pairs
func parseRoutes(raw string) (map[string]models.EndpointClass, error) {
	routes := make(map[string]models.EndpointClass)

	for _, entry := range splitList(raw) {
		prefix, name, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("malformed entry %q", entry)
		}

		prefix = strings.TrimSpace(prefix)
		if !strings.HasPrefix(prefix, "/") {
			return nil, fmt.Errorf("route prefix %q must start with /", prefix)
		}

		class, err := models.ParseEndpointClass(name)
		if err != nil {
			return nil, err
		}
		routes[prefix] = class
	}

	return routes, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}
	return splitList(value)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
