package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Geo      GeoConfig
	Redis    RedisConfig
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
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	LoginPath      string
}

type AuthConfig struct {
	AdminSecret     string
	SiteSecret      string
	ClientAppSecret string
	ClientAppAPIKey string

	// BaseTokenUnit is the day-unit all token lifetimes are multiples of.
	BaseTokenUnit time.Duration

	MaxConsecutiveFailures int
	LookbackWindow         time.Duration
	LookbackAttempts       int
	BaseLockout            time.Duration
	MaxLockout             time.Duration

	CleanupInterval     time.Duration
	TimingDelayBaseMs   int
	TimingDelayRandomMs int
}

type GeoConfig struct {
	BaseURL string
	Timeout time.Duration
}

type RedisConfig struct {
	Addr     string // empty disables the verification cache
	Password string
	DB       int
	CacheTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "sitegate"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			LoginPath:      getEnv("LOGIN_PATH", "/login"),
		},
		Auth: AuthConfig{
			AdminSecret:     os.Getenv("ADMIN_AUTH_SECRET"),
			SiteSecret:      os.Getenv("SITE_AUTH_SECRET"),
			ClientAppSecret: os.Getenv("CLIENT_APP_AUTH_SECRET"),
			ClientAppAPIKey: os.Getenv("CLIENT_APP_API_KEY"),

			BaseTokenUnit: getEnvAsDuration("BASE_TOKEN_UNIT", 24*time.Hour),

			MaxConsecutiveFailures: getEnvAsInt("MAX_CONSECUTIVE_FAILURES", 5),
			LookbackWindow:         getEnvAsDuration("RATE_LIMIT_LOOKBACK_WINDOW", 15*time.Minute),
			LookbackAttempts:       getEnvAsInt("RATE_LIMIT_LOOKBACK_ATTEMPTS", 20),
			BaseLockout:            getEnvAsDuration("BASE_LOCKOUT_DURATION", 5*time.Minute),
			MaxLockout:             getEnvAsDuration("MAX_LOCKOUT_DURATION", 1*time.Hour),

			CleanupInterval:     getEnvAsDuration("PASSWORD_CLEANUP_INTERVAL", 1*time.Hour),
			TimingDelayBaseMs:   getEnvAsInt("TIMING_DELAY_BASE_MS", 200),
			TimingDelayRandomMs: getEnvAsInt("TIMING_DELAY_RANDOM_MS", 100),
		},
		Geo: GeoConfig{
			BaseURL: getEnv("GEO_LOOKUP_URL", "https://ipwho.is"),
			Timeout: getEnvAsDuration("GEO_LOOKUP_TIMEOUT", 2*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			CacheTTL: getEnvAsDuration("VERIFY_CACHE_TTL", 30*time.Second),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateSecrets(&cfg.Auth, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecrets enforces presence, minimum strength, and pairwise
// distinctness of the signing secrets. Absence is a fatal configuration
// error, not a runtime-recoverable one.
func validateSecrets(auth *AuthConfig, env string) error {
	secrets := map[string]string{
		"ADMIN_AUTH_SECRET":      auth.AdminSecret,
		"SITE_AUTH_SECRET":       auth.SiteSecret,
		"CLIENT_APP_AUTH_SECRET": auth.ClientAppSecret,
		"CLIENT_APP_API_KEY":     auth.ClientAppAPIKey,
	}

	minLength := 16
	if env == "production" {
		minLength = 32
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	for name, value := range secrets {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
		if len(value) < minLength {
			return fmt.Errorf("%s must be at least %d characters in %s environment (got %d)",
				name, minLength, env, len(value))
		}
		lower := strings.ToLower(value)
		for _, weak := range weakSecrets {
			if lower == weak {
				return fmt.Errorf("%s cannot be a common weak value", name)
			}
		}
	}

	// A token signed for one class must never verify under another.
	if auth.AdminSecret == auth.SiteSecret ||
		auth.AdminSecret == auth.ClientAppSecret ||
		auth.SiteSecret == auth.ClientAppSecret {
		return fmt.Errorf("signing secrets must be distinct across token classes")
	}

	return nil
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

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{}
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
