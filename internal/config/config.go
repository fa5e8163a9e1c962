package config

import (
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string
	ListenAddr  string
	LogLevel    string

	DatabaseURL string
	RedisURL    string

	JWTSecret        []byte
	JWTIssuer        string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	RefreshKeyPrefix string

	CookieSecure   bool
	CookieSameSite http.SameSite
	AllowedOrigins []string

	KafkaBrokers   []string
	KafkaAuthTopic string

	DemoHelpersEnabled bool
}

// Load reads the process environment, optionally seeded from a .env file.
func Load() Config {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("notice: cannot read .env: %v", err)
	}

	return Config{
		ServiceName: EnvDefault("SERVICE_NAME", "auth"),
		ListenAddr:  EnvDefault("LISTEN_ADDR", ":8080"),
		LogLevel:    EnvDefault("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    EnvDefault("REDIS_URL", "redis://localhost:6379/0"),

		JWTSecret:        []byte(os.Getenv("JWT_SECRET")),
		JWTIssuer:        EnvDefault("JWT_ISSUER", "ADMIN"),
		AccessTokenTTL:   EnvDurationDefault("ACCESS_TOKEN_TTL", 60*time.Minute),
		RefreshTokenTTL:  EnvDurationDefault("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		RefreshKeyPrefix: EnvDefault("REFRESH_KEY_PREFIX", "refresh:"),

		CookieSecure:   EnvBoolDefault("COOKIE_SECURE", true),
		CookieSameSite: SameSite(EnvDefault("COOKIE_SAMESITE", "None")),
		AllowedOrigins: CSV(os.Getenv("ALLOWED_ORIGINS")),

		KafkaBrokers:   CSV(os.Getenv("KAFKA_BROKERS")),
		KafkaAuthTopic: EnvDefault("KAFKA_AUTH_TOPIC", "user_events"),

		DemoHelpersEnabled: EnvBoolDefault("DEMO_HELPERS_ENABLED", false),
	}
}

// Validate reports every missing or inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("missing required env DATABASE_URL"))
	}
	if len(c.JWTSecret) == 0 {
		errs = append(errs, errors.New("missing required env JWT_SECRET"))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token ttl must be positive"))
	}
	if c.CookieSameSite == http.SameSiteNoneMode && !c.CookieSecure {
		errs = append(errs, errors.New("COOKIE_SAMESITE=None requires COOKIE_SECURE=true"))
	}
	return errors.Join(errs...)
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func EnvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func SameSite(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	default:
		return http.SameSiteNoneMode
	}
}
