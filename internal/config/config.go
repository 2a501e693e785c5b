package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageMongo    = "mongo"

	AuthModeHeader = "header"
	AuthModeJWT    = "jwt"

	EvaluatorNative = "native"
	EvaluatorOPA    = "opa"

	NotifyNone = "none"
	NotifyLog  = "log"
	NotifySMTP = "smtp"
)

type Config struct {
	HTTPAddr    string
	DealroomEnv string
	LogLevel    string
	LogFile     string

	StorageBackend      string
	PostgresDSN         string
	MongoURI            string
	MongoDatabase       string
	StoreTimeoutSeconds int

	AuthMode  string
	JWTSecret string
	JWTIssuer string
	AdminRole string

	DecisionEvaluator string
	OPABundlePath     string

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitFailClosed    bool
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NotifyMode           string
	NotifyTimeoutSeconds int
	SMTPHost             string
	SMTPPort             int
	SMTPUsername         string
	SMTPPassword         string
	SMTPFrom             string

	MetricsEnabled bool
}

// Load reads envFile into the process environment when it exists, then
// builds and validates the config. Variables already set win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return Config{}, fmt.Errorf("load %s: %w", envFile, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("stat %s: %w", envFile, err)
		}
	}
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	postgresDSN := os.Getenv("POSTGRES_DSN")
	mongoURI := os.Getenv("MONGO_URI")
	return Config{
		HTTPAddr:               addr,
		DealroomEnv:            envDefault("DEALROOM_ENV", "development"),
		LogLevel:               envDefault("LOG_LEVEL", "info"),
		LogFile:                os.Getenv("LOG_FILE"),
		StorageBackend:         strings.ToLower(envDefault("STORAGE_BACKEND", defaultBackend(postgresDSN, mongoURI))),
		PostgresDSN:            postgresDSN,
		MongoURI:               mongoURI,
		MongoDatabase:          envDefault("MONGO_DATABASE", "dealroom"),
		StoreTimeoutSeconds:    envIntDefault("STORE_TIMEOUT_SECONDS", 5),
		AuthMode:               strings.ToLower(envDefault("AUTH_MODE", AuthModeHeader)),
		JWTSecret:              os.Getenv("JWT_SECRET"),
		JWTIssuer:              os.Getenv("JWT_ISSUER"),
		AdminRole:              envDefault("ADMIN_ROLE", "admin"),
		DecisionEvaluator:      strings.ToLower(envDefault("DECISION_EVALUATOR", EvaluatorNative)),
		OPABundlePath:          os.Getenv("OPA_BUNDLE_PATH"),
		RateLimitRequests:      envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds: envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitFailClosed:    envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false),
		RateLimitMaxKeys:       envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                envIntDefault("REDIS_DB", 0),
		NotifyMode:             strings.ToLower(envDefault("NOTIFY_MODE", NotifyLog)),
		NotifyTimeoutSeconds:   envIntDefault("NOTIFY_TIMEOUT_SECONDS", 10),
		SMTPHost:               os.Getenv("SMTP_HOST"),
		SMTPPort:               envIntDefault("SMTP_PORT", 587),
		SMTPUsername:           os.Getenv("SMTP_USERNAME"),
		SMTPPassword:           os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:               os.Getenv("SMTP_FROM"),
		MetricsEnabled:         envBoolDefault("METRICS_ENABLED", true),
	}
}

func (c Config) Validate() error {
	switch c.StorageBackend {
	case StorageMemory:
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return errors.New("STORAGE_BACKEND=postgres requires POSTGRES_DSN")
		}
	case StorageMongo:
		if c.MongoURI == "" {
			return errors.New("STORAGE_BACKEND=mongo requires MONGO_URI")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	switch c.AuthMode {
	case AuthModeHeader:
	case AuthModeJWT:
		if c.JWTSecret == "" {
			return errors.New("AUTH_MODE=jwt requires JWT_SECRET")
		}
	default:
		return fmt.Errorf("unknown AUTH_MODE %q", c.AuthMode)
	}
	if c.DecisionEvaluator != EvaluatorNative && c.DecisionEvaluator != EvaluatorOPA {
		return fmt.Errorf("unknown DECISION_EVALUATOR %q", c.DecisionEvaluator)
	}
	switch c.NotifyMode {
	case NotifyNone, NotifyLog:
	case NotifySMTP:
		if c.SMTPHost == "" || c.SMTPFrom == "" {
			return errors.New("NOTIFY_MODE=smtp requires SMTP_HOST and SMTP_FROM")
		}
	default:
		return fmt.Errorf("unknown NOTIFY_MODE %q", c.NotifyMode)
	}
	return nil
}

func (c Config) StoreTimeout() time.Duration {
	if c.StoreTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.StoreTimeoutSeconds) * time.Second
}

// NotifyTimeout bounds one notification delivery. Zero means no bound.
func (c Config) NotifyTimeout() time.Duration {
	if c.NotifyTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.NotifyTimeoutSeconds) * time.Second
}

func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

func (c Config) Production() bool {
	return c.DealroomEnv == "production"
}

func defaultBackend(postgresDSN, mongoURI string) string {
	switch {
	case postgresDSN != "":
		return StoragePostgres
	case mongoURI != "":
		return StorageMongo
	default:
		return StorageMemory
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}
