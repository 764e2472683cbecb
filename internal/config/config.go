package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Escalation   EscalationConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines service-token verification parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// EscalationConfig tunes the escalation clock and sweep.
type EscalationConfig struct {
	// TierOffsetsMinutes maps each support level to the cumulative
	// number of minutes after ticket creation at which the level is
	// entered. A level absent from the map is never escalated into.
	TierOffsetsMinutes map[domain.SupportLevel]int

	// PriorityMultipliers scale tier offsets per priority. Lower
	// multipliers escalate faster.
	PriorityMultipliers map[domain.Priority]float64

	SweepIntervalSeconds int
	SweepBatchLimit      int
	SweepLockTTLSeconds  int
	FallbackAssignee     string
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	tierOffsets, err := parseTierOffsets(getEnv("ESCALATION_TIER_OFFSETS", "L0=0,L1=240,L2=480"))
	if err != nil {
		return nil, fmt.Errorf("invalid ESCALATION_TIER_OFFSETS: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-sla-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Escalation: EscalationConfig{
			TierOffsetsMinutes: tierOffsets,
			PriorityMultipliers: map[domain.Priority]float64{
				domain.PriorityP1: getEnvAsFloat("ESCALATION_MULTIPLIER_P1", 0.5),
				domain.PriorityP2: getEnvAsFloat("ESCALATION_MULTIPLIER_P2", 1),
				domain.PriorityP3: getEnvAsFloat("ESCALATION_MULTIPLIER_P3", 1.5),
				domain.PriorityP4: getEnvAsFloat("ESCALATION_MULTIPLIER_P4", 2),
			},
			SweepIntervalSeconds: getEnvAsInt("ESCALATION_SWEEP_INTERVAL_SECONDS", 60),
			SweepBatchLimit:      getEnvAsInt("ESCALATION_SWEEP_BATCH_LIMIT", 500),
			SweepLockTTLSeconds:  getEnvAsInt("ESCALATION_SWEEP_LOCK_TTL_SECONDS", 55),
			FallbackAssignee:     getEnv("ESCALATION_FALLBACK_ASSIGNEE", "unassigned"),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// SweepInterval returns how often the escalation sweep runs.
func (e EscalationConfig) SweepInterval() time.Duration {
	if e.SweepIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(e.SweepIntervalSeconds) * time.Second
}

// SweepLockTTL returns the lease duration for the sweep lock.
func (e EscalationConfig) SweepLockTTL() time.Duration {
	if e.SweepLockTTLSeconds <= 0 {
		return 55 * time.Second
	}
	return time.Duration(e.SweepLockTTLSeconds) * time.Second
}

// ConfiguredLevels lists the levels with offsets, in ladder order.
func (e EscalationConfig) ConfiguredLevels() []domain.SupportLevel {
	levels := make([]domain.SupportLevel, 0, len(e.TierOffsetsMinutes))
	for level := range e.TierOffsetsMinutes {
		levels = append(levels, level)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Rank() < levels[j].Rank() })
	return levels
}

// parseTierOffsets parses "L0=0,L1=240,L2=480" into the offset map.
func parseTierOffsets(raw string) (map[domain.SupportLevel]int, error) {
	offsets := make(map[domain.SupportLevel]int)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed tier offset %q", part)
		}
		level, err := domain.ParseSupportLevel(strings.TrimSpace(kv[0]))
		if err != nil {
			return nil, err
		}
		minutes, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil || minutes < 0 {
			return nil, fmt.Errorf("malformed tier offset minutes %q", part)
		}
		offsets[level] = minutes
	}
	if len(offsets) == 0 {
		return nil, fmt.Errorf("no tier offsets configured")
	}
	// offsets must be non-decreasing along the ladder
	prev := -1
	for _, level := range domain.SupportLevels() {
		minutes, ok := offsets[level]
		if !ok {
			continue
		}
		if minutes < prev {
			return nil, fmt.Errorf("tier offset for %s decreases", level)
		}
		prev = minutes
	}
	return offsets, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
