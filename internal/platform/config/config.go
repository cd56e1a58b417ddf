// Package config loads the server configuration: defaults, then an optional
// TOML file named by ROBOBANK_CONFIG, then environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
	liststr "github.com/airalab/xcm-robobank-prototype/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type Log struct {
	Level  string
	Format string
}

// Leasing is the per-domain behaviour of the marketplace core.
type Leasing struct {
	LocalDomain      domain.DomainID
	DeviceRole       bool
	ClientRole       bool
	Policy           string
	Allowlist        []domain.AccountID
	BondRemoteOrders bool
	HoldRemoteFee    bool
	ReclaimGrace     time.Duration
	SovereignKind    domain.SovereignKind
}

// PostgresConfig selects the Postgres store. An empty URL keeps state in
// memory.
type PostgresConfig struct {
	URL          string
	MaxOpenConns int
}

// RedisConfig holds Redis connection settings. An empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds the cross-domain channel settings. No brokers means the
// domain runs without neighbours.
type KafkaConfig struct {
	Brokers           []string
	TopicPrefix       string
	ConsumerGroup     string
	Partitions        int32
	ReplicationFactor int16
}

type Auth struct {
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	TokenTTL      time.Duration
	AdminToken    string
}

// Config is the full server configuration.
type Config struct {
	Server       Server
	Log          Log
	Leasing      Leasing
	Postgres     PostgresConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Auth         Auth
	DedupTTL     time.Duration
	SeedBalances map[domain.AccountID]domain.Amount
}

// Default returns a configuration that runs a single in-memory domain.
func Default() Config {
	return Config{
		Server: Server{Addr: ":8080", ShutdownTimeout: 15 * time.Second},
		Log:    Log{Level: "info", Format: "json"},
		Leasing: Leasing{
			LocalDomain:      1,
			DeviceRole:       true,
			ClientRole:       true,
			Policy:           "manual",
			BondRemoteOrders: true,
			HoldRemoteFee:    true,
			ReclaimGrace:     5 * time.Minute,
			SovereignKind:    domain.SovereignSibling,
		},
		Postgres: PostgresConfig{MaxOpenConns: 10},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			TopicPrefix:       "robobank",
			Partitions:        1,
			ReplicationFactor: 1,
		},
		Auth: Auth{
			// Use a default for development - should be overridden in production
			JWTSigningKey: "dev-secret-key-change-in-production",
			JWTIssuer:     "robobank",
			JWTAudience:   "robobank-api",
			TokenTTL:      time.Hour,
		},
		DedupTTL:     10 * time.Minute,
		SeedBalances: map[domain.AccountID]domain.Amount{},
	}
}

// FromEnv builds the configuration so main stays lean.
func FromEnv() (Config, error) {
	cfg := Default()
	if path := os.Getenv("ROBOBANK_CONFIG"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = "robobank-" + cfg.Leasing.LocalDomain.String()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	if c.Leasing.LocalDomain == 0 {
		return fmt.Errorf("config: local domain must be non-zero")
	}
	if !c.Leasing.DeviceRole && !c.Leasing.ClientRole {
		return fmt.Errorf("config: at least one of device_role and client_role must be enabled")
	}
	switch c.Leasing.Policy {
	case "", "manual", "auto", "allowlist":
	default:
		return fmt.Errorf("config: unknown acceptance policy %q", c.Leasing.Policy)
	}
	switch c.Leasing.SovereignKind {
	case domain.SovereignParent, domain.SovereignSibling:
	default:
		return fmt.Errorf("config: unknown sovereign kind %q", c.Leasing.SovereignKind)
	}
	if c.Leasing.ReclaimGrace < 0 {
		return fmt.Errorf("config: reclaim grace must not be negative")
	}
	if c.Auth.JWTSigningKey == "" {
		return fmt.Errorf("config: jwt signing key is required")
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Addr, "ROBOBANK_ADDR")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
	setString(&cfg.Leasing.Policy, "ROBOBANK_POLICY")
	setString(&cfg.Postgres.URL, "DATABASE_URL")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.Kafka.TopicPrefix, "KAFKA_TOPIC_PREFIX")
	setString(&cfg.Kafka.ConsumerGroup, "KAFKA_CONSUMER_GROUP")
	setString(&cfg.Auth.JWTSigningKey, "JWT_SIGNING_KEY")
	setString(&cfg.Auth.JWTIssuer, "JWT_ISSUER")
	setString(&cfg.Auth.JWTAudience, "JWT_AUDIENCE")
	setString(&cfg.Auth.AdminToken, "ADMIN_API_TOKEN")

	if v := os.Getenv("ROBOBANK_SOVEREIGN_KIND"); v != "" {
		cfg.Leasing.SovereignKind = domain.SovereignKind(v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = liststr.SplitList(v)
	}
	if v := os.Getenv("ROBOBANK_POLICY_ALLOWLIST"); v != "" {
		cfg.Leasing.Allowlist = accounts(liststr.SplitList(v))
	}
	if v := os.Getenv("ROBOBANK_DOMAIN"); v != "" {
		d, err := domain.ParseDomainID(v)
		if err != nil {
			return fmt.Errorf("config: ROBOBANK_DOMAIN: %w", err)
		}
		cfg.Leasing.LocalDomain = d
	}
	if v := os.Getenv("ROBOBANK_SEED_BALANCES"); v != "" {
		seed, err := ParseBalances(v)
		if err != nil {
			return fmt.Errorf("config: ROBOBANK_SEED_BALANCES: %w", err)
		}
		cfg.SeedBalances = seed
	}

	for _, b := range []struct {
		key string
		dst *bool
	}{
		{"ROBOBANK_DEVICE_ROLE", &cfg.Leasing.DeviceRole},
		{"ROBOBANK_CLIENT_ROLE", &cfg.Leasing.ClientRole},
		{"ROBOBANK_BOND_REMOTE_ORDERS", &cfg.Leasing.BondRemoteOrders},
		{"ROBOBANK_HOLD_REMOTE_FEE", &cfg.Leasing.HoldRemoteFee},
	} {
		if v := os.Getenv(b.key); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", b.key, err)
			}
			*b.dst = parsed
		}
	}

	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"ROBOBANK_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout},
		{"ROBOBANK_DEDUP_TTL", &cfg.DedupTTL},
		{"ROBOBANK_RECLAIM_GRACE", &cfg.Leasing.ReclaimGrace},
		{"JWT_TOKEN_TTL", &cfg.Auth.TokenTTL},
		{"REDIS_DIAL_TIMEOUT", &cfg.Redis.DialTimeout},
		{"REDIS_READ_TIMEOUT", &cfg.Redis.ReadTimeout},
		{"REDIS_WRITE_TIMEOUT", &cfg.Redis.WriteTimeout},
	} {
		if v := os.Getenv(d.key); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", d.key, err)
			}
			*d.dst = parsed
		}
	}

	for _, n := range []struct {
		key string
		dst *int
	}{
		{"REDIS_POOL_SIZE", &cfg.Redis.PoolSize},
		{"REDIS_MIN_IDLE_CONNS", &cfg.Redis.MinIdleConns},
		{"DATABASE_MAX_OPEN_CONNS", &cfg.Postgres.MaxOpenConns},
	} {
		if v := os.Getenv(n.key); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", n.key, err)
			}
			*n.dst = parsed
		}
	}
	return nil
}

// ParseBalances reads "account=amount" pairs separated by commas.
func ParseBalances(s string) (map[domain.AccountID]domain.Amount, error) {
	out := make(map[domain.AccountID]domain.Amount)
	for _, pair := range liststr.SplitList(s) {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("balance %q: want account=amount", pair)
		}
		account, err := domain.ParseAccountID(name)
		if err != nil {
			return nil, fmt.Errorf("balance %q: %w", pair, err)
		}
		amount, err := strconv.ParseUint(strings.TrimSpace(value), 10, 63)
		if err != nil {
			return nil, fmt.Errorf("balance %q: %w", pair, err)
		}
		out[account] = domain.Amount(amount)
	}
	return out, nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func accounts(names []string) []domain.AccountID {
	out := make([]domain.AccountID, 0, len(names))
	for _, n := range names {
		out = append(out, domain.AccountID(n))
	}
	return out
}
