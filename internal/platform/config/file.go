package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
	liststr "github.com/airalab/xcm-robobank-prototype/pkg/platform/strings"
)

// fileConfig is the TOML layout. Only keys present in the file override the
// defaults.
type fileConfig struct {
	Addr            string `toml:"addr"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
	Log             struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
	Leasing struct {
		Domain           uint32   `toml:"domain"`
		DeviceRole       bool     `toml:"device_role"`
		ClientRole       bool     `toml:"client_role"`
		Policy           string   `toml:"policy"`
		Allowlist        []string `toml:"allowlist"`
		BondRemoteOrders bool     `toml:"bond_remote_orders"`
		HoldRemoteFee    bool     `toml:"hold_remote_fee"`
		ReclaimGrace     string   `toml:"reclaim_grace"`
		SovereignKind    string   `toml:"sovereign_kind"`
	} `toml:"leasing"`
	Postgres struct {
		URL          string `toml:"url"`
		MaxOpenConns int    `toml:"max_open_conns"`
	} `toml:"postgres"`
	Redis struct {
		URL          string `toml:"url"`
		PoolSize     int    `toml:"pool_size"`
		MinIdleConns int    `toml:"min_idle_conns"`
		DialTimeout  string `toml:"dial_timeout"`
		ReadTimeout  string `toml:"read_timeout"`
		WriteTimeout string `toml:"write_timeout"`
	} `toml:"redis"`
	Kafka struct {
		Brokers           []string `toml:"brokers"`
		TopicPrefix       string   `toml:"topic_prefix"`
		ConsumerGroup     string   `toml:"consumer_group"`
		Partitions        int32    `toml:"partitions"`
		ReplicationFactor int16    `toml:"replication_factor"`
	} `toml:"kafka"`
	Auth struct {
		JWTSigningKey string `toml:"jwt_signing_key"`
		JWTIssuer     string `toml:"jwt_issuer"`
		JWTAudience   string `toml:"jwt_audience"`
		TokenTTL      string `toml:"token_ttl"`
		AdminToken    string `toml:"admin_token"`
	} `toml:"auth"`
	Dedup struct {
		TTL string `toml:"ttl"`
	} `toml:"dedup"`
	Seed struct {
		Balances map[string]uint64 `toml:"balances"`
	} `toml:"seed"`
}

func applyFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config %s: unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("addr") {
		cfg.Server.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("log", "level") {
		cfg.Log.Level = raw.Log.Level
	}
	if meta.IsDefined("log", "format") {
		cfg.Log.Format = raw.Log.Format
	}

	if meta.IsDefined("leasing", "domain") {
		cfg.Leasing.LocalDomain = domain.DomainID(raw.Leasing.Domain)
	}
	if meta.IsDefined("leasing", "device_role") {
		cfg.Leasing.DeviceRole = raw.Leasing.DeviceRole
	}
	if meta.IsDefined("leasing", "client_role") {
		cfg.Leasing.ClientRole = raw.Leasing.ClientRole
	}
	if meta.IsDefined("leasing", "policy") {
		cfg.Leasing.Policy = strings.TrimSpace(raw.Leasing.Policy)
	}
	if meta.IsDefined("leasing", "allowlist") {
		cfg.Leasing.Allowlist = accounts(liststr.DedupeAndTrim(raw.Leasing.Allowlist))
	}
	if meta.IsDefined("leasing", "bond_remote_orders") {
		cfg.Leasing.BondRemoteOrders = raw.Leasing.BondRemoteOrders
	}
	if meta.IsDefined("leasing", "hold_remote_fee") {
		cfg.Leasing.HoldRemoteFee = raw.Leasing.HoldRemoteFee
	}
	if meta.IsDefined("leasing", "sovereign_kind") {
		cfg.Leasing.SovereignKind = domain.SovereignKind(strings.TrimSpace(raw.Leasing.SovereignKind))
	}

	if meta.IsDefined("postgres", "url") {
		cfg.Postgres.URL = strings.TrimSpace(raw.Postgres.URL)
	}
	if meta.IsDefined("postgres", "max_open_conns") {
		cfg.Postgres.MaxOpenConns = raw.Postgres.MaxOpenConns
	}

	if meta.IsDefined("redis", "url") {
		cfg.Redis.URL = strings.TrimSpace(raw.Redis.URL)
	}
	if meta.IsDefined("redis", "pool_size") {
		cfg.Redis.PoolSize = raw.Redis.PoolSize
	}
	if meta.IsDefined("redis", "min_idle_conns") {
		cfg.Redis.MinIdleConns = raw.Redis.MinIdleConns
	}

	if meta.IsDefined("kafka", "brokers") {
		cfg.Kafka.Brokers = raw.Kafka.Brokers
	}
	if meta.IsDefined("kafka", "topic_prefix") {
		cfg.Kafka.TopicPrefix = strings.TrimSpace(raw.Kafka.TopicPrefix)
	}
	if meta.IsDefined("kafka", "consumer_group") {
		cfg.Kafka.ConsumerGroup = strings.TrimSpace(raw.Kafka.ConsumerGroup)
	}
	if meta.IsDefined("kafka", "partitions") {
		cfg.Kafka.Partitions = raw.Kafka.Partitions
	}
	if meta.IsDefined("kafka", "replication_factor") {
		cfg.Kafka.ReplicationFactor = raw.Kafka.ReplicationFactor
	}

	if meta.IsDefined("auth", "jwt_signing_key") {
		cfg.Auth.JWTSigningKey = raw.Auth.JWTSigningKey
	}
	if meta.IsDefined("auth", "jwt_issuer") {
		cfg.Auth.JWTIssuer = raw.Auth.JWTIssuer
	}
	if meta.IsDefined("auth", "jwt_audience") {
		cfg.Auth.JWTAudience = raw.Auth.JWTAudience
	}
	if meta.IsDefined("auth", "admin_token") {
		cfg.Auth.AdminToken = raw.Auth.AdminToken
	}

	if meta.IsDefined("seed", "balances") {
		cfg.SeedBalances = make(map[domain.AccountID]domain.Amount, len(raw.Seed.Balances))
		for name, amount := range raw.Seed.Balances {
			account, err := domain.ParseAccountID(name)
			if err != nil {
				return fmt.Errorf("load config %s: seed.balances: %w", path, err)
			}
			cfg.SeedBalances[account] = domain.Amount(amount)
		}
	}

	for _, d := range []struct {
		key []string
		raw string
		dst *time.Duration
	}{
		{[]string{"shutdown_timeout"}, raw.ShutdownTimeout, &cfg.Server.ShutdownTimeout},
		{[]string{"redis", "dial_timeout"}, raw.Redis.DialTimeout, &cfg.Redis.DialTimeout},
		{[]string{"redis", "read_timeout"}, raw.Redis.ReadTimeout, &cfg.Redis.ReadTimeout},
		{[]string{"redis", "write_timeout"}, raw.Redis.WriteTimeout, &cfg.Redis.WriteTimeout},
		{[]string{"auth", "token_ttl"}, raw.Auth.TokenTTL, &cfg.Auth.TokenTTL},
		{[]string{"dedup", "ttl"}, raw.Dedup.TTL, &cfg.DedupTTL},
		{[]string{"leasing", "reclaim_grace"}, raw.Leasing.ReclaimGrace, &cfg.Leasing.ReclaimGrace},
	} {
		if !meta.IsDefined(d.key...) {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("load config %s: %s: %w", path, strings.Join(d.key, "."), err)
		}
		*d.dst = parsed
	}
	return nil
}
