package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airalab/xcm-robobank-prototype/pkg/domain"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "robobank.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, domain.DomainID(1), cfg.Leasing.LocalDomain)
	assert.True(t, cfg.Leasing.DeviceRole)
	assert.True(t, cfg.Leasing.ClientRole)
	assert.True(t, cfg.Leasing.BondRemoteOrders)
	assert.True(t, cfg.Leasing.HoldRemoteFee)
	assert.Equal(t, 5*time.Minute, cfg.Leasing.ReclaimGrace)
	assert.Equal(t, "robobank-1", cfg.Kafka.ConsumerGroup)
	assert.Empty(t, cfg.Postgres.URL)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestFileThenEnv(t *testing.T) {
	path := writeFile(t, `
addr = ":9000"

[leasing]
domain = 2000
client_role = false
policy = "allowlist"
allowlist = ["alice", "bob"]
bond_remote_orders = false
reclaim_grace = "90s"
sovereign_kind = "para"

[kafka]
brokers = ["k1:9092", "k2:9092"]
topic_prefix = "lease"

[redis]
url = "redis://localhost:6379/0"
read_timeout = "250ms"

[dedup]
ttl = "1m"

[seed]
balances = { alice = 1000, robot = 20 }
`)
	t.Setenv("ROBOBANK_CONFIG", path)
	t.Setenv("ROBOBANK_ADDR", ":9100")
	t.Setenv("ROBOBANK_HOLD_REMOTE_FEE", "false")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Server.Addr, "env wins over the file")
	assert.Equal(t, domain.DomainID(2000), cfg.Leasing.LocalDomain)
	assert.True(t, cfg.Leasing.DeviceRole, "keys absent from the file keep defaults")
	assert.False(t, cfg.Leasing.ClientRole)
	assert.Equal(t, "allowlist", cfg.Leasing.Policy)
	assert.Equal(t, []domain.AccountID{"alice", "bob"}, cfg.Leasing.Allowlist)
	assert.False(t, cfg.Leasing.BondRemoteOrders)
	assert.False(t, cfg.Leasing.HoldRemoteFee)
	assert.Equal(t, 90*time.Second, cfg.Leasing.ReclaimGrace)
	assert.Equal(t, domain.SovereignParent, cfg.Leasing.SovereignKind)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "lease", cfg.Kafka.TopicPrefix)
	assert.Equal(t, "robobank-2000", cfg.Kafka.ConsumerGroup)
	assert.Equal(t, 250*time.Millisecond, cfg.Redis.ReadTimeout)
	assert.Equal(t, 3*time.Second, cfg.Redis.WriteTimeout)
	assert.Equal(t, time.Minute, cfg.DedupTTL)
	assert.Equal(t, map[domain.AccountID]domain.Amount{"alice": 1000, "robot": 20}, cfg.SeedBalances)
}

func TestFileRejectsUnknownKeys(t *testing.T) {
	t.Setenv("ROBOBANK_CONFIG", writeFile(t, "[leasing]\ndomian = 3\n"))
	_, err := FromEnv()
	assert.ErrorContains(t, err, "unknown key")
}

func TestEnvErrors(t *testing.T) {
	cases := map[string]string{
		"ROBOBANK_DOMAIN":        "mars",
		"ROBOBANK_DEVICE_ROLE":   "maybe",
		"ROBOBANK_DEDUP_TTL":     "soon",
		"REDIS_POOL_SIZE":        "many",
		"ROBOBANK_SEED_BALANCES": "alice",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := FromEnv()
			assert.ErrorContains(t, err, key)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero domain", func(c *Config) { c.Leasing.LocalDomain = 0 }},
		{"no roles", func(c *Config) { c.Leasing.DeviceRole, c.Leasing.ClientRole = false, false }},
		{"unknown policy", func(c *Config) { c.Leasing.Policy = "lottery" }},
		{"unknown sovereign kind", func(c *Config) { c.Leasing.SovereignKind = "cousin" }},
		{"negative reclaim grace", func(c *Config) { c.Leasing.ReclaimGrace = -time.Second }},
		{"no signing key", func(c *Config) { c.Auth.JWTSigningKey = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestParseBalances(t *testing.T) {
	got, err := ParseBalances(" alice=10, bob = 20 ,")
	require.NoError(t, err)
	assert.Equal(t, map[domain.AccountID]domain.Amount{"alice": 10, "bob": 20}, got)

	_, err = ParseBalances("alice=-1")
	assert.Error(t, err)
}
