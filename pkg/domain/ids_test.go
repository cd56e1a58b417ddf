package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/airalab/xcm-robobank-prototype/pkg/domain-errors"
)

// TestParseAccountID_Invariants validates the trust-boundary rules for
// account ids: non-empty, bounded, printable, no whitespace.
func TestParseAccountID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseAccountID("   ")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects control characters", func(t *testing.T) {
		_, err := ParseAccountID("dev\x00ice")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects inner whitespace", func(t *testing.T) {
		_, err := ParseAccountID("dev ice")
		require.Error(t, err)
	})

	t.Run("rejects oversized ids", func(t *testing.T) {
		_, err := ParseAccountID(strings.Repeat("a", maxAccountIDLen+1))
		require.Error(t, err)
	})

	t.Run("trims and accepts", func(t *testing.T) {
		id, err := ParseAccountID("  device-100 ")
		require.NoError(t, err)
		assert.Equal(t, AccountID("device-100"), id)
	})
}

func TestParseDomainID(t *testing.T) {
	d, err := ParseDomainID("200")
	require.NoError(t, err)
	assert.Equal(t, DomainID(200), d)

	_, err = ParseDomainID("-1")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = ParseDomainID("4294967296")
	require.Error(t, err)
}

func TestDomainIsLocal(t *testing.T) {
	assert.True(t, DomainID(0).IsLocal(100))
	assert.True(t, DomainID(100).IsLocal(100))
	assert.False(t, DomainID(200).IsLocal(100))
}

func TestSovereignAccount(t *testing.T) {
	t.Run("layout is type id then little-endian id", func(t *testing.T) {
		acc := SovereignAccount(SovereignParent, 100)
		// "para" = 70617261, 100 = 0x64 little-endian
		assert.True(t, strings.HasPrefix(string(acc), "0x7061726164000000"))
		assert.Len(t, string(acc), 2+64)
	})

	t.Run("kinds and ids produce distinct accounts", func(t *testing.T) {
		seen := map[AccountID]bool{}
		for _, kind := range []SovereignKind{SovereignParent, SovereignSibling} {
			for _, d := range []DomainID{100, 200, 300} {
				acc := SovereignAccount(kind, d)
				assert.False(t, seen[acc], "duplicate %s", acc)
				seen[acc] = true
			}
		}
	})

	t.Run("derived accounts parse as account ids", func(t *testing.T) {
		_, err := ParseAccountID(string(SovereignAccount(SovereignSibling, 42)))
		require.NoError(t, err)
	})
}
