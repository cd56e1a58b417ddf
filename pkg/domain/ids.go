package domain

import (
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode"

	dErrors "github.com/airalab/xcm-robobank-prototype/pkg/domain-errors"
)

// AccountID names a ledger account. Devices and clients are both identified
// by their account; there is no separate device id.
type AccountID string

// DomainID is the numeric id of an administrative domain. The zero value
// means "the local domain" wherever a request may name a counterpart domain.
type DomainID uint32

// Amount is a balance in the ledger's smallest unit.
type Amount uint64

const maxAccountIDLen = 128

func (a AccountID) String() string { return string(a) }

func (a AccountID) IsZero() bool { return a == "" }

func (d DomainID) String() string { return strconv.FormatUint(uint64(d), 10) }

// IsLocal reports whether d refers to local, given the local domain id.
func (d DomainID) IsLocal(local DomainID) bool {
	return d == 0 || d == local
}

// ParseAccountID validates an account id at a trust boundary.
func ParseAccountID(s string) (AccountID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "account id is required")
	}
	if len(s) > maxAccountIDLen {
		return "", dErrors.New(dErrors.CodeValidation, "account id too long")
	}
	for _, r := range s {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return "", dErrors.New(dErrors.CodeValidation, "account id contains invalid characters")
		}
	}
	return AccountID(s), nil
}

// ParseDomainID parses a decimal domain id.
func ParseDomainID(s string) (DomainID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeValidation, "invalid domain id")
	}
	return DomainID(v), nil
}

// SovereignKind selects the vantage point a sovereign account is derived for.
type SovereignKind string

const (
	// SovereignParent is the account of a domain as seen by its parent.
	SovereignParent SovereignKind = "para"
	// SovereignSibling is the account of a domain as seen by a sibling domain.
	SovereignSibling SovereignKind = "sibl"
)

// SovereignAccount derives the deterministic account that represents domain
// d inside another domain: 4-byte type id, little-endian id, zero padded to
// 32 bytes, hex encoded.
func SovereignAccount(kind SovereignKind, d DomainID) AccountID {
	var raw [32]byte
	copy(raw[0:4], kind)
	binary.LittleEndian.PutUint32(raw[4:8], uint32(d))
	return AccountID("0x" + hex.EncodeToString(raw[:]))
}
