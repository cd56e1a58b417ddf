//go:build go1.18

package domain

import (
	"testing"
)

// FuzzParseAccountID checks that parsing never panics and that accepted ids
// round-trip unchanged.
func FuzzParseAccountID(f *testing.F) {
	f.Add("")
	f.Add("device-100")
	f.Add("0x7061726164000000")
	f.Add("'; DROP TABLE devices;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseAccountID(input)
		if err != nil {
			return
		}
		again, err := ParseAccountID(id.String())
		if err != nil {
			t.Errorf("accepted id failed round-trip: %v", err)
		}
		if again != id {
			t.Error("round-trip changed id value")
		}
		if id.IsZero() {
			t.Error("accepted an empty id")
		}
	})
}
