package crypto

import (
	"strings"

	"lukechampine.com/blake3"
)

const moduleAccountContext = "liquidstake module account v1"

// DeriveModuleAccount maps a configuration seed to a module-owned account. The
// seed is trimmed; distinct seeds yield distinct accounts with overwhelming
// probability, while equal seeds always yield the same account.
func DeriveModuleAccount(seed string) [AddressLength]byte {
	var out [AddressLength]byte
	blake3.DeriveKey(out[:], moduleAccountContext, []byte(strings.TrimSpace(seed)))
	return out
}
