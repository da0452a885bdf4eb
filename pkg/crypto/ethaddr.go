// file: pkg/crypto/ethaddr.go
package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// AddressFromUncompressedPub expects 65-byte uncompressed secp256k1 pubkey (0x04 || X || Y).
// Returns EIP-55 checksummed hex string like 0xABCD...
func AddressFromUncompressedPub(pub []byte) string {
	if len(pub) != 65 || pub[0] != 0x04 {
		return ""
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(pub[1:])
	sum := h.Sum(nil)
	return EIP55(sum[12:])
}

// AddressFromKeyHex accepts either a 20-byte address or a 65-byte
// uncompressed public key, hex encoded with or without 0x, and returns the
// checksummed address. Account public keys are configured in either form.
func AddressFromKeyHex(key string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(key, "0x"))
	if err != nil {
		return "", fmt.Errorf("invalid hex key: %w", err)
	}
	switch len(raw) {
	case 20:
		return EIP55(raw), nil
	case 65:
		if addr := AddressFromUncompressedPub(raw); addr != "" {
			return addr, nil
		}
		return "", fmt.Errorf("public key is not uncompressed secp256k1")
	default:
		return "", fmt.Errorf("key is %d bytes, want 20 or 65", len(raw))
	}
}

// EIP55 computes the checksummed hex address string from 20-byte raw address.
func EIP55(addr20 []byte) string {
	hexaddr := hex.EncodeToString(addr20)
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(hexaddr))
	hash := h.Sum(nil)

	out := make([]byte, 2+len(hexaddr))
	copy(out, "0x")
	for i, c := range []byte(hexaddr) {
		if c >= '0' && c <= '9' {
			out[2+i] = c
			continue
		}
		// high nibble for even positions, low nibble for odd
		nibble := hash[i>>1] & 0x0f
		if i%2 == 0 {
			nibble = hash[i>>1] >> 4
		}
		if nibble >= 8 {
			c -= 'a' - 'A'
		}
		out[2+i] = c
	}
	return string(out)
}
