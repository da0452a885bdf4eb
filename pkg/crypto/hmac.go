package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// HMACSigner signs with a shared secret. The MAC covers the raw payload,
// not its hash.
type HMACSigner struct {
	secret []byte
}

func NewHMACSigner(secret string) *HMACSigner {
	return &HMACSigner{secret: []byte(secret)}
}

func (s *HMACSigner) Scheme() Scheme { return SchemeHMAC }

func (s *HMACSigner) Sign(payload []byte) (string, error) {
	return hex.EncodeToString(s.mac(payload)), nil
}

// Verify compares in constant time.
func (s *HMACSigner) Verify(payload []byte, sigHex string) bool {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	return hmac.Equal(sig, s.mac(payload))
}

func (s *HMACSigner) mac(payload []byte) []byte {
	m := hmac.New(sha256.New, s.secret)
	m.Write(payload)
	return m.Sum(nil)
}
