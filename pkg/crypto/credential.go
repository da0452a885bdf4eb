package crypto

import (
	"fmt"
	"strings"

	"github.com/uhyunpark/hibachi/pkg/errs"
)

type Scheme int

const (
	SchemeNone Scheme = iota
	SchemeEC
	SchemeHMAC
)

func (s Scheme) String() string {
	switch s {
	case SchemeEC:
		return "ecdsa"
	case SchemeHMAC:
		return "hmac"
	default:
		return "none"
	}
}

// Credential is the one signing key a client holds.
type Credential interface {
	Sign(payload []byte) (string, error)
	Scheme() Scheme
}

// NewCredential picks the scheme from the key's shape: a 0x prefixed key is
// a secp256k1 private key, anything else non-empty is an HMAC secret. An
// empty key yields a credential whose Sign fails with errs.ErrNoCredential.
func NewCredential(key string) (Credential, error) {
	switch {
	case key == "":
		return NoCredential{}, nil
	case strings.HasPrefix(key, "0x"):
		s, err := FromPrivateKeyHex(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
		}
		return s, nil
	default:
		return NewHMACSigner(key), nil
	}
}

// NoCredential is the unconfigured credential.
type NoCredential struct{}

func (NoCredential) Sign([]byte) (string, error) { return "", errs.ErrNoCredential }
func (NoCredential) Scheme() Scheme              { return SchemeNone }
