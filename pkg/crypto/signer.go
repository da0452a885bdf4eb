package crypto

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is r(32) || s(32) || v(1).
const SignatureLength = 65

// ECSigner signs exchange payloads with a secp256k1 key
// Signature is over sha256(payload), rendered as lowercase hex of R || S || V
type ECSigner struct {
	privateKey *ecdsa.PrivateKey
	publicKey  *ecdsa.PublicKey
	address    common.Address
}

// GenerateKey creates a new random secp256k1 key pair
func GenerateKey() (*ECSigner, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return newECSigner(privateKey)
}

// FromPrivateKeyHex creates a signer from a hex-encoded private key
// Format: "0x1234..." or "1234..." (64 hex chars)
func FromPrivateKeyHex(hexKey string) (*ECSigner, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return newECSigner(privateKey)
}

func newECSigner(privateKey *ecdsa.PrivateKey) (*ECSigner, error) {
	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("failed to cast public key to ECDSA")
	}
	return &ECSigner{
		privateKey: privateKey,
		publicKey:  publicKeyECDSA,
		address:    crypto.PubkeyToAddress(*publicKeyECDSA),
	}, nil
}

func (s *ECSigner) Scheme() Scheme { return SchemeEC }

// Address returns the address derived from the public key
func (s *ECSigner) Address() common.Address {
	return s.address
}

// PrivateKeyHex returns the private key as hex string (WITHOUT 0x prefix)
// WARNING: Keep this secret! Never expose to users or logs
func (s *ECSigner) PrivateKeyHex() string {
	return fmt.Sprintf("%x", crypto.FromECDSA(s.privateKey))
}

// PublicKeyHex returns the public key as hex string (uncompressed, 130 chars)
func (s *ECSigner) PublicKeyHex() string {
	return fmt.Sprintf("%x", crypto.FromECDSAPub(s.publicKey))
}

// Sign hashes payload with SHA-256 and signs the digest.
func (s *ECSigner) Sign(payload []byte) (string, error) {
	sig, err := s.SignDigest(Digest(payload))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig), nil
}

// SignDigest signs a 32 byte digest and returns [R || S || V] with V the
// raw recovery id (0 or 1), not the 27/28 form.
func (s *ECSigner) SignDigest(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}

	signature, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return signature, nil
}

// Digest is the SHA-256 hash the EC scheme signs.
func Digest(payload []byte) []byte {
	sum := sha256.Sum256(payload)
	return sum[:]
}

// RecoverSigner recovers the address that produced sigHex over payload.
func RecoverSigner(payload []byte, sigHex string) (common.Address, error) {
	signature, err := DecodeSignature(sigHex)
	if err != nil {
		return common.Address{}, err
	}

	publicKeyBytes, err := crypto.Ecrecover(Digest(payload), signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}

	publicKey, err := crypto.UnmarshalPubkey(publicKeyBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unmarshal public key: %w", err)
	}
	return crypto.PubkeyToAddress(*publicKey), nil
}

// VerifySignature reports whether sigHex over payload was made by address.
func VerifySignature(address common.Address, payload []byte, sigHex string) bool {
	recovered, err := RecoverSigner(payload, sigHex)
	if err != nil {
		return false
	}
	return recovered == address
}

// DecodeSignature converts a hex signature (with or without 0x) to bytes
func DecodeSignature(sigHex string) ([]byte, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	if len(sig) != SignatureLength {
		return nil, fmt.Errorf("signature must be %d bytes, got %d", SignatureLength, len(sig))
	}
	return sig, nil
}
