package ledger

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// PrivateKeySize is the length of a serialized secp256k1 private key.
const PrivateKeySize = secp256k1.PrivKeyBytesLen

// PrivateKey is a secp256k1 signing key.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// PublicKey is a secp256k1 verification key. Its compressed hex encoding is
// the address used in records.
type PublicKey struct {
	key *secp256k1.PublicKey
}

// GenerateKey creates a new random signing key.
func GenerateKey() (*PrivateKey, error) {
	k, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &PrivateKey{key: k}, nil
}

// KeyFromPrivate loads a signing key from its 32-byte big-endian scalar.
func KeyFromPrivate(b []byte) (*PrivateKey, error) {
	if len(b) != PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", PrivateKeySize, len(b))
	}
	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(b); overflow || scalar.IsZero() {
		return nil, errors.New("private key out of range")
	}
	return &PrivateKey{key: secp256k1.NewPrivateKey(&scalar)}, nil
}

// KeyFromPrivateHex loads a signing key from hex.
func KeyFromPrivateHex(s string) (*PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}
	return KeyFromPrivate(b)
}

// KeyFromPublic parses a compressed or uncompressed hex public key.
func KeyFromPublic(s string) (*PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid public key hex: %w", err)
	}
	k, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	return &PublicKey{key: k}, nil
}

// Bytes returns the 32-byte scalar. Callers own the returned slice.
func (k *PrivateKey) Bytes() []byte {
	return k.key.Serialize()
}

// Public returns the verification half of the key.
func (k *PrivateKey) Public() *PublicKey {
	return &PublicKey{key: k.key.PubKey()}
}

// Address returns the compressed hex public key.
func (k *PrivateKey) Address() string {
	return k.Public().Hex()
}

// Sign signs a hex digest and returns the DER signature as hex. Signatures
// are deterministic (RFC 6979).
func (k *PrivateKey) Sign(digest string) (string, error) {
	msg, err := hex.DecodeString(digest)
	if err != nil {
		return "", fmt.Errorf("invalid digest hex: %w", err)
	}
	sig := ecdsa.Sign(k.key, msg)
	return hex.EncodeToString(sig.Serialize()), nil
}

// Zero clears the key material.
func (k *PrivateKey) Zero() {
	k.key.Zero()
}

// Hex returns the compressed public key as hex.
func (p *PublicKey) Hex() string {
	return hex.EncodeToString(p.key.SerializeCompressed())
}

// HexUncompressed returns the 65-byte uncompressed encoding as hex.
func (p *PublicKey) HexUncompressed() string {
	return hex.EncodeToString(p.key.SerializeUncompressed())
}

// Equal reports whether both keys are the same curve point.
func (p *PublicKey) Equal(other *PublicKey) bool {
	if p == nil || other == nil {
		return false
	}
	return p.key.IsEqual(other.key)
}

// Verify checks a hex DER signature over a hex digest. Only the encoding Sign
// produces is accepted: lowercase hex of a low-S DER signature.
func (p *PublicKey) Verify(digest, signature string) bool {
	msg, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}
	der, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(der)
	if err != nil {
		return false
	}
	if hex.EncodeToString(sig.Serialize()) != signature {
		return false
	}
	return sig.Verify(msg, p.key)
}

// VerifySignature checks signature over digest against a hex public key.
// Malformed keys or signatures fail verification.
func VerifySignature(publicHex, digest, signature string) bool {
	pub, err := KeyFromPublic(publicHex)
	if err != nil {
		return false
	}
	return pub.Verify(digest, signature)
}
