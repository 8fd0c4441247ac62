package wallet

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/sha3"

	"github.com/blocknetprivacy/proofledger/ledger"
	"github.com/blocknetprivacy/proofledger/protocol/params"
)

const (
	compressedKeyLen = 33
	checksumLen      = 4
)

// EncodeAddress converts a hex public key into its display form:
// base58(compressed_pub || checksum4).
func EncodeAddress(publicHex string) (string, error) {
	pub, err := ledger.KeyFromPublic(publicHex)
	if err != nil {
		return "", err
	}
	payload, _ := hex.DecodeString(pub.Hex())

	sum := addressChecksum(payload)
	combined := make([]byte, 0, compressedKeyLen+checksumLen)
	combined = append(combined, payload...)
	combined = append(combined, sum[:checksumLen]...)
	return base58.Encode(combined), nil
}

// ParseAddress accepts a hex public key (compressed or uncompressed) or a
// base58 display address and returns the compressed hex key that records
// use as their address.
func ParseAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", errors.New("empty address")
	}

	if isHex(address) {
		pub, err := ledger.KeyFromPublic(address)
		if err != nil {
			return "", err
		}
		return pub.Hex(), nil
	}

	decoded := base58.Decode(address)
	if len(decoded) != compressedKeyLen+checksumLen {
		return "", errors.New("invalid address length")
	}
	payload := decoded[:compressedKeyLen]
	checksum := decoded[compressedKeyLen:]
	sum := addressChecksum(payload)
	for i := 0; i < checksumLen; i++ {
		if checksum[i] != sum[i] {
			return "", errors.New("invalid address checksum")
		}
	}

	pub, err := ledger.KeyFromPublic(hex.EncodeToString(payload))
	if err != nil {
		return "", err
	}
	return pub.Hex(), nil
}

func isHex(s string) bool {
	if len(s)%2 != 0 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func addressChecksum(payload []byte) [32]byte {
	const tag = "proofledger_address_checksum"
	b := make([]byte, 0, len(tag)+len(params.NetworkID)+len(payload))
	b = append(b, tag...)
	b = append(b, params.NetworkID...)
	b = append(b, payload...)
	return sha3.Sum256(b)
}
