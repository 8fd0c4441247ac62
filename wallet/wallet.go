package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/blocknetprivacy/proofledger/ledger"
)

// ErrWrongPassword is returned when a key file does not decrypt.
var ErrWrongPassword = errors.New("failed to decrypt key file (wrong password?)")

// wipeBytes best-effort zeroes a byte slice.
// This is not a guarantee in Go (copies may exist), but it reduces exposure windows.
func wipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Wallet holds one signing key loaded from an encrypted key file.
type Wallet struct {
	filename  string
	key       *ledger.PrivateKey
	createdAt time.Time
}

// keyFileData is the plaintext inside the encrypted file
type keyFileData struct {
	Version    uint32 `json:"version"`
	PrivateKey string `json:"private_key"`
	Address    string `json:"address"`
	CreatedAt  int64  `json:"created_at"`
}

// NewWallet generates a fresh key and writes it to filename, encrypted with
// password. An existing file is never overwritten.
func NewWallet(filename string, password []byte, kdf KDFParams) (*Wallet, error) {
	key, err := ledger.GenerateKey()
	if err != nil {
		return nil, err
	}
	return ImportKey(filename, password, key, kdf)
}

// ImportKey writes an existing key to a new encrypted key file.
func ImportKey(filename string, password []byte, key *ledger.PrivateKey, kdf KDFParams) (*Wallet, error) {
	if len(password) == 0 {
		return nil, errors.New("password must not be empty")
	}

	w := &Wallet{
		filename:  filename,
		key:       key,
		createdAt: time.Now(),
	}
	if err := w.save(password, kdf); err != nil {
		return nil, fmt.Errorf("failed to save new key file: %w", err)
	}
	return w, nil
}

// LoadWallet decrypts an existing key file.
func LoadWallet(filename string, password []byte) (*Wallet, error) {
	encrypted, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	plaintext, err := decrypt(encrypted, password)
	if err != nil {
		return nil, err
	}
	defer wipeBytes(plaintext)

	var data keyFileData
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, fmt.Errorf("failed to parse key file: %w", err)
	}

	key, err := ledger.KeyFromPrivateHex(data.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("key file holds an invalid key: %w", err)
	}
	if data.Address != "" && data.Address != key.Address() {
		return nil, errors.New("key file address does not match its key")
	}

	return &Wallet{
		filename:  filename,
		key:       key,
		createdAt: time.Unix(data.CreatedAt, 0),
	}, nil
}

func (w *Wallet) save(password []byte, kdf KDFParams) error {
	raw := w.key.Bytes()
	defer wipeBytes(raw)

	data := keyFileData{
		Version:    1,
		PrivateKey: fmt.Sprintf("%x", raw),
		Address:    w.key.Address(),
		CreatedAt:  w.createdAt.Unix(),
	}
	plaintext, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal key file: %w", err)
	}
	defer wipeBytes(plaintext)

	encrypted, err := encrypt(plaintext, password, kdf)
	if err != nil {
		return fmt.Errorf("failed to encrypt key file: %w", err)
	}

	if dir := filepath.Dir(w.filename); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create key directory: %w", err)
		}
	}
	f, err := os.OpenFile(w.filename, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create key file: %w", err)
	}
	if _, err := f.Write(encrypted); err != nil {
		f.Close()
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return f.Close()
}

// Key returns the signing key.
func (w *Wallet) Key() *ledger.PrivateKey { return w.key }

// Address returns the hex public key used in records.
func (w *Wallet) Address() string { return w.key.Address() }

// DisplayAddress returns the checksummed base58 form of the address.
func (w *Wallet) DisplayAddress() string {
	addr, err := EncodeAddress(w.key.Address())
	if err != nil {
		// Address() is always a valid compressed key.
		panic(err)
	}
	return addr
}

// Filename returns the key file path.
func (w *Wallet) Filename() string { return w.filename }

// CreatedAt returns when the key file was first written.
func (w *Wallet) CreatedAt() time.Time { return w.createdAt }

// Close wipes the key from memory.
func (w *Wallet) Close() {
	if w.key != nil {
		w.key.Zero()
	}
}

// ============================================================================
// Encryption helpers (Argon2id + AES-GCM)
// ============================================================================

// KDFParams tunes the Argon2id key derivation.
type KDFParams struct {
	Time    uint32 // iterations
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultKDFParams are used for new key files.
var DefaultKDFParams = KDFParams{
	Time:    3,
	Memory:  64 * 1024, // 64 MiB
	Threads: 4,
}

const (
	keyFileMagic = "PLDGRKEY" // 8 bytes

	keyFileFormatVersion uint8 = 1

	keyFileSaltLen = 16
	keyFileKeyLen  = 32

	// Header = magic(8) + formatVer(1) + time(4) + memKiB(4) + threads(1) + reserved(2)
	keyFileHeaderLen = 8 + 1 + 4 + 4 + 1 + 2
)

func deriveKey(password, salt []byte, p KDFParams) []byte {
	if p.Time == 0 {
		p.Time = DefaultKDFParams.Time
	}
	if p.Memory == 0 {
		p.Memory = DefaultKDFParams.Memory
	}
	if p.Threads == 0 {
		p.Threads = DefaultKDFParams.Threads
	}
	return argon2.IDKey(password, salt, p.Time, p.Memory, p.Threads, keyFileKeyLen)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// encrypt lays out:
// magic(8) || formatVer(1) || time(4) || memKiB(4) || threads(1) || reserved(2) ||
// salt(16) || nonce || ciphertext
func encrypt(plaintext, password []byte, p KDFParams) ([]byte, error) {
	salt := make([]byte, keyFileSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	key := deriveKey(password, salt, p)
	defer wipeBytes(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	header := make([]byte, keyFileHeaderLen)
	copy(header[0:8], keyFileMagic)
	header[8] = keyFileFormatVersion
	binary.BigEndian.PutUint32(header[9:13], p.Time)
	binary.BigEndian.PutUint32(header[13:17], p.Memory)
	header[17] = p.Threads

	// The header is authenticated so KDF parameters cannot be swapped.
	ciphertext := gcm.Seal(nil, nonce, plaintext, header)

	result := make([]byte, 0, len(header)+len(salt)+len(nonce)+len(ciphertext))
	result = append(result, header...)
	result = append(result, salt...)
	result = append(result, nonce...)
	result = append(result, ciphertext...)
	return result, nil
}

func decrypt(data, password []byte) ([]byte, error) {
	if len(data) < keyFileHeaderLen+keyFileSaltLen {
		return nil, errors.New("key file too short")
	}
	if string(data[:8]) != keyFileMagic {
		return nil, errors.New("not a key file")
	}
	if v := data[8]; v != keyFileFormatVersion {
		return nil, fmt.Errorf("unsupported key file format version: %d", v)
	}

	header := data[:keyFileHeaderLen]
	p := KDFParams{
		Time:    binary.BigEndian.Uint32(header[9:13]),
		Memory:  binary.BigEndian.Uint32(header[13:17]),
		Threads: header[17],
	}

	off := keyFileHeaderLen
	salt := data[off : off+keyFileSaltLen]
	off += keyFileSaltLen

	key := deriveKey(password, salt, p)
	defer wipeBytes(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(data) < off+gcm.NonceSize() {
		return nil, errors.New("key file too short")
	}
	nonce := data[off : off+gcm.NonceSize()]
	ciphertext := data[off+gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, header)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}
