// Package credential seals and opens the platform access tokens and the
// directory bind password that teamsync keeps at rest. Values are
// AES-256-GCM sealed and base64url encoded with the nonce prepended.
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/bcnelson/teamsync/internal/domain"
	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize          = 32
	minSaltSize      = 16
	defaultIteration = 100000

	// Fernet tokens are version 0x80, an 8 byte timestamp, a 16 byte IV,
	// at least one 16 byte AES-CBC block and a 32 byte HMAC.
	fernetVersion = 0x80
	fernetMinSize = 1 + 8 + 16 + 16 + 32
)

var (
	// ErrKeyLengthInvalid is returned when a key is not 32 bytes.
	ErrKeyLengthInvalid = errors.New("credential: key must be exactly 32 bytes for AES-256")
	// ErrSaltTooShort is returned when a derivation salt is under 16 bytes.
	ErrSaltTooShort = errors.New("credential: salt must be at least 16 bytes")
	// ErrLegacyToken is returned for Fernet tokens, which this format cannot
	// open. The value has to be encrypted again with `teamsync token encrypt`.
	ErrLegacyToken = fmt.Errorf("%w: Fernet token, encrypt it again with `teamsync token encrypt`", domain.ErrInvalidToken)
)

// Cipher seals and opens credentials with one master key.
type Cipher struct {
	aead cipher.AEAD
}

// New creates a Cipher from a raw 32-byte key.
func New(key []byte) (*Cipher, error) {
	if len(key) != keySize {
		return nil, ErrKeyLengthInvalid
	}
	k := make([]byte, keySize)
	copy(k, key)
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// Derive creates a Cipher from a passphrase with PBKDF2-SHA256.
func Derive(passphrase string, salt []byte, iterations int) (*Cipher, error) {
	if len(salt) < minSaltSize {
		return nil, ErrSaltTooShort
	}
	if iterations < 10000 {
		iterations = defaultIteration
	}
	return New(pbkdf2.Key([]byte(passphrase), salt, iterations, keySize, sha256.New))
}

// FromConfig builds a Cipher from the ENCRYPTION_KEY setting. A 64 character
// hex string or a base64url encoded 32 byte value is used as the key
// directly; anything else is treated as a passphrase and needs a salt.
func FromConfig(key, salt string) (*Cipher, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: missing encryption key", domain.ErrInvalidInput)
	}
	if len(key) == 2*keySize {
		if raw, err := hex.DecodeString(key); err == nil {
			return New(raw)
		}
	}
	if raw, err := base64.URLEncoding.DecodeString(key); err == nil && len(raw) == keySize {
		return New(raw)
	}
	if salt == "" {
		return nil, fmt.Errorf("%w: ENCRYPTION_SALT is required when ENCRYPTION_KEY is a passphrase", domain.ErrInvalidInput)
	}
	return Derive(key, []byte(salt), 0)
}

// Seal encrypts plaintext.
func (c *Cipher) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("%w: nothing to encrypt", domain.ErrInvalidInput)
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. Any malformed, truncated or
// tampered input, or one sealed under another key, yields
// domain.ErrInvalidToken.
func (c *Cipher) Open(encoded string) (string, error) {
	if encoded == "" {
		return "", fmt.Errorf("%w: empty value", domain.ErrInvalidToken)
	}
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: not base64url", domain.ErrInvalidToken)
	}
	n := c.aead.NonceSize()
	if len(raw) < n+c.aead.Overhead() {
		return "", fmt.Errorf("%w: too short", domain.ErrInvalidToken)
	}
	plaintext, err := c.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		if isFernet(raw) {
			return "", ErrLegacyToken
		}
		return "", fmt.Errorf("%w: authentication failed", domain.ErrInvalidToken)
	}
	return string(plaintext), nil
}

// isFernet reports whether raw has the framing of a Fernet token. Only
// checked after GCM authentication failed, since a random nonce can start
// with the version byte too.
func isFernet(raw []byte) bool {
	return len(raw) >= fernetMinSize && raw[0] == fernetVersion && (len(raw)-fernetMinSize)%aes.BlockSize == 0
}

// GenerateKey returns a random key, hex encoded, suitable for ENCRYPTION_KEY.
func GenerateKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}
