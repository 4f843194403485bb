package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltSize  = 16
	NonceSize = 12
	KeySize   = 32

	// DefaultIterations is the PBKDF2 round count used for new settings.
	DefaultIterations = 100000
	// MinIterations is the floor accepted when creating new settings.
	MinIterations = 100000
)

var (
	// ErrCrypto covers invalid keys and values that cannot be encoded.
	ErrCrypto = errors.New("crypto failure")
	// ErrAuthentication means the GCM tag did not verify: wrong key or tampered data.
	ErrAuthentication = errors.New("invalid password or corrupted data")
	// ErrDecoding means the plaintext authenticated but is not valid JSON.
	ErrDecoding = errors.New("malformed payload")
)

// GenerateSalt returns 16 random bytes from the system CSPRNG.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return salt, nil
}

// DeriveKey stretches password with PBKDF2-HMAC-SHA256 into a 256-bit key.
// The same password, salt and iteration count always produce the same key.
func DeriveKey(password string, salt []byte, iterations int) ([]byte, error) {
	if len(salt) == 0 {
		return nil, fmt.Errorf("%w: empty salt", ErrCrypto)
	}
	if iterations <= 0 {
		return nil, fmt.Errorf("%w: iterations must be positive", ErrCrypto)
	}
	pw := []byte(password)
	defer Zero(pw)
	return pbkdf2.Key(pw, salt, iterations, KeySize, sha256.New), nil
}

// Encrypt serializes v as JSON and seals it with AES-256-GCM under a fresh nonce.
func Encrypt(key []byte, v any) (ciphertext, nonce []byte, err error) {
	if len(key) != KeySize {
		return nil, nil, fmt.Errorf("%w: key must be %d bytes", ErrCrypto, KeySize)
	}
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: encoding payload: %v", ErrCrypto, err)
	}
	defer Zero(plaintext)
	ciphertext, nonce, err = EncryptAESGCM(plaintext, key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return ciphertext, nonce, nil
}

// Decrypt opens ciphertext and decodes the JSON plaintext into v.
func Decrypt(key, ciphertext, nonce []byte, v any) error {
	if len(key) != KeySize {
		return fmt.Errorf("%w: key must be %d bytes", ErrCrypto, KeySize)
	}
	if len(nonce) != NonceSize {
		return ErrAuthentication
	}
	plaintext, err := DecryptAESGCM(ciphertext, nonce, key)
	if err != nil {
		return ErrAuthentication
	}
	defer Zero(plaintext)
	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecoding, err)
	}
	return nil
}

// DecryptValue is Decrypt into a generic JSON value.
func DecryptValue(key, ciphertext, nonce []byte) (any, error) {
	var v any
	if err := Decrypt(key, ciphertext, nonce, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// EncryptAESGCM encrypts plaintext with AES-256-GCM. Returns ciphertext and nonce separately.
func EncryptAESGCM(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("generating nonce: %w", err)
	}
	ciphertext = gcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// DecryptAESGCM decrypts AES-256-GCM ciphertext.
func DecryptAESGCM(ciphertext, nonce, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, errors.New("invalid nonce length")
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}

// Zero overwrites b in place.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
