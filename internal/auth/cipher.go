package auth

// TOKEN ENCRYPTION AT REST:
// GitHub access tokens are bearer credentials: whoever holds one can call the
// GitHub API as the user. We store them sealed with AES-256-GCM so a leaked
// database file does not leak usable tokens.
//
// GCM is an AEAD mode: one pass gives confidentiality AND integrity. The
// output of gcm.Seal is ciphertext||tag (16 bytes of tag). We keep the three
// parts in separate base64 columns:
//
//	ciphertext  → the encrypted token bytes
//	iv          → the 12-byte nonce, fresh from crypto/rand on every call
//	tag         → the authentication tag
//
// NONCE REUSE:
// Reusing a nonce with the same key leaks the XOR of two plaintexts and lets an
// attacker forge tags. Never derive the nonce from the plaintext or a counter
// persisted in the database; always read it from crypto/rand.

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrDecryption is returned for every failure to open a sealed token: bad
// base64, wrong sizes, wrong key or tampered bytes all look the same.
var ErrDecryption = errors.New("auth: decryption failed")

// Sealed is an encrypted token as stored in the database. All fields are
// standard base64.
type Sealed struct {
	Ciphertext string
	IV         string
	Tag        string
}

// Cipher seals and opens provider tokens with one process-wide key.
type Cipher struct {
	aead cipher.AEAD
	rand io.Reader
}

// NewCipher builds a Cipher from a base64-encoded 32-byte key.
// Example: GITHUB_ACCESS_TOKEN_ENCRYPT_KEY=$(openssl rand -base64 32)
func NewCipher(base64Key string) (*Cipher, error) {
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("auth: decoding encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("auth: encryption key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("auth: creating AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("auth: creating GCM: %w", err)
	}

	return &Cipher{aead: aead, rand: rand.Reader}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *Cipher) Encrypt(plaintext string) (Sealed, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return Sealed{}, fmt.Errorf("auth: generating nonce: %w", err)
	}

	out := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	split := len(out) - c.aead.Overhead()

	return Sealed{
		Ciphertext: base64.StdEncoding.EncodeToString(out[:split]),
		IV:         base64.StdEncoding.EncodeToString(nonce),
		Tag:        base64.StdEncoding.EncodeToString(out[split:]),
	}, nil
}

// Decrypt verifies the tag and returns the plaintext.
// No plaintext is returned unless authentication succeeds.
func (c *Cipher) Decrypt(s Sealed) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(s.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext: %v", ErrDecryption, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(s.IV)
	if err != nil {
		return "", fmt.Errorf("%w: iv: %v", ErrDecryption, err)
	}
	tag, err := base64.StdEncoding.DecodeString(s.Tag)
	if err != nil {
		return "", fmt.Errorf("%w: tag: %v", ErrDecryption, err)
	}
	if len(nonce) != c.aead.NonceSize() || len(tag) != c.aead.Overhead() {
		return "", fmt.Errorf("%w: bad iv or tag length", ErrDecryption)
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return string(plaintext), nil
}
