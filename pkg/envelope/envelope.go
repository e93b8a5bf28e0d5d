// Package envelope provides authenticated symmetric encryption for credential
// payloads stored at rest.
//
// A Codec is built once at startup from a passphrase (process-wide
// configuration) and sealed envelopes are self-describing strings:
//
//	v1:<base64url(nonce || ciphertext)>
//
// Every Seal call draws a fresh random nonce, so sealing identical plaintext
// twice never yields identical envelopes. Open authenticates before returning
// plaintext; a wrong key or a tampered envelope fails with an integrity error,
// never with garbage output.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"

	dErrors "attestor/pkg/domain-errors"
)

const (
	versionPrefix = "v1:"
	keyLen        = 32 // AES-256

	// MaxPlaintextSize bounds payloads accepted by Seal. Credential claim
	// documents are small; anything larger indicates a caller bug.
	MaxPlaintextSize = 1 << 20
)

// scrypt cost parameters, fixed so envelopes remain openable across releases.
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// Codec seals and opens credential payloads with a key derived once from a
// passphrase. The passphrase itself is never retained.
type Codec struct {
	aead cipher.AEAD
}

// New derives the sealing key from the passphrase and salt and returns a
// ready Codec. The salt is deployment configuration, not per-record data: all
// records in one deployment share one key.
func New(passphrase, salt string) (*Codec, error) {
	if passphrase == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "encryption passphrase cannot be empty")
	}
	if salt == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "encryption salt cannot be empty")
	}

	key, err := scrypt.Key([]byte(passphrase), []byte(salt), scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("derive sealing key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	return &Codec{aead: aead}, nil
}

// Seal encrypts plaintext into a versioned envelope string.
func (c *Codec) Seal(plaintext []byte) (string, error) {
	if len(plaintext) > MaxPlaintextSize {
		return "", dErrors.New(dErrors.CodeValidation, "payload exceeds sealed size limit")
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return versionPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decrypts an envelope produced by Seal. A malformed envelope or a key
// mismatch returns an integrity error; plaintext is only returned when the
// authentication tag verifies.
func (c *Codec) Open(sealed string) ([]byte, error) {
	if !strings.HasPrefix(sealed, versionPrefix) {
		return nil, dErrors.New(dErrors.CodeIntegrity, "unrecognized envelope version")
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(sealed, versionPrefix))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeIntegrity, "malformed envelope encoding")
	}
	if len(raw) < c.aead.NonceSize() {
		return nil, dErrors.New(dErrors.CodeIntegrity, "envelope too short")
	}

	nonce, ciphertext := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeIntegrity, "envelope failed authentication")
	}
	if plaintext == nil {
		// Empty payloads round-trip to empty, not nil.
		plaintext = []byte{}
	}
	return plaintext, nil
}
