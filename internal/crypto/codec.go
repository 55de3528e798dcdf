// Package crypto implements the field-level encryption codec for
// sensitive booking content (intake notes, context summaries).
//
// Values are encrypted with AES-256-GCM and stored as a self-describing
// JSON envelope {"iv":..., "encrypted":..., "authTag":...} with each
// part hex-encoded. The format matches the rows already in production,
// including the 16-byte IV.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

const nonceSize = 16

// DecryptionError reports a failed decrypt: tag verification failure,
// wrong key, or a malformed envelope. Callers must treat it as "notes
// unavailable", never as an empty value.
type DecryptionError struct {
	err error
}

func (e *DecryptionError) Error() string {
	return "decryption failed: " + e.err.Error()
}

func (e *DecryptionError) Unwrap() error {
	return e.err
}

type envelope struct {
	IV        string `json:"iv"`
	Encrypted string `json:"encrypted"`
	AuthTag   string `json:"authTag"`
}

// Codec encrypts and decrypts opaque strings under a single process-wide
// key loaded once at startup.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec builds a codec from a 64-char hex key (32 bytes, AES-256).
// A missing or malformed key is a startup error; the codec refuses to
// initialize rather than operate unkeyed.
func NewCodec(hexKey string) (*Codec, error) {
	if hexKey == "" {
		return nil, errors.New("encryption key is required")
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, err
	}
	return &Codec{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce. Two calls with
// identical plaintext never produce identical envelopes.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, nonceSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("nonce generation failed: %w", err)
	}

	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	tagStart := len(sealed) - c.aead.Overhead()

	env := envelope{
		IV:        hex.EncodeToString(iv),
		Encrypted: hex.EncodeToString(sealed[:tagStart]),
		AuthTag:   hex.EncodeToString(sealed[tagStart:]),
	}
	out, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Decrypt opens an envelope produced by Encrypt. Any tampering with the
// ciphertext or tag, a wrong key, or a malformed envelope yields a
// *DecryptionError.
func (c *Codec) Decrypt(data string) (string, error) {
	var env envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return "", &DecryptionError{err: fmt.Errorf("malformed envelope: %w", err)}
	}

	iv, err := hex.DecodeString(env.IV)
	if err != nil {
		return "", &DecryptionError{err: fmt.Errorf("malformed iv: %w", err)}
	}
	if len(iv) != nonceSize {
		return "", &DecryptionError{err: fmt.Errorf("unexpected iv length %d", len(iv))}
	}
	ciphertext, err := hex.DecodeString(env.Encrypted)
	if err != nil {
		return "", &DecryptionError{err: fmt.Errorf("malformed ciphertext: %w", err)}
	}
	tag, err := hex.DecodeString(env.AuthTag)
	if err != nil {
		return "", &DecryptionError{err: fmt.Errorf("malformed auth tag: %w", err)}
	}

	plaintext, err := c.aead.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", &DecryptionError{err: err}
	}
	return string(plaintext), nil
}
