// Package cryptox implements the optional authenticated encryption wrapper put
// around every wire message and around blobs kept in a shared store.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/clipsync/internal/common"
)

const (
	// NonceSize is the length of the random prefix of every sealed payload.
	NonceSize = 12
	// TagSize is the length of the GCM authentication tag appended by Seal.
	TagSize = 16
)

// MessageCipher seals and opens payloads with AES-256-GCM.
//
// A cipher built from an empty secret is disabled: Encrypt and Decrypt return
// their input unchanged so that a deployment without a shared secret talks in
// clear. Both ends must be configured with the same secret.
type MessageCipher struct {
	aead cipher.AEAD
}

// DeriveKey turns a shared secret into a 256-bit AES key.
//
// The derivation is a single SHA-256 over the UTF-8 bytes of the secret, so
// every node configured with the same secret arrives at the same key.
func DeriveKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// NewMessageCipher builds a cipher for secret. Whitespace-only secrets count as
// empty.
func NewMessageCipher(secret string) (*MessageCipher, error) {
	if strings.TrimSpace(secret) == "" {
		return &MessageCipher{}, nil
	}

	block, err := aes.NewCipher(DeriveKey(secret))
	if err != nil {
		return nil, err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &MessageCipher{aead: aesgcm}, nil
}

// Enabled reports whether payloads are actually encrypted.
func (c *MessageCipher) Enabled() bool {
	return c != nil && c.aead != nil
}

// Encrypt seals plain and returns [nonce][ciphertext||tag].
//
// A fresh 12-byte nonce is drawn from crypto/rand for every call, so sealing the
// same message twice yields different payloads.
//
// Example:
//
//	c, _ := cryptox.NewMessageCipher("s3cret")
//	sealed, err := c.Encrypt([]byte("hello"))
//	if err != nil {
//	    return err
//	}
//	plain, err := c.Decrypt(sealed) // "hello"
func (c *MessageCipher) Encrypt(plain []byte) ([]byte, error) {
	if !c.Enabled() {
		return plain, nil
	}

	nonce := make([]byte, NonceSize, NonceSize+len(plain)+TagSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return c.aead.Seal(nonce, nonce, plain, nil), nil
}

// Decrypt opens a payload produced by Encrypt. Any failure, including a
// payload sealed with a different secret, wraps common.ErrDecryption.
func (c *MessageCipher) Decrypt(sealed []byte) ([]byte, error) {
	if !c.Enabled() {
		return sealed, nil
	}

	if len(sealed) < NonceSize+TagSize {
		return nil, fmt.Errorf("payload of %d bytes is too short: %w", len(sealed), common.ErrDecryption)
	}

	plain, err := c.aead.Open(nil, sealed[:NonceSize], sealed[NonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("invalid secret or corrupted payload: %w", common.ErrDecryption)
	}

	return plain, nil
}
