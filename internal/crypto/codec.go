// Package crypto holds the field codec used at the repository boundary for
// secrets stored alongside tracker configuration.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrInvalidKey          = errors.New("encryption key must be 32 bytes")
	ErrMalformedCiphertext = errors.New("ciphertext too short")
)

// Codec encrypts and decrypts individual field values.
type Codec interface {
	Encrypt(plaintext []byte, associatedData []byte) ([]byte, error)
	Decrypt(ciphertext []byte, associatedData []byte) ([]byte, error)
}

// AEADCodec seals values with XChaCha20-Poly1305. The random 24-byte nonce is
// prepended to the ciphertext.
type AEADCodec struct {
	aead cipher.AEAD
}

func NewAEADCodec(key []byte) (*AEADCodec, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return &AEADCodec{aead: aead}, nil
}

func (c *AEADCodec) Encrypt(plaintext []byte, associatedData []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, associatedData), nil
}

func (c *AEADCodec) Decrypt(ciphertext []byte, associatedData []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(ciphertext) < ns+c.aead.Overhead() {
		return nil, ErrMalformedCiphertext
	}
	plaintext, err := c.aead.Open(nil, ciphertext[:ns], ciphertext[ns:], associatedData)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return plaintext, nil
}
