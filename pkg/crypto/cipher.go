// Package crypto provides credential encryption for stored mail tokens.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Ciphertext format: "iv_hex:payload_hex" (AES-256-CBC, PKCS#7 padding).
// The key is derived from the configured secret via SHA-256, so any secret
// string yields a valid 32-byte key.

var (
	ErrEmptySecret   = errors.New("encryption secret is empty")
	ErrInvalidFormat = errors.New("invalid ciphertext format")
	ErrInvalidPad    = errors.New("invalid padding")
)

// Cipher encrypts and decrypts credential strings. Construct one at process
// start and inject it; it is safe for concurrent use.
type Cipher struct {
	key []byte
}

// NewCipher derives an AES-256 key from the given secret.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	key := sha256.Sum256([]byte(secret))
	return &Cipher{key: key[:]}, nil
}

// Encrypt returns the ciphertext in iv_hex:payload_hex form.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Malformed input (missing separator, bad hex,
// wrong IV length, non-block payload, bad padding) is rejected.
func (c *Cipher) Decrypt(value string) (string, error) {
	ivHex, payloadHex, ok := strings.Cut(value, ":")
	if !ok {
		return "", ErrInvalidFormat
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", ErrInvalidFormat
	}
	payload, err := hex.DecodeString(payloadHex)
	if err != nil || len(payload) == 0 || len(payload)%aes.BlockSize != 0 {
		return "", ErrInvalidFormat
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}

	out := make([]byte, len(payload))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, payload)

	unpadded, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

// IsEncrypted reports whether the value looks like our ciphertext format.
// Used to tolerate legacy plaintext rows during migration.
func (c *Cipher) IsEncrypted(value string) bool {
	ivHex, payloadHex, ok := strings.Cut(value, ":")
	if !ok {
		return false
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return false
	}
	payload, err := hex.DecodeString(payloadHex)
	return err == nil && len(payload) > 0 && len(payload)%aes.BlockSize == 0
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidPad
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, ErrInvalidPad
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, ErrInvalidPad
		}
	}
	return data[:len(data)-padLen], nil
}
