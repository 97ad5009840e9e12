// Package emailtoken carries an email address through the payment redirect as
// an opaque, reversible token of the form hex(iv):hex(ciphertext).
package emailtoken

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// ErrInvalidToken is the only error Decrypt returns.
var ErrInvalidToken = errors.New("invalid transaction id")

const (
	padLength = 10
	alphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	kdfSalt   = "salt"
	kdfN      = 16384
	kdfR      = 8
	kdfP      = 1
	keyLength = 32
)

// Cipher encrypts and decrypts email tokens with a key derived once from the secret.
type Cipher struct {
	block  cipher.Block
	random io.Reader
}

// NewCipher derives the AES-256 key from secret.
func NewCipher(secret string) (*Cipher, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("email token secret is required")
	}
	key, err := scrypt.Key([]byte(secret), []byte(kdfSalt), kdfN, kdfR, kdfP, keyLength)
	if err != nil {
		return nil, fmt.Errorf("derive email token key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}
	return &Cipher{block: block, random: rand.Reader}, nil
}

// Encrypt pads email on both sides with random alphanumerics and encrypts it
// under a fresh IV.
func (c *Cipher) Encrypt(email string) (string, error) {
	left, err := c.randomString(padLength)
	if err != nil {
		return "", err
	}
	right, err := c.randomString(padLength)
	if err != nil {
		return "", err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(c.random, iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	plaintext := pkcs7Pad([]byte(left+email+right), aes.BlockSize)
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(ciphertext, plaintext)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt recovers the email from token. Every failure maps to ErrInvalidToken.
func (c *Cipher) Decrypt(token string) (string, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 2 {
		return "", ErrInvalidToken
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != aes.BlockSize {
		return "", ErrInvalidToken
	}
	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", ErrInvalidToken
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plaintext, ciphertext)

	plaintext, ok := pkcs7Unpad(plaintext, aes.BlockSize)
	if !ok || len(plaintext) <= 2*padLength {
		return "", ErrInvalidToken
	}
	return string(plaintext[padLength : len(plaintext)-padLength]), nil
}

func (c *Cipher) randomString(n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(c.random, max)
		if err != nil {
			return "", fmt.Errorf("generate padding: %w", err)
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, bool) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, false
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, false
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, false
		}
	}
	return data[:len(data)-n], true
}
