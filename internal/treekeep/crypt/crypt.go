// Package crypt implements the file-to-file encryption transform of the
// backup pipeline: PBKDF2-HMAC-SHA256 key derivation in front of
// AES-256-CBC with PKCS#7 padding.
//
// Output layout: salt(16) || iv(16) || ciphertext. The salt and IV are
// freshly random per call, so encrypting the same plaintext twice with the
// same passphrase produces different ciphertexts.
package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLen    = 16
	ivLen      = aes.BlockSize
	keyLen     = 32
	iterations = 10000

	// minCiphertextLen is salt + IV + one padded block.
	minCiphertextLen = saltLen + ivLen + aes.BlockSize
)

// ErrDecrypt is returned when a ciphertext cannot be decrypted. A wrong
// passphrase is only detectable this way, via the padding check.
var ErrDecrypt = errors.New("crypt: decryption failed")

func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, iterations, keyLen, sha256.New)
}

// EncryptFile encrypts inputPath into outputPath with a key derived from
// the passphrase.
func EncryptFile(inputPath, outputPath, passphrase string) error {
	plain, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("crypt: read input: %w", err)
	}

	header := make([]byte, saltLen+ivLen)
	if _, err := io.ReadFull(rand.Reader, header); err != nil {
		return fmt.Errorf("crypt: generate salt and iv: %w", err)
	}
	salt, iv := header[:saltLen], header[saltLen:]

	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return err
	}

	padded := pad(plain)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("crypt: create output: %w", err)
	}
	defer out.Close()

	if _, err := out.Write(header); err != nil {
		return err
	}
	if _, err := out.Write(ciphertext); err != nil {
		return err
	}
	return out.Sync()
}

// DecryptFile decrypts inputPath into outputPath. A padding failure, the
// signature of a wrong passphrase, yields ErrDecrypt.
func DecryptFile(inputPath, outputPath, passphrase string) error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("crypt: read input: %w", err)
	}
	if len(data) < minCiphertextLen || (len(data)-saltLen-ivLen)%aes.BlockSize != 0 {
		return fmt.Errorf("%w: truncated or misaligned input", ErrDecrypt)
	}

	salt := data[:saltLen]
	iv := data[saltLen : saltLen+ivLen]
	ciphertext := data[saltLen+ivLen:]

	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return err
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	unpadded, ok := unpad(plain)
	if !ok {
		return fmt.Errorf("%w: bad padding (wrong passphrase?)", ErrDecrypt)
	}
	return os.WriteFile(outputPath, unpadded, 0o644)
}

// pad appends PKCS#7 padding, always adding at least one byte.
func pad(data []byte) []byte {
	n := aes.BlockSize - len(data)%aes.BlockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

// unpad strips and validates PKCS#7 padding.
func unpad(data []byte) ([]byte, bool) {
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, false
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, false
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, false
		}
	}
	return data[:len(data)-n], true
}
