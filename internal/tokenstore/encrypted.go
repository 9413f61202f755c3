package tokenstore

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Encrypted file layout: magic | salt | nonce | ciphertext.
var encryptedMagic = []byte("TCE1")

const (
	saltSize = 16

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// ErrWrongPassphrase is returned when the credentials file cannot be opened.
var ErrWrongPassphrase = errors.New("tokenstore: wrong passphrase or corrupted credentials file")

// NewEncryptedFileBackend creates a file backend whose document is sealed with
// XChaCha20-Poly1305 under a key derived from passphrase with Argon2id.
func NewEncryptedFileBackend(path string, passphrase []byte) (*FileBackend, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("tokenstore: encrypted backend requires a passphrase")
	}
	return &FileBackend{
		path: path,
		seal: &passphraseSealer{passphrase: bytes.Clone(passphrase)},
	}, nil
}

// passphraseSealer caches the derived key for the salt it last saw so repeated
// reads of the same file do not pay for Argon2 every time.
type passphraseSealer struct {
	passphrase []byte
	salt       []byte
	key        []byte
}

func (p *passphraseSealer) keyFor(salt []byte) []byte {
	if p.key != nil && bytes.Equal(p.salt, salt) {
		return p.key
	}
	p.salt = bytes.Clone(salt)
	p.key = argon2.IDKey(p.passphrase, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
	return p.key
}

func (p *passphraseSealer) Seal(plaintext []byte) ([]byte, error) {
	salt := p.salt
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, fmt.Errorf("failed to generate salt: %w", err)
		}
	}

	aead, err := chacha20poly1305.NewX(p.keyFor(salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, len(encryptedMagic)+saltSize+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, encryptedMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, encryptedMagic), nil
}

func (p *passphraseSealer) Open(data []byte) ([]byte, error) {
	header := len(encryptedMagic) + saltSize + chacha20poly1305.NonceSizeX
	if len(data) < header || !bytes.Equal(data[:len(encryptedMagic)], encryptedMagic) {
		return nil, ErrWrongPassphrase
	}

	salt := data[len(encryptedMagic) : len(encryptedMagic)+saltSize]
	nonce := data[len(encryptedMagic)+saltSize : header]

	aead, err := chacha20poly1305.NewX(p.keyFor(salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, data[header:], encryptedMagic)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plaintext, nil
}
