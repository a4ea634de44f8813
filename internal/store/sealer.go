package store

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

// ErrSealed is returned when a sealed value is read without a sealer or with the wrong passphrase.
var ErrSealed = errors.New("store: value is sealed")

const (
	saltLen  = 16
	nonceLen = 24
	keyLen   = 32
)

// Sealer encrypts secrets at rest with a key derived from a passphrase.
type Sealer struct {
	passphrase []byte
}

// NewSealer creates a sealer. An empty passphrase is rejected.
func NewSealer(passphrase string) (*Sealer, error) {
	if passphrase == "" {
		return nil, errors.New("store: passphrase is required")
	}
	return &Sealer{passphrase: []byte(passphrase)}, nil
}

func (s *Sealer) key(salt []byte) *[keyLen]byte {
	var k [keyLen]byte
	copy(k[:], argon2.IDKey(s.passphrase, salt, 1, 64*1024, 4, keyLen))
	return &k
}

// Seal encrypts plaintext. The output is base64(salt | nonce | box).
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	buf := make([]byte, saltLen+nonceLen)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("store: read random: %w", err)
	}
	var nonce [nonceLen]byte
	copy(nonce[:], buf[saltLen:])
	sealed := secretbox.Seal(buf, plaintext, &nonce, s.key(buf[:saltLen]))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(sealed string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("store: decode sealed value: %w", err)
	}
	if len(raw) < saltLen+nonceLen+secretbox.Overhead {
		return nil, errors.New("store: sealed value too short")
	}
	var nonce [nonceLen]byte
	copy(nonce[:], raw[saltLen:saltLen+nonceLen])
	plain, ok := secretbox.Open(nil, raw[saltLen+nonceLen:], &nonce, s.key(raw[:saltLen]))
	if !ok {
		return nil, ErrSealed
	}
	return plain, nil
}
