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

	"golang.org/x/crypto/hkdf"
)

const (
	// nonceSize is deliberately 16 bytes (not GCM's default 12): a fresh
	// random nonce per call must never repeat under the same key, and the
	// larger nonce keeps collision odds negligible at this volume.
	nonceSize = 16
	tagSize   = 16
	keySize   = 32

	kdfContext = "adops-credential-cipher-v1"
)

// ErrKeyConfig indicates the encryption key is missing or malformed.
// This is fatal configuration; it must never be retried or papered over.
var ErrKeyConfig = errors.New("encryption key misconfigured")

// ErrEnvelope indicates a stored envelope does not parse into the
// nonce:tag:ciphertext triplet.
var ErrEnvelope = errors.New("malformed envelope")

// ErrAuthentication indicates the GCM tag failed to verify: the envelope
// was tampered with, corrupted, or encrypted under a different key.
var ErrAuthentication = errors.New("envelope authentication failed")

// Cipher performs authenticated encryption of short secrets (access tokens)
// under a single process-wide key. It is stateless and safe for concurrent
// use.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a 64-character hex key (32 bytes decoded).
// The AEAD key is derived from the configured master key with HKDF-SHA256 so
// the raw configuration value is never used directly as cipher material.
func NewCipher(hexKey string) (*Cipher, error) {
	if hexKey == "" {
		return nil, fmt.Errorf("%w: key is empty", ErrKeyConfig)
	}
	master, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: key is not valid hex: %v", ErrKeyConfig, err)
	}
	if len(master) != keySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrKeyConfig, keySize, len(master))
	}

	key := make([]byte, keySize)
	r := hkdf.New(sha256.New, master, nil, []byte(kdfContext))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("deriving cipher key: %w", err)
	}
	zeroBytes(master)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext and returns the envelope
// hex(nonce):hex(tag):hex(ciphertext). A fresh random nonce is generated on
// every call.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", errors.New("plaintext must not be empty")
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	// Seal returns ciphertext||tag; the envelope keeps them as separate
	// fields, tag before ciphertext.
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt opens an envelope produced by Encrypt and returns the original
// plaintext. Parse failures return ErrEnvelope; tag verification failures
// return ErrAuthentication. Unauthenticated plaintext is never returned.
func (c *Cipher) Decrypt(envelope string) (string, error) {
	parts := strings.Split(envelope, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected 3 fields, got %d", ErrEnvelope, len(parts))
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: bad nonce encoding", ErrEnvelope)
	}
	if len(nonce) != nonceSize {
		return "", fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrEnvelope, nonceSize, len(nonce))
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: bad tag encoding", ErrEnvelope)
	}
	if len(tag) != tagSize {
		return "", fmt.Errorf("%w: tag must be %d bytes, got %d", ErrEnvelope, tagSize, len(tag))
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext encoding", ErrEnvelope)
	}

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrAuthentication
	}
	return string(plaintext), nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
