// Package crypto seals and opens the credential snapshot that slackfm keeps
// on disk. It implements AES-256-GCM authenticated encryption with a key
// derived from an operator passphrase via scrypt, so the stored blob is
// useless without the passphrase and any tampering is detected on open.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

// Blob layout: version || salt || nonce || ciphertext+tag.
const (
	blobVersion = 0x01
	saltSize    = 16
	nonceSize   = 12 // standard GCM nonce
)

// scrypt parameters. N=2^15 keeps open/seal under ~100ms on commodity
// hardware while still being expensive to brute-force.
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32 // AES-256
)

// Sealer defines the interface for sealing and opening sensitive blobs.
// Implementations must provide authenticated encryption (AEAD) so both
// confidentiality and integrity of the stored data are guaranteed.
type Sealer interface {
	// Seal transforms plaintext into a self-contained encrypted blob.
	Seal(plaintext []byte) ([]byte, error)

	// Open verifies and transforms a sealed blob back to plaintext.
	// Returns an error if authentication fails or the blob is corrupted.
	Open(blob []byte) ([]byte, error)
}

// PassphraseSealer implements Sealer using scrypt + AES-256-GCM.
// A fresh random salt is drawn per Seal, so the derived key changes on
// every write and a leaked key from one snapshot does not unlock others.
type PassphraseSealer struct {
	passphrase []byte
}

// NewPassphraseSealer creates a sealer from an operator passphrase.
// Returns an error if the passphrase is empty.
func NewPassphraseSealer(passphrase string) (*PassphraseSealer, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase is empty")
	}
	return &PassphraseSealer{passphrase: []byte(passphrase)}, nil
}

// Seal encrypts plaintext and returns a blob in the format:
//
//	version (1 byte) || scrypt salt (16 bytes) || nonce (12 bytes) || ciphertext+tag
//
// Salt and nonce are randomly generated per call. GCM appends a 16-byte
// authentication tag to the ciphertext.
func (s *PassphraseSealer) Seal(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("plaintext is empty")
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := s.aead(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	blob := make([]byte, 0, 1+saltSize+nonceSize+len(plaintext)+gcm.Overhead())
	blob = append(blob, blobVersion)
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = gcm.Seal(blob, nonce, plaintext, nil)

	return blob, nil
}

// Open decrypts and authenticates a blob produced by Seal. Returns an
// error if:
//   - the blob is too short or carries an unknown version byte
//   - the authentication tag does not verify (tampering or wrong passphrase)
func (s *PassphraseSealer) Open(blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("blob is empty")
	}
	if blob[0] != blobVersion {
		return nil, fmt.Errorf("unsupported blob version %#02x", blob[0])
	}
	if len(blob) < 1+saltSize+nonceSize {
		return nil, fmt.Errorf("blob too short: expected at least %d bytes, got %d", 1+saltSize+nonceSize, len(blob))
	}

	salt := blob[1 : 1+saltSize]
	nonce := blob[1+saltSize : 1+saltSize+nonceSize]
	ciphertext := blob[1+saltSize+nonceSize:]

	gcm, err := s.aead(salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open failed: authentication or integrity check failed")
	}

	return plaintext, nil
}

// aead derives the AES-256 key for salt and wraps it in GCM.
func (s *PassphraseSealer) aead(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(s.passphrase, salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return gcm, nil
}
