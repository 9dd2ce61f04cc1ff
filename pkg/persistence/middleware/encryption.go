package middleware

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aretw0/baton/pkg/domain"
	"github.com/aretw0/baton/pkg/ports"
)

// KeySize is the AES-256 key length.
const KeySize = 32

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new artifacts.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

// ParseKey decodes a base64 AES-256 key.
func ParseKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: encryption key is not base64: %w", domain.ErrConfiguration, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: encryption key must be %d bytes, got %d", domain.ErrConfiguration, KeySize, len(key))
	}
	return key, nil
}

type encryptionMiddleware struct {
	next   ports.BlobStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that seals every artifact with
// AES-GCM before it reaches the store. Bucket operations pass through.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != KeySize {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.BlobStore) ports.BlobStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return m.next.BucketExists(ctx, bucket)
}

func (m *encryptionMiddleware) EnsureBucket(ctx context.Context, bucket string) error {
	return m.next.EnsureBucket(ctx, bucket)
}

func (m *encryptionMiddleware) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64) error {
	plainText, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read artifact %s/%s: %w", bucket, key, err)
	}
	return m.put(ctx, bucket, key, plainText)
}

func (m *encryptionMiddleware) put(ctx context.Context, bucket, key string, plainText []byte) error {
	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt artifact %s/%s: %w", bucket, key, err)
	}
	return m.next.PutObject(ctx, bucket, key, bytes.NewReader(ciphertext), int64(len(ciphertext)))
}

func (m *encryptionMiddleware) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	ciphertext, err := m.next.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt artifact %s/%s: %w", bucket, key, err)
	}
	return plainText, nil
}

// PutFile encrypts in memory, so file-backed artifacts lose their streaming upload.
func (m *encryptionMiddleware) PutFile(ctx context.Context, bucket, key, path string) error {
	plainText, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return m.put(ctx, bucket, key, plainText)
}

func (m *encryptionMiddleware) GetFile(ctx context.Context, bucket, key, path string) error {
	plainText, err := m.GetObject(ctx, bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to prepare %s: %w", path, err)
	}
	return os.WriteFile(path, plainText, 0o600)
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
