package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/redline/pkg/domain"
	"github.com/aretw0/redline/pkg/ports"
)

// envelopePrefix marks a body that holds an encrypted version.
const envelopePrefix = "redline:enc:v1:"

// ErrNotEncrypted is returned when a stored version has no encrypted envelope.
var ErrNotEncrypted = errors.New("document version is missing encrypted data envelope")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

// ParseKeys decodes base64 keys into a config. The first key is active.
func ParseKeys(active string, fallback ...string) (EncryptionConfig, error) {
	var cfg EncryptionConfig
	key, err := decodeKey(active)
	if err != nil {
		return cfg, fmt.Errorf("active key: %w", err)
	}
	cfg.ActiveKey = key
	for i, s := range fallback {
		key, err := decodeKey(s)
		if err != nil {
			return cfg, fmt.Errorf("fallback key %d: %w", i, err)
		}
		cfg.FallbackKeys = append(cfg.FallbackKeys, key)
	}
	return cfg, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes (AES-256), got %d", len(key))
	}
	return key, nil
}

type encryptionMiddleware struct {
	next   ports.DocumentStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that seals whole document
// versions with AES-GCM. Only the document ID, the version number and the
// creation time stay readable to the wrapped store, which is all it needs for
// its version check.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, errors.New("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.DocumentStore) ports.DocumentStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}, nil
}

func (m *encryptionMiddleware) SaveNewVersion(ctx context.Context, v *domain.DocumentVersion) error {
	plainText, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal version: %w", err)
	}
	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt version: %w", err)
	}

	envelope := &domain.DocumentVersion{
		DocumentID: v.DocumentID,
		Version:    v.Version,
		Body:       envelopePrefix + base64.StdEncoding.EncodeToString(ciphertext),
		CreatedAt:  v.CreatedAt,
	}
	return m.next.SaveNewVersion(ctx, envelope)
}

func (m *encryptionMiddleware) LoadLatestVersion(ctx context.Context, documentID string) (*domain.DocumentVersion, error) {
	envelope, err := m.next.LoadLatestVersion(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return m.open(envelope)
}

func (m *encryptionMiddleware) LoadVersion(ctx context.Context, documentID string, version int) (*domain.DocumentVersion, error) {
	envelope, err := m.next.LoadVersion(ctx, documentID, version)
	if err != nil {
		return nil, err
	}
	return m.open(envelope)
}

func (m *encryptionMiddleware) open(envelope *domain.DocumentVersion) (*domain.DocumentVersion, error) {
	encoded, ok := strings.CutPrefix(envelope.Body, envelopePrefix)
	if !ok {
		return nil, fmt.Errorf("%w: %s v%d", ErrNotEncrypted, envelope.DocumentID, envelope.Version)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt %s v%d: %w", envelope.DocumentID, envelope.Version, err)
	}

	var v domain.DocumentVersion
	if err := json.Unmarshal(plainText, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted version: %w", err)
	}
	if v.DocumentID != envelope.DocumentID || v.Version != envelope.Version {
		return nil, fmt.Errorf("envelope %s v%d holds %s v%d", envelope.DocumentID, envelope.Version, v.DocumentID, v.Version)
	}
	return &v, nil
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
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
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}
