package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/redline/pkg/adapters/memory"
	"github.com/aretw0/redline/pkg/domain"
	"github.com/aretw0/redline/pkg/persistence/middleware"
	"github.com/aretw0/redline/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func version(n int, body string) *domain.DocumentVersion {
	v := &domain.DocumentVersion{
		DocumentID: "memo",
		Version:    n,
		Body:       body,
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if n > 1 {
		v.AppliedFeedbackIDs = []string{"fb-1"}
		v.Edit = &domain.Edit{FeedbackID: "fb-1", Range: domain.Range{Start: 4, End: 9}, Replacement: "manual"}
	}
	return v
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	secure := mw(underlying)
	ctx := context.Background()

	require.NoError(t, secure.SaveNewVersion(ctx, version(1, "The maual is confidential.")))
	require.NoError(t, secure.SaveNewVersion(ctx, version(2, "The manual is confidential.")))

	stored, err := underlying.LoadVersion(ctx, "memo", 2)
	require.NoError(t, err)
	assert.NotContains(t, stored.Body, "confidential")
	assert.Nil(t, stored.Edit)
	assert.Empty(t, stored.AppliedFeedbackIDs)
	assert.Equal(t, 2, stored.Version)

	loaded, err := secure.LoadLatestVersion(ctx, "memo")
	require.NoError(t, err)
	assert.Equal(t, version(2, "The manual is confidential."), loaded)

	first, err := secure.LoadVersion(ctx, "memo", 1)
	require.NoError(t, err)
	assert.Equal(t, "The maual is confidential.", first.Body)
}

func TestEncryptionMiddleware_KeepsVersionCheck(t *testing.T) {
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	secure := mw(memory.NewStore())
	ctx := context.Background()

	require.NoError(t, secure.SaveNewVersion(ctx, version(1, "a")))
	assert.ErrorIs(t, secure.SaveNewVersion(ctx, version(1, "b")), domain.ErrVersionConflict)

	_, err = secure.LoadVersion(ctx, "memo", 7)
	assert.ErrorIs(t, err, domain.ErrVersionNotFound)
	_, err = secure.LoadLatestVersion(ctx, "other")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()
	oldKey, newKey := generateKey(t), generateKey(t)

	oldMW, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})
	require.NoError(t, err)
	require.NoError(t, oldMW(underlying).SaveNewVersion(ctx, version(1, "rotated")))

	rotated, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: newKey, FallbackKeys: [][]byte{oldKey}})
	require.NoError(t, err)
	v, err := rotated(underlying).LoadVersion(ctx, "memo", 1)
	require.NoError(t, err)
	assert.Equal(t, "rotated", v.Body)

	strict, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: newKey})
	require.NoError(t, err)
	_, err = strict(underlying).LoadVersion(ctx, "memo", 1)
	assert.ErrorContains(t, err, "decryption failed")
}

func TestEncryptionMiddleware_FailsSecureOnPlainVersions(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, underlying.SaveNewVersion(ctx, version(1, "plain text")))

	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	_, err = mw(underlying).LoadLatestVersion(ctx, "memo")
	assert.ErrorIs(t, err, middleware.ErrNotEncrypted)
}

func TestNewEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")})
	assert.Error(t, err)
}

func TestParseKeys(t *testing.T) {
	active := base64.StdEncoding.EncodeToString(generateKey(t))
	old := base64.StdEncoding.EncodeToString(generateKey(t))

	cfg, err := middleware.ParseKeys(active, old)
	require.NoError(t, err)
	assert.Len(t, cfg.ActiveKey, 32)
	assert.Len(t, cfg.FallbackKeys, 1)

	_, err = middleware.ParseKeys("not base64!")
	assert.ErrorContains(t, err, "active key")
	_, err = middleware.ParseKeys(active, base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 16))))
	assert.ErrorContains(t, err, "fallback key 0")
}

func TestChain(t *testing.T) {
	var calls []string
	tag := func(name string) middleware.Middleware {
		return func(next ports.DocumentStore) ports.DocumentStore {
			calls = append(calls, name)
			return next
		}
	}
	middleware.Chain(memory.NewStore(), tag("outer"), tag("inner"))
	assert.Equal(t, []string{"inner", "outer"}, calls)
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	ports.RunDocumentStoreContract(t, mw(memory.NewStore()))
}
