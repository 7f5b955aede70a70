package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiserve/inference-gateway/internal/config"
	"github.com/aiserve/inference-gateway/internal/gatewayerr"
)

type fakeStore struct {
	records map[string]*KeyRecord
	calls   int
}

func (f *fakeStore) Lookup(ctx context.Context, keyHash string) (*KeyRecord, error) {
	f.calls++
	rec, ok := f.records[keyHash]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func baseCfg() config.AuthConfig {
	return config.AuthConfig{
		RequireAuth:  true,
		KeyCacheTTL:  30 * time.Minute,
		KeyCacheSize: 1000,
	}
}

func TestAuthenticate_AuthDisabledSkipsEverything(t *testing.T) {
	cfg := baseCfg()
	cfg.RequireAuth = false
	a := New(cfg, &fakeStore{})

	p, err := a.Authenticate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "*", p.ModelID)
}

func TestAuthenticate_MissingHeader(t *testing.T) {
	a := New(baseCfg(), &fakeStore{})
	_, err := a.Authenticate(context.Background(), "")
	assert.True(t, gatewayerr.Is(err, gatewayerr.AuthMissing))
}

func TestAuthenticate_MalformedPrefix(t *testing.T) {
	a := New(baseCfg(), &fakeStore{})
	_, err := a.Authenticate(context.Background(), "Bearer nope_123")
	assert.True(t, gatewayerr.Is(err, gatewayerr.AuthMalformed))
}

func TestAuthenticate_StaticBaseModelKey(t *testing.T) {
	cfg := baseCfg()
	cfg.BaseModelAPIKey = "sk_staticbase"
	a := New(cfg, &fakeStore{})

	p, err := a.Authenticate(context.Background(), "Bearer sk_staticbase")
	require.NoError(t, err)
	assert.Equal(t, "*", p.ModelID)
	assert.Equal(t, "base", p.Type)
}

func TestAuthenticate_UnknownKey(t *testing.T) {
	a := New(baseCfg(), &fakeStore{records: map[string]*KeyRecord{}})
	_, err := a.Authenticate(context.Background(), "Bearer sk_unknown")
	assert.True(t, gatewayerr.Is(err, gatewayerr.AuthInvalid))
}

func TestAuthenticate_RevokedKey(t *testing.T) {
	store := &fakeStore{records: map[string]*KeyRecord{
		HashToken("sk_revoked"): {IsActive: false, ModelName: "org/model"},
	}}
	a := New(baseCfg(), store)
	_, err := a.Authenticate(context.Background(), "Bearer sk_revoked")
	assert.True(t, gatewayerr.Is(err, gatewayerr.AuthInvalid))
}

func TestAuthenticate_ExpiredKey(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	store := &fakeStore{records: map[string]*KeyRecord{
		HashToken("sk_expired"): {IsActive: true, ExpiresAt: &past, ModelName: "org/model"},
	}}
	a := New(baseCfg(), store)
	_, err := a.Authenticate(context.Background(), "Bearer sk_expired")
	assert.True(t, gatewayerr.Is(err, gatewayerr.AuthExpired))
}

func TestAuthenticate_ValidKeyIsCachedAcrossCalls(t *testing.T) {
	store := &fakeStore{records: map[string]*KeyRecord{
		HashToken("sk_good"): {IsActive: true, ModelName: "assistant-v1", UserID: "u1", Type: "user"},
	}}
	a := New(baseCfg(), store)

	p1, err := a.Authenticate(context.Background(), "Bearer sk_good")
	require.NoError(t, err)
	assert.Equal(t, "assistant-v1", p1.ModelID)
	assert.Equal(t, 1, store.calls)

	p2, err := a.Authenticate(context.Background(), "Bearer sk_good")
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, 1, store.calls, "second call must hit the cache, not the store")
}

func TestAuthenticate_ValidAdminJWT(t *testing.T) {
	cfg := baseCfg()
	cfg.JWTSecret = "test-secret"
	a := New(cfg, &fakeStore{})

	token, err := IssueAdminToken("operator-1", cfg.JWTSecret, time.Hour)
	require.NoError(t, err)

	p, err := a.Authenticate(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, "*", p.ModelID)
	assert.Equal(t, "admin-jwt", p.Type)
	assert.Equal(t, "operator-1", p.UserID)
}

func TestAuthenticate_AdminJWTWrongSecretRejected(t *testing.T) {
	cfg := baseCfg()
	cfg.JWTSecret = "test-secret"
	a := New(cfg, &fakeStore{})

	token, err := IssueAdminToken("operator-1", "different-secret", time.Hour)
	require.NoError(t, err)

	_, err = a.Authenticate(context.Background(), "Bearer "+token)
	assert.True(t, gatewayerr.Is(err, gatewayerr.AuthInvalid))
}

func TestAuthenticate_AdminJWTExpiredRejected(t *testing.T) {
	cfg := baseCfg()
	cfg.JWTSecret = "test-secret"
	a := New(cfg, &fakeStore{})

	token, err := IssueAdminToken("operator-1", cfg.JWTSecret, -time.Hour)
	require.NoError(t, err)

	_, err = a.Authenticate(context.Background(), "Bearer "+token)
	assert.True(t, gatewayerr.Is(err, gatewayerr.AuthInvalid))
}

func TestPrincipal_AllowsModel(t *testing.T) {
	assert.True(t, Principal{ModelID: "*"}.AllowsModel("anything"))
	assert.True(t, Principal{ModelID: "assistant-v1"}.AllowsModel("assistant-v1"))
	assert.False(t, Principal{ModelID: "assistant-v1"}.AllowsModel("other-model"))
}

func TestHashToken_IsDeterministicAndDistinct(t *testing.T) {
	assert.Equal(t, HashToken("sk_abc"), HashToken("sk_abc"))
	assert.NotEqual(t, HashToken("sk_abc"), HashToken("sk_def"))
}

func TestParseBearer(t *testing.T) {
	tok, ok := ParseBearer("Bearer sk_abc123")
	assert.True(t, ok)
	assert.Equal(t, "sk_abc123", tok)

	_, ok = ParseBearer("sk_abc123")
	assert.False(t, ok, "missing scheme must fail")

	_, ok = ParseBearer("Bearer badprefix")
	assert.False(t, ok, "unknown prefix must fail")
}
