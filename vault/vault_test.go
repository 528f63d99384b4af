package vault

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFallsBackToEnv(t *testing.T) {
	t.Setenv("TEST_API_KEY", "env-secret")
	r := NewResolver(nil, time.Second)
	v, err := r.Resolve(context.Background(), "acme", "", "TEST_API_KEY", true)
	require.NoError(t, err)
	assert.Equal(t, "env-secret", v)
}

func TestResolveRequiredMissingRaisesConfigError(t *testing.T) {
	r := NewResolver(nil, time.Second)
	_, err := r.Resolve(context.Background(), "acme", "", "DOES_NOT_EXIST_ENV", true)
	require.Error(t, err)
}

func TestResolveNotRequiredMissingReturnsEmpty(t *testing.T) {
	r := NewResolver(nil, time.Second)
	v, err := r.Resolve(context.Background(), "acme", "", "DOES_NOT_EXIST_ENV", false)
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestResolveUsesRedisBackendBeforeEnv(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Set("secret/acme", "vault-secret")

	t.Setenv("ACME_API_KEY", "env-secret")

	r := NewResolver(NewRedisBackend(client), time.Minute)
	v, err := r.Resolve(context.Background(), "acme", "secret/acme", "ACME_API_KEY", true)
	require.NoError(t, err)
	assert.Equal(t, "vault-secret", v)
}

func TestResolveServesCachedValueUntilCacheCleared(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Set("secret/acme", "first")

	r := NewResolver(NewRedisBackend(client), time.Hour)
	v, err := r.Resolve(context.Background(), "acme", "secret/acme", "", true)
	require.NoError(t, err)
	assert.Equal(t, "first", v)

	mr.Set("secret/acme", "second")
	v, err = r.Resolve(context.Background(), "acme", "secret/acme", "", true)
	require.NoError(t, err)
	assert.Equal(t, "first", v, "cached value should still be served before TTL expiry")

	r.ClearCache()
	v, err = r.Resolve(context.Background(), "acme", "secret/acme", "", true)
	require.NoError(t, err)
	assert.Equal(t, "second", v)
}
