package documents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_GetBeforeSaveReturnsEmptyObject(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	got, err := svc.Get(context.Background(), "auth0|abc123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestService_SaveThenGet(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, "auth0|abc123", map[string]interface{}{"notes": "hello"}))
	got, err := svc.Get(ctx, "auth0|abc123")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"notes": "hello"}, got)

	// second save replaces, never merges
	require.NoError(t, svc.Save(ctx, "auth0|abc123", map[string]interface{}{"todo": "ship"}))
	got, err = svc.Get(ctx, "auth0|abc123")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"todo": "ship"}, got)
	assert.NotContains(t, got, "notes")
}

func TestService_CanonicalSerialization(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, "s", map[string]interface{}{"b": 2, "a": 1}))
	d, err := repo.GetBySub(ctx, "s")
	require.NoError(t, err)
	// map keys marshal sorted, so equal payloads serialize identically
	assert.Equal(t, `{"a":1,"b":2}`, d.Payload)
}
