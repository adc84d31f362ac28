package documents

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_GetBeforeUpsert(t *testing.T) {
	repo := NewMemoryRepository()
	d, err := repo.GetBySub(context.Background(), "auth0|abc123")
	require.NoError(t, err)
	require.Nil(t, d)
}

func TestMemoryRepository_SecondUpsertReplaces(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, "auth0|abc123", []byte(`{"notes":"hello"}`)))
	first, err := repo.GetBySub(ctx, "auth0|abc123")
	require.NoError(t, err)
	require.NotNil(t, first)

	require.NoError(t, repo.Upsert(ctx, "auth0|abc123", []byte(`{"notes":"updated"}`)))
	second, err := repo.GetBySub(ctx, "auth0|abc123")
	require.NoError(t, err)
	require.Equal(t, `{"notes":"updated"}`, second.Payload)
	require.True(t, second.UpdatedAt.After(first.UpdatedAt), "updatedAt must strictly increase")
	require.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestMemoryRepository_SubjectsDoNotCollide(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, "sub-a", []byte(`{"v":1}`)))
	require.NoError(t, repo.Upsert(ctx, "sub-b", []byte(`{"v":2}`)))

	a, err := repo.GetBySub(ctx, "sub-a")
	require.NoError(t, err)
	require.Equal(t, `{"v":1}`, a.Payload)
	b, err := repo.GetBySub(ctx, "sub-b")
	require.NoError(t, err)
	require.Equal(t, `{"v":2}`, b.Payload)
}

func TestMemoryRepository_ConcurrentUpserts(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			payload := []byte(fmt.Sprintf(`{"n":%d}`, n))
			_ = repo.Upsert(ctx, "auth0|abc123", payload)
		}(i)
	}
	wg.Wait()

	d, err := repo.GetBySub(ctx, "auth0|abc123")
	require.NoError(t, err)
	require.NotNil(t, d)
	// last-writer-wins: the surviving payload must be exactly one of the
	// written values, never a torn or merged one
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(d.Payload), &got))
	require.Len(t, got, 1)
	n, ok := got["n"].(float64)
	require.True(t, ok)
	require.GreaterOrEqual(t, int(n), 0)
	require.Less(t, int(n), 50)
}
