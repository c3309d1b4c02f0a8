package archive

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/inventory/internal/core"
)

func TestRedisArchive_Key(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "inventory:import:abc"},
		{"shop", "shop:import:abc"},
	}

	for _, tt := range tests {
		a := NewRedisArchive(nil, tt.prefix, time.Hour)
		assert.Equal(t, tt.want, a.Key("abc"))
	}
}

func TestRedisArchive_SaveRejectsMissingID(t *testing.T) {
	a := NewRedisArchive(nil, "", time.Hour)
	assert.Error(t, a.Save(context.Background(), nil))
	assert.Error(t, a.Save(context.Background(), &core.ImportResult{}))
}

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	client, err := Connect(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisArchive_RoundTrip(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	a := NewRedisArchive(client, "inventory-test", time.Minute)

	result := &core.ImportResult{
		ImportID:  uuid.NewString(),
		Mode:      core.ModeProduct,
		FileName:  "stock.csv",
		Status:    core.StatusSuccess,
		Total:     3,
		Processed: 3,
		Errors: []core.ImportError{
			{Line: 2, Message: "Ligne 2 (SKU ABC) : Catégorie manquante"},
		},
		StartedAt: time.Now().UTC().Truncate(time.Second),
		Duration:  1500 * time.Millisecond,
	}
	t.Cleanup(func() { client.Del(ctx, a.Key(result.ImportID)) })

	require.NoError(t, a.Save(ctx, result))

	ttl, err := client.TTL(ctx, a.Key(result.ImportID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	got, err := a.Load(ctx, result.ImportID)
	require.NoError(t, err)
	assert.Equal(t, result.Status, got.Status)
	assert.Equal(t, result.Errors, got.Errors)
	assert.True(t, result.StartedAt.Equal(got.StartedAt))
	assert.Equal(t, result.Duration, got.Duration)
}

func TestRedisArchive_LoadMissing(t *testing.T) {
	client := testClient(t)
	a := NewRedisArchive(client, "inventory-test", time.Minute)

	_, err := a.Load(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, core.ErrImportNotFound)
}
