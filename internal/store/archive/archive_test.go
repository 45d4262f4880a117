package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	rows := []map[string]string{
		{"代码": "AAPL", "交易方向": "买入", "成交数量": "100"},
		{"代码": "AAPL", "交易方向": "卖出", "成交数量": "40"},
	}
	m := Manifest{BatchID: "batch-1", Filename: "futu.xlsx", Broker: "futu"}
	require.NoError(t, store.Archive(ctx, m, rows))

	got, found, err := store.ReadManifest(ctx, "batch-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "futu.xlsx", got.Filename)
	assert.Equal(t, int64(2), got.Rows)
	assert.NotZero(t, got.ArchivedAt)

	back, err := store.ReadRows(ctx, "batch-1")
	require.NoError(t, err)
	require.Len(t, back, 2)
	assert.Equal(t, "买入", back[0]["交易方向"])
	assert.Equal(t, "40", back[1]["成交数量"])
}

func TestReadManifestMissingBatch(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, found, err := store.ReadManifest(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestArchiveRequiresBatchID(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	err = store.Archive(context.Background(), Manifest{}, nil)
	assert.Error(t, err)
}
