package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storesync/internal/delta"
)

func TestInsertStore_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertStore(ctx, defaultProjection, masterRecord("S1")))

	got, err := s.ListStores(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, masterRecord("S1"), got[0])
}

func TestInsertStore_ProjectionSubset(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertStore(ctx, []string{"store_id", "store_city"}, masterRecord("S1")))

	got, err := s.ListStores(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Springfield", got[0].Address.City)
	assert.Empty(t, got[0].Address.Street)
	assert.Equal(t, "dp0n", got[0].Geohash)
}

func TestInsertStore_MissingValue(t *testing.T) {
	s := createTestStore(t)

	rec := masterRecord("S1")
	rec.Attributes = nil

	err := s.InsertStore(context.Background(), defaultProjection, rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store_name")
}

func TestInsertStore_DuplicateStoreID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustInsertStore(t, s, "S1")
	err := s.InsertStore(ctx, defaultProjection, masterRecord("S1"))
	require.Error(t, err)

	n, err := s.CountStores(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStoreIDs_InsertionOrder(t *testing.T) {
	s := createTestStore(t)

	for _, id := range []string{"B", "A", "C"} {
		mustInsertStore(t, s, id)
	}

	ids, err := Collect(s.StoreIDs(context.Background()))
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A", "C"}, ids)
}

func TestDeleteStore(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustInsertStore(t, s, "S1")

	n, err := s.DeleteStore(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.DeleteStore(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	count, err := s.CountStores(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestValue_MasterRecordLocation(t *testing.T) {
	rec := masterRecord("S1")

	v, ok := rec.Value(delta.ColLatitude)
	require.True(t, ok)
	assert.InDelta(t, 39.7817, v, 1e-9)
}
