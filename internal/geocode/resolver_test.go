package geocode

import (
	"context"
	"testing"

	"github.com/mmcloughlin/geohash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storesync/internal/delta"
)

func TestNormalizeAddress(t *testing.T) {
	t.Parallel()

	got := NormalizeAddress(delta.Address{
		Street:     "  12   Rue\tde la  Paix ",
		City:       "Montréal",
		Region:     "QC",
		PostalCode: " H2X\n1Y4 ",
	})

	assert.Equal(t, delta.Address{
		Street:     "12 Rue de la Paix",
		City:       "Montréal",
		Region:     "QC",
		PostalCode: "H2X 1Y4",
	}, got)
}

func TestFieldRoles_WithDefaults(t *testing.T) {
	t.Parallel()

	roles := FieldRoles{Street: "SingleLine"}.WithDefaults()
	assert.Equal(t, "SingleLine", roles.Street)
	assert.Equal(t, "City", roles.City)
	assert.Equal(t, "State", roles.Region)
	assert.Equal(t, "Zip", roles.PostalCode)

	fields := roles.Fields(delta.Address{Street: "1 Main", City: "X", Region: "Y", PostalCode: "Z"})
	assert.Equal(t, map[string]string{"SingleLine": "1 Main", "City": "X", "State": "Y", "Zip": "Z"}, fields)
}

func TestValidateOutcomes(t *testing.T) {
	t.Parallel()

	records := []delta.DeltaRecord{{StoreID: "A"}, {StoreID: "B"}}

	tests := []struct {
		name     string
		outcomes []delta.GeocodeOutcome
		wantErr  error
	}{
		{
			name:     "matching order",
			outcomes: []delta.GeocodeOutcome{{StoreID: "A"}, {StoreID: "B"}},
		},
		{
			name:     "too few",
			outcomes: []delta.GeocodeOutcome{{StoreID: "A"}},
			wantErr:  ErrCardinality,
		},
		{
			name:     "too many",
			outcomes: []delta.GeocodeOutcome{{StoreID: "A"}, {StoreID: "B"}, {StoreID: "C"}},
			wantErr:  ErrCardinality,
		},
		{
			name:     "swapped",
			outcomes: []delta.GeocodeOutcome{{StoreID: "B"}, {StoreID: "A"}},
			wantErr:  ErrOrder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateOutcomes(records, tt.outcomes)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGeohash(t *testing.T) {
	t.Parallel()

	loc := delta.Location{Lat: 57.64911, Lon: 10.40744}
	h := Geohash(loc)
	assert.Len(t, h, GeohashPrecision)
	assert.Equal(t, "u4pruy", h)

	lat, lng := geohash.DecodeCenter(h)
	assert.InDelta(t, loc.Lat, lat, 0.01)
	assert.InDelta(t, loc.Lon, lng, 0.01)
}

func TestResolverFunc(t *testing.T) {
	t.Parallel()

	f := ResolverFunc(func(_ context.Context, records []delta.DeltaRecord) ([]delta.GeocodeOutcome, error) {
		return []delta.GeocodeOutcome{{StoreID: records[0].StoreID, Tier: delta.TierMatched}}, nil
	})

	got, err := f.Resolve(context.Background(), []delta.DeltaRecord{{StoreID: "A"}})
	require.NoError(t, err)
	assert.Equal(t, "A", got[0].StoreID)
}
