// Package geocode resolves queued store addresses to located, graded matches
// through an external address-matching service.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/mmcloughlin/geohash"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/storesync/internal/delta"
)

//go:generate mockgen -destination=mocks/mock_resolver.go -package=mocks -source=resolver.go Resolver

// Resolver submits a batch of addresses and returns one outcome per input
// record, in input order.
//
// Any returned error is fatal for the run; there is no partial result.
type Resolver interface {
	Resolve(ctx context.Context, records []delta.DeltaRecord) ([]delta.GeocodeOutcome, error)
}

// GeohashPrecision is the number of characters stored in the master geohash
// column (~1.2km x 0.6km cells at 6).
const GeohashPrecision = 6

var (
	// ErrCardinality means the service returned a different number of
	// outcomes than addresses submitted.
	ErrCardinality = errors.New("outcome count does not match submitted addresses")

	// ErrOrder means an outcome does not refer back to the record at the
	// same position.
	ErrOrder = errors.New("outcome order does not match submitted addresses")
)

// FieldRoles maps each address role to the field name the matching service
// expects for it.
type FieldRoles struct {
	Street     string `yaml:"street" json:"street"`
	City       string `yaml:"city" json:"city"`
	Region     string `yaml:"region" json:"region"`
	PostalCode string `yaml:"postal_code" json:"postal_code"`
}

// DefaultFieldRoles are the role names of a standard single-line locator.
var DefaultFieldRoles = FieldRoles{
	Street:     "Address",
	City:       "City",
	Region:     "State",
	PostalCode: "Zip",
}

// WithDefaults fills empty roles from DefaultFieldRoles.
func (r FieldRoles) WithDefaults() FieldRoles {
	if r.Street == "" {
		r.Street = DefaultFieldRoles.Street
	}
	if r.City == "" {
		r.City = DefaultFieldRoles.City
	}
	if r.Region == "" {
		r.Region = DefaultFieldRoles.Region
	}
	if r.PostalCode == "" {
		r.PostalCode = DefaultFieldRoles.PostalCode
	}
	return r
}

// Fields renders an address under the role names.
func (r FieldRoles) Fields(a delta.Address) map[string]string {
	return map[string]string{
		r.Street:     a.Street,
		r.City:       a.City,
		r.Region:     a.Region,
		r.PostalCode: a.PostalCode,
	}
}

// NormalizeAddress applies NFC normalization and collapses internal
// whitespace in every address field.
func NormalizeAddress(a delta.Address) delta.Address {
	return delta.Address{
		Street:     normalizeField(a.Street),
		City:       normalizeField(a.City),
		Region:     normalizeField(a.Region),
		PostalCode: normalizeField(a.PostalCode),
	}
}

func normalizeField(s string) string {
	return strings.Join(strings.FieldsFunc(norm.NFC.String(s), unicode.IsSpace), " ")
}

// ValidateOutcomes checks that outcomes correspond one-to-one, in order, to
// the submitted records.
func ValidateOutcomes(records []delta.DeltaRecord, outcomes []delta.GeocodeOutcome) error {
	if len(outcomes) != len(records) {
		return fmt.Errorf("%w: submitted %d, received %d", ErrCardinality, len(records), len(outcomes))
	}
	for i := range records {
		if outcomes[i].StoreID != records[i].StoreID {
			return fmt.Errorf("%w: position %d expected %q, got %q",
				ErrOrder, i, records[i].StoreID, outcomes[i].StoreID)
		}
	}
	return nil
}

// Geohash encodes a location at GeohashPrecision.
func Geohash(loc delta.Location) string {
	return geohash.EncodeWithPrecision(loc.Lat, loc.Lon, GeohashPrecision)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, records []delta.DeltaRecord) ([]delta.GeocodeOutcome, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, records []delta.DeltaRecord) ([]delta.GeocodeOutcome, error) {
	return f(ctx, records)
}
