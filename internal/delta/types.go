package delta

import (
	"fmt"
	"slices"
	"strings"
)

// ChangeKind classifies a queued delta.
type ChangeKind string

const (
	// KindNew marks a store that must be geocoded and inserted.
	KindNew ChangeKind = "New"

	// KindRemoved marks a store that must be deleted from the master dataset.
	KindRemoved ChangeKind = "Removed"
)

// ParseChangeKind validates a queue change_kind value.
func ParseChangeKind(s string) (ChangeKind, error) {
	switch ChangeKind(s) {
	case KindNew, KindRemoved:
		return ChangeKind(s), nil
	default:
		return "", fmt.Errorf("unknown change kind %q", s)
	}
}

// Queue and master column names.
const (
	ColObjectID    = "objectid"
	ColStoreID     = "store_id"
	ColChangeKind  = "change_kind"
	ColStreet      = "store_addr1"
	ColCity        = "store_city"
	ColRegion      = "state_code"
	ColPostalCode  = "zip"
	ColSubChannel  = "sub_channel"
	ColStoreStatus = "store_status"
	ColLatitude    = "latitude"
	ColLongitude   = "longitude"
	ColGeohash     = "geohash"
)

// ExcludedFields are queue bookkeeping columns that are never compared or
// copied into the master dataset. change_kind is routing data, not an
// attribute, so it is excluded as well.
var ExcludedFields = []string{ColObjectID, ColSubChannel, ColStoreStatus, ColChangeKind}

// IsExcluded reports whether a queue column is bookkeeping-only.
func IsExcluded(column string) bool {
	return slices.Contains(ExcludedFields, strings.ToLower(column))
}

// Address holds the fields submitted to the matching service.
type Address struct {
	Street     string `json:"street" yaml:"street"`
	City       string `json:"city" yaml:"city"`
	Region     string `json:"region" yaml:"region"`
	PostalCode string `json:"postal_code" yaml:"postal_code"`
}

// String formats the address on a single line for logs.
func (a Address) String() string {
	return strings.Join([]string{a.Street, a.City, a.Region, a.PostalCode}, ", ")
}

// DeltaRecord is a pending change read from the upstream queue.
// It is read-only to the engine.
type DeltaRecord struct {
	// ObjectID is the queue surrogate key. Bookkeeping only.
	ObjectID int64 `json:"objectid"`

	StoreID string     `json:"store_id"`
	Kind    ChangeKind `json:"change_kind"`
	Address Address    `json:"address"`

	// Attributes carries the remaining projected columns (e.g. store_name).
	Attributes map[string]any `json:"attributes,omitempty"`

	// SubChannel and StoreStatus are bookkeeping only.
	SubChannel  string `json:"sub_channel,omitempty"`
	StoreStatus string `json:"store_status,omitempty"`
}

// Location is a WGS84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Valid reports whether the coordinates are within WGS84 bounds.
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lon >= -180 && l.Lon <= 180
}

// MasterStoreRecord is a committed row of the master dataset.
// Records are inserted or deleted, never updated in place.
type MasterStoreRecord struct {
	StoreID    string         `json:"store_id"`
	Location   Location       `json:"location"`
	Geohash    string         `json:"geohash"`
	Address    Address        `json:"address"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Value returns the value of a queue column for this record. Unknown
// columns are looked up in Attributes.
func (r DeltaRecord) Value(column string) (any, bool) {
	switch strings.ToLower(column) {
	case ColObjectID:
		return r.ObjectID, true
	case ColStoreID:
		return r.StoreID, true
	case ColChangeKind:
		return string(r.Kind), true
	case ColStreet:
		return r.Address.Street, true
	case ColCity:
		return r.Address.City, true
	case ColRegion:
		return r.Address.Region, true
	case ColPostalCode:
		return r.Address.PostalCode, true
	case ColSubChannel:
		return r.SubChannel, true
	case ColStoreStatus:
		return r.StoreStatus, true
	}
	v, ok := r.Attributes[strings.ToLower(column)]
	return v, ok
}

// Value returns the value of a master column for this record.
func (m MasterStoreRecord) Value(column string) (any, bool) {
	switch strings.ToLower(column) {
	case ColStoreID:
		return m.StoreID, true
	case ColStreet:
		return m.Address.Street, true
	case ColCity:
		return m.Address.City, true
	case ColRegion:
		return m.Address.Region, true
	case ColPostalCode:
		return m.Address.PostalCode, true
	case ColLatitude:
		return m.Location.Lat, true
	case ColLongitude:
		return m.Location.Lon, true
	case ColGeohash:
		return m.Geohash, true
	}
	v, ok := m.Attributes[strings.ToLower(column)]
	return v, ok
}
