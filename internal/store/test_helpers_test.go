package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"slices"
	"testing"

	"github.com/roach88/storesync/internal/delta"
)

// createTestStore creates a new file-backed SQLite store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(DriverSQLite, path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// newDelta builds a queue record with a predictable address.
func newDelta(storeID string, kind delta.ChangeKind) delta.DeltaRecord {
	return delta.DeltaRecord{
		StoreID: storeID,
		Kind:    kind,
		Address: delta.Address{
			Street:     "1 Main St",
			City:       "Springfield",
			Region:     "IL",
			PostalCode: "62701",
		},
		Attributes:  map[string]any{"store_name": "Store " + storeID},
		SubChannel:  "retail",
		StoreStatus: "open",
	}
}

// masterRecord builds a master record for storeID.
func masterRecord(storeID string) delta.MasterStoreRecord {
	return delta.MasterStoreRecord{
		StoreID:  storeID,
		Location: delta.Location{Lat: 39.7817, Lon: -89.6501},
		Geohash:  "dp0n",
		Address: delta.Address{
			Street:     "1 Main St",
			City:       "Springfield",
			Region:     "IL",
			PostalCode: "62701",
		},
		Attributes: map[string]any{"store_name": "Store " + storeID},
	}
}

var defaultProjection = []string{"store_id", "store_addr1", "store_city", "state_code", "zip", "store_name"}

func mustEnqueue(t *testing.T, s *Store, rec delta.DeltaRecord) int64 {
	t.Helper()
	id, err := s.EnqueueDelta(context.Background(), rec)
	if err != nil {
		t.Fatalf("EnqueueDelta() failed: %v", err)
	}
	return id
}

func mustInsertStore(t *testing.T, s *Store, storeID string) {
	t.Helper()
	if err := s.InsertStore(context.Background(), defaultProjection, masterRecord(storeID)); err != nil {
		t.Fatalf("InsertStore() failed: %v", err)
	}
}

// verifyPragma checks that a SQLite pragma has the expected value.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to list indexes: %v", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index: %v", err)
		}
		names = append(names, name)
	}
	return names
}

func contains(list []string, s string) bool {
	return slices.Contains(list, s)
}
