package store

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/roach88/storesync/internal/delta"
)

// locationColumns are always written by InsertStore, whatever the projection.
var locationColumns = []string{delta.ColLatitude, delta.ColLongitude, delta.ColGeohash}

// InsertStore inserts one master record. projection lists the attribute
// columns to copy; location columns are appended.
//
// A duplicate store_id fails with the database's uniqueness violation.
func (c conn) InsertStore(ctx context.Context, projection []string, rec delta.MasterStoreRecord) error {
	cols := make([]string, 0, len(projection)+len(locationColumns))
	for _, col := range projection {
		col = strings.ToLower(col)
		if !slices.Contains(locationColumns, col) && !slices.Contains(cols, col) {
			cols = append(cols, col)
		}
	}
	cols = append(cols, locationColumns...)

	quoted := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		q, err := quoteIdent(col)
		if err != nil {
			return fmt.Errorf("insert store %s: %w", rec.StoreID, err)
		}
		quoted[i] = q
		v, ok := rec.Value(col)
		if !ok {
			return fmt.Errorf("insert store %s: no value for column %q", rec.StoreID, col)
		}
		args[i] = v
	}

	query := "INSERT INTO " + TableStores + " (" + strings.Join(quoted, ", ") +
		") VALUES (" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	if _, err := c.exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert store %s: %w", rec.StoreID, err)
	}
	return nil
}

// StoreIDs returns a single-pass sequence over the master store IDs in
// insertion order.
func (c conn) StoreIDs(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		rows, err := c.query(ctx, "SELECT store_id FROM "+TableStores+" ORDER BY objectid ASC")
		if err != nil {
			yield("", fmt.Errorf("query store ids: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				yield("", fmt.Errorf("scan store id: %w", err))
				return
			}
			if !yield(id, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield("", fmt.Errorf("iterate store ids: %w", err))
		}
	}
}

// DeleteStore deletes the master record with the given store ID and returns
// the number of rows removed (0 or 1).
func (c conn) DeleteStore(ctx context.Context, storeID string) (int64, error) {
	res, err := c.exec(ctx, "DELETE FROM "+TableStores+" WHERE store_id = ?", storeID)
	if err != nil {
		return 0, fmt.Errorf("delete store %s: %w", storeID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete store %s: %w", storeID, err)
	}
	return n, nil
}

// CountStores returns the size of the master dataset.
func (c conn) CountStores(ctx context.Context) (int64, error) {
	var n int64
	if err := c.queryRow(ctx, "SELECT COUNT(*) FROM "+TableStores).Scan(&n); err != nil {
		return 0, fmt.Errorf("count stores: %w", err)
	}
	return n, nil
}

// ListStores returns every master record ordered by insertion.
func (c conn) ListStores(ctx context.Context) ([]delta.MasterStoreRecord, error) {
	rows, err := c.query(ctx, "SELECT * FROM "+TableStores+" ORDER BY objectid ASC")
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}

	var out []delta.MasterStoreRecord
	for rows.Next() {
		row, err := scanMap(rows, cols)
		if err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		lat, _ := asFloat64(row[delta.ColLatitude])
		lon, _ := asFloat64(row[delta.ColLongitude])
		rec := delta.MasterStoreRecord{
			StoreID:  asString(row[delta.ColStoreID]),
			Location: delta.Location{Lat: lat, Lon: lon},
			Geohash:  asString(row[delta.ColGeohash]),
			Address: delta.Address{
				Street:     asString(row[delta.ColStreet]),
				City:       asString(row[delta.ColCity]),
				Region:     asString(row[delta.ColRegion]),
				PostalCode: asString(row[delta.ColPostalCode]),
			},
		}
		for _, col := range []string{
			delta.ColObjectID, delta.ColStoreID, delta.ColLatitude, delta.ColLongitude,
			delta.ColGeohash, delta.ColStreet, delta.ColCity, delta.ColRegion, delta.ColPostalCode,
		} {
			delete(row, col)
		}
		if len(row) > 0 {
			rec.Attributes = row
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
