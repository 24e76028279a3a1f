package store

import (
	"context"
	"fmt"
	"iter"
	"maps"

	"github.com/roach88/storesync/internal/delta"
)

// Deltas returns a single-pass sequence over the queue rows of one kind,
// ordered by objectid. The queue is never modified.
//
// The sequence yields at most one error and then stops.
func (c conn) Deltas(ctx context.Context, kind delta.ChangeKind) iter.Seq2[delta.DeltaRecord, error] {
	return func(yield func(delta.DeltaRecord, error) bool) {
		rows, err := c.query(ctx,
			"SELECT * FROM "+TableDeltas+" WHERE change_kind = ? ORDER BY objectid ASC",
			string(kind))
		if err != nil {
			yield(delta.DeltaRecord{}, fmt.Errorf("query %s deltas: %w", kind, err))
			return
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			yield(delta.DeltaRecord{}, fmt.Errorf("read delta columns: %w", err))
			return
		}

		for rows.Next() {
			row, err := scanMap(rows, cols)
			if err != nil {
				yield(delta.DeltaRecord{}, fmt.Errorf("scan delta: %w", err))
				return
			}
			rec, err := recordFromRow(row)
			if err != nil {
				yield(delta.DeltaRecord{}, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(delta.DeltaRecord{}, fmt.Errorf("iterate deltas: %w", err))
		}
	}
}

// recordFromRow maps a queue row onto a DeltaRecord. Columns without a
// dedicated field land in Attributes.
func recordFromRow(row map[string]any) (delta.DeltaRecord, error) {
	id, ok := asInt64(row[delta.ColObjectID])
	if !ok {
		return delta.DeltaRecord{}, fmt.Errorf("delta row has invalid %s %v", delta.ColObjectID, row[delta.ColObjectID])
	}
	kind, err := delta.ParseChangeKind(asString(row[delta.ColChangeKind]))
	if err != nil {
		return delta.DeltaRecord{}, fmt.Errorf("delta %d: %w", id, err)
	}

	rec := delta.DeltaRecord{
		ObjectID: id,
		StoreID:  asString(row[delta.ColStoreID]),
		Kind:     kind,
		Address: delta.Address{
			Street:     asString(row[delta.ColStreet]),
			City:       asString(row[delta.ColCity]),
			Region:     asString(row[delta.ColRegion]),
			PostalCode: asString(row[delta.ColPostalCode]),
		},
		SubChannel:  asString(row[delta.ColSubChannel]),
		StoreStatus: asString(row[delta.ColStoreStatus]),
	}

	attrs := maps.Clone(row)
	for _, col := range []string{
		delta.ColObjectID, delta.ColStoreID, delta.ColChangeKind,
		delta.ColStreet, delta.ColCity, delta.ColRegion, delta.ColPostalCode,
		delta.ColSubChannel, delta.ColStoreStatus,
	} {
		delete(attrs, col)
	}
	if len(attrs) > 0 {
		rec.Attributes = attrs
	}
	return rec, nil
}

// EnqueueDelta appends a change to the queue and returns its objectid.
// The upstream system owns the queue; this exists for seeding and tests.
func (c conn) EnqueueDelta(ctx context.Context, rec delta.DeltaRecord) (int64, error) {
	var id int64
	err := c.queryRow(ctx, `
		INSERT INTO `+TableDeltas+` (store_id, change_kind, store_addr1, store_city,
			state_code, zip, store_name, sub_channel, store_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING objectid`,
		rec.StoreID,
		string(rec.Kind),
		rec.Address.Street,
		rec.Address.City,
		rec.Address.Region,
		rec.Address.PostalCode,
		asString(rec.Attributes["store_name"]),
		rec.SubChannel,
		rec.StoreStatus,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("enqueue delta %s: %w", rec.StoreID, err)
	}
	return id, nil
}

// ConsumeDeltas removes processed queue rows and returns how many were
// deleted.
func (c conn) ConsumeDeltas(ctx context.Context, objectIDs []int64) (int64, error) {
	var total int64
	for _, id := range objectIDs {
		res, err := c.exec(ctx, "DELETE FROM "+TableDeltas+" WHERE objectid = ?", id)
		if err != nil {
			return total, fmt.Errorf("consume delta %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("consume delta %d: %w", id, err)
		}
		total += n
	}
	return total, nil
}

// CountDeltas returns the number of queued rows of one kind.
func (c conn) CountDeltas(ctx context.Context, kind delta.ChangeKind) (int64, error) {
	var n int64
	err := c.queryRow(ctx, "SELECT COUNT(*) FROM "+TableDeltas+" WHERE change_kind = ?", string(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s deltas: %w", kind, err)
	}
	return n, nil
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int32:
		return int64(x), true
	case int:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
