package engine

import (
	"context"
	"iter"
	"log/slog"

	"github.com/roach88/storesync/internal/delta"
)

// Queue is the read side of the change queue.
type Queue interface {
	Deltas(ctx context.Context, kind delta.ChangeKind) iter.Seq2[delta.DeltaRecord, error]
}

// Partition is the ordered set of queued records of one kind.
type Partition struct {
	Kind    delta.ChangeKind
	Records []delta.DeltaRecord
}

// Count returns the number of records in the partition.
func (p Partition) Count() int {
	return len(p.Records)
}

// StoreIDs returns the store ids of the partition in queue order.
func (p Partition) StoreIDs() []string {
	ids := make([]string, len(p.Records))
	for i, r := range p.Records {
		ids[i] = r.StoreID
	}
	return ids
}

// Selector reads queue partitions. It never mutates the queue.
type Selector struct {
	logger *slog.Logger
}

// NewSelector creates a Selector that logs to logger.
func NewSelector(logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{logger: logger}
}

// Select returns every queued record of kind, ordered by objectid.
// Read faults are returned as QUERY_FAILURE.
func (s *Selector) Select(ctx context.Context, q Queue, kind delta.ChangeKind) (Partition, error) {
	p := Partition{Kind: kind}
	for rec, err := range q.Deltas(ctx, kind) {
		if err != nil {
			return Partition{}, NewQueryFailure(string(kind), err)
		}
		p.Records = append(p.Records, rec)
	}
	s.logger.InfoContext(ctx, "selected deltas", "kind", string(kind), "count", p.Count())
	return p, nil
}
