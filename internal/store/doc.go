// Package store provides durable storage for the store-delta change queue,
// the master store dataset and the run ledger.
//
// One database holds four tables:
//   - store_deltas: pending New/Removed changes written upstream (read-only
//     to the engine unless queue consumption is enabled)
//   - stores: the master dataset, UNIQUE(store_id)
//   - sync_runs: one row per run, success or failure
//   - feature_collections: collections eligible for reprojection
//
// # Units of Work
//
// All mutations of a batch go through Store.WithinTx. Either every insert,
// delete, consumption and ledger write of the batch commits, or none does.
// On Postgres the transaction is SERIALIZABLE; on SQLite it begins with
// BEGIN IMMEDIATE so the write lock is held from the first statement.
//
// # Cursors
//
// Queue and master scans are exposed as iter.Seq2 sequences. The underlying
// rows are closed on every exit path, including early break. Callers that
// mutate while scanning must collect first (see Collect): a pgx connection
// cannot run a statement while a cursor is open on it.
//
// # Database Configuration (SQLite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
