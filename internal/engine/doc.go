// Package engine runs one storesync batch: select the queued deltas,
// resolve the New addresses, apply inserts and removals to the master
// dataset in a single unit of work, then reproject the feature collections.
//
// Stages run strictly in sequence on the calling goroutine:
//
//  1. Selector reads the New and Removed partitions (ORDER BY objectid).
//  2. The geocode.Resolver resolves New addresses in one batch.
//  3. Synchronizer opens a unit of work, inserts accepted stores,
//     re-selects the Removed partition, deletes matching master rows,
//     records the run and commits.
//  4. The project.Projector rewrites each feature collection.
//
// Nothing is written before stage 3, and stage 3 either commits completely
// or not at all. Every fatal failure is a *RunError, recorded in the run
// ledger and sent to the Notifier. Post-processing faults are alerted but
// never undo a committed batch.
package engine
