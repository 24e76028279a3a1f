// Package delta defines the record types shared by the synchronization
// engine: queued changes, geocode outcomes, master records and the acceptance
// policy that decides which outcomes may be inserted.
//
// This package contains type definitions and pure functions only. All other
// internal packages import delta; delta imports nothing internal.
//
// Key constraints:
//   - ChangeKind partitions the queue into exactly two disjoint paths
//   - Bookkeeping columns (objectid, sub_channel, store_status) never reach
//     the master dataset
//   - Only Matched and Tied outcomes are accepted for insertion
package delta
