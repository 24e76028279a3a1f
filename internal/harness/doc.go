// Package harness runs end-to-end sync scenarios against the real engine.
//
// A scenario seeds a fresh in-memory database with a master dataset and a
// change queue, stubs the geocoder with fixed outcomes, runs exactly one
// batch and evaluates assertions against the outcome, the final tables and
// the ordered log trace the engine emitted.
//
// # Scenario Format
//
//	name: insert_and_remove
//	description: "One accepted New, one rejected New, one Removed"
//	run_id: run-a
//	master:
//	  - { store_id: S1, street: 1 Main St, city: Springfield, region: IL, postal_code: "62701", lat: 39.78, lon: -89.65 }
//	queue:
//	  - { store_id: S3, kind: New, street: 9 Elm St, city: Peoria, region: IL, postal_code: "61602" }
//	  - { store_id: S1, kind: Removed }
//	geocode:
//	  S3: { tier: Matched, lat: 40.69, lon: -89.59, score: 98 }
//	assertions:
//	  - type: outcome
//	    outcome: success
//	  - type: master_ids
//	    ids: [S3]
//	  - type: trace_contains
//	    event: inserted store
//	    attrs: { store_id: S3 }
//
// # Assertion Types
//
//   - outcome: the run succeeded or failed with the given code
//   - master_ids: the master store IDs, in insertion order
//   - queue_count: the number of queued rows of one kind
//   - alerts: the codes routed to the notifier, in order
//   - trace_contains: an event was logged with matching attrs
//   - trace_order: events were logged in the given order
//   - trace_count: an event was logged exactly N times
//   - final_state: one row of a table matches the expected values
//
// # Deterministic Testing
//
// Every scenario uses a fixed run ID, testutil.DeterministicClock and an
// in-memory SQLite database, so traces are identical across runs and can be
// compared against golden files.
package harness
