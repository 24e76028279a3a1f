package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/storesync/internal/delta"
)

// Scenario defines one sync run and the assertions on its result.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RunID is the fixed run ID. Defaults to testutil's default run ID.
	RunID string `yaml:"run_id,omitempty"`

	// ConsumeQueue deletes processed queue rows inside the batch.
	ConsumeQueue bool `yaml:"consume_queue,omitempty"`

	// Master seeds the master dataset, in insertion order.
	Master []StoreRow `yaml:"master,omitempty"`

	// Queue seeds the change queue, in objectid order.
	Queue []ChangeRow `yaml:"queue,omitempty"`

	// Geocode maps store IDs to the outcome the stub geocoder returns.
	// A New record with no entry resolves to an Unknown tier.
	Geocode map[string]MatchRow `yaml:"geocode,omitempty"`

	// GeocodeError makes the stub geocoder fail the whole batch.
	GeocodeError string `yaml:"geocode_error,omitempty"`

	// RejectDeletes makes deleting these master store IDs fail with a
	// conflict, as a concurrent writer holding the row would.
	RejectDeletes []string `yaml:"reject_deletes,omitempty"`

	// Collections registers extra feature collections. An empty srid
	// registers the collection without a coordinate system.
	Collections []CollectionRow `yaml:"collections,omitempty"`

	// Assertions validate the run result and final state.
	Assertions []Assertion `yaml:"assertions"`
}

// StoreRow is a seeded master record.
type StoreRow struct {
	StoreID    string  `yaml:"store_id"`
	Name       string  `yaml:"name,omitempty"`
	Street     string  `yaml:"street,omitempty"`
	City       string  `yaml:"city,omitempty"`
	Region     string  `yaml:"region,omitempty"`
	PostalCode string  `yaml:"postal_code,omitempty"`
	Lat        float64 `yaml:"lat"`
	Lon        float64 `yaml:"lon"`
}

// ChangeRow is a seeded queue record.
type ChangeRow struct {
	StoreID    string `yaml:"store_id"`
	Kind       string `yaml:"kind"`
	Name       string `yaml:"name,omitempty"`
	Street     string `yaml:"street,omitempty"`
	City       string `yaml:"city,omitempty"`
	Region     string `yaml:"region,omitempty"`
	PostalCode string `yaml:"postal_code,omitempty"`
}

// MatchRow is a stubbed geocode outcome.
type MatchRow struct {
	Tier  string  `yaml:"tier"`
	Lat   float64 `yaml:"lat"`
	Lon   float64 `yaml:"lon"`
	Score float64 `yaml:"score,omitempty"`
}

// CollectionRow is an extra feature collection registration.
type CollectionRow struct {
	Name string `yaml:"name"`
	SRID string `yaml:"srid,omitempty"`
}

// Assertion validates the run result or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Outcome is "success" or "failure" (outcome).
	Outcome string `yaml:"outcome,omitempty"`

	// Code is the expected RunError code of a failed run (outcome).
	Code string `yaml:"code,omitempty"`

	// IDs are the expected master store IDs (master_ids).
	IDs []string `yaml:"ids,omitempty"`

	// Kind is the queue partition (queue_count).
	Kind string `yaml:"kind,omitempty"`

	// Codes are the expected alert codes in order (alerts).
	Codes []string `yaml:"codes,omitempty"`

	// Event is the log message (trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// Attrs are the expected event attributes, subset match (trace_contains).
	Attrs map[string]any `yaml:"attrs,omitempty"`

	// Events is the expected event order (trace_order).
	Events []string `yaml:"events,omitempty"`

	// Count is the expected number of occurrences (trace_count, queue_count).
	Count int `yaml:"count,omitempty"`

	// Table, Where and Expect select and check one row (final_state).
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertOutcome       = "outcome"
	AssertMasterIDs     = "master_ids"
	AssertQueueCount    = "queue_count"
	AssertAlerts        = "alerts"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(s.Master))
	for i, row := range s.Master {
		if row.StoreID == "" {
			return fmt.Errorf("master[%d]: store_id is required", i)
		}
		if seen[row.StoreID] {
			return fmt.Errorf("master[%d]: duplicate store_id %q", i, row.StoreID)
		}
		seen[row.StoreID] = true
	}

	for i, row := range s.Queue {
		if row.StoreID == "" {
			return fmt.Errorf("queue[%d]: store_id is required", i)
		}
		if _, err := delta.ParseChangeKind(row.Kind); err != nil {
			return fmt.Errorf("queue[%d]: %w", i, err)
		}
	}

	for id, m := range s.Geocode {
		if delta.ParseMatchTier(m.Tier) == delta.TierUnknown && m.Tier != delta.TierUnknown.String() {
			return fmt.Errorf("geocode[%s]: unknown tier %q", id, m.Tier)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOutcome:
		if a.Outcome != OutcomeSuccess && a.Outcome != OutcomeFailure {
			return fmt.Errorf("assertions[%d]: outcome must be %q or %q", index, OutcomeSuccess, OutcomeFailure)
		}
	case AssertMasterIDs, AssertAlerts:
		// An empty list asserts an empty dataset or no alerts.
	case AssertQueueCount:
		if _, err := delta.ParseChangeKind(a.Kind); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for queue_count", index)
		}
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
