package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/txrelay/internal/store"
	"github.com/roach88/txrelay/internal/tx"
)

// Scenario defines a dispatch scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Pipeline tunes the store and pipeline under test.
	Pipeline PipelineSettings `yaml:"pipeline,omitempty"`

	// Peers scripts the simulated broadcast results.
	Peers PeerScript `yaml:"peers,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and final store contents.
	Assertions []Assertion `yaml:"assertions"`
}

// PipelineSettings overrides pipeline and store defaults.
type PipelineSettings struct {
	// RetryBudget defaults to pipeline.DefaultRetryBudget.
	RetryBudget int `yaml:"retry_budget,omitempty"`

	// Satisfied lists the statuses that satisfy a dependency.
	// Defaults to [propagated].
	Satisfied []string `yaml:"satisfied,omitempty"`
}

// PeerScript decides how simulated peers answer each broadcast.
type PeerScript struct {
	// Reject lists ids whose broadcast is permanently rejected.
	Reject []string `yaml:"reject,omitempty"`

	// Flaky maps an id to the number of transient failures before success.
	Flaky map[string]int `yaml:"flaky,omitempty"`

	// Down makes every broadcast fail transiently.
	Down bool `yaml:"down,omitempty"`
}

// Step actions.
const (
	ActionSubmit    = "submit"
	ActionDrain     = "drain"
	ActionStep      = "step"
	ActionUpdate    = "update"
	ActionNextReady = "next_ready"
)

// Step is one scenario action. Which fields apply depends on Action.
type Step struct {
	Action string `yaml:"action"`

	// Transactions is the batch for submit.
	Transactions []TxSpec `yaml:"transactions,omitempty"`

	// ID is the record for update.
	ID string `yaml:"id,omitempty"`

	// Status is the new status for update and the queried status for next_ready.
	Status string `yaml:"status,omitempty"`

	// Expect is the id next_ready must return; empty expects none.
	Expect string `yaml:"expect,omitempty"`

	// ExpectError is the store error code submit or update must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`

	// MaxSteps bounds drain. Defaults to 1000.
	MaxSteps int `yaml:"max_steps,omitempty"`

	// Times is how many pipeline steps step runs. Defaults to 1.
	Times int `yaml:"times,omitempty"`
}

// TxSpec describes a transaction to submit.
type TxSpec struct {
	ID           string   `yaml:"id"`
	Raw          string   `yaml:"raw,omitempty"` // text; defaults to "raw-<id>"
	Priority     uint32   `yaml:"priority,omitempty"`
	Dependencies []string `yaml:"dependencies,omitempty"`
}

func (s TxSpec) payload() []byte {
	if s.Raw != "" {
		return []byte(s.Raw)
	}
	return []byte("raw-" + s.ID)
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// IDs is the expected broadcast order (broadcast_order).
	IDs []string `yaml:"ids,omitempty"`

	// ID selects a record (broadcast_count, final_status).
	ID string `yaml:"id,omitempty"`

	// Status is the expected status (final_status, status_count).
	Status string `yaml:"status,omitempty"`

	// Count is the expected number (broadcast_count, status_count).
	Count int `yaml:"count"`
}

// Assertion type constants.
const (
	AssertBroadcastOrder = "broadcast_order"
	AssertBroadcastCount = "broadcast_count"
	AssertFinalStatus    = "final_status"
	AssertStatusCount    = "status_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so that typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
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
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.Pipeline.RetryBudget < 0 {
		return fmt.Errorf("pipeline.retry_budget must be non-negative")
	}
	for _, name := range s.Pipeline.Satisfied {
		if _, err := tx.ParseStatus(name); err != nil {
			return fmt.Errorf("pipeline.satisfied: %w", err)
		}
	}
	for id, n := range s.Peers.Flaky {
		if n < 0 {
			return fmt.Errorf("peers.flaky[%s]: count must be non-negative", id)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *Step) error {
	if step.ExpectError != "" && !knownErrorCode(step.ExpectError) {
		return fmt.Errorf("steps[%d]: unknown error code %q", index, step.ExpectError)
	}

	switch step.Action {
	case ActionSubmit:
		if len(step.Transactions) == 0 {
			return fmt.Errorf("steps[%d]: transactions are required for submit", index)
		}
		for j, t := range step.Transactions {
			if t.ID == "" {
				return fmt.Errorf("steps[%d].transactions[%d]: id is required", index, j)
			}
		}
	case ActionDrain:
		if step.MaxSteps < 0 {
			return fmt.Errorf("steps[%d]: max_steps must be non-negative", index)
		}
	case ActionStep:
		if step.Times < 0 {
			return fmt.Errorf("steps[%d]: times must be non-negative", index)
		}
	case ActionUpdate:
		if step.ID == "" {
			return fmt.Errorf("steps[%d]: id is required for update", index)
		}
		if _, err := tx.ParseStatus(step.Status); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	case ActionNextReady:
		if _, err := tx.ParseStatus(step.Status); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	case "":
		return fmt.Errorf("steps[%d]: action is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, step.Action)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertBroadcastOrder:
		if a.IDs == nil {
			return fmt.Errorf("assertions[%d]: ids list is required for broadcast_order", index)
		}
	case AssertBroadcastCount:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for broadcast_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for broadcast_count", index)
		}
	case AssertFinalStatus:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for final_status", index)
		}
		if _, err := tx.ParseStatus(a.Status); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertStatusCount:
		if _, err := tx.ParseStatus(a.Status); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for status_count", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func knownErrorCode(code string) bool {
	switch store.ErrorCode(code) {
	case store.ErrCodeDuplicateID,
		store.ErrCodeDependencyNotFound,
		store.ErrCodeNotFound,
		store.ErrCodeInvalidRecord,
		store.ErrCodeInvalidTransition,
		store.ErrCodeStatusConflict,
		store.ErrCodeStorageUnavailable:
		return true
	}
	return false
}
