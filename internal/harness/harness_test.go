package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name, "file name must match scenario name")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func mustParse(t *testing.T, yaml string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(yaml))
	require.NoError(t, err)
	return s
}

func TestRun_UnexpectedRejectionFails(t *testing.T) {
	s := mustParse(t, `
name: unexpected
description: "duplicate without expect_error"
steps:
  - action: submit
    transactions: [{id: a}]
  - action: submit
    transactions: [{id: a}]
assertions:
  - type: status_count
    status: pending
    count: 1
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[1]")
	assert.Contains(t, result.Errors[0], "DUPLICATE_ID")
}

func TestRun_MissingExpectedError(t *testing.T) {
	s := mustParse(t, `
name: missing
description: "expect_error that does not happen"
steps:
  - action: submit
    transactions: [{id: a}]
    expect_error: DUPLICATE_ID
assertions:
  - type: status_count
    status: pending
    count: 1
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "got success, want error DUPLICATE_ID")
}

func TestRun_NextReadyMismatch(t *testing.T) {
	s := mustParse(t, `
name: mismatch
description: "wrong expectation"
steps:
  - action: submit
    transactions: [{id: a, priority: 2}, {id: b, priority: 1}]
  - action: next_ready
    status: pending
    expect: a
assertions:
  - type: status_count
    status: pending
    count: 2
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], `next_ready(pending) = "b", want "a"`)
}

func TestRun_DrainLimit(t *testing.T) {
	s := mustParse(t, `
name: limit
description: "drain stops at max_steps"
pipeline:
  retry_budget: 100
peers:
  down: true
steps:
  - action: submit
    transactions: [{id: a}]
  - action: drain
    max_steps: 5
assertions:
  - type: broadcast_count
    id: a
    count: 4
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "still busy after 5 steps")
	assert.Equal(t, "validated", result.Final["a"])
}

func TestRun_FailedAssertionReportsTrace(t *testing.T) {
	s := mustParse(t, `
name: wrong_order
description: "order assertion that does not hold"
steps:
  - action: submit
    transactions: [{id: a, priority: 1}, {id: b, priority: 2}]
  - action: drain
assertions:
  - type: broadcast_order
    ids: [b, a]
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Expected: [b a]")
	assert.Contains(t, result.Errors[0], "Actual: [a b]")
	assert.Contains(t, result.Errors[0], "broadcast a ok")
}

func TestRun_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/permanent_rejection.yaml")
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := Snapshot(s.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}
