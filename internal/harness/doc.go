// Package harness runs dispatch scenarios against a real store and pipeline.
//
// A scenario is a YAML file describing transactions to submit, how the
// simulated peers answer broadcasts, and what the store must look like
// afterwards. Every run uses a fresh in-memory database and a fake clock,
// so the recorded trace is identical between runs and can be compared with
// a golden file.
//
// # Scenario Format
//
//	name: dependency_before_priority
//	description: "A dependent waits for its requirement"
//	pipeline:
//	  retry_budget: 3
//	peers:
//	  reject: [bad]       # broadcasts of these ids fail permanently
//	  flaky: {slow: 2}    # transient failures before success
//	  down: false         # every broadcast fails transiently
//	steps:
//	  - action: submit
//	    transactions:
//	      - {id: t1, priority: 5}
//	      - {id: t2, priority: 0, dependencies: [t1]}
//	  - action: next_ready
//	    status: pending
//	    expect: t1
//	  - action: drain
//	  - action: update
//	    id: t2
//	    status: pending
//	    expect_error: INVALID_TRANSITION
//	assertions:
//	  - type: broadcast_order
//	    ids: [t1, t2]
//	  - type: final_status
//	    id: t2
//	    status: propagated
//
// # Step Actions
//
//   - submit: create the transactions as one batch
//   - step: run times pipeline steps (default 1) whatever their outcome
//   - drain: step until the pipeline is idle, at most max_steps times
//   - update: move id to status through the store
//   - next_ready: query the store; expect is the id it must return
//
// # Assertion Types
//
//   - broadcast_order: the successful broadcasts, in order, are exactly ids
//   - broadcast_count: id was offered to peers exactly count times
//   - final_status: id ends in status
//   - status_count: exactly count records end in status
package harness
