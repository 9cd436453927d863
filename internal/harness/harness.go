package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/roach88/txrelay/internal/peer"
	"github.com/roach88/txrelay/internal/pipeline"
	"github.com/roach88/txrelay/internal/store"
	"github.com/roach88/txrelay/internal/testutil"
	"github.com/roach88/txrelay/internal/tx"
)

const defaultMaxSteps = 1000

// Harness executes one scenario.
type Harness struct {
	store    *store.Store
	pipeline *pipeline.Pipeline
	peers    *scriptedPeers
	clock    *testutil.Clock
	ids      []string // successfully submitted, in order
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. A returned error means
// the scenario could not be executed (store failure, pipeline invariant
// violation); failed expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	clock := testutil.NewTickingClock(time.Millisecond)

	opts := []store.Option{store.WithClock(clock.Now)}
	if len(scenario.Pipeline.Satisfied) > 0 {
		statuses := make([]tx.Status, len(scenario.Pipeline.Satisfied))
		for i, name := range scenario.Pipeline.Satisfied {
			statuses[i] = tx.Status(name)
		}
		opts = append(opts, store.WithSatisfiedStatuses(statuses...))
	}

	st, err := store.Open(":memory:", opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	result := NewResult()
	peers := newScriptedPeers(scenario.Peers, result)
	h := &Harness{
		store: st,
		pipeline: pipeline.New(st, peers, pipeline.Config{
			RetryBudget: scenario.Pipeline.RetryBudget,
			Workers:     1,
		}),
		peers: peers,
		clock: clock,
	}

	ctx := context.Background()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Action, err)
		}
	}

	for _, id := range h.ids {
		rec, err := st.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read final state of %s: %w", id, err)
		}
		result.Final[id] = rec.Status.String()
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) execute(ctx context.Context, index int, step Step, result *Result) error {
	switch step.Action {
	case ActionSubmit:
		return h.submit(ctx, index, step, result)
	case ActionDrain:
		return h.drain(ctx, index, step, result)
	case ActionStep:
		return h.step(ctx, step)
	case ActionUpdate:
		return h.update(ctx, index, step, result)
	case ActionNextReady:
		return h.nextReady(ctx, index, step, result)
	}
	return fmt.Errorf("unknown action %q", step.Action)
}

func (h *Harness) submit(ctx context.Context, index int, step Step, result *Result) error {
	records := make([]tx.Record, len(step.Transactions))
	ids := make([]string, len(step.Transactions))
	for i, spec := range step.Transactions {
		records[i] = tx.NewPending(spec.ID, spec.payload(), spec.Priority, spec.Dependencies, h.clock.Now())
		ids[i] = spec.ID
	}

	err := h.store.Create(ctx, records)
	result.record(TraceEvent{Type: EventSubmit, IDs: ids, Result: string(store.CodeOf(err))})
	if err := checkExpectedError(result, index, step, err); err != nil {
		return err
	}
	if err != nil {
		return nil
	}

	for i, spec := range step.Transactions {
		h.peers.register(spec.ID, records[i].Raw)
	}
	h.ids = append(h.ids, ids...)
	return nil
}

func (h *Harness) drain(ctx context.Context, index int, step Step, result *Result) error {
	limit := step.MaxSteps
	if limit == 0 {
		limit = defaultMaxSteps
	}

	for i := 0; i < limit; i++ {
		outcome, err := h.pipeline.Step(ctx, "harness")
		if err != nil {
			return err
		}
		if outcome == pipeline.Idle {
			return nil
		}
	}
	result.AddError(fmt.Sprintf("steps[%d]: pipeline still busy after %d steps", index, limit))
	return nil
}

// step runs a fixed number of pipeline steps whatever their outcome.
func (h *Harness) step(ctx context.Context, step Step) error {
	times := step.Times
	if times == 0 {
		times = 1
	}
	for i := 0; i < times; i++ {
		if _, err := h.pipeline.Step(ctx, "harness"); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) update(ctx context.Context, index int, step Step, result *Result) error {
	rec, err := h.store.Get(ctx, step.ID)
	if err == nil {
		rec.Status = tx.Status(step.Status)
		err = h.store.Update(ctx, rec)
	}

	result.record(TraceEvent{Type: EventUpdate, ID: step.ID, Status: step.Status, Result: string(store.CodeOf(err))})
	return checkExpectedError(result, index, step, err)
}

func (h *Harness) nextReady(ctx context.Context, index int, step Step, result *Result) error {
	rec, err := h.store.NextReady(ctx, tx.Status(step.Status))
	if err != nil {
		return err
	}

	got := ""
	if rec != nil {
		got = rec.ID
	}
	result.record(TraceEvent{Type: EventNextReady, ID: got, Status: step.Status})
	if got != step.Expect {
		result.AddError(fmt.Sprintf("steps[%d]: next_ready(%s) = %q, want %q", index, step.Status, got, step.Expect))
	}
	return nil
}

// checkExpectedError compares err with step.ExpectError. Coded store
// errors become result errors; an unavailable store aborts the scenario.
func checkExpectedError(result *Result, index int, step Step, err error) error {
	code := string(store.CodeOf(err))
	switch {
	case err != nil && (code == "" || store.IsStorageUnavailable(err)):
		return err
	case code == step.ExpectError:
	case step.ExpectError == "":
		result.AddError(fmt.Sprintf("steps[%d]: unexpected error %v", index, err))
	default:
		got := code
		if got == "" {
			got = "success"
		}
		result.AddError(fmt.Sprintf("steps[%d]: got %s, want error %s", index, got, step.ExpectError))
	}
	return nil
}

// scriptedPeers answers broadcasts from a PeerScript and records each one.
type scriptedPeers struct {
	script PeerScript
	result *Result

	mu        sync.Mutex
	byPayload map[string]string
	attempts  map[string]int
}

var _ peer.Broadcaster = (*scriptedPeers)(nil)

func newScriptedPeers(script PeerScript, result *Result) *scriptedPeers {
	return &scriptedPeers{
		script:    script,
		result:    result,
		byPayload: make(map[string]string),
		attempts:  make(map[string]int),
	}
}

func (p *scriptedPeers) register(id string, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byPayload[string(payload)] = id
}

func (p *scriptedPeers) Broadcast(_ context.Context, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, ok := p.byPayload[string(payload)]
	if !ok {
		return peer.Permanent(errors.New("payload was never submitted"))
	}
	p.attempts[id]++

	var err error
	switch {
	case slices.Contains(p.script.Reject, id):
		err = peer.Permanent(errors.New("rejected by peers"))
	case p.script.Down:
		err = peer.Transient(errors.New("no peers reachable"))
	case p.attempts[id] <= p.script.Flaky[id]:
		err = peer.Transient(errors.New("publish timed out"))
	}

	outcome := ResultOK
	if err != nil {
		outcome = ResultTransient
		if peer.IsPermanent(err) {
			outcome = ResultPermanent
		}
	}
	p.result.record(TraceEvent{Type: EventBroadcast, ID: id, Result: outcome})
	return err
}
