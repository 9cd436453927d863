package harness

// Trace event types.
const (
	EventSubmit    = "submit"
	EventBroadcast = "broadcast"
	EventUpdate    = "update"
	EventNextReady = "next_ready"
)

// Broadcast results recorded in the trace.
const (
	ResultOK        = "ok"
	ResultTransient = "transient"
	ResultPermanent = "permanent"
)

// TraceEvent is one observable action during a scenario.
type TraceEvent struct {
	Seq    int      `json:"seq"`
	Type   string   `json:"type"`
	ID     string   `json:"id,omitempty"`
	IDs    []string `json:"ids,omitempty"`
	Status string   `json:"status,omitempty"`
	Result string   `json:"result,omitempty"` // broadcast result, or store error code
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace lists submissions, broadcasts, updates and queries in order.
	Trace []TraceEvent `json:"trace"`

	// Final maps every stored id to its status after the last step.
	Final map[string]string `json:"final"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Final:  map[string]string{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// record appends an event, numbering it.
func (r *Result) record(event TraceEvent) {
	event.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, event)
}

// broadcasts returns the broadcast events for id ("" for all).
func (r *Result) broadcasts(id string) []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Type == EventBroadcast && (id == "" || e.ID == id) {
			out = append(out, e)
		}
	}
	return out
}
