package status

import (
	"sync"
	"time"

	"github.com/skj-judge/skj-judge/handshake"
	"github.com/skj-judge/skj-judge/types"
)

// Phase defines where the run currently is
type Phase string

// Run phases
const (
	PhaseHandshake Phase = "handshake"
	PhaseExchange  Phase = "exchange"
	PhaseFinished  Phase = "finished"
	PhaseAborted   Phase = "aborted"
)

// Snapshot is a copy of the run state safe to serialize
type Snapshot struct {
	Phase     Phase              `json:"phase"`
	StartedAt time.Time          `json:"startedAt"`
	Rejected  int                `json:"rejected"`
	Endpoint  string             `json:"endpoint,omitempty"`
	Tasks     []types.TaskResult `json:"tasks"`
	Passed    int                `json:"passed"`
	FlagSent  bool               `json:"flagSent"`
	Error     string             `json:"error,omitempty"`
}

// Tracker records the progress of a run. The engines report into it through
// their observers, HTTP and gRPC handlers read from it.
type Tracker struct {
	mu sync.Mutex
	s  Snapshot

	// watchers are notified on every phase change
	watchers []func(Phase)
}

// NewTracker creates tracker for a batch
func NewTracker(tasks []types.Task) *Tracker {
	t := &Tracker{
		s: Snapshot{
			Phase:     PhaseHandshake,
			StartedAt: time.Now(),
			Tasks:     make([]types.TaskResult, len(tasks)),
		},
	}
	for i, task := range tasks {
		t.s.Tasks[i] = types.TaskResult{Index: i, Kind: task.Kind(), Status: types.ProgressPending}
	}
	return t
}

// Watch registers f to be called with the new phase on every change
func (t *Tracker) Watch(f func(Phase)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.watchers = append(t.watchers, f)
}

// Attempt records a finished handshake attempt
func (t *Tracker) Attempt(a handshake.Attempt) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a.State == handshake.Rejected {
		t.s.Rejected++
		return
	}
	t.s.Endpoint = a.Endpoint
}

// Exchange marks the start of the UDP phase
func (t *Tracker) Exchange() {
	t.setPhase(PhaseExchange, nil)
}

// Task records the outcome of a single task
func (t *Tracker) Task(r types.TaskResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r.Index < 0 || r.Index >= len(t.s.Tasks) {
		return
	}
	t.s.Tasks[r.Index] = r
	if r.Status == types.ProgressSucceeded {
		t.s.Passed++
	}
}

// Finish records the end of the run, err is the transport error if any
func (t *Tracker) Finish(r *types.JudgeResult, err error) {
	t.mu.Lock()
	if r != nil {
		t.s.FlagSent = r.FlagSent
	}
	t.mu.Unlock()

	if err != nil {
		t.setPhase(PhaseAborted, err)
		return
	}
	t.setPhase(PhaseFinished, nil)
}

// Abort ends the run before the exchange took place
func (t *Tracker) Abort(err error) {
	t.setPhase(PhaseAborted, err)
}

func (t *Tracker) setPhase(p Phase, err error) {
	t.mu.Lock()
	t.s.Phase = p
	if err != nil {
		t.s.Error = err.Error()
	}
	watchers := t.watchers
	t.mu.Unlock()

	for _, w := range watchers {
		w(p)
	}
}

// Snapshot returns a copy of the current state
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.s
	s.Tasks = append([]types.TaskResult(nil), t.s.Tasks...)
	return s
}
