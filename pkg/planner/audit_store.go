package planner

import (
	"context"
	"sync"
	"time"
)

// AuditStatus is the lifecycle point an audit event records.
type AuditStatus = string

const (
	AuditStarted   AuditStatus = "started"
	AuditCompleted AuditStatus = "completed"
	AuditFailed    AuditStatus = "failed"
)

// AuditEvent records one step transition of a plan run. A step produces a
// started event followed by either a completed or a failed event.
type AuditEvent struct {
	PlanID     string      `json:"plan_id"`
	RunID      string      `json:"run_id,omitempty"`
	StepID     int         `json:"step_id"`
	StepKind   string      `json:"step_kind"`
	Tool       string      `json:"tool,omitempty"`
	Status     AuditStatus `json:"status"`
	Output     any         `json:"output,omitempty"`
	Error      string      `json:"error,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at,omitempty"`
}

// Duration is the step run time, or zero for a started event.
func (e AuditEvent) Duration() time.Duration {
	if e.FinishedAt.IsZero() || e.StartedAt.IsZero() {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// AuditStore persists planner audit events.
type AuditStore interface {
	Record(ctx context.Context, event AuditEvent) error
	List(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)
}

// AuditFilter limits audit event queries. Zero fields match everything.
type AuditFilter struct {
	PlanID   string
	RunID    string
	StepKind string
	Status   AuditStatus
	Limit    int
}

func (f AuditFilter) match(ev AuditEvent) bool {
	return (f.PlanID == "" || ev.PlanID == f.PlanID) &&
		(f.RunID == "" || ev.RunID == f.RunID) &&
		(f.StepKind == "" || ev.StepKind == f.StepKind) &&
		(f.Status == "" || ev.Status == f.Status)
}

// AuditSummary counts finished steps of one plan.
type AuditSummary struct {
	PlanID    string
	Completed int
	Failed    int
	Elapsed   time.Duration
}

// Summarize reads the finished steps of planID from store.
func Summarize(ctx context.Context, store AuditStore, planID string) (AuditSummary, error) {
	events, err := store.List(ctx, AuditFilter{PlanID: planID})
	if err != nil {
		return AuditSummary{}, err
	}
	sum := AuditSummary{PlanID: planID}
	for _, ev := range events {
		switch ev.Status {
		case AuditCompleted:
			sum.Completed++
		case AuditFailed:
			sum.Failed++
		default:
			continue
		}
		sum.Elapsed += ev.Duration()
	}
	return sum, nil
}

// MemoryAuditStore keeps audit events in process memory.
type MemoryAuditStore struct {
	mu     sync.Mutex
	events []AuditEvent
}

// NewMemoryAuditStore returns an empty in-memory audit store.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

// Record appends event.
func (s *MemoryAuditStore) Record(_ context.Context, event AuditEvent) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

// List returns the matching events in insertion order.
func (s *MemoryAuditStore) List(_ context.Context, filter AuditFilter) ([]AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AuditEvent
	for _, ev := range s.events {
		if !filter.match(ev) {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}
