package planner

import (
	"time"

	"github.com/jllopis/kairos-orchestrator/pkg/textutil"
)

// StepKind tags the role of a plan step.
type StepKind string

const (
	KindToolExecution      StepKind = "tool_execution"
	KindAnalysis           StepKind = "analysis"
	KindResponseGeneration StepKind = "response_generation"
	KindRefinement         StepKind = "refinement"
)

// Step is one unit of planned work.
type Step struct {
	ID          int            `json:"id"`
	Kind        StepKind       `json:"type"`
	Tool        string         `json:"tool,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Description string         `json:"description,omitempty"`
	Completed   bool           `json:"completed"`
	Result      any            `json:"result,omitempty"`
}

// ReasoningStep is one thought of the reasoning trace.
type ReasoningStep struct {
	ID        int       `json:"id"`
	Thought   string    `json:"thought"`
	Timestamp time.Time `json:"timestamp"`
}

// Plan is the execution script derived from a single query.
// Step ids are unique and increase monotonically.
type Plan struct {
	ID        string          `json:"id"`
	Query     string          `json:"query"`
	Steps     []Step          `json:"steps"`
	Reasoning []ReasoningStep `json:"reasoning"`
	CreatedAt time.Time       `json:"created_at"`
}

// StepError is the result attached to a step whose execution failed.
type StepError struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func failedResult(err error) StepError {
	return StepError{Status: "error", Error: err.Error()}
}

// Complete reports whether every step has been executed.
func (p *Plan) Complete() bool {
	for _, s := range p.Steps {
		if !s.Completed {
			return false
		}
	}
	return true
}

// NextStepID returns the id the next appended step must receive.
func (p *Plan) NextStepID() int {
	max := 0
	for _, s := range p.Steps {
		if s.ID > max {
			max = s.ID
		}
	}
	return max + 1
}

// Step returns a pointer to the step with the given id.
func (p *Plan) Step(id int) (*Step, bool) {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i], true
		}
	}
	return nil, false
}

// Clone returns an independently mutable copy of the plan.
func (p *Plan) Clone(clone textutil.CloneFunc) (*Plan, error) {
	return textutil.DeepClone(p, clone)
}
