package guard

import (
	"fmt"

	"github.com/nsxbet/ddlguard/pkg/statement"
)

// Status is what happened to one statement.
type Status string

const (
	// StatusForwarded statements passed the policy and were handed on.
	StatusForwarded Status = "forwarded"
	// StatusRejected statements were stopped by the policy.
	StatusRejected Status = "rejected"
	// StatusFailed statements passed the policy and then failed downstream.
	StatusFailed Status = "failed"
)

// Outcome is the result for one statement.
type Outcome struct {
	Statement string         `json:"statement" yaml:"statement"`
	Line      int            `json:"line" yaml:"line"`
	Kind      statement.Kind `json:"kind" yaml:"kind"`
	Status    Status         `json:"status" yaml:"status"`
	Rule      string         `json:"rule,omitempty" yaml:"rule,omitempty"`
	Message   string         `json:"message,omitempty" yaml:"message,omitempty"`
	Tag       string         `json:"tag,omitempty" yaml:"tag,omitempty"`
	Rows      int64          `json:"rows,omitempty" yaml:"rows,omitempty"`
}

// Result contains the outcome of every evaluated statement.
type Result struct {
	Outcomes []*Outcome `json:"outcomes" yaml:"outcomes"`
	Summary  Summary    `json:"summary" yaml:"summary"`
}

// Summary provides aggregate statistics about a run.
type Summary struct {
	// Total number of statements evaluated.
	Total     int `json:"total" yaml:"total"`
	Forwarded int `json:"forwarded" yaml:"forwarded"`
	Rejected  int `json:"rejected" yaml:"rejected"`
	// Failed counts statements the next handler returned an error for.
	Failed    int `json:"failed" yaml:"failed"`
}

func (r *Result) add(o *Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	r.Summary.Total++
	switch o.Status {
	case StatusForwarded:
		r.Summary.Forwarded++
	case StatusRejected:
		r.Summary.Rejected++
	case StatusFailed:
		r.Summary.Failed++
	}
}

// HasRejections returns true if any statement was rejected.
//
// This is useful for CI/CD pipelines that should fail on policy violations:
//
//	if result.HasRejections() {
//	    os.Exit(1)
//	}
func (r *Result) HasRejections() bool {
	return r.Summary.Rejected > 0
}

// IsClean returns true if every statement was forwarded successfully.
func (r *Result) IsClean() bool {
	return r.Summary.Rejected == 0 && r.Summary.Failed == 0
}

// String returns a human-readable summary of the run.
//
// Example output:
//
//	Guard Results: 5 total (3 forwarded, 2 rejected, 0 failed)
func (r *Result) String() string {
	return fmt.Sprintf(
		"Guard Results: %d total (%d forwarded, %d rejected, %d failed)",
		r.Summary.Total,
		r.Summary.Forwarded,
		r.Summary.Rejected,
		r.Summary.Failed,
	)
}

// FilterByStatus returns the outcomes with the given status.
func (r *Result) FilterByStatus(status Status) []*Outcome {
	filtered := make([]*Outcome, 0)
	for _, o := range r.Outcomes {
		if o.Status == status {
			filtered = append(filtered, o)
		}
	}
	return filtered
}
