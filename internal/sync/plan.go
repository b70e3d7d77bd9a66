package sync

import "github.com/schaermu/dfoursync/internal/domain"

// Plan is the outcome of classifying the differences of one run
type Plan struct {
	Changes   []domain.Change
	Conflicts []domain.Conflict
}

// Empty returns true if there is nothing to apply
func (p *Plan) Empty() bool {
	return len(p.Changes) == 0
}

// Outcome is the result of applying one Change
type Outcome struct {
	Change domain.Change
	// PK is the remote identifier written by an upload
	PK  string
	Err error
}

// Result summarises a sync run
type Result struct {
	RunID    string
	Endpoint string
	// Snapshots is the number of distinct names seen on either side
	Snapshots int
	Plan      *Plan
	Outcomes  []Outcome
}

// Failed returns the outcomes that carry an error
func (r *Result) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}
