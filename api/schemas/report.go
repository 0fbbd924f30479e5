package schemas

import "time"

// Status is the outcome of one scenario.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// AttemptRecord is one strategy attempt of the last failing fallback chain.
type AttemptRecord struct {
	Strategy   string `json:"strategy"`
	Action     string `json:"action"`
	Outcome    string `json:"outcome"`
	Matches    int    `json:"matches"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// ScenarioResult records a single scenario execution, after retries.
type ScenarioResult struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	DurationMS  int64     `json:"duration_ms"`
	// Tries counts executions including the first.
	Tries       int             `json:"tries"`
	FailureKind string          `json:"failure_kind,omitempty"`
	Error       string          `json:"error,omitempty"`
	Assertions  []string        `json:"assertions,omitempty"`
	Attempts    []AttemptRecord `json:"attempts,omitempty"`
	// Artifact is the generated embed code when the scenario produced one.
	Artifact string `json:"artifact,omitempty"`
	// Degraded marks copy checks that could not read the clipboard.
	Degraded bool     `json:"degraded,omitempty"`
	Notes    []string `json:"notes,omitempty"`
}

// Summary counts results by status.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// RunReport is the top level record of one suite run.
type RunReport struct {
	RunID      string           `json:"run_id"`
	Tool       string           `json:"tool"`
	Version    string           `json:"version"`
	Driver     string           `json:"driver"`
	TargetURL  string           `json:"target_url"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Summary    Summary          `json:"summary"`
	Results    []ScenarioResult `json:"results"`
}

// Summarize recomputes Summary from Results.
func (r *RunReport) Summarize() {
	s := Summary{Total: len(r.Results)}
	for _, res := range r.Results {
		switch res.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
	}
	r.Summary = s
}

// OK reports whether no scenario failed.
func (r *RunReport) OK() bool {
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			return false
		}
	}
	return true
}

// Duration is the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
