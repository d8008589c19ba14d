package model

import "time"

// Outcome is the terminal state of one run, mapped to a process exit code.
type Outcome string

const (
	// OutcomeDone means the script was written.
	OutcomeDone Outcome = "done"
	// OutcomeAddressNotFound means the address could not be geocoded.
	OutcomeAddressNotFound Outcome = "address_not_found"
	// OutcomeLocalityUnresolved means coordinates resolved but city or county
	// did not; a circle/zoom-only script was still written.
	OutcomeLocalityUnresolved Outcome = "locality_unresolved"
	// OutcomeFailed means the run stopped on an unexpected error.
	OutcomeFailed Outcome = "failed"
)

// ExitCode returns the process exit code for the outcome.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeDone:
		return 0
	case OutcomeAddressNotFound:
		return 2
	case OutcomeLocalityUnresolved:
		return 3
	default:
		return 1
	}
}

// RunRecord is the history entry persisted for each run.
type RunRecord struct {
	ID         string          `json:"id"`
	Address    string          `json:"address"`
	X          float64         `json:"x"`
	Y          float64         `json:"y"`
	City       string          `json:"city,omitempty"`
	County     string          `json:"county,omitempty"`
	Outcome    Outcome         `json:"outcome"`
	Layers     []LayerArtifact `json:"layers"`
	ScriptPath string          `json:"script_path,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	Duration   time.Duration   `json:"duration"`
}
