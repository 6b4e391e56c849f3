package processor

import "time"

// Outcome of processing one item
type Outcome string

const (
	OutcomeFiltered Outcome = "filtered"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeUpdated  Outcome = "updated"
	OutcomeProposed Outcome = "proposed"
	OutcomeNoMatch  Outcome = "no_match"
	OutcomeError    Outcome = "error"
)

// Summary describes a finished run
type Summary struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
	DryRun     bool          `json:"dry_run"`

	Libraries     int `json:"libraries"`
	LibraryErrors int `json:"library_errors"`

	Processed          int `json:"processed"`
	Filtered           int `json:"filtered"`
	Skipped            int `json:"skipped"`
	Updated            int `json:"updated"`
	Proposed           int `json:"proposed"`
	NoMatch            int `json:"no_match"`
	Errors             int `json:"errors"`
	PostersChanged     int `json:"posters_changed"`
	BackgroundsChanged int `json:"backgrounds_changed"`

	Error string `json:"error,omitempty"`
}

// Changed returns the number of items whose artwork was (or would be) set
func (s Summary) Changed() int {
	return s.Updated
}

func (s *Summary) count(o Outcome) {
	s.Processed++
	switch o {
	case OutcomeFiltered:
		s.Filtered++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeProposed:
		s.Proposed++
	case OutcomeNoMatch:
		s.NoMatch++
	case OutcomeError:
		s.Errors++
	}
}
