package model

import "time"

// RunStatus is the lifecycle status of a PipelineState
type RunStatus string

const (
	StatusInit    RunStatus = "INIT"
	StatusRunning RunStatus = "RUNNING"
	StatusError   RunStatus = "ERROR"
	StatusDone    RunStatus = "DONE"
)

// PipelineState is threaded through every stage of a run.
//
// Ownership: FETCH_STATS writes Statistics, FILTER writes Flagged,
// FETCH_DETAILS writes RecordsByEntity, ANALYZE writes Profiles and Findings.
// Any stage may append to Skipped and Errors. Status belongs to the engine.
// Once frozen the state is read-only and every mutator is a no-op.
type PipelineState struct {
	RunID        string
	Config       RunConfig
	Window       Window
	DetailWindow Window

	Statistics      []EntityStatistics
	Flagged         []string // ordered by ratio descending
	RecordsByEntity map[string][]TransactionRecord
	Profiles        []DistributionProfile
	Findings        []AnomalyFinding
	Skipped         []SkipRecord
	Errors          []ErrorRecord

	Status     RunStatus
	Cancelled  bool
	StartedAt  time.Time
	FinishedAt time.Time

	fatal  bool
	frozen bool
}

// NewPipelineState creates the state of a new run in INIT status
func NewPipelineState(runID string, cfg RunConfig, now time.Time) *PipelineState {
	return &PipelineState{
		RunID:           runID,
		Config:          cfg,
		Window:          WindowEndingAt(now, cfg.WindowDays),
		DetailWindow:    WindowEndingAt(now, cfg.EffectiveDetailWindowDays()),
		RecordsByEntity: make(map[string][]TransactionRecord),
		Status:          StatusInit,
		StartedAt:       now,
	}
}

// Frozen reports whether the state has reached a terminal status
func (s *PipelineState) Frozen() bool {
	return s.frozen
}

// Failed reports whether a run-level failure has been recorded
func (s *PipelineState) Failed() bool {
	return s.fatal
}

// Start moves the state from INIT to RUNNING
func (s *PipelineState) Start() {
	if s.frozen || s.Status != StatusInit {
		return
	}
	s.Status = StatusRunning
}

// SetStatistics stores the fetched aggregates
func (s *PipelineState) SetStatistics(stats []EntityStatistics) {
	if s.frozen {
		return
	}
	s.Statistics = stats
}

// SetFlagged stores the filter result
func (s *PipelineState) SetFlagged(ids []string) {
	if s.frozen {
		return
	}
	s.Flagged = ids
}

// PutRecords stores the records fetched for one entity
func (s *PipelineState) PutRecords(entityID string, records []TransactionRecord) {
	if s.frozen {
		return
	}
	s.RecordsByEntity[entityID] = records
}

// AddProfile appends an entity distribution profile
func (s *PipelineState) AddProfile(p DistributionProfile) {
	if s.frozen {
		return
	}
	s.Profiles = append(s.Profiles, p)
}

// AddFindings appends the findings of one entity
func (s *PipelineState) AddFindings(findings ...AnomalyFinding) {
	if s.frozen {
		return
	}
	s.Findings = append(s.Findings, findings...)
}

// AddSkip records a deliberate skip
func (s *PipelineState) AddSkip(rec SkipRecord) {
	if s.frozen {
		return
	}
	s.Skipped = append(s.Skipped, rec)
}

// AddError records a failure that does not abort the run
func (s *PipelineState) AddError(rec ErrorRecord) {
	if s.frozen {
		return
	}
	s.Errors = append(s.Errors, rec)
}

// Fail records a run-level failure; routing will move to ERROR
func (s *PipelineState) Fail(rec ErrorRecord) {
	if s.frozen {
		return
	}
	s.Errors = append(s.Errors, rec)
	s.fatal = true
	if rec.Kind == KindCancelled {
		s.Cancelled = true
	}
}

// Freeze sets the terminal status and makes the state read-only
func (s *PipelineState) Freeze(finishedAt time.Time) {
	if s.frozen {
		return
	}
	if s.fatal {
		s.Status = StatusError
	} else {
		s.Status = StatusDone
	}
	s.FinishedAt = finishedAt
	s.frozen = true
}
