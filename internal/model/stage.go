package model

// Stage is a node of the pipeline state machine
type Stage string

const (
	StageInit         Stage = "INIT"
	StageFetchStats   Stage = "FETCH_STATS"
	StageFilter       Stage = "FILTER"
	StageFetchDetails Stage = "FETCH_DETAILS"
	StageAnalyze      Stage = "ANALYZE"
	StageReport       Stage = "REPORT"
	StageDone         Stage = "DONE"
	StageError        Stage = "ERROR"
)

// Stages lists every stage in pipeline order
var Stages = []Stage{
	StageInit, StageFetchStats, StageFilter, StageFetchDetails,
	StageAnalyze, StageReport, StageDone, StageError,
}

// Rank returns the position of the stage in pipeline order, -1 if unknown
func (s Stage) Rank() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// Terminal reports whether no transition leaves the stage
func (s Stage) Terminal() bool {
	return s == StageDone
}
