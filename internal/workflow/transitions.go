package workflow

import "github.com/Alias1177/MerchantScope/internal/model"

// Next is the transition table of the pipeline. It depends only on the
// current stage and the pipeline state.
//
//	INIT -> FETCH_STATS -> FILTER -> FETCH_DETAILS -> ANALYZE -> REPORT -> DONE
//	FILTER -> REPORT when nothing was flagged
//	any work stage -> ERROR once a run-level failure is recorded
//	ERROR -> REPORT -> DONE
func Next(stage model.Stage, st *model.PipelineState) model.Stage {
	switch stage {
	case model.StageDone:
		return model.StageDone
	case model.StageReport:
		return model.StageDone
	case model.StageError:
		return model.StageReport
	}

	if st.Failed() {
		return model.StageError
	}

	switch stage {
	case model.StageInit:
		return model.StageFetchStats
	case model.StageFetchStats:
		return model.StageFilter
	case model.StageFilter:
		if len(st.Flagged) == 0 {
			return model.StageReport
		}
		return model.StageFetchDetails
	case model.StageFetchDetails:
		return model.StageAnalyze
	case model.StageAnalyze:
		return model.StageReport
	default:
		return model.StageError
	}
}

// isWorkStage reports whether the stage calls collaborators or transforms data
func isWorkStage(stage model.Stage) bool {
	switch stage {
	case model.StageFetchStats, model.StageFilter, model.StageFetchDetails, model.StageAnalyze:
		return true
	default:
		return false
	}
}
