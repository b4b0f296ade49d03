package report

import (
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/Alias1177/MerchantScope/internal/analysis/anomaly"
	"github.com/Alias1177/MerchantScope/internal/analysis/filter"
	"github.com/Alias1177/MerchantScope/internal/model"
)

// Summary holds the headline counts of a run
type Summary struct {
	TotalEntities int `json:"total_entities"`
	FlaggedCount  int `json:"flagged_count"`
	AnalyzedCount int `json:"analyzed_count"`
	FindingsCount int `json:"findings_count"`
	SkippedCount  int `json:"skipped_count"`
	ErrorCount    int `json:"error_count"`
}

// Report is the single externally visible result of a pipeline run
type Report struct {
	RunID       string                      `json:"run_id"`
	Status      model.RunStatus             `json:"status"`
	Cancelled   bool                        `json:"cancelled"`
	Window      model.Window                `json:"window"`
	GeneratedAt time.Time                   `json:"generated_at"`
	Summary     Summary                     `json:"summary"`
	Flagged     []model.EntityStatistics    `json:"flagged"`
	Findings    []model.AnomalyFinding      `json:"findings"`
	Profiles    []model.DistributionProfile `json:"profiles"`
	Skipped     []model.SkipRecord          `json:"skipped"`
	Errors      []model.ErrorRecord         `json:"errors"`
	Fingerprint string                      `json:"fingerprint"`
}

// Assemble builds the report of a pipeline state. It never fails and never
// modifies the state; assembling the same state twice yields equal reports.
func Assemble(state *model.PipelineState) Report {
	rep := Report{
		RunID:       state.RunID,
		Status:      state.Status,
		Cancelled:   state.Cancelled,
		Window:      state.Window,
		GeneratedAt: state.FinishedAt,
		Flagged:     flaggedStatistics(state),
		Skipped:     append([]model.SkipRecord{}, state.Skipped...),
		Errors:      append([]model.ErrorRecord{}, state.Errors...),
	}

	order := make(map[string]int, len(rep.Flagged))
	for i, s := range rep.Flagged {
		order[s.EntityID] = i
	}

	rep.Findings = groupFindings(state.Findings, order)
	rep.Profiles = orderProfiles(state.Profiles, order)

	sort.SliceStable(rep.Skipped, func(i, j int) bool {
		a, b := rep.Skipped[i], rep.Skipped[j]
		if ra, rb := model.Stage(a.Stage).Rank(), model.Stage(b.Stage).Rank(); ra != rb {
			return ra < rb
		}
		return a.EntityID < b.EntityID
	})
	sort.SliceStable(rep.Errors, func(i, j int) bool {
		return model.Stage(rep.Errors[i].Stage).Rank() < model.Stage(rep.Errors[j].Stage).Rank()
	})

	rep.Summary = Summary{
		TotalEntities: len(state.Statistics),
		FlaggedCount:  len(rep.Flagged),
		AnalyzedCount: len(rep.Profiles),
		FindingsCount: len(rep.Findings),
		SkippedCount:  len(rep.Skipped),
		ErrorCount:    len(rep.Errors),
	}
	rep.Fingerprint = Fingerprint(rep)

	return rep
}

// Fingerprint returns a BLAKE2b-256 digest of the report content, ignoring
// the fingerprint field itself.
func Fingerprint(rep Report) string {
	rep.Fingerprint = ""
	body, err := json.Marshal(rep)
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func flaggedStatistics(state *model.PipelineState) []model.EntityStatistics {
	byID := make(map[string]model.EntityStatistics, len(state.Statistics))
	for _, s := range state.Statistics {
		byID[s.EntityID] = s
	}

	flagged := make([]model.EntityStatistics, 0, len(state.Flagged))
	for _, id := range state.Flagged {
		if s, ok := byID[id]; ok {
			flagged = append(flagged, s)
		}
	}
	filter.SortByRatio(flagged)
	return flagged
}

func groupFindings(findings []model.AnomalyFinding, order map[string]int) []model.AnomalyFinding {
	groups := make(map[string][]model.AnomalyFinding)
	for _, f := range findings {
		groups[f.EntityID] = append(groups[f.EntityID], f)
	}

	out := make([]model.AnomalyFinding, 0, len(findings))
	for _, id := range entityOrder(groups, order) {
		group := append([]model.AnomalyFinding{}, groups[id]...)
		anomaly.SortFindings(group)
		out = append(out, group...)
	}
	return out
}

func orderProfiles(profiles []model.DistributionProfile, order map[string]int) []model.DistributionProfile {
	out := append([]model.DistributionProfile{}, profiles...)
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i].EntityID, out[j].EntityID, order)
	})
	return out
}

func entityOrder[T any](groups map[string]T, order map[string]int) []string {
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return less(ids[i], ids[j], order)
	})
	return ids
}

// less orders flagged entities by flag rank, unknown entities last by id
func less(a, b string, order map[string]int) bool {
	ra, okA := order[a]
	rb, okB := order[b]
	switch {
	case okA && okB:
		return ra < rb
	case okA != okB:
		return okA
	default:
		return a < b
	}
}
