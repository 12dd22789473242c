package conflict

import (
	"fmt"

	"github.com/randalmurphal/wtsync/internal/model"
)

// Risk thresholds on conflict counts.
const (
	highContentConflicts = 5
	mediumConflictFiles  = 2
)

// BuildReport grades info. Any delete/modify or rename conflict, or more
// than five content conflicts, is high risk; more than two conflicted files
// is medium; any conflict at all is low. Only none and low risk reports are
// auto-resolvable.
func BuildReport(info model.ConflictInfo) model.ConflictReport {
	risk := RiskLevel(info)
	return model.ConflictReport{
		ConflictInfo:    info,
		RiskLevel:       risk,
		Recommendations: recommendations(info, risk),
		CanAutoResolve:  risk.Rank() <= model.RiskLow.Rank(),
	}
}

// RiskLevel computes the risk of info.
func RiskLevel(info model.ConflictInfo) model.RiskLevel {
	switch {
	case !info.HasConflicts:
		return model.RiskNone
	case info.Count(model.ConflictDeleteModify) > 0,
		info.Count(model.ConflictRename) > 0,
		info.Count(model.ConflictContent) > highContentConflicts:
		return model.RiskHigh
	case len(info.ConflictedFiles) > mediumConflictFiles:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

func recommendations(info model.ConflictInfo, risk model.RiskLevel) []string {
	if !info.HasConflicts {
		return []string{"No conflicts detected; the branch can be merged safely"}
	}
	var recs []string
	if n := info.Count(model.ConflictContent); n > 0 {
		recs = append(recs, fmt.Sprintf("Resolve %d content conflict(s) by editing the conflicting hunks", n))
	}
	if n := info.Count(model.ConflictDeleteModify); n > 0 {
		recs = append(recs, fmt.Sprintf("Decide whether to keep or delete %d file(s) deleted on one side and modified on the other", n))
	}
	if n := info.Count(model.ConflictRename); n > 0 {
		recs = append(recs, fmt.Sprintf("Agree on a single name for %d file(s) renamed differently on each side", n))
	}
	if n := info.Count(model.ConflictMode); n > 0 {
		recs = append(recs, fmt.Sprintf("Pick the intended permissions for %d file(s) with diverging mode changes", n))
	}
	switch risk {
	case model.RiskHigh:
		recs = append(recs, "Merge manually and review the result before syncing")
	case model.RiskMedium:
		recs = append(recs, "Rebase the worktree branch onto the trunk to resolve conflicts incrementally")
	}
	return recs
}
