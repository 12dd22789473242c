package model

import "sort"

// ConflictType is the kind of merge conflict.
type ConflictType string

const (
	ConflictContent      ConflictType = "content"
	ConflictDeleteModify ConflictType = "delete_modify"
	ConflictRename       ConflictType = "rename"
	ConflictMode         ConflictType = "mode"
)

// ConflictDetail describes one conflict on one file.
type ConflictDetail struct {
	File        string       `json:"file"`
	Type        ConflictType `json:"type"`
	Description string       `json:"description"`
}

// ConflictInfo is the union of all conflict detectors for a merge.
// HasConflicts is true exactly when ConflictedFiles is non-empty.
type ConflictInfo struct {
	HasConflicts    bool             `json:"has_conflicts"`
	ConflictedFiles []string         `json:"conflicted_files"`
	Details         []ConflictDetail `json:"details"`
}

// NewConflictInfo builds a ConflictInfo from details. Files are deduplicated
// and sorted; details keep their order.
func NewConflictInfo(details []ConflictDetail) ConflictInfo {
	info := ConflictInfo{ConflictedFiles: []string{}, Details: []ConflictDetail{}}
	for _, d := range details {
		info.Add(d)
	}
	return info
}

// Add records d, keeping ConflictedFiles a sorted set.
func (c *ConflictInfo) Add(d ConflictDetail) {
	c.Details = append(c.Details, d)
	i := sort.SearchStrings(c.ConflictedFiles, d.File)
	if i == len(c.ConflictedFiles) || c.ConflictedFiles[i] != d.File {
		c.ConflictedFiles = append(c.ConflictedFiles, "")
		copy(c.ConflictedFiles[i+1:], c.ConflictedFiles[i:])
		c.ConflictedFiles[i] = d.File
	}
	c.HasConflicts = len(c.ConflictedFiles) > 0
}

// Count returns the number of details of type t.
func (c ConflictInfo) Count(t ConflictType) int {
	n := 0
	for _, d := range c.Details {
		if d.Type == t {
			n++
		}
	}
	return n
}

// RiskLevel grades a conflict report.
type RiskLevel string

const (
	RiskNone   RiskLevel = "none"
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Rank orders risk levels from 0 (none) to 3 (high).
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	default:
		return 0
	}
}

// ConflictReport is a ConflictInfo graded for humans.
type ConflictReport struct {
	ConflictInfo    ConflictInfo `json:"conflict_info"`
	RiskLevel       RiskLevel    `json:"risk_level"`
	Recommendations []string     `json:"recommendations"`
	CanAutoResolve  bool         `json:"can_auto_resolve"`
}
