// Package conflict predicts whether merging one branch into another would
// conflict, without touching the index or working tree.
package conflict

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/randalmurphal/wtsync/internal/git"
	"github.com/randalmurphal/wtsync/internal/model"
)

// Git is the subset of git.Client the analyzer needs.
type Git interface {
	MergeBase(ctx context.Context, a, b string) (string, error)
	MergeTree(ctx context.Context, base, ours, theirs string) (string, error)
	DiffNameStatus(ctx context.Context, base, head string) ([]git.NameStatusEntry, error)
	DiffRaw(ctx context.Context, base, head string) ([]git.RawEntry, error)
}

// Analyzer detects content, delete/modify, rename and mode conflicts.
// merge-tree markers only cover the first; the structural kinds come from
// comparing each side's changes since the merge base.
type Analyzer struct {
	git    Git
	logger *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(g Git, opts ...Option) *Analyzer {
	a := &Analyzer{git: g}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// CheckConflicts reports the conflicts merging target into base would hit.
func (a *Analyzer) CheckConflicts(ctx context.Context, base, target string) (model.ConflictInfo, error) {
	mergeBase, err := a.git.MergeBase(ctx, base, target)
	if err != nil {
		return model.ConflictInfo{}, fmt.Errorf("merge base of %s and %s: %w", base, target, err)
	}

	out, err := a.git.MergeTree(ctx, mergeBase, base, target)
	if err != nil {
		return model.ConflictInfo{}, fmt.Errorf("simulate merge: %w", err)
	}
	details := ParseMergeTree(out)

	ours, err := a.git.DiffNameStatus(ctx, target, base)
	if err != nil {
		return model.ConflictInfo{}, fmt.Errorf("diff %s since merge base: %w", base, err)
	}
	theirs, err := a.git.DiffNameStatus(ctx, base, target)
	if err != nil {
		return model.ConflictInfo{}, fmt.Errorf("diff %s since merge base: %w", target, err)
	}
	details = append(details, DeleteModifyConflicts(ours, theirs)...)
	details = append(details, RenameConflicts(ours, theirs)...)

	oursRaw, err := a.git.DiffRaw(ctx, target, base)
	if err != nil {
		return model.ConflictInfo{}, fmt.Errorf("raw diff %s: %w", base, err)
	}
	theirsRaw, err := a.git.DiffRaw(ctx, base, target)
	if err != nil {
		return model.ConflictInfo{}, fmt.Errorf("raw diff %s: %w", target, err)
	}
	details = append(details, ModeConflicts(oursRaw, theirsRaw)...)

	info := model.NewConflictInfo(dedupe(details))
	a.logger.Debug("conflict check",
		"base", base,
		"target", target,
		"merge_base", mergeBase,
		"conflicts", len(info.ConflictedFiles),
	)
	return info, nil
}

// Report runs CheckConflicts and grades the result.
func (a *Analyzer) Report(ctx context.Context, base, target string) (model.ConflictReport, error) {
	info, err := a.CheckConflicts(ctx, base, target)
	if err != nil {
		return model.ConflictReport{}, err
	}
	return BuildReport(info), nil
}

// DeleteModifyConflicts finds paths one side deleted while the other
// modified them.
func DeleteModifyConflicts(ours, theirs []git.NameStatusEntry) []model.ConflictDetail {
	var out []model.ConflictDetail
	check := func(deleter, modifier []git.NameStatusEntry, deletedBy, modifiedBy string) {
		modified := make(map[string]bool)
		for _, e := range modifier {
			if e.Status == model.FileModified {
				modified[e.Path] = true
			}
		}
		for _, e := range deleter {
			if e.Status == model.FileDeleted && modified[e.Path] {
				out = append(out, model.ConflictDetail{
					File:        e.Path,
					Type:        model.ConflictDeleteModify,
					Description: fmt.Sprintf("%s deleted by %s but modified by %s", e.Path, deletedBy, modifiedBy),
				})
			}
		}
	}
	check(ours, theirs, "base", "target")
	check(theirs, ours, "target", "base")
	return sortDetails(out)
}

// RenameConflicts finds paths both sides renamed to different names.
func RenameConflicts(ours, theirs []git.NameStatusEntry) []model.ConflictDetail {
	ourRenames := make(map[string]string)
	for _, e := range ours {
		if e.Status == model.FileRenamed {
			ourRenames[e.OldPath] = e.Path
		}
	}
	var out []model.ConflictDetail
	for _, e := range theirs {
		if e.Status != model.FileRenamed {
			continue
		}
		if ourNew, ok := ourRenames[e.OldPath]; ok && ourNew != e.Path {
			out = append(out, model.ConflictDetail{
				File:        e.OldPath,
				Type:        model.ConflictRename,
				Description: fmt.Sprintf("%s renamed to %s by base and to %s by target", e.OldPath, ourNew, e.Path),
			})
		}
	}
	return sortDetails(out)
}

// ModeConflicts finds paths whose mode both sides changed to different values.
func ModeConflicts(ours, theirs []git.RawEntry) []model.ConflictDetail {
	ourModes := make(map[string]git.RawEntry)
	for _, e := range ours {
		if e.ModeChanged() && e.Status != model.FileAdded && e.Status != model.FileDeleted {
			ourModes[e.Path] = e
		}
	}
	var out []model.ConflictDetail
	for _, e := range theirs {
		if !e.ModeChanged() || e.Status == model.FileAdded || e.Status == model.FileDeleted {
			continue
		}
		if o, ok := ourModes[e.Path]; ok && o.NewMode != e.NewMode {
			out = append(out, model.ConflictDetail{
				File: e.Path,
				Type: model.ConflictMode,
				Description: fmt.Sprintf("%s mode changed %s -> %s by base and %s -> %s by target",
					e.Path, o.OldMode, o.NewMode, e.OldMode, e.NewMode),
			})
		}
	}
	return sortDetails(out)
}

func sortDetails(ds []model.ConflictDetail) []model.ConflictDetail {
	sort.SliceStable(ds, func(i, j int) bool { return ds[i].File < ds[j].File })
	return ds
}

// dedupe drops repeated (file, type) pairs; the first description wins.
func dedupe(ds []model.ConflictDetail) []model.ConflictDetail {
	type key struct {
		file string
		t    model.ConflictType
	}
	seen := make(map[key]bool, len(ds))
	out := ds[:0]
	for _, d := range ds {
		k := key{d.File, d.Type}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, d)
	}
	return out
}
