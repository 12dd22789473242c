// Package diff classifies the changes a branch carries relative to its merge
// base with a target branch.
package diff

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/randalmurphal/wtsync/internal/git"
	"github.com/randalmurphal/wtsync/internal/model"
)

// Source is the subset of git.Client the classifier needs.
type Source interface {
	RevParse(ctx context.Context, rev string) (string, error)
	DiffNumstat(ctx context.Context, base, head string) ([]git.NumstatEntry, error)
	DiffNameStatus(ctx context.Context, base, head string) ([]git.NameStatusEntry, error)
	DiffRaw(ctx context.Context, base, head string) ([]git.RawEntry, error)
}

// Classifier combines numstat counts with name-status classification.
type Classifier struct {
	src    Source
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithCache enables summary caching.
func WithCache(cache *Cache) Option {
	return func(c *Classifier) {
		c.cache = cache
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) {
		c.logger = logger
	}
}

// NewClassifier creates a Classifier reading diffs from src.
func NewClassifier(src Source, opts ...Option) *Classifier {
	c := &Classifier{src: src}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Summary returns the changes source carries relative to target.
// Identical concurrent requests share one set of git calls.
func (c *Classifier) Summary(ctx context.Context, target, source string) (model.DiffSummary, error) {
	targetSHA, err := c.src.RevParse(ctx, target)
	if err != nil {
		return model.DiffSummary{}, err
	}
	sourceSHA, err := c.src.RevParse(ctx, source)
	if err != nil {
		return model.DiffSummary{}, err
	}
	key := targetSHA + "..." + sourceSHA

	if c.cache != nil {
		if s, ok := c.cache.Get(key); ok {
			c.logger.Debug("diff summary cache hit", "target", target, "source", source)
			return s, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		detailed, err := c.detailed(ctx, targetSHA, sourceSHA)
		if err != nil {
			return nil, err
		}
		files := make([]model.FileDiff, len(detailed))
		for i, d := range detailed {
			files[i] = d.FileDiff
		}
		s := model.NewDiffSummary(files)
		if c.cache != nil {
			c.cache.Set(key, s)
		}
		return s, nil
	})
	if err != nil {
		return model.DiffSummary{}, err
	}

	s := copySummary(v.(model.DiffSummary))
	c.logger.Debug("diff summary",
		"target", target,
		"source", source,
		"files_changed", s.FilesChanged,
		"insertions", s.Insertions,
		"deletions", s.Deletions,
	)
	return s, nil
}

// Detailed returns per-file diffs including rename and copy provenance.
func (c *Classifier) Detailed(ctx context.Context, target, source string) ([]model.DetailedFileDiff, error) {
	return c.detailed(ctx, target, source)
}

func (c *Classifier) detailed(ctx context.Context, target, source string) ([]model.DetailedFileDiff, error) {
	numstat, err := c.src.DiffNumstat(ctx, target, source)
	if err != nil {
		return nil, err
	}
	nameStatus, err := c.src.DiffNameStatus(ctx, target, source)
	if err != nil {
		return nil, err
	}
	return Combine(numstat, nameStatus), nil
}

// Combine merges numstat counts into name-status classification, keyed by
// resulting path. Paths that appear only in name-status (a deleted empty
// file, say) get zero counts; paths only in numstat keep their inferred
// status.
func Combine(numstat []git.NumstatEntry, nameStatus []git.NameStatusEntry) []model.DetailedFileDiff {
	counts := make(map[string]git.NumstatEntry, len(numstat))
	for _, n := range numstat {
		counts[n.Path] = n
	}

	out := make([]model.DetailedFileDiff, 0, len(nameStatus))
	seen := make(map[string]bool, len(nameStatus))
	for _, ns := range nameStatus {
		n := counts[ns.Path]
		d := model.DetailedFileDiff{
			FileDiff: model.FileDiff{
				Path:       ns.Path,
				Status:     ns.Status,
				Insertions: n.Insertions,
				Deletions:  n.Deletions,
				Binary:     n.Binary,
			},
		}
		if ns.Status == model.FileRenamed || ns.Status == model.FileCopied {
			d.OldPath = ns.OldPath
			d.NewPath = ns.Path
			d.Similarity = ns.Similarity
		}
		out = append(out, d)
		seen[ns.Path] = true
	}

	for _, n := range numstat {
		if seen[n.Path] {
			continue
		}
		d := model.DetailedFileDiff{
			FileDiff: model.FileDiff{
				Path:       n.Path,
				Status:     n.InferredStatus(),
				Insertions: n.Insertions,
				Deletions:  n.Deletions,
				Binary:     n.Binary,
			},
		}
		if n.OldPath != "" {
			d.Status = model.FileRenamed
			d.OldPath = n.OldPath
			d.NewPath = n.Path
		}
		out = append(out, d)
	}
	return out
}

// ModeChanges returns files whose permission bits source changed relative
// to its merge base with target.
func (c *Classifier) ModeChanges(ctx context.Context, target, source string) ([]model.ModeChange, error) {
	raw, err := c.src.DiffRaw(ctx, target, source)
	if err != nil {
		return nil, err
	}
	return ModeChangesFromRaw(raw), nil
}

// ModeChangesFromRaw keeps the raw records whose modes differ. Added and
// deleted files report a zero mode on one side and are skipped.
func ModeChangesFromRaw(raw []git.RawEntry) []model.ModeChange {
	var out []model.ModeChange
	for _, r := range raw {
		if !r.ModeChanged() || r.Status == model.FileAdded || r.Status == model.FileDeleted {
			continue
		}
		out = append(out, model.ModeChange{
			Path:    r.Path,
			OldMode: r.OldMode,
			NewMode: r.NewMode,
			Status:  string(r.Status),
		})
	}
	return out
}
