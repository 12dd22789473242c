package diff

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/wtsync/internal/git"
	"github.com/randalmurphal/wtsync/internal/model"
	"github.com/randalmurphal/wtsync/tests/testutil"
)

func newRepoClassifier(t *testing.T, repo *testutil.TestRepo, opts ...Option) *Classifier {
	t.Helper()
	client, err := git.NewClient(context.Background(), repo.RootDir)
	require.NoError(t, err)
	return NewClassifier(client, opts...)
}

func TestSummary_AddedFile(t *testing.T) {
	repo := testutil.SetupTestRepo(t)
	wt := repo.AddWorktree("feature/new")
	repo.WriteFileIn(wt, "new-file.txt", "hello\nworld\n")
	repo.CommitAllIn(wt, "add new file")

	s, err := newRepoClassifier(t, repo).Summary(context.Background(), "main", "feature/new")
	require.NoError(t, err)

	assert.Equal(t, 1, s.FilesChanged)
	assert.Equal(t, 2, s.Insertions)
	assert.Equal(t, 0, s.Deletions)
	require.Len(t, s.Files, 1)
	assert.Equal(t, "new-file.txt", s.Files[0].Path)
	assert.Equal(t, model.FileAdded, s.Files[0].Status)
}

func TestSummary_NoChanges(t *testing.T) {
	repo := testutil.SetupTestRepo(t)
	repo.AddWorktree("feature/idle")

	s, err := newRepoClassifier(t, repo).Summary(context.Background(), "main", "feature/idle")
	require.NoError(t, err)
	assert.Equal(t, 0, s.FilesChanged)
	assert.Empty(t, s.Files)
}

func TestSummary_DeletedAndBinary(t *testing.T) {
	repo := testutil.SetupTestRepo(t)
	repo.WriteFile("empty.txt", "")
	repo.WriteFile("doc.txt", "a\nb\nc\n")
	repo.CommitAll("seed")

	wt := repo.AddWorktree("feature/cleanup")
	repo.GitIn(wt, "rm", "-q", "empty.txt", "doc.txt")
	repo.WriteFileIn(wt, "blob.bin", "\x00\x01\x02binary")
	repo.CommitAllIn(wt, "cleanup")

	s, err := newRepoClassifier(t, repo).Summary(context.Background(), "main", "feature/cleanup")
	require.NoError(t, err)

	assert.Equal(t, 3, s.FilesChanged)
	assert.Equal(t, len(s.Files), s.FilesChanged)

	empty, ok := s.File("empty.txt")
	require.True(t, ok)
	assert.Equal(t, model.FileDeleted, empty.Status)
	assert.Zero(t, empty.Insertions+empty.Deletions)

	doc, ok := s.File("doc.txt")
	require.True(t, ok)
	assert.Equal(t, model.FileDeleted, doc.Status)
	assert.Equal(t, 3, doc.Deletions)

	bin, ok := s.File("blob.bin")
	require.True(t, ok)
	assert.True(t, bin.Binary)

	assert.Equal(t, 0, s.Insertions, "binary files excluded from totals")
	assert.Equal(t, 3, s.Deletions)
}

func TestDetailed_Rename(t *testing.T) {
	repo := testutil.SetupTestRepo(t)
	repo.WriteFile("old_name.go", "package x\n\nfunc A() {}\nfunc B() {}\nfunc C() {}\n")
	repo.CommitAll("seed")

	wt := repo.AddWorktree("feature/rename")
	repo.GitIn(wt, "mv", "old_name.go", "new_name.go")
	repo.CommitAllIn(wt, "rename")

	files, err := newRepoClassifier(t, repo).Detailed(context.Background(), "main", "feature/rename")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, model.FileRenamed, files[0].Status)
	assert.Equal(t, "old_name.go", files[0].OldPath)
	assert.Equal(t, "new_name.go", files[0].NewPath)
	assert.Equal(t, 100, files[0].Similarity)
}

func TestModeChanges(t *testing.T) {
	repo := testutil.SetupTestRepo(t)
	repo.WriteFile("run.sh", "#!/bin/sh\necho hi\n")
	repo.CommitAll("seed")

	wt := repo.AddWorktree("feature/exec")
	repo.GitIn(wt, "update-index", "--chmod=+x", "run.sh")
	repo.GitIn(wt, "commit", "-m", "make executable")

	changes, err := newRepoClassifier(t, repo).ModeChanges(context.Background(), "main", "feature/exec")
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, model.ModeChange{Path: "run.sh", OldMode: "100644", NewMode: "100755", Status: "modified"}, changes[0])
}

func TestCombine(t *testing.T) {
	numstat := []git.NumstatEntry{
		{Path: "a.go", Insertions: 4, Deletions: 1},
		{Path: "b.go", OldPath: "old_b.go", Insertions: 1, Deletions: 1},
		{Path: "orphan.go", Insertions: 2},
	}
	nameStatus := []git.NameStatusEntry{
		{Path: "a.go", Status: model.FileModified},
		{Path: "b.go", OldPath: "old_b.go", Status: model.FileRenamed, Similarity: 90},
		{Path: "gone.txt", Status: model.FileDeleted},
	}

	got := Combine(numstat, nameStatus)
	require.Len(t, got, 4)
	assert.Equal(t, 4, got[0].Insertions)
	assert.Equal(t, "old_b.go", got[1].OldPath)
	assert.Equal(t, 90, got[1].Similarity)
	assert.Equal(t, model.FileDeleted, got[2].Status)
	assert.Zero(t, got[2].Deletions)
	assert.Equal(t, model.FileAdded, got[3].Status)
}

func TestModeChangesFromRaw_SkipsAddsAndDeletes(t *testing.T) {
	raw := []git.RawEntry{
		{OldMode: "000000", NewMode: "100644", Status: model.FileAdded, Path: "new"},
		{OldMode: "100644", NewMode: "000000", Status: model.FileDeleted, Path: "old"},
		{OldMode: "100644", NewMode: "100644", Status: model.FileModified, Path: "same"},
		{OldMode: "100755", NewMode: "100644", Status: model.FileModified, Path: "x.sh"},
	}
	got := ModeChangesFromRaw(raw)
	require.Len(t, got, 1)
	assert.Equal(t, "x.sh", got[0].Path)
}

type countingSource struct {
	Source
	numstatCalls int
}

func (s *countingSource) DiffNumstat(ctx context.Context, base, head string) ([]git.NumstatEntry, error) {
	s.numstatCalls++
	return s.Source.DiffNumstat(ctx, base, head)
}

func TestSummary_UsesCache(t *testing.T) {
	repo := testutil.SetupTestRepo(t)
	wt := repo.AddWorktree("feature/cached")
	repo.WriteFileIn(wt, "x.txt", "x\n")
	repo.CommitAllIn(wt, "x")

	client, err := git.NewClient(context.Background(), repo.RootDir)
	require.NoError(t, err)
	src := &countingSource{Source: client}
	cache := NewCache(8)
	c := NewClassifier(src, WithCache(cache))

	first, err := c.Summary(context.Background(), "main", "feature/cached")
	require.NoError(t, err)
	second, err := c.Summary(context.Background(), "main", "feature/cached")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.numstatCalls)
	assert.Equal(t, 1, cache.Len())

	// New commits change the key, so the cache never serves stale data.
	repo.WriteFileIn(wt, "y.txt", "y\n")
	repo.CommitAllIn(wt, "y")
	third, err := c.Summary(context.Background(), "main", "feature/cached")
	require.NoError(t, err)
	assert.Equal(t, 2, third.FilesChanged)
	assert.Equal(t, 2, src.numstatCalls)
}
