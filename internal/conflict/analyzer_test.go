package conflict

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/wtsync/internal/git"
	"github.com/randalmurphal/wtsync/internal/model"
	"github.com/randalmurphal/wtsync/tests/testutil"
)

func newRepoAnalyzer(t *testing.T, repo *testutil.TestRepo) *Analyzer {
	t.Helper()
	client, err := git.NewClient(context.Background(), repo.RootDir)
	require.NoError(t, err)
	return NewAnalyzer(client)
}

func TestCheckConflicts_SameLineChangedOnBothSides(t *testing.T) {
	repo := testutil.SetupTestRepo(t)
	repo.WriteFile("shared.txt", "line one\nline two\nline three\n")
	repo.CommitAll("seed shared")

	wt := repo.AddWorktree("feature/a")
	repo.WriteFileIn(wt, "shared.txt", "line one\nbranch version\nline three\n")
	repo.CommitAllIn(wt, "branch edit")

	repo.WriteFile("shared.txt", "line one\nmain version\nline three\n")
	repo.CommitAll("main edit")

	info, err := newRepoAnalyzer(t, repo).CheckConflicts(context.Background(), "main", "feature/a")
	require.NoError(t, err)

	assert.True(t, info.HasConflicts)
	assert.Equal(t, []string{"shared.txt"}, info.ConflictedFiles)
	require.Len(t, info.Details, 1)
	assert.Equal(t, model.ConflictContent, info.Details[0].Type)
	assert.Equal(t, "shared.txt", info.Details[0].File)
	assert.Contains(t, info.Details[0].Description, "main version")
	assert.Contains(t, info.Details[0].Description, "branch version")
}

func TestCheckConflicts_DisjointChangesAreClean(t *testing.T) {
	repo := testutil.SetupTestRepo(t)
	wt := repo.AddWorktree("feature/b")
	repo.WriteFileIn(wt, "new-file.txt", "new\n")
	repo.CommitAllIn(wt, "add file")

	repo.WriteFile("other.txt", "other\n")
	repo.CommitAll("main change")

	info, err := newRepoAnalyzer(t, repo).CheckConflicts(context.Background(), "main", "feature/b")
	require.NoError(t, err)
	assert.False(t, info.HasConflicts)
	assert.Empty(t, info.ConflictedFiles)
	assert.Empty(t, info.Details)
}

func TestReport_DeleteModifyIsHighRisk(t *testing.T) {
	repo := testutil.SetupTestRepo(t)
	repo.WriteFile("config.yaml", "a: 1\n")
	repo.CommitAll("seed config")

	wt := repo.AddWorktree("feature/remove")
	repo.GitIn(wt, "rm", "-q", "config.yaml")
	repo.CommitAllIn(wt, "remove config")

	repo.WriteFile("config.yaml", "a: 2\n")
	repo.CommitAll("tweak config")

	report, err := newRepoAnalyzer(t, repo).Report(context.Background(), "main", "feature/remove")
	require.NoError(t, err)

	info := report.ConflictInfo
	assert.True(t, info.HasConflicts)
	assert.Contains(t, info.ConflictedFiles, "config.yaml")
	assert.Equal(t, 1, info.Count(model.ConflictDeleteModify))
	assert.Equal(t, model.RiskHigh, report.RiskLevel)
	assert.False(t, report.CanAutoResolve)
}

func TestCheckConflicts_DivergentRename(t *testing.T) {
	repo := testutil.SetupTestRepo(t)
	repo.WriteFile("util.go", "package util\n\nfunc A() int { return 1 }\n")
	repo.CommitAll("seed util")

	wt := repo.AddWorktree("feature/rename")
	repo.GitIn(wt, "mv", "util.go", "helpers.go")
	repo.CommitAllIn(wt, "rename on branch")

	repo.Git("mv", "util.go", "common.go")
	repo.CommitAll("rename on main")

	info, err := newRepoAnalyzer(t, repo).CheckConflicts(context.Background(), "main", "feature/rename")
	require.NoError(t, err)
	assert.True(t, info.HasConflicts)
	assert.Equal(t, 1, info.Count(model.ConflictRename))
	assert.Contains(t, info.ConflictedFiles, "util.go")
}

func TestParseMergeTree_OldFormat(t *testing.T) {
	output := `changed in both
  base   100644 1111111111111111111111111111111111111111 shared.txt
  our    100644 2222222222222222222222222222222222222222 shared.txt
  their  100644 3333333333333333333333333333333333333333 shared.txt
@@ -1,3 +1,7 @@
 line one
+<<<<<<< .our
 main version
+=======
+branch version
+>>>>>>> .their
 line three
@@ -10 +14,5 @@
+<<<<<<< .our
 x
+=======
+y
+>>>>>>> .their
changed in both
  base   100644 4444444444444444444444444444444444444444 clean.txt
  our    100644 5555555555555555555555555555555555555555 clean.txt
  their  100644 6666666666666666666666666666666666666666 clean.txt
@@ -1 +1,2 @@
 a
+b
`
	details := ParseMergeTree(output)
	require.Len(t, details, 1)
	assert.Equal(t, "shared.txt", details[0].File)
	assert.Equal(t, model.ConflictContent, details[0].Type)
	assert.Equal(t, `both sides changed shared.txt: ours "main version", theirs "branch version" (+1 more conflicting hunk(s))`, details[0].Description)
}

func TestParseMergeTree_DiffHeaderAndConflictLines(t *testing.T) {
	output := "+++ b/src/app.go\n" +
		"+<<<<<<< HEAD\n" +
		"+ours\n" +
		"+=======\n" +
		"+theirs\n" +
		"+>>>>>>> feature\n" +
		"CONFLICT (modify/delete): docs/x.md deleted in feature and modified in HEAD. Version HEAD of docs/x.md left in tree. in docs/x.md\n"

	details := ParseMergeTree(output)
	require.Len(t, details, 2)
	assert.Equal(t, "src/app.go", details[0].File)
	assert.Equal(t, model.ConflictContent, details[0].Type)
	assert.Equal(t, "docs/x.md", details[1].File)
	assert.Equal(t, model.ConflictDeleteModify, details[1].Type)
}

func TestParseMergeTree_TruncatesLongSnippets(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	output := "  our    100644 aaaa f.txt\n+<<<<<<< .our\n " + string(long) + "\n+=======\n+y\n+>>>>>>> .their\n"
	details := ParseMergeTree(output)
	require.Len(t, details, 1)
	assert.Contains(t, details[0].Description, "...")
	assert.Less(t, len(details[0].Description), 200)
}

func TestModeConflicts(t *testing.T) {
	ours := []git.RawEntry{{Path: "a.sh", OldMode: "100644", NewMode: "100755", Status: model.FileModified}}
	theirsSame := []git.RawEntry{{Path: "a.sh", OldMode: "100644", NewMode: "100755", Status: model.FileModified}}
	theirsDiff := []git.RawEntry{{Path: "a.sh", OldMode: "100644", NewMode: "120000", Status: model.FileModified}}

	assert.Empty(t, ModeConflicts(ours, theirsSame))
	got := ModeConflicts(ours, theirsDiff)
	require.Len(t, got, 1)
	assert.Equal(t, model.ConflictMode, got[0].Type)
}

func TestRenameConflicts_SameTargetIsFine(t *testing.T) {
	ours := []git.NameStatusEntry{{Status: model.FileRenamed, OldPath: "a", Path: "b"}}
	assert.Empty(t, RenameConflicts(ours, ours))
}

func TestBuildReport_RiskLevels(t *testing.T) {
	content := func(files ...string) model.ConflictInfo {
		var ds []model.ConflictDetail
		for _, f := range files {
			ds = append(ds, model.ConflictDetail{File: f, Type: model.ConflictContent})
		}
		return model.NewConflictInfo(ds)
	}

	tests := []struct {
		name      string
		info      model.ConflictInfo
		risk      model.RiskLevel
		autoSolve bool
	}{
		{"none", content(), model.RiskNone, true},
		{"one content", content("a"), model.RiskLow, true},
		{"two content", content("a", "b"), model.RiskLow, true},
		{"three content", content("a", "b", "c"), model.RiskMedium, false},
		{"six content", content("a", "b", "c", "d", "e", "f"), model.RiskHigh, false},
		{"rename", model.NewConflictInfo([]model.ConflictDetail{{File: "x", Type: model.ConflictRename}}), model.RiskHigh, false},
		{"mode", model.NewConflictInfo([]model.ConflictDetail{{File: "x", Type: model.ConflictMode}}), model.RiskLow, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := BuildReport(tt.info)
			assert.Equal(t, tt.risk, r.RiskLevel)
			assert.Equal(t, tt.autoSolve, r.CanAutoResolve)
			assert.NotEmpty(t, r.Recommendations)
		})
	}
}
