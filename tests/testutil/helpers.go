// Package testutil provides git repository fixtures for tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// TestRepo is a temporary git repository on branch main with one commit.
type TestRepo struct {
	t       *testing.T
	RootDir string
}

// SetupTestRepo creates a temporary git repository.
// The repo is cleaned up when the test completes.
func SetupTestRepo(t *testing.T) *TestRepo {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	tmpDir := t.TempDir()
	r := &TestRepo{t: t, RootDir: tmpDir}

	// Initialize git repo with explicit 'main' branch
	r.Git("init", "--initial-branch=main")
	r.Git("config", "user.email", "test@example.com")
	r.Git("config", "user.name", "Test User")
	r.Git("config", "commit.gpgsign", "false")

	r.WriteFile("README.md", "# Test Project\n")
	r.CommitAll("Initial commit")

	return r
}

// Git runs git in the repository root and returns trimmed stdout.
func (r *TestRepo) Git(args ...string) string {
	r.t.Helper()
	return r.GitIn(r.RootDir, args...)
}

// GitIn runs git in dir and returns trimmed stdout.
func (r *TestRepo) GitIn(dir string, args ...string) string {
	r.t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		r.t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, output)
	}
	return strings.TrimSpace(string(output))
}

// WriteFile writes content to a path relative to the repository root.
func (r *TestRepo) WriteFile(rel, content string) {
	r.t.Helper()
	r.WriteFileIn(r.RootDir, rel, content)
}

// WriteFileIn writes content to a path relative to dir.
func (r *TestRepo) WriteFileIn(dir, rel, content string) {
	r.t.Helper()

	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		r.t.Fatalf("create parent of %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		r.t.Fatalf("write %s: %v", path, err)
	}
}

// CommitAll stages everything in the repository root and commits.
func (r *TestRepo) CommitAll(msg string) string {
	r.t.Helper()
	return r.CommitAllIn(r.RootDir, msg)
}

// CommitAllIn stages everything in dir and commits. Returns the new HEAD.
func (r *TestRepo) CommitAllIn(dir, msg string) string {
	r.t.Helper()

	r.GitIn(dir, "add", "-A")
	r.GitIn(dir, "commit", "-m", msg)
	return r.GitIn(dir, "rev-parse", "HEAD")
}

// Head returns HEAD of the repository root.
func (r *TestRepo) Head() string {
	r.t.Helper()
	return r.Git("rev-parse", "HEAD")
}

// AddWorktree creates branch from main in a new worktree outside the
// repository and returns the worktree path.
func (r *TestRepo) AddWorktree(branch string) string {
	r.t.Helper()

	path := filepath.Join(r.t.TempDir(), strings.ReplaceAll(branch, "/", "-"))
	r.Git("worktree", "add", "-b", branch, path, "main")
	return path
}

// AddBareRemote creates a bare repository, registers it as remote name and
// pushes main to it. Returns the bare repository path.
func (r *TestRepo) AddBareRemote(name string) string {
	r.t.Helper()

	bare := filepath.Join(r.t.TempDir(), name+".git")
	r.GitIn(filepath.Dir(bare), "init", "--bare", "--initial-branch=main", bare)
	r.Git("remote", "add", name, bare)
	r.Git("push", name, "main")
	return bare
}

// WriteYAML writes a YAML file.
func WriteYAML(t *testing.T, path string, data any) {
	t.Helper()

	bytes, err := yaml.Marshal(data)
	if err != nil {
		t.Fatalf("marshal YAML: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("create parent of %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes, 0644); err != nil {
		t.Fatalf("write YAML file %s: %v", path, err)
	}
}

// AssertFileExists checks that a file exists.
func AssertFileExists(t *testing.T, path string) {
	t.Helper()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			t.Errorf("file %s does not exist", path)
		} else {
			t.Errorf("stat file %s: %v", path, err)
		}
	}
}

// AssertFileNotExists checks that a file does not exist.
func AssertFileNotExists(t *testing.T, path string) {
	t.Helper()

	if _, err := os.Stat(path); err == nil {
		t.Errorf("file %s exists but should not", path)
	} else if !os.IsNotExist(err) {
		t.Errorf("stat file %s: %v", path, err)
	}
}

// AssertFileContains checks that a file contains a specific string.
func AssertFileContains(t *testing.T, path, content string) {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Errorf("read file %s: %v", path, err)
		return
	}

	if !strings.Contains(string(data), content) {
		t.Errorf("file %s does not contain %q\ncontents: %s", path, content, string(data))
	}
}
