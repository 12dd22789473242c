package git

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	wterrors "github.com/randalmurphal/wtsync/internal/errors"
	"github.com/randalmurphal/wtsync/internal/sanitize"
)

// Default subprocess budgets.
const (
	DefaultPushTimeout    = 60 * time.Second
	DefaultNetworkTimeout = 10 * time.Second
	DefaultFsckTimeout    = 120 * time.Second
)

// Client issues git subprocess calls against one working directory and
// parses their output into typed results.
type Client struct {
	repoPath    string // Path to the main repository
	workDir     string // Directory commands run in (defaults to repoPath)
	gitBin      string
	runner      CommandRunner
	logger      *slog.Logger
	pushTimeout time.Duration
}

// Option configures Client.
type Option func(*Client)

// WithRunner sets a custom command runner for git operations.
// This is primarily used for testing to inject mock command execution.
func WithRunner(runner CommandRunner) Option {
	return func(c *Client) {
		c.runner = runner
	}
}

// WithLogger sets the logger. Commands are logged at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithGitBinary overrides the git executable (default "git").
func WithGitBinary(path string) Option {
	return func(c *Client) {
		c.gitBin = path
	}
}

// WithPushTimeout overrides DefaultPushTimeout.
func WithPushTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.pushTimeout = d
	}
}

// NewClient creates a client for the repository at repoPath and verifies it
// is a git repository.
func NewClient(ctx context.Context, repoPath string, opts ...Option) (*Client, error) {
	absPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	c := &Client{
		repoPath:    absPath,
		workDir:     absPath,
		gitBin:      "git",
		runner:      &ExecRunner{Env: []string{"GIT_TERMINAL_PROMPT=0"}},
		pushTimeout: DefaultPushTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	if _, err := c.runner.Run(ctx, absPath, c.gitBin, "rev-parse", "--git-dir"); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, ErrNotGitRepo)
	}
	return c, nil
}

// RepoPath returns the path to the main repository.
func (c *Client) RepoPath() string {
	return c.repoPath
}

// WorkDir returns the directory git commands run in.
func (c *Client) WorkDir() string {
	return c.workDir
}

// InDir returns a Client that runs commands in dir, typically a worktree
// of the same repository.
func (c *Client) InDir(dir string) *Client {
	cp := *c
	cp.workDir = dir
	return &cp
}

// run executes git and converts failures into GIT_OPERATION_FAILED errors.
func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	start := time.Now()
	out, err := c.runner.Run(ctx, c.workDir, c.gitBin, args...)
	c.logger.Debug("git", "args", args, "dir", c.workDir, "elapsed", time.Since(start), "error", err)
	if err == nil {
		return out, nil
	}
	return out, c.wrapErr(ctx, args, out, err, time.Since(start))
}

func (c *Client) wrapErr(ctx context.Context, args []string, out string, err error, elapsed time.Duration) error {
	command := c.gitBin + " " + strings.Join(args, " ")
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return wterrors.NewTimeout(command, elapsed).WithCause(err)
	}
	exitCode := -1
	var cmdErr *CommandError
	if stderrors.As(err, &cmdErr) {
		exitCode = cmdErr.ExitCode
		out = cmdErr.Output
	}
	return wterrors.NewGitOperation(command, exitCode, out, err)
}

// revPattern accepts branch names, SHAs, HEAD and ancestry suffixes.
var revPattern = regexp.MustCompile(`^[A-Za-z0-9/_-]{1,255}([~^][0-9]*)*$`)

func validateRev(rev string) error {
	if revPattern.MatchString(rev) {
		return nil
	}
	// Anything revPattern rejects also fails branch validation, which
	// produces the more specific message.
	return sanitize.ValidateBranchName(rev)
}

// CurrentBranch returns the checked-out branch name, or "HEAD" when detached.
func (c *Client) CurrentBranch(ctx context.Context) (string, error) {
	return c.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// HeadCommit returns the current HEAD commit SHA.
func (c *Client) HeadCommit(ctx context.Context) (string, error) {
	return c.run(ctx, "rev-parse", "HEAD")
}

// RevParse resolves rev to a full commit SHA. Unresolvable revisions return
// ErrUnknownRevision.
func (c *Client) RevParse(ctx context.Context, rev string) (string, error) {
	if err := validateRev(rev); err != nil {
		return "", err
	}
	sha, err := c.run(ctx, "rev-parse", "--verify", "--quiet", rev+"^{commit}")
	if err != nil {
		if wterrors.CodeOf(err) == wterrors.CodeGitOperation {
			return "", fmt.Errorf("%s: %w", rev, ErrUnknownRevision)
		}
		return "", err
	}
	return sha, nil
}

// CommitExists reports whether sha names a commit object.
func (c *Client) CommitExists(ctx context.Context, sha string) bool {
	if validateRev(sha) != nil {
		return false
	}
	_, err := c.run(ctx, "cat-file", "-e", sha+"^{commit}")
	return err == nil
}

// Status returns `git status --porcelain` output.
func (c *Client) Status(ctx context.Context) (string, error) {
	return c.run(ctx, "status", "--porcelain")
}

// IsClean returns true if the working tree has no uncommitted changes,
// untracked files included.
func (c *Client) IsClean(ctx context.Context) (bool, error) {
	status, err := c.Status(ctx)
	if err != nil {
		return false, err
	}
	return status == "", nil
}

// Reset moves HEAD to commit. hard discards working-tree changes; otherwise
// a mixed reset keeps them unstaged.
func (c *Client) Reset(ctx context.Context, commit string, hard bool) error {
	if err := validateRev(commit); err != nil {
		return err
	}
	mode := "--mixed"
	if hard {
		mode = "--hard"
	}
	_, err := c.run(ctx, "reset", mode, commit)
	return err
}

// Fsck runs an integrity check and returns its output.
func (c *Client) Fsck(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultFsckTimeout)
	defer cancel()
	return c.run(ctx, "fsck", "--no-progress", "--no-dangling")
}
