// Package sanitize validates and escapes untrusted input before it reaches a
// git subprocess, and redacts secrets before they reach a log sink.
package sanitize

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	wterrors "github.com/randalmurphal/wtsync/internal/errors"
)

// MaxCommitMessageLength is the longest commit message accepted, in characters.
const MaxCommitMessageLength = 10000

var (
	refNamePattern  = regexp.MustCompile(`^[A-Za-z0-9/_-]{1,255}$`)
	stashRefPattern = regexp.MustCompile(`^stash@\{\d+\}$`)
	injectionChars  = ";|&$`"
)

// ValidateBranchName rejects branch names outside [A-Za-z0-9/_-]{1,255}.
func ValidateBranchName(name string) error {
	return validateRefName("branch", name)
}

// ValidateRemoteName applies the branch-name rules to a remote name.
func ValidateRemoteName(name string) error {
	return validateRefName("remote", name)
}

func validateRefName(kind, name string) error {
	if refNamePattern.MatchString(name) {
		return nil
	}
	why := fmt.Sprintf("%s name %q must match %s", kind, name, refNamePattern.String())
	if strings.ContainsAny(name, injectionChars) {
		why = fmt.Sprintf("%s name %q contains shell metacharacters (possible command injection)", kind, name)
	}
	return wterrors.NewSecurity(fmt.Sprintf("invalid %s name", kind), why)
}

// ValidateStashRef accepts only stash@{N} identifiers.
func ValidateStashRef(ref string) error {
	if stashRefPattern.MatchString(ref) {
		return nil
	}
	return wterrors.NewSecurity("invalid stash identifier",
		fmt.Sprintf("%q must look like stash@{N}", ref))
}

// ValidatePath rejects paths with a ".." segment. When baseDir is non-empty,
// absolute paths must resolve inside it. Returns the cleaned path.
func ValidatePath(path, baseDir string) (string, error) {
	if path == "" {
		return "", wterrors.NewSecurity("invalid path", "path is empty")
	}
	if strings.ContainsRune(path, 0) {
		return "", wterrors.NewSecurity("invalid path", "path contains a NUL byte")
	}
	for _, seg := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return "", wterrors.NewSecurity("path traversal rejected",
				fmt.Sprintf("%q contains a '..' segment", path))
		}
	}

	cleaned := filepath.Clean(path)
	if baseDir == "" || !filepath.IsAbs(cleaned) {
		return cleaned, nil
	}

	base, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("resolve base dir: %w", err)
	}
	rel, err := filepath.Rel(base, cleaned)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", wterrors.NewSecurity("path traversal rejected",
			fmt.Sprintf("%q resolves outside %s", path, base))
	}
	return cleaned, nil
}

var commitMessageEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`'`, `\'`,
	"`", "\\`",
	`$`, `\$`,
	"\r", `\r`,
	"\n", `\n`,
)

// ValidateCommitMessage rejects messages longer than MaxCommitMessageLength.
// Messages passed to git as a single argv entry need nothing more.
func ValidateCommitMessage(msg string) error {
	if n := utf8.RuneCountInString(msg); n > MaxCommitMessageLength {
		return wterrors.NewSecurity("commit message rejected",
			fmt.Sprintf("message is %d characters, limit is %d", n, MaxCommitMessageLength))
	}
	return nil
}

// EscapeCommitMessage backslash-escapes quotes, newlines, '$' and backticks
// for messages that will be interpolated into a shell line.
func EscapeCommitMessage(msg string) (string, error) {
	if err := ValidateCommitMessage(msg); err != nil {
		return "", err
	}
	return commitMessageEscaper.Replace(msg), nil
}

// DefaultAllowedCommands are the executables verification commands may start with.
var DefaultAllowedCommands = []string{
	"go", "make", "npm", "npx", "yarn", "pnpm", "node", "pytest", "python", "python3",
	"cargo", "mvn", "gradle", "git", "test", "true", "echo", "ls", "cat",
}

var deniedPatterns = []struct {
	re     *regexp.Regexp
	reason string
}{
	{regexp.MustCompile(`\brm\s+-[a-zA-Z]*r[a-zA-Z]*f|\brm\s+-[a-zA-Z]*f[a-zA-Z]*r`), "recursive forced delete"},
	{regexp.MustCompile(`\bdd\s+if=`), "raw disk copy"},
	{regexp.MustCompile(`\bmkfs(\.\w+)?\b`), "filesystem creation"},
	{regexp.MustCompile(`;`), "command chaining with ';'"},
	{regexp.MustCompile(`&&`), "command chaining with '&&'"},
	{regexp.MustCompile(`\|`), "piping with '|'"},
	{regexp.MustCompile("`|\\$\\("), "command substitution"},
	{regexp.MustCompile(`[<>]`), "redirection"},
}

// ValidateShellCommand checks an ad-hoc command against the allow-list of
// executables and the deny-list of destructive patterns. A nil allow list
// means DefaultAllowedCommands.
func ValidateShellCommand(command string, allowed []string) error {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return wterrors.NewSecurity("command rejected", "command is empty")
	}
	for _, p := range deniedPatterns {
		if p.re.MatchString(command) {
			return wterrors.NewSecurity("command rejected",
				fmt.Sprintf("%q matches a denied pattern (%s)", command, p.reason))
		}
	}
	if allowed == nil {
		allowed = DefaultAllowedCommands
	}
	name := filepath.Base(fields[0])
	for _, a := range allowed {
		if name == a {
			return nil
		}
	}
	return wterrors.NewSecurity("command rejected",
		fmt.Sprintf("%q is not an allowed command", name))
}
