// Package errors provides the structured error type for wtsync.
//
// Every failure the engine surfaces is a *SyncError. The Code field is the
// discriminant; the payload fields that matter for a given code are filled in
// by the matching constructor.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// Code represents a unique error code.
type Code string

// Error codes for wtsync.
const (
	// Subprocess errors
	CodeGitOperation Code = "GIT_OPERATION_FAILED"

	// Input and precondition errors
	CodeValidation    Code = "VALIDATION_FAILED"
	CodeSecurity      Code = "SECURITY_VIOLATION"
	CodeConfigInvalid Code = "CONFIG_INVALID"
	CodeNotFound      Code = "NOT_FOUND"

	// Sync flow errors
	CodeConflictDetected Code = "CONFLICT_DETECTED"
	CodeSyncOperation    Code = "SYNC_OPERATION_FAILED"
	CodeRollback         Code = "ROLLBACK_FAILED"

	// Resource errors
	CodeTimeout   Code = "TIMEOUT"
	CodeLock      Code = "LOCK_FAILED"
	CodeRateLimit Code = "RATE_LIMITED"
)

// Category groups error codes for exit-status and retry decisions.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryInput
	CategoryConflict
	CategoryExternal
	CategoryTimeout
	CategoryInternal
)

var codeCategories = map[Code]Category{
	CodeGitOperation:     CategoryExternal,
	CodeValidation:       CategoryInput,
	CodeSecurity:         CategoryInput,
	CodeConfigInvalid:    CategoryInput,
	CodeNotFound:         CategoryInput,
	CodeConflictDetected: CategoryConflict,
	CodeSyncOperation:    CategoryInternal,
	CodeRollback:         CategoryInternal,
	CodeTimeout:          CategoryTimeout,
	CodeLock:             CategoryTimeout,
	CodeRateLimit:        CategoryTimeout,
}

// String returns a short label for the category.
func (c Category) String() string {
	switch c {
	case CategoryInput:
		return "input"
	case CategoryConflict:
		return "conflict"
	case CategoryExternal:
		return "external"
	case CategoryTimeout:
		return "timeout"
	case CategoryInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// SyncError is the structured error type for wtsync.
type SyncError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`

	// GIT_OPERATION_FAILED
	Command  string `json:"command,omitempty"`
	ExitCode int    `json:"exit_code,omitempty"`
	Stderr   string `json:"stderr,omitempty"`

	// VALIDATION_FAILED
	SubErrors []string `json:"sub_errors,omitempty"`

	// CONFLICT_DETECTED
	Files []string `json:"files,omitempty"`

	// SYNC_OPERATION_FAILED
	Branch      string `json:"branch,omitempty"`
	OperationID string `json:"operation_id,omitempty"`

	// ROLLBACK_FAILED
	Commit string `json:"commit,omitempty"`

	// TIMEOUT
	Elapsed time.Duration `json:"elapsed,omitempty"`

	// LOCK_FAILED
	Resource string `json:"resource,omitempty"`

	// RATE_LIMITED
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly message for CLI output.
func (e *SyncError) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\nWhy: ")
		b.WriteString(e.Why)
	}
	if len(e.SubErrors) > 0 {
		b.WriteString("\n\nProblems:")
		for _, s := range e.SubErrors {
			b.WriteString("\n  - ")
			b.WriteString(s)
		}
	}
	if len(e.Files) > 0 {
		b.WriteString("\n\nFiles:")
		for _, f := range e.Files {
			b.WriteString("\n  - ")
			b.WriteString(f)
		}
	}
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// Category returns the error category.
func (e *SyncError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// Retryable reports whether repeating the operation may succeed.
func (e *SyncError) Retryable() bool {
	switch e.Code {
	case CodeTimeout, CodeLock, CodeRateLimit:
		return true
	case CodeGitOperation:
		return isTransientGitOutput(e.Stderr)
	}
	return false
}

// MarshalJSON implements json.Marshaler.
func (e *SyncError) MarshalJSON() ([]byte, error) {
	type alias SyncError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is a SyncError with the same code.
func (e *SyncError) Is(target error) bool {
	t, ok := target.(*SyncError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *SyncError) WithCause(err error) *SyncError {
	cp := *e
	cp.Cause = err
	return &cp
}

// Sentinels usable as errors.Is targets; only the code is compared.
var (
	ErrGitOperation     = &SyncError{Code: CodeGitOperation}
	ErrValidation       = &SyncError{Code: CodeValidation}
	ErrSecurity         = &SyncError{Code: CodeSecurity}
	ErrConfigInvalid    = &SyncError{Code: CodeConfigInvalid}
	ErrNotFound         = &SyncError{Code: CodeNotFound}
	ErrConflictDetected = &SyncError{Code: CodeConflictDetected}
	ErrSyncOperation    = &SyncError{Code: CodeSyncOperation}
	ErrRollback         = &SyncError{Code: CodeRollback}
	ErrTimeout          = &SyncError{Code: CodeTimeout}
	ErrLock             = &SyncError{Code: CodeLock}
	ErrRateLimit        = &SyncError{Code: CodeRateLimit}
)

// --- Error constructors ---

// NewGitOperation returns an error for a failed git subprocess.
func NewGitOperation(command string, exitCode int, stderr string, cause error) *SyncError {
	why := strings.TrimSpace(stderr)
	if why == "" && exitCode != 0 {
		why = fmt.Sprintf("exit status %d", exitCode)
	}
	return &SyncError{
		Code:     CodeGitOperation,
		What:     fmt.Sprintf("git command failed: %s", command),
		Why:      why,
		Fix:      "Run the command manually in the repository to inspect the failure",
		Command:  command,
		ExitCode: exitCode,
		Stderr:   stderr,
		Cause:    cause,
	}
}

// NewValidation returns an error for failed preconditions or rejected input.
func NewValidation(what string, subErrors ...string) *SyncError {
	return &SyncError{
		Code:      CodeValidation,
		What:      what,
		Why:       strings.Join(subErrors, "; "),
		SubErrors: subErrors,
	}
}

// NewSecurity returns an error for input rejected as unsafe.
func NewSecurity(what, why string) *SyncError {
	return &SyncError{
		Code: CodeSecurity,
		What: what,
		Why:  why,
		Fix:  "Use only letters, digits, '/', '_' and '-' in names passed to git",
	}
}

// NewConfigInvalid returns an error for invalid configuration.
func NewConfigInvalid(field, reason string) *SyncError {
	return &SyncError{
		Code: CodeConfigInvalid,
		What: fmt.Sprintf("invalid configuration: %s", field),
		Why:  reason,
		Fix:  "Check .wtsync/config.yaml and fix the invalid field",
	}
}

// NewNotFound returns an error for a missing record or ref.
func NewNotFound(kind, id string) *SyncError {
	return &SyncError{
		Code: CodeNotFound,
		What: fmt.Sprintf("%s %s not found", kind, id),
	}
}

// NewConflictDetected returns an error listing conflicted files.
func NewConflictDetected(branch string, files []string) *SyncError {
	return &SyncError{
		Code:   CodeConflictDetected,
		What:   fmt.Sprintf("merging %s would conflict", branch),
		Why:    fmt.Sprintf("%d conflicted file(s)", len(files)),
		Fix:    "Resolve the conflicts in the worktree, or re-run with --force",
		Files:  files,
		Branch: branch,
	}
}

// NewSyncOperation wraps a whole-operation failure with its context.
func NewSyncOperation(branch, operationID string, cause error) *SyncError {
	return &SyncError{
		Code:        CodeSyncOperation,
		What:        fmt.Sprintf("sync of %s failed (operation %s)", branch, operationID),
		Fix:         fmt.Sprintf("Inspect the record with 'wtsync sync show %s'", operationID),
		Branch:      branch,
		OperationID: operationID,
		Cause:       cause,
	}
}

// NewRollback returns an error for a rollback that could not complete.
func NewRollback(commit, why, fix string, cause error) *SyncError {
	return &SyncError{
		Code:   CodeRollback,
		What:   fmt.Sprintf("rollback to %s failed", shortSHA(commit)),
		Why:    why,
		Fix:    fix,
		Commit: commit,
		Cause:  cause,
	}
}

// NewTimeout returns an error for an exhausted time budget.
func NewTimeout(what string, elapsed time.Duration) *SyncError {
	return &SyncError{
		Code:    CodeTimeout,
		What:    what,
		Why:     fmt.Sprintf("gave up after %s", elapsed.Round(time.Millisecond)),
		Elapsed: elapsed,
	}
}

// NewLock returns an error for lock misuse or failure.
func NewLock(resource, why string, cause error) *SyncError {
	return &SyncError{
		Code:     CodeLock,
		What:     fmt.Sprintf("lock on %s", resource),
		Why:      why,
		Resource: resource,
		Cause:    cause,
	}
}

// NewRateLimit returns an error for a throttled operation.
func NewRateLimit(key string, retryAfter time.Duration) *SyncError {
	return &SyncError{
		Code:       CodeRateLimit,
		What:       fmt.Sprintf("rate limit exceeded for %s", key),
		Why:        fmt.Sprintf("retry after %s", retryAfter.Round(time.Second)),
		RetryAfter: retryAfter,
	}
}

// AsSyncError attempts to convert an error to a SyncError.
// Returns nil if the error chain holds no SyncError.
func AsSyncError(err error) *SyncError {
	var se *SyncError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// CodeOf returns the code of the first SyncError in err's chain, or "".
func CodeOf(err error) Code {
	if se := AsSyncError(err); se != nil {
		return se.Code
	}
	return ""
}

// IsRetryable reports whether err is a retryable SyncError.
func IsRetryable(err error) bool {
	se := AsSyncError(err)
	return se != nil && se.Retryable()
}

// Wrap wraps a generic error into a SyncError with unknown code.
func Wrap(err error, what string) *SyncError {
	return &SyncError{
		Code:  Code("UNKNOWN"),
		What:  what,
		Cause: err,
	}
}

func isTransientGitOutput(stderr string) bool {
	s := strings.ToLower(stderr)
	for _, marker := range []string{
		"could not resolve host",
		"connection timed out",
		"connection reset",
		"early eof",
		"the remote end hung up",
		"unable to access",
		"index.lock",
	} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
