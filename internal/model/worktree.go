package model

// Worktree is one entry of `git worktree list --porcelain`.
// Branch is empty for a detached HEAD.
type Worktree struct {
	Path       string `json:"path"`
	Branch     string `json:"branch"`
	CommitHash string `json:"commit_hash"`
	Bare       bool   `json:"bare,omitempty"`
	Detached   bool   `json:"detached,omitempty"`
	Locked     bool   `json:"locked,omitempty"`
	Prunable   bool   `json:"prunable,omitempty"`
}
