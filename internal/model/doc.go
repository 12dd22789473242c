// Package model holds the value types shared by the sync engine: worktree
// snapshots, diff summaries, conflict reports, backups, validation results
// and the persisted SyncOperation record.
package model
