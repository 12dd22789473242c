package git

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/randalmurphal/wtsync/internal/model"
)

// NumstatEntry is one line of `git diff --numstat`.
type NumstatEntry struct {
	Path       string
	OldPath    string // set for renames and copies
	Insertions int
	Deletions  int
	Binary     bool
}

// InferredStatus guesses the status from line counts alone: Added when only
// lines were inserted, Deleted when only lines were removed, else Modified.
// Name-status output refines it.
func (e NumstatEntry) InferredStatus() model.FileStatus {
	switch {
	case e.Deletions == 0 && e.Insertions > 0:
		return model.FileAdded
	case e.Insertions == 0 && e.Deletions > 0:
		return model.FileDeleted
	default:
		return model.FileModified
	}
}

// NameStatusEntry is one line of `git diff --name-status -M -C`.
type NameStatusEntry struct {
	Status     model.FileStatus
	Path       string // resulting path
	OldPath    string // source path for renames and copies
	Similarity int    // 0-100 for renames and copies
}

// RawEntry is one record of `git diff --raw --no-abbrev`.
type RawEntry struct {
	OldMode string
	NewMode string
	OldBlob string
	NewBlob string
	Status  model.FileStatus
	Path    string
	OldPath string
}

// ModeChanged reports whether the permission bits differ.
func (e RawEntry) ModeChanged() bool {
	return e.OldMode != e.NewMode
}

func diffArgs(format, base, head string) []string {
	return []string{"-c", "core.quotePath=false", "diff", format, "-M", "-C", base + "..." + head}
}

// DiffNumstat returns per-file line counts of head relative to its merge
// base with base.
func (c *Client) DiffNumstat(ctx context.Context, base, head string) ([]NumstatEntry, error) {
	if err := validateRevs(base, head); err != nil {
		return nil, err
	}
	out, err := c.run(ctx, diffArgs("--numstat", base, head)...)
	if err != nil {
		return nil, err
	}
	return ParseNumstat(out), nil
}

// DiffNameStatus returns per-file change classification of head relative to
// its merge base with base, with rename and copy detection.
func (c *Client) DiffNameStatus(ctx context.Context, base, head string) ([]NameStatusEntry, error) {
	if err := validateRevs(base, head); err != nil {
		return nil, err
	}
	out, err := c.run(ctx, diffArgs("--name-status", base, head)...)
	if err != nil {
		return nil, err
	}
	return ParseNameStatus(out), nil
}

// DiffRaw returns raw diff records, which carry file modes.
func (c *Client) DiffRaw(ctx context.Context, base, head string) ([]RawEntry, error) {
	if err := validateRevs(base, head); err != nil {
		return nil, err
	}
	args := append(diffArgs("--raw", base, head), "--no-abbrev")
	out, err := c.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return ParseRaw(out), nil
}

func validateRevs(revs ...string) error {
	for _, r := range revs {
		if err := validateRev(r); err != nil {
			return err
		}
	}
	return nil
}

// ParseNumstat parses git diff --numstat output.
// Format: insertions<tab>deletions<tab>path
// Binary files show as: -<tab>-<tab>path
func ParseNumstat(output string) []NumstatEntry {
	var entries []NumstatEntry
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) < 3 {
			continue
		}

		e := NumstatEntry{Path: parts[2]}
		if strings.Contains(e.Path, " => ") {
			e.OldPath, e.Path = splitRenamePath(e.Path)
		}

		e.Binary = parts[0] == "-" && parts[1] == "-"
		if !e.Binary {
			e.Insertions, _ = strconv.Atoi(parts[0])
			e.Deletions, _ = strconv.Atoi(parts[1])
		}
		entries = append(entries, e)
	}
	return entries
}

var braceRenameRe = regexp.MustCompile(`\{([^}]*) => ([^}]*)\}`)

// splitRenamePath expands git's rename notation into old and new paths.
// Examples:
//   - "old.txt => new.txt" -> "old.txt", "new.txt"
//   - "dir/{old.txt => new.txt}" -> "dir/old.txt", "dir/new.txt"
//   - "{old => new}/file.txt" -> "old/file.txt", "new/file.txt"
//   - "src/{ => sub}/a.go" -> "src/a.go", "src/sub/a.go"
func splitRenamePath(path string) (oldPath, newPath string) {
	if m := braceRenameRe.FindStringSubmatchIndex(path); m != nil {
		prefix, suffix := path[:m[0]], path[m[1]:]
		oldPart, newPart := path[m[2]:m[3]], path[m[4]:m[5]]
		return joinRenameParts(prefix, oldPart, suffix), joinRenameParts(prefix, newPart, suffix)
	}
	before, after, _ := strings.Cut(path, " => ")
	return strings.TrimSpace(before), strings.TrimSpace(after)
}

func joinRenameParts(prefix, middle, suffix string) string {
	if middle == "" {
		// "a/{ => b}/c" collapses the empty side's double slash.
		return prefix + strings.TrimPrefix(suffix, "/")
	}
	return prefix + middle + suffix
}

// ParseNameStatus parses git diff --name-status output.
// Renames and copies carry a similarity score: R087<tab>old<tab>new.
func ParseNameStatus(output string) []NameStatusEntry {
	var entries []NameStatusEntry
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 2 || parts[0] == "" {
			continue
		}

		code := parts[0]
		e := NameStatusEntry{Status: statusFromCode(code[0]), Path: parts[len(parts)-1]}
		if (code[0] == 'R' || code[0] == 'C') && len(parts) >= 3 {
			e.OldPath = parts[1]
			e.Similarity, _ = strconv.Atoi(code[1:])
		}
		entries = append(entries, e)
	}
	return entries
}

// ParseRaw parses git diff --raw output.
// Format: :<oldMode> <newMode> <oldBlob> <newBlob> <status><tab><path>[<tab><path>]
func ParseRaw(output string) []RawEntry {
	var entries []RawEntry
	for _, line := range strings.Split(output, "\n") {
		if !strings.HasPrefix(line, ":") {
			continue
		}
		meta, paths, ok := strings.Cut(line[1:], "\t")
		if !ok {
			continue
		}
		fields := strings.Fields(meta)
		if len(fields) < 5 || fields[4] == "" {
			continue
		}

		e := RawEntry{
			OldMode: fields[0],
			NewMode: fields[1],
			OldBlob: fields[2],
			NewBlob: fields[3],
			Status:  statusFromCode(fields[4][0]),
		}
		pathParts := strings.Split(paths, "\t")
		e.Path = pathParts[len(pathParts)-1]
		if len(pathParts) > 1 {
			e.OldPath = pathParts[0]
		}
		entries = append(entries, e)
	}
	return entries
}

func statusFromCode(code byte) model.FileStatus {
	switch code {
	case 'A':
		return model.FileAdded
	case 'D':
		return model.FileDeleted
	case 'R':
		return model.FileRenamed
	case 'C':
		return model.FileCopied
	default:
		// M, T (type change) and U (unmerged) all mean the path's content changed.
		return model.FileModified
	}
}
