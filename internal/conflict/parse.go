package conflict

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/randalmurphal/wtsync/internal/model"
)

// maxSnippet bounds each side of a content conflict description.
const maxSnippet = 80

var (
	// "  our    100644 3b18e512dba79e4c8300dd08aeb37f8e728b8dad shared.txt"
	entryLineRe = regexp.MustCompile(`^\s+(?:base|our|their|result)\s+\d{6}\s+[0-9a-f]+\s+(.+)$`)
	// "CONFLICT (content): Merge conflict in shared.txt" from --write-tree mode.
	conflictLineRe = regexp.MustCompile(`^CONFLICT \(([^)]+)\): .* in (.+)$`)
)

type hunk struct {
	ours, theirs []string
}

// ParseMergeTree extracts content conflicts from merge-tree output. It
// yields one detail per file, however many conflict hunks the file has.
func ParseMergeTree(output string) []model.ConflictDetail {
	var order []string
	hunks := make(map[string][]hunk)
	extra := make(map[string]model.ConflictType)

	var (
		path    string
		current *hunk
		inOurs  bool
	)
	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimRight(raw, "\r")

		if strings.HasPrefix(line, "+++ b/") {
			path = strings.TrimPrefix(line, "+++ b/")
			continue
		}
		if m := entryLineRe.FindStringSubmatch(line); m != nil {
			path = m[1]
			continue
		}
		if m := conflictLineRe.FindStringSubmatch(line); m != nil {
			file := m[2]
			if _, ok := extra[file]; !ok {
				if _, seen := hunks[file]; !seen {
					order = append(order, file)
				}
				extra[file] = conflictTypeFromLabel(m[1])
			}
			continue
		}

		content := stripDiffPrefix(line)
		switch {
		case strings.HasPrefix(content, "<<<<<<<"):
			if path == "" {
				continue
			}
			if _, seen := hunks[path]; !seen {
				if _, ok := extra[path]; !ok {
					order = append(order, path)
				}
			}
			hunks[path] = append(hunks[path], hunk{})
			current = &hunks[path][len(hunks[path])-1]
			inOurs = true
		case current != nil && strings.HasPrefix(content, "======="):
			inOurs = false
		case current != nil && strings.HasPrefix(content, ">>>>>>>"):
			current = nil
		case current != nil:
			if inOurs {
				current.ours = append(current.ours, content)
			} else {
				current.theirs = append(current.theirs, content)
			}
		}
	}

	details := make([]model.ConflictDetail, 0, len(order))
	for _, file := range order {
		if hs, ok := hunks[file]; ok {
			details = append(details, model.ConflictDetail{
				File:        file,
				Type:        model.ConflictContent,
				Description: describeHunks(file, hs),
			})
			continue
		}
		t := extra[file]
		details = append(details, model.ConflictDetail{
			File:        file,
			Type:        t,
			Description: fmt.Sprintf("%s conflict in %s", strings.ReplaceAll(string(t), "_", "/"), file),
		})
	}
	return details
}

func stripDiffPrefix(line string) string {
	if line != "" && (line[0] == '+' || line[0] == '-' || line[0] == ' ') {
		return line[1:]
	}
	return line
}

func describeHunks(file string, hs []hunk) string {
	first := hs[0]
	desc := fmt.Sprintf("both sides changed %s: ours %q, theirs %q",
		file, snippet(first.ours), snippet(first.theirs))
	if len(hs) > 1 {
		desc += fmt.Sprintf(" (+%d more conflicting hunk(s))", len(hs)-1)
	}
	return desc
}

func snippet(lines []string) string {
	s := strings.TrimSpace(strings.Join(lines, " "))
	if len([]rune(s)) > maxSnippet {
		s = string([]rune(s)[:maxSnippet-3]) + "..."
	}
	return s
}

func conflictTypeFromLabel(label string) model.ConflictType {
	switch {
	case strings.Contains(label, "delete"):
		return model.ConflictDeleteModify
	case strings.Contains(label, "rename"):
		return model.ConflictRename
	case strings.Contains(label, "mode"):
		return model.ConflictMode
	default:
		return model.ConflictContent
	}
}
