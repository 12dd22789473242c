package model

// FileStatus classifies a changed path.
type FileStatus string

const (
	FileAdded    FileStatus = "added"
	FileModified FileStatus = "modified"
	FileDeleted  FileStatus = "deleted"
	FileRenamed  FileStatus = "renamed"
	FileCopied   FileStatus = "copied"
)

// FileDiff is the per-file line count of a diff. Binary files report zero
// insertions and deletions.
type FileDiff struct {
	Path       string     `json:"path"`
	Status     FileStatus `json:"status"`
	Insertions int        `json:"insertions"`
	Deletions  int        `json:"deletions"`
	Binary     bool       `json:"binary,omitempty"`
}

// DetailedFileDiff adds rename/copy provenance.
type DetailedFileDiff struct {
	FileDiff
	OldPath    string `json:"old_path,omitempty"`
	NewPath    string `json:"new_path,omitempty"`
	Similarity int    `json:"similarity,omitempty"`
}

// DiffSummary aggregates FileDiffs. FilesChanged always equals len(Files);
// the totals exclude binary files.
type DiffSummary struct {
	FilesChanged int        `json:"files_changed"`
	Insertions   int        `json:"insertions"`
	Deletions    int        `json:"deletions"`
	Files        []FileDiff `json:"files"`
}

// NewDiffSummary computes the totals for files.
func NewDiffSummary(files []FileDiff) DiffSummary {
	s := DiffSummary{Files: files, FilesChanged: len(files)}
	if s.Files == nil {
		s.Files = []FileDiff{}
	}
	for _, f := range files {
		if f.Binary {
			continue
		}
		s.Insertions += f.Insertions
		s.Deletions += f.Deletions
	}
	return s
}

// File returns the entry for path, if present.
func (s DiffSummary) File(path string) (FileDiff, bool) {
	for _, f := range s.Files {
		if f.Path == path {
			return f, true
		}
	}
	return FileDiff{}, false
}

// ModeChange is a file whose permission bits differ between two trees.
type ModeChange struct {
	Path    string `json:"path"`
	OldMode string `json:"old_mode"`
	NewMode string `json:"new_mode"`
	Status  string `json:"status"`
}
