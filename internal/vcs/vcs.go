// Package vcs defines the repository-cloning and history-inspection
// collaborators spec.md's Non-goals name as external: cloning a repository
// at a commit, resolving a branch's HEAD, and reading git-log churn
// statistics. The concrete implementation shells out to the git binary,
// since the corpus has no pure-Go git client light enough to justify
// vendoring for what is explicitly out-of-scope plumbing.
package vcs

import (
	"context"
	"time"
)

// Cloner materializes a repository at a specific commit into a local
// working directory.
type Cloner interface {
	// Clone checks out remoteURL at commitSHA into a fresh temporary
	// directory and returns its path. Callers are responsible for removing
	// the directory when done.
	Clone(ctx context.Context, remoteURL, commitSHA string) (dir string, cleanup func(), err error)
}

// HeadResolver resolves a branch name to its current commit SHA, used by
// the dispatcher when a trigger request names a branch instead of a commit.
type HeadResolver interface {
	ResolveHead(ctx context.Context, remoteURL, branch string) (commitSHA string, err error)
}

// AuthorStat is one author's contribution count to a file within the churn
// window.
type AuthorStat struct {
	Author string
	Commits int
}

// FileChurn is the raw git-log-derived churn signal for one file, before
// the cluster analyzer turns it into a FileChurnFinding.
type FileChurn struct {
	Path            string
	ChangesInWindow int
	Authors         []AuthorStat
	// LastModifiedAt is the commit time of the file's most recent change
	// within the churn window, the input ImpactScore's age term needs.
	LastModifiedAt time.Time
}

// ChurnAnalyzer reads commit history to surface files with high recent
// churn, the raw signal behind hot-spot detection (spec.md §4.4).
type ChurnAnalyzer interface {
	// Churn returns per-file change counts and author diversity over the
	// last windowDays days of history at repoDir.
	Churn(ctx context.Context, repoDir string, windowDays int) ([]FileChurn, error)
}
