package driver

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
)

// GitSource names a script stored in a git repository. URL may be a remote
// or a local working copy; at most one of Rev, Tag and Branch is consulted,
// and HEAD is used when none is set.
type GitSource struct {
	URL    string
	Rev    string
	Tag    string
	Branch string
	Path   string
}

func (s GitSource) revision() plumbing.Revision {
	if rev := strings.TrimSpace(s.Rev); rev != "" {
		return plumbing.Revision(rev)
	}
	if tag := strings.TrimSpace(s.Tag); tag != "" {
		return plumbing.Revision("refs/tags/" + tag)
	}
	if branch := strings.TrimSpace(s.Branch); branch != "" {
		return plumbing.Revision("refs/heads/" + branch)
	}
	return plumbing.Revision(plumbing.HEAD)
}

// Name is how the source appears in error trails.
func (s GitSource) Name() string {
	return fmt.Sprintf("%s@%s:%s", s.URL, s.revision(), s.Path)
}

// Fetch returns the script text. Local repositories are opened in place;
// anything else is cloned into memory.
func (s GitSource) Fetch(ctx context.Context) (string, error) {
	if strings.TrimSpace(s.URL) == "" {
		return "", fmt.Errorf("git source: url is required")
	}
	if strings.TrimSpace(s.Path) == "" {
		return "", fmt.Errorf("git source: path is required")
	}
	repo, err := s.open(ctx)
	if err != nil {
		return "", err
	}
	return ReadScript(repo, s.revision(), s.Path)
}

func (s GitSource) open(ctx context.Context) (*git.Repository, error) {
	if info, err := os.Stat(s.URL); err == nil && info.IsDir() {
		repo, err := git.PlainOpenWithOptions(s.URL, &git.PlainOpenOptions{DetectDotGit: true})
		if err != nil {
			return nil, fmt.Errorf("git source: open %s: %w", s.URL, err)
		}
		return repo, nil
	}
	repo, err := git.CloneContext(ctx, memory.NewStorage(), nil, &git.CloneOptions{
		URL:  s.URL,
		Tags: git.AllTags,
	})
	if err != nil {
		return nil, fmt.Errorf("git source: clone %s: %w", s.URL, err)
	}
	return repo, nil
}

// ReadScript reads path from the tree of the commit rev resolves to.
func ReadScript(repo *git.Repository, rev plumbing.Revision, path string) (string, error) {
	hash, err := repo.ResolveRevision(rev)
	if err != nil {
		return "", fmt.Errorf("git source: resolve %s: %w", rev, err)
	}
	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return "", fmt.Errorf("git source: commit %s: %w", hash, err)
	}
	file, err := commit.File(strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", fmt.Errorf("git source: %s at %s: %w", path, hash.String()[:7], err)
	}
	contents, err := file.Contents()
	if err != nil {
		return "", fmt.Errorf("git source: read %s: %w", path, err)
	}
	return contents, nil
}
