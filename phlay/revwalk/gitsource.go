package revwalk

import (
	"context"
	"strings"

	"github.com/adisho1992/phlay/phlay/gitexec"
	"github.com/adisho1992/phlay/phlay/usererr"
)

// GitSource reads ancestry from a git repo. Secondary hashes come from the
// git-cinnabar extension, which maps git commits to mercurial changesets.
type GitSource struct {
	git *gitexec.Git
}

func NewGitSource(git *gitexec.Git) *GitSource {
	return &GitSource{git: git}
}

func (s *GitSource) ResolveRev(ctx context.Context, rev string) (string, error) {
	out, err := s.git.Output(ctx, "rev-parse", "--verify", "--quiet", rev+"^{commit}")
	if err != nil || out == "" {
		return "", usererr.Errorf("unknown or ambiguous revision %q", rev)
	}
	return out, nil
}

func (s *GitSource) Parents(ctx context.Context, hash string) ([]string, error) {
	out, err := s.git.Output(ctx, "log", "-n1", "--format=%P", hash)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Fields(out), nil
}

func (s *GitSource) SecondaryHash(ctx context.Context, hash string) (string, error) {
	return s.git.Output(ctx, "cinnabar", "git2hg", hash)
}
