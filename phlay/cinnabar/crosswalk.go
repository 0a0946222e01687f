package cinnabar

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/adisho1992/phlay/phlay/gitexec"
	"github.com/adisho1992/phlay/phlay/pkg/logger"
	"github.com/adisho1992/phlay/phlay/revwalk"
	"github.com/adisho1992/phlay/phlay/usererr"
)

// Crosswalk fills in mercurial hashes for a push list by anchoring on the
// nearest ancestor that already has one and walking the bundle's
// parent -> child mapping forward.
type Crosswalk struct {
	git   *gitexec.Git
	cache *revwalk.Cache
	log   logger.Logger
}

func New(git *gitexec.Git, cache *revwalk.Cache, log logger.Logger) *Crosswalk {
	s := &Crosswalk{}
	s.git = git
	s.cache = cache
	s.log = log
	return s
}

// HasRealSecondary reports whether a commit already carries a usable
// mercurial hash: known, non-zero and distinct from the git hash.
func HasRealSecondary(c *revwalk.Commit) bool {
	sec := c.Secondary
	if sec == "" || sec == c.Hash {
		return false
	}
	return strings.Trim(sec, "0") != ""
}

// EnsureSecondaryHashes resolves the mercurial hash of every commit in the
// push list (oldest first), mutating the commits in place.
func (s *Crosswalk) EnsureSecondaryHashes(ctx context.Context, push []*revwalk.Commit) error {
	if len(push) == 0 {
		return nil
	}

	anchor, toResolve, err := s.findAnchor(ctx, push[0])
	if err != nil {
		return err
	}
	s.log.Debug("crosswalk anchor", "commit", anchor.Hash, "hg", anchor.Secondary, "unresolved", len(toResolve)+len(push))

	mapping, err := s.exportBundle(ctx, anchor, push[len(push)-1])
	if err != nil {
		return err
	}

	return propagate(mapping, anchor.Secondary, append(toResolve, push...))
}

// propagate walks the parent -> child mapping forward from the anchor's
// hash, assigning each commit its mercurial hash in ancestry order.
func propagate(mapping map[string]string, anchorSecondary string, commits []*revwalk.Commit) error {
	prev := anchorSecondary
	for _, c := range commits {
		sec, ok := mapping[prev]
		if !ok {
			return usererr.Errorf("bundle has no changeset with parent %v, the exported bundle is incomplete", prev)
		}
		c.Secondary = sec
		prev = sec
	}
	return nil
}

// findAnchor walks parents from the first push commit until one with a
// real mercurial hash is found. Every unresolved commit passed on the way
// is collected, oldest first, so propagation can cover it too.
func (s *Crosswalk) findAnchor(ctx context.Context, first *revwalk.Commit) (*revwalk.Commit, []*revwalk.Commit, error) {
	var toResolve []*revwalk.Commit
	parent, ok := first.Parent()
	for {
		if !ok {
			return nil, nil, usererr.New("no ancestor with a known mercurial hash, cannot anchor the crosswalk")
		}
		cur, err := s.cache.Get(ctx, parent)
		if err != nil {
			return nil, nil, err
		}
		if _, err := s.cache.Secondary(ctx, cur); err != nil {
			return nil, nil, err
		}
		if HasRealSecondary(cur) {
			return cur, toResolve, nil
		}
		toResolve = append([]*revwalk.Commit{cur}, toResolve...)
		parent, ok = cur.Parent()
	}
}

// exportBundle asks git-cinnabar for an uncompressed v1 bundle covering
// anchor..tip and parses it. The scratch dir is removed on every path.
func (s *Crosswalk) exportBundle(ctx context.Context, anchor, tip *revwalk.Commit) (map[string]string, error) {
	dir, err := os.MkdirTemp("", "phlay-bundle-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	loc := filepath.Join(dir, "crosswalk.hg")
	if _, err := s.git.Exec(ctx, "cinnabar", "bundle", "--version", "1", loc, anchor.Hash+".."+tip.Hash); err != nil {
		return nil, err
	}

	f, err := os.Open(loc)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseBundle(bufio.NewReader(f))
}
