// Package revwalk resolves user revision ranges and walks single-parent
// ancestry, partitioning commits into a push list and a reparent list.
package revwalk

import (
	"context"
	"strings"

	"github.com/adisho1992/phlay/phlay/usererr"
)

// Commit is one node of the ancestry graph. Secondary is the alternate
// VCS hash required by the review service, empty until looked up or
// propagated.
type Commit struct {
	Hash      string
	Parents   []string
	Secondary string
}

// Parent returns the single parent hash. ok is false for root commits and
// for merges, both of which make the history non-linear for our purposes.
func (c *Commit) Parent() (string, bool) {
	if len(c.Parents) != 1 {
		return "", false
	}
	return c.Parents[0], true
}

// Source is the backend the cache reads from. The git implementation lives
// in this package; tests substitute an in-memory one.
type Source interface {
	// ResolveRev resolves a user revision expression to a commit hash.
	// Unknown or ambiguous revisions are user errors.
	ResolveRev(ctx context.Context, rev string) (string, error)
	// Parents returns the parent hashes of a commit.
	Parents(ctx context.Context, hash string) ([]string, error)
	// SecondaryHash returns the alternate VCS hash for a commit. The
	// backend reports an all-zero hash when it has none.
	SecondaryHash(ctx context.Context, hash string) (string, error)
}

// Cache memoizes commit lookups so each commit is fetched from the backend
// at most once per run. Single-threaded use, no locking.
type Cache struct {
	src     Source
	commits map[string]*Commit
}

func NewCache(src Source) *Cache {
	s := &Cache{}
	s.src = src
	s.commits = map[string]*Commit{}
	return s
}

func (s *Cache) Get(ctx context.Context, hash string) (*Commit, error) {
	if c, ok := s.commits[hash]; ok {
		return c, nil
	}
	parents, err := s.src.Parents(ctx, hash)
	if err != nil {
		return nil, err
	}
	c := &Commit{Hash: hash, Parents: parents}
	s.commits[hash] = c
	return c, nil
}

// Secondary returns the commit's secondary hash, fetching it once from the
// backend if it was not already set by crosswalk propagation.
func (s *Cache) Secondary(ctx context.Context, c *Commit) (string, error) {
	if c.Secondary != "" {
		return c.Secondary, nil
	}
	sec, err := s.src.SecondaryHash(ctx, c.Hash)
	if err != nil {
		return "", err
	}
	c.Secondary = sec
	return sec, nil
}

func (s *Cache) Resolve(ctx context.Context, rev string) (*Commit, error) {
	hash, err := s.src.ResolveRev(ctx, rev)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, hash)
}

// Range is the partition of history selected by a revspec.
type Range struct {
	// Base is the commit the push list grows from (the A of A..B),
	// excluded from both lists.
	Base *Commit
	// Tip is the resolved ref.
	Tip *Commit
	// Push are the commits to publish, oldest first, ending at B.
	Push []*Commit
	// Reparent are the commits above B up to and including the ref,
	// oldest first. They are rewritten on top of the pushed commits but
	// not published.
	Reparent []*Commit
}

// ResolveRange resolves a revspec against a ref. The revspec is either
// `A..B` (B defaulting to the ref) or a single commit C meaning `C^..C`.
func ResolveRange(ctx context.Context, cache *Cache, ref, revspec string) (*Range, error) {
	tip, err := cache.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	var base, top *Commit
	if i := strings.Index(revspec, ".."); i >= 0 {
		base, err = cache.Resolve(ctx, revspec[:i])
		if err != nil {
			return nil, err
		}
		topRev := revspec[i+2:]
		if topRev == "" {
			top = tip
		} else {
			top, err = cache.Resolve(ctx, topRev)
			if err != nil {
				return nil, err
			}
		}
	} else {
		top, err = cache.Resolve(ctx, revspec)
		if err != nil {
			return nil, err
		}
		base, err = cache.Resolve(ctx, revspec+"^")
		if err != nil {
			return nil, err
		}
	}

	reparent, err := walkTo(ctx, cache, tip, top)
	if err != nil {
		return nil, err
	}
	push, err := walkTo(ctx, cache, top, base)
	if err != nil {
		return nil, err
	}
	if len(push) == 0 {
		return nil, usererr.Errorf("no commits to push in range %v", revspec)
	}
	return &Range{Base: base, Tip: tip, Push: push, Reparent: reparent}, nil
}

// walkTo collects single-parent ancestry from `from` down to `to`
// exclusive, returned oldest first.
func walkTo(ctx context.Context, cache *Cache, from, to *Commit) ([]*Commit, error) {
	var collected []*Commit
	cur := from
	for cur.Hash != to.Hash {
		collected = append(collected, cur)
		parent, ok := cur.Parent()
		if !ok {
			return nil, usererr.Errorf("%v is not a linear ancestor of %v", to.Hash, from.Hash)
		}
		next, err := cache.Get(ctx, parent)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	// oldest first
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return collected, nil
}
