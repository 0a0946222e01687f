// Package phlay pushes a linear stack of local git commits to a
// Phabricator-style review service, one revision per commit, then rewrites
// local history so every commit message carries its review link.
package phlay

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/adisho1992/phlay/phlay/changes"
	"github.com/adisho1992/phlay/phlay/cinnabar"
	"github.com/adisho1992/phlay/phlay/commitmsg"
	"github.com/adisho1992/phlay/phlay/conduit"
	"github.com/adisho1992/phlay/phlay/gitexec"
	"github.com/adisho1992/phlay/phlay/pkg/logger"
	"github.com/adisho1992/phlay/phlay/revwalk"
)

// Opts is configuration for one run.
type Opts struct {
	// RepoDir is the git repo to operate on.
	RepoDir string

	// Ref is the symbolic ref being rewritten. Defaults to HEAD.
	Ref string

	// Revspec selects the commits to push: `A..B` or a single commit.
	Revspec string

	// ConduitURI and ConduitToken locate the review service.
	ConduitURI   string
	ConduitToken string

	// BugzillaURL enables bug number validation when set.
	BugzillaURL string

	// DryRun plans and prints but performs no remote mutation and no
	// history rewrite.
	DryRun bool

	Logger logger.Logger
}

type Phlay struct {
	opts    Opts
	git     *gitexec.Git
	cache   *revwalk.Cache
	session *conduit.Session
	log     logger.Logger
}

func New(opts Opts) *Phlay {
	if opts.Ref == "" {
		opts.Ref = "HEAD"
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewDefaultLogger(os.Stdout)
	}
	s := &Phlay{}
	s.opts = opts
	s.git = gitexec.New(opts.RepoDir)
	s.cache = revwalk.NewCache(revwalk.NewGitSource(s.git))
	var bugs *conduit.BugTracker
	if opts.BugzillaURL != "" {
		bugs = conduit.NewBugTracker(opts.BugzillaURL)
	}
	s.session = conduit.NewSession(conduit.NewClient(opts.ConduitURI, opts.ConduitToken), bugs)
	s.log = opts.Logger
	return s
}

// BuildChangeSet parses one commit's raw change listing into the
// normalized path -> record map.
func (s *Phlay) BuildChangeSet(ctx context.Context, commit *revwalk.Commit) (map[string]*changes.Record, error) {
	raw, err := s.git.Exec(ctx, "diff-tree", "-r", "-z", "-M", "-C", "--no-commit-id", commit.Hash)
	if err != nil {
		return nil, err
	}
	parser := changes.NewParser(gitBlobs{s.git})
	return parser.Parse(ctx, raw)
}

type gitBlobs struct {
	git *gitexec.Git
}

func (b gitBlobs) ReadBlob(ctx context.Context, id string) ([]byte, error) {
	return b.git.Exec(ctx, "cat-file", "blob", id)
}

// planned is one push-list commit with everything parsed, ready to send.
type planned struct {
	commit  *revwalk.Commit
	details *commitDetails
	msg     commitmsg.Message
	records map[string]*changes.Record

	revisionID  int
	revisionURL string
}

// Run executes the whole push: plan, crosswalk, upload, publish, rewrite.
// Any user error during the plan phase aborts before remote mutation.
func (s *Phlay) Run(ctx context.Context) error {
	rng, err := revwalk.ResolveRange(ctx, s.cache, s.opts.Ref, s.opts.Revspec)
	if err != nil {
		return err
	}
	s.log.Info("resolved range", "push", len(rng.Push), "reparent", len(rng.Reparent))

	plan, err := s.plan(ctx, rng)
	if err != nil {
		return err
	}

	cw := cinnabar.New(s.git, s.cache, s.log)
	if err := cw.EnsureSecondaryHashes(ctx, rng.Push); err != nil {
		return err
	}

	if s.opts.DryRun {
		for _, p := range plan {
			s.log.Info("would push", "commit", p.commit.Hash, "hg", p.commit.Secondary, "title", p.msg.Title, "paths", len(p.records))
		}
		return nil
	}

	// all uploads across the push list complete before any publish
	if err := s.upload(ctx, plan); err != nil {
		return err
	}
	if err := s.publish(ctx, plan); err != nil {
		return err
	}
	return s.rewrite(ctx, rng, plan)
}

// plan parses every commit before anything is sent, so user errors abort
// with no remote side effects.
func (s *Phlay) plan(ctx context.Context, rng *revwalk.Range) ([]*planned, error) {
	var plan []*planned
	for _, commit := range rng.Push {
		details, err := s.commitDetails(ctx, commit.Hash)
		if err != nil {
			return nil, err
		}
		p := &planned{commit: commit, details: details}
		p.msg = commitmsg.Parse(details.Message)
		if p.msg.Revision != 0 {
			if _, err := s.session.Revision(ctx, p.msg.Revision); err != nil {
				return nil, err
			}
		}
		for _, name := range p.msg.Reviewers {
			if _, err := s.session.User(ctx, name); err != nil {
				return nil, err
			}
		}
		if p.msg.Bug != 0 {
			if err := s.session.CheckBug(ctx, p.msg.Bug); err != nil {
				return nil, err
			}
		}
		p.records, err = s.BuildChangeSet(ctx, commit)
		if err != nil {
			return nil, fmt.Errorf("error building change set for %v: %v", commit.Hash, err)
		}
		plan = append(plan, p)
	}
	return plan, nil
}

func (s *Phlay) upload(ctx context.Context, plan []*planned) error {
	for _, p := range plan {
		for _, rec := range sortedRecords(p.records) {
			for _, up := range rec.Uploads {
				if len(up.Data) == 0 {
					// absent side of an added or deleted binary
					up.PHID = "-"
					continue
				}
				phid, err := s.session.Client().UploadFile(ctx, rec.Path, up.Data)
				if err != nil {
					return err
				}
				up.PHID = phid
				s.log.Debug("uploaded", "path", rec.Path, "side", string(up.Side), "phid", phid)
			}
		}
	}
	return nil
}

func (s *Phlay) publish(ctx context.Context, plan []*planned) error {
	var prev *planned
	for _, p := range plan {
		var wire []conduit.Change
		for _, rec := range sortedRecords(p.records) {
			c, err := conduit.ToWire(rec, p.commit.Secondary)
			if err != nil {
				return err
			}
			wire = append(wire, c)
		}

		base := ""
		if parent, ok := p.commit.Parent(); ok {
			pc, err := s.cache.Get(ctx, parent)
			if err != nil {
				return err
			}
			base = pc.Secondary
		}
		diff, err := s.session.Client().CreateDiff(ctx, wire, base)
		if err != nil {
			return err
		}
		if err := s.setLocalCommits(ctx, diff.DiffID, p); err != nil {
			return err
		}

		txns := s.transactions(ctx, p, prev)
		txns = append([]conduit.Transaction{{Type: "update", Value: diff.PHID}}, txns...)
		res, err := s.session.Client().EditRevision(ctx, p.msg.Revision, txns)
		if err != nil {
			return err
		}
		p.revisionID = res.Object.ID
		if p.msg.Revision != 0 {
			p.revisionID = p.msg.Revision
		}
		p.revisionURL = fmt.Sprintf("%v/D%d", s.session.Client().URI(), p.revisionID)
		s.log.Info("published", "commit", p.commit.Hash, "revision", p.revisionURL)
		prev = p
	}
	return nil
}

// setLocalCommits attaches commit identity metadata to the diff the way
// the service expects for local commits.
func (s *Phlay) setLocalCommits(ctx context.Context, diffID int, p *planned) error {
	return s.session.Client().SetDiffProperty(ctx, diffID, "local:commits", map[string]interface{}{
		p.commit.Secondary: map[string]interface{}{
			"author":      p.details.AuthorName,
			"authorEmail": p.details.AuthorEmail,
			"time":        p.details.AuthorDate,
			"commit":      p.commit.Secondary,
			"rev":         p.commit.Secondary,
			"parents":     p.commit.Parents,
		},
	})
}

func (s *Phlay) transactions(ctx context.Context, p, prev *planned) []conduit.Transaction {
	txns := []conduit.Transaction{
		{Type: "title", Value: p.msg.Title},
		{Type: "summary", Value: p.msg.Summary},
	}
	if p.msg.Bug != 0 {
		txns = append(txns, conduit.Transaction{Type: "bugzilla.bug-id", Value: strconv.Itoa(p.msg.Bug)})
	}
	if len(p.msg.Reviewers) > 0 {
		var phids []string
		for _, name := range p.msg.Reviewers {
			// resolved during plan, cache hit by construction
			u, err := s.session.User(ctx, name)
			if err == nil {
				phids = append(phids, u.PHID)
			}
		}
		txns = append(txns, conduit.Transaction{Type: "reviewers.set", Value: phids})
	}
	// stack linkage: each revision depends on the one below it
	parents := append([]int(nil), p.msg.DependsOn...)
	if prev != nil && prev.revisionID != 0 {
		parents = append(parents, prev.revisionID)
	}
	if len(parents) > 0 {
		var refs []string
		for _, id := range parents {
			refs = append(refs, fmt.Sprintf("D%d", id))
		}
		txns = append(txns, conduit.Transaction{Type: "parents.set", Value: refs})
	}
	return txns
}

// rewrite rebuilds the pushed commits with Differential Revision trailers,
// replays the reparent list on top and advances the ref with a single
// compare-and-swap update.
func (s *Phlay) rewrite(ctx context.Context, rng *revwalk.Range, plan []*planned) error {
	newParent := rng.Base.Hash
	rewritten := false
	for _, p := range plan {
		msg := commitmsg.AppendRevisionURL(p.details.Message, p.revisionURL)
		if msg == p.details.Message && !rewritten {
			newParent = p.commit.Hash
			continue
		}
		hash, err := s.commitTree(ctx, p.details, newParent, msg)
		if err != nil {
			return err
		}
		newParent = hash
		rewritten = true
	}
	for _, c := range rng.Reparent {
		if !rewritten {
			newParent = c.Hash
			continue
		}
		details, err := s.commitDetails(ctx, c.Hash)
		if err != nil {
			return err
		}
		hash, err := s.commitTree(ctx, details, newParent, details.Message)
		if err != nil {
			return err
		}
		newParent = hash
	}
	if !rewritten {
		s.log.Info("history already carries all review links, ref unchanged")
		return nil
	}

	refName, err := s.refName(ctx)
	if err != nil {
		return err
	}
	// single atomic CAS: fails if the ref moved underneath us
	if _, err := s.git.Exec(ctx, "update-ref", "-m", "phlay: embed review links", refName, newParent, rng.Tip.Hash); err != nil {
		return err
	}
	s.log.Info("ref updated", "ref", refName, "old", rng.Tip.Hash, "new", newParent)
	return nil
}

func (s *Phlay) refName(ctx context.Context) (string, error) {
	if s.opts.Ref != "HEAD" {
		return s.opts.Ref, nil
	}
	return s.git.Output(ctx, "symbolic-ref", "--quiet", "HEAD")
}

// commitDetails is the identity and message of one commit, enough to
// recreate it with a different parent or message.
type commitDetails struct {
	Tree           string
	AuthorName     string
	AuthorEmail    string
	AuthorDate     string
	CommitterName  string
	CommitterEmail string
	CommitterDate  string
	Message        string
}

func (s *Phlay) commitDetails(ctx context.Context, hash string) (*commitDetails, error) {
	out, err := s.git.Exec(ctx, "log", "-n1",
		"--format=%T%x00%an%x00%ae%x00%aI%x00%cn%x00%ce%x00%cI%x00%B", hash)
	if err != nil {
		return nil, err
	}
	tok := strings.SplitN(string(out), "\x00", 8)
	if len(tok) != 8 {
		return nil, fmt.Errorf("unexpected log output for %v", hash)
	}
	return &commitDetails{
		Tree:           tok[0],
		AuthorName:     tok[1],
		AuthorEmail:    tok[2],
		AuthorDate:     tok[3],
		CommitterName:  tok[4],
		CommitterEmail: tok[5],
		CommitterDate:  tok[6],
		Message:        strings.TrimRight(tok[7], "\n") + "\n",
	}, nil
}

// commitTree recreates a commit with the same tree and author but a new
// parent and message.
func (s *Phlay) commitTree(ctx context.Context, d *commitDetails, parent, msg string) (string, error) {
	env := []string{
		"GIT_AUTHOR_NAME=" + d.AuthorName,
		"GIT_AUTHOR_EMAIL=" + d.AuthorEmail,
		"GIT_AUTHOR_DATE=" + d.AuthorDate,
		"GIT_COMMITTER_NAME=" + d.CommitterName,
		"GIT_COMMITTER_EMAIL=" + d.CommitterEmail,
		"GIT_COMMITTER_DATE=" + d.CommitterDate,
	}
	out := bytes.NewBuffer(nil)
	err := s.git.ExecEnv(ctx, out, strings.NewReader(msg), env, "commit-tree", d.Tree, "-p", parent)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.String()), nil
}

// sortedRecords returns the change records in path order so payloads are
// deterministic.
func sortedRecords(m map[string]*changes.Record) []*changes.Record {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	res := make([]*changes.Record, 0, len(paths))
	for _, p := range paths {
		res = append(res, m[p])
	}
	return res
}
