package conduit

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/adisho1992/phlay/phlay/usererr"
)

// User is a reviewer identity.
type User struct {
	PHID     string `json:"phid"`
	UserName string `json:"userName"`
	RealName string `json:"realName"`
}

// Revision is an existing review.
type Revision struct {
	ID    string `json:"id"`
	PHID  string `json:"phid"`
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Session wraps a client with per-run identity caches: each reviewer,
// revision and bug is fetched at most once. Execution is single-threaded,
// the maps need no locking.
type Session struct {
	client *Client
	bugs   *BugTracker

	users     map[string]*User
	revisions map[int]*Revision
	bugSeen   map[int]bool
}

func NewSession(client *Client, bugs *BugTracker) *Session {
	s := &Session{}
	s.client = client
	s.bugs = bugs
	s.users = map[string]*User{}
	s.revisions = map[int]*Revision{}
	s.bugSeen = map[int]bool{}
	return s
}

func (s *Session) Client() *Client {
	return s.client
}

// User resolves a reviewer tag to an account, memoized by tag.
func (s *Session) User(ctx context.Context, name string) (*User, error) {
	name = strings.TrimSpace(name)
	if u, ok := s.users[name]; ok {
		return u, nil
	}
	var res []*User
	err := s.client.Call(ctx, "user.query", map[string]interface{}{
		"usernames": []string{name},
	}, &res)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, usererr.Errorf("unknown reviewer %q", name)
	}
	s.users[name] = res[0]
	return res[0], nil
}

// Revision fetches a revision by number, memoized by number.
func (s *Session) Revision(ctx context.Context, id int) (*Revision, error) {
	if r, ok := s.revisions[id]; ok {
		return r, nil
	}
	var res []*Revision
	err := s.client.Call(ctx, "differential.query", map[string]interface{}{
		"ids": []int{id},
	}, &res)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, usererr.Errorf("revision D%d does not exist", id)
	}
	s.revisions[id] = res[0]
	return res[0], nil
}

// CheckBug verifies a referenced bug exists, memoized by number. A session
// without a bug tracker accepts every bug number.
func (s *Session) CheckBug(ctx context.Context, number int) error {
	if s.bugs == nil {
		return nil
	}
	if s.bugSeen[number] {
		return nil
	}
	ok, err := s.bugs.BugExists(ctx, number)
	if err != nil {
		return err
	}
	if !ok {
		return usererr.Errorf("bug %d does not exist", number)
	}
	s.bugSeen[number] = true
	return nil
}

// BugTracker checks bug numbers against a bugzilla-style REST endpoint.
type BugTracker struct {
	base string
	hc   *http.Client
}

func NewBugTracker(base string) *BugTracker {
	s := &BugTracker{}
	s.base = strings.TrimRight(base, "/")
	s.hc = http.DefaultClient
	return s
}

func (s *BugTracker) BugExists(ctx context.Context, number int) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%v/rest/bug/%d", s.base, number), nil)
	if err != nil {
		return false, err
	}
	resp, err := s.hc.Do(req)
	if err != nil {
		return false, fmt.Errorf("error checking bug %d: %v", number, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	}
	return false, fmt.Errorf("bug tracker returned %v for bug %d", resp.Status, number)
}
