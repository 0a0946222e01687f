// Package commitmsg scans free-form commit messages for review metadata.
// This is a deliberately lenient textual grammar, not a strict protocol:
// the regexes capture the common spellings and ignore everything else.
package commitmsg

import (
	"regexp"
	"strconv"
	"strings"
)

// Message is the metadata recovered from one commit message.
type Message struct {
	// Title is the first line, with reviewer tags stripped.
	Title string
	// Summary is the remainder of the body, minus the revision trailer.
	Summary string

	Bug       int
	Reviewers []string
	DependsOn []int

	// Revision is the already-published review number found in a
	// Differential Revision trailer, 0 when the commit is new.
	Revision    int
	RevisionURL string
}

var (
	// "Bug 12345 - fix the frob" or "bug: 12345"
	bugRE = regexp.MustCompile(`(?i)\bbug[: ]\s*(\d+)`)
	// "r=alice", "r?alice,bob" anywhere in the message
	reviewerRE = regexp.MustCompile(`(?i)\br[?=]\s*([a-z0-9._-]+(?:\s*,\s*[a-z0-9._-]+)*)`)
	// "Depends on D123" on its own line
	dependsRE = regexp.MustCompile(`(?im)^depends on:?\s+D(\d+)\s*$`)
	// full trailer line with the review URL
	revisionRE = regexp.MustCompile(`(?m)^Differential Revision:\s*(\S*/D(\d+))\s*$`)
)

// Parse scans one commit message. It never fails: unmatched fields are
// left zero.
func Parse(body string) Message {
	var m Message

	lines := strings.SplitN(body, "\n", 2)
	m.Title = strings.TrimSpace(lines[0])
	if len(lines) > 1 {
		m.Summary = strings.TrimSpace(revisionRE.ReplaceAllString(lines[1], ""))
	}

	if g := bugRE.FindStringSubmatch(m.Title); g != nil {
		m.Bug, _ = strconv.Atoi(g[1])
	}
	for _, g := range reviewerRE.FindAllStringSubmatch(body, -1) {
		for _, name := range strings.Split(g[1], ",") {
			name = strings.TrimSpace(name)
			if name != "" && !contains(m.Reviewers, name) {
				m.Reviewers = append(m.Reviewers, name)
			}
		}
	}
	// reviewer tags are review routing, not part of the title
	m.Title = strings.TrimSpace(reviewerRE.ReplaceAllString(m.Title, ""))
	m.Title = strings.TrimRight(m.Title, " ,")

	for _, g := range dependsRE.FindAllStringSubmatch(body, -1) {
		id, _ := strconv.Atoi(g[1])
		m.DependsOn = append(m.DependsOn, id)
	}
	if g := revisionRE.FindStringSubmatch(body); g != nil {
		m.RevisionURL = g[1]
		m.Revision, _ = strconv.Atoi(g[2])
	}
	return m
}

// AppendRevisionURL returns the message with a Differential Revision
// trailer for url, unchanged if one already points there.
func AppendRevisionURL(body, url string) string {
	if g := revisionRE.FindStringSubmatch(body); g != nil {
		if g[1] == url {
			return body
		}
		return revisionRE.ReplaceAllString(body, "Differential Revision: "+url)
	}
	body = strings.TrimRight(body, "\n")
	return body + "\n\nDifferential Revision: " + url + "\n"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
