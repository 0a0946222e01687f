// Package conduit talks to the review service: the wire schema for diff
// changes, the JSON-over-HTTP client and a memoizing lookup session.
package conduit

import (
	"fmt"

	"github.com/adisho1992/phlay/phlay/changes"
)

// Change is the per-path payload of differential.creatediff.
type Change struct {
	Metadata      map[string]interface{} `json:"metadata"`
	OldPath       *string                `json:"oldPath"`
	CurrentPath   string                 `json:"currentPath"`
	AwayPaths     []string               `json:"awayPaths"`
	OldProperties map[string]string      `json:"oldProperties"`
	NewProperties map[string]string      `json:"newProperties"`
	CommitHash    string                 `json:"commitHash"`
	Type          int                    `json:"type"`
	FileType      int                    `json:"fileType"`
	Hunks         []Hunk                 `json:"hunks"`
}

type Hunk struct {
	OldOffset           int    `json:"oldOffset"`
	OldLength           int    `json:"oldLength"`
	NewOffset           int    `json:"newOffset"`
	NewLength           int    `json:"newLength"`
	AddLines            int    `json:"addLines"`
	DelLines            int    `json:"delLines"`
	IsMissingOldNewline bool   `json:"isMissingOldNewline"`
	IsMissingNewNewline bool   `json:"isMissingNewNewline"`
	Corpus              string `json:"corpus"`
}

// ToWire projects one change record into the wire schema. commitHash is the
// owning commit's secondary hash. All uploads must have completed: a record
// still holding an upload without an id is a bug in the caller.
func ToWire(rec *changes.Record, commitHash string) (Change, error) {
	awayPaths := rec.AwayPaths
	if awayPaths == nil {
		// the service wants a list on every change, never null
		awayPaths = []string{}
	}
	c := Change{
		Metadata:      map[string]interface{}{},
		CurrentPath:   rec.Path,
		AwayPaths:     awayPaths,
		OldProperties: map[string]string{},
		NewProperties: map[string]string{},
		CommitHash:    commitHash,
		Type:          rec.Kind.Code(),
		FileType:      int(rec.FileType),
	}
	if rec.OldPath != "" {
		oldPath := rec.OldPath
		c.OldPath = &oldPath
	}
	if rec.OldMode != "" {
		c.OldProperties["unix:filemode"] = rec.OldMode
	}
	if rec.NewMode != "" {
		c.NewProperties["unix:filemode"] = rec.NewMode
	}
	for _, up := range rec.Uploads {
		if up.PHID == "" {
			return Change{}, fmt.Errorf("change %v has an unfinished %v upload, uploads must complete before translation", rec.Path, up.Side)
		}
		side := string(up.Side)
		c.Metadata[side+":binary-id"] = up.PHID
		c.Metadata[side+":file:size"] = len(up.Data)
		c.Metadata[side+":file:mime-type"] = up.Mime
	}
	for _, h := range rec.Hunks {
		c.Hunks = append(c.Hunks, Hunk{
			OldOffset:           h.OldOffset,
			OldLength:           h.OldLength,
			NewOffset:           h.NewOffset,
			NewLength:           h.NewLength,
			AddLines:            h.AddLines,
			DelLines:            h.DelLines,
			IsMissingOldNewline: !h.OldEOFNewline,
			IsMissingNewNewline: !h.NewEOFNewline,
			Corpus:              h.Corpus,
		})
	}
	return c, nil
}
