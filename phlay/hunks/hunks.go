// Package hunks turns a pair of file bodies into the per-file diff data the
// review service wants: a binary/text classification and, for text, a single
// full-context hunk with exact offset, length and trailing-newline
// bookkeeping.
package hunks

import (
	"bytes"
	"fmt"
	"mime"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// FileType is the review service's file classification code.
type FileType int

const (
	FileText   FileType = 1
	FileImage  FileType = 2
	FileBinary FileType = 3
)

// Side marks which end of the change an upload belongs to.
type Side string

const (
	SideOld Side = "old"
	SideNew Side = "new"
)

// Hunk is one contiguous change block. For text changes we always emit
// exactly one hunk spanning the whole file.
type Hunk struct {
	OldOffset int
	OldLength int
	NewOffset int
	NewLength int

	AddLines int
	DelLines int

	// Presence of a trailing newline at end of file on each side.
	OldEOFNewline bool
	NewEOFNewline bool

	// Corpus is the literal diff body, one prefixed line per file line,
	// with inline "\ No newline at end of file" marker lines.
	Corpus string
}

// Upload is a binary body waiting to be pushed to the review service. PHID
// is filled in by the caller once the upload completes.
type Upload struct {
	Side Side
	Data []byte
	Mime string
	PHID string
}

// Result is the outcome of building one path's diff data.
type Result struct {
	FileType FileType
	Binary   bool
	Hunks    []Hunk
	Uploads  []*Upload
}

// Build classifies and diffs one changed path. sameBlob is set when the
// backend reports identical blob ids for both sides, in which case the
// content is provably unchanged and we synthesize a context-only hunk.
func Build(oldBody, newBody []byte, oldPath, newPath string, sameBlob bool) Result {
	if isBinary(oldBody) || isBinary(newBody) {
		return buildBinary(oldBody, newBody, oldPath, newPath)
	}

	res := Result{FileType: FileText}
	if sameBlob {
		res.Hunks = []Hunk{contextOnlyHunk(newBody)}
		return res
	}
	res.Hunks = []Hunk{diffHunk(oldBody, newBody)}
	return res
}

func isBinary(body []byte) bool {
	return bytes.IndexByte(body, 0) >= 0
}

func buildBinary(oldBody, newBody []byte, oldPath, newPath string) Result {
	oldMime := GuessMime(oldPath)
	newMime := GuessMime(newPath)
	res := Result{Binary: true, FileType: FileBinary}
	if strings.HasPrefix(oldMime, "image/") || strings.HasPrefix(newMime, "image/") {
		res.FileType = FileImage
	}
	res.Uploads = []*Upload{
		{Side: SideOld, Data: oldBody, Mime: oldMime},
		{Side: SideNew, Data: newBody, Mime: newMime},
	}
	return res
}

// GuessMime guesses a MIME type from the path extension only. The body is
// never sniffed, matching what the review service does on its end.
func GuessMime(path string) string {
	t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if t == "" {
		return "application/octet-stream"
	}
	// TypeByExtension adds charset params for text types, the service
	// wants the bare type.
	if i := strings.Index(t, ";"); i >= 0 {
		t = t[:i]
	}
	return t
}

// contextOnlyHunk covers an identical-content change (mode-only change,
// plain rename or copy). Every line is context.
func contextOnlyHunk(body []byte) Hunk {
	lines := splitLines(body)
	var corpus strings.Builder
	for _, line := range lines {
		corpus.WriteString(" ")
		corpus.WriteString(line)
	}
	return Hunk{
		OldOffset:     1,
		OldLength:     len(lines),
		NewOffset:     1,
		NewLength:     len(lines),
		OldEOFNewline: true,
		NewEOFNewline: true,
		Corpus:        corpus.String(),
	}
}

func diffHunk(oldBody, newBody []byte) Hunk {
	oldLines := splitLines(oldBody)
	newLines := splitLines(newBody)

	header := hunkHeader(len(oldLines), len(newLines))
	h := parseHunkHeader(header)
	h.OldEOFNewline = true
	h.NewEOFNewline = true

	var corpus strings.Builder
	for _, op := range lineDiff(oldBody, newBody) {
		prefix := " "
		switch op.kind {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}
		for _, line := range op.lines {
			switch op.kind {
			case diffmatchpatch.DiffDelete:
				h.DelLines++
			case diffmatchpatch.DiffInsert:
				h.AddLines++
			}
			corpus.WriteString(prefix)
			corpus.WriteString(line)
			if !strings.HasSuffix(line, "\n") {
				// Missing trailing newline: terminate the line, then
				// record the marker the same way git renders it.
				corpus.WriteString("\n\\ No newline at end of file\n")
				if op.kind != diffmatchpatch.DiffInsert {
					h.OldEOFNewline = false
				}
				if op.kind != diffmatchpatch.DiffDelete {
					h.NewEOFNewline = false
				}
			}
		}
	}
	h.Corpus = corpus.String()
	return h
}

type lineOp struct {
	kind  diffmatchpatch.Operation
	lines []string
}

// lineDiff computes a line-level diff by running diffmatchpatch in its
// line mode (each distinct line mapped to one rune first).
func lineDiff(oldBody, newBody []byte) []lineOp {
	dmp := diffmatchpatch.New()
	c1, c2, arr := dmp.DiffLinesToChars(string(oldBody), string(newBody))
	ds := dmp.DiffMain(c1, c2, false)
	ds = dmp.DiffCharsToLines(ds, arr)
	res := make([]lineOp, 0, len(ds))
	for _, d := range ds {
		res = append(res, lineOp{kind: d.Type, lines: splitLines([]byte(d.Text))})
	}
	return res
}

// hunkHeader renders the @@ header for a single hunk spanning whole files,
// omitting a range length of 1 the way git does.
func hunkHeader(oldCount, newCount int) string {
	return fmt.Sprintf("@@ -%s +%s @@", headerRange(oldCount), headerRange(newCount))
}

func headerRange(count int) string {
	offset := 1
	if count == 0 {
		offset = 0
	}
	if count == 1 {
		return strconv.Itoa(offset)
	}
	return fmt.Sprintf("%d,%d", offset, count)
}

var headerRE = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// parseHunkHeader recovers offsets and lengths from an @@ header. A range
// with no explicit length means length 1.
func parseHunkHeader(line string) Hunk {
	m := headerRE.FindStringSubmatch(line)
	if m == nil {
		panic(fmt.Errorf("not a hunk header: %q", line))
	}
	atoi := func(s string) int {
		v, _ := strconv.Atoi(s)
		return v
	}
	h := Hunk{}
	h.OldOffset = atoi(m[1])
	if m[2] == "" {
		h.OldLength = 1
	} else {
		h.OldLength = atoi(m[2])
	}
	h.NewOffset = atoi(m[3])
	if m[4] == "" {
		h.NewLength = 1
	} else {
		h.NewLength = atoi(m[4])
	}
	return h
}

// splitLines splits a body into lines, each keeping its trailing newline
// when present.
func splitLines(b []byte) []string {
	var res []string
	for len(b) > 0 {
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			res = append(res, string(b))
			break
		}
		res = append(res, string(b[:i+1]))
		b = b[i+1:]
	}
	return res
}
