// Package changes parses the backend's raw per-path change listing for one
// commit into a normalized path -> Record map, resolving rename/copy
// relationships and building hunks per path.
package changes

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/adisho1992/phlay/phlay/hunks"
	"github.com/adisho1992/phlay/phlay/usererr"
)

// Record describes how one path changed in a commit. A path referenced only
// as a rename/copy source still gets its own record, keyed by its own path.
type Record struct {
	Path      string
	OldPath   string
	AwayPaths []string

	OldMode string
	NewMode string

	Kind     Kind
	Binary   bool
	FileType hunks.FileType
	Uploads  []*hunks.Upload
	Hunks    []hunks.Hunk
}

// BlobReader fetches blob bodies by blob id. An all-zero id never reaches
// it; that means an absent blob and reads as an empty body.
type BlobReader interface {
	ReadBlob(ctx context.Context, id string) ([]byte, error)
}

type Parser struct {
	blobs BlobReader
}

func NewParser(blobs BlobReader) *Parser {
	return &Parser{blobs: blobs}
}

// rawRecord is one entry of `git diff-tree -r -z -M -C --raw` output:
// NUL-separated header fields followed by one or two NUL-terminated paths.
type rawRecord struct {
	oldMode string
	newMode string
	oldBlob string
	newBlob string
	status  byte
	paths   []string
}

// pathCount is the number of path tokens the record's status calls for.
func (r rawRecord) pathCount() int {
	if r.status == 'R' || r.status == 'C' {
		return 2
	}
	return 1
}

// Parse consumes the whole raw listing of one commit and returns the
// normalized change map.
func (p *Parser) Parse(ctx context.Context, raw []byte) (map[string]*Record, error) {
	res := map[string]*Record{}
	for _, rec := range tokenize(raw) {
		if err := p.apply(ctx, res, rec); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// tokenize splits the NUL-terminated stream into raw records. A token
// starting with ':' opens a record; the following one or two tokens are its
// paths depending on the status letter.
func tokenize(raw []byte) []rawRecord {
	var res []rawRecord
	toks := bytes.Split(raw, []byte{0})
	for i := 0; i < len(toks); i++ {
		tok := toks[i]
		if len(tok) == 0 || tok[0] != ':' {
			continue
		}
		fields := strings.Fields(string(tok[1:]))
		if len(fields) < 5 {
			continue
		}
		rec := rawRecord{
			oldMode: fields[0],
			newMode: fields[1],
			oldBlob: fields[2],
			newBlob: fields[3],
			status:  fields[4][0],
		}
		for j := 0; j < rec.pathCount() && i+1 < len(toks); j++ {
			i++
			rec.paths = append(rec.paths, string(toks[i]))
		}
		res = append(res, rec)
	}
	return res
}

func (p *Parser) apply(ctx context.Context, res map[string]*Record, raw rawRecord) error {
	if len(raw.paths) < raw.pathCount() {
		return fmt.Errorf("truncated raw change listing: %q record is missing a path", string(raw.status))
	}
	for _, path := range raw.paths {
		if path == "" {
			return fmt.Errorf("truncated raw change listing: %q record has an empty path", string(raw.status))
		}
	}
	get := func(path string) *Record {
		if rec, ok := res[path]; ok {
			return rec
		}
		rec := &Record{Path: path}
		res[path] = rec
		return rec
	}

	switch raw.status {
	case 'A':
		rec := get(raw.paths[0])
		rec.Kind = KindAdd
		rec.NewMode = raw.newMode
		return p.buildHunks(ctx, rec, raw)
	case 'D':
		rec := get(raw.paths[0])
		rec.Kind = KindDelete
		rec.OldMode = raw.oldMode
		rec.OldPath = raw.paths[0]
		return p.buildHunks(ctx, rec, raw)
	case 'M':
		rec := get(raw.paths[0])
		rec.Kind = KindChange
		// git reports modify records under a single path, old and
		// current are the same path by construction.
		rec.OldPath = raw.paths[0]
		if raw.oldMode != raw.newMode {
			rec.OldMode = raw.oldMode
			rec.NewMode = raw.newMode
		}
		return p.buildHunks(ctx, rec, raw)
	case 'R', 'C':
		src, dst := raw.paths[0], raw.paths[1]
		rec := get(dst)
		if raw.status == 'R' {
			rec.Kind = KindMoveHere
		} else {
			rec.Kind = KindCopyHere
		}
		rec.OldPath = src
		if raw.oldMode != raw.newMode {
			rec.OldMode = raw.oldMode
			rec.NewMode = raw.newMode
		}
		srcRec := get(src)
		mergeAwaySource(srcRec, raw.status, dst)
		if srcRec.FileType == 0 {
			// the source path never gets its own raw record: classify its
			// content here so it carries a real file type on the wire
			srcRaw := raw
			srcRaw.newBlob = raw.oldBlob
			if err := p.buildHunks(ctx, srcRec, srcRaw); err != nil {
				return err
			}
		}
		return p.buildHunks(ctx, rec, raw)
	}
	return usererr.Errorf("unsupported status %q in raw change listing", string(raw.status))
}

// mergeAwaySource updates the rename/copy source record. The rule is
// order-dependent on the raw listing: the first reference marks the source
// moved or copied away, any further reference makes it a multicopy.
func mergeAwaySource(src *Record, status byte, awayPath string) {
	switch {
	case src.Kind == KindMulticopy:
	case src.Kind.isAway():
		src.Kind = KindMulticopy
	case status == 'R':
		src.Kind = KindMoveAway
	default:
		src.Kind = KindCopyAway
	}
	src.AwayPaths = append(src.AwayPaths, awayPath)
}

func (p *Parser) buildHunks(ctx context.Context, rec *Record, raw rawRecord) error {
	oldBody, err := p.readBlob(ctx, raw.oldBlob)
	if err != nil {
		return fmt.Errorf("error reading old blob for %v: %v", rec.Path, err)
	}
	newBody, err := p.readBlob(ctx, raw.newBlob)
	if err != nil {
		return fmt.Errorf("error reading new blob for %v: %v", rec.Path, err)
	}
	oldPath := rec.OldPath
	if oldPath == "" {
		oldPath = rec.Path
	}
	built := hunks.Build(oldBody, newBody, oldPath, rec.Path, raw.oldBlob == raw.newBlob)
	rec.Binary = built.Binary
	rec.FileType = built.FileType
	rec.Uploads = built.Uploads
	rec.Hunks = built.Hunks
	return nil
}

func (p *Parser) readBlob(ctx context.Context, id string) ([]byte, error) {
	if absentBlob(id) {
		return nil, nil
	}
	return p.blobs.ReadBlob(ctx, id)
}

// absentBlob reports whether a blob id is the all-zero placeholder git uses
// for a missing side (added or deleted file).
func absentBlob(id string) bool {
	return strings.Trim(id, "0") == ""
}
