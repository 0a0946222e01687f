package changes

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adisho1992/phlay/phlay/hunks"
	"github.com/adisho1992/phlay/phlay/usererr"
)

type fakeBlobs map[string][]byte

func (f fakeBlobs) ReadBlob(ctx context.Context, id string) ([]byte, error) {
	return f[id], nil
}

const zeroBlob = "0000000000000000000000000000000000000000"

// rawListing builds a diff-tree -z style stream out of records given as
// "fields" followed by their paths.
func rawListing(records ...[]string) []byte {
	var b strings.Builder
	for _, rec := range records {
		for _, tok := range rec {
			b.WriteString(tok)
			b.WriteByte(0)
		}
	}
	return []byte(b.String())
}

func header(oldMode, newMode, oldBlob, newBlob, status string) string {
	return ":" + oldMode + " " + newMode + " " + oldBlob + " " + newBlob + " " + status
}

func TestParseModify(t *testing.T) {
	assert := assert.New(t)
	blobs := fakeBlobs{"aaa1": []byte("a\nb\n"), "aaa2": []byte("a\nc\n")}
	raw := rawListing([]string{header("100644", "100644", "aaa1", "aaa2", "M"), "file.txt"})

	res, err := NewParser(blobs).Parse(context.Background(), raw)
	assert.NoError(err)
	if !assert.Len(res, 1) {
		return
	}
	rec := res["file.txt"]
	assert.Equal(KindChange, rec.Kind)
	assert.Equal("file.txt", rec.OldPath)
	// same mode on both sides, not recorded
	assert.Equal("", rec.OldMode)
	assert.Equal("", rec.NewMode)
	if assert.Len(rec.Hunks, 1) {
		h := rec.Hunks[0]
		assert.Equal(1, h.OldOffset)
		assert.Equal(2, h.OldLength)
		assert.Equal(1, h.NewOffset)
		assert.Equal(2, h.NewLength)
		assert.Equal(1, h.AddLines)
		assert.Equal(1, h.DelLines)
		assert.Equal(" a\n-b\n+c\n", h.Corpus)
		assert.True(h.OldEOFNewline)
		assert.True(h.NewEOFNewline)
	}
}

func TestParseAddAndDelete(t *testing.T) {
	assert := assert.New(t)
	blobs := fakeBlobs{"bbb1": []byte("x\n"), "ccc1": []byte("y\n")}
	raw := rawListing(
		[]string{header("000000", "100755", zeroBlob, "bbb1", "A"), "new.sh"},
		[]string{header("100644", "000000", "ccc1", zeroBlob, "D"), "old.txt"},
	)

	res, err := NewParser(blobs).Parse(context.Background(), raw)
	assert.NoError(err)
	if !assert.Len(res, 2) {
		return
	}
	added := res["new.sh"]
	assert.Equal(KindAdd, added.Kind)
	assert.Equal("100755", added.NewMode)
	assert.Equal("", added.OldPath)
	if assert.Len(added.Hunks, 1) {
		assert.Equal("+x\n", added.Hunks[0].Corpus)
	}

	deleted := res["old.txt"]
	assert.Equal(KindDelete, deleted.Kind)
	assert.Equal("100644", deleted.OldMode)
	assert.Equal("old.txt", deleted.OldPath)
	if assert.Len(deleted.Hunks, 1) {
		assert.Equal("-y\n", deleted.Hunks[0].Corpus)
	}
}

func TestParseSingleRename(t *testing.T) {
	assert := assert.New(t)
	blobs := fakeBlobs{"ddd1": []byte("z\n")}
	raw := rawListing([]string{header("100644", "100644", "ddd1", "ddd1", "R100"), "src.txt", "dst.txt"})

	res, err := NewParser(blobs).Parse(context.Background(), raw)
	assert.NoError(err)
	if !assert.Len(res, 2) {
		return
	}
	src := res["src.txt"]
	assert.Equal(KindMoveAway, src.Kind)
	assert.Equal([]string{"dst.txt"}, src.AwayPaths)
	// the source has no raw record of its own but still gets classified
	assert.Equal(hunks.FileText, src.FileType)
	if assert.Len(src.Hunks, 1) {
		assert.Equal(" z\n", src.Hunks[0].Corpus)
	}

	dst := res["dst.txt"]
	assert.Equal(KindMoveHere, dst.Kind)
	assert.Equal("src.txt", dst.OldPath)
	// identical blob ids, context-only hunk
	if assert.Len(dst.Hunks, 1) {
		h := dst.Hunks[0]
		assert.Equal(0, h.AddLines)
		assert.Equal(0, h.DelLines)
		assert.Equal(" z\n", h.Corpus)
	}
}

func TestMergeRuleTable(t *testing.T) {
	assert := assert.New(t)
	blobs := fakeBlobs{"eee1": []byte("q\n")}
	rename := func(dst string) []string {
		return []string{header("100644", "100644", "eee1", "eee1", "R090"), "s.txt", dst}
	}
	copyTo := func(dst string) []string {
		return []string{header("100644", "100644", "eee1", "eee1", "C080"), "s.txt", dst}
	}

	// two renames from the same source
	res, err := NewParser(blobs).Parse(context.Background(), rawListing(rename("d1.txt"), rename("d2.txt")))
	assert.NoError(err)
	src := res["s.txt"]
	assert.Equal(KindMulticopy, src.Kind)
	assert.Equal([]string{"d1.txt", "d2.txt"}, src.AwayPaths)
	assert.Equal(hunks.FileText, src.FileType)

	// rename then copy
	res, err = NewParser(blobs).Parse(context.Background(), rawListing(rename("d1.txt"), copyTo("d2.txt")))
	assert.NoError(err)
	assert.Equal(KindMulticopy, res["s.txt"].Kind)

	// copy then rename
	res, err = NewParser(blobs).Parse(context.Background(), rawListing(copyTo("d1.txt"), rename("d2.txt")))
	assert.NoError(err)
	assert.Equal(KindMulticopy, res["s.txt"].Kind)

	// single copy stays copy-away
	res, err = NewParser(blobs).Parse(context.Background(), rawListing(copyTo("d1.txt")))
	assert.NoError(err)
	assert.Equal(KindCopyAway, res["s.txt"].Kind)
	assert.Equal(KindCopyHere, res["d1.txt"].Kind)
}

func TestParseTruncatedListing(t *testing.T) {
	assert := assert.New(t)
	// rename record cut off before its destination path
	raw := rawListing([]string{header("100644", "100644", "ddd1", "ddd1", "R100"), "src.txt"})
	_, err := NewParser(fakeBlobs{}).Parse(context.Background(), raw)
	assert.Error(err)

	// record header with no path tokens at all
	_, err = NewParser(fakeBlobs{}).Parse(context.Background(), []byte(header("100644", "100644", "aaa1", "aaa2", "M")))
	assert.Error(err)
}

func TestParseUnsupportedStatus(t *testing.T) {
	assert := assert.New(t)
	raw := rawListing([]string{header("100644", "100644", "fff1", "fff2", "U"), "conflicted.txt"})
	_, err := NewParser(fakeBlobs{}).Parse(context.Background(), raw)
	if assert.Error(err) {
		assert.True(usererr.Is(err))
	}
}

func TestKindCodes(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(1, KindAdd.Code())
	assert.Equal(2, KindChange.Code())
	assert.Equal(3, KindDelete.Code())
	assert.Equal(4, KindMoveAway.Code())
	assert.Equal(5, KindCopyAway.Code())
	assert.Equal(6, KindMoveHere.Code())
	assert.Equal(7, KindCopyHere.Code())
	assert.Equal(8, KindMulticopy.Code())
}
