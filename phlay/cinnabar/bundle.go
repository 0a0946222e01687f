// Package cinnabar derives mercurial changeset hashes for git commits that
// lack them, by exporting a bundle around the missing range and parsing its
// chunk stream into a parent -> child hash mapping.
package cinnabar

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/adisho1992/phlay/phlay/usererr"
)

// bundle v1, uncompressed
const bundleMagic = "HG10UN"

// chunkHeaderSize covers the length field plus the four 20-byte hash
// fields. A chunk length at or below it terminates the stream; a chunk
// with an exactly empty payload is indistinguishable from the terminator.
const chunkHeaderSize = 84

const hashLen = 20

// ParseBundle reads an uncompressed v1 bundle stream and returns the
// parent-changeset -> changeset mapping of its first changegroup. Payloads
// are skipped; only the hash relationships matter here.
func ParseBundle(r io.Reader) (map[string]string, error) {
	magic := make([]byte, len(bundleMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, usererr.Errorf("malformed bundle: missing magic header: %v", err)
	}
	if string(magic) != bundleMagic {
		return nil, usererr.Errorf("malformed bundle: bad magic %q, want %q", string(magic), bundleMagic)
	}

	mapping := map[string]string{}
	var lenbuf [4]byte
	var fields [hashLen * 4]byte
	for {
		if _, err := io.ReadFull(r, lenbuf[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("error reading bundle chunk length: %v", err)
		}
		length := binary.BigEndian.Uint32(lenbuf[:])
		if length <= chunkHeaderSize {
			break
		}
		if _, err := io.ReadFull(r, fields[:]); err != nil {
			return nil, fmt.Errorf("error reading bundle chunk header: %v", err)
		}
		node := fields[0:hashLen]
		parent1 := fields[hashLen : 2*hashLen]
		parent2 := fields[2*hashLen : 3*hashLen]
		changeset := fields[3*hashLen : 4*hashLen]
		if !allZero(parent2) {
			return nil, usererr.Errorf("bundle chunk %v has two parents, non-linear history is not supported", hex.EncodeToString(node))
		}
		if string(changeset) != string(node) {
			return nil, fmt.Errorf("corrupt bundle: chunk changeset %v does not match node %v, re-export the bundle",
				hex.EncodeToString(changeset), hex.EncodeToString(node))
		}
		payload := int64(length) - chunkHeaderSize
		if _, err := io.CopyN(io.Discard, r, payload); err != nil {
			return nil, fmt.Errorf("error skipping bundle chunk payload: %v", err)
		}
		mapping[hex.EncodeToString(parent1)] = hex.EncodeToString(node)
	}
	return mapping, nil
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
