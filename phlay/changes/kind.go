package changes

import "fmt"

// Kind is the closed set of per-path change kinds. Values double as the
// review service's numeric change type codes.
type Kind int

const (
	KindAdd Kind = iota + 1
	KindChange
	KindDelete
	KindMoveAway
	KindCopyAway
	KindMoveHere
	KindCopyHere
	KindMulticopy
)

// Code returns the wire code for the kind. The switch is exhaustive on
// purpose: a new kind must be handled everywhere before it compiles past
// tests.
func (k Kind) Code() int {
	switch k {
	case KindAdd, KindChange, KindDelete, KindMoveAway, KindCopyAway,
		KindMoveHere, KindCopyHere, KindMulticopy:
		return int(k)
	}
	panic(fmt.Errorf("unknown change kind %d", int(k)))
}

func (k Kind) String() string {
	switch k {
	case KindAdd:
		return "add"
	case KindChange:
		return "change"
	case KindDelete:
		return "delete"
	case KindMoveAway:
		return "move-away"
	case KindCopyAway:
		return "copy-away"
	case KindMoveHere:
		return "move-here"
	case KindCopyHere:
		return "copy-here"
	case KindMulticopy:
		return "multicopy"
	}
	panic(fmt.Errorf("unknown change kind %d", int(k)))
}

// isAway reports whether the kind marks a rename/copy source.
func (k Kind) isAway() bool {
	return k == KindMoveAway || k == KindCopyAway || k == KindMulticopy
}
