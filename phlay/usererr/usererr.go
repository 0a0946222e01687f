// Package usererr marks failures caused by the user's input or repo state,
// as opposed to bugs or environment failures. These abort the run before any
// remote mutation and are shown to the user verbatim, no stack, no retry.
package usererr

import (
	"errors"
	"fmt"
)

type Error struct {
	Msg string
}

func (e *Error) Error() string {
	return e.Msg
}

func New(msg string) error {
	return &Error{Msg: msg}
}

func Errorf(format string, args ...interface{}) error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// Is reports whether err is a user error anywhere in its chain.
func Is(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
