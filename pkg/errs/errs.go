// Package errs wraps cockroachdb/errors so call sites share one error vocabulary.
package errs

import (
	"fmt"
	"strings"

	cr "github.com/cockroachdb/errors"
)

// ErrNotFound is returned by stores when a lookup matches nothing.
var ErrNotFound = cr.New("not found")

func New(msg string) error {
	return cr.New(msg)
}

func Newf(format string, args ...interface{}) error {
	return cr.Newf(format, args...)
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return cr.Wrap(err, msg)
}

func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return cr.Wrapf(err, format, args...)
}

// Mark tags err so that errors.Is(err, markErr) holds without changing its message.
func Mark(err error, markErr error) error {
	if err == nil {
		return markErr
	}
	return cr.Mark(err, markErr)
}

func Is(err, reference error) bool {
	return cr.Is(err, reference)
}

func ExtractStackLines(err error, maxLines int) []string {
	if err == nil {
		return nil
	}
	s := fmt.Sprintf("%+v", err)
	lines := strings.Split(s, "\n")
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return lines
}
