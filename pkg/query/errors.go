package query

import (
	"errors"
	"fmt"
)

// Kind is the stable category of a failed query.
type Kind string

const (
	// KindRequest means the outbound request could not be built.
	KindRequest Kind = "request"
	// KindTransport covers connection, timeout and body read failures.
	KindTransport Kind = "transport"
	// KindEncoding means the response body was not valid UTF-8.
	KindEncoding Kind = "encoding"
	// KindDecode means the response body was not valid JSON.
	KindDecode Kind = "decode"
	// KindNoAnswer means the document held no reply text.
	KindNoAnswer Kind = "no_answer"
)

// Error is a categorized query failure. Callers that only need "no answer"
// can treat every *Error the same way.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return string(e.Kind)
	}

	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

func newError(kind Kind, err error) error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the category of err, or "" when err is nil or uncategorized.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Kind
	}

	return ""
}
