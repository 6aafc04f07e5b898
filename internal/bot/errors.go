package bot

import "fmt"

// ErrorKind classifies handler failures. Every kind is turned into a reply at
// the dispatcher boundary; none reaches the update loop.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindAuthorization
	KindUpstream
	KindTransport
	KindPersistence
	KindUnexpected
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindUpstream:
		return "upstream"
	case KindTransport:
		return "transport"
	case KindPersistence:
		return "persistence"
	default:
		return "unexpected"
	}
}

// Error carries the user-facing reply for a failed handler and the cause, if any.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrUpstream      = &Error{Kind: KindUpstream}
	ErrTransport     = &Error{Kind: KindTransport}
	ErrPersistence   = &Error{Kind: KindPersistence}
	ErrUnexpected    = &Error{Kind: KindUnexpected}
)

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func authorizationError(msg string) *Error {
	return &Error{Kind: KindAuthorization, Message: msg}
}

func upstreamError(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

func transportError(msg string, err error) *Error {
	return &Error{Kind: KindTransport, Message: msg, Err: err}
}

func persistenceError(msg string, err error) *Error {
	return &Error{Kind: KindPersistence, Message: msg, Err: err}
}

func unexpectedError(msg string, err error) *Error {
	return &Error{Kind: KindUnexpected, Message: msg, Err: err}
}
