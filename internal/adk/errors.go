package adk

import (
	"errors"
	"fmt"
)

// ErrNoActiveSession is returned by data operations invoked before a session
// was created, or after it was ended.
var ErrNoActiveSession = errors.New("no active session, start a session first")

// maxErrorBody bounds how much of a failed response body is kept in a RemoteError.
const maxErrorBody = 64 * 1024

// RemoteError is returned when the agent service answers with a non-200 status.
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// TransportError wraps a failure to reach the agent service at all
// (connection refused, timeout, cancelled context, undecodable body).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AsRemoteError reports whether err is, or wraps, a *RemoteError.
func AsRemoteError(err error) (*RemoteError, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsTransport reports whether err is, or wraps, a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
