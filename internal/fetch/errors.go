package fetch

import (
	"errors"
	"fmt"
)

// ErrTransient marks timeouts, 429s and 5xx responses that survived the
// bounded retry loop. A ladder stage hitting this aborts instead of relaxing
// further.
var ErrTransient = errors.New("transient fetch error")

// ErrChallenge marks a response matching known challenge/verification
// signatures. Not retried within the same call.
var ErrChallenge = errors.New("challenge detected")

// TransientError wraps an upstream failure that retry could not clear.
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient fetch error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient fetch error (status %d)", e.StatusCode)
}

func (e *TransientError) Unwrap() error { return ErrTransient }

// ChallengeError reports a blocked/challenge page, with pointers to the debug
// artifacts captured for diagnostics.
type ChallengeError struct {
	Detail     string
	RequestURL string
	Artifacts  []string
}

func (e *ChallengeError) Error() string {
	return fmt.Sprintf("challenge detected (%s) at %s", e.Detail, e.RequestURL)
}

func (e *ChallengeError) Unwrap() error { return ErrChallenge }
