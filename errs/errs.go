package errs

import (
	"errors"
)

var (
	// ErrUpstreamUnavailable indicates that a remote page answered with a non-200 status.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrMalformedPayload indicates that an encoded payload could not be decoded.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrExtractionFailed indicates that a locker page carried nothing usable.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrNoCandidatesFound indicates that an episode page lists no locker links.
	ErrNoCandidatesFound = errors.New("no candidates found")
	// ErrEmptyCandidateSet indicates that quality selection was given no candidates.
	ErrEmptyCandidateSet = errors.New("empty candidate set")
	// ErrRetryLimitExceeded indicates that every resolution attempt was exhausted.
	ErrRetryLimitExceeded = errors.New("retry limit exceeded")
	// ErrRedirectNotFound indicates that the locker did not answer with a redirect.
	ErrRedirectNotFound = errors.New("redirect not found")
	// ErrInvalidLink indicates a link of the wrong shape.
	ErrInvalidLink = errors.New("invalid link")
	// ErrInvalidRange indicates an episode range that is malformed or out of bounds.
	ErrInvalidRange = errors.New("invalid range")
)

// Retryable reports whether a locker attempt that failed with err may be retried.
// Only extraction and decoding failures qualify; transport and protocol errors do not.
func Retryable(err error) bool {
	return errors.Is(err, ErrExtractionFailed) || errors.Is(err, ErrMalformedPayload)
}
