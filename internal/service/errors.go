package service

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobNotFailed      = errors.New("only FAILED jobs can be retried")
	ErrProjectBusy       = errors.New("project already has an active job")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNoMediaDownloaded = errors.New("no media files could be downloaded")
)

// GuardrailError rejects a job before any download starts. It is terminal and
// does not consume the retry budget.
type GuardrailError struct {
	Reason string
}

func (e *GuardrailError) Error() string {
	return e.Reason
}

func guardrailf(format string, args ...any) error {
	return &GuardrailError{Reason: fmt.Sprintf(format, args...)}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
