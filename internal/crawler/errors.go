package crawler

import (
	"errors"
	"fmt"
)

// FetchError reports a page that could not be retrieved. StatusCode is zero
// for transport-level failures.
type FetchError struct {
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s", e.URL)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// AsFetchError extracts a *FetchError from err.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// SinkError reports a persistence failure for one destination.
type SinkError struct {
	Sink        string
	Destination string
	Err         error
}

func (e *SinkError) Error() string {
	if e.Destination != "" {
		return fmt.Sprintf("sink %s (%s): %v", e.Sink, e.Destination, e.Err)
	}
	return fmt.Sprintf("sink %s: %v", e.Sink, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }
