package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// StructuralError reports malformed or inconsistent persisted data.
// It is fatal to the running operation.
type StructuralError struct {
	Path   string
	Reason string
	Err    error
}

func (e *StructuralError) Error() string {
	msg := e.Reason
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", e.Path, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *StructuralError) Unwrap() error { return e.Err }

// NewStructuralError builds a StructuralError.
func NewStructuralError(path, reason string, err error) *StructuralError {
	return &StructuralError{Path: path, Reason: reason, Err: err}
}

// TransportError reports a failed HTTP exchange with an external source.
type TransportError struct {
	URL        string
	StatusCode int // 0 for network failures
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("request %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("request %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RateLimited reports whether the source answered 429.
func (e *TransportError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// DataQualityError reports a candidate or entry that could not be resolved.
// The item is skipped; the run continues.
type DataQualityError struct {
	Address string
	Reason  string
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("%s: %s", e.Address, e.Reason)
}

// IsStructural reports whether err wraps a StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// IsTransport reports whether err wraps a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsDataQuality reports whether err wraps a DataQualityError.
func IsDataQuality(err error) bool {
	var de *DataQualityError
	return errors.As(err, &de)
}
