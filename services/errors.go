package services

import (
	"errors"
	"fmt"
)

// Kind classifies an ingest failure.
type Kind string

const (
	KindTransport       Kind = "transport"
	KindSize            Kind = "size"
	KindType            Kind = "type"
	KindContentMismatch Kind = "content_mismatch"
	KindRateLimitCount  Kind = "rate_limit_count"
	KindRateLimitBytes  Kind = "rate_limit_bytes"
	KindStorage         Kind = "storage"
	KindPersistence     Kind = "persistence"
)

// UploadError is returned by every failed ingest. Message is safe to show to the
// uploader for client-fault kinds; Err keeps the underlying cause for logs.
type UploadError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *UploadError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *UploadError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newUploadError(kind Kind, message string, err error) *UploadError {
	return &UploadError{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or "" when err is not an *UploadError.
func KindOf(err error) Kind {
	var ue *UploadError
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return ""
}

// IsClientFault reports whether err was caused by the upload itself rather than the server.
func IsClientFault(err error) bool {
	switch KindOf(err) {
	case KindTransport, KindSize, KindType, KindContentMismatch, KindRateLimitCount, KindRateLimitBytes:
		return true
	}
	return false
}
