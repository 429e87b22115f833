package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
)

// Kind classifies a build failure.
type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindDownloadFailed    Kind = "download_failed"
	KindFeedTooLarge      Kind = "feed_too_large"
	KindInvalidArchive    Kind = "invalid_archive"
	KindFetchFailure      Kind = "fetch_failure"
	KindConversionFailure Kind = "conversion_failure"
	KindUploadFailure     Kind = "upload_failure"
	KindStream            Kind = "stream_error"
	KindTimeout           Kind = "timeout"
	KindBusy              Kind = "busy"
)

// Messages shared by several failure sites.
const (
	msgUnableToProcess = "Unable to process GTFS"
	msgInvalidZip      = "The file appears to be corrupted or is not a valid ZIP archive. Please check the file format."
	msgInvalidGTFS     = "The downloaded file is not a valid GTFS file. Please check the file format."
	msgTimeout         = "Request timed out. The server may be slow to respond or the file may be too large."
	msgBusy            = "Server is currently busy processing requests. Please try again in a few minutes."
)

// Error is a build failure.
// Message is the single human-readable line shown to the user.
type Error struct {
	Kind       Kind
	Message    string
	URL        string // source URL, if any
	StatusCode int    // upstream HTTP status, if any
	Err        error  // cause, if any

	committed bool
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.URL != "" {
		b.WriteString(" ")
		b.WriteString(e.URL)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Describe returns Message followed by the source URL when one is known.
func (e *Error) Describe() string {
	if e.URL == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.URL)
}

// Committed reports whether a response had already been partially written
// when the error happened. Only stream errors can be committed.
func (e *Error) Committed() bool { return e.committed }

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// AsError converts err to *Error.
// Context deadline errors become KindTimeout and anything unclassified
// becomes KindConversionFailure with a generic message.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if e := (*Error)(nil); errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, msgTimeout, err)
	}
	return newError(KindConversionFailure, msgUnableToProcess, err)
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	if e := (*Error)(nil); errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// cleanMessage strips the "Error: " prefix the generator puts on its messages.
func cleanMessage(s string) string {
	s = strings.TrimSpace(s)
	for strings.HasPrefix(s, "Error: ") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "Error: "))
	}
	return s
}

// fileError classifies a local file system error.
func fileError(err error) *Error {
	switch {
	case errors.Is(err, syscall.EMFILE), errors.Is(err, syscall.ENFILE):
		return newError(KindBusy, msgBusy, err)
	case errors.Is(err, syscall.ENOSPC):
		return newError(KindConversionFailure, "Server storage is temporarily full. Please try again later.", err)
	case errors.Is(err, os.ErrPermission):
		return newError(KindConversionFailure, "Unable to process the GTFS file due to server configuration.", err)
	default:
		return newError(KindConversionFailure, msgUnableToProcess, err)
	}
}
