package build

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ID identifies one build. It names the workspace, the generator's
// agency key and the object storage key prefix.
type ID = uuid.UUID

// NewID returns a fresh random build ID.
func NewID() ID {
	return uuid.New()
}

// ParseID parses a client-supplied build ID.
func ParseID(s string) (ID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, newError(KindInvalidInput, "Invalid Build ID", err)
	}
	return id, nil
}

// Upload is a GTFS archive sent in the request body.
type Upload struct {
	Name string
	Data io.Reader
	Size int64 // -1 if unknown
}

// Request is a normalized build request.
// Exactly one of URL and Upload is set.
type Request struct {
	ID       ID
	URL      string
	Upload   *Upload
	Options  Options
	Template string
}

// Source returns a short description of where the feed comes from.
func (r *Request) Source() string {
	if r.Upload != nil {
		return "upload:" + r.Upload.Name
	}
	return r.URL
}

var (
	urlSchemeRegexp    = regexp.MustCompile(`(?i)^(f|ht)tps?://`)
	urlExtensionRegexp = regexp.MustCompile(`(?i)\.zip`)
)

// ValidateURL checks that s looks like a downloadable GTFS zip URL.
func ValidateURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return newError(KindInvalidInput, "Missing URL", nil)
	}
	if !urlSchemeRegexp.MatchString(s) {
		return &Error{Kind: KindInvalidInput, Message: "Invalid URL", URL: s}
	}
	if !urlExtensionRegexp.MatchString(s) {
		return &Error{Kind: KindInvalidInput, Message: "Invalid extension, url should end with .zip", URL: s}
	}
	return nil
}

// UploadTooLargeError returns the error for an upload above limit bytes.
func UploadTooLargeError(limit int64) *Error {
	return newError(
		KindFeedTooLarge,
		fmt.Sprintf("File is too large. (Maximum file size is %s). Try loading via URL instead of file upload, or use GTFS-to-HTML library from the command line.", formatMegabytes(limit)),
		nil,
	)
}

// NewURLRequest validates the URL request fields and returns a request
// with a fresh ID and options merged over the defaults.
func NewURLRequest(rawURL string, options Options, template string) (*Request, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}
	merged, err := PrepareOptions(options)
	if err != nil {
		return nil, err
	}
	return &Request{ID: NewID(), URL: strings.TrimSpace(rawURL), Options: merged, Template: template}, nil
}

// NewUploadRequest validates the upload request fields and returns a request
// with a fresh ID and options merged over the defaults.
// Uploads above maxSize are rejected before anything is read.
func NewUploadRequest(upload *Upload, maxSize int64, options Options, template string) (*Request, error) {
	if upload == nil || upload.Data == nil {
		return nil, newError(KindInvalidInput, "No files received", nil)
	}
	if maxSize > 0 && upload.Size > maxSize {
		return nil, UploadTooLargeError(maxSize)
	}
	merged, err := PrepareOptions(options)
	if err != nil {
		return nil, err
	}
	upload.Name = strings.ReplaceAll(upload.Name, " ", "_")
	return &Request{ID: NewID(), Upload: upload, Options: merged, Template: template}, nil
}

// formatMegabytes formats n for messages, in binary or decimal megabytes
// depending on which one divides it.
func formatMegabytes(n int64) string {
	const mib, mb = 1 << 20, 1_000_000
	switch {
	case n%mib == 0:
		return fmt.Sprintf("%dMB", n/mib)
	case n%mb == 0:
		return fmt.Sprintf("%dMB", n/mb)
	default:
		return fmt.Sprintf("%.1fMB", float64(n)/mib)
	}
}
