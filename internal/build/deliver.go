package build

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Mode is how the timetables of a build reach the caller.
type Mode string

const (
	ModeDirectStream  Mode = "direct-stream"
	ModeObjectStorage Mode = "object-storage"
)

// Result is a finished conversion waiting for delivery.
type Result struct {
	ID          ID
	OutputDir   string
	ArchivePath string
	Summary     Summary
}

// Outcome is a delivered build.
type Outcome struct {
	ID             ID
	Mode           Mode
	TimetableCount int
	Agencies       string
	DownloadURL    string // object storage only
	PreviewURL     string // object storage only
	BytesSent      int64  // direct stream only
}

// CompletedEvent returns the terminal event of a successful build.
func (o *Outcome) CompletedEvent() Event {
	return Event{
		Status:      "Timetable upload completed",
		DownloadURL: o.DownloadURL,
		PreviewURL:  o.PreviewURL,
	}
}

// Deliverer hands a finished conversion to the caller.
type Deliverer interface {
	Mode() Mode
	Deliver(ctx context.Context, res *Result, listener Listener) (*Outcome, error)
}

// StreamDeliverer writes the timetable archive as the HTTP response.
type StreamDeliverer struct {
	W http.ResponseWriter
}

func (d *StreamDeliverer) Mode() Mode { return ModeDirectStream }

// Deliver writes the archive to d.W. An error returned after the response
// headers were written is committed and the response can only be aborted.
func (d *StreamDeliverer) Deliver(ctx context.Context, res *Result, _ Listener) (*Outcome, error) {
	f, err := os.Open(res.ArchivePath)
	if err != nil {
		return nil, newError(KindStream, msgUnableToProcess, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, newError(KindStream, msgUnableToProcess, err)
	}

	h := d.W.Header()
	h.Set("Content-Type", "application/zip")
	h.Set("Content-Disposition", `attachment; filename="timetables.zip"`)
	h.Set("Content-Length", strconv.FormatInt(fi.Size(), 10))
	d.W.WriteHeader(http.StatusOK)

	n, err := io.Copy(d.W, contextReader{ctx: ctx, r: f})
	if err == nil && n != fi.Size() {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		e := newError(KindStream, "Unable to send timetables", err)
		e.committed = true
		return nil, e
	}
	return &Outcome{
		ID:             res.ID,
		Mode:           ModeDirectStream,
		TimetableCount: res.Summary.TimetableCount(),
		Agencies:       res.Summary.Agencies(),
		BytesSent:      n,
	}, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (r contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// PublishParams describes a directory to mirror into object storage.
type PublishParams struct {
	Dir    string
	Prefix string
	// Progress is called with the bytes uploaded so far and in total.
	Progress func(done, total int64)
}

type PublishResult struct {
	Uploaded int
	Deleted  int
}

// Publisher mirrors a local directory under a key prefix.
type Publisher interface {
	Publish(ctx context.Context, params *PublishParams) (*PublishResult, error)
}

// StorageDeliverer uploads the output tree and returns public URLs.
type StorageDeliverer struct {
	Publisher Publisher
	PublicURL string // base URL of the published keys
}

func (d *StorageDeliverer) Mode() Mode { return ModeObjectStorage }

func (d *StorageDeliverer) Deliver(ctx context.Context, res *Result, listener Listener) (*Outcome, error) {
	if listener == nil {
		listener = NopListener{}
	}
	prefix := res.ID.String()
	_, err := d.Publisher.Publish(ctx, &PublishParams{
		Dir:    res.OutputDir,
		Prefix: prefix,
		Progress: func(done, total int64) {
			listener.OnEvent(Event{Status: uploadProgress(done, total), Overwrite: true})
		},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, AsError(ctxErr)
		}
		return nil, newError(KindUploadFailure, "Unable to upload timetables", err)
	}

	downloadURL, err := resolveURL(d.PublicURL, prefix+"/timetables.zip")
	if err != nil {
		return nil, newError(KindUploadFailure, "Unable to upload timetables", err)
	}
	previewURL, err := resolveURL(d.PublicURL, prefix+"/index.html")
	if err != nil {
		return nil, newError(KindUploadFailure, "Unable to upload timetables", err)
	}
	return &Outcome{
		ID:             res.ID,
		Mode:           ModeObjectStorage,
		TimetableCount: res.Summary.TimetableCount(),
		Agencies:       res.Summary.Agencies(),
		DownloadURL:    downloadURL,
		PreviewURL:     previewURL,
	}, nil
}

// uploadProgress formats the upload progress line with one decimal at most.
func uploadProgress(done, total int64) string {
	if done <= 0 || total <= 0 {
		return "Uploading timetables"
	}
	pct := math.Round(float64(done)/float64(total)*1000) / 10
	return fmt.Sprintf("Uploading timetables [%s%%]", strconv.FormatFloat(pct, 'f', -1, 64))
}

func resolveURL(base, key string) (string, error) {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("build.resolveURL: %w", err)
	}
	k, err := url.Parse(key)
	if err != nil {
		return "", fmt.Errorf("build.resolveURL: %w", err)
	}
	return b.ResolveReference(k).String(), nil
}
