package build

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path"
	"strings"
)

// DefaultMaxFeedSize is the largest GTFS archive a build accepts.
const DefaultMaxFeedSize = 10_000_000

// requiredFeedFiles must be present in a staged archive.
var requiredFeedFiles = []string{"routes.txt", "trips.txt", "stop_times.txt"}

// Stager downloads or writes the GTFS archive of a build into a new workspace.
type Stager struct {
	Client      *http.Client // default: http.DefaultClient
	MaxFeedSize int64        // default: DefaultMaxFeedSize
	TempDir     string       // default: os.TempDir()
}

func (s *Stager) client() *http.Client {
	if s.Client == nil {
		return http.DefaultClient
	}
	return s.Client
}

func (s *Stager) maxFeedSize() int64 {
	if s.MaxFeedSize <= 0 {
		return DefaultMaxFeedSize
	}
	return s.MaxFeedSize
}

// Stage creates the workspace of req and writes its feed to ws.FeedPath.
// On error the workspace is already removed.
func (s *Stager) Stage(ctx context.Context, req *Request) (*Workspace, error) {
	ws, err := newWorkspace(s.TempDir, req.ID)
	if err != nil {
		return nil, fileError(err)
	}
	if err = s.stage(ctx, req, ws); err != nil {
		_ = ws.Cleanup()
		if e := (*Error)(nil); errors.As(err, &e) && e.URL == "" && req.Upload == nil {
			e.URL = req.URL
		}
		return nil, err
	}
	return ws, nil
}

func (s *Stager) stage(ctx context.Context, req *Request, ws *Workspace) error {
	var body io.ReadCloser
	if req.Upload != nil {
		body = io.NopCloser(req.Upload.Data)
	} else {
		var err error
		body, err = s.download(ctx, req.URL)
		if err != nil {
			return err
		}
	}
	defer body.Close()

	n, err := s.write(ws.FeedPath, body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return AsError(ctxErr)
		}
		return err
	}
	ws.FeedSize = n

	return checkFeed(ws.FeedPath)
}

func (s *Stager) download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{Kind: KindInvalidInput, Message: "Invalid URL", URL: rawURL, Err: err}
	}
	resp, err := s.client().Do(httpReq)
	if err != nil {
		e := downloadError(ctx, err)
		e.URL = rawURL
		return nil, e
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &Error{
			Kind:       KindDownloadFailed,
			Message:    statusMessage(resp.StatusCode),
			URL:        rawURL,
			StatusCode: resp.StatusCode,
		}
	}
	if resp.ContentLength > s.maxFeedSize() {
		_ = resp.Body.Close()
		return nil, &Error{Kind: KindFeedTooLarge, Message: feedTooLargeMessage(s.maxFeedSize()), URL: rawURL}
	}
	return resp.Body, nil
}

// write copies at most the size ceiling from r into a new file at name.
func (s *Stager) write(name string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, fileError(err)
	}
	defer f.Close()

	limit := s.maxFeedSize()
	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) {
			return n, newError(KindDownloadFailed, "Unable to download GTFS file. The connection was interrupted.", err)
		}
		if _, ok := err.(*os.PathError); ok {
			return n, fileError(err)
		}
		return n, newError(KindFetchFailure, "Unable to read GTFS file", err)
	}
	if n > limit {
		return n, newError(KindFeedTooLarge, feedTooLargeMessage(limit), nil)
	}
	if err = f.Close(); err != nil {
		return n, fileError(err)
	}
	return n, nil
}

// checkFeed reports whether name is a zip archive with the files a GTFS
// feed can't do without. Files may be nested in one directory.
func checkFeed(name string) error {
	r, err := zip.OpenReader(name)
	if err != nil {
		return newError(KindInvalidArchive, msgInvalidZip, err)
	}
	defer r.Close()

	found := make(map[string]bool, len(requiredFeedFiles))
	for _, f := range r.File {
		found[path.Base(f.Name)] = true
	}
	var missing []string
	for _, name := range requiredFeedFiles {
		if !found[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return newError(KindInvalidArchive, msgInvalidGTFS, fmt.Errorf("missing %s", strings.Join(missing, ", ")))
	}
	return nil
}

func statusMessage(code int) string {
	switch {
	case code == http.StatusNotFound:
		return "GTFS file not found at the provided URL. Please verify the URL is correct and the file exists."
	case code == http.StatusForbidden:
		return "Access denied to the GTFS file. The URL may require authentication or have restricted access."
	case code >= 500:
		return "Server error when downloading GTFS file. The server may be temporarily unavailable."
	default:
		return fmt.Sprintf("Unable to download GTFS file. Server returned status %d.", code)
	}
}

func downloadError(ctx context.Context, err error) *Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newError(KindTimeout, msgTimeout, err)
	}
	if dnsErr := (*net.DNSError)(nil); errors.As(err, &dnsErr) {
		return newError(KindDownloadFailed, "Unable to reach the server. Please check the URL and your internet connection.", err)
	}
	if netErr := net.Error(nil); errors.As(err, &netErr) && netErr.Timeout() {
		return newError(KindDownloadFailed, msgTimeout, err)
	}
	if opErr := (*net.OpError)(nil); errors.As(err, &opErr) {
		return newError(KindDownloadFailed, "Unable to reach the server. Please check the URL and your internet connection.", err)
	}
	return newError(KindFetchFailure, "Unable to fetch GTFS", err)
}

func feedTooLargeMessage(limit int64) string {
	return fmt.Sprintf(
		"GTFS Zip file too large (maximum size is %s). Try running gtfs-to-html on your local machine for processing large GTFS files. Learn more at https://github.com/BlinkTagInc/gtfs-to-html",
		formatMegabytes(limit),
	)
}
