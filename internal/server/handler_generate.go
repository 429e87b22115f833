package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/k11v/gtfshtml/internal/build"
)

// multipartOverhead is allowed on top of the upload for the other form
// fields and part headers.
const multipartOverhead = 1 << 20

// maxOptionsSize bounds the options form field.
const maxOptionsSize = 1 << 20

type generateURLRequest struct {
	URL      string          `json:"url"`
	Options  json.RawMessage `json:"options,omitempty" swaggertype:"object"`
	Template string          `json:"template,omitempty"`
}

type generateResponse struct {
	Success        bool     `json:"success"`
	Status         string   `json:"status"`
	BuildID        build.ID `json:"build_id"`
	DownloadURL    string   `json:"html_download_url"`
	PreviewURL     string   `json:"html_preview_url"`
	TimetableCount int      `json:"timetable_count"`
}

// GenerateFromURL builds timetables from a GTFS archive URL.
//
//	@Summary		Generate timetables from a GTFS URL
//	@Description	Streams timetables.zip, or returns the published URLs in object storage mode.
//	@Tags			generate
//	@Accept			json
//	@Produce		application/zip,json
//	@Param			request	body		generateURLRequest	true	"Feed URL and options"
//	@Success		200		{object}	generateResponse
//	@Failure		400		{object}	errorResponse
//	@Router			/api/generate/url [post]
func (h *handler) GenerateFromURL(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeURLRequest(w, r, nil)
	if err != nil {
		h.serveBuildError(w, r, err)
		return
	}
	h.runBuild(w, r, req)
}

// createTimetablesOptions are laid over the defaults by CreateTimetables.
var createTimetablesOptions = build.Options{
	"linkStopUrls":            true,
	"menuType":                "jump",
	"noServiceSymbol":         "-",
	"showArrivalOnDifference": 0.2,
	"showMap":                 false,
}

// CreateTimetables is GenerateFromURL with the defaults of the former API.
//
//	@Summary	Generate timetables from a GTFS URL with the legacy defaults
//	@Tags		generate
//	@Accept		json
//	@Produce	application/zip,json
//	@Param		request	body		generateURLRequest	true	"Feed URL and options"
//	@Success	200		{object}	generateResponse
//	@Failure	400		{object}	errorResponse
//	@Router		/api/create-timetables [post]
func (h *handler) CreateTimetables(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeURLRequest(w, r, createTimetablesOptions)
	if err != nil {
		h.serveBuildError(w, r, err)
		return
	}
	h.runBuild(w, r, req)
}

func (h *handler) decodeURLRequest(w http.ResponseWriter, r *http.Request, base build.Options) (*build.Request, error) {
	var body generateURLRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOptionsSize))
	if err := dec.Decode(&body); err != nil {
		return nil, &build.Error{Kind: build.KindInvalidInput, Message: "Invalid request body", Err: err}
	}
	if dec.More() {
		return nil, &build.Error{Kind: build.KindInvalidInput, Message: "Invalid request body", Err: errors.New("multiple top-level values")}
	}

	options, err := build.DecodeOptions(body.Options)
	if err != nil {
		return nil, err
	}
	if base != nil {
		options = build.MergeOptions(base, options)
	}
	return build.NewURLRequest(body.URL, options, body.Template)
}

// GenerateFromFile builds timetables from an uploaded GTFS archive.
//
//	@Summary		Generate timetables from an uploaded GTFS archive
//	@Description	Streams timetables.zip, or returns the published URLs in object storage mode.
//	@Tags			generate
//	@Accept			multipart/form-data
//	@Produce		application/zip,json
//	@Param			file		formData	file	true	"GTFS zip"
//	@Param			options		formData	string	false	"Options JSON"
//	@Param			template	formData	string	false	"Template name"
//	@Success		200			{object}	generateResponse
//	@Failure		400			{object}	errorResponse
//	@Router			/api/generate/file [post]
func (h *handler) GenerateFromFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)

	// Content-Length is a cheap early reject when the client sends it.
	if r.ContentLength > h.maxUploadSize+multipartOverhead {
		h.serveBuildError(w, r, build.UploadTooLargeError(h.maxUploadSize))
		return
	}

	req, err := h.readUpload(r)
	if err != nil {
		h.serveBuildError(w, r, err)
		return
	}
	h.runBuild(w, r, req)
}

// readUpload reads the upload form. The file is held in memory; it is
// bounded by maxUploadSize.
func (h *handler) readUpload(r *http.Request) (*build.Request, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, &build.Error{Kind: build.KindInvalidInput, Message: "No files received", Err: err}
	}

	var (
		upload   *build.Upload
		options  build.Options
		template string
	)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, uploadReadError(err, h.maxUploadSize)
		}

		switch formName := part.FormName(); formName {
		// Form value file.
		case "file":
			if part.FileName() == "" {
				continue
			}
			data, err := io.ReadAll(io.LimitReader(part, h.maxUploadSize+1))
			if err != nil {
				return nil, uploadReadError(err, h.maxUploadSize)
			}
			upload = &build.Upload{
				Name: part.FileName(),
				Data: bytes.NewReader(data),
				Size: int64(len(data)),
			}
		// Form value options.
		case "options":
			b, err := io.ReadAll(io.LimitReader(part, maxOptionsSize))
			if err != nil {
				return nil, uploadReadError(err, h.maxUploadSize)
			}
			if options, err = build.ParseOptions(string(b)); err != nil {
				return nil, err
			}
		// Form value template.
		case "template":
			b, err := io.ReadAll(io.LimitReader(part, 256))
			if err != nil {
				return nil, uploadReadError(err, h.maxUploadSize)
			}
			template = strings.TrimSpace(string(b))
		}
	}

	return build.NewUploadRequest(upload, h.maxUploadSize, options, template)
}

func uploadReadError(err error, limit int64) error {
	if maxErr := (*http.MaxBytesError)(nil); errors.As(err, &maxErr) {
		return build.UploadTooLargeError(limit)
	}
	return &build.Error{Kind: build.KindInvalidInput, Message: "No files received", Err: fmt.Errorf("read form: %w", err)}
}

// runBuild runs req and delivers the result the way h.mode says.
func (h *handler) runBuild(w http.ResponseWriter, r *http.Request, req *build.Request) {
	var deliverer build.Deliverer
	switch h.mode {
	case build.ModeObjectStorage:
		deliverer = &build.StorageDeliverer{Publisher: h.publisher, PublicURL: h.publicURL}
	default:
		deliverer = &build.StreamDeliverer{W: w}
	}

	outcome, err := h.pipeline.Run(r.Context(), req, nil, deliverer)
	if err != nil {
		if e := build.AsError(err); e.Committed() {
			// The status line is gone; the client sees a truncated body.
			panic(http.ErrAbortHandler)
		}
		h.serveBuildError(w, r, err)
		return
	}

	if h.mode == build.ModeObjectStorage {
		completed := outcome.CompletedEvent()
		h.serveJSON(w, http.StatusOK, generateResponse{
			Success:        true,
			Status:         completed.Status,
			BuildID:        outcome.ID,
			DownloadURL:    outcome.DownloadURL,
			PreviewURL:     outcome.PreviewURL,
			TimetableCount: outcome.TimetableCount,
		})
	}
}
