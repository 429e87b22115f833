package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/k11v/gtfshtml/internal/build"
)

//go:embed data
var embedDataFS embed.FS

var (
	templateFS fs.FS
	staticFS   fs.FS
)

func init() {
	var err error
	templateFS, err = fs.Sub(embedDataFS, "data")
	if err != nil {
		panic(err)
	}
	staticFS, err = fs.Sub(embedDataFS, "data/static")
	if err != nil {
		panic(err)
	}
}

type pageParams struct {
	Mode          build.Mode
	MaxUploadSize int64
}

func (p *pageParams) Socket() bool {
	return p.Mode == build.ModeObjectStorage
}

func (p *pageParams) MaxUploadLabel() string {
	return fmt.Sprintf("%dMB", p.MaxUploadSize>>20)
}

func executePage(params *pageParams) ([]byte, error) {
	buf := new(bytes.Buffer)
	tmpl, err := template.ParseFS(templateFS, "*.html.tmpl")
	if err != nil {
		return nil, err
	}
	if err = tmpl.ExecuteTemplate(buf, "index.html.tmpl", params); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Page serves the upload form.
func (h *handler) Page(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.page)
}
