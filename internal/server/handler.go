package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/k11v/gtfshtml/internal/build"
	_ "github.com/k11v/gtfshtml/internal/server/docs"
)

// RecordStore reads tracked builds.
type RecordStore interface {
	Get(ctx context.Context, id build.ID) (*build.Record, error)
	List(ctx context.Context, limit int) ([]*build.Record, error)
}

// FeedDirectory looks up public feeds.
type FeedDirectory interface {
	Locations(ctx context.Context) (json.RawMessage, error)
	Feeds(ctx context.Context, location string, limit int) (json.RawMessage, error)
	FeedVersions(ctx context.Context, feed string) (json.RawMessage, error)
}

// Deps are the collaborators of the handlers.
type Deps struct {
	Pipeline  *build.Pipeline // required
	Mode      build.Mode      // default: build.ModeDirectStream
	Publisher build.Publisher // required in object storage mode
	PublicURL string          // base URL of published builds
	Records   RecordStore     // optional
	Feeds     FeedDirectory   // optional
	Metrics   http.Handler    // optional
}

type handler struct {
	router *chi.Mux
	log    zerolog.Logger

	pipeline      *build.Pipeline
	mode          build.Mode
	publisher     build.Publisher
	publicURL     string
	records       RecordStore
	feeds         FeedDirectory
	templateDir   string
	configDir     string
	maxUploadSize int64

	upgrader websocket.Upgrader
	page     []byte
}

func newHandler(cfg *Config, log zerolog.Logger, deps *Deps) *handler {
	h := &handler{
		router:        chi.NewRouter(),
		log:           log,
		pipeline:      deps.Pipeline,
		mode:          deps.Mode,
		publisher:     deps.Publisher,
		publicURL:     deps.PublicURL,
		records:       deps.Records,
		feeds:         deps.Feeds,
		templateDir:   cfg.TemplateDir,
		configDir:     cfg.ConfigDir,
		maxUploadSize: cfg.maxUploadSize(),
	}
	if h.mode == "" {
		h.mode = build.ModeDirectStream
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(cfg.AllowedOrigins),
	}

	var err error
	h.page, err = executePage(&pageParams{
		Mode:          h.mode,
		MaxUploadSize: h.maxUploadSize,
	})
	if err != nil {
		panic(err)
	}

	r := h.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"Content-Disposition"},
			MaxAge:         300,
		}))
	}

	r.Get("/", h.Page)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(staticFS)))
	r.Get("/health", h.GetHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	if cfg.Swagger {
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	}
	if h.mode == build.ModeObjectStorage {
		r.Get("/ws", h.Status)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/generate/url", h.GenerateFromURL)
		r.Post("/generate/file", h.GenerateFromFile)
		r.Post("/create-timetables", h.CreateTimetables)

		r.Get("/locations", h.GetLocations)
		r.Get("/feeds", h.GetFeeds)
		r.Get("/feed-versions", h.GetFeedVersions)

		r.Get("/configs", h.ListConfigs)
		r.Get("/configs/{name}", h.GetConfig)
		r.Get("/templates", h.ListTemplates)

		r.Get("/builds", h.ListBuilds)
		r.Get("/builds/{id}", h.GetBuild)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.serveJSON(w, http.StatusNotFound, errorResponse{Error: "Not found"})
	})

	return h
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// accessLog logs every request once it has been served.
func (h *handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			h.log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request served")
		}()
		next.ServeHTTP(ww, r)
	})
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil // same origin only
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}

// GetHealth reports that the server is up.
//
//	@Summary	Health check
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	healthResponse
//	@Router		/health [get]
func (h *handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.serveJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Success bool   `json:"success"`
}

func (h *handler) serveJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug().Err(err).Msg("didn't write response")
	}
}

// serveRawJSON writes b, which must already be JSON.
func (h *handler) serveRawJSON(w http.ResponseWriter, statusCode int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(b)
}

// serveBuildError writes the user-facing message of err with status 400.
func (h *handler) serveBuildError(w http.ResponseWriter, r *http.Request, err error) {
	e := build.AsError(err)
	h.log.Warn().
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("kind", string(e.Kind)).
		Err(e).
		Msg("client error")
	h.serveJSON(w, http.StatusBadRequest, errorResponse{Error: e.Message})
}

func (h *handler) serveClientError(w http.ResponseWriter, r *http.Request, statusCode int, msg string, err error) {
	h.log.Warn().Str("request_id", middleware.GetReqID(r.Context())).Err(err).Msg("client error")
	h.serveJSON(w, statusCode, errorResponse{Error: msg})
}

func (h *handler) serveServerError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Error().Str("request_id", middleware.GetReqID(r.Context())).Err(err).Msg("server error")
	h.serveJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
}

var errNotConfigured = errors.New("not configured")
