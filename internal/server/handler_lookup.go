package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/k11v/gtfshtml/internal/assets"
	"github.com/k11v/gtfshtml/internal/build"
)

var (
	queryValidatorOnce sync.Once
	queryValidator     *validator.Validate
)

func validateQuery(v any) error {
	queryValidatorOnce.Do(func() {
		queryValidator = validator.New(validator.WithRequiredStructEnabled())
	})
	return queryValidator.Struct(v)
}

// queryError turns a validation error into "invalid <field> query parameter".
func queryError(err error) string {
	if verrs := (validator.ValidationErrors)(nil); errors.As(err, &verrs) && len(verrs) > 0 {
		field := strings.ToLower(verrs[0].Field())
		if verrs[0].Tag() == "required" {
			return fmt.Sprintf("Missing %s query parameter", field)
		}
		return fmt.Sprintf("Invalid %s query parameter", field)
	}
	return "Invalid query"
}

// GetLocations proxies the feed directory's locations.
//
//	@Summary	List feed locations
//	@Tags		feeds
//	@Produce	json
//	@Success	200	{object}	object
//	@Failure	502	{object}	errorResponse
//	@Router		/api/locations [get]
func (h *handler) GetLocations(w http.ResponseWriter, r *http.Request) {
	if h.feeds == nil {
		h.serveClientError(w, r, http.StatusServiceUnavailable, "Feed directory is not configured", errNotConfigured)
		return
	}
	b, err := h.feeds.Locations(r.Context())
	if err != nil {
		h.serveFeedDirectoryError(w, r, err)
		return
	}
	h.serveRawJSON(w, http.StatusOK, b)
}

// GetFeeds proxies the feed directory's feeds of a location.
//
//	@Summary	List feeds of a location
//	@Tags		feeds
//	@Produce	json
//	@Param		location	query		string	false	"Location ID"
//	@Param		limit		query		int		false	"Page size"
//	@Success	200			{object}	object
//	@Failure	400			{object}	errorResponse
//	@Failure	502			{object}	errorResponse
//	@Router		/api/feeds [get]
func (h *handler) GetFeeds(w http.ResponseWriter, r *http.Request) {
	type query struct {
		Location string
		Limit    int `validate:"omitempty,min=1,max=1000"`
	}

	q := query{Location: r.URL.Query().Get("location")}
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil {
			h.serveClientError(w, r, http.StatusBadRequest, "Invalid limit query parameter", err)
			return
		}
		q.Limit = limit
	}
	if err := validateQuery(&q); err != nil {
		h.serveClientError(w, r, http.StatusBadRequest, queryError(err), err)
		return
	}

	if h.feeds == nil {
		h.serveClientError(w, r, http.StatusServiceUnavailable, "Feed directory is not configured", errNotConfigured)
		return
	}
	b, err := h.feeds.Feeds(r.Context(), q.Location, q.Limit)
	if err != nil {
		h.serveFeedDirectoryError(w, r, err)
		return
	}
	h.serveRawJSON(w, http.StatusOK, b)
}

// GetFeedVersions proxies the feed directory's versions of a feed.
//
//	@Summary	List versions of a feed
//	@Tags		feeds
//	@Produce	json
//	@Param		feed	query		string	true	"Feed ID"
//	@Success	200		{object}	object
//	@Failure	400		{object}	errorResponse
//	@Failure	502		{object}	errorResponse
//	@Router		/api/feed-versions [get]
func (h *handler) GetFeedVersions(w http.ResponseWriter, r *http.Request) {
	type query struct {
		Feed string `validate:"required"`
	}

	q := query{Feed: r.URL.Query().Get("feed")}
	if err := validateQuery(&q); err != nil {
		h.serveClientError(w, r, http.StatusBadRequest, queryError(err), err)
		return
	}

	if h.feeds == nil {
		h.serveClientError(w, r, http.StatusServiceUnavailable, "Feed directory is not configured", errNotConfigured)
		return
	}
	b, err := h.feeds.FeedVersions(r.Context(), q.Feed)
	if err != nil {
		h.serveFeedDirectoryError(w, r, err)
		return
	}
	h.serveRawJSON(w, http.StatusOK, b)
}

func (h *handler) serveFeedDirectoryError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Error().Err(err).Msg("feed directory request failed")
	h.serveJSON(w, http.StatusBadGateway, errorResponse{Error: "Feed directory request failed"})
}

// ListConfigs lists the config documents shipped with the server.
//
//	@Summary	List config documents
//	@Tags		assets
//	@Produce	json
//	@Success	200	{object}	configsResponse
//	@Router		/api/configs [get]
func (h *handler) ListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := assets.ListConfigs(h.configDir)
	if err != nil {
		h.serveServerError(w, r, err)
		return
	}
	h.serveJSON(w, http.StatusOK, configsResponse{Configs: configs})
}

type configsResponse struct {
	Configs []string `json:"configs"`
}

// GetConfig returns a config document as JSON.
//
//	@Summary	Get a config document
//	@Tags		assets
//	@Produce	json
//	@Param		name	path		string	true	"File name"
//	@Success	200		{object}	object
//	@Failure	404		{object}	errorResponse
//	@Router		/api/configs/{name} [get]
func (h *handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	b, err := assets.ReadConfig(h.configDir, name)
	if errors.Is(err, assets.ErrNotFound) {
		h.serveClientError(w, r, http.StatusNotFound, fmt.Sprintf("Config %q not found", name), err)
		return
	} else if err != nil {
		h.serveServerError(w, r, err)
		return
	}
	h.serveRawJSON(w, http.StatusOK, b)
}

// ListTemplates lists the templates a build may name.
//
//	@Summary	List templates
//	@Tags		assets
//	@Produce	json
//	@Success	200	{object}	templatesResponse
//	@Router		/api/templates [get]
func (h *handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := assets.ListTemplates(h.templateDir)
	if err != nil {
		h.serveServerError(w, r, err)
		return
	}
	h.serveJSON(w, http.StatusOK, templatesResponse{Templates: templates})
}

type templatesResponse struct {
	Templates []assets.Template `json:"templates"`
}

// GetBuild returns the tracked record of a build.
//
//	@Summary	Get a build record
//	@Tags		builds
//	@Produce	json
//	@Param		id	path		string	true	"Build ID"
//	@Success	200	{object}	build.Record
//	@Failure	400	{object}	errorResponse
//	@Failure	404	{object}	errorResponse
//	@Router		/api/builds/{id} [get]
func (h *handler) GetBuild(w http.ResponseWriter, r *http.Request) {
	// Path value id.
	id, err := build.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		h.serveBuildError(w, r, err)
		return
	}

	if h.records == nil {
		h.serveClientError(w, r, http.StatusNotFound, "Build not found", errNotConfigured)
		return
	}
	rec, err := h.records.Get(r.Context(), id)
	if errors.Is(err, build.ErrNotFound) {
		h.serveClientError(w, r, http.StatusNotFound, "Build not found", err)
		return
	} else if err != nil {
		h.serveServerError(w, r, err)
		return
	}
	h.serveJSON(w, http.StatusOK, rec)
}

// ListBuilds returns the latest tracked builds.
//
//	@Summary	List build records
//	@Tags		builds
//	@Produce	json
//	@Param		limit	query		int	false	"Page size"	default(20)
//	@Success	200		{object}	buildsResponse
//	@Failure	400		{object}	errorResponse
//	@Router		/api/builds [get]
func (h *handler) ListBuilds(w http.ResponseWriter, r *http.Request) {
	type query struct {
		Limit int `validate:"min=1,max=100"`
	}

	q := query{Limit: 20}
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil {
			h.serveClientError(w, r, http.StatusBadRequest, "Invalid limit query parameter", err)
			return
		}
		q.Limit = limit
	}
	if err := validateQuery(&q); err != nil {
		h.serveClientError(w, r, http.StatusBadRequest, queryError(err), err)
		return
	}

	if h.records == nil {
		h.serveJSON(w, http.StatusOK, buildsResponse{Builds: []*build.Record{}})
		return
	}
	records, err := h.records.List(r.Context(), q.Limit)
	if err != nil {
		h.serveServerError(w, r, err)
		return
	}
	if records == nil {
		records = []*build.Record{}
	}
	h.serveJSON(w, http.StatusOK, buildsResponse{Builds: records})
}

type buildsResponse struct {
	Builds []*build.Record `json:"builds"`
}
