package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/scydb-api/internal/apperr"
	"github.com/iliyamo/scydb-api/internal/model"
	"github.com/iliyamo/scydb-api/internal/query"
	"github.com/iliyamo/scydb-api/internal/repository"
)

const (
	msgNoMovie        = "No movie found with that ID"
	msgDuplicateTitle = "Movie with this title already exists"

	// defaultMovieLimit is the page size of the movie listing.
	defaultMovieLimit = 20
)

// MovieHandler serves the movie catalog.
type MovieHandler struct {
	Movies   MovieStore
	Reviews  ReviewStore
	MaxLimit int
}

func NewMovieHandler(movies MovieStore, reviews ReviewStore, maxLimit int) *MovieHandler {
	return &MovieHandler{Movies: movies, Reviews: reviews, MaxLimit: maxLimit}
}

type movieReq struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Year        int      `json:"year" validate:"required,min=1870,max=2200"`
	Duration    int      `json:"duration" validate:"required,min=1"`
	Genre       []string `json:"genre" validate:"required,min=1,dive,required"`
	Director    string   `json:"director" validate:"required"`
	Cast        []string `json:"cast" validate:"required,min=1,dive,required"`
	Description string   `json:"description" validate:"required"`
	Poster      string   `json:"poster" validate:"required"`
	Backdrop    string   `json:"backdrop" validate:"required"`
	Trailer     string   `json:"trailer" validate:"required"`
}

type moviePatchReq struct {
	Title       *string  `json:"title" validate:"omitempty,min=1,max=200"`
	Year        *int     `json:"year" validate:"omitempty,min=1870,max=2200"`
	Duration    *int     `json:"duration" validate:"omitempty,min=1"`
	Genre       []string `json:"genre" validate:"omitempty,min=1,dive,required"`
	Director    *string  `json:"director" validate:"omitempty,min=1"`
	Cast        []string `json:"cast" validate:"omitempty,min=1,dive,required"`
	Description *string  `json:"description" validate:"omitempty,min=1"`
	Poster      *string  `json:"poster" validate:"omitempty,min=1"`
	Backdrop    *string  `json:"backdrop" validate:"omitempty,min=1"`
	Trailer     *string  `json:"trailer" validate:"omitempty,min=1"`
}

// movieFilter decodes the listing query string. Unparseable years and
// unknown duration buckets are ignored.
func movieFilter(params map[string]string, maxLimit int) model.MovieFilter {
	f := model.MovieFilter{
		Search:   strings.TrimSpace(params["search"]),
		Genre:    strings.TrimSpace(params["genre"]),
		Director: strings.TrimSpace(params["director"]),
		Sort:     strings.TrimSpace(params[query.ParamSort]),
	}
	if raw := params["cast"]; raw != "" {
		for _, a := range strings.Split(raw, ",") {
			if a = strings.TrimSpace(a); a != "" {
				f.Cast = append(f.Cast, a)
			}
		}
	}
	if n, err := strconv.Atoi(params["yearFrom"]); err == nil {
		f.YearFrom = &n
	}
	if n, err := strconv.Atoi(params["yearTo"]); err == nil {
		f.YearTo = &n
	}
	switch d := params["duration"]; d {
	case model.DurationShort, model.DurationMedium, model.DurationLong, model.DurationEpic:
		f.Duration = d
	}
	f.Page, f.Limit = query.ParsePage(params, defaultMovieLimit, maxLimit)
	return f
}

// List searches the catalog. See movieFilter for the accepted parameters.
func (h *MovieHandler) List(c echo.Context) error {
	f := movieFilter(query.Params(c.QueryParams()), h.MaxLimit)

	ctx, cancel := requestCtx(c)
	defer cancel()

	movies, total, err := h.Movies.Search(ctx, f)
	if err != nil {
		return err
	}
	totalPages := int((total + int64(f.Limit) - 1) / int64(f.Limit))
	hasNext := f.Page < totalPages
	hasPrev := f.Page > 1
	return respondList(c, len(movies), echo.Map{
		"movies":       movies,
		"totalResults": total,
		"totalPages":   totalPages,
		"currentPage":  f.Page,
		"hasNextPage":  hasNext,
		"hasPrevPage":  hasPrev,
		"pagination": echo.Map{
			"page":         f.Page,
			"limit":        f.Limit,
			"totalPages":   totalPages,
			"totalResults": total,
			"hasNextPage":  hasNext,
			"hasPrevPage":  hasPrev,
		},
	})
}

// Get returns a movie with its reviews and average rating.
func (h *MovieHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id", msgNoMovie)
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	m, err := h.Movies.GetByID(ctx, id)
	if err != nil {
		return notFoundAs(err, msgNoMovie)
	}
	if m.Reviews, err = h.Reviews.ListByMovie(ctx, id); err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"movie": m})
}

// Create adds a movie. Titles are unique.
func (h *MovieHandler) Create(c echo.Context) error {
	var req movieReq
	if err := bind(c, &req); err != nil {
		return err
	}
	m := model.Movie{
		Title:       strings.TrimSpace(req.Title),
		Year:        req.Year,
		Duration:    req.Duration,
		Genre:       req.Genre,
		Director:    strings.TrimSpace(req.Director),
		Cast:        req.Cast,
		Description: strings.TrimSpace(req.Description),
		Poster:      req.Poster,
		Backdrop:    req.Backdrop,
		Trailer:     req.Trailer,
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.Movies.Create(ctx, &m); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return apperr.BadRequest(msgDuplicateTitle)
		}
		return err
	}
	return respond(c, http.StatusCreated, echo.Map{"movie": m})
}

// Update applies the supplied fields.
func (h *MovieHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id", msgNoMovie)
	if err != nil {
		return err
	}
	var req moviePatchReq
	if err := bind(c, &req); err != nil {
		return err
	}
	p := model.MoviePatch{
		Title:       trimmed(req.Title),
		Year:        req.Year,
		Duration:    req.Duration,
		Genre:       req.Genre,
		Director:    trimmed(req.Director),
		Cast:        req.Cast,
		Description: trimmed(req.Description),
		Poster:      req.Poster,
		Backdrop:    req.Backdrop,
		Trailer:     req.Trailer,
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	m, err := h.Movies.Update(ctx, id, p)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return apperr.BadRequest(msgDuplicateTitle)
		}
		return notFoundAs(err, msgNoMovie)
	}
	return respond(c, http.StatusOK, echo.Map{"movie": m})
}

// Delete removes a movie; its reviews and watch-list entries go with it.
func (h *MovieHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id", msgNoMovie)
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.Movies.Delete(ctx, id); err != nil {
		return notFoundAs(err, msgNoMovie)
	}
	return c.NoContent(http.StatusNoContent)
}

// notFoundAs replaces repository.ErrNotFound with a resource-specific 404.
func notFoundAs(err error, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(msg)
	}
	return err
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
