package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/scydb-api/internal/apperr"
	"github.com/iliyamo/scydb-api/internal/middleware"
	"github.com/iliyamo/scydb-api/internal/model"
	"github.com/iliyamo/scydb-api/internal/policy"
	"github.com/iliyamo/scydb-api/internal/query"
	"github.com/iliyamo/scydb-api/internal/queue"
	"github.com/iliyamo/scydb-api/internal/repository"
)

const (
	msgNoGenre        = "No genre found with that ID"
	msgDuplicateGenre = "Genre with this name already exists"

	maxBulkGenres = 50
)

// GenreHandler serves /genres.
type GenreHandler struct {
	Genres   GenreStore
	Events   queue.Publisher
	MaxLimit int
}

func NewGenreHandler(genres GenreStore, events queue.Publisher, maxLimit int) *GenreHandler {
	if events == nil {
		events = queue.Nop{}
	}
	return &GenreHandler{Genres: genres, Events: events, MaxLimit: maxLimit}
}

type genreReq struct {
	Name        string `json:"name" validate:"required,min=2,max=50"`
	Description string `json:"description" validate:"max=200"`
	Color       string `json:"color" validate:"omitempty,hexcolor6"`
	IsActive    *bool  `json:"isActive"`
}

type genrePatchReq struct {
	Name        *string `json:"name" validate:"omitempty,min=2,max=50"`
	Description *string `json:"description" validate:"omitempty,max=200"`
	Color       *string `json:"color" validate:"omitempty,hexcolor6"`
	IsActive    *bool   `json:"isActive"`
}

type bulkGenreItem struct {
	ID          uint64 `json:"id"`
	LegacyID    uint64 `json:"_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	IsActive    *bool  `json:"isActive"`
}

type bulkGenreReq struct {
	Genres []bulkGenreItem `json:"genres"`
}

// activeGenre is the public projection of an active genre.
type activeGenre struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

// List runs the query feature builder over genres; each genre carries its
// movieCount.
func (h *GenreHandler) List(c echo.Context) error {
	q, err := query.NewFeatures(query.From("genres"), query.Params(c.QueryParams())).
		WithMaxLimit(h.MaxLimit).
		Filter().Sort().LimitFields().Paginate().
		Query()
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	genres, _, err := h.Genres.List(ctx, q)
	if err != nil {
		return err
	}
	return respondList(c, len(genres), echo.Map{"genres": genres})
}

// Active lists the names, descriptions and colours of active genres sorted
// by name. It is public.
func (h *GenreHandler) Active(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	genres, err := h.Genres.Active(ctx)
	if err != nil {
		return err
	}
	out := make([]activeGenre, 0, len(genres))
	for _, g := range genres {
		out = append(out, activeGenre{Name: g.Name, Description: g.Description, Color: g.Color})
	}
	return respondList(c, len(out), echo.Map{"genres": out})
}

// Stats returns every genre with its movie count plus an activity summary.
func (h *GenreHandler) Stats(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	stats, summary, err := h.Genres.Stats(ctx)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"stats": stats, "summary": summary})
}

func (h *GenreHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id", msgNoGenre)
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	g, err := h.Genres.GetByID(ctx, id)
	if err != nil {
		return notFoundAs(err, msgNoGenre)
	}
	return respond(c, http.StatusOK, echo.Map{"genre": g})
}

// Create adds a genre. Names are unique ignoring case.
func (h *GenreHandler) Create(c echo.Context) error {
	var req genreReq
	if err := bind(c, &req); err != nil {
		return err
	}
	g := model.Genre{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Color:       req.Color,
		IsActive:    req.IsActive == nil || *req.IsActive,
	}
	if len(g.Name) < 2 {
		return apperr.BadRequest("Genre name must be at least 2 characters long")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.Genres.Create(ctx, &g); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return apperr.BadRequest(msgDuplicateGenre)
		}
		return err
	}
	return respond(c, http.StatusCreated, echo.Map{"genre": g})
}

// Update changes a genre. A new name is written into every movie that
// carried the old one, in the same transaction.
func (h *GenreHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id", msgNoGenre)
	if err != nil {
		return err
	}
	var req genrePatchReq
	if err := bind(c, &req); err != nil {
		return err
	}
	p := model.GenrePatch{
		Name:        trimmed(req.Name),
		Description: trimmed(req.Description),
		Color:       req.Color,
		IsActive:    req.IsActive,
	}
	if p.Name != nil && len(*p.Name) < 2 {
		return apperr.BadRequest("Genre name must be at least 2 characters long")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	g, oldName, err := h.Genres.Update(ctx, id, p)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return apperr.BadRequest(msgDuplicateGenre)
		}
		return notFoundAs(err, msgNoGenre)
	}
	if g.Name != oldName {
		h.renamed(c, oldName, g.Name)
	}
	return respond(c, http.StatusOK, echo.Map{"genre": g})
}

// Bulk rewrites up to 50 genres at once. Every item must carry its id and a
// name; renames are propagated to movies.
func (h *GenreHandler) Bulk(c echo.Context) error {
	var req bulkGenreReq
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("Invalid request body")
	}
	items, err := bulkItems(req.Genres)
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	res, renames, err := h.Genres.BulkUpdate(ctx, items)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return apperr.BadRequest(msgDuplicateGenre)
		}
		return err
	}
	for _, r := range renames {
		h.renamed(c, r.From, r.To)
	}
	return respond(c, http.StatusOK, res)
}

// bulkItems validates a bulk payload. A missing isActive means active.
func bulkItems(in []bulkGenreItem) ([]model.GenreBulkItem, error) {
	switch {
	case in == nil:
		return nil, apperr.BadRequest("Genres array is required")
	case len(in) == 0:
		return nil, apperr.BadRequest("At least one genre is required")
	case len(in) > maxBulkGenres:
		return nil, apperr.BadRequest(fmt.Sprintf("Cannot update more than %d genres at once", maxBulkGenres))
	}
	out := make([]model.GenreBulkItem, 0, len(in))
	for i, g := range in {
		id := g.ID
		if id == 0 {
			id = g.LegacyID
		}
		if id == 0 {
			return nil, apperr.BadRequest(fmt.Sprintf("Genre at index %d is missing _id", i))
		}
		name := strings.TrimSpace(g.Name)
		if len(name) < 2 || len(name) > 50 {
			return nil, apperr.BadRequest(fmt.Sprintf("Genre at index %d has invalid name", i))
		}
		if g.Color != "" && !hexColorRe.MatchString(g.Color) {
			return nil, apperr.BadRequest(fmt.Sprintf("Genre at index %d has invalid color", i))
		}
		out = append(out, model.GenreBulkItem{
			ID:          id,
			Name:        name,
			Description: strings.TrimSpace(g.Description),
			Color:       g.Color,
			IsActive:    g.IsActive == nil || *g.IsActive,
		})
	}
	return out, nil
}

// Delete removes a genre no movie uses.
func (h *GenreHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id", msgNoGenre)
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.Genres.Delete(ctx, id, policy.CheckGenreDeletion); err != nil {
		return notFoundAs(err, msgNoGenre)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *GenreHandler) renamed(c echo.Context, from, to string) {
	var uid uint64
	if p, ok := middleware.PrincipalFrom(c); ok {
		uid = p.ID
	}
	emit(c, h.Events, queue.NewEvent(queue.EventGenreRenamed, uid, map[string]string{"from": from, "to": to}))
}
