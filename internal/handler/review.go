package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/scydb-api/internal/apperr"
	"github.com/iliyamo/scydb-api/internal/middleware"
	"github.com/iliyamo/scydb-api/internal/model"
	"github.com/iliyamo/scydb-api/internal/observability/metrics"
	"github.com/iliyamo/scydb-api/internal/policy"
	"github.com/iliyamo/scydb-api/internal/query"
	"github.com/iliyamo/scydb-api/internal/queue"
	"github.com/iliyamo/scydb-api/internal/repository"
)

const (
	msgNoReview        = "No review found with that ID"
	msgAlreadyReviewed = "You have already reviewed this movie"
)

// ReviewHandler serves reviews nested under a movie and the admin listing.
type ReviewHandler struct {
	Reviews  ReviewStore
	Movies   MovieStore
	Events   queue.Publisher
	Metrics  *metrics.Metrics
	MaxLimit int
}

func NewReviewHandler(reviews ReviewStore, movies MovieStore, events queue.Publisher,
	m *metrics.Metrics, maxLimit int) *ReviewHandler {
	if events == nil {
		events = queue.Nop{}
	}
	return &ReviewHandler{Reviews: reviews, Movies: movies, Events: events, Metrics: m, MaxLimit: maxLimit}
}

type reviewReq struct {
	Review string `json:"review" validate:"required,max=2000"`
	Rating int    `json:"rating" validate:"required,min=1,max=10"`
}

type reviewPatchReq struct {
	Review *string `json:"review" validate:"omitempty,min=1,max=2000"`
	Rating *int    `json:"rating" validate:"omitempty,min=1,max=10"`
}

// ListByMovie returns the reviews of one movie, newest first, each with the
// author's name and photo.
func (h *ReviewHandler) ListByMovie(c echo.Context) error {
	movieID, err := pathID(c, "movieId", msgNoMovie)
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	reviews, err := h.Reviews.ListByMovie(ctx, movieID)
	if err != nil {
		return err
	}
	return respondList(c, len(reviews), echo.Map{"reviews": reviews})
}

// AdminList runs the query feature builder over every review.
func (h *ReviewHandler) AdminList(c echo.Context) error {
	q, err := query.NewFeatures(query.From("reviews"), query.Params(c.QueryParams())).
		WithMaxLimit(h.MaxLimit).
		Filter().Sort().LimitFields().Paginate().
		Query()
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	reviews, _, err := h.Reviews.List(ctx, q)
	if err != nil {
		return err
	}
	return respondList(c, len(reviews), echo.Map{"reviews": reviews})
}

// Create posts the caller's review of a movie. A second review of the same
// movie by the same user is a conflict.
func (h *ReviewHandler) Create(c echo.Context) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return apperr.Unauthenticated("You must be logged in to review")
	}
	movieID, err := pathID(c, "movieId", msgNoMovie)
	if err != nil {
		return err
	}
	var req reviewReq
	if err := bind(c, &req); err != nil {
		return err
	}
	text := strings.TrimSpace(req.Review)
	if text == "" {
		return apperr.BadRequest("Review cannot be empty")
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	exists, err := h.Movies.Exists(ctx, movieID)
	if err != nil {
		return err
	}
	if !exists {
		return apperr.NotFound(msgNoMovie)
	}
	rv := model.Review{Review: text, Rating: req.Rating, MovieID: movieID, UserID: p.ID}
	if err := h.Reviews.Create(ctx, &rv); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return apperr.Conflict(msgAlreadyReviewed)
		case errors.Is(err, repository.ErrNotFound):
			return apperr.NotFound(msgNoMovie)
		}
		return err
	}
	h.Metrics.ReviewCreated()
	emit(c, h.Events, queue.NewEvent(queue.EventReviewCreated, p.ID, map[string]string{
		"movie_id":  strconv.FormatUint(movieID, 10),
		"review_id": strconv.FormatUint(rv.ID, 10),
		"rating":    strconv.Itoa(rv.Rating),
	}))
	return respond(c, http.StatusCreated, echo.Map{"review": rv})
}

// loadOwned fetches a review of the path movie and checks the caller may
// change it. A review of another movie is reported as missing.
func (h *ReviewHandler) loadOwned(c echo.Context) (model.Review, error) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return model.Review{}, apperr.Unauthenticated(middleware.MsgNotLoggedIn)
	}
	movieID, err := pathID(c, "movieId", msgNoReview)
	if err != nil {
		return model.Review{}, err
	}
	id, err := pathID(c, "id", msgNoReview)
	if err != nil {
		return model.Review{}, err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	rv, err := h.Reviews.GetByID(ctx, id)
	if err != nil {
		return model.Review{}, notFoundAs(err, msgNoReview)
	}
	if rv.MovieID != movieID {
		return model.Review{}, apperr.NotFound(msgNoReview)
	}
	if err := policy.CanModifyReview(p, rv); err != nil {
		return model.Review{}, err
	}
	return rv, nil
}

// Update lets the author or staff change the text and rating.
func (h *ReviewHandler) Update(c echo.Context) error {
	rv, err := h.loadOwned(c)
	if err != nil {
		return err
	}
	var req reviewPatchReq
	if err := bind(c, &req); err != nil {
		return err
	}
	patch := model.ReviewPatch{Review: trimmed(req.Review), Rating: req.Rating}
	if patch.Review != nil && *patch.Review == "" {
		return apperr.BadRequest("Review cannot be empty")
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	updated, err := h.Reviews.Update(ctx, rv.ID, patch)
	if err != nil {
		return notFoundAs(err, msgNoReview)
	}
	return respond(c, http.StatusOK, echo.Map{"review": updated})
}

// Delete lets the author or staff remove a review.
func (h *ReviewHandler) Delete(c echo.Context) error {
	rv, err := h.loadOwned(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.Reviews.Delete(ctx, rv.ID); err != nil {
		return notFoundAs(err, msgNoReview)
	}
	return c.NoContent(http.StatusNoContent)
}
