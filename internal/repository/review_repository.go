package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/scydb-api/internal/model"
	"github.com/iliyamo/scydb-api/internal/query"
)

// ReviewRepo persists reviews. (movie_id, user_id) is unique, so a second
// review by the same user for the same movie yields ErrDuplicate.
type ReviewRepo struct{ db *sql.DB }

func NewReviewRepo(db *sql.DB) *ReviewRepo { return &ReviewRepo{db: db} }

const reviewSelect = `SELECT rv.id, rv.review, rv.rating, rv.movie_id, rv.user_id, rv.created_at,
	u.name, u.photo
	FROM reviews rv
	JOIN users u ON u.id = rv.user_id`

func scanReview(row interface{ Scan(...any) error }) (model.Review, error) {
	var (
		rv    model.Review
		a     model.ReviewAuthor
		name  sql.NullString
		photo sql.NullString
	)
	if err := row.Scan(&rv.ID, &rv.Review, &rv.Rating, &rv.MovieID, &rv.UserID, &rv.CreatedAt,
		&name, &photo); err != nil {
		return model.Review{}, mapError(err)
	}
	a.Name, a.Photo = name.String, photo.String
	rv.User = &a
	return rv, nil
}

// ListByMovie returns every review of a movie, newest first.
func (r *ReviewRepo) ListByMovie(ctx context.Context, movieID uint64) ([]model.Review, error) {
	rows, err := r.db.QueryContext(ctx,
		reviewSelect+" WHERE rv.movie_id=? ORDER BY rv.created_at DESC, rv.id DESC", movieID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	out := []model.Review{}
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

// List runs a list query over all reviews (admin view).
func (r *ReviewRepo) List(ctx context.Context, q *query.Query) ([]Document, int64, error) {
	return reviewsTable.list(ctx, r.db, q)
}

// GetByID fetches one review with its author.
func (r *ReviewRepo) GetByID(ctx context.Context, id uint64) (model.Review, error) {
	return scanReview(r.db.QueryRowContext(ctx, reviewSelect+" WHERE rv.id=? LIMIT 1", id))
}

// Create inserts rv and sets its ID.
func (r *ReviewRepo) Create(ctx context.Context, rv *model.Review) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO reviews (review, rating, movie_id, user_id) VALUES (?,?,?,?)",
		strings.TrimSpace(rv.Review), rv.Rating, rv.MovieID, rv.UserID)
	if err != nil {
		return mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rv.ID = uint64(id)
	return nil
}

// Update applies the non-nil fields of p and returns the fresh row.
func (r *ReviewRepo) Update(ctx context.Context, id uint64, p model.ReviewPatch) (model.Review, error) {
	sets := []string{}
	args := []any{}
	if p.Review != nil {
		sets = append(sets, "review=?")
		args = append(args, strings.TrimSpace(*p.Review))
	}
	if p.Rating != nil {
		sets = append(sets, "rating=?")
		args = append(args, *p.Rating)
	}
	if len(sets) > 0 {
		sets = append(sets, "version=version+1")
		args = append(args, id)
		if err := expectOne(r.db.ExecContext(ctx,
			"UPDATE reviews SET "+strings.Join(sets, ", ")+" WHERE id=?", args...)); err != nil {
			return model.Review{}, err
		}
	}
	return r.GetByID(ctx, id)
}

// Delete removes a review.
func (r *ReviewRepo) Delete(ctx context.Context, id uint64) error {
	return expectOne(r.db.ExecContext(ctx, "DELETE FROM reviews WHERE id=?", id))
}
