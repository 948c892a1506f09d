package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iliyamo/scydb-api/internal/model"
	"github.com/iliyamo/scydb-api/internal/query"
)

// MovieRepo persists the catalog.
type MovieRepo struct{ db *sql.DB }

func NewMovieRepo(db *sql.DB) *MovieRepo { return &MovieRepo{db: db} }

const avgRatingExpr = `COALESCE((SELECT AVG(rv.rating) FROM reviews rv WHERE rv.movie_id = m.id), 0)`

const movieSelect = "SELECT m.id, m.title, m.`year`, m.duration, m.genre, m.director, m.`cast`, " +
	"m.description, m.poster, m.backdrop, m.trailer, m.created_at, " + avgRatingExpr + " AS average_rating FROM movies m"

// movieSortColumns whitelists the sortable movie fields.
var movieSortColumns = map[string]string{
	"id":            "m.id",
	"title":         "m.title",
	"year":          "m.`year`",
	"duration":      "m.duration",
	"director":      "m.director",
	"createdAt":     "m.created_at",
	"averageRating": "average_rating",
}

// Movie listing sort aliases.
var movieSortAliases = map[string]string{
	"popular": "-createdAt",
	"rating":  "-averageRating",
	"newest":  "-year",
	"oldest":  "year",
	"title":   "title",
}

func scanMovie(row interface{ Scan(...any) error }) (model.Movie, error) {
	var (
		m           model.Movie
		genre, cast []byte
	)
	err := row.Scan(&m.ID, &m.Title, &m.Year, &m.Duration, &genre, &m.Director, &cast,
		&m.Description, &m.Poster, &m.Backdrop, &m.Trailer, &m.CreatedAt, &m.AverageRating)
	if err != nil {
		return model.Movie{}, mapError(err)
	}
	if err := decodeStrings(genre, &m.Genre); err != nil {
		return model.Movie{}, err
	}
	if err := decodeStrings(cast, &m.Cast); err != nil {
		return model.Movie{}, err
	}
	return m, nil
}

func decodeStrings(raw []byte, dst *[]string) error {
	*dst = []string{}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func encodeStrings(s []string) (string, error) {
	if s == nil {
		s = []string{}
	}
	b, err := json.Marshal(s)
	return string(b), err
}

// likePattern builds a case-insensitive substring pattern for LIKE.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(strings.TrimSpace(s))) + "%"
}

// MovieOrder resolves a listing sort value (alias or raw sort list) to an
// ORDER BY clause.
func MovieOrder(sort string) (string, error) {
	sort = strings.TrimSpace(sort)
	if sort == "" {
		sort = query.DefaultSort
	}
	if alias, ok := movieSortAliases[sort]; ok {
		sort = alias
	}
	keys, err := query.ParseSort(sort)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidField, err)
	}
	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		col, ok := movieSortColumns[k.Field]
		if !ok {
			return "", fmt.Errorf("%w: cannot sort by %q", ErrInvalidField, k.Field)
		}
		dir := " ASC"
		if k.Desc {
			dir = " DESC"
		}
		parts = append(parts, col+dir)
	}
	parts = append(parts, "m.id ASC")
	return strings.Join(parts, ", "), nil
}

// movieWhere compiles the listing filter.
func movieWhere(f model.MovieFilter) (string, []any) {
	where := []string{}
	args := []any{}

	if f.Search != "" {
		p := likePattern(f.Search)
		where = append(where, "(LOWER(m.title) LIKE ? OR LOWER(m.director) LIKE ? OR "+
			"LOWER(CAST(m.`cast` AS CHAR)) LIKE ? OR LOWER(m.description) LIKE ? OR "+
			"LOWER(CAST(m.genre AS CHAR)) LIKE ?)")
		args = append(args, p, p, p, p, p)
	}
	if f.Genre != "" {
		where = append(where, "JSON_CONTAINS(m.genre, JSON_QUOTE(?))")
		args = append(args, f.Genre)
	}
	if f.Director != "" {
		where = append(where, "LOWER(m.director) LIKE ?")
		args = append(args, likePattern(f.Director))
	}
	if len(f.Cast) > 0 {
		ors := make([]string, 0, len(f.Cast))
		for _, actor := range f.Cast {
			ors = append(ors, "LOWER(CAST(m.`cast` AS CHAR)) LIKE ?")
			args = append(args, likePattern(actor))
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}
	if f.YearFrom != nil {
		where = append(where, "m.`year` >= ?")
		args = append(args, *f.YearFrom)
	}
	if f.YearTo != nil {
		where = append(where, "m.`year` <= ?")
		args = append(args, *f.YearTo)
	}
	switch f.Duration {
	case model.DurationShort:
		where = append(where, "m.duration < 90")
	case model.DurationMedium:
		where = append(where, "m.duration BETWEEN 90 AND 120")
	case model.DurationLong:
		where = append(where, "m.duration BETWEEN 120 AND 180")
	case model.DurationEpic:
		where = append(where, "m.duration > 180")
	}

	if len(where) == 0 {
		return "1=1", args
	}
	return strings.Join(where, " AND "), args
}

// Search returns one page of movies matching f plus the total match count.
func (r *MovieRepo) Search(ctx context.Context, f model.MovieFilter) ([]model.Movie, int64, error) {
	order, err := MovieOrder(f.Sort)
	if err != nil {
		return nil, 0, err
	}
	cond, args := movieWhere(f)

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM movies m WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, mapError(err)
	}

	dataArgs := append(append([]any{}, args...), f.Limit, f.Offset())
	rows, err := r.db.QueryContext(ctx,
		movieSelect+" WHERE "+cond+" ORDER BY "+order+" LIMIT ? OFFSET ?", dataArgs...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	out := []model.Movie{}
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// GetByID fetches a movie with its average rating. Reviews are loaded by
// the review repository.
func (r *MovieRepo) GetByID(ctx context.Context, id uint64) (model.Movie, error) {
	return scanMovie(r.db.QueryRowContext(ctx, movieSelect+" WHERE m.id=? LIMIT 1", id))
}

// Exists reports whether a movie with the id exists.
func (r *MovieRepo) Exists(ctx context.Context, id uint64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM movies WHERE id=? LIMIT 1", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, mapError(err)
	}
	return true, nil
}

// Create inserts m and sets its ID. A taken title yields ErrDuplicate.
func (r *MovieRepo) Create(ctx context.Context, m *model.Movie) error {
	genre, err := encodeStrings(m.Genre)
	if err != nil {
		return err
	}
	cast, err := encodeStrings(m.Cast)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO movies (title, `year`, duration, genre, director, `cast`, description, poster, backdrop, trailer) "+
			"VALUES (?,?,?,?,?,?,?,?,?,?)",
		m.Title, m.Year, m.Duration, genre, m.Director, cast, m.Description, m.Poster, m.Backdrop, m.Trailer)
	if err != nil {
		return mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = uint64(id)
	return nil
}

// Update applies the non-nil fields of p and returns the fresh row.
func (r *MovieRepo) Update(ctx context.Context, id uint64, p model.MoviePatch) (model.Movie, error) {
	sets := []string{}
	args := []any{}
	add := func(col string, v any) {
		sets = append(sets, col+"=?")
		args = append(args, v)
	}
	if p.Title != nil {
		add("title", strings.TrimSpace(*p.Title))
	}
	if p.Year != nil {
		add("`year`", *p.Year)
	}
	if p.Duration != nil {
		add("duration", *p.Duration)
	}
	if p.Genre != nil {
		g, err := encodeStrings(p.Genre)
		if err != nil {
			return model.Movie{}, err
		}
		add("genre", g)
	}
	if p.Director != nil {
		add("director", *p.Director)
	}
	if p.Cast != nil {
		c, err := encodeStrings(p.Cast)
		if err != nil {
			return model.Movie{}, err
		}
		add("`cast`", c)
	}
	if p.Description != nil {
		add("description", strings.TrimSpace(*p.Description))
	}
	if p.Poster != nil {
		add("poster", *p.Poster)
	}
	if p.Backdrop != nil {
		add("backdrop", *p.Backdrop)
	}
	if p.Trailer != nil {
		add("trailer", *p.Trailer)
	}
	if len(sets) > 0 {
		sets = append(sets, "version=version+1")
		args = append(args, id)
		if err := expectOne(r.db.ExecContext(ctx,
			"UPDATE movies SET "+strings.Join(sets, ", ")+" WHERE id=?", args...)); err != nil {
			return model.Movie{}, err
		}
	}
	return r.GetByID(ctx, id)
}

// Delete removes a movie; its reviews and watch-later entries cascade.
func (r *MovieRepo) Delete(ctx context.Context, id uint64) error {
	return expectOne(r.db.ExecContext(ctx, "DELETE FROM movies WHERE id=?", id))
}
