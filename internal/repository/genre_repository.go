package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/iliyamo/scydb-api/internal/database"
	"github.com/iliyamo/scydb-api/internal/model"
	"github.com/iliyamo/scydb-api/internal/query"
)

// GenreRepo persists genres. Movies reference genres by name, so renames
// are propagated into movies.genre inside the same transaction.
type GenreRepo struct{ db *sql.DB }

func NewGenreRepo(db *sql.DB) *GenreRepo { return &GenreRepo{db: db} }

// BulkResult reports how many rows of a bulk update matched an id and how
// many of those actually changed.
type BulkResult struct {
	Matched  int64 `json:"matchedCount"`
	Modified int64 `json:"modifiedCount"`
}

const movieCountExpr = `(SELECT COUNT(*) FROM movies m WHERE JSON_CONTAINS(m.genre, JSON_QUOTE(g.name)))`

func scanGenre(row interface{ Scan(...any) error }) (model.Genre, error) {
	var g model.Genre
	if err := row.Scan(&g.ID, &g.Name, &g.Description, &g.Color, &g.IsActive, &g.MovieCount); err != nil {
		return model.Genre{}, mapError(err)
	}
	return g, nil
}

// List runs a list query over genres and attaches movieCount to every
// document that carries a name.
func (r *GenreRepo) List(ctx context.Context, q *query.Query) ([]Document, int64, error) {
	docs, total, err := genresTable.list(ctx, r.db, q)
	if err != nil || len(docs) == 0 {
		return docs, total, err
	}
	counts, err := r.movieCounts(ctx)
	if err != nil {
		return nil, 0, err
	}
	for _, d := range docs {
		if name, ok := d["name"].(string); ok {
			d["movieCount"] = counts[name]
		}
	}
	return docs, total, nil
}

// movieCounts returns the number of movies per genre name.
func (r *GenreRepo) movieCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT jt.name, COUNT(*)
		FROM movies m
		JOIN JSON_TABLE(m.genre, '$[*]' COLUMNS (name VARCHAR(100) PATH '$')) jt
		GROUP BY jt.name`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		out[name] = n
	}
	return out, rows.Err()
}

// Active lists active genres ordered by name.
func (r *GenreRepo) Active(ctx context.Context) ([]model.Genre, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT g.id, g.name, g.description, g.color, g.is_active, "+movieCountExpr+
			" FROM genres g WHERE g.is_active=1 ORDER BY g.name ASC")
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	out := []model.Genre{}
	for rows.Next() {
		g, err := scanGenre(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// GetByID fetches a genre with its movie count.
func (r *GenreRepo) GetByID(ctx context.Context, id uint64) (model.Genre, error) {
	return getGenre(ctx, r.db, id)
}

func getGenre(ctx context.Context, db database.DBTX, id uint64) (model.Genre, error) {
	return scanGenre(db.QueryRowContext(ctx,
		"SELECT g.id, g.name, g.description, g.color, g.is_active, "+movieCountExpr+
			" FROM genres g WHERE g.id=? LIMIT 1", id))
}

// Create inserts g and sets its ID. Names are unique ignoring case; a
// clash yields ErrDuplicate.
func (r *GenreRepo) Create(ctx context.Context, g *model.Genre) error {
	if g.Color == "" {
		g.Color = model.DefaultGenreColor
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO genres (name, description, color, is_active) VALUES (?,?,?,?)",
		g.Name, g.Description, g.Color, g.IsActive)
	if err != nil {
		return mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	g.ID = uint64(id)
	return nil
}

// Update applies p in one transaction. When the name changes every movie
// carrying the old name is rewritten to the new one. It returns the updated
// genre and the name it had before.
func (r *GenreRepo) Update(ctx context.Context, id uint64, p model.GenrePatch) (model.Genre, string, error) {
	var (
		out     model.Genre
		oldName string
	)
	err := database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx database.DBTX) error {
		if err := tx.QueryRowContext(ctx,
			"SELECT name FROM genres WHERE id=? FOR UPDATE", id).Scan(&oldName); err != nil {
			return mapError(err)
		}

		sets := []string{}
		args := []any{}
		if p.Name != nil {
			sets = append(sets, "name=?")
			args = append(args, *p.Name)
		}
		if p.Description != nil {
			sets = append(sets, "description=?")
			args = append(args, *p.Description)
		}
		if p.Color != nil {
			sets = append(sets, "color=?")
			args = append(args, *p.Color)
		}
		if p.IsActive != nil {
			sets = append(sets, "is_active=?")
			args = append(args, *p.IsActive)
		}
		if len(sets) > 0 {
			sets = append(sets, "version=version+1")
			args = append(args, id)
			if err := expectOne(tx.ExecContext(ctx,
				"UPDATE genres SET "+strings.Join(sets, ", ")+" WHERE id=?", args...)); err != nil {
				return err
			}
		}
		if p.Name != nil && *p.Name != oldName {
			if _, err := renameInMovies(ctx, tx, oldName, *p.Name); err != nil {
				return err
			}
		}

		g, err := getGenre(ctx, tx, id)
		out = g
		return err
	})
	if err != nil {
		return model.Genre{}, "", err
	}
	return out, oldName, nil
}

// Rename records one propagated genre rename.
type Rename struct {
	From string
	To   string
}

// BulkUpdate writes every item in a single transaction. Unknown ids are
// skipped and not counted as matched. Renames are propagated to movies.
func (r *GenreRepo) BulkUpdate(ctx context.Context, items []model.GenreBulkItem) (BulkResult, []Rename, error) {
	var (
		res     BulkResult
		renames []Rename
	)
	err := database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx database.DBTX) error {
		for _, it := range items {
			var old model.Genre
			err := tx.QueryRowContext(ctx,
				"SELECT name, description, color, is_active FROM genres WHERE id=? FOR UPDATE", it.ID).
				Scan(&old.Name, &old.Description, &old.Color, &old.IsActive)
			if err == sql.ErrNoRows {
				continue
			}
			if err != nil {
				return mapError(err)
			}
			res.Matched++
			color := it.Color
			if color == "" {
				color = old.Color
			}
			if old.Name == it.Name && old.Description == it.Description &&
				old.Color == color && old.IsActive == it.IsActive {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				"UPDATE genres SET name=?, description=?, color=?, is_active=?, version=version+1 WHERE id=?",
				it.Name, it.Description, color, it.IsActive, it.ID); err != nil {
				return mapError(err)
			}
			res.Modified++
			if old.Name != it.Name {
				if _, err := renameInMovies(ctx, tx, old.Name, it.Name); err != nil {
					return err
				}
				renames = append(renames, Rename{From: old.Name, To: it.Name})
			}
		}
		return nil
	})
	if err != nil {
		return BulkResult{}, nil, err
	}
	return res, renames, nil
}

// renameInMovies rewrites oldName to newName in the genre set of every movie
// that carries it and returns the number of movies changed. The rows are
// locked until the surrounding transaction ends.
func renameInMovies(ctx context.Context, tx database.DBTX, oldName, newName string) (int, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT id, genre FROM movies WHERE JSON_CONTAINS(genre, JSON_QUOTE(?)) FOR UPDATE", oldName)
	if err != nil {
		return 0, mapError(err)
	}
	type pending struct {
		id    uint64
		genre []string
	}
	var todo []pending
	for rows.Next() {
		var (
			id  uint64
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return 0, err
		}
		var genres []string
		if err := json.Unmarshal(raw, &genres); err != nil {
			rows.Close()
			return 0, err
		}
		if next, changed := model.RenameGenre(genres, oldName, newName); changed {
			todo = append(todo, pending{id: id, genre: next})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for _, p := range todo {
		b, err := json.Marshal(p.genre)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE movies SET genre=?, version=version+1 WHERE id=?", string(b), p.id); err != nil {
			return 0, mapError(err)
		}
	}
	return len(todo), nil
}

// Delete removes a genre once check accepts it together with the number of
// movies carrying its name. The genre row and the counted movies stay
// locked until the delete commits.
func (r *GenreRepo) Delete(ctx context.Context, id uint64, check func(model.Genre, int64) error) error {
	return database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx database.DBTX) error {
		g := model.Genre{ID: id}
		if err := tx.QueryRowContext(ctx,
			"SELECT name FROM genres WHERE id=? FOR UPDATE", id).Scan(&g.Name); err != nil {
			return mapError(err)
		}
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM movies WHERE JSON_CONTAINS(genre, JSON_QUOTE(?)) FOR SHARE", g.Name).Scan(&g.MovieCount); err != nil {
			return mapError(err)
		}
		if err := check(g, g.MovieCount); err != nil {
			return err
		}
		return expectOne(tx.ExecContext(ctx, "DELETE FROM genres WHERE id=?", id))
	})
}

// Stats returns every genre with its movie count, most used first, and the
// active/inactive summary.
func (r *GenreRepo) Stats(ctx context.Context) ([]model.Genre, model.GenreSummary, error) {
	var sum model.GenreSummary
	rows, err := r.db.QueryContext(ctx,
		"SELECT g.id, g.name, g.description, g.color, g.is_active, "+movieCountExpr+" AS movie_count"+
			" FROM genres g ORDER BY movie_count DESC, g.name ASC")
	if err != nil {
		return nil, sum, mapError(err)
	}
	defer rows.Close()
	out := []model.Genre{}
	for rows.Next() {
		g, err := scanGenre(rows)
		if err != nil {
			return nil, sum, err
		}
		sum.Total++
		if g.IsActive {
			sum.Active++
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, sum, err
	}
	sum.Inactive = sum.Total - sum.Active
	return out, sum, nil
}
