package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/scydb-api/internal/model"
	"github.com/iliyamo/scydb-api/internal/query"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestMapError(t *testing.T) {
	assert.Nil(t, mapError(nil))
	assert.ErrorIs(t, mapError(sql.ErrNoRows), ErrNotFound)
	assert.ErrorIs(t, mapError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}), ErrDuplicate)
	assert.ErrorIs(t, mapError(&mysql.MySQLError{Number: 1054, Message: "Unknown column 'foo'"}), ErrInvalidField)
	assert.ErrorIs(t, mapError(&mysql.MySQLError{Number: 1451, Message: "Cannot delete"}), ErrInUse)

	other := errors.New("connection reset")
	assert.Equal(t, other, mapError(other))
}

func TestColumnNaming(t *testing.T) {
	assert.Equal(t, "created_at", columnName("createdAt"))
	assert.Equal(t, "is_active", columnName("isActive"))
	assert.Equal(t, "title", columnName("title"))
	assert.Equal(t, "createdAt", fieldName("created_at"))
	assert.Equal(t, "movieId", fieldName("movie_id"))
}

func TestCompileListQuery(t *testing.T) {
	base := query.From("genres")
	qq, err := query.NewFeatures(base, map[string]string{
		"isActive": "true", "name[ne]": "Drama", "sort": "name", "page": "2", "limit": "5",
	}).Filter().Sort().LimitFields().Paginate().Query()
	require.NoError(t, err)

	c, err := genresTable.compile(qq)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `id`, `name`, `description`, `color`, `is_active`, `created_at` FROM `genres` "+
			"WHERE `is_active` = ? AND `name` <> ? ORDER BY `name` ASC, `id` ASC LIMIT ? OFFSET ?",
		c.selectSQL)
	assert.Equal(t, []any{1, "Drama", 5, 5}, c.selectArgs)
	assert.Equal(t, "SELECT COUNT(*) FROM `genres` WHERE `is_active` = ? AND `name` <> ?", c.countSQL)
}

func TestCompileJSONArrayAndHiddenColumns(t *testing.T) {
	qq := query.From("roles").Where("permissions", query.OpEq, "admin")
	c, err := rolesTable.compile(qq)
	require.NoError(t, err)
	assert.Contains(t, c.countSQL, "JSON_CONTAINS(`permissions`, JSON_QUOTE(?))")

	_, err = rolesTable.compile(query.From("roles").Where("permissions", query.OpGt, "a"))
	assert.ErrorIs(t, err, ErrInvalidField)

	_, err = usersTable.compile(query.From("users").Where("passwordHash", query.OpEq, "x"))
	assert.ErrorIs(t, err, ErrInvalidField)

	c, err = usersTable.compile(&query.Query{Collection: "users", Fields: []string{"email"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "email"}, c.columns)
	assert.Contains(t, c.countSQL, "`active` = ?")
}

func TestRoleListDocuments(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRoleRepo(db)
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	qq, err := query.NewFeatures(query.From("roles"), map[string]string{"name": "admin"}).
		Filter().Sort().LimitFields().Paginate().Query()
	require.NoError(t, err)

	mock.ExpectQuery(q("SELECT COUNT(*) FROM `roles` WHERE `name` = ?")).
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(q("SELECT `id`, `name`, `description`, `permissions`, `created_at` FROM `roles`")).
		WithArgs("admin", 100, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "permissions", "created_at"}).
			AddRow(int64(2), "admin", "Administrator", []byte(`["read","write","delete"]`), created))

	docs, total, err := repo.List(context.Background(), qq)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, docs, 1)
	assert.Equal(t, uint64(2), docs[0].ID())
	assert.Equal(t, []any{"read", "write", "delete"}, docs[0]["permissions"])
	assert.Equal(t, created, docs[0]["createdAt"])
	assert.NotContains(t, docs[0], "version")
}

func TestUnknownColumnIsInvalidField(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRoleRepo(db)

	mock.ExpectQuery(q("SELECT COUNT(*) FROM `roles` WHERE `colour` = ?")).
		WillReturnError(&mysql.MySQLError{Number: 1054, Message: "Unknown column 'colour'"})

	_, _, err := repo.List(context.Background(), query.From("roles").Where("colour", query.OpEq, "red"))
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestGenreRenamePropagatesToMovies(t *testing.T) {
	db, mock := newMock(t)
	repo := NewGenreRepo(db)
	newName := "Science Fiction"

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT name FROM genres WHERE id=? FOR UPDATE")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Sci-Fi"))
	mock.ExpectExec(q("UPDATE genres SET name=?, version=version+1 WHERE id=?")).
		WithArgs(newName, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("SELECT id, genre FROM movies WHERE JSON_CONTAINS(genre, JSON_QUOTE(?)) FOR UPDATE")).
		WithArgs("Sci-Fi").
		WillReturnRows(sqlmock.NewRows([]string{"id", "genre"}).
			AddRow(10, []byte(`["Action","Sci-Fi"]`)).
			AddRow(11, []byte(`["Sci-Fi","Science Fiction"]`)))
	mock.ExpectExec(q("UPDATE movies SET genre=?, version=version+1 WHERE id=?")).
		WithArgs(`["Action","Science Fiction"]`, 10).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("UPDATE movies SET genre=?, version=version+1 WHERE id=?")).
		WithArgs(`["Science Fiction"]`, 11).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("FROM genres g WHERE g.id=?")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "color", "is_active", "movie_count"}).
			AddRow(1, newName, "Science fiction films", "#06B6D4", true, 2))
	mock.ExpectCommit()

	g, old, err := repo.Update(context.Background(), 1, model.GenrePatch{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "Sci-Fi", old)
	assert.Equal(t, newName, g.Name)
	assert.Equal(t, int64(2), g.MovieCount)
}

func TestGenreRenameRollsBackOnDuplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewGenreRepo(db)
	newName := "action"

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT name FROM genres WHERE id=? FOR UPDATE")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Comedy"))
	mock.ExpectExec(q("UPDATE genres SET name=?")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'action'"})
	mock.ExpectRollback()

	_, _, err := repo.Update(context.Background(), 3, model.GenrePatch{Name: &newName})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestGenreDeleteChecksUsageInTx(t *testing.T) {
	db, mock := newMock(t)
	repo := NewGenreRepo(db)
	inUse := errors.New("in use")
	check := func(g model.Genre, movies int64) error {
		if movies > 0 {
			return inUse
		}
		return nil
	}

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT name FROM genres WHERE id=? FOR UPDATE")).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Western"))
	mock.ExpectQuery(q("SELECT COUNT(*) FROM movies WHERE JSON_CONTAINS(genre, JSON_QUOTE(?)) FOR SHARE")).
		WithArgs("Western").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()
	assert.ErrorIs(t, repo.Delete(context.Background(), 4, check), inUse)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT name FROM genres WHERE id=? FOR UPDATE")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Noir"))
	mock.ExpectQuery(q("SELECT COUNT(*) FROM movies")).
		WithArgs("Noir").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(q("DELETE FROM genres WHERE id=?")).
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, repo.Delete(context.Background(), 5, check))

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT name FROM genres WHERE id=? FOR UPDATE")).
		WithArgs(6).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()
	assert.ErrorIs(t, repo.Delete(context.Background(), 6, check), ErrNotFound)
}

func TestGenreBulkUpdate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewGenreRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT name, description, color, is_active FROM genres WHERE id=? FOR UPDATE")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"name", "description", "color", "is_active"}).
			AddRow("Action", "Fast", "#EF4444", true))
	mock.ExpectQuery(q("SELECT name, description, color, is_active FROM genres WHERE id=? FOR UPDATE")).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"name", "description", "color", "is_active"}).
			AddRow("War", "Conflict", "#374151", true))
	mock.ExpectExec(q("UPDATE genres SET name=?, description=?, color=?, is_active=?")).
		WithArgs("Military", "Conflict", "#374151", false, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("SELECT id, genre FROM movies")).
		WithArgs("War").
		WillReturnRows(sqlmock.NewRows([]string{"id", "genre"}))
	mock.ExpectQuery(q("SELECT name, description, color, is_active FROM genres WHERE id=? FOR UPDATE")).
		WithArgs(99).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectCommit()

	res, renames, err := repo.BulkUpdate(context.Background(), []model.GenreBulkItem{
		{ID: 1, Name: "Action", Description: "Fast", Color: "#EF4444", IsActive: true},
		{ID: 2, Name: "Military", Description: "Conflict", IsActive: false},
		{ID: 99, Name: "Ghost"},
	})
	require.NoError(t, err)
	assert.Equal(t, BulkResult{Matched: 2, Modified: 1}, res)
	assert.Equal(t, []Rename{{From: "War", To: "Military"}}, renames)
}

func TestReviewCreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReviewRepo(db)

	mock.ExpectExec(q("INSERT INTO reviews (review, rating, movie_id, user_id) VALUES (?,?,?,?)")).
		WithArgs("Great", 9, 5, 7).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(q("INSERT INTO reviews")).
		WithArgs("Again", 3, 5, 7).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '5-7'"})

	first := &model.Review{Review: " Great ", Rating: 9, MovieID: 5, UserID: 7}
	require.NoError(t, repo.Create(context.Background(), first))
	assert.Equal(t, uint64(1), first.ID)

	err := repo.Create(context.Background(), &model.Review{Review: "Again", Rating: 3, MovieID: 5, UserID: 7})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestWatchlistSetSemantics(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectExec(q("INSERT IGNORE INTO watchlist (user_id, movie_id) VALUES (?,?)")).
		WithArgs(7, 5).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT movie_id FROM watchlist WHERE user_id=?")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"movie_id"}).AddRow(5))

	ids, err := repo.AddToWatchlist(context.Background(), 7, 5)
	require.NoError(t, err)
	assert.Equal(t, []uint64{5}, ids)
}

func TestUserGetByIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery(q("FROM users WHERE id=? AND active=1")).
		WithArgs(42).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExpectOneNoRows(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMovieRepo(db)

	mock.ExpectExec(q("DELETE FROM movies WHERE id=?")).
		WithArgs(9).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), 9), ErrNotFound)
}

func TestMovieOrder(t *testing.T) {
	tests := map[string]string{
		"":              "m.created_at DESC, m.id ASC",
		"popular":       "m.created_at DESC, m.id ASC",
		"newest":        "m.`year` DESC, m.id ASC",
		"oldest":        "m.`year` ASC, m.id ASC",
		"title":         "m.title ASC, m.id ASC",
		"rating":        "average_rating DESC, m.id ASC",
		"-duration,title": "m.duration DESC, m.title ASC, m.id ASC",
	}
	for in, want := range tests {
		got, err := MovieOrder(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := MovieOrder("-budget")
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestMovieWhere(t *testing.T) {
	from, to := 1990, 2000
	cond, args := movieWhere(model.MovieFilter{
		Search:   "Matrix",
		Genre:    "Sci-Fi",
		Cast:     []string{"Keanu", "Carrie"},
		YearFrom: &from,
		YearTo:   &to,
		Duration: model.DurationLong,
	})
	assert.Contains(t, cond, "JSON_CONTAINS(m.genre, JSON_QUOTE(?))")
	assert.Contains(t, cond, "m.duration BETWEEN 120 AND 180")
	assert.Equal(t, []any{
		"%matrix%", "%matrix%", "%matrix%", "%matrix%", "%matrix%",
		"Sci-Fi", "%keanu%", "%carrie%", 1990, 2000,
	}, args)

	cond, args = movieWhere(model.MovieFilter{Duration: model.DurationShort})
	assert.Equal(t, "m.duration < 90", cond)
	assert.Empty(t, args)

	assert.Equal(t, `%50\%\_off%`, likePattern("50%_OFF"))
}

func TestMovieSearchLargeLimit(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMovieRepo(db)
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q("SELECT COUNT(*) FROM movies m WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(q("LIMIT ? OFFSET ?")).
		WithArgs(1<<40, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "year", "duration", "genre", "director", "cast",
			"description", "poster", "backdrop", "trailer", "created_at", "average_rating"}).
			AddRow(1, "Heat", 1995, 170, []byte(`["Crime"]`), "Michael Mann", []byte(`["Al Pacino"]`),
				"", "", "", "", created, 8.5))

	movies, total, err := repo.Search(context.Background(), model.MovieFilter{Page: 1, Limit: 1 << 40})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, movies, 1)
	assert.Equal(t, "Heat", movies[0].Title)
}
