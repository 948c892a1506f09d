package handler

import (
	"context"
	"time"

	"github.com/iliyamo/scydb-api/internal/model"
	"github.com/iliyamo/scydb-api/internal/query"
	"github.com/iliyamo/scydb-api/internal/repository"
)

// The interfaces below are the slices of the MySQL repositories each
// controller needs. *repository.XxxRepo satisfies them; tests use in-memory
// fakes.

type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id uint64) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByVerificationToken(ctx context.Context, hash string, now time.Time) (model.User, error)
	GetByResetToken(ctx context.Context, hash string, now time.Time) (model.User, error)
	SetVerificationToken(ctx context.Context, id uint64, hash string, exp *time.Time) error
	MarkVerified(ctx context.Context, id uint64) error
	SetResetToken(ctx context.Context, id uint64, hash string, exp *time.Time) error
	UpdatePassword(ctx context.Context, id uint64, hash string, changedAt time.Time) error
	Update(ctx context.Context, id uint64, p model.UserPatch) (model.User, error)
	Deactivate(ctx context.Context, id uint64) error
	Delete(ctx context.Context, id uint64) error
	List(ctx context.Context, q *query.Query) ([]repository.Document, int64, error)
	Stats(ctx context.Context) (model.UserStats, error)
	AddToWatchlist(ctx context.Context, userID, movieID uint64) ([]uint64, error)
	RemoveFromWatchlist(ctx context.Context, userID, movieID uint64) ([]uint64, error)
}

type RoleStore interface {
	List(ctx context.Context, q *query.Query) ([]repository.Document, int64, error)
	GetByID(ctx context.Context, id uint64) (model.Role, error)
	Exists(ctx context.Context, name model.RoleName) (bool, error)
	Names(ctx context.Context) ([]model.RoleName, error)
	Create(ctx context.Context, r *model.Role) error
	Update(ctx context.Context, id uint64, p model.RolePatch) (model.Role, error)
	CountHolders(ctx context.Context, name model.RoleName) (int64, error)
	Delete(ctx context.Context, id uint64) error
	Stats(ctx context.Context) ([]model.RoleStat, error)
}

type GenreStore interface {
	List(ctx context.Context, q *query.Query) ([]repository.Document, int64, error)
	Active(ctx context.Context) ([]model.Genre, error)
	GetByID(ctx context.Context, id uint64) (model.Genre, error)
	Create(ctx context.Context, g *model.Genre) error
	Update(ctx context.Context, id uint64, p model.GenrePatch) (model.Genre, string, error)
	BulkUpdate(ctx context.Context, items []model.GenreBulkItem) (repository.BulkResult, []repository.Rename, error)
	Delete(ctx context.Context, id uint64, check func(model.Genre, int64) error) error
	Stats(ctx context.Context) ([]model.Genre, model.GenreSummary, error)
}

type MovieStore interface {
	Search(ctx context.Context, f model.MovieFilter) ([]model.Movie, int64, error)
	GetByID(ctx context.Context, id uint64) (model.Movie, error)
	Exists(ctx context.Context, id uint64) (bool, error)
	Create(ctx context.Context, m *model.Movie) error
	Update(ctx context.Context, id uint64, p model.MoviePatch) (model.Movie, error)
	Delete(ctx context.Context, id uint64) error
}

type ReviewStore interface {
	ListByMovie(ctx context.Context, movieID uint64) ([]model.Review, error)
	List(ctx context.Context, q *query.Query) ([]repository.Document, int64, error)
	GetByID(ctx context.Context, id uint64) (model.Review, error)
	Create(ctx context.Context, rv *model.Review) error
	Update(ctx context.Context, id uint64, p model.ReviewPatch) (model.Review, error)
	Delete(ctx context.Context, id uint64) error
}

var (
	_ UserStore   = (*repository.UserRepo)(nil)
	_ RoleStore   = (*repository.RoleRepo)(nil)
	_ GenreStore  = (*repository.GenreRepo)(nil)
	_ MovieStore  = (*repository.MovieRepo)(nil)
	_ ReviewStore = (*repository.ReviewRepo)(nil)
)
