package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/scydb-api/internal/database"
	"github.com/iliyamo/scydb-api/internal/model"
	"github.com/iliyamo/scydb-api/internal/query"
)

// UserRepo persists accounts and their watch-later lists. Every read skips
// deactivated accounts, so a self-deleted user behaves as if it did not exist.
type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, name, email, photo, password_hash, role, email_verified, active,
	password_changed_at, verification_token_hash, verification_expires_at,
	reset_token_hash, reset_expires_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var (
		u                 model.User
		role              string
		verifyHash, reset sql.NullString
		changed, vExp     sql.NullTime
		rExp              sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Photo, &u.PasswordHash, &role,
		&u.EmailVerified, &u.Active, &changed, &verifyHash, &vExp, &reset, &rExp,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, mapError(err)
	}
	u.Role = model.RoleName(role)
	u.VerificationTokenHash = verifyHash.String
	u.ResetTokenHash = reset.String
	u.PasswordChangedAt = nullTime(changed)
	u.VerificationExpiresAt = nullTime(vExp)
	u.ResetExpiresAt = nullTime(rExp)
	return u, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts u and sets its ID. A taken email yields ErrDuplicate.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = normalizeEmail(u.Email)
	if u.Photo == "" {
		u.Photo = model.DefaultPhoto
	}
	if u.Role == "" {
		u.Role = model.RoleClient
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (name, email, photo, password_hash, role, email_verified,
			verification_token_hash, verification_expires_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		u.Name, u.Email, u.Photo, u.PasswordHash, string(u.Role), u.EmailVerified,
		nullString(u.VerificationTokenHash), u.VerificationExpiresAt)
	if err != nil {
		return mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	u.Active = true
	return nil
}

// GetByID fetches an active user together with the watch-later list.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? AND active=1 LIMIT 1", id))
	if err != nil {
		return model.User{}, err
	}
	if u.WatchLater, err = r.Watchlist(ctx, u.ID); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// GetByEmail fetches an active user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? AND active=1 LIMIT 1", normalizeEmail(email)))
}

// GetByVerificationToken finds the user holding an unexpired verification token digest.
func (r *UserRepo) GetByVerificationToken(ctx context.Context, hash string, now time.Time) (model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE verification_token_hash=? AND verification_expires_at > ? AND active=1 LIMIT 1",
		hash, now.UTC()))
}

// GetByResetToken finds the user holding an unexpired reset token digest.
func (r *UserRepo) GetByResetToken(ctx context.Context, hash string, now time.Time) (model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE reset_token_hash=? AND reset_expires_at > ? AND active=1 LIMIT 1",
		hash, now.UTC()))
}

// SetVerificationToken stores a verification digest. An empty hash clears it.
func (r *UserRepo) SetVerificationToken(ctx context.Context, id uint64, hash string, exp *time.Time) error {
	if hash == "" {
		exp = nil
	}
	return expectOne(r.db.ExecContext(ctx,
		"UPDATE users SET verification_token_hash=?, verification_expires_at=?, version=version+1 WHERE id=?",
		nullString(hash), exp, id))
}

// MarkVerified flags the email as verified and consumes the verification token.
func (r *UserRepo) MarkVerified(ctx context.Context, id uint64) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE users SET email_verified=1, verification_token_hash=NULL,
			verification_expires_at=NULL, version=version+1 WHERE id=?`, id))
}

// SetResetToken stores a password reset digest. An empty hash clears it.
func (r *UserRepo) SetResetToken(ctx context.Context, id uint64, hash string, exp *time.Time) error {
	if hash == "" {
		exp = nil
	}
	return expectOne(r.db.ExecContext(ctx,
		"UPDATE users SET reset_token_hash=?, reset_expires_at=?, version=version+1 WHERE id=?",
		nullString(hash), exp, id))
}

// UpdatePassword replaces the hash, records changedAt and consumes any
// pending reset token.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, hash string, changedAt time.Time) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE users SET password_hash=?, password_changed_at=?, reset_token_hash=NULL,
			reset_expires_at=NULL, version=version+1 WHERE id=?`,
		hash, changedAt.UTC(), id))
}

// Update applies the non-nil fields of p and returns the fresh row.
func (r *UserRepo) Update(ctx context.Context, id uint64, p model.UserPatch) (model.User, error) {
	sets := []string{}
	args := []any{}
	if p.Name != nil {
		sets = append(sets, "name=?")
		args = append(args, strings.TrimSpace(*p.Name))
	}
	if p.Email != nil {
		sets = append(sets, "email=?")
		args = append(args, normalizeEmail(*p.Email))
	}
	if p.Photo != nil {
		sets = append(sets, "photo=?")
		args = append(args, *p.Photo)
	}
	if p.Role != nil {
		sets = append(sets, "role=?")
		args = append(args, string(*p.Role))
	}
	if len(sets) > 0 {
		sets = append(sets, "version=version+1")
		args = append(args, id)
		err := expectOne(r.db.ExecContext(ctx,
			"UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id=? AND active=1", args...))
		if err != nil {
			return model.User{}, err
		}
	}
	return r.GetByID(ctx, id)
}

// Deactivate soft-deletes the account.
func (r *UserRepo) Deactivate(ctx context.Context, id uint64) error {
	return expectOne(r.db.ExecContext(ctx,
		"UPDATE users SET active=0, version=version+1 WHERE id=? AND active=1", id))
}

// Delete removes the account and, through cascading keys, its reviews and
// watch-later entries.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	return expectOne(r.db.ExecContext(ctx, "DELETE FROM users WHERE id=?", id))
}

// List runs a list query over active users.
func (r *UserRepo) List(ctx context.Context, q *query.Query) ([]Document, int64, error) {
	return usersTable.list(ctx, r.db, q)
}

// Stats counts users by activity, verification and role.
func (r *UserRepo) Stats(ctx context.Context) (model.UserStats, error) {
	var s model.UserStats
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*),
			COALESCE(SUM(active=1),0), COALESCE(SUM(active=0),0),
			COALESCE(SUM(email_verified=1),0), COALESCE(SUM(email_verified=0),0)
		FROM users`).Scan(&s.Total, &s.Active, &s.Inactive, &s.Verified, &s.Unverified)
	if err != nil {
		return s, mapError(err)
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT role, COUNT(*) FROM users WHERE active=1 GROUP BY role ORDER BY COUNT(*) DESC, role ASC")
	if err != nil {
		return s, mapError(err)
	}
	defer rows.Close()
	s.ByRole = []model.RoleCount{}
	for rows.Next() {
		var rc model.RoleCount
		var role string
		if err := rows.Scan(&role, &rc.Count); err != nil {
			return s, err
		}
		rc.Role = model.RoleName(role)
		s.ByRole = append(s.ByRole, rc)
	}
	return s, rows.Err()
}

// Watchlist returns the ids of movies on the user's watch-later list in the
// order they were added.
func (r *UserRepo) Watchlist(ctx context.Context, userID uint64) ([]uint64, error) {
	return watchlist(ctx, r.db, userID)
}

func watchlist(ctx context.Context, db database.DBTX, userID uint64) ([]uint64, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT movie_id FROM watchlist WHERE user_id=? ORDER BY created_at ASC, movie_id ASC", userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	ids := []uint64{}
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddToWatchlist adds movieID to the set; adding twice is a no-op.
// It returns the updated list.
func (r *UserRepo) AddToWatchlist(ctx context.Context, userID, movieID uint64) ([]uint64, error) {
	if _, err := r.db.ExecContext(ctx,
		"INSERT IGNORE INTO watchlist (user_id, movie_id) VALUES (?,?)", userID, movieID); err != nil {
		return nil, mapError(err)
	}
	return r.Watchlist(ctx, userID)
}

// RemoveFromWatchlist removes movieID from the set; removing an absent id
// is a no-op. It returns the updated list.
func (r *UserRepo) RemoveFromWatchlist(ctx context.Context, userID, movieID uint64) ([]uint64, error) {
	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM watchlist WHERE user_id=? AND movie_id=?", userID, movieID); err != nil {
		return nil, mapError(err)
	}
	return r.Watchlist(ctx, userID)
}
