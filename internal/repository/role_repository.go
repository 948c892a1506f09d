package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/iliyamo/scydb-api/internal/model"
	"github.com/iliyamo/scydb-api/internal/query"
)

// RoleRepo persists the role registry.
type RoleRepo struct{ db *sql.DB }

func NewRoleRepo(db *sql.DB) *RoleRepo { return &RoleRepo{db: db} }

func scanRole(row interface{ Scan(...any) error }) (model.Role, error) {
	var (
		r     model.Role
		name  string
		perms []byte
	)
	if err := row.Scan(&r.ID, &name, &r.Description, &perms, &r.CreatedAt); err != nil {
		return model.Role{}, mapError(err)
	}
	r.Name = model.RoleName(name)
	r.Permissions = []model.Permission{}
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &r.Permissions); err != nil {
			return model.Role{}, err
		}
	}
	return r, nil
}

func encodePermissions(p []model.Permission) (string, error) {
	if p == nil {
		p = []model.Permission{}
	}
	b, err := json.Marshal(p)
	return string(b), err
}

// List runs a list query over roles.
func (r *RoleRepo) List(ctx context.Context, q *query.Query) ([]Document, int64, error) {
	return rolesTable.list(ctx, r.db, q)
}

// GetByID fetches one role.
func (r *RoleRepo) GetByID(ctx context.Context, id uint64) (model.Role, error) {
	return scanRole(r.db.QueryRowContext(ctx,
		"SELECT id, name, description, permissions, created_at FROM roles WHERE id=? LIMIT 1", id))
}

// Exists reports whether a role with the given name is registered.
func (r *RoleRepo) Exists(ctx context.Context, name model.RoleName) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM roles WHERE name=? LIMIT 1", string(name)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, mapError(err)
	}
	return true, nil
}

// Names lists every registered role name.
func (r *RoleRepo) Names(ctx context.Context) ([]model.RoleName, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT name FROM roles ORDER BY id ASC")
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	out := []model.RoleName{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, model.RoleName(n))
	}
	return out, rows.Err()
}

// Create inserts role and sets its ID. A taken name yields ErrDuplicate.
func (r *RoleRepo) Create(ctx context.Context, role *model.Role) error {
	perms, err := encodePermissions(role.Permissions)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO roles (name, description, permissions) VALUES (?,?,?)",
		string(role.Name), role.Description, perms)
	if err != nil {
		return mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	role.ID = uint64(id)
	return nil
}

// Update applies the non-nil fields of p. A rename cascades to users.role
// through the foreign key.
func (r *RoleRepo) Update(ctx context.Context, id uint64, p model.RolePatch) (model.Role, error) {
	sets := []string{}
	args := []any{}
	if p.Name != nil {
		sets = append(sets, "name=?")
		args = append(args, string(*p.Name))
	}
	if p.Description != nil {
		sets = append(sets, "description=?")
		args = append(args, strings.TrimSpace(*p.Description))
	}
	if p.Permissions != nil {
		perms, err := encodePermissions(p.Permissions)
		if err != nil {
			return model.Role{}, err
		}
		sets = append(sets, "permissions=?")
		args = append(args, perms)
	}
	if len(sets) > 0 {
		sets = append(sets, "version=version+1")
		args = append(args, id)
		if err := expectOne(r.db.ExecContext(ctx,
			"UPDATE roles SET "+strings.Join(sets, ", ")+" WHERE id=?", args...)); err != nil {
			return model.Role{}, err
		}
	}
	return r.GetByID(ctx, id)
}

// CountHolders counts users (active or not) holding the named role.
func (r *RoleRepo) CountHolders(ctx context.Context, name model.RoleName) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE role=?", string(name)).Scan(&n)
	return n, mapError(err)
}

// Delete removes a role. A role still referenced by users yields ErrInUse.
func (r *RoleRepo) Delete(ctx context.Context, id uint64) error {
	return expectOne(r.db.ExecContext(ctx, "DELETE FROM roles WHERE id=?", id))
}

// Stats returns every role with its number of active holders, most used first.
func (r *RoleRepo) Stats(ctx context.Context) ([]model.RoleStat, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT r.id, r.name, r.description, r.permissions,
			COUNT(u.id) AS user_count
		FROM roles r
		LEFT JOIN users u ON u.role = r.name AND u.active = 1
		GROUP BY r.id
		ORDER BY user_count DESC, r.name ASC`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	out := []model.RoleStat{}
	for rows.Next() {
		var (
			s     model.RoleStat
			name  string
			perms []byte
		)
		if err := rows.Scan(&s.ID, &name, &s.Description, &perms, &s.UserCount); err != nil {
			return nil, err
		}
		s.Name = model.RoleName(name)
		s.Permissions = []model.Permission{}
		if len(perms) > 0 {
			if err := json.Unmarshal(perms, &s.Permissions); err != nil {
				return nil, err
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
