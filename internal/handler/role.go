package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/scydb-api/internal/apperr"
	"github.com/iliyamo/scydb-api/internal/model"
	"github.com/iliyamo/scydb-api/internal/policy"
	"github.com/iliyamo/scydb-api/internal/query"
	"github.com/iliyamo/scydb-api/internal/repository"
)

const (
	msgNoRole           = "No role found with that ID"
	msgDuplicateRole    = "Role with this name already exists"
	msgBadPermissions   = "Invalid permissions provided"
	msgRoleNameTooShort = "Role name must be at least 2 characters long"
)

// RoleHandler serves /roles. Any signed-in user may read; writes are
// restricted to super-admins by the router.
type RoleHandler struct {
	Roles    RoleStore
	MaxLimit int
}

func NewRoleHandler(roles RoleStore, maxLimit int) *RoleHandler {
	return &RoleHandler{Roles: roles, MaxLimit: maxLimit}
}

type roleReq struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description" validate:"max=200"`
	Permissions []string `json:"permissions"`
}

type rolePatchReq struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description" validate:"omitempty,max=200"`
	Permissions []string `json:"permissions"`
}

func (h *RoleHandler) List(c echo.Context) error {
	q, err := query.NewFeatures(query.From("roles"), query.Params(c.QueryParams())).
		WithMaxLimit(h.MaxLimit).
		Filter().Sort().LimitFields().Paginate().
		Query()
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	roles, _, err := h.Roles.List(ctx, q)
	if err != nil {
		return err
	}
	return respondList(c, len(roles), echo.Map{"roles": roles})
}

// Stats lists every role with the number of users holding it, most held
// first.
func (h *RoleHandler) Stats(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	stats, err := h.Roles.Stats(ctx)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"stats": stats})
}

func (h *RoleHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id", msgNoRole)
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	r, err := h.Roles.GetByID(ctx, id)
	if err != nil {
		return notFoundAs(err, msgNoRole)
	}
	return respond(c, http.StatusOK, echo.Map{"role": r})
}

// roleName validates and normalizes a requested role name.
func roleName(raw string) (model.RoleName, error) {
	name := model.NormalizeRoleName(raw)
	if name == "" {
		return "", apperr.BadRequest("Role name is required")
	}
	if len(name) < 2 {
		return "", apperr.BadRequest(msgRoleNameTooShort)
	}
	return name, nil
}

func (h *RoleHandler) Create(c echo.Context) error {
	var req roleReq
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("Invalid request body")
	}
	name, err := roleName(req.Name)
	if err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	perms, err := model.ParsePermissions(req.Permissions)
	if err != nil {
		return apperr.BadRequest(msgBadPermissions)
	}
	r := model.Role{Name: name, Description: strings.TrimSpace(req.Description), Permissions: perms}

	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.Roles.Create(ctx, &r); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return apperr.BadRequest(msgDuplicateRole)
		}
		return err
	}
	return respond(c, http.StatusCreated, echo.Map{"role": r})
}

// Update changes a role. Renaming a built-in role is refused; any other
// rename is carried over to the users holding the role.
func (h *RoleHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id", msgNoRole)
	if err != nil {
		return err
	}
	var req rolePatchReq
	if err := bind(c, &req); err != nil {
		return err
	}
	var p model.RolePatch
	if req.Name != nil {
		name, err := roleName(*req.Name)
		if err != nil {
			return err
		}
		p.Name = &name
	}
	p.Description = trimmed(req.Description)
	if req.Permissions != nil {
		if p.Permissions, err = model.ParsePermissions(req.Permissions); err != nil {
			return apperr.BadRequest(msgBadPermissions)
		}
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	current, err := h.Roles.GetByID(ctx, id)
	if err != nil {
		return notFoundAs(err, msgNoRole)
	}
	if p.Name != nil {
		if err := policy.CheckRoleRename(current, *p.Name); err != nil {
			return err
		}
	}
	r, err := h.Roles.Update(ctx, id, p)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return apperr.BadRequest(msgDuplicateRole)
		}
		return notFoundAs(err, msgNoRole)
	}
	return respond(c, http.StatusOK, echo.Map{"role": r})
}

// Delete removes a custom role nobody holds.
func (h *RoleHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id", msgNoRole)
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	r, err := h.Roles.GetByID(ctx, id)
	if err != nil {
		return notFoundAs(err, msgNoRole)
	}
	holders, err := h.Roles.CountHolders(ctx, r.Name)
	if err != nil {
		return err
	}
	if err := policy.CheckRoleDeletion(r, holders); err != nil {
		return err
	}
	if err := h.Roles.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrInUse) {
			return apperr.Conflict("Cannot delete role that is assigned to users")
		}
		return notFoundAs(err, msgNoRole)
	}
	return c.NoContent(http.StatusNoContent)
}
