package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/scydb-api/internal/apperr"
	"github.com/iliyamo/scydb-api/internal/middleware"
	"github.com/iliyamo/scydb-api/internal/model"
	"github.com/iliyamo/scydb-api/internal/policy"
	"github.com/iliyamo/scydb-api/internal/query"
	"github.com/iliyamo/scydb-api/internal/repository"
)

const (
	msgNoUser         = "No user found with that ID"
	msgEmailInUse     = "Email already in use"
	msgNotForPassword = "This route is not for password updates. Please use /me/password."
)

// UserHandler serves the current user's profile and watch list and the
// staff user administration.
type UserHandler struct {
	Users    UserStore
	Roles    RoleStore
	Movies   MovieStore
	MaxLimit int
}

func NewUserHandler(users UserStore, roles RoleStore, movies MovieStore, maxLimit int) *UserHandler {
	return &UserHandler{Users: users, Roles: roles, Movies: movies, MaxLimit: maxLimit}
}

// updateMeReq accepts the password fields only to reject them.
type updateMeReq struct {
	Name            *string `json:"name" validate:"omitempty,min=1,max=100"`
	Email           *string `json:"email" validate:"omitempty,email"`
	Photo           *string `json:"photo" validate:"omitempty,max=255"`
	Password        string  `json:"password"`
	PasswordConfirm string  `json:"passwordConfirm"`
}

type updateUserReq struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=100"`
	Email *string `json:"email" validate:"omitempty,email"`
	Photo *string `json:"photo" validate:"omitempty,max=255"`
	Role  *string `json:"role"`
}

func (h *UserHandler) current(c echo.Context) (model.User, error) {
	u, ok := middleware.UserFrom(c)
	if !ok {
		return model.User{}, apperr.Unauthenticated(middleware.MsgNotLoggedIn)
	}
	return u, nil
}

// Me returns the authenticated user.
func (h *UserHandler) Me(c echo.Context) error {
	u, err := h.current(c)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"user": u})
}

// UpdateMe changes name, email or photo of the current user. Every other
// field is ignored.
func (h *UserHandler) UpdateMe(c echo.Context) error {
	u, err := h.current(c)
	if err != nil {
		return err
	}
	var req updateMeReq
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("Invalid request body")
	}
	if req.Password != "" || req.PasswordConfirm != "" {
		return apperr.BadRequest(msgNotForPassword)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	patch := model.UserPatch{Name: trimmed(req.Name), Email: trimmed(req.Email), Photo: trimmed(req.Photo)}

	ctx, cancel := requestCtx(c)
	defer cancel()

	updated, err := h.Users.Update(ctx, u.ID, patch)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return apperr.BadRequest(msgEmailInUse)
		}
		return notFoundAs(err, msgNoUser)
	}
	return respond(c, http.StatusOK, echo.Map{"user": updated})
}

// DeleteMe deactivates the current account. The row is kept; the account
// can no longer log in.
func (h *UserHandler) DeleteMe(c echo.Context) error {
	u, err := h.current(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.Users.Deactivate(ctx, u.ID); err != nil {
		return notFoundAs(err, msgNoUser)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *UserHandler) AddToWatchlist(c echo.Context) error {
	return h.watchlist(c, true)
}

func (h *UserHandler) RemoveFromWatchlist(c echo.Context) error {
	return h.watchlist(c, false)
}

// watchlist adds or removes a movie; the list never holds duplicates and
// removing an absent movie is not an error.
func (h *UserHandler) watchlist(c echo.Context, add bool) error {
	u, err := h.current(c)
	if err != nil {
		return err
	}
	movieID, err := pathID(c, "movieId", msgNoMovie)
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	if add {
		exists, err := h.Movies.Exists(ctx, movieID)
		if err != nil {
			return err
		}
		if !exists {
			return apperr.NotFound(msgNoMovie)
		}
		u.WatchLater, err = h.Users.AddToWatchlist(ctx, u.ID, movieID)
		if err != nil {
			return err
		}
	} else {
		if u.WatchLater, err = h.Users.RemoveFromWatchlist(ctx, u.ID, movieID); err != nil {
			return err
		}
	}
	if u.WatchLater == nil {
		u.WatchLater = []uint64{}
	}
	return respond(c, http.StatusOK, echo.Map{"user": u})
}

// AvailableRoles lists the names a user may be assigned.
func (h *UserHandler) AvailableRoles(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	names, err := h.Roles.Names(ctx)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"roles": names})
}

func (h *UserHandler) List(c echo.Context) error {
	q, err := query.NewFeatures(query.From("users"), query.Params(c.QueryParams())).
		WithMaxLimit(h.MaxLimit).
		Filter().Sort().LimitFields().Paginate().
		Query()
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	users, _, err := h.Users.List(ctx, q)
	if err != nil {
		return err
	}
	return respondList(c, len(users), echo.Map{"users": users})
}

func (h *UserHandler) Stats(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	stats, err := h.Users.Stats(ctx)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"stats": stats})
}

func (h *UserHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id", msgNoUser)
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return notFoundAs(err, msgNoUser)
	}
	return respond(c, http.StatusOK, echo.Map{"user": u})
}

// Update lets staff change a user's profile. Staff accounts other than the
// caller's own are reserved to a super-admin, as is setting the role, which
// must name an existing role.
func (h *UserHandler) Update(c echo.Context) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return apperr.Unauthenticated(middleware.MsgNotLoggedIn)
	}
	id, err := pathID(c, "id", msgNoUser)
	if err != nil {
		return err
	}
	var req updateUserReq
	if err := bind(c, &req); err != nil {
		return err
	}
	patch := model.UserPatch{Name: trimmed(req.Name), Email: trimmed(req.Email), Photo: trimmed(req.Photo)}

	ctx, cancel := requestCtx(c)
	defer cancel()

	target, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return notFoundAs(err, msgNoUser)
	}
	if err := policy.CheckUserEdit(p, target); err != nil {
		return err
	}

	if req.Role != nil {
		role := model.NormalizeRoleName(*req.Role)
		exists := false
		if p.Role == model.RoleSuperAdmin {
			if exists, err = h.Roles.Exists(ctx, role); err != nil {
				return err
			}
		}
		if err := policy.CheckRoleAssignment(p, role, exists); err != nil {
			return err
		}
		patch.Role = &role
	}

	u, err := h.Users.Update(ctx, id, patch)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return apperr.BadRequest(msgEmailInUse)
		case errors.Is(err, repository.ErrNotFound):
			return apperr.NotFound(msgNoUser)
		}
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"user": u})
}

// Delete permanently removes an account. Super-admin only.
func (h *UserHandler) Delete(c echo.Context) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return apperr.Unauthenticated(middleware.MsgNotLoggedIn)
	}
	if err := policy.CheckUserDeletion(p); err != nil {
		return err
	}
	id, err := pathID(c, "id", msgNoUser)
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.Users.Delete(ctx, id); err != nil {
		return notFoundAs(err, msgNoUser)
	}
	return c.NoContent(http.StatusNoContent)
}

// ToggleRole flips a user between client and admin. Super-admins cannot be
// toggled.
func (h *UserHandler) ToggleRole(c echo.Context) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return apperr.Unauthenticated(middleware.MsgNotLoggedIn)
	}
	id, err := pathID(c, "id", msgNoUser)
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	target, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return notFoundAs(err, msgNoUser)
	}
	if err := policy.CheckRoleToggle(p, target); err != nil {
		return err
	}
	role := policy.ToggledRole(target.Role)
	u, err := h.Users.Update(ctx, id, model.UserPatch{Role: &role})
	if err != nil {
		return notFoundAs(err, msgNoUser)
	}
	return respond(c, http.StatusOK, echo.Map{"user": u})
}
