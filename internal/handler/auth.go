package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/scydb-api/internal/apperr"
	"github.com/iliyamo/scydb-api/internal/config"
	"github.com/iliyamo/scydb-api/internal/mail"
	"github.com/iliyamo/scydb-api/internal/middleware"
	"github.com/iliyamo/scydb-api/internal/model"
	"github.com/iliyamo/scydb-api/internal/observability/metrics"
	"github.com/iliyamo/scydb-api/internal/queue"
	"github.com/iliyamo/scydb-api/internal/repository"
	"github.com/iliyamo/scydb-api/internal/utils"
)

const (
	msgTokenInvalid   = "Token is invalid or has expired"
	msgBadCredentials = "Incorrect email or password"
	msgNotVerified    = "Please verify your email address before logging in."
	msgNoSuchEmail    = "There is no user with that email address."
)

// AuthHandler bundles dependencies for the /auth endpoints and the
// password change of the current user.
type AuthHandler struct {
	Cfg     config.Config
	Users   UserStore
	Mailer  mail.Sender
	Events  queue.Publisher
	Metrics *metrics.Metrics
	Log     *zap.Logger
}

func NewAuthHandler(cfg config.Config, users UserStore, mailer mail.Sender, events queue.Publisher,
	m *metrics.Metrics, log *zap.Logger) *AuthHandler {
	if events == nil {
		events = queue.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{Cfg: cfg, Users: users, Mailer: mailer, Events: events, Metrics: m, Log: log}
}

// ----- DTOs -----

type signupReq struct {
	Name            string `json:"name" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailReq struct {
	Email string `json:"email" validate:"required,email"`
}

type resetReq struct {
	Password        string `json:"password" validate:"required,min=8,max=72"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

type updatePasswordReq struct {
	PasswordCurrent string `json:"passwordCurrent" validate:"required"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

// sendToken issues a session token, sets the jwt cookie and writes the
// user with the token.
func (h *AuthHandler) sendToken(c echo.Context, u model.User, code int) error {
	return h.sendTokenAt(c, u, code, time.Now())
}

func (h *AuthHandler) sendTokenAt(c echo.Context, u model.User, code int, issuedAt time.Time) error {
	tok, err := utils.NewSessionTokenAt(h.Cfg.JWTSecret, u.ID, h.Cfg.JWTTTL, issuedAt)
	if err != nil {
		return apperr.Internal(err)
	}
	c.SetCookie(middleware.SessionCookieFor(tok.Token, int(h.Cfg.CookieTTL().Seconds()), h.Cfg.IsProduction()))
	return c.JSON(code, envelope{Status: "success", Token: tok.Token, Data: echo.Map{"user": u}})
}

// Signup creates an unverified client account and mails the verification
// link. A role sent in the body is ignored. In strict mode no session is
// issued until the address is verified.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupReq
	if err := bind(c, &req); err != nil {
		h.Metrics.Registration(false)
		return err
	}
	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return apperr.Internal(err)
	}
	vt, err := utils.NewOneTimeToken(utils.VerificationTTL)
	if err != nil {
		return apperr.Internal(err)
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	u := model.User{
		Name:                  strings.TrimSpace(req.Name),
		Email:                 req.Email,
		PasswordHash:          hash,
		Role:                  model.RoleClient,
		VerificationTokenHash: vt.Hash,
		VerificationExpiresAt: &vt.ExpiresAt,
	}
	if err := h.Users.Create(ctx, &u); err != nil {
		h.Metrics.Registration(false)
		if errors.Is(err, repository.ErrDuplicate) {
			return apperr.BadRequest("Email already in use")
		}
		return apperr.Internal(err)
	}
	h.Metrics.Registration(true)
	emit(c, h.Events, queue.NewEvent(queue.EventUserSignedUp, u.ID, nil))

	if err := h.sendVerification(ctx, u, vt.Plain); err != nil {
		return err
	}
	u.VerificationTokenHash, u.VerificationExpiresAt = "", nil

	if h.Cfg.RequireEmailVerification {
		return c.JSON(http.StatusCreated, envelope{
			Status:  "success",
			Message: "Account created. Please check your email to verify your address.",
			Data:    echo.Map{"user": u},
		})
	}
	return h.sendToken(c, u, http.StatusCreated)
}

// sendVerification mails the link for plain. When delivery fails the
// stored token is cleared so a retry starts from a clean state.
func (h *AuthHandler) sendVerification(ctx context.Context, u model.User, plain string) error {
	msg, err := mail.VerificationEmail(u.Email, u.Name, mail.VerificationLink(h.Cfg.FrontendURL, plain))
	if err != nil {
		return apperr.Internal(err)
	}
	if err := h.Mailer.Send(ctx, msg); err != nil {
		h.Metrics.Email("verification", false)
		h.Log.Warn("verification email failed", zap.Uint64("user_id", u.ID), zap.Error(err))
		if cerr := h.Users.SetVerificationToken(ctx, u.ID, "", nil); cerr != nil {
			return apperr.Internal(cerr)
		}
		return apperr.Delivery(err)
	}
	h.Metrics.Email("verification", true)
	return nil
}

// Login checks the credentials and issues a session.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return apperr.BadRequest("Invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return apperr.BadRequest("Please provide email and password!")
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperr.Internal(err)
	}
	if err != nil || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		h.Metrics.Login(false)
		return apperr.Unauthenticated(msgBadCredentials)
	}
	if h.Cfg.RequireEmailVerification && !u.EmailVerified {
		h.Metrics.Login(false)
		return apperr.Forbidden(msgNotVerified)
	}
	h.Metrics.Login(true)
	return h.sendToken(c, u, http.StatusOK)
}

// Logout overwrites the session cookie with a short-lived sentinel.
func (h *AuthHandler) Logout(c echo.Context) error {
	c.SetCookie(middleware.SessionCookieFor(utils.LoggedOutToken, 10, h.Cfg.IsProduction()))
	return c.JSON(http.StatusOK, envelope{Status: "success"})
}

// VerifyEmail consumes a verification token and logs the user in.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	plain := c.Param("token")
	if plain == "" {
		return apperr.BadRequest(msgTokenInvalid)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Users.GetByVerificationToken(ctx, utils.HashOneTimeToken(plain), time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.BadRequest(msgTokenInvalid)
		}
		return apperr.Internal(err)
	}
	if err := h.Users.MarkVerified(ctx, u.ID); err != nil {
		return apperr.Internal(err)
	}
	u.EmailVerified = true
	u.VerificationTokenHash, u.VerificationExpiresAt = "", nil
	emit(c, h.Events, queue.NewEvent(queue.EventUserVerified, u.ID, nil))
	return h.sendToken(c, u, http.StatusOK)
}

// ResendVerification issues a fresh verification token, replacing any
// pending one.
func (h *AuthHandler) ResendVerification(c echo.Context) error {
	var req emailReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound(msgNoSuchEmail)
		}
		return apperr.Internal(err)
	}
	if u.EmailVerified {
		return apperr.BadRequest("Email is already verified")
	}
	vt, err := utils.NewOneTimeToken(utils.VerificationTTL)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := h.Users.SetVerificationToken(ctx, u.ID, vt.Hash, &vt.ExpiresAt); err != nil {
		return apperr.Internal(err)
	}
	if err := h.sendVerification(ctx, u, vt.Plain); err != nil {
		return err
	}
	return respondMessage(c, http.StatusOK, "Verification email sent!")
}

// ForgotPassword mails a password reset link valid for 30 minutes.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req emailReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound(msgNoSuchEmail)
		}
		return apperr.Internal(err)
	}
	rt, err := utils.NewOneTimeToken(utils.ResetTTL)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := h.Users.SetResetToken(ctx, u.ID, rt.Hash, &rt.ExpiresAt); err != nil {
		return apperr.Internal(err)
	}

	msg, err := mail.ResetEmail(u.Email, mail.ResetLink(h.Cfg.FrontendURL, rt.Plain))
	if err != nil {
		return apperr.Internal(err)
	}
	if err := h.Mailer.Send(ctx, msg); err != nil {
		h.Metrics.Email("reset", false)
		h.Log.Warn("reset email failed", zap.Uint64("user_id", u.ID), zap.Error(err))
		if cerr := h.Users.SetResetToken(ctx, u.ID, "", nil); cerr != nil {
			return apperr.Internal(cerr)
		}
		return apperr.Delivery(err)
	}
	h.Metrics.Email("reset", true)
	return respondMessage(c, http.StatusOK, "Token sent to email!")
}

// ResetPassword consumes a reset token, sets the new password and logs the
// user in. Sessions issued before the change stop working.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	plain := c.Param("token")
	var req resetReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Users.GetByResetToken(ctx, utils.HashOneTimeToken(plain), time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.BadRequest(msgTokenInvalid)
		}
		return apperr.Internal(err)
	}
	changedAt, err := h.changePassword(ctx, c, u.ID, req.Password)
	if err != nil {
		return err
	}
	return h.sendTokenAt(c, u, http.StatusOK, model.SessionIssuedAfter(changedAt))
}

// UpdatePassword changes the password of the logged-in user after checking
// the current one.
func (h *AuthHandler) UpdatePassword(c echo.Context) error {
	me, ok := middleware.UserFrom(c)
	if !ok {
		return apperr.Unauthenticated(middleware.MsgNotLoggedIn)
	}
	var req updatePasswordReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if !utils.VerifyPassword(me.PasswordHash, req.PasswordCurrent) {
		return apperr.Unauthenticated("Your current password is wrong.")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	changedAt, err := h.changePassword(ctx, c, me.ID, req.Password)
	if err != nil {
		return err
	}
	return h.sendTokenAt(c, me, http.StatusOK, model.SessionIssuedAfter(changedAt))
}

// changePassword stores the new hash, stamps passwordChangedAt in whole
// seconds and clears any pending reset token. It returns the stamp.
func (h *AuthHandler) changePassword(ctx context.Context, c echo.Context, id uint64, plain string) (time.Time, error) {
	hash, err := utils.HashPassword(plain, h.Cfg.BcryptCost)
	if err != nil {
		return time.Time{}, apperr.Internal(err)
	}
	changedAt := time.Now().UTC().Truncate(time.Second)
	if err := h.Users.UpdatePassword(ctx, id, hash, changedAt); err != nil {
		return time.Time{}, apperr.Internal(err)
	}
	emit(c, h.Events, queue.NewEvent(queue.EventPasswordChanged, id, nil))
	return changedAt, nil
}

// Check reports the user behind the current session.
func (h *AuthHandler) Check(c echo.Context) error {
	u, ok := middleware.UserFrom(c)
	if !ok {
		return apperr.Unauthenticated(middleware.MsgNotLoggedIn)
	}
	return respond(c, http.StatusOK, echo.Map{"user": u})
}
