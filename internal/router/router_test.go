package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/scydb-api/internal/config"
	"github.com/iliyamo/scydb-api/internal/handler"
	"github.com/iliyamo/scydb-api/internal/handler/handlertest"
	"github.com/iliyamo/scydb-api/internal/middleware"
	"github.com/iliyamo/scydb-api/internal/model"
	"github.com/iliyamo/scydb-api/internal/queue"
	"github.com/iliyamo/scydb-api/internal/utils"
)

const (
	testSecret   = "router-test-secret"
	testPassword = "password123"
)

var tokenRe = regexp.MustCompile(`token=([0-9a-f]{64})`)

type testApp struct {
	t       *testing.T
	e       *echo.Echo
	cfg     config.Config
	users   *handlertest.Users
	roles   *handlertest.Roles
	movies  *handlertest.Movies
	genres  *handlertest.Genres
	reviews *handlertest.Reviews
	mailer  *handlertest.Mailer
	events  *handlertest.Events
}

func newTestApp(t *testing.T, strict bool) *testApp {
	t.Helper()
	a := &testApp{
		t: t,
		cfg: config.Config{
			Env:                      "test",
			JWTSecret:                testSecret,
			JWTTTL:                   time.Hour,
			JWTCookieTTLDays:         1,
			BcryptCost:               bcrypt.MinCost,
			RequireEmailVerification: strict,
			FrontendURL:              "http://front.test",
			QueryMaxLimit:            100,
		},
		users:  handlertest.NewUsers(),
		movies: handlertest.NewMovies(),
		mailer: &handlertest.Mailer{},
		events: &handlertest.Events{},
	}
	a.roles = handlertest.NewRoles(a.users)
	a.genres = handlertest.NewGenres(a.movies)
	a.reviews = handlertest.NewReviews(a.users)

	a.e = echo.New()
	a.e.Validator = handler.NewValidator()
	a.e.HTTPErrorHandler = handler.ErrorHandler(nil, false)

	Register(a.e, Handlers{
		Auth:    handler.NewAuthHandler(a.cfg, a.users, a.mailer, a.events, nil, nil),
		Movies:  handler.NewMovieHandler(a.movies, a.reviews, a.cfg.QueryMaxLimit),
		Reviews: handler.NewReviewHandler(a.reviews, a.movies, a.events, nil, a.cfg.QueryMaxLimit),
		Genres:  handler.NewGenreHandler(a.genres, a.events, a.cfg.QueryMaxLimit),
		Roles:   handler.NewRoleHandler(a.roles, a.cfg.QueryMaxLimit),
		Users:   handler.NewUserHandler(a.users, a.roles, a.movies, a.cfg.QueryMaxLimit),
		Health:  &handler.HealthHandler{},
	}, Middleware{
		Guard: middleware.Guard{Secret: testSecret, Users: a.users, RequireVerified: strict},
	})
	return a
}

type response struct {
	Code    int
	Cookies []*http.Cookie
	Body    map[string]any
}

func (r response) message() string {
	s, _ := r.Body["message"].(string)
	return s
}

func (r response) token() string {
	s, _ := r.Body["token"].(string)
	return s
}

// data walks the data object along keys.
func (r response) data(keys ...string) any {
	var cur any = r.Body["data"]
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[k]
	}
	return cur
}

func (a *testApp) do(method, path string, body any, token string) response {
	a.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		require.NoError(a.t, err)
		rd = bytes.NewReader(bs)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, APIPrefix+path, rd)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	res := response{Code: rec.Code, Cookies: rec.Result().Cookies()}
	if rec.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &res.Body), rec.Body.String())
	}
	return res
}

// seed stores an active, verified user and returns it with a session token.
func (a *testApp) seed(name string, role model.RoleName) (model.User, string) {
	a.t.Helper()
	hash, err := utils.HashPassword(testPassword, bcrypt.MinCost)
	require.NoError(a.t, err)
	u := a.users.Put(model.User{
		Name:          name,
		Email:         fmt.Sprintf("%s@example.com", name),
		PasswordHash:  hash,
		Role:          role,
		Active:        true,
		EmailVerified: true,
	})
	tok, err := utils.NewSessionToken(testSecret, u.ID, time.Hour)
	require.NoError(a.t, err)
	return u, tok.Token
}

func (a *testApp) movie(title string, genres ...string) model.Movie {
	a.t.Helper()
	m := model.Movie{Title: title, Year: 2000, Duration: 100, Genre: genres, Director: "D", Cast: []string{"A"}}
	require.NoError(a.t, a.movies.Create(context.Background(), &m))
	return m
}

func (a *testApp) mailedToken() string {
	a.t.Helper()
	msg, ok := a.mailer.Last()
	require.True(a.t, ok, "no email sent")
	m := tokenRe.FindStringSubmatch(msg.Text)
	require.Len(a.t, m, 2, msg.Text)
	return m[1]
}

func signupBody(email string) map[string]any {
	return map[string]any{
		"name":            "Ann",
		"email":           email,
		"password":        testPassword,
		"passwordConfirm": testPassword,
		"role":            "super-admin",
	}
}

func TestHealthz(t *testing.T) {
	a := newTestApp(t, false)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSignupIssuesClientSession(t *testing.T) {
	a := newTestApp(t, false)

	res := a.do(http.MethodPost, "/auth/signup", signupBody("Ann@Example.com"), "")
	require.Equal(t, http.StatusCreated, res.Code, res.Body)
	assert.NotEmpty(t, res.token())
	assert.Equal(t, "client", res.data("user", "role"))
	assert.Equal(t, "ann@example.com", res.data("user", "email"))
	assert.Equal(t, false, res.data("user", "emailVerified"))

	var cookie *http.Cookie
	for _, c := range res.Cookies {
		if c.Name == middleware.SessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, res.token(), cookie.Value)

	msg, ok := a.mailer.Last()
	require.True(t, ok)
	assert.Equal(t, "ann@example.com", msg.To)
	assert.Len(t, a.events.OfType(queue.EventUserSignedUp), 1)

	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/auth/check", nil, res.token()).Code)

	dup := a.do(http.MethodPost, "/auth/signup", signupBody("ann@example.com"), "")
	assert.Equal(t, http.StatusBadRequest, dup.Code)
	assert.Equal(t, "Email already in use", dup.message())
}

func TestSignupRejectsMismatchedPasswords(t *testing.T) {
	a := newTestApp(t, false)
	body := signupBody("bob@example.com")
	body["passwordConfirm"] = "something-else"

	res := a.do(http.MethodPost, "/auth/signup", body, "")
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "fail", res.Body["status"])
	assert.Equal(t, "Invalid input data. Passwords are not the same!", res.message())
	assert.Empty(t, a.mailer.Sent)
}

func TestSignupDeliveryFailureClearsToken(t *testing.T) {
	a := newTestApp(t, false)
	a.mailer.Err = errors.New("smtp unreachable")

	res := a.do(http.MethodPost, "/auth/signup", signupBody("cy@example.com"), "")
	assert.Equal(t, http.StatusInternalServerError, res.Code)
	assert.Equal(t, "error", res.Body["status"])
	assert.Equal(t, "There was an error sending the email. Try again later!", res.message())

	u, ok := a.users.Raw(1)
	require.True(t, ok)
	assert.Empty(t, u.VerificationTokenHash)
	assert.Nil(t, u.VerificationExpiresAt)
}

func TestStrictModeRequiresVerification(t *testing.T) {
	a := newTestApp(t, true)

	res := a.do(http.MethodPost, "/auth/signup", signupBody("dee@example.com"), "")
	require.Equal(t, http.StatusCreated, res.Code)
	assert.Empty(t, res.token())
	assert.NotEmpty(t, res.message())

	login := map[string]any{"email": "dee@example.com", "password": testPassword}
	res = a.do(http.MethodPost, "/auth/login", login, "")
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "Please verify your email address before logging in.", res.message())

	token := a.mailedToken()
	res = a.do(http.MethodGet, "/auth/verify-email/"+token, nil, "")
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	assert.NotEmpty(t, res.token())
	assert.Equal(t, true, res.data("user", "emailVerified"))
	assert.Len(t, a.events.OfType(queue.EventUserVerified), 1)

	res = a.do(http.MethodGet, "/auth/verify-email/"+token, nil, "")
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "Token is invalid or has expired", res.message())

	res = a.do(http.MethodPost, "/auth/login", login, "")
	assert.Equal(t, http.StatusOK, res.Code)

	res = a.do(http.MethodPost, "/auth/resend-verification", map[string]any{"email": "dee@example.com"}, "")
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "Email is already verified", res.message())
}

func TestLoginFailures(t *testing.T) {
	a := newTestApp(t, false)
	a.seed("eve", model.RoleClient)

	res := a.do(http.MethodPost, "/auth/login", map[string]any{"email": "eve@example.com"}, "")
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = a.do(http.MethodPost, "/auth/login", map[string]any{"email": "eve@example.com", "password": "wrong-one"}, "")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "Incorrect email or password", res.message())

	res = a.do(http.MethodPost, "/auth/login", map[string]any{"email": "nobody@example.com", "password": testPassword}, "")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "Incorrect email or password", res.message())
}

func TestLogoutOverwritesCookie(t *testing.T) {
	a := newTestApp(t, false)
	res := a.do(http.MethodGet, "/auth/logout", nil, "")
	require.Equal(t, http.StatusOK, res.Code)
	require.Len(t, res.Cookies, 1)
	assert.Equal(t, utils.LoggedOutToken, res.Cookies[0].Value)
	assert.Equal(t, 10, res.Cookies[0].MaxAge)
}

func TestPasswordResetInvalidatesOlderSessions(t *testing.T) {
	a := newTestApp(t, false)
	u, _ := a.seed("fay", model.RoleClient)
	old, err := utils.NewSessionTokenAt(testSecret, u.ID, 2*time.Hour, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/auth/check", nil, old.Token).Code)

	res := a.do(http.MethodPost, "/auth/forgot-password", map[string]any{"email": "fay@example.com"}, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "Token sent to email!", res.message())

	reset := map[string]any{"password": "brand-new-pass", "passwordConfirm": "brand-new-pass"}
	res = a.do(http.MethodPatch, "/auth/reset-password/"+a.mailedToken(), reset, "")
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	fresh := res.token()
	assert.NotEmpty(t, fresh)

	res = a.do(http.MethodGet, "/auth/check", nil, old.Token)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, middleware.MsgPasswordChanged, res.message())
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/auth/check", nil, fresh).Code)

	res = a.do(http.MethodPost, "/auth/login", map[string]any{"email": "fay@example.com", "password": "brand-new-pass"}, "")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Len(t, a.events.OfType(queue.EventPasswordChanged), 1)

	res = a.do(http.MethodPost, "/auth/forgot-password", map[string]any{"email": "ghost@example.com"}, "")
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestUpdatePassword(t *testing.T) {
	a := newTestApp(t, false)
	_, tok := a.seed("gus", model.RoleClient)

	body := map[string]any{"passwordCurrent": "not-it", "password": "another-pass", "passwordConfirm": "another-pass"}
	res := a.do(http.MethodPatch, "/users/me/password", body, tok)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "Your current password is wrong.", res.message())

	body["passwordCurrent"] = testPassword
	res = a.do(http.MethodPatch, "/users/me/password", body, tok)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	fresh := res.token()
	require.NotEmpty(t, fresh)

	// the session used for the change is from the same second or earlier
	res = a.do(http.MethodGet, "/auth/check", nil, tok)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, middleware.MsgPasswordChanged, res.message())
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/auth/check", nil, fresh).Code)
}

func TestMovieWritesNeedStaff(t *testing.T) {
	a := newTestApp(t, false)
	_, client := a.seed("hal", model.RoleClient)
	_, admin := a.seed("ida", model.RoleAdmin)
	body := map[string]any{
		"title": "Heat", "year": 1995, "duration": 170, "genre": []string{"Crime"},
		"director": "Michael Mann", "cast": []string{"Al Pacino", "Robert De Niro"},
		"description": "Cops and robbers.", "poster": "p.jpg", "backdrop": "b.jpg", "trailer": "t.mp4",
	}

	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodPost, "/movies", body, "").Code)
	res := a.do(http.MethodPost, "/movies", body, client)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, middleware.MsgNoPermission, res.message())

	res = a.do(http.MethodPost, "/movies", body, admin)
	require.Equal(t, http.StatusCreated, res.Code, res.Body)
	assert.Equal(t, "Heat", res.data("movie", "title"))

	res = a.do(http.MethodPost, "/movies", body, admin)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "Movie with this title already exists", res.message())

	res = a.do(http.MethodPatch, "/movies/1", map[string]any{"year": 1996}, admin)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.EqualValues(t, 1996, res.data("movie", "year"))

	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, "/movies/1", nil, admin).Code)
	res = a.do(http.MethodDelete, "/movies/1", nil, admin)
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "No movie found with that ID", res.message())
}

func TestMovieListPagination(t *testing.T) {
	a := newTestApp(t, false)
	for i := 1; i <= 5; i++ {
		a.movie(fmt.Sprintf("Movie %d", i), "Drama")
	}

	res := a.do(http.MethodGet, "/movies?page=2&limit=2", nil, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.EqualValues(t, 2, res.Body["results"])
	assert.EqualValues(t, 5, res.data("totalResults"))
	assert.EqualValues(t, 3, res.data("totalPages"))
	assert.EqualValues(t, 2, res.data("currentPage"))
	assert.Equal(t, true, res.data("hasNextPage"))
	assert.Equal(t, true, res.data("hasPrevPage"))
	assert.EqualValues(t, 2, res.data("pagination", "limit"))

	res = a.do(http.MethodGet, "/movies?limit=5000", nil, "")
	assert.Equal(t, 100, a.movies.LastFilter.Limit)
	assert.Equal(t, false, res.data("hasNextPage"))

	res = a.do(http.MethodGet, "/movies/abc", nil, "")
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "No movie found with that ID", res.message())

	res = a.do(http.MethodGet, "/movies/3", nil, "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "Movie 3", res.data("movie", "title"))
}

func TestOneReviewPerUserAndMovie(t *testing.T) {
	a := newTestApp(t, false)
	m := a.movie("Alien", "Horror")
	_, jo := a.seed("jo", model.RoleClient)
	_, kim := a.seed("kim", model.RoleClient)
	_, admin := a.seed("lee", model.RoleAdmin)
	path := fmt.Sprintf("/movies/%d/reviews", m.ID)

	res := a.do(http.MethodPost, path, map[string]any{"review": "Great", "rating": 9}, jo)
	require.Equal(t, http.StatusCreated, res.Code, res.Body)
	first := res.data("review", "id")

	res = a.do(http.MethodPost, path, map[string]any{"review": "Again", "rating": 3}, jo)
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "You have already reviewed this movie", res.message())

	res = a.do(http.MethodPost, path, map[string]any{"review": "Fine", "rating": 6}, kim)
	assert.Equal(t, http.StatusCreated, res.Code)

	res = a.do(http.MethodPost, path, map[string]any{"review": "Too high", "rating": 11}, kim)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = a.do(http.MethodPost, "/movies/999/reviews", map[string]any{"review": "?", "rating": 5}, kim)
	assert.Equal(t, http.StatusNotFound, res.Code)

	own := fmt.Sprintf("%s/%v", path, first)
	other := a.movie("Aliens", "Action")
	elsewhere := fmt.Sprintf("/movies/%d/reviews/%v", other.ID, first)
	res = a.do(http.MethodPatch, elsewhere, map[string]any{"rating": 2}, jo)
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "No review found with that ID", res.message())
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodDelete, elsewhere, nil, admin).Code)

	res = a.do(http.MethodPatch, own, map[string]any{"rating": 1}, kim)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "You can only modify your own reviews", res.message())

	res = a.do(http.MethodPatch, own, map[string]any{"rating": 8}, jo)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.EqualValues(t, 8, res.data("review", "rating"))

	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, own, nil, admin).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodDelete, own, nil, admin).Code)

	res = a.do(http.MethodGet, path, nil, jo)
	assert.EqualValues(t, 1, res.Body["results"])
	assert.Len(t, a.events.OfType(queue.EventReviewCreated), 2)

	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/reviews/admin", nil, jo).Code)
	res = a.do(http.MethodGet, "/reviews/admin", nil, admin)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.EqualValues(t, 1, res.Body["results"])
}

func TestGenreRenameAndDeletionGuard(t *testing.T) {
	a := newTestApp(t, false)
	_, admin := a.seed("mo", model.RoleAdmin)
	_, client := a.seed("ned", model.RoleClient)

	res := a.do(http.MethodPost, "/genres", map[string]any{"name": " Drama ", "color": "#112233"}, admin)
	require.Equal(t, http.StatusCreated, res.Code, res.Body)
	assert.Equal(t, "Drama", res.data("genre", "name"))
	assert.Equal(t, true, res.data("genre", "isActive"))
	m := a.movie("Seven", "Drama", "Crime")

	res = a.do(http.MethodPost, "/genres", map[string]any{"name": "drama"}, admin)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "Genre with this name already exists", res.message())

	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPatch, "/genres/1", map[string]any{"name": "X-Drama"}, client).Code)

	res = a.do(http.MethodPatch, "/genres/1", map[string]any{"name": "Dramatic"}, admin)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	got, err := a.movies.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dramatic", "Crime"}, got.Genre)
	renamed := a.events.OfType(queue.EventGenreRenamed)
	require.Len(t, renamed, 1)
	assert.Equal(t, map[string]string{"from": "Drama", "to": "Dramatic"}, renamed[0].Attrs)

	res = a.do(http.MethodDelete, "/genres/1", nil, admin)
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "Cannot delete genre that is used by movies", res.message())

	res = a.do(http.MethodPost, "/genres", map[string]any{"name": "Western", "isActive": false}, admin)
	require.Equal(t, http.StatusCreated, res.Code)
	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, "/genres/2", nil, admin).Code)

	res = a.do(http.MethodGet, "/genres/active", nil, "")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.EqualValues(t, 1, res.Body["results"])

	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/genres", nil, "").Code)
	res = a.do(http.MethodGet, "/genres/stats", nil, client)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.EqualValues(t, 1, res.data("summary", "total"))
}

func TestGenreBulkUpdate(t *testing.T) {
	a := newTestApp(t, false)
	_, admin := a.seed("ola", model.RoleAdmin)
	for _, n := range []string{"Drama", "Comedy"} {
		require.NoError(t, a.genres.Create(context.Background(), &model.Genre{Name: n, IsActive: true}))
	}
	a.movie("Tootsie", "Comedy")

	body := map[string]any{"genres": []map[string]any{
		{"_id": 2, "name": "Comedies"},
		{"_id": 99, "name": "Ghost"},
	}}
	res := a.do(http.MethodPatch, "/genres/bulk", body, admin)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	assert.EqualValues(t, 1, res.data("matchedCount"))
	assert.EqualValues(t, 1, res.data("modifiedCount"))

	got, _ := a.movies.GetByID(context.Background(), 1)
	assert.Equal(t, []string{"Comedies"}, got.Genre)

	res = a.do(http.MethodPatch, "/genres/bulk", map[string]any{"genres": []map[string]any{{"name": "NoID"}}}, admin)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "Genre at index 0 is missing _id", res.message())
}

func TestRoleEscalationGuard(t *testing.T) {
	a := newTestApp(t, false)
	target, _ := a.seed("pat", model.RoleClient)
	_, admin := a.seed("quin", model.RoleAdmin)
	sa, super := a.seed("rae", model.RoleSuperAdmin)
	path := fmt.Sprintf("/users/%d", target.ID)

	res := a.do(http.MethodPatch, path, map[string]any{"role": "admin"}, admin)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "Only super-admin can change user roles", res.message())

	res = a.do(http.MethodPatch, path, map[string]any{"role": "emperor"}, super)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "invalid role", res.message())

	res = a.do(http.MethodPatch, path, map[string]any{"role": "Admin", "name": "Pat"}, super)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	assert.Equal(t, "admin", res.data("user", "role"))
	assert.Equal(t, "Pat", res.data("user", "name"))

	res = a.do(http.MethodPatch, path, map[string]any{"name": "Patricia"}, admin)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = a.do(http.MethodPatch, path+"/role", nil, super)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "client", res.data("user", "role"))

	res = a.do(http.MethodPatch, path, map[string]any{"name": "Patricia"}, admin)
	assert.Equal(t, http.StatusOK, res.Code)

	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPatch, path+"/role", nil, admin).Code)
	res = a.do(http.MethodPatch, fmt.Sprintf("/users/%d/role", sa.ID), nil, super)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "Cannot change super-admin role", res.message())
}

func TestStaffAccountEditGuard(t *testing.T) {
	a := newTestApp(t, false)
	self, admin := a.seed("vic", model.RoleAdmin)
	peer, _ := a.seed("wes", model.RoleAdmin)
	sa, _ := a.seed("xan", model.RoleSuperAdmin)
	_, super := a.seed("yara", model.RoleSuperAdmin)

	for _, id := range []uint64{sa.ID, peer.ID} {
		res := a.do(http.MethodPatch, fmt.Sprintf("/users/%d", id), map[string]any{"email": "taken@evil.test"}, admin)
		assert.Equal(t, http.StatusForbidden, res.Code)
		assert.Equal(t, "Only super-admin can modify staff accounts", res.message())
	}
	u, err := a.users.GetByID(context.Background(), sa.ID)
	require.NoError(t, err)
	assert.Equal(t, sa.Email, u.Email)

	res := a.do(http.MethodPatch, fmt.Sprintf("/users/%d", self.ID), map[string]any{"name": "Victor"}, admin)
	assert.Equal(t, http.StatusOK, res.Code)

	res = a.do(http.MethodPatch, fmt.Sprintf("/users/%d", sa.ID), map[string]any{"name": "Xander"}, super)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	assert.Equal(t, "Xander", res.data("user", "name"))

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPatch, "/users/9999", map[string]any{"name": "Ghost"}, admin).Code)
}

func TestRoleRegistry(t *testing.T) {
	a := newTestApp(t, false)
	holder, _ := a.seed("sam", model.RoleClient)
	_, client := a.seed("tia", model.RoleClient)
	_, super := a.seed("uma", model.RoleSuperAdmin)

	res := a.do(http.MethodPost, "/roles", map[string]any{"name": " Editor ", "permissions": []string{"read", "write"}}, super)
	require.Equal(t, http.StatusCreated, res.Code, res.Body)
	assert.Equal(t, "editor", res.data("role", "name"))
	editorID := res.data("role", "id")

	res = a.do(http.MethodPost, "/roles", map[string]any{"name": "EDITOR"}, super)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "Role with this name already exists", res.message())

	res = a.do(http.MethodPost, "/roles", map[string]any{"name": "viewer", "permissions": []string{"fly"}}, super)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "Invalid permissions provided", res.message())

	res = a.do(http.MethodPost, "/roles", map[string]any{"name": "x"}, super)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/roles", nil, client).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, "/roles", map[string]any{"name": "spy"}, client).Code)

	res = a.do(http.MethodDelete, "/roles/1", nil, super)
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "Cannot delete default roles", res.message())

	res = a.do(http.MethodPatch, "/roles/2", map[string]any{"name": "boss"}, super)
	assert.Equal(t, http.StatusConflict, res.Code)

	res = a.do(http.MethodPatch, fmt.Sprintf("/users/%d", holder.ID), map[string]any{"role": "editor"}, super)
	require.Equal(t, http.StatusOK, res.Code, res.Body)

	rolePath := fmt.Sprintf("/roles/%v", editorID)
	res = a.do(http.MethodDelete, rolePath, nil, super)
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "Cannot delete role that is assigned to users", res.message())

	res = a.do(http.MethodPatch, rolePath, map[string]any{"name": "writer"}, super)
	require.Equal(t, http.StatusOK, res.Code)
	u, _ := a.users.Raw(holder.ID)
	assert.Equal(t, model.RoleName("writer"), u.Role)

	res = a.do(http.MethodGet, "/roles/stats", nil, client)
	assert.Equal(t, http.StatusOK, res.Code)

	res = a.do(http.MethodGet, "/users/available-roles", nil, super)
	assert.Equal(t, []any{"client", "admin", "super-admin", "writer"}, res.data("roles"))
}

func TestSelfService(t *testing.T) {
	a := newTestApp(t, false)
	me, tok := a.seed("val", model.RoleClient)
	m := a.movie("Up")

	res := a.do(http.MethodPatch, "/users/me", map[string]any{"password": "sneaky"}, tok)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "This route is not for password updates. Please use /me/password.", res.message())

	res = a.do(http.MethodPatch, "/users/me", map[string]any{"name": "Valerie", "role": "super-admin"}, tok)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "Valerie", res.data("user", "name"))
	assert.Equal(t, "client", res.data("user", "role"))

	res = a.do(http.MethodPost, "/users/watchlist/999", nil, tok)
	assert.Equal(t, http.StatusNotFound, res.Code)

	watch := fmt.Sprintf("/users/watchlist/%d", m.ID)
	a.do(http.MethodPost, watch, nil, tok)
	res = a.do(http.MethodPost, watch, nil, tok)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, []any{float64(m.ID)}, res.data("user", "watchLater"))

	res = a.do(http.MethodDelete, watch, nil, tok)
	assert.Equal(t, []any{}, res.data("user", "watchLater"))

	res = a.do(http.MethodGet, "/users/me", nil, tok)
	assert.Equal(t, "Valerie", res.data("user", "name"))
	_, hasHash := res.data("user").(map[string]any)["passwordHash"]
	assert.False(t, hasHash)

	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, "/users/me", nil, tok).Code)
	stored, _ := a.users.Raw(me.ID)
	assert.False(t, stored.Active)
	res = a.do(http.MethodGet, "/users/me", nil, tok)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, middleware.MsgUserGone, res.message())
}

func TestUserAdministration(t *testing.T) {
	a := newTestApp(t, false)
	victim, client := a.seed("wes", model.RoleClient)
	_, admin := a.seed("xia", model.RoleAdmin)
	_, super := a.seed("yan", model.RoleSuperAdmin)

	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/users", nil, client).Code)

	res := a.do(http.MethodGet, "/users?limit=1&sort=-name", nil, admin)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	assert.EqualValues(t, 1, res.Body["results"])
	require.NotNil(t, a.users.LastQuery)
	assert.Equal(t, 1, a.users.LastQuery.Limit)

	res = a.do(http.MethodGet, "/users?role[foo]=bar", nil, admin)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = a.do(http.MethodGet, "/users/stats", nil, admin)
	require.Equal(t, http.StatusOK, res.Code)
	assert.EqualValues(t, 3, res.data("stats", "total"))

	res = a.do(http.MethodGet, "/users/404", nil, admin)
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "No user found with that ID", res.message())

	path := fmt.Sprintf("/users/%d", victim.ID)
	res = a.do(http.MethodDelete, path, nil, admin)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "Only super-admin can delete users", res.message())
	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, path, nil, super).Code)
	_, ok := a.users.Raw(victim.ID)
	assert.False(t, ok)
}
