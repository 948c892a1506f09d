package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenameGenre(t *testing.T) {
	out, ok := RenameGenre([]string{"Action", "Drama", "Crime"}, "Drama", "Dramatic")
	require.True(t, ok)
	assert.Equal(t, []string{"Action", "Dramatic", "Crime"}, out)

	// exact match only: "Dramedy" is a different genre
	out, ok = RenameGenre([]string{"Dramedy"}, "Drama", "Dramatic")
	assert.False(t, ok)
	assert.Equal(t, []string{"Dramedy"}, out)

	// renaming onto a name already present keeps the set a set
	out, ok = RenameGenre([]string{"Drama", "Dramatic"}, "Drama", "Dramatic")
	require.True(t, ok)
	assert.Equal(t, []string{"Dramatic"}, out)
}

func TestChangedPasswordAfter(t *testing.T) {
	iat := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	u := User{}
	assert.False(t, u.ChangedPasswordAfter(iat))

	later := iat.Add(time.Minute)
	u.PasswordChangedAt = &later
	assert.True(t, u.ChangedPasswordAfter(iat))

	// a token from the same second as the change is stale
	sameSecond := iat.Add(500 * time.Millisecond)
	u.PasswordChangedAt = &sameSecond
	assert.True(t, u.ChangedPasswordAfter(iat))

	earlier := iat.Add(-time.Second)
	u.PasswordChangedAt = &earlier
	assert.False(t, u.ChangedPasswordAfter(iat))

	// the replacement token outlives the change it follows
	assert.False(t, u.ChangedPasswordAfter(SessionIssuedAfter(earlier)))
	assert.Equal(t, iat, SessionIssuedAfter(iat.Add(-300*time.Millisecond)))
}

func TestParsePermissions(t *testing.T) {
	perms, err := ParsePermissions([]string{"read", " WRITE ", "read"})
	require.NoError(t, err)
	assert.Equal(t, []Permission{PermRead, PermWrite}, perms)

	_, err = ParsePermissions([]string{"read", "fly"})
	assert.Error(t, err)
}

func TestRoleName(t *testing.T) {
	assert.Equal(t, RoleSuperAdmin, NormalizeRoleName("  Super-Admin "))
	assert.True(t, RoleClient.IsSeed())
	assert.False(t, RoleName("editor").IsSeed())
	assert.True(t, RoleAdmin.IsStaff())
	assert.False(t, RoleClient.IsStaff())
}

func TestMovieFilterOffset(t *testing.T) {
	assert.Equal(t, 0, MovieFilter{Page: 1, Limit: 10}.Offset())
	assert.Equal(t, 20, MovieFilter{Page: 3, Limit: 10}.Offset())
	assert.Equal(t, 0, MovieFilter{Page: 0, Limit: 10}.Offset())
	assert.Equal(t, 0, MovieFilter{Page: math.MaxInt, Limit: 1000}.Offset())
}
