package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/ZanzyTHEbar/team-pulse/internal/database"
	"github.com/ZanzyTHEbar/team-pulse/internal/types"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	app.Reader = strings.NewReader(stdin)
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.RunContext(context.Background(), append([]string{"teamctl"}, args...))
	return out.String(), err
}

func openRepo(t *testing.T, dir string) *database.Repository {
	t.Helper()
	db, err := database.NewDB(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return database.NewRepository(db)
}

func TestMigrate(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, "", "--data-dir", dir, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema is up to date")
	assert.FileExists(t, filepath.Join(dir, "team_pulse.db"))
}

func TestUnknownDriver(t *testing.T) {
	_, err := run(t, "", "--driver", "mysql", "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")

	_, err = run(t, "", "--driver", "postgres", "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--database-url")
}

func TestSeed(t *testing.T) {
	dir := t.TempDir()
	membersFile := filepath.Join(t.TempDir(), "members.json")
	require.NoError(t, os.WriteFile(membersFile, []byte(`[
		{"code": "S1", "fullName": "Seed One", "email": "S1@Example.com", "position": "Engineer"},
		{"code": "S2", "fullName": "Seed Two", "email": "s2@example.com", "isActive": false}
	]`), 0o600))

	out, err := run(t, "", "--data-dir", dir, "seed",
		"--admin-username", "root", "--admin-password", "s3cret-pass", "--members", membersFile)
	require.NoError(t, err)
	assert.Contains(t, out, `admin "root" ready`)
	assert.Contains(t, out, "imported 2 members")

	repo := openRepo(t, dir)
	ctx := context.Background()

	admin, err := repo.GetAdminByUsername(ctx, "root")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("s3cret-pass")))

	s1, err := repo.GetMemberByCode(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "s1@example.com", s1.Email)
	assert.True(t, s1.IsActive)

	s2, err := repo.GetMemberByCode(ctx, "S2")
	require.NoError(t, err)
	assert.False(t, s2.IsActive)
}

func TestSeedRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		members string
		args    []string
		errMsg  string
	}{
		{
			name:   "username without password",
			args:   []string{"--admin-username", "root"},
			errMsg: "must be given together",
		},
		{
			name:    "invalid code",
			members: `[{"code": "far too long code", "fullName": "x", "email": "x@example.com"}]`,
			errMsg:  "invalid code",
		},
		{
			name:    "invalid email",
			members: `[{"code": "X1", "fullName": "x", "email": "nope"}]`,
			errMsg:  "member #1",
		},
		{
			name: "duplicate code",
			members: `[{"code": "X1", "fullName": "a", "email": "a@example.com"},
			           {"code": "X1", "fullName": "b", "email": "b@example.com"}]`,
			errMsg: "duplicate code",
		},
		{
			name:    "not an array",
			members: `{"code": "X1"}`,
			errMsg:  "failed to decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--data-dir", t.TempDir(), "seed"}, tt.args...)
			if tt.members != "" {
				path := filepath.Join(t.TempDir(), "members.json")
				require.NoError(t, os.WriteFile(path, []byte(tt.members), 0o600))
				args = append(args, "--members", path)
			}

			_, err := run(t, "", args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestCalculate(t *testing.T) {
	dir := t.TempDir()
	repo := openRepo(t, dir)
	ctx := context.Background()

	for _, code := range []string{"C1", "C2"} {
		_, err := repo.CreateMember(ctx, &types.Member{Code: code, FullName: code, Email: code + "@example.com", IsActive: true})
		require.NoError(t, err)
	}
	good, err := repo.CreateAssessment(ctx, &types.Assessment{
		Timestamp:      time.Now(),
		RespondentCode: "C1",
		Leadership:     types.RankingMap{"C1": 1, "C2": 2},
		Expertise:      types.RankingMap{"C1": 2, "C2": 1},
	})
	require.NoError(t, err)
	bad, err := repo.CreateAssessment(ctx, &types.Assessment{
		Timestamp:      time.Now(),
		RespondentCode: "C2",
		Leadership:     types.RankingMap{"C1": 7, "C2": 1},
		Expertise:      types.RankingMap{"C1": 1, "C2": 2},
	})
	require.NoError(t, err)

	t.Run("single", func(t *testing.T) {
		out, err := run(t, "", "--data-dir", dir, "calculate", "--assessment", itoa(good.ID))
		require.NoError(t, err)
		assert.Contains(t, out, "2 written, 0 skipped")

		rows, err := repo.ListMetricsByAssessment(ctx, good.ID)
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("out of range fails", func(t *testing.T) {
		out, err := run(t, "", "--data-dir", dir, "calculate", "-a", itoa(bad.ID))
		require.Error(t, err)
		assert.Contains(t, out, "outside the active team size")
	})

	t.Run("all reports failures and continues", func(t *testing.T) {
		out, err := run(t, "", "--data-dir", dir, "calculate", "--all")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 of 2 assessments failed")
		assert.Contains(t, out, "2 written")
	})

	t.Run("flag combinations", func(t *testing.T) {
		_, err := run(t, "", "--data-dir", dir, "calculate")
		assert.Error(t, err)
		_, err = run(t, "", "--data-dir", dir, "calculate", "--all", "--assessment", "1")
		assert.Error(t, err)
	})
}

func TestHashPassword(t *testing.T) {
	t.Run("argument", func(t *testing.T) {
		out, err := run(t, "", "hash-password", "hunter2")
		require.NoError(t, err)
		hash := strings.TrimSpace(out)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2")))
	})

	t.Run("stdin", func(t *testing.T) {
		out, err := run(t, "from-stdin\n", "hash-password", "--stdin")
		require.NoError(t, err)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(out)), []byte("from-stdin")))
	})

	t.Run("missing", func(t *testing.T) {
		_, err := run(t, "", "hash-password")
		assert.Error(t, err)
	})
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
