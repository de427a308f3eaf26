package pgstore

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/ZanzyTHEbar/team-pulse/internal/errors"
	"github.com/ZanzyTHEbar/team-pulse/internal/metrics"
	"github.com/ZanzyTHEbar/team-pulse/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var _ metrics.Store = (*Store)(nil)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "pg.db") + "?_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), Config())
	require.NoError(t, err)

	store, err := New(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func addMember(t *testing.T, s *Store, code string, active bool) {
	t.Helper()
	_, err := s.CreateMember(context.Background(), &types.Member{
		Code:     code,
		FullName: "Member " + code,
		Email:    code + "@example.com",
		IsActive: active,
	})
	require.NoError(t, err)
}

func TestMembers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	addMember(t, s, "M1", true)
	addMember(t, s, "M2", false)

	total, active, err := s.CountMembers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, active, "inactive flag survives insert")

	_, err = s.CreateMember(ctx, &types.Member{Code: "M1", FullName: "dup", Email: "dup@example.com"})
	assert.True(t, apperrors.IsConflict(err))

	isActive := true
	members, n, err := s.ListMembers(ctx, types.MemberQuery{Active: &isActive, Search: "m1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, members, 1)
	assert.Equal(t, "M1", members[0].Code)

	m, err := s.DeactivateMember(ctx, "M1")
	require.NoError(t, err)
	assert.False(t, m.IsActive)

	_, err = s.GetMemberByCode(ctx, "ZZ")
	assert.True(t, apperrors.IsNotFound(err))

	imported, err := s.BulkUpsertMembers(ctx, []types.Member{
		{Code: "M1", FullName: "Back", Email: "M1@example.com", IsActive: true},
		{Code: "M3", FullName: "Three", Email: "m3@example.com", IsActive: true},
	})
	require.NoError(t, err)
	require.Len(t, imported, 2)
	assert.True(t, imported[0].IsActive)
	assert.Equal(t, "Back", imported[0].FullName)
}

func TestAssessmentsAndMetrics(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	addMember(t, s, "M1", true)
	addMember(t, s, "M2", true)

	safety := 9.0
	created, err := s.CreateAssessment(ctx, &types.Assessment{
		Timestamp:            time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
		RespondentCode:       "M2",
		Leadership:           types.RankingMap{"M1": 1, "M2": 2},
		Expertise:            types.RankingMap{"M1": 2, "M2": 1},
		CompetencyMatrix:     json.RawMessage(`{"sql":{"M2":4}}`),
		DesiredCollaboration: []string{"M1"},
		PsychologicalSafety:  &safety,
	})
	require.NoError(t, err)

	got, err := s.GetAssessment(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RankingMap{"M1": 1, "M2": 2}, got.Leadership)
	assert.Nil(t, got.Mentorship)
	assert.Equal(t, []string{"M1"}, got.DesiredCollaboration)
	assert.Equal(t, []string{}, got.LearningSources)
	assert.JSONEq(t, `{"sql":{"M2":4}}`, string(got.CompetencyMatrix))
	require.NotNil(t, got.Respondent)
	assert.Equal(t, "M2", got.Respondent.Code)

	_, err = s.CreateAssessment(ctx, &types.Assessment{RespondentCode: "NOPE"})
	assert.True(t, apperrors.IsNotFound(err))

	svc := metrics.NewService(s)
	res, err := svc.CalculateForAssessment(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)

	res, err = svc.CalculateForAssessment(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)

	rows, err := s.ListMetricsByAssessment(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 2, "re-running keeps one row per member")
	for _, row := range rows {
		assert.InDelta(t, 1.0, row.StatusScore, 1e-12)
	}

	view, err := svc.MemberView(ctx, "M1")
	require.NoError(t, err)
	assert.Len(t, view.Member.Metrics, 1)
	assert.Equal(t, 1, view.Leadership.Samples)

	team, err := svc.TeamView(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, team.TotalAssessments)
	assert.InDelta(t, 9.0, team.AveragePsychologicalSafety, 1e-9)

	err = s.DeleteAssessment(ctx, created.ID)
	assert.True(t, apperrors.IsConflict(err), "metrics restrict assessment deletes")

	err = s.DeleteMember(ctx, "M1")
	assert.True(t, apperrors.IsConflict(err), "metrics restrict member deletes")
}

func TestAdmins(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.UpsertAdmin(ctx, "root", "h1")
	require.NoError(t, err)
	second, err := s.UpsertAdmin(ctx, "root", "h2")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "h2", second.PasswordHash)
}
