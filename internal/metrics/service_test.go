package metrics

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/team-pulse/internal/cache"
	"github.com/ZanzyTHEbar/team-pulse/internal/errors"
	"github.com/ZanzyTHEbar/team-pulse/internal/monitoring"
	"github.com/ZanzyTHEbar/team-pulse/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	mu          sync.Mutex
	members     []types.Member
	assessments []types.Assessment
	metrics     map[string]types.Metric
	nextID      int64
	upserts     int
	listCalls   int
	failUpsert  error
	// transient makes the next N upserts fail with a retryable timeout
	transient int
	// listHook runs once, inside the next ListAssessments, after the data is read
	listHook func()
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func newStubStore() *stubStore {
	return &stubStore{metrics: make(map[string]types.Metric)}
}

func (s *stubStore) addMember(code string, active bool) {
	s.members = append(s.members, types.Member{
		ID:       int64(len(s.members) + 1),
		Code:     code,
		FullName: "Member " + code,
		Email:    code + "@example.com",
		IsActive: active,
	})
}

func (s *stubStore) addAssessment(a types.Assessment) int64 {
	a.ID = int64(len(s.assessments) + 1)
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(a.ID) * time.Hour)
	}
	s.assessments = append(s.assessments, a)
	return a.ID
}

func (s *stubStore) ListActiveMembers(context.Context) ([]types.Member, error) {
	var out []types.Member
	for _, m := range s.members {
		if m.IsActive {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *stubStore) CountMembers(context.Context) (int, int, error) {
	active := 0
	for _, m := range s.members {
		if m.IsActive {
			active++
		}
	}
	return len(s.members), active, nil
}

func (s *stubStore) GetMemberByCode(_ context.Context, code string) (*types.Member, error) {
	for _, m := range s.members {
		if m.Code == code {
			m := m
			return &m, nil
		}
	}
	return nil, fmt.Errorf("member %s: %w", code, errors.ErrNotFound)
}

func (s *stubStore) ListAssessments(_ context.Context, q types.AssessmentQuery) ([]types.Assessment, error) {
	s.mu.Lock()
	s.listCalls++
	hook := s.listHook
	s.listHook = nil
	s.mu.Unlock()

	out := append([]types.Assessment(nil), s.assessments...)
	if q.OrderDesc {
		sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	if hook != nil {
		hook()
	}
	return out, nil
}

func (s *stubStore) GetAssessment(_ context.Context, id int64) (*types.Assessment, error) {
	for _, a := range s.assessments {
		if a.ID == id {
			a := a
			return &a, nil
		}
	}
	return nil, fmt.Errorf("assessment %d: %w", id, errors.ErrNotFound)
}

func (s *stubStore) ListMetricsByMember(_ context.Context, code string) ([]types.Metric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Metric
	for _, m := range s.metrics {
		if m.MemberCode == code {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *stubStore) UpsertMetric(_ context.Context, m *types.Metric) (*types.Metric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpsert != nil {
		return nil, s.failUpsert
	}
	if s.transient > 0 {
		s.transient--
		return nil, timeoutErr{}
	}
	s.upserts++
	key := fmt.Sprintf("%s/%d", m.MemberCode, m.AssessmentID)
	existing, ok := s.metrics[key]
	row := *m
	if ok {
		row.ID = existing.ID
	} else {
		s.nextID++
		row.ID = s.nextID
	}
	s.metrics[key] = row
	return &row, nil
}

func (s *stubStore) metric(code string, assessmentID int64) (types.Metric, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.metrics[fmt.Sprintf("%s/%d", code, assessmentID)]
	return m, ok
}

func ptr(v float64) *float64 { return &v }

func TestRankSeries(t *testing.T) {
	assessments := []types.Assessment{
		{Leadership: types.RankingMap{"M1": 1, "M2": 2}},
		{Leadership: nil},
		{Leadership: types.RankingMap{"M2": 1}},
		{Leadership: types.RankingMap{"M1": 3}},
	}

	tests := []struct {
		name     string
		code     string
		dim      types.Dimension
		expected []int
	}{
		{name: "keeps input order", code: "M1", dim: types.DimensionLeadership, expected: []int{1, 3}},
		{name: "skips missing keys", code: "M2", dim: types.DimensionLeadership, expected: []int{2, 1}},
		{name: "unknown member yields empty series", code: "M9", dim: types.DimensionLeadership, expected: []int{}},
		{name: "absent dimension yields empty series", code: "M1", dim: types.DimensionExpertise, expected: []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RankSeries(assessments, tt.code, tt.dim))
		})
	}
}

func TestTeamView(t *testing.T) {
	ctx := context.Background()

	t.Run("zero assessments yields zeros", func(t *testing.T) {
		store := newStubStore()
		store.addMember("M1", true)
		store.addMember("M2", false)

		view, err := NewService(store).TeamView(ctx)
		require.NoError(t, err)
		assert.Equal(t, &TeamView{TotalMembers: 2, ActiveMembers: 1}, view)
	})

	t.Run("nulls are excluded from averages", func(t *testing.T) {
		store := newStubStore()
		store.addMember("M1", true)
		store.addAssessment(types.Assessment{RespondentCode: "M1", TeamTrustIndex: ptr(8), RoleSatisfaction: ptr(6)})
		store.addAssessment(types.Assessment{RespondentCode: "M1", TeamTrustIndex: ptr(6), PsychologicalSafety: ptr(9)})
		store.addAssessment(types.Assessment{RespondentCode: "M1"})

		view, err := NewService(store).TeamView(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, view.TotalAssessments)
		assert.InDelta(t, 7.0, view.AverageTeamTrust, 1e-9)
		assert.InDelta(t, 9.0, view.AveragePsychologicalSafety, 1e-9)
		assert.InDelta(t, 6.0, view.AverageRoleSatisfaction, 1e-9)
	})

	t.Run("window is the ten newest assessments", func(t *testing.T) {
		store := newStubStore()
		store.addMember("M1", true)
		for i := 0; i < 12; i++ {
			// the two oldest carry an outlier that must not reach the mean
			trust := 5.0
			if i < 2 {
				trust = 0
			}
			store.addAssessment(types.Assessment{RespondentCode: "M1", TeamTrustIndex: ptr(trust)})
		}

		view, err := NewService(store).TeamView(ctx)
		require.NoError(t, err)
		assert.Equal(t, RecentWindow, view.TotalAssessments)
		assert.InDelta(t, 5.0, view.AverageTeamTrust, 1e-9)
	})
}

func TestMemberView(t *testing.T) {
	ctx := context.Background()

	store := newStubStore()
	store.addMember("M1", true)
	store.addMember("M2", true)
	store.addMember("M3", true)
	store.addAssessment(types.Assessment{
		RespondentCode: "M2",
		Leadership:     types.RankingMap{"M1": 1, "M2": 2, "M3": 3},
		Expertise:      types.RankingMap{"M1": 2},
	})
	store.addAssessment(types.Assessment{
		RespondentCode: "M1",
		Leadership:     types.RankingMap{"M1": 3},
		Expertise:      types.RankingMap{"M1": 4},
	})
	svc := NewService(store)

	t.Run("summaries", func(t *testing.T) {
		view, err := svc.MemberView(ctx, "M1")
		require.NoError(t, err)

		assert.Equal(t, "M1", view.Member.Code)
		assert.Len(t, view.Member.Assessments, 1)
		assert.Equal(t, 3, view.Population)

		assert.Equal(t, 2, view.Leadership.Samples)
		assert.InDelta(t, 2.0, view.Leadership.MeanRank, 1e-9)
		assert.InDelta(t, 1.0, view.Leadership.StdDev, 1e-9)
		assert.Equal(t, 2, view.Leadership.Top3Count)
		// weights 3 and 1 over a maximum of 6
		assert.InDelta(t, 4.0/6.0, view.Leadership.StatusScore, 1e-9)
		assert.Zero(t, view.Leadership.OutOfRange)
	})

	t.Run("ranks above the team size are excluded from the score only", func(t *testing.T) {
		view, err := svc.MemberView(ctx, "M1")
		require.NoError(t, err)

		assert.Equal(t, 2, view.Expertise.Samples)
		assert.Equal(t, 1, view.Expertise.OutOfRange)
		assert.InDelta(t, 3.0, view.Expertise.MeanRank, 1e-9)
		assert.Equal(t, 1, view.Expertise.Top3Count)
		assert.InDelta(t, 2.0/6.0, view.Expertise.StatusScore, 1e-9)
	})

	t.Run("member never ranked reports zero defaults", func(t *testing.T) {
		store.addMember("M4", true)
		defer func() { store.members = store.members[:3] }()

		view, err := svc.MemberView(ctx, "M4")
		require.NoError(t, err)
		assert.Equal(t, DimensionSummary{}, view.Leadership)
		assert.Equal(t, DimensionSummary{}, view.Expertise)
	})

	t.Run("unknown member is not found", func(t *testing.T) {
		_, err := svc.MemberView(ctx, "NOPE")
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrNotFound))
	})
}

func TestCalculateForAssessment(t *testing.T) {
	ctx := context.Background()

	t.Run("two member scenario", func(t *testing.T) {
		store := newStubStore()
		store.addMember("M1", true)
		store.addMember("M2", true)
		id := store.addAssessment(types.Assessment{
			RespondentCode: "M1",
			Leadership:     types.RankingMap{"M1": 1, "M2": 2},
			Expertise:      types.RankingMap{"M1": 2, "M2": 1},
		})

		res, err := NewService(store).CalculateForAssessment(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, &CalculationResult{
			Message:      "Metrics calculated successfully",
			AssessmentID: id,
			Count:        2,
		}, res)

		m1, ok := store.metric("M1", id)
		require.True(t, ok)
		assert.Equal(t, 1.0, m1.MeanRankLeadership)
		assert.Equal(t, 2.0, m1.MeanRankExpertise)
		assert.InDelta(t, 1.0, m1.StatusScore, 1e-12)

		m2, ok := store.metric("M2", id)
		require.True(t, ok)
		assert.InDelta(t, 1.0, m2.StatusScore, 1e-12)
	})

	t.Run("idempotent", func(t *testing.T) {
		store := newStubStore()
		store.addMember("M1", true)
		store.addMember("M2", true)
		store.addMember("M3", true)
		id := store.addAssessment(types.Assessment{
			Leadership: types.RankingMap{"M1": 3, "M2": 1, "M3": 2},
			Expertise:  types.RankingMap{"M1": 2, "M2": 3, "M3": 1},
		})
		svc := NewService(store)

		_, err := svc.CalculateForAssessment(ctx, id)
		require.NoError(t, err)
		first, _ := store.metric("M1", id)

		_, err = svc.CalculateForAssessment(ctx, id)
		require.NoError(t, err)
		second, _ := store.metric("M1", id)

		assert.Equal(t, first, second)
		assert.Len(t, store.metrics, 3)
	})

	t.Run("members missing a rank are skipped", func(t *testing.T) {
		store := newStubStore()
		store.addMember("M1", true)
		store.addMember("M2", true)
		store.addMember("M3", false)
		id := store.addAssessment(types.Assessment{
			Leadership: types.RankingMap{"M1": 1, "M2": 2, "M3": 1},
			Expertise:  types.RankingMap{"M1": 2},
		})

		res, err := NewService(store).CalculateForAssessment(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Count)
		assert.Equal(t, 1, res.Skipped)
		_, ok := store.metric("M3", id)
		assert.False(t, ok, "inactive members are never scored")
	})

	t.Run("out of range ranks abort before any write", func(t *testing.T) {
		store := newStubStore()
		store.addMember("M1", true)
		store.addMember("M2", true)
		id := store.addAssessment(types.Assessment{
			Leadership: types.RankingMap{"M1": 1, "M2": 5},
			Expertise:  types.RankingMap{"M1": 2, "M2": 1},
		})

		_, err := NewService(store).CalculateForAssessment(ctx, id)
		require.Error(t, err)

		appErr := errors.ToAppError(err)
		assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
		assert.Zero(t, store.upserts)
	})

	t.Run("unknown assessment is not found", func(t *testing.T) {
		store := newStubStore()
		_, err := NewService(store).CalculateForAssessment(ctx, 99)
		assert.True(t, stderrors.Is(err, errors.ErrNotFound))
	})

	t.Run("storage failures propagate", func(t *testing.T) {
		store := newStubStore()
		store.addMember("M1", true)
		id := store.addAssessment(types.Assessment{
			Leadership: types.RankingMap{"M1": 1},
			Expertise:  types.RankingMap{"M1": 1},
		})
		store.failUpsert = stderrors.New("disk full")

		_, err := NewService(store).CalculateForAssessment(ctx, id)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
	})

	t.Run("transient storage errors are retried", func(t *testing.T) {
		store := newStubStore()
		store.addMember("M1", true)
		id := store.addAssessment(types.Assessment{
			Leadership: types.RankingMap{"M1": 1},
			Expertise:  types.RankingMap{"M1": 1},
		})
		store.transient = 2

		res, err := NewService(store).CalculateForAssessment(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Count)
		assert.Equal(t, 1, store.upserts)
	})

	t.Run("many members are all written", func(t *testing.T) {
		store := newStubStore()
		leadership := types.RankingMap{}
		expertise := types.RankingMap{}
		const n = 40
		for i := 1; i <= n; i++ {
			code := fmt.Sprintf("M%d", i)
			store.addMember(code, true)
			leadership[code] = i
			expertise[code] = n - i + 1
		}
		id := store.addAssessment(types.Assessment{Leadership: leadership, Expertise: expertise})

		res, err := NewService(store).CalculateForAssessment(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, n, res.Count)
		assert.Len(t, store.metrics, n)
	})
}

func TestViewsAreCachedAndInvalidated(t *testing.T) {
	ctx := context.Background()

	mem := cache.NewMemoryCache(time.Minute)
	defer mem.Close()

	store := newStubStore()
	store.addMember("M1", true)
	store.addMember("M2", true)
	id := store.addAssessment(types.Assessment{
		Leadership: types.RankingMap{"M1": 1, "M2": 2},
		Expertise:  types.RankingMap{"M1": 2, "M2": 1},
	})
	svc := NewServiceWithCache(store, NewViewCache(mem, nil))

	_, err := svc.TeamView(ctx)
	require.NoError(t, err)
	_, err = svc.MemberView(ctx, "M1")
	require.NoError(t, err)
	calls := store.listCalls

	_, err = svc.TeamView(ctx)
	require.NoError(t, err)
	view, err := svc.MemberView(ctx, "M1")
	require.NoError(t, err)
	assert.Equal(t, calls, store.listCalls, "second reads come from the cache")
	assert.Empty(t, view.Member.Metrics)

	_, err = svc.CalculateForAssessment(ctx, id)
	require.NoError(t, err)

	view, err = svc.MemberView(ctx, "M1")
	require.NoError(t, err)
	assert.Greater(t, store.listCalls, calls)
	assert.Len(t, view.Member.Metrics, 1)
}

func TestInFlightReadDoesNotOutliveInvalidation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		read func(svc *Service) (int, error)
	}{
		{
			name: "team view",
			read: func(svc *Service) (int, error) {
				v, err := svc.TeamView(ctx)
				if err != nil {
					return 0, err
				}
				return v.TotalAssessments, nil
			},
		},
		{
			name: "member view",
			read: func(svc *Service) (int, error) {
				v, err := svc.MemberView(ctx, "M1")
				if err != nil {
					return 0, err
				}
				return len(v.Member.Assessments), nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := cache.NewMemoryCache(time.Minute)
			defer mem.Close()

			store := newStubStore()
			store.addMember("M1", true)
			svc := NewServiceWithCache(store, NewViewCache(mem, nil))

			entered := make(chan struct{})
			release := make(chan struct{})
			store.listHook = func() {
				close(entered)
				<-release
			}

			result := make(chan int, 1)
			go func() {
				n, err := tt.read(svc)
				assert.NoError(t, err)
				result <- n
			}()

			<-entered
			store.addAssessment(types.Assessment{RespondentCode: "M1", TeamTrustIndex: ptr(7)})
			svc.InvalidateViews(ctx)
			close(release)

			assert.Equal(t, 0, <-result, "the slow read saw the data from before the write")

			n, err := tt.read(svc)
			require.NoError(t, err)
			assert.Equal(t, 1, n, "the next read must not be served the slow read's result")
		})
	}
}

func TestViewCacheSetRespectsGeneration(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryCache(time.Minute)
	defer mem.Close()

	vc := NewViewCache(mem, nil)
	gen := vc.Generation()
	vc.InvalidateAll(ctx)

	assert.False(t, vc.SetTeamView(ctx, gen, &TeamView{TotalMembers: 3}))
	_, ok := vc.GetTeamView(ctx)
	assert.False(t, ok)

	assert.True(t, vc.SetTeamView(ctx, vc.Generation(), &TeamView{TotalMembers: 3}))
	view, ok := vc.GetTeamView(ctx)
	require.True(t, ok)
	assert.Equal(t, 3, view.TotalMembers)
	assert.Equal(t, uint64(1), vc.Stats()["generation"])
}

func TestMemberViewCapsRecentAssessments(t *testing.T) {
	store := newStubStore()
	store.addMember("M1", true)
	store.addMember("M2", true)
	for i := 0; i < RecentWindow+2; i++ {
		store.addAssessment(types.Assessment{RespondentCode: "M1"})
	}
	store.addAssessment(types.Assessment{RespondentCode: "M2"})

	view, err := NewService(store).MemberView(context.Background(), "M1")
	require.NoError(t, err)
	require.Len(t, view.Member.Assessments, RecentWindow)
	assert.Equal(t, int64(RecentWindow+2), view.Member.Assessments[0].ID, "newest first")
	for _, a := range view.Member.Assessments {
		assert.Equal(t, "M1", a.RespondentCode)
	}
}

func TestViewCacheLogsLookups(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryCache(time.Minute)
	defer mem.Close()

	var buf bytes.Buffer
	vc := NewViewCache(mem, monitoring.NewLoggerTo(&buf, slog.LevelDebug))

	_, ok := vc.GetMemberView(ctx, "M1")
	require.False(t, ok)
	require.True(t, vc.SetMemberView(ctx, vc.Generation(), "M1", &MemberView{Population: 2}))
	_, ok = vc.GetMemberView(ctx, "M1")
	require.True(t, ok)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"operation":"get"`)
	assert.Contains(t, lines[0], `"hit":false`)
	assert.Contains(t, lines[1], `"operation":"set"`)
	assert.Contains(t, lines[2], `"key":"metrics:member:M1"`)
	assert.Contains(t, lines[2], `"hit":true`)
}
