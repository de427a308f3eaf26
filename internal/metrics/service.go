package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ZanzyTHEbar/team-pulse/internal/errors"
	"github.com/ZanzyTHEbar/team-pulse/internal/resilience"
	"github.com/ZanzyTHEbar/team-pulse/internal/stats"
	"github.com/ZanzyTHEbar/team-pulse/internal/types"
	"golang.org/x/sync/errgroup"
)

const (
	// RecentWindow is how many of the newest assessments feed the team view
	// and the member detail
	RecentWindow = 10

	topPlaces        = 3
	writeConcurrency = 8
)

// TeamView is the team-wide overview
type TeamView struct {
	TotalMembers               int     `json:"totalMembers"`
	ActiveMembers              int     `json:"activeMembers"`
	TotalAssessments           int     `json:"totalAssessments"`
	AverageTeamTrust           float64 `json:"averageTeamTrust"`
	AveragePsychologicalSafety float64 `json:"averagePsychologicalSafety"`
	AverageRoleSatisfaction    float64 `json:"averageRoleSatisfaction"`
}

// DimensionSummary reduces one member's rank series on one dimension.
// OutOfRange counts ranks above the current active team size; they still
// feed the mean, deviation and top-3 count but not the status score.
type DimensionSummary struct {
	MeanRank    float64 `json:"meanRank"`
	StdDev      float64 `json:"stdDev"`
	Top3Count   int     `json:"top3Count"`
	StatusScore float64 `json:"statusScore"`
	Samples     int     `json:"samples"`
	OutOfRange  int     `json:"outOfRange"`
}

// MemberView is the per-member breakdown
type MemberView struct {
	Member     types.MemberDetail `json:"member"`
	Population int                `json:"population"`
	Leadership DimensionSummary   `json:"leadership"`
	Expertise  DimensionSummary   `json:"expertise"`
}

// CalculationResult reports a metrics calculation run
type CalculationResult struct {
	Message      string `json:"message"`
	AssessmentID int64  `json:"assessmentId"`
	Count        int    `json:"count"`
	Skipped      int    `json:"skipped"`
}

// Service computes and persists team metrics
type Service struct {
	store Store
	cache *ViewCache
	retry resilience.RetryConfig
}

// NewService creates a metrics service without view caching
func NewService(store Store) *Service {
	return &Service{store: store, retry: resilience.DefaultRetryConfig()}
}

// NewServiceWithCache creates a metrics service that caches computed views
func NewServiceWithCache(store Store, cache *ViewCache) *Service {
	return &Service{
		store: store,
		cache: cache,
		retry: resilience.DefaultRetryConfig(),
	}
}

// InvalidateViews drops cached views after a write
func (s *Service) InvalidateViews(ctx context.Context) {
	if s.cache != nil {
		s.cache.InvalidateAll(ctx)
	}
}

// CacheStats returns view cache statistics, or nil when caching is off
func (s *Service) CacheStats() map[string]interface{} {
	if s.cache == nil {
		return nil
	}
	return s.cache.Stats()
}

// TeamView summarises membership and the scalar indices of the most recent assessments
func (s *Service) TeamView(ctx context.Context) (*TeamView, error) {
	var gen uint64
	if s.cache != nil {
		gen = s.cache.Generation()
		if view, ok := s.cache.GetTeamView(ctx); ok {
			return view, nil
		}
	}

	total, active, err := s.store.CountMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count members: %w", err)
	}

	recent, err := s.store.ListAssessments(ctx, types.AssessmentQuery{
		OrderDesc: true,
		Limit:     RecentWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list recent assessments: %w", err)
	}

	view := &TeamView{
		TotalMembers:               total,
		ActiveMembers:              active,
		TotalAssessments:           len(recent),
		AverageTeamTrust:           scalarMean(recent, func(a *types.Assessment) *float64 { return a.TeamTrustIndex }),
		AveragePsychologicalSafety: scalarMean(recent, func(a *types.Assessment) *float64 { return a.PsychologicalSafety }),
		AverageRoleSatisfaction:    scalarMean(recent, func(a *types.Assessment) *float64 { return a.RoleSatisfaction }),
	}

	if s.cache != nil {
		s.cache.SetTeamView(ctx, gen, view)
	}
	return view, nil
}

// scalarMean averages a nullable index, leaving nulls out of the denominator
func scalarMean(assessments []types.Assessment, field func(*types.Assessment) *float64) float64 {
	values := make([]float64, 0, len(assessments))
	for i := range assessments {
		if v := field(&assessments[i]); v != nil {
			values = append(values, *v)
		}
	}
	return stats.Mean(values)
}

// MemberView reduces the member's leadership and expertise ranks across every assessment.
// Status scores use the active member count as the population.
func (s *Service) MemberView(ctx context.Context, code string) (*MemberView, error) {
	var gen uint64
	if s.cache != nil {
		gen = s.cache.Generation()
		if view, ok := s.cache.GetMemberView(ctx, code); ok {
			return view, nil
		}
	}

	member, err := s.store.GetMemberByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	all, err := s.store.ListAssessments(ctx, types.AssessmentQuery{OrderDesc: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}

	_, active, err := s.store.CountMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count members: %w", err)
	}

	memberMetrics, err := s.store.ListMetricsByMember(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}

	// all is newest first, so the member's recent window is its first entries
	own := make([]types.Assessment, 0, RecentWindow)
	for _, a := range all {
		if len(own) == RecentWindow {
			break
		}
		if a.RespondentCode == code {
			own = append(own, a)
		}
	}

	view := &MemberView{
		Member: types.MemberDetail{
			Member:      *member,
			Assessments: own,
			Metrics:     memberMetrics,
		},
		Population: active,
		Leadership: summarize(RankSeries(all, code, types.DimensionLeadership), active),
		Expertise:  summarize(RankSeries(all, code, types.DimensionExpertise), active),
	}

	if view.Leadership.OutOfRange > 0 || view.Expertise.OutOfRange > 0 {
		slog.Warn("Member ranks exceed active team size",
			"code", code,
			"population", active,
			"leadership_out_of_range", view.Leadership.OutOfRange,
			"expertise_out_of_range", view.Expertise.OutOfRange,
		)
	}

	if s.cache != nil {
		s.cache.SetMemberView(ctx, gen, code, view)
	}
	return view, nil
}

func summarize(series []int, population int) DimensionSummary {
	values := stats.Floats(series)

	inRange := make([]int, 0, len(series))
	for _, r := range series {
		if stats.InRange(r, population) {
			inRange = append(inRange, r)
		}
	}

	// every rank left is within [1,population], so this cannot fail
	score, _ := stats.StatusScore(inRange, population)

	return DimensionSummary{
		MeanRank:    stats.Mean(values),
		StdDev:      stats.StdDev(values),
		Top3Count:   stats.TopN(series, topPlaces),
		StatusScore: score,
		Samples:     len(series),
		OutOfRange:  len(series) - len(inRange),
	}
}

type pendingMetric struct {
	code       string
	leadership int
	expertise  int
}

// CalculateForAssessment derives and upserts one metric row per active member
// ranked on both leadership and expertise in the given assessment. All ranks
// are checked against the active member count before anything is written.
func (s *Service) CalculateForAssessment(ctx context.Context, assessmentID int64) (*CalculationResult, error) {
	start := time.Now()

	assessment, err := s.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}

	members, err := s.store.ListActiveMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active members: %w", err)
	}
	population := len(members)

	var (
		pending []pendingMetric
		skipped int
		invalid = make(map[string]string)
	)

	for _, m := range members {
		l, okL := assessment.Leadership.Rank(m.Code)
		e, okE := assessment.Expertise.Rank(m.Code)
		if !okL || !okE {
			skipped++
			continue
		}
		if err := stats.ValidateRanks([]int{l, e}, population); err != nil {
			invalid[m.Code] = fmt.Sprintf("leadership %d, expertise %d: %v", l, e, err)
			continue
		}
		pending = append(pending, pendingMetric{code: m.Code, leadership: l, expertise: e})
	}

	if len(invalid) > 0 {
		return nil, errors.NewValidationErrorWithMap(
			fmt.Sprintf("assessment %d has ranks outside the active team size of %d", assessmentID, population),
			invalid,
		)
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].code < pending[j].code })

	var written atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(writeConcurrency)

	for _, p := range pending {
		g.Go(func() error {
			score, err := stats.StatusScore([]int{p.leadership, p.expertise}, population)
			if err != nil {
				return err
			}
			row := &types.Metric{
				MemberCode:         p.code,
				AssessmentID:       assessmentID,
				MeanRankLeadership: float64(p.leadership),
				MeanRankExpertise:  float64(p.expertise),
				StatusScore:        score,
			}
			err = resilience.Do(gctx, s.retry, func(ctx context.Context) error {
				_, err := s.store.UpsertMetric(ctx, row)
				return err
			})
			if err != nil {
				return fmt.Errorf("failed to upsert metric for %s: %w", p.code, err)
			}
			written.Add(1)
			return nil
		})
	}

	waitErr := g.Wait()

	// partial writes are possible on failure, so views are dropped either way
	if written.Load() > 0 {
		s.InvalidateViews(ctx)
	}
	if waitErr != nil {
		return nil, waitErr
	}

	slog.Info("Metrics calculated",
		"assessment_id", assessmentID,
		"population", population,
		"count", written.Load(),
		"skipped", skipped,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &CalculationResult{
		Message:      "Metrics calculated successfully",
		AssessmentID: assessmentID,
		Count:        int(written.Load()),
		Skipped:      skipped,
	}, nil
}
