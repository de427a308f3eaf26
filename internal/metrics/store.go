package metrics

import (
	"context"

	"github.com/ZanzyTHEbar/team-pulse/internal/types"
)

// Store is the storage contract the metrics service reads and writes through.
// GetMemberByCode and GetAssessment wrap errors.ErrNotFound when nothing matches.
type Store interface {
	ListActiveMembers(ctx context.Context) ([]types.Member, error)
	CountMembers(ctx context.Context) (total, active int, err error)
	GetMemberByCode(ctx context.Context, code string) (*types.Member, error)
	ListAssessments(ctx context.Context, q types.AssessmentQuery) ([]types.Assessment, error)
	GetAssessment(ctx context.Context, id int64) (*types.Assessment, error)
	ListMetricsByMember(ctx context.Context, code string) ([]types.Metric, error)
	UpsertMetric(ctx context.Context, m *types.Metric) (*types.Metric, error)
}
