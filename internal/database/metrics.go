package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ZanzyTHEbar/team-pulse/internal/types"
)

// UpsertMetric creates or replaces the metric row for (MemberCode, AssessmentID)
func (r *Repository) UpsertMetric(ctx context.Context, m *types.Metric) (*types.Metric, error) {
	upsert, err := r.db.GetPreparedStatement(stmtUpsertMetric)
	if err != nil {
		return nil, err
	}
	get, err := r.db.GetPreparedStatement(stmtGetMetric)
	if err != nil {
		return nil, err
	}

	if _, err := upsert.ExecContext(ctx, m.MemberCode, m.AssessmentID,
		m.MeanRankLeadership, m.MeanRankExpertise, m.StatusScore, now()); err != nil {
		return nil, translateError(err, fmt.Sprintf("metric %s/%d", m.MemberCode, m.AssessmentID))
	}

	stored, err := scanMetric(get.QueryRowContext(ctx, m.MemberCode, m.AssessmentID))
	if err != nil {
		return nil, fmt.Errorf("failed to reload metric: %w", err)
	}
	return stored, nil
}

// ListMetricsByMember returns a member's metric rows, most recently updated first
func (r *Repository) ListMetricsByMember(ctx context.Context, code string) ([]types.Metric, error) {
	return r.listMetrics(ctx, "member_code = ?", code)
}

// ListMetricsByAssessment returns the metric rows derived from one assessment
func (r *Repository) ListMetricsByAssessment(ctx context.Context, assessmentID int64) ([]types.Metric, error) {
	return r.listMetrics(ctx, "assessment_id = ?", assessmentID)
}

func (r *Repository) listMetrics(ctx context.Context, where string, arg any) ([]types.Metric, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+metricColumns+" FROM metrics WHERE "+where+" ORDER BY updated_at DESC, id DESC", arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	defer rows.Close()

	return collectMetrics(rows)
}

func collectMetrics(rows *sql.Rows) ([]types.Metric, error) {
	out := make([]types.Metric, 0)
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate metrics: %w", err)
	}
	return out, nil
}
