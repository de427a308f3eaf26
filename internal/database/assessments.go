package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	apperrors "github.com/ZanzyTHEbar/team-pulse/internal/errors"
	"github.com/ZanzyTHEbar/team-pulse/internal/types"
)

var assessmentQuery = "SELECT " + assessmentSelect("a") +
	", m.code, m.full_name, m.position FROM assessments a LEFT JOIN members m ON m.code = a.respondent_code"

func scanAssessment(row rowScanner) (*types.Assessment, error) {
	var (
		raw      assessmentRow
		code     sql.NullString
		name     sql.NullString
		position sql.NullString
	)
	if err := row.Scan(append(raw.dest(), &code, &name, &position)...); err != nil {
		return nil, err
	}
	a, err := raw.decode()
	if err != nil {
		return nil, err
	}
	if code.Valid {
		a.Respondent = &types.MemberSummary{
			Code:     code.String,
			FullName: name.String,
			Position: nullString(position),
		}
	}
	return a, nil
}

// ListAssessments returns assessments with their respondent summary.
// Limit <= 0 returns every match.
func (r *Repository) ListAssessments(ctx context.Context, q types.AssessmentQuery) ([]types.Assessment, error) {
	query := assessmentQuery
	var args []any
	if q.RespondentCode != "" {
		query += " WHERE a.respondent_code = ?"
		args = append(args, q.RespondentCode)
	}
	if q.OrderDesc {
		query += " ORDER BY a.timestamp DESC, a.id DESC"
	} else {
		query += " ORDER BY a.timestamp ASC, a.id ASC"
	}
	if q.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, q.Limit, q.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	defer rows.Close()

	assessments := make([]types.Assessment, 0)
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assessment: %w", err)
		}
		assessments = append(assessments, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assessments: %w", err)
	}
	return assessments, nil
}

// CountAssessments counts assessments, optionally for one respondent
func (r *Repository) CountAssessments(ctx context.Context, respondentCode string) (int, error) {
	query := "SELECT COUNT(*) FROM assessments"
	var args []any
	if respondentCode != "" {
		query += " WHERE respondent_code = ?"
		args = append(args, respondentCode)
	}
	var total int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count assessments: %w", err)
	}
	return total, nil
}

// GetAssessment fetches one assessment with its respondent summary
func (r *Repository) GetAssessment(ctx context.Context, id int64) (*types.Assessment, error) {
	a, err := scanAssessment(r.db.QueryRowContext(ctx, assessmentQuery+" WHERE a.id = ?", id))
	if err != nil {
		return nil, translateError(err, fmt.Sprintf("assessment %d", id))
	}
	return a, nil
}

// CreateAssessment inserts an assessment. The respondent must exist.
func (r *Repository) CreateAssessment(ctx context.Context, a *types.Assessment) (*types.Assessment, error) {
	if _, err := r.GetMemberByCode(ctx, a.RespondentCode); err != nil {
		if apperrors.IsNotFound(err) {
			return nil, fmt.Errorf("respondent %s: %w", a.RespondentCode, apperrors.ErrNotFound)
		}
		return nil, err
	}

	in := *a
	ts := now()
	if in.Timestamp.IsZero() {
		in.Timestamp = ts
	}
	in.CreatedAt = ts

	args, err := assessmentArgs(&in)
	if err != nil {
		return nil, err
	}
	cols := assessmentColumns()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")

	res, err := r.db.ExecContext(ctx,
		"INSERT INTO assessments ("+strings.Join(cols, ", ")+") VALUES ("+placeholders+")", args...)
	if err != nil {
		return nil, translateError(err, "assessment")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read assessment id: %w", err)
	}
	return r.GetAssessment(ctx, id)
}

// UpdateAssessment replaces every stored field of assessment a.ID except created_at
func (r *Repository) UpdateAssessment(ctx context.Context, a *types.Assessment) (*types.Assessment, error) {
	if _, err := r.GetMemberByCode(ctx, a.RespondentCode); err != nil {
		if apperrors.IsNotFound(err) {
			return nil, fmt.Errorf("respondent %s: %w", a.RespondentCode, apperrors.ErrNotFound)
		}
		return nil, err
	}

	args, err := assessmentArgs(a)
	if err != nil {
		return nil, err
	}
	cols := assessmentColumns()
	// created_at is the last column and never changes
	cols, args = cols[:len(cols)-1], args[:len(args)-1]

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}

	res, err := r.db.ExecContext(ctx,
		"UPDATE assessments SET "+strings.Join(sets, ", ")+" WHERE id = ?", append(args, a.ID)...)
	if err != nil {
		return nil, translateError(err, fmt.Sprintf("assessment %d", a.ID))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("assessment %d: %w", a.ID, apperrors.ErrNotFound)
	}
	return r.GetAssessment(ctx, a.ID)
}

// DeleteAssessment removes an assessment. Assessments with metrics cannot be removed.
func (r *Repository) DeleteAssessment(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM assessments WHERE id = ?`, id)
	if err != nil {
		return translateError(err, fmt.Sprintf("assessment %d", id))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("assessment %d: %w", id, apperrors.ErrNotFound)
	}
	return nil
}
