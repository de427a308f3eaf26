package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/ZanzyTHEbar/team-pulse/internal/errors"
	"github.com/ZanzyTHEbar/team-pulse/internal/types"
	"github.com/mattn/go-sqlite3"
)

const (
	stmtUpsertMetric    = "upsert_metric"
	stmtGetMetric       = "get_metric"
	stmtGetMemberByCode = "get_member_by_code"
	stmtCountMembers    = "count_members"
	stmtGetAdmin        = "get_admin"
)

const memberColumns = `id, code, full_name, email, position, experience_months, employment_type, is_active, created_at, updated_at`

const metricColumns = `id, member_code, assessment_id, mean_rank_leadership, mean_rank_expertise, status_score, updated_at`

// dimensionColumns maps ranking dimensions to their JSON columns, in storage order
var dimensionColumns = map[types.Dimension]string{
	types.DimensionLeadership:        "leadership",
	types.DimensionExpertise:         "expertise",
	types.DimensionCollaboration:     "collaboration",
	types.DimensionInnovation:        "innovation",
	types.DimensionReliability:       "reliability",
	types.DimensionCommunication:     "communication",
	types.DimensionAdaptability:      "adaptability",
	types.DimensionMentorship:        "mentorship",
	types.DimensionSelfLeadership:    "self_leadership",
	types.DimensionSelfExpertise:     "self_expertise",
	types.DimensionSelfCollaboration: "self_collaboration",
}

// assessmentColumns lists the writable assessment columns (everything but id)
func assessmentColumns() []string {
	cols := []string{"timestamp", "respondent_code", "fill_time_minutes"}
	for _, dim := range types.Dimensions {
		cols = append(cols, dimensionColumns[dim])
	}
	return append(cols,
		"competency_matrix",
		"frequent_collaboration",
		"desired_collaboration",
		"learning_sources",
		"team_trust_index",
		"psychological_safety",
		"role_satisfaction",
		"created_at",
	)
}

func assessmentSelect(alias string) string {
	cols := append([]string{"id"}, assessmentColumns()...)
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*types.Member, error) {
	var (
		m          types.Member
		position   sql.NullString
		experience sql.NullInt64
		employment sql.NullString
	)
	err := row.Scan(&m.ID, &m.Code, &m.FullName, &m.Email, &position, &experience, &employment,
		&m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Position = nullString(position)
	m.EmploymentType = nullString(employment)
	if experience.Valid {
		v := int(experience.Int64)
		m.ExperienceMonths = &v
	}
	return &m, nil
}

func scanMetric(row rowScanner) (*types.Metric, error) {
	var (
		m          types.Metric
		leadership sql.NullFloat64
		expertise  sql.NullFloat64
		score      sql.NullFloat64
	)
	if err := row.Scan(&m.ID, &m.MemberCode, &m.AssessmentID, &leadership, &expertise, &score, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.MeanRankLeadership = leadership.Float64
	m.MeanRankExpertise = expertise.Float64
	m.StatusScore = score.Float64
	return &m, nil
}

// assessmentRow holds the raw column values of an assessment
type assessmentRow struct {
	a         types.Assessment
	fillTime  sql.NullInt64
	rankings  [11]sql.NullString
	matrix    sql.NullString
	frequent  sql.NullString
	desired   sql.NullString
	learning  sql.NullString
	trust     sql.NullFloat64
	safety    sql.NullFloat64
	satisfied sql.NullFloat64
}

func (r *assessmentRow) dest() []any {
	dest := []any{&r.a.ID, &r.a.Timestamp, &r.a.RespondentCode, &r.fillTime}
	for i := range r.rankings {
		dest = append(dest, &r.rankings[i])
	}
	return append(dest, &r.matrix, &r.frequent, &r.desired, &r.learning,
		&r.trust, &r.safety, &r.satisfied, &r.a.CreatedAt)
}

func (r *assessmentRow) decode() (*types.Assessment, error) {
	a := r.a
	if r.fillTime.Valid {
		v := int(r.fillTime.Int64)
		a.FillTimeMinutes = &v
	}
	for i, dim := range types.Dimensions {
		m, err := decodeRanking(r.rankings[i])
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s ranking of assessment %d: %w", dim, a.ID, err)
		}
		a.SetRanking(dim, m)
	}
	if r.matrix.Valid && r.matrix.String != "" {
		a.CompetencyMatrix = json.RawMessage(r.matrix.String)
	}
	var err error
	if a.FrequentCollaboration, err = decodeList(r.frequent); err != nil {
		return nil, err
	}
	if a.DesiredCollaboration, err = decodeList(r.desired); err != nil {
		return nil, err
	}
	if a.LearningSources, err = decodeList(r.learning); err != nil {
		return nil, err
	}
	a.TeamTrustIndex = nullFloat(r.trust)
	a.PsychologicalSafety = nullFloat(r.safety)
	a.RoleSatisfaction = nullFloat(r.satisfied)
	return &a, nil
}

// assessmentArgs returns values for assessmentColumns, in order
func assessmentArgs(a *types.Assessment) ([]any, error) {
	args := []any{a.Timestamp.UTC(), a.RespondentCode, a.FillTimeMinutes}
	for _, dim := range types.Dimensions {
		v, err := encodeRanking(a.Ranking(dim))
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s ranking: %w", dim, err)
		}
		args = append(args, v)
	}

	var matrix any
	if len(a.CompetencyMatrix) > 0 && string(a.CompetencyMatrix) != "null" {
		matrix = string(a.CompetencyMatrix)
	}
	args = append(args, matrix)

	for _, list := range [][]string{a.FrequentCollaboration, a.DesiredCollaboration, a.LearningSources} {
		v, err := encodeList(list)
		if err != nil {
			return nil, fmt.Errorf("failed to encode list: %w", err)
		}
		args = append(args, v)
	}

	return append(args, a.TeamTrustIndex, a.PsychologicalSafety, a.RoleSatisfaction, a.CreatedAt.UTC()), nil
}

func encodeRanking(m types.RankingMap) (any, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func encodeList(list []string) (any, error) {
	if list == nil {
		return nil, nil
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func decodeRanking(s sql.NullString) (types.RankingMap, error) {
	if !s.Valid || s.String == "" || s.String == "null" {
		return nil, nil
	}
	var m types.RankingMap
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeList(s sql.NullString) ([]string, error) {
	if !s.Valid || s.String == "" || s.String == "null" {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s.String), &out); err != nil {
		return nil, fmt.Errorf("failed to decode list: %w", err)
	}
	return out, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func now() time.Time {
	return time.Now().UTC()
}

// translateError maps SQLite constraint failures onto the storage sentinels
func translateError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, apperrors.ErrNotFound)
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%s is referenced by other records: %w", what, apperrors.ErrConflict)
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%s already exists: %w", what, apperrors.ErrConflict)
		}
	}
	return err
}
