package pgstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/ZanzyTHEbar/team-pulse/internal/errors"
	"github.com/ZanzyTHEbar/team-pulse/internal/types"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store implements the storage contracts on top of GORM
type Store struct {
	db *gorm.DB
}

// Open connects to Postgres and migrates the schema
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), Config())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(time.Hour)

	slog.Info("Postgres connection established")
	return New(db)
}

// Config returns the GORM settings the store relies on. TranslateError maps
// driver constraint errors onto gorm.ErrDuplicatedKey and gorm.ErrForeignKeyViolated.
func Config() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
}

// New wraps an open GORM handle and migrates the schema
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&memberModel{}, &assessmentModel{}, &metricModel{}, &adminModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// HealthCheck pings the database
func (s *Store) HealthCheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Stats returns connection pool statistics
func (s *Store) Stats() map[string]interface{} {
	sqlDB, err := s.db.DB()
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	st := sqlDB.Stats()
	return map[string]interface{}{
		"open_connections": st.OpenConnections,
		"in_use":           st.InUse,
		"idle":             st.Idle,
		"wait_count":       st.WaitCount,
	}
}

// Close closes the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, apperrors.ErrNotFound)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%s is referenced by other records: %w", what, apperrors.ErrConflict)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s already exists: %w", what, apperrors.ErrConflict)
	}
	return err
}

// ListMembers returns a page of members, newest first, plus the total match count
func (s *Store) ListMembers(ctx context.Context, q types.MemberQuery) ([]types.Member, int, error) {
	query := s.db.WithContext(ctx).Model(&memberModel{})
	if q.Active != nil {
		query = query.Where("is_active = ?", *q.Active)
	}
	if term := strings.TrimSpace(q.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		query = query.Where("(LOWER(full_name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(code) LIKE ?)", like, like, like)
	}
	// the filtered query is shared by the count and the page fetch
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count members: %w", err)
	}

	page, limit := types.NormalizePage(q.Page, q.Limit)
	var rows []memberModel
	if err := query.Order("created_at DESC, id DESC").
		Limit(limit).Offset(types.Offset(page, limit)).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list members: %w", err)
	}
	return membersToDomain(rows), int(total), nil
}

func membersToDomain(rows []memberModel) []types.Member {
	out := make([]types.Member, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out
}

// ListActiveMembers returns every active member ordered by code
func (s *Store) ListActiveMembers(ctx context.Context) ([]types.Member, error) {
	var rows []memberModel
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("code").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list active members: %w", err)
	}
	return membersToDomain(rows), nil
}

// CountMembers returns the total and active member counts
func (s *Store) CountMembers(ctx context.Context) (int, int, error) {
	var total, active int64
	db := s.db.WithContext(ctx)
	if err := db.Model(&memberModel{}).Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count members: %w", err)
	}
	if err := db.Model(&memberModel{}).Where("is_active = ?", true).Count(&active).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count active members: %w", err)
	}
	return int(total), int(active), nil
}

// GetMemberByCode fetches a member by code
func (s *Store) GetMemberByCode(ctx context.Context, code string) (*types.Member, error) {
	var row memberModel
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&row).Error; err != nil {
		return nil, translate(err, "member "+code)
	}
	m := row.toDomain()
	return &m, nil
}

// CreateMember inserts a member
func (s *Store) CreateMember(ctx context.Context, m *types.Member) (*types.Member, error) {
	row := memberFromDomain(m)
	row.ID = 0
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, translate(err, "member "+m.Code)
	}
	out := row.toDomain()
	return &out, nil
}

// UpdateMember replaces the fields of the member currently stored under code
func (s *Store) UpdateMember(ctx context.Context, code string, m *types.Member) (*types.Member, error) {
	var existing memberModel
	db := s.db.WithContext(ctx)
	if err := db.Where("code = ?", code).First(&existing).Error; err != nil {
		return nil, translate(err, "member "+code)
	}

	row := memberFromDomain(m)
	row.ID = existing.ID
	row.CreatedAt = existing.CreatedAt
	if err := db.Save(&row).Error; err != nil {
		return nil, translate(err, "member "+m.Code)
	}
	out := row.toDomain()
	return &out, nil
}

// DeactivateMember soft-deletes a member
func (s *Store) DeactivateMember(ctx context.Context, code string) (*types.Member, error) {
	res := s.db.WithContext(ctx).Model(&memberModel{}).Where("code = ?", code).
		Updates(map[string]interface{}{"is_active": false, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to deactivate member: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("member %s: %w", code, apperrors.ErrNotFound)
	}
	return s.GetMemberByCode(ctx, code)
}

// DeleteMember removes a member row unless other records reference it
func (s *Store) DeleteMember(ctx context.Context, code string) error {
	res := s.db.WithContext(ctx).Where("code = ?", code).Delete(&memberModel{})
	if res.Error != nil {
		return translate(res.Error, "member "+code)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("member %s: %w", code, apperrors.ErrNotFound)
	}
	return nil
}

// BulkUpsertMembers creates or updates members by code in one transaction
func (s *Store) BulkUpsertMembers(ctx context.Context, members []types.Member) ([]types.Member, error) {
	out := make([]types.Member, 0, len(members))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range members {
			row := memberFromDomain(&members[i])
			row.ID = 0
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "code"}},
				DoUpdates: clause.AssignmentColumns([]string{"full_name", "email", "position", "experience_months", "employment_type", "is_active", "updated_at"}),
			}).Create(&row).Error; err != nil {
				return translate(err, "member "+row.Code)
			}

			var stored memberModel
			if err := tx.Where("code = ?", row.Code).First(&stored).Error; err != nil {
				return fmt.Errorf("failed to reload member %s: %w", row.Code, err)
			}
			out = append(out, stored.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) assessments(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(&assessmentModel{}).Preload("Respondent")
}

// ListAssessments returns assessments with their respondent summary. Limit <= 0 returns every match.
func (s *Store) ListAssessments(ctx context.Context, q types.AssessmentQuery) ([]types.Assessment, error) {
	query := s.assessments(ctx)
	if q.RespondentCode != "" {
		query = query.Where("respondent_code = ?", q.RespondentCode)
	}
	query = query.Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: q.OrderDesc}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: q.OrderDesc})
	if q.Limit > 0 {
		query = query.Limit(q.Limit).Offset(q.Offset)
	}

	var rows []assessmentModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	out := make([]types.Assessment, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

// CountAssessments counts assessments, optionally for one respondent
func (s *Store) CountAssessments(ctx context.Context, respondentCode string) (int, error) {
	query := s.db.WithContext(ctx).Model(&assessmentModel{})
	if respondentCode != "" {
		query = query.Where("respondent_code = ?", respondentCode)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count assessments: %w", err)
	}
	return int(total), nil
}

// GetAssessment fetches one assessment with its respondent summary
func (s *Store) GetAssessment(ctx context.Context, id int64) (*types.Assessment, error) {
	var row assessmentModel
	if err := s.assessments(ctx).First(&row, id).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("assessment %d", id))
	}
	a := row.toDomain()
	return &a, nil
}

func (s *Store) requireRespondent(ctx context.Context, code string) error {
	if _, err := s.GetMemberByCode(ctx, code); err != nil {
		if apperrors.IsNotFound(err) {
			return fmt.Errorf("respondent %s: %w", code, apperrors.ErrNotFound)
		}
		return err
	}
	return nil
}

// CreateAssessment inserts an assessment. The respondent must exist.
func (s *Store) CreateAssessment(ctx context.Context, a *types.Assessment) (*types.Assessment, error) {
	if err := s.requireRespondent(ctx, a.RespondentCode); err != nil {
		return nil, err
	}

	row := assessmentFromDomain(a)
	row.ID = 0
	if row.Timestamp.IsZero() {
		row.Timestamp = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error; err != nil {
		return nil, translate(err, "assessment")
	}
	return s.GetAssessment(ctx, row.ID)
}

// UpdateAssessment replaces every stored field of assessment a.ID except created_at
func (s *Store) UpdateAssessment(ctx context.Context, a *types.Assessment) (*types.Assessment, error) {
	if err := s.requireRespondent(ctx, a.RespondentCode); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var existing assessmentModel
	if err := db.First(&existing, a.ID).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("assessment %d", a.ID))
	}

	row := assessmentFromDomain(a)
	row.CreatedAt = existing.CreatedAt
	if err := db.Omit(clause.Associations).Save(&row).Error; err != nil {
		return nil, translate(err, fmt.Sprintf("assessment %d", a.ID))
	}
	return s.GetAssessment(ctx, a.ID)
}

// DeleteAssessment removes an assessment unless metrics reference it
func (s *Store) DeleteAssessment(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&assessmentModel{}, id)
	if res.Error != nil {
		return translate(res.Error, fmt.Sprintf("assessment %d", id))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("assessment %d: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

// UpsertMetric creates or replaces the metric row for (MemberCode, AssessmentID)
func (s *Store) UpsertMetric(ctx context.Context, m *types.Metric) (*types.Metric, error) {
	row := metricModel{
		MemberCode:         m.MemberCode,
		AssessmentID:       m.AssessmentID,
		MeanRankLeadership: m.MeanRankLeadership,
		MeanRankExpertise:  m.MeanRankExpertise,
		StatusScore:        m.StatusScore,
	}
	db := s.db.WithContext(ctx)
	err := db.Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "member_code"}, {Name: "assessment_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"mean_rank_leadership", "mean_rank_expertise", "status_score", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, translate(err, fmt.Sprintf("metric %s/%d", m.MemberCode, m.AssessmentID))
	}

	var stored metricModel
	if err := db.Where("member_code = ? AND assessment_id = ?", m.MemberCode, m.AssessmentID).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to reload metric: %w", err)
	}
	out := stored.toDomain()
	return &out, nil
}

// ListMetricsByMember returns a member's metric rows, most recently updated first
func (s *Store) ListMetricsByMember(ctx context.Context, code string) ([]types.Metric, error) {
	return s.listMetrics(ctx, "member_code = ?", code)
}

// ListMetricsByAssessment returns the metric rows derived from one assessment
func (s *Store) ListMetricsByAssessment(ctx context.Context, assessmentID int64) ([]types.Metric, error) {
	return s.listMetrics(ctx, "assessment_id = ?", assessmentID)
}

func (s *Store) listMetrics(ctx context.Context, where string, arg interface{}) ([]types.Metric, error) {
	var rows []metricModel
	if err := s.db.WithContext(ctx).Where(where, arg).Order("updated_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	out := make([]types.Metric, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

// GetAdminByUsername fetches an admin account
func (s *Store) GetAdminByUsername(ctx context.Context, username string) (*types.AdminUser, error) {
	var row adminModel
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&row).Error; err != nil {
		return nil, translate(err, "admin "+username)
	}
	return &types.AdminUser{ID: row.ID, Username: row.Username, PasswordHash: row.PasswordHash, CreatedAt: row.CreatedAt}, nil
}

// UpsertAdmin creates an admin or replaces its password hash
func (s *Store) UpsertAdmin(ctx context.Context, username, passwordHash string) (*types.AdminUser, error) {
	row := adminModel{Username: username, PasswordHash: passwordHash}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"password_hash"}),
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert admin: %w", err)
	}
	return s.GetAdminByUsername(ctx, username)
}
