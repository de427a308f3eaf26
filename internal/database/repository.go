package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	apperrors "github.com/ZanzyTHEbar/team-pulse/internal/errors"
	"github.com/ZanzyTHEbar/team-pulse/internal/types"
)

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck pings the underlying database
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// Stats returns connection pool statistics
func (r *Repository) Stats() map[string]interface{} {
	return r.db.GetPoolStats()
}

// ListMembers returns a page of members, newest first, plus the total match count
func (r *Repository) ListMembers(ctx context.Context, q types.MemberQuery) ([]types.Member, int, error) {
	var (
		where []string
		args  []any
	)
	if q.Active != nil {
		where = append(where, "is_active = ?")
		args = append(args, *q.Active)
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		where = append(where, "(LOWER(full_name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(code) LIKE ?)")
		args = append(args, like, like, like)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM members"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count members: %w", err)
	}

	page, limit := types.NormalizePage(q.Page, q.Limit)
	query := "SELECT " + memberColumns + " FROM members" + clause +
		" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, types.Offset(page, limit))...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members, err := collectMembers(rows)
	if err != nil {
		return nil, 0, err
	}
	return members, total, nil
}

// ListActiveMembers returns every active member ordered by code
func (r *Repository) ListActiveMembers(ctx context.Context) ([]types.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+memberColumns+" FROM members WHERE is_active = TRUE ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("failed to list active members: %w", err)
	}
	defer rows.Close()

	return collectMembers(rows)
}

func collectMembers(rows *sql.Rows) ([]types.Member, error) {
	members := make([]types.Member, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	return members, nil
}

// CountMembers returns the total and active member counts
func (r *Repository) CountMembers(ctx context.Context) (int, int, error) {
	stmt, err := r.db.GetPreparedStatement(stmtCountMembers)
	if err != nil {
		return 0, 0, err
	}
	var total, active int
	if err := stmt.QueryRowContext(ctx).Scan(&total, &active); err != nil {
		return 0, 0, fmt.Errorf("failed to count members: %w", err)
	}
	return total, active, nil
}

// GetMemberByCode fetches a member by code
func (r *Repository) GetMemberByCode(ctx context.Context, code string) (*types.Member, error) {
	stmt, err := r.db.GetPreparedStatement(stmtGetMemberByCode)
	if err != nil {
		return nil, err
	}
	m, err := scanMember(stmt.QueryRowContext(ctx, code))
	if err != nil {
		return nil, translateError(err, "member "+code)
	}
	return m, nil
}

// CreateMember inserts a member. Duplicate codes or emails are conflicts.
func (r *Repository) CreateMember(ctx context.Context, m *types.Member) (*types.Member, error) {
	ts := now()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO members (code, full_name, email, position, experience_months, employment_type, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.Code, m.FullName, m.Email, m.Position, m.ExperienceMonths, m.EmploymentType, m.IsActive, ts, ts)
	if err != nil {
		return nil, translateError(err, "member "+m.Code)
	}

	created := *m
	created.CreatedAt, created.UpdatedAt = ts, ts
	if created.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to read member id: %w", err)
	}
	return &created, nil
}

// UpdateMember replaces the fields of the member currently stored under code.
// A changed code cascades to assessments and metrics.
func (r *Repository) UpdateMember(ctx context.Context, code string, m *types.Member) (*types.Member, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE members SET code = ?, full_name = ?, email = ?, position = ?, experience_months = ?,
			employment_type = ?, is_active = ?, updated_at = ?
		WHERE code = ?
	`, m.Code, m.FullName, m.Email, m.Position, m.ExperienceMonths, m.EmploymentType, m.IsActive, now(), code)
	if err != nil {
		return nil, translateError(err, "member "+m.Code)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("member %s: %w", code, apperrors.ErrNotFound)
	}
	return r.GetMemberByCode(ctx, m.Code)
}

// DeactivateMember soft-deletes a member by clearing its active flag
func (r *Repository) DeactivateMember(ctx context.Context, code string) (*types.Member, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE members SET is_active = FALSE, updated_at = ? WHERE code = ?`, now(), code)
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("member %s: %w", code, apperrors.ErrNotFound)
	}
	return r.GetMemberByCode(ctx, code)
}

// DeleteMember removes a member row. Members referenced by assessments or metrics cannot be removed.
func (r *Repository) DeleteMember(ctx context.Context, code string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM members WHERE code = ?`, code)
	if err != nil {
		return translateError(err, "member "+code)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("member %s: %w", code, apperrors.ErrNotFound)
	}
	return nil
}

// BulkUpsertMembers creates or updates members by code in a single transaction
func (r *Repository) BulkUpsertMembers(ctx context.Context, members []types.Member) ([]types.Member, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO members (code, full_name, email, position, experience_months, employment_type, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			full_name = excluded.full_name,
			email = excluded.email,
			position = excluded.position,
			experience_months = excluded.experience_months,
			employment_type = excluded.employment_type,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare member upsert: %w", err)
	}
	defer stmt.Close()

	ts := now()
	for _, m := range members {
		if _, err := stmt.ExecContext(ctx, m.Code, m.FullName, m.Email, m.Position, m.ExperienceMonths,
			m.EmploymentType, m.IsActive, ts, ts); err != nil {
			return nil, translateError(err, "member "+m.Code)
		}
	}

	out := make([]types.Member, 0, len(members))
	for _, m := range members {
		stored, err := scanMember(tx.QueryRowContext(ctx, "SELECT "+memberColumns+" FROM members WHERE code = ?", m.Code))
		if err != nil {
			return nil, fmt.Errorf("failed to reload member %s: %w", m.Code, err)
		}
		out = append(out, *stored)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit member import: %w", err)
	}
	return out, nil
}

// GetAdminByUsername fetches an admin account
func (r *Repository) GetAdminByUsername(ctx context.Context, username string) (*types.AdminUser, error) {
	stmt, err := r.db.GetPreparedStatement(stmtGetAdmin)
	if err != nil {
		return nil, err
	}
	var u types.AdminUser
	if err := stmt.QueryRowContext(ctx, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, translateError(err, "admin "+username)
	}
	return &u, nil
}

// UpsertAdmin creates an admin or replaces its password hash
func (r *Repository) UpsertAdmin(ctx context.Context, username, passwordHash string) (*types.AdminUser, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO admin_users (username, password_hash, created_at) VALUES (?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET password_hash = excluded.password_hash
	`, username, passwordHash, now())
	if err != nil {
		return nil, fmt.Errorf("failed to upsert admin: %w", err)
	}
	return r.GetAdminByUsername(ctx, username)
}
