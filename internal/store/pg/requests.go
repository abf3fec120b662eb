package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"

	"mototumen.org/internal/admin"
	"mototumen.org/internal/authz"
	"mototumen.org/internal/directory"
	"mototumen.org/internal/moderation"
)

const requestsTable = "organization_requests"

var requestColumns = []string{
	"id", "user_id", "user_name", "user_email",
	"organization_name", "organization_type", "description", "address",
	"phone", "email", "website", "working_hours", "additional_info",
	"status", "review_comment", "reviewed_by", "reviewed_at",
	"created_at", "updated_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (moderation.Request, error) {
	var (
		r          moderation.Request
		reviewedBy sql.NullString
		reviewedAt sql.NullTime
	)
	err := row.Scan(
		&r.ID, &r.Submitter.ID, &r.Submitter.Name, &r.Submitter.Email,
		&r.Metadata.Name, &r.Metadata.Type, &r.Metadata.Description, &r.Metadata.Address,
		&r.Metadata.Phone, &r.Metadata.Email, &r.Metadata.Website, &r.Metadata.WorkingHours, &r.Metadata.AdditionalInfo,
		&r.Status, &r.ReviewComment, &reviewedBy, &reviewedAt,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return moderation.Request{}, err
	}
	r.ReviewedBy = reviewedBy.String
	if reviewedAt.Valid {
		t := reviewedAt.Time.UTC()
		r.ReviewedAt = &t
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

// FetchOrganizationRequests returns matching requests, newest first.
func (s *Store) FetchOrganizationRequests(ctx context.Context, filter moderation.RequestFilter) ([]moderation.Request, error) {
	sb := psql.Select(requestColumns...).From(requestsTable)
	if filter.Status != "" {
		sb = sb.Where(squirrel.Eq{"status": string(filter.Status)})
	}
	if filter.Type != "" {
		sb = sb.Where(squirrel.Eq{"organization_type": string(filter.Type)})
	}
	if filter.SubmitterID != "" {
		sb = sb.Where(squirrel.Eq{"user_id": filter.SubmitterID})
	}
	query, args, err := sb.OrderBy("created_at DESC", "id DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]moderation.Request, 0)
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) FetchOrganizationRequest(ctx context.Context, id string) (moderation.Request, error) {
	query, args, err := psql.Select(requestColumns...).From(requestsTable).
		Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return moderation.Request{}, fmt.Errorf("building select query: %w", err)
	}
	r, err := scanRequest(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return moderation.Request{}, &authz.NotFoundError{Kind: "organization request", ID: id}
	}
	return r, err
}

func (s *Store) CreateOrganizationRequest(ctx context.Context, req moderation.Request) error {
	m := req.Metadata
	query, args, err := psql.Insert(requestsTable).Columns(requestColumns...).Values(
		req.ID, req.Submitter.ID, req.Submitter.Name, req.Submitter.Email,
		m.Name, string(m.Type), m.Description, m.Address,
		m.Phone, m.Email, m.Website, m.WorkingHours, m.AdditionalInfo,
		string(req.Status), req.ReviewComment, nullIfEmpty(req.ReviewedBy), nullTime(req.ReviewedAt),
		req.CreatedAt, req.UpdatedAt,
	).ToSql()
	if err != nil {
		return fmt.Errorf("building insert query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isPgCode(err, pgErrUniqueViolation) {
			return fmt.Errorf("request %s: %w", req.ID, admin.ErrConflict)
		}
		return err
	}
	return nil
}

// UpdateOrganizationRequest stores an owner edit only while the row is still
// in prev.
func (s *Store) UpdateOrganizationRequest(ctx context.Context, req moderation.Request, prev moderation.Status) error {
	m := req.Metadata
	ub := psql.Update(requestsTable).
		Set("organization_name", m.Name).
		Set("organization_type", string(m.Type)).
		Set("description", m.Description).
		Set("address", m.Address).
		Set("phone", m.Phone).
		Set("email", m.Email).
		Set("website", m.Website).
		Set("working_hours", m.WorkingHours).
		Set("additional_info", m.AdditionalInfo).
		Set("status", string(req.Status)).
		Set("review_comment", req.ReviewComment).
		Set("reviewed_by", nullIfEmpty(req.ReviewedBy)).
		Set("reviewed_at", nullTime(req.ReviewedAt)).
		Set("updated_at", req.UpdatedAt).
		Where(squirrel.Eq{"id": req.ID}).
		Where(squirrel.Eq{"status": string(prev)})
	return s.guardedUpdate(ctx, ub, req.ID, prev)
}

// PersistModerationDecision applies d only while the row is still in d.From.
func (s *Store) PersistModerationDecision(ctx context.Context, d admin.Decision) error {
	ub := psql.Update(requestsTable).
		Set("status", string(d.Status)).
		Set("review_comment", d.Comment).
		Set("reviewed_by", nullIfEmpty(d.ReviewedBy)).
		Set("reviewed_at", nullTime(d.ReviewedAt)).
		Set("updated_at", d.UpdatedAt).
		Where(squirrel.Eq{"id": d.RequestID}).
		Where(squirrel.Eq{"status": string(d.From)})
	return s.guardedUpdate(ctx, ub, d.RequestID, d.From)
}

func (s *Store) guardedUpdate(ctx context.Context, ub squirrel.UpdateBuilder, id string, expected moderation.Status) error {
	query, args, err := ub.ToSql()
	if err != nil {
		return fmt.Errorf("building update query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	cur, err := s.FetchOrganizationRequest(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("request %s is %s, expected %s: %w", id, cur.Status, expected, admin.ErrConflict)
}

// ListUsers returns members ordered by id with their roles.
func (s *Store) ListUsers(ctx context.Context) ([]directory.User, error) {
	query, args, err := psql.Select("u.id", "u.name", "r.role_id").
		From("users u").
		LeftJoin("user_roles r ON r.user_id = u.id").
		OrderBy("u.id", "r.role_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]directory.User, 0)
	for rows.Next() {
		var (
			id, name string
			role     sql.NullString
		)
		if err := rows.Scan(&id, &name, &role); err != nil {
			return nil, err
		}
		if n := len(out); n == 0 || out[n-1].ID != id {
			out = append(out, directory.User{ID: id, Name: name})
		}
		if role.Valid {
			last := &out[len(out)-1]
			last.Roles = append(last.Roles, authz.RoleID(role.String))
		}
	}
	return out, rows.Err()
}
