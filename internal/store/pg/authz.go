package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"

	"mototumen.org/internal/admin"
	"mototumen.org/internal/authz"
)

const (
	subjectRole       = "role"
	subjectPermission = "permission"
)

func (s *Store) FetchUserAuthorizationState(ctx context.Context, userID string) (authz.State, error) {
	if err := s.userExists(ctx, userID); err != nil {
		return authz.State{}, err
	}
	roles, err := s.selectStrings(ctx, psql.Select("role_id").From("user_roles").
		Where(squirrel.Eq{"user_id": userID}).OrderBy("role_id"))
	if err != nil {
		return authz.State{}, fmt.Errorf("select roles: %w", err)
	}
	perms, err := s.selectStrings(ctx, psql.Select("permission").From("user_custom_permissions").
		Where(squirrel.Eq{"user_id": userID}).OrderBy("permission"))
	if err != nil {
		return authz.State{}, fmt.Errorf("select custom permissions: %w", err)
	}
	st := authz.State{
		UserID:            userID,
		AssignedRoles:     authz.NewRoleSet(),
		CustomPermissions: authz.NewPermissionSet(),
	}
	for _, r := range roles {
		st.AssignedRoles[authz.RoleID(r)] = struct{}{}
	}
	for _, p := range perms {
		st.CustomPermissions[authz.Permission(p)] = struct{}{}
	}
	return st, nil
}

func (s *Store) PersistRoleChange(ctx context.Context, userID string, roleID authz.RoleID, change admin.Change, grantedBy string) error {
	return s.persistChange(ctx, "user_roles", "role_id", subjectRole, userID, string(roleID), change, grantedBy)
}

func (s *Store) PersistPermissionChange(ctx context.Context, userID string, perm authz.Permission, change admin.Change, grantedBy string) error {
	return s.persistChange(ctx, "user_custom_permissions", "permission", subjectPermission, userID, string(perm), change, grantedBy)
}

// persistChange applies one grant or revoke and appends it to authz_changes
// in the same transaction.
func (s *Store) persistChange(ctx context.Context, table, column, subject, userID, value string, change admin.Change, grantedBy string) error {
	now := s.now()
	var stmt squirrel.Sqlizer
	switch change {
	case admin.Grant:
		stmt = psql.Insert(table).
			Columns("user_id", column, "granted_by", "granted_at").
			Values(userID, value, grantedBy, now).
			Suffix("ON CONFLICT (user_id, " + column + ") DO NOTHING")
	case admin.Revoke:
		stmt = psql.Delete(table).
			Where(squirrel.Eq{"user_id": userID}).
			Where(squirrel.Eq{column: value})
	default:
		return fmt.Errorf("unknown change %q", change)
	}
	query, args, err := stmt.ToSql()
	if err != nil {
		return fmt.Errorf("building %s query: %w", change, err)
	}
	logQuery, logArgs, err := psql.Insert("authz_changes").
		Columns("user_id", "subject_kind", "subject", "change", "granted_by", "created_at").
		Values(userID, subject, value, string(change), grantedBy, now).
		ToSql()
	if err != nil {
		return fmt.Errorf("building change log query: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if isPgCode(err, pgErrForeignKeyViolation) {
			return &authz.NotFoundError{Kind: "user", ID: userID}
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, logQuery, logArgs...); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) userExists(ctx context.Context, userID string) error {
	query, args, err := psql.Select("1").From("users").Where(squirrel.Eq{"id": userID}).ToSql()
	if err != nil {
		return fmt.Errorf("building select query: %w", err)
	}
	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return &authz.NotFoundError{Kind: "user", ID: userID}
	}
	return err
}

func (s *Store) selectStrings(ctx context.Context, b squirrel.SelectBuilder) ([]string, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
