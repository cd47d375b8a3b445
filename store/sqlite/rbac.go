package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cbelmas/authcore"
	"github.com/cbelmas/authcore/rbac"
)

// RoleByID loads one role by primary key.
func (s *Store) RoleByID(ctx context.Context, id int64) (*rbac.Role, error) {
	return s.roleBy(ctx, "id = ?", id)
}

// RoleByName loads one role by unique name.
func (s *Store) RoleByName(ctx context.Context, name string) (*rbac.Role, error) {
	return s.roleBy(ctx, "name = ?", name)
}

func (s *Store) roleBy(ctx context.Context, where string, arg any) (*rbac.Role, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT id, name, description, built_in FROM roles WHERE "+where, arg)
	var r rbac.Role
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.BuiltIn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rbac.ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan role: %w", err)
	}
	return &r, nil
}

// PermissionByName loads one permission by unique name.
func (s *Store) PermissionByName(ctx context.Context, name string) (*rbac.Permission, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, resource, action FROM permissions WHERE name = ?`, name)
	var p rbac.Permission
	err := row.Scan(&p.ID, &p.Name, &p.Resource, &p.Action)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rbac.ErrPermissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan permission: %w", err)
	}
	return &p, nil
}

// PermissionsForRole lists the permissions attached to a role, ordered by
// name for stable output.
func (s *Store) PermissionsForRole(ctx context.Context, roleID int64) ([]rbac.Permission, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT p.id, p.name, p.resource, p.action
		 FROM permissions p
		 JOIN role_permissions rp ON rp.permission_id = p.id
		 WHERE rp.role_id = ?
		 ORDER BY p.name`, roleID)
	if err != nil {
		return nil, fmt.Errorf("list role permissions: %w", err)
	}
	defer rows.Close()

	var out []rbac.Permission
	for rows.Next() {
		var p rbac.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list role permissions: %w", err)
	}
	return out, nil
}

// RoleIDForUser returns the user's role id, 0 when none is assigned.
func (s *Store) RoleIDForUser(ctx context.Context, userID int64) (int64, error) {
	var roleID int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT role_id FROM users WHERE id = ?`, userID).Scan(&roleID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, authcore.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("role for user: %w", err)
	}
	return roleID, nil
}

// AssignPermission attaches a permission to a role. A duplicate assignment
// fails with rbac.ErrAlreadyAssigned.
func (s *Store) AssignPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO role_permissions (role_id, permission_id) VALUES (?, ?)`,
		roleID, permissionID)
	if err != nil {
		if isUniqueViolation(err) {
			return rbac.ErrAlreadyAssigned
		}
		return fmt.Errorf("assign permission: %w", err)
	}
	return nil
}

// RemovePermission detaches a permission from a role. Removing one that is
// not attached fails with rbac.ErrNotAssigned.
func (s *Store) RemovePermission(ctx context.Context, roleID, permissionID int64) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM role_permissions WHERE role_id = ? AND permission_id = ?`,
		roleID, permissionID)
	if err != nil {
		return fmt.Errorf("remove permission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove permission: %w", err)
	}
	if n == 0 {
		return rbac.ErrNotAssigned
	}
	return nil
}

var _ authcore.Store = (*Store)(nil)

// CreateRole inserts a custom role. Seeded roles keep built_in = 1; roles
// created at runtime never do.
func (s *Store) CreateRole(ctx context.Context, r *rbac.Role) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO roles (name, description, built_in) VALUES (?, ?, 0)`,
		r.Name, r.Description)
	if err != nil {
		if isUniqueViolation(err) {
			return rbac.ErrRoleExists
		}
		return fmt.Errorf("create role: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create role: %w", err)
	}
	r.ID = id
	r.BuiltIn = false
	return nil
}

// UpdateRole applies name and description. The built_in flag is immutable
// and built-in roles cannot be renamed, so permission presets referenced
// by configuration stay resolvable.
func (s *Store) UpdateRole(ctx context.Context, r *rbac.Role) error {
	current, err := s.RoleByID(ctx, r.ID)
	if err != nil {
		return err
	}
	if current.BuiltIn && current.Name != r.Name {
		return rbac.ErrRoleBuiltIn
	}

	_, err = s.sqlDB.ExecContext(ctx,
		`UPDATE roles SET name = ?, description = ? WHERE id = ?`,
		r.Name, r.Description, r.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return rbac.ErrRoleExists
		}
		return fmt.Errorf("update role: %w", err)
	}
	r.BuiltIn = current.BuiltIn
	return nil
}

// DeleteRole removes a custom role. Its permission assignments cascade and
// users holding it are demoted to no role in the same transaction.
func (s *Store) DeleteRole(ctx context.Context, id int64) error {
	role, err := s.RoleByID(ctx, id)
	if err != nil {
		return err
	}
	if role.BuiltIn {
		return rbac.ErrRoleBuiltIn
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE users SET role_id = 0 WHERE role_id = ?`, id); err != nil {
		return fmt.Errorf("demote role users: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	return nil
}

// CreatePermission registers a capability under a unique name.
func (s *Store) CreatePermission(ctx context.Context, p *rbac.Permission) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO permissions (name, resource, action) VALUES (?, ?, ?)`,
		p.Name, p.Resource, p.Action)
	if err != nil {
		if isUniqueViolation(err) {
			return rbac.ErrPermissionExists
		}
		return fmt.Errorf("create permission: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create permission: %w", err)
	}
	p.ID = id
	return nil
}

// DeletePermission removes a permission; role assignments cascade.
func (s *Store) DeletePermission(ctx context.Context, id int64) error {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM permissions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	if n == 0 {
		return rbac.ErrPermissionNotFound
	}
	return nil
}
