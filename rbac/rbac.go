// Package rbac resolves role-based permissions by name.
//
// Permissions attach to roles, users attach to a single role. All checks
// are name-based so they stay stable when roles or permissions are
// renumbered. Resolution always reads through the store: changing a user's
// role changes the answer on the next check with no cache invalidation.
package rbac

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrRoleNotFound indicates an unknown role id or name.
	ErrRoleNotFound = errors.New("role not found")
	// ErrPermissionNotFound indicates an unknown permission name.
	ErrPermissionNotFound = errors.New("permission not found")
	// ErrAlreadyAssigned is returned when assigning a permission a role already has.
	ErrAlreadyAssigned = errors.New("permission already assigned to role")
	// ErrNotAssigned is returned when removing a permission a role does not have.
	ErrNotAssigned = errors.New("permission not assigned to role")
	// ErrRoleExists is returned when creating or renaming a role to a taken name.
	ErrRoleExists = errors.New("role already exists")
	// ErrPermissionExists is returned when creating a permission with a taken name.
	ErrPermissionExists = errors.New("permission already exists")
	// ErrRoleBuiltIn protects seeded roles from deletion and renaming.
	ErrRoleBuiltIn = errors.New("built-in role cannot be deleted or renamed")
)

// Role is a named bundle of permissions. Built-in roles are seeded by the
// store and cannot be deleted.
type Role struct {
	ID          int64
	Name        string
	Description string
	BuiltIn     bool
}

// Permission is an atomic capability keyed by a (resource, action) pair
// plus a unique name.
type Permission struct {
	ID       int64
	Name     string
	Resource string
	Action   string
}

// Store is the persistence contract the resolver reads and mutates through.
type Store interface {
	RoleByID(ctx context.Context, id int64) (*Role, error)
	RoleByName(ctx context.Context, name string) (*Role, error)
	PermissionByName(ctx context.Context, name string) (*Permission, error)
	PermissionsForRole(ctx context.Context, roleID int64) ([]Permission, error)
	// RoleIDForUser returns 0 when the user has no role assigned.
	RoleIDForUser(ctx context.Context, userID int64) (int64, error)
	AssignPermission(ctx context.Context, roleID, permissionID int64) error
	RemovePermission(ctx context.Context, roleID, permissionID int64) error

	// CreateRole inserts a non-built-in role and backfills r.ID. A taken
	// name fails with ErrRoleExists.
	CreateRole(ctx context.Context, r *Role) error
	// UpdateRole applies r.Name and r.Description to the stored role.
	// Renaming a built-in role fails with ErrRoleBuiltIn; a name
	// collision fails with ErrRoleExists.
	UpdateRole(ctx context.Context, r *Role) error
	// DeleteRole removes a role, detaches its permissions, and demotes
	// its users to no role. Built-in roles fail with ErrRoleBuiltIn.
	DeleteRole(ctx context.Context, id int64) error
	// CreatePermission inserts a permission and backfills p.ID. A taken
	// name fails with ErrPermissionExists.
	CreatePermission(ctx context.Context, p *Permission) error
	// DeletePermission removes a permission and every role assignment
	// holding it.
	DeletePermission(ctx context.Context, id int64) error
}

// Resolver answers permission-check queries against a Store.
type Resolver struct {
	store Store
}

// NewResolver creates a resolver backed by the given store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// PermissionsForRole returns the permission set of a role.
func (r *Resolver) PermissionsForRole(ctx context.Context, roleID int64) ([]Permission, error) {
	if r == nil || r.store == nil {
		return nil, errors.New("rbac resolver not initialized")
	}
	return r.store.PermissionsForRole(ctx, roleID)
}

// PermissionsForUser resolves the user's current role to its permission
// set. A user with no role has the empty set.
func (r *Resolver) PermissionsForUser(ctx context.Context, userID int64) ([]Permission, error) {
	if r == nil || r.store == nil {
		return nil, errors.New("rbac resolver not initialized")
	}

	roleID, err := r.store.RoleIDForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if roleID == 0 {
		return nil, nil
	}
	return r.store.PermissionsForRole(ctx, roleID)
}

// HasPermission reports whether the named permission is in the user's
// resolved permission set.
func (r *Resolver) HasPermission(ctx context.Context, userID int64, name string) (bool, error) {
	perms, err := r.PermissionsForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// Assign grants a permission to a role. Assigning an already-granted
// permission fails with ErrAlreadyAssigned; callers pre-check or handle it.
func (r *Resolver) Assign(ctx context.Context, roleName, permissionName string) error {
	role, perm, err := r.lookup(ctx, roleName, permissionName)
	if err != nil {
		return err
	}
	return r.store.AssignPermission(ctx, role.ID, perm.ID)
}

// Remove revokes a permission from a role. Removing an unassigned
// permission fails with ErrNotAssigned.
func (r *Resolver) Remove(ctx context.Context, roleName, permissionName string) error {
	role, perm, err := r.lookup(ctx, roleName, permissionName)
	if err != nil {
		return err
	}
	return r.store.RemovePermission(ctx, role.ID, perm.ID)
}

// CreateRole creates a custom role with an empty permission set.
func (r *Resolver) CreateRole(ctx context.Context, name, description string) (*Role, error) {
	if r == nil || r.store == nil {
		return nil, errors.New("rbac resolver not initialized")
	}
	role := &Role{Name: name, Description: description}
	if err := r.store.CreateRole(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// UpdateRole renames and redescribes the role currently called name. An
// empty newName keeps the current name, so built-in roles can still be
// redescribed.
func (r *Resolver) UpdateRole(ctx context.Context, name, newName, description string) error {
	if r == nil || r.store == nil {
		return errors.New("rbac resolver not initialized")
	}
	role, err := r.store.RoleByName(ctx, name)
	if err != nil {
		return fmt.Errorf("resolve role %q: %w", name, err)
	}
	if newName != "" {
		role.Name = newName
	}
	role.Description = description
	return r.store.UpdateRole(ctx, role)
}

// DeleteRole removes the named role. Users holding it drop to the empty
// permission set on their next check.
func (r *Resolver) DeleteRole(ctx context.Context, name string) error {
	if r == nil || r.store == nil {
		return errors.New("rbac resolver not initialized")
	}
	role, err := r.store.RoleByName(ctx, name)
	if err != nil {
		return fmt.Errorf("resolve role %q: %w", name, err)
	}
	return r.store.DeleteRole(ctx, role.ID)
}

// CreatePermission registers a new capability under a unique name.
func (r *Resolver) CreatePermission(ctx context.Context, name, resource, action string) (*Permission, error) {
	if r == nil || r.store == nil {
		return nil, errors.New("rbac resolver not initialized")
	}
	perm := &Permission{Name: name, Resource: resource, Action: action}
	if err := r.store.CreatePermission(ctx, perm); err != nil {
		return nil, err
	}
	return perm, nil
}

// DeletePermission removes the named permission from every role.
func (r *Resolver) DeletePermission(ctx context.Context, name string) error {
	if r == nil || r.store == nil {
		return errors.New("rbac resolver not initialized")
	}
	perm, err := r.store.PermissionByName(ctx, name)
	if err != nil {
		return fmt.Errorf("resolve permission %q: %w", name, err)
	}
	return r.store.DeletePermission(ctx, perm.ID)
}

func (r *Resolver) lookup(ctx context.Context, roleName, permissionName string) (*Role, *Permission, error) {
	if r == nil || r.store == nil {
		return nil, nil, errors.New("rbac resolver not initialized")
	}

	role, err := r.store.RoleByName(ctx, roleName)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve role %q: %w", roleName, err)
	}
	perm, err := r.store.PermissionByName(ctx, permissionName)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve permission %q: %w", permissionName, err)
	}
	return role, perm, nil
}
