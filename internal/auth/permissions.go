package auth

import "slices"

// Permission names a capability a role may hold. The API middleware
// checks these, never roles directly, so new roles slot in without
// touching handlers.
type Permission string

const (
	PermDeviceRead    Permission = "device:read"
	PermDeviceOperate Permission = "device:operate"
	PermDeviceManage  Permission = "device:manage"
	PermHistoryRead   Permission = "history:read"
	PermUserManage    Permission = "user:manage"
	PermAuditRead     Permission = "audit:read"
	PermSystemAdmin   Permission = "system:admin"
)

// rolePermissions is the whole authorisation model. Admins get every
// permission; regular users can see and operate devices and read history,
// nothing else.
var rolePermissions = map[Role][]Permission{
	RoleUser: {
		PermDeviceRead,
		PermDeviceOperate,
		PermHistoryRead,
	},
	RoleAdmin: {
		PermDeviceRead,
		PermDeviceOperate,
		PermDeviceManage,
		PermHistoryRead,
		PermUserManage,
		PermAuditRead,
		PermSystemAdmin,
	},
}

// HasPermission reports whether role holds perm. Unknown roles hold nothing.
func HasPermission(role Role, perm Permission) bool {
	return slices.Contains(rolePermissions[role], perm)
}

// PermissionsForRole returns a copy of the role's grant list, nil for
// unknown roles.
func PermissionsForRole(role Role) []Permission {
	return slices.Clone(rolePermissions[role])
}
