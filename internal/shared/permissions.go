package shared

// Catalog permission names referenced by handlers and middleware.
const (
	PermUsersRead        = "users.read"
	PermUsersCreate      = "users.create"
	PermUsersUpdate      = "users.update"
	PermUsersDelete      = "users.delete"
	PermUsersAssignRoles = "users.assign_roles"

	PermSettingsRead   = "settings.read"
	PermSettingsUpdate = "settings.update"
)
