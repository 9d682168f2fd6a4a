package rbac

// AdminEmail is the well-known administrator account provisioned by seeding.
const AdminEmail = "admin@openaudit.com"

// AdminName is the display name of the seeded administrator account.
const AdminName = "System Administrator"

// CatalogPermission describes one entry of the built-in permission registry.
type CatalogPermission struct {
	Name        string
	Description string
	Category    string
}

// CatalogRole describes one built-in system role.
type CatalogRole struct {
	Name        string
	Description string
	Grants      GrantSet
}

// PermissionCatalog is the fixed registry provisioned by seeding. Names are
// stable keys referenced across the application and must never change.
var PermissionCatalog = []CatalogPermission{
	{"audits.read", "View audits", "audits"},
	{"audits.create", "Create new audits", "audits"},
	{"audits.update", "Edit audits", "audits"},
	{"audits.delete", "Delete audits", "audits"},
	{"users.read", "View users", "users"},
	{"users.create", "Create users", "users"},
	{"users.update", "Edit users", "users"},
	{"users.delete", "Delete users", "users"},
	{"users.assign_roles", "Assign roles to users", "users"},
	{"reports.read", "View reports", "reports"},
	{"reports.create", "Create reports", "reports"},
	{"reports.update", "Edit reports", "reports"},
	{"reports.delete", "Delete reports", "reports"},
	{"reports.export", "Export reports", "reports"},
	{"templates.read", "View templates", "templates"},
	{"templates.create", "Create templates", "templates"},
	{"templates.update", "Edit templates", "templates"},
	{"templates.delete", "Delete templates", "templates"},
	{"checklists.read", "View checklists", "checklists"},
	{"checklists.create", "Create checklists", "checklists"},
	{"checklists.update", "Edit checklists", "checklists"},
	{"checklists.complete", "Complete checklists", "checklists"},
	{"settings.read", "View system settings", "settings"},
	{"settings.update", "Update system settings", "settings"},
}

// RoleCatalog lists the system roles provisioned by seeding.
var RoleCatalog = []CatalogRole{
	{
		Name:        "administrator",
		Description: "Full system access with all permissions",
		Grants:      Unrestricted(),
	},
	{
		Name:        "manager",
		Description: "Can manage audits and users within scope",
		Grants: Explicit(
			"audits.read", "audits.create", "audits.update", "audits.delete",
			"users.read",
			"reports.read", "reports.create",
			"templates.read", "templates.create",
		),
	},
	{
		Name:        "auditor",
		Description: "Can conduct audits and view assigned audits",
		Grants: Explicit(
			"audits.read", "audits.update",
			"reports.read", "reports.create",
			"checklists.read", "checklists.complete",
		),
	},
	{
		Name:        "stakeholder",
		Description: "Read-only access to assigned audits",
		Grants:      Explicit("audits.read", "reports.read"),
	},
}
