package models

// WorkflowStatus describes the life-cycle state of a form entry.
type WorkflowStatus string

const (
	StatusInitiated      WorkflowStatus = "INITIATED"
	StatusInProgress     WorkflowStatus = "IN_PROGRESS"
	StatusPendingQuality WorkflowStatus = "PENDING_QUALITY"
	StatusCompleted      WorkflowStatus = "COMPLETED"
	StatusSigned         WorkflowStatus = "SIGNED"
	StatusApproved       WorkflowStatus = "APPROVED"
	StatusRejected       WorkflowStatus = "REJECTED"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []WorkflowStatus{
	StatusInitiated,
	StatusInProgress,
	StatusPendingQuality,
	StatusCompleted,
	StatusSigned,
	StatusApproved,
	StatusRejected,
}

// Valid reports whether s is a recognized status.
func (s WorkflowStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the lifecycle normally ends at s.
func (s WorkflowStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Role is the closed set of roles a principal may hold.
type Role string

const (
	RoleSuperAdmin        Role = "SUPERADMIN"
	RoleAdmin             Role = "ADMIN"
	RoleProductionManager Role = "PRODUCTION_MANAGER"
	RoleProduction        Role = "PRODUCTION"
	RoleQualityManager    Role = "QUALITY_MANAGER"
	RoleQuality           Role = "QUALITY"
	RoleViewer            Role = "VIEWER"
)

// AllRoles lists every known role.
var AllRoles = []Role{
	RoleSuperAdmin,
	RoleAdmin,
	RoleProductionManager,
	RoleProduction,
	RoleQualityManager,
	RoleQuality,
	RoleViewer,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// IsAdministrative reports whether r bypasses every workflow check.
func (r Role) IsAdministrative() bool {
	return r == RoleSuperAdmin || r == RoleAdmin
}
