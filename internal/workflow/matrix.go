package workflow

import "github.com/example/formflow/internal/models"

// RoleRule declares what a role may do to an entry.
type RoleRule struct {
	// Unrestricted roles may edit an entry in any status, move it to any
	// status, and delete it.
	Unrestricted bool
	// Editable lists the statuses in which the role may act on an entry.
	Editable []models.WorkflowStatus
	// TransitionsFrom lists, per current status, the statuses the role may set.
	TransitionsFrom map[models.WorkflowStatus][]models.WorkflowStatus
}

// CanEdit reports whether the rule covers entries currently in status.
func (r RoleRule) CanEdit(status models.WorkflowStatus) bool {
	if r.Unrestricted {
		return true
	}
	return containsStatus(r.Editable, status)
}

// CanTransition reports whether the rule allows moving from one status to another.
// Both the editable set and the transition table must admit the move.
func (r RoleRule) CanTransition(from, to models.WorkflowStatus) bool {
	if r.Unrestricted {
		return true
	}
	return r.CanEdit(from) && containsStatus(r.TransitionsFrom[from], to)
}

// HasCapabilities reports whether the role may mutate anything at all.
func (r RoleRule) HasCapabilities() bool {
	return r.Unrestricted || len(r.Editable) > 0
}

func containsStatus(set []models.WorkflowStatus, s models.WorkflowStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// stageOnly is the "advancement requires elevation" policy for line roles:
// the role works on entries sitting in its own stage and may save them there,
// but only an unrestricted role may move the entry to another status.
func stageOnly(stage models.WorkflowStatus) RoleRule {
	return RoleRule{
		Editable: []models.WorkflowStatus{stage},
		TransitionsFrom: map[models.WorkflowStatus][]models.WorkflowStatus{
			stage: {stage},
		},
	}
}

// Matrix is the per-role capability table. Roles absent from the table have
// no capabilities. A Matrix is immutable once built.
type Matrix struct {
	rules map[models.Role]RoleRule
}

// NewMatrix builds a matrix from a copy of rules.
func NewMatrix(rules map[models.Role]RoleRule) Matrix {
	copied := make(map[models.Role]RoleRule, len(rules))
	for role, rule := range rules {
		copied[role] = cloneRule(rule)
	}
	return Matrix{rules: copied}
}

// DefaultMatrix returns the production capability policy.
func DefaultMatrix() Matrix {
	unrestricted := RoleRule{Unrestricted: true}
	return NewMatrix(map[models.Role]RoleRule{
		models.RoleSuperAdmin:        unrestricted,
		models.RoleAdmin:             unrestricted,
		models.RoleProductionManager: unrestricted,
		models.RoleQualityManager:    unrestricted,
		models.RoleProduction:        stageOnly(models.StatusInProgress),
		models.RoleQuality:           stageOnly(models.StatusPendingQuality),
		models.RoleViewer:            {},
	})
}

// Rule returns a copy of the rule for role. Unknown roles get the empty rule.
func (m Matrix) Rule(role models.Role) RoleRule {
	return cloneRule(m.rules[role])
}

// CanTransition reports whether role may move an entry from one status to another.
func (m Matrix) CanTransition(role models.Role, from, to models.WorkflowStatus) bool {
	return m.rules[role].CanTransition(from, to)
}

// CanDelete reports whether role holds the synthetic delete capability.
func (m Matrix) CanDelete(role models.Role) bool {
	return m.rules[role].Unrestricted
}

// CanCreate reports whether role may open new entries.
func (m Matrix) CanCreate(role models.Role) bool {
	return m.rules[role].HasCapabilities()
}

// PolicyRow is the auditable rendering of one role's rule.
type PolicyRow struct {
	Role            models.Role                                       `json:"role" yaml:"role"`
	Unrestricted    bool                                              `json:"unrestricted" yaml:"unrestricted"`
	Editable        []models.WorkflowStatus                           `json:"editableStatuses" yaml:"editableStatuses"`
	TransitionsFrom map[models.WorkflowStatus][]models.WorkflowStatus `json:"transitionsFrom" yaml:"transitionsFrom,omitempty"`
	CanDelete       bool                                              `json:"canDelete" yaml:"canDelete"`
}

// Policy lists every role's rule ordered by models.AllRoles.
func (m Matrix) Policy() []PolicyRow {
	rows := make([]PolicyRow, 0, len(m.rules))
	for _, role := range models.AllRoles {
		rule, ok := m.rules[role]
		if !ok {
			continue
		}
		rule = cloneRule(rule)
		if rule.Unrestricted {
			rule.Editable = append([]models.WorkflowStatus(nil), models.AllStatuses...)
		}
		rows = append(rows, PolicyRow{
			Role:            role,
			Unrestricted:    rule.Unrestricted,
			Editable:        rule.Editable,
			TransitionsFrom: rule.TransitionsFrom,
			CanDelete:       m.CanDelete(role),
		})
	}
	return rows
}

func cloneRule(r RoleRule) RoleRule {
	out := RoleRule{Unrestricted: r.Unrestricted}
	if r.Editable != nil {
		out.Editable = append([]models.WorkflowStatus(nil), r.Editable...)
	}
	if r.TransitionsFrom != nil {
		out.TransitionsFrom = make(map[models.WorkflowStatus][]models.WorkflowStatus, len(r.TransitionsFrom))
		for from, targets := range r.TransitionsFrom {
			out.TransitionsFrom[from] = append([]models.WorkflowStatus(nil), targets...)
		}
	}
	return out
}
