package workflow

import (
	"fmt"
	"time"

	"github.com/example/formflow/internal/models"
)

// Override names the rule that short-circuited an evaluation.
type Override string

const (
	OverrideNone    Override = ""
	OverrideAdmin   Override = "administrative_role"
	OverrideCreator Override = "entry_creator"
)

// Decision is the outcome of a permission evaluation.
type Decision struct {
	Allowed      bool     `json:"allowed"`
	Reason       string   `json:"reason,omitempty"`
	AllowedHours string   `json:"allowedHours,omitempty"`
	Override     Override `json:"override,omitempty"`
}

func allow(o Override) Decision { return Decision{Allowed: true, Override: o} }

func deny(reason, hours string) Decision {
	return Decision{Allowed: false, Reason: reason, AllowedHours: hours}
}

// Clock returns the current time.
type Clock func() time.Time

// Evaluator combines the time gate, the capability matrix and the ownership
// overrides into allow/deny decisions. It performs no I/O.
type Evaluator struct {
	gate   TimeGate
	matrix Matrix
	now    Clock
}

// NewEvaluator builds an evaluator. A nil clock uses time.Now.
func NewEvaluator(gate TimeGate, matrix Matrix, now Clock) *Evaluator {
	if now == nil {
		now = time.Now
	}
	return &Evaluator{gate: gate, matrix: matrix, now: now}
}

// Evaluate decides whether p may move entry to target. Checks run in order and
// short-circuit: administrative role, entry creator, time gate, capability matrix.
func (e *Evaluator) Evaluate(p models.Principal, entry *models.FormEntry, target models.WorkflowStatus) Decision {
	if p.Role.IsAdministrative() {
		return allow(OverrideAdmin)
	}
	if p.Owns(entry) {
		return allow(OverrideCreator)
	}
	if gate := e.gate.Check(p.Role, e.now()); !gate.Allowed {
		return deny(gate.Reason, gate.AllowedHours)
	}
	rule := e.matrix.Rule(p.Role)
	if !rule.HasCapabilities() {
		return deny(fmt.Sprintf("role %s cannot modify entries", p.Role), "")
	}
	if !rule.CanTransition(entry.WorkflowStatus, target) {
		return deny(fmt.Sprintf("role %s cannot move an entry from %s to %s", p.Role, entry.WorkflowStatus, target), "")
	}
	return allow(OverrideNone)
}

// EvaluateDelete decides whether p may delete entry. The creator override does
// not apply: deletion is reserved to roles holding the delete capability.
func (e *Evaluator) EvaluateDelete(p models.Principal, entry *models.FormEntry) Decision {
	if p.Role.IsAdministrative() {
		return allow(OverrideAdmin)
	}
	if gate := e.gate.Check(p.Role, e.now()); !gate.Allowed {
		return deny(gate.Reason, gate.AllowedHours)
	}
	if !e.matrix.CanDelete(p.Role) {
		return deny(fmt.Sprintf("role %s cannot delete entries (entry in %s)", p.Role, entry.WorkflowStatus), "")
	}
	return allow(OverrideNone)
}

// EvaluateCreate decides whether p may open a new entry.
func (e *Evaluator) EvaluateCreate(p models.Principal) Decision {
	if p.Role.IsAdministrative() {
		return allow(OverrideAdmin)
	}
	if gate := e.gate.Check(p.Role, e.now()); !gate.Allowed {
		return deny(gate.Reason, gate.AllowedHours)
	}
	if !e.matrix.CanCreate(p.Role) {
		return deny(fmt.Sprintf("role %s cannot create entries", p.Role), "")
	}
	return allow(OverrideNone)
}

// CheckAccess reports the time gate result for p at the current time.
func (e *Evaluator) CheckAccess(p models.Principal) AccessDecision {
	return e.gate.Check(p.Role, e.now())
}

// Gate returns the evaluator's time gate.
func (e *Evaluator) Gate() TimeGate { return e.gate }

// Matrix returns the evaluator's capability matrix.
func (e *Evaluator) Matrix() Matrix { return e.matrix }
