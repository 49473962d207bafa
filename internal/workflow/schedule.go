package workflow

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/example/formflow/internal/models"
)

// Gate denial reasons.
const (
	ReasonOutsideWorkDays  = "outside work days"
	ReasonOutsideWorkHours = "outside work hours"
	ReasonNoSchedule       = "role has no access schedule"
)

var weekdayNames = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Schedule is the window in which a role may act: permitted weekdays
// (0=Sunday..6=Saturday) and permitted hours of day (0-23, inclusive).
type Schedule struct {
	days  [7]bool
	hours [24]bool
}

// NewSchedule builds a schedule from weekday and hour lists. Out of range values are rejected.
func NewSchedule(days, hours []int) (Schedule, error) {
	var s Schedule
	for _, d := range days {
		if d < 0 || d > 6 {
			return Schedule{}, errors.Errorf("weekday %d out of range 0-6", d)
		}
		s.days[d] = true
	}
	for _, h := range hours {
		if h < 0 || h > 23 {
			return Schedule{}, errors.Errorf("hour %d out of range 0-23", h)
		}
		s.hours[h] = true
	}
	return s, nil
}

func mustSchedule(days, hours []int) Schedule {
	s, err := NewSchedule(days, hours)
	if err != nil {
		panic(err)
	}
	return s
}

func span(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

// Describe renders the window for display, e.g. "Mon-Sat 06:00-22:59".
func (s Schedule) Describe() string {
	var days []string
	for _, r := range runs(s.days[:]) {
		if r[0] == r[1] {
			days = append(days, weekdayNames[r[0]])
		} else {
			days = append(days, weekdayNames[r[0]]+"-"+weekdayNames[r[1]])
		}
	}
	var hours []string
	for _, r := range runs(s.hours[:]) {
		hours = append(hours, fmt.Sprintf("%02d:00-%02d:59", r[0], r[1]))
	}
	if len(days) == 0 || len(hours) == 0 {
		return "no access"
	}
	return strings.Join(days, ", ") + " " + strings.Join(hours, ", ")
}

func runs(set []bool) [][2]int {
	var out [][2]int
	start := -1
	for i, on := range set {
		switch {
		case on && start < 0:
			start = i
		case !on && start >= 0:
			out = append(out, [2]int{start, i - 1})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, [2]int{start, len(set) - 1})
	}
	return out
}

// AccessDecision is the result of a time gate check.
type AccessDecision struct {
	Allowed      bool   `json:"allowed"`
	Reason       string `json:"reason,omitempty"`
	AllowedHours string `json:"allowedHours,omitempty"`
}

// TimeGate decides whether a role may act at a given moment. It holds no
// mutable state and is safe for concurrent use.
type TimeGate struct {
	schedules map[models.Role]Schedule
	loc       *time.Location
}

// NewTimeGate returns a gate over a copy of schedules. A nil location means UTC.
func NewTimeGate(schedules map[models.Role]Schedule, loc *time.Location) TimeGate {
	if loc == nil {
		loc = time.UTC
	}
	copied := make(map[models.Role]Schedule, len(schedules))
	for role, s := range schedules {
		copied[role] = s
	}
	return TimeGate{schedules: copied, loc: loc}
}

// DefaultSchedules returns the shop-floor schedule table.
func DefaultSchedules() map[models.Role]Schedule {
	everyDay := span(0, 6)
	allHours := span(0, 23)
	return map[models.Role]Schedule{
		models.RoleProductionManager: mustSchedule(everyDay, allHours),
		models.RoleQualityManager:    mustSchedule(everyDay, allHours),
		models.RoleProduction:        mustSchedule(span(1, 6), span(6, 22)),
		models.RoleQuality:           mustSchedule(span(1, 6), span(6, 22)),
		models.RoleViewer:            mustSchedule(span(1, 5), span(7, 19)),
	}
}

// Check evaluates role against now, converted to the gate's location.
func (g TimeGate) Check(role models.Role, now time.Time) AccessDecision {
	if role.IsAdministrative() {
		return AccessDecision{Allowed: true}
	}
	s, ok := g.schedules[role]
	if !ok {
		return AccessDecision{Allowed: false, Reason: ReasonNoSchedule}
	}
	local := now.In(g.loc)
	window := s.Describe()
	if !s.days[int(local.Weekday())] {
		return AccessDecision{Allowed: false, Reason: ReasonOutsideWorkDays, AllowedHours: window}
	}
	if !s.hours[local.Hour()] {
		return AccessDecision{Allowed: false, Reason: ReasonOutsideWorkHours, AllowedHours: window}
	}
	return AccessDecision{Allowed: true, AllowedHours: window}
}

// Schedules returns the configured schedule descriptions by role, sorted by role name.
func (g TimeGate) Schedules() []RoleSchedule {
	out := make([]RoleSchedule, 0, len(g.schedules))
	for role, s := range g.schedules {
		out = append(out, RoleSchedule{Role: role, Window: s.Describe()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out
}

// RoleSchedule is a display row of the schedule table.
type RoleSchedule struct {
	Role   models.Role `json:"role" yaml:"role"`
	Window string      `json:"window" yaml:"window"`
}

type scheduleFile struct {
	Roles map[string]struct {
		Days  []int `yaml:"days"`
		Hours []int `yaml:"hours"`
	} `yaml:"roles"`
}

// LoadSchedules reads a YAML schedule table and overlays it on DefaultSchedules.
//
//	roles:
//	  PRODUCTION:
//	    days: [1, 2, 3, 4, 5]
//	    hours: [7, 8, 9, 10, 11, 12, 13, 14, 15, 16]
func LoadSchedules(path string) (map[models.Role]Schedule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read schedule file %s", path)
	}
	return ParseSchedules(raw)
}

// ParseSchedules is LoadSchedules over an in-memory document.
func ParseSchedules(raw []byte) (map[models.Role]Schedule, error) {
	var file scheduleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Wrap(err, "parse schedule file")
	}
	schedules := DefaultSchedules()
	for name, window := range file.Roles {
		role := models.Role(name)
		if !role.Valid() {
			return nil, errors.Errorf("unknown role %q in schedule file", name)
		}
		if role.IsAdministrative() {
			return nil, errors.Errorf("role %s has unrestricted access and takes no schedule", name)
		}
		s, err := NewSchedule(window.Days, window.Hours)
		if err != nil {
			return nil, errors.Wrapf(err, "role %s", name)
		}
		schedules[role] = s
	}
	return schedules, nil
}
