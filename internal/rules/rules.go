// Package rules defines the monitoring rule configuration: which scanners run,
// on what cadence, and with which thresholds.
package rules

import (
	"fmt"
	"sort"

	"github.com/robfig/cron/v3"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
)

// Kind names a monitoring rule.
type Kind string

const (
	ReportingGap        Kind = "reporting_gap"
	DocumentExpiry      Kind = "document_expiry"
	IngredientExpiry    Kind = "ingredient_expiry"
	NutritionCompliance Kind = "nutrition_compliance"
	StorageTemperature  Kind = "storage_temperature"
)

// Kinds lists every rule in a stable order.
var Kinds = []Kind{ReportingGap, DocumentExpiry, IngredientExpiry, NutritionCompliance, StorageTemperature}

// ParseKind validates a rule name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown rule %q", alert.ErrValidation, s)
}

// Rule is the configuration of one monitoring rule.
type Rule struct {
	Kind        Kind             `json:"kind"`
	Name        string           `json:"name"`
	Enabled     bool             `json:"enabled"`
	Schedule    string           `json:"schedule"`
	Category    alert.Category   `json:"category"`
	Entity      alert.EntityKind `json:"entity"`
	Priority    alert.Priority   `json:"priority"`
	AutoResolve bool             `json:"auto_resolve"`

	// DeadlineHours sets the action deadline relative to detection.
	// Zero means the deadline is taken from the entity (expiry date).
	DeadlineHours int `json:"deadline_hours,omitempty"`

	SilenceHours        int     `json:"silence_hours,omitempty"`
	ExpiryWindowDays    int     `json:"expiry_window_days,omitempty"`
	CriticalWithinHours int     `json:"critical_within_hours,omitempty"`
	ConsecutiveDays     int     `json:"consecutive_days,omitempty"`
	ChilledMinC         float64 `json:"chilled_min_c,omitempty"`
	ChilledMaxC         float64 `json:"chilled_max_c,omitempty"`
	FrozenMaxC          float64 `json:"frozen_max_c,omitempty"`
}

// Validate checks the cadence, priority and the thresholds the rule kind depends on.
func (r Rule) Validate() error {
	if _, err := cron.ParseStandard(r.Schedule); err != nil {
		return fmt.Errorf("%s: invalid schedule %q: %w", r.Kind, r.Schedule, err)
	}
	if !r.Priority.Valid() {
		return fmt.Errorf("%s: unknown priority %q", r.Kind, r.Priority)
	}
	if r.DeadlineHours < 0 {
		return fmt.Errorf("%s: deadline_hours cannot be negative", r.Kind)
	}
	switch r.Kind {
	case ReportingGap:
		if r.SilenceHours <= 0 {
			return fmt.Errorf("%s: silence_hours must be positive", r.Kind)
		}
	case DocumentExpiry, IngredientExpiry:
		if r.ExpiryWindowDays <= 0 {
			return fmt.Errorf("%s: expiry_window_days must be positive", r.Kind)
		}
		if r.CriticalWithinHours < 0 {
			return fmt.Errorf("%s: critical_within_hours cannot be negative", r.Kind)
		}
	case NutritionCompliance:
		if r.ConsecutiveDays <= 0 {
			return fmt.Errorf("%s: consecutive_days must be positive", r.Kind)
		}
	case StorageTemperature:
		if r.ChilledMinC >= r.ChilledMaxC {
			return fmt.Errorf("%s: chilled_min_c must be below chilled_max_c", r.Kind)
		}
	default:
		return fmt.Errorf("unknown rule kind %q", r.Kind)
	}
	return nil
}

// Set is the full rule configuration keyed by kind.
type Set map[Kind]Rule

// Defaults returns the production rule configuration.
func Defaults() Set {
	return Set{
		ReportingGap: {
			Kind:          ReportingGap,
			Name:          "Site has not reported",
			Enabled:       true,
			Schedule:      "0 */2 * * *",
			Category:      alert.CategoryOperationalCompliance,
			Entity:        alert.EntitySite,
			Priority:      alert.PriorityHigh,
			AutoResolve:   true,
			DeadlineHours: 8,
			SilenceHours:  24,
		},
		DocumentExpiry: {
			Kind:             DocumentExpiry,
			Name:             "Compliance document expiring",
			Enabled:          true,
			Schedule:         "0 6 * * *",
			Category:         alert.CategoryDocumentCompliance,
			Entity:           alert.EntityDocument,
			Priority:         alert.PriorityMedium,
			AutoResolve:      false,
			ExpiryWindowDays: 7,
		},
		IngredientExpiry: {
			Kind:                IngredientExpiry,
			Name:                "Ingredient lot expiring",
			Enabled:             true,
			Schedule:            "0 8,14,20 * * *",
			Category:            alert.CategoryIngredientQuality,
			Entity:              alert.EntityIngredientLot,
			Priority:            alert.PriorityHigh,
			AutoResolve:         true,
			ExpiryWindowDays:    3,
			CriticalWithinHours: 24,
		},
		NutritionCompliance: {
			Kind:            NutritionCompliance,
			Name:            "Menus below nutrition standard",
			Enabled:         true,
			Schedule:        "0 10 * * *",
			Category:        alert.CategoryNutritionStandard,
			Entity:          alert.EntityMenu,
			Priority:        alert.PriorityMedium,
			AutoResolve:     false,
			DeadlineHours:   24,
			ConsecutiveDays: 2,
		},
		StorageTemperature: {
			Kind:          StorageTemperature,
			Name:          "Storage temperature out of range",
			Enabled:       true,
			Schedule:      "*/30 * * * *",
			Category:      alert.CategoryFoodSafety,
			Entity:        alert.EntityStorageUnit,
			Priority:      alert.PriorityCritical,
			AutoResolve:   true,
			DeadlineHours: 1,
			ChilledMinC:   2,
			ChilledMaxC:   8,
			FrozenMaxC:    -18,
		},
	}
}

// Get returns the rule of a kind.
func (s Set) Get(kind Kind) (Rule, bool) {
	r, ok := s[kind]
	return r, ok
}

// ForCategory returns the rule that raises alerts of a category.
func (s Set) ForCategory(c alert.Category) (Rule, bool) {
	for _, r := range s {
		if r.Category == c {
			return r, true
		}
	}
	return Rule{}, false
}

// List returns all rules in the order of Kinds, followed by any others sorted by name.
func (s Set) List() []Rule {
	out := make([]Rule, 0, len(s))
	seen := make(map[Kind]bool, len(s))
	for _, k := range Kinds {
		if r, ok := s[k]; ok {
			out = append(out, r)
			seen[k] = true
		}
	}
	var rest []Rule
	for k, r := range s {
		if !seen[k] {
			rest = append(rest, r)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].Kind < rest[j].Kind })
	return append(out, rest...)
}

// Enabled returns the enabled rules in List order.
func (s Set) Enabled() []Rule {
	var out []Rule
	for _, r := range s.List() {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

// Validate validates every rule and checks that no two rules share a category.
func (s Set) Validate() error {
	categories := make(map[alert.Category]Kind, len(s))
	for _, r := range s.List() {
		if err := r.Validate(); err != nil {
			return err
		}
		if other, dup := categories[r.Category]; dup {
			return fmt.Errorf("rules %s and %s share category %s", other, r.Kind, r.Category)
		}
		categories[r.Category] = r.Kind
	}
	return nil
}
