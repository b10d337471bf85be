package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
)

func TestDefaults_Validate(t *testing.T) {
	set := Defaults()
	if err := set.Validate(); err != nil {
		t.Fatalf("Defaults().Validate() error = %v", err)
	}
	if len(set.Enabled()) != len(Kinds) {
		t.Errorf("Enabled() = %d rules, want %d", len(set.Enabled()), len(Kinds))
	}
}

func TestDefaults_Table(t *testing.T) {
	set := Defaults()
	tests := []struct {
		kind        Kind
		schedule    string
		priority    alert.Priority
		autoResolve bool
		category    alert.Category
	}{
		{ReportingGap, "0 */2 * * *", alert.PriorityHigh, true, alert.CategoryOperationalCompliance},
		{DocumentExpiry, "0 6 * * *", alert.PriorityMedium, false, alert.CategoryDocumentCompliance},
		{IngredientExpiry, "0 8,14,20 * * *", alert.PriorityHigh, true, alert.CategoryIngredientQuality},
		{NutritionCompliance, "0 10 * * *", alert.PriorityMedium, false, alert.CategoryNutritionStandard},
		{StorageTemperature, "*/30 * * * *", alert.PriorityCritical, true, alert.CategoryFoodSafety},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			r, ok := set.Get(tt.kind)
			if !ok {
				t.Fatalf("rule %s missing", tt.kind)
			}
			if r.Schedule != tt.schedule || r.Priority != tt.priority || r.AutoResolve != tt.autoResolve || r.Category != tt.category {
				t.Errorf("rule %s = %+v", tt.kind, r)
			}
		})
	}
}

func TestSet_ForCategory(t *testing.T) {
	r, ok := Defaults().ForCategory(alert.CategoryFoodSafety)
	if !ok || r.Kind != StorageTemperature {
		t.Errorf("ForCategory(FOOD_SAFETY) = %s, %v", r.Kind, ok)
	}
	if _, ok := Defaults().ForCategory(alert.CategoryRegulation); ok {
		t.Error("ForCategory(REGULATION) should not match any rule")
	}
}

func TestRule_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Rule)
		errMsg string
	}{
		{"bad schedule", func(r *Rule) { r.Schedule = "every tuesday" }, "invalid schedule"},
		{"bad priority", func(r *Rule) { r.Priority = "URGENT" }, "unknown priority"},
		{"zero silence", func(r *Rule) { r.SilenceHours = 0 }, "silence_hours must be positive"},
		{"negative deadline", func(r *Rule) { r.DeadlineHours = -1 }, "deadline_hours cannot be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Defaults()[ReportingGap]
			tt.mutate(&r)
			err := r.Validate()
			if err == nil {
				t.Fatal("Validate() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.errMsg)
			}
		})
	}
}

func TestParse_Overrides(t *testing.T) {
	doc := `
[reporting_gap]
silence_hours = 48
priority = "critical"

[storage_temperature]
enabled = false
frozen_max_c = -20.0
`
	res, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	gap := res.Rules[ReportingGap]
	if gap.SilenceHours != 48 {
		t.Errorf("silence_hours = %d, want 48", gap.SilenceHours)
	}
	if gap.Priority != alert.PriorityCritical {
		t.Errorf("priority = %s, want CRITICAL", gap.Priority)
	}
	if !gap.Enabled || gap.DeadlineHours != 8 {
		t.Error("keys absent from the file must keep their defaults")
	}
	temp := res.Rules[StorageTemperature]
	if temp.Enabled {
		t.Error("storage_temperature should be disabled")
	}
	if temp.FrozenMaxC != -20 || temp.ChilledMaxC != 8 {
		t.Errorf("storage_temperature = %+v", temp)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", res.Warnings)
	}
}

func TestParse_Warnings(t *testing.T) {
	doc := `
[weather_alert]
enabled = true

[document_expiry]
reminder_count = 3
`
	res, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(res.Warnings) != 2 {
		t.Errorf("Warnings = %v, want 2 entries", res.Warnings)
	}
}

func TestParse_InvalidOverride(t *testing.T) {
	if _, err := Parse("[document_expiry]\nschedule = \"nope\"\n"); err == nil {
		t.Error("Parse() with invalid schedule should fail")
	}
	if _, err := Parse("[document_expiry]\npriority = \"urgent\"\n"); err == nil {
		t.Error("Parse() with invalid priority should fail")
	}
}

func TestLoadFrom(t *testing.T) {
	res, err := LoadFrom(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadFrom(missing) error = %v", err)
	}
	if len(res.Rules) != len(Kinds) {
		t.Errorf("LoadFrom(missing) = %d rules, want defaults", len(res.Rules))
	}

	path := filepath.Join(t.TempDir(), "rules.toml")
	if err := os.WriteFile(path, []byte("[nutrition_compliance]\nconsecutive_days = 3\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	res, err = LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if res.Rules[NutritionCompliance].ConsecutiveDays != 3 {
		t.Errorf("consecutive_days = %d, want 3", res.Rules[NutritionCompliance].ConsecutiveDays)
	}
}
