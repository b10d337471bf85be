// Package alert defines the alert domain model shared by scanners, stores and the HTTP surface.
package alert

import (
	"fmt"
	"strings"
)

// Priority is the urgency of an alert. CRITICAL is the most urgent.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
	PriorityInfo     Priority = "INFO"
)

// Priorities lists every priority from most to least urgent.
var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow, PriorityInfo}

// Rank returns 0 for CRITICAL up to 4 for INFO. Unknown priorities rank last.
func (p Priority) Rank() int {
	for i, candidate := range Priorities {
		if candidate == p {
			return i
		}
	}
	return len(Priorities)
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p.Rank() < len(Priorities)
}

// ParsePriority parses a priority name case-insensitively.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown priority %q", ErrValidation, s)
	}
	return p, nil
}

// Status is the lifecycle state of an alert.
type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusInProgress Status = "IN_PROGRESS"
	StatusResolved   Status = "RESOLVED"
	StatusDismissed  Status = "DISMISSED"
	StatusExpired    Status = "EXPIRED"
)

// Statuses lists every status.
var Statuses = []Status{StatusActive, StatusInProgress, StatusResolved, StatusDismissed, StatusExpired}

// OpenStatuses are the statuses covered by the open-alert uniqueness rule.
var OpenStatuses = []Status{StatusActive, StatusInProgress}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusDismissed || s == StatusExpired
}

// IsOpen reports whether the alert still needs attention.
func (s Status) IsOpen() bool {
	return s == StatusActive || s == StatusInProgress
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, candidate := range Statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal edge of the state machine.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusActive:
		return next == StatusInProgress || next.IsTerminal()
	case StatusInProgress:
		return next.IsTerminal()
	default:
		return false
	}
}

// ParseStatus parses a status name case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
	}
	return st, nil
}

// Category groups alerts by the kind of problem they describe.
type Category string

const (
	CategoryOperationalCompliance Category = "OPERATIONAL_COMPLIANCE"
	CategoryFoodSafety            Category = "FOOD_SAFETY"
	CategoryNutritionStandard     Category = "NUTRITION_STANDARD"
	CategoryDocumentCompliance    Category = "DOCUMENT_COMPLIANCE"
	CategoryIngredientQuality     Category = "INGREDIENT_QUALITY"
	CategoryProductionCapacity    Category = "PRODUCTION_CAPACITY"
	CategoryTechnicalSystem       Category = "TECHNICAL_SYSTEM"
	CategoryAuditInspection       Category = "AUDIT_INSPECTION"
	CategoryStaffTraining         Category = "STAFF_TRAINING"
	CategoryRegulation            Category = "REGULATION"
)

// Categories lists every category.
var Categories = []Category{
	CategoryOperationalCompliance,
	CategoryFoodSafety,
	CategoryNutritionStandard,
	CategoryDocumentCompliance,
	CategoryIngredientQuality,
	CategoryProductionCapacity,
	CategoryTechnicalSystem,
	CategoryAuditInspection,
	CategoryStaffTraining,
	CategoryRegulation,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, candidate := range Categories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCategory parses a category name case-insensitively.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown category %q", ErrValidation, s)
	}
	return c, nil
}

// Channel is a delivery channel the external dispatcher may use.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelInApp   Channel = "in_app"
	ChannelWebhook Channel = "webhook"
)

// Tier is the organizational level of a notification recipient.
type Tier string

const (
	TierSiteOperator       Tier = "site_operator"
	TierRegionalSupervisor Tier = "regional_supervisor"
	TierProvincialManager  Tier = "provincial_manager"
	TierNationalAdmin      Tier = "national_admin"
)

// EntityKind identifies what an alert is about.
type EntityKind string

const (
	EntitySite          EntityKind = "site"
	EntityDocument      EntityKind = "document"
	EntityIngredientLot EntityKind = "ingredient_lot"
	EntityMenu          EntityKind = "menu"
	EntityStorageUnit   EntityKind = "storage_unit"
	EntityManual        EntityKind = "manual"
)

// Valid reports whether k is a known entity kind.
func (k EntityKind) Valid() bool {
	switch k {
	case EntitySite, EntityDocument, EntityIngredientLot, EntityMenu, EntityStorageUnit, EntityManual:
		return true
	}
	return false
}

// EntityRef points at the upstream record an alert was raised for.
type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
}

func (e EntityRef) String() string {
	return string(e.Kind) + "/" + e.ID
}

// DedupeKey identifies the single open alert allowed per entity and category.
type DedupeKey struct {
	Category   Category
	EntityKind EntityKind
	EntityID   string
}

func (k DedupeKey) String() string {
	return string(k.Category) + ":" + string(k.EntityKind) + ":" + k.EntityID
}
