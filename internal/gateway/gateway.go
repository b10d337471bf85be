// Package gateway describes the read-only view of operational data the rule scanners consume.
// Records are owned by upstream systems; the engine never writes them.
package gateway

import (
	"context"
	"time"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
)

// Site is a production site with its most recent daily activity.
type Site struct {
	ID             string
	Name           string
	OrganizationID string
	LastActivityAt *time.Time
}

// Document is a site compliance document (permits, certificates).
type Document struct {
	ID             string
	SiteID         string
	OrganizationID string
	Type           string
	Number         string
	ExpiresAt      time.Time
}

// IngredientLot is a received batch of an ingredient.
type IngredientLot struct {
	ID             string
	SiteID         string
	OrganizationID string
	IngredientName string
	LotNumber      string
	Quantity       float64
	Unit           string
	ExpiresAt      time.Time
}

// MenuStreak is a run of consecutive days where a site's menus missed the nutrition standard.
type MenuStreak struct {
	SiteID              string
	SiteName            string
	OrganizationID      string
	ConsecutiveDays     int
	LastNonCompliantDay time.Time
	Deficits            []string
}

// Storage types with distinct temperature limits.
const (
	StorageChilled = "chilled"
	StorageFrozen  = "frozen"
)

// TemperatureLimits are the allowed ranges per storage type, in degrees Celsius.
type TemperatureLimits struct {
	ChilledMinC float64
	ChilledMaxC float64
	FrozenMaxC  float64
}

// InRange reports whether a reading is within the limits for its storage type.
// Unknown storage types are never flagged.
func (l TemperatureLimits) InRange(storageType string, c float64) bool {
	switch storageType {
	case StorageChilled:
		return c >= l.ChilledMinC && c <= l.ChilledMaxC
	case StorageFrozen:
		return c <= l.FrozenMaxC
	default:
		return true
	}
}

// StorageReading is the latest temperature reading of a storage unit.
type StorageReading struct {
	UnitID         string
	UnitName       string
	SiteID         string
	OrganizationID string
	StorageType    string
	TemperatureC   float64
	RecordedAt     time.Time
}

// Gateway is the set of upstream queries the scanners need. Single-record lookups
// return alert.ErrNotFound when the record no longer exists.
type Gateway interface {
	SitesWithoutActivitySince(ctx context.Context, since time.Time) ([]Site, error)
	Site(ctx context.Context, id string) (*Site, error)

	DocumentsExpiringBetween(ctx context.Context, from, to time.Time) ([]Document, error)
	Document(ctx context.Context, id string) (*Document, error)

	LotsExpiringBetween(ctx context.Context, from, to time.Time) ([]IngredientLot, error)
	Lot(ctx context.Context, id string) (*IngredientLot, error)

	NonCompliantMenuStreaks(ctx context.Context, minDays int, asOf time.Time) ([]MenuStreak, error)
	MenuStreak(ctx context.Context, siteID string, asOf time.Time) (*MenuStreak, error)

	StorageReadingsOutOfRange(ctx context.Context, limits TemperatureLimits) ([]StorageReading, error)
	LatestReading(ctx context.Context, unitID string) (*StorageReading, error)
}

// Scope narrows recipient lookup to a site and/or an organization.
type Scope struct {
	SiteID         string
	OrganizationID string
}

// Directory resolves the users of a tier responsible for a scope.
type Directory interface {
	Recipients(ctx context.Context, tier alert.Tier, scope Scope) ([]string, error)
}
