package alert

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload is the rule-specific context attached to an alert.
type Payload interface {
	PayloadKind() string
}

const (
	PayloadReportingGap        = "reporting_gap"
	PayloadDocumentExpiry      = "document_expiry"
	PayloadIngredientExpiry    = "ingredient_expiry"
	PayloadNutritionCompliance = "nutrition_compliance"
	PayloadStorageTemperature  = "storage_temperature"
)

// ReportingGap describes a site that stopped submitting daily activity.
type ReportingGap struct {
	SiteName       string     `json:"site_name"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	HoursSilent    int        `json:"hours_silent"`
	ThresholdHours int        `json:"threshold_hours"`
}

func (ReportingGap) PayloadKind() string { return PayloadReportingGap }

// DocumentExpiry describes a compliance document close to its expiry date.
type DocumentExpiry struct {
	DocumentType   string    `json:"document_type"`
	DocumentNumber string    `json:"document_number"`
	ExpiresAt      time.Time `json:"expires_at"`
	DaysLeft       int       `json:"days_left"`
}

func (DocumentExpiry) PayloadKind() string { return PayloadDocumentExpiry }

// IngredientExpiry describes an ingredient lot close to its expiry date.
type IngredientExpiry struct {
	IngredientName string    `json:"ingredient_name"`
	LotNumber      string    `json:"lot_number"`
	Quantity       float64   `json:"quantity"`
	Unit           string    `json:"unit"`
	ExpiresAt      time.Time `json:"expires_at"`
	HoursLeft      int       `json:"hours_left"`
}

func (IngredientExpiry) PayloadKind() string { return PayloadIngredientExpiry }

// NutritionCompliance describes consecutive days of menus below the nutrition standard.
type NutritionCompliance struct {
	ConsecutiveDays     int       `json:"consecutive_days"`
	LastNonCompliantDay time.Time `json:"last_non_compliant_day"`
	Deficits            []string  `json:"deficits,omitempty"`
}

func (NutritionCompliance) PayloadKind() string { return PayloadNutritionCompliance }

// StorageTemperature describes a storage unit reading outside its allowed range.
type StorageTemperature struct {
	UnitName     string    `json:"unit_name"`
	StorageType  string    `json:"storage_type"`
	TemperatureC float64   `json:"temperature_c"`
	MinC         *float64  `json:"min_c,omitempty"`
	MaxC         float64   `json:"max_c"`
	RecordedAt   time.Time `json:"recorded_at"`
}

func (StorageTemperature) PayloadKind() string { return PayloadStorageTemperature }

type payloadEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// EncodePayload serializes a payload with its kind discriminator.
// A nil payload encodes to nil.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return json.Marshal(payloadEnvelope{Kind: p.PayloadKind(), Data: data})
}

// DecodePayload is the inverse of EncodePayload. Empty input decodes to nil.
func DecodePayload(raw []byte) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var env payloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload envelope: %w", err)
	}

	var p Payload
	switch env.Kind {
	case PayloadReportingGap:
		var v ReportingGap
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s payload: %w", env.Kind, err)
		}
		p = v
	case PayloadDocumentExpiry:
		var v DocumentExpiry
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s payload: %w", env.Kind, err)
		}
		p = v
	case PayloadIngredientExpiry:
		var v IngredientExpiry
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s payload: %w", env.Kind, err)
		}
		p = v
	case PayloadNutritionCompliance:
		var v NutritionCompliance
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s payload: %w", env.Kind, err)
		}
		p = v
	case PayloadStorageTemperature:
		var v StorageTemperature
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s payload: %w", env.Kind, err)
		}
		p = v
	default:
		return nil, fmt.Errorf("unknown payload kind %q", env.Kind)
	}
	return p, nil
}
