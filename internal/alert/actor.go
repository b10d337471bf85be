package alert

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// ActorKind distinguishes human users from automated transitions.
type ActorKind string

const (
	ActorUser   ActorKind = "user"
	ActorSystem ActorKind = "system"
)

// Actor identifies who performed a change. It is stored as "kind:id".
type Actor struct {
	Kind ActorKind
	ID   string
}

// SystemActor is recorded on alerts created by scanners and on automatic transitions.
var SystemActor = Actor{Kind: ActorSystem, ID: "alert-engine"}

// UserActor returns the actor for a platform user.
func UserActor(userID string) Actor {
	return Actor{Kind: ActorUser, ID: userID}
}

// IsZero reports whether the actor is unset.
func (a Actor) IsZero() bool {
	return a.Kind == "" && a.ID == ""
}

// IsSystem reports whether the actor is an automated identity.
func (a Actor) IsSystem() bool {
	return a.Kind == ActorSystem
}

func (a Actor) String() string {
	if a.IsZero() {
		return ""
	}
	return string(a.Kind) + ":" + a.ID
}

// ParseActor parses the "kind:id" form.
func ParseActor(s string) (Actor, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return Actor{}, fmt.Errorf("%w: malformed actor %q", ErrValidation, s)
	}
	switch ActorKind(kind) {
	case ActorUser, ActorSystem:
		return Actor{Kind: ActorKind(kind), ID: id}, nil
	default:
		return Actor{}, fmt.Errorf("%w: unknown actor kind %q", ErrValidation, kind)
	}
}

// Value implements driver.Valuer.
func (a Actor) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements sql.Scanner.
func (a *Actor) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case nil:
		*a = Actor{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Actor", src)
	}
	parsed, err := ParseActor(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Actor) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Actor) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Actor{}
		return nil
	}
	parsed, err := ParseActor(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
