package level

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

var ErrUnknownLevel = errors.New("unknown level")

// Level is a membership tier. The zero value is not a valid level.
type Level uint8

const (
	Unknown Level = iota
	Tier1
	Tier2
	Tier3
	Tier4
	Tier5
)

// First is the level every member starts at.
const First = Tier1

var names = [...]string{
	Unknown: "",
	Tier1:   "Tier-1",
	Tier2:   "Tier-2",
	Tier3:   "Tier-3",
	Tier4:   "Tier-4",
	Tier5:   "Tier-5",
}

// All returns the known levels in progression order.
func All() []Level {
	return []Level{Tier1, Tier2, Tier3, Tier4, Tier5}
}

func (l Level) Valid() bool {
	return l > Unknown && l <= Tier5
}

func (l Level) String() string {
	if !l.Valid() {
		return fmt.Sprintf("Level(%d)", uint8(l))
	}
	return names[l]
}

// Parse resolves a level name such as "Tier-2".
func Parse(name string) (Level, error) {
	for _, l := range All() {
		if names[l] == name {
			return l, nil
		}
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnknownLevel, name)
}

func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLevel, uint8(l))
	}
	return []byte(names[l]), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Value stores the level by name so rows stay readable in the database.
func (l Level) Value() (driver.Value, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLevel, uint8(l))
	}
	return names[l], nil
}

// Scan keeps unknown names as Unknown instead of failing the whole row, so
// lookups surface ErrUnknownLevel at the point of use.
func (l *Level) Scan(src any) error {
	var name string
	switch v := src.(type) {
	case nil:
		*l = Unknown
		return nil
	case string:
		name = v
	case []byte:
		name = string(v)
	default:
		return fmt.Errorf("cannot scan %T into level", src)
	}
	parsed, err := Parse(name)
	if err != nil {
		*l = Unknown
		return nil
	}
	*l = parsed
	return nil
}
