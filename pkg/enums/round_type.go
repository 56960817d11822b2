package enums

import "fmt"

// RoundType maps to the round_type_enum enum in Postgres.
type RoundType string

const (
	RoundTypeBeer     RoundType = "beer"
	RoundTypeCocktail RoundType = "cocktail"
	RoundTypeShot     RoundType = "shot"
	RoundTypeSoft     RoundType = "soft"
	RoundTypeWater    RoundType = "water"
)

var validRoundTypes = []RoundType{
	RoundTypeBeer,
	RoundTypeCocktail,
	RoundTypeShot,
	RoundTypeSoft,
	RoundTypeWater,
}

// IsValid reports whether the value matches the canonical round type enum.
func (t RoundType) IsValid() bool {
	for _, candidate := range validRoundTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseRoundType converts raw input into RoundType.
func ParseRoundType(value string) (RoundType, error) {
	for _, candidate := range validRoundTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid round type %q", value)
}
