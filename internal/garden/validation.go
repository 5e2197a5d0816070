package garden

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

const maxNameLength = 100

// ValidatePot checks a pot before persistence.
func ValidatePot(p *Pot) error {
	return validateName("name", p.Name)
}

// ValidatePlant checks a plant before persistence. The nickname is optional.
func ValidatePlant(p *Plant) error {
	if err := validateName("species", p.Species); err != nil {
		return err
	}
	if p.Nickname != nil && utf8.RuneCountInString(*p.Nickname) > maxNameLength {
		return fmt.Errorf("%w: nickname exceeds %d characters", ErrValidation, maxNameLength)
	}
	return nil
}

// ValidateReading rejects NaN and infinite values.
func ValidateReading(r *SensorReading) error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"moisture", r.Moisture},
		{"light", r.Light},
		{"temperature", r.Temperature},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s must be a finite number", ErrValidation, f.name)
		}
	}
	return nil
}

func validateName(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrValidation, field)
	}
	if utf8.RuneCountInString(value) > maxNameLength {
		return fmt.Errorf("%w: %s exceeds %d characters", ErrValidation, field, maxNameLength)
	}
	return nil
}
