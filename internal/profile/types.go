package profile

import (
	"fmt"
	"strings"

	"github.com/kalambet/pal/internal/storage"
)

// Profile is the single user's self-description. It is stored as one
// document and replaced as a whole on every save.
type Profile struct {
	Name               string            `json:"name" yaml:"name"`
	Role               string            `json:"role" yaml:"role"`
	WorkArea           string            `json:"work_area" yaml:"work_area"`
	FamilyInfo         string            `json:"family_info" yaml:"family_info"`
	Interests          string            `json:"interests" yaml:"interests"`
	CommunicationStyle string            `json:"communication_style" yaml:"communication_style"`
	HelpAreas          []string          `json:"help_areas" yaml:"help_areas"`
	WorkHours          string            `json:"work_hours" yaml:"work_hours"`
	CreatedDate        storage.Timestamp `json:"created_date" yaml:"created_date"`
	UpdatedDate        storage.Timestamp `json:"updated_date" yaml:"updated_date"`
}

// ValidationError reports fields that prevented a save. Nothing is written
// when it is returned.
type ValidationError struct {
	Missing []string // required fields that are empty
	Invalid []string // unknown fields or values of the wrong type
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid fields: "+strings.Join(e.Invalid, ", "))
	}
	return "profile validation failed: " + strings.Join(parts, "; ")
}

// CorruptDataError means the stored profile document could not be read as a
// profile. Callers treat it like an absent profile.
type CorruptDataError struct {
	Err error
}

func (e *CorruptDataError) Error() string {
	return fmt.Sprintf("corrupt profile data: %v", e.Err)
}

func (e *CorruptDataError) Unwrap() error { return e.Err }

// Validate checks the required fields: name, role and communication style
// must be non-empty after trimming.
func (p Profile) Validate() error {
	var missing []string
	if strings.TrimSpace(p.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(p.Role) == "" {
		missing = append(missing, "role")
	}
	if strings.TrimSpace(p.CommunicationStyle) == "" {
		missing = append(missing, "communication_style")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}
