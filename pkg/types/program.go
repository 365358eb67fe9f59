package types

import (
	"errors"
	"strings"
	"time"
)

// Program validation errors
var (
	ErrMissingProgramID      = errors.New("program ID is required")
	ErrMissingMedicationName = errors.New("medication name is required")
	ErrMissingManufacturer   = errors.New("manufacturer is required")
	ErrMissingProgramName    = errors.New("program name is required")
)

// Program represents a manufacturer discount program for a medication.
// The embedding vector is a storage artifact and is never part of this type.
type Program struct {
	ID string `json:"id"`

	// Required for a program to be searchable
	MedicationName string `json:"medication_name"`
	Manufacturer   string `json:"manufacturer"`
	ProgramName    string `json:"program_name"`

	// Optional descriptive fields; nil means absent
	GenericName         *string `json:"generic_name,omitempty"`
	ProgramDescription  *string `json:"program_description,omitempty"`
	EligibilityCriteria *string `json:"eligibility_criteria,omitempty"`
	DiscountAmount      *string `json:"discount_amount,omitempty"`
	ProgramURL          *string `json:"program_url,omitempty"`
	PhoneNumber         *string `json:"phone_number,omitempty"`
	EnrollmentProcess   *string `json:"enrollment_process,omitempty"`
	RequiredDocuments   *string `json:"required_documents,omitempty"`

	Active bool `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the fields a program needs to be stored and searched
func (p *Program) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrMissingProgramID
	}
	if strings.TrimSpace(p.MedicationName) == "" {
		return ErrMissingMedicationName
	}
	if strings.TrimSpace(p.Manufacturer) == "" {
		return ErrMissingManufacturer
	}
	if strings.TrimSpace(p.ProgramName) == "" {
		return ErrMissingProgramName
	}
	return nil
}

// EmbeddingText builds the text that is embedded for a program.
// Fields are joined with a single space in a fixed order: medication name, generic name,
// manufacturer, program name, description, eligibility criteria. Absent or blank fields
// are skipped. An empty result means the program is unembeddable.
func EmbeddingText(p *Program) string {
	if p == nil {
		return ""
	}

	fields := []string{
		p.MedicationName,
		Deref(p.GenericName),
		p.Manufacturer,
		p.ProgramName,
		Deref(p.ProgramDescription),
		Deref(p.EligibilityCriteria),
	}

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}

// String returns a pointer to s
func String(s string) *string {
	return &s
}

// Deref returns the value of an optional string, or "" when absent
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// NullIfBlank converts a blank string to an absent value
func NullIfBlank(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
