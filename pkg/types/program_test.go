package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmbeddingText(t *testing.T) {
	tests := []struct {
		name    string
		program *Program
		want    string
	}{
		{
			name:    "nil program",
			program: nil,
			want:    "",
		},
		{
			name:    "all fields empty",
			program: &Program{},
			want:    "",
		},
		{
			name: "required fields only",
			program: &Program{
				MedicationName: "Ozempic",
				Manufacturer:   "Novo Nordisk",
				ProgramName:    "Ozempic Savings Card",
			},
			want: "Ozempic Novo Nordisk Ozempic Savings Card",
		},
		{
			name: "fixed field order",
			program: &Program{
				EligibilityCriteria: String("Commercial insurance"),
				ProgramDescription:  String("Pay as little as $25"),
				ProgramName:         "Mounjaro Savings Card",
				Manufacturer:        "Eli Lilly",
				GenericName:         String("tirzepatide"),
				MedicationName:      "Mounjaro",
			},
			want: "Mounjaro tirzepatide Eli Lilly Mounjaro Savings Card Pay as little as $25 Commercial insurance",
		},
		{
			name: "blank optional fields skipped",
			program: &Program{
				MedicationName:     "Trulicity",
				GenericName:        String("   "),
				Manufacturer:       "Eli Lilly",
				ProgramName:        "",
				ProgramDescription: String(""),
			},
			want: "Trulicity Eli Lilly",
		},
		{
			name: "non-embedded fields ignored",
			program: &Program{
				MedicationName: "Jardiance",
				DiscountAmount: String("$10"),
				ProgramURL:     String("https://example.com"),
				PhoneNumber:    String("555-0100"),
			},
			want: "Jardiance",
		},
		{
			name: "surrounding whitespace trimmed",
			program: &Program{
				MedicationName: "  Eliquis ",
				Manufacturer:   "\tBMS\n",
			},
			want: "Eliquis BMS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EmbeddingText(tt.program))
		})
	}
}

func TestProgramValidate(t *testing.T) {
	valid := func() *Program {
		return &Program{ID: "p1", MedicationName: "Mounjaro", Manufacturer: "Eli Lilly", ProgramName: "Savings Card"}
	}

	assert.NoError(t, valid().Validate())

	p := valid()
	p.ID = ""
	assert.ErrorIs(t, p.Validate(), ErrMissingProgramID)

	p = valid()
	p.MedicationName = " "
	assert.ErrorIs(t, p.Validate(), ErrMissingMedicationName)

	p = valid()
	p.Manufacturer = ""
	assert.ErrorIs(t, p.Validate(), ErrMissingManufacturer)

	p = valid()
	p.ProgramName = ""
	assert.ErrorIs(t, p.Validate(), ErrMissingProgramName)
}

func TestOptionalHelpers(t *testing.T) {
	assert.Equal(t, "", Deref(nil))
	assert.Equal(t, "x", Deref(String("x")))
	assert.Nil(t, NullIfBlank("  "))
	assert.Equal(t, "a", *NullIfBlank("a"))
}

func TestBackfillItemErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("run: %w", &BackfillItemError{ProgramID: "p9", Err: ErrProviderUnavailable})

	assert.True(t, errors.Is(err, ErrProviderUnavailable))

	var itemErr *BackfillItemError
	assert.True(t, errors.As(err, &itemErr))
	assert.Equal(t, "p9", itemErr.ProgramID)
	assert.Contains(t, err.Error(), "p9")
}
