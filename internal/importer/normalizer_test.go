package importer

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/property-import-service/internal/models"
)

func TestParseMoney_EquivalentFormats(t *testing.T) {
	formatted, err := ParseMoney("$1,234.50")
	require.NoError(t, err)
	plain, err := ParseMoney("1234.50")
	require.NoError(t, err)

	assert.True(t, formatted.Equal(plain))
	assert.True(t, formatted.Equal(decimal.RequireFromString("1234.5")))
}

func TestParseMoney_Negative(t *testing.T) {
	cases := map[string]string{
		"-$5.00":      "-5",
		"$-5.00":      "-5",
		"(1,000.25)":  "-1000.25",
		"5.00-":       "-5",
		"USD 12":      "12",
		"€ 7.10 EUR":  "7.1",
		"£1 000 000":  "1000000",
		"+42":         "42",
		"0.125":       "0.125",
		" 1,000.00  ": "1000",
	}
	for raw, want := range cases {
		t.Run(raw, func(t *testing.T) {
			got, err := ParseMoney(raw)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(want)), "got %s", got)
		})
	}

	d, err := ParseMoney("-$5.00")
	require.NoError(t, err)
	assert.True(t, d.IsNegative())
}

func TestNormalize_Money(t *testing.T) {
	field := FieldSpec{Name: "rent_amount", Type: FieldMoney}

	v, finding := Normalize("$1,234.50", field, NormalizeOptions{})
	assert.Nil(t, finding)
	assert.Equal(t, Value{Present: true, Text: "1234.50"}, v)

	v, finding = Normalize("0.125", field, NormalizeOptions{})
	assert.Nil(t, finding)
	assert.Equal(t, "0.125", v.Text)

	v, finding = Normalize("twelve", field, NormalizeOptions{})
	require.NotNil(t, finding)
	assert.Equal(t, SeverityError, finding.Severity)
	assert.Equal(t, models.IssueInvalidFormat, finding.Code)
	assert.False(t, v.Present)

	_, finding = Normalize("1e5", field, NormalizeOptions{})
	require.NotNil(t, finding)
}

func TestNormalize_BlankIsAbsent(t *testing.T) {
	for _, typ := range []FieldType{FieldString, FieldMoney, FieldDate, FieldPhone, FieldBoolean, FieldEnum, FieldEmail, FieldInteger, FieldReference} {
		v, finding := Normalize("   ", FieldSpec{Name: "x", Type: typ, Required: true}, NormalizeOptions{})
		assert.Nil(t, finding, string(typ))
		assert.False(t, v.Present, string(typ))
	}
}

func TestNormalize_Date(t *testing.T) {
	field := FieldSpec{Name: "start_date", Type: FieldDate}

	for _, raw := range []string{"2024-03-05", "03/05/2024", "3/5/2024", "2024/03/05", "Mar 5, 2024", "5 Mar 2024", "03-05-24"} {
		v, finding := Normalize(raw, field, NormalizeOptions{})
		assert.Nil(t, finding, raw)
		assert.Equal(t, "2024-03-05", v.Text, raw)
	}

	v, finding := Normalize("45292", field, NormalizeOptions{})
	assert.Nil(t, finding)
	assert.Equal(t, "2024-01-01", v.Text)

	v, finding = Normalize("05.03.2024", field, NormalizeOptions{DateFormats: []string{"02.01.2006"}})
	assert.Nil(t, finding)
	assert.Equal(t, "2024-03-05", v.Text)

	_, finding = Normalize("next tuesday", field, NormalizeOptions{})
	require.NotNil(t, finding)
	assert.Equal(t, SeverityError, finding.Severity)
	assert.Equal(t, models.IssueInvalidFormat, finding.Code)
}

func TestNormalize_DateRejectsImplausibleSerials(t *testing.T) {
	field := FieldSpec{Name: "date_of_birth", Type: FieldDate}

	for _, raw := range []string{"1990", "2024", "15", "9999", "3000000"} {
		v, finding := Normalize(raw, field, NormalizeOptions{})
		require.NotNil(t, finding, raw)
		assert.Equal(t, SeverityError, finding.Severity, raw)
		assert.Equal(t, models.IssueInvalidFormat, finding.Code, raw)
		assert.False(t, v.Present, raw)
	}

	v, finding := Normalize("10000", field, NormalizeOptions{})
	assert.Nil(t, finding)
	assert.Equal(t, "1927-05-18", v.Text)
}

func TestNormalize_Phone(t *testing.T) {
	field := FieldSpec{Name: "phone", Type: FieldPhone}

	v, finding := Normalize("(555) 123-4567", field, NormalizeOptions{})
	assert.Nil(t, finding)
	assert.Equal(t, "5551234567", v.Text, "national numbers get no country prefix")

	v, finding = Normalize("555-123-4567", field, NormalizeOptions{})
	assert.Nil(t, finding)
	assert.Equal(t, "5551234567", v.Text)

	v, finding = Normalize("+1 555.123.4567", field, NormalizeOptions{})
	assert.Nil(t, finding)
	assert.Equal(t, "+15551234567", v.Text)

	v, finding = Normalize("0044 20 7946 0958", field, NormalizeOptions{})
	assert.Nil(t, finding)
	assert.Equal(t, "+442079460958", v.Text)

	v, finding = Normalize("555-1234", field, NormalizeOptions{})
	require.NotNil(t, finding)
	assert.Equal(t, SeverityWarning, finding.Severity)
	assert.Equal(t, models.IssueUnusualFormat, finding.Code)
	assert.Equal(t, "5551234", v.Text)

	_, finding = Normalize("12345", field, NormalizeOptions{})
	require.NotNil(t, finding)
	assert.Equal(t, SeverityError, finding.Severity)

	_, finding = Normalize("555-CALL-NOW", field, NormalizeOptions{})
	require.NotNil(t, finding)
	assert.Equal(t, SeverityError, finding.Severity)
}

func TestNormalize_Enum(t *testing.T) {
	optional := FieldSpec{Name: "property_type", Type: FieldEnum, EnumValues: []string{"residential", "mixed_use"}}

	v, finding := Normalize("Mixed Use", optional, NormalizeOptions{})
	assert.Nil(t, finding)
	assert.Equal(t, "mixed_use", v.Text)

	v, finding = Normalize("Castle", optional, NormalizeOptions{})
	require.NotNil(t, finding)
	assert.Equal(t, SeverityWarning, finding.Severity)
	assert.Equal(t, models.IssueUnknownEnum, finding.Code)
	assert.Equal(t, Value{Present: true, Text: "Castle"}, v, "raw value is preserved, never coerced")

	required := optional
	required.Required = true
	v, finding = Normalize("Castle", required, NormalizeOptions{})
	require.NotNil(t, finding)
	assert.Equal(t, SeverityError, finding.Severity)
	assert.False(t, v.Present)
}

func TestNormalize_EmailBoolInteger(t *testing.T) {
	v, finding := Normalize(" Jane@Example.COM ", FieldSpec{Type: FieldEmail}, NormalizeOptions{})
	assert.Nil(t, finding)
	assert.Equal(t, "jane@example.com", v.Text)

	v, finding = Normalize("jane at example", FieldSpec{Type: FieldEmail}, NormalizeOptions{})
	require.NotNil(t, finding)
	assert.Equal(t, SeverityWarning, finding.Severity)
	assert.Equal(t, "jane at example", v.Text)

	v, finding = Normalize("Yes", FieldSpec{Type: FieldBoolean}, NormalizeOptions{})
	assert.Nil(t, finding)
	assert.Equal(t, "true", v.Text)
	v, _ = Normalize("0", FieldSpec{Type: FieldBoolean}, NormalizeOptions{})
	assert.Equal(t, "false", v.Text)
	_, finding = Normalize("maybe", FieldSpec{Type: FieldBoolean}, NormalizeOptions{})
	require.NotNil(t, finding)
	assert.Equal(t, SeverityError, finding.Severity)

	v, finding = Normalize("1,200", FieldSpec{Type: FieldInteger}, NormalizeOptions{})
	assert.Nil(t, finding)
	assert.Equal(t, "1200", v.Text)
	v, finding = Normalize("2.0", FieldSpec{Type: FieldInteger}, NormalizeOptions{})
	assert.Nil(t, finding)
	assert.Equal(t, "2", v.Text)
	_, finding = Normalize("2.5", FieldSpec{Type: FieldInteger}, NormalizeOptions{})
	require.NotNil(t, finding)
	assert.Equal(t, SeverityError, finding.Severity)
}
