package importer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/property-import-service/internal/models"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is a structured normalization outcome attached to one cell.
type Finding struct {
	Severity Severity
	Code     string
	Message  string
}

// Value is a normalized cell. Present is false for blank cells, which is distinct from an empty string.
type Value struct {
	Present bool
	Text    string
}

// DefaultDateFormats are tried in order when no formats are configured.
var DefaultDateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-06",
	"1/2/06",
	"02 Jan 2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"02-Jan-2006",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// NormalizeOptions configures the locale-sensitive parts of normalization.
type NormalizeOptions struct {
	DateFormats []string
}

const isoDate = "2006-01-02"

// Excel serials accepted as dates: 1927-05-18 through 9999-12-31. Smaller bare numbers
// are more likely years or day numbers than spreadsheet dates.
const (
	minExcelSerial = 10000
	maxExcelSerial = 2958465
)

var (
	fieldValidate = validator.New()

	currencyCode   = regexp.MustCompile(`^[A-Za-z]{3}\s*|\s*[A-Za-z]{3}$`)
	plainDecimal   = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	excelSerial    = regexp.MustCompile(`^\d{1,7}(\.\d+)?$`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
	enumSeparators = strings.NewReplacer(" ", "_", "-", "_", "/", "_")
)

// Normalize converts one raw cell into its canonical text for the given field.
// It is pure: the result depends only on its arguments.
func Normalize(raw string, field FieldSpec, opts NormalizeOptions) (Value, *Finding) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Value{}, nil
	}

	switch field.Type {
	case FieldMoney:
		return normalizeMoney(text)
	case FieldDate:
		return normalizeDate(text, opts.DateFormats)
	case FieldPhone:
		return normalizePhone(text)
	case FieldBoolean:
		return normalizeBool(text)
	case FieldEnum:
		return normalizeEnum(text, field)
	case FieldEmail:
		return normalizeEmail(text)
	case FieldInteger:
		return normalizeInteger(text)
	default:
		return Value{Present: true, Text: whitespaceRun.ReplaceAllString(text, " ")}, nil
	}
}

func invalid(format string, args ...interface{}) *Finding {
	return &Finding{Severity: SeverityError, Code: models.IssueInvalidFormat, Message: fmt.Sprintf(format, args...)}
}

// ParseMoney parses a human-formatted amount into a fixed-point decimal.
func ParseMoney(text string) (decimal.Decimal, error) {
	s := strings.TrimSpace(text)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	s = currencyCode.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		switch r {
		case '$', '€', '£', '¥', '₹', ',', ' ', '\'', '\u00a0':
			return -1
		}
		return r
	}, s)
	if strings.HasSuffix(s, "-") {
		negative = !negative
		s = strings.TrimSuffix(s, "-")
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = strings.TrimPrefix(s, "-")
	}
	s = strings.TrimPrefix(s, "+")
	if !plainDecimal.MatchString(s) {
		return decimal.Zero, fmt.Errorf("%q is not a monetary amount", text)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a monetary amount: %w", text, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// FormatMoney renders d with at least two decimal places.
func FormatMoney(d decimal.Decimal) string {
	places := int32(2)
	if -d.Exponent() > places {
		places = -d.Exponent()
	}
	return d.StringFixed(places)
}

func normalizeMoney(text string) (Value, *Finding) {
	d, err := ParseMoney(text)
	if err != nil {
		return Value{}, invalid("%q is not a valid amount", text)
	}
	return Value{Present: true, Text: FormatMoney(d)}, nil
}

func normalizeDate(text string, formats []string) (Value, *Finding) {
	if len(formats) == 0 {
		formats = DefaultDateFormats
	}
	for _, layout := range formats {
		if t, err := time.Parse(layout, text); err == nil {
			return Value{Present: true, Text: t.Format(isoDate)}, nil
		}
	}
	if excelSerial.MatchString(text) {
		if serial, err := strconv.ParseFloat(text, 64); err == nil && serial >= minExcelSerial && serial <= maxExcelSerial {
			if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
				return Value{Present: true, Text: t.Format(isoDate)}, nil
			}
		}
	}
	return Value{}, invalid("%q is not a recognized date", text)
}

func normalizePhone(text string) (Value, *Finding) {
	var digits strings.Builder
	plus := false
	for i, r := range text {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == '+' && i == 0:
			plus = true
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')' || r == '/':
		default:
			return Value{}, invalid("%q is not a phone number", text)
		}
	}
	d := digits.String()
	if !plus && strings.HasPrefix(d, "00") {
		d = d[2:]
		plus = true
	}
	if len(d) < 7 {
		return Value{}, invalid("%q has too few digits for a phone number", text)
	}
	v := Value{Present: true, Text: d}
	if plus {
		v.Text = "+" + d
	}
	if len(d) < 10 || len(d) > 15 {
		return v, &Finding{Severity: SeverityWarning, Code: models.IssueUnusualFormat,
			Message: fmt.Sprintf("phone number %q has an unusual length (%d digits)", text, len(d))}
	}
	return v, nil
}

func normalizeBool(text string) (Value, *Finding) {
	switch strings.ToLower(text) {
	case "yes", "y", "true", "1":
		return Value{Present: true, Text: "true"}, nil
	case "no", "n", "false", "0":
		return Value{Present: true, Text: "false"}, nil
	}
	return Value{}, invalid("%q is not a yes/no value", text)
}

func normalizeEnum(text string, field FieldSpec) (Value, *Finding) {
	key := enumSeparators.Replace(strings.ToLower(whitespaceRun.ReplaceAllString(text, " ")))
	for _, allowed := range field.EnumValues {
		if key == allowed {
			return Value{Present: true, Text: allowed}, nil
		}
	}
	msg := fmt.Sprintf("%q is not one of %s", text, strings.Join(field.EnumValues, ", "))
	if field.Required {
		return Value{}, &Finding{Severity: SeverityError, Code: models.IssueUnknownEnum, Message: msg}
	}
	return Value{Present: true, Text: text}, &Finding{Severity: SeverityWarning, Code: models.IssueUnknownEnum, Message: msg}
}

func normalizeEmail(text string) (Value, *Finding) {
	email := strings.ToLower(text)
	if err := fieldValidate.Var(email, "email"); err != nil {
		return Value{Present: true, Text: email}, &Finding{Severity: SeverityWarning, Code: models.IssueUnusualFormat,
			Message: fmt.Sprintf("%q does not look like an email address", text)}
	}
	return Value{Present: true, Text: email}, nil
}

func normalizeInteger(text string) (Value, *Finding) {
	d, err := decimal.NewFromString(strings.ReplaceAll(text, ",", ""))
	if err != nil || !d.IsInteger() || !plainDecimal.MatchString(strings.ReplaceAll(text, ",", "")) {
		return Value{}, invalid("%q is not a whole number", text)
	}
	return Value{Present: true, Text: d.String()}, nil
}
