package importer

import (
	"github.com/SAP-F-2025/property-import-service/internal/models"
)

// SchemaVersion is stamped on every ValidationResult so staged results can be matched to the schema that produced them.
const SchemaVersion = "2024-06.1"

type FieldType string

const (
	FieldString    FieldType = "string"
	FieldMoney     FieldType = "money"
	FieldDate      FieldType = "date"
	FieldPhone     FieldType = "phone"
	FieldBoolean   FieldType = "boolean"
	FieldEnum      FieldType = "enum"
	FieldEmail     FieldType = "email"
	FieldInteger   FieldType = "integer"
	FieldReference FieldType = "reference"
)

// FieldSpec describes one canonical column of an entity type.
type FieldSpec struct {
	Name       string
	Label      string
	Type       FieldType
	Required   bool
	Aliases    []string
	EnumValues []string
	Ref        models.EntityType // target entity of a reference field
	RefScope   string            // sibling reference field that narrows the label, e.g. unit within property
	Example    string
}

// EntitySchema is the ordered, versioned column definition of one entity type.
type EntitySchema struct {
	Entity  models.EntityType
	Name    string
	Aliases []string // sheet names and type-cell values that select this entity
	Fields  []FieldSpec
	// NaturalKey lists key parts; each part holds alternatives, the first present one is used.
	NaturalKey [][]string
	// Labels lists field combinations other rows may use to reference this entity.
	Labels [][]string
}

func (e *EntitySchema) Field(name string) (FieldSpec, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// FieldIndex returns the declaration position of name, or -1.
func (e *EntitySchema) FieldIndex(name string) int {
	for i, f := range e.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func (e *EntitySchema) RequiredFields() []string {
	var out []string
	for _, f := range e.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

func (e *EntitySchema) OptionalFields() []string {
	var out []string
	for _, f := range e.Fields {
		if !f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

// References returns the target entity types this entity points at.
func (e *EntitySchema) References() []models.EntityType {
	var out []models.EntityType
	for _, f := range e.Fields {
		if f.Type == FieldReference {
			out = append(out, f.Ref)
		}
	}
	return out
}

type Schema struct {
	Version           string
	Entities          []*EntitySchema // in commit order
	TypeColumnAliases []string
}

func (s *Schema) Entity(t models.EntityType) *EntitySchema {
	for _, e := range s.Entities {
		if e.Entity == t {
			return e
		}
	}
	return nil
}

// EntityByAlias resolves a sheet name or type cell to an entity type.
func (s *Schema) EntityByAlias(value string) (models.EntityType, bool) {
	key := normalizeAlias(value)
	if key == "" {
		return "", false
	}
	for _, e := range s.Entities {
		if normalizeAlias(string(e.Entity)) == key {
			return e.Entity, true
		}
		for _, alias := range e.Aliases {
			if normalizeAlias(alias) == key {
				return e.Entity, true
			}
		}
	}
	return "", false
}

// DefaultSchema returns a fresh copy of the canonical schema; callers may mutate it.
func DefaultSchema() *Schema {
	return &Schema{
		Version:           SchemaVersion,
		TypeColumnAliases: []string{"type", "entity", "entity type", "record type", "kind"},
		Entities: []*EntitySchema{
			{
				Entity:  models.EntityLandlord,
				Name:    "Landlords",
				Aliases: []string{"landlord", "landlords", "owner", "owners"},
				Fields: []FieldSpec{
					{Name: "name", Label: "Name", Type: FieldString, Required: true,
						Aliases: []string{"name", "landlord name", "owner name", "full name"}, Example: "Jane Smith"},
					{Name: "email", Label: "Email", Type: FieldEmail,
						Aliases: []string{"email", "email address", "e-mail", "landlord email", "owner email"}, Example: "jane@example.com"},
					{Name: "phone", Label: "Phone", Type: FieldPhone,
						Aliases: []string{"phone", "phone number", "telephone", "mobile", "landlord phone"}, Example: "+15551234567"},
					{Name: "address", Label: "Address", Type: FieldString,
						Aliases: []string{"address", "mailing address", "landlord address"}, Example: "1 Harbour Rd"},
					{Name: "company_name", Label: "Company", Type: FieldString,
						Aliases: []string{"company", "company name", "business name"}, Example: "Smith Holdings LLC"},
				},
				NaturalKey: [][]string{{"name"}, {"email", "phone"}},
				Labels:     [][]string{{"name"}, {"email"}, {"company_name"}},
			},
			{
				Entity:  models.EntityProperty,
				Name:    "Properties",
				Aliases: []string{"property", "properties", "building", "buildings"},
				Fields: []FieldSpec{
					{Name: "name", Label: "Property Name", Type: FieldString, Required: true,
						Aliases: []string{"property name", "name", "building name"}, Example: "Maple Court"},
					{Name: "address", Label: "Address", Type: FieldString, Required: true,
						Aliases: []string{"address", "street address", "property address", "street"}, Example: "12 Maple St"},
					{Name: "city", Label: "City", Type: FieldString,
						Aliases: []string{"city", "town"}, Example: "Springfield"},
					{Name: "state", Label: "State", Type: FieldString,
						Aliases: []string{"state", "province", "region"}, Example: "IL"},
					{Name: "postal_code", Label: "Postal Code", Type: FieldString,
						Aliases: []string{"postal code", "zip", "zip code", "postcode"}, Example: "62704"},
					{Name: "property_type", Label: "Property Type", Type: FieldEnum,
						Aliases:    []string{"property type", "building type"},
						EnumValues: []string{"residential", "commercial", "mixed_use", "industrial"}, Example: "residential"},
					{Name: "landlord", Label: "Landlord", Type: FieldReference, Required: true, Ref: models.EntityLandlord,
						Aliases: []string{"landlord", "owner", "landlord name", "owner name"}, Example: "Jane Smith"},
					{Name: "purchase_price", Label: "Purchase Price", Type: FieldMoney,
						Aliases: []string{"purchase price", "price", "acquisition cost"}, Example: "450000.00"},
				},
				NaturalKey: [][]string{{"name"}, {"address"}},
				Labels:     [][]string{{"name"}, {"address"}},
			},
			{
				Entity:  models.EntityUnit,
				Name:    "Units",
				Aliases: []string{"unit", "units", "apartment", "apartments", "suite", "suites"},
				Fields: []FieldSpec{
					{Name: "property", Label: "Property", Type: FieldReference, Required: true, Ref: models.EntityProperty,
						Aliases: []string{"property", "property name", "building"}, Example: "Maple Court"},
					{Name: "unit_number", Label: "Unit Number", Type: FieldString, Required: true,
						Aliases: []string{"unit number", "unit", "unit no", "apartment", "suite", "unit #"}, Example: "2B"},
					{Name: "bedrooms", Label: "Bedrooms", Type: FieldInteger,
						Aliases: []string{"bedrooms", "beds", "bedroom count"}, Example: "2"},
					{Name: "square_feet", Label: "Square Feet", Type: FieldInteger,
						Aliases: []string{"square feet", "sq ft", "sqft", "area"}, Example: "850"},
					{Name: "market_rent", Label: "Market Rent", Type: FieldMoney,
						Aliases: []string{"market rent", "asking rent", "list rent"}, Example: "1200.00"},
					{Name: "status", Label: "Unit Status", Type: FieldEnum,
						Aliases:    []string{"unit status", "status", "occupancy"},
						EnumValues: []string{"vacant", "occupied", "unavailable"}, Example: "vacant"},
				},
				NaturalKey: [][]string{{"property"}, {"unit_number"}},
				Labels:     [][]string{{"property", "unit_number"}, {"unit_number"}},
			},
			{
				Entity:  models.EntityTenant,
				Name:    "Tenants",
				Aliases: []string{"tenant", "tenants", "resident", "residents", "occupant", "occupants"},
				Fields: []FieldSpec{
					{Name: "name", Label: "Name", Type: FieldString, Required: true,
						Aliases: []string{"name", "tenant name", "full name", "resident name"}, Example: "Alex Doe"},
					{Name: "email", Label: "Email", Type: FieldEmail,
						Aliases: []string{"email", "email address", "e-mail", "tenant email"}, Example: "alex@example.com"},
					{Name: "phone", Label: "Phone", Type: FieldPhone,
						Aliases: []string{"phone", "phone number", "telephone", "mobile", "tenant phone"}, Example: "+15559876543"},
					{Name: "date_of_birth", Label: "Date of Birth", Type: FieldDate,
						Aliases: []string{"date of birth", "dob", "birth date", "birthday"}, Example: "1990-04-12"},
					{Name: "emergency_contact", Label: "Emergency Contact", Type: FieldString,
						Aliases: []string{"emergency contact", "emergency contact name"}, Example: "Sam Doe"},
				},
				NaturalKey: [][]string{{"name"}, {"email", "phone"}},
				Labels:     [][]string{{"name"}, {"email"}},
			},
			{
				Entity:  models.EntityLease,
				Name:    "Leases",
				Aliases: []string{"lease", "leases", "rental agreement", "rental agreements", "contract", "contracts"},
				Fields: []FieldSpec{
					{Name: "tenant", Label: "Tenant", Type: FieldReference, Required: true, Ref: models.EntityTenant,
						Aliases: []string{"tenant", "tenant name", "tenant email", "resident"}, Example: "Alex Doe"},
					{Name: "property", Label: "Property", Type: FieldReference, Ref: models.EntityProperty,
						Aliases: []string{"property", "property name", "building"}, Example: "Maple Court"},
					{Name: "unit", Label: "Unit", Type: FieldReference, Ref: models.EntityUnit, RefScope: "property",
						Aliases: []string{"unit", "unit number", "unit no", "apartment", "suite"}, Example: "2B"},
					{Name: "start_date", Label: "Start Date", Type: FieldDate, Required: true,
						Aliases: []string{"start date", "lease start", "start", "move in date", "commencement date"}, Example: "2024-01-01"},
					{Name: "end_date", Label: "End Date", Type: FieldDate,
						Aliases: []string{"end date", "lease end", "end", "move out date", "expiry date"}, Example: "2024-12-31"},
					{Name: "rent_amount", Label: "Rent Amount", Type: FieldMoney, Required: true,
						Aliases: []string{"rent amount", "rent", "monthly rent", "rent price"}, Example: "1200.00"},
					{Name: "deposit", Label: "Deposit", Type: FieldMoney,
						Aliases: []string{"deposit", "security deposit", "bond"}, Example: "1200.00"},
					{Name: "payment_day", Label: "Payment Day", Type: FieldInteger,
						Aliases: []string{"payment day", "due day", "rent due day"}, Example: "1"},
					{Name: "status", Label: "Lease Status", Type: FieldEnum,
						Aliases:    []string{"lease status", "status"},
						EnumValues: []string{"active", "pending", "ended"}, Example: "active"},
					{Name: "auto_renew", Label: "Auto Renew", Type: FieldBoolean,
						Aliases: []string{"auto renew", "autorenew", "renews automatically"}, Example: "yes"},
				},
				NaturalKey: [][]string{{"tenant"}, {"property"}, {"unit"}, {"start_date"}},
			},
		},
	}
}
