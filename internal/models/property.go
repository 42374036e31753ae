package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EntityType string

const (
	EntityLandlord EntityType = "landlord"
	EntityProperty EntityType = "property"
	EntityUnit     EntityType = "unit"
	EntityTenant   EntityType = "tenant"
	EntityLease    EntityType = "lease"
)

// EntityOrder is the referential order in which entity types are committed.
var EntityOrder = []EntityType{EntityLandlord, EntityProperty, EntityUnit, EntityTenant, EntityLease}

func (e EntityType) IsValid() bool {
	for _, known := range EntityOrder {
		if e == known {
			return true
		}
	}
	return false
}

// Rank is the position of e in EntityOrder, or len(EntityOrder) for unknown types.
func (e EntityType) Rank() int {
	for i, known := range EntityOrder {
		if e == known {
			return i
		}
	}
	return len(EntityOrder)
}

// Record is implemented by every tenant-store row an import can create.
type Record interface {
	Entity() EntityType
	RecordID() uint
	AssignID(id uint)
	GetProvenance() *Provenance
}

// Provenance is embedded in every imported record.
type Provenance struct {
	OrganizationID string    `json:"organization_id" gorm:"not null;size:64;index:,unique,composite:org_natural_key"`
	NaturalKey     string    `json:"natural_key" gorm:"not null;size:512;index:,unique,composite:org_natural_key"`
	ImportJobID    *string   `json:"import_job_id,omitempty" gorm:"size:36;index"`
	SourceRow      int       `json:"source_row"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (p *Provenance) GetProvenance() *Provenance { return p }

type Landlord struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Name        string  `json:"name" gorm:"not null;size:255"`
	Email       *string `json:"email,omitempty" gorm:"size:255"`
	Phone       *string `json:"phone,omitempty" gorm:"size:32"`
	Address     *string `json:"address,omitempty" gorm:"size:500"`
	CompanyName *string `json:"company_name,omitempty" gorm:"size:255"`
	Provenance
}

func (Landlord) TableName() string { return "landlords" }
func (Landlord) Entity() EntityType { return EntityLandlord }
func (l *Landlord) RecordID() uint { return l.ID }
func (l *Landlord) AssignID(id uint)  { l.ID = id }

type Property struct {
	ID            uint                `json:"id" gorm:"primaryKey"`
	LandlordID    *uint               `json:"landlord_id,omitempty" gorm:"index"`
	Name          string              `json:"name" gorm:"not null;size:255"`
	Address       string              `json:"address" gorm:"not null;size:500"`
	City          *string             `json:"city,omitempty" gorm:"size:120"`
	State         *string             `json:"state,omitempty" gorm:"size:120"`
	PostalCode    *string             `json:"postal_code,omitempty" gorm:"size:20"`
	PropertyType  *string             `json:"property_type,omitempty" gorm:"size:32"`
	PurchasePrice decimal.NullDecimal `json:"purchase_price" gorm:"type:decimal(18,2)"`
	Provenance
}

func (Property) TableName() string { return "properties" }
func (Property) Entity() EntityType { return EntityProperty }
func (p *Property) RecordID() uint { return p.ID }
func (p *Property) AssignID(id uint)  { p.ID = id }

type Unit struct {
	ID         uint                `json:"id" gorm:"primaryKey"`
	PropertyID *uint               `json:"property_id,omitempty" gorm:"index"`
	UnitNumber string              `json:"unit_number" gorm:"not null;size:64"`
	Bedrooms   *int                `json:"bedrooms,omitempty"`
	SquareFeet *int                `json:"square_feet,omitempty"`
	MarketRent decimal.NullDecimal `json:"market_rent" gorm:"type:decimal(18,2)"`
	Status     *string             `json:"status,omitempty" gorm:"size:32"`
	Provenance
}

func (Unit) TableName() string { return "units" }
func (Unit) Entity() EntityType { return EntityUnit }
func (u *Unit) RecordID() uint { return u.ID }
func (u *Unit) AssignID(id uint)  { u.ID = id }

type Tenant struct {
	ID               uint       `json:"id" gorm:"primaryKey"`
	Name             string     `json:"name" gorm:"not null;size:255"`
	Email            *string    `json:"email,omitempty" gorm:"size:255"`
	Phone            *string    `json:"phone,omitempty" gorm:"size:32"`
	DateOfBirth      *time.Time `json:"date_of_birth,omitempty" gorm:"type:date"`
	EmergencyContact *string    `json:"emergency_contact,omitempty" gorm:"size:255"`
	Provenance
}

func (Tenant) TableName() string { return "tenants" }
func (Tenant) Entity() EntityType { return EntityTenant }
func (t *Tenant) RecordID() uint { return t.ID }
func (t *Tenant) AssignID(id uint)  { t.ID = id }

type Lease struct {
	ID         uint                `json:"id" gorm:"primaryKey"`
	TenantID   *uint               `json:"tenant_id,omitempty" gorm:"index"`
	PropertyID *uint               `json:"property_id,omitempty" gorm:"index"`
	UnitID     *uint               `json:"unit_id,omitempty" gorm:"index"`
	StartDate  time.Time           `json:"start_date" gorm:"type:date;not null"`
	EndDate    *time.Time          `json:"end_date,omitempty" gorm:"type:date"`
	RentAmount decimal.Decimal     `json:"rent_amount" gorm:"type:decimal(18,2);not null"`
	Deposit    decimal.NullDecimal `json:"deposit" gorm:"type:decimal(18,2)"`
	PaymentDay *int                `json:"payment_day,omitempty"`
	Status     *string             `json:"status,omitempty" gorm:"size:32"`
	AutoRenew  *bool               `json:"auto_renew,omitempty"`
	Provenance
}

func (Lease) TableName() string { return "leases" }
func (Lease) Entity() EntityType { return EntityLease }
func (l *Lease) RecordID() uint { return l.ID }
func (l *Lease) AssignID(id uint)  { l.ID = id }

// NewRecord returns an empty model for the entity type.
func NewRecord(entity EntityType) (Record, bool) {
	switch entity {
	case EntityLandlord:
		return &Landlord{}, true
	case EntityProperty:
		return &Property{}, true
	case EntityUnit:
		return &Unit{}, true
	case EntityTenant:
		return &Tenant{}, true
	case EntityLease:
		return &Lease{}, true
	}
	return nil, false
}

// AllRecordModels is used by migrations.
func AllRecordModels() []interface{} {
	return []interface{}{&Landlord{}, &Property{}, &Unit{}, &Tenant{}, &Lease{}}
}
