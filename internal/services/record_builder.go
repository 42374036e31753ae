package services

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SAP-F-2025/property-import-service/internal/models"
)

const isoDate = "2006-01-02"

// fieldReader converts the canonical text of a staged row into typed columns. The first
// conversion failure is kept and reported once.
type fieldReader struct {
	fields map[string]string
	err    error
}

func (r *fieldReader) fail(field string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("field %s: %w", field, err)
	}
}

func (r *fieldReader) str(field string) string {
	return r.fields[field]
}

func (r *fieldReader) optStr(field string) *string {
	v, ok := r.fields[field]
	if !ok {
		return nil
	}
	return &v
}

func (r *fieldReader) optInt(field string) *int {
	v, ok := r.fields[field]
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(field, err)
		return nil
	}
	return &n
}

func (r *fieldReader) optBool(field string) *bool {
	v, ok := r.fields[field]
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(field, err)
		return nil
	}
	return &b
}

func (r *fieldReader) money(field string) decimal.Decimal {
	d, err := decimal.NewFromString(r.fields[field])
	if err != nil {
		r.fail(field, err)
	}
	return d
}

func (r *fieldReader) optMoney(field string) decimal.NullDecimal {
	if _, ok := r.fields[field]; !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(r.money(field))
}

func (r *fieldReader) date(field string) time.Time {
	t, err := time.Parse(isoDate, r.fields[field])
	if err != nil {
		r.fail(field, err)
	}
	return t
}

func (r *fieldReader) optDate(field string) *time.Time {
	if _, ok := r.fields[field]; !ok {
		return nil
	}
	t := r.date(field)
	return &t
}

// buildRecord maps a staged row onto its tenant-store model. refs holds the store IDs of
// resolved reference fields; a missing entry leaves the foreign key null.
func buildRecord(staged *models.StagedEntity, refs map[string]uint, provenance models.Provenance) (models.Record, error) {
	r := &fieldReader{fields: staged.Fields}
	ref := func(field string) *uint {
		id, ok := refs[field]
		if !ok {
			return nil
		}
		return &id
	}

	var record models.Record
	switch staged.Entity {
	case models.EntityLandlord:
		record = &models.Landlord{
			Name:        r.str("name"),
			Email:       r.optStr("email"),
			Phone:       r.optStr("phone"),
			Address:     r.optStr("address"),
			CompanyName: r.optStr("company_name"),
			Provenance:  provenance,
		}
	case models.EntityProperty:
		record = &models.Property{
			LandlordID:    ref("landlord"),
			Name:          r.str("name"),
			Address:       r.str("address"),
			City:          r.optStr("city"),
			State:         r.optStr("state"),
			PostalCode:    r.optStr("postal_code"),
			PropertyType:  r.optStr("property_type"),
			PurchasePrice: r.optMoney("purchase_price"),
			Provenance:    provenance,
		}
	case models.EntityUnit:
		record = &models.Unit{
			PropertyID: ref("property"),
			UnitNumber: r.str("unit_number"),
			Bedrooms:   r.optInt("bedrooms"),
			SquareFeet: r.optInt("square_feet"),
			MarketRent: r.optMoney("market_rent"),
			Status:     r.optStr("status"),
			Provenance: provenance,
		}
	case models.EntityTenant:
		record = &models.Tenant{
			Name:             r.str("name"),
			Email:            r.optStr("email"),
			Phone:            r.optStr("phone"),
			DateOfBirth:      r.optDate("date_of_birth"),
			EmergencyContact: r.optStr("emergency_contact"),
			Provenance:       provenance,
		}
	case models.EntityLease:
		record = &models.Lease{
			TenantID:   ref("tenant"),
			PropertyID: ref("property"),
			UnitID:     ref("unit"),
			StartDate:  r.date("start_date"),
			EndDate:    r.optDate("end_date"),
			RentAmount: r.money("rent_amount"),
			Deposit:    r.optMoney("deposit"),
			PaymentDay: r.optInt("payment_day"),
			Status:     r.optStr("status"),
			AutoRenew:  r.optBool("auto_renew"),
			Provenance: provenance,
		}
	default:
		return nil, fmt.Errorf("unknown entity type %q", staged.Entity)
	}
	if r.err != nil {
		return nil, r.err
	}
	return record, nil
}
