package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/entity"
)

// Formato del contrato del Registry: fechas como YYYY-MM-DD (algunas oficinas envían RFC 3339).

type wirePage struct {
	Items   []wirePolicy `json:"items"`
	Total   int          `json:"total"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
	HasMore bool         `json:"has_more"`
}

type wirePolicy struct {
	PolicyNumber     string       `json:"policy_number"`
	OrganizationCode string       `json:"organization_code"`
	OfficeCode       string       `json:"office_code"`
	EffectiveDate    string       `json:"effective_date"`
	ExpiryDate       string       `json:"expiry_date"`
	Premium          int64        `json:"premium"`
	Subscriber       entity.Party `json:"subscriber"`
	Insured          entity.Party `json:"insured"`
	Vehicle          wireVehicle  `json:"vehicle"`
}

type wireVehicle struct {
	RegistrationNumber string `json:"registration_number"`
	ChassisNumber      string `json:"chassis_number"`
	Brand              string `json:"brand"`
	Model              string `json:"model"`
	TypeCode           string `json:"type_code"`
	GenreCode          string `json:"genre_code"`
	UsageCode          string `json:"usage_code"`
	CategoryCode       string `json:"category_code"`
	EnergyCode         string `json:"energy_code"`
	Seats              int    `json:"seats"`
	FiscalPower        int    `json:"fiscal_power"`
	FirstCirculation   string `json:"first_circulation"`
}

func (w wirePage) toEntity() (*entity.RegistryPage, error) {
	page := &entity.RegistryPage{
		Items:   make([]entity.RegistryPolicy, 0, len(w.Items)),
		Total:   w.Total,
		Limit:   w.Limit,
		Offset:  w.Offset,
		HasMore: w.HasMore,
	}
	for _, it := range w.Items {
		p, err := it.toEntity()
		if err != nil {
			return nil, fmt.Errorf("póliza %s: %w", it.PolicyNumber, err)
		}
		page.Items = append(page.Items, *p)
	}
	return page, nil
}

func (w wirePolicy) toEntity() (*entity.RegistryPolicy, error) {
	effective, err := parseDate(w.EffectiveDate)
	if err != nil {
		return nil, fmt.Errorf("effective_date: %w", err)
	}
	expiry, err := parseDate(w.ExpiryDate)
	if err != nil {
		return nil, fmt.Errorf("expiry_date: %w", err)
	}
	first, err := parseDate(w.Vehicle.FirstCirculation)
	if err != nil {
		return nil, fmt.Errorf("first_circulation: %w", err)
	}
	p := &entity.RegistryPolicy{
		PolicyNumber:     w.PolicyNumber,
		OrganizationCode: w.OrganizationCode,
		OfficeCode:       w.OfficeCode,
		EffectiveDate:    effective,
		ExpiryDate:       expiry,
		Premium:          w.Premium,
		Subscriber:       w.Subscriber,
		Insured:          w.Insured,
		Vehicle: entity.Vehicle{
			RegistrationNumber: w.Vehicle.RegistrationNumber,
			ChassisNumber:      w.Vehicle.ChassisNumber,
			Brand:              w.Vehicle.Brand,
			Model:              w.Vehicle.Model,
			TypeCode:           w.Vehicle.TypeCode,
			GenreCode:          w.Vehicle.GenreCode,
			UsageCode:          w.Vehicle.UsageCode,
			CategoryCode:       w.Vehicle.CategoryCode,
			EnergyCode:         w.Vehicle.EnergyCode,
			Seats:              w.Vehicle.Seats,
			FiscalPower:        w.Vehicle.FiscalPower,
		},
	}
	if !first.IsZero() {
		p.Vehicle.FirstCirculation = &first
	}
	return p, nil
}

// parseDate vacío = fecha cero (la validación lo reporta como campo faltante).
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("fecha inválida %q", s)
	}
	return t.UTC(), nil
}
