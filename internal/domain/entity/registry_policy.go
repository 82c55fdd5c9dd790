package entity

import "time"

// RegistryPolicy snapshot de solo lectura de una póliza del Registry.
type RegistryPolicy struct {
	PolicyNumber     string    `json:"policy_number"`
	OrganizationCode string    `json:"organization_code"`
	OfficeCode       string    `json:"office_code"`
	EffectiveDate    time.Time `json:"effective_date"`
	ExpiryDate       time.Time `json:"expiry_date"`
	Premium          int64     `json:"premium"` // Prima neta en unidades enteras

	Subscriber Party   `json:"subscriber"`
	Insured    Party   `json:"insured"`
	Vehicle    Vehicle `json:"vehicle"`
}

// Party suscriptor o asegurado.
type Party struct {
	Name           string `json:"name"`
	IdentityNumber string `json:"identity_number"`
	Phone          string `json:"phone"`
	Email          string `json:"email"`
	Address        string `json:"address"`
	ProfessionCode string `json:"profession_code"`
}

// Vehicle atributos del vehículo con los códigos propios del Registry.
type Vehicle struct {
	RegistrationNumber string     `json:"registration_number"`
	ChassisNumber      string     `json:"chassis_number"`
	Brand              string     `json:"brand"`
	Model              string     `json:"model"`
	TypeCode           string     `json:"type_code"`
	GenreCode          string     `json:"genre_code"`
	UsageCode          string     `json:"usage_code"`
	CategoryCode       string     `json:"category_code"`
	EnergyCode         string     `json:"energy_code"`
	Seats              int        `json:"seats"`
	FiscalPower        int        `json:"fiscal_power"`
	FirstCirculation   *time.Time `json:"first_circulation,omitempty"`
}

// RegistrySearchCriteria filtros soportados por el Registry.
type RegistrySearchCriteria struct {
	PolicyNumber       string
	RegistrationNumber string
	ChassisNumber      string
	OrganizationCode   string
	OfficeCode         string
	Limit              int
	Offset             int
}

// RegistryPage resultado paginado.
type RegistryPage struct {
	Items   []RegistryPolicy `json:"items"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
	HasMore bool             `json:"has_more"`
}
