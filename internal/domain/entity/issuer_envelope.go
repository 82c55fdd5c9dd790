package entity

import "time"

// IssuerEnvelope registro plano enviado al Issuer. Fechas en YYYY-MM-DD y montos como
// cadenas de enteros, tal como exige el contrato.
type IssuerEnvelope struct {
	CompanyCode   string `json:"company_code"`
	AgentCode     string `json:"agent_code"`
	OfficeCode    string `json:"office_code"`
	PolicyNumber  string `json:"policy_number"`
	CardNumber    string `json:"card_number"`
	RequestDate   string `json:"request_date"`
	EffectiveDate string `json:"effective_date"`
	ExpiryDate    string `json:"expiry_date"`
	Colour        string `json:"colour"`

	VehicleGenre       string `json:"vehicle_genre"`
	VehicleCategory    string `json:"vehicle_category"`
	VehicleUsage       string `json:"vehicle_usage"`
	EnergySource       string `json:"energy_source"`
	RegistrationNumber string `json:"registration_number"`
	ChassisNumber      string `json:"chassis_number"`
	Brand              string `json:"brand"`
	Model              string `json:"model"`
	Seats              string `json:"seats"`
	FiscalPower        string `json:"fiscal_power"`

	SubscriberName       string `json:"subscriber_name"`
	SubscriberPhone      string `json:"subscriber_phone"`
	SubscriberEmail      string `json:"subscriber_email"`
	SubscriberProfession string `json:"subscriber_profession"`
	InsuredName          string `json:"insured_name"`
	InsuredPhone         string `json:"insured_phone"`
	InsuredAddress       string `json:"insured_address"`

	NetPremium       string `json:"net_premium"`
	Accessories      string `json:"accessories"`
	Taxes            string `json:"taxes"`
	CardFee          string `json:"card_fee"`
	GuaranteeFund    string `json:"guarantee_fund"`
	TotalPremium     string `json:"total_premium"`
	ReplacementValue string `json:"replacement_value"`
	MarketValue      string `json:"market_value,omitempty"`
}

// IssuerResult respuesta decodificada del Issuer (edición, estado o descarga).
type IssuerResult struct {
	StatusCode        int               `json:"status_code"`
	Message           string            `json:"message,omitempty"`
	RequestNumber     string            `json:"request_number,omitempty"`
	CertificateNumber string            `json:"certificate_number,omitempty"`
	Issued            bool              `json:"issued"`
	Transferred       bool              `json:"transferred"`
	Links             map[string]string `json:"links,omitempty"` // PDF | IMAGE | QRCODE
	LinksExpireAt     *time.Time        `json:"links_expire_at,omitempty"`
}

// Success código 0.
func (r *IssuerResult) Success() bool { return r.StatusCode == 0 }
