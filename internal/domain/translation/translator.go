package translation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/entity"
)

const issuerDateLayout = "2006-01-02"

// Options datos de la solicitud que no vienen del Registry.
type Options struct {
	CompanyCode      string
	AgentCode        string
	OfficeCode       string // vacío = oficina de la póliza
	MarketMultiplier float64
}

// Translation sobre para el Issuer más las cifras que lo componen.
type Translation struct {
	Envelope  entity.IssuerEnvelope
	Premium   PremiumBreakdown
	Valuation Valuation
}

// Translate construye el sobre del Issuer. Nunca falla: los códigos sin correspondencia
// toman su valor por defecto (la validación estricta ocurre antes, sobre la póliza).
func Translate(p *entity.RegistryPolicy, now time.Time, opts Options) Translation {
	premium := ComputePremium(p.Premium)
	val := Valuate(p.Vehicle.Brand, p.Vehicle.FirstCirculation, now, opts.MarketMultiplier)

	office := opts.OfficeCode
	if office == "" {
		office = p.OfficeCode
	}

	env := entity.IssuerEnvelope{
		CompanyCode:   opts.CompanyCode,
		AgentCode:     opts.AgentCode,
		OfficeCode:    office,
		PolicyNumber:  p.PolicyNumber,
		CardNumber:    CardNumber(p.PolicyNumber, now),
		RequestDate:   now.Format(issuerDateLayout),
		EffectiveDate: formatDate(p.EffectiveDate),
		ExpiryDate:    formatDate(p.ExpiryDate),
		Colour:        Colour(p.Vehicle.UsageCode),

		VehicleGenre:       Genre(p.Vehicle.GenreCode, p.Vehicle.TypeCode),
		VehicleCategory:    Category(p.Vehicle.CategoryCode, p.Vehicle.TypeCode),
		VehicleUsage:       Usage(p.Vehicle.UsageCode),
		EnergySource:       Energy(p.Vehicle.EnergyCode),
		RegistrationNumber: strings.ToUpper(strings.TrimSpace(p.Vehicle.RegistrationNumber)),
		ChassisNumber:      strings.ToUpper(strings.TrimSpace(p.Vehicle.ChassisNumber)),
		Brand:              strings.TrimSpace(p.Vehicle.Brand),
		Model:              strings.TrimSpace(p.Vehicle.Model),
		Seats:              strconv.Itoa(p.Vehicle.Seats),
		FiscalPower:        strconv.Itoa(p.Vehicle.FiscalPower),

		SubscriberName:       p.Subscriber.Name,
		SubscriberPhone:      p.Subscriber.Phone,
		SubscriberEmail:      p.Subscriber.Email,
		SubscriberProfession: Profession(p.Subscriber.ProfessionCode),
		InsuredName:          p.Insured.Name,
		InsuredPhone:         p.Insured.Phone,
		InsuredAddress:       p.Insured.Address,

		NetPremium:       amount(premium.Net),
		Accessories:      amount(premium.Accessories),
		Taxes:            amount(premium.Taxes),
		CardFee:          amount(premium.CardFee),
		GuaranteeFund:    amount(premium.GuaranteeFund),
		TotalPremium:     amount(premium.Total),
		ReplacementValue: amount(val.ReplacementValue),
	}
	if val.MarketValue > 0 {
		env.MarketValue = amount(val.MarketValue)
	}
	return Translation{Envelope: env, Premium: premium, Valuation: val}
}

// CardNumber últimos 4 caracteres alfanuméricos de la póliza + sufijo temporal
// (yyMMddHHmmss + milisegundos). No es un token de seguridad: solo evita duplicados en el Issuer.
func CardNumber(policyNumber string, now time.Time) string {
	var kept []rune
	for _, r := range Normalize(policyNumber) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			kept = append(kept, r)
		}
	}
	if len(kept) > 4 {
		kept = kept[len(kept)-4:]
	}
	clean := strings.Repeat("0", 4-len(kept)) + string(kept)
	t := now.UTC()
	return fmt.Sprintf("%s%s%03d", clean, t.Format("060102150405"), t.Nanosecond()/int(time.Millisecond))
}

func amount(v int64) string { return strconv.FormatInt(v, 10) }

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(issuerDateLayout)
}
