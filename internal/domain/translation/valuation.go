package translation

import (
	"time"

	"github.com/shopspring/decimal"
)

// Valor a nuevo de referencia por marca (moneda local). Solo dato de soporte: no interviene en la prima.
var baseValueByMake = map[string]int64{
	"TOYOTA":     18_000_000,
	"NISSAN":     15_000_000,
	"HYUNDAI":    13_000_000,
	"KIA":        12_500_000,
	"MERCEDES":   35_000_000,
	"BMW":        32_000_000,
	"PEUGEOT":    12_000_000,
	"RENAULT":    11_000_000,
	"SUZUKI":     9_000_000,
	"MITSUBISHI": 16_000_000,
	"FORD":       17_000_000,
	"VOLKSWAGEN": 14_000_000,
	"HONDA":      14_500_000,
}

const defaultBaseValue int64 = 10_000_000

var (
	depreciationPerYear = decimal.RequireFromString("0.15")
	maxDepreciation     = decimal.RequireFromString("0.80")
)

// Valuation valor de reposición y, si se pidió, valor venal.
type Valuation struct {
	BaseValue        int64           `json:"base_value"`
	AgeYears         int             `json:"age_years"`
	Depreciation     decimal.Decimal `json:"depreciation"`
	ReplacementValue int64           `json:"replacement_value"`
	MarketValue      int64           `json:"market_value,omitempty"` // 0 sin multiplicador
}

// Valuate deprecia el valor base de la marca un 15% por año de antigüedad, con tope del 80%.
// marketMultiplier > 0 calcula además el valor venal sobre el valor de reposición.
func Valuate(brand string, firstCirculation *time.Time, now time.Time, marketMultiplier float64) Valuation {
	base, ok := baseValueByMake[Normalize(brand)]
	if !ok {
		base = defaultBaseValue
	}
	age := ageInYears(firstCirculation, now)

	dep := depreciationPerYear.Mul(decimal.NewFromInt(int64(age)))
	if dep.GreaterThan(maxDepreciation) {
		dep = maxDepreciation
	}
	v := Valuation{
		BaseValue:    base,
		AgeYears:     age,
		Depreciation: dep,
	}
	replacement := decimal.NewFromInt(base).Mul(decimal.NewFromInt(1).Sub(dep))
	v.ReplacementValue = roundHalfUp(replacement)
	if marketMultiplier > 0 {
		v.MarketValue = roundHalfUp(decimal.NewFromInt(v.ReplacementValue).Mul(decimal.NewFromFloat(marketMultiplier)))
	}
	return v
}

// ageInYears años cumplidos; sin fecha o con fecha futura la antigüedad es 0.
func ageInYears(from *time.Time, now time.Time) int {
	if from == nil || from.IsZero() || from.After(now) {
		return 0
	}
	years := now.Year() - from.Year()
	if now.Month() < from.Month() || (now.Month() == from.Month() && now.Day() < from.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}
