package translation

import (
	"github.com/shopspring/decimal"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/issuer"
)

var (
	accessoriesRate   = decimal.RequireFromString("0.05")
	taxRate           = decimal.RequireFromString("0.18")
	guaranteeFundRate = decimal.RequireFromString("0.01")
	half              = decimal.RequireFromString("0.5")
)

// PremiumBreakdown componentes de la prima total en unidades enteras de moneda.
type PremiumBreakdown struct {
	Net           int64 `json:"net"`
	Accessories   int64 `json:"accessories"`
	Taxes         int64 `json:"taxes"`
	CardFee       int64 `json:"card_fee"`
	GuaranteeFund int64 `json:"guarantee_fund"` // FGA
	Total         int64 `json:"total"`
}

// ComputePremium deriva cada componente de la prima neta P redondeando cada paso por separado
// (mitad hacia arriba), nunca sobre un acumulado:
//
//	accesorios = round(P × 0.05), impuestos = round(P × 0.18), tarjeta = 5000, FGA = round(P × 0.01)
func ComputePremium(net int64) PremiumBreakdown {
	p := decimal.NewFromInt(net)
	b := PremiumBreakdown{
		Net:           net,
		Accessories:   roundHalfUp(p.Mul(accessoriesRate)),
		Taxes:         roundHalfUp(p.Mul(taxRate)),
		CardFee:       issuer.CardFee,
		GuaranteeFund: roundHalfUp(p.Mul(guaranteeFundRate)),
	}
	b.Total = b.Net + b.Accessories + b.Taxes + b.CardFee + b.GuaranteeFund
	return b
}

// roundHalfUp floor(x + 0.5): 2.5 -> 3, -2.5 -> -2.
func roundHalfUp(d decimal.Decimal) int64 {
	return d.Add(half).Floor().IntPart()
}
