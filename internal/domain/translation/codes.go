// Package translation traduce el vocabulario del Registry al del Issuer y calcula los montos
// derivados de la prima. Funciones puras y deterministas: sus salidas son cifras auditadas.
package translation

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/issuer"
)

// Normalize lleva un código del Registry a la forma de las claves de catálogo:
// sin acentos, mayúsculas, espacios y guiones como "_".
func Normalize(code string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, code)
	if err != nil {
		s = code
	}
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return '_'
		}
		return r
	}, s)
}

// lookup traducción best-effort: si no hay correspondencia devuelve def, nunca falla.
func lookup(table map[string]string, code, def string) string {
	if v, ok := table[Normalize(code)]; ok {
		return v
	}
	return def
}

// Genre género del vehículo. El código de género del Registry tiene prioridad sobre el tipo.
func Genre(genreCode, vehicleType string) string {
	if v, ok := issuer.GenreByVehicleType[Normalize(genreCode)]; ok {
		return v
	}
	return lookup(issuer.GenreByVehicleType, vehicleType, issuer.DefaultGenre)
}

// Category categoría tarifaria. Un tipo de vehículo sin correspondencia cae en particular.
func Category(categoryCode, vehicleType string) string {
	if v, ok := issuer.CategoryByRegistryCode[Normalize(categoryCode)]; ok {
		return v
	}
	return lookup(issuer.CategoryByVehicleType, vehicleType, issuer.DefaultCategory)
}

func Usage(usageCode string) string {
	return lookup(issuer.UsageByRegistryCode, usageCode, issuer.DefaultUsage)
}

func Energy(energyCode string) string {
	return lookup(issuer.EnergyByRegistryCode, energyCode, issuer.DefaultEnergy)
}

func Profession(professionCode string) string {
	return lookup(issuer.ProfessionByRegistryCode, professionCode, issuer.DefaultProfession)
}

// Colour color del certificado según el uso. Gana la primera regla que coincide:
// taxi, comercial, público; si ninguna, particular.
func Colour(usageCode string) string {
	src := Normalize(usageCode)
	dst := Usage(usageCode)
	match := func(set map[string]bool) bool { return set[src] || set[dst] }
	switch {
	case match(issuer.TaxiUsages):
		return issuer.ColourTaxi
	case match(issuer.CommercialUsages):
		return issuer.ColourCommercial
	case match(issuer.PublicUsages):
		return issuer.ColourPublic
	default:
		return issuer.ColourPersonal
	}
}
