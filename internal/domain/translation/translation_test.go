package translation_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/entity"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/translation"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/issuer"
)

var refNow = time.Date(2026, 3, 15, 10, 30, 45, 123_000_000, time.UTC)

func samplePolicy() *entity.RegistryPolicy {
	first := time.Date(2022, 1, 10, 0, 0, 0, 0, time.UTC)
	return &entity.RegistryPolicy{
		PolicyNumber:     "POL-2026-00123",
		OrganizationCode: "ORG01",
		OfficeCode:       "ABJ",
		EffectiveDate:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpiryDate:       time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		Premium:          100_000,
		Subscriber:       entity.Party{Name: "Kouassi Aya", Phone: "0700000000", ProfessionCode: "Commerçant"},
		Insured:          entity.Party{Name: "Kouassi Aya"},
		Vehicle: entity.Vehicle{
			RegistrationNumber: " ab-1234-ci ",
			ChassisNumber:      "vf1abc",
			Brand:              "Toyota",
			Model:              "Corolla",
			TypeCode:           "VP",
			UsageCode:          "prive",
			EnergyCode:         "Électrique",
			Seats:              5,
			FiscalPower:        7,
			FirstCirculation:   &first,
		},
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Prima
// ──────────────────────────────────────────────────────────────────────────────

func TestComputePremium_VectorDeReferencia(t *testing.T) {
	b := translation.ComputePremium(100_000)

	assert.Equal(t, int64(5_000), b.Accessories)
	assert.Equal(t, int64(18_000), b.Taxes)
	assert.Equal(t, int64(5_000), b.CardFee)
	assert.Equal(t, int64(1_000), b.GuaranteeFund)
	assert.Equal(t, int64(129_000), b.Total)
}

// Cada componente se redondea por separado: 50 × 0.05 = 2.5 -> 3; 50 × 0.01 = 0.5 -> 1.
func TestComputePremium_RedondeoMitadHaciaArribaPorComponente(t *testing.T) {
	b := translation.ComputePremium(50)

	assert.Equal(t, int64(3), b.Accessories)
	assert.Equal(t, int64(9), b.Taxes)
	assert.Equal(t, int64(1), b.GuaranteeFund)
	assert.Equal(t, int64(50+3+9+5000+1), b.Total)
}

func TestComputePremium_TotalEsSumaDeComponentes(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := rapid.Int64Range(0, 50_000_000).Draw(t, "premium")
		b := translation.ComputePremium(p)

		if b.Total != b.Net+b.Accessories+b.Taxes+b.CardFee+b.GuaranteeFund {
			t.Fatalf("total %d no es la suma de componentes %+v", b.Total, b)
		}
		// round-half-up: |componente - P×tasa| <= 0.5
		if diff := b.Accessories*100 - p*5; diff > 50 || diff < -50 {
			t.Fatalf("accesorios fuera de redondeo: P=%d acc=%d", p, b.Accessories)
		}
		if diff := b.Taxes*100 - p*18; diff > 50 || diff < -50 {
			t.Fatalf("impuestos fuera de redondeo: P=%d tax=%d", p, b.Taxes)
		}
		if b.CardFee != issuer.CardFee {
			t.Fatalf("tarjeta = %d", b.CardFee)
		}
	})
}

// ──────────────────────────────────────────────────────────────────────────────
// Códigos y color
// ──────────────────────────────────────────────────────────────────────────────

func TestCategory_TipoDesconocidoCaeEnParticular(t *testing.T) {
	assert.Equal(t, issuer.CategoryPersonal, translation.Category("", "OVNI"))
	assert.Equal(t, issuer.CategoryPersonal, translation.Category("", ""))
	assert.Equal(t, issuer.CategoryPublicPersons, translation.Category("", "bus"))
	assert.Equal(t, issuer.CategoryTwoWheeler, translation.Category("cat5", "VP"), "el código de categoría del Registry tiene prioridad")
}

func TestGenreUsageEnergyProfession_Tablas(t *testing.T) {
	assert.Equal(t, issuer.GenreTruck, translation.Genre("", "Camion"))
	assert.Equal(t, issuer.GenreTwoWheeler, translation.Genre("MOTO", "VP"))
	assert.Equal(t, issuer.DefaultGenre, translation.Genre("", "??"))

	assert.Equal(t, issuer.UsageTaxi, translation.Usage("taxi communal"))
	assert.Equal(t, issuer.DefaultUsage, translation.Usage("desconocido"))

	assert.Equal(t, issuer.EnergyElectric, translation.Energy("Électrique"))
	assert.Equal(t, issuer.EnergyDiesel, translation.Energy("gasoil"))
	assert.Equal(t, issuer.DefaultEnergy, translation.Energy(""))

	assert.Equal(t, issuer.ProfessionTrader, translation.Profession("Commerçant"))
	assert.Equal(t, issuer.DefaultProfession, translation.Profession("astronauta"))
}

func TestColour_PrecedenciaPorUso(t *testing.T) {
	cases := []struct {
		usage string
		want  string
	}{
		{"TAXI", issuer.ColourTaxi},
		{"vtc", issuer.ColourTaxi},
		{"UV04", issuer.ColourTaxi},
		{"commercial", issuer.ColourCommercial},
		{"Location", issuer.ColourCommercial},
		{"TPC", issuer.ColourPublic},
		{"auto-école", issuer.ColourPublic},
		{"PRIVE", issuer.ColourPersonal},
		{"", issuer.ColourPersonal},
		{"cualquier cosa", issuer.ColourPersonal},
	}
	for _, tc := range cases {
		t.Run(tc.usage, func(t *testing.T) {
			assert.Equal(t, tc.want, translation.Colour(tc.usage))
		})
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Valoración
// ──────────────────────────────────────────────────────────────────────────────

func TestValuate_DepreciaQuincePorCientoPorAnio(t *testing.T) {
	first := time.Date(2022, 1, 10, 0, 0, 0, 0, time.UTC)
	v := translation.Valuate("toyota", &first, refNow, 0)

	assert.Equal(t, 4, v.AgeYears)
	assert.Equal(t, int64(18_000_000), v.BaseValue)
	assert.Equal(t, int64(7_200_000), v.ReplacementValue, "18M × (1 - 0.60)")
	assert.Zero(t, v.MarketValue)
}

func TestValuate_TopeDelOchentaPorCiento(t *testing.T) {
	first := time.Date(1990, 6, 1, 0, 0, 0, 0, time.UTC)
	v := translation.Valuate("marca-rara", &first, refNow, 1.1)

	assert.Equal(t, int64(10_000_000), v.BaseValue, "marca desconocida usa el valor por defecto")
	assert.Equal(t, "0.8", v.Depreciation.String())
	assert.Equal(t, int64(2_000_000), v.ReplacementValue)
	assert.Equal(t, int64(2_200_000), v.MarketValue)
}

func TestValuate_SinFechaNoDeprecia(t *testing.T) {
	v := translation.Valuate("BMW", nil, refNow, 0)
	assert.Equal(t, 0, v.AgeYears)
	assert.Equal(t, int64(32_000_000), v.ReplacementValue)
}

// ──────────────────────────────────────────────────────────────────────────────
// Número de tarjeta
// ──────────────────────────────────────────────────────────────────────────────

func TestCardNumber_UltimosCuatroMasSufijoTemporal(t *testing.T) {
	assert.Equal(t, "0123260315103045123", translation.CardNumber("POL-2026-00123", refNow))
	assert.Equal(t, "00X7260315103045123", translation.CardNumber("x7", refNow), "pólizas cortas se rellenan con ceros")

	later := refNow.Add(time.Millisecond)
	assert.NotEqual(t, translation.CardNumber("POL-1", refNow), translation.CardNumber("POL-1", later))
}

// ──────────────────────────────────────────────────────────────────────────────
// Sobre completo
// ──────────────────────────────────────────────────────────────────────────────

func TestTranslate_ConstruyeSobrePlano(t *testing.T) {
	tr := translation.Translate(samplePolicy(), refNow, translation.Options{CompanyCode: "C001", AgentCode: "AG7"})
	env := tr.Envelope

	assert.Equal(t, "C001", env.CompanyCode)
	assert.Equal(t, "AG7", env.AgentCode)
	assert.Equal(t, "ABJ", env.OfficeCode, "sin oficina explícita se usa la de la póliza")
	assert.Equal(t, "2026-01-01", env.EffectiveDate)
	assert.Equal(t, "2026-12-31", env.ExpiryDate)
	assert.Equal(t, "2026-03-15", env.RequestDate)
	assert.Equal(t, "AB-1234-CI", env.RegistrationNumber)
	assert.Equal(t, "VF1ABC", env.ChassisNumber)
	assert.Equal(t, issuer.GenreTourism, env.VehicleGenre)
	assert.Equal(t, issuer.CategoryPersonal, env.VehicleCategory)
	assert.Equal(t, issuer.UsagePersonal, env.VehicleUsage)
	assert.Equal(t, issuer.EnergyElectric, env.EnergySource)
	assert.Equal(t, issuer.ColourPersonal, env.Colour)
	assert.Equal(t, "100000", env.NetPremium)
	assert.Equal(t, "129000", env.TotalPremium)
	assert.Equal(t, "5", env.Seats)
	assert.Empty(t, env.MarketValue)
	assert.Equal(t, int64(129_000), tr.Premium.Total)
}

func TestTranslate_TipoDesconocidoNoFalla(t *testing.T) {
	p := samplePolicy()
	p.Vehicle.TypeCode = "ZZZ-NO-MAPEADO"
	p.Vehicle.GenreCode = ""
	p.Vehicle.UsageCode = "???"
	p.Vehicle.EnergyCode = ""

	tr := translation.Translate(p, refNow, translation.Options{CompanyCode: "C001"})

	require.NotEmpty(t, tr.Envelope.VehicleCategory)
	assert.Equal(t, issuer.DefaultCategory, tr.Envelope.VehicleCategory)
	assert.Equal(t, issuer.DefaultGenre, tr.Envelope.VehicleGenre)
	assert.Equal(t, issuer.DefaultUsage, tr.Envelope.VehicleUsage)
	assert.Equal(t, issuer.DefaultEnergy, tr.Envelope.EnergySource)
	_, err := strconv.ParseInt(tr.Envelope.TotalPremium, 10, 64)
	assert.NoError(t, err, "los montos viajan como enteros en texto")
}
