// Package pdf genera el resumen imprimible de una solicitud de emisión.
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Referencia + estado  │  Compañía + fecha            │
//	│  ─────────────────────────────────────────────────────────  │
//	│  PÓLIZA: número / vigencia / oficina                         │
//	│  SUSCRIPTOR y ASEGURADO                                      │
//	│  VEHÍCULO: matrícula / chasis / marca / uso                  │
//	│  ─────────────────────────────────────────────────────────  │
//	│  PRIMA: neta / accesorios / impuestos / tarjeta / FGA        │
//	│  ─────────────────────────────────────────────────────────  │
//	│  CERTIFICADO: número + QR del enlace de descarga             │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/entity"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/translation"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 0, Green: 70, Blue: 127}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
	colorAlert   = &props.Color{Red: 170, Green: 30, Blue: 30}
)

// ── Renderer ──────────────────────────────────────────────────────────────────

// SummaryRenderer implementa issuance.SummaryRenderer usando Maroto v2.
type SummaryRenderer struct {
	currency string
}

// NewSummaryRenderer currency es el sufijo de los importes (p. ej. "FCFA").
func NewSummaryRenderer(currency string) *SummaryRenderer {
	return &SummaryRenderer{currency: currency}
}

// RenderSummary genera el PDF y devuelve sus bytes. Requiere el snapshot del Registry.
func (g *SummaryRenderer) RenderSummary(_ context.Context, r *entity.IssuanceRequest) ([]byte, error) {
	if r == nil || r.RegistrySnapshot == nil {
		return nil, errors.New("pdf: la solicitud no tiene datos de póliza")
	}
	p := r.RegistrySnapshot

	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("Resumen de emisión "+r.ReferenceNumber, true).
		WithAuthor(r.CompanyCode, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(r))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(policyRow(r, p))
	m.AddRows(partiesRow(p))
	m.AddRows(vehicleRow(r, p))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	m.AddRows(premiumRows(translation.ComputePremium(p.Premium), g.currency)...)

	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	m.AddRows(certificateRows(r)...)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return doc.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

func headerRow(r *entity.IssuanceRequest) core.Row {
	statusColor := colorPrimary
	if r.Status == entity.StatusFailed || r.Status == entity.StatusCancelled {
		statusColor = colorAlert
	}
	return row.New(18).Add(
		col.New(7).Add(
			text.New("RESUMEN DE EMISIÓN", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(r.ReferenceNumber, props.Text{
				Style: fontstyle.Bold, Size: 13, Top: 6,
			}),
		),
		col.New(5).Add(
			text.New(r.Status, props.Text{
				Style: fontstyle.Bold, Size: 10, Align: align.Right, Color: statusColor, Top: 1,
			}),
			text.New("Compañía: "+r.CompanyCode, props.Text{
				Size: 8, Align: align.Right, Top: 8, Color: colorGray,
			}),
			text.New("Fecha: "+r.CreatedAt.Format("02/01/2006 15:04"), props.Text{
				Size: 8, Align: align.Right, Top: 13, Color: colorGray,
			}),
		),
	)
}

func policyRow(r *entity.IssuanceRequest, p *entity.RegistryPolicy) core.Row {
	return row.New(12).Add(
		col.New(12).Add(
			text.New("PÓLIZA", props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1}),
			text.New(fmt.Sprintf("N° %s   |   Vigencia: %s al %s   |   Oficina: %s   |   Agente: %s",
				p.PolicyNumber,
				p.EffectiveDate.Format("02/01/2006"),
				p.ExpiryDate.Format("02/01/2006"),
				nonEmpty(r.OfficeCode, "—"),
				nonEmpty(r.AgentCode, "—"),
			), props.Text{Size: 8, Top: 7, Color: colorGray}),
		),
	)
}

func partiesRow(p *entity.RegistryPolicy) core.Row {
	party := func(title string, x entity.Party) core.Col {
		return col.New(6).Add(
			text.New(title, props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1}),
			text.New(x.Name, props.Text{Style: fontstyle.Bold, Size: 10, Top: 6}),
			text.New(fmt.Sprintf("Tel: %s   |   Email: %s", nonEmpty(x.Phone, "—"), nonEmpty(x.Email, "—")),
				props.Text{Size: 8, Top: 12, Color: colorGray}),
		)
	}
	return row.New(18).Add(party("SUSCRIPTOR", p.Subscriber), party("ASEGURADO", p.Insured))
}

func vehicleRow(r *entity.IssuanceRequest, p *entity.RegistryPolicy) core.Row {
	v := p.Vehicle
	return row.New(14).Add(
		col.New(12).Add(
			text.New("VEHÍCULO", props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1}),
			text.New(fmt.Sprintf("%s %s   |   Matrícula: %s   |   Chasis: %s",
				v.Brand, v.Model, r.RegistrationNumber, nonEmpty(r.ChassisNumber, "—"),
			), props.Text{Size: 8, Top: 6}),
			text.New(fmt.Sprintf("Uso: %s   |   Plazas: %d   |   Potencia fiscal: %d CV",
				translation.Usage(v.UsageCode), v.Seats, v.FiscalPower,
			), props.Text{Size: 8, Top: 10, Color: colorGray}),
		),
	)
}

// premiumRows una fila por componente y el total destacado.
func premiumRows(b translation.PremiumBreakdown, currency string) []core.Row {
	amountRow := func(label string, v int64, total bool) core.Row {
		style, size, color := fontstyle.Normal, 9.0, colorGray
		if total {
			style, size, color = fontstyle.Bold, 10.0, colorPrimary
		}
		return row.New(6).Add(
			col.New(6),
			col.New(3).Add(text.New(label, props.Text{
				Style: style, Size: size, Align: align.Right, Color: color, Right: 2,
			})),
			col.New(3).Add(text.New(formatMoney(v, currency), props.Text{
				Style: style, Size: size, Align: align.Right, Color: color, Right: 1,
			})),
		)
	}
	return []core.Row{
		row.New(6).Add(col.New(12).Add(
			text.New("DESGLOSE DE PRIMA", props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1}),
		)),
		amountRow("Prima neta:", b.Net, false),
		amountRow("Accesorios:", b.Accessories, false),
		amountRow("Impuestos:", b.Taxes, false),
		amountRow("Tarjeta:", b.CardFee, false),
		amountRow("FGA:", b.GuaranteeFund, false),
		amountRow("PRIMA TOTAL:", b.Total, true),
	}
}

// certificateRows número del certificado y QR del enlace de descarga, o el motivo del fallo.
func certificateRows(r *entity.IssuanceRequest) []core.Row {
	rows := []core.Row{
		row.New(6).Add(col.New(12).Add(
			text.New("CERTIFICADO", props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1}),
		)),
	}

	switch {
	case r.Status == entity.StatusCompleted && r.DownloadURL != "":
		rows = append(rows, row.New(50).Add(
			col.New(4).Add(code.NewQr(r.DownloadURL, props.Rect{Percent: 95, Center: true})),
			col.New(8).Add(
				text.New("N° "+r.CertificateNumber, props.Text{
					Style: fontstyle.Bold, Size: 12, Top: 4, Left: 3,
				}),
				text.New("Escanea el código QR para descargar\nel certificado emitido.", props.Text{
					Size: 8, Top: 14, Left: 3, Color: colorGray,
				}),
			),
		))
	case r.Status == entity.StatusCompleted:
		rows = append(rows, row.New(8).Add(col.New(12).Add(
			text.New("N° "+r.CertificateNumber, props.Text{Style: fontstyle.Bold, Size: 12, Top: 2}),
		)))
	case r.Status == entity.StatusFailed:
		rows = append(rows, row.New(8).Add(col.New(12).Add(
			text.New(r.ErrorCode+": "+r.ErrorMessage, props.Text{Size: 8, Top: 2, Color: colorAlert}),
		)))
		for _, d := range r.ErrorDetail {
			rows = append(rows, row.New(5).Add(col.New(12).Add(
				text.New("• "+d, props.Text{Size: 7.5, Left: 3, Color: colorGray}),
			)))
		}
	default:
		rows = append(rows, row.New(8).Add(col.New(12).Add(
			text.New("Certificado aún no emitido.", props.Text{Size: 9, Top: 2, Color: colorGray}),
		)))
	}
	return rows
}

// ── helpers ───────────────────────────────────────────────────────────────────

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

// formatMoney separa miles con espacio y agrega la moneda.
// Ej: 129000 → "129 000 FCFA"
func formatMoney(v int64, currency string) string {
	s := strconv.FormatInt(v, 10)
	neg := v < 0
	if neg {
		s = s[1:]
	}
	n := len(s)
	buf := make([]byte, 0, n+n/3+1)
	if neg {
		buf = append(buf, '-')
	}
	for i, c := range []byte(s) {
		if i > 0 && (n-i)%3 == 0 {
			buf = append(buf, ' ')
		}
		buf = append(buf, c)
	}
	if currency != "" {
		buf = append(buf, ' ')
		buf = append(buf, currency...)
	}
	return string(buf)
}
