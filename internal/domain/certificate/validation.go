package certificate

import (
	"fmt"
	"strings"
	"time"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/entity"
)

const dateLayout = "2006-01-02"

// CrossCheck valores que el cliente espera encontrar en la póliza (opcionales).
type CrossCheck struct {
	RegistrationNumber string
	ChassisNumber      string
}

// ValidatePolicy evalúa todas las reglas de emisión y devuelve la lista completa de incumplimientos.
// Una póliza inexistente produce un único error y no se evalúa nada más.
func ValidatePolicy(p *entity.RegistryPolicy, now time.Time, cc CrossCheck) []string {
	if p == nil {
		return []string{"la póliza no existe en el Registry"}
	}
	var errs []string

	// Vigencia: [efecto, vencimiento], ambos días incluidos.
	today := dayOf(now)
	if p.EffectiveDate.IsZero() {
		errs = append(errs, "campo obligatorio ausente: fecha de efecto")
	} else if today.Before(dayOf(p.EffectiveDate)) {
		errs = append(errs, fmt.Sprintf("la póliza aún no está vigente: efecto el %s", p.EffectiveDate.Format(dateLayout)))
	}
	if p.ExpiryDate.IsZero() {
		errs = append(errs, "campo obligatorio ausente: fecha de vencimiento")
	} else if today.After(dayOf(p.ExpiryDate)) {
		errs = append(errs, fmt.Sprintf("la póliza está vencida desde el %s", p.ExpiryDate.Format(dateLayout)))
	}

	required := []struct {
		name  string
		value string
	}{
		{"código de organización", p.OrganizationCode},
		{"código de oficina", p.OfficeCode},
		{"nombre del suscriptor", p.Subscriber.Name},
		{"nombre del asegurado", p.Insured.Name},
		{"matrícula del vehículo", p.Vehicle.RegistrationNumber},
		{"número de chasis", p.Vehicle.ChassisNumber},
		{"marca del vehículo", p.Vehicle.Brand},
		{"modelo del vehículo", p.Vehicle.Model},
		{"tipo de vehículo", p.Vehicle.TypeCode},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			errs = append(errs, "campo obligatorio ausente: "+f.name)
		}
	}
	if p.Premium <= 0 {
		errs = append(errs, "campo obligatorio ausente: prima")
	}

	if cc.RegistrationNumber != "" && !sameCode(cc.RegistrationNumber, p.Vehicle.RegistrationNumber) {
		errs = append(errs, fmt.Sprintf("la matrícula %q no coincide con la registrada en la póliza", cc.RegistrationNumber))
	}
	if cc.ChassisNumber != "" && !sameCode(cc.ChassisNumber, p.Vehicle.ChassisNumber) {
		errs = append(errs, fmt.Sprintf("el chasis %q no coincide con el registrado en la póliza", cc.ChassisNumber))
	}
	return errs
}

// AsError convierte la lista en *domain.ValidationError (nil si no hay errores).
func AsError(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return &domain.ValidationError{Errors: errs}
}

func sameCode(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
