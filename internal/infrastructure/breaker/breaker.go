// Package breaker implementa el circuit breaker que protege las llamadas al Registry y al Issuer.
//
// Cerrado -> Abierto tras N fallos consecutivos dentro de la ventana; Abierto -> Semiabierto al
// vencer el cooldown, con una única llamada de prueba; la prueba cierra o vuelve a abrir el circuito.
package breaker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain"
)

// Nombres de las instancias, uno por par dependencia/operación.
const (
	RegistrySearch     = "registry.search"
	IssuerEdition      = "issuer.edition"
	IssuerStatus       = "issuer.status"
	IssuerUpdateStatus = "issuer.update_status"
	IssuerDownload     = "issuer.download"
)

// State estado del circuito.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Clock fuente de tiempo inyectable (tests).
type Clock func() time.Time

// StateChangeFunc se invoca fuera del lock en cada cambio de estado.
type StateChangeFunc func(name string, from, to State)

// Option configura un Breaker.
type Option func(*Breaker)

// WithFailureThreshold fallos consecutivos que abren el circuito.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithWindow ventana en la que deben acumularse los fallos; 0 = sin ventana.
func WithWindow(d time.Duration) Option {
	return func(b *Breaker) { b.window = d }
}

// WithCooldown tiempo en abierto antes de permitir la llamada de prueba.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithClock reemplaza time.Now.
func WithClock(c Clock) Option {
	return func(b *Breaker) {
		if c != nil {
			b.now = c
		}
	}
}

// WithStateChange registra un observador de transiciones (log, métricas).
func WithStateChange(fn StateChangeFunc) Option {
	return func(b *Breaker) {
		if fn != nil {
			b.onChange = append(b.onChange, fn)
		}
	}
}

// Breaker circuit breaker de una dependencia/operación.
type Breaker struct {
	mu sync.Mutex

	name       string
	dependency string
	operation  string

	threshold int
	window    time.Duration
	cooldown  time.Duration
	now       Clock
	onChange  []StateChangeFunc

	state        State
	failures     int       // consecutivos
	firstFailure time.Time // inicio de la racha actual
	openUntil    time.Time
	probing      bool // hay una llamada de prueba en vuelo
}

// New crea un breaker cerrado. name sigue la forma "dependencia.operación".
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:      name,
		threshold: 5,
		window:    time.Minute,
		cooldown:  30 * time.Second,
		now:       time.Now,
	}
	b.dependency, b.operation, _ = strings.Cut(name, ".")
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name nombre de la instancia.
func (b *Breaker) Name() string { return b.name }

// State estado actual. Un circuito abierto con el cooldown vencido se informa como semiabierto.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && !b.now().Before(b.openUntil) {
		return StateHalfOpen
	}
	return b.state
}

// IsOpen true mientras las llamadas se rechazan sin intentar.
func (b *Breaker) IsOpen() bool {
	return b.State() == StateOpen
}

// Execute ejecuta fn si el circuito lo permite. Con el circuito abierto (o con la prueba
// semiabierta ya en curso) devuelve un *domain.DependencyError envolviendo domain.ErrBreakerOpen
// sin invocar fn. fn debe devolver error solo ante fallos de disponibilidad; un rechazo de negocio
// de una dependencia que respondió cuenta como éxito.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.acquire(); err != nil {
		return err
	}
	err := fn(ctx)
	switch {
	case err == nil:
		b.RecordSuccess()
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// cancelación del llamador: no dice nada sobre la dependencia
		b.releaseProbe()
	default:
		b.RecordFailure()
	}
	return err
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	var change *transition
	switch b.state {
	case StateOpen:
		if b.now().Before(b.openUntil) {
			b.mu.Unlock()
			return b.openError()
		}
		change = b.setState(StateHalfOpen)
		b.probing = true
	case StateHalfOpen:
		if b.probing {
			b.mu.Unlock()
			return b.openError()
		}
		b.probing = true
	}
	b.mu.Unlock()
	b.notify(change)
	return nil
}

// RecordSuccess cierra el circuito y reinicia la racha de fallos.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	b.failures = 0
	b.probing = false
	change := b.setState(StateClosed)
	b.mu.Unlock()
	b.notify(change)
}

// RecordFailure suma un fallo; abre el circuito al llegar al umbral o si falla la prueba.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	now := b.now()
	var change *transition
	switch b.state {
	case StateHalfOpen:
		b.probing = false
		b.openUntil = now.Add(b.cooldown)
		change = b.setState(StateOpen)
	case StateClosed:
		if b.failures == 0 || (b.window > 0 && now.Sub(b.firstFailure) > b.window) {
			b.failures = 0
			b.firstFailure = now
		}
		b.failures++
		if b.failures >= b.threshold {
			b.openUntil = now.Add(b.cooldown)
			change = b.setState(StateOpen)
		}
	}
	b.mu.Unlock()
	b.notify(change)
}

// Reset cierra el circuito manualmente.
func (b *Breaker) Reset() {
	b.mu.Lock()
	b.failures = 0
	b.probing = false
	change := b.setState(StateClosed)
	b.mu.Unlock()
	b.notify(change)
}

func (b *Breaker) releaseProbe() {
	b.mu.Lock()
	b.probing = false
	b.mu.Unlock()
}

func (b *Breaker) openError() error {
	return &domain.DependencyError{Dependency: b.dependency, Operation: b.operation, Err: domain.ErrBreakerOpen}
}

type transition struct{ from, to State }

// setState requiere b.mu tomado.
func (b *Breaker) setState(to State) *transition {
	if b.state == to {
		return nil
	}
	t := &transition{from: b.state, to: to}
	b.state = to
	return t
}

func (b *Breaker) notify(t *transition) {
	if t == nil {
		return
	}
	for _, fn := range b.onChange {
		fn(b.name, t.from, t.to)
	}
}
