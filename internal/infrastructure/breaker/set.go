package breaker

import (
	"sync"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/config"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/logger"
)

// Set breakers con nombre que comparten configuración. Se crean al primer uso.
type Set struct {
	mu       sync.Mutex
	opts     []Option
	breakers map[string]*Breaker
}

// NewSet crea el conjunto; opts se aplica a cada breaker.
func NewSet(opts ...Option) *Set {
	return &Set{opts: opts, breakers: make(map[string]*Breaker)}
}

// NewSetFromConfig construye el conjunto con los parámetros de BREAKER_* y registra
// cada transición en el log.
func NewSetFromConfig(cfg config.BreakerConfig, log *logger.Logger, extra ...Option) *Set {
	opts := []Option{
		WithFailureThreshold(cfg.FailureThreshold),
		WithWindow(cfg.Window),
		WithCooldown(cfg.Cooldown),
		WithStateChange(logTransitions(log)),
	}
	return NewSet(append(opts, extra...)...)
}

// Get devuelve el breaker name, creándolo si no existe.
func (s *Set) Get(name string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[name]
	if !ok {
		b = New(name, s.opts...)
		s.breakers[name] = b
	}
	return b
}

// States foto del estado de cada breaker creado (para /health).
func (s *Set) States() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.breakers))
	for name, b := range s.breakers {
		out[name] = b.State().String()
	}
	return out
}

func logTransitions(log *logger.Logger) StateChangeFunc {
	if log == nil {
		log = logger.Nop()
	}
	return func(name string, from, to State) {
		ev := log.Info()
		if to == StateOpen {
			ev = log.Warn()
		}
		ev.Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker cambió de estado")
	}
}
