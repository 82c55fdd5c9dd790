package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain"
)

var errTransport = errors.New("connection refused")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func fail(context.Context) error { return errTransport }
func ok(context.Context) error   { return nil }

func TestBreaker_EstadoInicial(t *testing.T) {
	b := New(IssuerEdition)
	assert.Equal(t, StateClosed, b.State())
	assert.False(t, b.IsOpen())
	assert.Equal(t, "issuer.edition", b.Name())
}

func TestBreaker_AbreTrasUmbralYNoInvocaFn(t *testing.T) {
	clock := newFakeClock()
	b := New(RegistrySearch, WithFailureThreshold(3), WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Execute(ctx, fail), errTransport)
	}
	require.True(t, b.IsOpen())

	called := false
	start := time.Now()
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })

	assert.False(t, called, "con el circuito abierto no se llama a la dependencia")
	assert.Less(t, time.Since(start), time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrBreakerOpen)
	assert.ErrorIs(t, err, domain.ErrDependencyUnavailable)

	var depErr *domain.DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, "registry", depErr.Dependency)
	assert.Equal(t, "search", depErr.Operation)
}

func TestBreaker_ExitoReiniciaRacha(t *testing.T) {
	b := New("x.y", WithFailureThreshold(3))
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, ok)
	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	assert.Equal(t, StateClosed, b.State())

	_ = b.Execute(ctx, fail)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_FallosFueraDeVentanaNoAcumulan(t *testing.T) {
	clock := newFakeClock()
	b := New("x.y", WithFailureThreshold(3), WithWindow(time.Minute), WithClock(clock.Now))
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	clock.Advance(2 * time.Minute)
	_ = b.Execute(ctx, fail)
	assert.Equal(t, StateClosed, b.State(), "la racha anterior quedó fuera de la ventana")

	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_SemiabiertoPermiteUnaSolaPrueba(t *testing.T) {
	clock := newFakeClock()
	b := New("x.y", WithFailureThreshold(1), WithCooldown(30*time.Second), WithClock(clock.Now))
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	require.Equal(t, StateOpen, b.State())

	clock.Advance(29 * time.Second)
	assert.ErrorIs(t, b.Execute(ctx, ok), domain.ErrBreakerOpen, "cooldown aún no vencido")

	clock.Advance(2 * time.Second)
	assert.Equal(t, StateHalfOpen, b.State())

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(ctx, func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	// Mientras la prueba está en vuelo, el resto se rechaza.
	assert.ErrorIs(t, b.Execute(ctx, ok), domain.ErrBreakerOpen)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Execute(ctx, ok))
}

func TestBreaker_PruebaFallidaReabre(t *testing.T) {
	clock := newFakeClock()
	b := New("x.y", WithFailureThreshold(1), WithCooldown(10*time.Second), WithClock(clock.Now))
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	clock.Advance(11 * time.Second)

	assert.ErrorIs(t, b.Execute(ctx, fail), errTransport)
	assert.Equal(t, StateOpen, b.State())

	clock.Advance(5 * time.Second)
	assert.ErrorIs(t, b.Execute(ctx, ok), domain.ErrBreakerOpen, "el cooldown se reinicia con la prueba fallida")
}

func TestBreaker_CancelacionDelLlamadorNoCuenta(t *testing.T) {
	b := New("x.y", WithFailureThreshold(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_NotificaTransiciones(t *testing.T) {
	clock := newFakeClock()
	var got []string
	b := New("issuer.status",
		WithFailureThreshold(1),
		WithCooldown(time.Second),
		WithClock(clock.Now),
		WithStateChange(func(name string, from, to State) {
			got = append(got, name+":"+from.String()+"->"+to.String())
		}),
	)
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	clock.Advance(2 * time.Second)
	_ = b.Execute(ctx, ok)

	assert.Equal(t, []string{
		"issuer.status:closed->open",
		"issuer.status:open->half_open",
		"issuer.status:half_open->closed",
	}, got)
}

func TestSet_MismaInstanciaPorNombre(t *testing.T) {
	s := NewSet(WithFailureThreshold(1))

	a := s.Get(IssuerEdition)
	assert.Same(t, a, s.Get(IssuerEdition))
	assert.NotSame(t, a, s.Get(IssuerStatus))

	_ = a.Execute(context.Background(), fail)
	states := s.States()
	assert.Equal(t, "open", states[IssuerEdition])
	assert.Equal(t, "closed", states[IssuerStatus])
}
