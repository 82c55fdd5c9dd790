package issuance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/certificate"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/entity"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/breaker"
	issuerclient "github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/issuer"
	registryclient "github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/registry"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/tracing"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/config"
	catalog "github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/issuer"
)

func issuedAtEdition(clock *testClock) func(*entity.IssuerEnvelope) (*entity.IssuerResult, error) {
	return func(*entity.IssuerEnvelope) (*entity.IssuerResult, error) {
		exp := clock.Now().Add(time.Hour)
		return &entity.IssuerResult{
			RequestNumber:     "REQ-1",
			CertificateNumber: "ATT-9",
			Issued:            true,
			Links:             catalog.DeriveLinks("https://issuer.test/d/1"),
			LinksExpireAt:     &exp,
		}, nil
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Alta
// ──────────────────────────────────────────────────────────────────────────────

func TestCreate_FlujoCompletoHastaIssuerProcessing(t *testing.T) {
	h := newHarness(t)
	ctx := WithActor(context.Background(), "AG7")

	resp, replayed, err := h.orch.Create(ctx, "k1", cmdFor("POL-1", " ab-123-cd "))

	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, entity.StatusIssuerProcessing, resp.Status)
	assert.Equal(t, "REQ-1", resp.IssuerReference)
	assert.Equal(t, "AB-123-CD", resp.RegistrationNumber)
	assert.Equal(t, "C001", resp.CompanyCode)
	assert.Equal(t, "ABJ", resp.OfficeCode, "la oficina se toma de la póliza")
	assert.Regexp(t, `^CRT-20260315-[0-9A-F]{8}$`, resp.ReferenceNumber)
	assert.True(t, resp.TotalPremium.IsPositive())

	assert.Equal(t,
		[]string{entity.StatusPending, entity.StatusRegistryFetched, entity.StatusSubmitted, entity.StatusIssuerProcessing},
		h.audit.path(resp.ID))
	assert.Equal(t, "AG7", h.audit.last(resp.ID).Actor)

	require.NotNil(t, h.issuer.lastEnvelope)
	assert.Equal(t, "C001", h.issuer.lastEnvelope.CompanyCode)
	assert.Equal(t, "AB-123-CD", h.issuer.lastEnvelope.RegistrationNumber)
}

func TestCreate_EmitidoEnLaEdicionQuedaCompleted(t *testing.T) {
	h := newHarness(t)
	h.issuer.setSubmit(issuedAtEdition(h.clock))

	resp, _, err := h.orch.Create(context.Background(), "k1", cmdFor("POL-1", "AB-123-CD"))

	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, resp.Status)
	assert.Equal(t, "ATT-9", resp.CertificateNumber)
	assert.NotEmpty(t, resp.DownloadURL)
	assert.NotNil(t, resp.ProcessedAt)
}

func TestCreate_MismaClaveYCuerpoDevuelveElResultadoAlmacenado(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, _, err := h.orch.Create(ctx, "k1", cmdFor("POL-1", "AB-123-CD"))
	require.NoError(t, err)
	second, replayed, err := h.orch.Create(ctx, "k1", cmdFor("POL-1", "ab-123-cd"))

	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.ReferenceNumber, second.ReferenceNumber)
	assert.Equal(t, 1, h.issuer.SubmitCalls())
}

func TestCreate_MismaClaveConOtroCuerpoEsConflicto(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := h.orch.Create(ctx, "k1", cmdFor("POL-1", "AB-123-CD"))
	require.NoError(t, err)
	_, _, err = h.orch.Create(ctx, "k1", cmdFor("POL-2", "EF-456-GH"))

	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyReuse)
	assert.Equal(t, domain.KindConflict, domain.Kind(err))
	assert.Equal(t, 1, h.issuer.SubmitCalls())
}

func TestCreate_ClaveEnCursoEsConflicto(t *testing.T) {
	h := newHarness(t)
	started := make(chan struct{})
	release := make(chan struct{})
	h.issuer.setSubmit(func(*entity.IssuerEnvelope) (*entity.IssuerResult, error) {
		close(started)
		<-release
		return &entity.IssuerResult{RequestNumber: "REQ-1"}, nil
	})

	done := make(chan error, 1)
	go func() {
		_, _, err := h.orch.Create(context.Background(), "k1", cmdFor("POL-1", "AB-123-CD"))
		done <- err
	}()
	<-started

	_, _, err := h.orch.Create(context.Background(), "k1", cmdFor("POL-1", "AB-123-CD"))
	assert.ErrorIs(t, err, domain.ErrIdempotencyInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, h.issuer.SubmitCalls())
}

func TestCreate_DuplicadoActivoLiberaLaClave(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := h.orch.Create(ctx, "k1", cmdFor("POL-1", "AB-123-CD"))
	require.NoError(t, err)
	_, _, err = h.orch.Create(ctx, "k2", cmdFor("POL-1", "AB-123-CD"))

	assert.ErrorIs(t, err, domain.ErrDuplicateActive)
	rec, gerr := h.store.Get(ctx, "k2")
	require.NoError(t, gerr)
	assert.Nil(t, rec, "un fallo sin resultado no deja la clave tomada")
}

// Con el registro de idempotencia ya vencido, la clave guardada en la solicitud evita un segundo envío.
func TestCreate_ClaveVencidaDevuelveLaSolicitudExistente(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, _, err := h.orch.Create(ctx, "k1", cmdFor("POL-1", "AB-123-CD"))
	require.NoError(t, err)
	h.clock.Advance(25 * time.Hour)

	again, replayed, err := h.orch.Create(ctx, "k1", cmdFor("POL-1", "AB-123-CD"))

	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, h.issuer.SubmitCalls())
}

func TestCreate_ClaveVencidaConOtraPolizaEsConflicto(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, _, err := h.orch.Create(ctx, "k1", cmdFor("POL-1", "AB-123-CD"))
	require.NoError(t, err)
	h.clock.Advance(25 * time.Hour)

	_, _, err = h.orch.Create(ctx, "k1", cmdFor("POL-2", "EF-456-GH"))

	require.ErrorIs(t, err, domain.ErrIdempotencyKeyReuse)
	assert.Nil(t, h.repo.get(func(r *entity.IssuanceRequest) bool { return r.PolicyNumber == "POL-2" }))
	assert.Equal(t, 1, h.issuer.SubmitCalls())

	rec, err := h.store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, rec != nil && rec.IsLive(h.clock.Now()), "la clave no guarda un resultado ajeno")

	stored, _ := h.repo.GetByID(ctx, first.ID)
	assert.Equal(t, "POL-1", stored.PolicyNumber)
}

func TestCreate_ClaveDerivadaDeLoteNoSirveParaUnAltaIndividual(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out, _, err := h.orch.BulkCreate(ctx, "b1", []CreateCommand{cmdFor("POL-1", "AB-123-CD")})
	require.NoError(t, err)
	require.Equal(t, 1, out.Succeeded)

	_, _, err = h.orch.Create(ctx, "b1:0", cmdFor("POL-1", "AB-123-CD"))

	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyReuse)
}

func TestCreate_MetadatosDeLoteDelClienteSeDescartan(t *testing.T) {
	h := newHarness(t)
	cmd := cmdFor("POL-1", "AB-123-CD")
	cmd.Metadata = map[string]any{metadataBatchID: "falso", metadataBatchIndex: 0, "canal": "web"}

	resp, _, err := h.orch.Create(context.Background(), "k1", cmd)

	require.NoError(t, err)
	assert.NotContains(t, resp.Metadata, metadataBatchID)
	assert.NotContains(t, resp.Metadata, metadataBatchIndex)
	assert.Equal(t, "web", resp.Metadata["canal"])
	assert.Contains(t, cmd.Metadata, metadataBatchID, "el mapa del llamador no se modifica")
}

func TestCreate_UsaElTracerInyectado(t *testing.T) {
	h := newHarness(t)
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	orch := h.rebuild(h.registry, WithTracer(tp.Tracer(tracing.TracerName)))

	_, _, err := orch.Create(context.Background(), "k1", cmdFor("POL-1", "AB-123-CD"))
	require.NoError(t, err)

	var names []string
	for _, sp := range recorder.Ended() {
		names = append(names, sp.Name())
	}
	assert.Contains(t, names, "issuance.create")
	assert.Contains(t, names, "issuance.fetch_and_validate")
}

func TestCreate_PolizaInvalidaNoLlamaAlIssuer(t *testing.T) {
	h := newHarness(t)
	expired := validPolicy("POL-9", "ZZ-000-ZZ")
	expired.ExpiryDate = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	h.registry.policies["POL-9"] = expired

	resp, _, err := h.orch.Create(context.Background(), "k1", cmdFor("POL-9", "ZZ-000-ZZ"))

	require.NoError(t, err, "un fallo de negocio queda en la solicitud")
	assert.Equal(t, entity.StatusFailed, resp.Status)
	assert.Equal(t, domain.KindValidation, resp.ErrorCode)
	assert.False(t, resp.Retryable)
	assert.Zero(t, resp.RetryCount)
	assert.NotEmpty(t, resp.ErrorDetail)
	assert.Zero(t, h.issuer.SubmitCalls())
}

func TestCreate_PolizaInexistente(t *testing.T) {
	h := newHarness(t)

	resp, _, err := h.orch.Create(context.Background(), "k1", cmdFor("POL-404", "AB-123-CD"))

	require.NoError(t, err)
	assert.Equal(t, entity.StatusFailed, resp.Status)
	assert.Equal(t, domain.KindValidation, resp.ErrorCode)
	require.Len(t, resp.ErrorDetail, 1)
	assert.Contains(t, resp.ErrorDetail[0], "no existe")
}

func TestCreate_RegistryCaidoEsReintentable(t *testing.T) {
	h := newHarness(t)
	h.registry.err = &domain.DependencyError{Dependency: "registry", Operation: "policy", Err: context.DeadlineExceeded}

	resp, _, err := h.orch.Create(context.Background(), "k1", cmdFor("POL-1", "AB-123-CD"))

	require.NoError(t, err)
	assert.Equal(t, entity.StatusFailed, resp.Status)
	assert.Equal(t, domain.KindDependencyUnavailable, resp.ErrorCode)
	assert.True(t, resp.Retryable)
	assert.Equal(t, 1, resp.RetryCount)
}

func TestCreate_BreakerAbiertoFallaSinLlamarAlIssuer(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	h := newHarness(t)
	h.orch.issuer = issuerclient.NewClient(
		config.IssuerConfig{BaseURL: srv.URL + "/", Timeout: 2 * time.Second},
		breaker.NewSet(breaker.WithFailureThreshold(1)), h.metrics)
	ctx := context.Background()

	first, _, err := h.orch.Create(ctx, "k1", cmdFor("POL-1", "AB-123-CD"))
	require.NoError(t, err)
	second, _, err := h.orch.Create(ctx, "k2", cmdFor("POL-2", "EF-456-GH"))
	require.NoError(t, err)

	assert.Equal(t, entity.StatusFailed, first.Status)
	assert.Equal(t, entity.StatusFailed, second.Status)
	assert.Equal(t, domain.KindDependencyUnavailable, second.ErrorCode)
	assert.True(t, second.Retryable)
	assert.Contains(t, second.ErrorMessage, domain.ErrBreakerOpen.Error())
	assert.Equal(t, int32(1), hits.Load(), "con el breaker abierto no hay llamada HTTP")
}

func TestCreate_RechazoDuplicadoQuedaParaRevisionManual(t *testing.T) {
	h := newHarness(t)
	h.issuer.setSubmit(func(*entity.IssuerEnvelope) (*entity.IssuerResult, error) {
		return nil, &domain.IssuerRejectedError{Code: catalog.StatusDuplicate, Message: "ya existe"}
	})

	resp, _, err := h.orch.Create(context.Background(), "k1", cmdFor("POL-1", "AB-123-CD"))

	require.NoError(t, err)
	assert.Equal(t, entity.StatusFailed, resp.Status)
	assert.Equal(t, domain.KindIssuerRejected, resp.ErrorCode)
	assert.False(t, resp.Retryable)
	assert.Equal(t, true, resp.Metadata[metadataOperatorReview])
}

func TestCreate_SinClaveOSinCamposEsEntradaInvalida(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := h.orch.Create(ctx, "  ", cmdFor("POL-1", "AB-123-CD"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, _, err = h.orch.Create(ctx, "k1", CreateCommand{RegistrationNumber: "AB-123-CD"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "policy_number")

	assert.Zero(t, h.registry.Calls())
}

// ──────────────────────────────────────────────────────────────────────────────
// Reintentos
// ──────────────────────────────────────────────────────────────────────────────

func TestRetry_AgotaLosIntentos(t *testing.T) {
	h := newHarness(t, func(s *Settings) { s.MaxRetries = 2 })
	h.issuer.setSubmit(func(*entity.IssuerEnvelope) (*entity.IssuerResult, error) { return nil, unavailable() })
	ctx := context.Background()

	resp, _, err := h.orch.Create(ctx, "k1", cmdFor("POL-1", "AB-123-CD"))
	require.NoError(t, err)
	require.Equal(t, 1, resp.RetryCount)

	resp, err = h.orch.Retry(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusFailed, resp.Status)
	assert.Equal(t, 2, resp.RetryCount)
	assert.NotNil(t, resp.ProcessedAt, "sin intentos restantes el fallo es definitivo")

	_, err = h.orch.Retry(ctx, resp.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, 2, h.issuer.SubmitCalls())
}

func TestRetry_ReutilizaElSnapshotSalvoQueEsteVencido(t *testing.T) {
	h := newHarness(t)
	h.issuer.setSubmit(func(*entity.IssuerEnvelope) (*entity.IssuerResult, error) { return nil, unavailable() })
	ctx := context.Background()

	resp, _, err := h.orch.Create(ctx, "k1", cmdFor("POL-1", "AB-123-CD"))
	require.NoError(t, err)
	require.Equal(t, 1, h.registry.Calls())

	_, err = h.orch.Retry(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, h.registry.Calls(), "snapshot fresco: no se consulta el Registry")

	h.clock.Advance(2 * time.Hour)
	h.issuer.setSubmit(func(*entity.IssuerEnvelope) (*entity.IssuerResult, error) {
		return &entity.IssuerResult{RequestNumber: "REQ-2"}, nil
	})
	resp, err = h.orch.Retry(ctx, resp.ID)

	require.NoError(t, err)
	assert.Equal(t, 2, h.registry.Calls())
	assert.Equal(t, entity.StatusIssuerProcessing, resp.Status)
	assert.Equal(t, "REQ-2", resp.IssuerReference)
	assert.Empty(t, resp.ErrorCode)
}

func TestRetry_SnapshotVencidoSeReleeSinCache(t *testing.T) {
	h := newHarness(t)
	orch := h.rebuild(registryclient.NewCachedClient(h.registry, 24*time.Hour, nil))
	h.issuer.setSubmit(func(*entity.IssuerEnvelope) (*entity.IssuerResult, error) { return nil, unavailable() })
	ctx := context.Background()

	resp, _, err := orch.Create(ctx, "k1", cmdFor("POL-1", "AB-123-CD"))
	require.NoError(t, err)
	require.Equal(t, 1, h.registry.Calls())

	h.clock.Advance(2 * time.Hour)
	_, err = orch.Retry(ctx, resp.ID)

	require.NoError(t, err)
	assert.Equal(t, 2, h.registry.Calls(), "la póliza cacheada no sustituye a una lectura fresca")
}

func TestRetry_TuplaOcupadaPorOtraActivaQuedaDefinitiva(t *testing.T) {
	h := newHarness(t)
	h.issuer.setSubmit(func(*entity.IssuerEnvelope) (*entity.IssuerResult, error) { return nil, unavailable() })
	ctx := context.Background()

	failed, _, err := h.orch.Create(ctx, "k1", cmdFor("POL-1", "AB-123-CD"))
	require.NoError(t, err)
	require.True(t, failed.Retryable)

	h.issuer.setSubmit(func(*entity.IssuerEnvelope) (*entity.IssuerResult, error) {
		return &entity.IssuerResult{RequestNumber: "REQ-2"}, nil
	})
	resubmitted, _, err := h.orch.Create(ctx, "k2", cmdFor("POL-1", "AB-123-CD"))
	require.NoError(t, err)
	require.Equal(t, entity.StatusIssuerProcessing, resubmitted.Status)

	_, err = h.orch.Retry(ctx, failed.ID)

	require.ErrorIs(t, err, domain.ErrDuplicateActive)
	stored, _ := h.repo.GetByID(ctx, failed.ID)
	assert.Equal(t, entity.StatusFailed, stored.Status)
	assert.False(t, stored.CanRetry())
	assert.Equal(t, domain.KindConflict, stored.ErrorCode)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Equal(t, 2, h.issuer.SubmitCalls())
	assert.Equal(t, entity.StatusFailed, h.audit.last(failed.ID).To)
}

func TestRetry_AltaConcurrenteDeLaMismaTuplaRetiraLaSolicitud(t *testing.T) {
	h := newHarness(t)
	h.issuer.setSubmit(func(*entity.IssuerEnvelope) (*entity.IssuerResult, error) { return nil, unavailable() })
	ctx := context.Background()

	failed, _, err := h.orch.Create(ctx, "k1", cmdFor("POL-1", "AB-123-CD"))
	require.NoError(t, err)

	// Otra alta ocupa la tupla justo antes de que el reintento se persista.
	h.repo.onUpdateTo(entity.StatusRegistryFetched, func() {
		h.repo.put(&entity.IssuanceRequest{
			ID: "other", ReferenceNumber: "CRT-OTHER", Status: entity.StatusPending,
			PolicyNumber: "POL-1", RegistrationNumber: "AB-123-CD", CompanyCode: "C001",
			UpdatedAt: h.clock.Now(),
		})
	})
	_, err = h.orch.Retry(ctx, failed.ID)

	require.ErrorIs(t, err, domain.ErrDuplicateActive)
	stored, _ := h.repo.GetByID(ctx, failed.ID)
	assert.False(t, stored.CanRetry())
	assert.Equal(t, 1, h.issuer.SubmitCalls())
}

func TestRetry_NoReintentableEsConflicto(t *testing.T) {
	h := newHarness(t)

	resp, _, err := h.orch.Create(context.Background(), "k1", cmdFor("POL-404", "AB-123-CD"))
	require.NoError(t, err)

	_, err = h.orch.Retry(context.Background(), resp.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

// ──────────────────────────────────────────────────────────────────────────────
// Cambios concurrentes
// ──────────────────────────────────────────────────────────────────────────────

func TestCreate_ResultadoDelIssuerPrevaleceSobreAnulacionConcurrente(t *testing.T) {
	h := newHarness(t)
	var id string
	h.repo.onUpdateTo(entity.StatusIssuerProcessing, func() {
		r := h.repo.get(func(r *entity.IssuanceRequest) bool { return r.PolicyNumber == "POL-1" })
		id = r.ID
		h.repo.mutate(id, func(r *entity.IssuanceRequest) { r.Status = entity.StatusCancelled })
	})

	resp, _, err := h.orch.Create(context.Background(), "k1", cmdFor("POL-1", "AB-123-CD"))

	require.NoError(t, err)
	assert.Equal(t, entity.StatusIssuerProcessing, resp.Status)
	stored, _ := h.repo.GetByID(context.Background(), id)
	assert.Equal(t, entity.StatusIssuerProcessing, stored.Status)
	last := h.audit.last(id)
	assert.Equal(t, entity.StatusCancelled, last.From)
	assert.Equal(t, entity.StatusIssuerProcessing, last.To)
}

func TestCreate_NuncaPisaUnCompleted(t *testing.T) {
	h := newHarness(t)
	h.issuer.setSubmit(func(*entity.IssuerEnvelope) (*entity.IssuerResult, error) { return nil, unavailable() })
	h.repo.onUpdateTo(entity.StatusFailed, func() {
		r := h.repo.get(func(r *entity.IssuanceRequest) bool { return r.PolicyNumber == "POL-1" })
		h.repo.mutate(r.ID, func(r *entity.IssuanceRequest) {
			r.Status = entity.StatusCompleted
			r.CertificateNumber = "ATT-X"
		})
	})

	resp, _, err := h.orch.Create(context.Background(), "k1", cmdFor("POL-1", "AB-123-CD"))

	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, resp.Status)
	assert.Equal(t, "ATT-X", resp.CertificateNumber)
}

func TestCreate_AnulacionAntesDelEnvioDetieneElPipeline(t *testing.T) {
	h := newHarness(t)
	h.repo.onUpdateTo(entity.StatusSubmitted, func() {
		r := h.repo.get(func(r *entity.IssuanceRequest) bool { return r.PolicyNumber == "POL-1" })
		h.repo.mutate(r.ID, func(r *entity.IssuanceRequest) { r.Status = entity.StatusCancelled })
	})

	resp, _, err := h.orch.Create(context.Background(), "k1", cmdFor("POL-1", "AB-123-CD"))

	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelled, resp.Status)
	assert.Zero(t, h.issuer.SubmitCalls())
}

// ──────────────────────────────────────────────────────────────────────────────
// Estado, anulación y suspensión
// ──────────────────────────────────────────────────────────────────────────────

func TestRefreshStatus_CompletaCuandoElIssuerEmitio(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resp, _, err := h.orch.Create(ctx, "k1", cmdFor("POL-1", "AB-123-CD"))
	require.NoError(t, err)

	resp, err = h.orch.RefreshStatus(ctx, resp.ID)

	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, resp.Status)
	assert.Equal(t, "ATT-1", resp.CertificateNumber)
	assert.NotEmpty(t, resp.DownloadURL)
}

func TestRefreshStatus_SinEmitirSigueEnProceso(t *testing.T) {
	h := newHarness(t)
	h.issuer.status = func(ref string) (*entity.IssuerResult, error) {
		return &entity.IssuerResult{RequestNumber: ref}, nil
	}
	ctx := context.Background()
	resp, _, err := h.orch.Create(ctx, "k1", cmdFor("POL-1", "AB-123-CD"))
	require.NoError(t, err)

	resp, err = h.orch.RefreshStatus(ctx, resp.ID)

	require.NoError(t, err)
	assert.Equal(t, entity.StatusIssuerProcessing, resp.Status)
}

func TestRefreshStatus_SoloDesdeIssuerProcessing(t *testing.T) {
	h := newHarness(t)
	resp, _, err := h.orch.Create(context.Background(), "k1", cmdFor("POL-404", "AB-123-CD"))
	require.NoError(t, err)

	_, err = h.orch.RefreshStatus(context.Background(), resp.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCancel_EnProcesoInformaAlIssuer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resp, _, err := h.orch.Create(ctx, "k1", cmdFor("POL-1", "AB-123-CD"))
	require.NoError(t, err)

	resp, err = h.orch.Cancel(ctx, resp.ID, "error del agente")

	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelled, resp.Status)
	assert.Equal(t, []string{catalog.ActionCancel}, h.issuer.actions)
	assert.Equal(t, "error del agente", h.audit.last(resp.ID).Reason)

	_, err = h.orch.Cancel(ctx, resp.ID, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCancel_CertificadoTransferidoEsConflicto(t *testing.T) {
	h := newHarness(t)
	h.issuer.setSubmit(issuedAtEdition(h.clock))
	h.issuer.status = func(ref string) (*entity.IssuerResult, error) {
		return &entity.IssuerResult{RequestNumber: ref, Issued: true, Transferred: true}, nil
	}
	ctx := context.Background()
	resp, _, err := h.orch.Create(ctx, "k1", cmdFor("POL-1", "AB-123-CD"))
	require.NoError(t, err)

	_, err = h.orch.Cancel(ctx, resp.ID, "")

	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Zero(t, h.issuer.updateCalls)
	stored, _ := h.repo.GetByID(ctx, resp.ID)
	assert.Equal(t, entity.StatusCompleted, stored.Status)
}

func TestCancel_SuspendidaDesdeCompletedConsultaTransferencia(t *testing.T) {
	h := newHarness(t)
	h.issuer.setSubmit(issuedAtEdition(h.clock))
	ctx := context.Background()
	resp, _, err := h.orch.Create(ctx, "k1", cmdFor("POL-1", "AB-123-CD"))
	require.NoError(t, err)
	_, err = h.orch.Suspend(ctx, resp.ID, "revisión")
	require.NoError(t, err)

	h.issuer.status = func(ref string) (*entity.IssuerResult, error) {
		return &entity.IssuerResult{RequestNumber: ref, Issued: true, Transferred: true}, nil
	}
	_, err = h.orch.Cancel(ctx, resp.ID, "")

	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, []string{catalog.ActionSuspend}, h.issuer.actions, "no se pide la anulación al Issuer")
	stored, _ := h.repo.GetByID(ctx, resp.ID)
	assert.Equal(t, entity.StatusSuspended, stored.Status)
}

func TestCancel_RechazoDeEstadoDelIssuerEsConflicto(t *testing.T) {
	h := newHarness(t)
	h.issuer.update = func(string, string) (*entity.IssuerResult, error) {
		return nil, &domain.IssuerRejectedError{Code: catalog.StatusStateNotAllowed, Message: "no permitido"}
	}
	ctx := context.Background()
	resp, _, err := h.orch.Create(ctx, "k1", cmdFor("POL-1", "AB-123-CD"))
	require.NoError(t, err)

	_, err = h.orch.Cancel(ctx, resp.ID, "")

	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	stored, _ := h.repo.GetByID(ctx, resp.ID)
	assert.Equal(t, entity.StatusIssuerProcessing, stored.Status)
}

func TestSuspendResume_CertificadoEmitidoVuelveACompleted(t *testing.T) {
	h := newHarness(t)
	h.issuer.setSubmit(issuedAtEdition(h.clock))
	ctx := context.Background()
	resp, _, err := h.orch.Create(ctx, "k1", cmdFor("POL-1", "AB-123-CD"))
	require.NoError(t, err)

	resp, err = h.orch.Suspend(ctx, resp.ID, "revisión")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusSuspended, resp.Status)
	assert.Equal(t, []string{catalog.ActionSuspend}, h.issuer.actions)

	resp, err = h.orch.Resume(ctx, resp.ID, "")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, resp.Status)
	assert.Equal(t, "ATT-9", resp.CertificateNumber)
	assert.Equal(t, 1, h.issuer.SubmitCalls())
}

func TestSuspendResume_EnProcesoVuelveARecorrerElPipeline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resp, _, err := h.orch.Create(ctx, "k1", cmdFor("POL-1", "AB-123-CD"))
	require.NoError(t, err)

	_, err = h.orch.Suspend(ctx, resp.ID, "")
	require.NoError(t, err)
	resp, err = h.orch.Resume(ctx, resp.ID, "")

	require.NoError(t, err)
	assert.Equal(t, entity.StatusIssuerProcessing, resp.Status)
	assert.Equal(t, 2, h.registry.Calls())
	assert.Equal(t, 2, h.issuer.SubmitCalls())
}

func TestResume_SoloDesdeSuspended(t *testing.T) {
	h := newHarness(t)
	resp, _, err := h.orch.Create(context.Background(), "k1", cmdFor("POL-1", "AB-123-CD"))
	require.NoError(t, err)

	_, err = h.orch.Resume(context.Background(), resp.ID, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

// ──────────────────────────────────────────────────────────────────────────────
// Descarga
// ──────────────────────────────────────────────────────────────────────────────

func TestDownload_RenuevaEnlacesVencidosYCuenta(t *testing.T) {
	h := newHarness(t)
	h.issuer.setSubmit(issuedAtEdition(h.clock))
	ctx := context.Background()
	resp, _, err := h.orch.Create(ctx, "k1", cmdFor("POL-1", "AB-123-CD"))
	require.NoError(t, err)

	d, err := h.orch.Download(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, d.DownloadCount)
	assert.Contains(t, d.DownloadURL, "/d/1")
	assert.NotEmpty(t, d.QRCodeURL)
	assert.Zero(t, h.issuer.downloadCalls, "enlace vigente: no se pide otro")

	h.clock.Advance(2 * time.Hour)
	d, err = h.orch.Download(ctx, resp.ID)

	require.NoError(t, err)
	assert.Equal(t, 2, d.DownloadCount)
	assert.Contains(t, d.DownloadURL, "/d/2")
	assert.Equal(t, 1, h.issuer.downloadCalls)
	require.NotNil(t, d.ExpiresAt)
	assert.True(t, d.ExpiresAt.After(h.clock.Now()))
}

func TestDownload_SinEmitirEsConflicto(t *testing.T) {
	h := newHarness(t)
	resp, _, err := h.orch.Create(context.Background(), "k1", cmdFor("POL-1", "AB-123-CD"))
	require.NoError(t, err)

	_, err = h.orch.Download(context.Background(), resp.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

// ──────────────────────────────────────────────────────────────────────────────
// Lote
// ──────────────────────────────────────────────────────────────────────────────

func TestBulkCreate_ElementosIndependientesYRepeticion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	batch := func() []CreateCommand {
		return []CreateCommand{
			cmdFor("POL-1", "AB-123-CD"),
			{PolicyNumber: "POL-2"},
			cmdFor("POL-404", "XX-000-XX"),
		}
	}

	out, replayed, err := h.orch.BulkCreate(ctx, "b1", batch())

	require.NoError(t, err)
	assert.False(t, replayed)
	require.Len(t, out.Items, 3)
	assert.Equal(t, 1, out.Succeeded)
	assert.Equal(t, 2, out.Failed)

	require.NotNil(t, out.Items[0].Request)
	assert.Equal(t, entity.StatusIssuerProcessing, out.Items[0].Request.Status)
	assert.Equal(t, out.BatchID, out.Items[0].Request.Metadata[metadataBatchID])

	require.NotNil(t, out.Items[1].Error)
	assert.Nil(t, out.Items[1].Request)
	assert.Equal(t, domain.KindInvalidInput, out.Items[1].Error.Code)

	require.NotNil(t, out.Items[2].Request)
	assert.Equal(t, entity.StatusFailed, out.Items[2].Request.Status)

	stored, _ := h.repo.GetByIdempotencyKey(ctx, "b1:0")
	require.NotNil(t, stored)
	assert.Equal(t, out.Items[0].Request.ID, stored.ID)

	again, replayed, err := h.orch.BulkCreate(ctx, "b1", batch())
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, out.BatchID, again.BatchID)
	assert.Equal(t, 1, h.issuer.SubmitCalls())
}

func TestBulkCreate_LimitesDelLote(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.orch.BulkCreate(context.Background(), "b1", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, _, err = h.orch.BulkCreate(context.Background(), "b1", make([]CreateCommand, maxBatchItems+1))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// ──────────────────────────────────────────────────────────────────────────────
// Consultas
// ──────────────────────────────────────────────────────────────────────────────

func TestGet_PorIDOReferencia(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resp, _, err := h.orch.Create(ctx, "k1", cmdFor("POL-1", "AB-123-CD"))
	require.NoError(t, err)

	byRef, err := h.orch.Get(ctx, resp.ReferenceNumber)
	require.NoError(t, err)
	assert.Equal(t, resp.ID, byRef.ID)

	_, err = h.orch.Get(ctx, "CRT-00000000-NOPE")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestList_Paginado(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i, p := range []string{"POL-1", "POL-2", "POL-3"} {
		_, _, err := h.orch.Create(ctx, "k"+p, cmdFor(p, h.registry.policies[p].Vehicle.RegistrationNumber))
		require.NoError(t, err, i)
		h.clock.Advance(time.Second)
	}

	page, err := h.orch.List(ctx, entity.IssuanceFilter{Limit: 2})

	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 3, page.Page.Total)
	assert.True(t, page.Page.HasMore)

	page, err = h.orch.List(ctx, entity.IssuanceFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.False(t, page.Page.HasMore)
}

func TestCheckPolicy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ok, err := h.orch.CheckPolicy(ctx, "POL-1", certificate.CrossCheck{})
	require.NoError(t, err)
	assert.True(t, ok.Eligible)
	assert.Empty(t, ok.Errors)

	mismatch, err := h.orch.CheckPolicy(ctx, "POL-1", certificate.CrossCheck{RegistrationNumber: "OTRA"})
	require.NoError(t, err)
	assert.False(t, mismatch.Eligible)
	assert.Len(t, mismatch.Errors, 1)

	_, err = h.orch.CheckPolicy(ctx, "POL-404", certificate.CrossCheck{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
