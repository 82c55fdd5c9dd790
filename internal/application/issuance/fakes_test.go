package issuance

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/entity"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/repository"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/metrics"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/config"
	catalog "github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/issuer"
)

// ──────────────────────────────────────────────────────────────────────────────
// Reloj
// ──────────────────────────────────────────────────────────────────────────────

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// ──────────────────────────────────────────────────────────────────────────────
// Repositorio en memoria con control de versión
// ──────────────────────────────────────────────────────────────────────────────

type fakeRepo struct {
	mu   sync.Mutex
	rows map[string]*entity.IssuanceRequest

	// intercept se ejecuta una vez antes del primer Update hacia ese estado.
	intercept map[string]func()
}

var _ repository.IssuanceRequestRepository = (*fakeRepo)(nil)

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: map[string]*entity.IssuanceRequest{}, intercept: map[string]func(){}}
}

func cloneRequest(r *entity.IssuanceRequest) *entity.IssuanceRequest {
	c := *r
	c.Metadata = cloneMetadata(r.Metadata)
	c.ErrorDetail = append([]string(nil), r.ErrorDetail...)
	return &c
}

// onUpdateTo simula un cambio concurrente justo antes de persistir el estado indicado.
func (f *fakeRepo) onUpdateTo(status string, fn func()) {
	f.mu.Lock()
	f.intercept[status] = fn
	f.mu.Unlock()
}

// mutate cambia la fila guardada como lo haría otro proceso (incrementa la versión).
func (f *fakeRepo) mutate(id string, fn func(r *entity.IssuanceRequest)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.rows[id]
	fn(r)
	r.Version++
}

func (f *fakeRepo) put(r *entity.IssuanceRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Version == 0 {
		r.Version = 1
	}
	f.rows[r.ID] = cloneRequest(r)
}

func (f *fakeRepo) activeConflict(r *entity.IssuanceRequest) bool {
	if !r.IsActive() {
		return false
	}
	for _, other := range f.rows {
		if other.ID != r.ID && other.IsActive() && other.Key() == r.Key() {
			return true
		}
	}
	return false
}

func (f *fakeRepo) Create(_ context.Context, r *entity.IssuanceRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activeConflict(r) {
		return domain.ErrDuplicateActive
	}
	for _, other := range f.rows {
		if r.IdempotencyKey != "" && other.IdempotencyKey == r.IdempotencyKey {
			return domain.ErrConflict
		}
	}
	if r.Version == 0 {
		r.Version = 1
	}
	f.rows[r.ID] = cloneRequest(r)
	return nil
}

func (f *fakeRepo) Update(_ context.Context, r *entity.IssuanceRequest) error {
	f.mu.Lock()
	hook := f.intercept[r.Status]
	delete(f.intercept, r.Status)
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.rows[r.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != r.Version {
		return domain.ErrVersionConflict
	}
	if f.activeConflict(r) {
		return domain.ErrDuplicateActive
	}
	r.Version++
	f.rows[r.ID] = cloneRequest(r)
	return nil
}

func (f *fakeRepo) get(match func(*entity.IssuanceRequest) bool) *entity.IssuanceRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if match(r) {
			return cloneRequest(r)
		}
	}
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (*entity.IssuanceRequest, error) {
	return f.get(func(r *entity.IssuanceRequest) bool { return r.ID == id }), nil
}

func (f *fakeRepo) GetForUpdate(ctx context.Context, id string) (*entity.IssuanceRequest, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeRepo) GetByReference(_ context.Context, ref string) (*entity.IssuanceRequest, error) {
	return f.get(func(r *entity.IssuanceRequest) bool { return r.ReferenceNumber == ref }), nil
}

func (f *fakeRepo) GetByIdempotencyKey(_ context.Context, key string) (*entity.IssuanceRequest, error) {
	return f.get(func(r *entity.IssuanceRequest) bool { return key != "" && r.IdempotencyKey == key }), nil
}

func (f *fakeRepo) FindActive(_ context.Context, key entity.DuplicateKey) (*entity.IssuanceRequest, error) {
	return f.get(func(r *entity.IssuanceRequest) bool { return r.IsActive() && r.Key() == key }), nil
}

func (f *fakeRepo) sorted(match func(*entity.IssuanceRequest) bool, limit int) []*entity.IssuanceRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.IssuanceRequest
	for _, r := range f.rows {
		if match(r) {
			out = append(out, cloneRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *fakeRepo) ListRetryable(_ context.Context, limit int) ([]*entity.IssuanceRequest, error) {
	return f.sorted(func(r *entity.IssuanceRequest) bool { return r.CanRetry() }, limit), nil
}

func (f *fakeRepo) ListProcessingOlderThan(_ context.Context, before time.Time, limit int) ([]*entity.IssuanceRequest, error) {
	return f.sorted(func(r *entity.IssuanceRequest) bool {
		return r.Status == entity.StatusIssuerProcessing && r.UpdatedAt.Before(before)
	}, limit), nil
}

func (f *fakeRepo) List(_ context.Context, filter entity.IssuanceFilter) ([]*entity.IssuanceRequest, int, error) {
	all := f.sorted(func(r *entity.IssuanceRequest) bool {
		return (filter.Status == "" || r.Status == filter.Status) &&
			(filter.PolicyNumber == "" || r.PolicyNumber == filter.PolicyNumber) &&
			(filter.CompanyCode == "" || r.CompanyCode == filter.CompanyCode)
	}, 0)
	total := len(all)
	if filter.Offset >= total {
		return nil, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return all[filter.Offset:end], total, nil
}

type fakeTx struct{ repo *fakeRepo }

func (t fakeTx) RunInTx(_ context.Context, fn func(repo repository.IssuanceRequestRepository) error) error {
	return fn(t.repo)
}

// ──────────────────────────────────────────────────────────────────────────────
// Registry e Issuer
// ──────────────────────────────────────────────────────────────────────────────

type fakeRegistry struct {
	mu       sync.Mutex
	policies map[string]*entity.RegistryPolicy
	err      error
	calls    int
}

func (f *fakeRegistry) Search(context.Context, entity.RegistrySearchCriteria) (*entity.RegistryPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	page := &entity.RegistryPage{Limit: 20}
	for _, p := range f.policies {
		page.Items = append(page.Items, *p)
	}
	page.Total = len(page.Items)
	return page, f.err
}

func (f *fakeRegistry) GetPolicy(_ context.Context, number string) (*entity.RegistryPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.policies[number]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (f *fakeRegistry) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeIssuer struct {
	mu sync.Mutex

	submit   func(env *entity.IssuerEnvelope) (*entity.IssuerResult, error)
	status   func(ref string) (*entity.IssuerResult, error)
	update   func(ref, action string) (*entity.IssuerResult, error)
	download func(ref string) (*entity.IssuerResult, error)

	submitCalls, statusCalls, updateCalls, downloadCalls int
	actions                                              []string
	lastEnvelope                                         *entity.IssuerEnvelope
}

func newFakeIssuer(clock *testClock) *fakeIssuer {
	return &fakeIssuer{
		submit: func(*entity.IssuerEnvelope) (*entity.IssuerResult, error) {
			return &entity.IssuerResult{RequestNumber: "REQ-1"}, nil
		},
		status: func(ref string) (*entity.IssuerResult, error) {
			exp := clock.Now().Add(time.Hour)
			return &entity.IssuerResult{
				RequestNumber:     ref,
				CertificateNumber: "ATT-1",
				Issued:            true,
				Links:             catalog.DeriveLinks("https://issuer.test/d/1"),
				LinksExpireAt:     &exp,
			}, nil
		},
		update: func(string, string) (*entity.IssuerResult, error) {
			return &entity.IssuerResult{}, nil
		},
		download: func(ref string) (*entity.IssuerResult, error) {
			exp := clock.Now().Add(time.Hour)
			return &entity.IssuerResult{
				RequestNumber: ref,
				Links:         catalog.DeriveLinks("https://issuer.test/d/2"),
				LinksExpireAt: &exp,
			}, nil
		},
	}
}

func (f *fakeIssuer) SubmitEdition(_ context.Context, env *entity.IssuerEnvelope) (*entity.IssuerResult, error) {
	f.mu.Lock()
	f.submitCalls++
	f.lastEnvelope = env
	fn := f.submit
	f.mu.Unlock()
	return fn(env)
}

func (f *fakeIssuer) GetStatus(_ context.Context, ref string) (*entity.IssuerResult, error) {
	f.mu.Lock()
	f.statusCalls++
	fn := f.status
	f.mu.Unlock()
	return fn(ref)
}

func (f *fakeIssuer) UpdateStatus(_ context.Context, ref, action string) (*entity.IssuerResult, error) {
	f.mu.Lock()
	f.updateCalls++
	f.actions = append(f.actions, action)
	fn := f.update
	f.mu.Unlock()
	return fn(ref, action)
}

func (f *fakeIssuer) GetDownloadLinks(_ context.Context, ref string) (*entity.IssuerResult, error) {
	f.mu.Lock()
	f.downloadCalls++
	fn := f.download
	f.mu.Unlock()
	return fn(ref)
}

func (f *fakeIssuer) SubmitCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls
}

func (f *fakeIssuer) setSubmit(fn func(env *entity.IssuerEnvelope) (*entity.IssuerResult, error)) {
	f.mu.Lock()
	f.submit = fn
	f.mu.Unlock()
}

func unavailable() error {
	return &domain.DependencyError{Dependency: "issuer", Operation: "edition", Err: context.DeadlineExceeded}
}

// ──────────────────────────────────────────────────────────────────────────────
// Almacén de idempotencia en memoria
// ──────────────────────────────────────────────────────────────────────────────

type memIdempotencyStore struct {
	mu    sync.Mutex
	recs  map[string]entity.IdempotencyRecord
	clock *testClock
}

var _ repository.IdempotencyStore = (*memIdempotencyStore)(nil)

func newMemIdempotencyStore(clock *testClock) *memIdempotencyStore {
	return &memIdempotencyStore{recs: map[string]entity.IdempotencyRecord{}, clock: clock}
}

func (s *memIdempotencyStore) Reserve(_ context.Context, rec *entity.IdempotencyRecord) (*entity.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.recs[rec.Key]; ok && cur.IsLive(s.clock.Now()) {
		return &cur, false, nil
	}
	s.recs[rec.Key] = *rec
	return nil, true, nil
}

func (s *memIdempotencyStore) Complete(_ context.Context, key, fp string, outcome []byte, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.recs[key]
	if !ok || cur.Fingerprint != fp {
		return domain.ErrNotFound
	}
	cur.Status = entity.IdempotencyComplete
	cur.Outcome = outcome
	cur.ExpiresAt = expiresAt
	s.recs[key] = cur
	return nil
}

func (s *memIdempotencyStore) Release(_ context.Context, key, fp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.recs[key]; ok && cur.Fingerprint == fp && cur.Status == entity.IdempotencyInFlight {
		delete(s.recs, key)
	}
	return nil
}

func (s *memIdempotencyStore) Get(_ context.Context, key string) (*entity.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.recs[key]
	if !ok {
		return nil, nil
	}
	return &cur, nil
}

func (s *memIdempotencyStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, r := range s.recs {
		if !now.Before(r.ExpiresAt) {
			delete(s.recs, k)
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Auditoría
// ──────────────────────────────────────────────────────────────────────────────

type recordingAuditor struct {
	mu     sync.Mutex
	events []entity.AuditEvent
}

func (a *recordingAuditor) Publish(_ context.Context, ev entity.AuditEvent) {
	a.mu.Lock()
	a.events = append(a.events, ev)
	a.mu.Unlock()
}

// path estados destino de la solicitud en orden.
func (a *recordingAuditor) path(requestID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, ev := range a.events {
		if ev.RequestID == requestID {
			out = append(out, ev.To)
		}
	}
	return out
}

func (a *recordingAuditor) last(requestID string) entity.AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	var last entity.AuditEvent
	for _, ev := range a.events {
		if ev.RequestID == requestID {
			last = ev
		}
	}
	return last
}

// ──────────────────────────────────────────────────────────────────────────────
// Harness
// ──────────────────────────────────────────────────────────────────────────────

type harness struct {
	orch     *Orchestrator
	repo     *fakeRepo
	registry *fakeRegistry
	issuer   *fakeIssuer
	store    *memIdempotencyStore
	audit    *recordingAuditor
	clock    *testClock
	metrics  *metrics.Metrics
}

func validPolicy(number, registration string) *entity.RegistryPolicy {
	first := time.Date(2022, 1, 10, 0, 0, 0, 0, time.UTC)
	return &entity.RegistryPolicy{
		PolicyNumber:     number,
		OrganizationCode: "ORG01",
		OfficeCode:       "ABJ",
		EffectiveDate:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpiryDate:       time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		Premium:          100_000,
		Subscriber:       entity.Party{Name: "Kouassi Aya", Phone: "0700000000"},
		Insured:          entity.Party{Name: "Kouassi Aya"},
		Vehicle: entity.Vehicle{
			RegistrationNumber: registration,
			ChassisNumber:      "VF1" + registration,
			Brand:              "Toyota",
			Model:              "Corolla",
			TypeCode:           "VP",
			UsageCode:          "PRIVE",
			Seats:              5,
			FiscalPower:        7,
			FirstCirculation:   &first,
		},
	}
}

func newHarness(t *testing.T, mutate ...func(*Settings)) *harness {
	t.Helper()
	clock := newTestClock()
	h := &harness{
		repo: newFakeRepo(),
		registry: &fakeRegistry{policies: map[string]*entity.RegistryPolicy{
			"POL-1": validPolicy("POL-1", "AB-123-CD"),
			"POL-2": validPolicy("POL-2", "EF-456-GH"),
			"POL-3": validPolicy("POL-3", "IJ-789-KL"),
		}},
		issuer:  newFakeIssuer(clock),
		store:   newMemIdempotencyStore(clock),
		audit:   &recordingAuditor{},
		clock:   clock,
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	settings := Settings{CompanyCode: "C001", MaxRetries: 3, Freshness: time.Hour}
	for _, m := range mutate {
		m(&settings)
	}
	guard := NewIdempotencyGuard(h.store, config.IdempotencyConfig{}, h.metrics, nil).WithClock(clock.Now)
	h.orch = NewOrchestrator(h.repo, fakeTx{repo: h.repo}, h.registry, h.issuer, guard, h.audit, settings, h.metrics, nil,
		WithClock(clock.Now))
	return h
}

// rebuild otro orquestador sobre los mismos fakes, con otra fuente del Registry y opciones extra.
func (h *harness) rebuild(registry RegistrySource, opts ...Option) *Orchestrator {
	guard := NewIdempotencyGuard(h.store, config.IdempotencyConfig{}, h.metrics, nil).WithClock(h.clock.Now)
	opts = append([]Option{WithClock(h.clock.Now)}, opts...)
	return NewOrchestrator(h.repo, fakeTx{repo: h.repo}, registry, h.issuer, guard, h.audit,
		Settings{CompanyCode: "C001", MaxRetries: 3, Freshness: time.Hour}, h.metrics, nil, opts...)
}

func cmdFor(policy, registration string) CreateCommand {
	return CreateCommand{PolicyNumber: policy, RegistrationNumber: registration, AgentCode: "AG7"}
}
