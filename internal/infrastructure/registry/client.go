// Package registry cliente HTTP/JSON de la base de pólizas (Registry).
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/entity"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/breaker"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/metrics"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/config"
)

const (
	dependencyName  = "registry"
	defaultTimeout  = 10 * time.Second
	maxResponseSize = 1 << 20
	defaultLimit    = 20
	maxLimit        = 100
)

// Client implementa las consultas al Registry detrás del breaker registry.search.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *breaker.Breaker
	metrics    *metrics.Metrics
}

// NewClient construye el cliente. breakers provee la instancia registry.search.
func NewClient(cfg config.RegistryConfig, breakers *breaker.Set, m *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: breakers.Get(breaker.RegistrySearch),
		metrics: m,
	}
}

// Search consulta pólizas por número, matrícula, chasis u organización/oficina.
func (c *Client) Search(ctx context.Context, criteria entity.RegistrySearchCriteria) (*entity.RegistryPage, error) {
	var wire wirePage
	found, err := c.get(ctx, "/policies", searchQuery(criteria), &wire)
	if err != nil {
		return nil, err
	}
	if !found {
		return &entity.RegistryPage{Items: []entity.RegistryPolicy{}, Limit: criteria.Limit, Offset: criteria.Offset}, nil
	}
	page, err := wire.toEntity()
	if err != nil {
		return nil, &domain.DependencyError{Dependency: dependencyName, Operation: "search", Err: err}
	}
	return page, nil
}

// GetPolicy devuelve la póliza con ese número o (nil, nil) si el Registry no la conoce.
func (c *Client) GetPolicy(ctx context.Context, policyNumber string) (*entity.RegistryPolicy, error) {
	page, err := c.Search(ctx, entity.RegistrySearchCriteria{PolicyNumber: policyNumber, Limit: 1})
	if err != nil {
		return nil, err
	}
	for i := range page.Items {
		if strings.EqualFold(strings.TrimSpace(page.Items[i].PolicyNumber), strings.TrimSpace(policyNumber)) {
			p := page.Items[i]
			return &p, nil
		}
	}
	return nil, nil
}

func searchQuery(cr entity.RegistrySearchCriteria) url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			q.Set(k, v)
		}
	}
	set("policy_number", cr.PolicyNumber)
	set("registration_number", cr.RegistrationNumber)
	set("chassis_number", cr.ChassisNumber)
	set("organization_code", cr.OrganizationCode)
	set("office_code", cr.OfficeCode)

	limit := cr.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := cr.Offset
	if offset < 0 {
		offset = 0
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	return q
}

// get ejecuta la petición a través del breaker. Devuelve found=false ante 404.
// Solo transporte, timeout, 5xx y respuestas ilegibles cuentan como fallo del breaker;
// un 4xx es una respuesta válida de un Registry disponible.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) (found bool, err error) {
	var rejected error
	start := time.Now()

	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
		if err != nil {
			return fmt.Errorf("crear request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("HTTP GET %s: %w", path, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return fmt.Errorf("leer respuesta: %w", err)
		}

		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("registry respondió HTTP %d: %s", resp.StatusCode, truncate(body))
		case resp.StatusCode == http.StatusNotFound:
			found = false
			return nil
		case resp.StatusCode >= http.StatusBadRequest:
			rejected = fmt.Errorf("%w: registry respondió HTTP %d: %s", domain.ErrInvalidInput, resp.StatusCode, truncate(body))
			return nil
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decodificar respuesta: %w", err)
		}
		found = true
		return nil
	})
	c.observe(start, err, rejected)

	if err != nil {
		if errors.Is(err, domain.ErrBreakerOpen) {
			return false, err
		}
		return false, &domain.DependencyError{Dependency: dependencyName, Operation: "search", Err: err}
	}
	if rejected != nil {
		return false, rejected
	}
	return found, nil
}

func (c *Client) observe(start time.Time, err, rejected error) {
	result := "ok"
	switch {
	case errors.Is(err, domain.ErrBreakerOpen):
		result = "breaker_open"
		c.metrics.IncBreakerRejected(breaker.RegistrySearch)
	case err != nil:
		result = "error"
	case rejected != nil:
		result = "rejected"
	}
	c.metrics.ObserveDependency(breaker.RegistrySearch, result, time.Since(start))
}

func truncate(b []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "…"
	}
	return s
}
