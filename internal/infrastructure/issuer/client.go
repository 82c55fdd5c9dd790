// Package issuer cliente HTTP/JSON de la autoridad emisora de certificados (Issuer).
// Cada operación pasa por su propio circuit breaker.
package issuer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/entity"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/breaker"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/metrics"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/config"
	catalog "github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/issuer"
)

const (
	dependencyName  = "issuer"
	defaultTimeout  = 15 * time.Second
	maxResponseSize = 1 << 20
	apiKeyHeader    = "X-API-Key"
)

// Client implementa las cuatro operaciones del contrato del Issuer.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breakers   *breaker.Set
	metrics    *metrics.Metrics
}

// NewClient construye el cliente con un timeout por llamada.
func NewClient(cfg config.IssuerConfig, breakers *breaker.Set, m *metrics.Metrics) *Client {
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
		breakers: breakers,
		metrics:  m,
	}
}

// SubmitEdition envía el sobre de emisión. En éxito el resultado trae el número de solicitud.
func (c *Client) SubmitEdition(ctx context.Context, envelope *entity.IssuerEnvelope) (*entity.IssuerResult, error) {
	res, err := c.call(ctx, breaker.IssuerEdition, http.MethodPost, "/certificates/edition", envelope)
	if err != nil {
		return nil, err
	}
	if res.RequestNumber == "" {
		return nil, &domain.IssuerRejectedError{Code: catalog.StatusInternal, Message: "respuesta de edición sin número de solicitud"}
	}
	return res, nil
}

// GetStatus consulta el estado de una solicitud: emitido, transferido y enlaces.
func (c *Client) GetStatus(ctx context.Context, requestNumber string) (*entity.IssuerResult, error) {
	res, err := c.call(ctx, breaker.IssuerStatus, http.MethodGet, "/certificates/"+url.PathEscape(requestNumber)+"/status", nil)
	if err != nil {
		return nil, err
	}
	if res.RequestNumber == "" {
		res.RequestNumber = requestNumber
	}
	return res, nil
}

// UpdateStatus informa una anulación o suspensión (catalog.ActionCancel | catalog.ActionSuspend).
func (c *Client) UpdateStatus(ctx context.Context, requestNumber, action string) (*entity.IssuerResult, error) {
	if action != catalog.ActionCancel && action != catalog.ActionSuspend {
		return nil, fmt.Errorf("%w: acción %q no soportada por el Issuer", domain.ErrInvalidInput, action)
	}
	return c.call(ctx, breaker.IssuerUpdateStatus, http.MethodPost,
		"/certificates/"+url.PathEscape(requestNumber)+"/status", updateStatusRequest{Action: action})
}

// GetDownloadLinks pide enlaces nuevos (las variantes comparten la misma base).
func (c *Client) GetDownloadLinks(ctx context.Context, requestNumber string) (*entity.IssuerResult, error) {
	res, err := c.call(ctx, breaker.IssuerDownload, http.MethodGet, "/certificates/"+url.PathEscape(requestNumber)+"/download", nil)
	if err != nil {
		return nil, err
	}
	if len(res.Links) == 0 {
		return nil, &domain.IssuerRejectedError{Code: catalog.StatusInternal, Message: "respuesta de descarga sin enlace"}
	}
	return res, nil
}

// call ejecuta la operación detrás del breaker op. Un Issuer que responde con un código
// (aunque sea un rechazo) cuenta como éxito del breaker; transporte, timeout, 5xx, 429 y
// cuerpos sin código cuentan como fallo.
func (c *Client) call(ctx context.Context, op, method, path string, payload any) (*entity.IssuerResult, error) {
	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("serializar solicitud %s: %w", op, err)
		}
		body = b
	}

	var decoded *response
	start := time.Now()
	b := c.breakers.Get(op)
	err := b.Execute(ctx, func(ctx context.Context) error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("crear request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set(apiKeyHeader, c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("HTTP %s %s: %w", method, path, err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return fmt.Errorf("leer respuesta: %w", err)
		}
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("issuer respondió HTTP %d", resp.StatusCode)
		}

		var r response
		if err := json.Unmarshal(raw, &r); err != nil || r.Code == nil {
			if resp.StatusCode >= http.StatusBadRequest {
				// 4xx sin cuerpo del contrato (p. ej. proxy): respuesta válida pero no catalogada
				code := catalog.StatusInternal
				if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
					code = catalog.StatusAuthFailed
				}
				decoded = &response{Code: &code, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
				return nil
			}
			return fmt.Errorf("respuesta sin código de estado (HTTP %d)", resp.StatusCode)
		}
		decoded = &r
		return nil
	})
	c.observe(op, start, err, decoded)

	if err != nil {
		if errors.Is(err, domain.ErrBreakerOpen) {
			return nil, err
		}
		_, operation, _ := strings.Cut(op, ".")
		return nil, &domain.DependencyError{Dependency: dependencyName, Operation: operation, Err: err}
	}

	res := decoded.toResult()
	if !res.Success() {
		return nil, rejection(res)
	}
	return res, nil
}

func rejection(res *entity.IssuerResult) error {
	msg := catalog.StatusMessage(res.StatusCode)
	if res.Message != "" && res.Message != msg {
		msg += " (" + res.Message + ")"
	}
	return &domain.IssuerRejectedError{Code: res.StatusCode, Message: msg}
}

func (c *Client) observe(op string, start time.Time, err error, decoded *response) {
	result := "ok"
	switch {
	case errors.Is(err, domain.ErrBreakerOpen):
		result = "breaker_open"
		c.metrics.IncBreakerRejected(op)
	case err != nil:
		result = "error"
	case decoded != nil && decoded.Code != nil && *decoded.Code != catalog.StatusOK:
		result = "rejected"
	}
	c.metrics.ObserveDependency(op, result, time.Since(start))
}
