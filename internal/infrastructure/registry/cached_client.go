package registry

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/entity"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/logger"
)

// Source operaciones de lectura del Registry.
type Source interface {
	Search(ctx context.Context, criteria entity.RegistrySearchCriteria) (*entity.RegistryPage, error)
	GetPolicy(ctx context.Context, policyNumber string) (*entity.RegistryPolicy, error)
}

var (
	_ Source = (*Client)(nil)
	_ Source = (*CachedClient)(nil)
)

// CachedClient decorador read-through: guarda las pólizas encontradas por GetPolicy.
// Ni las búsquedas ni las pólizas inexistentes se cachean.
type CachedClient struct {
	next  Source
	cache *gocache.Cache
	ttl   time.Duration
	log   *logger.Logger
}

// NewCachedClient ttl <= 0 desactiva la caché (devuelve un decorador transparente).
func NewCachedClient(next Source, ttl time.Duration, log *logger.Logger) *CachedClient {
	if log == nil {
		log = logger.Nop()
	}
	c := &CachedClient{next: next, ttl: ttl, log: log}
	if ttl > 0 {
		c.cache = gocache.New(ttl, 2*ttl)
	}
	return c
}

func (c *CachedClient) Search(ctx context.Context, criteria entity.RegistrySearchCriteria) (*entity.RegistryPage, error) {
	return c.next.Search(ctx, criteria)
}

func (c *CachedClient) GetPolicy(ctx context.Context, policyNumber string) (*entity.RegistryPolicy, error) {
	if c.cache == nil {
		return c.next.GetPolicy(ctx, policyNumber)
	}
	key := cacheKey(policyNumber)
	if v, found := c.cache.Get(key); found {
		if p, ok := v.(entity.RegistryPolicy); ok {
			c.log.Debug().Str("policy_number", policyNumber).Msg("registry: cache hit")
			return &p, nil
		}
	}

	p, err := c.next.GetPolicy(ctx, policyNumber)
	if err != nil || p == nil {
		return p, err
	}
	c.cache.Set(key, *p, c.ttl)
	return p, nil
}

// Invalidate descarta la póliza para forzar una lectura fresca. El orquestador la llama antes de
// releer un snapshot vencido.
func (c *CachedClient) Invalidate(policyNumber string) {
	if c.cache != nil {
		c.cache.Delete(cacheKey(policyNumber))
	}
}

func cacheKey(policyNumber string) string {
	return "policy:" + strings.ToUpper(strings.TrimSpace(policyNumber))
}
