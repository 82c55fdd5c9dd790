package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/entity"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/repository"
)

var _ repository.IdempotencyStore = (*IdempotencyStore)(nil)

const (
	keyPrefix   = "idem:"
	maxCASTries = 5
)

// IdempotencyStore registros de idempotencia como JSON con TTL nativo.
// El marcador IN_FLIGHT vive lo que dura su lease; el registro COMPLETE, lo que dura el TTL del ámbito.
type IdempotencyStore struct {
	client *redis.Client
	now    func() time.Time
}

// StoreOption configura el almacén.
type StoreOption func(*IdempotencyStore)

// WithClock reemplaza time.Now (tests).
func WithClock(now func() time.Time) StoreOption {
	return func(s *IdempotencyStore) { s.now = now }
}

// NewIdempotencyStore construye el almacén sobre un cliente go-redis.
func NewIdempotencyStore(client *redis.Client, opts ...StoreOption) *IdempotencyStore {
	s := &IdempotencyStore{client: client, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Reserve SET NX con el lease como TTL; si la clave existe, CAS con WATCH para tomar un
// registro que ya no está vivo.
func (s *IdempotencyStore) Reserve(ctx context.Context, rec *entity.IdempotencyRecord) (*entity.IdempotencyRecord, bool, error) {
	rec.Status = entity.IdempotencyInFlight
	rec.UpdatedAt = rec.CreatedAt
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, false, fmt.Errorf("serializar registro: %w", err)
	}
	ttl := ttlUntil(rec.LockedUntil, rec.CreatedAt)
	k := keyPrefix + rec.Key

	ok, err := s.client.SetNX(ctx, k, payload, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis SETNX %s: %w", k, err)
	}
	if ok {
		return nil, true, nil
	}

	var existing *entity.IdempotencyRecord
	var reserved bool
	err = s.cas(ctx, k, func(tx *redis.Tx, current *entity.IdempotencyRecord) error {
		existing, reserved = nil, false
		if current != nil && current.IsLive(rec.CreatedAt) {
			existing = current
			return nil
		}
		_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, k, payload, ttl)
			return nil
		})
		reserved = err == nil
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return existing, reserved, nil
}

// Complete pasa el registro a COMPLETE con el resultado, solo si la huella coincide.
func (s *IdempotencyStore) Complete(ctx context.Context, key, fingerprint string, outcome []byte, expiresAt time.Time) error {
	k := keyPrefix + key
	return s.cas(ctx, k, func(tx *redis.Tx, current *entity.IdempotencyRecord) error {
		if current == nil || current.Fingerprint != fingerprint {
			return fmt.Errorf("complete idempotency key: %s no existe o cambió de huella", key)
		}
		now := s.now()
		current.Status = entity.IdempotencyComplete
		current.Outcome = outcome
		current.ExpiresAt = expiresAt
		current.UpdatedAt = now
		payload, err := json.Marshal(current)
		if err != nil {
			return fmt.Errorf("serializar registro: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, k, payload, ttlUntil(expiresAt, now))
			return nil
		})
		return err
	})
}

// Release borra el marcador IN_FLIGHT de esa huella.
func (s *IdempotencyStore) Release(ctx context.Context, key, fingerprint string) error {
	k := keyPrefix + key
	return s.cas(ctx, k, func(tx *redis.Tx, current *entity.IdempotencyRecord) error {
		if current == nil || current.Fingerprint != fingerprint || current.Status != entity.IdempotencyInFlight {
			return nil
		}
		_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, k)
			return nil
		})
		return err
	})
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (*entity.IdempotencyRecord, error) {
	raw, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET: %w", err)
	}
	return decode(raw)
}

// PurgeExpired Redis expira las claves solo.
func (s *IdempotencyStore) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// cas ejecuta fn bajo WATCH k y reintenta si otra escritura ganó la carrera.
func (s *IdempotencyStore) cas(ctx context.Context, k string, fn func(tx *redis.Tx, current *entity.IdempotencyRecord) error) error {
	for i := 0; i < maxCASTries; i++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, k).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return fmt.Errorf("redis GET %s: %w", k, err)
			}
			var current *entity.IdempotencyRecord
			if err == nil {
				if current, err = decode(raw); err != nil {
					return err
				}
			}
			return fn(tx, current)
		}, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis CAS %s: demasiada contención", k)
}

func decode(raw []byte) (*entity.IdempotencyRecord, error) {
	var rec entity.IdempotencyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decodificar registro de idempotencia: %w", err)
	}
	return &rec, nil
}

// ttlUntil mínimo de un segundo: un TTL 0 en SET significa "sin expiración".
func ttlUntil(deadline, now time.Time) time.Duration {
	if d := deadline.Sub(now); d >= time.Second {
		return d
	}
	return time.Second
}
