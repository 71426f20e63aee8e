// Package cache provee los medios durables del cache de configuración del
// emisor: Redis para despliegues distribuidos, Postgres cuando ya hay base,
// memoria para desarrollo y tests.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tu-usuario/facturador-pro/internal/application/configcache"
)

const redisKeyPrefix = "facturador:config:"

// RedisStore implementa configcache.Store sobre Redis. Apto para despliegues
// con más de una instancia: todas comparten las mismas entradas.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

var _ configcache.Store = (*RedisStore)(nil)

// NewRedisStore conecta a Redis y verifica la conexión antes de devolver.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: conectar a redis: %w", err)
	}

	return &RedisStore{client: client, keyPrefix: redisKeyPrefix}, nil
}

// NewRedisStoreWithClient reusa un cliente existente (tests, cliente compartido).
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = redisKeyPrefix
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

// Load devuelve nil, nil cuando la clave no existe.
func (s *RedisStore) Load(ctx context.Context, key string) (*configcache.Entry, error) {
	raw, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: leer entrada de redis: %w", err)
	}
	var entry configcache.Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("cache: deserializar entrada: %w", err)
	}
	return &entry, nil
}

// Save escribe la entrada con el TTL como expiración de Redis: el servidor
// descarta solo lo que ya venció también lógicamente.
func (s *RedisStore) Save(ctx context.Context, key string, entry configcache.Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: serializar entrada: %w", err)
	}
	if err := s.client.Set(ctx, s.keyPrefix+key, raw, entry.TTL).Err(); err != nil {
		return fmt.Errorf("cache: escribir entrada en redis: %w", err)
	}
	return nil
}

// Delete es idempotente: borrar una clave inexistente no es error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("cache: borrar entrada de redis: %w", err)
	}
	return nil
}

// Close cierra el cliente Redis.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
