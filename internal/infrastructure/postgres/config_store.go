package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tu-usuario/facturador-pro/internal/application/configcache"
)

// Asegura que ConfigStore implementa configcache.Store.
var _ configcache.Store = (*ConfigStore)(nil)

// ConfigStore medio durable del cache de configuración sobre PostgreSQL.
// Una fila JSONB por RUC; la expiración lógica la decide el cache, acá solo
// se guarda y se devuelve la entrada completa.
type ConfigStore struct {
	pool *pgxpool.Pool
}

// NewConfigStore construye el adaptador de persistencia del cache.
func NewConfigStore(pool *pgxpool.Pool) *ConfigStore {
	return &ConfigStore{pool: pool}
}

// EnsureSchema crea la tabla si no existe. Se invoca una vez al arrancar.
func (s *ConfigStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS configuracion_emisor (
			ruc            TEXT PRIMARY KEY,
			entrada        JSONB NOT NULL,
			actualizado_en TIMESTAMPTZ NOT NULL DEFAULT now()
		)`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("crear tabla configuracion_emisor: %w", err)
	}
	return nil
}

// Load devuelve nil, nil cuando el RUC no tiene entrada.
func (s *ConfigStore) Load(ctx context.Context, key string) (*configcache.Entry, error) {
	query := `SELECT entrada FROM configuracion_emisor WHERE ruc = $1`
	var raw []byte
	err := s.pool.QueryRow(ctx, query, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("leer configuracion_emisor: %w", err)
	}
	var entry configcache.Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("deserializar entrada de %s: %w", key, err)
	}
	return &entry, nil
}

// Save inserta o reemplaza la entrada del RUC.
func (s *ConfigStore) Save(ctx context.Context, key string, entry configcache.Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("serializar entrada de %s: %w", key, err)
	}
	query := `
		INSERT INTO configuracion_emisor (ruc, entrada, actualizado_en)
		VALUES ($1, $2, now())
		ON CONFLICT (ruc) DO UPDATE SET entrada = EXCLUDED.entrada, actualizado_en = now()`
	if _, err := s.pool.Exec(ctx, query, key, raw); err != nil {
		return fmt.Errorf("guardar configuracion_emisor: %w", err)
	}
	return nil
}

// Delete es idempotente: borrar un RUC sin entrada no es error.
func (s *ConfigStore) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM configuracion_emisor WHERE ruc = $1`, key); err != nil {
		return fmt.Errorf("borrar configuracion_emisor: %w", err)
	}
	return nil
}
