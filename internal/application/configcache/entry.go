package configcache

import (
	"context"
	"time"

	"github.com/tu-usuario/facturador-pro/internal/domain/entity"
	"github.com/tu-usuario/facturador-pro/pkg/sifen"
)

// Entry envuelve la configuración persistida con su marca temporal, vigencia y
// los disparadores de invalidación registrados para auditoría.
// Una entrada está lógicamente ausente cuando now > StoredAt + TTL, aunque el
// medio durable todavía la conserve físicamente.
type Entry struct {
	Config   entity.IssuerConfig         `json:"config"`
	StoredAt time.Time                   `json:"stored_at"`
	TTL      time.Duration               `json:"ttl"`
	Triggers []sifen.InvalidationTrigger `json:"triggers,omitempty"`
}

// Expired true cuando la entrada ya no es lógicamente válida.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.StoredAt.Add(e.TTL))
}

// Store es el medio durable clave/valor del cache persistente. La clave es el
// RUC solo, sin componente de sesión. Cualquier medio durable sirve: Redis,
// una tabla PostgreSQL o un mapa en memoria para tests.
type Store interface {
	// Load devuelve la entrada o nil si no existe.
	Load(ctx context.Context, key string) (*Entry, error)
	Save(ctx context.Context, key string, e Entry) error
	Delete(ctx context.Context, key string) error
}
