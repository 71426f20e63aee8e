// Package configcache implementa el cache de dos niveles de la configuración
// del emisor. El nivel persistente (90 días) es una optimización sobre la
// fuente de verdad, nunca un reemplazo: toda entrada viva se reconcilia contra
// la SET antes de tratarse como vigente. El nivel de sesión vive en el manager
// de sesión y muere con ella.
package configcache

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tu-usuario/facturador-pro/internal/domain"
	"github.com/tu-usuario/facturador-pro/internal/domain/entity"
	"github.com/tu-usuario/facturador-pro/pkg/logger"
	"github.com/tu-usuario/facturador-pro/pkg/sifen"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facturador_config_cache_hits_total",
		Help: "Entradas de cache confirmadas por la reconciliación contra la SET",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facturador_config_cache_misses_total",
		Help: "Consultas sin entrada viva en el cache persistente",
	})
	cacheMismatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facturador_config_cache_mismatches_total",
		Help: "Discordancias cache vs SET resueltas a favor de la copia autoritativa",
	})
	cacheInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facturador_config_cache_invalidations_total",
		Help: "Invalidaciones explícitas del cache por disparador",
	}, []string{"trigger"})
)

// FetchFunc recupera la copia autoritativa desde la SET. Devuelve nil, nil si
// el emisor nunca configuró.
type FetchFunc func(ctx context.Context) (*entity.IssuerConfig, error)

// Cache nivel persistente del cache de configuración.
type Cache struct {
	store Store
	ttl   time.Duration
	log   *logger.Logger
	now   func() time.Time
}

// DefaultTTL vigencia por defecto de una entrada: 90 días desde la escritura.
const DefaultTTL = 90 * 24 * time.Hour

// New construye el cache sobre un medio durable.
func New(store Store, ttl time.Duration, log *logger.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl, log: log.Component("cache-config"), now: time.Now}
}

// WithClock reemplaza el reloj (tests de expiración).
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Get responde "¿cuál es la configuración vigente del RUC?" con a lo sumo un
// viaje de red. Una entrada viva NUNCA se devuelve a ciegas: se reconcilia
// contra fetch y la copia autoritativa siempre gana. Si fetch falla habiendo
// copia cacheada, el resultado es un error de recuperación: jamás se sirve
// una copia potencialmente vencida como si estuviera verificada.
// Devuelve nil, nil cuando ni el cache ni la SET conocen configuración.
func (c *Cache) Get(ctx context.Context, ruc string, fetch FetchFunc) (*entity.IssuerConfig, error) {
	entry, err := c.store.Load(ctx, ruc)
	if err != nil {
		return nil, domain.RetrievalError(domain.CodeCacheUnavailable,
			"no se pudo leer el cache de configuración", err).WithContext("ruc", ruc)
	}

	if entry != nil && entry.Expired(c.now()) {
		c.log.Debug().Str("ruc", ruc).Time("almacenada", entry.StoredAt).Msg("entrada vencida, se descarta")
		entry = nil
	}

	if entry == nil {
		cacheMisses.Inc()
		authoritative, err := fetch(ctx)
		if err != nil {
			return nil, c.classifyFetch(err, ruc)
		}
		if authoritative == nil {
			return nil, nil // miss real: el emisor nunca configuró
		}
		if err := c.Set(ctx, ruc, authoritative); err != nil {
			// La copia autoritativa está en mano; fallar la escritura del
			// cache solo degrada la próxima consulta.
			c.log.Warn().Err(err).Str("ruc", ruc).Msg("no se pudo escribir el cache tras el miss")
		}
		return authoritative, nil
	}

	// Reconciliación obligatoria: el cache es optimización, no autoridad.
	authoritative, err := fetch(ctx)
	if err != nil {
		return nil, c.classifyFetch(err, ruc)
	}
	if authoritative == nil {
		// La SET dice que ya no hay configuración: la autoridad gana.
		cacheMismatches.Inc()
		c.log.Warn().Str("ruc", ruc).Msg("la SET no reporta configuración; se evicta la copia local")
		if err := c.store.Delete(ctx, ruc); err != nil {
			c.log.Warn().Err(err).Str("ruc", ruc).Msg("no se pudo evictar la entrada")
		}
		return nil, nil
	}

	if !entry.Config.Equal(authoritative) {
		cacheMismatches.Inc()
		c.log.Warn().Str("ruc", ruc).Msg("discordancia cache vs SET; gana la copia autoritativa")
		if err := c.Set(ctx, ruc, authoritative); err != nil {
			c.log.Warn().Err(err).Str("ruc", ruc).Msg("no se pudo refrescar la entrada discordante")
		}
		return authoritative, nil
	}

	cacheHits.Inc()
	return authoritative, nil
}

// classifyFetch mapea el fallo del fetch autoritativo: los fallos de
// autenticación se propagan intactos (el orquestador invalida la sesión);
// el resto se presenta como fallo de recuperación de configuración.
func (c *Cache) classifyFetch(err error, ruc string) error {
	if e, ok := domain.AsError(err); ok {
		switch e.Kind {
		case domain.KindAuthentication, domain.KindConfiguration, domain.KindConfigRetrieval:
			return e
		}
	}
	return domain.RetrievalError(domain.CodeServiceUnreachable,
		"no se pudo reconciliar la configuración contra la SET", err).WithContext("ruc", ruc)
}

// Set almacena la configuración con marca temporal actual y la vigencia del
// cache, sobrescribiendo cualquier entrada previa.
func (c *Cache) Set(ctx context.Context, ruc string, cfg *entity.IssuerConfig) error {
	entry := Entry{Config: *cfg, StoredAt: c.now(), TTL: c.ttl}
	if err := c.store.Save(ctx, ruc, entry); err != nil {
		return domain.RetrievalError(domain.CodeCacheUnavailable,
			"no se pudo escribir el cache de configuración", err).WithContext("ruc", ruc)
	}
	return nil
}

// Invalidate evicta la entrada de inmediato, ignorando el TTL. El disparador
// se registra para auditoría y métricas; no altera el comportamiento más allá
// de la evicción. Invalidar dos veces seguidas equivale a una: la segunda es
// un no-op sobre un cache ya vacío.
func (c *Cache) Invalidate(ctx context.Context, ruc string, trigger sifen.InvalidationTrigger) error {
	if !sifen.ValidTriggers[trigger] {
		return domain.ConfigError(domain.CodeConstraintViolated,
			"disparador de invalidación desconocido: "+string(trigger), nil)
	}
	cacheInvalidations.WithLabelValues(string(trigger)).Inc()
	c.log.Info().Str("ruc", ruc).Str("disparador", string(trigger)).Msg("configuración invalidada")
	if err := c.store.Delete(ctx, ruc); err != nil {
		return domain.RetrievalError(domain.CodeCacheUnavailable,
			"no se pudo evictar la configuración", err).WithContext("ruc", ruc)
	}
	return nil
}
