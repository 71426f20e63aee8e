// Package facturador compone sesión, cache de configuración, canal de
// confirmación y WS SIFEN en el flujo completo configurar-y-emitir:
//
//	Validar → EnsureConfig → Confirmar → Enviar (con reintentos) → Resultado
//
// La configuración se re-verifica contra la SET en CADA emisión: frescura
// sobre rendimiento, el cache nunca es autoridad.
package facturador

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"github.com/tu-usuario/facturador-pro/internal/application/configcache"
	"github.com/tu-usuario/facturador-pro/internal/application/session"
	"github.com/tu-usuario/facturador-pro/internal/domain"
	"github.com/tu-usuario/facturador-pro/internal/domain/entity"
	domsifen "github.com/tu-usuario/facturador-pro/internal/domain/sifen"
	"github.com/tu-usuario/facturador-pro/pkg/logger"
	"github.com/tu-usuario/facturador-pro/pkg/sifen"
)

var (
	submitAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facturador_submit_attempts_total",
		Help: "Intentos de envío de factura al WS SIFEN, incluyendo reintentos",
	})
	emissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facturador_emissions_total",
		Help: "Emisiones terminadas por resultado",
	}, []string{"result"})
)

// Defaults de la política de reintento: 3 intentos en total con backoff
// exponencial 1s, 2s entre intentos.
const (
	defaultMaxAttempts = 3
	defaultBaseBackoff = time.Second
)

// SleepFunc espera d respetando la cancelación del contexto.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Orchestrator es la superficie pública del sistema: IssueInvoice e
// InvalidateConfiguration son los únicos dos puntos de entrada.
type Orchestrator struct {
	svc    InvoicingService
	gate   ConfirmationChannel
	cache  *configcache.Cache
	policy DocumentTypePolicy
	log    *logger.Logger

	maxAttempts int
	baseBackoff time.Duration
	sleep       SleepFunc

	// A lo sumo una operación configurar-o-consultar en vuelo por RUC;
	// distintos RUC no se bloquean entre sí.
	group singleflight.Group

	mu       sync.Mutex
	sessions map[string]*session.Manager
}

// Option configura el orquestador.
type Option func(*Orchestrator)

// WithPolicy reemplaza la política de selección de tipo de documento.
func WithPolicy(p DocumentTypePolicy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithRetry ajusta la política de reintento del envío.
func WithRetry(maxAttempts int, base time.Duration) Option {
	return func(o *Orchestrator) {
		o.maxAttempts = maxAttempts
		o.baseBackoff = base
	}
}

// WithSleep reemplaza la espera de backoff (tests).
func WithSleep(s SleepFunc) Option {
	return func(o *Orchestrator) { o.sleep = s }
}

// New construye el orquestador con sus colaboradores.
func New(svc InvoicingService, gate ConfirmationChannel, cache *configcache.Cache, log *logger.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		svc:         svc,
		gate:        gate,
		cache:       cache,
		policy:      DefaultDocumentTypePolicy,
		log:         log.Component("orquestador"),
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
		sleep:       defaultSleep,
		sessions:    make(map[string]*session.Manager),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// managerFor devuelve el manager de sesión del RUC, creándolo si no existe.
// Cada contribuyente tiene sesión, cache y configuración propios: no hay
// estado mutable compartido entre RUC distintos.
func (o *Orchestrator) managerFor(ruc string) *session.Manager {
	o.mu.Lock()
	defer o.mu.Unlock()
	mgr, ok := o.sessions[ruc]
	if !ok {
		mgr = session.NewManager(o.svc, o.log)
		o.sessions[ruc] = mgr
	}
	return mgr
}

// IssueInvoice emite una factura: valida la aritmética, asegura la
// configuración (siempre, aunque una llamada previa del mismo proceso ya haya
// configurado, porque la fuente autoritativa puede haber cambiado), exige
// confirmación y envía con reintentos. El resultado de la SET se devuelve
// intacto: el orquestador jamás muta ni re-deriva el CDC.
func (o *Orchestrator) IssueInvoice(ctx context.Context, cred entity.Credentials, req *entity.InvoiceRequest) (*entity.InvoiceResult, error) {
	mgr := o.managerFor(cred.RUC)

	// 1. Validación local: si la aritmética no concilia, se rechaza acá y la
	// red no se toca ni una vez.
	if err := domsifen.ValidateInvoice(req); err != nil {
		emissions.WithLabelValues("validation_error").Inc()
		return nil, err
	}

	// 2. Configuración lista (configure-if-needed, nunca se saltea).
	cfg, err := o.ensureConfig(ctx, cred, mgr)
	if err != nil {
		emissions.WithLabelValues("config_error").Inc()
		return nil, err
	}

	// 3. Confirmación con los números verificados, no los del caller.
	proposal := Proposal{
		Kind: ProposalInvoice,
		RUC:  cred.RUC,
		Invoice: &InvoiceProposal{
			Receiver:  req.Receiver,
			Date:      req.Date,
			ItemCount: len(req.Items),
			Summary:   domsifen.ReconciledSummary(req.Items),
		},
	}
	if err := o.confirm(ctx, proposal); err != nil {
		emissions.WithLabelValues("cancelled").Inc()
		return nil, err
	}

	// 4. Envío con reintento solo ante fallos de transporte transitorios.
	res, err := o.submitWithRetry(ctx, cred, mgr, req, cfg)
	if err != nil {
		emissions.WithLabelValues("submit_error").Inc()
		return nil, err
	}

	emissions.WithLabelValues("ok").Inc()
	o.log.Info().Str("ruc", cred.RUC).Str("cdc", res.CDC).Str("documento", res.DocumentID).Msg("factura emitida")
	return res, nil
}

// InvalidateConfiguration evicta la configuración cacheada del RUC por uno de
// los cinco disparadores nombrados. Idempotente.
func (o *Orchestrator) InvalidateConfiguration(ctx context.Context, ruc string, trigger sifen.InvalidationTrigger) error {
	return o.cache.Invalidate(ctx, ruc, trigger)
}

// ensureConfig es el flujo configurar-si-falta. El tramo consultar-cache-y-
// refrescar corre bajo singleflight por RUC: dos llamadas concurrentes del
// mismo contribuyente no observan el miss por duplicado ni escriben entradas
// en conflicto.
func (o *Orchestrator) ensureConfig(ctx context.Context, cred entity.Credentials, mgr *session.Manager) (*entity.IssuerConfig, error) {
	v, err, _ := o.group.Do(cred.RUC, func() (interface{}, error) {
		return o.configureOrFetch(ctx, cred, mgr)
	})
	if err != nil {
		return nil, err
	}
	return v.(*entity.IssuerConfig), nil
}

func (o *Orchestrator) configureOrFetch(ctx context.Context, cred entity.Credentials, mgr *session.Manager) (*entity.IssuerConfig, error) {
	fetch := func(ctx context.Context) (*entity.IssuerConfig, error) {
		sess, _, err := mgr.Ensure(ctx, cred)
		if err != nil {
			return nil, err
		}
		cfg, err := o.svc.FetchConfig(ctx, cred.RUC, sess.Token)
		if err != nil {
			e := domain.Classify(err, domain.KindConfigRetrieval, domain.CodeServiceUnreachable, "consulta de configuración")
			o.applySideEffects(ctx, e, cred.RUC, mgr)
			return nil, e
		}
		return cfg, nil
	}

	// CheckCache: en hit (post-reconciliación) la configuración está lista.
	cfg, err := o.cache.Get(ctx, cred.RUC, fetch)
	if err != nil {
		e := domain.Classify(err, domain.KindConfigRetrieval, domain.CodeServiceUnreachable, "cache de configuración")
		o.applySideEffects(ctx, e, cred.RUC, mgr)
		return nil, e
	}
	if cfg != nil {
		return cfg, nil
	}

	// Miss: autenticar, armar la propuesta desde el perfil, confirmar y
	// recién entonces persistir en la SET y escribir el cache.
	sess, profile, err := mgr.Ensure(ctx, cred)
	if err != nil {
		return nil, err
	}

	proposed := o.buildProposedConfig(cred.RUC, profile)
	if err := proposed.Validate(); err != nil {
		return nil, domain.ConfigError(domain.CodeConstraintViolated, err.Error(), nil)
	}

	if err := o.confirm(ctx, Proposal{Kind: ProposalConfiguration, RUC: cred.RUC, Config: proposed}); err != nil {
		// Rechazo: nada queda cacheado ni persistido.
		return nil, err
	}

	configID, err := o.svc.SaveConfig(ctx, cred.RUC, sess.Token, proposed)
	if err != nil {
		e := domain.Classify(err, domain.KindConfiguration, domain.CodeConstraintViolated, "alta de configuración")
		o.applySideEffects(ctx, e, cred.RUC, mgr)
		return nil, e
	}
	o.log.Info().Str("ruc", cred.RUC).Str("config_id", configID).Msg("configuración del emisor registrada en la SET")

	if err := o.cache.Set(ctx, cred.RUC, proposed); err != nil {
		// La SET ya tiene la configuración; la próxima consulta la
		// repoblará desde la copia autoritativa.
		o.log.Warn().Err(err).Str("ruc", cred.RUC).Msg("no se pudo escribir el cache tras el alta")
	}
	return proposed, nil
}

// buildProposedConfig deriva la configuración propuesta del perfil. El tipo
// de documento lo decide la política inyectada.
func (o *Orchestrator) buildProposedConfig(ruc string, profile *entity.Profile) *entity.IssuerConfig {
	return &entity.IssuerConfig{
		RUC:              ruc,
		Timbrado:         profile.Timbrado,
		Establishment:    entity.FixedEstablishment,
		DispatchPoint:    entity.FixedDispatchPoint,
		DocumentType:     o.policy(profile),
		EconomicActivity: profile.EconomicActivity,
		ValidFrom:        profile.TimbradoValidFrom,
		TaxpayerType:     profile.TaxpayerType,
		CSC:              profile.CSC,
		Modality: entity.ModalityFlags{
			Advanced: profile.TaxpayerType == sifen.TaxpayerPersonaJuridica,
		},
	}
}

// confirm invoca el canal de confirmación y traduce todo resultado no
// afirmativo a UserCancelled, sin efectos colaterales.
func (o *Orchestrator) confirm(ctx context.Context, p Proposal) error {
	ok, err := o.gate.Confirm(ctx, p)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Cancelled(domain.CodeConfirmationMissing,
				"confirmación cancelada por el caller: "+ctxErr.Error())
		}
		return domain.Cancelled(domain.CodeConfirmationMissing,
			fmt.Sprintf("el canal de confirmación no respondió: %v", err))
	}
	if !ok {
		o.log.Info().Str("ruc", p.RUC).Str("tipo", string(p.Kind)).Msg("propuesta rechazada por el usuario")
		return domain.Cancelled(domain.CodeConfirmationDenied,
			"propuesta de "+string(p.Kind)+" rechazada")
	}
	return nil
}

// submitWithRetry envía la factura con a lo sumo maxAttempts intentos.
// Solo los fallos de transporte reintentables disparan backoff (1s, 2s);
// todo otro kind se propaga de inmediato tras aplicar sus efectos
// colaterales. Agotados los reintentos, se propaga el error clasificado
// original sin alterar.
func (o *Orchestrator) submitWithRetry(ctx context.Context, cred entity.Credentials, mgr *session.Manager, req *entity.InvoiceRequest, cfg *entity.IssuerConfig) (*entity.InvoiceResult, error) {
	var lastErr *domain.Error
	backoff := o.baseBackoff

	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		sess, _, err := mgr.Ensure(ctx, cred)
		if err != nil {
			return nil, err
		}

		submitAttempts.Inc()
		res, err := o.svc.SubmitInvoice(ctx, sess.Token, req, cfg)
		if err == nil {
			return res, nil
		}

		e := domain.Classify(err, domain.KindTransport, domain.CodeUnavailable, "envío de factura").
			WithContext("ruc", cred.RUC).
			WithContext("intento", fmt.Sprintf("%d", attempt))
		o.applySideEffects(ctx, e, cred.RUC, mgr)

		if !e.Retryable() || attempt == o.maxAttempts {
			return nil, e
		}

		lastErr = e
		o.log.Warn().Str("ruc", cred.RUC).Int("intento", attempt).Dur("backoff", backoff).
			Str("codigo", string(e.Code)).Msg("fallo transitorio, se reintenta")
		if err := o.sleep(ctx, backoff); err != nil {
			// Cancelación durante el backoff: abortar ya, sin más intentos.
			return nil, lastErr.WithContext("cancelado", err.Error())
		}
		backoff *= 2
	}
	return nil, lastErr
}

// applySideEffects aplica los efectos colaterales de la taxonomía antes de
// propagar el mismo error: un fallo de autenticación invalida la sesión (el
// próximo llamado re-autentica); un fallo de configuración evicta la entrada
// cacheada (se la presume incorrecta). El error nunca se traga ni se
// reclasifica.
func (o *Orchestrator) applySideEffects(ctx context.Context, e *domain.Error, ruc string, mgr *session.Manager) {
	switch e.Kind {
	case domain.KindAuthentication:
		mgr.Invalidate()
	case domain.KindConfiguration:
		if err := o.cache.Invalidate(ctx, ruc, sifen.TriggerConfigChanged); err != nil {
			o.log.Warn().Err(err).Str("ruc", ruc).Msg("no se pudo evictar la configuración presumida incorrecta")
		}
	}
}
