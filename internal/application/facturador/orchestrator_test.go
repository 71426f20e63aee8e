package facturador_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-usuario/facturador-pro/internal/application/configcache"
	"github.com/tu-usuario/facturador-pro/internal/application/facturador"
	"github.com/tu-usuario/facturador-pro/internal/domain"
	"github.com/tu-usuario/facturador-pro/internal/domain/entity"
	"github.com/tu-usuario/facturador-pro/pkg/logger"
	"github.com/tu-usuario/facturador-pro/pkg/sifen"
)

// ──────────────────────────────────────────────────────────────────────────────
// Dobles de prueba
// ──────────────────────────────────────────────────────────────────────────────

// fakeWS implementa facturador.InvoicingService contando cada llamada.
type fakeWS struct {
	mu sync.Mutex

	logins       int
	fetchConfigs int
	saveConfigs  int
	submits      int

	loginErr   error
	fetchErr   error
	saveErr    error
	submitErrs []error // un error por intento; agotada la lista, éxito
	remoteCfg  *entity.IssuerConfig
	taxpayer   string
}

func (w *fakeWS) Login(ctx context.Context, cred entity.Credentials) (*entity.Session, *entity.Profile, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logins++
	if w.loginErr != nil {
		return nil, nil, w.loginErr
	}
	tipo := w.taxpayer
	if tipo == "" {
		tipo = sifen.TaxpayerPersonaFisica
	}
	return &entity.Session{Token: "tok-abc", CreatedAt: time.Now()}, &entity.Profile{
		RUC:               cred.RUC,
		BusinessName:      "Emisor de Prueba S.R.L.",
		Status:            entity.TaxpayerStatusActive,
		EconomicActivity:  entity.EconomicActivity{Code: "62010", Description: "Desarrollo de software"},
		TaxpayerType:      tipo,
		ApprovedAt:        time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		CSC:               "CSC-0001",
		Timbrado:          "12345678",
		TimbradoValidFrom: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (w *fakeWS) FetchConfig(ctx context.Context, ruc, token string) (*entity.IssuerConfig, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fetchConfigs++
	if w.fetchErr != nil {
		return nil, w.fetchErr
	}
	return w.remoteCfg, nil
}

func (w *fakeWS) SaveConfig(ctx context.Context, ruc, token string, cfg *entity.IssuerConfig) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.saveConfigs++
	if w.saveErr != nil {
		return "", w.saveErr
	}
	copia := *cfg
	w.remoteCfg = &copia
	return "cfg-001", nil
}

func (w *fakeWS) SubmitInvoice(ctx context.Context, token string, req *entity.InvoiceRequest, cfg *entity.IssuerConfig) (*entity.InvoiceResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.submits++
	if len(w.submitErrs) > 0 {
		err := w.submitErrs[0]
		w.submitErrs = w.submitErrs[1:]
		return nil, err
	}
	return &entity.InvoiceResult{
		DocumentID: "001-001-0000001",
		CDC:        "01800123456001001000000120260831123456789012345",
		IssuedAt:   time.Now(),
	}, nil
}

// fakeGate canal de confirmación programable.
type fakeGate struct {
	mu        sync.Mutex
	proposals []facturador.Proposal
	answer    bool
	err       error
}

func (g *fakeGate) Confirm(ctx context.Context, p facturador.Proposal) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.proposals = append(g.proposals, p)
	if g.err != nil {
		return false, g.err
	}
	return g.answer, nil
}

func (g *fakeGate) kinds() []facturador.ProposalKind {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]facturador.ProposalKind, len(g.proposals))
	for i, p := range g.proposals {
		out[i] = p.Kind
	}
	return out
}

// memStore store en memoria para el cache persistente.
type memStore struct {
	mu      sync.Mutex
	entries map[string]configcache.Entry
}

func newMemStore() *memStore { return &memStore{entries: map[string]configcache.Entry{}} }

func (s *memStore) Load(_ context.Context, key string) (*configcache.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *memStore) Save(_ context.Context, key string, e configcache.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// noSleep backoff instantáneo que registra las esperas pedidas.
type noSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (n *noSleep) sleep(ctx context.Context, d time.Duration) error {
	n.mu.Lock()
	n.delays = append(n.delays, d)
	n.mu.Unlock()
	return ctx.Err()
}

// ──────────────────────────────────────────────────────────────────────────────
// Fixtures
// ──────────────────────────────────────────────────────────────────────────────

func credenciales() entity.Credentials {
	return entity.Credentials{RUC: "5452", AccessKey: "clave-secreta", EmissionMode: "ekuatia-i"}
}

// facturaDeUnItem cantidad 1, precio 500000, IVA 0, resumen {500000, 0, 500000}.
func facturaDeUnItem() *entity.InvoiceRequest {
	return &entity.InvoiceRequest{
		Receiver: entity.Receiver{RUC: "80012345-0", BusinessName: "Cliente S.A."},
		Date:     time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC),
		Items: []entity.InvoiceItem{{
			Code:        "SRV-01",
			Description: "Consultoría",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   decimal.NewFromInt(500000),
			TaxAmount:   decimal.Zero,
			LineTotal:   decimal.NewFromInt(500000),
		}},
		Summary: entity.InvoiceSummary{
			Subtotal:   decimal.NewFromInt(500000),
			TaxTotal:   decimal.Zero,
			GrandTotal: decimal.NewFromInt(500000),
		},
	}
}

type armado struct {
	orq   *facturador.Orchestrator
	ws    *fakeWS
	gate  *fakeGate
	store *memStore
	sleep *noSleep
}

func armar(t *testing.T, opts ...facturador.Option) *armado {
	t.Helper()
	ws := &fakeWS{}
	gate := &fakeGate{answer: true}
	store := newMemStore()
	slp := &noSleep{}
	cache := configcache.New(store, 0, logger.Nop())
	todas := append([]facturador.Option{facturador.WithSleep(slp.sleep)}, opts...)
	return &armado{
		orq:   facturador.New(ws, gate, cache, logger.Nop(), todas...),
		ws:    ws,
		gate:  gate,
		store: store,
		sleep: slp,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Escenarios
// ──────────────────────────────────────────────────────────────────────────────

func TestIssueInvoice_CaminoFeliz_SinConfiguracionPrevia(t *testing.T) {
	a := armar(t)

	res, err := a.orq.IssueInvoice(context.Background(), credenciales(), facturaDeUnItem())

	require.NoError(t, err)
	assert.NotEmpty(t, res.DocumentID)
	assert.NotEmpty(t, res.CDC)

	assert.Equal(t, 1, a.ws.logins, "autenticación única")
	assert.Equal(t, 1, a.ws.saveConfigs, "la configuración se persiste tras la confirmación")
	assert.Equal(t, 1, a.ws.submits)
	assert.Equal(t,
		[]facturador.ProposalKind{facturador.ProposalConfiguration, facturador.ProposalInvoice},
		a.gate.kinds(), "se confirma primero la configuración y después la factura")
	assert.Contains(t, a.store.entries, "5452", "write-through al cache tras el alta")
}

func TestIssueInvoice_SegundaLlamada_HitDeCache(t *testing.T) {
	a := armar(t)

	_, err := a.orq.IssueInvoice(context.Background(), credenciales(), facturaDeUnItem())
	require.NoError(t, err)
	_, err = a.orq.IssueInvoice(context.Background(), credenciales(), facturaDeUnItem())
	require.NoError(t, err)

	assert.Equal(t, 1, a.ws.logins, "a lo sumo un par authenticate/perfil entre ambas llamadas")
	assert.Equal(t, 1, a.ws.saveConfigs, "el hit no vuelve a persistir configuración")
	assert.Equal(t, 2, a.ws.fetchConfigs, "la reconciliación contra la SET ocurre en CADA llamada")
	assert.Equal(t, 2, a.ws.submits)
	// segunda llamada: solo la confirmación de la factura
	assert.Equal(t, []facturador.ProposalKind{
		facturador.ProposalConfiguration, facturador.ProposalInvoice, facturador.ProposalInvoice,
	}, a.gate.kinds())
}

func TestIssueInvoice_ConfiguracionRemotaExistente_NoPersisteDeNuevo(t *testing.T) {
	a := armar(t)
	// la SET ya conoce la configuración: el primer miss se resuelve por fetch
	a.ws.remoteCfg = &entity.IssuerConfig{
		RUC: "5452", Timbrado: "12345678", Establishment: 1, DispatchPoint: 1,
		DocumentType: sifen.DocTypeFactura, TaxpayerType: sifen.TaxpayerPersonaFisica, CSC: "CSC-0001",
	}

	_, err := a.orq.IssueInvoice(context.Background(), credenciales(), facturaDeUnItem())

	require.NoError(t, err)
	assert.Zero(t, a.ws.saveConfigs, "con configuración vigente en la SET no hay alta nueva")
	assert.Equal(t, []facturador.ProposalKind{facturador.ProposalInvoice}, a.gate.kinds(),
		"solo se confirma la factura")
}

func TestIssueInvoice_AritmeticaQueNoConcilia_CeroLlamadasRemotas(t *testing.T) {
	a := armar(t)
	req := facturaDeUnItem()
	req.Summary.GrandTotal = decimal.NewFromInt(999999)

	_, err := a.orq.IssueInvoice(context.Background(), credenciales(), req)

	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindInvoiceValidation))
	assert.Zero(t, a.ws.logins)
	assert.Zero(t, a.ws.submits)
	assert.Empty(t, a.gate.proposals, "sin conciliación no hay nada que confirmar")
}

func TestIssueInvoice_EstablecimientoDos_RechazoSinConfirmacion(t *testing.T) {
	a := armar(t)
	req := facturaDeUnItem()
	req.Establishment = 2

	_, err := a.orq.IssueInvoice(context.Background(), credenciales(), req)

	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindInvoiceValidation))
	assert.Empty(t, a.gate.proposals, "no se pide confirmación")
	assert.Zero(t, a.ws.submits, "no se intenta el envío")
}

func TestIssueInvoice_RUCInactivo(t *testing.T) {
	a := armar(t)
	a.ws.loginErr = domain.AuthError(domain.CodeRUCInactive, "RUC 5452 con estado INACTIVO", nil)

	_, err := a.orq.IssueInvoice(context.Background(), credenciales(), facturaDeUnItem())

	require.Error(t, err)
	e, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindAuthentication, e.Kind)
	assert.Equal(t, domain.CodeRUCInactive, e.Code)
	assert.Zero(t, a.ws.saveConfigs, "no se llega a configurar")
	assert.Zero(t, a.ws.submits)
	assert.NotContains(t, a.store.entries, "5452", "nada queda cacheado")
}

func TestIssueInvoice_ConfirmacionRechazada_NoDejaRastro(t *testing.T) {
	a := armar(t)
	a.gate.answer = false

	_, err := a.orq.IssueInvoice(context.Background(), credenciales(), facturaDeUnItem())

	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindUserCancelled))
	assert.Zero(t, a.ws.saveConfigs, "el rechazo no persiste configuración")
	assert.Zero(t, a.ws.submits, "el rechazo no envía nada")
	assert.NotContains(t, a.store.entries, "5452", "el rechazo no deja configuración cacheada")
}

func TestIssueInvoice_RechazoSoloDeLaFactura(t *testing.T) {
	// aprobar la configuración y rechazar la factura
	gateSelectivo := confirmFunc(func(ctx context.Context, p facturador.Proposal) (bool, error) {
		return p.Kind == facturador.ProposalConfiguration, nil
	})
	a := armarConGate(t, gateSelectivo)

	_, err := a.orq.IssueInvoice(context.Background(), credenciales(), facturaDeUnItem())

	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindUserCancelled))
	assert.Equal(t, 1, a.ws.saveConfigs, "la configuración aprobada sí se persistió")
	assert.Zero(t, a.ws.submits, "la factura rechazada jamás se envía")
}

func TestIssueInvoice_PropuestaLlevaResumenReconciliado(t *testing.T) {
	a := armar(t)

	_, err := a.orq.IssueInvoice(context.Background(), credenciales(), facturaDeUnItem())
	require.NoError(t, err)

	var factura *facturador.Proposal
	for i := range a.gate.proposals {
		if a.gate.proposals[i].Kind == facturador.ProposalInvoice {
			factura = &a.gate.proposals[i]
		}
	}
	require.NotNil(t, factura)
	require.NotNil(t, factura.Invoice)
	assert.True(t, factura.Invoice.Summary.GrandTotal.Equal(decimal.NewFromInt(500000)),
		"el total confirmado se recalcula desde los ítems")
	assert.Equal(t, 1, factura.Invoice.ItemCount)
}

func TestIssueInvoice_ReintentoAgotado_TresIntentosConBackoff(t *testing.T) {
	a := armar(t)
	transitorio := domain.TransportError(domain.CodeUnavailable, "503 del WS SIFEN", nil)
	a.ws.submitErrs = []error{transitorio, transitorio, transitorio, transitorio}

	_, err := a.orq.IssueInvoice(context.Background(), credenciales(), facturaDeUnItem())

	require.Error(t, err)
	e, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindTransport, e.Kind, "agotados los reintentos se propaga el error original")
	assert.Equal(t, 3, a.ws.submits, "exactamente 3 intentos en total")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, a.sleep.delays,
		"backoff exponencial 1s y luego 2s")
}

func TestIssueInvoice_ReintentoConExito(t *testing.T) {
	a := armar(t)
	a.ws.submitErrs = []error{
		domain.TransportError(domain.CodeTimeout, "timeout", nil),
	}

	res, err := a.orq.IssueInvoice(context.Background(), credenciales(), facturaDeUnItem())

	require.NoError(t, err)
	assert.NotEmpty(t, res.CDC)
	assert.Equal(t, 2, a.ws.submits)
}

func TestIssueInvoice_FalloTerminalNoSeReintenta(t *testing.T) {
	a := armar(t)
	a.ws.submitErrs = []error{
		domain.ValidationError(domain.CodeDuplicateDocument, "documento duplicado", nil),
	}

	_, err := a.orq.IssueInvoice(context.Background(), credenciales(), facturaDeUnItem())

	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindInvoiceValidation))
	assert.Equal(t, 1, a.ws.submits, "los fallos terminales se propagan sin reintento")
	assert.Empty(t, a.sleep.delays)
}

func TestIssueInvoice_TokenRechazadoInvalidaSesion(t *testing.T) {
	a := armar(t)
	a.ws.submitErrs = []error{
		domain.AuthError(domain.CodeInvalidCredentials, "token rechazado por el WS", nil),
	}

	_, err := a.orq.IssueInvoice(context.Background(), credenciales(), facturaDeUnItem())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindAuthentication))

	// la siguiente emisión debe re-autenticar en lugar de reusar el token muerto
	_, err = a.orq.IssueInvoice(context.Background(), credenciales(), facturaDeUnItem())
	require.NoError(t, err)
	assert.Equal(t, 2, a.ws.logins)
}

func TestIssueInvoice_FalloDeConfiguracionEvictaElCache(t *testing.T) {
	a := armar(t)
	a.ws.submitErrs = []error{
		domain.ConfigError(domain.CodeInvalidCSC, "CSC rechazado por la SET", nil),
	}

	_, err := a.orq.IssueInvoice(context.Background(), credenciales(), facturaDeUnItem())

	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConfiguration))
	assert.NotContains(t, a.store.entries, "5452",
		"la configuración presumida incorrecta se evicta para resolución manual")
}

func TestInvalidateConfiguration_Idempotente(t *testing.T) {
	a := armar(t)
	_, err := a.orq.IssueInvoice(context.Background(), credenciales(), facturaDeUnItem())
	require.NoError(t, err)

	require.NoError(t, a.orq.InvalidateConfiguration(context.Background(), "5452", sifen.TriggerTimbradoExpired))
	require.NoError(t, a.orq.InvalidateConfiguration(context.Background(), "5452", sifen.TriggerTimbradoExpired))
	assert.NotContains(t, a.store.entries, "5452")
}

func TestIssueInvoice_CancelacionDuranteElBackoff(t *testing.T) {
	ws := &fakeWS{}
	gate := &fakeGate{answer: true}
	cache := configcache.New(newMemStore(), 0, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	orq := facturador.New(ws, gate, cache, logger.Nop(),
		facturador.WithSleep(func(ctx context.Context, d time.Duration) error {
			cancel() // el caller cancela mientras el orquestador espera
			return ctx.Err()
		}))

	transitorio := domain.TransportError(domain.CodeUnavailable, "503", nil)
	ws.submitErrs = []error{transitorio, transitorio, transitorio}

	_, err := orq.IssueInvoice(ctx, credenciales(), facturaDeUnItem())

	require.Error(t, err)
	assert.Equal(t, 1, ws.submits, "la cancelación aborta de inmediato, sin más intentos")
}

func TestIssueInvoice_EmisionesConcurrentesMismoRUC(t *testing.T) {
	a := armar(t)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = a.orq.IssueInvoice(context.Background(), credenciales(), facturaDeUnItem())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 4, a.ws.submits)
	assert.LessOrEqual(t, a.ws.saveConfigs, 1,
		"el singleflight por RUC impide el doble alta ante misses concurrentes")
}

// ──────────────────────────────────────────────────────────────────────────────
// helpers
// ──────────────────────────────────────────────────────────────────────────────

// confirmFunc adapta una función a ConfirmationChannel.
type confirmFunc func(ctx context.Context, p facturador.Proposal) (bool, error)

func (f confirmFunc) Confirm(ctx context.Context, p facturador.Proposal) (bool, error) {
	return f(ctx, p)
}

func armarConGate(t *testing.T, gate facturador.ConfirmationChannel) *armado {
	t.Helper()
	ws := &fakeWS{}
	store := newMemStore()
	slp := &noSleep{}
	cache := configcache.New(store, 0, logger.Nop())
	return &armado{
		orq:   facturador.New(ws, gate, cache, logger.Nop(), facturador.WithSleep(slp.sleep)),
		ws:    ws,
		store: store,
		sleep: slp,
	}
}

func TestDefaultDocumentTypePolicy(t *testing.T) {
	assert.Equal(t, sifen.DocTypeFactura, facturador.DefaultDocumentTypePolicy(nil))

	p := &entity.Profile{IssuedByDocType: map[string]int{
		sifen.DocTypeFactura:     3,
		sifen.DocTypeNotaCredito: 9,
	}}
	assert.Equal(t, sifen.DocTypeNotaCredito, facturador.DefaultDocumentTypePolicy(p),
		"gana el tipo más emitido")

	empate := &entity.Profile{IssuedByDocType: map[string]int{
		sifen.DocTypeFactura:     5,
		sifen.DocTypeNotaCredito: 5,
	}}
	assert.Equal(t, sifen.DocTypeFactura, facturador.DefaultDocumentTypePolicy(empate),
		"el empate cae al tipo primario")

	fueraDeCatalogo := &entity.Profile{IssuedByDocType: map[string]int{"99": 100}}
	assert.Equal(t, sifen.DocTypeFactura, facturador.DefaultDocumentTypePolicy(fueraDeCatalogo))
}
