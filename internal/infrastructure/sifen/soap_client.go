// Package sifen implementa el cliente SOAP contra el WS del Sistema Integrado
// de Facturación Electrónica Nacional (SIFEN) de la SET paraguaya.
package sifen

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tu-usuario/facturador-pro/internal/application/facturador"
	"github.com/tu-usuario/facturador-pro/internal/domain"
	"github.com/tu-usuario/facturador-pro/internal/domain/entity"
	"github.com/tu-usuario/facturador-pro/pkg/logger"
	pkgsifen "github.com/tu-usuario/facturador-pro/pkg/sifen"
)

// ── Constantes de entorno ─────────────────────────────────────────────────────

const (
	// AppEnvTest es el identificador del ambiente de habilitación/pruebas SIFEN.
	AppEnvTest = "test"
	// AppEnvProd es el identificador del ambiente de producción SIFEN.
	AppEnvProd = "prod"
	// AppEnvDev es el identificador local: no envía al WS, simula respuestas.
	AppEnvDev = "dev"

	soapURLTest = "https://sifen-test.set.gov.py/de/ws/sync-services.wsdl"
	soapURLProd = "https://sifen.set.gov.py/de/ws/sync-services.wsdl"

	soapNS      = "http://schemas.xmlsoap.org/soap/envelope/"
	soapNSSIFEN = "http://ekuatia.set.gov.py/sifen/xsd"

	fechaCorta = "2006-01-02"
	fechaLarga = "2006-01-02T15:04:05"
)

// Config parámetros del cliente.
type Config struct {
	AppEnv  string        // dev|test|prod
	BaseURL string        // override del endpoint (vacío: según AppEnv)
	Timeout time.Duration // 0: 60 s
}

// Client implementa el puerto InvoicingService usando el WS SOAP de SIFEN.
// Usa net/http de la stdlib; el WS no requiere librerías de terceros.
// En ambiente dev no toca la red: simula las cuatro operaciones en memoria
// para poder recorrer el flujo completo sin credenciales reales.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *logger.Logger

	// estado del modo dev
	mu      sync.Mutex
	devCfgs map[string]*entity.IssuerConfig
	devSeq  int
}

var _ facturador.InvoicingService = (*Client)(nil)

// NewClient construye el cliente SOAP. El timeout por defecto es generoso
// (60 s) porque el WS SIFEN puede tardar varios segundos en responder.
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	switch cfg.AppEnv {
	case AppEnvDev, AppEnvTest, AppEnvProd:
	default:
		return nil, fmt.Errorf("sifen: ambiente desconocido %q (usar dev|test|prod)", cfg.AppEnv)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.Component("ws-sifen"),
		devCfgs:    make(map[string]*entity.IssuerConfig),
	}, nil
}

func (c *Client) endpoint() string {
	if c.cfg.BaseURL != "" {
		return c.cfg.BaseURL
	}
	if c.cfg.AppEnv == AppEnvProd {
		return soapURLProd
	}
	return soapURLTest
}

// ── Login ─────────────────────────────────────────────────────────────────────

// Login autentica contra el WS y devuelve sesión + perfil del contribuyente.
func (c *Client) Login(ctx context.Context, cred entity.Credentials) (*entity.Session, *entity.Profile, error) {
	if c.cfg.AppEnv == AppEnvDev {
		return c.devLogin(cred)
	}

	body := &rAutenticacion{
		Xmlns:        soapNSSIFEN,
		DRUC:         cred.RUC,
		DClaveAcceso: cred.AccessKey,
		DModEmision:  cred.EmissionMode,
	}
	resp, err := c.call(ctx, "", body)
	if err != nil {
		return nil, nil, err
	}
	r := resp.Body.AuthResponse
	if r == nil {
		return nil, nil, domain.TransportError(domain.CodeUnavailable,
			"respuesta de autenticación vacía o inesperada", nil)
	}
	if r.DCodRes != codRespuestaAprobada {
		return nil, nil, mapResponseCode(r.DCodRes, r.DMsgRes)
	}

	p := &entity.Profile{
		RUC:          r.GPerfil.DRUC,
		BusinessName: r.GPerfil.DNomEmi,
		Status:       r.GPerfil.DEstadoRUC,
		EconomicActivity: entity.EconomicActivity{
			Code:        r.GPerfil.CActEco,
			Description: r.GPerfil.DDesActEco,
		},
		TaxpayerType: r.GPerfil.ITipCont,
		CSC:          r.GPerfil.DCSC,
		Timbrado:     r.GPerfil.DNumTim,
	}
	if t, err := time.Parse(fechaCorta, r.GPerfil.DFeAprob); err == nil {
		p.ApprovedAt = t
	}
	if t, err := time.Parse(fechaCorta, r.GPerfil.DFeIniT); err == nil {
		p.TimbradoValidFrom = t
	}
	if len(r.GPerfil.GHistTiDE) > 0 {
		p.IssuedByDocType = make(map[string]int, len(r.GPerfil.GHistTiDE))
		for _, h := range r.GPerfil.GHistTiDE {
			p.IssuedByDocType[h.ITiDE] = h.DCant
		}
	}

	// El WS puede aprobar la autenticación de un RUC que dejó de estar
	// activo; el estado del perfil manda.
	if p.Status != entity.TaxpayerStatusActive {
		return nil, nil, domain.AuthError(domain.CodeRUCInactive,
			"RUC "+p.RUC+" con estado "+p.Status, nil)
	}

	return &entity.Session{Token: r.DToken, CreatedAt: time.Now()}, p, nil
}

// ── FetchConfig ───────────────────────────────────────────────────────────────

// FetchConfig consulta la configuración vigente. Devuelve nil, nil cuando el
// contribuyente nunca la completó (dCodRes 0502).
func (c *Client) FetchConfig(ctx context.Context, ruc, token string) (*entity.IssuerConfig, error) {
	if c.cfg.AppEnv == AppEnvDev {
		return c.devFetchConfig(ruc)
	}

	body := &rConsultaConfig{Xmlns: soapNSSIFEN, DRUC: ruc}
	resp, err := c.call(ctx, token, body)
	if err != nil {
		return nil, err
	}
	r := resp.Body.ConfigResponse
	if r == nil {
		return nil, domain.TransportError(domain.CodeUnavailable,
			"respuesta de consulta de configuración vacía o inesperada", nil)
	}
	if r.DCodRes == "0502" || r.GConfig == nil {
		return nil, nil
	}
	if r.DCodRes != codRespuestaAprobada {
		return nil, mapResponseCode(r.DCodRes, r.DMsgRes)
	}

	cfg := &entity.IssuerConfig{
		RUC:           r.GConfig.DRUC,
		Timbrado:      r.GConfig.DNumTim,
		Establishment: r.GConfig.DEst,
		DispatchPoint: r.GConfig.DPunExp,
		DocumentType:  r.GConfig.ITiDE,
		EconomicActivity: entity.EconomicActivity{
			Code:        r.GConfig.CActEco,
			Description: r.GConfig.DDesActEco,
		},
		TaxpayerType: r.GConfig.ITipCont,
		CSC:          r.GConfig.DCSC,
		LogoURL:      r.GConfig.DURLLogo,
		Modality:     entity.ModalityFlags{Advanced: r.GConfig.BModAvanzado},
	}
	if t, err := time.Parse(fechaCorta, r.GConfig.DFeIniT); err == nil {
		cfg.ValidFrom = t
	}
	return cfg, nil
}

// ── SaveConfig ────────────────────────────────────────────────────────────────

// SaveConfig registra la configuración del emisor y devuelve su ID.
func (c *Client) SaveConfig(ctx context.Context, ruc, token string, cfg *entity.IssuerConfig) (string, error) {
	if c.cfg.AppEnv == AppEnvDev {
		return c.devSaveConfig(ruc, cfg)
	}

	body := &rRegistroConfig{
		Xmlns:        soapNSSIFEN,
		DRUC:         ruc,
		DNumTim:      cfg.Timbrado,
		DEst:         cfg.Establishment,
		DPunExp:      cfg.DispatchPoint,
		ITiDE:        cfg.DocumentType,
		CActEco:      cfg.EconomicActivity.Code,
		DFeIniT:      cfg.ValidFrom.Format(fechaCorta),
		ITipCont:     cfg.TaxpayerType,
		DCSC:         cfg.CSC,
		DURLLogo:     cfg.LogoURL,
		BModAvanzado: cfg.Modality.Advanced,
	}
	resp, err := c.call(ctx, token, body)
	if err != nil {
		return "", err
	}
	r := resp.Body.SaveResponse
	if r == nil {
		return "", domain.TransportError(domain.CodeUnavailable,
			"respuesta de registro de configuración vacía o inesperada", nil)
	}
	if r.DCodRes != codRespuestaAprobada {
		return "", mapResponseCode(r.DCodRes, r.DMsgRes)
	}
	return r.DIdConfig, nil
}

// ── SubmitInvoice ─────────────────────────────────────────────────────────────

// SubmitInvoice envía el documento electrónico. El CDC y el número de
// documento los asigna la SET; se devuelven intactos.
func (c *Client) SubmitInvoice(ctx context.Context, token string, req *entity.InvoiceRequest, cfg *entity.IssuerConfig) (*entity.InvoiceResult, error) {
	if c.cfg.AppEnv == AppEnvDev {
		return c.devSubmit(cfg)
	}

	items := make([]gItemDE, len(req.Items))
	for i, it := range req.Items {
		items[i] = gItemDE{
			DCodInt:     it.Code,
			DDesProSer:  it.Description,
			DCantProSer: it.Quantity.String(),
			DPUniProSer: it.UnitPrice.String(),
			DLiqIVAItem: it.TaxAmount.String(),
			DTotOpeItem: it.LineTotal.String(),
		}
	}
	body := &rEnvioDE{
		Xmlns:    soapNSSIFEN,
		DRUCEm:   cfg.RUC,
		DNumTim:  cfg.Timbrado,
		DEst:     cfg.Establishment,
		DPunExp:  cfg.DispatchPoint,
		ITiDE:    cfg.DocumentType,
		DFeEmiDE: req.Date.Format(fechaLarga),
		GDatRec: gDatosReceptor{
			DRUCRec:   req.Receiver.RUC,
			DNomRec:   req.Receiver.BusinessName,
			DEmailRec: req.Receiver.Email,
		},
		GDtipDE: items,
		GTotSub: gTotales{
			DSub:        req.Summary.Subtotal.String(),
			DTotIVA:     req.Summary.TaxTotal.String(),
			DTotGralOpe: req.Summary.GrandTotal.String(),
		},
	}

	resp, err := c.call(ctx, token, body)
	if err != nil {
		return nil, err
	}
	r := resp.Body.SubmitResponse
	if r == nil {
		return nil, domain.TransportError(domain.CodeUnavailable,
			"respuesta de envío vacía o inesperada", nil)
	}
	if r.DCodRes != codRespuestaAprobada {
		return nil, mapResponseCode(r.DCodRes, r.DMsgRes)
	}

	res := &entity.InvoiceResult{DocumentID: r.DNumDoc, CDC: r.DCDC}
	if t, err := time.Parse(fechaLarga, r.DFeEmiDE); err == nil {
		res.IssuedAt = t
	} else {
		res.IssuedAt = time.Now()
	}
	return res, nil
}

// ── Transporte ────────────────────────────────────────────────────────────────

// call serializa el envelope, hace el POST y desempaqueta la respuesta. Los
// fallos de red y los HTTP transitorios se clasifican como transporte; un
// SOAP Fault es un rechazo del WS y no se reintenta.
func (c *Client) call(ctx context.Context, token string, content interface{}) (*soapResponseEnvelope, error) {
	envelope := soapEnvelope{
		XmlnsS: soapNS,
		Header: soapHeader{Token: token},
		Body:   soapBody{Content: content},
	}
	payload, err := xml.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, domain.TransportError(domain.CodeUnavailable, "serializar envelope SOAP", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, domain.TransportError(domain.CodeUnavailable, "crear request SOAP", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.TransportError(domain.CodeTimeout, "timeout o cancelación", ctx.Err())
		}
		return nil, domain.TransportError(domain.CodeUnavailable, "llamada HTTP al WS SIFEN", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.TransportError(domain.CodeRateLimited,
			"el WS SIFEN limitó la tasa de llamadas", nil)
	case resp.StatusCode >= 500:
		return nil, domain.TransportError(domain.CodeUnavailable,
			fmt.Sprintf("el WS SIFEN respondió HTTP %d", resp.StatusCode), nil)
	}

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // max 1 MB
	if err != nil {
		return nil, domain.TransportError(domain.CodeUnavailable, "leer respuesta SOAP", err)
	}

	var envResp soapResponseEnvelope
	if err := xml.Unmarshal(rawBody, &envResp); err != nil {
		return nil, domain.TransportError(domain.CodeUnavailable,
			"no se pudo parsear la respuesta SOAP", err)
	}
	if envResp.Body.Fault != nil {
		return nil, domain.RetrievalError(domain.CodeServiceUnreachable,
			fmt.Sprintf("SOAP Fault [%s]: %s", envResp.Body.Fault.FaultCode, envResp.Body.Fault.FaultString), nil)
	}
	return &envResp, nil
}

// ── Modo dev ──────────────────────────────────────────────────────────────────

func (c *Client) devLogin(cred entity.Credentials) (*entity.Session, *entity.Profile, error) {
	c.log.Info().Str("ruc", cred.RUC).Msg("[DEV] simulando autenticación, no se toca la red")
	now := time.Now()
	profile := &entity.Profile{
		RUC:          cred.RUC,
		BusinessName: "Contribuyente Simulado",
		Status:       entity.TaxpayerStatusActive,
		EconomicActivity: entity.EconomicActivity{
			Code:        "62010",
			Description: "Actividades de programación informática",
		},
		TaxpayerType:      pkgsifen.TaxpayerPersonaFisica,
		ApprovedAt:        now.AddDate(-1, 0, 0),
		CSC:               "MOCK-CSC-0001",
		Timbrado:          "12345678",
		TimbradoValidFrom: now.AddDate(0, -6, 0),
	}
	return &entity.Session{Token: "MOCK-" + uuid.NewString(), CreatedAt: now}, profile, nil
}

func (c *Client) devFetchConfig(ruc string) (*entity.IssuerConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg, ok := c.devCfgs[ruc]
	if !ok {
		return nil, nil
	}
	copia := *cfg
	return &copia, nil
}

func (c *Client) devSaveConfig(ruc string, cfg *entity.IssuerConfig) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copia := *cfg
	c.devCfgs[ruc] = &copia
	c.devSeq++
	c.log.Info().Str("ruc", ruc).Msg("[DEV] configuración simulada registrada")
	return fmt.Sprintf("MOCK-CFG-%03d", c.devSeq), nil
}

func (c *Client) devSubmit(cfg *entity.IssuerConfig) (*entity.InvoiceResult, error) {
	c.mu.Lock()
	c.devSeq++
	seq := c.devSeq
	c.mu.Unlock()

	// CDC sintético de 44 dígitos con la estructura real pero sin valor fiscal.
	cdc := fmt.Sprintf("0%s%s%03d%03d%07d", cfg.DocumentType, cfg.RUC,
		cfg.Establishment, cfg.DispatchPoint, seq)
	for len(cdc) < 44 {
		cdc += "0"
	}
	cdc = cdc[:44]
	return &entity.InvoiceResult{
		DocumentID: fmt.Sprintf("%03d-%03d-%07d", cfg.Establishment, cfg.DispatchPoint, seq),
		CDC:        cdc,
		IssuedAt:   time.Now(),
	}, nil
}
