// Package session administra el ciclo de vida de la sesión contra el portal
// de la SET: máquina de estados NoAutenticado → Autenticando → Autenticado,
// con invalidación forzada cuando un token es rechazado aguas abajo.
package session

import (
	"context"
	"sync"

	"github.com/tu-usuario/facturador-pro/internal/domain"
	"github.com/tu-usuario/facturador-pro/internal/domain/entity"
	"github.com/tu-usuario/facturador-pro/pkg/logger"
	"github.com/tu-usuario/facturador-pro/pkg/sifen"
)

// State estado de la máquina de sesión.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "AUTENTICANDO"
	case StateAuthenticated:
		return "AUTENTICADO"
	default:
		return "NO_AUTENTICADO"
	}
}

// Authenticator subconjunto del WS que necesita el manager.
type Authenticator interface {
	Login(ctx context.Context, cred entity.Credentials) (*entity.Session, *entity.Profile, error)
}

// Modalidades resueltas a partir del perfil (nivel de funcionalidades).
const (
	ModalityBasic    = "basica"   // e-Kuatia'i
	ModalityAdvanced = "avanzada" // e-Kuatia
)

// Manager posee en exclusiva la sesión de un contribuyente y su cache de
// nivel 1 (token, perfil, modalidad resuelta). Todo se descarta junto: la
// invalidación limpia el nivel 1 completo y nada de esto toca almacenamiento
// durable. El mutex se mantiene durante el login, de modo que ninguna
// operación que requiera sesión avanza mientras el estado es Autenticando.
type Manager struct {
	mu       sync.Mutex
	state    State
	sess     *entity.Session
	profile  *entity.Profile
	modality string

	svc Authenticator
	log *logger.Logger
}

// NewManager construye el manager de sesión de un contribuyente.
func NewManager(svc Authenticator, log *logger.Logger) *Manager {
	return &Manager{svc: svc, log: log.Component("sesion")}
}

// State devuelve el estado actual.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Ensure devuelve la sesión vigente, autenticando solo si hace falta.
// Los fallos de autenticación son siempre terminales para la llamada: no hay
// reintento interno y el estado vuelve a NoAutenticado.
func (m *Manager) Ensure(ctx context.Context, cred entity.Credentials) (*entity.Session, *entity.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateAuthenticated {
		return m.sess, m.profile, nil
	}
	return m.authenticateLocked(ctx, cred)
}

// Authenticate fuerza un login nuevo descartando la sesión previa.
func (m *Manager) Authenticate(ctx context.Context, cred entity.Credentials) (*entity.Session, *entity.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clearLocked()
	return m.authenticateLocked(ctx, cred)
}

func (m *Manager) authenticateLocked(ctx context.Context, cred entity.Credentials) (*entity.Session, *entity.Profile, error) {
	if !cred.Valid() {
		return nil, nil, domain.AuthError(domain.CodeInvalidCredentials, "credenciales incompletas: requieren RUC y clave de acceso", nil)
	}

	m.state = StateAuthenticating
	sess, profile, err := m.svc.Login(ctx, cred)
	if err != nil {
		m.state = StateUnauthenticated
		e := domain.Classify(err, domain.KindAuthentication, domain.CodeInvalidCredentials, "login SET")
		m.log.Warn().Str("ruc", cred.RUC).Str("codigo", string(e.Code)).Msg("autenticación rechazada")
		return nil, nil, e
	}

	m.state = StateAuthenticated
	m.sess = sess
	m.profile = profile
	m.modality = resolveModality(profile)
	m.log.Debug().Str("ruc", cred.RUC).Str("modalidad", m.modality).Msg("sesión establecida")
	return sess, profile, nil
}

// Invalidate fuerza Autenticado → NoAutenticado. Se usa cuando una llamada
// aguas abajo reporta el token como rechazado: la próxima operación vuelve a
// autenticar en vez de reusar un token muerto.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateUnauthenticated {
		m.log.Debug().Msg("sesión invalidada")
	}
	m.clearLocked()
}

func (m *Manager) clearLocked() {
	m.state = StateUnauthenticated
	m.sess = nil
	m.profile = nil
	m.modality = ""
}

// Session devuelve la sesión vigente, si la hay.
func (m *Manager) Session() (*entity.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess, m.state == StateAuthenticated
}

// Modality devuelve la modalidad resuelta para la sesión vigente.
func (m *Manager) Modality() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modality
}

// resolveModality deriva la modalidad del tipo de contribuyente: las personas
// jurídicas operan e-Kuatia (avanzada), las físicas e-Kuatia'i (básica).
func resolveModality(p *entity.Profile) string {
	if p != nil && p.TaxpayerType == sifen.TaxpayerPersonaJuridica {
		return ModalityAdvanced
	}
	return ModalityBasic
}
