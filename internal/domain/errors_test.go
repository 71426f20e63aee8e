package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tu-usuario/facturador-pro/internal/domain"
)

// ──────────────────────────────────────────────────────────────────────────────
// La taxonomía es un contrato cerrado: cada Kind tiene hint de recuperación y
// una política de reintento fija. Estos tests la verifican por enumeración.
// ──────────────────────────────────────────────────────────────────────────────

func TestRetryable_SoloTransporteTransitorio(t *testing.T) {
	casos := []struct {
		nombre    string
		err       *domain.Error
		esperable bool
	}{
		{"transporte timeout", domain.TransportError(domain.CodeTimeout, "timeout WS", nil), true},
		{"transporte no disponible", domain.TransportError(domain.CodeUnavailable, "503 SET", nil), true},
		{"transporte rate limited", domain.TransportError(domain.CodeRateLimited, "429 SET", nil), true},
		{"auth credenciales", domain.AuthError(domain.CodeInvalidCredentials, "clave incorrecta", nil), false},
		{"auth ruc inactivo", domain.AuthError(domain.CodeRUCInactive, "RUC inactivo", nil), false},
		{"configuración", domain.ConfigError(domain.CodeInvalidCSC, "CSC rechazado", nil), false},
		{"recuperación", domain.RetrievalError(domain.CodeServiceUnreachable, "SET caída", nil), false},
		{"validación", domain.ValidationError(domain.CodeTotalsMismatch, "totales no concilian", nil), false},
		{"cancelado", domain.Cancelled(domain.CodeConfirmationDenied, "rechazado"), false},
	}
	for _, c := range casos {
		t.Run(c.nombre, func(t *testing.T) {
			assert.Equal(t, c.esperable, c.err.Retryable())
		})
	}
}

func TestRecovery_TodoKindTieneHint(t *testing.T) {
	for _, kind := range domain.Kinds() {
		err := domain.NewError(kind, "X", "x", nil)
		assert.NotEmpty(t, err.Recovery(), "el kind %s debe tener hint de recuperación", kind)
	}
}

func TestError_ConservaCausa(t *testing.T) {
	causa := errors.New("conexión rechazada")
	err := domain.TransportError(domain.CodeUnavailable, "WS SET", causa)

	require.ErrorIs(t, err, causa)
	assert.Contains(t, err.Error(), "TRANSPORT/TEMPORARILY_UNAVAILABLE")
	assert.Contains(t, err.Error(), "conexión rechazada")
}

func TestAsError_AtraviesaEnvolturas(t *testing.T) {
	base := domain.AuthError(domain.CodeRUCInactive, "RUC 5452 inactivo", nil)
	envuelto := fmt.Errorf("emitir factura: %w", base)

	e, ok := domain.AsError(envuelto)
	require.True(t, ok)
	assert.Equal(t, domain.KindAuthentication, e.Kind)
	assert.Equal(t, domain.CodeRUCInactive, e.Code)
}

func TestClassify_NoReclasificaErroresYaClasificados(t *testing.T) {
	original := domain.ValidationError(domain.CodeNonPositiveAmount, "cantidad cero", nil)

	resultado := domain.Classify(original, domain.KindTransport, domain.CodeTimeout, "no debería usarse")

	assert.Same(t, original, resultado, "Classify debe devolver el error clasificado intacto")
}

func TestClassify_EnvuelveErroresCrudos(t *testing.T) {
	crudo := errors.New("i/o timeout")

	e := domain.Classify(crudo, domain.KindTransport, domain.CodeTimeout, "llamada al WS")

	assert.Equal(t, domain.KindTransport, e.Kind)
	assert.ErrorIs(t, e, crudo)
}

func TestWithContext_AcumulaCampos(t *testing.T) {
	e := domain.TransportError(domain.CodeTimeout, "timeout", nil).
		WithContext("ruc", "5452").
		WithContext("intento", "2")

	assert.Equal(t, "5452", e.Context["ruc"])
	assert.Equal(t, "2", e.Context["intento"])
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("wrap: %w", domain.Cancelled(domain.CodeConfirmationDenied, "no"))

	assert.True(t, domain.IsKind(err, domain.KindUserCancelled))
	assert.False(t, domain.IsKind(err, domain.KindTransport))
	assert.False(t, domain.IsKind(errors.New("cualquiera"), domain.KindTransport))
}
