package sifen

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-usuario/facturador-pro/internal/domain"
	"github.com/tu-usuario/facturador-pro/internal/domain/entity"
	"github.com/tu-usuario/facturador-pro/pkg/logger"
)

func TestMapResponseCode_Clasificacion(t *testing.T) {
	casos := []struct {
		codigo     string
		kind       domain.Kind
		code       domain.Code
		reintentar bool
	}{
		{"0160", domain.KindAuthentication, domain.CodeInvalidCredentials, false},
		{"0162", domain.KindAuthentication, domain.CodeRUCInactive, false},
		{"0504", domain.KindConfiguration, domain.CodeInvalidCSC, false},
		{"1004", domain.KindInvoiceValidation, domain.CodeDuplicateDocument, false},
		{"5001", domain.KindTransport, domain.CodeTimeout, true},
		{"5002", domain.KindTransport, domain.CodeUnavailable, true},
		{"5003", domain.KindTransport, domain.CodeRateLimited, true},
		{"9999", domain.KindConfigRetrieval, domain.CodeServiceUnreachable, false},
	}
	for _, c := range casos {
		e := mapResponseCode(c.codigo, "mensaje de la SET")
		assert.Equal(t, c.kind, e.Kind, "dCodRes %s", c.codigo)
		assert.Equal(t, c.code, e.Code, "dCodRes %s", c.codigo)
		assert.Equal(t, c.reintentar, e.Retryable(), "dCodRes %s", c.codigo)
	}
}

func TestNewClient_AmbienteDesconocido(t *testing.T) {
	_, err := NewClient(Config{AppEnv: "staging"}, logger.Nop())
	require.Error(t, err)
}

func TestClient_ModoDev_FlujoCompleto(t *testing.T) {
	c, err := NewClient(Config{AppEnv: AppEnvDev}, logger.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	sess, profile, err := c.Login(ctx, entity.Credentials{RUC: "5452", AccessKey: "x", EmissionMode: "ekuatia-i"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, entity.TaxpayerStatusActive, profile.Status)

	// sin configuración previa: nil, nil
	cfg, err := c.FetchConfig(ctx, "5452", sess.Token)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	nueva := &entity.IssuerConfig{
		RUC: "5452", Timbrado: profile.Timbrado,
		Establishment: entity.FixedEstablishment, DispatchPoint: entity.FixedDispatchPoint,
		DocumentType: "1", TaxpayerType: profile.TaxpayerType, CSC: profile.CSC,
		ValidFrom: time.Now(),
	}
	id, err := c.SaveConfig(ctx, "5452", sess.Token, nueva)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	// la consulta posterior devuelve lo guardado
	cfg, err = c.FetchConfig(ctx, "5452", sess.Token)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.True(t, cfg.Equal(nueva))

	res, err := c.SubmitInvoice(ctx, sess.Token, &entity.InvoiceRequest{}, nueva)
	require.NoError(t, err)
	assert.Len(t, res.CDC, 44, "el CDC siempre tiene 44 dígitos")
	assert.NotEmpty(t, res.DocumentID)
}
