package terminal

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-usuario/facturador-pro/internal/application/facturador"
	"github.com/tu-usuario/facturador-pro/internal/domain/entity"
)

func propuestaDeFactura() facturador.Proposal {
	return facturador.Proposal{
		Kind: facturador.ProposalInvoice,
		RUC:  "5452",
		Invoice: &facturador.InvoiceProposal{
			Receiver:  entity.Receiver{RUC: "80012345-0", BusinessName: "Cliente S.A."},
			Date:      time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
			ItemCount: 2,
			Summary: entity.InvoiceSummary{
				Subtotal:   decimal.NewFromInt(500000),
				TaxTotal:   decimal.NewFromInt(50000),
				GrandTotal: decimal.NewFromInt(550000),
			},
		},
	}
}

func TestConfirm_RespuestasAfirmativas(t *testing.T) {
	for _, resp := range []string{"s\n", "S\n", "si\n", "sí\n", "y\n", "  s  \n"} {
		var out bytes.Buffer
		c := New(strings.NewReader(resp), &out)
		ok, err := c.Confirm(context.Background(), propuestaDeFactura())
		require.NoError(t, err)
		assert.True(t, ok, "respuesta %q", resp)
	}
}

func TestConfirm_TodoLoDemasEsRechazo(t *testing.T) {
	for _, resp := range []string{"n\n", "no\n", "\n", "ok\n", "yes!\n"} {
		var out bytes.Buffer
		c := New(strings.NewReader(resp), &out)
		ok, err := c.Confirm(context.Background(), propuestaDeFactura())
		require.NoError(t, err)
		assert.False(t, ok, "respuesta %q", resp)
	}
}

func TestConfirm_MuestraLosTotalesVerificados(t *testing.T) {
	var out bytes.Buffer
	c := New(strings.NewReader("n\n"), &out)
	_, err := c.Confirm(context.Background(), propuestaDeFactura())
	require.NoError(t, err)
	assert.Contains(t, out.String(), "550000")
	assert.Contains(t, out.String(), "Cliente S.A.")
}

func TestConfirm_EnmascaraElCSC(t *testing.T) {
	var out bytes.Buffer
	c := New(strings.NewReader("n\n"), &out)
	_, err := c.Confirm(context.Background(), facturador.Proposal{
		Kind:   facturador.ProposalConfiguration,
		RUC:    "5452",
		Config: &entity.IssuerConfig{RUC: "5452", CSC: "ABCD1234SECRETO9", Establishment: 1, DispatchPoint: 1},
	})
	require.NoError(t, err)
	assert.NotContains(t, out.String(), "ABCD1234SECRETO9", "el CSC nunca se imprime completo")
	assert.Contains(t, out.String(), "ETO9")
}

func TestConfirm_CancelacionDelContexto(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	// reader que nunca entrega una línea
	c := New(bloqueante{}, &out)
	_, err := c.Confirm(ctx, propuestaDeFactura())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

// bloqueante es un io.Reader que jamás devuelve datos.
type bloqueante struct{}

func (bloqueante) Read(p []byte) (int, error) {
	select {}
}
