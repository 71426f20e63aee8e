// Package terminal implementa el canal de confirmación humana sobre la
// entrada estándar: presenta la propuesta y pide un sí explícito.
package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tu-usuario/facturador-pro/internal/application/facturador"
)

// Confirmer pide aprobación por terminal. Solo "s", "si" o "y" (sin importar
// mayúsculas) cuentan como afirmativo; cualquier otra cosa es rechazo.
type Confirmer struct {
	in  *bufio.Reader
	out io.Writer
}

var _ facturador.ConfirmationChannel = (*Confirmer)(nil)

func New(in io.Reader, out io.Writer) *Confirmer {
	return &Confirmer{in: bufio.NewReader(in), out: out}
}

// Confirm imprime la propuesta y bloquea hasta leer la respuesta o hasta que
// el contexto se cancele. No hay timeout propio: la política la pone el caller.
func (c *Confirmer) Confirm(ctx context.Context, p facturador.Proposal) (bool, error) {
	c.render(p)

	type lectura struct {
		line string
		err  error
	}
	ch := make(chan lectura, 1)
	go func() {
		line, err := c.in.ReadString('\n')
		ch <- lectura{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case l := <-ch:
		if l.err != nil && l.line == "" {
			return false, fmt.Errorf("leer confirmación: %w", l.err)
		}
		resp := strings.ToLower(strings.TrimSpace(l.line))
		return resp == "s" || resp == "si" || resp == "sí" || resp == "y", nil
	}
}

func (c *Confirmer) render(p facturador.Proposal) {
	fmt.Fprintln(c.out)
	switch p.Kind {
	case facturador.ProposalConfiguration:
		cfg := p.Config
		fmt.Fprintln(c.out, "═══════════════════════════════════════════════════")
		fmt.Fprintln(c.out, "  CONFIGURACIÓN DEL EMISOR A REGISTRAR EN LA SET")
		fmt.Fprintln(c.out, "═══════════════════════════════════════════════════")
		fmt.Fprintf(c.out, "  RUC:                  %s\n", cfg.RUC)
		fmt.Fprintf(c.out, "  Timbrado:             %s\n", cfg.Timbrado)
		fmt.Fprintf(c.out, "  Establecimiento:      %d\n", cfg.Establishment)
		fmt.Fprintf(c.out, "  Punto de expedición:  %d\n", cfg.DispatchPoint)
		fmt.Fprintf(c.out, "  Tipo de documento:    %s\n", cfg.DocumentType)
		fmt.Fprintf(c.out, "  Actividad económica:  %s %s\n", cfg.EconomicActivity.Code, cfg.EconomicActivity.Description)
		fmt.Fprintf(c.out, "  CSC:                  %s\n", enmascarar(cfg.CSC))
	case facturador.ProposalInvoice:
		inv := p.Invoice
		fmt.Fprintln(c.out, "═══════════════════════════════════════════════════")
		fmt.Fprintln(c.out, "  FACTURA A EMITIR")
		fmt.Fprintln(c.out, "═══════════════════════════════════════════════════")
		fmt.Fprintf(c.out, "  Emisor (RUC):   %s\n", p.RUC)
		fmt.Fprintf(c.out, "  Receptor:       %s (%s)\n", inv.Receiver.BusinessName, inv.Receiver.RUC)
		fmt.Fprintf(c.out, "  Fecha:          %s\n", inv.Date.Format("2006-01-02"))
		fmt.Fprintf(c.out, "  Ítems:          %d\n", inv.ItemCount)
		fmt.Fprintf(c.out, "  Subtotal:       %s\n", inv.Summary.Subtotal.StringFixed(0))
		fmt.Fprintf(c.out, "  IVA:            %s\n", inv.Summary.TaxTotal.StringFixed(0))
		fmt.Fprintf(c.out, "  TOTAL:          %s Gs.\n", inv.Summary.GrandTotal.StringFixed(0))
	}
	fmt.Fprint(c.out, "\n¿Confirmar? [s/N]: ")
}

// enmascarar deja visibles solo los últimos 4 caracteres del CSC.
func enmascarar(csc string) string {
	if len(csc) <= 4 {
		return strings.Repeat("*", len(csc))
	}
	return strings.Repeat("*", len(csc)-4) + csc[len(csc)-4:]
}
