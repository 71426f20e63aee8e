// Package sifen contiene las validaciones de dominio previas a la emisión
// electrónica SIFEN (Paraguay). La aritmética de la factura se concilia acá,
// antes del canal de confirmación y de cualquier llamada al WS.
package sifen

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tu-usuario/facturador-pro/internal/domain"
	"github.com/tu-usuario/facturador-pro/internal/domain/entity"
	pkgsifen "github.com/tu-usuario/facturador-pro/pkg/sifen"
)

// ValidateInvoice valida la solicitud completa: receptor, positividad de los
// montos, conciliación línea por línea y de totales, y la invariante de
// establecimiento/punto de expedición = 1. Acumula todos los problemas y los
// devuelve como un único error clasificado de validación.
func ValidateInvoice(req *entity.InvoiceRequest) error {
	if req == nil {
		return domain.ValidationError(domain.CodeInvalidReceiver, "solicitud de factura nula", nil)
	}

	var problems []string

	if req.Receiver.RUC == "" || req.Receiver.BusinessName == "" {
		problems = append(problems, "receptor incompleto: requiere RUC y razón social")
	} else if err := pkgsifen.ValidateRUCVerificationDigit(req.Receiver.RUC); err != nil {
		problems = append(problems, fmt.Sprintf("RUC del receptor: %v", err))
	}

	if req.Date.IsZero() {
		problems = append(problems, "fecha de emisión ausente")
	}

	// Establecimiento y punto de expedición son opcionales en la solicitud,
	// pero cuando vienen deben valer exactamente 1. Nunca se corrigen.
	if req.Establishment != 0 && req.Establishment != entity.FixedEstablishment {
		problems = append(problems, fmt.Sprintf("establecimiento=%d: solo se soporta 1", req.Establishment))
	}
	if req.DispatchPoint != 0 && req.DispatchPoint != entity.FixedDispatchPoint {
		problems = append(problems, fmt.Sprintf("punto de expedición=%d: solo se soporta 1", req.DispatchPoint))
	}

	if len(req.Items) == 0 {
		problems = append(problems, "la factura debe tener al menos un ítem")
	}

	var sumLines decimal.Decimal
	var sumTax decimal.Decimal
	for i, it := range req.Items {
		if !it.Quantity.IsPositive() {
			problems = append(problems, fmt.Sprintf("ítem %d: cantidad no positiva (%s)", i+1, it.Quantity))
		}
		if !it.UnitPrice.IsPositive() {
			problems = append(problems, fmt.Sprintf("ítem %d: precio unitario no positivo (%s)", i+1, it.UnitPrice))
		}
		if it.TaxAmount.IsNegative() {
			problems = append(problems, fmt.Sprintf("ítem %d: IVA negativo (%s)", i+1, it.TaxAmount))
		}
		expected := it.Quantity.Mul(it.UnitPrice).Add(it.TaxAmount)
		if !it.LineTotal.Equal(expected) {
			problems = append(problems, fmt.Sprintf(
				"ítem %d: total de línea (%s) no coincide con cantidad × precio + IVA (%s)",
				i+1, it.LineTotal, expected))
		}
		sumLines = sumLines.Add(it.LineTotal)
		sumTax = sumTax.Add(it.TaxAmount)
	}

	// El resumen debe conciliar con los ítems: el total confirmado siempre es
	// el verificado, nunca el provisto por el caller.
	if len(req.Items) > 0 {
		if !req.Summary.TaxTotal.Equal(sumTax) {
			problems = append(problems, fmt.Sprintf(
				"total IVA (%s) no coincide con la suma del IVA por ítems (%s)", req.Summary.TaxTotal, sumTax))
		}
		expectedGrand := req.Summary.Subtotal.Add(req.Summary.TaxTotal)
		if !req.Summary.GrandTotal.Equal(expectedGrand) {
			problems = append(problems, fmt.Sprintf(
				"total general (%s) no coincide con subtotal + IVA (%s)", req.Summary.GrandTotal, expectedGrand))
		}
		if !req.Summary.GrandTotal.Equal(sumLines) {
			problems = append(problems, fmt.Sprintf(
				"total general (%s) no coincide con la suma de líneas (%s)", req.Summary.GrandTotal, sumLines))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	code := domain.CodeTotalsMismatch
	if strings.Contains(problems[0], "receptor") || strings.Contains(problems[0], "RUC del receptor") {
		code = domain.CodeInvalidReceiver
	}
	if strings.Contains(problems[0], "no positiv") {
		code = domain.CodeNonPositiveAmount
	}
	return domain.ValidationError(code, strings.Join(problems, "; "), nil)
}

// ReconciledSummary recalcula el resumen desde los ítems. Es lo que se pasa al
// canal de confirmación: números verificados, nunca los del caller.
func ReconciledSummary(items []entity.InvoiceItem) entity.InvoiceSummary {
	var sum entity.InvoiceSummary
	for _, it := range items {
		sum.TaxTotal = sum.TaxTotal.Add(it.TaxAmount)
		sum.GrandTotal = sum.GrandTotal.Add(it.LineTotal)
	}
	sum.Subtotal = sum.GrandTotal.Sub(sum.TaxTotal)
	return sum
}
