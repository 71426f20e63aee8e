package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Receiver identidad del receptor de la factura.
type Receiver struct {
	RUC          string // con dígito verificador si es contribuyente
	BusinessName string
	Email        string // opcional, para remisión del KuDE
}

// InvoiceItem línea de detalle de la factura.
// Invariante: LineTotal = Quantity × UnitPrice + TaxAmount.
type InvoiceItem struct {
	Code        string
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxAmount   decimal.Decimal // IVA de la línea
	LineTotal   decimal.Decimal
}

// InvoiceSummary resumen calculado de la factura.
// Invariante: GrandTotal = Subtotal + TaxTotal = Σ LineTotal.
type InvoiceSummary struct {
	Subtotal   decimal.Decimal
	TaxTotal   decimal.Decimal
	GrandTotal decimal.Decimal
}

// InvoiceRequest solicitud de emisión. Se recibe por llamada y se descarta:
// nunca se cachea. Establishment y DispatchPoint son opcionales (0 = ausente);
// cuando vienen, deben valer 1.
type InvoiceRequest struct {
	Receiver      Receiver
	Date          time.Time
	Items         []InvoiceItem
	Summary       InvoiceSummary
	Establishment int
	DispatchPoint int
}

// InvoiceResult documento emitido por la SET. Es un artefacto legal: una vez
// obtenido es inmutable y no se borra, solo se corrige con un documento
// compensatorio posterior (nota de crédito/débito).
type InvoiceResult struct {
	DocumentID string
	CDC        string // código de control único emitido por la SET
	IssuedAt   time.Time
}
