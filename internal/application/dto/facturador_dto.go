package dto

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tu-usuario/facturador-pro/internal/domain/entity"
)

// EmitInvoiceRequest petición de emisión. Los montos viajan como string para
// no perder precisión en el JSON; se convierten a decimal al mapear.
type EmitInvoiceRequest struct {
	RUC         string             `json:"ruc"`
	ClaveAcceso string             `json:"clave_acceso"`
	ModEmision  string             `json:"modalidad_emision"`
	Fecha       string             `json:"fecha"` // yyyy-MM-dd
	Receptor    ReceptorDTO        `json:"receptor"`
	Items       []ItemDTO          `json:"items"`
	Resumen     ResumenDTO         `json:"resumen"`
	// Establecimiento y punto de expedición son opcionales; si vienen, deben
	// valer 1.
	Establecimiento int `json:"establecimiento,omitempty"`
	PuntoExpedicion int `json:"punto_expedicion,omitempty"`
}

type ReceptorDTO struct {
	RUC         string `json:"ruc"`
	RazonSocial string `json:"razon_social"`
	Email       string `json:"email,omitempty"`
}

type ItemDTO struct {
	Codigo         string `json:"codigo"`
	Descripcion    string `json:"descripcion"`
	Cantidad       string `json:"cantidad"`
	PrecioUnitario string `json:"precio_unitario"`
	IVA            string `json:"iva"`
	Total          string `json:"total"`
}

type ResumenDTO struct {
	Subtotal string `json:"subtotal"`
	TotalIVA string `json:"total_iva"`
	Total    string `json:"total"`
}

// Credentials mapea las credenciales del contribuyente.
func (r *EmitInvoiceRequest) Credentials() entity.Credentials {
	return entity.Credentials{RUC: r.RUC, AccessKey: r.ClaveAcceso, EmissionMode: r.ModEmision}
}

// ToEntity convierte la petición al modelo del dominio. Falla ante fechas o
// montos no parseables; la validación aritmética es responsabilidad del núcleo.
func (r *EmitInvoiceRequest) ToEntity() (*entity.InvoiceRequest, error) {
	fecha, err := time.Parse("2006-01-02", r.Fecha)
	if err != nil {
		return nil, fmt.Errorf("fecha inválida %q (formato yyyy-MM-dd)", r.Fecha)
	}

	items := make([]entity.InvoiceItem, len(r.Items))
	for i, it := range r.Items {
		cantidad, err := decimal.NewFromString(it.Cantidad)
		if err != nil {
			return nil, fmt.Errorf("ítem %d: cantidad inválida %q", i+1, it.Cantidad)
		}
		precio, err := decimal.NewFromString(it.PrecioUnitario)
		if err != nil {
			return nil, fmt.Errorf("ítem %d: precio unitario inválido %q", i+1, it.PrecioUnitario)
		}
		iva, err := decimal.NewFromString(it.IVA)
		if err != nil {
			return nil, fmt.Errorf("ítem %d: IVA inválido %q", i+1, it.IVA)
		}
		total, err := decimal.NewFromString(it.Total)
		if err != nil {
			return nil, fmt.Errorf("ítem %d: total inválido %q", i+1, it.Total)
		}
		items[i] = entity.InvoiceItem{
			Code:        it.Codigo,
			Description: it.Descripcion,
			Quantity:    cantidad,
			UnitPrice:   precio,
			TaxAmount:   iva,
			LineTotal:   total,
		}
	}

	subtotal, err := decimal.NewFromString(r.Resumen.Subtotal)
	if err != nil {
		return nil, fmt.Errorf("resumen: subtotal inválido %q", r.Resumen.Subtotal)
	}
	totalIVA, err := decimal.NewFromString(r.Resumen.TotalIVA)
	if err != nil {
		return nil, fmt.Errorf("resumen: total IVA inválido %q", r.Resumen.TotalIVA)
	}
	total, err := decimal.NewFromString(r.Resumen.Total)
	if err != nil {
		return nil, fmt.Errorf("resumen: total inválido %q", r.Resumen.Total)
	}

	return &entity.InvoiceRequest{
		Receiver: entity.Receiver{
			RUC:          r.Receptor.RUC,
			BusinessName: r.Receptor.RazonSocial,
			Email:        r.Receptor.Email,
		},
		Date:          fecha,
		Items:         items,
		Summary:       entity.InvoiceSummary{Subtotal: subtotal, TaxTotal: totalIVA, GrandTotal: total},
		Establishment: r.Establecimiento,
		DispatchPoint: r.PuntoExpedicion,
	}, nil
}

// EmissionAccepted respuesta 202 del alta de emisión.
type EmissionAccepted struct {
	EmissionID string `json:"emission_id"`
	Estado     string `json:"estado"`
}

// EmissionResponse estado actual de una emisión.
type EmissionResponse struct {
	EmissionID string           `json:"emission_id"`
	RUC        string           `json:"ruc"`
	Estado     string           `json:"estado"`
	CreadoEn   time.Time        `json:"creado_en"`
	Resultado  *ResultadoDTO    `json:"resultado,omitempty"`
	Error      *ErrorResponse   `json:"error,omitempty"`
}

type ResultadoDTO struct {
	NumeroDocumento string    `json:"numero_documento"`
	CDC             string    `json:"cdc"`
	EmitidoEn       time.Time `json:"emitido_en"`
}

// ApprovalResponse propuesta pendiente de aprobación humana.
type ApprovalResponse struct {
	ApprovalID string    `json:"approval_id"`
	Tipo       string    `json:"tipo"` // configuracion | factura
	RUC        string    `json:"ruc"`
	Detalle    string    `json:"detalle"`
	CreadoEn   time.Time `json:"creado_en"`
}

// ResolveApprovalRequest decisión sobre una propuesta pendiente.
type ResolveApprovalRequest struct {
	Aprobar bool `json:"aprobar"`
}

// InvalidateConfigRequest disparador de invalidación de configuración.
type InvalidateConfigRequest struct {
	Trigger string `json:"trigger"`
}

// TokenRequest petición de emisión de token de API.
type TokenRequest struct {
	Subject string `json:"subject"`
	RUC     string `json:"ruc"`
	Role    string `json:"role"`
}

// TokenResponse token emitido.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
