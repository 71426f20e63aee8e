// Package sifen contiene catálogos y validaciones alineados al Manual Técnico
// del Sistema Integrado de Facturación Electrónica Nacional (SIFEN, Paraguay).
package sifen

// =============================================================================
// Tipos de Documento Electrónico (iTiDE)
// =============================================================================

const (
	DocTypeFactura       = "1" // Factura electrónica
	DocTypeImportacion   = "2" // Factura electrónica de importación
	DocTypeExportacion   = "3" // Factura electrónica de exportación
	DocTypeAutofactura   = "4" // Autofactura electrónica
	DocTypeNotaCredito   = "5" // Nota de crédito electrónica
	DocTypeNotaDebito    = "6" // Nota de débito electrónica
	DocTypeNotaRemision  = "7" // Nota de remisión electrónica
)

// ValidDocumentTypes tipos de documento electrónico reconocidos.
var ValidDocumentTypes = map[string]bool{
	DocTypeFactura: true, DocTypeImportacion: true, DocTypeExportacion: true,
	DocTypeAutofactura: true, DocTypeNotaCredito: true, DocTypeNotaDebito: true,
	DocTypeNotaRemision: true,
}

// =============================================================================
// Tipos de Contribuyente (iTipCont)
// =============================================================================

const (
	TaxpayerPersonaFisica   = "1"
	TaxpayerPersonaJuridica = "2"
)

// =============================================================================
// Ambientes del WS SIFEN (iAmb)
// =============================================================================

const (
	EnvProd = "1" // producción (sifen.set.gov.py)
	EnvTest = "2" // pruebas / habilitación (sifen-test.set.gov.py)
)

// =============================================================================
// Disparadores de invalidación de la configuración del emisor.
// Se registran para auditoría; su único efecto es la evicción inmediata.
// =============================================================================

type InvalidationTrigger string

const (
	TriggerStatusChange        InvalidationTrigger = "CAMBIO_ESTADO_RUC"
	TriggerEstablishmentUpdate InvalidationTrigger = "ACTUALIZACION_ESTABLECIMIENTO"
	TriggerCSCUpdate           InvalidationTrigger = "ACTUALIZACION_CSC"
	TriggerTimbradoExpired     InvalidationTrigger = "VENCIMIENTO_TIMBRADO"
	TriggerConfigChanged       InvalidationTrigger = "NOTIFICACION_CAMBIO_CONFIGURACION"
)

// ValidTriggers disparadores de invalidación reconocidos.
var ValidTriggers = map[InvalidationTrigger]bool{
	TriggerStatusChange:        true,
	TriggerEstablishmentUpdate: true,
	TriggerCSCUpdate:           true,
	TriggerTimbradoExpired:     true,
	TriggerConfigChanged:       true,
}
