package domain

import (
	"errors"
	"fmt"
)

// Kind clasifica todo fallo del núcleo en un conjunto cerrado.
// Ningún error sin clasificar debe salir del orquestador: cada frontera
// (WS SIFEN, cache, canal de confirmación) envuelve sus fallos en un Kind.
type Kind string

const (
	// KindAuthentication credenciales inválidas, habilitación pendiente o RUC inactivo.
	KindAuthentication Kind = "AUTHENTICATION"
	// KindConfiguration restricción violada, certificado faltante o CSC inválido.
	KindConfiguration Kind = "CONFIGURATION"
	// KindConfigRetrieval cache o servicio inaccesible al recuperar la configuración.
	KindConfigRetrieval Kind = "CONFIG_RETRIEVAL"
	// KindInvoiceValidation datos del receptor, montos o timbrado inválidos.
	KindInvoiceValidation Kind = "INVOICE_VALIDATION"
	// KindTransport timeout, indisponibilidad temporal o rate limiting del WS.
	KindTransport Kind = "TRANSPORT"
	// KindUserCancelled el canal de confirmación respondió negativo o no respondió.
	KindUserCancelled Kind = "USER_CANCELLED"
)

// Code identifica la sub-razón dentro de un Kind.
type Code string

const (
	// Autenticación.
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeEnrollmentPending  Code = "ENROLLMENT_PENDING"
	CodeRUCInactive        Code = "RUC_INACTIVE"

	// Configuración.
	CodeConstraintViolated Code = "CONSTRAINT_VIOLATED"
	CodeMissingCertificate Code = "MISSING_CERTIFICATE"
	CodeInvalidCSC         Code = "INVALID_CSC"

	// Recuperación de configuración.
	CodeCacheUnavailable   Code = "CACHE_UNAVAILABLE"
	CodeServiceUnreachable Code = "SERVICE_UNREACHABLE"

	// Validación de factura.
	CodeInvalidReceiver   Code = "INVALID_RECEIVER"
	CodeNonPositiveAmount Code = "NON_POSITIVE_AMOUNT"
	CodeTotalsMismatch    Code = "TOTALS_MISMATCH"
	CodeDuplicateDocument Code = "DUPLICATE_DOCUMENT"
	CodeExpiredTimbrado   Code = "EXPIRED_TIMBRADO"

	// Transporte. Solo estos tres códigos son reintentables.
	CodeTimeout     Code = "TIMEOUT"
	CodeUnavailable Code = "TEMPORARILY_UNAVAILABLE"
	CodeRateLimited Code = "RATE_LIMITED"

	// Cancelación.
	CodeConfirmationDenied  Code = "CONFIRMATION_DENIED"
	CodeConfirmationMissing Code = "CONFIRMATION_MISSING"
)

// recoveryByKind mensaje de recuperación fijo por Kind, pensado para mostrarse
// directamente al usuario. Es dato, no lógica: se testea por enumeración.
var recoveryByKind = map[Kind]string{
	KindAuthentication:    "Verificá el RUC (sin dígito verificador) y la clave de acceso; si el RUC figura inactivo o la habilitación está pendiente, regularizá la situación en el portal de la SET antes de reintentar.",
	KindConfiguration:     "La configuración del emisor fue rechazada; revisá timbrado, CSC y actividad económica en el portal e-Kuatia y volvé a ejecutar la configuración.",
	KindConfigRetrieval:   "No se pudo verificar la configuración contra la SET; es una condición transitoria, reintentá la operación completa en unos minutos.",
	KindInvoiceValidation: "La factura no pasó las validaciones locales; corregí los datos indicados en el detalle del error antes de volver a emitir.",
	KindTransport:         "El web service de la SET no respondió; la operación puede reintentarse (los reintentos automáticos ya fueron agotados).",
	KindUserCancelled:     "La operación fue cancelada por falta de confirmación; ningún cambio fue aplicado.",
}

// retryableCodes únicos códigos que habilitan reintento automático.
var retryableCodes = map[Code]bool{
	CodeTimeout:     true,
	CodeUnavailable: true,
	CodeRateLimited: true,
}

// Error es el error clasificado del núcleo: kind + código + mensaje + contexto.
// La jerarquía de subclases del diseño original se aplana en este único tipo
// etiquetado; el hint de recuperación es dato estático por Kind.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	// Context campos estructurados para log (ruc, intento, endpoint...).
	Context map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Kind, e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s/%s: %s", e.Kind, e.Code, e.Message)
}

// Unwrap expone la causa para errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Retryable true solo para los subtipos transitorios de transporte.
// Todo otro kind es terminal y se propaga sin reintento automático.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransport && retryableCodes[e.Code]
}

// Recovery devuelve el mensaje de recuperación fijo del Kind.
func (e *Error) Recovery() string { return recoveryByKind[e.Kind] }

// WithContext agrega un campo de contexto y devuelve el mismo error.
func (e *Error) WithContext(k, v string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string, 2)
	}
	e.Context[k] = v
	return e
}

// NewError construye un error clasificado con causa opcional.
func NewError(kind Kind, code Code, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, cause: cause}
}

// Constructores por kind, en el orden de la taxonomía.

func AuthError(code Code, msg string, cause error) *Error {
	return NewError(KindAuthentication, code, msg, cause)
}

func ConfigError(code Code, msg string, cause error) *Error {
	return NewError(KindConfiguration, code, msg, cause)
}

func RetrievalError(code Code, msg string, cause error) *Error {
	return NewError(KindConfigRetrieval, code, msg, cause)
}

func ValidationError(code Code, msg string, cause error) *Error {
	return NewError(KindInvoiceValidation, code, msg, cause)
}

func TransportError(code Code, msg string, cause error) *Error {
	return NewError(KindTransport, code, msg, cause)
}

func Cancelled(code Code, msg string) *Error {
	return NewError(KindUserCancelled, code, msg, nil)
}

// AsError extrae el error clasificado de una cadena envuelta.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Classify garantiza que ningún error sin clasificar cruce una frontera del
// núcleo: si err ya es un *Error lo devuelve intacto; si no, lo envuelve con
// el kind y código de reserva indicados.
func Classify(err error, kind Kind, code Code, msg string) *Error {
	if e, ok := AsError(err); ok {
		return e
	}
	return NewError(kind, code, msg, err)
}

// IsKind true si err es un error clasificado del kind dado.
func IsKind(err error, kind Kind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}

// Kinds enumera la taxonomía completa (para tests y documentación).
func Kinds() []Kind {
	return []Kind{
		KindAuthentication,
		KindConfiguration,
		KindConfigRetrieval,
		KindInvoiceValidation,
		KindTransport,
		KindUserCancelled,
	}
}
