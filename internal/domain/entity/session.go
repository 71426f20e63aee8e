package entity

import "time"

// Session sesión autenticada contra el portal de la SET.
// El token es opaco: lo emite el WS y el núcleo solo lo reenvía.
// No sobrevive al proceso; no se persiste nunca.
type Session struct {
	Token     string
	CreatedAt time.Time
}

// Estados del contribuyente según el RUC en la SET.
const (
	TaxpayerStatusActive    = "ACTIVO"
	TaxpayerStatusInactive  = "INACTIVO"
	TaxpayerStatusSuspended = "SUSPENDIDO"
)

// EconomicActivity actividad económica declarada en el RUC.
type EconomicActivity struct {
	Code        string
	Description string
}

// Profile metadatos del contribuyente devueltos por la SET tras el login.
// Se recupera una vez por sesión y es de solo lectura después.
type Profile struct {
	RUC              string
	BusinessName     string
	Status           string // TaxpayerStatus*
	EconomicActivity EconomicActivity
	TaxpayerType     string // catálogo iTipCont: "1" física, "2" jurídica
	ApprovedAt       time.Time
	CSC              string // código de seguridad del contribuyente
	Timbrado         string
	TimbradoValidFrom time.Time
	// IssuedByDocType histograma de tipos de documento emitidos, usado por la
	// política de selección de tipo de documento al proponer la configuración.
	IssuedByDocType map[string]int
}
