package entity

import (
	"fmt"
	"time"
)

// Este sistema emite siempre desde la casa matriz: establecimiento y punto de
// expedición valen 1 y cualquier otro valor es un fallo duro de validación,
// nunca se corrige en silencio.
const (
	FixedEstablishment = 1
	FixedDispatchPoint = 1
)

// ModalityFlags banderas del grupo de modalidad avanzada (e-Kuatia vs e-Kuatia'i).
type ModalityFlags struct {
	Advanced          bool // modalidad avanzada habilitada
	BatchSubmission   bool // envío por lotes
	EventsEnabled     bool // eventos de documento (cancelación, conformidad...)
	ContingencyEnable bool // emisión en contingencia
}

// IssuerConfig es el registro de configuración inicial del emisor en la SET.
// Se crea una sola vez por RUC; se refresca ante cache miss o discordancia y
// se invalida por los disparadores nombrados en configcache.
type IssuerConfig struct {
	RUC              string
	Timbrado         string
	Establishment    int // siempre 1
	DispatchPoint    int // siempre 1
	DocumentType     string // catálogo iTiDE, ver pkg/sifen
	EconomicActivity EconomicActivity
	ValidFrom        time.Time // inicio de vigencia del timbrado
	TaxpayerType     string
	CSC              string
	LogoURL          string // opcional
	Modality         ModalityFlags
}

// Validate aplica la invariante dura del emisor único.
func (c *IssuerConfig) Validate() error {
	if c.RUC == "" {
		return fmt.Errorf("configuración sin RUC")
	}
	if c.Establishment != FixedEstablishment || c.DispatchPoint != FixedDispatchPoint {
		return fmt.Errorf("establecimiento=%d y punto de expedición=%d: este sistema solo soporta 1/1",
			c.Establishment, c.DispatchPoint)
	}
	if c.Timbrado == "" {
		return fmt.Errorf("configuración sin timbrado")
	}
	if c.DocumentType == "" {
		return fmt.Errorf("configuración sin tipo de documento")
	}
	return nil
}

// Equal igualdad estructural usada en la reconciliación cache vs SET.
// El logo se compara por URL, no por bytes: la SET devuelve la URL publicada.
func (c *IssuerConfig) Equal(other *IssuerConfig) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.RUC == other.RUC &&
		c.Timbrado == other.Timbrado &&
		c.Establishment == other.Establishment &&
		c.DispatchPoint == other.DispatchPoint &&
		c.DocumentType == other.DocumentType &&
		c.EconomicActivity == other.EconomicActivity &&
		c.ValidFrom.Equal(other.ValidFrom) &&
		c.TaxpayerType == other.TaxpayerType &&
		c.CSC == other.CSC &&
		c.LogoURL == other.LogoURL &&
		c.Modality == other.Modality
}
