package facturador

import (
	"github.com/tu-usuario/facturador-pro/internal/domain/entity"
	"github.com/tu-usuario/facturador-pro/pkg/sifen"
)

// DefaultDocumentTypePolicy elige el tipo de documento más emitido según el
// histograma del perfil; ante empate, ausencia de historial o un tipo fuera
// de catálogo, cae a factura electrónica. La regla es deliberadamente una
// política enchufable: la consulta exacta del historial no está cerrada.
func DefaultDocumentTypePolicy(p *entity.Profile) string {
	if p == nil || len(p.IssuedByDocType) == 0 {
		return sifen.DocTypeFactura
	}
	best, bestCount, tied := "", 0, false
	for docType, count := range p.IssuedByDocType {
		if !sifen.ValidDocumentTypes[docType] {
			continue
		}
		switch {
		case count > bestCount:
			best, bestCount, tied = docType, count, false
		case count == bestCount && docType != best:
			tied = true
		}
	}
	if best == "" || tied {
		return sifen.DocTypeFactura
	}
	return best
}
