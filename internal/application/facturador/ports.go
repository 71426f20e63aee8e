package facturador

import (
	"context"
	"time"

	"github.com/tu-usuario/facturador-pro/internal/domain/entity"
)

// InvoicingService define el puerto de salida hacia el WS SIFEN de la SET.
// Cada método puede fallar con un error clasificado del dominio; la
// implementación concreta usa SOAP y para tests se inyecta un fake.
type InvoicingService interface {
	// Login autentica las credenciales y devuelve sesión + perfil del
	// contribuyente. El perfil se recupera una vez por sesión.
	Login(ctx context.Context, cred entity.Credentials) (*entity.Session, *entity.Profile, error)

	// FetchConfig consulta la configuración vigente del emisor en la SET.
	// Devuelve nil, nil si el contribuyente nunca completó la configuración.
	FetchConfig(ctx context.Context, ruc, token string) (*entity.IssuerConfig, error)

	// SaveConfig persiste la configuración del emisor y devuelve su ID.
	SaveConfig(ctx context.Context, ruc, token string, cfg *entity.IssuerConfig) (string, error)

	// SubmitInvoice envía la factura ya validada y devuelve el documento
	// emitido (ID + CDC). El resultado es inmutable.
	SubmitInvoice(ctx context.Context, token string, req *entity.InvoiceRequest, cfg *entity.IssuerConfig) (*entity.InvoiceResult, error)
}

// ProposalKind tipo de operación que requiere confirmación humana.
type ProposalKind string

const (
	ProposalConfiguration ProposalKind = "configuracion"
	ProposalInvoice       ProposalKind = "factura"
)

// InvoiceProposal resumen de la factura presentado al confirmador. El resumen
// es siempre el reconciliado desde los ítems, nunca el provisto por el caller.
type InvoiceProposal struct {
	Receiver  entity.Receiver
	Date      time.Time
	ItemCount int
	Summary   entity.InvoiceSummary
}

// Proposal propuesta presentada al canal de confirmación.
type Proposal struct {
	Kind    ProposalKind
	RUC     string
	Config  *entity.IssuerConfig // presente cuando Kind == configuracion
	Invoice *InvoiceProposal     // presente cuando Kind == factura
}

// ConfirmationChannel es la capacidad de aprobación humana. Debe invocarse y
// responder afirmativo antes de persistir una configuración o emitir una
// factura; no existe camino de override. La implementación concreta (prompt de
// terminal, cola de aprobaciones HTTP) es un colaborador externo y es dueña de
// la política de timeout: el núcleo solo respeta la cancelación del contexto.
type ConfirmationChannel interface {
	Confirm(ctx context.Context, p Proposal) (bool, error)
}

// DocumentTypePolicy decide el tipo de documento de la configuración propuesta
// a partir del perfil. La heurística exacta es política enchufable; ver
// DefaultDocumentTypePolicy.
type DocumentTypePolicy func(p *entity.Profile) string
