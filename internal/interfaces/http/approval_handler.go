package http

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/tu-usuario/facturador-pro/internal/application/dto"
	"github.com/tu-usuario/facturador-pro/internal/application/facturador"
	"github.com/tu-usuario/facturador-pro/pkg/logger"
)

// ApprovalHandler expone la cola de aprobaciones (solo rol aprobador).
type ApprovalHandler struct {
	queue *ApprovalQueue
	log   *logger.Logger
}

// NewApprovalHandler construye el handler.
func NewApprovalHandler(queue *ApprovalQueue, log *logger.Logger) *ApprovalHandler {
	return &ApprovalHandler{queue: queue, log: log.Component("api-aprobaciones")}
}

// List devuelve las propuestas pendientes de decisión.
// GET /api/approvals
func (h *ApprovalHandler) List(c *fiber.Ctx) error {
	pendientes := h.queue.Pending()
	out := make([]dto.ApprovalResponse, len(pendientes))
	for i, pa := range pendientes {
		out[i] = dto.ApprovalResponse{
			ApprovalID: pa.ID,
			Tipo:       string(pa.Proposal.Kind),
			RUC:        pa.Proposal.RUC,
			Detalle:    describir(pa.Proposal),
			CreadoEn:   pa.CreatedAt,
		}
	}
	return c.JSON(out)
}

// Resolve aprueba o rechaza una propuesta pendiente.
// POST /api/approvals/:id
func (h *ApprovalHandler) Resolve(c *fiber.Ctx) error {
	var in dto.ResolveApprovalRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	id := c.Params("id")
	if err := h.queue.Resolve(id, in.Aprobar); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: err.Error()})
	}
	h.log.Info().Str("approval_id", id).Bool("aprobado", in.Aprobar).
		Str("aprobador", GetSubject(c)).Msg("propuesta resuelta")
	return c.SendStatus(fiber.StatusNoContent)
}

// describir arma el resumen legible de la propuesta para el listado.
func describir(p facturador.Proposal) string {
	switch p.Kind {
	case facturador.ProposalConfiguration:
		if p.Config != nil {
			return fmt.Sprintf("configuración del emisor: timbrado %s, tipo de documento %s",
				p.Config.Timbrado, p.Config.DocumentType)
		}
	case facturador.ProposalInvoice:
		if p.Invoice != nil {
			return fmt.Sprintf("factura a %s por %s Gs. (%d ítems)",
				p.Invoice.Receiver.BusinessName, p.Invoice.Summary.GrandTotal.StringFixed(0), p.Invoice.ItemCount)
		}
	}
	return string(p.Kind)
}
