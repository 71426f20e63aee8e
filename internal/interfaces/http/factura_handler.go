package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/tu-usuario/facturador-pro/internal/application/dto"
	"github.com/tu-usuario/facturador-pro/internal/application/emission"
	"github.com/tu-usuario/facturador-pro/internal/application/facturador"
	"github.com/tu-usuario/facturador-pro/internal/domain"
	"github.com/tu-usuario/facturador-pro/pkg/logger"
)

// FacturaHandler maneja la emisión de facturas vía API (protegido).
type FacturaHandler struct {
	orq      *facturador.Orchestrator
	registry *emission.Registry
	log      *logger.Logger
}

// NewFacturaHandler construye el handler.
func NewFacturaHandler(orq *facturador.Orchestrator, registry *emission.Registry, log *logger.Logger) *FacturaHandler {
	return &FacturaHandler{orq: orq, registry: registry, log: log.Component("api-facturas")}
}

// Emit lanza la emisión en background y devuelve 202 con el ID para consultar
// su estado. La emisión espera la aprobación humana en la cola, por eso no se
// procesa en línea: el request HTTP no puede quedarse bloqueado hasta que un
// aprobador decida.
// POST /api/invoices
func (h *FacturaHandler) Emit(c *fiber.Ctx) error {
	var in dto.EmitInvoiceRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if in.RUC == "" || in.RUC != GetRUC(c) {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Code: "FORBIDDEN", Message: "el RUC de la petición no coincide con el del token"})
	}
	req, err := in.ToEntity()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	}

	em := h.registry.Create(in.RUC)
	cred := in.Credentials()

	// Contexto propio: la emisión sigue viva aunque el caller corte el request.
	go func() {
		ctx := context.Background()
		res, err := h.orq.IssueInvoice(ctx, cred, req)
		if err != nil {
			e, ok := domain.AsError(err)
			if !ok {
				e = domain.RetrievalError(domain.CodeServiceUnreachable, err.Error(), err)
			}
			h.registry.Fail(em.ID, e)
			h.log.Warn().Str("emission_id", em.ID).Str("ruc", em.RUC).
				Str("codigo", string(e.Code)).Msg("emisión fallida")
			return
		}
		h.registry.Complete(em.ID, res)
	}()

	return c.Status(fiber.StatusAccepted).JSON(dto.EmissionAccepted{
		EmissionID: em.ID,
		Estado:     em.Status,
	})
}

// Get consulta el estado de una emisión.
// GET /api/emissions/:id
func (h *FacturaHandler) Get(c *fiber.Ctx) error {
	em := h.registry.Get(c.Params("id"))
	if em == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "emisión no encontrada"})
	}
	if em.RUC != GetRUC(c) {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "acceso denegado"})
	}

	out := dto.EmissionResponse{
		EmissionID: em.ID,
		RUC:        em.RUC,
		Estado:     em.Status,
		CreadoEn:   em.CreatedAt,
	}
	if em.Result != nil {
		out.Resultado = &dto.ResultadoDTO{
			NumeroDocumento: em.Result.DocumentID,
			CDC:             em.Result.CDC,
			EmitidoEn:       em.Result.IssuedAt,
		}
	}
	if em.Err != nil {
		out.Error = &dto.ErrorResponse{
			Code:     string(em.Err.Code),
			Message:  em.Err.Message,
			Recovery: em.Err.Recovery(),
		}
	}
	return c.JSON(out)
}
