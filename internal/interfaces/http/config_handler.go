package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tu-usuario/facturador-pro/internal/application/dto"
	"github.com/tu-usuario/facturador-pro/internal/application/facturador"
	"github.com/tu-usuario/facturador-pro/internal/domain"
	"github.com/tu-usuario/facturador-pro/pkg/logger"
	"github.com/tu-usuario/facturador-pro/pkg/sifen"
)

// ConfigHandler maneja la invalidación de configuración cacheada (protegido).
type ConfigHandler struct {
	orq *facturador.Orchestrator
	log *logger.Logger
}

// NewConfigHandler construye el handler.
func NewConfigHandler(orq *facturador.Orchestrator, log *logger.Logger) *ConfigHandler {
	return &ConfigHandler{orq: orq, log: log.Component("api-config")}
}

// Invalidate evicta la configuración cacheada del RUC por el disparador dado.
// Idempotente: invalidar lo que no está cacheado también es 204.
// DELETE /api/config/:ruc
func (h *ConfigHandler) Invalidate(c *fiber.Ctx) error {
	ruc := c.Params("ruc")
	if ruc != GetRUC(c) {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Code: "FORBIDDEN", Message: "el RUC no coincide con el del token"})
	}

	var in dto.InvalidateConfigRequest
	if err := c.BodyParser(&in); err != nil || in.Trigger == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Code: "VALIDATION", Message: "trigger requerido"})
	}

	if err := h.orq.InvalidateConfiguration(c.Context(), ruc, sifen.InvalidationTrigger(in.Trigger)); err != nil {
		if e, ok := domain.AsError(err); ok && e.Code == domain.CodeConstraintViolated {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: string(e.Code), Message: e.Message})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	h.log.Info().Str("ruc", ruc).Str("trigger", in.Trigger).Msg("configuración invalidada vía API")
	return c.SendStatus(fiber.StatusNoContent)
}
