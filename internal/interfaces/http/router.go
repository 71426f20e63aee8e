package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tu-usuario/facturador-pro/internal/application/emission"
	"github.com/tu-usuario/facturador-pro/internal/application/facturador"
	"github.com/tu-usuario/facturador-pro/pkg/jwt"
	"github.com/tu-usuario/facturador-pro/pkg/logger"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Orchestrator *facturador.Orchestrator
	Registry     *emission.Registry
	Approvals    *ApprovalQueue
	Log          *logger.Logger
	JWTSecret    string
}

// Router registra las rutas de la API. Todo requiere Bearer Token; la cola de
// aprobaciones exige además el rol aprobador.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))

	facturaHandler := NewFacturaHandler(deps.Orchestrator, deps.Registry, deps.Log)
	api.Post("/invoices", facturaHandler.Emit)
	api.Get("/emissions/:id", facturaHandler.Get)

	configHandler := NewConfigHandler(deps.Orchestrator, deps.Log)
	api.Delete("/config/:ruc", configHandler.Invalidate)

	// Aprobaciones: solo el rol aprobador decide.
	approvals := api.Group("/approvals", RequireRole(jwt.RoleAprobador))
	approvalHandler := NewApprovalHandler(deps.Approvals, deps.Log)
	approvals.Get("/", approvalHandler.List)
	approvals.Post("/:id", approvalHandler.Resolve)
}
