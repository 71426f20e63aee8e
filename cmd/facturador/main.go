// Package main es el punto de entrada del facturador: CLI para emitir
// facturas electrónicas SIFEN con confirmación por terminal, e invocable
// también como servidor HTTP con cola de aprobaciones.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tu-usuario/facturador-pro/internal/application/configcache"
	"github.com/tu-usuario/facturador-pro/internal/application/dto"
	"github.com/tu-usuario/facturador-pro/internal/application/emission"
	"github.com/tu-usuario/facturador-pro/internal/application/facturador"
	"github.com/tu-usuario/facturador-pro/internal/domain"
	infracache "github.com/tu-usuario/facturador-pro/internal/infrastructure/cache"
	"github.com/tu-usuario/facturador-pro/internal/infrastructure/postgres"
	infrasifen "github.com/tu-usuario/facturador-pro/internal/infrastructure/sifen"
	"github.com/tu-usuario/facturador-pro/internal/infrastructure/terminal"
	apphttp "github.com/tu-usuario/facturador-pro/internal/interfaces/http"
	"github.com/tu-usuario/facturador-pro/pkg/config"
	pkgjwt "github.com/tu-usuario/facturador-pro/pkg/jwt"
	"github.com/tu-usuario/facturador-pro/pkg/logger"
	pkgsifen "github.com/tu-usuario/facturador-pro/pkg/sifen"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "facturador",
		Short: "Facturación electrónica SIFEN (e-Kuatia, Paraguay)",
		Long: `Emite facturas electrónicas contra el WS SIFEN de la SET con
configuración automática del emisor, cache reconciliado y confirmación humana
obligatoria antes de cada operación con efectos.

La configuración se lee de variables de entorno (SIFEN_ENV, CACHE_BACKEND,
REDIS_ADDR, DB_HOST, JWT_SECRET, ...) o de un archivo .env.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newEmitirCmd())
	rootCmd.AddCommand(newInvalidarCmd())
	rootCmd.AddCommand(newServirCmd())
	rootCmd.AddCommand(newTokenCmd())
	return rootCmd
}

// ── Armado de colaboradores ───────────────────────────────────────────────────

// buildStore elige el medio durable del cache según CACHE_BACKEND.
func buildStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (configcache.Store, func(), error) {
	switch cfg.Cache.Backend {
	case "redis":
		store, err := infracache.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			return nil, nil, err
		}
		store := postgres.NewConfigStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	case "memoria":
		log.Warn().Msg("cache en memoria: las entradas no sobreviven al reinicio")
		return infracache.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("CACHE_BACKEND desconocido: %q (usar redis|postgres|memoria)", cfg.Cache.Backend)
	}
}

func buildOrchestrator(ctx context.Context, cfg *config.Config, gate facturador.ConfirmationChannel, log *logger.Logger) (*facturador.Orchestrator, func(), error) {
	ws, err := infrasifen.NewClient(infrasifen.Config{
		AppEnv:  cfg.SIFEN.AppEnv,
		BaseURL: cfg.SIFEN.BaseURL,
		Timeout: time.Duration(cfg.SIFEN.TimeoutSeconds) * time.Second,
	}, log)
	if err != nil {
		return nil, nil, err
	}

	store, cleanup, err := buildStore(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	cache := configcache.New(store, cfg.Cache.TTL(), log)
	return facturador.New(ws, gate, cache, log), cleanup, nil
}

func loadConfigAndLogger() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("cargar configuración: %w", err)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})
	return cfg, log, nil
}

// ── emitir ────────────────────────────────────────────────────────────────────

func newEmitirCmd() *cobra.Command {
	var archivo string

	cmd := &cobra.Command{
		Use:   "emitir",
		Short: "Emite una factura electrónica con confirmación por terminal",
		Long: `Lee la factura de un archivo JSON, asegura la configuración del emisor
(consultándola en la SET o proponiéndola si nunca se configuró), pide
confirmación por terminal y envía.

Ejemplo:
  facturador emitir --archivo factura.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfigAndLogger()
			if err != nil {
				return err
			}

			raw, err := os.ReadFile(archivo)
			if err != nil {
				return fmt.Errorf("leer %s: %w", archivo, err)
			}
			var in dto.EmitInvoiceRequest
			if err := json.Unmarshal(raw, &in); err != nil {
				return fmt.Errorf("parsear %s: %w", archivo, err)
			}
			req, err := in.ToEntity()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			gate := terminal.New(os.Stdin, os.Stdout)
			orq, cleanup, err := buildOrchestrator(ctx, cfg, gate, log)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := orq.IssueInvoice(ctx, in.Credentials(), req)
			if err != nil {
				return renderError(err)
			}

			fmt.Println()
			fmt.Println("═══════════════════════════════════════════════════")
			fmt.Println("  FACTURA EMITIDA")
			fmt.Println("═══════════════════════════════════════════════════")
			fmt.Printf("  Documento: %s\n", res.DocumentID)
			fmt.Printf("  CDC:       %s\n", res.CDC)
			fmt.Printf("  Emitida:   %s\n", res.IssuedAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVarP(&archivo, "archivo", "f", "factura.json", "Archivo JSON con la factura a emitir")
	return cmd
}

// ── invalidar ─────────────────────────────────────────────────────────────────

func newInvalidarCmd() *cobra.Command {
	var ruc, trigger string

	cmd := &cobra.Command{
		Use:   "invalidar",
		Short: "Invalida la configuración cacheada de un RUC",
		Long: `Evicta la configuración cacheada del contribuyente. Disparadores válidos:
  CAMBIO_ESTADO_RUC, ACTUALIZACION_ESTABLECIMIENTO, ACTUALIZACION_CSC,
  VENCIMIENTO_TIMBRADO, NOTIFICACION_CAMBIO_CONFIGURACION

La operación es idempotente: invalidar lo que no está cacheado no es error.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			if ruc == "" {
				return fmt.Errorf("--ruc es requerido")
			}

			ctx := cmd.Context()
			store, cleanup, err := buildStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer cleanup()

			cache := configcache.New(store, cfg.Cache.TTL(), log)
			if err := cache.Invalidate(ctx, ruc, pkgsifen.InvalidationTrigger(trigger)); err != nil {
				return renderError(err)
			}
			fmt.Printf("Configuración de %s invalidada (%s)\n", ruc, trigger)
			return nil
		},
	}

	cmd.Flags().StringVar(&ruc, "ruc", "", "RUC del contribuyente (sin dígito verificador)")
	cmd.Flags().StringVar(&trigger, "trigger", string(pkgsifen.TriggerConfigChanged), "Disparador de la invalidación")
	return cmd
}

// ── servir ────────────────────────────────────────────────────────────────────

func newServirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "servir",
		Short: "Levanta la API HTTP con cola de aprobaciones",
		Long: `Levanta el servidor Fiber: POST /api/invoices encola la emisión y la
aprobación humana se resuelve vía GET/POST /api/approvals (rol aprobador).
Las métricas Prometheus se exponen en un listener aparte (METRICS_PORT).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			if cfg.JWT.Secret == "" {
				return fmt.Errorf("JWT_SECRET es requerido en modo servir")
			}

			ctx := cmd.Context()
			queue := apphttp.NewApprovalQueue()
			orq, cleanup, err := buildOrchestrator(ctx, cfg, queue, log)
			if err != nil {
				return err
			}
			defer cleanup()

			app := fiber.New(fiber.Config{
				AppName:      cfg.App.Name,
				ReadTimeout:  time.Second * 10,
				WriteTimeout: time.Second * 10,
				IdleTimeout:  time.Second * 60,
			})
			app.Use(fiberrecover.New())

			app.Get("/health", func(c *fiber.Ctx) error {
				return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
			})

			apphttp.Router(app, apphttp.RouterDeps{
				Orchestrator: orq,
				Registry:     emission.NewRegistry(),
				Approvals:    queue,
				Log:          log,
				JWTSecret:    cfg.JWT.Secret,
			})

			// /metrics en su propio listener para no exponerlo con la API.
			metricsSrv := &http.Server{Addr: cfg.HTTP.MetricsAddr(), Handler: promhttp.Handler()}
			go func() {
				log.Info().Str("addr", cfg.HTTP.MetricsAddr()).Msg("métricas Prometheus disponibles")
				if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error().Err(err).Msg("listener de métricas finalizado")
				}
			}()

			go func() {
				log.Info().Str("addr", cfg.HTTP.Addr()).Str("sifen_env", cfg.SIFEN.AppEnv).Msg("API HTTP escuchando")
				if err := app.Listen(cfg.HTTP.Addr()); err != nil {
					log.Error().Err(err).Msg("servidor HTTP finalizado")
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Info().Msg("señal de apagado recibida, cerrando servidor...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := app.ShutdownWithContext(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("apagado del servidor")
			}
			_ = metricsSrv.Shutdown(shutdownCtx)

			log.Info().Msg("aplicación detenida")
			return nil
		},
	}
}

// ── token ─────────────────────────────────────────────────────────────────────

func newTokenCmd() *cobra.Command {
	var subject, ruc, rol string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Genera un token JWT para la API HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			if cfg.JWT.Secret == "" {
				return fmt.Errorf("JWT_SECRET es requerido")
			}
			if rol != pkgjwt.RoleOperador && rol != pkgjwt.RoleAprobador {
				return fmt.Errorf("rol desconocido %q (usar %s|%s)", rol, pkgjwt.RoleOperador, pkgjwt.RoleAprobador)
			}
			tok, err := pkgjwt.Generate(cfg.JWT.Secret, subject, ruc, rol, cfg.JWT.Issuer, cfg.JWT.Expiration)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Sujeto del token (usuario u operador)")
	cmd.Flags().StringVar(&ruc, "ruc", "", "RUC en cuyo nombre opera el token")
	cmd.Flags().StringVar(&rol, "rol", pkgjwt.RoleOperador, "Rol: operador o aprobador")
	return cmd
}

// renderError presenta un error clasificado con su sugerencia de recuperación.
func renderError(err error) error {
	if e, ok := domain.AsError(err); ok {
		if rec := e.Recovery(); rec != "" {
			return fmt.Errorf("%s\n  Recuperación: %s", e.Error(), rec)
		}
	}
	return err
}
