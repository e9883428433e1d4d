package cli

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/spf13/cobra"

	"github.com/arturoeanton/medguide-qa/internal/handler"
	"github.com/arturoeanton/medguide-qa/internal/mcp"
	"github.com/arturoeanton/medguide-qa/internal/middleware"
	"github.com/arturoeanton/medguide-qa/internal/port"
	"github.com/arturoeanton/medguide-qa/pkg/config"
)

var serveInit bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web UI and JSON API",
	Long: `Start the HTTP server. The browser UI is served at / and the JSON API
under /api/v1. When MCP is enabled the MCP server listens on MCP_PORT.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveInit, "init", false, "initialize the system in the background at startup")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	app := newApp(cfg, qaService, auditor)

	if serveInit {
		go func() {
			msg := qaService.InitializeSystem(ctx)
			slog.Info("startup initialization", "ok", msg.OK, "message", msg.Message)
		}()
	}

	if cfg.MCPEnabled {
		server, err := mcp.NewServer(qaService, auditor, mcp.WithUploadRoot(cfg.MCPUploadRoot))
		if err != nil {
			return err
		}
		go func() {
			if err := server.RunHTTP(ctx, ":"+cfg.MCPPort); err != nil {
				slog.Error("MCP server failed", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			slog.Warn("shutdown", "error", err)
		}
	}()

	slog.Info("🌐 Fiber listening", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newApp builds the Fiber application with the UI and API routes.
func newApp(c *config.Config, qa port.QAService, audit middleware.AuditWriter) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      c.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // synchronous uploads rebuild the index
		BodyLimit:    int(c.MaxPDFBytes()) + 1<<20,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{c.FrontendURL},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
	}))
	app.Use(middleware.AuditMiddleware(audit))

	upload := middleware.UploadLimit(c.MaxPDFBytes())
	app.Use("/documents", upload)

	tracker := handler.NewJobTracker()
	api := app.Group("/api/v1")
	api.Use("/documents", upload)

	handler.NewQAHandler(qa, tracker).Register(api)
	handler.NewJobsHandler(tracker).Register(api)
	handler.NewUIHandler(qa, c.AppName).Register(app)

	return app
}
