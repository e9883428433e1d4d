package middleware

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/medguide-qa/internal/domain"
)

// AuditWriter defines how audit records are persisted.
type AuditWriter interface {
	WriteAudit(entry domain.AuditEntry) error
}

// SlogAuditWriter writes audit records as structured log lines.
type SlogAuditWriter struct {
	logger *slog.Logger
}

// NewSlogAuditWriter writes through logger, or slog.Default when nil.
func NewSlogAuditWriter(logger *slog.Logger) *SlogAuditWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAuditWriter{logger: logger.With("component", "audit")}
}

func (w *SlogAuditWriter) WriteAudit(e domain.AuditEntry) error {
	attrs := []any{
		"action", e.Action,
		"resource", e.Resource,
		"ip", e.IP,
		"user_agent", e.UserAgent,
		"at", e.CreatedAt,
	}
	for k, v := range e.Details {
		attrs = append(attrs, k, v)
	}
	w.logger.Info("audit", attrs...)
	return nil
}

// AuditMiddleware records every request that is not a plain read.
func AuditMiddleware(writer AuditWriter) fiber.Handler {
	return func(c fiber.Ctx) error {
		// Capture request data BEFORE handler execution (Fiber reuses context objects)
		method := c.Method()
		if method == fiber.MethodGet || method == fiber.MethodHead || method == fiber.MethodOptions {
			return c.Next()
		}

		start := time.Now()
		path := c.Path()
		ip := c.IP()
		userAgent := c.Get("User-Agent")

		err := c.Next()

		entry := domain.AuditEntry{
			Action:   actionFor(path),
			Resource: path,
			Details: map[string]any{
				"method":      method,
				"status":      c.Response().StatusCode(),
				"duration_ms": time.Since(start).Milliseconds(),
			},
			IP:        ip,
			UserAgent: userAgent,
			CreatedAt: start.UTC(),
		}

		// Write asynchronously; all values are captured above.
		go func() {
			if writeErr := writer.WriteAudit(entry); writeErr != nil {
				slog.Error("failed to write audit log", "error", writeErr)
			}
		}()

		return err
	}
}

func actionFor(path string) string {
	switch {
	case strings.HasSuffix(path, "/initialize"):
		return domain.AuditActionInitialize
	case strings.HasSuffix(path, "/rebuild"):
		return domain.AuditActionRebuild
	case strings.HasSuffix(path, "/documents"):
		return domain.AuditActionAddDocument
	case strings.HasSuffix(path, "/ask"):
		return domain.AuditActionQuery
	default:
		return domain.AuditActionHTTP
	}
}
