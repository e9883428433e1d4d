package handler

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/medguide-qa/internal/domain"
	"github.com/arturoeanton/medguide-qa/internal/port"
)

// Job kinds.
const (
	JobInitialize = "initialize"
	JobRebuild    = "rebuild"
)

// QAHandler exposes the question-answering operations as a JSON API.
type QAHandler struct {
	qa      port.QAService
	tracker *JobTracker
}

// NewQAHandler creates a new QA handler.
func NewQAHandler(qa port.QAService, tracker *JobTracker) *QAHandler {
	return &QAHandler{qa: qa, tracker: tracker}
}

// Register sets up QA routes.
func (h *QAHandler) Register(router fiber.Router) {
	router.Get("/health", h.Health)

	sys := router.Group("/system")
	sys.Get("/status", h.Status)
	sys.Post("/initialize", h.Initialize)
	sys.Post("/rebuild", h.Rebuild)

	router.Post("/ask", h.Ask)
	router.Get("/examples", h.Examples)

	docs := router.Group("/documents")
	docs.Get("/", h.ListDocuments)
	docs.Post("/", h.AddDocument)
}

// Health reports liveness without touching any backend.
func (h *QAHandler) Health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "healthy"})
}

// Status returns the system state and index metadata.
func (h *QAHandler) Status(c fiber.Ctx) error {
	return c.JSON(h.qa.Status(c.Context()))
}

// Initialize loads or builds the index. With ?async=true it returns a job
// that can be followed on /jobs/:id/stream.
func (h *QAHandler) Initialize(c fiber.Ctx) error {
	if c.Query("async") == "true" {
		id := h.tracker.Start(JobInitialize, h.qa.InitializeSystem)
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"job_id": id})
	}
	return respondStatus(c, h.qa.InitializeSystem(c.Context()))
}

// Rebuild re-indexes the corpus in the background.
func (h *QAHandler) Rebuild(c fiber.Ctx) error {
	id := h.tracker.Start(JobRebuild, h.qa.Rebuild)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"job_id": id})
}

// Ask answers a question with cited sources.
func (h *QAHandler) Ask(c fiber.Ctx) error {
	var body struct {
		Question string `json:"question"`
		K        *int   `json:"k"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	k, _ := h.qa.SourceLimits()
	if body.K != nil {
		k = *body.K
	}

	answer := h.qa.AnswerQuestion(c.Context(), body.Question, k)
	if answer.IsError {
		return c.Status(statusFor(answer.ErrorKind)).JSON(answer)
	}
	return c.JSON(answer)
}

// Examples lists the suggested questions and the source-count bounds.
func (h *QAHandler) Examples(c fiber.Ctx) error {
	defaultK, maxK := h.qa.SourceLimits()
	return c.JSON(fiber.Map{
		"questions":   h.qa.ExampleQuestions(),
		"default_k":   defaultK,
		"max_sources": maxK,
	})
}

// ListDocuments lists the PDFs in the managed directory.
func (h *QAHandler) ListDocuments(c fiber.Ctx) error {
	docs := h.qa.ListDocuments(c.Context())
	if docs == nil {
		docs = []domain.DocumentSummary{}
	}
	return c.JSON(fiber.Map{"documents": docs, "total": len(docs)})
}

// AddDocument accepts a multipart "file" upload and adds it to the corpus.
func (h *QAHandler) AddDocument(c fiber.Ctx) error {
	msg := addUploadedDocument(c, h.qa)
	return respondStatus(c, msg)
}

// addUploadedDocument stores the upload under its own name in a temporary
// directory and hands that path to the service.
func addUploadedDocument(c fiber.Ctx, qa port.QAService) domain.StatusMessage {
	fh, err := c.FormFile("file")
	if err != nil || fh == nil {
		return qa.AddDocument(c.Context(), "")
	}

	name := filepath.Base(fh.Filename)
	if name == "." || name == string(filepath.Separator) || strings.TrimSpace(name) == "" {
		return qa.AddDocument(c.Context(), "")
	}

	dir, err := os.MkdirTemp("", "medguide-upload-*")
	if err != nil {
		return domain.StatusMessage{Kind: port.KindInternal, Message: "✗ Error adding PDF: " + err.Error()}
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, name)
	if err := c.SaveFile(fh, path); err != nil {
		return domain.StatusMessage{Kind: port.KindInternal, Message: "✗ Error adding PDF: " + err.Error()}
	}
	return qa.AddDocument(c.Context(), path)
}

func respondStatus(c fiber.Ctx, msg domain.StatusMessage) error {
	if !msg.OK {
		return c.Status(statusFor(msg.Kind)).JSON(msg)
	}
	return c.JSON(msg)
}

// statusFor maps an error kind to an HTTP status code.
func statusFor(kind string) int {
	switch kind {
	case "":
		return fiber.StatusOK
	case port.KindNotInitialized, port.KindDuplicateDocument:
		return fiber.StatusConflict
	case port.KindInvalidDocument, port.KindEmptyQuestion:
		return fiber.StatusBadRequest
	case port.KindBackendUnavailable:
		return fiber.StatusServiceUnavailable
	case port.KindEmptyCorpus:
		return fiber.StatusUnprocessableEntity
	case port.KindIndexNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}
