package handler

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/medguide-qa/internal/domain"
	"github.com/arturoeanton/medguide-qa/internal/port"
)

//go:embed templates/index.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// pageData is everything the single-page UI renders.
type pageData struct {
	Title     string
	Status    domain.SystemStatus
	Documents []domain.DocumentSummary
	Examples  []string
	K         int
	MaxK      int
	Question  string
	Answer    *domain.AnnotatedAnswer
	Notice    *domain.StatusMessage
}

// UIHandler serves the browser interface as plain HTML forms.
type UIHandler struct {
	qa    port.QAService
	title string
}

// NewUIHandler creates a new UI handler.
func NewUIHandler(qa port.QAService, title string) *UIHandler {
	return &UIHandler{qa: qa, title: title}
}

// Register sets up UI routes.
func (h *UIHandler) Register(router fiber.Router) {
	router.Get("/", h.Index)
	router.Post("/ask", h.Ask)
	router.Post("/initialize", h.Initialize)
	router.Post("/documents", h.AddDocument)
}

// Index renders the page.
func (h *UIHandler) Index(c fiber.Ctx) error {
	return h.render(c, h.page(c, 0))
}

// Ask answers the submitted question and renders it below the form.
func (h *UIHandler) Ask(c fiber.Ctx) error {
	k, err := strconv.Atoi(c.FormValue("k"))
	if err != nil {
		k, _ = h.qa.SourceLimits()
	}
	question := c.FormValue("question")

	answer := h.qa.AnswerQuestion(c.Context(), question, k)

	data := h.page(c, k)
	data.Question = question
	data.Answer = &answer
	return h.render(c, data)
}

// Initialize runs initialization synchronously and shows the outcome.
func (h *UIHandler) Initialize(c fiber.Ctx) error {
	msg := h.qa.InitializeSystem(c.Context())
	data := h.page(c, 0)
	data.Notice = &msg
	return h.render(c, data)
}

// AddDocument stores an uploaded PDF and shows the outcome.
func (h *UIHandler) AddDocument(c fiber.Ctx) error {
	msg := addUploadedDocument(c, h.qa)
	data := h.page(c, 0)
	data.Notice = &msg
	return h.render(c, data)
}

func (h *UIHandler) page(c fiber.Ctx, k int) pageData {
	defaultK, maxK := h.qa.SourceLimits()
	if k < 1 || k > maxK {
		k = defaultK
	}
	return pageData{
		Title:     h.title,
		Status:    h.qa.Status(c.Context()),
		Documents: h.qa.ListDocuments(c.Context()),
		Examples:  h.qa.ExampleQuestions(),
		K:         k,
		MaxK:      maxK,
	}
}

func (h *UIHandler) render(c fiber.Ctx, data pageData) error {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		slog.Error("failed to render page", "error", err)
		return c.Status(fiber.StatusInternalServerError).SendString("failed to render page")
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(buf.Bytes())
}
