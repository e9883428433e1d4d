package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/arturoeanton/medguide-qa/internal/domain"
	"github.com/arturoeanton/medguide-qa/internal/port"
)

// EmptyInput is the input of tools that take no arguments.
type EmptyInput struct{}

// AddDocumentInput is the input schema for the add_document tool.
type AddDocumentInput struct {
	Path string `json:"path" jsonschema:"path of a PDF file under the server's upload root; relative paths are resolved against it"`
}

// AnswerInput is the input schema for the answer_question tool.
type AnswerInput struct {
	Question string `json:"question" jsonschema:"the clinical question to answer"`
	K        int    `json:"k,omitempty" jsonschema:"number of source passages to retrieve (default from server config)"`
}

// StatusOutput reports the outcome of a mutating tool.
type StatusOutput struct {
	OK      bool   `json:"ok"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// AnswerOutput is the output schema for the answer_question tool.
type AnswerOutput struct {
	Answer    string            `json:"answer"`
	Citations []domain.Citation `json:"citations"`
	Formatted string            `json:"formatted"`
	Cached    bool              `json:"cached"`
}

// DocumentOutput describes one PDF in the library.
type DocumentOutput struct {
	Name       string  `json:"name"`
	SizeBytes  int64   `json:"size_bytes"`
	SizeMB     float64 `json:"size_mb"`
	ModifiedAt string  `json:"modified_at"`
}

// DocumentsOutput is the output schema for the list_documents tool.
type DocumentsOutput struct {
	Documents []DocumentOutput `json:"documents"`
	Count     int              `json:"count"`
}

// SystemStatusOutput is the output schema for the system_status tool.
type SystemStatusOutput struct {
	State          string `json:"state"`
	Backend        string `json:"backend,omitempty"`
	Generation     string `json:"generation,omitempty"`
	Chunks         int    `json:"chunks"`
	Dimension      int    `json:"dimension"`
	BuiltAt        string `json:"built_at,omitempty"`
	EmbeddingModel string `json:"embedding_model"`
	LLMModel       string `json:"llm_model"`
	Documents      int    `json:"documents"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "initialize_system",
		Description: "Load the guideline index, building it from the PDF library if needed",
	}, s.handleInitialize)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "add_document",
		Description: "Add a PDF guideline from the server's upload root to the library and rebuild the index",
	}, s.handleAddDocument)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "answer_question",
		Description: "Answer a clinical question from the indexed guidelines, citing file and page",
	}, s.handleAnswer)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List the PDF guidelines in the library",
	}, s.handleListDocuments)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "system_status",
		Description: "Report whether the system is initialized and describe the index",
	}, s.handleStatus)
}

func (s *Server) handleInitialize(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ EmptyInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	s.audit("initialize_system", nil)
	return statusResult(s.qa.InitializeSystem(ctx))
}

func (s *Server) handleAddDocument(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AddDocumentInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	s.audit("add_document", map[string]any{"path": input.Path})

	path, err := s.resolveUpload(input.Path)
	if err != nil {
		slog.Warn("add_document rejected", "path", input.Path, "error", err)
		return statusResult(domain.StatusMessage{
			Kind:    port.Kind(err),
			Message: fmt.Sprintf("✗ Error adding PDF: %v", err),
		})
	}
	return statusResult(s.qa.AddDocument(ctx, path))
}

// resolveUpload maps a requested path to a file inside the upload root.
// Symlinks are resolved first so a link cannot point outside the root.
func (s *Server) resolveUpload(requested string) (string, error) {
	if s.uploadRoot == "" {
		return "", fmt.Errorf("%w: add_document is disabled, set MCP_UPLOAD_ROOT to enable it", port.ErrConfiguration)
	}
	if strings.TrimSpace(requested) == "" {
		return "", fmt.Errorf("%w: path is required", port.ErrInvalidDocument)
	}

	root, err := filepath.EvalSymlinks(s.uploadRoot)
	if err != nil {
		return "", fmt.Errorf("%w: upload root: %v", port.ErrConfiguration, err)
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: upload root: %v", port.ErrConfiguration, err)
	}

	path := requested
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path, err = filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", port.ErrInvalidDocument, filepath.Base(requested), err)
	}
	path, err = filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", port.ErrInvalidDocument, err)
	}

	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside the upload root", port.ErrInvalidDocument, requested)
	}
	return path, nil
}

func (s *Server) handleAnswer(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AnswerInput,
) (*mcp.CallToolResult, AnswerOutput, error) {
	k := input.K
	if k <= 0 {
		k, _ = s.qa.SourceLimits()
	}
	s.audit("answer_question", map[string]any{"question_len": len(input.Question), "k": k})

	answer := s.qa.AnswerQuestion(ctx, input.Question, k)
	out := AnswerOutput{
		Answer:    answer.Answer,
		Citations: answer.Citations,
		Formatted: answer.Formatted,
		Cached:    answer.Cached,
	}
	if out.Citations == nil {
		out.Citations = []domain.Citation{}
	}
	if answer.IsError {
		return errorResult(answer.Answer), out, nil
	}
	return nil, out, nil
}

func (s *Server) handleListDocuments(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ EmptyInput,
) (*mcp.CallToolResult, DocumentsOutput, error) {
	docs := s.qa.ListDocuments(ctx)
	out := DocumentsOutput{Documents: make([]DocumentOutput, len(docs)), Count: len(docs)}
	for i, d := range docs {
		out.Documents[i] = DocumentOutput{
			Name:       d.Name,
			SizeBytes:  d.SizeBytes,
			SizeMB:     d.SizeMB,
			ModifiedAt: d.ModTime.Format(time.RFC3339),
		}
	}
	return nil, out, nil
}

func (s *Server) handleStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ EmptyInput,
) (*mcp.CallToolResult, SystemStatusOutput, error) {
	st := s.qa.Status(ctx)
	out := SystemStatusOutput{
		State:          string(st.State),
		Backend:        st.Index.Backend,
		Generation:     st.Index.Generation,
		Chunks:         st.Index.Count,
		Dimension:      st.Index.Dimension,
		EmbeddingModel: st.EmbeddingModel,
		LLMModel:       st.LLMModel,
		Documents:      st.Documents,
	}
	if !st.Index.BuiltAt.IsZero() {
		out.BuiltAt = st.Index.BuiltAt.Format(time.RFC3339)
	}
	return nil, out, nil
}

func statusResult(msg domain.StatusMessage) (*mcp.CallToolResult, StatusOutput, error) {
	out := StatusOutput{OK: msg.OK, Kind: msg.Kind, Message: msg.Message}
	if !msg.OK {
		return errorResult(msg.Message), out, nil
	}
	return nil, out, nil
}

// errorResult marks a tool call as failed without treating it as a
// protocol error.
func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
