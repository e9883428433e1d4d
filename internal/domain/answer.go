package domain

// Citation identifies where a piece of supporting text was found.
type Citation struct {
	Rank       int     `json:"rank"`
	SourceFile string  `json:"source_file"`
	PageNumber int     `json:"page"`
	Preview    string  `json:"preview"`
	Similarity float64 `json:"similarity"`
}

// AnnotatedAnswer is the outward result of answering a question.
// Formatted carries the LLM text followed by the rendered source list.
type AnnotatedAnswer struct {
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	Formatted string     `json:"formatted"`
	IsError   bool       `json:"is_error"`
	ErrorKind string     `json:"error_kind,omitempty"`
	Cached    bool       `json:"cached"`
}

// StatusMessage is the outward result of a mutating operation.
type StatusMessage struct {
	OK      bool   `json:"ok"`
	Kind    string `json:"kind,omitempty"` // error kind when !OK
	Message string `json:"message"`
}
