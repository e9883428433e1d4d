package domain

// SystemState is the lifecycle of the question-answering system.
type SystemState string

const (
	StateUninitialized SystemState = "uninitialized"
	StateReady         SystemState = "ready"
)

// SystemStatus is a read-only view of the running system.
type SystemStatus struct {
	State          SystemState `json:"state"`
	Index          IndexInfo   `json:"index"`
	EmbeddingModel string      `json:"embedding_model"`
	LLMModel       string      `json:"llm_model"`
	Documents      int         `json:"documents"`
}
