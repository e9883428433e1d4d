package domain

import "time"

// AuditEntry records an action that changed or queried the system.
type AuditEntry struct {
	Action    string         `json:"action"`
	Resource  string         `json:"resource"`
	Details   map[string]any `json:"details,omitempty"`
	IP        string         `json:"ip,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Audit action constants.
const (
	AuditActionHTTP        = "http_request"
	AuditActionInitialize  = "initialize"
	AuditActionRebuild     = "rebuild"
	AuditActionAddDocument = "add_document"
	AuditActionQuery       = "query"
	AuditActionMCPCall     = "mcp_call"
)
