// Package receipt provides stable evidence artifacts for audit/compliance.
package receipt

// ReceiptSchemaVersion current
const ReceiptSchemaVersion = "1.0"

// Receipt structure
type Receipt struct {
	SchemaVersion string       `json:"schema_version"`
	OpID          string       `json:"op_id"`
	TsStart       string       `json:"ts_start"`
	TsEnd         string       `json:"ts_end"`
	Command       string       `json:"command"`
	Args          []string     `json:"args"`
	ArgsRedacted  bool         `json:"args_redacted,omitempty"` // SEC-06: true if any args were sanitized
	Result        Result       `json:"result"`
	Lockfile      *LockfileRef `json:"lockfile,omitempty"`
}

// Result status
type Result struct {
	Status string `json:"status"` // "success" or "fail"
	Error  string `json:"error,omitempty"`
}

// LockfileRef detail
type LockfileRef struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256,omitempty"`
}
