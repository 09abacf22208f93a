package event

import (
	"fmt"

	"github.com/assayhq/assay/internal/jsonstrict"
)

// Type is one of the closed set of registered event type strings
// (spec.md §3: "A type string MAY NOT appear without a registered
// payload contract and a conformance test").
type Type string

const (
	TypeProfileStarted  Type = "assay.profile.started"
	TypeProfileFinished Type = "assay.profile.finished"
	TypeFSAccess        Type = "assay.fs.access"
	TypeNetConnect      Type = "assay.net.connect"
	TypeProcessExec     Type = "assay.process.exec"
	TypeToolDecision    Type = "assay.tool.decision"
	TypeEnvFiltered     Type = "assay.env.filtered"
	TypeMandateV1       Type = "assay.mandate.v1"
	TypeMandateUsedV1   Type = "assay.mandate.used.v1"
	TypeMandateRevoked  Type = "assay.mandate.revoked.v1"
	TypeSandboxDegraded Type = "sandbox.degraded"
)

// registryEntry pairs a type with its stability. net.connect and
// process.exec remain experimental: whether they promote to stable is
// an open question this module does not resolve (spec.md §9).
type registryEntry struct {
	Stable bool
}

var registry = map[Type]registryEntry{
	TypeProfileStarted:  {Stable: true},
	TypeProfileFinished: {Stable: true},
	TypeFSAccess:        {Stable: true},
	TypeNetConnect:      {Stable: false},
	TypeProcessExec:     {Stable: false},
	TypeToolDecision:    {Stable: true},
	TypeEnvFiltered:     {Stable: true},
	TypeMandateV1:       {Stable: true},
	TypeMandateUsedV1:   {Stable: true},
	TypeMandateRevoked:  {Stable: true},
	TypeSandboxDegraded: {Stable: true},
}

// Registered reports whether typ is a recognized event type string.
func Registered(typ string) bool {
	_, ok := registry[Type(typ)]
	return ok
}

// IsStable reports whether typ has been promoted out of experimental
// status. Unregistered types are never stable.
func IsStable(typ string) bool {
	e, ok := registry[Type(typ)]
	return ok && e.Stable
}

// ToolDecisionPayload is the data payload of an assay.tool.decision
// event (spec.md §4.11 item 3).
type ToolDecisionPayload struct {
	ToolCallID string           `json:"tool_call_id"`
	ToolName   string           `json:"tool_name"`
	Arguments  jsonstrict.Value `json:"arguments"`
	Decision   string           `json:"decision"`
	ReasonCode string           `json:"reason_code"`
	RuleID     string           `json:"rule_id,omitempty"`
}

// Validate checks the required fields of a ToolDecisionPayload are
// present and that Decision is one of the two allowed values.
func (p ToolDecisionPayload) Validate() error {
	if p.ToolCallID == "" {
		return fmt.Errorf("event: tool_call_id is required")
	}
	if p.ToolName == "" {
		return fmt.Errorf("event: tool_name is required")
	}
	if p.Decision != "allow" && p.Decision != "deny" {
		return fmt.Errorf("event: decision must be allow or deny, got %q", p.Decision)
	}
	if p.ReasonCode == "" {
		return fmt.Errorf("event: reason_code is required")
	}
	return nil
}

// MandateUsedPayload is the data payload of an assay.mandate.used.v1
// event, keyed for deduplication by UseID (spec.md §4.11 item 3: "Emit
// assay.mandate.used.v1 exactly once (deduplicated by use_id =
// hash(mandate_id, tool_call_id))").
type MandateUsedPayload struct {
	MandateID  string `json:"mandate_id"`
	ToolCallID string `json:"tool_call_id"`
	UseID      string `json:"use_id"`
	UseCount   int    `json:"use_count"`
}

func (p MandateUsedPayload) Validate() error {
	if p.MandateID == "" || p.ToolCallID == "" || p.UseID == "" {
		return fmt.Errorf("event: mandate_id, tool_call_id, and use_id are all required")
	}
	if p.UseCount < 1 {
		return fmt.Errorf("event: use_count must be >= 1")
	}
	return nil
}

// MandateRevokedPayload is the data payload of an
// assay.mandate.revoked.v1 event.
type MandateRevokedPayload struct {
	MandateID string `json:"mandate_id"`
	Reason    string `json:"reason"`
}

func (p MandateRevokedPayload) Validate() error {
	if p.MandateID == "" {
		return fmt.Errorf("event: mandate_id is required")
	}
	return nil
}

// FSAccessPayload is the data payload of an assay.fs.access event.
type FSAccessPayload struct {
	Path       string `json:"path"`
	Mode       string `json:"mode"` // read|write|exec
	ToolCallID string `json:"tool_call_id,omitempty"`
}

func (p FSAccessPayload) Validate() error {
	if p.Path == "" {
		return fmt.Errorf("event: path is required")
	}
	switch p.Mode {
	case "read", "write", "exec":
	default:
		return fmt.Errorf("event: mode must be read, write, or exec, got %q", p.Mode)
	}
	return nil
}

// EnvFilteredPayload is the data payload of an assay.env.filtered event:
// a record that environment variables were stripped before a subprocess
// or tool invocation, never the values themselves.
type EnvFilteredPayload struct {
	FilteredKeys []string `json:"filtered_keys"`
}

func (p EnvFilteredPayload) Validate() error {
	if len(p.FilteredKeys) == 0 {
		return fmt.Errorf("event: filtered_keys must be non-empty")
	}
	return nil
}

// ProfileLifecyclePayload is the shared shape of assay.profile.started
// and assay.profile.finished.
type ProfileLifecyclePayload struct {
	ProfileName    string `json:"profile_name"`
	ProfileDigest  string `json:"profile_digest"`
	ExitReasonCode string `json:"exit_reason_code,omitempty"`
}

func (p ProfileLifecyclePayload) Validate() error {
	if p.ProfileName == "" || p.ProfileDigest == "" {
		return fmt.Errorf("event: profile_name and profile_digest are required")
	}
	return nil
}

// SandboxDegradedPayload is the data payload of a sandbox.degraded
// event, emitted when an enforcement layer could not be fully applied.
type SandboxDegradedPayload struct {
	Capability string `json:"capability"`
	Reason     string `json:"reason"`
}

func (p SandboxDegradedPayload) Validate() error {
	if p.Capability == "" || p.Reason == "" {
		return fmt.Errorf("event: capability and reason are required")
	}
	return nil
}
