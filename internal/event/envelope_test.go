package event

import (
	"testing"
	"time"

	"github.com/assayhq/assay/internal/jsonstrict"
)

func sampleData() jsonstrict.Value {
	obj := &jsonstrict.Object{Members: []jsonstrict.Member{
		{Key: "tool_call_id", Value: jsonstrict.String("call-1")},
		{Key: "decision", Value: jsonstrict.String("allow")},
	}}
	return jsonstrict.ObjectValue(obj)
}

func TestNewComputesContentHash(t *testing.T) {
	e, err := New(Params{
		Type:            string(TypeToolDecision),
		Source:          "assay://replay",
		ID:              "evt-1",
		Time:            time.Unix(0, 0),
		RunID:           "run-1",
		Seq:             0,
		Producer:        "assay",
		ProducerVersion: "0.1.0",
		DataContentType: "application/json",
		Data:            sampleData(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ContentHash == "" {
		t.Fatalf("expected non-empty content hash")
	}
	if err := e.Verify(); err != nil {
		t.Fatalf("expected envelope to verify, got: %v", err)
	}
}

func TestNewRejectsUnregisteredType(t *testing.T) {
	_, err := New(Params{
		Type:   "assay.nonexistent",
		Source: "x",
		ID:     "x",
		Time:   time.Unix(0, 0),
		Data:   sampleData(),
	})
	if err == nil {
		t.Fatalf("expected error for unregistered event type")
	}
}

func TestVerifyDetectsTamperedData(t *testing.T) {
	e, err := New(Params{
		Type:   string(TypeToolDecision),
		Source: "x",
		ID:     "x",
		Time:   time.Unix(0, 0),
		Data:   sampleData(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e.Data = jsonstrict.String("tampered")
	if err := e.Verify(); err == nil {
		t.Fatalf("expected verify to detect tampered data")
	}
}

func TestNetConnectAndProcessExecAreExperimental(t *testing.T) {
	if IsStable(string(TypeNetConnect)) {
		t.Fatalf("assay.net.connect should not be stable")
	}
	if IsStable(string(TypeProcessExec)) {
		t.Fatalf("assay.process.exec should not be stable")
	}
	if !IsStable(string(TypeToolDecision)) {
		t.Fatalf("assay.tool.decision should be stable")
	}
}

func TestRegistryHasElevenTypes(t *testing.T) {
	if len(registry) != 11 {
		t.Fatalf("expected 11 registered event types, got %d", len(registry))
	}
}

func TestToolDecisionPayloadValidate(t *testing.T) {
	p := ToolDecisionPayload{ToolCallID: "c1", ToolName: "read_file", Decision: "allow", ReasonCode: "P_ALLOWED"}
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.Decision = "maybe"
	if err := p.Validate(); err == nil {
		t.Fatalf("expected validation error for bad decision")
	}
}

func TestMandateUsedPayloadValidate(t *testing.T) {
	p := MandateUsedPayload{MandateID: "m1", ToolCallID: "c1", UseID: "u1", UseCount: 1}
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.UseCount = 0
	if err := p.Validate(); err == nil {
		t.Fatalf("expected validation error for zero use_count")
	}
}
