package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/assayhq/assay/internal/bundle"
	"github.com/assayhq/assay/internal/event"
	"github.com/assayhq/assay/internal/jsonstrict"
	"github.com/assayhq/assay/internal/mandate"
	"github.com/assayhq/assay/internal/observability/logging"
	"github.com/assayhq/assay/internal/policy"
	"github.com/assayhq/assay/internal/reason"
	"github.com/assayhq/assay/internal/replay"
	"github.com/spf13/cobra"
)

var (
	replayTraceFlag    string
	replayPackFlags    []string
	replayMandateFlag  string
	replayDryRunFlag   bool
	replayOutFlag      string
	replayProducerVer  = "1"
)

// traceFile is the on-disk shape of a replay trace: a run id and its
// ordered tool calls. It exists only at the CLI boundary — the replay
// engine itself works in terms of policy.ToolCall, which carries a
// parsed jsonstrict.Value rather than raw JSON.
type traceFile struct {
	RunID string          `json:"run_id"`
	Calls []traceCallFile `json:"calls"`
}

type traceCallFile struct {
	ToolCallID   string          `json:"tool_call_id"`
	ToolName     string          `json:"tool_name"`
	Arguments    json.RawMessage `json:"arguments"`
	Timestamp    time.Time       `json:"timestamp"`
	MandateRef   string          `json:"mandate_ref,omitempty"`
	ParentCallID string          `json:"parent_call_id,omitempty"`
}

// mandateFile is the on-disk shape of the mandate list a replay run is
// given, kept separate from trace input since mandates are authored and
// distributed independently of any one run.
type mandateFile struct {
	Mandates []mandate.Mandate `json:"mandates"`
}

func GetReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Deterministically replay a recorded tool-call trace against a compiled policy",
		Long: `replay reads a trace of tool calls and a set of policy packs, evaluates
each call through the policy decision core in order, and emits an
evidence bundle containing the resulting decision and mandate-lifecycle
events. It performs no clock reads, random draws, or network access:
every timestamp in the output derives from the trace itself, so the
same trace and packs always produce a byte-identical bundle.`,
		RunE: runReplay,
	}
	cmd.Flags().StringVar(&replayTraceFlag, "trace", "", "path to the trace JSON file (required)")
	cmd.Flags().StringArrayVar(&replayPackFlags, "pack", nil, "path to a policy pack YAML file (repeatable)")
	cmd.Flags().StringVar(&replayMandateFlag, "mandates", "", "path to a mandates JSON file (optional)")
	cmd.Flags().BoolVar(&replayDryRunFlag, "dry-run", false, "evaluate packs in would-deny mode instead of enforcing")
	cmd.Flags().StringVar(&replayOutFlag, "out", "", "path to write the evidence bundle (.tar.gz); defaults to <run_id>.tar.gz")
	_ = cmd.MarkFlagRequired("trace")
	return cmd
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := logging.From(ctx)

	trace, err := loadTrace(replayTraceFlag)
	if err != nil {
		return exitErr(reason.ExitConfigError, err)
	}

	packs := make([]*policy.Pack, 0, len(replayPackFlags))
	for _, path := range replayPackFlags {
		data, err := os.ReadFile(path)
		if err != nil {
			return exitErr(reason.ExitConfigError, fmt.Errorf("reading pack %s: %w", path, err))
		}
		pack, err := policy.ParsePack(data)
		if err != nil {
			return exitErr(reason.ExitConfigError, fmt.Errorf("parsing pack %s: %w", path, err))
		}
		packs = append(packs, pack)
	}

	compiled, err := policy.Compile(packs, replayDryRunFlag)
	if err != nil {
		return exitErr(reason.ExitConfigError, err)
	}

	var mandates []mandate.Mandate
	if replayMandateFlag != "" {
		data, err := os.ReadFile(replayMandateFlag)
		if err != nil {
			return exitErr(reason.ExitConfigError, fmt.Errorf("reading mandates %s: %w", replayMandateFlag, err))
		}
		var mf mandateFile
		if err := json.Unmarshal(data, &mf); err != nil {
			return exitErr(reason.ExitConfigError, fmt.Errorf("parsing mandates %s: %w", replayMandateFlag, err))
		}
		mandates = mf.Mandates
	}

	engine := replay.NewEngine(compiled, mandate.NewStore(mandates), replayProducerVer)
	run, err := engine.Replay(*trace)
	if err != nil {
		return exitErr(reason.ExitInfraError, err)
	}

	for _, d := range run.Decisions {
		if logger != nil {
			logger.Info("replay", "decision", "allow", d.Allow, "reason_code", string(d.ReasonCode), "rule_id", d.RuleID)
		}
	}

	w := &bundle.Writer{
		RunID:      run.RunID,
		Producer:   replay.Producer,
		ProducedAt: producedAtOf(run.Events),
	}
	out, err := w.Build(run.Events)
	if err != nil {
		return exitErr(reason.ExitInfraError, err)
	}

	outPath := replayOutFlag
	if outPath == "" {
		outPath = run.RunID + ".tar.gz"
	}
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return exitErr(reason.ExitInfraError, fmt.Errorf("writing bundle %s: %w", outPath, err))
	}

	if logger != nil {
		logger.Info("replay", "wrote bundle", "path", outPath, "exit_code", int(run.ExitCode))
	}

	os.Exit(int(run.ExitCode))
	return nil
}

func producedAtOf(events []event.Envelope) string {
	if len(events) == 0 {
		return time.Unix(0, 0).UTC().Format(time.RFC3339)
	}
	return events[len(events)-1].Time
}

func loadTrace(path string) (*replay.Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trace %s: %w", path, err)
	}
	var tf traceFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parsing trace %s: %w", path, err)
	}
	if tf.RunID == "" {
		return nil, fmt.Errorf("trace %s is missing run_id", path)
	}
	calls := make([]policy.ToolCall, 0, len(tf.Calls))
	for _, c := range tf.Calls {
		argBytes := c.Arguments
		if len(argBytes) == 0 {
			argBytes = []byte("{}")
		}
		var argValue jsonstrict.Value
		if err := argValue.UnmarshalJSON(argBytes); err != nil {
			return nil, fmt.Errorf("trace %s: call %s: parsing arguments: %w", path, c.ToolCallID, err)
		}
		calls = append(calls, policy.ToolCall{
			ToolCallID:   c.ToolCallID,
			ToolName:     c.ToolName,
			Arguments:    argValue,
			Timestamp:    c.Timestamp,
			MandateRef:   c.MandateRef,
			ParentCallID: c.ParentCallID,
		})
	}
	return &replay.Trace{RunID: tf.RunID, Calls: calls}, nil
}

func exitErr(code reason.ExitCode, err error) error {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(int(code))
	return nil
}
