package bridge

import (
	"encoding/json"
	"fmt"
	"io"
)

// hookResponse is the agent-facing hook output shape.
type hookResponse struct {
	HookSpecificOutput *hookSpecificOutput `json:"hookSpecificOutput,omitempty"`
	Decision           string              `json:"decision,omitempty"`
	Reason             string              `json:"reason,omitempty"`
}

type hookSpecificOutput struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext"`
}

// WriteResponse emits the hook protocol response for a dispatch result.
// Skips and SessionEnd produce an empty object; SessionEnd has no
// hookSpecificOutput channel, its work is in the side effects.
func WriteResponse(w io.Writer, hookEvent string, result *Result) error {
	if result == nil || result.Skip || hookEvent == "SessionEnd" {
		_, err := fmt.Fprintln(w, "{}")
		return err
	}

	resp := hookResponse{
		HookSpecificOutput: &hookSpecificOutput{
			HookEventName:     hookEvent,
			AdditionalContext: FormatContext(result),
		},
	}
	if result.Block {
		resp.Decision = "block"
		resp.Reason = orDefault(result.Reason, "Hook check failed")
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal hook response: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
