// Package bridge implements the hook event pipeline: decode the incoming
// event envelope, route it to a handler, run external actions under
// sanitization and rate limits, and shape the response the agent reads.
package bridge

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// maxEnvelopeBytes caps stdin reads. Hook payloads are small; anything
// larger is hostile or broken.
const maxEnvelopeBytes = 1024 * 1024

// Envelope is the raw hook event as delivered on stdin. Tool payloads stay
// raw; each handler decodes only the fields it needs.
type Envelope struct {
	HookEventName string          `json:"hook_event_name"`
	ToolName      string          `json:"tool_name"`
	ToolInput     json.RawMessage `json:"tool_input"`
	ToolResponse  json.RawMessage `json:"tool_response"`
}

// DecodeEnvelope reads one JSON envelope from r. Only outright invalid JSON
// is an error; missing fields are not.
func DecodeEnvelope(r io.Reader) (Envelope, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxEnvelopeBytes))
	if err != nil {
		return Envelope{}, fmt.Errorf("read hook input: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("invalid JSON input: %w", err)
	}
	return env, nil
}

// decodeInto unmarshals a raw payload into v, tolerating absence and
// malformed content. Handlers work off zero values in that case.
func decodeInto(raw json.RawMessage, v any) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, v)
}

// outputText extracts the human-readable output from a tool response, which
// arrives either as a bare string or as an object with content blocks.
func outputText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var obj struct {
		Content json.RawMessage `json:"content"`
		Text    string          `json:"text"`
		Output  string          `json:"output"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}

	if len(obj.Content) > 0 {
		var blocks []struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(obj.Content, &blocks); err == nil {
			out := ""
			for i, b := range blocks {
				if i > 0 {
					out += "\n"
				}
				out += b.Text
			}
			return out
		}
		var content string
		if err := json.Unmarshal(obj.Content, &content); err == nil {
			return content
		}
	}
	if obj.Text != "" {
		return obj.Text
	}
	return obj.Output
}

// exitCode extracts the command exit code from a tool response. Returns
// (0, false) when no code is present.
func exitCode(raw json.RawMessage) (int, bool) {
	var obj struct {
		ExitCode   *int `json:"exit_code"`
		ReturnCode *int `json:"returncode"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return 0, false
	}
	if obj.ExitCode != nil {
		return *obj.ExitCode, true
	}
	if obj.ReturnCode != nil {
		return *obj.ReturnCode, true
	}
	return 0, false
}

// resultText extracts the subagent result field from a Task tool response.
func resultText(raw json.RawMessage) string {
	var obj struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || len(obj.Result) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(obj.Result, &s); err == nil {
		return s
	}
	return string(obj.Result)
}

var commitHashRe = regexp.MustCompile(`\[[\w/.-]+ ([a-f0-9]{7,})\]`)

// extractCommitHash pulls the short hash out of git commit's
// "[branch abc1234] message" summary line.
func extractCommitHash(output string) string {
	if m := commitHashRe.FindStringSubmatch(output); m != nil {
		return m[1]
	}
	return ""
}

var (
	testsPassedRe  = regexp.MustCompile(`(\d+)\s+(?:passing|passed)`)
	testsFailedRe  = regexp.MustCompile(`(\d+)\s+(?:failing|failed)`)
	failingTestRe  = regexp.MustCompile(`(?:FAIL|✗|×)\s+(.+)`)
	testCommandSet = []string{"npm test", "npx vitest", "npx jest", "pytest", "cargo test", "go test", "npm run test"}
)

// testResults summarizes a test run for WIP mirroring.
type testResults struct {
	Ran         bool   `json:"ran"`
	Passed      int    `json:"passed"`
	Failed      int    `json:"failed"`
	FailingTest string `json:"failing_test,omitempty"`
}

// parseTestOutput extracts pass/fail counts from the common runner formats.
func parseTestOutput(output string) testResults {
	res := testResults{Ran: true}
	if m := testsPassedRe.FindStringSubmatch(output); m != nil {
		res.Passed, _ = strconv.Atoi(m[1])
	}
	if m := testsFailedRe.FindStringSubmatch(output); m != nil {
		res.Failed, _ = strconv.Atoi(m[1])
	}
	if res.Failed > 0 {
		if m := failingTestRe.FindStringSubmatch(output); m != nil {
			res.FailingTest = truncate(strings.TrimSpace(m[1]), 200)
		}
	}
	return res
}

// isTestCommand reports whether a shell command looks like a test run.
func isTestCommand(command string) bool {
	for _, p := range testCommandSet {
		if strings.Contains(command, p) {
			return true
		}
	}
	return false
}
