package state

import (
	"regexp"
	"strconv"
	"unicode/utf8"
)

// AgentUsage records one subagent's token consumption.
type AgentUsage struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	TotalTokens int    `json:"total_tokens"`
	ToolUses    int    `json:"tool_uses"`
	DurationMS  int    `json:"duration_ms"`
}

// TokenLedger is the per-session token usage record. Reset at session start,
// appended on every subagent completion, never mutated otherwise.
type TokenLedger struct {
	Agents      []AgentUsage `json:"agents"`
	TotalTokens int          `json:"total_tokens"`
	TotalAgents int          `json:"total_agents"`
}

// Usage figures arrive embedded in free-text subagent results; there is no
// structured field to read, so extraction is best-effort pattern matching.
var (
	tokenRe    = regexp.MustCompile(`total_tokens["\s:]+(\d+)`)
	toolUsesRe = regexp.MustCompile(`tool_uses["\s:]+(\d+)`)
	durationRe = regexp.MustCompile(`duration_ms["\s:]+(\d+)`)
)

// ParseAgentUsage extracts token/tool-use/duration figures from a subagent's
// result text. Unmatched figures stay zero.
func ParseAgentUsage(agentType, description, resultText string) AgentUsage {
	// Descriptions are capped on a rune boundary so the stored JSON stays
	// valid UTF-8.
	const maxDescription = 80
	if len(description) > maxDescription {
		cut := maxDescription
		for cut > 0 && !utf8.RuneStart(description[cut]) {
			cut--
		}
		description = description[:cut]
	}

	u := AgentUsage{Type: agentType, Description: description}
	if m := tokenRe.FindStringSubmatch(resultText); m != nil {
		u.TotalTokens, _ = strconv.Atoi(m[1])
	}
	if m := toolUsesRe.FindStringSubmatch(resultText); m != nil {
		u.ToolUses, _ = strconv.Atoi(m[1])
	}
	if m := durationRe.FindStringSubmatch(resultText); m != nil {
		u.DurationMS, _ = strconv.Atoi(m[1])
	}
	return u
}

// LoadTokenLedger reads the ledger at path, or an empty ledger.
func LoadTokenLedger(path string) TokenLedger {
	var l TokenLedger
	loadJSON(path, &l)
	return l
}

// RecordAgentUsage appends one usage record and recomputes totals.
func RecordAgentUsage(path string, usage AgentUsage) TokenLedger {
	l := LoadTokenLedger(path)
	l.Agents = append(l.Agents, usage)
	l.TotalTokens = 0
	for _, a := range l.Agents {
		l.TotalTokens += a.TotalTokens
	}
	l.TotalAgents = len(l.Agents)
	saveJSON(path, l)
	return l
}

// ResetTokenLedger clears the ledger at session start.
func ResetTokenLedger(path string) {
	removeFile(path)
}
