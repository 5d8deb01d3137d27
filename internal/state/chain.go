package state

import "encoding/json"

// Chain is the persisted session-chain record. The chain coordinator creates
// it before the first chained session; the bridge mutates it at session
// boundaries and task completions, and deletes it when the chain ends.
// File presence ⇔ an active chain.
//
// Unknown fields written by the coordinator (adaptive_n, failed_tasks, ...)
// are preserved verbatim across bridge rewrites.
type Chain struct {
	ChainID        string
	ChainIndex     int
	ScopeType      string
	ScopeID        string
	TasksCompleted int
	AuditPassed    bool
	AuditPending   bool

	extra map[string]json.RawMessage
}

// chainJSON mirrors Chain's persisted keys for (un)marshaling.
type chainJSON struct {
	ChainID        string `json:"chain_id"`
	ChainIndex     int    `json:"chain_index"`
	ScopeType      string `json:"scope_type"`
	ScopeID        string `json:"scope_id"`
	TasksCompleted int    `json:"tasks_completed"`
	AuditPassed    bool   `json:"audit_passed"`
	AuditPending   bool   `json:"audit_pending,omitempty"`
}

// chainKnownKeys lists keys owned by the bridge; everything else is
// coordinator state carried through untouched.
var chainKnownKeys = []string{
	"chain_id", "chain_index", "scope_type", "scope_id",
	"tasks_completed", "audit_passed", "audit_pending",
}

// UnmarshalJSON decodes known fields and stashes the rest.
func (c *Chain) UnmarshalJSON(data []byte) error {
	var known chainJSON
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range chainKnownKeys {
		delete(raw, k)
	}

	*c = Chain{
		ChainID:        known.ChainID,
		ChainIndex:     known.ChainIndex,
		ScopeType:      known.ScopeType,
		ScopeID:        known.ScopeID,
		TasksCompleted: known.TasksCompleted,
		AuditPassed:    known.AuditPassed,
		AuditPending:   known.AuditPending,
		extra:          raw,
	}
	return nil
}

// MarshalJSON re-emits known fields merged over preserved coordinator fields.
func (c Chain) MarshalJSON() ([]byte, error) {
	merged := map[string]json.RawMessage{}
	for k, v := range c.extra {
		merged[k] = v
	}

	knownData, err := json.Marshal(chainJSON{
		ChainID:        c.ChainID,
		ChainIndex:     c.ChainIndex,
		ScopeType:      c.ScopeType,
		ScopeID:        c.ScopeID,
		TasksCompleted: c.TasksCompleted,
		AuditPassed:    c.AuditPassed,
		AuditPending:   c.AuditPending,
	})
	if err != nil {
		return nil, err
	}
	var known map[string]json.RawMessage
	if err := json.Unmarshal(knownData, &known); err != nil {
		return nil, err
	}
	for k, v := range known {
		merged[k] = v
	}

	return json.Marshal(merged)
}

// Active reports whether the record describes a live chain.
func (c Chain) Active() bool {
	return c.ChainID != ""
}

// LoadChain reads the chain record at path. A missing or corrupt file yields
// an inactive zero Chain.
func LoadChain(path string) Chain {
	var c Chain
	loadJSON(path, &c)
	return c
}

// SaveChain atomically persists the chain record.
func SaveChain(path string, c Chain) {
	saveJSON(path, c)
}

// DeleteChain removes the chain record (the chain is done).
func DeleteChain(path string) {
	removeFile(path)
}
