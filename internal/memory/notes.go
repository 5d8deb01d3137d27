// Package memory writes the bridge's human-readable knowledge documents:
// rotation-capped, append-only markdown files that future sessions read as
// context. Writes are best-effort; I/O failures never surface to handlers.
package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Notes writes knowledge documents into a resolved memory directory.
type Notes struct {
	Dir string
}

// ResolveDir picks the memory directory for a project: the agent's own
// project memory (~/.claude/projects/<encoded>/memory) when it exists,
// otherwise <project>/memory.
func ResolveDir(projectDir string) string {
	home, err := os.UserHomeDir()
	if err == nil {
		key := strings.TrimPrefix(strings.ReplaceAll(projectDir, "/", "-"), "-")
		agentMemory := filepath.Join(home, ".claude", "projects", key, "memory")
		if info, err := os.Stat(agentMemory); err == nil && info.IsDir() {
			return agentMemory
		}
	}
	return filepath.Join(projectDir, "memory")
}

// New returns a Notes writer for the project's resolved memory directory.
func New(projectDir string) Notes {
	return Notes{Dir: ResolveDir(projectDir)}
}

const (
	chainLearningsFile    = "chain-learnings.md"
	recurringFailuresFile = "recurring-failures.md"
	spikeResultsFile      = "spike-results.md"

	chainLearningsHeader = "# Chain Learnings\n\nSession-level progress from chained work sessions.\n"

	recurringFailuresHeader = "# Recurring Review Failures\n\n" +
		"Patterns detected from repeated review failures. Include relevant entries " +
		"in implementer prompts as \"Known Pitfalls\".\n"

	spikeResultsHeader = "# Spike Results\n\nGO/NO-GO decisions from time-boxed investigations. " +
		"Prevents future sessions from re-investigating closed questions.\n"
)

// AppendChainLearning records one session's chain progress, rotating the
// oldest entry once maxEntries is reached.
func (n Notes) AppendChainLearning(chainID string, chainIndex int, scopeType, scopeID string, tasksCompleted, maxEntries int, now time.Time) error {
	var b strings.Builder
	fmt.Fprintf(&b, "\n## Session %d of %s (%s)\n", chainIndex, chainID, now.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "- Scope: %s", scopeType)
	if scopeID != "" {
		fmt.Fprintf(&b, " (%s)", scopeID)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "- Tasks completed this session: %d\n", tasksCompleted)

	return n.appendRotated(chainLearningsFile, chainLearningsHeader, "## Session ", b.String(), maxEntries)
}

// WriteRecurringFailure records a recurring failure pattern. A category that
// already has an entry gets its occurrence count rewritten in place instead
// of a duplicate block.
func (n Notes) WriteRecurringFailure(category string, count int, recentContext string, maxEntries int, now time.Time) error {
	displayName := displayCategory(category)
	recentContext = truncate(recentContext, 200)

	existing, err := n.read(recurringFailuresFile)
	if err != nil {
		return err
	}

	if strings.Contains(existing, "## "+displayName) {
		re := regexp.MustCompile(`(## ` + regexp.QuoteMeta(displayName) + `) \(seen \d+x\)`)
		updated := re.ReplaceAllString(existing, fmt.Sprintf("$1 (seen %dx)", count))
		return n.write(recurringFailuresFile, updated)
	}

	if strings.Count(existing, "\n## ") >= maxEntries {
		existing = dropOldestEntry(existing, "## ")
	}
	if strings.TrimSpace(existing) == "" {
		existing = recurringFailuresHeader
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n## %s (seen %dx)\n", displayName, count)
	fmt.Fprintf(&b, "**Pattern**: Review failures for %s\n", strings.ToLower(displayName))
	fmt.Fprintf(&b, "**Context**: %s\n", recentContext)
	fmt.Fprintf(&b, "**First recorded**: %s\n", now.Format("2006-01-02"))

	return n.write(recurringFailuresFile, existing+b.String())
}

// AppendSpikeResult records a spike's GO/NO-GO outcome, derived from the
// task's closing notes.
func (n Notes) AppendSpikeResult(taskID, taskTitle, taskNotes string, now time.Time) error {
	result := spikeResult(taskNotes)

	finding := taskNotes
	if finding == "" {
		finding = "No notes"
	}
	finding = truncate(finding, 200)

	existing, err := n.read(spikeResultsFile)
	if err != nil {
		return err
	}
	if strings.TrimSpace(existing) == "" {
		existing = spikeResultsHeader
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n## %s (%s)\n", taskTitle, now.Format("2006-01-02"))
	fmt.Fprintf(&b, "- **Result**: %s\n", result)
	fmt.Fprintf(&b, "- **Task**: %s\n", taskID)
	fmt.Fprintf(&b, "- **Finding**: %s\n", finding)

	return n.write(spikeResultsFile, existing+b.String())
}

func spikeResult(notes string) string {
	lower := strings.ToLower(notes)
	switch {
	case strings.Contains(lower, "no-go") || strings.Contains(lower, "no go"):
		return "NO-GO"
	case strings.Contains(lower, "pivot"):
		return "PIVOT"
	case strings.Contains(lower, "more-info") || strings.Contains(lower, "more info"):
		return "MORE-INFO"
	default:
		return "GO"
	}
}

// truncate caps s at max bytes without splitting a UTF-8 rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func displayCategory(category string) string {
	words := strings.Split(strings.ReplaceAll(category, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// appendRotated appends an entry, dropping the oldest once the cap is hit.
func (n Notes) appendRotated(file, header, entryPrefix, entry string, maxEntries int) error {
	existing, err := n.read(file)
	if err != nil {
		return err
	}

	if strings.TrimSpace(existing) == "" {
		existing = header
	}

	if strings.Count(existing, "\n"+entryPrefix) >= maxEntries {
		existing = dropOldestEntry(existing, entryPrefix)
	}

	return n.write(file, existing+entry)
}

// dropOldestEntry removes the first entry block (the lines from the first
// prefix-headed line after the document header through the next one).
func dropOldestEntry(content, entryPrefix string) string {
	lines := strings.Split(content, "\n")
	start, end := -1, -1
	for i, line := range lines {
		if !strings.HasPrefix(line, entryPrefix) {
			continue
		}
		if i == 0 {
			continue // document title, not an entry
		}
		if start == -1 {
			start = i
			continue
		}
		end = i
		break
	}
	if start == -1 {
		return content
	}
	if end == -1 {
		end = len(lines)
	}
	return strings.Join(append(lines[:start:start], lines[end:]...), "\n")
}

func (n Notes) read(file string) (string, error) {
	data, err := os.ReadFile(filepath.Join(n.Dir, file)) //nolint:gosec // G304: fixed filenames under resolved memory dir
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

func (n Notes) write(file, content string) error {
	if err := os.MkdirAll(n.Dir, 0750); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(n.Dir, file), []byte(content), 0600)
}
