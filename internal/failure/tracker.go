// Package failure categorizes review failures and tracks recurrence across
// sessions. Categories that keep failing graduate into persistent guidance:
// a memory document entry plus a scoped project rule.
package failure

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dotcommander/poka/internal/memory"
	"github.com/dotcommander/poka/internal/state"
)

// categories pairs each known failure category with the keywords that mark
// it in review output. A failure can land in several categories at once.
var categories = []struct {
	name     string
	keywords []string
}{
	{"missing_error_handling", []string{"error handling", "error state", "try/catch", "catch block", "unhandled"}},
	{"missing_tests", []string{"no test", "missing test", "test coverage", "untested"}},
	{"scope_creep", []string{"scope creep", "unrequested", "extra work", "not in spec"}},
	{"missing_validation", []string{"validation", "input validation", "sanitiz"}},
	{"missing_auth", []string{"auth", "permission", "access control", "rate limit"}},
	{"missing_edge_cases", []string{"edge case", "boundary", "null", "empty", "undefined"}},
	{"naming_conventions", []string{"naming", "convention", "inconsistent name"}},
	{"missing_types", []string{"type", "typing", "type safety", "any type"}},
}

// pathScopes maps categories to the file globs a graduated rule should
// scope to. Unlisted categories apply project-wide.
var pathScopes = map[string]string{
	"missing_auth":  "src/**/*.{ts,py}",
	"missing_types": "**/*.{ts,tsx}",
}

// Categorize matches review output against the known categories. Unmatched
// output falls into "uncategorized" so recurrence is still counted.
func Categorize(failureText string) []string {
	lower := strings.ToLower(failureText)
	var matched []string
	for _, c := range categories {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				matched = append(matched, c.name)
				break
			}
		}
	}
	if len(matched) == 0 {
		return []string{"uncategorized"}
	}
	return matched
}

// GraduateFunc turns a recurring category into a project rule. The bridge
// wires this to its graduate-rules action.
type GraduateFunc func(category, description, affectedPaths string, count int)

// Tracker persists per-category failure counts and fires graduation when a
// category crosses the recurrence threshold.
type Tracker struct {
	Path       string
	Threshold  int
	MaxEntries int
	Notes      memory.Notes
	Graduate   GraduateFunc
}

// Track records one review failure against every matching category. Returns
// the categories that newly crossed the threshold this call.
//
// Counting keeps going after the first graduation; every further exact
// multiple of the threshold re-fires the memory write and rule graduation
// with the fresher context.
func (t Tracker) Track(failureText, taskID string, now time.Time) []string {
	store := state.LoadFailureStore(t.Path)

	context := truncate(failureText, 300)

	var newlyRecorded []string
	for _, category := range Categorize(failureText) {
		rec := store.Categories[category]
		if rec == nil {
			rec = &state.FailureCategoryRecord{}
			store.Categories[category] = rec
		}
		rec.Count++
		rec.LastContext = context
		rec.LastTask = taskID
		rec.LastSeen = now.UTC().Format("2006-01-02T15:04:05Z")

		if rec.Count >= t.Threshold && !rec.Written {
			t.record(category, rec, now)
			rec.Written = true
			newlyRecorded = append(newlyRecorded, category)
			continue
		}
		if rec.Written && rec.Count%t.Threshold == 0 {
			t.record(category, rec, now)
		}
	}

	state.SaveFailureStore(t.Path, store)
	return newlyRecorded
}

func (t Tracker) record(category string, rec *state.FailureCategoryRecord, now time.Time) {
	// Memory write is best-effort; rule graduation proceeds either way.
	_ = t.Notes.WriteRecurringFailure(category, rec.Count, rec.LastContext, t.MaxEntries, now)

	if t.Graduate != nil {
		desc := truncate(rec.LastContext, 150)
		display := strings.ReplaceAll(category, "_", " ")
		t.Graduate(category, fmt.Sprintf("Review failures for %s: %s", display, desc), pathScopes[category], rec.Count)
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
