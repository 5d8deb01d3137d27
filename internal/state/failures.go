package state

// FailureCategoryRecord tracks one recurring review-failure category.
// Count is monotonic; Written is the one-shot latch released every time the
// count crosses a multiple of the tracking threshold.
type FailureCategoryRecord struct {
	Count       int    `json:"count"`
	LastContext string `json:"last_context"`
	LastTask    string `json:"last_task,omitempty"`
	LastSeen    string `json:"last_seen,omitempty"`
	Written     bool   `json:"written"`
}

// FailureStore is the persisted review-failure tracking store.
type FailureStore struct {
	Categories map[string]*FailureCategoryRecord `json:"categories"`
}

// LoadFailureStore reads the store at path, or an empty store.
func LoadFailureStore(path string) FailureStore {
	s := FailureStore{Categories: map[string]*FailureCategoryRecord{}}
	loadJSON(path, &s)
	if s.Categories == nil {
		s.Categories = map[string]*FailureCategoryRecord{}
	}
	return s
}

// SaveFailureStore atomically persists the store.
func SaveFailureStore(path string, s FailureStore) {
	saveJSON(path, s)
}
