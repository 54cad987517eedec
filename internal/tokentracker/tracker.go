// Package tokentracker implements the per-job token-usage accumulator keyed
// by (model, processor). Construction is cheap; callers create one instance
// per job and share it by reference with processors that opt in.
package tokentracker

import "sync"

// Entry is one (model, processor) bucket's running totals.
type Entry struct {
	Model            string `json:"model"`
	Processor        string `json:"processor"`
	PromptTokens     int64  `json:"promptTokens"`
	CandidatesTokens int64  `json:"candidatesTokens"`
	TotalTokens      int64  `json:"totalTokens"`
	CallCount        int64  `json:"callCount"`
}

type key struct {
	model     string
	processor string
}

// Tracker serializes key-map updates behind a mutex; contention is expected
// to be low since only opted-in processors record usage.
type Tracker struct {
	mu      sync.Mutex
	entries map[key]*Entry
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{entries: make(map[key]*Entry)}
}

// Record adds promptTokens/candidatesTokens to the (model, processor) bucket,
// creating it on first use, and increments its call count.
func (t *Tracker) Record(model, processor string, promptTokens, candidatesTokens int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{model: model, processor: processor}
	e, ok := t.entries[k]
	if !ok {
		e = &Entry{Model: model, Processor: processor}
		t.entries[k] = e
	}
	e.PromptTokens += promptTokens
	e.CandidatesTokens += candidatesTokens
	e.TotalTokens += promptTokens + candidatesTokens
	e.CallCount++
}

// Reset empties the tracker.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[key]*Entry)
}

// Summary is an ordered snapshot of every recorded bucket plus running totals.
type Summary struct {
	Entries          []Entry `json:"entries"`
	PromptTokens     int64   `json:"promptTokens"`
	CandidatesTokens int64   `json:"candidatesTokens"`
	TotalTokens      int64   `json:"totalTokens"`
	CallCount        int64   `json:"callCount"`
}

// Summary returns a deterministic (model, then processor) ordered snapshot.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := Summary{Entries: make([]Entry, 0, len(t.entries))}
	keys := make([]key, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sortKeys(keys)

	for _, k := range keys {
		e := t.entries[k]
		out.Entries = append(out.Entries, *e)
		out.PromptTokens += e.PromptTokens
		out.CandidatesTokens += e.CandidatesTokens
		out.TotalTokens += e.TotalTokens
		out.CallCount += e.CallCount
	}
	return out
}

func sortKeys(keys []key) {
	// Insertion sort is plenty for the small number of (model, processor)
	// pairs a single job ever touches.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && less(keys[j], keys[j-1]); j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
}

func less(a, b key) bool {
	if a.model != b.model {
		return a.model < b.model
	}
	return a.processor < b.processor
}
