package upload

import (
	"slices"
	"sync"

	"github.com/fanvue/fanvue-app-starter/internal/model"
)

// Ledger records acknowledged parts in completion order. It is safe for
// concurrent use.
type Ledger struct {
	mu    sync.Mutex
	parts []model.CompletedPart
}

// Add records an acknowledged part.
func (l *Ledger) Add(p model.CompletedPart) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.parts = append(l.parts, p)
}

// Len returns the number of acknowledged parts.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.parts)
}

// Parts returns the acknowledged parts in completion order.
func (l *Ledger) Parts() []model.CompletedPart {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.parts)
}

// Complete reports whether every planned part has been acknowledged.
func (l *Ledger) Complete(plan []Part) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	acked := make(map[int]bool, len(l.parts))
	for _, p := range l.parts {
		acked[p.PartNumber] = true
	}
	for _, p := range plan {
		if !acked[p.Number] {
			return false
		}
	}
	return true
}

// sortedParts returns a copy of parts ordered by part number.
func sortedParts(parts []model.CompletedPart) []model.CompletedPart {
	out := slices.Clone(parts)
	slices.SortFunc(out, func(a, b model.CompletedPart) int {
		return a.PartNumber - b.PartNumber
	})
	return out
}
