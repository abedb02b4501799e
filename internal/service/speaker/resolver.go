// Package speaker maps the engine's opaque per-utterance speaker identifiers
// to stable display labels for the lifetime of one session.
package speaker

import (
	"fmt"
	"sync"
)

// Assignment is one raw id → label mapping.
type Assignment struct {
	RawID string
	Label string
}

// Resolver allocates "Speaker N" labels on first sight of a raw id.
// Matching is exact; a label, once given, is never changed or reused.
type Resolver struct {
	mu     sync.Mutex
	labels map[string]string
	order  []string
	// OnNew, if set, is called after a new label is allocated.
	OnNew func(rawID, label string)
}

func NewResolver() *Resolver {
	return &Resolver{labels: make(map[string]string)}
}

// Resolve returns the label for rawID. An empty rawID means the engine did
// not attribute the text and resolves to "" without allocating a label.
func (r *Resolver) Resolve(rawID string) string {
	if rawID == "" {
		return ""
	}

	r.mu.Lock()
	if label, ok := r.labels[rawID]; ok {
		r.mu.Unlock()
		return label
	}
	label := fmt.Sprintf("Speaker %d", len(r.order)+1)
	r.labels[rawID] = label
	r.order = append(r.order, rawID)
	onNew := r.OnNew
	r.mu.Unlock()

	if onNew != nil {
		onNew(rawID, label)
	}
	return label
}

// Labels returns the assignments in first-seen order.
func (r *Resolver) Labels() []Assignment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Assignment, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, Assignment{RawID: id, Label: r.labels[id]})
	}
	return out
}

// Len returns the number of distinct speakers seen.
func (r *Resolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}
