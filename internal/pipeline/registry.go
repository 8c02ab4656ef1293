package pipeline

import (
	"context"
	"fmt"

	"github.com/ternarybob/speccompiler/internal/diagnostics"
	"github.com/ternarybob/speccompiler/internal/store"
)

// Callback is a phase handler function. It receives the shared Store, the
// ordered list of active document contexts for this invocation, and the
// diagnostics sink (§4.6).
type Callback func(ctx context.Context, st *store.Store, docs []*Context, sink *diagnostics.Sink) error

// Handler is a value record naming a unit of per-phase work (§4.6).
// Registration without Name or Prerequisites fails immediately; a
// Handler with no prerequisite ordering needs still sets Prerequisites
// to a non-nil empty slice.
type Handler struct {
	Name          string
	Prerequisites []string

	OnInitialize Callback
	OnAnalyze    Callback
	OnTransform  Callback
	OnVerify     Callback
	OnEmit       Callback
}

func (h Handler) callbackFor(phase Phase) Callback {
	switch phase {
	case PhaseInitialize:
		return h.OnInitialize
	case PhaseAnalyze:
		return h.OnAnalyze
	case PhaseTransform:
		return h.OnTransform
	case PhaseVerify:
		return h.OnVerify
	case PhaseEmit:
		return h.OnEmit
	default:
		return nil
	}
}

// Registry owns the set of registered handlers and computes per-phase
// execution order.
type Registry struct {
	handlers map[string]Handler
	order    []string // registration order, used as the deterministic tiebreak
}

// NewRegistry returns an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register adds h to the registry. Registering a duplicate name, or a
// handler missing Name or a non-nil Prerequisites slice, is a fatal error
// (§4.6).
func (r *Registry) Register(h Handler) error {
	if h.Name == "" {
		return fmt.Errorf("handler registration failed: name is required")
	}
	if h.Prerequisites == nil {
		return fmt.Errorf("handler %q registration failed: prerequisites is required (use an empty slice for none)", h.Name)
	}
	if _, exists := r.handlers[h.Name]; exists {
		return fmt.Errorf("handler %q registration failed: duplicate name", h.Name)
	}
	r.handlers[h.Name] = h
	r.order = append(r.order, h.Name)
	return nil
}

// Order returns the handlers implementing phase's callback, topologically
// sorted by Prerequisites. A prerequisite naming an unregistered handler
// is silently permissive (skipped, §4.6); a prerequisite cycle is a fatal
// error. Ties (no prerequisite edge between two handlers) break by
// registration order, so a given build is deterministic.
func (r *Registry) Order(phase Phase) ([]Handler, error) {
	participants := make([]string, 0, len(r.order))
	inSet := map[string]bool{}
	for _, name := range r.order {
		if r.handlers[name].callbackFor(phase) != nil {
			participants = append(participants, name)
			inSet[name] = true
		}
	}

	// Kahn's algorithm: indegree counts only edges whose prerequisite is
	// itself a participant in this phase.
	indegree := map[string]int{}
	edges := map[string][]string{} // prerequisite -> dependents
	for _, name := range participants {
		indegree[name] = 0
	}
	for _, name := range participants {
		for _, prereq := range r.handlers[name].Prerequisites {
			if !inSet[prereq] {
				continue // unregistered or not running this phase: permissive skip
			}
			edges[prereq] = append(edges[prereq], name)
			indegree[name]++
		}
	}

	var queue []string
	for _, name := range participants {
		if indegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	var ordered []string
	for len(queue) > 0 {
		// Pop in registration order among ready nodes for determinism.
		next := queue[0]
		queue = queue[1:]
		ordered = append(ordered, next)

		for _, dependent := range edges[next] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
		queue = stableSort(queue, r.order)
	}

	if len(ordered) != len(participants) {
		return nil, fmt.Errorf("handler prerequisite cycle detected among: %v", remaining(participants, ordered))
	}

	handlers := make([]Handler, 0, len(ordered))
	for _, name := range ordered {
		handlers = append(handlers, r.handlers[name])
	}
	return handlers, nil
}

// Run computes phase's handler order and invokes each in sequence,
// stopping at the first error (handlers run strictly sequentially within
// a phase, §5).
func (r *Registry) Run(ctx context.Context, phase Phase, st *store.Store, docs []*Context, sink *diagnostics.Sink) error {
	handlers, err := r.Order(phase)
	if err != nil {
		return err
	}
	for _, h := range handlers {
		cb := h.callbackFor(phase)
		if err := cb(ctx, st, docs, sink); err != nil {
			return fmt.Errorf("handler %q failed in phase %s: %w", h.Name, phase, err)
		}
	}
	return nil
}

// stableSort reorders names to match their position in canonicalOrder,
// keeping the ready queue deterministic regardless of map iteration order.
func stableSort(names []string, canonicalOrder []string) []string {
	pos := make(map[string]int, len(canonicalOrder))
	for i, n := range canonicalOrder {
		pos[n] = i
	}
	out := append([]string{}, names...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && pos[out[j-1]] > pos[out[j]]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func remaining(all, ordered []string) []string {
	done := map[string]bool{}
	for _, n := range ordered {
		done[n] = true
	}
	var left []string
	for _, n := range all {
		if !done[n] {
			left = append(left, n)
		}
	}
	return left
}
