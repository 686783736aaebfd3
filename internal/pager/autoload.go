package pager

import (
	"context"
	"fmt"
	"strings"
)

// ErrTargetNotFound reports that a deep-linked item could not be
// located within the catch-up bounds. The item may be on a page past
// the load limit, or deleted.
var ErrTargetNotFound = fmt.Errorf("deep-link target not found")

// AutoLoadToTarget locates a deep-linked item named by a location
// fragment of the form "post-<id>" or "comment-<id>" and scrolls to
// it. Three outcomes are tried in order: the target is already
// visible; the target is present but hidden behind disclosures, which
// are triggered in document order; the target is absent and further
// pages are loaded silently, bounded by MaxAutoLoadPages. Disclosures
// are attempted once more as a last resort after the page bound.
func (e *Engine) AutoLoadToTarget(ctx context.Context, fragment string) error {
	target := strings.TrimPrefix(fragment, "#")
	if target == "" {
		return nil
	}

	containerID := e.containerForTarget(target)

	// Already present and visible.
	if e.doc.Has(target) && e.doc.IsVisible(target) {
		e.reveal(target)
		return nil
	}

	// Present but hidden behind a disclosure.
	if e.doc.Has(target) {
		if e.triggerDisclosures(target) {
			return nil
		}
		return ErrTargetNotFound
	}

	// Absent: load further pages silently until it appears, there is
	// nothing more to load, or the bound is hit.
	for i := 0; i < MaxAutoLoadPages; i++ {
		if e.doc.Has(target) || !e.HasMore(containerID) {
			break
		}
		if err := e.LoadMore(ctx, containerID, true); err != nil {
			break
		}
	}

	if e.doc.Has(target) && e.doc.IsVisible(target) {
		e.reveal(target)
		return nil
	}
	if e.triggerDisclosures(target) {
		return nil
	}
	return ErrTargetNotFound
}

// containerForTarget maps a deep-link target to its container: a
// "comment-" target goes to the container whose data key is
// "comments" when one is registered; everything else, and any target
// whose kind cannot be determined, defaults to the primary feed
// container.
func (e *Engine) containerForTarget(target string) string {
	kind, _, ok := strings.Cut(target, "-")
	if ok && kind == "comment" {
		e.mu.Lock()
		defer e.mu.Unlock()
		for id, st := range e.states {
			if st.cfg.DataKey == "comments" {
				return id
			}
		}
		return e.primaryContainer
	}
	return e.primaryContainer
}

// triggerDisclosures activates disclosure controls in document order,
// re-checking target visibility after each, until the target is
// visible or the controls are exhausted.
func (e *Engine) triggerDisclosures(target string) bool {
	for _, disc := range e.doc.Disclosures() {
		e.doc.Trigger(disc)
		if e.doc.Has(target) && e.doc.IsVisible(target) {
			e.reveal(target)
			return true
		}
	}
	return false
}

// reveal scrolls to the target and marks it with a brief highlight.
func (e *Engine) reveal(target string) {
	e.doc.ScrollTo(target)
	e.doc.Highlight(target)
}
