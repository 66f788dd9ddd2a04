package domain

import "context"

// RenderSurface is the minimal contract this subsystem requires from the
// rendering engine. The engine itself lives in the reader frontend; the
// server only ever talks to it through this interface.
type RenderSurface interface {
	// Ready returns a channel that is closed once the renderer has
	// signalled readiness. Readiness is an explicit signal from the
	// engine, never a guessed delay.
	Ready() <-chan struct{}

	// Display renders at the given locator, or at the document start when
	// locator is empty. It returns only once the target content is
	// actually painted. A malformed locator makes the engine fail, which
	// surfaces here as an error.
	Display(ctx context.Context, locator string) error

	// OnRelocated registers cb for every visible-position change, whether
	// caused by Display or by user navigation. The returned func
	// unsubscribes.
	OnRelocated(cb func(Relocation)) (unsubscribe func())

	// ViewportMetrics returns the live scroll metrics of the currently
	// rendered fragment, or nil when nothing is rendered yet.
	ViewportMetrics() *ScrollMetrics

	// SetScrollTop scrolls the current fragment's viewport to the given
	// pixel offset.
	SetScrollTop(ctx context.Context, px float64) error
}
