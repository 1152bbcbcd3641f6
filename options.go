package zone

import (
	"unsafe"

	"github.com/chronicleforge/yendors-curse-sub001/resource"
	"github.com/chronicleforge/yendors-curse-sub001/snapshot"
)

// SnapshotMode selects the container Save produces. Load recognizes both
// regardless of the configured mode.
type SnapshotMode uint8

const (
	// SnapshotWholeRegion saves the byte image of the used region prefix.
	// Pointer-preserving when placement is fixed. This is the default.
	SnapshotWholeRegion SnapshotMode = iota
	// SnapshotEnumeration saves only the tracked payloads, size-prefixed.
	// Never pointer-preserving; the fallback for hosts denied the
	// preferred base. Selecting it enables allocation tracking.
	SnapshotEnumeration
)

// Options configures a Zone.
type Options struct {
	// PreferredBase is the absolute address for fixed placement.
	// Zero selects region.PreferredBase.
	PreferredBase uintptr

	// Capacity is the requested region size. Zero selects
	// region.DefaultCapacity.
	Capacity uintptr

	// MinCapacity is the reduced size for the final fallback strategy.
	// Zero selects region.MinCapacity.
	MinCapacity uintptr

	// ForceDynamic skips the fixed placement strategies.
	ForceDynamic bool

	// SnapshotMode selects the Save container.
	SnapshotMode SnapshotMode

	// Compression is applied to whole-region snapshots. Default none.
	Compression snapshot.Compression

	// TrackAllocations maintains the tracking list even in whole-region
	// mode. Enumeration mode tracks regardless.
	TrackAllocations bool

	// Controller, if set, budgets region memory and throttles snapshot IO.
	Controller *resource.Controller

	// Logger receives diagnostics. Nil discards them.
	Logger *Logger

	// PanicFunc is the host's panic entry point, invoked on allocation
	// failure. It must not return; if it does, the façade panics itself.
	// Nil means plain panic.
	PanicFunc func(msg string)

	// PlatformFree receives pointers handed to Free that lie outside the
	// region. The host mixes region pointers and platform-heap pointers;
	// in Go the platform heap is garbage collected, so the default is a
	// no-op.
	PlatformFree func(p unsafe.Pointer)
}

// WithPreferredBase sets the fixed placement address.
func WithPreferredBase(base uintptr) func(*Options) {
	return func(o *Options) { o.PreferredBase = base }
}

// WithCapacity sets the requested region capacity.
func WithCapacity(capacity uintptr) func(*Options) {
	return func(o *Options) { o.Capacity = capacity }
}

// WithMinCapacity sets the reduced fallback capacity.
func WithMinCapacity(capacity uintptr) func(*Options) {
	return func(o *Options) { o.MinCapacity = capacity }
}

// WithForceDynamic skips fixed placement. Snapshots become session-local.
func WithForceDynamic() func(*Options) {
	return func(o *Options) { o.ForceDynamic = true }
}

// WithSnapshotMode selects the Save container.
func WithSnapshotMode(mode SnapshotMode) func(*Options) {
	return func(o *Options) { o.SnapshotMode = mode }
}

// WithCompression compresses whole-region snapshot images.
func WithCompression(c snapshot.Compression) func(*Options) {
	return func(o *Options) { o.Compression = c }
}

// WithTracking maintains the allocation tracking list in any mode.
func WithTracking() func(*Options) {
	return func(o *Options) { o.TrackAllocations = true }
}

// WithController attaches a resource controller.
func WithController(c *resource.Controller) func(*Options) {
	return func(o *Options) { o.Controller = c }
}

// WithLogger sets the diagnostics logger.
func WithLogger(l *Logger) func(*Options) {
	return func(o *Options) { o.Logger = l }
}

// WithPanicFunc sets the host's panic entry point.
func WithPanicFunc(fn func(msg string)) func(*Options) {
	return func(o *Options) { o.PanicFunc = fn }
}

// WithPlatformFree sets the platform-heap free hook.
func WithPlatformFree(fn func(p unsafe.Pointer)) func(*Options) {
	return func(o *Options) { o.PlatformFree = fn }
}
