package zone

import (
	"github.com/chronicleforge/yendors-curse-sub001/arena"
	"github.com/chronicleforge/yendors-curse-sub001/region"
	"github.com/chronicleforge/yendors-curse-sub001/snapshot"
)

// Re-exported sentinels so callers rarely need the subpackages.
//
// Allocation failure itself never surfaces as an error: the façade honours
// the host's never-null contract and routes it to the panic entry point.
var (
	// ErrNotInitialized reports an operation before the region was mapped.
	ErrNotInitialized = region.ErrNotInitialized
	// ErrResourceExhausted reports that every placement strategy failed.
	ErrResourceExhausted = region.ErrResourceExhausted
	// ErrForeignPointer reports a pointer the allocator never issued.
	ErrForeignPointer = arena.ErrForeignPointer
	// ErrBadSnapshotMagic reports a file that is not a snapshot.
	ErrBadSnapshotMagic = snapshot.ErrBadMagic
)
