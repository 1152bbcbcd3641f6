// Package snapshot serialises and rehydrates the allocator region.
//
// Two incompatible on-disk formats exist. The whole-region format writes a
// byte-for-byte image of the used prefix of the region behind a versioned,
// checksummed header; when the region sits at its preferred fixed base, the
// image is valid across processes and every absolute pointer inside it
// survives a reload untouched. The enumeration format writes only the
// payload bytes of each tracked allocation and is the fallback for hosts
// where fixed placement is denied; it does not preserve pointer validity.
//
// The Manager adds the save-slot directory layout on top of the codecs:
// atomic slot files, listing, and optional archival to a blob store.
package snapshot
