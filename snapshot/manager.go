package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/chronicleforge/yendors-curse-sub001/blobstore"
	"github.com/chronicleforge/yendors-curse-sub001/region"
	"github.com/chronicleforge/yendors-curse-sub001/resource"
)

// SlotExt is the file extension of save-slot files.
const SlotExt = ".nhz"

// ErrNoSlot is returned when a named save slot does not exist.
var ErrNoSlot = errors.New("snapshot: no such save slot")

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Controller, if set, throttles snapshot IO.
	Controller *resource.Controller

	// Archive, if set, is the blob store slots can be pushed to.
	Archive blobstore.Store

	// Compression is applied to whole-region slot files.
	Compression Compression

	// Logger receives snapshot diagnostics.
	Logger *slog.Logger
}

// SlotInfo describes one save slot on disk.
type SlotInfo struct {
	Name   string
	Format Format
	Size   int64
}

// Manager owns the save-slot directory: one file per slot, written
// atomically via a temp file and rename, optionally compressed and
// optionally mirrored to a blob store.
type Manager struct {
	dir     string
	res     *resource.Controller
	archive blobstore.Store
	comp    Compression
	log     *slog.Logger
}

// NewManager creates a Manager rooted at dir, creating the directory if
// needed.
func NewManager(dir string, optFns ...func(*ManagerOptions)) (*Manager, error) {
	var opts ManagerOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("snapshot: create slot directory: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		dir:     dir,
		res:     opts.Controller,
		archive: opts.Archive,
		comp:    opts.Compression,
		log:     log.With("subsystem", "snapshot"),
	}, nil
}

// SlotPath returns the file path of a slot.
func (m *Manager) SlotPath(slot string) string {
	return filepath.Join(m.dir, slot+SlotExt)
}

// SaveRegion writes a whole-region snapshot of r into the slot.
func (m *Manager) SaveRegion(ctx context.Context, slot string, r *region.Region) error {
	return m.writeSlot(ctx, slot, func(w io.Writer) error {
		return WriteRegion(w, r, m.comp)
	})
}

// LoadRegion rehydrates r from the slot. The slot must hold a whole-region
// snapshot.
func (m *Manager) LoadRegion(ctx context.Context, slot string, r *region.Region) (*LoadInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := m.openSlot(slot)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRegion(f, r, m.log)
}

// SaveBlocks writes an enumeration snapshot of the given payloads into the
// slot.
func (m *Manager) SaveBlocks(ctx context.Context, slot string, payloads [][]byte) error {
	return m.writeSlot(ctx, slot, func(w io.Writer) error {
		return WriteBlocks(w, payloads)
	})
}

// LoadBlocks replays an enumeration snapshot from the slot.
func (m *Manager) LoadBlocks(ctx context.Context, slot string, alloc func(payload []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := m.openSlot(slot)
	if err != nil {
		return err
	}
	defer f.Close()
	return ReadBlocks(f, alloc)
}

// SlotFormat reports which container the slot file uses.
func (m *Manager) SlotFormat(slot string) (Format, error) {
	f, err := m.openSlot(slot)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	var magic [8]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return DetectFormat(magic[:])
}

// List returns every recognizable slot, sorted by name. Slot headers are
// probed concurrently; files that are not snapshots are skipped with a
// warning.
func (m *Manager) List(ctx context.Context) ([]SlotInfo, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read slot directory: %w", err)
	}

	var mu sync.Mutex
	var slots []SlotInfo

	g, ctx := errgroup.WithContext(ctx)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), SlotExt) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), SlotExt)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			format, err := m.SlotFormat(name)
			if err != nil {
				m.log.Warn("skipping unrecognized slot file", "slot", name, "error", err)
				return nil
			}
			st, err := os.Stat(m.SlotPath(name))
			if err != nil {
				return err
			}
			mu.Lock()
			slots = append(slots, SlotInfo{Name: name, Format: format, Size: st.Size()})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Name < slots[j].Name })
	return slots, nil
}

// Delete removes a slot file. Deleting a missing slot is not an error.
func (m *Manager) Delete(slot string) error {
	err := os.Remove(m.SlotPath(slot))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Archive pushes the slot file to the configured blob store.
func (m *Manager) Archive(ctx context.Context, slot string) error {
	if m.archive == nil {
		return errors.New("snapshot: no archive store configured")
	}
	f, err := m.openSlot(slot)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	if err := m.archive.Put(ctx, slot+SlotExt, f, st.Size()); err != nil {
		return fmt.Errorf("snapshot: archive slot %q: %w", slot, err)
	}
	m.log.Info("slot archived", "slot", slot, "bytes", st.Size())
	return nil
}

// Retrieve pulls a slot file back from the blob store into the slot
// directory, atomically.
func (m *Manager) Retrieve(ctx context.Context, slot string) error {
	if m.archive == nil {
		return errors.New("snapshot: no archive store configured")
	}
	rc, _, err := m.archive.Get(ctx, slot+SlotExt)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return fmt.Errorf("%w: %q", ErrNoSlot, slot)
		}
		return err
	}
	defer rc.Close()
	return m.writeSlot(ctx, slot, func(w io.Writer) error {
		_, err := io.Copy(w, rc)
		return err
	})
}

func (m *Manager) openSlot(slot string) (*os.File, error) {
	f, err := os.Open(m.SlotPath(slot))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrNoSlot, slot)
		}
		return nil, err
	}
	return f, nil
}

// writeSlot writes a slot through a temp file in the same directory and
// renames it into place, so a crashed save never corrupts an existing slot.
func (m *Manager) writeSlot(ctx context.Context, slot string, write func(io.Writer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := m.SlotPath(slot)
	tmp, err := os.CreateTemp(m.dir, slot+SlotExt+".tmp-*")
	if err != nil {
		return fmt.Errorf("snapshot: create temp slot: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	w := m.res.ThrottleWriter(ctx, tmp)
	if err := write(w); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("snapshot: sync slot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot: close slot: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("snapshot: publish slot: %w", err)
	}

	// Best-effort directory sync so the rename survives a crash.
	if d, err := os.Open(m.dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	m.log.Info("slot saved", "slot", slot)
	return nil
}
