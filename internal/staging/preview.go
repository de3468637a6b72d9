package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gabriel-vasile/mimetype"
)

// PreviewHandle is an opaque display reference for a staged image.
type PreviewHandle string

// PreviewAllocator creates and releases preview handles. Each handle returned
// by Allocate is passed to Release exactly once.
type PreviewAllocator interface {
	Allocate(name, contentType string, data []byte) (PreviewHandle, error)
	Release(PreviewHandle) error
}

// TempFileAllocator writes previews to temporary files and removes them on release.
type TempFileAllocator struct {
	// Dir is the directory for preview files; empty means os.TempDir().
	Dir string
}

// Allocate writes data to a new temp file and returns its path.
func (a TempFileAllocator) Allocate(name, contentType string, data []byte) (PreviewHandle, error) {
	ext := filepath.Ext(name)
	if mt := mimetype.Lookup(contentType); mt != nil && mt.Extension() != "" {
		ext = mt.Extension()
	}
	pattern := "leafscan-preview-*" + sanitizeExt(ext)

	f, err := os.CreateTemp(a.Dir, pattern)
	if err != nil {
		return "", fmt.Errorf("create preview file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write preview file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close preview file: %w", err)
	}
	return PreviewHandle(f.Name()), nil
}

// Release removes the preview file. A file that is already gone is not an error.
func (a TempFileAllocator) Release(h PreviewHandle) error {
	if h == "" {
		return nil
	}
	if err := os.Remove(string(h)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove preview file: %w", err)
	}
	return nil
}

func sanitizeExt(ext string) string {
	if ext == "" || strings.ContainsAny(ext, `/\*`) {
		return ""
	}
	return ext
}

// CountingAllocator wraps another allocator and tracks live handles.
// The CLI reports Live at shutdown to surface leaked previews.
type CountingAllocator struct {
	Next      PreviewAllocator
	allocated atomic.Int64
	released  atomic.Int64
}

// Allocate forwards to Next and counts successful allocations.
func (c *CountingAllocator) Allocate(name, contentType string, data []byte) (PreviewHandle, error) {
	h, err := c.Next.Allocate(name, contentType, data)
	if err == nil {
		c.allocated.Add(1)
	}
	return h, err
}

// Release forwards to Next and counts releases.
func (c *CountingAllocator) Release(h PreviewHandle) error {
	c.released.Add(1)
	return c.Next.Release(h)
}

// Live returns allocations minus releases.
func (c *CountingAllocator) Live() int64 {
	return c.allocated.Load() - c.released.Load()
}

// Counts returns total allocations and releases.
func (c *CountingAllocator) Counts() (allocated, released int64) {
	return c.allocated.Load(), c.released.Load()
}
