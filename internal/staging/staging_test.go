package staging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cropdx/leafscan/internal/errors"
	"github.com/cropdx/leafscan/internal/logger"
	"github.com/cropdx/leafscan/internal/testutil"
)

var (
	pngBytes  = testutil.PNGBytes()
	jpegBytes = testutil.JPEGBytes()
)

// memAllocator records handles in memory.
type memAllocator struct {
	mu       sync.Mutex
	seq      int
	live     map[PreviewHandle]bool
	released []PreviewHandle
	peak     int
	failNext int
}

func newMemAllocator() *memAllocator {
	return &memAllocator{live: make(map[PreviewHandle]bool)}
}

func (m *memAllocator) Allocate(name, _ string, _ []byte) (PreviewHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext > 0 {
		m.failNext--
		return "", fmt.Errorf("allocation failed")
	}
	m.seq++
	h := PreviewHandle(fmt.Sprintf("mem://%d/%s", m.seq, name))
	m.live[h] = true
	m.peak = max(m.peak, len(m.live))
	return h, nil
}

func (m *memAllocator) Release(h PreviewHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.live, h)
	m.released = append(m.released, h)
	return nil
}

func (m *memAllocator) liveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

func (m *memAllocator) peakCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

func newTestStore(t *testing.T, alloc PreviewAllocator, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithLogger(logger.NewSlogLogger(io.Discard, logger.LogLevelError))}, opts...)
	return NewStore(alloc, opts...)
}

func TestStageAcceptsImages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		data     []byte
		wantType string
	}{
		{"leaf.png", pngBytes, "image/png"},
		{"leaf.jpg", jpegBytes, "image/jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			alloc := newMemAllocator()
			store := newTestStore(t, alloc)

			img, err := store.Stage(tt.name, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.name, img.Name)
			assert.Equal(t, tt.wantType, img.ContentType)
			assert.Equal(t, len(tt.data), img.Size())
			assert.NotEmpty(t, img.Preview)
			assert.Equal(t, 1, alloc.liveCount())
		})
	}
}

func TestStageRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"text", []byte("just some notes about a leaf")},
		{"pdf", []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			alloc := newMemAllocator()
			store := newTestStore(t, alloc)

			prior, err := store.Stage("prior.png", pngBytes)
			require.NoError(t, err)

			_, err = store.Stage(tt.name, tt.data)
			require.Error(t, err)
			assert.True(t, errors.IsInvalidInput(err), "expected invalid input error, got %v", err)
			assert.NotEmpty(t, errors.UserMessage(err))

			current, ok := store.Current()
			require.True(t, ok, "prior image must survive a rejected stage")
			assert.Equal(t, prior.Preview, current.Preview)
			assert.Equal(t, 1, alloc.liveCount())
		})
	}
}

func TestStageReplacesAndReleasesPrior(t *testing.T) {
	t.Parallel()

	alloc := newMemAllocator()
	store := newTestStore(t, alloc)

	first, err := store.Stage("a.png", pngBytes)
	require.NoError(t, err)
	second, err := store.Stage("b.jpg", jpegBytes)
	require.NoError(t, err)

	assert.NotEqual(t, first.Preview, second.Preview)
	assert.Equal(t, []PreviewHandle{first.Preview}, alloc.released)
	assert.Equal(t, 1, alloc.liveCount())
	assert.Equal(t, 1, alloc.peakCount(), "prior preview must be released before the next is allocated")

	current, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, "b.jpg", current.Name)
}

func TestStageAllocationFailureKeepsPrior(t *testing.T) {
	t.Parallel()

	alloc := newMemAllocator()
	store := newTestStore(t, alloc)

	prior, err := store.Stage("a.png", pngBytes)
	require.NoError(t, err)

	alloc.failNext = 1
	_, err = store.Stage("b.png", pngBytes)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))

	current, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, prior.Name, current.Name)
	assert.Equal(t, prior.Data, current.Data)
	assert.NotEqual(t, prior.Preview, current.Preview)
	assert.Equal(t, []PreviewHandle{prior.Preview}, alloc.released)
	assert.Equal(t, 1, alloc.liveCount())
	assert.Equal(t, 1, alloc.peakCount())
}

func TestStageAllocationFailureWithoutRestoreEmpties(t *testing.T) {
	t.Parallel()

	alloc := newMemAllocator()
	store := newTestStore(t, alloc)

	_, err := store.Stage("a.png", pngBytes)
	require.NoError(t, err)

	alloc.failNext = 2
	_, err = store.Stage("b.png", pngBytes)
	require.Error(t, err)

	assert.False(t, store.HasImage())
	assert.Equal(t, 0, alloc.liveCount())
}

func TestClearIsIdempotent(t *testing.T) {
	t.Parallel()

	alloc := newMemAllocator()
	store := newTestStore(t, alloc)

	_, err := store.Stage("a.png", pngBytes)
	require.NoError(t, err)

	store.Clear()
	store.Clear()

	assert.False(t, store.HasImage())
	assert.Len(t, alloc.released, 1)
	assert.Zero(t, alloc.liveCount())
}

func TestNoLeakAcrossSequences(t *testing.T) {
	t.Parallel()

	counting := &CountingAllocator{Next: newMemAllocator()}
	store := newTestStore(t, counting)

	for i := range 25 {
		switch i % 4 {
		case 0, 1:
			_, err := store.Stage(fmt.Sprintf("%d.png", i), pngBytes)
			require.NoError(t, err)
		case 2:
			_, err := store.Stage("bad.txt", []byte("not an image"))
			require.Error(t, err)
		case 3:
			store.Clear()
		}
		live := counting.Live()
		if store.HasImage() {
			assert.EqualValues(t, 1, live, "step %d", i)
		} else {
			assert.Zero(t, live, "step %d", i)
		}
	}

	store.Clear()
	allocated, released := counting.Counts()
	assert.Equal(t, allocated, released)
}

func TestStageFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "leaf.png")
	require.NoError(t, os.WriteFile(path, pngBytes, 0o600))

	t.Run("reads from disk", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, newMemAllocator())
		img, err := store.StageFile(path)
		require.NoError(t, err)
		assert.Equal(t, "leaf.png", img.Name)
		assert.True(t, bytes.Equal(pngBytes, img.Data))
	})

	t.Run("size cap", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, newMemAllocator(), WithMaxBytes(8))
		_, err := store.StageFile(path)
		require.Error(t, err)
		assert.True(t, errors.IsInvalidInput(err))
		assert.False(t, store.HasImage())
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, newMemAllocator())
		_, err := store.StageFile(filepath.Join(dir, "missing.png"))
		require.Error(t, err)
		assert.True(t, errors.IsInvalidInput(err))
	})
}

func TestTempFileAllocator(t *testing.T) {
	t.Parallel()

	alloc := TempFileAllocator{Dir: t.TempDir()}

	h, err := alloc.Allocate("leaf.png", "image/png", pngBytes)
	require.NoError(t, err)
	assert.Equal(t, ".png", filepath.Ext(string(h)))

	data, err := os.ReadFile(string(h))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)

	require.NoError(t, alloc.Release(h))
	_, err = os.Stat(string(h))
	assert.True(t, os.IsNotExist(err))

	// Second release of the same handle is harmless.
	require.NoError(t, alloc.Release(h))
}
