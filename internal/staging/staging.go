// Package staging holds the single image selected for analysis along with
// its preview handle until it is submitted or discarded.
package staging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/cropdx/leafscan/internal/errors"
	"github.com/cropdx/leafscan/internal/logger"
)

const componentName = "staging"

// DefaultMaxBytes caps files read by StageFile.
const DefaultMaxBytes int64 = 20 << 20

// StagedImage is a locally held, not-yet-submitted image.
type StagedImage struct {
	Name        string
	ContentType string
	Data        []byte
	Preview     PreviewHandle
	StagedAt    time.Time
}

// Size returns the payload length in bytes.
func (s StagedImage) Size() int {
	return len(s.Data)
}

// Store holds at most one StagedImage. Every path that discards an image
// releases its preview exactly once.
type Store struct {
	mu       sync.Mutex
	alloc    PreviewAllocator
	maxBytes int64
	log      logger.Logger
	current  *StagedImage
}

// Option configures a Store.
type Option func(*Store)

// WithMaxBytes sets the file size cap applied by StageFile.
func WithMaxBytes(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// WithLogger sets the logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// NewStore creates an empty store backed by alloc.
func NewStore(alloc PreviewAllocator, opts ...Option) *Store {
	s := &Store{
		alloc:    alloc,
		maxBytes: DefaultMaxBytes,
		log:      logger.Global().Module(componentName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stage replaces the staged image with data. Empty or non-image payloads are
// rejected with an invalid-input error and the current image is kept. If the
// new preview cannot be allocated the current image is kept under a fresh
// preview handle.
func (s *Store) Stage(name string, data []byte) (StagedImage, error) {
	if len(data) == 0 {
		return StagedImage{}, errors.New(fmt.Errorf("empty image payload %q", name)).
			Component(componentName).
			Category(errors.CategoryValidation).
			UserMessage("The selected file is empty.").
			Context("filename", name).
			Build()
	}

	mt := mimetype.Detect(data)
	if !isImage(mt) {
		return StagedImage{}, errors.New(fmt.Errorf("unsupported content type %s for %q", mt.String(), name)).
			Component(componentName).
			Category(errors.CategoryValidation).
			UserMessage("Please choose an image file (JPEG, PNG, WebP, ...).").
			Context("filename", name).
			Context("detected_type", mt.String()).
			Build()
	}
	contentType := mt.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	// At most one preview is live, so the prior one goes before allocating.
	prior := s.current
	s.releaseLocked()

	preview, err := s.alloc.Allocate(name, contentType, data)
	if err != nil {
		s.restoreLocked(prior)
		return StagedImage{}, errors.New(err).
			Component(componentName).
			Category(errors.CategoryFileIO).
			Context("operation", "allocate_preview").
			Build()
	}

	displayName := filepath.Base(name)
	if strings.TrimSpace(name) == "" {
		displayName = "image" + mt.Extension()
	}

	img := &StagedImage{
		Name:        displayName,
		ContentType: contentType,
		Data:        data,
		Preview:     preview,
		StagedAt:    time.Now(),
	}
	s.current = img

	s.log.Debug("Image staged",
		logger.String("filename", img.Name),
		logger.String("content_type", contentType),
		logger.Int("bytes", len(data)))

	return *img, nil
}

// StageFile reads path from disk, enforcing the size cap, and stages it.
func (s *Store) StageFile(path string) (StagedImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return StagedImage{}, errors.New(err).
			Component(componentName).
			Category(errors.CategoryValidation).
			UserMessage(fmt.Sprintf("Cannot open %s.", filepath.Base(path))).
			FileContext(path, 0).
			Build()
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, s.maxBytes+1))
	if err != nil {
		return StagedImage{}, errors.FileError(err, path, 0)
	}
	if int64(len(data)) > s.maxBytes {
		return StagedImage{}, errors.New(fmt.Errorf("file %q exceeds %d bytes", path, s.maxBytes)).
			Component(componentName).
			Category(errors.CategoryValidation).
			UserMessage(fmt.Sprintf("%s is too large (limit %d MB).", filepath.Base(path), s.maxBytes>>20)).
			FileContext(path, int64(len(data))).
			Build()
	}

	return s.Stage(path, data)
}

// Clear releases the current preview and empties the store. Idempotent.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
}

// Current returns the staged image and whether one exists.
func (s *Store) Current() (StagedImage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return StagedImage{}, false
	}
	return *s.current, true
}

// HasImage reports whether an image is staged.
func (s *Store) HasImage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

func (s *Store) releaseLocked() {
	if s.current == nil {
		return
	}
	if err := s.alloc.Release(s.current.Preview); err != nil {
		s.log.Warn("Failed to release preview",
			logger.String("filename", s.current.Name),
			logger.Error(err))
	}
	s.current = nil
}

// restoreLocked re-stages prior with a fresh preview after a failed
// replacement. If that allocation fails too the store stays empty.
func (s *Store) restoreLocked(prior *StagedImage) {
	if prior == nil {
		return
	}
	preview, err := s.alloc.Allocate(prior.Name, prior.ContentType, prior.Data)
	if err != nil {
		s.log.Warn("Failed to restore prior image",
			logger.String("filename", prior.Name),
			logger.Error(err))
		return
	}
	restored := *prior
	restored.Preview = preview
	s.current = &restored
}

func isImage(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") {
			return true
		}
	}
	return false
}
