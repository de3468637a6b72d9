package remote

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/cropdx/leafscan/internal/errors"
	"github.com/cropdx/leafscan/internal/logger"
)

// Defaults for ImageFetcher.
const (
	DefaultUploadCacheTTL  = 10 * time.Minute
	DefaultUploadRateLimit = 4.0 // requests per second
	maxUploadBytes         = 25 << 20
)

// Image is a stored upload resolved from the service.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ImageFetcher retrieves stored uploads for presentation. Concurrent requests
// for the same file share one download, results are cached for a TTL, and
// downloads are rate limited.
type ImageFetcher struct {
	client  *Client
	cache   *cache.Cache
	group   singleflight.Group
	limiter *rate.Limiter
	log     logger.Logger
}

// NewImageFetcher creates a fetcher. Non-positive ttl or perSecond use defaults.
func NewImageFetcher(client *Client, ttl time.Duration, perSecond float64) *ImageFetcher {
	if ttl <= 0 {
		ttl = DefaultUploadCacheTTL
	}
	if perSecond <= 0 {
		perSecond = DefaultUploadRateLimit
	}
	burst := max(int(perSecond), 1)
	return &ImageFetcher{
		client:  client,
		cache:   cache.New(ttl, ttl*2),
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		log:     client.log.Module("uploads"),
	}
}

// Fetch returns the bytes of a stored upload.
func (f *ImageFetcher) Fetch(ctx context.Context, filename string) (Image, error) {
	if err := validateFilename(filename); err != nil {
		return Image{}, err
	}

	if cached, found := f.cache.Get(filename); found {
		if img, ok := cached.(Image); ok {
			f.log.Trace("Upload cache hit", logger.String("filename", filename))
			return img, nil
		}
	}

	v, err, shared := f.group.Do(filename, func() (any, error) {
		// A download that finished between the cache check and Do has already populated the cache.
		if cached, found := f.cache.Get(filename); found {
			return cached, nil
		}
		img, err := f.download(ctx, filename)
		if err != nil {
			return nil, err
		}
		f.cache.Set(filename, img, cache.DefaultExpiration)
		return img, nil
	})
	if err != nil {
		return Image{}, err
	}
	if shared {
		f.log.Trace("Upload download shared", logger.String("filename", filename))
	}
	return v.(Image), nil
}

// CachedCount returns the number of cached uploads.
func (f *ImageFetcher) CachedCount() int {
	return f.cache.ItemCount()
}

// Flush drops every cached upload.
func (f *ImageFetcher) Flush() {
	f.cache.Flush()
}

func (f *ImageFetcher) download(ctx context.Context, filename string) (Image, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return Image{}, errors.New(err).
			Component(componentName).
			Category(errors.CategoryLimit).
			Context("operation", "rate_limiter_wait").
			Build()
	}

	target, err := f.client.UploadURL(filename)
	if err != nil {
		return Image{}, err
	}

	resp, err := f.client.http.Get(ctx, target)
	if err != nil {
		return Image{}, errors.New(err).
			Component(componentName).
			Category(errors.CategoryImageFetch).
			UserMessage("Could not download the stored image.").
			Context("filename", filename).
			Build()
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		category := errors.CategoryImageFetch
		if resp.StatusCode == http.StatusNotFound {
			category = errors.CategoryNotFound
		}
		return Image{}, errors.New(fmt.Errorf("GET %s: status %d", UploadsPath, resp.StatusCode)).
			Component(componentName).
			Category(category).
			UserMessage(fmt.Sprintf("Stored image %s is unavailable (%s).", filename, http.StatusText(resp.StatusCode))).
			Context("filename", filename).
			Context("status_code", resp.StatusCode).
			Build()
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxUploadBytes+1))
	if err != nil {
		return Image{}, errors.New(err).
			Component(componentName).
			Category(errors.CategoryImageFetch).
			Context("filename", filename).
			Build()
	}
	if len(data) > maxUploadBytes {
		return Image{}, errors.New(fmt.Errorf("upload %s exceeds %d bytes", filename, maxUploadBytes)).
			Component(componentName).
			Category(errors.CategoryLimit).
			Context("filename", filename).
			Build()
	}

	contentType := mimetype.Detect(data).String()
	if header := resp.Header.Get("Content-Type"); header != "" {
		if mediaType, _, perr := mime.ParseMediaType(header); perr == nil && mediaType != "application/octet-stream" {
			contentType = mediaType
		}
	}

	f.log.Debug("Upload downloaded",
		logger.String("filename", filename),
		logger.Int("bytes", len(data)),
		logger.String("content_type", contentType))

	return Image{Filename: filename, ContentType: contentType, Data: data}, nil
}
