package fetch

import (
	"context"
	"log/slog"
	"os"

	"golang.org/x/sync/singleflight"
)

// Files downloads URLs into the cache. Concurrent requests for the same URL
// share one transfer, and a file already in the cache is not fetched again.
type Files struct {
	cache  *Cache
	dl     *Downloader
	group  singleflight.Group
	logger *slog.Logger
}

// NewFiles returns a file fetcher. A nil downloader uses DefaultDownloader.
func NewFiles(cache *Cache, dl *Downloader) *Files {
	if dl == nil {
		dl = DefaultDownloader()
	}
	return &Files{
		cache:  cache,
		dl:     dl,
		logger: slog.Default().With(slog.String("component", "fetch")),
	}
}

// Cache returns the cache the files are stored in.
func (f *Files) Cache() *Cache {
	return f.cache
}

// Download returns the local path of rawURL, downloading it when absent.
// biz tags the request in logs.
func (f *Files) Download(ctx context.Context, rawURL, biz string) (string, error) {
	dest := f.cache.Path(rawURL)
	if info, err := os.Stat(dest); err == nil && info.Mode().IsRegular() {
		f.logger.Debug("cache hit", slog.String("url", rawURL), slog.String("biz", biz))
		return dest, nil
	}

	v, err, shared := f.group.Do(dest, func() (any, error) {
		if err := f.dl.Download(ctx, rawURL, dest); err != nil {
			return "", err
		}
		return dest, nil
	})
	if err != nil {
		f.logger.Error("download failed", slog.String("url", rawURL), slog.String("biz", biz), slog.Any("error", err))
		return "", err
	}
	f.logger.Debug("downloaded", slog.String("url", rawURL), slog.String("biz", biz), slog.Bool("shared", shared))
	return v.(string), nil
}
