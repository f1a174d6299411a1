package resource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/image/font/sfnt"

	"github.com/go-drift/effects/pkg/errors"
)

type fontResult struct {
	url  string
	path string
}

// LoadFonts resolves font locators to local files. An empty list succeeds
// without doing any work. done receives url → path.
func (l *Loader) LoadFonts(ctx context.Context, baseDir string, urls []string, done func(map[string]string, error)) *Batch {
	b := &Batch{}
	l.loadFonts(ctx, b, baseDir, urls, done)
	return b
}

func (l *Loader) loadFonts(ctx context.Context, b *Batch, baseDir string, urls []string, done func(map[string]string, error)) {
	if len(urls) == 0 {
		l.executor().Post(func() {
			if !b.Abandoned() {
				done(map[string]string{}, nil)
			}
		})
		return
	}

	fan := newFanIn(len(urls), &b.gen, func(results []fontResult, err error) {
		if err != nil {
			done(nil, err)
			return
		}
		paths := make(map[string]string, len(results))
		for _, r := range results {
			paths[r.url] = r.path
		}
		done(paths, nil)
	}, nil)
	b.track(fan.drain)

	for n, url := range urls {
		var once sync.Once
		finish := func(path string, err error) {
			once.Do(func() {
				if err != nil {
					err = &FetchError{Op: "loadFont", Locator: url, Err: err}
				}
				fan.complete(n, fontResult{url: url, path: path}, err)
			})
		}
		l.executor().Post(func() {
			defer errors.RecoverWithCallback("resource.font", func(r any) {
				finish("", fmt.Errorf("panic: %v", r))
			})
			finish(l.resolveFont(ctx, baseDir, url))
		})
	}
}

func (l *Loader) resolveFont(ctx context.Context, baseDir, url string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("url is null")
	}
	var path string
	if isNetwork(url) {
		p, err := l.download(ctx, url)
		if err != nil {
			return "", err
		}
		path = p
	} else {
		path = filepath.Join(baseDir, url)
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			return "", fmt.Errorf("read font file failed")
		}
	}
	if err := ValidateFont(path); err != nil {
		return "", err
	}
	return path, nil
}

// ValidateFont checks that path holds a parseable TrueType or OpenType font.
func ValidateFont(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read font file failed")
	}
	f, err := sfnt.Parse(data)
	if err != nil {
		return fmt.Errorf("invalid font: %w", err)
	}
	if f.NumGlyphs() == 0 {
		return fmt.Errorf("invalid font: no glyphs")
	}
	return nil
}
