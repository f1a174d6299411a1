package fetch

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// StampName is the file inside an extracted scene directory that records
// the validity timestamp (Unix milliseconds) it was extracted for.
const StampName = ".effects-stamp"

// Packages downloads and extracts zipped scene packages.
//
// An extracted directory carries a stamp of max(validUntil, extraction time).
// A later Load reuses it while the stamp is not before the requested
// validUntil, so publishing a package with a newer timestamp forces a fresh
// download. Loads of the same package are serialized.
type Packages struct {
	files *Files
	now   func() time.Time
	group singleflight.Group
}

// NewPackages returns a package loader backed by files.
func NewPackages(files *Files) *Packages {
	return &Packages{files: files, now: time.Now}
}

// SetClock replaces the time source. Intended for tests.
func (p *Packages) SetClock(now func() time.Time) {
	p.now = now
}

// Load returns the directory of the extracted package at rawURL.
//
// A zero validUntil accepts any previously extracted copy. When md5 is
// non-empty the archive must match it.
func (p *Packages) Load(ctx context.Context, rawURL, biz string, validUntil time.Time, md5 string) (string, error) {
	dir := p.files.Cache().SceneDir(rawURL)
	for {
		_, err, shared := p.group.Do(dir, func() (any, error) {
			return nil, p.extract(ctx, dir, rawURL, biz, validUntil, md5)
		})
		if err != nil {
			return "", err
		}
		// A joined flight may have been started for an older validUntil.
		if !shared || fresh(dir, validUntil) {
			return dir, nil
		}
	}
}

func fresh(dir string, validUntil time.Time) bool {
	stamp, ok := readStamp(dir)
	return ok && !stamp.Before(validUntil.Truncate(time.Millisecond))
}

func (p *Packages) extract(ctx context.Context, dir, rawURL, biz string, validUntil time.Time, md5 string) error {
	if fresh(dir, validUntil) {
		return nil
	}
	stamp := p.now()
	if validUntil.After(stamp) {
		stamp = validUntil
	}

	archive, err := p.files.Download(ctx, rawURL, biz)
	if err != nil {
		return err
	}
	if md5 != "" {
		if err := VerifyChecksum(archive, md5); err != nil {
			_ = os.Remove(archive)
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(dir), err)
	}
	tmp, err := os.MkdirTemp(filepath.Dir(dir), filepath.Base(dir)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create extraction directory: %w", err)
	}
	if err := Unzip(archive, tmp); err != nil {
		_ = os.RemoveAll(tmp)
		return err
	}
	if err := writeStamp(tmp, stamp); err != nil {
		_ = os.RemoveAll(tmp)
		return err
	}
	_ = os.RemoveAll(dir)
	if err := os.Rename(tmp, dir); err != nil {
		_ = os.RemoveAll(tmp)
		return fmt.Errorf("failed to move extracted package: %w", err)
	}
	return nil
}

func readStamp(dir string) (time.Time, bool) {
	data, err := os.ReadFile(filepath.Join(dir, StampName))
	if err != nil {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func writeStamp(dir string, t time.Time) error {
	return os.WriteFile(filepath.Join(dir, StampName), []byte(strconv.FormatInt(t.UnixMilli(), 10)), 0o644)
}

// Unzip extracts archive into dest. Entries escaping dest are rejected.
func Unzip(archive, dest string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("failed to open zip %s: %w", archive, err)
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dest, err)
	}
	root := filepath.Clean(dest) + string(os.PathSeparator)

	for _, f := range r.File {
		target := filepath.Join(dest, f.Name)
		if !strings.HasPrefix(target, root) {
			return fmt.Errorf("zip entry %q escapes destination", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open zip entry %s: %w", f.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return dst.Close()
}
