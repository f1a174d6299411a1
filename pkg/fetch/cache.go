package fetch

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
)

// CacheDirEnv overrides the default cache root.
const CacheDirEnv = "EFFECTS_CACHE_DIR"

// Cache resolves where downloaded files and extracted scenes live.
type Cache struct {
	root string
}

// NewCache returns a cache rooted at dir.
// Priority: dir > EFFECTS_CACHE_DIR env > ~/.effects default.
func NewCache(dir string) (*Cache, error) {
	if dir != "" {
		return &Cache{root: dir}, nil
	}

	if envDir := os.Getenv(CacheDirEnv); envDir != "" {
		return &Cache{root: envDir}, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}

	return &Cache{root: filepath.Join(home, ".effects")}, nil
}

// Root returns the cache root directory.
func (c *Cache) Root() string {
	return c.root
}

// Path returns the cache file for rawURL: <root>/files/<md5(url)><ext>.
// The extension of the URL path is kept so decoders can sniff by name.
func (c *Cache) Path(rawURL string) string {
	return filepath.Join(c.root, "files", MD5String(rawURL)+urlExt(rawURL))
}

// SceneDir returns the extraction directory for a scene package URL.
// Returns: <root>/scenes/<md5(url)>
func (c *Cache) SceneDir(rawURL string) string {
	return filepath.Join(c.root, "scenes", MD5String(rawURL))
}

func urlExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return path.Ext(u.Path)
}
