// Package images maintains the local image cache and probes image files
// for pixel dimensions.
package images

import (
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/BuckanovNikita/cveta2/pkg/types"
)

// Downloader fetches one remote object into a local file.
type Downloader interface {
	DownloadFile(ctx context.Context, name, dest string) error
}

// SyncCache downloads every named image into cacheDir, skipping files
// already present. Failed downloads are logged and counted, not fatal.
func SyncCache(ctx context.Context, dl Downloader, cacheDir string, names []string, log *logrus.Entry) (types.DownloadStats, error) {
	stats := types.DownloadStats{Total: len(names)}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return stats, err
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		dest := filepath.Join(cacheDir, filepath.FromSlash(name))
		if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
			stats.Cached++
			continue
		}
		if err := dl.DownloadFile(ctx, name, dest); err != nil {
			log.WithError(err).WithField("image", name).Warn("download failed")
			stats.Failed++
			continue
		}
		stats.Downloaded++
	}
	return stats, nil
}

// Size reads the pixel dimensions of an image file without decoding the
// full image.
func Size(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "probing %s", filepath.Base(path))
	}
	return cfg.Width, cfg.Height, nil
}

// SizeCache memoizes Size lookups across one run.
type SizeCache struct {
	dir   string
	sizes map[string][2]int
}

func NewSizeCache(dir string) *SizeCache {
	return &SizeCache{dir: dir, sizes: make(map[string][2]int)}
}

// Size returns the cached dimensions of the named image, probing the
// file on first access.
func (c *SizeCache) Size(name string) (width, height int, err error) {
	if wh, ok := c.sizes[name]; ok {
		return wh[0], wh[1], nil
	}
	w, h, err := Size(filepath.Join(c.dir, filepath.FromSlash(name)))
	if err != nil {
		return 0, 0, err
	}
	c.sizes[name] = [2]int{w, h}
	return w, h, nil
}

// CheckDecodable fully decodes one image to verify it is readable.
// Doctor uses this on a sample of the cache.
func CheckDecodable(path string) error {
	_, err := imaging.Open(path)
	return errors.Wrapf(err, "decoding %s", filepath.Base(path))
}
