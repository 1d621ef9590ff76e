package images

import (
	"context"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
}

func quietLog() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

type fakeDownloader struct {
	calls []string
	fail  map[string]struct{}
}

func (d *fakeDownloader) DownloadFile(ctx context.Context, name, dest string) error {
	d.calls = append(d.calls, name)
	if _, bad := d.fail[name]; bad {
		return errors.New("connection reset")
	}
	return os.WriteFile(dest, []byte("data"), 0o644)
}

func TestSyncCache(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "cached.png"), 4, 4)

	dl := &fakeDownloader{fail: map[string]struct{}{"broken.jpg": {}}}
	stats, err := SyncCache(context.Background(), dl, dir,
		[]string{"cached.png", "fresh.jpg", "broken.jpg"}, quietLog())
	if err != nil {
		t.Fatalf("SyncCache: %v", err)
	}

	if stats.Cached != 1 || stats.Downloaded != 1 || stats.Failed != 1 || stats.Total != 3 {
		t.Errorf("stats = %+v", stats)
	}
	if len(dl.calls) != 2 {
		t.Errorf("downloader called for %v, want only the uncached names", dl.calls)
	}
	if _, err := os.Stat(filepath.Join(dir, "fresh.jpg")); err != nil {
		t.Errorf("fresh.jpg not written: %v", err)
	}
}

func TestSyncCacheCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dl := &fakeDownloader{}
	_, err := SyncCache(ctx, dl, t.TempDir(), []string{"a.jpg"}, quietLog())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(dl.calls) != 0 {
		t.Error("download attempted after cancellation")
	}
}

func TestSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "img.png")
	writePNG(t, path, 640, 480)

	w, h, err := Size(path)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if w != 640 || h != 480 {
		t.Errorf("Size = %dx%d, want 640x480", w, h)
	}

	if _, _, err := Size(filepath.Join(dir, "missing.png")); err == nil {
		t.Error("Size on missing file should fail")
	}
}

func TestSizeCache(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "img.png"), 32, 16)

	c := NewSizeCache(dir)
	w, h, err := c.Size("img.png")
	if err != nil || w != 32 || h != 16 {
		t.Fatalf("first lookup = (%d, %d, %v)", w, h, err)
	}

	// A second lookup must not touch the file again.
	if err := os.Remove(filepath.Join(dir, "img.png")); err != nil {
		t.Fatal(err)
	}
	w, h, err = c.Size("img.png")
	if err != nil || w != 32 || h != 16 {
		t.Errorf("cached lookup = (%d, %d, %v)", w, h, err)
	}
}

func TestCheckDecodable(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.png")
	writePNG(t, good, 8, 8)
	if err := CheckDecodable(good); err != nil {
		t.Errorf("CheckDecodable(good) = %v", err)
	}

	bad := filepath.Join(dir, "bad.png")
	if err := os.WriteFile(bad, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CheckDecodable(bad); err == nil {
		t.Error("CheckDecodable accepted garbage")
	}
}
