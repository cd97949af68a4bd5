package screen

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	_ "golang.org/x/image/webp"
)

// ErrAssetNotFound is returned when no asset exists for a timestamp.
var ErrAssetNotFound = errors.New("frame asset not found")

// AssetName returns the file name of a frame captured at ts. A negative
// monitor yields the single-monitor form "{ts}.{ext}".
func AssetName(ts int64, monitor int, ext string) string {
	if monitor < 0 {
		return fmt.Sprintf("%d.%s", ts, ext)
	}
	return fmt.Sprintf("%d_%d.%s", ts, monitor, ext)
}

// AssetStore keeps frame assets in a directory.
type AssetStore struct {
	Dir string
}

// NewAssetStore creates dir if needed.
func NewAssetStore(dir string) (*AssetStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating screenshots directory: %w", err)
	}
	return &AssetStore{Dir: dir}, nil
}

// Save writes img as PNG and returns its path.
func (s *AssetStore) Save(ts int64, monitor int, img image.Image) (string, error) {
	path := filepath.Join(s.Dir, AssetName(ts, monitor, "png"))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating asset: %w", err)
	}

	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("encoding asset: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("writing asset: %w", err)
	}
	return path, nil
}

// Find resolves the asset for ts, preferring "{ts}.*" over the per-monitor
// "{ts}_*.*" form. Among per-monitor files the lowest name wins.
func (s *AssetStore) Find(ts int64) (string, error) {
	prefix := strconv.FormatInt(ts, 10)
	for _, pattern := range []string{prefix + ".*", prefix + "_*.*"} {
		matches, err := filepath.Glob(filepath.Join(s.Dir, pattern))
		if err != nil {
			return "", fmt.Errorf("searching assets: %w", err)
		}
		if len(matches) > 0 {
			slices.Sort(matches)
			return matches[0], nil
		}
	}
	return "", fmt.Errorf("%w: %d", ErrAssetNotFound, ts)
}

// Open returns the path of a named asset inside the store. Names that
// would escape the directory are rejected.
func (s *AssetStore) Open(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid asset name %q", name)
	}
	path := filepath.Join(s.Dir, name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrAssetNotFound, name)
		}
		return "", err
	}
	return path, nil
}

// Load decodes a PNG, JPEG or WebP asset.
func (s *AssetStore) Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening asset: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding asset %s: %w", filepath.Base(path), err)
	}
	return img, nil
}
