// this file implements the on-disk song cache with a staging area
package meta

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Cache maps video ids to downloaded files. Downloads land in the staging
// subdirectory and are promoted into the cache root with an atomic rename,
// so a file at a final path is always complete. There is no eviction; the
// cache grows until someone cleans it up by hand.
type Cache struct {
	dir        string
	stagingDir string
}

func NewCache(dir string) (*Cache, error) {
	staging := filepath.Join(dir, "staging")
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directories: %w", err)
	}
	return &Cache{dir: dir, stagingDir: staging}, nil
}

func (c *Cache) FinalPath(videoID string) string {
	return filepath.Join(c.dir, videoID)
}

func (c *Cache) Has(videoID string) bool {
	_, err := os.Stat(c.FinalPath(videoID))
	return err == nil
}

// StagingPath returns a fresh path for an in-flight download. The random
// suffix keeps two concurrent downloads of the same video from clobbering
// each other's partial file.
func (c *Cache) StagingPath(videoID string) string {
	return filepath.Join(c.stagingDir, videoID+"-"+uuid.NewString())
}

// Publish promotes a staged file to its final path. If another download
// already published this video, the staged file is discarded and the
// existing entry wins. A missing staging file means the download never
// finished and no cache entry is created.
func (c *Cache) Publish(videoID, stagingPath string) (string, error) {
	final := c.FinalPath(videoID)
	if c.Has(videoID) {
		os.Remove(stagingPath)
		return final, nil
	}
	if _, err := os.Stat(stagingPath); err != nil {
		return "", fmt.Errorf("staging file for %s missing: %w", videoID, ErrFetchFailed)
	}
	if err := os.Rename(stagingPath, final); err != nil {
		return "", fmt.Errorf("publishing %s: %w", videoID, err)
	}
	return final, nil
}
