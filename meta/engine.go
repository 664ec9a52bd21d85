// this file implements the fetch pipeline: resolve, download, cache
package meta

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/arift/DJ-Pasha/youtube"
)

// Provider is the remote side of the pipeline. The real implementation
// lives in the youtube package; tests plug in fakes.
type Provider interface {
	Resolve(ctx context.Context, videoID string) (youtube.VideoDetails, error)
	StreamAudio(ctx context.Context, videoID string) (io.ReadCloser, error)
	ResolvePlaylist(ctx context.Context, playlistID string) (youtube.Playlist, error)
}

// Engine turns video ids into playable files and cached metadata.
// Files go through the staging cache, metadata through the repository;
// both are fetched at most once and served locally afterwards.
type Engine struct {
	cache    *Cache
	repo     Repository
	provider Provider
	pool     *WorkerPool
	log      *log.Logger
}

func NewEngine(cache *Cache, repo Repository, provider Provider, pool *WorkerPool) *Engine {
	return &Engine{
		cache:    cache,
		repo:     repo,
		provider: provider,
		pool:     pool,
		log:      log.WithPrefix("meta"),
	}
}

// GetInfo is cache-aside against the video_info table: read through on
// miss, write once on fill. A concurrent fill of the same id ends with
// last-write-wins, which is fine since the payloads are identical.
func (e *Engine) GetInfo(ctx context.Context, videoID string) (SavedInfo, error) {
	cached, err := e.repo.GetInfo(ctx, videoID)
	if err != nil {
		return SavedInfo{}, err
	}
	if cached != nil {
		return *cached, nil
	}

	e.log.Info("fetching video info", "videoId", videoID)
	details, err := e.provider.Resolve(ctx, videoID)
	if err != nil {
		return SavedInfo{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	info := SavedInfo{
		Title:            details.Title,
		OwnerChannelName: details.OwnerChannelName,
		Description:      details.Description,
		LengthSeconds:    details.LengthSeconds,
		VideoURL:         details.VideoURL,
	}
	if err := e.repo.SaveInfo(ctx, videoID, info); err != nil {
		// metadata persistence is best effort, the caller still gets the info
		e.log.Warn("failed to save video info", "videoId", videoID, "err", err)
	}
	return info, nil
}

// GetInfos resolves ids one at a time, preserving input order.
func (e *Engine) GetInfos(ctx context.Context, videoIDs []string) ([]SavedInfo, error) {
	result := make([]SavedInfo, 0, len(videoIDs))
	for _, id := range videoIDs {
		info, err := e.GetInfo(ctx, id)
		if err != nil {
			return nil, err
		}
		result = append(result, info)
	}
	return result, nil
}

// GetPlaylistInfo resolves a playlist and bulk-saves the metadata of its
// members so follow-up GetInfo calls hit the table.
func (e *Engine) GetPlaylistInfo(ctx context.Context, playlistID string) (youtube.Playlist, error) {
	playlist, err := e.provider.ResolvePlaylist(ctx, playlistID)
	if err != nil {
		return youtube.Playlist{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	infos := make(map[string]SavedInfo, len(playlist.Items))
	for _, item := range playlist.Items {
		infos[item.ID] = SavedInfo{
			Title:            item.Title,
			OwnerChannelName: item.OwnerChannelName,
			LengthSeconds:    item.LengthSeconds,
			VideoURL:         item.URL,
		}
	}
	if err := e.repo.SaveInfos(ctx, infos); err != nil {
		e.log.Warn("failed to save playlist infos", "playlistId", playlistID, "err", err)
	}
	return playlist, nil
}

// GetSong returns the local path of a playable file for the video,
// downloading it on a cache miss. Concurrent misses for the same id may
// both download; Publish picks the winner and orphans the loser's staging
// file, which is harmless since the contents are identical.
func (e *Engine) GetSong(ctx context.Context, videoID string) (string, error) {
	if e.cache.Has(videoID) {
		return e.cache.FinalPath(videoID), nil
	}

	e.log.Info("song not in cache, downloading it", "videoId", videoID)
	start := time.Now()
	stream, err := e.provider.StreamAudio(ctx, videoID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer stream.Close()

	stagingPath := e.cache.StagingPath(videoID)
	f, err := os.Create(stagingPath)
	if err != nil {
		return "", fmt.Errorf("creating staging file: %w", err)
	}
	n, err := io.Copy(f, stream)
	f.Close()
	if err != nil {
		os.Remove(stagingPath)
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	e.log.Info("song downloaded",
		"videoId", videoID,
		"size", humanize.Bytes(uint64(n)),
		"took", time.Since(start).Round(time.Millisecond))
	return e.cache.Publish(videoID, stagingPath)
}

// Hydrate pre-fetches a song in the background. Failures are logged and
// forgotten; the playback path will retry on its own.
func (e *Engine) Hydrate(videoID string) {
	if e.pool == nil {
		return
	}
	e.pool.Submit(func() {
		if _, err := e.GetSong(context.Background(), videoID); err != nil {
			e.log.Warn("pre-cache failed", "videoId", videoID, "err", err)
		}
	})
}

func (e *Engine) InsertPlay(ctx context.Context, videoID, username string) error {
	e.log.Debug("adding play stat", "videoId", videoID, "username", username)
	return e.repo.InsertPlay(ctx, videoID, username)
}

func (e *Engine) TopPlayers(ctx context.Context, startDate, endDate *time.Time, limit int) ([]PlayerStat, error) {
	if limit <= 0 {
		limit = 5
	}
	return e.repo.TopPlayers(ctx, startDate, endDate, limit)
}

// PlayStatsText renders the ranked report plus the bar chart.
func (e *Engine) PlayStatsText(ctx context.Context, startDate, endDate *time.Time) (string, error) {
	stats, err := e.TopPlayers(ctx, startDate, endDate, 5)
	if err != nil {
		return "", err
	}
	return StatsText(stats, startDate, endDate), nil
}
