// this file defines the data structures and repository interfaces used throughout
package meta

import (
	"context"
	"errors"
	"time"
)

// ErrFetchFailed marks network or provider errors. Callers are expected to
// skip the item or retry; a failed fetch never creates a cache entry.
var ErrFetchFailed = errors.New("fetch failed")

// SavedInfo is the cached description of a video, stored as JSON in the
// video_info table. It is written once and never refreshed.
type SavedInfo struct {
	Title            string `json:"title"`
	OwnerChannelName string `json:"ownerChannelName"`
	Description      string `json:"description"`
	LengthSeconds    int64  `json:"lengthSeconds"`
	VideoURL         string `json:"videoUrl"`
}

type PlayerStat struct {
	Username  string `db:"username" json:"username"`
	PlayCount int64  `db:"play_count" json:"playCount"`
}

type VideoInfoRepository interface {
	// GetInfo returns (nil, nil) on a cache miss.
	GetInfo(ctx context.Context, videoID string) (*SavedInfo, error)
	SaveInfo(ctx context.Context, videoID string, info SavedInfo) error
	SaveInfos(ctx context.Context, infos map[string]SavedInfo) error
}

type PlayRepository interface {
	InsertPlay(ctx context.Context, videoID, username string) error
	TopPlayers(ctx context.Context, startDate, endDate *time.Time, limit int) ([]PlayerStat, error)
}

type Repository interface {
	VideoInfoRepository
	PlayRepository
	Close() error
}
