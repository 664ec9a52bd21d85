// this file deals with resolving and streaming youtube videos
package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	ytdl "github.com/kkdai/youtube/v2"
)

// VideoDetails is what we keep around for a single video.
type VideoDetails struct {
	ID               string `json:"videoId"`
	Title            string `json:"title"`
	OwnerChannelName string `json:"ownerChannelName"`
	Description      string `json:"description"`
	LengthSeconds    int64  `json:"lengthSeconds"`
	VideoURL         string `json:"videoUrl"`
}

type PlaylistItem struct {
	ID               string `json:"videoId"`
	Title            string `json:"title"`
	OwnerChannelName string `json:"ownerChannelName"`
	LengthSeconds    int64  `json:"lengthSeconds"`
	URL              string `json:"url"`
}

type Playlist struct {
	ID    string         `json:"playlistId"`
	Title string         `json:"title"`
	Items []PlaylistItem `json:"items"`
}

// Client wraps the ytdl client. A cookie header can be set for age-gated
// content; it is attached to every outgoing request.
type Client struct {
	yt ytdl.Client
}

type cookieTransport struct {
	cookie string
	next   http.RoundTripper
}

func (t *cookieTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Cookie", t.cookie)
	return t.next.RoundTrip(req)
}

func NewClient(cookie string) *Client {
	c := &Client{}
	if cookie != "" {
		log.Debug("using cookie header for youtube requests")
		c.yt.HTTPClient = &http.Client{
			Transport: &cookieTransport{cookie: cookie, next: http.DefaultTransport},
		}
	}
	return c
}

func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

func (c *Client) Resolve(ctx context.Context, videoID string) (VideoDetails, error) {
	video, err := c.yt.GetVideoContext(ctx, videoID)
	if err != nil {
		return VideoDetails{}, fmt.Errorf("resolving video %s: %w", videoID, err)
	}
	return VideoDetails{
		ID:               video.ID,
		Title:            video.Title,
		OwnerChannelName: video.Author,
		Description:      video.Description,
		LengthSeconds:    int64(video.Duration.Seconds()),
		VideoURL:         WatchURL(video.ID),
	}, nil
}

// StreamAudio returns a byte stream of the best audio-only format available.
// The caller owns the stream and must close it.
func (c *Client) StreamAudio(ctx context.Context, videoID string) (io.ReadCloser, error) {
	video, err := c.yt.GetVideoContext(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("resolving video %s: %w", videoID, err)
	}
	formats := video.Formats.WithAudioChannels().Type("audio")
	if len(formats) == 0 {
		formats = video.Formats.WithAudioChannels()
	}
	if len(formats) == 0 {
		return nil, fmt.Errorf("no audio formats for video %s", videoID)
	}
	formats.Sort()
	stream, _, err := c.yt.GetStreamContext(ctx, video, &formats[0])
	if err != nil {
		return nil, fmt.Errorf("streaming video %s: %w", videoID, err)
	}
	return stream, nil
}

func (c *Client) ResolvePlaylist(ctx context.Context, playlistID string) (Playlist, error) {
	pl, err := c.yt.GetPlaylistContext(ctx, playlistID)
	if err != nil {
		return Playlist{}, fmt.Errorf("resolving playlist %s: %w", playlistID, err)
	}
	result := Playlist{ID: pl.ID, Title: pl.Title}
	for _, entry := range pl.Videos {
		result.Items = append(result.Items, PlaylistItem{
			ID:               entry.ID,
			Title:            entry.Title,
			OwnerChannelName: entry.Author,
			LengthSeconds:    int64(entry.Duration.Seconds()),
			URL:              WatchURL(entry.ID),
		})
	}
	return result, nil
}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ExtractVideoID pulls a video id out of the usual URL shapes
// (watch?v=, youtu.be/, /shorts/) or accepts a bare id.
func ExtractVideoID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if videoIDPattern.MatchString(raw) {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.New("invalid URL")
	}
	if id := u.Query().Get("v"); videoIDPattern.MatchString(id) {
		return id, nil
	}
	if strings.Contains(u.Host, "youtu.be") {
		if id := strings.Trim(u.Path, "/"); videoIDPattern.MatchString(id) {
			return id, nil
		}
	}
	if strings.HasPrefix(u.Path, "/shorts/") {
		if id := strings.TrimPrefix(u.Path, "/shorts/"); videoIDPattern.MatchString(strings.Trim(id, "/")) {
			return strings.Trim(id, "/"), nil
		}
	}
	return "", fmt.Errorf("no video id in %q", raw)
}

var playlistIDPattern = regexp.MustCompile(`^(PL|UU|OL|LL|FL|RD)[A-Za-z0-9_-]+$`)

// ExtractPlaylistID pulls a playlist id from a URL's list= parameter or
// accepts a bare id.
func ExtractPlaylistID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if playlistIDPattern.MatchString(raw) {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.New("invalid URL")
	}
	if id := u.Query().Get("list"); playlistIDPattern.MatchString(id) {
		return id, nil
	}
	return "", fmt.Errorf("no playlist id in %q", raw)
}
