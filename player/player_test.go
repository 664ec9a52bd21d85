package player

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arift/DJ-Pasha/meta"
)

type fakeSource struct {
	mu       sync.Mutex
	failing  map[string]bool
	slow     time.Duration
	songs    []string
	plays    []string
	hydrated []string
}

func (s *fakeSource) GetSong(ctx context.Context, videoID string) (string, error) {
	if s.slow > 0 {
		time.Sleep(s.slow)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing[videoID] {
		return "", fmt.Errorf("%w: no stream", meta.ErrFetchFailed)
	}
	s.songs = append(s.songs, videoID)
	return "/songs/" + videoID, nil
}

func (s *fakeSource) GetInfo(ctx context.Context, videoID string) (meta.SavedInfo, error) {
	return meta.SavedInfo{Title: "Title of " + videoID, LengthSeconds: 100}, nil
}

func (s *fakeSource) InsertPlay(ctx context.Context, videoID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays = append(s.plays, videoID)
	return nil
}

func (s *fakeSource) Hydrate(videoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrated = append(s.hydrated, videoID)
}

func (s *fakeSource) playedSongs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.songs...)
}

func (s *fakeSource) recordedPlays() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.plays...)
}

type fakeSession struct {
	mu           sync.Mutex
	idle         func()
	played       []string
	paused       int
	resumed      int
	stopped      int
	disconnected int
	playCh       chan string
}

func newFakeSession() *fakeSession {
	return &fakeSession{playCh: make(chan string, 16)}
}

func (s *fakeSession) Play(path string) error {
	s.mu.Lock()
	s.played = append(s.played, path)
	s.mu.Unlock()
	s.playCh <- path
	return nil
}

func (s *fakeSession) Pause()  { s.mu.Lock(); s.paused++; s.mu.Unlock() }
func (s *fakeSession) Resume() { s.mu.Lock(); s.resumed++; s.mu.Unlock() }

func (s *fakeSession) Stop() {
	s.mu.Lock()
	s.stopped++
	s.mu.Unlock()
	s.finishTrack()
}

func (s *fakeSession) Disconnect() { s.mu.Lock(); s.disconnected++; s.mu.Unlock() }

func (s *fakeSession) OnIdle(fn func()) {
	s.mu.Lock()
	s.idle = fn
	s.mu.Unlock()
}

// finishTrack simulates the transport reporting idle.
func (s *fakeSession) finishTrack() {
	s.mu.Lock()
	fn := s.idle
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *fakeSession) playCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.played)
}

type fakeNotifier struct {
	mu         sync.Mutex
	texts      []string
	nowPlaying []string
}

func (n *fakeNotifier) Send(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
}

func (n *fakeNotifier) SendNowPlaying(item QueueItem, info meta.SavedInfo, queueSize int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nowPlaying = append(n.nowPlaying, item.ID)
}

func (n *fakeNotifier) nowPlayingCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.nowPlaying)
}

func (n *fakeNotifier) lastText() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.texts) == 0 {
		return ""
	}
	return n.texts[len(n.texts)-1]
}

type fixture struct {
	player   *MusicPlayer
	source   *fakeSource
	session  *fakeSession
	notifier *fakeNotifier
	registry *MemoryRegistry
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		source:   &fakeSource{failing: map[string]bool{}},
		session:  newFakeSession(),
		notifier: &fakeNotifier{},
		registry: NewMemoryRegistry(),
	}
	cfg := Config{
		ChannelID:       "voice-1",
		Source:          f.source,
		Session:         f.session,
		Notifier:        f.notifier,
		Registry:        f.registry,
		DisconnectAfter: 200 * time.Millisecond,
		PausedGrace:     400 * time.Millisecond,
		RetryBackoff:    5 * time.Millisecond,
		MaxFailures:     3,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.player = NewMusicPlayer(cfg)
	f.registry.Add(cfg.ChannelID, f.player)
	t.Cleanup(f.player.Terminate)
	return f
}

func (f *fixture) waitForPlay(t *testing.T) string {
	t.Helper()
	select {
	case path := <-f.session.playCh:
		return path
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for playback to start")
		return ""
	}
}

func TestPlaybackAdvancesThroughQueue(t *testing.T) {
	f := newFixture(t, nil)

	f.player.AddSongs(item("A"), item("B"))
	assert.Equal(t, "/songs/A", f.waitForPlay(t))
	assert.Equal(t, StatePlaying, f.player.State())

	now, ok := f.player.NowPlaying()
	require.True(t, ok)
	assert.Equal(t, "A", now.ID)
	assert.Equal(t, 1, f.player.Queue().Size())

	f.session.finishTrack()
	assert.Equal(t, "/songs/B", f.waitForPlay(t))
	assert.Equal(t, 0, f.player.Queue().Size())

	f.session.finishTrack()
	assert.Equal(t, StateArmed, f.player.State())
	assert.Contains(t, f.notifier.lastText(), "No more songs in the queue")

	// history recorded once per successful play
	assert.Equal(t, []string{"A", "B"}, f.source.recordedPlays())
}

func TestEnqueueDuringGraceWindowResumes(t *testing.T) {
	f := newFixture(t, nil)

	f.player.AddSongs(item("A"))
	f.waitForPlay(t)
	f.session.finishTrack()
	require.Equal(t, StateArmed, f.player.State())

	f.player.AddSongs(item("C"))
	assert.Equal(t, "/songs/C", f.waitForPlay(t))
	assert.Equal(t, StatePlaying, f.player.State())

	// timer was cancelled: the player outlives the old countdown
	time.Sleep(300 * time.Millisecond)
	assert.True(t, f.registry.Has("voice-1"))
	assert.Equal(t, StatePlaying, f.player.State())
}

func TestIdleTimeoutTearsDownSession(t *testing.T) {
	f := newFixture(t, func(cfg *Config) { cfg.DisconnectAfter = 50 * time.Millisecond })

	f.player.AddSongs(item("A"))
	f.waitForPlay(t)
	f.session.finishTrack()

	require.Eventually(t, func() bool {
		return f.player.State() == StateTerminated
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, f.registry.Has("voice-1"), "teardown must deregister the session")

	f.session.mu.Lock()
	disconnected := f.session.disconnected
	f.session.mu.Unlock()
	assert.Equal(t, 1, disconnected)
}

func TestHistoryNotRecordedOnFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.source.failing["A"] = true

	f.player.AddSongs(item("A"), item("B"))
	assert.Equal(t, "/songs/B", f.waitForPlay(t), "the broken item is skipped")
	assert.Equal(t, []string{"B"}, f.source.recordedPlays())

	f.notifier.mu.Lock()
	texts := append([]string(nil), f.notifier.texts...)
	f.notifier.mu.Unlock()
	require.NotEmpty(t, texts)
	assert.Contains(t, texts[0], "Couldn't play")
}

func TestConsecutiveFailuresArmDisconnect(t *testing.T) {
	f := newFixture(t, nil)
	for _, id := range []string{"A", "B", "C", "D"} {
		f.source.failing[id] = true
	}

	f.player.AddSongs(item("A"), item("B"), item("C"), item("D"))

	require.Eventually(t, func() bool {
		return f.player.State() == StateArmed
	}, 2*time.Second, 10*time.Millisecond)

	// gave up after maxFailures pops instead of burning the whole queue
	assert.Equal(t, 1, f.player.Queue().Size())
	assert.Contains(t, f.notifier.lastText(), "failed in a row")
	assert.Empty(t, f.source.recordedPlays())
}

func TestRepeatReplaysCurrentSong(t *testing.T) {
	f := newFixture(t, nil)

	f.player.AddSongs(item("A"), item("B"))
	f.waitForPlay(t)
	f.player.SetRepeat(true)

	f.session.finishTrack()
	assert.Equal(t, "/songs/A", f.waitForPlay(t), "repeat replays without popping")
	assert.Equal(t, 1, f.player.Queue().Size())

	f.player.SetRepeat(false)
	f.session.finishTrack()
	assert.Equal(t, "/songs/B", f.waitForPlay(t))
}

func TestSkipAdvances(t *testing.T) {
	f := newFixture(t, nil)

	f.player.AddSongs(item("A"), item("B"))
	f.waitForPlay(t)

	f.player.Skip()
	assert.Equal(t, "/songs/B", f.waitForPlay(t))
}

func TestTogglePause(t *testing.T) {
	f := newFixture(t, nil)

	f.player.AddSongs(item("A"))
	f.waitForPlay(t)

	assert.True(t, f.player.TogglePause())
	assert.Equal(t, StatePaused, f.player.State())

	assert.False(t, f.player.TogglePause())
	assert.Equal(t, StatePlaying, f.player.State())

	f.session.mu.Lock()
	paused, resumed := f.session.paused, f.session.resumed
	f.session.mu.Unlock()
	assert.Equal(t, 1, paused)
	assert.Equal(t, 1, resumed)
}

func TestPausedSessionGetsLongerGrace(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.DisconnectAfter = 50 * time.Millisecond
		cfg.PausedGrace = time.Hour
	})

	f.player.AddSongs(item("A"))
	f.waitForPlay(t)
	f.player.TogglePause()

	// well past DisconnectAfter, but the paused grace window holds
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, StatePaused, f.player.State())
	assert.True(t, f.registry.Has("voice-1"))
}

func TestPresencePausesAndResumes(t *testing.T) {
	f := newFixture(t, nil)

	f.player.AddSongs(item("A"))
	f.waitForPlay(t)

	f.player.HandlePresence(1)
	assert.Equal(t, StatePaused, f.player.State())

	f.player.HandlePresence(2)
	assert.Equal(t, StatePlaying, f.player.State())

	// no lingering countdown after company returned
	time.Sleep(300 * time.Millisecond)
	assert.True(t, f.registry.Has("voice-1"))
}

func TestPresenceTimeoutDisconnects(t *testing.T) {
	f := newFixture(t, func(cfg *Config) { cfg.DisconnectAfter = 50 * time.Millisecond })

	f.player.AddSongs(item("A"))
	f.waitForPlay(t)

	f.player.HandlePresence(1)
	require.Eventually(t, func() bool {
		return f.player.State() == StateTerminated
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAdvanceIsNotReentrant(t *testing.T) {
	f := newFixture(t, nil)
	f.source.slow = 150 * time.Millisecond

	f.player.AddSongs(item("A"), item("B"))

	// pile on concurrent triggers while the first advance is mid-fetch
	for i := 0; i < 5; i++ {
		go f.player.PlayNextSong()
	}

	f.waitForPlay(t)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 1, f.session.playCount(), "only one advance may be in flight")
	assert.Equal(t, 1, f.player.Queue().Size())
}

func TestPrefetchOnEnqueueWhilePlaying(t *testing.T) {
	f := newFixture(t, nil)

	f.player.AddSongs(item("A"))
	f.waitForPlay(t)

	f.player.AddSongs(item("B"))
	require.Eventually(t, func() bool {
		f.source.mu.Lock()
		defer f.source.mu.Unlock()
		return len(f.source.hydrated) > 0 && f.source.hydrated[0] == "B"
	}, time.Second, 5*time.Millisecond)
}

func TestTerminateIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	f.player.AddSongs(item("A"))
	f.waitForPlay(t)

	f.player.Terminate()
	f.player.Terminate()

	f.session.mu.Lock()
	disconnected := f.session.disconnected
	f.session.mu.Unlock()
	assert.Equal(t, 1, disconnected)
	assert.False(t, f.registry.Has("voice-1"))
}

func TestTerminateDuringFetchDropsSong(t *testing.T) {
	f := newFixture(t, nil)
	f.source.slow = 200 * time.Millisecond

	f.player.AddSongs(item("A"))
	time.Sleep(50 * time.Millisecond)
	f.player.Terminate()

	// let the in-flight fetch finish and observe the terminated state
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 0, f.session.playCount(), "a dead transport must not receive the file")
	assert.Empty(t, f.source.recordedPlays())
	assert.Equal(t, 0, f.notifier.nowPlayingCount())
}

func TestCountdownRearmsWithLatestGrace(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.DisconnectAfter = 50 * time.Millisecond
		cfg.PausedGrace = time.Hour
	})

	f.player.AddSongs(item("A"))
	f.waitForPlay(t)

	// the hour-long paused grace is running; the room emptying must
	// replace it with the short countdown, not keep the longer timer
	f.player.TogglePause()
	f.player.HandlePresence(1)

	require.Eventually(t, func() bool {
		return f.player.State() == StateTerminated
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMoveRemoveUserFacingBounds(t *testing.T) {
	f := newFixture(t, nil)
	f.player.Queue().Enqueue(item("A"), item("B"), item("C"))

	require.NoError(t, f.player.Move(3, 1))
	assert.Equal(t, []string{"C", "A", "B"}, ids(f.player.Queue().Items()))

	err := f.player.Move(0, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue size: 3")

	err = f.player.RemoveAt(4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Position: 4")

	require.NoError(t, f.player.RemoveAt(1))
	assert.Equal(t, []string{"A", "B"}, ids(f.player.Queue().Items()))
}

func TestClearRangeOneIndexedInclusive(t *testing.T) {
	f := newFixture(t, nil)
	q := f.player.Queue()
	q.Enqueue(item("A"), item("B"), item("C"), item("D"), item("E"), item("F"))

	from, to := 2, 4
	f.player.ClearRange(&from, &to)
	assert.Equal(t, []string{"A", "E", "F"}, ids(q.Items()))
}

func TestRegistry(t *testing.T) {
	reg := NewMemoryRegistry()
	_, ok := reg.Any()
	assert.False(t, ok)

	p := &MusicPlayer{}
	reg.Add("chan-1", p)
	assert.True(t, reg.Has("chan-1"))
	got, ok := reg.Get("chan-1")
	require.True(t, ok)
	assert.Same(t, p, got)

	any, ok := reg.Any()
	require.True(t, ok)
	assert.Same(t, p, any)

	reg.Remove("chan-1")
	assert.False(t, reg.Has("chan-1"))
}
