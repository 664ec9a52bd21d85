// this file implements the playback state machine tying the queue to a voice session
package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/arift/DJ-Pasha/meta"
)

type State int

const (
	StateIdle State = iota
	StateArmed
	StatePlaying
	StatePaused
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed_for_disconnect"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// SongSource is the slice of the meta engine the player needs.
type SongSource interface {
	GetSong(ctx context.Context, videoID string) (string, error)
	GetInfo(ctx context.Context, videoID string) (meta.SavedInfo, error)
	InsertPlay(ctx context.Context, videoID, username string) error
	Hydrate(videoID string)
}

// VoiceSession is the audio transport. Play starts rendering a local file
// and the session reports idle (via the OnIdle callback) when it finishes
// or is stopped.
type VoiceSession interface {
	Play(filePath string) error
	Pause()
	Resume()
	Stop()
	Disconnect()
	OnIdle(fn func())
}

// Notifier delivers user-facing messages to the text channel.
type Notifier interface {
	Send(text string)
	SendNowPlaying(item QueueItem, info meta.SavedInfo, queueSize int)
}

const (
	defaultDisconnectAfter = 60 * time.Second
	defaultPausedGrace     = 5 * time.Minute
	defaultRetryBackoff    = 5 * time.Second
	defaultMaxFailures     = 3
)

type Config struct {
	ChannelID string
	Source    SongSource
	Session   VoiceSession
	Notifier  Notifier
	Registry  Registry

	// OnTerminate lets the owner detach its own event listeners during
	// teardown. Called before the player is removed from the registry.
	OnTerminate func()

	DisconnectAfter time.Duration
	PausedGrace     time.Duration
	RetryBackoff    time.Duration
	MaxFailures     int
}

// MusicPlayer owns one queue and one voice session. All transitions
// funnel through PlayNextSong and the small set of exported commands;
// the advancing flag keeps overlapping triggers (idle event, skip, play
// command) from double-popping the queue.
type MusicPlayer struct {
	channelID   string
	source      SongSource
	session     VoiceSession
	notifier    Notifier
	registry    Registry
	onTerminate func()
	queue       *Queue
	log         *log.Logger

	disconnectAfter time.Duration
	pausedGrace     time.Duration
	retryBackoff    time.Duration
	maxFailures     int

	mu              sync.Mutex
	state           State
	nowPlaying      *QueueItem
	repeat          bool
	advancing       bool
	failures        int
	disconnectTimer *time.Timer
	timerSeq        int
	presenceArmed   bool
	resumeOnReturn  bool
}

func NewMusicPlayer(cfg Config) *MusicPlayer {
	p := &MusicPlayer{
		channelID:       cfg.ChannelID,
		source:          cfg.Source,
		session:         cfg.Session,
		notifier:        cfg.Notifier,
		registry:        cfg.Registry,
		onTerminate:     cfg.OnTerminate,
		log:             log.WithPrefix("player").With("channel", cfg.ChannelID),
		disconnectAfter: cfg.DisconnectAfter,
		pausedGrace:     cfg.PausedGrace,
		retryBackoff:    cfg.RetryBackoff,
		maxFailures:     cfg.MaxFailures,
		state:           StateIdle,
	}
	if p.disconnectAfter <= 0 {
		p.disconnectAfter = defaultDisconnectAfter
	}
	if p.pausedGrace <= 0 {
		p.pausedGrace = defaultPausedGrace
	}
	if p.retryBackoff <= 0 {
		p.retryBackoff = defaultRetryBackoff
	}
	if p.maxFailures <= 0 {
		p.maxFailures = defaultMaxFailures
	}
	p.queue = NewQueue(p.onQueueChange)
	p.session.OnIdle(p.onPlayerIdle)
	return p
}

func (p *MusicPlayer) Queue() *Queue { return p.queue }

func (p *MusicPlayer) ChannelID() string { return p.channelID }

func (p *MusicPlayer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *MusicPlayer) NowPlaying() (QueueItem, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.nowPlaying == nil {
		return QueueItem{}, false
	}
	return *p.nowPlaying, true
}

func (p *MusicPlayer) Repeat() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.repeat
}

func (p *MusicPlayer) SetRepeat(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.repeat = on
}

// AddSongs appends to the queue and kicks off playback if the session is
// sitting idle or counting down to disconnect.
func (p *MusicPlayer) AddSongs(items ...QueueItem) {
	p.log.Info("adding to queue", "count", len(items))
	p.queue.Enqueue(items...)

	p.mu.Lock()
	start := p.state == StateIdle || p.state == StateArmed
	if start {
		p.stopDisconnectLocked()
	}
	p.mu.Unlock()
	if start {
		go p.PlayNextSong()
	}
}

// onQueueChange pre-fetches the head of the queue while something is
// playing, so the next advance is a cache hit. Purely an optimization;
// failures are invisible here.
func (p *MusicPlayer) onQueueChange(items []QueueItem) {
	if len(items) == 0 {
		return
	}
	p.mu.Lock()
	playing := p.state == StatePlaying
	p.mu.Unlock()
	if playing {
		p.source.Hydrate(items[0].ID)
	}
}

// onPlayerIdle fires when the voice session finishes rendering a file.
func (p *MusicPlayer) onPlayerIdle() {
	p.mu.Lock()
	if p.state != StatePlaying {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.log.Debug("in idle, playing next song")
	p.PlayNextSong()
}

// PlayNextSong advances playback by one item: pop, fetch, hand the file
// to the transport, announce it, record the play. Only one advance can be
// in flight per player.
func (p *MusicPlayer) PlayNextSong() {
	p.mu.Lock()
	if p.state == StateTerminated || p.advancing {
		p.mu.Unlock()
		return
	}
	p.advancing = true
	var repeatItem *QueueItem
	if p.repeat && p.nowPlaying != nil {
		item := *p.nowPlaying
		repeatItem = &item
	} else {
		// flip to playing before the pop so the queue-change hook
		// pre-fetches the item after this one
		p.state = StatePlaying
	}
	p.mu.Unlock()

	var item QueueItem
	ok := true
	if repeatItem != nil {
		item = *repeatItem
	} else {
		item, ok = p.queue.Pop()
	}
	if !ok {
		p.mu.Lock()
		p.nowPlaying = nil
		p.advancing = false
		p.state = StateArmed
		p.armDisconnectLocked(p.disconnectAfter)
		p.mu.Unlock()
		p.notifier.Send(fmt.Sprintf("No more songs in the queue. DJ Pasha will disconnect in %d seconds.", int(p.disconnectAfter.Seconds())))
		return
	}

	p.mu.Lock()
	p.stopDisconnectLocked()
	p.nowPlaying = &item
	p.mu.Unlock()

	p.log.Info("playing next song", "videoId", item.ID)
	ctx := context.Background()
	path, err := p.source.GetSong(ctx, item.ID)

	// the session may have been torn down while we were fetching; a dead
	// transport must not receive the file or a history entry
	p.mu.Lock()
	if p.state == StateTerminated {
		p.advancing = false
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	if err == nil {
		err = p.session.Play(path)
	}
	if err != nil {
		p.handlePlayFailure(item, err)
		return
	}

	p.mu.Lock()
	p.advancing = false
	p.failures = 0
	p.mu.Unlock()

	if info, infoErr := p.source.GetInfo(ctx, item.ID); infoErr == nil {
		p.notifier.SendNowPlaying(item, info, p.queue.Size())
	} else {
		p.log.Warn("could not load now-playing info", "videoId", item.ID, "err", infoErr)
	}
	if err := p.source.InsertPlay(ctx, item.ID, item.By); err != nil {
		// stats are best effort, playback goes on
		p.log.Error("error with stat recording, ignoring it", "err", err)
	}
}

// handlePlayFailure skips a broken item after a short backoff. A run of
// consecutive failures parks the session instead of spinning through a
// dead queue forever.
func (p *MusicPlayer) handlePlayFailure(item QueueItem, err error) {
	p.log.Warn("problem while playing song", "videoId", item.ID, "err", err)

	p.mu.Lock()
	p.advancing = false
	p.failures++
	failures := p.failures
	terminated := p.state == StateTerminated
	p.mu.Unlock()
	if terminated {
		return
	}

	p.notifier.Send(fmt.Sprintf("Couldn't play **%s**. Skipping it.", item.ID))
	if failures >= p.maxFailures {
		p.mu.Lock()
		p.nowPlaying = nil
		p.state = StateArmed
		p.armDisconnectLocked(p.disconnectAfter)
		p.mu.Unlock()
		p.notifier.Send("Too many songs failed in a row. Add something playable to the queue.")
		return
	}

	time.Sleep(p.retryBackoff)
	p.PlayNextSong()
}

// Skip stops the current track; the resulting idle event advances.
func (p *MusicPlayer) Skip() {
	p.log.Info("skipping song")
	p.session.Stop()
}

// TogglePause flips between playing and paused. Paused sessions get a
// longer disconnect grace period. Returns true when now paused.
func (p *MusicPlayer) TogglePause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StatePlaying:
		p.state = StatePaused
		p.session.Pause()
		p.armDisconnectLocked(p.pausedGrace)
		return true
	case StatePaused:
		p.state = StatePlaying
		p.session.Resume()
		p.stopDisconnectLocked()
		return false
	}
	return false
}

// HandlePresence reacts to members joining or leaving the voice channel.
// An empty room (just the bot) pauses playback and starts the countdown;
// company returning resumes whatever presence interrupted.
func (p *MusicPlayer) HandlePresence(membersInChannel int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateTerminated {
		return
	}
	if membersInChannel < 2 {
		p.log.Info("no one is listening, starting disconnect timer")
		if p.state == StatePlaying {
			p.state = StatePaused
			p.session.Pause()
			p.resumeOnReturn = true
		}
		p.presenceArmed = true
		p.armDisconnectLocked(p.disconnectAfter)
		return
	}
	if p.presenceArmed {
		p.stopDisconnectLocked()
		p.presenceArmed = false
		if p.resumeOnReturn && p.state == StatePaused {
			p.state = StatePlaying
			p.session.Resume()
		}
		p.resumeOnReturn = false
	}
}

// Move reorders the queue using the 1-based positions users see.
func (p *MusicPlayer) Move(from, to int) error {
	if err := p.queue.Move(from-1, to-1); err != nil {
		return fmt.Errorf("bad move request. From: %d, to: %d, queue size: %d", from, to, p.queue.Size())
	}
	return nil
}

// RemoveAt removes the song at a 1-based queue position.
func (p *MusicPlayer) RemoveAt(position int) error {
	if err := p.queue.Remove(position - 1); err != nil {
		return fmt.Errorf("out of bounds remove request. Position: %d, queue size: %d", position, p.queue.Size())
	}
	return nil
}

// ClearRange clears 1-based inclusive [from, to]; nil bounds widen the
// range the way /clear does.
func (p *MusicPlayer) ClearRange(from, to *int) {
	var start, end *int
	if from != nil {
		v := *from - 1
		start = &v
	}
	if to != nil {
		v := *to - 1
		end = &v
	}
	p.queue.Clear(start, end)
}

func (p *MusicPlayer) Shuffle() {
	p.log.Info("shuffling queue")
	p.queue.Shuffle()
}

// armDisconnectLocked (re)starts the countdown. An already running timer
// is replaced so the most recent trigger decides the grace period.
func (p *MusicPlayer) armDisconnectLocked(after time.Duration) {
	p.stopDisconnectLocked()
	p.log.Debug("starting disconnect timeout", "after", after)
	p.timerSeq++
	seq := p.timerSeq
	p.disconnectTimer = time.AfterFunc(after, func() { p.onDisconnectTimeout(seq) })
}

func (p *MusicPlayer) stopDisconnectLocked() {
	if p.disconnectTimer == nil {
		return
	}
	p.log.Debug("stopping disconnect timeout")
	p.disconnectTimer.Stop()
	p.disconnectTimer = nil
}

func (p *MusicPlayer) onDisconnectTimeout(seq int) {
	p.mu.Lock()
	// the session may have moved on, or the timer been rearmed, between
	// the fire and us getting the lock; a stale fire is a no-op
	if seq != p.timerSeq || p.disconnectTimer == nil || p.state == StatePlaying || p.state == StateTerminated {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.log.Info("disconnect timeout reached, clearing everything up")
	p.Terminate()
}

// Terminate tears the session down: stop the transport, detach
// callbacks, and deregister last so concurrent lookups never find a
// half-dead player. Terminal; a new play request builds a new player.
func (p *MusicPlayer) Terminate() {
	p.mu.Lock()
	if p.state == StateTerminated {
		p.mu.Unlock()
		return
	}
	p.state = StateTerminated
	p.stopDisconnectLocked()
	p.nowPlaying = nil
	p.mu.Unlock()

	p.session.Stop()
	p.session.OnIdle(nil)
	p.session.Disconnect()
	if p.onTerminate != nil {
		p.onTerminate()
	}
	p.registry.Remove(p.channelID)
}
