// Package voice streams cached audio files into a Discord voice channel.
// Files are decoded by an ffmpeg child process and encoded to opus frames
// on the fly; the rest of the program only sees the Session interface.
package voice

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/log"
	"layeh.com/gopus"
)

const (
	channels  = 2
	frameRate = 48000
	frameSize = 960
	maxBytes  = frameSize * channels * 2
)

// Session is one voice connection. Play renders a local file
// asynchronously and the idle callback fires when the track ends or is
// stopped, mirroring how the rest of the player reasons about transport
// state.
type Session struct {
	mu     sync.Mutex
	vc     *discordgo.VoiceConnection
	onIdle func()
	cancel context.CancelFunc
	log    *log.Logger

	pauseMu   sync.Mutex
	pauseCond *sync.Cond
	paused    bool

	channelID string
}

// Join connects to a voice channel and returns a session for it.
func Join(s *discordgo.Session, guildID, channelID string) (*Session, error) {
	vc, err := s.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("joining voice channel %s: %w", channelID, err)
	}
	session := &Session{
		vc:        vc,
		channelID: channelID,
		log:       log.WithPrefix("voice").With("channel", channelID),
	}
	session.pauseCond = sync.NewCond(&session.pauseMu)
	return session, nil
}

func (s *Session) ChannelID() string { return s.channelID }

func (s *Session) OnIdle(fn func()) {
	s.mu.Lock()
	s.onIdle = fn
	s.mu.Unlock()
}

func (s *Session) fireIdle() {
	s.mu.Lock()
	fn := s.onIdle
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Play starts rendering filePath. Any previous stream is cancelled first;
// its goroutine exits without touching the new one.
func (s *Session) Play(filePath string) error {
	ctx, cancel := context.WithCancel(context.Background())

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", filePath,
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", frameRate),
		"-ac", fmt.Sprintf("%d", channels),
		"pipe:1")
	out, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()
	s.setPaused(false)

	go s.stream(ctx, cmd, out)
	return nil
}

func (s *Session) stream(ctx context.Context, cmd *exec.Cmd, out io.Reader) {
	defer cmd.Wait()

	encoder, err := gopus.NewEncoder(frameRate, channels, gopus.Audio)
	if err != nil {
		s.log.Error("creating opus encoder", "err", err)
		s.fireIdle()
		return
	}

	s.vc.Speaking(true)
	defer s.vc.Speaking(false)

	reader := bufio.NewReaderSize(out, 16384)
	pcm := make([]int16, frameSize*channels)
	for {
		if ctx.Err() != nil {
			break
		}
		s.waitWhilePaused()
		if ctx.Err() != nil {
			break
		}

		err := binary.Read(reader, binary.LittleEndian, &pcm)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			s.log.Error("reading pcm from ffmpeg", "err", err)
			break
		}

		frame, err := encoder.Encode(pcm, frameSize, maxBytes)
		if err != nil {
			s.log.Error("encoding opus frame", "err", err)
			break
		}
		select {
		case s.vc.OpusSend <- frame:
		case <-ctx.Done():
		}
	}
	s.fireIdle()
}

func (s *Session) setPaused(paused bool) {
	s.pauseMu.Lock()
	s.paused = paused
	s.pauseMu.Unlock()
	if !paused {
		s.pauseCond.Broadcast()
	}
}

func (s *Session) waitWhilePaused() {
	s.pauseMu.Lock()
	for s.paused {
		s.pauseCond.Wait()
	}
	s.pauseMu.Unlock()
}

func (s *Session) Pause()  { s.setPaused(true) }
func (s *Session) Resume() { s.setPaused(false) }

// Stop cancels the current stream; the stream goroutine reports idle on
// its way out. A stop with nothing playing is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	s.setPaused(false)
	if cancel != nil {
		cancel()
	}
}

func (s *Session) Disconnect() {
	s.log.Info("disconnecting voice session")
	s.vc.Speaking(false)
	if err := s.vc.Disconnect(); err != nil {
		s.log.Warn("voice disconnect", "err", err)
	}
}
