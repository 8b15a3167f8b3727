// Package mediasession mirrors playback state into the desktop media
// session and feeds hardware media key presses back into the player.
package mediasession

import (
	"context"
	"time"

	"go.uber.org/zap"

	"songbird/internal/player"
)

// Command is a transport-originated playback request.
type Command int

const (
	CommandPlayPause Command = iota
	CommandPlay
	CommandPause
	CommandStop
	CommandNext
	CommandPrevious
)

// NowPlaying is the metadata and state published to the media session.
type NowPlaying struct {
	TrackID  string
	Title    string
	Artist   string
	Album    string
	CoverURL string
	Duration time.Duration
	Position time.Duration
	Playing  bool
	Stopped  bool
}

// Transport is the platform media session integration. Implementations are
// best-effort: publish errors are logged and ignored, never surfaced to
// playback.
type Transport interface {
	Publish(info NowPlaying) error
	Commands() <-chan Command
	Close() error
}

// PlayerControl is the slice of the playback controller the bridge drives.
type PlayerControl interface {
	TogglePause()
	Resume()
	Pause()
	Stop()
	Next()
	Previous()
}

// Bridge connects playback state snapshots to a media session transport.
type Bridge struct {
	transport Transport
	control   PlayerControl
	states    <-chan player.State
	logger    *zap.Logger

	last NowPlaying
	seen bool
}

func NewBridge(transport Transport, control PlayerControl, states <-chan player.State, logger *zap.Logger) *Bridge {
	return &Bridge{
		transport: transport,
		control:   control,
		states:    states,
		logger:    logger,
	}
}

// Run pumps states out and commands in until the context is canceled.
func (b *Bridge) Run(ctx context.Context) error {
	defer func() {
		if err := b.transport.Close(); err != nil {
			b.logger.Warn("Failed to close media session transport", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case s, ok := <-b.states:
			if !ok {
				return nil
			}
			b.publish(toNowPlaying(s))

		case cmd, ok := <-b.transport.Commands():
			if !ok {
				return nil
			}
			b.dispatch(cmd)
		}
	}
}

func (b *Bridge) publish(info NowPlaying) {
	if b.seen && sameSession(b.last, info) {
		return
	}
	b.last = info
	b.seen = true

	if err := b.transport.Publish(info); err != nil {
		// The session is cosmetic; playback carries on without it.
		b.logger.Debug("Media session publish failed", zap.Error(err))
	}
}

func (b *Bridge) dispatch(cmd Command) {
	switch cmd {
	case CommandPlayPause:
		b.control.TogglePause()
	case CommandPlay:
		// Play while already playing stays playing.
		b.control.Resume()
	case CommandPause:
		b.control.Pause()
	case CommandStop:
		b.control.Stop()
	case CommandNext:
		b.control.Next()
	case CommandPrevious:
		b.control.Previous()
	}
}

func toNowPlaying(s player.State) NowPlaying {
	info := NowPlaying{
		Position: s.Position,
		Duration: s.Duration,
		Playing:  s.Playing,
		Stopped:  s.Current == nil,
	}
	if s.Current != nil {
		info.TrackID = s.Current.ID
		info.Title = s.Current.Title
		info.Artist = s.Current.DisplayArtist()
		info.Album = s.Current.Album
		info.CoverURL = s.Current.Cover()
	}
	return info
}

// sameSession ignores the position, which advances every snapshot and is
// not worth a property change broadcast on its own.
func sameSession(a, b NowPlaying) bool {
	a.Position = 0
	b.Position = 0
	return a == b
}
