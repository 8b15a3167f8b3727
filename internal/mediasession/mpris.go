package mediasession

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
	"go.uber.org/zap"
)

const (
	busName    = "org.mpris.MediaPlayer2.songbird"
	objectPath = dbus.ObjectPath("/org/mpris/MediaPlayer2")

	rootInterface   = "org.mpris.MediaPlayer2"
	playerInterface = "org.mpris.MediaPlayer2.Player"
)

// MPRISTransport exposes playback on the D-Bus session bus using the MPRIS
// player interface, so desktop shells and media keys can see and control it.
type MPRISTransport struct {
	conn     *dbus.Conn
	props    *prop.Properties
	commands chan Command
	logger   *zap.Logger
}

// NewMPRISTransport connects to the session bus and claims the player name.
// On headless systems this fails; callers should fall back to running
// without a media session.
func NewMPRISTransport(logger *zap.Logger) (*MPRISTransport, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("session bus connection failed: %w", err)
	}

	t := &MPRISTransport{
		conn:     conn,
		commands: make(chan Command, 8),
		logger:   logger,
	}

	if err := conn.Export(&playerObject{t: t}, objectPath, playerInterface); err != nil {
		return nil, fmt.Errorf("failed to export player object: %w", err)
	}
	if err := conn.Export(&rootObject{}, objectPath, rootInterface); err != nil {
		return nil, fmt.Errorf("failed to export root object: %w", err)
	}

	props, err := prop.Export(conn, objectPath, map[string]map[string]*prop.Prop{
		rootInterface: {
			"Identity":            {Value: "Songbird", Emit: prop.EmitFalse},
			"CanQuit":             {Value: false, Emit: prop.EmitFalse},
			"CanRaise":            {Value: false, Emit: prop.EmitFalse},
			"HasTrackList":        {Value: false, Emit: prop.EmitFalse},
			"SupportedUriSchemes": {Value: []string{}, Emit: prop.EmitFalse},
			"SupportedMimeTypes":  {Value: []string{}, Emit: prop.EmitFalse},
		},
		playerInterface: {
			"PlaybackStatus": {Value: "Stopped", Emit: prop.EmitTrue, Writable: false},
			"Metadata":       {Value: map[string]dbus.Variant{}, Emit: prop.EmitTrue, Writable: false},
			"Position":       {Value: int64(0), Emit: prop.EmitFalse, Writable: false},
			"CanGoNext":      {Value: true, Emit: prop.EmitFalse},
			"CanGoPrevious":  {Value: true, Emit: prop.EmitFalse},
			"CanPlay":        {Value: true, Emit: prop.EmitFalse},
			"CanPause":       {Value: true, Emit: prop.EmitFalse},
			"CanSeek":        {Value: false, Emit: prop.EmitFalse},
			"CanControl":     {Value: true, Emit: prop.EmitFalse},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to export properties: %w", err)
	}
	t.props = props

	reply, err := conn.RequestName(busName, dbus.NameFlagReplaceExisting)
	if err != nil {
		return nil, fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("bus name %s already taken", busName)
	}

	logger.Info("Media session registered", zap.String("busName", busName))
	return t, nil
}

// Publish updates the exported MPRIS properties.
func (t *MPRISTransport) Publish(info NowPlaying) error {
	status := "Stopped"
	if !info.Stopped {
		if info.Playing {
			status = "Playing"
		} else {
			status = "Paused"
		}
	}

	metadata := map[string]dbus.Variant{}
	if !info.Stopped {
		metadata["mpris:trackid"] = dbus.MakeVariant(trackObjectPath(info.TrackID))
		metadata["xesam:title"] = dbus.MakeVariant(info.Title)
		metadata["xesam:artist"] = dbus.MakeVariant([]string{info.Artist})
		if info.Album != "" {
			metadata["xesam:album"] = dbus.MakeVariant(info.Album)
		}
		if info.CoverURL != "" {
			metadata["mpris:artUrl"] = dbus.MakeVariant(info.CoverURL)
		}
		if info.Duration > 0 {
			metadata["mpris:length"] = dbus.MakeVariant(info.Duration.Microseconds())
		}
	}

	if err := t.props.Set(playerInterface, "PlaybackStatus", dbus.MakeVariant(status)); err != nil {
		return err
	}
	if err := t.props.Set(playerInterface, "Metadata", dbus.MakeVariant(metadata)); err != nil {
		return err
	}
	return t.props.Set(playerInterface, "Position", dbus.MakeVariant(info.Position.Microseconds()))
}

// Commands returns media key presses received over the bus.
func (t *MPRISTransport) Commands() <-chan Command {
	return t.commands
}

// Close releases the bus name and connection.
func (t *MPRISTransport) Close() error {
	if _, err := t.conn.ReleaseName(busName); err != nil {
		t.logger.Debug("Failed to release bus name", zap.Error(err))
	}
	return t.conn.Close()
}

func (t *MPRISTransport) send(cmd Command) {
	select {
	case t.commands <- cmd:
	default:
		t.logger.Debug("Dropping media session command", zap.Int("command", int(cmd)))
	}
}

// trackObjectPath builds a D-Bus safe object path for a track id.
func trackObjectPath(trackID string) dbus.ObjectPath {
	safe := make([]rune, 0, len(trackID))
	for _, r := range trackID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			safe = append(safe, r)
		default:
			safe = append(safe, '_')
		}
	}
	return dbus.ObjectPath("/dev/songbird/track/" + string(safe))
}

// playerObject receives org.mpris.MediaPlayer2.Player method calls.
type playerObject struct {
	t *MPRISTransport
}

func (p *playerObject) PlayPause() *dbus.Error {
	p.t.send(CommandPlayPause)
	return nil
}

func (p *playerObject) Play() *dbus.Error {
	p.t.send(CommandPlay)
	return nil
}

func (p *playerObject) Pause() *dbus.Error {
	p.t.send(CommandPause)
	return nil
}

func (p *playerObject) Stop() *dbus.Error {
	p.t.send(CommandStop)
	return nil
}

func (p *playerObject) Next() *dbus.Error {
	p.t.send(CommandNext)
	return nil
}

func (p *playerObject) Previous() *dbus.Error {
	p.t.send(CommandPrevious)
	return nil
}

func (p *playerObject) Seek(offset int64) *dbus.Error {
	return nil
}

func (p *playerObject) SetPosition(trackID dbus.ObjectPath, position int64) *dbus.Error {
	return nil
}

func (p *playerObject) OpenUri(uri string) *dbus.Error {
	return nil
}

// rootObject receives org.mpris.MediaPlayer2 method calls.
type rootObject struct{}

func (r *rootObject) Raise() *dbus.Error { return nil }
func (r *rootObject) Quit() *dbus.Error  { return nil }
