package usecase

import (
	"go.uber.org/zap"

	"loopy/internal/domain"
	"loopy/internal/ports"
)

// playbackOwner lets the controller write transport state it learned from the engine.
type playbackOwner interface {
	updatePlayback(func(state *domain.PlaybackState))
}

// PlaybackController turns play/pause intent into engine commands and engine
// transport callbacks into PlaybackState.
type PlaybackController struct {
	engine ports.WaveformEngine
	owner  playbackOwner
	logger *zap.Logger
}

func newPlaybackController(engine ports.WaveformEngine, owner playbackOwner, logger *zap.Logger) *PlaybackController {
	return &PlaybackController{engine: engine, owner: owner, logger: logger.Named("playback")}
}

// TogglePlayPause only requests a transition; PlaybackState changes when the
// engine reports play or pause.
func (p *PlaybackController) TogglePlayPause(activeRegion *domain.Region, isPlaying bool, hasRegionScope bool) error {
	if hasRegionScope && activeRegion != nil {
		if isPlaying {
			return p.engine.Pause()
		}
		return p.engine.Play(activeRegion.Start)
	}
	return p.engine.PlayPause()
}

// Seek clamps the target into the track before commanding the engine.
func (p *PlaybackController) Seek(seconds float64, duration float64) error {
	if seconds < 0 {
		seconds = 0
	}
	if duration > 0 && seconds > duration {
		seconds = duration
	}
	return p.engine.Seek(seconds)
}

// HandleTransport applies play, pause, audioprocess and seeking callbacks.
func (p *PlaybackController) HandleTransport(event domain.EngineEvent) {
	switch event.Kind {
	case domain.EngineEventPlay:
		p.owner.updatePlayback(func(state *domain.PlaybackState) { state.IsPlaying = true })
	case domain.EngineEventPause:
		p.owner.updatePlayback(func(state *domain.PlaybackState) { state.IsPlaying = false })
	case domain.EngineEventAudioProcess, domain.EngineEventSeeking:
		at := event.Time
		if at < 0 {
			at = 0
		}
		p.owner.updatePlayback(func(state *domain.PlaybackState) { state.CurrentTime = at })
	default:
		p.logger.Debug("ignoring non-transport event", zap.String("kind", string(event.Kind)))
	}
}
