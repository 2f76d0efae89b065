// Package headless is an in-process waveform engine with a simulated transport.
// It emits its callbacks synchronously, which makes it suitable for the CLI
// and for driving a session without a webview.
package headless

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"loopy/internal/domain"
	"loopy/internal/ports"
)

var (
	ErrNoTrack          = errors.New("no track loaded")
	ErrRegionsDisabled  = errors.New("regions are not enabled")
	ErrUnknownRegion    = errors.New("unknown region")
	ErrInvalidRegionArg = errors.New("region end must be after start")
)

// DurationFunc reports the length of a track in seconds; zero means unknown.
type DurationFunc func(url string) float64

// Engine implements ports.WaveformEngine without rendering anything.
type Engine struct {
	logger     *zap.Logger
	durationOf DurationFunc

	mu       sync.Mutex
	handler  ports.EngineEventHandler
	track    string
	duration float64
	position float64
	playing  bool
	enabled  bool
	regions  []domain.Region
}

func New(durationOf DurationFunc, logger *zap.Logger) *Engine {
	if durationOf == nil {
		durationOf = func(string) float64 { return 0 }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{durationOf: durationOf, logger: logger.Named("headless")}
}

// Attach sets the receiver of engine callbacks.
func (e *Engine) Attach(handler ports.EngineEventHandler) {
	e.mu.Lock()
	e.handler = handler
	e.mu.Unlock()
}

func (e *Engine) Load(url string) error {
	duration := e.durationOf(url)

	e.mu.Lock()
	e.track = url
	e.duration = duration
	e.position = 0
	e.playing = false
	e.enabled = false
	e.regions = nil
	e.mu.Unlock()

	e.logger.Debug("track loaded", zap.String("url", url), zap.Float64("duration", duration))
	e.emit(domain.EngineEvent{Kind: domain.EngineEventReady, Duration: duration})
	return nil
}

func (e *Engine) PlayPause() error {
	e.mu.Lock()
	playing := e.playing
	e.mu.Unlock()
	if playing {
		return e.Pause()
	}
	return e.play(nil)
}

func (e *Engine) Play(from float64) error {
	return e.play(&from)
}

func (e *Engine) Pause() error {
	e.mu.Lock()
	if e.track == "" {
		e.mu.Unlock()
		return ErrNoTrack
	}
	wasPlaying := e.playing
	e.playing = false
	e.mu.Unlock()

	if wasPlaying {
		e.emit(domain.EngineEvent{Kind: domain.EngineEventPause})
	}
	return nil
}

func (e *Engine) Seek(seconds float64) error {
	e.mu.Lock()
	if e.track == "" {
		e.mu.Unlock()
		return ErrNoTrack
	}
	e.position = e.clampLocked(seconds)
	at := e.position
	e.mu.Unlock()

	e.emit(domain.EngineEvent{Kind: domain.EngineEventSeeking, Time: at})
	return nil
}

func (e *Engine) EnableRegions() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.track == "" {
		return ErrNoTrack
	}
	e.enabled = true
	return nil
}

func (e *Engine) AddRegion(start, end float64) (domain.Region, error) {
	e.mu.Lock()
	if !e.enabled {
		e.mu.Unlock()
		return domain.Region{}, ErrRegionsDisabled
	}
	if end <= start {
		e.mu.Unlock()
		return domain.Region{}, fmt.Errorf("%w: %.3f..%.3f", ErrInvalidRegionArg, start, end)
	}
	region := domain.Region{ID: uuid.NewString(), Start: start, End: end}
	e.regions = append(e.regions, region)
	e.mu.Unlock()

	e.emit(domain.EngineEvent{Kind: domain.EngineEventRegionCreated, Region: region})
	return region, nil
}

// UpdateRegion moves an existing region, as a drag in the widget would.
func (e *Engine) UpdateRegion(id string, start, end float64) error {
	if end <= start {
		return fmt.Errorf("%w: %.3f..%.3f", ErrInvalidRegionArg, start, end)
	}
	e.mu.Lock()
	index := e.indexLocked(id)
	if index < 0 {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownRegion, id)
	}
	e.regions[index].Start = start
	e.regions[index].End = end
	region := e.regions[index]
	e.mu.Unlock()

	e.emit(domain.EngineEvent{Kind: domain.EngineEventRegionUpdated, Region: region})
	return nil
}

func (e *Engine) Regions() []domain.Region {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Region, len(e.regions))
	copy(out, e.regions)
	return out
}

func (e *Engine) RemoveRegion(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	index := e.indexLocked(id)
	if index < 0 {
		return nil
	}
	e.regions = append(e.regions[:index], e.regions[index+1:]...)
	return nil
}

// Tick advances the simulated playhead to position. It reports audioprocess,
// and region-out for every region the playhead just left.
func (e *Engine) Tick(position float64) {
	e.mu.Lock()
	if !e.playing {
		e.mu.Unlock()
		return
	}
	previous := e.position
	e.position = e.clampLocked(position)
	at := e.position
	var left []domain.Region
	for _, region := range e.regions {
		if previous >= region.Start && previous < region.End && at >= region.End {
			left = append(left, region)
		}
	}
	finished := e.duration > 0 && at >= e.duration
	if finished {
		e.playing = false
	}
	e.mu.Unlock()

	e.emit(domain.EngineEvent{Kind: domain.EngineEventAudioProcess, Time: at})
	for _, region := range left {
		e.emit(domain.EngineEvent{Kind: domain.EngineEventRegionOut, Region: region})
	}
	if finished {
		e.emit(domain.EngineEvent{Kind: domain.EngineEventPause})
	}
}

// Position returns the simulated playhead.
func (e *Engine) Position() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

func (e *Engine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

func (e *Engine) play(from *float64) error {
	e.mu.Lock()
	if e.track == "" {
		e.mu.Unlock()
		return ErrNoTrack
	}
	if from != nil {
		e.position = e.clampLocked(*from)
	}
	wasPlaying := e.playing
	e.playing = true
	e.mu.Unlock()

	if !wasPlaying {
		e.emit(domain.EngineEvent{Kind: domain.EngineEventPlay})
	}
	return nil
}

func (e *Engine) emit(event domain.EngineEvent) {
	e.mu.Lock()
	handler := e.handler
	event.Track = e.track
	e.mu.Unlock()
	if handler != nil {
		handler.HandleEngineEvent(event)
	}
}

func (e *Engine) clampLocked(seconds float64) float64 {
	if seconds < 0 {
		return 0
	}
	if e.duration > 0 && seconds > e.duration {
		return e.duration
	}
	return seconds
}

func (e *Engine) indexLocked(id string) int {
	for i, region := range e.regions {
		if region.ID == id {
			return i
		}
	}
	return -1
}
