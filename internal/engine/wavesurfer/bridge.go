// Package wavesurfer drives the waveform widget running in the webview. Commands
// go out as runtime events; widget callbacks come back the same way and are
// forwarded to the session as engine events.
package wavesurfer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"loopy/internal/domain"
	"loopy/internal/ports"
)

const (
	// CommandEvent carries Command payloads to the webview.
	CommandEvent = "loopy:engine"
	// CallbackEvent carries widget callbacks back to Go.
	CallbackEvent = "loopy:engine-event"

	kindRegionRemoved = "region-removed"
)

var ErrNoEmitter = errors.New("waveform bridge is not connected to a webview")

// Emitter publishes a runtime event to the webview.
type Emitter func(event string, payload interface{})

// Command is one instruction for the widget.
type Command struct {
	Op     string         `json:"op"`
	URL    string         `json:"url,omitempty"`
	Time   float64        `json:"time"`
	Region *domain.Region `json:"region,omitempty"`
}

// Callback is one widget notification.
type Callback struct {
	Kind     string        `json:"kind"`
	Track    string        `json:"track"`
	Time     float64       `json:"time"`
	Duration float64       `json:"duration"`
	Region   domain.Region `json:"region"`
}

// Bridge implements ports.WaveformEngine against the webview widget. It mirrors
// the widget's region set so Regions can be answered without a round trip.
type Bridge struct {
	logger *zap.Logger

	mu      sync.Mutex
	emit    Emitter
	handler ports.EngineEventHandler
	track   string
	order   []string
	regions map[string]domain.Region
	removed map[string]struct{}
}

func New(emit Emitter, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		emit:    emit,
		logger:  logger.Named("wavesurfer"),
		regions: map[string]domain.Region{},
		removed: map[string]struct{}{},
	}
}

// SetEmitter connects the bridge once the webview runtime is available.
func (b *Bridge) SetEmitter(emit Emitter) {
	b.mu.Lock()
	b.emit = emit
	b.mu.Unlock()
}

// Attach sets the receiver of widget callbacks.
func (b *Bridge) Attach(handler ports.EngineEventHandler) {
	b.mu.Lock()
	b.handler = handler
	b.mu.Unlock()
}

func (b *Bridge) Load(url string) error {
	b.mu.Lock()
	b.track = url
	b.order = nil
	b.regions = map[string]domain.Region{}
	b.removed = map[string]struct{}{}
	b.mu.Unlock()
	return b.send(Command{Op: "load", URL: url})
}

func (b *Bridge) PlayPause() error {
	return b.send(Command{Op: "playpause"})
}

func (b *Bridge) Play(from float64) error {
	return b.send(Command{Op: "play", Time: from})
}

func (b *Bridge) Pause() error {
	return b.send(Command{Op: "pause"})
}

func (b *Bridge) Seek(seconds float64) error {
	return b.send(Command{Op: "seek", Time: seconds})
}

func (b *Bridge) EnableRegions() error {
	return b.send(Command{Op: "enable-regions"})
}

// AddRegion assigns the id on the Go side so the region is known before the
// widget echoes it back.
func (b *Bridge) AddRegion(start, end float64) (domain.Region, error) {
	region := domain.Region{ID: "region-" + uuid.NewString(), Start: start, End: end}
	if err := b.send(Command{Op: "add-region", Region: &region}); err != nil {
		return domain.Region{}, err
	}
	b.mu.Lock()
	b.upsertLocked(region)
	b.mu.Unlock()
	return region, nil
}

func (b *Bridge) Regions() []domain.Region {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Region, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.regions[id])
	}
	return out
}

func (b *Bridge) RemoveRegion(id string) error {
	b.mu.Lock()
	b.removeLocked(id)
	b.mu.Unlock()
	return b.send(Command{Op: "remove-region", Region: &domain.Region{ID: id}})
}

// Dispatch is the runtime event callback for CallbackEvent.
func (b *Bridge) Dispatch(data ...interface{}) {
	if len(data) == 0 {
		return
	}
	event, err := decodeCallback(data[0])
	if err != nil {
		b.logger.Warn("malformed widget callback", zap.Error(err))
		return
	}
	b.Handle(event)
}

// Handle applies one widget callback to the region mirror and forwards it.
func (b *Bridge) Handle(event Callback) {
	b.mu.Lock()
	handler := b.handler
	_, tombstoned := b.removed[event.Region.ID]
	if event.Track == "" || event.Track == b.track {
		switch event.Kind {
		case string(domain.EngineEventRegionCreated), string(domain.EngineEventRegionUpdated):
			if !tombstoned {
				b.upsertLocked(event.Region)
			}
		case kindRegionRemoved:
			b.removeLocked(event.Region.ID)
		}
	}
	b.mu.Unlock()

	if event.Kind == kindRegionRemoved || handler == nil {
		return
	}
	// Late echoes for regions Go already removed are dropped.
	if tombstoned && event.Region.ID != "" {
		return
	}
	handler.HandleEngineEvent(domain.EngineEvent{
		Kind:     domain.EngineEventKind(event.Kind),
		Track:    event.Track,
		Time:     event.Time,
		Duration: event.Duration,
		Region:   event.Region,
	})
}

func (b *Bridge) send(cmd Command) error {
	b.mu.Lock()
	emit := b.emit
	b.mu.Unlock()
	if emit == nil {
		return ErrNoEmitter
	}
	emit(CommandEvent, cmd)
	return nil
}

func (b *Bridge) upsertLocked(region domain.Region) {
	if region.ID == "" {
		return
	}
	if _, ok := b.regions[region.ID]; !ok {
		b.order = append(b.order, region.ID)
	}
	b.regions[region.ID] = region
}

func (b *Bridge) removeLocked(id string) {
	if _, ok := b.regions[id]; !ok {
		return
	}
	b.removed[id] = struct{}{}
	delete(b.regions, id)
	for i, candidate := range b.order {
		if candidate == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

func decodeCallback(raw interface{}) (Callback, error) {
	var event Callback
	encoded, err := json.Marshal(raw)
	if err != nil {
		return event, err
	}
	if err := json.Unmarshal(encoded, &event); err != nil {
		return event, err
	}
	if event.Kind == "" {
		return event, fmt.Errorf("callback without kind: %s", encoded)
	}
	return event, nil
}
