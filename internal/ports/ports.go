package ports

import (
	"context"

	"loopy/internal/domain"
)

// BackendClient talks to the remote vocal-removal and looping service.
type BackendClient interface {
	Process(ctx context.Context, file domain.AudioFile) (domain.ProcessedTrack, error)
	Loop(ctx context.Context, req domain.LoopRequest) (domain.AudioPayload, error)
	Fetch(ctx context.Context, url string) (domain.AudioPayload, error)
}

// WaveformEngine renders a track and exposes transport and region commands.
// Engines report back through an EngineEventHandler.
type WaveformEngine interface {
	Load(url string) error
	PlayPause() error
	Play(from float64) error
	Pause() error
	Seek(seconds float64) error
	EnableRegions() error
	AddRegion(start, end float64) (domain.Region, error)
	Regions() []domain.Region
	RemoveRegion(id string) error
}

// EngineEventHandler consumes waveform engine callbacks.
type EngineEventHandler interface {
	HandleEngineEvent(event domain.EngineEvent)
}

// BlobStore hands out locally playable references for in-memory audio.
type BlobStore interface {
	Publish(payload domain.AudioPayload) (string, error)
	Open(url string) (domain.AudioPayload, bool)
	Release(url string)
}

// EventSink emits session state to the UI.
type EventSink interface {
	SessionChanged(snapshot domain.Snapshot, reason domain.StageReason)
	RegionChanged(region domain.RegionInfo)
	PlaybackChanged(state domain.PlaybackState)
	ProgressMessage(text string)
	SessionError(code domain.ErrorCode, detail string)
}
