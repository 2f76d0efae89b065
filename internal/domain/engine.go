package domain

// EngineEventKind names the waveform engine callbacks the core consumes.
type EngineEventKind string

const (
	EngineEventReady         EngineEventKind = "ready"
	EngineEventPlay          EngineEventKind = "play"
	EngineEventPause         EngineEventKind = "pause"
	EngineEventAudioProcess  EngineEventKind = "audioprocess"
	EngineEventSeeking       EngineEventKind = "seeking"
	EngineEventRegionCreated EngineEventKind = "region-created"
	EngineEventRegionUpdated EngineEventKind = "region-updated"
	EngineEventRegionOut     EngineEventKind = "region-out"
)

// EngineEvent is a normalized waveform engine callback.
// Track is the URL the engine had loaded when the event fired; empty means unknown.
type EngineEvent struct {
	Kind     EngineEventKind `json:"kind"`
	Track    string          `json:"track,omitempty"`
	Time     float64         `json:"time,omitempty"`
	Duration float64         `json:"duration,omitempty"`
	Region   Region          `json:"region,omitempty"`
}
