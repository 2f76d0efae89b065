package domain

// Stage models the upload → process → region-select → loop → playback lifecycle.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageLoaded     Stage = "loaded"
	StageProcessing Stage = "processing"
	StageProcessed  Stage = "processed"
	StageLooping    Stage = "looping"
	StageLooped     Stage = "looped"
)

var stageTransitions = map[Stage][]Stage{
	StageIdle:       {StageLoaded},
	StageLoaded:     {StageLoaded, StageProcessing},
	StageProcessing: {StageProcessed, StageLoaded},
	StageProcessed:  {StageLooping},
	StageLooping:    {StageLooped, StageProcessed},
	StageLooped:     {StageProcessed},
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s Stage) CanTransitionTo(next Stage) bool {
	for _, candidate := range stageTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Busy reports whether a remote operation is in flight.
func (s Stage) Busy() bool {
	return s == StageProcessing || s == StageLooping
}

// StageReason provides a structured reason for stage transitions.
type StageReason string

const (
	StageReasonSessionStarted     StageReason = "session_started"
	StageReasonFileLoaded         StageReason = "file_loaded"
	StageReasonProcessingStarted  StageReason = "processing_started"
	StageReasonProcessed          StageReason = "processed"
	StageReasonProcessingFailed   StageReason = "processing_failed"
	StageReasonLoopingStarted     StageReason = "looping_started"
	StageReasonLooped             StageReason = "looped"
	StageReasonLoopingFailed      StageReason = "looping_failed"
	StageReasonLoopReset          StageReason = "loop_reset"
	StageReasonLoopDurationChange StageReason = "loop_duration_changed"
	StageReasonSessionClosed      StageReason = "session_closed"
)

// ErrorCode identifies recoverable session failures.
type ErrorCode string

const (
	ErrorCodeStartup             ErrorCode = "startup"
	ErrorCodeInvalidFileType     ErrorCode = "invalid_file_type"
	ErrorCodeFileTooLarge        ErrorCode = "file_too_large"
	ErrorCodeProcessingFailed    ErrorCode = "processing_failed"
	ErrorCodeLoopingFailed       ErrorCode = "looping_failed"
	ErrorCodeInvalidLoopDuration ErrorCode = "invalid_loop_duration"
	ErrorCodeDownloadFailed      ErrorCode = "download_failed"
)

// SessionError is the last failure surfaced for display.
type SessionError struct {
	Code   ErrorCode `json:"code"`
	Detail string    `json:"detail,omitempty"`
}

// AudioFile is a locally selected audio file.
type AudioFile struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"-"`
}

// AudioPayload is an in-memory audio resource.
type AudioPayload struct {
	MIMEType string
	Data     []byte
}

// ProcessedTrack is the vocal-removed result returned by the backend.
// Either URL is set (server-hosted result) or Audio carries the raw payload.
type ProcessedTrack struct {
	Ref   string
	URL   string
	Audio *AudioPayload
}

// LoopRequest is the payload of a remote loop operation.
type LoopRequest struct {
	FileRef         string
	Region          Region
	DurationMinutes int
}

// Region is a contiguous time interval of the displayed track, in seconds.
type Region struct {
	ID    string  `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Valid reports whether the region has a positive, non-negative span.
func (r Region) Valid() bool {
	return r.Start >= 0 && r.Start < r.End
}

// Length returns the span of the region in seconds.
func (r Region) Length() float64 {
	return r.End - r.Start
}

// RegionInfo is a display-ready region.
type RegionInfo struct {
	Region
	StartLabel string `json:"startLabel"`
	EndLabel   string `json:"endLabel"`
}

// PlaybackState mirrors the engine transport; only engine callbacks write it.
type PlaybackState struct {
	IsPlaying   bool    `json:"isPlaying"`
	CurrentTime float64 `json:"currentTime"`
}

// Download is a track ready to be saved locally.
type Download struct {
	Filename string
	MIMEType string
	Data     []byte
}

// Snapshot is the state surface rendered by the presentation layer.
type Snapshot struct {
	Stage               Stage         `json:"stage"`
	SourceName          string        `json:"sourceName,omitempty"`
	SourceURL           string        `json:"sourceUrl,omitempty"`
	ProcessedRef        string        `json:"processedRef,omitempty"`
	ProcessedURL        string        `json:"processedUrl,omitempty"`
	LoopedURL           string        `json:"loopedUrl,omitempty"`
	DisplayURL          string        `json:"displayUrl,omitempty"`
	LoopDurationMinutes int           `json:"loopDurationMinutes"`
	LoopingEnabled      bool          `json:"loopingEnabled"`
	TrackDuration       float64       `json:"trackDuration"`
	Region              *RegionInfo   `json:"region,omitempty"`
	Playback            PlaybackState `json:"playback"`
	CurrentTimeLabel    string        `json:"currentTimeLabel"`
	Error               *SessionError `json:"error,omitempty"`
}
