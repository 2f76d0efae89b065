package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"loopy/internal/domain"
	"loopy/internal/media"
	"loopy/internal/ports"
)

const (
	processedFilename = "no_vocals.mp3"
	loopedFilename    = "looped_song.mp3"
)

// Config controls session behavior.
type Config struct {
	LoopingEnabled       bool
	DefaultLoopMinutes   int
	DefaultRegionSeconds float64
	ProgressInterval     time.Duration
	MaxUploadBytes       int64
}

type session struct {
	stage        domain.Stage
	source       *domain.AudioFile
	sourceName   string
	sourceURL    string
	processedRef string
	processedURL string
	loopedURL    string
	loopMinutes  int
	region       *domain.Region
	playback     domain.PlaybackState
	duration     float64
	err          *domain.SessionError
}

// SessionStateMachine orchestrates upload, remote processing, region
// selection, remote looping and playback for one session.
type SessionStateMachine struct {
	backend ports.BackendClient
	engine  ports.WaveformEngine
	blobs   ports.BlobStore
	events  ports.EventSink
	logger  *zap.Logger
	cfg     Config

	regions  *RegionManager
	playback *PlaybackController

	mu         sync.Mutex
	state      session
	generation uint64
}

func NewSessionStateMachine(
	backend ports.BackendClient,
	engine ports.WaveformEngine,
	blobs ports.BlobStore,
	events ports.EventSink,
	logger *zap.Logger,
	cfg Config,
) *SessionStateMachine {
	if cfg.DefaultLoopMinutes <= 0 {
		cfg.DefaultLoopMinutes = 30
	}
	if cfg.DefaultRegionSeconds <= 0 {
		cfg.DefaultRegionSeconds = 15
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("session")

	m := &SessionStateMachine{
		backend: backend,
		engine:  engine,
		blobs:   blobs,
		events:  events,
		logger:  logger,
		cfg:     cfg,
		state:   newSession(cfg),
	}
	m.regions = newRegionManager(engine, m, cfg.DefaultRegionSeconds, logger)
	m.playback = newPlaybackController(engine, m, logger)
	return m
}

func newSession(cfg Config) session {
	return session{stage: domain.StageIdle, loopMinutes: cfg.DefaultLoopMinutes}
}

// SelectFile validates a local audio file and makes it the playable source.
func (m *SessionStateMachine) SelectFile(file domain.AudioFile) error {
	if err := m.requireStage("select a file", domain.StageIdle, domain.StageLoaded); err != nil {
		return err
	}

	mimeType, err := media.ResolveAudioType(file.Name, file.MIMEType, file.Data)
	if err != nil || len(file.Data) == 0 {
		m.recordError(domain.ErrorCodeInvalidFileType, ErrInvalidFileType.Error())
		return fmt.Errorf("%w: %s", ErrInvalidFileType, file.Name)
	}
	if m.cfg.MaxUploadBytes > 0 && int64(len(file.Data)) > m.cfg.MaxUploadBytes {
		m.recordError(domain.ErrorCodeFileTooLarge, ErrFileTooLarge.Error())
		return fmt.Errorf("%w: %s is %d bytes", ErrFileTooLarge, file.Name, len(file.Data))
	}
	file.MIMEType = mimeType

	sourceURL, err := m.blobs.Publish(domain.AudioPayload{MIMEType: mimeType, Data: file.Data})
	if err != nil {
		return fmt.Errorf("publish source audio: %w", err)
	}

	// The stage may have moved on while the blob was being published.
	m.mu.Lock()
	if stage := m.state.stage; stage != domain.StageIdle && stage != domain.StageLoaded {
		m.mu.Unlock()
		m.blobs.Release(sourceURL)
		return stageError("select a file", stage)
	}
	if err := m.transitionLocked(domain.StageLoaded); err != nil {
		m.mu.Unlock()
		m.blobs.Release(sourceURL)
		return err
	}
	previous := m.state.sourceURL
	m.state.source = &file
	m.state.sourceName = file.Name
	m.state.sourceURL = sourceURL
	m.state.err = nil
	m.state.playback = domain.PlaybackState{}
	m.state.duration = 0
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.blobs.Release(previous)
	m.regions.reset()
	m.logger.Info("file loaded", zap.String("file", file.Name), zap.String("mime", mimeType), zap.Int("bytes", len(file.Data)))
	m.events.SessionChanged(snapshot, domain.StageReasonFileLoaded)
	m.loadTrack(sourceURL)
	return nil
}

// Process sends the source file for vocal removal. Backend failures are
// recorded on the session and return the stage to loaded; they are not
// returned as errors.
func (m *SessionStateMachine) Process(ctx context.Context) error {
	m.mu.Lock()
	if m.state.stage != domain.StageLoaded {
		stage := m.state.stage
		m.mu.Unlock()
		return stageError("process", stage)
	}
	if m.state.source == nil {
		m.mu.Unlock()
		return ErrNoSourceFile
	}
	file := *m.state.source
	_ = m.transitionLocked(domain.StageProcessing)
	m.state.err = nil
	m.state.playback = domain.PlaybackState{}
	generation := m.generation
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.events.SessionChanged(snapshot, domain.StageReasonProcessingStarted)

	stop := m.startProgress(ctx, processingMessages)
	track, err := m.backend.Process(ctx, file)
	stop()

	var published string
	if err == nil && track.Audio != nil {
		published, err = m.blobs.Publish(*track.Audio)
		track.URL = published
	}
	if err == nil && track.URL == "" {
		err = errors.New("backend returned no track")
	}

	m.mu.Lock()
	if generation != m.generation {
		m.mu.Unlock()
		m.blobs.Release(published)
		return ErrSessionClosed
	}
	if m.state.stage != domain.StageProcessing {
		stage := m.state.stage
		m.mu.Unlock()
		m.blobs.Release(published)
		m.logger.Warn("processing result discarded", zap.String("stage", string(stage)))
		return stageError("finish processing", stage)
	}

	if err != nil {
		_ = m.transitionLocked(domain.StageLoaded)
		m.state.err = &domain.SessionError{Code: domain.ErrorCodeProcessingFailed, Detail: err.Error()}
		snapshot = m.snapshotLocked()
		m.mu.Unlock()

		m.logger.Warn("processing failed", zap.String("file", file.Name), zap.Error(err))
		m.events.SessionError(domain.ErrorCodeProcessingFailed, err.Error())
		m.events.SessionChanged(snapshot, domain.StageReasonProcessingFailed)
		m.loadTrack(snapshot.SourceURL)
		return nil
	}

	previousSource := m.state.sourceURL
	_ = m.transitionLocked(domain.StageProcessed)
	m.state.processedRef = track.Ref
	m.state.processedURL = track.URL
	m.state.source = nil
	m.state.sourceURL = ""
	m.state.region = nil
	m.state.duration = 0
	m.state.playback = domain.PlaybackState{}
	snapshot = m.snapshotLocked()
	m.mu.Unlock()

	m.blobs.Release(previousSource)
	m.regions.reset()
	m.logger.Info("track processed", zap.String("ref", track.Ref), zap.String("url", track.URL))
	m.events.SessionChanged(snapshot, domain.StageReasonProcessed)
	m.loadTrack(track.URL)
	return nil
}

// RequestLoop sends the active region to the backend to produce the looped
// track. Backend failures return the stage to processed with the region and
// processed track intact.
func (m *SessionStateMachine) RequestLoop(ctx context.Context) error {
	m.mu.Lock()
	if !m.cfg.LoopingEnabled {
		m.mu.Unlock()
		return ErrLoopingDisabled
	}
	if m.state.stage != domain.StageProcessed {
		stage := m.state.stage
		m.mu.Unlock()
		return stageError("loop", stage)
	}
	if m.state.region == nil {
		m.mu.Unlock()
		return ErrNoRegion
	}
	if m.state.processedRef == "" {
		m.mu.Unlock()
		return ErrNoProcessedRef
	}
	request := domain.LoopRequest{
		FileRef:         m.state.processedRef,
		Region:          *m.state.region,
		DurationMinutes: m.state.loopMinutes,
	}
	_ = m.transitionLocked(domain.StageLooping)
	m.state.err = nil
	m.state.playback = domain.PlaybackState{}
	generation := m.generation
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.regions.reset()
	m.events.SessionChanged(snapshot, domain.StageReasonLoopingStarted)

	stop := m.startProgress(ctx, loopingMessages)
	payload, err := m.backend.Loop(ctx, request)
	stop()

	var published string
	if err == nil {
		published, err = m.blobs.Publish(payload)
	}

	m.mu.Lock()
	if generation != m.generation {
		m.mu.Unlock()
		m.blobs.Release(published)
		return ErrSessionClosed
	}
	if m.state.stage != domain.StageLooping {
		stage := m.state.stage
		m.mu.Unlock()
		m.blobs.Release(published)
		m.logger.Warn("looping result discarded", zap.String("stage", string(stage)))
		return stageError("finish looping", stage)
	}

	if err != nil {
		_ = m.transitionLocked(domain.StageProcessed)
		m.state.err = &domain.SessionError{Code: domain.ErrorCodeLoopingFailed, Detail: err.Error()}
		m.state.duration = 0
		snapshot = m.snapshotLocked()
		m.mu.Unlock()

		m.logger.Warn("looping failed", zap.String("ref", request.FileRef), zap.Error(err))
		m.events.SessionError(domain.ErrorCodeLoopingFailed, err.Error())
		m.events.SessionChanged(snapshot, domain.StageReasonLoopingFailed)
		m.loadTrack(snapshot.ProcessedURL)
		return nil
	}

	_ = m.transitionLocked(domain.StageLooped)
	m.state.loopedURL = published
	m.state.duration = 0
	m.state.playback = domain.PlaybackState{}
	snapshot = m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Info("track looped",
		zap.Float64("start", request.Region.Start),
		zap.Float64("end", request.Region.End),
		zap.Float64("length", request.Region.Length()),
		zap.Int("loopDuration", request.DurationMinutes),
	)
	m.events.SessionChanged(snapshot, domain.StageReasonLooped)
	m.loadTrack(published)
	return nil
}

// Reset discards the looped track and returns to region selection on the
// processed track, keeping the region and loop duration.
func (m *SessionStateMachine) Reset() error {
	m.mu.Lock()
	if m.state.stage != domain.StageLooped {
		stage := m.state.stage
		m.mu.Unlock()
		return stageError("loop again", stage)
	}
	looped := m.state.loopedURL
	_ = m.transitionLocked(domain.StageProcessed)
	m.state.loopedURL = ""
	m.state.err = nil
	m.state.duration = 0
	m.state.playback = domain.PlaybackState{}
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.blobs.Release(looped)
	m.regions.reset()
	m.events.SessionChanged(snapshot, domain.StageReasonLoopReset)
	m.loadTrack(snapshot.ProcessedURL)
	return nil
}

// SetLoopDuration stores the requested loop length in minutes. It is passed to
// the backend as-is.
func (m *SessionStateMachine) SetLoopDuration(minutes int) error {
	m.mu.Lock()
	if !m.cfg.LoopingEnabled {
		m.mu.Unlock()
		return ErrLoopingDisabled
	}
	if m.state.stage != domain.StageProcessed {
		stage := m.state.stage
		m.mu.Unlock()
		return stageError("set loop duration", stage)
	}
	if minutes <= 0 {
		m.state.err = &domain.SessionError{Code: domain.ErrorCodeInvalidLoopDuration, Detail: ErrInvalidLoopDuration.Error()}
		m.mu.Unlock()
		m.events.SessionError(domain.ErrorCodeInvalidLoopDuration, ErrInvalidLoopDuration.Error())
		return fmt.Errorf("%w: got %d", ErrInvalidLoopDuration, minutes)
	}
	m.state.loopMinutes = minutes
	if m.state.err != nil && m.state.err.Code == domain.ErrorCodeInvalidLoopDuration {
		m.state.err = nil
	}
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.events.SessionChanged(snapshot, domain.StageReasonLoopDurationChange)
	return nil
}

// TogglePlayPause plays the loop region while selecting it, and the whole
// track otherwise.
func (m *SessionStateMachine) TogglePlayPause() error {
	m.mu.Lock()
	if m.displayURLLocked() == "" {
		m.mu.Unlock()
		return ErrNoTrack
	}
	scope := m.regionScopeLocked()
	var region *domain.Region
	if m.state.region != nil {
		copied := *m.state.region
		region = &copied
	}
	isPlaying := m.state.playback.IsPlaying
	m.mu.Unlock()

	return m.playback.TogglePlayPause(region, isPlaying, scope)
}

// Seek moves the playhead of the displayed track.
func (m *SessionStateMachine) Seek(seconds float64) error {
	m.mu.Lock()
	if m.displayURLLocked() == "" {
		m.mu.Unlock()
		return ErrNoTrack
	}
	duration := m.state.duration
	m.mu.Unlock()

	return m.playback.Seek(seconds, duration)
}

// Download returns the displayed processed or looped track with its save name.
func (m *SessionStateMachine) Download(ctx context.Context) (domain.Download, error) {
	m.mu.Lock()
	var url, filename string
	switch m.state.stage {
	case domain.StageProcessed:
		url, filename = m.state.processedURL, processedFilename
	case domain.StageLooped:
		url, filename = m.state.loopedURL, loopedFilename
	}
	m.mu.Unlock()

	if url == "" {
		return domain.Download{}, ErrNothingToDownload
	}

	if payload, ok := m.blobs.Open(url); ok {
		return domain.Download{Filename: filename, MIMEType: payload.MIMEType, Data: payload.Data}, nil
	}

	payload, err := m.backend.Fetch(ctx, url)
	if err != nil {
		m.recordError(domain.ErrorCodeDownloadFailed, err.Error())
		return domain.Download{}, err
	}
	return domain.Download{Filename: filename, MIMEType: payload.MIMEType, Data: payload.Data}, nil
}

// HandleEngineEvent routes waveform engine callbacks. Events for a track that
// is no longer displayed are dropped.
func (m *SessionStateMachine) HandleEngineEvent(event domain.EngineEvent) {
	if !m.acceptsEvent(event) {
		m.logger.Debug("stale engine event dropped", zap.String("kind", string(event.Kind)), zap.String("track", event.Track))
		return
	}

	switch event.Kind {
	case domain.EngineEventReady:
		m.onReady(event)
	case domain.EngineEventPlay, domain.EngineEventPause, domain.EngineEventAudioProcess, domain.EngineEventSeeking:
		m.playback.HandleTransport(event)
	case domain.EngineEventRegionCreated:
		m.regions.OnRegionCreated(event.Region)
	case domain.EngineEventRegionUpdated:
		m.regions.OnRegionUpdated(event.Region)
	case domain.EngineEventRegionOut:
		m.regions.OnRegionOut(event.Region)
	default:
		m.logger.Debug("unknown engine event", zap.String("kind", string(event.Kind)))
	}
}

// Snapshot returns the current state surface.
func (m *SessionStateMachine) Snapshot() domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Close releases every local reference and returns the session to idle.
// Results of in-flight backend calls are discarded.
func (m *SessionStateMachine) Close() {
	m.mu.Lock()
	m.generation++
	released := []string{m.state.sourceURL, m.state.processedURL, m.state.loopedURL}
	m.state = newSession(m.cfg)
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	for _, url := range released {
		m.blobs.Release(url)
	}
	m.regions.reset()
	m.events.SessionChanged(snapshot, domain.StageReasonSessionClosed)
}

func (m *SessionStateMachine) onReady(event domain.EngineEvent) {
	m.mu.Lock()
	if event.Duration > 0 {
		m.state.duration = event.Duration
	}
	m.state.playback = domain.PlaybackState{}
	scope := m.regionScopeLocked()
	duration := m.state.duration
	var preserved *domain.Region
	if m.state.region != nil {
		copied := *m.state.region
		preserved = &copied
	}
	m.mu.Unlock()

	m.events.PlaybackChanged(domain.PlaybackState{})
	if !scope {
		return
	}

	m.regions.reset()
	if preserved != nil && (duration <= 0 || preserved.Start < duration) {
		m.regions.RestoreRegion(*preserved)
		return
	}
	m.regions.SeedDefaultRegion(duration)
}

func (m *SessionStateMachine) acceptsEvent(event domain.EngineEvent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	url := m.displayURLLocked()
	if url == "" {
		return false
	}
	return event.Track == "" || event.Track == url
}

func (m *SessionStateMachine) loadTrack(url string) {
	if url == "" {
		return
	}
	if err := m.engine.Load(url); err != nil {
		m.logger.Warn("engine failed to load track", zap.String("url", url), zap.Error(err))
	}
}

func (m *SessionStateMachine) recordError(code domain.ErrorCode, detail string) {
	m.mu.Lock()
	m.state.err = &domain.SessionError{Code: code, Detail: detail}
	m.mu.Unlock()

	m.logger.Warn("session error", zap.String("code", string(code)), zap.String("detail", detail))
	m.events.SessionError(code, detail)
}

func (m *SessionStateMachine) requireStage(action string, allowed ...domain.Stage) error {
	m.mu.Lock()
	stage := m.state.stage
	m.mu.Unlock()
	for _, candidate := range allowed {
		if stage == candidate {
			return nil
		}
	}
	return stageError(action, stage)
}

func (m *SessionStateMachine) transitionLocked(next domain.Stage) error {
	if !m.state.stage.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state.stage, next)
	}
	m.logger.Debug("stage transition", zap.String("from", string(m.state.stage)), zap.String("to", string(next)))
	m.state.stage = next
	return nil
}

func (m *SessionStateMachine) displayURLLocked() string {
	switch m.state.stage {
	case domain.StageLoaded:
		return m.state.sourceURL
	case domain.StageProcessed:
		return m.state.processedURL
	case domain.StageLooped:
		return m.state.loopedURL
	default:
		return ""
	}
}

func (m *SessionStateMachine) regionScopeLocked() bool {
	return m.cfg.LoopingEnabled && m.state.stage == domain.StageProcessed
}

func (m *SessionStateMachine) snapshotLocked() domain.Snapshot {
	snapshot := domain.Snapshot{
		Stage:               m.state.stage,
		SourceName:          m.state.sourceName,
		SourceURL:           m.state.sourceURL,
		ProcessedRef:        m.state.processedRef,
		ProcessedURL:        m.state.processedURL,
		LoopedURL:           m.state.loopedURL,
		DisplayURL:          m.displayURLLocked(),
		LoopDurationMinutes: m.state.loopMinutes,
		LoopingEnabled:      m.cfg.LoopingEnabled,
		TrackDuration:       m.state.duration,
		Playback:            m.state.playback,
		CurrentTimeLabel:    domain.FormatTimestamp(m.state.playback.CurrentTime),
	}
	if m.state.region != nil {
		snapshot.Region = domain.NewRegionInfo(*m.state.region)
	}
	if m.state.err != nil {
		copied := *m.state.err
		snapshot.Error = &copied
	}
	return snapshot
}

// regionOwner

func (m *SessionStateMachine) regionScopeActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regionScopeLocked()
}

func (m *SessionStateMachine) activeRegion() (domain.Region, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.region == nil {
		return domain.Region{}, false
	}
	return *m.state.region, true
}

func (m *SessionStateMachine) trackDuration() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.duration
}

func (m *SessionStateMachine) setActiveRegion(region domain.Region) bool {
	m.mu.Lock()
	if !m.regionScopeLocked() {
		m.mu.Unlock()
		return false
	}
	m.state.region = &region
	info := domain.NewRegionInfo(region)
	m.mu.Unlock()

	m.events.RegionChanged(*info)
	return true
}

// playbackOwner

func (m *SessionStateMachine) updatePlayback(apply func(state *domain.PlaybackState)) {
	m.mu.Lock()
	if m.displayURLLocked() == "" {
		m.mu.Unlock()
		return
	}
	apply(&m.state.playback)
	state := m.state.playback
	m.mu.Unlock()

	m.events.PlaybackChanged(state)
}

func stageError(action string, stage domain.Stage) error {
	if stage.Busy() {
		return fmt.Errorf("%w: cannot %s while %s: %w", ErrInvalidTransition, action, stage, ErrBusy)
	}
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, action, stage)
}
