package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"

	"loopy/internal/blob"
	"loopy/internal/bootstrap"
	"loopy/internal/config"
	"loopy/internal/domain"
	"loopy/internal/engine/wavesurfer"
	"loopy/internal/usecase"
)

const (
	eventSession  = "loopy:session"
	eventRegion   = "loopy:region"
	eventPlayback = "loopy:playback"
	eventProgress = "loopy:progress"
	eventError    = "loopy:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	bridge  *wavesurfer.Bridge
	session *usecase.SessionStateMachine
	blobs   *blob.Store
	cfg     config.Config
	logger  *zap.Logger
	bootErr error
}

func NewApp() *App {
	return &App{bridge: wavesurfer.New(nil, nil), logger: zap.NewNop()}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	a.bridge.SetEmitter(func(event string, payload interface{}) {
		runtime.EventsEmit(ctx, event, payload)
	})
	runtime.EventsOn(ctx, wavesurfer.CallbackEvent, a.bridge.Dispatch)

	services, err := bootstrap.Build(a.bridge, a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.session = services.Session
	a.blobs = services.Blobs
	a.logger = services.Logger.Named("app")
	a.SessionChanged(a.session.Snapshot(), domain.StageReasonSessionStarted)
}

func (a *App) shutdown(_ context.Context) {
	if a.session != nil {
		a.session.Close()
	}
	_ = a.logger.Sync()
}

// OpenFile lets the user pick a local MP3 or WAV file. Cancelling the dialog
// leaves the session untouched.
func (a *App) OpenFile() (domain.Snapshot, error) {
	if err := a.requireReady(); err != nil {
		return domain.Snapshot{}, err
	}
	path, err := runtime.OpenFileDialog(a.ctx, runtime.OpenDialogOptions{
		Title: "Choose a song",
		Filters: []runtime.FileFilter{
			{DisplayName: "Audio (*.mp3, *.wav)", Pattern: "*.mp3;*.wav"},
		},
	})
	if err != nil {
		return domain.Snapshot{}, err
	}
	if path == "" {
		return a.session.Snapshot(), nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if limit := a.cfg.Session.MaxUploadBytes; limit > 0 && info.Size() > limit {
		return domain.Snapshot{}, fmt.Errorf("%w: %s", usecase.ErrFileTooLarge, filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return a.selectFile(domain.AudioFile{Name: filepath.Base(path), Data: data})
}

// DropFile accepts a file dropped onto the webview.
func (a *App) DropFile(name string, mimeType string, data []byte) (domain.Snapshot, error) {
	if err := a.requireReady(); err != nil {
		return domain.Snapshot{}, err
	}
	return a.selectFile(domain.AudioFile{Name: name, MIMEType: mimeType, Data: data})
}

// Process sends the selected file for vocal removal.
func (a *App) Process() (domain.Snapshot, error) {
	if err := a.requireReady(); err != nil {
		return domain.Snapshot{}, err
	}
	if err := a.session.Process(a.ctx); err != nil {
		return domain.Snapshot{}, err
	}
	return a.session.Snapshot(), nil
}

// Loop requests the looped track for the current region.
func (a *App) Loop() (domain.Snapshot, error) {
	if err := a.requireReady(); err != nil {
		return domain.Snapshot{}, err
	}
	if err := a.session.RequestLoop(a.ctx); err != nil {
		return domain.Snapshot{}, err
	}
	return a.session.Snapshot(), nil
}

// LoopAgain discards the looped track and returns to region selection.
func (a *App) LoopAgain() (domain.Snapshot, error) {
	if err := a.requireReady(); err != nil {
		return domain.Snapshot{}, err
	}
	if err := a.session.Reset(); err != nil {
		return domain.Snapshot{}, err
	}
	return a.session.Snapshot(), nil
}

// SetLoopDuration stores the loop length in minutes.
func (a *App) SetLoopDuration(minutes int) (domain.Snapshot, error) {
	if err := a.requireReady(); err != nil {
		return domain.Snapshot{}, err
	}
	if err := a.session.SetLoopDuration(minutes); err != nil {
		return a.session.Snapshot(), err
	}
	return a.session.Snapshot(), nil
}

func (a *App) TogglePlayPause() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.session.TogglePlayPause()
}

func (a *App) Seek(seconds float64) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.session.Seek(seconds)
}

// Download saves the displayed processed or looped track and returns the
// chosen path. An empty path means the dialog was cancelled.
func (a *App) Download() (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	track, err := a.session.Download(a.ctx)
	if err != nil {
		return "", err
	}
	path, err := runtime.SaveFileDialog(a.ctx, runtime.SaveDialogOptions{
		Title:           "Save track",
		DefaultFilename: track.Filename,
		Filters: []runtime.FileFilter{
			{DisplayName: "MP3 audio (*.mp3)", Pattern: "*.mp3"},
		},
	})
	if err != nil || path == "" {
		return "", err
	}
	if err := os.WriteFile(path, track.Data, 0o644); err != nil {
		a.SessionError(domain.ErrorCodeDownloadFailed, err.Error())
		return "", err
	}
	a.logger.Info("track saved", zap.String("path", path), zap.Int("bytes", len(track.Data)))
	return path, nil
}

// GetStatus returns the current session snapshot.
func (a *App) GetStatus() domain.Snapshot {
	if a.session == nil {
		status := domain.Snapshot{Stage: domain.StageIdle}
		if a.bootErr != nil {
			status.Error = &domain.SessionError{Code: domain.ErrorCodeStartup, Detail: a.bootErr.Error()}
		}
		return status
	}
	return a.session.Snapshot()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"backend":            a.cfg.Backend.BaseURL,
		"loopingEnabled":     fmt.Sprintf("%t", a.cfg.Session.LoopingEnabled),
		"defaultLoopMinutes": fmt.Sprintf("%d", a.cfg.Session.DefaultLoopMinutes),
		"maxUploadMB":        fmt.Sprintf("%d", a.cfg.Session.MaxUploadBytes>>20),
		"logFile":            a.cfg.Log.File,
	}
}

// ServeHTTP answers asset requests the embedded frontend does not cover,
// which are the /blob/{id} URLs handed to the waveform widget.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if a.blobs == nil {
		http.NotFound(w, r)
		return
	}
	a.blobs.Handler().ServeHTTP(w, r)
}

func (a *App) selectFile(file domain.AudioFile) (domain.Snapshot, error) {
	if err := a.session.SelectFile(file); err != nil {
		if errors.Is(err, usecase.ErrInvalidFileType) || errors.Is(err, usecase.ErrFileTooLarge) {
			return a.session.Snapshot(), err
		}
		return domain.Snapshot{}, err
	}
	return a.session.Snapshot(), nil
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.session == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionChanged emits stage updates to the frontend.
func (a *App) SessionChanged(snapshot domain.Snapshot, reason domain.StageReason) {
	a.emit(eventSession, map[string]interface{}{
		"snapshot": snapshot,
		"reason":   string(reason),
		"message":  sessionReasonMessage(reason),
	})
}

func (a *App) RegionChanged(region domain.RegionInfo) {
	a.emit(eventRegion, region)
}

func (a *App) PlaybackChanged(state domain.PlaybackState) {
	a.emit(eventPlayback, map[string]interface{}{
		"isPlaying":   state.IsPlaying,
		"currentTime": state.CurrentTime,
		"label":       domain.FormatTimestamp(state.CurrentTime),
	})
}

func (a *App) ProgressMessage(text string) {
	a.emit(eventProgress, map[string]string{"text": text})
}

// SessionError emits session errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.emit(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func (a *App) emit(event string, payload interface{}) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, event, payload)
}

func sessionReasonMessage(reason domain.StageReason) string {
	switch reason {
	case domain.StageReasonSessionStarted:
		return "Choose an MP3 or WAV file to get started"
	case domain.StageReasonFileLoaded:
		return "File ready. Remove the vocals when you are ready"
	case domain.StageReasonProcessingStarted:
		return "Removing vocals..."
	case domain.StageReasonProcessed:
		return "Vocals removed"
	case domain.StageReasonProcessingFailed:
		return "Vocal removal failed"
	case domain.StageReasonLoopingStarted:
		return "Looping..."
	case domain.StageReasonLooped:
		return "Loop ready"
	case domain.StageReasonLoopingFailed:
		return "Looping failed"
	case domain.StageReasonLoopReset:
		return "Pick a new loop region"
	case domain.StageReasonLoopDurationChange:
		return "Loop duration updated"
	case domain.StageReasonSessionClosed:
		return "Session closed"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeInvalidFileType:
		return "Only MP3 or WAV files are supported"
	case domain.ErrorCodeFileTooLarge:
		return "File is too large"
	case domain.ErrorCodeProcessingFailed:
		return "Song processing failed"
	case domain.ErrorCodeLoopingFailed:
		return "Song looping failed"
	case domain.ErrorCodeInvalidLoopDuration:
		return "Loop duration must be a positive number of minutes"
	case domain.ErrorCodeDownloadFailed:
		return "Download failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
