package usecase

import "errors"

var (
	ErrInvalidTransition   = errors.New("action is not available in the current stage")
	ErrInvalidFileType     = errors.New("only MP3 or WAV files are supported")
	ErrInvalidLoopDuration = errors.New("loop duration must be a positive number of minutes")
	ErrFileTooLarge        = errors.New("file exceeds the upload limit")
	ErrNoSourceFile        = errors.New("no source file selected")
	ErrNoRegion            = errors.New("no loop region selected")
	ErrNoProcessedRef      = errors.New("processed track has no server reference")
	ErrLoopingDisabled     = errors.New("looping is disabled")
	ErrNothingToDownload   = errors.New("no processed or looped track to download")
	ErrNoTrack             = errors.New("no track is loaded")
	ErrSessionClosed       = errors.New("session closed")
	ErrBusy                = errors.New("a remote operation is already in progress")
)
